package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/terragen/internal/store"
)

// MockAcquirer реализует Acquirer для тестов: записывает метаданные одной
// ячейки вместо обращения к реальному источнику данных.
type MockAcquirer struct {
	store *store.TileStore
	fail  bool
	tile  [3]int
}

func NewMockAcquirer(ts *store.TileStore) *MockAcquirer {
	return &MockAcquirer{store: ts, tile: [3]int{4400, 2686, 13}}
}

func (m *MockAcquirer) Acquire(ctx context.Context, groupID string, ring [][2]float64, zoom int) error {
	if m.fail {
		return fmt.Errorf("источник данных недоступен")
	}

	cellID := fmt.Sprintf("tile_%d_%d", m.tile[0], m.tile[1])
	return m.store.WriteCellMeta(groupID, cellID, store.CellMeta{
		Tile:      m.tile,
		MinHeight: 10,
		MaxHeight: 120,
	})
}

// MockClassifier запоминает классифицированные ячейки.
type MockClassifier struct {
	fail  bool
	cells []string
	mutex sync.Mutex
}

func (m *MockClassifier) Classify(ctx context.Context, groupID, cellID string) error {
	if m.fail {
		return fmt.Errorf("классификация не удалась")
	}
	m.mutex.Lock()
	m.cells = append(m.cells, cellID)
	m.mutex.Unlock()
	return nil
}

func (m *MockClassifier) Cells() []string {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return append([]string(nil), m.cells...)
}

// MockSynthesizer запоминает пути landcover, с которыми его вызвали.
type MockSynthesizer struct {
	fail  bool
	paths []string
	mutex sync.Mutex
}

func (m *MockSynthesizer) Synthesize(ctx context.Context, groupID, landcoverPath string) error {
	m.mutex.Lock()
	m.paths = append(m.paths, landcoverPath)
	m.mutex.Unlock()
	if m.fail {
		return fmt.Errorf("синтез не удался")
	}
	return nil
}

func (m *MockSynthesizer) Paths() []string {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return append([]string(nil), m.paths...)
}

type pipelineFixture struct {
	store       *store.TileStore
	acquirer    *MockAcquirer
	classifier  *MockClassifier
	synthesizer *MockSynthesizer
	orch        *Orchestrator
}

func newPipelineFixture(t *testing.T, preserve bool) *pipelineFixture {
	t.Helper()

	dir, err := os.MkdirTemp("", "pipeline_test_*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	ts, err := store.NewTileStore(dir)
	require.NoError(t, err)

	f := &pipelineFixture{
		store:       ts,
		acquirer:    NewMockAcquirer(ts),
		classifier:  &MockClassifier{},
		synthesizer: &MockSynthesizer{},
	}
	f.orch = NewOrchestrator(Options{
		Store:            ts,
		Acquirer:         f.acquirer,
		Classifier:       f.classifier,
		Synthesizer:      f.synthesizer,
		CellPx:           4, // маленький растр — быстрее склейка
		PreserveOverride: preserve,
	})
	t.Cleanup(f.orch.Stop)
	return f
}

// waitForStage дожидается, пока статус группы не достигнет стадии.
func waitForStage(t *testing.T, ts *store.TileStore, groupID string, stage Stage) {
	t.Helper()
	require.Eventually(t, func() bool {
		rec, err := ts.ReadStatus(groupID)
		return err == nil && rec.Stage == string(stage)
	}, 5*time.Second, 10*time.Millisecond, "группа %s не достигла стадии %s", groupID, stage)
}

func TestCreateTile_ReturnsIDImmediately(t *testing.T) {
	f := newPipelineFixture(t, true)

	ring := [][2]float64{{37.6, 55.7}, {37.7, 55.7}, {37.7, 55.8}}
	id, err := f.orch.CreateTile(context.Background(), ring, 13, false)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	// Группа видна сразу, даже если стадии ещё не завершились
	assert.True(t, f.store.GroupExists(id), "группа должна существовать сразу после ответа")

	waitForStage(t, f.store, id, StageHeightmapReady)

	// Без islandMask классификация не выполняется
	assert.Empty(t, f.classifier.Cells(), "классификатор не должен вызываться без islandMask")

	// Склеенный landcover записан и именно он ушёл в синтез
	lcPath, ok := f.store.ArtifactPath(id, store.KindLandcover)
	require.True(t, ok, "после склейки landcover должен существовать")
	paths := f.synthesizer.Paths()
	require.Len(t, paths, 1)
	assert.Equal(t, lcPath, paths[0])
}

func TestCreateTile_IslandMaskClassifiesEveryCell(t *testing.T) {
	f := newPipelineFixture(t, true)

	id, err := f.orch.CreateTile(context.Background(), [][2]float64{{0, 0}}, 13, true)
	require.NoError(t, err)

	waitForStage(t, f.store, id, StageHeightmapReady)

	cells, err := f.store.ListCells(id)
	require.NoError(t, err)
	assert.Equal(t, cells, f.classifier.Cells(), "классификатор должен обойти все ячейки группы")
}

func TestCreateTile_FailedStageFreezesStatus(t *testing.T) {
	f := newPipelineFixture(t, true)
	f.acquirer.fail = true

	id, err := f.orch.CreateTile(context.Background(), [][2]float64{{0, 0}}, 13, false)
	require.NoError(t, err, "отказ фоновой стадии не должен влиять на ответ создания")

	f.orch.Stop() // дождаться завершения фонового прогона

	rec, err := f.store.ReadStatus(id)
	require.NoError(t, err)
	assert.Equal(t, string(StageCreated), rec.Stage, "статус должен застыть на последней успешной стадии")

	_, ok := f.store.ArtifactPath(id, store.KindLandcover)
	assert.False(t, ok, "после точки отказа артефактов быть не должно")
	assert.Empty(t, f.synthesizer.Paths(), "синтез после отказа не запускается")
}

func TestCreateTile_ConcurrentGroupsDoNotInterfere(t *testing.T) {
	f := newPipelineFixture(t, true)

	id1, err := f.orch.CreateTile(context.Background(), [][2]float64{{0, 0}}, 13, false)
	require.NoError(t, err)
	id2, err := f.orch.CreateTile(context.Background(), [][2]float64{{1, 1}}, 13, false)
	require.NoError(t, err)
	require.NotEqual(t, id1, id2)

	waitForStage(t, f.store, id1, StageHeightmapReady)
	waitForStage(t, f.store, id2, StageHeightmapReady)

	// Каждая группа получила собственные артефакты
	for _, id := range []string{id1, id2} {
		_, ok := f.store.ArtifactPath(id, store.KindLandcover)
		assert.True(t, ok, "группа %s должна иметь landcover", id)
	}
	assert.Len(t, f.synthesizer.Paths(), 2)
}

func TestEditLandcover_WritesOverrideAndResynthesizes(t *testing.T) {
	f := newPipelineFixture(t, true)

	id, err := f.orch.CreateTile(context.Background(), [][2]float64{{0, 0}}, 13, false)
	require.NoError(t, err)
	waitForStage(t, f.store, id, StageHeightmapReady)
	require.Len(t, f.synthesizer.Paths(), 1)

	raster := []byte("png-данные правки")
	err = f.orch.EditLandcover(context.Background(), id, raster)
	require.NoError(t, err)

	// Override записан и теперь разрешается вместо сгенерированного файла
	require.True(t, f.store.HasOverride(id, store.KindLandcover))
	overridePath, ok := f.store.ArtifactPath(id, store.KindLandcover)
	require.True(t, ok)
	assert.NotEqual(t, f.store.GeneratedPath(id, store.KindLandcover), overridePath)

	// Пересинтез выполнился ровно один раз и именно с override
	paths := f.synthesizer.Paths()
	require.Len(t, paths, 2)
	assert.Equal(t, overridePath, paths[1])

	data, err := os.ReadFile(overridePath)
	require.NoError(t, err)
	assert.Equal(t, raster, data)
}

func TestEditLandcover_UnknownGroup(t *testing.T) {
	f := newPipelineFixture(t, true)

	err := f.orch.EditLandcover(context.Background(), "нет-такой-группы", []byte("x"))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestEditLandcover_SynthesisErrorReturned(t *testing.T) {
	f := newPipelineFixture(t, true)

	id, err := f.orch.CreateTile(context.Background(), [][2]float64{{0, 0}}, 13, false)
	require.NoError(t, err)
	waitForStage(t, f.store, id, StageHeightmapReady)

	f.synthesizer.fail = true
	err = f.orch.EditLandcover(context.Background(), id, []byte("правка"))
	assert.ErrorIs(t, err, ErrSynthesisFailed, "ошибка правки, в отличие от создания, возвращается вызывающему")

	// Сам override при этом сохранён
	assert.True(t, f.store.HasOverride(id, store.KindLandcover))
}

func TestEffectiveLandcover_PreservePolicy(t *testing.T) {
	// preserve=true: повторный синтез уважает override
	f := newPipelineFixture(t, true)
	id, err := f.store.CreateGroup()
	require.NoError(t, err)
	require.NoError(t, f.store.WriteOverride(id, store.KindLandcover, []byte("override")))

	path := f.orch.effectiveLandcover(id)
	override, ok := f.store.ArtifactPath(id, store.KindLandcover)
	require.True(t, ok)
	assert.Equal(t, override, path)

	// preserve=false: override игнорируется, но не удаляется
	f2 := newPipelineFixture(t, false)
	id2, err := f2.store.CreateGroup()
	require.NoError(t, err)
	require.NoError(t, f2.store.WriteOverride(id2, store.KindLandcover, []byte("override")))

	assert.Equal(t, f2.store.GeneratedPath(id2, store.KindLandcover), f2.orch.effectiveLandcover(id2))
	assert.True(t, f2.store.HasOverride(id2, store.KindLandcover))
}

func TestPipelineErrors_Wrapping(t *testing.T) {
	wrapped := fmt.Errorf("%w: detail", ErrSynthesisFailed)
	assert.True(t, errors.Is(wrapped, ErrSynthesisFailed))
	assert.False(t, errors.Is(wrapped, ErrAcquisitionFailed))
}
