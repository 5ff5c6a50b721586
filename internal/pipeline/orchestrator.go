package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/annel0/terragen/internal/eventbus"
	"github.com/annel0/terragen/internal/logging"
	"github.com/annel0/terragen/internal/store"
)

// Options конфигурация оркестратора пайплайна
type Options struct {
	Store       *store.TileStore
	Acquirer    Acquirer
	Classifier  Classifier
	Synthesizer Synthesizer
	Bus         eventbus.EventBus // nil — события публикуются в глобальную шину
	// CellPx размер растра одной ячейки в пикселях
	CellPx int
	// PreserveOverride: при повторном прогоне пайплайна создания синтез
	// хайтмапы продолжает использовать пользовательский override.
	// false — override игнорируется (но не удаляется).
	PreserveOverride bool
}

// Orchestrator последовательно выполняет стадии пайплайна создания группы
// и воркфлоу правки landcover. Прогоны для разных групп идут конкурентно;
// прогоны для одной группы сериализуются погрупповой блокировкой,
// чтобы правка не гонялась с ещё идущим созданием.
type Orchestrator struct {
	store       *store.TileStore
	acquirer    Acquirer
	classifier  Classifier
	synthesizer Synthesizer
	bus         eventbus.EventBus
	cellPx      int
	preserve    bool

	runCtx context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	groupLocks map[string]*sync.Mutex
}

// NewOrchestrator создаёт оркестратор пайплайна
func NewOrchestrator(opts Options) *Orchestrator {
	if opts.CellPx <= 0 {
		opts.CellPx = 256
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		store:       opts.Store,
		acquirer:    opts.Acquirer,
		classifier:  opts.Classifier,
		synthesizer: opts.Synthesizer,
		bus:         opts.Bus,
		cellPx:      opts.CellPx,
		preserve:    opts.PreserveOverride,
		runCtx:      ctx,
		cancel:      cancel,
		groupLocks:  make(map[string]*sync.Mutex),
	}
}

// CreateTile выделяет новую группу и запускает фоновый прогон пайплайна.
// Идентификатор возвращается сразу после создания директории группы —
// вызывающий не ждёт ни одной последующей стадии. Результат прогона
// наблюдается только по появлению артефактов (и записи статуса).
func (o *Orchestrator) CreateTile(ctx context.Context, ring [][2]float64, zoom int, islandMask bool) (string, error) {
	groupID, err := o.store.CreateGroup()
	if err != nil {
		return "", err
	}

	o.writeStatus(groupID, StageCreated)
	o.publish(eventbus.NewStageEvent(eventbus.EventTileCreated, groupID, string(StageCreated)))
	logging.Info("🗺️  Создана группа %s (zoom=%d, islandMask=%v)", groupID, zoom, islandMask)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.runCreation(groupID, ring, zoom, islandMask)
	}()

	return groupID, nil
}

// EditLandcover сохраняет пользовательскую правку landcover и синхронно
// пересчитывает только хайтмапу. Классификация и склейка не перезапускаются:
// override полностью замещает их вывод для нижестоящих стадий.
// Ошибка синтеза возвращается вызывающему.
func (o *Orchestrator) EditLandcover(ctx context.Context, groupID string, raster []byte) error {
	if !o.store.GroupExists(groupID) {
		return fmt.Errorf("%w: группа %s", store.ErrNotFound, groupID)
	}

	lock := o.groupLock(groupID)
	lock.Lock()
	defer lock.Unlock()

	if err := o.store.WriteOverride(groupID, store.KindLandcover, raster); err != nil {
		return err
	}
	o.publish(eventbus.NewStageEvent(eventbus.EventTileEdited, groupID, string(StageCombined)))
	logging.Info("✏️  Правка landcover для группы %s (%d байт)", groupID, len(raster))

	path, ok := o.store.ArtifactPath(groupID, store.KindLandcover)
	if !ok {
		// Невозможно: override только что записан
		return fmt.Errorf("%w: landcover группы %s недоступен", ErrSynthesisFailed, groupID)
	}

	if err := o.synthesizer.Synthesize(ctx, groupID, path); err != nil {
		o.publish(eventbus.NewFailureEvent(groupID, string(StageHeightmapReady), err))
		return fmt.Errorf("%w: %v", ErrSynthesisFailed, err)
	}

	o.writeStatus(groupID, StageHeightmapReady)
	o.publish(eventbus.NewStageEvent(eventbus.EventTileHeightmap, groupID, string(StageHeightmapReady)))
	return nil
}

// Stop отменяет все фоновые прогоны и дожидается их завершения
func (o *Orchestrator) Stop() {
	o.cancel()
	o.wg.Wait()
}

// runCreation выполняет стадии создания строго последовательно.
// Упавшая стадия останавливает прогон: статус остаётся на последней
// успешной стадии, артефакты после точки отказа отсутствуют, ретраев нет.
// Отказ одного прогона не влияет на другие группы.
func (o *Orchestrator) runCreation(groupID string, ring [][2]float64, zoom int, islandMask bool) {
	lock := o.groupLock(groupID)
	lock.Lock()
	defer lock.Unlock()

	ctx := o.runCtx

	// Стадия 1: получение исходных данных
	if err := o.acquirer.Acquire(ctx, groupID, ring, zoom); err != nil {
		o.failStage(groupID, StageCreated, fmt.Errorf("%w: %v", ErrAcquisitionFailed, err))
		return
	}
	o.writeStatus(groupID, StageAcquired)
	o.publish(eventbus.NewStageEvent(eventbus.EventTileAcquired, groupID, string(StageAcquired)))

	// Стадия 2 (опциональная): попиксельная классификация каждой ячейки
	if islandMask {
		cells, err := o.store.ListCells(groupID)
		if err != nil {
			o.failStage(groupID, StageAcquired, err)
			return
		}
		for _, cellID := range cells {
			if err := o.classifier.Classify(ctx, groupID, cellID); err != nil {
				o.failStage(groupID, StageAcquired, fmt.Errorf("%w: ячейка %s: %v", ErrClassificationFailed, cellID, err))
				return
			}
		}
		o.writeStatus(groupID, StageClassified)
		o.publish(eventbus.NewStageEvent(eventbus.EventTileClassified, groupID, string(StageClassified)))
	}

	// Стадия 3: склейка классификаций в сгенерированный landcover.
	// Override, оставшийся от прежней правки, файл склейки не затирает.
	if err := CombineLandcover(o.store, groupID, o.cellPx); err != nil {
		o.failStage(groupID, StageAcquired, err)
		return
	}
	o.writeStatus(groupID, StageCombined)
	o.publish(eventbus.NewStageEvent(eventbus.EventTileCombined, groupID, string(StageCombined)))

	// Стадия 4: синтез хайтмапы из действующего landcover
	lcPath := o.effectiveLandcover(groupID)
	if err := o.synthesizer.Synthesize(ctx, groupID, lcPath); err != nil {
		o.failStage(groupID, StageCombined, fmt.Errorf("%w: %v", ErrSynthesisFailed, err))
		return
	}
	o.writeStatus(groupID, StageHeightmapReady)
	o.publish(eventbus.NewStageEvent(eventbus.EventTileHeightmap, groupID, string(StageHeightmapReady)))
	logging.Info("✅ Пайплайн группы %s завершён", groupID)
}

// effectiveLandcover возвращает путь landcover-растра для синтеза:
// override-first при включённой политике PreserveOverride, иначе всегда
// сгенерированный файл.
func (o *Orchestrator) effectiveLandcover(groupID string) string {
	if o.preserve {
		if path, ok := o.store.ArtifactPath(groupID, store.KindLandcover); ok {
			return path
		}
	}
	return o.store.GeneratedPath(groupID, store.KindLandcover)
}

// failStage фиксирует отказ стадии: лог, событие, без ретраев.
// Оригинальному вызывающему ошибка не возвращается — он уже получил ответ;
// отказ наблюдаем по отсутствию артефакта и застывшему статусу.
func (o *Orchestrator) failStage(groupID string, lastOK Stage, err error) {
	logging.Error("❌ Пайплайн группы %s остановлен на стадии после %q: %v", groupID, lastOK, err)
	o.publish(eventbus.NewFailureEvent(groupID, string(lastOK), err))
}

func (o *Orchestrator) writeStatus(groupID string, stage Stage) {
	rec := store.StatusRecord{Stage: string(stage), UpdatedAt: time.Now().Unix()}
	if err := o.store.WriteStatus(groupID, rec); err != nil {
		logging.Warn("Не удалось записать статус %s для группы %s: %v", stage, groupID, err)
	}
}

func (o *Orchestrator) publish(ev *eventbus.Envelope) {
	if o.bus != nil {
		_ = o.bus.Publish(o.runCtx, ev)
		return
	}
	_ = eventbus.Publish(o.runCtx, ev)
}

// groupLock возвращает (создавая при необходимости) блокировку группы
func (o *Orchestrator) groupLock(groupID string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()

	lock, ok := o.groupLocks[groupID]
	if !ok {
		lock = &sync.Mutex{}
		o.groupLocks[groupID] = lock
	}
	return lock
}
