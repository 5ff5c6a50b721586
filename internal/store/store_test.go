package store

import (
	"os"
	"path/filepath"
	"testing"
)

func setupTestStore(t *testing.T) *TileStore {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "tile-store-test")
	if err != nil {
		t.Fatalf("Не удалось создать временную директорию: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	ts, err := NewTileStore(tempDir)
	if err != nil {
		t.Fatalf("Не удалось создать хранилище: %v", err)
	}
	return ts
}

func TestCreateGroupVisibleImmediately(t *testing.T) {
	ts := setupTestStore(t)

	id, err := ts.CreateGroup()
	if err != nil {
		t.Fatalf("Ошибка создания группы: %v", err)
	}
	if id == "" {
		t.Fatal("Ожидался непустой идентификатор группы")
	}

	// Группа видна в листинге до появления каких-либо артефактов
	groups, err := ts.ListGroups()
	if err != nil {
		t.Fatalf("Ошибка листинга групп: %v", err)
	}
	if len(groups) != 1 || groups[0] != id {
		t.Errorf("Ожидался листинг [%s], получено %v", id, groups)
	}

	// У пустой группы нет ни одного артефакта
	for _, kind := range []ArtifactKind{KindLandcover, KindHeightmap, KindSatellite} {
		if _, ok := ts.ArtifactPath(id, kind); ok {
			t.Errorf("Артефакт %s не должен существовать для пустой группы", kind)
		}
	}
}

func TestCellMetaRoundTrip(t *testing.T) {
	ts := setupTestStore(t)
	id, _ := ts.CreateGroup()

	meta := CellMeta{Tile: [3]int{4400, 2686, 13}, MinHeight: 12.5, MaxHeight: 340.0}
	if err := ts.WriteCellMeta(id, "tile_0_0", meta); err != nil {
		t.Fatalf("Ошибка записи метаданных: %v", err)
	}

	got, err := ts.ReadCellMeta(id, "tile_0_0")
	if err != nil {
		t.Fatalf("Ошибка чтения метаданных: %v", err)
	}
	if got != meta {
		t.Errorf("Ожидалось %+v, получено %+v", meta, got)
	}

	cells, err := ts.ListCells(id)
	if err != nil {
		t.Fatalf("Ошибка листинга ячеек: %v", err)
	}
	if len(cells) != 1 || cells[0] != "tile_0_0" {
		t.Errorf("Ожидался листинг [tile_0_0], получено %v", cells)
	}
}

func TestReadCellMetaNotFound(t *testing.T) {
	ts := setupTestStore(t)
	id, _ := ts.CreateGroup()

	if _, err := ts.ReadCellMeta(id, "missing"); err == nil {
		t.Error("Ожидалась ошибка для отсутствующей ячейки")
	}
}

func TestOverridePrecedence(t *testing.T) {
	ts := setupTestStore(t)
	id, _ := ts.CreateGroup()

	// Нет ни одного файла — артефакт отсутствует
	if _, ok := ts.ArtifactPath(id, KindLandcover); ok {
		t.Error("Артефакт не должен существовать до записи")
	}

	// Только сгенерированный файл
	if err := ts.Write(id, KindLandcover, []byte("generated")); err != nil {
		t.Fatalf("Ошибка записи артефакта: %v", err)
	}
	p, ok := ts.ArtifactPath(id, KindLandcover)
	if !ok || filepath.Base(p) != "landcover_colors.png" {
		t.Errorf("Ожидался сгенерированный файл, получено %q", p)
	}

	// Override имеет приоритет над сгенерированным
	if err := ts.WriteOverride(id, KindLandcover, []byte("edited")); err != nil {
		t.Fatalf("Ошибка записи override: %v", err)
	}
	p, ok = ts.ArtifactPath(id, KindLandcover)
	if !ok || filepath.Base(p) != "landcover_colors_edited.png" {
		t.Errorf("Ожидался override-файл, получено %q", p)
	}
	if !ts.HasOverride(id, KindLandcover) {
		t.Error("HasOverride должен вернуть true")
	}

	// Сгенерированный файл не удалён (неразрушающая правка)
	data, err := os.ReadFile(ts.GeneratedPath(id, KindLandcover))
	if err != nil || string(data) != "generated" {
		t.Errorf("Сгенерированный файл повреждён: %q, %v", data, err)
	}

	// После удаления override снова виден сгенерированный файл
	os.Remove(p)
	p, ok = ts.ArtifactPath(id, KindLandcover)
	if !ok || filepath.Base(p) != "landcover_colors.png" {
		t.Errorf("Ожидался возврат к сгенерированному файлу, получено %q", p)
	}
}

func TestOverrideUnsupportedKind(t *testing.T) {
	ts := setupTestStore(t)
	id, _ := ts.CreateGroup()

	if err := ts.WriteOverride(id, KindHeightmap, []byte("x")); err == nil {
		t.Error("Ожидалась ошибка: heightmap не поддерживает override")
	}
}

func TestAtomicWriteLeavesNoTemp(t *testing.T) {
	ts := setupTestStore(t)
	id, _ := ts.CreateGroup()

	if err := ts.Write(id, KindSatellite, []byte("pixels")); err != nil {
		t.Fatalf("Ошибка записи: %v", err)
	}

	entries, _ := os.ReadDir(filepath.Join(ts.BasePath(), id))
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Errorf("Временный файл не должен оставаться после записи: %s", e.Name())
		}
	}
}

func TestStatusRoundTrip(t *testing.T) {
	ts := setupTestStore(t)
	id, _ := ts.CreateGroup()

	if _, err := ts.ReadStatus(id); err == nil {
		t.Error("Ожидалась ошибка для группы без статуса")
	}

	rec := StatusRecord{Stage: "acquired", UpdatedAt: 1700000000}
	if err := ts.WriteStatus(id, rec); err != nil {
		t.Fatalf("Ошибка записи статуса: %v", err)
	}

	got, err := ts.ReadStatus(id)
	if err != nil {
		t.Fatalf("Ошибка чтения статуса: %v", err)
	}
	if got != rec {
		t.Errorf("Ожидалось %+v, получено %+v", rec, got)
	}
}

func TestElevationRoundTrip(t *testing.T) {
	ts := setupTestStore(t)
	id, _ := ts.CreateGroup()

	grid := &ElevationGrid{
		Width:     2,
		Height:    2,
		Values:    []float64{1, 2, 3, 4},
		MinHeight: 1,
		MaxHeight: 4,
	}
	if err := ts.WriteElevation(id, grid); err != nil {
		t.Fatalf("Ошибка записи высот: %v", err)
	}

	got, err := ts.ReadElevation(id)
	if err != nil {
		t.Fatalf("Ошибка чтения высот: %v", err)
	}
	if got.Width != 2 || got.Height != 2 || len(got.Values) != 4 || got.Values[3] != 4 {
		t.Errorf("Сетка высот искажена: %+v", got)
	}
}

func TestPublicPath(t *testing.T) {
	ts := setupTestStore(t)
	id, _ := ts.CreateGroup()
	_ = ts.Write(id, KindHeightmap, []byte("x"))

	p, _ := ts.ArtifactPath(id, KindHeightmap)
	public := ts.PublicPath(p)
	want := "/" + id + "/heightmap_final.png"
	if public != want {
		t.Errorf("Ожидалось %q, получено %q", want, public)
	}
}
