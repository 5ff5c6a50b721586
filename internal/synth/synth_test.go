package synth

import (
	"bytes"
	"context"
	"image"
	"image/draw"
	"image/png"
	"math"
	"os"
	"testing"

	"github.com/annel0/terragen/internal/pipeline"
	"github.com/annel0/terragen/internal/store"
)

func setupSynthStore(t *testing.T) *store.TileStore {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "synth-test")
	if err != nil {
		t.Fatalf("Не удалось создать временную директорию: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	ts, err := store.NewTileStore(tempDir)
	if err != nil {
		t.Fatalf("Не удалось создать хранилище: %v", err)
	}
	return ts
}

// Кольцо в одной точке покрывает ровно один тайл
var onePointRing = [][2]float64{{37.62, 55.75}}

func TestPerlinAcquirerProducesCellsAndGrid(t *testing.T) {
	ts := setupSynthStore(t)
	id, _ := ts.CreateGroup()

	acq := NewPerlinAcquirer(ts, 42, 8)
	if err := acq.Acquire(context.Background(), id, onePointRing, 13); err != nil {
		t.Fatalf("Ошибка получения данных: %v", err)
	}

	cells, err := ts.ListCells(id)
	if err != nil {
		t.Fatalf("Ошибка листинга ячеек: %v", err)
	}
	if len(cells) != 1 {
		t.Fatalf("Точка должна покрываться одной ячейкой, получено %d", len(cells))
	}

	meta, err := ts.ReadCellMeta(id, cells[0])
	if err != nil {
		t.Fatalf("Ошибка чтения метаданных: %v", err)
	}
	if meta.Tile[2] != 13 {
		t.Errorf("Ожидался zoom 13 в метаданных, получено %d", meta.Tile[2])
	}
	if meta.MinHeight > meta.MaxHeight {
		t.Errorf("MinHeight %.2f больше MaxHeight %.2f", meta.MinHeight, meta.MaxHeight)
	}
	if meta.MinHeight < -MaxElevation || meta.MaxHeight > 2*MaxElevation {
		t.Errorf("Высоты далеко за пределами амплитуды: %.2f..%.2f", meta.MinHeight, meta.MaxHeight)
	}

	grid, err := ts.ReadElevation(id)
	if err != nil {
		t.Fatalf("Ошибка чтения сетки высот: %v", err)
	}
	if grid.Width != 8 || grid.Height != 8 {
		t.Errorf("Ожидалась сетка 8x8, получено %dx%d", grid.Width, grid.Height)
	}
	if math.IsInf(grid.MinHeight, 0) || math.IsInf(grid.MaxHeight, 0) {
		t.Error("Экстремумы сетки не должны оставаться бесконечными")
	}

	// Превью снимка тоже записано
	if _, ok := ts.ArtifactPath(id, store.KindSatellite); !ok {
		t.Error("Превью снимка должно существовать после получения данных")
	}
}

func TestPerlinAcquirerDeterministicForSeed(t *testing.T) {
	ts := setupSynthStore(t)
	id1, _ := ts.CreateGroup()
	id2, _ := ts.CreateGroup()

	if err := NewPerlinAcquirer(ts, 7, 8).Acquire(context.Background(), id1, onePointRing, 13); err != nil {
		t.Fatalf("Ошибка первого прогона: %v", err)
	}
	if err := NewPerlinAcquirer(ts, 7, 8).Acquire(context.Background(), id2, onePointRing, 13); err != nil {
		t.Fatalf("Ошибка второго прогона: %v", err)
	}

	g1, _ := ts.ReadElevation(id1)
	g2, _ := ts.ReadElevation(id2)
	if len(g1.Values) != len(g2.Values) {
		t.Fatalf("Размеры сеток различаются: %d и %d", len(g1.Values), len(g2.Values))
	}
	for i := range g1.Values {
		if g1.Values[i] != g2.Values[i] {
			t.Fatalf("Сетки с одинаковым сидом различаются в точке %d: %f != %f", i, g1.Values[i], g2.Values[i])
		}
	}
}

func TestThresholdClassifierWritesPaletteRaster(t *testing.T) {
	ts := setupSynthStore(t)
	id, _ := ts.CreateGroup()

	const cellPx = 8
	if err := NewPerlinAcquirer(ts, 42, cellPx).Acquire(context.Background(), id, onePointRing, 13); err != nil {
		t.Fatalf("Ошибка получения данных: %v", err)
	}
	cells, _ := ts.ListCells(id)

	tc := NewThresholdClassifier(ts)
	if err := tc.Classify(context.Background(), id, cells[0]); err != nil {
		t.Fatalf("Ошибка классификации: %v", err)
	}

	path, ok := ts.CellRasterPath(id, cells[0], pipeline.CellLandcoverFile)
	if !ok {
		t.Fatal("Растр классификации должен существовать")
	}
	img, err := readPNG(path)
	if err != nil {
		t.Fatalf("Растр классификации не декодируется: %v", err)
	}
	if img.Bounds().Dx() != cellPx || img.Bounds().Dy() != cellPx {
		t.Errorf("Ожидался растр %dx%d, получено %dx%d", cellPx, cellPx, img.Bounds().Dx(), img.Bounds().Dy())
	}

	// Каждый пиксель — один из цветов палитры
	palette := map[[3]uint8]bool{
		{pipeline.ColorWater.R, pipeline.ColorWater.G, pipeline.ColorWater.B}:    true,
		{pipeline.ColorSand.R, pipeline.ColorSand.G, pipeline.ColorSand.B}:       true,
		{pipeline.ColorGrass.R, pipeline.ColorGrass.G, pipeline.ColorGrass.B}:    true,
		{pipeline.ColorForest.R, pipeline.ColorForest.G, pipeline.ColorForest.B}: true,
		{pipeline.ColorRock.R, pipeline.ColorRock.G, pipeline.ColorRock.B}:       true,
	}
	for y := 0; y < cellPx; y++ {
		for x := 0; x < cellPx; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			key := [3]uint8{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8)}
			if !palette[key] {
				t.Fatalf("Пиксель (%d,%d) вне палитры: %v", x, y, key)
			}
		}
	}
}

func TestClassifyUnknownCell(t *testing.T) {
	ts := setupSynthStore(t)
	id, _ := ts.CreateGroup()

	err := NewThresholdClassifier(ts).Classify(context.Background(), id, "tile_9_9")
	if err == nil {
		t.Fatal("Классификация ячейки без метаданных должна завершаться ошибкой")
	}
}

func TestSynthesizeFlattensWater(t *testing.T) {
	ts := setupSynthStore(t)
	id, _ := ts.CreateGroup()

	// Сетка 4x4 с линейным ростом высоты слева направо
	const n = 4
	grid := &store.ElevationGrid{
		Width:     n,
		Height:    n,
		Values:    make([]float64, n*n),
		MinHeight: 0,
		MaxHeight: 300,
	}
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			grid.Values[y*n+x] = float64(x) * 100
		}
	}
	if err := ts.WriteElevation(id, grid); err != nil {
		t.Fatalf("Ошибка записи сетки высот: %v", err)
	}

	// Landcover: правый столбец — вода, остальное — трава
	lc := image.NewRGBA(image.Rect(0, 0, n, n))
	draw.Draw(lc, lc.Bounds(), image.NewUniform(pipeline.ColorGrass), image.Point{}, draw.Src)
	for y := 0; y < n; y++ {
		lc.SetRGBA(n-1, y, pipeline.ColorWater)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, lc); err != nil {
		t.Fatalf("Ошибка кодирования landcover: %v", err)
	}
	if err := ts.Write(id, store.KindLandcover, buf.Bytes()); err != nil {
		t.Fatalf("Ошибка записи landcover: %v", err)
	}

	lcPath, _ := ts.ArtifactPath(id, store.KindLandcover)
	if err := NewLandcoverSynthesizer(ts).Synthesize(context.Background(), id, lcPath); err != nil {
		t.Fatalf("Ошибка синтеза: %v", err)
	}

	hmPath, ok := ts.ArtifactPath(id, store.KindHeightmap)
	if !ok {
		t.Fatal("Хайтмапа должна существовать после синтеза")
	}
	hm, err := readPNG(hmPath)
	if err != nil {
		t.Fatalf("Хайтмапа не декодируется: %v", err)
	}

	// Самый высокий столбец перекрашен в воду — его пиксели выровнены в ноль
	rWater, _, _, _ := hm.At(n-1, 0).RGBA()
	if rWater != 0 {
		t.Errorf("Водный пиксель должен быть плоским (0), получено %d", rWater)
	}
	// Сухой столбец сохраняет нормированную высоту
	rLand, _, _, _ := hm.At(n-2, 0).RGBA()
	if rLand == 0 {
		t.Error("Сухой пиксель не должен обнуляться")
	}
}

func TestSynthesizeWithoutLandcover(t *testing.T) {
	ts := setupSynthStore(t)
	id, _ := ts.CreateGroup()

	grid := &store.ElevationGrid{Width: 2, Height: 2, Values: []float64{0, 10, 20, 30}, MinHeight: 0, MaxHeight: 30}
	if err := ts.WriteElevation(id, grid); err != nil {
		t.Fatalf("Ошибка записи сетки высот: %v", err)
	}

	// Пустой путь — хайтмапа строится без выравнивания воды
	if err := NewLandcoverSynthesizer(ts).Synthesize(context.Background(), id, ""); err != nil {
		t.Fatalf("Синтез без landcover не должен падать: %v", err)
	}
	if _, ok := ts.ArtifactPath(id, store.KindHeightmap); !ok {
		t.Fatal("Хайтмапа должна существовать")
	}
}
