package synth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"

	"github.com/annel0/terragen/internal/pipeline"
	"github.com/annel0/terragen/internal/store"
)

// Пороги нормированной высоты для классификации landcover
const (
	WaterMax  = 0.30 // Ниже - вода
	SandMax   = 0.35 // Ниже - песок/пляж
	GrassMax  = 0.60 // Ниже - травянистая равнина
	ForestMax = 0.80 // Ниже - лес; выше - скалы
)

// ThresholdClassifier классифицирует landcover ячейки по порогам высоты
// из сетки высот группы. Замена внешнему сегментатору снимков: контракт
// тот же — на выходе попиксельный растр палитровых цветов ячейки.
type ThresholdClassifier struct {
	store *store.TileStore
}

// NewThresholdClassifier создаёт классификатор
func NewThresholdClassifier(ts *store.TileStore) *ThresholdClassifier {
	return &ThresholdClassifier{store: ts}
}

// Classify строит растр классификации одной ячейки и сохраняет его
// рядом с метаданными ячейки.
func (tc *ThresholdClassifier) Classify(ctx context.Context, groupID, cellID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	meta, err := tc.store.ReadCellMeta(groupID, cellID)
	if err != nil {
		return err
	}

	grid, err := tc.store.ReadElevation(groupID)
	if err != nil {
		return err
	}

	offX, offY, cellPx, err := cellWindow(tc.store, groupID, meta, grid)
	if err != nil {
		return err
	}

	span := grid.MaxHeight - grid.MinHeight
	if span <= 0 {
		span = 1
	}

	img := image.NewRGBA(image.Rect(0, 0, cellPx, cellPx))
	for y := 0; y < cellPx; y++ {
		for x := 0; x < cellPx; x++ {
			elev := grid.Values[(offY+y)*grid.Width+(offX+x)]
			norm := (elev - grid.MinHeight) / span
			switch {
			case norm < WaterMax:
				img.SetRGBA(x, y, pipeline.ColorWater)
			case norm < SandMax:
				img.SetRGBA(x, y, pipeline.ColorSand)
			case norm < GrassMax:
				img.SetRGBA(x, y, pipeline.ColorGrass)
			case norm < ForestMax:
				img.SetRGBA(x, y, pipeline.ColorForest)
			default:
				img.SetRGBA(x, y, pipeline.ColorRock)
			}
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("ошибка кодирования классификации %s/%s: %w", groupID, cellID, err)
	}
	return tc.store.WriteCellRaster(groupID, cellID, pipeline.CellLandcoverFile, buf.Bytes())
}

// cellWindow вычисляет окно ячейки внутри сетки высот группы.
// Начало сетки — северо-западная ячейка группы, поэтому нужны
// минимальные адреса тайлов по всем ячейкам.
func cellWindow(ts *store.TileStore, groupID string, meta store.CellMeta, grid *store.ElevationGrid) (offX, offY, cellPx int, err error) {
	cellIDs, err := ts.ListCells(groupID)
	if err != nil {
		return 0, 0, 0, err
	}

	minX, minY := meta.Tile[0], meta.Tile[1]
	maxX := meta.Tile[0]
	for _, id := range cellIDs {
		m, err := ts.ReadCellMeta(groupID, id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return 0, 0, 0, err
		}
		if m.Tile[0] < minX {
			minX = m.Tile[0]
		}
		if m.Tile[1] < minY {
			minY = m.Tile[1]
		}
		if m.Tile[0] > maxX {
			maxX = m.Tile[0]
		}
	}

	cols := maxX - minX + 1
	cellPx = grid.Width / cols
	if cellPx <= 0 {
		return 0, 0, 0, fmt.Errorf("сетка высот группы %s не согласуется с ячейками", groupID)
	}

	return (meta.Tile[0] - minX) * cellPx, (meta.Tile[1] - minY) * cellPx, cellPx, nil
}
