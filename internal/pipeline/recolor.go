package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"math"
	"os"

	"github.com/annel0/terragen/internal/logging"
	"github.com/annel0/terragen/internal/store"
)

// CellLandcoverFile имя растра классификации внутри директории ячейки
const CellLandcoverFile = "landcover.png"

// CombineLandcover склеивает растры классификации всех ячеек группы в один
// сгенерированный landcover-растр, раскладывая ячейки по их адресам в
// сетке тайлов. Ячейка без растра классификации (классификация пропущена
// или не успела) заливается цветом по умолчанию. Пишется только
// сгенерированный файл; пользовательский override никогда не трогается.
func CombineLandcover(ts *store.TileStore, groupID string, cellPx int) error {
	cellIDs, err := ts.ListCells(groupID)
	if err != nil {
		return err
	}

	type cellInfo struct {
		id   string
		meta store.CellMeta
	}

	cells := make([]cellInfo, 0, len(cellIDs))
	minX, minY := math.MaxInt, math.MaxInt
	maxX, maxY := math.MinInt, math.MinInt
	for _, cellID := range cellIDs {
		meta, err := ts.ReadCellMeta(groupID, cellID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		cells = append(cells, cellInfo{id: cellID, meta: meta})
		if meta.Tile[0] < minX {
			minX = meta.Tile[0]
		}
		if meta.Tile[1] < minY {
			minY = meta.Tile[1]
		}
		if meta.Tile[0] > maxX {
			maxX = meta.Tile[0]
		}
		if meta.Tile[1] > maxY {
			maxY = meta.Tile[1]
		}
	}

	if len(cells) == 0 {
		return fmt.Errorf("группа %s не содержит ячеек с метаданными", groupID)
	}

	cols := maxX - minX + 1
	rows := maxY - minY + 1
	canvas := image.NewRGBA(image.Rect(0, 0, cols*cellPx, rows*cellPx))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(DefaultLandcover), image.Point{}, draw.Src)

	for _, cell := range cells {
		path, ok := ts.CellRasterPath(groupID, cell.id, CellLandcoverFile)
		if !ok {
			continue // классификация не проводилась, остаётся заливка
		}

		img, err := readPNG(path)
		if err != nil {
			// Битый растр одной ячейки не должен ронять всю склейку
			logging.Warn("Растр классификации %s/%s не читается: %v", groupID, cell.id, err)
			continue
		}

		offset := image.Pt((cell.meta.Tile[0]-minX)*cellPx, (cell.meta.Tile[1]-minY)*cellPx)
		draw.Draw(canvas, image.Rect(offset.X, offset.Y, offset.X+cellPx, offset.Y+cellPx), img, img.Bounds().Min, draw.Src)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return fmt.Errorf("ошибка кодирования landcover группы %s: %w", groupID, err)
	}
	return ts.Write(groupID, store.KindLandcover, buf.Bytes())
}

func readPNG(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return png.Decode(f)
}
