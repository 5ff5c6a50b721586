package synth

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"

	"github.com/aquilax/go-perlin"

	"github.com/annel0/terragen/internal/geo"
	"github.com/annel0/terragen/internal/logging"
	"github.com/annel0/terragen/internal/store"
)

// Константы генерации рельефа
const (
	// NoiseScale масштаб основного шума: меньше — более пологий рельеф
	NoiseScale = 0.004
	// DetailScale масштаб мелкого шума для фактуры превью
	DetailScale = 0.02
	// MaxElevation амплитуда синтетических высот в метрах
	MaxElevation = 800.0
)

// PerlinAcquirer синтетический коллаборатор получения исходных данных:
// вместо внешнего провайдера снимков строит сетку высот шумом Перлина,
// создаёт ячейки группы с экстремумами высот и рендерит превью "снимка".
type PerlinAcquirer struct {
	store  *store.TileStore
	noise  *perlin.Perlin
	detail *perlin.Perlin
	cellPx int
}

// NewPerlinAcquirer создаёт коллаборатор с указанным сидом
func NewPerlinAcquirer(ts *store.TileStore, seed int64, cellPx int) *PerlinAcquirer {
	alpha := 2.0  // Сглаживание шума
	beta := 2.0   // Частота шума
	n := int32(3) // Количество октав
	return &PerlinAcquirer{
		store:  ts,
		noise:  perlin.NewPerlin(alpha, beta, n, seed),
		detail: perlin.NewPerlin(alpha, beta, n, seed+42),
		cellPx: cellPx,
	}
}

// Acquire создаёт ячейки, покрывающие нарисованную область, и записывает
// их метаданные, общую сетку высот группы и превью снимка.
func (pa *PerlinAcquirer) Acquire(ctx context.Context, groupID string, ring [][2]float64, zoom int) error {
	addrs, err := geo.CoverRing(ring, zoom)
	if err != nil {
		return err
	}

	minX, minY := addrs[0].X, addrs[0].Y
	maxX, maxY := addrs[0].X, addrs[0].Y
	for _, a := range addrs {
		if a.X < minX {
			minX = a.X
		}
		if a.Y < minY {
			minY = a.Y
		}
		if a.X > maxX {
			maxX = a.X
		}
		if a.Y > maxY {
			maxY = a.Y
		}
	}

	cols := maxX - minX + 1
	rows := maxY - minY + 1
	width := cols * pa.cellPx
	height := rows * pa.cellPx

	grid := &store.ElevationGrid{
		Width:     width,
		Height:    height,
		Values:    make([]float64, width*height),
		MinHeight: math.Inf(1),
		MaxHeight: math.Inf(-1),
	}

	// Высоты считаются в глобальных пиксельных координатах пирамиды,
	// поэтому соседние группы на одном зуме бесшовно стыкуются
	originX := minX * pa.cellPx
	originY := minY * pa.cellPx
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			nx := float64(originX+x) * NoiseScale
			ny := float64(originY+y) * NoiseScale
			elev := (pa.noise.Noise2D(nx, ny) + 1) / 2 * MaxElevation
			grid.Values[y*width+x] = elev
			grid.MinHeight = math.Min(grid.MinHeight, elev)
			grid.MaxHeight = math.Max(grid.MaxHeight, elev)
		}
	}

	// Ячейки с экстремумами высот по своему окну сетки
	for _, a := range addrs {
		if err := ctx.Err(); err != nil {
			return err
		}

		cellID := fmt.Sprintf("tile_%d_%d", a.X, a.Y)
		offX := (a.X - minX) * pa.cellPx
		offY := (a.Y - minY) * pa.cellPx

		cellMin, cellMax := math.Inf(1), math.Inf(-1)
		for y := offY; y < offY+pa.cellPx; y++ {
			for x := offX; x < offX+pa.cellPx; x++ {
				v := grid.Values[y*width+x]
				cellMin = math.Min(cellMin, v)
				cellMax = math.Max(cellMax, v)
			}
		}

		meta := store.CellMeta{
			Tile:      [3]int{a.X, a.Y, a.Zoom},
			MinHeight: cellMin,
			MaxHeight: cellMax,
		}
		if err := pa.store.WriteCellMeta(groupID, cellID, meta); err != nil {
			return err
		}
	}

	if err := pa.store.WriteElevation(groupID, grid); err != nil {
		return err
	}

	if err := pa.writeSatellite(groupID, grid); err != nil {
		return err
	}

	logging.Debug("Получены исходные данные группы %s: %d ячеек, сетка %dx%d", groupID, len(addrs), width, height)
	return nil
}

// writeSatellite рендерит превью "снимка": тон по высоте, фактура мелким шумом
func (pa *PerlinAcquirer) writeSatellite(groupID string, grid *store.ElevationGrid) error {
	img := image.NewRGBA(image.Rect(0, 0, grid.Width, grid.Height))
	span := grid.MaxHeight - grid.MinHeight
	if span <= 0 {
		span = 1
	}

	for y := 0; y < grid.Height; y++ {
		for x := 0; x < grid.Width; x++ {
			norm := (grid.Values[y*grid.Width+x] - grid.MinHeight) / span
			jitter := pa.detail.Noise2D(float64(x)*DetailScale, float64(y)*DetailScale) * 0.08
			img.SetRGBA(x, y, shadeForElevation(norm+jitter))
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("ошибка кодирования превью группы %s: %w", groupID, err)
	}
	return pa.store.Write(groupID, store.KindSatellite, buf.Bytes())
}

// shadeForElevation подбирает тон пикселя превью по нормированной высоте
func shadeForElevation(norm float64) color.RGBA {
	switch {
	case norm < WaterMax:
		return color.RGBA{R: 0x2E, G: 0x64, B: 0x9E, A: 0xFF}
	case norm < SandMax:
		return color.RGBA{R: 0xD8, G: 0xC9, B: 0x8A, A: 0xFF}
	case norm < GrassMax:
		return color.RGBA{R: 0x6F, G: 0x8F, B: 0x4F, A: 0xFF}
	case norm < ForestMax:
		return color.RGBA{R: 0x45, G: 0x67, B: 0x38, A: 0xFF}
	default:
		return color.RGBA{R: 0x9A, G: 0x93, B: 0x88, A: 0xFF}
	}
}
