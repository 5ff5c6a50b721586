package synth

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"

	"github.com/annel0/terragen/internal/logging"
	"github.com/annel0/terragen/internal/pipeline"
	"github.com/annel0/terragen/internal/store"
)

// LandcoverSynthesizer строит итоговую хайтмапу группы: нормирует сетку
// высот в 16-битный серый растр и выравнивает водные пиксели по
// действующему landcover. Правка landcover пользователем меняет вход —
// перерисованная в воду область станет плоской при пересинтезе.
type LandcoverSynthesizer struct {
	store *store.TileStore
}

// NewLandcoverSynthesizer создаёт синтезатор хайтмапы
func NewLandcoverSynthesizer(ts *store.TileStore) *LandcoverSynthesizer {
	return &LandcoverSynthesizer{store: ts}
}

// Synthesize пересчитывает хайтмапу группы с нуля.
// landcoverPath — путь действующего landcover-растра (override имеет
// приоритет у вызывающего); пустой путь или нечитаемый растр не считается
// ошибкой — хайтмапа строится без выравнивания воды.
func (ls *LandcoverSynthesizer) Synthesize(ctx context.Context, groupID, landcoverPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	grid, err := ls.store.ReadElevation(groupID)
	if err != nil {
		return err
	}

	var landcover image.Image
	if landcoverPath != "" {
		landcover, err = readPNG(landcoverPath)
		if err != nil {
			logging.Warn("Landcover группы %s не читается, хайтмапа без выравнивания воды: %v", groupID, err)
			landcover = nil
		}
	}

	span := grid.MaxHeight - grid.MinHeight
	if span <= 0 {
		span = 1
	}

	img := image.NewGray16(image.Rect(0, 0, grid.Width, grid.Height))
	lcBounds := image.Rectangle{}
	if landcover != nil {
		lcBounds = landcover.Bounds()
	}

	for y := 0; y < grid.Height; y++ {
		for x := 0; x < grid.Width; x++ {
			norm := (grid.Values[y*grid.Width+x] - grid.MinHeight) / span

			if landcover != nil && isWater(landcover, lcBounds, x, y, grid.Width, grid.Height) {
				// Вода плоская: высота дна не имеет смысла на хайтмапе
				norm = 0
			}

			img.SetGray16(x, y, grayLevel(norm))
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("ошибка кодирования хайтмапы группы %s: %w", groupID, err)
	}
	return ls.store.Write(groupID, store.KindHeightmap, buf.Bytes())
}

// isWater проверяет цвет landcover-пикселя, соответствующего пикселю
// сетки (nearest neighbour при несовпадении размеров растров)
func isWater(lc image.Image, b image.Rectangle, x, y, gridW, gridH int) bool {
	lx := b.Min.X + x*b.Dx()/gridW
	ly := b.Min.Y + y*b.Dy()/gridH
	r, g, bb, _ := lc.At(lx, ly).RGBA()
	w := pipeline.ColorWater
	return uint8(r>>8) == w.R && uint8(g>>8) == w.G && uint8(bb>>8) == w.B
}

func grayLevel(norm float64) color.Gray16 {
	if norm < 0 {
		norm = 0
	}
	if norm > 1 {
		norm = 1
	}
	return color.Gray16{Y: uint16(norm * 65535)}
}

func readPNG(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return png.Decode(f)
}
