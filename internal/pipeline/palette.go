package pipeline

import "image/color"

// Палитра цветов landcover-классификации. Цвета фиксированы: по ним
// редактор раскрашивает правки, а синтез хайтмапы узнаёт воду.
var (
	ColorWater  = color.RGBA{R: 0x41, G: 0x9B, B: 0xDF, A: 0xFF}
	ColorSand   = color.RGBA{R: 0xE3, G: 0xC5, B: 0x66, A: 0xFF}
	ColorGrass  = color.RGBA{R: 0x88, G: 0xB0, B: 0x53, A: 0xFF}
	ColorForest = color.RGBA{R: 0x39, G: 0x7D, B: 0x49, A: 0xFF}
	ColorRock   = color.RGBA{R: 0x8A, G: 0x87, B: 0x7C, A: 0xFF}
)

// DefaultLandcover цвет ячейки, для которой классификация не проводилась
var DefaultLandcover = ColorGrass
