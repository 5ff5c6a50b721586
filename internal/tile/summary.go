package tile

import (
	"github.com/annel0/terragen/internal/geo"
)

// CellSummary описание одной ячейки группы в ответе листинга.
// Для ячейки без файла метаданных заполняется только ID.
type CellSummary struct {
	ID             string    `json:"id"`
	Tile           *[3]int   `json:"tile,omitempty"`
	BBox           *geo.BBox `json:"bbox,omitempty"`
	MetersPerPixel *float64  `json:"getMetersPerPixel,omitempty"`
	MinHeight      *float64  `json:"minHeight,omitempty"`
	MaxHeight      *float64  `json:"maxHeight,omitempty"`
}

// GroupSummary описание группы тайлов в ответе листинга.
// Ссылки на артефакты null, пока соответствующий файл не произведён;
// bbox, центр и экстремумы высот пересчитываются при каждом чтении.
type GroupSummary struct {
	ID             string        `json:"id"`
	Landcover      *string       `json:"landcover"`
	Heightmap      *string       `json:"heightmap"`
	Satellite      *string       `json:"satellite"`
	BBox           geo.BBox      `json:"bbox"`
	Center         [2]float64    `json:"center"`
	MetersPerPixel float64       `json:"metersPerPixel"`
	MinHeight      float64       `json:"minHeight"`
	MaxHeight      float64       `json:"maxHeight"`
	Tiles          []CellSummary `json:"tiles"`
}
