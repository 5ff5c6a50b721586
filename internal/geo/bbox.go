package geo

import "math"

// BBox географический bbox в порядке [minLon, minLat, maxLon, maxLat].
// Сериализуется в JSON как массив — формат, который ожидает клиент карты.
type BBox [4]float64

// EmptyBBox возвращает вырожденный bbox-затравку для свёртки:
// минимумы +Inf, максимумы -Inf. Extend от него даёт bbox первого аргумента.
func EmptyBBox() BBox {
	return BBox{math.Inf(1), math.Inf(1), math.Inf(-1), math.Inf(-1)}
}

// IsEmpty сообщает, что bbox не покрывает ни одной точки
func (b BBox) IsEmpty() bool {
	return b[0] > b[2] || b[1] > b[3]
}

// Extend возвращает покоординатное min/max объединение двух bbox
func (b BBox) Extend(other BBox) BBox {
	return BBox{
		math.Min(b[0], other[0]),
		math.Min(b[1], other[1]),
		math.Max(b[2], other[2]),
		math.Max(b[3], other[3]),
	}
}

// Center возвращает середину bbox как [lon, lat]
func (b BBox) Center() [2]float64 {
	return [2]float64{(b[0] + b[2]) / 2, (b[1] + b[3]) / 2}
}
