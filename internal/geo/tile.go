package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// EarthRadius радиус Земли в метрах (сфера Web-Mercator)
const EarthRadius = 6378137.0

// TilePixels размер тайла-источника в пикселях
const TilePixels = 256

// ErrInvalidTileAddress возвращается для адреса вне пирамиды тайлов
var ErrInvalidTileAddress = errors.New("невалидный адрес тайла")

// TileAddress адрес тайла (x, y, zoom) в стандартной пирамиде
type TileAddress struct {
	X    int `json:"x"`
	Y    int `json:"y"`
	Zoom int `json:"zoom"`
}

// Valid проверяет, что адрес лежит внутри пирамиды: 0 <= x,y < 2^zoom
func (t TileAddress) Valid() bool {
	if t.Zoom < 0 || t.Zoom > 30 {
		return false
	}
	n := 1 << uint(t.Zoom)
	return t.X >= 0 && t.X < n && t.Y >= 0 && t.Y < n
}

// TileToBBox возвращает географический bbox тайла (обратная проекция Web-Mercator).
// Для невалидного адреса возвращает ErrInvalidTileAddress.
func TileToBBox(x, y, zoom int) (BBox, error) {
	addr := TileAddress{X: x, Y: y, Zoom: zoom}
	if !addr.Valid() {
		return BBox{}, fmt.Errorf("%w: (%d,%d,%d)", ErrInvalidTileAddress, x, y, zoom)
	}

	bound := maptile.New(uint32(x), uint32(y), maptile.Zoom(zoom)).Bound()
	return BBox{bound.Min[0], bound.Min[1], bound.Max[0], bound.Max[1]}, nil
}

// GroundResolution возвращает разрешение земли (метров на пиксель)
// для указанного зума и широты: разрешение на экваторе, умноженное
// на косинус широты для коррекции искажения проекции.
func GroundResolution(zoom int, latitude float64) float64 {
	equator := 2 * math.Pi * EarthRadius / TilePixels // метров на пиксель при zoom=0
	return math.Cos(latitude*math.Pi/180) * equator / float64(uint64(1)<<uint(zoom))
}

// CoverRing возвращает адреса тайлов, покрывающие bbox нарисованного
// пользователем кольца (полигона) на указанном зуме. Порядок — строки
// сверху вниз, в строке слева направо.
func CoverRing(ring [][2]float64, zoom int) ([]TileAddress, error) {
	if len(ring) == 0 {
		return nil, fmt.Errorf("%w: пустой полигон", ErrInvalidTileAddress)
	}
	if zoom < 0 || zoom > 30 {
		return nil, fmt.Errorf("%w: zoom=%d", ErrInvalidTileAddress, zoom)
	}

	box := EmptyBBox()
	for _, pt := range ring {
		box = box.Extend(BBox{pt[0], pt[1], pt[0], pt[1]})
	}

	minTile := maptile.At(orb.Point{box[0], box[3]}, maptile.Zoom(zoom)) // северо-западный угол
	maxTile := maptile.At(orb.Point{box[2], box[1]}, maptile.Zoom(zoom)) // юго-восточный угол

	var addrs []TileAddress
	for y := minTile.Y; y <= maxTile.Y; y++ {
		for x := minTile.X; x <= maxTile.X; x++ {
			addrs = append(addrs, TileAddress{X: int(x), Y: int(y), Zoom: zoom})
		}
	}
	return addrs, nil
}
