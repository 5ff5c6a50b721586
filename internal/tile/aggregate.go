package tile

import (
	"errors"
	"math"

	"github.com/annel0/terragen/internal/geo"
	"github.com/annel0/terragen/internal/logging"
	"github.com/annel0/terragen/internal/store"
)

// BuildGroupSummary собирает описание группы из метаданных её ячеек.
// bbox группы — покоординатная min/max свёртка bbox всех ячеек от пустой
// затравки; для группы без ячеек результат вырожденный (нулевой bbox,
// нулевые экстремумы), а не ошибка. Разрешение группы берётся из первой
// ячейки в отсортированном порядке — известное приближение, а не среднее.
func BuildGroupSummary(ts *store.TileStore, groupID, publicPrefix string) (GroupSummary, error) {
	cellIDs, err := ts.ListCells(groupID)
	if err != nil {
		return GroupSummary{}, err
	}

	summary := GroupSummary{
		ID:    groupID,
		Tiles: make([]CellSummary, 0, len(cellIDs)),
	}

	groupBBox := geo.EmptyBBox()
	minHeight := math.Inf(1)
	maxHeight := math.Inf(-1)
	gotMeters := false

	for _, cellID := range cellIDs {
		meta, err := ts.ReadCellMeta(groupID, cellID)
		if errors.Is(err, store.ErrNotFound) {
			// Ячейка ещё без метаданных — отдаём только идентификатор
			summary.Tiles = append(summary.Tiles, CellSummary{ID: cellID})
			continue
		}
		if err != nil {
			return GroupSummary{}, err
		}

		bbox, err := geo.TileToBBox(meta.Tile[0], meta.Tile[1], meta.Tile[2])
		if err != nil {
			// Битые метаданные не должны ломать листинг целиком
			logging.Warn("Ячейка %s/%s с невалидным адресом тайла: %v", groupID, cellID, err)
			summary.Tiles = append(summary.Tiles, CellSummary{ID: cellID})
			continue
		}

		meters := geo.GroundResolution(meta.Tile[2], bbox[1])
		if !gotMeters {
			summary.MetersPerPixel = meters
			gotMeters = true
		}

		groupBBox = groupBBox.Extend(bbox)
		minHeight = math.Min(minHeight, meta.MinHeight)
		maxHeight = math.Max(maxHeight, meta.MaxHeight)

		cell := CellSummary{ID: cellID}
		tileAddr := meta.Tile
		cellBBox := bbox
		cellMin, cellMax := meta.MinHeight, meta.MaxHeight
		cell.Tile = &tileAddr
		cell.BBox = &cellBBox
		cell.MetersPerPixel = &meters
		cell.MinHeight = &cellMin
		cell.MaxHeight = &cellMax
		summary.Tiles = append(summary.Tiles, cell)
	}

	if groupBBox.IsEmpty() {
		// Группа без единой ячейки с метаданными: ±Inf не сериализуется
		// в JSON, поэтому вырожденный результат приводится к нулям
		groupBBox = geo.BBox{}
		minHeight, maxHeight = 0, 0
	}

	summary.BBox = groupBBox
	summary.Center = groupBBox.Center()
	summary.MinHeight = minHeight
	summary.MaxHeight = maxHeight

	if p, ok := ts.ArtifactPath(groupID, store.KindLandcover); ok {
		url := publicPrefix + ts.PublicPath(p)
		summary.Landcover = &url
	}
	if p, ok := ts.ArtifactPath(groupID, store.KindHeightmap); ok {
		url := publicPrefix + ts.PublicPath(p)
		summary.Heightmap = &url
	}
	if p, ok := ts.ArtifactPath(groupID, store.KindSatellite); ok {
		url := publicPrefix + ts.PublicPath(p)
		summary.Satellite = &url
	}

	return summary, nil
}

// BuildAllSummaries собирает описания всех групп хранилища
func BuildAllSummaries(ts *store.TileStore, publicPrefix string) ([]GroupSummary, error) {
	ids, err := ts.ListGroups()
	if err != nil {
		return nil, err
	}

	summaries := make([]GroupSummary, 0, len(ids))
	for _, id := range ids {
		s, err := BuildGroupSummary(ts, id, publicPrefix)
		if err != nil {
			// Ошибка одной группы не должна прятать остальные
			logging.Warn("Не удалось собрать описание группы %s: %v", id, err)
			continue
		}
		summaries = append(summaries, s)
	}
	return summaries, nil
}
