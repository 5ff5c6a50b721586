package pipeline

import (
	"context"
	"errors"
)

// Ошибки коллабораторов пайплайна. Стадии заворачивают причину через %w,
// поэтому вызывающий может проверять и сентинел, и исходную ошибку.
var (
	ErrAcquisitionFailed    = errors.New("стадия получения исходных данных завершилась ошибкой")
	ErrClassificationFailed = errors.New("стадия классификации завершилась ошибкой")
	ErrSynthesisFailed      = errors.New("стадия синтеза хайтмапы завершилась ошибкой")
)

// Stage стадия пайплайна создания группы. Записывается в status.json
// после успешного завершения; упавшая стадия оставляет запись на
// последней успешной — отдельного состояния отказа нет.
type Stage string

const (
	StageCreated        Stage = "created"
	StageAcquired       Stage = "acquired"
	StageClassified     Stage = "classified"
	StageCombined       Stage = "combined"
	StageHeightmapReady Stage = "heightmap_ready"
)

// Acquirer получает исходные данные области: создаёт ячейки группы,
// записывает их метаданные, сетку высот и превью снимка.
type Acquirer interface {
	Acquire(ctx context.Context, groupID string, ring [][2]float64, zoom int) error
}

// Classifier производит попиксельную классификацию landcover одной ячейки
// и сохраняет её растр в хранилище.
type Classifier interface {
	Classify(ctx context.Context, groupID, cellID string) error
}

// Synthesizer строит итоговую хайтмапу группы из сетки высот и
// действующего landcover-растра (override, если он есть).
type Synthesizer interface {
	Synthesize(ctx context.Context, groupID, landcoverPath string) error
}
