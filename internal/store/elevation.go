package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
)

// ElevationGrid сырая сетка высот группы — вход синтеза хайтмапы.
// Хранится сжатой (gzip), поскольку сетка высот хорошо сжимается
// и читается только стадией синтеза.
type ElevationGrid struct {
	Width  int       `json:"width"`
	Height int       `json:"height"`
	// Values высоты в метрах, построчно сверху вниз
	Values []float64 `json:"values"`
	// MinHeight/MaxHeight экстремумы по всей сетке
	MinHeight float64 `json:"minHeight"`
	MaxHeight float64 `json:"maxHeight"`
}

const elevationFile = "elevation.bin.gz"

// WriteElevation атомарно сохраняет сетку высот группы в сжатом виде
func (ts *TileStore) WriteElevation(groupID string, grid *ElevationGrid) error {
	raw, err := json.Marshal(grid)
	if err != nil {
		return fmt.Errorf("ошибка сериализации высот %s: %w", groupID, err)
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return fmt.Errorf("ошибка сжатия высот %s: %w", groupID, err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("ошибка сжатия высот %s: %w", groupID, err)
	}

	return ts.writeAtomic(filepath.Join(ts.groupDir(groupID), elevationFile), buf.Bytes())
}

// ReadElevation читает сетку высот группы
func (ts *TileStore) ReadElevation(groupID string) (*ElevationGrid, error) {
	data, err := os.ReadFile(filepath.Join(ts.groupDir(groupID), elevationFile))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: высоты группы %s", ErrNotFound, groupID)
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения высот %s: %w", groupID, err)
	}

	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("ошибка распаковки высот %s: %w", groupID, err)
	}
	defer zr.Close()

	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("ошибка распаковки высот %s: %w", groupID, err)
	}

	var grid ElevationGrid
	if err := json.Unmarshal(raw, &grid); err != nil {
		return nil, fmt.Errorf("ошибка десериализации высот %s: %w", groupID, err)
	}
	return &grid, nil
}
