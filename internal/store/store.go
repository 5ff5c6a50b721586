package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
)

// ArtifactKind вид group-level артефакта
type ArtifactKind string

const (
	KindLandcover ArtifactKind = "landcover"
	KindHeightmap ArtifactKind = "heightmap"
	KindSatellite ArtifactKind = "satellite"
)

var (
	// ErrNotFound возвращается при чтении несуществующей группы или ячейки
	ErrNotFound = errors.New("группа или ячейка не найдена")
	// ErrUnknownKind возвращается для неизвестного вида артефакта
	ErrUnknownKind = errors.New("неизвестный вид артефакта")
	// ErrNoOverride возвращается при попытке записать override для вида,
	// который его не поддерживает
	ErrNoOverride = errors.New("вид артефакта не поддерживает override")
)

// Имена файлов артефактов внутри директории группы.
// Совпадают с раскладкой, которую читает клиент карты.
var artifactFiles = map[ArtifactKind]string{
	KindLandcover: "landcover_colors.png",
	KindHeightmap: "heightmap_final.png",
	KindSatellite: "satellite.png",
}

// Виды, для которых существует пользовательский override-файл.
var overrideFiles = map[ArtifactKind]string{
	KindLandcover: "landcover_colors_edited.png",
}

// CellMeta метаданные одной ячейки группы (файл tile.json)
type CellMeta struct {
	Tile      [3]int  `json:"tile"` // [x, y, zoom]
	MinHeight float64 `json:"minHeight"`
	MaxHeight float64 `json:"maxHeight"`
}

// StatusRecord лёгкая запись о последней успешно завершённой стадии пайплайна
type StatusRecord struct {
	Stage     string `json:"stage"`
	UpdatedAt int64  `json:"updated_at"`
}

// TileStore файловое хранилище артефактов групп тайлов.
// Наличие артефакта определяется исключительно существованием файла;
// все записи атомарны (временный файл + rename), поэтому читатель
// никогда не видит частично записанный артефакт.
type TileStore struct {
	basePath string
}

// NewTileStore создаёт хранилище с корнем в указанной директории
func NewTileStore(basePath string) (*TileStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию %s: %w", basePath, err)
	}
	return &TileStore{basePath: basePath}, nil
}

// BasePath возвращает корень дерева артефактов
func (ts *TileStore) BasePath() string { return ts.basePath }

// CreateGroup выделяет новый идентификатор группы и создаёт её директорию.
// Группа видна в ListGroups сразу после возврата, ещё до появления артефактов.
func (ts *TileStore) CreateGroup() (string, error) {
	id := uuid.NewString()
	if err := os.MkdirAll(ts.groupDir(id), 0755); err != nil {
		return "", fmt.Errorf("не удалось создать директорию группы %s: %w", id, err)
	}
	return id, nil
}

// GroupExists проверяет существование директории группы
func (ts *TileStore) GroupExists(groupID string) bool {
	info, err := os.Stat(ts.groupDir(groupID))
	return err == nil && info.IsDir()
}

// ListGroups перечисляет все известные группы. Порядок не специфицирован.
func (ts *TileStore) ListGroups() ([]string, error) {
	entries, err := os.ReadDir(ts.basePath)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения директории %s: %w", ts.basePath, err)
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}

// ListCells перечисляет идентификаторы ячеек группы в отсортированном порядке
func (ts *TileStore) ListCells(groupID string) ([]string, error) {
	entries, err := os.ReadDir(ts.groupDir(groupID))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: группа %s", ErrNotFound, groupID)
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения группы %s: %w", groupID, err)
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// ReadCellMeta читает метаданные ячейки (tile.json)
func (ts *TileStore) ReadCellMeta(groupID, cellID string) (CellMeta, error) {
	data, err := os.ReadFile(filepath.Join(ts.cellDir(groupID, cellID), "tile.json"))
	if os.IsNotExist(err) {
		return CellMeta{}, fmt.Errorf("%w: ячейка %s/%s", ErrNotFound, groupID, cellID)
	}
	if err != nil {
		return CellMeta{}, fmt.Errorf("ошибка чтения метаданных %s/%s: %w", groupID, cellID, err)
	}

	var meta CellMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return CellMeta{}, fmt.Errorf("ошибка десериализации метаданных %s/%s: %w", groupID, cellID, err)
	}
	return meta, nil
}

// WriteCellMeta атомарно сохраняет метаданные ячейки
func (ts *TileStore) WriteCellMeta(groupID, cellID string, meta CellMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("ошибка сериализации метаданных %s/%s: %w", groupID, cellID, err)
	}
	return ts.writeAtomic(filepath.Join(ts.cellDir(groupID, cellID), "tile.json"), data)
}

// ArtifactPath возвращает путь действующего артефакта группы.
// Для landcover пользовательский override имеет приоритет над сгенерированным
// файлом; сгенерированный файл при этом никогда не удаляется.
// Второй результат false — артефакт ещё не произведён.
func (ts *TileStore) ArtifactPath(groupID string, kind ArtifactKind) (string, bool) {
	if name, ok := overrideFiles[kind]; ok {
		p := filepath.Join(ts.groupDir(groupID), name)
		if fileExists(p) {
			return p, true
		}
	}

	name, ok := artifactFiles[kind]
	if !ok {
		return "", false
	}
	p := filepath.Join(ts.groupDir(groupID), name)
	if fileExists(p) {
		return p, true
	}
	return "", false
}

// GeneratedPath возвращает путь сгенерированного артефакта независимо от его наличия
func (ts *TileStore) GeneratedPath(groupID string, kind ArtifactKind) string {
	return filepath.Join(ts.groupDir(groupID), artifactFiles[kind])
}

// HasOverride сообщает, существует ли пользовательский override артефакта
func (ts *TileStore) HasOverride(groupID string, kind ArtifactKind) bool {
	name, ok := overrideFiles[kind]
	if !ok {
		return false
	}
	return fileExists(filepath.Join(ts.groupDir(groupID), name))
}

// Write атомарно сохраняет сгенерированный артефакт группы
func (ts *TileStore) Write(groupID string, kind ArtifactKind, data []byte) error {
	name, ok := artifactFiles[kind]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return ts.writeAtomic(filepath.Join(ts.groupDir(groupID), name), data)
}

// WriteOverride атомарно сохраняет пользовательский override артефакта,
// перезаписывая предыдущий. Сейчас override поддерживает только landcover.
func (ts *TileStore) WriteOverride(groupID string, kind ArtifactKind, data []byte) error {
	name, ok := overrideFiles[kind]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoOverride, kind)
	}
	return ts.writeAtomic(filepath.Join(ts.groupDir(groupID), name), data)
}

// WriteCellRaster атомарно сохраняет растровый файл ячейки (например,
// результат классификации или исходный снимок)
func (ts *TileStore) WriteCellRaster(groupID, cellID, filename string, data []byte) error {
	return ts.writeAtomic(filepath.Join(ts.cellDir(groupID, cellID), filename), data)
}

// CellRasterPath возвращает путь растрового файла ячейки, если он существует
func (ts *TileStore) CellRasterPath(groupID, cellID, filename string) (string, bool) {
	p := filepath.Join(ts.cellDir(groupID, cellID), filename)
	if fileExists(p) {
		return p, true
	}
	return "", false
}

// ReadStatus читает запись о последней успешной стадии пайплайна
func (ts *TileStore) ReadStatus(groupID string) (StatusRecord, error) {
	data, err := os.ReadFile(filepath.Join(ts.groupDir(groupID), "status.json"))
	if os.IsNotExist(err) {
		return StatusRecord{}, fmt.Errorf("%w: статус группы %s", ErrNotFound, groupID)
	}
	if err != nil {
		return StatusRecord{}, fmt.Errorf("ошибка чтения статуса %s: %w", groupID, err)
	}

	var rec StatusRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return StatusRecord{}, fmt.Errorf("ошибка десериализации статуса %s: %w", groupID, err)
	}
	return rec, nil
}

// WriteStatus атомарно сохраняет запись о стадии пайплайна
func (ts *TileStore) WriteStatus(groupID string, rec StatusRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("ошибка сериализации статуса %s: %w", groupID, err)
	}
	return ts.writeAtomic(filepath.Join(ts.groupDir(groupID), "status.json"), data)
}

// PublicPath переводит абсолютный путь артефакта в путь относительно корня
// хранилища (в том виде, в котором артефакт отдаётся по HTTP)
func (ts *TileStore) PublicPath(fullPath string) string {
	rel, err := filepath.Rel(ts.basePath, fullPath)
	if err != nil {
		return fullPath
	}
	return "/" + filepath.ToSlash(rel)
}

func (ts *TileStore) groupDir(groupID string) string {
	return filepath.Join(ts.basePath, groupID)
}

func (ts *TileStore) cellDir(groupID, cellID string) string {
	return filepath.Join(ts.basePath, groupID, cellID)
}

// writeAtomic пишет данные во временный файл и затем переименовывает его
// в целевое имя. Конкурентный читатель видит либо старую, либо новую
// версию файла, но никогда — частичную запись.
func (ts *TileStore) writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("не удалось создать директорию %s: %w", dir, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("ошибка записи файла %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("ошибка переименования %s: %w", tmp, err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
