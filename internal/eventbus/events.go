package eventbus

import (
	"time"

	"github.com/google/uuid"
)

// Типы событий жизненного цикла группы тайлов.
const (
	EventTileCreated    = "tile.created"
	EventTileAcquired   = "tile.acquired"
	EventTileClassified = "tile.classified"
	EventTileCombined   = "tile.combined"
	EventTileHeightmap  = "tile.heightmap"
	EventTileEdited     = "tile.edited"
	EventTileFailed     = "tile.failed"
)

// NewStageEvent собирает событие завершения стадии пайплайна.
func NewStageEvent(eventType, groupID, stage string) *Envelope {
	return &Envelope{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Source:    "pipeline",
		EventType: eventType,
		GroupID:   groupID,
		Stage:     stage,
	}
}

// NewFailureEvent собирает событие отказа стадии пайплайна.
func NewFailureEvent(groupID, stage string, err error) *Envelope {
	ev := NewStageEvent(EventTileFailed, groupID, stage)
	if err != nil {
		ev.Error = err.Error()
	}
	return ev
}
