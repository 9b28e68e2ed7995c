package eventbus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/annel0/microblock/internal/vec"
)

// Типы событий микроблоков
const (
	TypeAbsorptionChanged = "AbsorptionChanged"
	TypeShapeChanged      = "ShapeChanged"
)

// DefaultSource источник событий этого сервиса
const DefaultSource = "microblock"

// AbsorptionChanged поглощение света блока изменилось; освещение должно пересчитать позицию
type AbsorptionChanged struct {
	Pos vec.Vec3 `json:"pos"`
	Old int      `json:"old"`
	New int      `json:"new"`
}

// ShapeOp операция, изменившая форму
type ShapeOp string

const (
	OpPlaced      ShapeOp = "placed"
	OpChiseled    ShapeOp = "chiseled"
	OpReplaced    ShapeOp = "replaced"
	OpTransformed ShapeOp = "transformed"
	OpRemoved     ShapeOp = "removed"
	OpLoaded      ShapeOp = "loaded"
)

// ShapeChanged форма блока изменилась; рендер должен пересобрать меш
type ShapeChanged struct {
	Pos     vec.Vec3 `json:"pos"`
	Op      ShapeOp  `json:"op"`
	Cuboids int      `json:"cuboids"`
	Digest  string   `json:"digest,omitempty"`
}

// NewEnvelope упаковывает полезную нагрузку в JSON-конверт с новым UUID
func NewEnvelope(eventType string, priority int, payload interface{}) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("сериализация события %s: %w", eventType, err)
	}
	return &Envelope{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Source:    DefaultSource,
		EventType: eventType,
		Version:   1,
		Priority:  priority,
		Payload:   data,
	}, nil
}

// Decode разбирает полезную нагрузку конверта
func Decode(ev *Envelope, out interface{}) error {
	if err := json.Unmarshal(ev.Payload, out); err != nil {
		return fmt.Errorf("разбор события %s %s: %w", ev.EventType, ev.ID, err)
	}
	return nil
}
