package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"task-notify/internal/models"
)

var ErrBusClosed = errors.New("event bus closed")

// Event is one committed task mutation on its way to the realtime dispatcher.
type Event struct {
	ID         string            `json:"id"`
	UserID     uint              `json:"user_id"`
	Action     models.TaskAction `json:"action"`
	Task       models.Task       `json:"task"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// Key is the partition/ordering key of the event.
func (e Event) Key() string {
	return strconv.FormatUint(uint64(e.UserID), 10)
}

type Handler func(ctx context.Context, ev Event)

// Bus carries task events from the REST side to the realtime side.
type Bus interface {
	Publish(ctx context.Context, ev Event) error
	// Subscribe starts delivering events to h in the background until ctx is
	// cancelled or the bus is closed.
	Subscribe(ctx context.Context, h Handler) error
	Close() error
}

func encode(ev Event) ([]byte, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event: %w", err)
	}
	return payload, nil
}

func decode(payload []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return Event{}, fmt.Errorf("failed to decode event: %w", err)
	}
	if ev.UserID == 0 || ev.Action == "" {
		return Event{}, fmt.Errorf("failed to decode event: missing user or action")
	}
	return ev, nil
}
