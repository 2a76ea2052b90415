package events

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"task-notify/internal/config"
	"task-notify/internal/database"
	"task-notify/internal/models"
	"task-notify/pkg/logger"

	"github.com/google/uuid"
)

// NewBus builds the bus selected by cfg.Bus. redis may be nil unless the redis bus is selected.
func NewBus(cfg config.EventsConfig, redis *database.RedisClient, log *logger.Logger) (Bus, error) {
	switch cfg.Bus {
	case config.BusMemory:
		return NewMemoryBus(), nil
	case config.BusRedis:
		if redis == nil {
			return nil, fmt.Errorf("events bus %q requires a redis connection", cfg.Bus)
		}
		return NewRedisBus(redis.GetClient(), cfg.RedisChannel, log), nil
	case config.BusKafka:
		return NewKafkaBus(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID, log)
	default:
		return nil, fmt.Errorf("unsupported events bus %q", cfg.Bus)
	}
}

// BusNotifier publishes every task mutation on the bus. Publish failures are logged
// and swallowed: the REST request that caused the mutation has already succeeded.
type BusNotifier struct {
	bus    Bus
	logger *logger.Logger
	now    func() time.Time
}

func NewBusNotifier(bus Bus, log *logger.Logger) *BusNotifier {
	return &BusNotifier{bus: bus, logger: log, now: time.Now}
}

func (n *BusNotifier) OnTaskMutated(ctx context.Context, userID uint, task models.Task, action models.TaskAction) {
	ev := Event{
		ID:         uuid.NewString(),
		UserID:     userID,
		Action:     action,
		Task:       task,
		OccurredAt: n.now().UTC(),
	}
	if err := n.bus.Publish(ctx, ev); err != nil {
		n.logger.Error("Failed to publish task event", "eventID", ev.ID, "userID", userID, "action", action, "error", err)
	}
}

// Notifier is the realtime side that pushes an event to a user's connection.
type Notifier interface {
	Notify(ctx context.Context, userID string, task models.Task, action models.TaskAction)
}

// DispatchTo adapts a Notifier into a bus Handler.
func DispatchTo(n Notifier) Handler {
	return func(ctx context.Context, ev Event) {
		n.Notify(ctx, strconv.FormatUint(uint64(ev.UserID), 10), ev.Task, ev.Action)
	}
}
