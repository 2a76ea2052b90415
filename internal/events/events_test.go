package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"task-notify/internal/config"
	"task-notify/internal/models"
	"task-notify/pkg/logger"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type notified struct {
	userID string
	task   models.Task
	action models.TaskAction
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []notified
}

func (r *recordingNotifier) Notify(_ context.Context, userID string, task models.Task, action models.TaskAction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, notified{userID, task, action})
}

func (r *recordingNotifier) snapshot() []notified {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notified(nil), r.calls...)
}

type failingBus struct{ MemoryBus }

func (*failingBus) Publish(context.Context, Event) error { return errors.New("broker down") }

func TestMemoryBus_NotifierToDispatcher(t *testing.T) {
	bus := NewMemoryBus()
	rec := &recordingNotifier{}
	require.NoError(t, bus.Subscribe(context.Background(), DispatchTo(rec)))

	notifier := NewBusNotifier(bus, logger.Nop())
	task := models.Task{ID: 9, UserID: 42, Title: "Comprar pan", Status: models.TaskStatusPending}
	notifier.OnTaskMutated(context.Background(), 42, task, models.TaskActionCreated)

	calls := rec.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, notified{"42", task, models.TaskActionCreated}, calls[0])

	require.NoError(t, bus.Close())
	assert.ErrorIs(t, bus.Publish(context.Background(), Event{}), ErrBusClosed)
	assert.ErrorIs(t, bus.Subscribe(context.Background(), DispatchTo(rec)), ErrBusClosed)
}

func TestBusNotifier_SwallowsPublishErrors(t *testing.T) {
	notifier := NewBusNotifier(&failingBus{}, logger.Nop())
	assert.NotPanics(t, func() {
		notifier.OnTaskMutated(context.Background(), 1, models.Task{ID: 1}, models.TaskActionDeleted)
	})
}

func TestRedisBus_PublishSubscribe(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	bus := NewRedisBus(client, "tasks:events", logger.Nop())
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := &recordingNotifier{}
	require.NoError(t, bus.Subscribe(ctx, DispatchTo(rec)))

	// malformed payloads are skipped
	require.NoError(t, client.Publish(ctx, "tasks:events", "{not json").Err())

	task := models.Task{ID: 3, UserID: 7, Title: "Leer", Status: models.TaskStatusDone}
	require.NoError(t, bus.Publish(ctx, Event{ID: "e1", UserID: 7, Action: models.TaskActionStatusChanged, Task: task}))

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
	got := rec.snapshot()[0]
	assert.Equal(t, "7", got.userID)
	assert.Equal(t, models.TaskActionStatusChanged, got.action)
	assert.Equal(t, "Leer", got.task.Title)
}

func TestKafkaBus_PublishKeysByUser(t *testing.T) {
	cfg := mocks.NewTestConfig()
	cfg.Producer.Return.Successes = true
	producer := mocks.NewSyncProducer(t, cfg)
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "42" {
			return errors.New("unexpected key " + string(key))
		}
		return nil
	})

	bus := newKafkaBus(producer, "task-events", logger.Nop())
	err := bus.Publish(context.Background(), Event{ID: "e1", UserID: 42, Action: models.TaskActionCreated})
	require.NoError(t, err)
	require.NoError(t, bus.Close())
}

func TestKafkaBus_PublishFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	bus := newKafkaBus(producer, "task-events", logger.Nop())
	err := bus.Publish(context.Background(), Event{ID: "e1", UserID: 1, Action: models.TaskActionDeleted})
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, bus.Close())
}

func TestKafkaBus_SubscribeWithoutGroup(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	bus := newKafkaBus(producer, "task-events", logger.Nop())
	assert.Error(t, bus.Subscribe(context.Background(), func(context.Context, Event) {}))
	require.NoError(t, bus.Close())
}

func TestKafkaBus_HandleMessage(t *testing.T) {
	bus := newKafkaBus(mocks.NewSyncProducer(t, nil), "task-events", logger.Nop())
	defer bus.Close()

	var got []Event
	h := func(_ context.Context, ev Event) { got = append(got, ev) }

	payload, err := encode(Event{ID: "e1", UserID: 5, Action: models.TaskActionUpdated, Task: models.Task{ID: 2}})
	require.NoError(t, err)

	bus.handleMessage(context.Background(), &sarama.ConsumerMessage{Topic: "task-events", Value: payload}, h)
	bus.handleMessage(context.Background(), &sarama.ConsumerMessage{Topic: "task-events", Value: []byte("garbage")}, h)
	bus.handleMessage(context.Background(), &sarama.ConsumerMessage{Topic: "task-events", Value: []byte(`{"id":"x"}`)}, h)

	require.Len(t, got, 1)
	assert.Equal(t, uint(5), got[0].UserID)
	assert.Equal(t, "5", got[0].Key())
}

func TestNewBus(t *testing.T) {
	bus, err := NewBus(config.EventsConfig{Bus: config.BusMemory}, nil, logger.Nop())
	require.NoError(t, err)
	assert.IsType(t, &MemoryBus{}, bus)

	_, err = NewBus(config.EventsConfig{Bus: config.BusRedis}, nil, logger.Nop())
	assert.Error(t, err)

	_, err = NewBus(config.EventsConfig{Bus: "nats"}, nil, logger.Nop())
	assert.Error(t, err)
}
