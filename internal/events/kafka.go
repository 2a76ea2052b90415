package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"task-notify/internal/adapters/kafka"
	"task-notify/pkg/logger"

	"github.com/IBM/sarama"
)

// KafkaBus publishes events keyed by user id and consumes them through a consumer group.
type KafkaBus struct {
	producer sarama.SyncProducer
	topic    string
	logger   *logger.Logger
	newGroup func() (sarama.ConsumerGroup, error)

	mu      sync.Mutex
	groups  []sarama.ConsumerGroup
	closed  bool
	workers sync.WaitGroup
}

func NewKafkaBus(brokers []string, topic, groupID string, log *logger.Logger) (*KafkaBus, error) {
	producer, err := kafka.InitKafkaProducer(brokers)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	bus := newKafkaBus(producer, topic, log)
	bus.newGroup = func() (sarama.ConsumerGroup, error) {
		return kafka.InitKafkaConsumerGroup(brokers, groupID)
	}
	return bus, nil
}

func newKafkaBus(producer sarama.SyncProducer, topic string, log *logger.Logger) *KafkaBus {
	return &KafkaBus{
		producer: producer,
		topic:    topic,
		logger:   log,
	}
}

func (b *KafkaBus) Publish(_ context.Context, ev Event) error {
	payload, err := encode(ev)
	if err != nil {
		return err
	}

	partition, offset, err := b.producer.SendMessage(&sarama.ProducerMessage{
		Topic: b.topic,
		Key:   sarama.StringEncoder(ev.Key()),
		Value: sarama.ByteEncoder(payload),
	})
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	b.logger.Debug("Event published", "topic", b.topic, "partition", partition, "offset", offset, "eventID", ev.ID)
	return nil
}

func (b *KafkaBus) Subscribe(ctx context.Context, h Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBusClosed
	}
	if b.newGroup == nil {
		return errors.New("kafka bus has no consumer group configured")
	}

	group, err := b.newGroup()
	if err != nil {
		return fmt.Errorf("failed to create kafka consumer group: %w", err)
	}
	b.groups = append(b.groups, group)

	handler := &groupHandler{bus: b, handle: h}

	b.workers.Add(2)
	go func() {
		defer b.workers.Done()
		for {
			// Consume returns on every rebalance
			if err := group.Consume(ctx, []string{b.topic}, handler); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				b.logger.Error("Kafka consume failed", "topic", b.topic, "error", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Second):
				}
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()
	go func() {
		defer b.workers.Done()
		for err := range group.Errors() {
			b.logger.Warn("Kafka consumer error", "topic", b.topic, "error", err)
		}
	}()

	b.logger.Info("Subscribed to event topic", "topic", b.topic)
	return nil
}

func (b *KafkaBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	groups := b.groups
	b.groups = nil
	b.mu.Unlock()

	var errs []error
	for _, g := range groups {
		errs = append(errs, g.Close())
	}
	b.workers.Wait()
	errs = append(errs, b.producer.Close())
	return errors.Join(errs...)
}

func (b *KafkaBus) handleMessage(ctx context.Context, msg *sarama.ConsumerMessage, h Handler) {
	ev, err := decode(msg.Value)
	if err != nil {
		b.logger.Warn("Dropping malformed event", "topic", msg.Topic, "offset", msg.Offset, "error", err)
		return
	}
	h(ctx, ev)
}

type groupHandler struct {
	bus    *KafkaBus
	handle Handler
}

func (g *groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (g *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (g *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case <-session.Context().Done():
			return nil
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			g.bus.handleMessage(session.Context(), msg, g.handle)
			session.MarkMessage(msg, "")
		}
	}
}
