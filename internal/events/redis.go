package events

import (
	"context"
	"fmt"
	"sync"

	"task-notify/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// RedisBus fans events out over Redis PUBLISH/SUBSCRIBE on a single channel.
type RedisBus struct {
	client  *redis.Client
	channel string
	logger  *logger.Logger

	mu      sync.Mutex
	subs    []*redis.PubSub
	closed  bool
	workers sync.WaitGroup
}

func NewRedisBus(client *redis.Client, channel string, log *logger.Logger) *RedisBus {
	return &RedisBus{
		client:  client,
		channel: channel,
		logger:  log,
	}
}

func (b *RedisBus) Publish(ctx context.Context, ev Event) error {
	payload, err := encode(ev)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context, h Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBusClosed
	}

	pubsub := b.client.Subscribe(ctx, b.channel)
	// wait for the subscription to be confirmed so no publish after Subscribe returns is missed
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
	}
	b.subs = append(b.subs, pubsub)

	b.workers.Add(1)
	go func() {
		defer b.workers.Done()
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				ev, err := decode([]byte(msg.Payload))
				if err != nil {
					b.logger.Warn("Dropping malformed event", "channel", b.channel, "error", err)
					continue
				}
				h(ctx, ev)
			}
		}
	}()

	b.logger.Info("Subscribed to event channel", "channel", b.channel)
	return nil
}

func (b *RedisBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	for _, s := range subs {
		s.Close()
	}
	b.workers.Wait()
	return nil
}
