package redis

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/floorbot/internal/domain"
)

// EventBus implements domain.EventBus using Redis Pub/Sub. The settlement
// loop publishes match events on it and every API replica's websocket hub
// subscribes, so connected clients hear about settlements regardless of which
// process performed them.
type EventBus struct {
	rdb *redis.Client
}

// NewEventBus creates an EventBus backed by the given Client.
func NewEventBus(c *Client) *EventBus {
	return &EventBus{rdb: c.Underlying()}
}

// Publish sends a raw byte payload to a Redis Pub/Sub channel.
func (eb *EventBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := eb.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe creates a Pub/Sub subscription and returns a read-only channel of
// raw payloads. The subscription closes when the context is cancelled; the
// returned channel is closed at that point as well.
func (eb *EventBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	var pubsub *redis.PubSub
	if hasPattern(channel) {
		pubsub = eb.rdb.PSubscribe(ctx, channel)
	} else {
		pubsub = eb.rdb.Subscribe(ctx, channel)
	}

	// Receive the confirmation so a broken subscription fails fast.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	out := make(chan []byte, 128)
	go func() {
		defer close(out)
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
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// hasPattern reports whether the channel uses glob-style wildcards, which
// require PSubscribe instead of Subscribe.
func hasPattern(channel string) bool {
	return strings.ContainsAny(channel, "*?[")
}

var _ domain.EventBus = (*EventBus)(nil)
