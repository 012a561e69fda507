package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/xness/riskcore/internal/domain"
)

// SignalBus implements domain.SignalBus on top of Redis pub/sub. Ticks,
// order lifecycle events, and alerts flow over the trades/orders/alerts
// channels so that the watcher and the websocket hub can subscribe
// independently of the publishing process.
type SignalBus struct {
	rdb *redis.Client
}

// NewSignalBus creates a SignalBus backed by the given Client.
func NewSignalBus(c *Client) *SignalBus {
	return &SignalBus{rdb: c.Underlying()}
}

// Publish sends a payload on the given channel. Payloads are JSON documents
// encoded by the caller.
func (b *SignalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := b.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe returns a receive channel of raw payloads for the given channels.
// The subscription is torn down when ctx is cancelled.
func (b *SignalBus) Subscribe(ctx context.Context, channels ...string) (<-chan domain.Signal, error) {
	sub := b.rdb.Subscribe(ctx, channels...)

	// Force the subscription to be established so failures surface here
	// rather than as a silent empty channel.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("redis: subscribe %v: %w", channels, err)
	}

	out := make(chan domain.Signal, 64)
	go func() {
		defer close(out)
		defer sub.Close()

		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- domain.Signal{Channel: msg.Channel, Payload: []byte(msg.Payload)}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

var _ domain.SignalBus = (*SignalBus)(nil)
