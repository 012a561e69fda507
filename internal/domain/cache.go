package domain

import (
	"context"
	"time"
)

// PriceCache is the single source of truth for the current mark per symbol.
// It holds latest-write-wins entries; the ingestion path serializes writes
// per symbol so consumers never observe intermittent regression.
type PriceCache interface {
	SetPrice(ctx context.Context, symbol string, price float64, ts time.Time) error
	GetPrice(ctx context.Context, symbol string) (price float64, ts time.Time, err error)
	GetPrices(ctx context.Context, symbols []string) (map[string]float64, error)
}

// LockManager provides short-TTL distributed mutual exclusion. The close path
// for a position acquires "close:<id>" before any terminal mutation; a held
// lock means another evaluator is already handling the position.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// Signal is a single message received from a SignalBus subscription.
type Signal struct {
	Channel string
	Payload []byte
}

// SignalBus fans events out to downstream subscribers. Delivery is
// best-effort, at-most-once per subscriber.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channels ...string) (<-chan Signal, error)
}

// SnapshotCache mirrors the most recently computed account snapshot so
// read-heavy surfaces (gateway status frames) can serve it without a
// recompute.
type SnapshotCache interface {
	Set(ctx context.Context, accountID string, snap Snapshot) error
	Get(ctx context.Context, accountID string) (Snapshot, error)
}

// RateLimiter provides distributed request limiting, applied to the
// order-placement surface.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
