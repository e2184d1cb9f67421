package domain

import (
	"context"
	"time"
)

// ListingCache caches marketplace listing snapshots per collection so
// repeated searches within the TTL do not hammer the upstream API.
type ListingCache interface {
	GetListings(ctx context.Context, key string) ([]Listing, error)
	SetListings(ctx context.Context, key string, listings []Listing) error
}

// RateCache caches fiat exchange rates from the price oracle, keyed by
// currency symbol.
type RateCache interface {
	SetRate(ctx context.Context, symbol string, rate float64, ts time.Time) error
	GetRate(ctx context.Context, symbol string) (float64, time.Time, error)
}

// LockManager provides distributed locks. Acquire returns an unlock function
// on success or ErrLockHeld when another holder owns the key.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// RateLimiter enforces a sliding-window request limit per key.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// EventBus carries settlement and watch events between processes. Publishing
// is fire-and-forget; subscribers receive raw payloads until the context is
// cancelled.
type EventBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
