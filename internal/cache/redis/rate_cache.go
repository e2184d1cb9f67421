package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/floorbot/internal/domain"
)

// RateCache implements domain.RateCache using Redis hashes. Each currency's
// rate is stored at "rate:{symbol}" with fields "rate" and "ts" (Unix
// nanosecond timestamp) so callers can judge staleness themselves.
type RateCache struct {
	rdb *redis.Client
}

// NewRateCache creates a RateCache backed by the given Client.
func NewRateCache(c *Client) *RateCache {
	return &RateCache{rdb: c.Underlying()}
}

func rateKey(symbol string) string {
	return "rate:" + symbol
}

// SetRate stores the latest exchange rate and timestamp for a currency.
func (rc *RateCache) SetRate(ctx context.Context, symbol string, rate float64, ts time.Time) error {
	fields := map[string]interface{}{
		"rate": strconv.FormatFloat(rate, 'f', -1, 64),
		"ts":   strconv.FormatInt(ts.UnixNano(), 10),
	}
	if err := rc.rdb.HSet(ctx, rateKey(symbol), fields).Err(); err != nil {
		return fmt.Errorf("redis: set rate %s: %w", symbol, err)
	}
	return nil
}

// GetRate retrieves the latest exchange rate and timestamp for a currency.
// It returns domain.ErrNotFound when the key does not exist.
func (rc *RateCache) GetRate(ctx context.Context, symbol string) (float64, time.Time, error) {
	vals, err := rc.rdb.HGetAll(ctx, rateKey(symbol)).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get rate %s: %w", symbol, err)
	}
	if len(vals) == 0 {
		return 0, time.Time{}, domain.ErrNotFound
	}

	rateStr, ok := vals["rate"]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	rate, err := strconv.ParseFloat(rateStr, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse rate %s: %w", symbol, err)
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse rate ts %s: %w", symbol, err)
	}

	return rate, time.Unix(0, tsNano), nil
}

var _ domain.RateCache = (*RateCache)(nil)
