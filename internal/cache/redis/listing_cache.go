package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/floorbot/internal/domain"
)

// listingTTL keeps cached floor snapshots fresh enough that a purchase
// decision never acts on stale prices for long.
const listingTTL = 60 * time.Second

// ListingCache implements domain.ListingCache using JSON-serialized listing
// slices under "listings:{key}". The key is chosen by the caller, typically
// the collection slug plus any attribute filter.
type ListingCache struct {
	rdb *redis.Client
}

// NewListingCache creates a ListingCache backed by the given Client.
func NewListingCache(c *Client) *ListingCache {
	return &ListingCache{rdb: c.Underlying()}
}

func listingKey(key string) string { return "listings:" + key }

// SetListings stores a listing snapshot with the cache TTL.
func (lc *ListingCache) SetListings(ctx context.Context, key string, listings []domain.Listing) error {
	data, err := json.Marshal(listings)
	if err != nil {
		return fmt.Errorf("redis: marshal listings %s: %w", key, err)
	}
	if err := lc.rdb.Set(ctx, listingKey(key), data, listingTTL).Err(); err != nil {
		return fmt.Errorf("redis: set listings %s: %w", key, err)
	}
	return nil
}

// GetListings retrieves a cached listing snapshot.
// It returns domain.ErrNotFound when the key does not exist or has expired.
func (lc *ListingCache) GetListings(ctx context.Context, key string) ([]domain.Listing, error) {
	data, err := lc.rdb.Get(ctx, listingKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("redis: get listings %s: %w", key, err)
	}

	var listings []domain.Listing
	if err := json.Unmarshal(data, &listings); err != nil {
		return nil, fmt.Errorf("redis: unmarshal listings %s: %w", key, err)
	}
	return listings, nil
}

var _ domain.ListingCache = (*ListingCache)(nil)
