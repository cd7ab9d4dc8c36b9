package services

import (
	"context"
	"crypto/sha1"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/travelhub/booking-backend/internal/models"
)

const (
	tripCachePrefix     = "trips"
	tripCacheVersionKey = "trips:version"
)

// TripCache caches trip list results. Get returns the key the result belongs
// under; passing that key to Set after loading from the database keeps a list
// read before an Invalidate from being stored as current. Invalidate makes
// every cached list stale at once.
type TripCache interface {
	Get(ctx context.Context, filter models.TripFilter) (trips []models.Trip, key string, hit bool, err error)
	Set(ctx context.Context, key string, trips []models.Trip) error
	Invalidate(ctx context.Context) error
}

type noopTripCache struct{}

func (noopTripCache) Get(context.Context, models.TripFilter) ([]models.Trip, string, bool, error) {
	return nil, "", false, nil
}
func (noopTripCache) Set(context.Context, string, []models.Trip) error { return nil }
func (noopTripCache) Invalidate(context.Context) error                  { return nil }

// RedisTripCache stores trip lists in Redis under versioned keys. Bumping the
// version orphans old entries, which then expire through their TTL.
type RedisTripCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisTripCache returns a cache backed by client, or a no-op cache when
// client is nil
func NewRedisTripCache(client *redis.Client, ttl time.Duration) TripCache {
	if client == nil {
		return noopTripCache{}
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisTripCache{client: client, ttl: ttl}
}

func (c *RedisTripCache) version(ctx context.Context) (int64, error) {
	v, err := c.client.Get(ctx, tripCacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

func (c *RedisTripCache) key(version int64, filter models.TripFilter) string {
	date := ""
	if filter.Date != nil {
		date = filter.Date.UTC().Format("2006-01-02")
	}
	raw := strings.Join([]string{
		strings.ToLower(strings.TrimSpace(filter.From)),
		strings.ToLower(strings.TrimSpace(filter.To)),
		date,
	}, "|")
	sum := sha1.Sum([]byte(raw))
	return fmt.Sprintf("%s:v%d:%x", tripCachePrefix, version, sum[:])
}

// Get looks up the list for filter under the current version. On a miss the
// returned key is where Set should store the freshly loaded list.
func (c *RedisTripCache) Get(ctx context.Context, filter models.TripFilter) ([]models.Trip, string, bool, error) {
	version, err := c.version(ctx)
	if err != nil {
		return nil, "", false, fmt.Errorf("failed to read cache version: %w", err)
	}
	key := c.key(version, filter)

	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, key, false, nil
	}
	if err != nil {
		return nil, key, false, fmt.Errorf("failed to read cached trips: %w", err)
	}

	var trips []models.Trip
	if err := json.Unmarshal(data, &trips); err != nil {
		return nil, key, false, fmt.Errorf("failed to decode cached trips: %w", err)
	}
	return trips, key, true, nil
}

// Set stores a list under a key returned by Get
func (c *RedisTripCache) Set(ctx context.Context, key string, trips []models.Trip) error {
	if key == "" {
		return nil
	}

	data, err := json.Marshal(trips)
	if err != nil {
		return fmt.Errorf("failed to encode trips: %w", err)
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache trips: %w", err)
	}
	return nil
}

// Invalidate bumps the cache version
func (c *RedisTripCache) Invalidate(ctx context.Context) error {
	if err := c.client.Incr(ctx, tripCacheVersionKey).Err(); err != nil {
		return fmt.Errorf("failed to bump cache version: %w", err)
	}
	return nil
}
