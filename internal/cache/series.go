package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"bondwatch/internal/domain"
)

// RedisClient is the subset of redis.Client the series cache needs.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// SeriesCache stores fetched market series between scoring cycles so a cycle
// that runs minutes after the last one does not refetch every source.
type SeriesCache struct {
	client RedisClient
	ttl    time.Duration
}

func NewSeriesCache(client RedisClient, ttl time.Duration) *SeriesCache {
	return &SeriesCache{client: client, ttl: ttl}
}

func seriesKey(kind, id string) string {
	return fmt.Sprintf("bondwatch:series:%s:%s", kind, id)
}

// Get returns the cached series and true on a hit. A miss or a decode
// failure both report false; stale cache entries must never break a cycle.
func (c *SeriesCache) Get(ctx context.Context, kind, id string) (domain.Series, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, seriesKey(kind, id)).Result()
	if err != nil {
		return nil, false
	}
	var s domain.Series
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, false
	}
	return s, true
}

// Put stores the series, logging nothing and returning nothing: caching is
// best-effort and a write failure only costs the next cycle a refetch.
func (c *SeriesCache) Put(ctx context.Context, kind, id string, s domain.Series) {
	if c == nil || c.client == nil {
		return
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return
	}
	c.client.Set(ctx, seriesKey(kind, id), raw, c.ttl)
}
