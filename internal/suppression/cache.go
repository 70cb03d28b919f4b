// Package suppression provides a cached view of the provider
// suppression list. Campaign runs consult the full list on every send;
// the cache keeps scheduler ticks from hammering the provider API.
package suppression

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jellyjelly/campaign-engine/internal/delivery"
	"github.com/jellyjelly/campaign-engine/internal/domain"
)

const cacheKey = "suppression:emails"

// sentinel member so an empty suppression list is still a cache hit.
const emptyMarker = "__none__"

// Cache is a read-through redis cache in front of a provider
// suppression store. Writes invalidate the cached set so the next read
// refetches. It satisfies delivery.SuppressionStore.
type Cache struct {
	store delivery.SuppressionStore
	rdb   *redis.Client
	ttl   time.Duration
}

// NewCache wraps store with a redis-backed cache. TTL <= 0 defaults to
// five minutes.
func NewCache(store delivery.SuppressionStore, rdb *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{store: store, rdb: rdb, ttl: ttl}
}

// SuppressedEmails returns the cached suppressed set, refetching from
// the provider on a miss. Redis errors degrade to a direct provider
// call rather than failing the send.
func (c *Cache) SuppressedEmails(ctx context.Context) (map[string]bool, error) {
	members, err := c.rdb.SMembers(ctx, cacheKey).Result()
	if err == nil && len(members) > 0 {
		suppressed := make(map[string]bool, len(members))
		for _, m := range members {
			if m == emptyMarker {
				continue
			}
			suppressed[strings.ToLower(m)] = true
		}
		return suppressed, nil
	}
	if err != nil {
		log.Printf("[Suppression] cache read failed, falling through to provider: %v", err)
	}

	suppressed, err := c.store.SuppressedEmails(ctx)
	if err != nil {
		return nil, err
	}

	values := make([]interface{}, 0, len(suppressed)+1)
	values = append(values, emptyMarker)
	for email := range suppressed {
		values = append(values, email)
	}
	pipe := c.rdb.TxPipeline()
	pipe.Del(ctx, cacheKey)
	pipe.SAdd(ctx, cacheKey, values...)
	pipe.Expire(ctx, cacheKey, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[Suppression] cache write failed: %v", err)
	}
	return suppressed, nil
}

// Suppressions passes through to the provider; the admin surface wants
// live data.
func (c *Cache) Suppressions(ctx context.Context, kind domain.SuppressionType) ([]domain.SuppressionEntry, error) {
	return c.store.Suppressions(ctx, kind)
}

// AddUnsubscribe writes through and invalidates the cached set.
func (c *Cache) AddUnsubscribe(ctx context.Context, email string) error {
	if err := c.store.AddUnsubscribe(ctx, email); err != nil {
		return err
	}
	c.invalidate(ctx)
	return nil
}

// RemoveUnsubscribe writes through and invalidates the cached set.
func (c *Cache) RemoveUnsubscribe(ctx context.Context, email string) error {
	if err := c.store.RemoveUnsubscribe(ctx, email); err != nil {
		return err
	}
	c.invalidate(ctx)
	return nil
}

func (c *Cache) invalidate(ctx context.Context) {
	if err := c.rdb.Del(ctx, cacheKey).Err(); err != nil {
		log.Printf("[Suppression] cache invalidation failed: %v", err)
	}
}
