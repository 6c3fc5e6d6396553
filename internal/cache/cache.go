// Package cache implements the invalidate-on-write read cache that fronts
// offer and store queries.  Entries are JSON snapshots in Redis with a short
// TTL; every committed write deletes the keys it could have staled.  The
// cache is purely an accelerator: any Redis failure degrades to a database
// read, never to an error, so reservation correctness cannot depend on it.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key builders.  One key per offer or store plus one per listing filter;
// mutations delete exactly the keys whose contents they could have changed.
const AllOffersKey = "offers:all"

func OfferKey(id uint64) string        { return fmt.Sprintf("offer:%d", id) }
func StoreOffersKey(id uint64) string  { return fmt.Sprintf("offers:store:%d", id) }
func CityOffersKey(city string) string { return "offers:city:" + strings.ToLower(city) }
func StoreKey(id uint64) string        { return fmt.Sprintf("store:%d", id) }
func CityStoresKey(city string) string { return "stores:city:" + strings.ToLower(city) }

// Cache wraps a Redis client with a fixed TTL.  A nil *Cache and a Cache
// with a nil client are both valid and behave as a permanent miss, which
// lets the rest of the code run without Redis configured.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

// New builds a Cache over rdb.  rdb may be nil.
func New(rdb *redis.Client, ttl time.Duration) *Cache {
	return &Cache{rdb: rdb, ttl: ttl}
}

// Get unmarshals the entry at key into dest and reports whether a usable
// entry existed.
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) bool {
	if c == nil || c.rdb == nil {
		return false
	}
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		// Corrupt entry; drop it so the next write can repopulate.
		c.rdb.Del(ctx, key)
		return false
	}
	return true
}

// Set stores v at key for the configured TTL.  Failures are logged and
// swallowed.
func (c *Cache) Set(ctx context.Context, key string, v interface{}) {
	if c == nil || c.rdb == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		log.Printf("[CACHE] set %s failed: %v", key, err)
	}
}

// Invalidate deletes the given keys.  Callers run it after their write has
// committed and before reporting success, so a reader cannot keep observing
// a stale entry past the write.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) {
	if c == nil || c.rdb == nil || len(keys) == 0 {
		return
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		log.Printf("[CACHE] invalidate %v failed: %v", keys, err)
	}
}

// InvalidateAll drops every offer and store entry.  Used by the expiry
// sweeper, whose batch flip can stale listings for any city at once.
func (c *Cache) InvalidateAll(ctx context.Context) {
	if c == nil || c.rdb == nil {
		return
	}
	for _, pattern := range []string{"offer:*", "offers:*", "store:*", "stores:*"} {
		iter := c.rdb.Scan(ctx, 0, pattern, 0).Iterator()
		for iter.Next(ctx) {
			c.rdb.Del(ctx, iter.Val())
		}
		if err := iter.Err(); err != nil {
			log.Printf("[CACHE] scan %s failed: %v", pattern, err)
		}
	}
}
