package redisclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// CacheClass groups cache keys that share a TTL and are invalidated together
type CacheClass struct {
	Name string
	TTL  time.Duration
}

// Cache classes. Entries may be stale for up to TTL.
var (
	ClassPrices  = CacheClass{Name: "prices", TTL: 24 * time.Hour}
	ClassCatalog = CacheClass{Name: "catalog", TTL: 30 * 24 * time.Hour}
)

func cacheKey(class CacheClass, key string) string {
	return fmt.Sprintf("cache:%s:%s", class.Name, key)
}

func indexKey(class CacheClass) string {
	return fmt.Sprintf("cache:%s:index", class.Name)
}

// CacheGet decodes a cached value into dst, reporting whether it was present
func (c *Client) CacheGet(ctx context.Context, class CacheClass, key string, dst interface{}) (bool, error) {
	data, err := c.rdb.Get(ctx, cacheKey(class, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("decode cache entry %s: %w", key, err)
	}
	return true, nil
}

// CacheSet stores value under key with the class TTL and indexes it for invalidation
func (c *Client) CacheSet(ctx context.Context, class CacheClass, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache entry %s: %w", key, err)
	}

	full := cacheKey(class, key)
	pipe := c.rdb.TxPipeline()
	pipe.Set(ctx, full, data, class.TTL)
	pipe.SAdd(ctx, indexKey(class), full)
	pipe.Expire(ctx, indexKey(class), class.TTL)

	_, err = pipe.Exec(ctx)
	return err
}

// CacheDelete removes specific entries of a class
func (c *Client) CacheDelete(ctx context.Context, class CacheClass, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	members := make([]interface{}, len(keys))
	for i, k := range keys {
		full[i] = cacheKey(class, k)
		members[i] = full[i]
	}

	pipe := c.rdb.TxPipeline()
	pipe.Del(ctx, full...)
	pipe.SRem(ctx, indexKey(class), members...)
	_, err := pipe.Exec(ctx)
	return err
}

// InvalidateClass atomically drops every entry of a class
func (c *Client) InvalidateClass(ctx context.Context, class CacheClass) (int64, error) {
	n, err := c.invalidateScript.Run(ctx, c.rdb, []string{indexKey(class)}).Int64()
	if err != nil {
		return 0, fmt.Errorf("invalidate class script failed: %w", err)
	}
	return n, nil
}
