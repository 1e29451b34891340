// Package cache stores product page views in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	apppayment "github.com/Zhima-Mochi/paylink/internal/application/payment"
)

const (
	keyPrefix  = "paylink:product:"
	defaultTTL = 5 * time.Minute
)

type ProductCache struct {
	rdb redis.Cmdable
	ttl time.Duration
}

var _ apppayment.ProductCache = (*ProductCache)(nil)

func NewProductCache(rdb redis.Cmdable, ttl time.Duration) *ProductCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &ProductCache{rdb: rdb, ttl: ttl}
}

// Dial connects to addr and checks the connection with PING.
func Dial(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return rdb, nil
}

func Key(productID string) string { return keyPrefix + productID }

func (c *ProductCache) Get(ctx context.Context, productID string) (*apppayment.ProductView, bool, error) {
	raw, err := c.rdb.Get(ctx, Key(productID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get %s: %w", productID, err)
	}

	var v apppayment.ProductView
	if err := json.Unmarshal(raw, &v); err != nil {
		// A payload from an older layout is treated as a miss and overwritten on the next Set.
		return nil, false, fmt.Errorf("cache decode %s: %w", productID, err)
	}
	return &v, true, nil
}

func (c *ProductCache) Set(ctx context.Context, productID string, v *apppayment.ProductView) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", productID, err)
	}
	if err := c.rdb.Set(ctx, Key(productID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", productID, err)
	}
	return nil
}

func (c *ProductCache) Invalidate(ctx context.Context, productID string) error {
	if err := c.rdb.Del(ctx, Key(productID)).Err(); err != nil {
		return fmt.Errorf("cache del %s: %w", productID, err)
	}
	return nil
}
