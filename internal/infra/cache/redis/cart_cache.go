package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/redis/go-redis/v9"

	domcart "example.com/pod-fulfillment/internal/domain/cart"
)

// CartCache keeps each user's cart rows under cart:{userID} and the
// invalidation counter under cart:{userID}:version. Both keys share a hash
// slot so they can be watched together on a cluster. Entries expire after
// the base TTL plus up to a fifth of it as jitter.
type CartCache struct {
	client  redis.UniversalClient
	baseTTL time.Duration
}

func NewCartCache(client redis.UniversalClient, ttl time.Duration) *CartCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CartCache{client: client, baseTTL: ttl}
}

type cachedItem struct {
	ID        int64     `json:"id"`
	ProductID int64     `json:"product_id"`
	Quantity  int64     `json:"quantity"`
	AddedAt   time.Time `json:"added_at"`
}

func (c *CartCache) Get(ctx context.Context, userID int64) ([]domcart.Item, error) {
	data, err := c.client.Get(ctx, cacheKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domcart.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var cached []cachedItem
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err)
	}

	items := make([]domcart.Item, 0, len(cached))
	for _, ci := range cached {
		items = append(items, domcart.Item{
			ID:        ci.ID,
			UserID:    userID,
			ProductID: ci.ProductID,
			Quantity:  ci.Quantity,
			AddedAt:   ci.AddedAt,
		})
	}
	return items, nil
}

// versionTTL outlives any entry so a counter never resets under a reader.
const versionTTL = 24 * time.Hour

func (c *CartCache) Version(ctx context.Context, userID int64) (int64, error) {
	v, err := c.client.Get(ctx, versionKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get version failed: %w", err)
	}
	return v, nil
}

// Set stores items only while the version still equals the one the caller
// read. The version key is watched so an invalidation racing the write
// aborts it.
func (c *CartCache) Set(ctx context.Context, userID, version int64, items []domcart.Item) error {
	cached := make([]cachedItem, 0, len(items))
	for _, item := range items {
		cached = append(cached, cachedItem{
			ID:        item.ID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			AddedAt:   item.AddedAt,
		})
	}
	data, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}

	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, versionKey(userID)).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != version {
			return domcart.ErrCacheStale
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, cacheKey(userID), data, c.ttl())
			return nil
		})
		return err
	}, versionKey(userID))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domcart.ErrCacheStale), errors.Is(err, redis.TxFailedErr):
		return domcart.ErrCacheStale
	default:
		return fmt.Errorf("redis set failed: %w", err)
	}
}

// Delete drops the entry and advances the version in one transaction.
func (c *CartCache) Delete(ctx context.Context, userID int64) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, versionKey(userID))
		pipe.Expire(ctx, versionKey(userID), versionTTL)
		pipe.Del(ctx, cacheKey(userID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func (c *CartCache) ttl() time.Duration {
	jitter := time.Duration(rand.Int64N(int64(c.baseTTL)/5 + 1))
	return c.baseTTL + jitter
}

func cacheKey(userID int64) string {
	return fmt.Sprintf("cart:{%d}", userID)
}

func versionKey(userID int64) string {
	return fmt.Sprintf("cart:{%d}:version", userID)
}
