package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bogo/internal/pkg/logger"
	"bogo/internal/service/promotion/domain"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const collectionCacheKeyPrefix = "promo:collection:"

// CachedCollectionResolver 在 Redis 中缓存 collection 成员。
// 同一个 collection 的并发未命中只会穿透一次到下游。
type CachedCollectionResolver struct {
	next  domain.CollectionResolver
	rdb   *redis.Client
	ttl   time.Duration
	group singleflight.Group
}

func NewCachedCollectionResolver(next domain.CollectionResolver, rdb *redis.Client, ttl time.Duration) *CachedCollectionResolver {
	return &CachedCollectionResolver{next: next, rdb: rdb, ttl: ttl}
}

func (c *CachedCollectionResolver) Members(ctx context.Context, collectionIDs []string) ([]string, error) {
	acc := newMemberSet()
	for _, id := range collectionIDs {
		ids, err := c.members(ctx, id)
		if err != nil {
			return nil, err
		}
		acc.add(ids...)
	}
	return acc.ids, nil
}

func (c *CachedCollectionResolver) members(ctx context.Context, id string) ([]string, error) {
	key := collectionCacheKey(id)

	data, err := c.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var ids []string
		if jsonErr := json.Unmarshal(data, &ids); jsonErr == nil {
			return ids, nil
		}
		logger.Ctx(ctx).Warn().Str("collection_id", id).Msg("Corrupted collection cache entry, refetching")
	} else if !errors.Is(err, redis.Nil) {
		// 缓存不可用时直接回源
		logger.Ctx(ctx).Warn().Err(err).Str("collection_id", id).Msg("Collection cache read failed")
	}

	v, err, _ := c.group.Do(id, func() (interface{}, error) {
		ids, err := c.next.Members(ctx, []string{id})
		if err != nil {
			return nil, err
		}
		payload, _ := json.Marshal(ids)
		if err := c.rdb.Set(ctx, key, payload, c.ttl).Err(); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("collection_id", id).Msg("Collection cache write failed")
		}
		return ids, nil
	})
	if err != nil {
		return nil, err
	}
	return append([]string(nil), v.([]string)...), nil
}

// Invalidate 删除指定 collection 的缓存。
func (c *CachedCollectionResolver) Invalidate(ctx context.Context, collectionIDs ...string) error {
	if len(collectionIDs) == 0 {
		return nil
	}
	keys := make([]string, len(collectionIDs))
	for i, id := range collectionIDs {
		keys[i] = collectionCacheKey(id)
	}
	return c.rdb.Del(ctx, keys...).Err()
}

func collectionCacheKey(id string) string {
	return fmt.Sprintf("%s%s", collectionCacheKeyPrefix, id)
}
