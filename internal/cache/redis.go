package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/casaluna/order-service/internal/client"
	"github.com/casaluna/order-service/internal/config"
)

// promotionTTL is short on purpose: promotions are time-bounded and pricing
// must not lag far behind the promotions service.
const promotionTTL = 30 * time.Second

type Redis struct {
	client *redis.Client
}

func NewRedis(cfg config.RedisConfig) *Redis {
	return &Redis{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
	}
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) setJSON(ctx context.Context, key string, value any, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, data, expiration).Err()
}

func (r *Redis) getJSON(ctx context.Context, key string, dest any) error {
	data, err := r.client.Get(ctx, key).Result()
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(data), dest)
}

// CachedPromotions is a cache-aside decorator over the promotions gateway.
// Cache failures are logged and fall through to the underlying service.
type CachedPromotions struct {
	next  client.Promotions
	redis *Redis
}

func NewCachedPromotions(next client.Promotions, redis *Redis) *CachedPromotions {
	return &CachedPromotions{next: next, redis: redis}
}

func (c *CachedPromotions) ActiveForProduct(ctx context.Context, productID uuid.UUID, token string) ([]client.Promotion, error) {
	key := fmt.Sprintf("promotions:product:%s", productID)

	var cached []client.Promotion
	err := c.redis.getJSON(ctx, key, &cached)
	if err == nil {
		return cached, nil
	}
	if err != redis.Nil {
		log.Warn().Err(err).Str("key", key).Msg("cache: failed to read promotions, falling through")
	}

	promos, err := c.next.ActiveForProduct(ctx, productID, token)
	if err != nil {
		return nil, err
	}

	if err := c.redis.setJSON(ctx, key, promos, promotionTTL); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache: failed to store promotions")
	}
	return promos, nil
}

var _ client.Promotions = (*CachedPromotions)(nil)
