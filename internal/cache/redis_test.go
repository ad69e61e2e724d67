package cache_test

import (
	"context"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casaluna/order-service/internal/cache"
	"github.com/casaluna/order-service/internal/client"
	"github.com/casaluna/order-service/internal/config"
)

type countingPromotions struct {
	calls  int
	promos []client.Promotion
}

func (c *countingPromotions) ActiveForProduct(context.Context, uuid.UUID, string) ([]client.Promotion, error) {
	c.calls++
	return c.promos, nil
}

// The decorator must stay transparent when redis is down: reads and writes
// fail, calls fall through to the promotions service.
func TestCachedPromotions_FallsThroughWhenRedisDown(t *testing.T) {
	unreachable := cache.NewRedis(config.RedisConfig{Addr: "127.0.0.1:1"})
	t.Cleanup(func() { _ = unreachable.Close() })

	next := &countingPromotions{promos: []client.Promotion{{ID: uuid.Must(uuid.NewV4()), Active: true}}}
	cached := cache.NewCachedPromotions(next, unreachable)

	got, err := cached.ActiveForProduct(context.Background(), uuid.Must(uuid.NewV4()), "token")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, next.promos[0].ID, got[0].ID)
	assert.Equal(t, 1, next.calls)
}

func TestCachedPromotions_ImplementsGateway(t *testing.T) {
	var _ client.Promotions = (*cache.CachedPromotions)(nil)
}
