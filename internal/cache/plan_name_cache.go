package cache

import (
	"context"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/finora/internal/clock"
	"github.com/smallbiznis/finora/internal/config"
	"go.uber.org/zap"
)

const defaultPlanNameTTL = 10 * time.Minute

// PlanNameCache memoizes provider plan display names by price reference.
type PlanNameCache struct {
	store Cache[string, string]
	ttl   time.Duration
}

// NewPlanNameCache uses Redis when a client is configured and process memory otherwise.
func NewPlanNameCache(client *redis.Client, cfg config.Config, clk clock.Clock, log *zap.Logger) *PlanNameCache {
	ttl := cfg.Redis.PlanNameCacheTTL
	if ttl <= 0 {
		ttl = defaultPlanNameTTL
	}
	if client == nil {
		return NewMemoryPlanNameCache(clk, ttl)
	}
	return &PlanNameCache{
		store: NewRedisStringCache(client, cfg.Redis.PlanNameKeyPrefix, log.Named("plan_name.cache")),
		ttl:   ttl,
	}
}

func NewMemoryPlanNameCache(clk clock.Clock, ttl time.Duration) *PlanNameCache {
	return &PlanNameCache{
		store: NewTTLCache[string, string](clk),
		ttl:   ttl,
	}
}

func (c *PlanNameCache) Get(ctx context.Context, priceRef string) (string, bool) {
	priceRef = strings.TrimSpace(priceRef)
	if c == nil || priceRef == "" {
		return "", false
	}
	return c.store.Get(ctx, priceRef)
}

func (c *PlanNameCache) Set(ctx context.Context, priceRef, name string) {
	priceRef = strings.TrimSpace(priceRef)
	name = strings.TrimSpace(name)
	if c == nil || priceRef == "" || name == "" {
		return
	}
	c.store.Set(ctx, priceRef, name, c.ttl)
}
