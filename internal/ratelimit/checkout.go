package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/finora/internal/config"
	"go.uber.org/zap"
)

var (
	ErrCheckoutInProgress  = errors.New("checkout_in_progress")
	ErrCheckoutRateLimited = errors.New("checkout_rate_limited")
)

const (
	keyCheckoutLock   = "finora:checkout:lock:%s"
	keyCheckoutBucket = "finora:checkout:bucket:%s"
)

// CheckoutGuard serializes paid checkouts per account and throttles retries.
type CheckoutGuard struct {
	log     *zap.Logger
	locker  *Locker
	bucket  *TokenBucket
	lockTTL time.Duration
	rate    float64
	burst   int
}

// NewCheckoutGuard returns nil without Redis; a nil guard admits every call.
func NewCheckoutGuard(client *redis.Client, cfg config.Config, log *zap.Logger) *CheckoutGuard {
	if client == nil {
		return nil
	}
	return newCheckoutGuard(client, cfg.Redis, log)
}

func newCheckoutGuard(client redis.Cmdable, cfg config.RedisConfig, log *zap.Logger) *CheckoutGuard {
	return &CheckoutGuard{
		log:     log.Named("checkout.guard"),
		locker:  NewLocker(client),
		bucket:  NewTokenBucket(client),
		lockTTL: cfg.CheckoutLockTTL,
		rate:    cfg.CheckoutRate,
		burst:   cfg.CheckoutBurst,
	}
}

// Acquire admits one checkout for accountID. The returned release func must be
// called when the checkout request finishes.
func (g *CheckoutGuard) Acquire(ctx context.Context, accountID string) (func(), error) {
	if g == nil {
		return func() {}, nil
	}

	if g.rate > 0 && g.burst > 0 {
		res, err := g.bucket.Allow(ctx, fmt.Sprintf(keyCheckoutBucket, accountID), g.rate, g.burst)
		if err != nil {
			g.log.Warn("checkout rate limiter unavailable", zap.Error(err))
		} else if !res.Allowed {
			return nil, ErrCheckoutRateLimited
		}
	}

	key := fmt.Sprintf(keyCheckoutLock, accountID)
	token, ok, err := g.locker.TryLock(ctx, key, g.lockTTL)
	if err != nil {
		g.log.Warn("checkout lock unavailable", zap.Error(err))
		return func() {}, nil
	}
	if !ok {
		return nil, ErrCheckoutInProgress
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := g.locker.Release(releaseCtx, key, token); err != nil {
			g.log.Warn("checkout lock release failed", zap.Error(err))
		}
	}, nil
}
