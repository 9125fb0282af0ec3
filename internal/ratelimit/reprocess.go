package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/corridorlabs/roamsight/internal/config"
	redis "github.com/redis/go-redis/v9"
)

const (
	keyReprocessProject = "etl:reprocess:project:%s"
	keyBackfillLock     = "etl:backfill:lock"
)

// ReprocessLimiter throttles file-reprocess triggers per project and holds
// the cross-instance backfill lock. A nil limiter (rate limiting disabled)
// allows everything and never locks.
type ReprocessLimiter struct {
	bucket *TokenBucket
	locker *Locker

	rate    float64
	burst   int
	lockTTL time.Duration
}

func NewReprocessLimiter(cfg config.Config) (*ReprocessLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit requires REDIS_ADDR")
	}
	if limitCfg.ReprocessRate <= 0 || limitCfg.ReprocessBurst <= 0 {
		return nil, errors.New("reprocess rate limit must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
		DB:       cfg.RedisDB,
	})

	return &ReprocessLimiter{
		bucket:  NewTokenBucket(client),
		locker:  NewLocker(client),
		rate:    limitCfg.ReprocessRate,
		burst:   limitCfg.ReprocessBurst,
		lockTTL: limitCfg.BackfillLockTTL,
	}, nil
}

// AllowReprocess checks the project's trigger budget.
func (l *ReprocessLimiter) AllowReprocess(ctx context.Context, projectID snowflake.ID) (*Result, error) {
	if l == nil {
		return &Result{Allowed: true}, nil
	}
	key := fmt.Sprintf(keyReprocessProject, projectID)
	return l.bucket.Allow(ctx, key, l.rate, l.burst)
}

// AcquireBackfillLock claims the backfill batch for this instance. The
// returned release func is safe to call even if the claim failed.
func (l *ReprocessLimiter) AcquireBackfillLock(ctx context.Context) (release func(), ok bool, err error) {
	if l == nil {
		return func() {}, true, nil
	}
	token, ok, err := l.locker.TryLock(ctx, keyBackfillLock, l.lockTTL)
	if err != nil || !ok {
		return func() {}, ok, err
	}
	return func() {
		_ = l.locker.Release(context.Background(), keyBackfillLock, token)
	}, true, nil
}
