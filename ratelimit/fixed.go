package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisFixed is the fixed-window counter strategy: per key, one minute
// counter and one hour counter, each expiring when its window elapses.
// Cheaper than the sliding log (plain INCR, no ZSET) but a burst
// straddling a window boundary can admit up to twice the configured
// minute limit. This is an accepted approximation; RedisSliding is the
// canonical semantics.
type RedisFixed struct {
	redis  redis.UniversalClient
	prefix string
	tiers  map[Tier]Limits
}

// NewRedisFixed creates a fixed-window limiter on the given client.
func NewRedisFixed(client redis.UniversalClient, prefix string, tiers map[Tier]Limits) *RedisFixed {
	if prefix == "" {
		prefix = "rl"
	}
	if tiers == nil {
		tiers = DefaultTiers()
	}

	return &RedisFixed{
		redis:  client,
		prefix: prefix,
		tiers:  tiers,
	}
}

// Check increments both window counters and decides from the returned
// values. INCR returns the post-increment count atomically, so two
// concurrent calls at the limit cannot both observe a stale count.
func (l *RedisFixed) Check(ctx context.Context, key string, tier Tier) (Result, error) {
	limits, metered := tierLimits(l.tiers, tier)
	if !metered {
		return unlimitedResult(), nil
	}

	minuteLimit := limits.PerMinute + limits.Burst
	minuteKey := l.prefix + ":f:m:" + key
	hourKey := l.prefix + ":f:h:" + key

	mcount, err := l.incrementWithTTL(ctx, minuteKey, time.Minute)
	if err != nil {
		return Result{}, err
	}
	if mcount > int64(minuteLimit) {
		retry, err := l.windowReset(ctx, minuteKey, time.Minute)
		if err != nil {
			return Result{}, err
		}
		return Result{Limit: minuteLimit, RetryAfter: retry}, nil
	}

	hcount, err := l.incrementWithTTL(ctx, hourKey, time.Hour)
	if err != nil {
		return Result{}, err
	}
	if hcount > int64(limits.PerHour) {
		retry, err := l.windowReset(ctx, hourKey, time.Hour)
		if err != nil {
			return Result{}, err
		}
		return Result{Limit: limits.PerHour, RetryAfter: retry}, nil
	}

	remaining := minuteLimit - int(mcount)
	if hourRemaining := limits.PerHour - int(hcount); hourRemaining < remaining {
		remaining = hourRemaining
	}
	if remaining < 0 {
		remaining = 0
	}

	return Result{
		Allowed:   true,
		Remaining: remaining,
		Limit:     minuteLimit,
	}, nil
}

func (l *RedisFixed) incrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: the TTL is set only by the first hit.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, window).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}

func (l *RedisFixed) windowReset(ctx context.Context, key string, window time.Duration) (time.Duration, error) {
	ttl, err := l.redis.TTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if ttl <= 0 {
		return window, nil
	}
	return ttl, nil
}
