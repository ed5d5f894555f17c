package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newFixed(t *testing.T, tiers map[Tier]Limits) (*RedisFixed, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewRedisFixed(rdb, "test:rl", tiers), mr
}

func TestFixedMinuteLimit(t *testing.T) {
	limiter, _ := newFixed(t, map[Tier]Limits{
		TierFree: {PerMinute: 2, PerHour: 100, Burst: 1},
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := limiter.Check(ctx, "req:k", TierFree)
		if err != nil {
			t.Fatalf("Check %d failed: %v", i, err)
		}
		if !res.Allowed {
			t.Fatalf("request %d denied below the limit", i)
		}
	}

	res, err := limiter.Check(ctx, "req:k", TierFree)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if res.Allowed {
		t.Fatal("request above the limit admitted")
	}
	if res.RetryAfter <= 0 || res.RetryAfter > time.Minute {
		t.Fatalf("retry after = %v, want within (0, 1m]", res.RetryAfter)
	}
}

func TestFixedWindowExpiry(t *testing.T) {
	limiter, mr := newFixed(t, map[Tier]Limits{
		TierFree: {PerMinute: 1, PerHour: 100, Burst: 0},
	})
	ctx := context.Background()

	if res, err := limiter.Check(ctx, "req:k", TierFree); err != nil || !res.Allowed {
		t.Fatalf("first request: allowed=%v err=%v", res.Allowed, err)
	}
	if res, err := limiter.Check(ctx, "req:k", TierFree); err != nil || res.Allowed {
		t.Fatalf("second request: allowed=%v err=%v", res.Allowed, err)
	}

	mr.FastForward(61 * time.Second)

	res, err := limiter.Check(ctx, "req:k", TierFree)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !res.Allowed {
		t.Fatal("window counter survived its TTL")
	}
}

func TestFixedHourCap(t *testing.T) {
	limiter, _ := newFixed(t, map[Tier]Limits{
		TierFree: {PerMinute: 10, PerHour: 2, Burst: 0},
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if res, err := limiter.Check(ctx, "req:k", TierFree); err != nil || !res.Allowed {
			t.Fatalf("request %d: allowed=%v err=%v", i, res.Allowed, err)
		}
	}

	res, err := limiter.Check(ctx, "req:k", TierFree)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if res.Allowed {
		t.Fatal("hour cap not enforced")
	}
	if res.Limit != 2 {
		t.Fatalf("denial limit = %d, want the hour cap", res.Limit)
	}
}

func TestFixedStoreFailure(t *testing.T) {
	limiter, mr := newFixed(t, nil)
	mr.Close()

	_, err := limiter.Check(context.Background(), "req:k", TierFree)
	if !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}
