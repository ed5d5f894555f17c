package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryMinuteLimit(t *testing.T) {
	limiter := NewMemory(map[Tier]Limits{
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

func TestMemoryWindowReset(t *testing.T) {
	limiter := NewMemory(map[Tier]Limits{
		TierFree: {PerMinute: 1, PerHour: 100, Burst: 0},
	})
	ctx := context.Background()

	current := time.Now()
	limiter.now = func() time.Time { return current }

	if res, _ := limiter.Check(ctx, "req:k", TierFree); !res.Allowed {
		t.Fatal("first request denied")
	}
	if res, _ := limiter.Check(ctx, "req:k", TierFree); res.Allowed {
		t.Fatal("second request admitted at the limit")
	}

	current = current.Add(61 * time.Second)

	if res, _ := limiter.Check(ctx, "req:k", TierFree); !res.Allowed {
		t.Fatal("window did not reset after a minute")
	}
}

func TestMemoryHourCap(t *testing.T) {
	limiter := NewMemory(map[Tier]Limits{
		TierFree: {PerMinute: 10, PerHour: 2, Burst: 0},
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if res, _ := limiter.Check(ctx, "req:k", TierFree); !res.Allowed {
			t.Fatalf("request %d denied below the hour cap", i)
		}
	}
	if res, _ := limiter.Check(ctx, "req:k", TierFree); res.Allowed {
		t.Fatal("hour cap not enforced")
	}
}

func TestMemoryEvictsStaleWindows(t *testing.T) {
	limiter := NewMemory(map[Tier]Limits{
		TierFree: {PerMinute: 10, PerHour: 100, Burst: 0},
	})
	ctx := context.Background()

	current := time.Now()
	limiter.now = func() time.Time { return current }

	for _, key := range []string{"req:a", "req:b", "req:c"} {
		if _, err := limiter.Check(ctx, key, TierFree); err != nil {
			t.Fatalf("Check %q failed: %v", key, err)
		}
	}

	// An hour of silence leaves all three entries stale; the next check
	// sweeps them and tracks only its own key.
	current = current.Add(time.Hour + time.Minute)
	if _, err := limiter.Check(ctx, "req:d", TierFree); err != nil {
		t.Fatalf("Check failed: %v", err)
	}

	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	if len(limiter.windows) != 1 {
		t.Fatalf("window map holds %d entries, want 1", len(limiter.windows))
	}
	if _, ok := limiter.windows["req:d"]; !ok {
		t.Fatal("active key was evicted")
	}
}

func TestMemoryConcurrentNeverOverAdmits(t *testing.T) {
	const limit = 50

	limiter := NewMemory(map[Tier]Limits{
		TierFree: {PerMinute: limit, PerHour: 1000, Burst: 0},
	})
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0

	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := limiter.Check(ctx, "req:k", TierFree)
			if err != nil {
				return
			}
			if res.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != limit {
		t.Fatalf("admitted %d requests, want exactly %d", allowed, limit)
	}
}
