package ratelimit

import (
	"context"
	"sync"
	"time"
)

type memoryWindow struct {
	minuteStart time.Time
	minuteCount int
	hourStart   time.Time
	hourCount   int
}

// Memory is the in-process fallback: fixed windows under a mutex. It is
// accurate only for a single instance and is a degraded mode, not a
// substitute for the shared-store strategies. Behind a load balancer
// each instance counts independently.
// sweepInterval bounds how often Check scans the window map for
// entries whose hour window has fully elapsed.
const sweepInterval = time.Minute

type Memory struct {
	tiers map[Tier]Limits

	mu        sync.Mutex
	windows   map[string]*memoryWindow
	lastSweep time.Time

	now func() time.Time
}

// NewMemory creates the in-process fallback limiter.
func NewMemory(tiers map[Tier]Limits) *Memory {
	if tiers == nil {
		tiers = DefaultTiers()
	}

	return &Memory{
		tiers:   tiers,
		windows: make(map[string]*memoryWindow),
		now:     time.Now,
	}
}

// Check applies fixed-window accounting under the lock; the check and
// the increment are one critical section, so the per-key invariant
// holds within this process.
func (l *Memory) Check(_ context.Context, key string, tier Tier) (Result, error) {
	limits, metered := tierLimits(l.tiers, tier)
	if !metered {
		return unlimitedResult(), nil
	}

	minuteLimit := limits.PerMinute + limits.Burst
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) >= sweepInterval {
		l.sweep(now)
	}

	w, ok := l.windows[key]
	if !ok {
		w = &memoryWindow{minuteStart: now, hourStart: now}
		l.windows[key] = w
	}

	if now.Sub(w.minuteStart) >= time.Minute {
		w.minuteStart = now
		w.minuteCount = 0
	}
	if now.Sub(w.hourStart) >= time.Hour {
		w.hourStart = now
		w.hourCount = 0
	}

	if w.minuteCount >= minuteLimit {
		return Result{
			Limit:      minuteLimit,
			RetryAfter: w.minuteStart.Add(time.Minute).Sub(now),
		}, nil
	}
	if w.hourCount >= limits.PerHour {
		return Result{
			Limit:      limits.PerHour,
			RetryAfter: w.hourStart.Add(time.Hour).Sub(now),
		}, nil
	}

	w.minuteCount++
	w.hourCount++

	remaining := minuteLimit - w.minuteCount
	if hourRemaining := limits.PerHour - w.hourCount; hourRemaining < remaining {
		remaining = hourRemaining
	}

	return Result{
		Allowed:   true,
		Remaining: remaining,
		Limit:     minuteLimit,
	}, nil
}

// sweep drops entries whose hour window has elapsed. An active key
// resets its hour start on every Check, so anything older than an hour
// belongs to a client that went away; its counts would reset on the
// next access regardless. Caller holds the lock.
func (l *Memory) sweep(now time.Time) {
	for key, w := range l.windows {
		if now.Sub(w.hourStart) >= time.Hour {
			delete(l.windows, key)
		}
	}
	l.lastSweep = now
}
