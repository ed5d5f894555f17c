package ratelimit

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrRedisUnavailable wraps shared-store failures. Callers apply the
// fail-open policy; the limiter itself never silently allows.
var ErrRedisUnavailable = errors.New("redis unavailable")

// Tier names a request quota class.
type Tier string

const (
	TierFree      Tier = "free"
	TierStandard  Tier = "standard"
	TierPremium   Tier = "premium"
	TierInternal  Tier = "internal"
	TierUnlimited Tier = "unlimited"
)

// Limits defines the quota for one tier. Burst widens only the minute
// window; the hour window is a hard cap.
type Limits struct {
	PerMinute int
	PerHour   int
	Burst     int
}

// Result is the contract both strategies expose. Allowed is false
// exactly when admitting the request would exceed either window's
// limit; RetryAfter estimates when the binding window clears.
type Result struct {
	Allowed    bool
	Remaining  int
	Limit      int
	RetryAfter time.Duration
}

// Limiter is the tiered check-and-increment interface. Implementations
// must make the check atomic per key: two concurrent calls at the limit
// must not both pass.
type Limiter interface {
	Check(ctx context.Context, key string, tier Tier) (Result, error)
}

// DefaultTiers returns the quota table used when configuration does not
// override it.
func DefaultTiers() map[Tier]Limits {
	return map[Tier]Limits{
		TierFree:     {PerMinute: 20, PerHour: 300, Burst: 5},
		TierStandard: {PerMinute: 60, PerHour: 1500, Burst: 15},
		TierPremium:  {PerMinute: 240, PerHour: 8000, Burst: 60},
		TierInternal: {PerMinute: 1200, PerHour: 50000, Burst: 200},
	}
}

func tierLimits(tiers map[Tier]Limits, tier Tier) (Limits, bool) {
	if tier == TierUnlimited {
		return Limits{}, false
	}
	if l, ok := tiers[tier]; ok {
		return l, true
	}
	// Unknown tiers degrade to the most restrictive class instead of
	// passing unmetered.
	return tiers[TierFree], true
}

func unlimitedResult() Result {
	return Result{Allowed: true, Remaining: -1, Limit: -1}
}

// LoginKey builds the counter key for credential-carrying endpoints.
// Combining client address with the claimed identity bounds both
// one-IP-many-accounts spraying and many-IP-one-account stuffing.
func LoginKey(ip, identifier string) string {
	return "login:" + ip + ":" + strings.ToLower(strings.TrimSpace(identifier))
}

// RequestKey builds the counter key for the generic request guard.
func RequestKey(ip string) string {
	return "req:" + ip
}
