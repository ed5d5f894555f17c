// Package ratelimit enforces tiered request quotas over minute and hour
// windows. Three strategies share one contract: a Redis sliding log
// (canonical, cross-instance accurate), Redis fixed-window counters
// (cheaper approximation), and an in-process fallback (single-instance
// degraded mode).
package ratelimit
