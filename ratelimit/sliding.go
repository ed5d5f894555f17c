package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Both windows are purged, counted, and appended in one script so that
// concurrent checks at the limit cannot both pass, and a denial never
// leaves a half-recorded request in one window.
const slidingCheckScript = `
local mkey = KEYS[1]
local hkey = KEYS[2]
local now = tonumber(ARGV[1])
local mwin = tonumber(ARGV[2])
local hwin = tonumber(ARGV[3])
local mlimit = tonumber(ARGV[4])
local hlimit = tonumber(ARGV[5])
local member = ARGV[6]

redis.call("ZREMRANGEBYSCORE", mkey, 0, now - mwin)
redis.call("ZREMRANGEBYSCORE", hkey, 0, now - hwin)

local mcount = redis.call("ZCARD", mkey)
local hcount = redis.call("ZCARD", hkey)

if mcount >= mlimit or hcount >= hlimit then
  local reset
  if mcount >= mlimit then
    local oldest = redis.call("ZRANGE", mkey, 0, 0, "WITHSCORES")
    reset = tonumber(oldest[2]) + mwin - now
  else
    local oldest = redis.call("ZRANGE", hkey, 0, 0, "WITHSCORES")
    reset = tonumber(oldest[2]) + hwin - now
  end
  if reset < 0 then
    reset = 0
  end
  return {0, mcount, hcount, reset}
end

redis.call("ZADD", mkey, now, member)
redis.call("ZADD", hkey, now, member)
redis.call("PEXPIRE", mkey, mwin)
redis.call("PEXPIRE", hkey, hwin)

return {1, mcount + 1, hcount + 1, 0}
`

var slidingCheckLua = redis.NewScript(slidingCheckScript)

// RedisSliding is the cross-instance-accurate strategy: one timestamp
// per recent request in a ZSET log per window. This is the canonical
// semantics; the fixed-window strategies approximate it.
type RedisSliding struct {
	redis  redis.UniversalClient
	prefix string
	tiers  map[Tier]Limits

	now func() time.Time
}

// NewRedisSliding creates a sliding-log limiter on the given client.
func NewRedisSliding(client redis.UniversalClient, prefix string, tiers map[Tier]Limits) *RedisSliding {
	if prefix == "" {
		prefix = "rl"
	}
	if tiers == nil {
		tiers = DefaultTiers()
	}

	return &RedisSliding{
		redis:  client,
		prefix: prefix,
		tiers:  tiers,
		now:    time.Now,
	}
}

// Check purges, counts, and (if allowed) records the request atomically.
func (l *RedisSliding) Check(ctx context.Context, key string, tier Tier) (Result, error) {
	limits, metered := tierLimits(l.tiers, tier)
	if !metered {
		return unlimitedResult(), nil
	}

	minuteLimit := limits.PerMinute + limits.Burst
	nowMs := l.now().UnixMilli()

	raw, err := slidingCheckLua.Run(
		ctx,
		l.redis,
		[]string{l.prefix + ":s:m:" + key, l.prefix + ":s:h:" + key},
		nowMs,
		time.Minute.Milliseconds(),
		time.Hour.Milliseconds(),
		minuteLimit,
		limits.PerHour,
		uuid.NewString(),
	).Result()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	parts, ok := raw.([]interface{})
	if !ok || len(parts) != 4 {
		return Result{}, fmt.Errorf("%w: invalid limiter script response", ErrRedisUnavailable)
	}

	allowed := toInt64(parts[0]) == 1
	mcount := int(toInt64(parts[1]))
	hcount := int(toInt64(parts[2]))
	resetMs := toInt64(parts[3])

	remaining := minuteLimit - mcount
	if hourRemaining := limits.PerHour - hcount; hourRemaining < remaining {
		remaining = hourRemaining
	}
	if remaining < 0 {
		remaining = 0
	}

	res := Result{
		Allowed:   allowed,
		Remaining: remaining,
		Limit:     minuteLimit,
	}
	if !allowed {
		res.RetryAfter = time.Duration(resetMs) * time.Millisecond
		if res.RetryAfter <= 0 {
			res.RetryAfter = time.Second
		}
	}

	return res, nil
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return 0
	}
}
