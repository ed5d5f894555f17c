package authgate

import (
	"fmt"
	"net/http"
	"time"

	"github.com/fieldsense/authgate/ratelimit"
)

// Config is the single configuration surface, validated once by the
// Builder. Anything wrong here is an ErrConfiguration at startup; no
// configuration problem is ever reported per request.
type Config struct {
	JWT        JWTConfig
	Revocation RevocationConfig
	RateLimit  RateLimitConfig
	CSRF       CSRFConfig
	RBAC       RBACConfig
	Password   PasswordConfig
	Audit      AuditConfig
	Metrics    MetricsConfig

	// APIKeys authorize service-to-service callers via X-API-Key.
	APIKeys []string

	// RedisPrefix namespaces every key this layer writes.
	RedisPrefix string
}

// JWTConfig carries signing material and claim policy.
type JWTConfig struct {
	Secret        []byte
	SigningMethod string // "hs256" (default) or "hs512"
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

// RevocationConfig tunes denylist record retention. Scope records
// (family/user/tenant) live RefreshTTL+RecordSlack so no token they
// could invalidate outlives them.
type RevocationConfig struct {
	RecordSlack time.Duration
}

// RateLimitStrategy selects the limiter backend.
type RateLimitStrategy string

const (
	// StrategySliding is the Redis sliding-log limiter; cross-instance
	// accurate and the canonical semantics.
	StrategySliding RateLimitStrategy = "sliding"
	// StrategyFixed is the Redis fixed-window limiter; cheaper, with a
	// documented window-boundary overshoot.
	StrategyFixed RateLimitStrategy = "fixed"
	// StrategyMemory is the in-process fallback; accurate for a single
	// instance only.
	StrategyMemory RateLimitStrategy = "memory"
)

// RateLimitConfig defines tier quotas and the strategy that enforces
// them. AuthTier is the tier applied to credential-carrying endpoints
// (login, registration, reset, refresh), keyed by IP+identifier.
type RateLimitConfig struct {
	Strategy RateLimitStrategy
	Tiers    map[ratelimit.Tier]ratelimit.Limits
	AuthTier ratelimit.Tier
}

// CSRFConfig carries the double-submit secret and cookie attributes.
type CSRFConfig struct {
	Secret         []byte
	CookieName     string
	HeaderName     string
	CookiePath     string
	CookieDomain   string
	Secure         bool
	HTTPOnly       bool
	SameSite       http.SameSite
	MaxAge         time.Duration
	ExcludePaths   []string
	TrustedOrigins []string
	EnforceOrigin  bool
}

// PasswordConfig selects the hashing strategy. See package password for
// parameter semantics.
type PasswordConfig struct {
	Strategy    string // "argon2id" (default) or "bcrypt"
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	BcryptCost  int
}

// RBACConfig names the super role that bypasses all permission checks.
type RBACConfig struct {
	SuperRole string
}

// AuditConfig controls the async security-event dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig toggles the in-process counters.
type MetricsConfig struct {
	Enabled bool
}

// DefaultConfig returns a production-leaning preset. The JWT and CSRF
// secrets are intentionally absent; Build fails until they are set.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			SigningMethod: "hs256",
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    14 * 24 * time.Hour,
			Issuer:        "authgate",
			Leeway:        30 * time.Second,
		},
		Revocation: RevocationConfig{
			RecordSlack: time.Hour,
		},
		RateLimit: RateLimitConfig{
			Strategy: StrategySliding,
			Tiers:    ratelimit.DefaultTiers(),
			AuthTier: ratelimit.TierFree,
		},
		CSRF: CSRFConfig{
			CookieName: "csrf_token",
			HeaderName: "X-CSRF-Token",
			CookiePath: "/",
			Secure:     true,
			SameSite:   http.SameSiteLaxMode,
			MaxAge:     24 * time.Hour,
		},
		RBAC: RBACConfig{
			SuperRole: "super_admin",
		},
		Password: PasswordConfig{
			Strategy: "argon2id",
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		RedisPrefix: "ag",
	}
}

// Validate checks the cross-section constraints the subpackage
// constructors cannot see. Every failure wraps ErrConfiguration.
func (c *Config) Validate() error {
	if len(c.JWT.Secret) == 0 {
		return fmt.Errorf("%w: JWT secret required", ErrConfiguration)
	}
	if len(c.CSRF.Secret) == 0 {
		return fmt.Errorf("%w: CSRF secret required", ErrConfiguration)
	}
	if c.JWT.AccessTTL <= 0 || c.JWT.RefreshTTL <= 0 {
		return fmt.Errorf("%w: token TTLs must be positive", ErrConfiguration)
	}
	if c.Revocation.RecordSlack < 0 {
		return fmt.Errorf("%w: revocation record slack must not be negative", ErrConfiguration)
	}

	switch c.RateLimit.Strategy {
	case StrategySliding, StrategyFixed, StrategyMemory, "":
	default:
		return fmt.Errorf("%w: unknown rate limit strategy %q", ErrConfiguration, c.RateLimit.Strategy)
	}

	for tier, limits := range c.RateLimit.Tiers {
		if limits.PerMinute <= 0 || limits.PerHour <= 0 || limits.Burst < 0 {
			return fmt.Errorf("%w: invalid limits for tier %q", ErrConfiguration, tier)
		}
		if limits.PerHour < limits.PerMinute {
			return fmt.Errorf("%w: tier %q hour limit below minute limit", ErrConfiguration, tier)
		}
	}

	if c.RateLimit.AuthTier != "" && c.RateLimit.AuthTier != ratelimit.TierUnlimited {
		if _, ok := c.RateLimit.Tiers[c.RateLimit.AuthTier]; !ok {
			return fmt.Errorf("%w: auth tier %q not defined", ErrConfiguration, c.RateLimit.AuthTier)
		}
	}

	return nil
}

// revocationRecordTTL is the retention for family/user/tenant denylist
// records: the longest-lived token plus slack.
func (c *Config) revocationRecordTTL() time.Duration {
	return c.JWT.RefreshTTL + c.Revocation.RecordSlack
}
