package authgate

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/fieldsense/authgate/csrf"
	internalaudit "github.com/fieldsense/authgate/internal/audit"
	"github.com/fieldsense/authgate/password"
	"github.com/fieldsense/authgate/ratelimit"
	"github.com/fieldsense/authgate/rbac"
	"github.com/fieldsense/authgate/revoke"
	"github.com/fieldsense/authgate/token"
)

// RoleSpec declares one role for the Builder: its direct permissions
// and the roles it inherits from.
type RoleSpec struct {
	Permissions []rbac.Permission
	Parents     []string
}

// Builder assembles an Engine from explicit parts. Nothing here is
// lazily initialized and nothing is global: the built Engine is passed
// by reference to every guard (and to tests, with fakes behind it).
type Builder struct {
	config Config
	redis  redis.UniversalClient

	permissions []rbac.Permission
	roles       map[string]RoleSpec

	auditSink AuditSink

	built bool
}

// New creates a Builder preloaded with DefaultConfig.
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

// WithConfig replaces the entire configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis sets the shared-store client used by the revocation
// authority and the distributed rate limiter strategies.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithPermissions declares the grantable permission set.
func (b *Builder) WithPermissions(perms []rbac.Permission) *Builder {
	b.permissions = perms
	return b
}

// WithRoles declares the role hierarchy.
func (b *Builder) WithRoles(roles map[string]RoleSpec) *Builder {
	b.roles = roles
	return b
}

// WithAuditSink sets the destination for security events.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates configuration and wires every component. All
// misconfiguration surfaces here as ErrConfiguration; after Build
// succeeds no per-request path can hit a config problem.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// The memory limiter strategy needs no store, but the revocation
	// authority always does.
	if b.redis == nil {
		return nil, fmt.Errorf("%w: redis client required for the revocation authority", ErrConfiguration)
	}

	codec, err := token.NewCodec(token.Config{
		Secret:        cfg.JWT.Secret,
		SigningMethod: token.SigningMethod(cfg.JWT.SigningMethod),
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	revocations, err := revoke.NewAuthority(b.redis, cfg.RedisPrefix+":rv", cfg.revocationRecordTTL())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	var limiter ratelimit.Limiter
	switch cfg.RateLimit.Strategy {
	case StrategyFixed:
		limiter = ratelimit.NewRedisFixed(b.redis, cfg.RedisPrefix+":rl", cfg.RateLimit.Tiers)
	case StrategyMemory:
		limiter = ratelimit.NewMemory(cfg.RateLimit.Tiers)
	default:
		limiter = ratelimit.NewRedisSliding(b.redis, cfg.RedisPrefix+":rl", cfg.RateLimit.Tiers)
	}

	guard, err := csrf.NewGuard(csrf.Config{
		Secret:         cfg.CSRF.Secret,
		CookieName:     cfg.CSRF.CookieName,
		HeaderName:     cfg.CSRF.HeaderName,
		CookiePath:     cfg.CSRF.CookiePath,
		CookieDomain:   cfg.CSRF.CookieDomain,
		Secure:         cfg.CSRF.Secure,
		HTTPOnly:       cfg.CSRF.HTTPOnly,
		SameSite:       sameSiteOrDefault(cfg.CSRF.SameSite),
		MaxAge:         cfg.CSRF.MaxAge,
		ExcludePaths:   cfg.CSRF.ExcludePaths,
		TrustedOrigins: cfg.CSRF.TrustedOrigins,
		EnforceOrigin:  cfg.CSRF.EnforceOrigin,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	authority := rbac.NewAuthority(cfg.RBAC.SuperRole)
	for _, p := range b.permissions {
		if err := authority.RegisterPermission(p.Resource, p.Action); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
		}
	}
	if err := registerRoles(authority, b.roles); err != nil {
		return nil, err
	}

	hasher, err := password.New(password.Config{
		Strategy:    password.Strategy(cfg.Password.Strategy),
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
		BcryptCost:  cfg.Password.BcryptCost,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	engine := &Engine{
		config:      cfg,
		codec:       codec,
		revocations: revocations,
		limiter:     limiter,
		csrfGuard:   guard,
		rbac:        authority,
		hasher:      hasher,
		metrics:     NewMetrics(cfg.Metrics),
		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditSink),
	}

	b.built = true

	return engine, nil
}

// registerRoles handles arbitrary declaration order: a role whose
// parent is not yet registered is retried on the next pass. No progress
// with roles remaining means a missing or cyclic parent.
func registerRoles(authority *rbac.Authority, roles map[string]RoleSpec) error {
	pending := make(map[string]RoleSpec, len(roles))
	for name, spec := range roles {
		pending[name] = spec
	}

	for len(pending) > 0 {
		progressed := false

		for name, spec := range pending {
			ready := true
			for _, parent := range spec.Parents {
				if !authority.HasRole(parent) {
					ready = false
					break
				}
			}
			if !ready {
				continue
			}

			if err := authority.RegisterRole(name, spec.Permissions, spec.Parents...); err != nil {
				return fmt.Errorf("%w: %v", ErrConfiguration, err)
			}
			delete(pending, name)
			progressed = true
		}

		if !progressed {
			names := make([]string, 0, len(pending))
			for name := range pending {
				names = append(names, name)
			}
			return fmt.Errorf("%w: unresolvable role parents for %v", ErrConfiguration, names)
		}
	}

	return nil
}

func sameSiteOrDefault(s http.SameSite) http.SameSite {
	if s == 0 {
		return http.SameSiteLaxMode
	}
	return s
}
