package revoke

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps any shared-store failure. The caller decides
// the fail-open/fail-closed policy; this package only reports honestly.
var ErrRedisUnavailable = errors.New("redis unavailable")

// Reason identifies which denylist scope matched a token.
type Reason string

const (
	// ReasonNone means no revocation record matched.
	ReasonNone Reason = ""
	// ReasonTokenRevoked means the exact jti is denylisted.
	ReasonTokenRevoked Reason = "token_revoked"
	// ReasonFamilyRevoked means the refresh rotation lineage is denylisted.
	ReasonFamilyRevoked Reason = "family_revoked"
	// ReasonUserTokensRevoked means a user-level cutoff postdates the token.
	ReasonUserTokensRevoked Reason = "user_tokens_revoked"
	// ReasonTenantTokensRevoked means a tenant-level cutoff postdates the token.
	ReasonTenantTokensRevoked Reason = "tenant_tokens_revoked"
)

// Authority is the shared, TTL-bounded denylist consulted after a token
// decodes successfully. Records live in Redis so every service instance
// sees the same security decisions.
type Authority struct {
	redis     redis.UniversalClient
	prefix    string
	recordTTL time.Duration
}

// NewAuthority creates an Authority on the given Redis client. prefix
// namespaces all keys; recordTTL bounds how long family/user/tenant
// records are retained and must exceed the longest-lived token type,
// or an old token could be wrongly trusted after the store forgets
// the record.
func NewAuthority(client redis.UniversalClient, prefix string, recordTTL time.Duration) (*Authority, error) {
	if client == nil {
		return nil, errors.New("redis client required")
	}
	if prefix == "" {
		prefix = "rv"
	}
	if recordTTL <= 0 {
		return nil, errors.New("record TTL must be positive")
	}

	return &Authority{
		redis:     client,
		prefix:    prefix,
		recordTTL: recordTTL,
	}, nil
}

func (a *Authority) tokenKey(jti string) string {
	return a.prefix + ":t:" + jti
}

func (a *Authority) familyKey(familyID string) string {
	return a.prefix + ":f:" + familyID
}

func (a *Authority) userKey(subject string) string {
	return a.prefix + ":u:" + subject
}

func (a *Authority) tenantKey(tenantID string) string {
	return a.prefix + ":n:" + tenantID
}

// Check evaluates the four scopes in order: exact jti, family, user
// cutoff, tenant cutoff. Cheapest and most specific first, short-circuit
// on the first match. A store error is returned as ErrRedisUnavailable
// with revoked=false; the engine applies the documented fail-open policy.
func (a *Authority) Check(
	ctx context.Context,
	jti, subject, tenantID, familyID string,
	issuedAt time.Time,
) (bool, Reason, error) {
	hit, err := a.exists(ctx, a.tokenKey(jti))
	if err != nil {
		return false, ReasonNone, err
	}
	if hit {
		return true, ReasonTokenRevoked, nil
	}

	if familyID != "" {
		hit, err = a.exists(ctx, a.familyKey(familyID))
		if err != nil {
			return false, ReasonNone, err
		}
		if hit {
			return true, ReasonFamilyRevoked, nil
		}
	}

	if subject != "" {
		covered, err := a.cutoffCovers(ctx, a.userKey(subject), issuedAt)
		if err != nil {
			return false, ReasonNone, err
		}
		if covered {
			return true, ReasonUserTokensRevoked, nil
		}
	}

	if tenantID != "" {
		covered, err := a.cutoffCovers(ctx, a.tenantKey(tenantID), issuedAt)
		if err != nil {
			return false, ReasonNone, err
		}
		if covered {
			return true, ReasonTenantTokensRevoked, nil
		}
	}

	return false, ReasonNone, nil
}

// RevokeToken denylists one jti. ttl should be the token's remaining
// lifetime: the record only needs to outlive the token it invalidates.
func (a *Authority) RevokeToken(ctx context.Context, jti string, ttl time.Duration, reason string) error {
	if jti == "" {
		return errors.New("jti required")
	}
	if ttl <= 0 {
		ttl = a.recordTTL
	}
	if reason == "" {
		reason = "revoked"
	}

	if err := a.redis.Set(ctx, a.tokenKey(jti), reason, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// RevokeFamily denylists an entire refresh rotation lineage. This is the
// refresh-token-theft response: any token sharing the family becomes
// invalid at once.
func (a *Authority) RevokeFamily(ctx context.Context, familyID string, reason string) error {
	if familyID == "" {
		return errors.New("family id required")
	}
	if reason == "" {
		reason = "family_revoked"
	}

	if err := a.redis.Set(ctx, a.familyKey(familyID), reason, a.recordTTL).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// RevokeUser invalidates every token for subject issued before now.
func (a *Authority) RevokeUser(ctx context.Context, subject string) error {
	if subject == "" {
		return errors.New("subject required")
	}

	cutoff := strconv.FormatInt(time.Now().Unix(), 10)
	if err := a.redis.Set(ctx, a.userKey(subject), cutoff, a.recordTTL).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// RevokeTenant invalidates every token for the tenant issued before now.
func (a *Authority) RevokeTenant(ctx context.Context, tenantID string) error {
	if tenantID == "" {
		return errors.New("tenant id required")
	}

	cutoff := strconv.FormatInt(time.Now().Unix(), 10)
	if err := a.redis.Set(ctx, a.tenantKey(tenantID), cutoff, a.recordTTL).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (a *Authority) exists(ctx context.Context, key string) (bool, error) {
	n, err := a.redis.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n > 0, nil
}

func (a *Authority) cutoffCovers(ctx context.Context, key string, issuedAt time.Time) (bool, error) {
	raw, err := a.redis.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	cutoff, parseErr := strconv.ParseInt(raw, 10, 64)
	if parseErr != nil {
		// Corrupt record: treat as covering everything rather than
		// trusting a token we cannot place relative to the cutoff.
		return true, nil
	}

	return cutoff >= issuedAt.Unix(), nil
}
