package authgate

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"time"

	"github.com/fieldsense/authgate/csrf"
	internalaudit "github.com/fieldsense/authgate/internal/audit"
	"github.com/fieldsense/authgate/password"
	"github.com/fieldsense/authgate/ratelimit"
	"github.com/fieldsense/authgate/rbac"
	"github.com/fieldsense/authgate/revoke"
	"github.com/fieldsense/authgate/token"
)

// Engine composes the token codec, revocation authority, rate limiter,
// CSRF guard, and RBAC authority behind the request pipeline. It is
// constructed once by the Builder and shared by every guard; it holds
// no global state and no lazy initialization.
type Engine struct {
	config      Config
	codec       *token.Codec
	revocations *revoke.Authority
	limiter     ratelimit.Limiter
	csrfGuard   *csrf.Guard
	rbac        *rbac.Authority
	hasher      password.Hasher
	metrics     *Metrics
	audit       *internalaudit.Dispatcher
}

// RevokedError carries the matched denylist scope alongside ErrRevoked.
type RevokedError struct {
	Reason revoke.Reason
}

func (e *RevokedError) Error() string {
	return fmt.Sprintf("token revoked: %s", e.Reason)
}

// Unwrap makes errors.Is(err, ErrRevoked) hold.
func (e *RevokedError) Unwrap() error {
	return ErrRevoked
}

// IssuePair signs a fresh access+refresh pair for an authenticated
// login. The refresh token starts a new rotation family.
func (e *Engine) IssuePair(ctx context.Context, subject, tenantID string, roles, permissions []string) (*TokenPair, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	access, accessID, err := e.codec.IssueAccess(subject, tenantID, roles, permissions)
	if err != nil {
		return nil, err
	}

	refresh, refreshID, familyID, err := e.codec.IssueRefresh(subject, tenantID, roles, permissions, "")
	if err != nil {
		return nil, err
	}

	e.emit(ctx, internalaudit.Event{
		EventType: "token.issued",
		Subject:   subject,
		TenantID:  tenantID,
		TokenID:   accessID,
		FamilyID:  familyID,
		Allowed:   true,
	})

	return &TokenPair{
		AccessToken:  access,
		AccessID:     accessID,
		RefreshToken: refresh,
		RefreshID:    refreshID,
		FamilyID:     familyID,
	}, nil
}

// Authenticate decodes a bearer token and consults the revocation
// authority. On success it returns the Principal downstream handlers
// receive. Decode failures are ErrAuthenticationFailed; a denylist hit
// is a RevokedError; an unreachable revocation store fails open with an
// audit record, per the documented availability tradeoff.
func (e *Engine) Authenticate(ctx context.Context, raw string) (*Principal, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.codec.Decode(raw, true)
	if err != nil || claims.TokenType != token.TypeAccess {
		e.metrics.Inc(MetricAuthDenied)
		e.emit(ctx, internalaudit.Event{
			EventType: "auth.denied",
			IP:        ClientIPFromContext(ctx),
			Reason:    "invalid_token",
		})
		return nil, ErrAuthenticationFailed
	}

	if err := e.checkRevocation(ctx, claims); err != nil {
		return nil, err
	}

	e.metrics.Inc(MetricAuthAllowed)

	return &Principal{
		Subject:     claims.Subject,
		TenantID:    claims.TenantID,
		Roles:       claims.Roles,
		Permissions: claims.Permissions,
	}, nil
}

// RotateRefresh exchanges a refresh token for a new access token and a
// replacement refresh token in the same family. The pipeline order is
// decode, limiter, revocation (including the family scope), then pure
// rotation: the limiter key combines client address and subject, so the
// claims must be read before the quota check. A revoked family is how
// refresh-token theft surfaces, so that denial carries reason
// family_revoked.
func (e *Engine) RotateRefresh(ctx context.Context, rawRefresh string) (*TokenPair, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.codec.Decode(rawRefresh, false)
	if err != nil || claims.TokenType != token.TypeRefresh {
		e.metrics.Inc(MetricRotateDenied)
		return nil, ErrAuthenticationFailed
	}

	res, ok := e.checkRate(ctx, ratelimit.LoginKey(ClientIPFromContext(ctx), claims.Subject), e.authTier())
	if !ok {
		e.metrics.Inc(MetricRotateDenied)
		return nil, fmt.Errorf("%w: retry after %s", ErrRateLimited, res.RetryAfter)
	}

	if err := e.checkRevocation(ctx, claims); err != nil {
		e.metrics.Inc(MetricRotateDenied)
		return nil, err
	}

	access, accessID, err := e.codec.Rotate(rawRefresh)
	if err != nil {
		e.metrics.Inc(MetricRotateDenied)
		return nil, ErrAuthenticationFailed
	}

	refresh, refreshID, familyID, err := e.codec.IssueRefresh(
		claims.Subject, claims.TenantID, claims.Roles, claims.Permissions, claims.FamilyID,
	)
	if err != nil {
		e.metrics.Inc(MetricRotateDenied)
		return nil, err
	}

	e.metrics.Inc(MetricRotateSuccess)
	e.emit(ctx, internalaudit.Event{
		EventType: "token.rotated",
		Subject:   claims.Subject,
		TenantID:  claims.TenantID,
		TokenID:   accessID,
		FamilyID:  familyID,
		Allowed:   true,
	})

	return &TokenPair{
		AccessToken:  access,
		AccessID:     accessID,
		RefreshToken: refresh,
		RefreshID:    refreshID,
		FamilyID:     familyID,
	}, nil
}

// RevokeToken denylists one token id for its remaining lifetime.
func (e *Engine) RevokeToken(ctx context.Context, jti string, ttl time.Duration, reason string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if err := e.revocations.RevokeToken(ctx, jti, ttl, reason); err != nil {
		return err
	}
	e.metrics.Inc(MetricRevocationWritten)
	e.emit(ctx, internalaudit.Event{
		EventType: "revocation.token",
		TokenID:   jti,
		Reason:    reason,
	})
	return nil
}

// RevokeFamily denylists an entire refresh rotation lineage, the
// response to detected refresh-token reuse.
func (e *Engine) RevokeFamily(ctx context.Context, familyID, reason string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if err := e.revocations.RevokeFamily(ctx, familyID, reason); err != nil {
		return err
	}
	e.metrics.Inc(MetricRevocationWritten)
	e.emit(ctx, internalaudit.Event{
		EventType: "revocation.family",
		FamilyID:  familyID,
		Reason:    reason,
	})
	return nil
}

// RevokeAllForUser invalidates every token issued to subject before now.
func (e *Engine) RevokeAllForUser(ctx context.Context, subject string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if err := e.revocations.RevokeUser(ctx, subject); err != nil {
		return err
	}
	e.metrics.Inc(MetricRevocationWritten)
	e.emit(ctx, internalaudit.Event{
		EventType: "revocation.user",
		Subject:   subject,
	})
	return nil
}

// RevokeAllForTenant invalidates every token issued for the tenant
// before now.
func (e *Engine) RevokeAllForTenant(ctx context.Context, tenantID string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if err := e.revocations.RevokeTenant(ctx, tenantID); err != nil {
		return err
	}
	e.metrics.Inc(MetricRevocationWritten)
	e.emit(ctx, internalaudit.Event{
		EventType: "revocation.tenant",
		TenantID:  tenantID,
	})
	return nil
}

// CheckLoginRate meters credential-carrying endpoints. The key combines
// client address and claimed identity so one IP spraying many accounts
// and many IPs stuffing one account are both bounded. Store failures
// fail open.
func (e *Engine) CheckLoginRate(ctx context.Context, identifier string) ratelimit.Result {
	if e == nil {
		return ratelimit.Result{Allowed: true}
	}
	res, _ := e.checkRate(ctx, ratelimit.LoginKey(ClientIPFromContext(ctx), identifier), e.authTier())
	return res
}

// CheckRequestRate meters the generic request guard for the given tier,
// keyed by client address. Store failures fail open.
func (e *Engine) CheckRequestRate(ctx context.Context, tier ratelimit.Tier) ratelimit.Result {
	if e == nil {
		return ratelimit.Result{Allowed: true}
	}
	res, _ := e.checkRate(ctx, ratelimit.RequestKey(ClientIPFromContext(ctx)), tier)
	return res
}

// Can resolves an RBAC decision for the principal, considering held
// roles (with inheritance), token-embedded permissions, wildcards, and
// the super role.
func (e *Engine) Can(p *Principal, resource, action string) bool {
	if e == nil || p == nil {
		return false
	}

	direct := make([]rbac.Permission, 0, len(p.Permissions))
	for _, s := range p.Permissions {
		if perm, ok := rbac.ParsePermission(s); ok {
			direct = append(direct, perm)
		}
	}

	allowed := e.rbac.Can(p.Roles, direct, resource, action)
	if !allowed {
		e.metrics.Inc(MetricPermissionDenied)
	}
	return allowed
}

// VerifyAPIKey checks a service-to-service key in constant time.
func (e *Engine) VerifyAPIKey(key string) bool {
	if e == nil || key == "" {
		return false
	}
	for _, configured := range e.config.APIKeys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(configured)) == 1 {
			return true
		}
	}
	return false
}

// CSRFGuard exposes the double-submit guard for the middleware chain.
func (e *Engine) CSRFGuard() *csrf.Guard {
	if e == nil {
		return nil
	}
	return e.csrfGuard
}

// PasswordHasher exposes the configured credential hasher.
func (e *Engine) PasswordHasher() password.Hasher {
	if e == nil {
		return nil
	}
	return e.hasher
}

// MetricsSnapshot returns a copy of the counter block.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

// AuditDropped reports audit events lost to dispatcher backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// ValidateCSRF runs the double-submit checks for an unsafe-method
// request. Always fail-closed: there is no store behind it, so a denial
// is always a genuine mismatch.
func (e *Engine) ValidateCSRF(ctx context.Context, r *http.Request) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if err := e.csrfGuard.Validate(r); err != nil {
		e.metrics.Inc(MetricCSRFDenied)
		e.emit(ctx, internalaudit.Event{
			EventType: "csrf.rejected",
			IP:        ClientIPFromContext(ctx),
			Reason:    err.Error(),
		})
		return fmt.Errorf("%w: %v", ErrCSRFValidationFailed, err)
	}
	return nil
}

// EnsureCSRFCookie mints and sets the double-submit cookie when the
// request lacks a valid one. Minting never blocks a safe-method
// response; a failure (entropy exhaustion) is recorded on the audit
// stream so the missing cookie is diagnosable.
func (e *Engine) EnsureCSRFCookie(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	if e == nil {
		return
	}
	if err := e.csrfGuard.EnsureCookie(w, r); err != nil {
		e.emit(ctx, internalaudit.Event{
			EventType: "csrf.mint_failed",
			IP:        ClientIPFromContext(ctx),
			Metadata:  map[string]string{"error": err.Error()},
		})
	}
}

// Authorize is the error-returning form of Can for callers composing
// guard results.
func (e *Engine) Authorize(p *Principal, resource, action string) error {
	if !e.Can(p, resource, action) {
		return fmt.Errorf("%w: %s:%s", ErrInsufficientPermission, resource, action)
	}
	return nil
}

// Close drains the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// checkRevocation consults the shared denylist. Store errors engage the
// fail-open policy: the token is treated as not revoked and the event
// is recorded, trading confidentiality margin for availability during
// transient infrastructure failure.
func (e *Engine) checkRevocation(ctx context.Context, claims *token.Claims) error {
	revoked, reason, err := e.revocations.Check(
		ctx,
		claims.ID,
		claims.Subject,
		claims.TenantID,
		claims.FamilyID,
		claims.IssuedAt.Time,
	)
	if err != nil {
		e.failOpen(ctx, "revocation_store", err)
		return nil
	}
	if revoked {
		e.metrics.Inc(MetricRevokedDenied)
		e.emit(ctx, internalaudit.Event{
			EventType: "auth.revoked",
			Subject:   claims.Subject,
			TenantID:  claims.TenantID,
			TokenID:   claims.ID,
			FamilyID:  claims.FamilyID,
			Reason:    string(reason),
		})
		return &RevokedError{Reason: reason}
	}
	return nil
}

// checkRate runs one limiter check with fail-open on store errors.
// The bool is false only on a genuine quota denial.
func (e *Engine) checkRate(ctx context.Context, key string, tier ratelimit.Tier) (ratelimit.Result, bool) {
	res, err := e.limiter.Check(ctx, key, tier)
	if err != nil {
		e.failOpen(ctx, "ratelimit_store", err)
		return ratelimit.Result{Allowed: true, Remaining: -1, Limit: -1}, true
	}
	if !res.Allowed {
		e.metrics.Inc(MetricRateLimitDenied)
		e.emit(ctx, internalaudit.Event{
			EventType: "ratelimit.denied",
			IP:        ClientIPFromContext(ctx),
			Reason:    key,
		})
		return res, false
	}
	return res, true
}

func (e *Engine) failOpen(ctx context.Context, component string, err error) {
	e.metrics.Inc(MetricFailOpen)
	e.emit(ctx, internalaudit.Event{
		EventType: "store.fail_open",
		Reason:    component,
		Metadata:  map[string]string{"error": err.Error()},
	})
}

func (e *Engine) authTier() ratelimit.Tier {
	if e.config.RateLimit.AuthTier == "" {
		return ratelimit.TierFree
	}
	return e.config.RateLimit.AuthTier
}

func (e *Engine) emit(ctx context.Context, event internalaudit.Event) {
	if e.audit == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.TenantID == "" {
		event.TenantID = tenantIDFromContext(ctx)
	}
	e.audit.Emit(ctx, event)
}
