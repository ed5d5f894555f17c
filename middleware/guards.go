package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	authgate "github.com/fieldsense/authgate"
	"github.com/fieldsense/authgate/ratelimit"
)

type principalContextKey struct{}

// PrincipalFromContext returns the authenticated principal injected by
// [Authenticate], or false when the request never passed it.
func PrincipalFromContext(ctx context.Context) (*authgate.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(*authgate.Principal)
	return p, ok
}

// RateLimit meters every request against the given tier, keyed by
// client address. Quota state is advertised on X-RateLimit-* headers;
// exhaustion is a 429 with retry_after.
func RateLimit(engine *authgate.Engine, tier ratelimit.Tier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				writeDeny(w, deny(http.StatusUnauthorized, CodeAuthenticationFailed, "engine not ready"))
				return
			}

			ctx := withClientIP(r)
			res := engine.CheckRequestRate(ctx, tier)
			setRateHeaders(w, res)

			if !res.Allowed {
				d := deny(http.StatusTooManyRequests, CodeRateLimited, "quota exceeded")
				d.RetryAfter = res.RetryAfter
				writeDeny(w, d)
				return
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// LoginRateLimit meters credential-carrying endpoints. The identifier
// function extracts the claimed identity (form field, JSON body already
// parsed upstream, or header) so the limiter key combines client
// address and account.
func LoginRateLimit(engine *authgate.Engine, identifier func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				writeDeny(w, deny(http.StatusUnauthorized, CodeAuthenticationFailed, "engine not ready"))
				return
			}

			ctx := withClientIP(r)
			res := engine.CheckLoginRate(ctx, identifier(r))
			setRateHeaders(w, res)

			if !res.Allowed {
				d := deny(http.StatusTooManyRequests, CodeRateLimited, "login attempts exceeded")
				d.RetryAfter = res.RetryAfter
				writeDeny(w, d)
				return
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CSRF enforces the double-submit contract. Safe methods pass through
// and receive a cookie when they lack a valid one; unsafe methods must
// present matching cookie and header tokens unless the guard's bypass
// rules apply. CSRF failures are always fail-closed.
func CSRF(engine *authgate.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			guard := engine.CSRFGuard()
			if guard == nil {
				writeDeny(w, deny(http.StatusForbidden, CodeCSRFFailed, "engine not ready"))
				return
			}

			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
				engine.EnsureCSRFCookie(withClientIP(r), w, r)
				next.ServeHTTP(w, r)
				return
			}

			if guard.Bypass(r) {
				next.ServeHTTP(w, r)
				return
			}

			if err := engine.ValidateCSRF(withClientIP(r), r); err != nil {
				writeDeny(w, deny(http.StatusForbidden, CodeCSRFFailed, "double-submit validation failed"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Authenticate resolves the caller's identity from Authorization:
// Bearer or X-API-Key and injects the Principal into the request
// context. API-key callers receive a service principal holding a direct
// wildcard permission.
func Authenticate(engine *authgate.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				writeDeny(w, deny(http.StatusUnauthorized, CodeAuthenticationFailed, "engine not ready"))
				return
			}

			ctx := withClientIP(r)

			if key := r.Header.Get("X-API-Key"); key != "" {
				if !engine.VerifyAPIKey(key) {
					writeDeny(w, deny(http.StatusUnauthorized, CodeAuthenticationFailed, "invalid api key"))
					return
				}
				ctx = context.WithValue(ctx, principalContextKey{}, &authgate.Principal{
					Subject:     "service",
					Permissions: []string{"*:*"},
				})
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			raw, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeDeny(w, deny(http.StatusUnauthorized, CodeAuthenticationFailed, "missing bearer token"))
				return
			}

			principal, err := engine.Authenticate(ctx, raw)
			if err != nil {
				var revoked *authgate.RevokedError
				if errors.As(err, &revoked) {
					writeDeny(w, deny(http.StatusUnauthorized, CodeRevoked, string(revoked.Reason)))
					return
				}
				writeDeny(w, deny(http.StatusUnauthorized, CodeAuthenticationFailed, "invalid token"))
				return
			}

			ctx = context.WithValue(ctx, principalContextKey{}, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Require denies the request unless the injected Principal holds the
// permission. Must run after [Authenticate].
func Require(engine *authgate.Engine, resource, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok {
				writeDeny(w, deny(http.StatusUnauthorized, CodeAuthenticationFailed, "no principal"))
				return
			}

			if err := engine.Authorize(principal, resource, action); err != nil {
				writeDeny(w, deny(http.StatusForbidden, CodePermissionDenied, resource+":"+action))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}

// withClientIP attaches the caller's address to the request context so
// the engine can key limiter counters and audit events on it. The first
// X-Forwarded-For hop wins when present; RemoteAddr otherwise.
func withClientIP(r *http.Request) context.Context {
	ctx := r.Context()
	if authgate.ClientIPFromContext(ctx) != "" {
		return ctx
	}
	return authgate.WithClientIP(ctx, clientIP(r))
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	if real := r.Header.Get("X-Real-IP"); real != "" {
		return real
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
