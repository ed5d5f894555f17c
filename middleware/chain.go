package middleware

import (
	"net/http"

	authgate "github.com/fieldsense/authgate"
	"github.com/fieldsense/authgate/ratelimit"
)

// Chain composes middlewares left to right: the first argument is the
// outermost guard.
func Chain(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

// Protect wraps a handler in the full guard chain in its fixed order:
// rate limit, CSRF, authentication (bearer or API key, including the
// revocation check), then the RBAC permission requirement.
func Protect(engine *authgate.Engine, tier ratelimit.Tier, resource, action string) func(http.Handler) http.Handler {
	return Chain(
		RateLimit(engine, tier),
		CSRF(engine),
		Authenticate(engine),
		Require(engine, resource, action),
	)
}

// Public wraps a handler in the unauthenticated portion of the chain:
// rate limit and CSRF only. Login, registration, and similar endpoints
// add [LoginRateLimit] with their identifier extractor.
func Public(engine *authgate.Engine, tier ratelimit.Tier) func(http.Handler) http.Handler {
	return Chain(
		RateLimit(engine, tier),
		CSRF(engine),
	)
}
