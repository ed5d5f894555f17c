package authgate

import "errors"

var (
	// ErrAuthenticationFailed covers missing, malformed, expired, and
	// wrongly-signed tokens. Callers get one taxonomy value, never
	// cryptographic detail, and nothing behind it is retryable.
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrRevoked means a valid token was denylisted at token, family,
	// user, or tenant scope.
	ErrRevoked = errors.New("token revoked")
	// ErrInsufficientPermission is the RBAC denial.
	ErrInsufficientPermission = errors.New("insufficient permission")
	// ErrRateLimited means a quota was exceeded; retryable after the
	// reported retry_after.
	ErrRateLimited = errors.New("rate limited")
	// ErrCSRFValidationFailed is the single double-submit denial.
	ErrCSRFValidationFailed = errors.New("csrf validation failed")
	// ErrConfiguration marks misconfiguration detected at Build time.
	// It is fatal at startup and never surfaces per request.
	ErrConfiguration = errors.New("configuration error")
	// ErrEngineNotReady is returned when a nil or unbuilt engine is used.
	ErrEngineNotReady = errors.New("engine not initialized")
)
