// Package csrf implements double-submit-cookie protection with
// HMAC-signed, age-bounded tokens for cookie-authenticated,
// state-changing requests. Bearer-authenticated API traffic bypasses
// the guard.
package csrf
