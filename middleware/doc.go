// Package middleware exposes the HTTP guard chain built on top of
// authgate.Engine: rate limiting, CSRF double-submit enforcement,
// bearer/API-key authentication, and RBAC permission checks, composed
// in that fixed order by [Protect].
//
// # Guards
//
//   - [RateLimit] — tiered quota check keyed by client address.
//   - [CSRF] — double-submit cookie enforcement for unsafe methods.
//   - [Authenticate] — Authorization: Bearer or X-API-Key validation,
//     including the revocation check; injects the Principal into the
//     request context.
//   - [Require] — RBAC permission check against the injected Principal.
//
// Each guard translates its outcome into a Decision; denials are
// rendered as a JSON body with a stable machine code and bilingual
// message, never as cryptographic detail.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement authentication, limiting, or authorization logic itself —
// all decisions are delegated to the Engine and its components.
package middleware
