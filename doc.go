// Package authgate provides the authentication and access-control layer
// for multi-instance HTTP services: JWT access/refresh tokens with
// rotation families, a Redis-backed four-scope revocation denylist,
// tiered distributed rate limiting, double-submit CSRF protection, and
// hierarchical RBAC with wildcard permissions.
//
// The package is designed for concurrent server workloads: Engine
// methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// authgate is the public surface. It exposes [Engine], [Builder],
// [Config], and value types (Principal, TokenPair, MetricsSnapshot).
// Component logic lives in the token, revoke, ratelimit, csrf, rbac,
// and password subpackages; the HTTP guard chain lives in middleware.
// Audit dispatch is internal and reachable only through sink types
// re-exported here.
//
// # Failure policy
//
// Misconfiguration is fatal at Build, never per request. Per-request
// denials carry a stable machine code and are never retried. A shared
// store that cannot be reached fails OPEN for revocation and rate
// limiting (availability) and is impossible for CSRF and RBAC, which
// hold no infrastructure dependency and always fail closed.
package authgate
