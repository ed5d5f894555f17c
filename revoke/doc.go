// Package revoke implements the shared revocation authority: a
// TTL-bounded denylist keyed by token id, refresh family, user cutoff,
// and tenant cutoff, consulted after a token decodes successfully.
package revoke
