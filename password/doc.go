// Package password provides the credential hash/verify contract: one
// strategy (argon2id or bcrypt) selected and validated at startup, with
// verification dispatching on the format tag stored in the hash.
package password
