// Package token implements the signed bearer token codec: issuance of
// access and refresh tokens, verification, and pure rotation. The codec
// holds no shared state and performs no I/O.
package token
