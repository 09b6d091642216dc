// Package jwt decodes the claims embedded in backend-issued access tokens and,
// for demo backends and tests, mints tokens in the same shape.
//
// # Trust model
//
// [Verifier] runs in advisory mode by default: it reads the embedded claims
// with [github.com/golang-jwt/jwt/v5] without checking the signature. A positive
// result drives UI session state only; the backend enforces signatures on every
// request. Signed mode is opt-in and requires distributing a verify key.
//
// # What this package must NOT do
//
//   - Perform network I/O.
//   - Import goSession, tokenstore, or refresh.
//   - Treat an advisory result as proof of authenticity.
package jwt
