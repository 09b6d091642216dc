// Package tokenstore holds the current access token and persists it so a
// restarted process resumes its session.
//
// # Concurrency
//
// Readers load the token through an atomic pointer and never observe a torn
// value. Writers (login, refresh, logout) serialise on a mutex, and change
// listeners run under that mutex so they see writes in order.
//
// # Persistence
//
// A [Persister] is optional. When it fails, the store logs the failure and
// keeps operating in memory; persistence errors are never fatal.
//
// # What this package must NOT do
//
//   - Decode or validate tokens.
//   - Import goSession, jwt, or refresh.
package tokenstore
