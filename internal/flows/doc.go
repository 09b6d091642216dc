// Package flows contains pure-function orchestrators for the session
// operations: login, refresh and logout.
//
// Each flow function (RunLogin, RunRefresh, RunLogout) accepts a typed
// dependency struct and returns a result carrying a [FailureKind], which the
// root package maps onto its public sentinel errors.
//
// # Architecture boundaries
//
// Flows coordinate the backend client, the claims verifier and the token
// store. They do NOT own any of these resources; ownership stays with the
// session Client. The refresh state machine lives in package refresh and only
// calls RunRefresh through an injected function.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goSession (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency functions.
package flows
