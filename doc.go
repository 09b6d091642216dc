// Package goSession keeps an authenticated session against a backend API from
// the client side.
//
// A [Client] attaches the current bearer token to outgoing requests, notices
// expiry from 401 responses and refreshes the token exactly once per expiry,
// however many requests failed at the same time. Requests that fail while a
// refresh is in flight wait for it and are replayed in arrival order. When the
// refresh itself fails every waiting caller gets [ErrRefreshFailed] and the
// session is logged out.
//
// Build a client once per process with [New] ... [Builder.Build] and share it;
// all methods are safe for concurrent use.
//
// # Architecture boundaries
//
// goSession is the public surface: [Client], [Builder], [Config],
// [SessionState] and the sentinel errors. Token storage lives in tokenstore,
// claims decoding in jwt, the refresh state machine in refresh and the
// credential-attaching RoundTripper in transport. Backend calls and flow
// orchestration live under internal/.
//
// # What this package must NOT do
//
//   - Keep package-level session state. Every client owns its own store,
//     coordinator and HTTP client.
//   - Treat decoded claims as proof of authenticity unless signed
//     verification is configured. The backend stays the authority.
//   - Return an error from Logout.
package goSession
