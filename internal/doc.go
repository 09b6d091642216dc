// Package internal holds the parts of goSession that are not public API.
//
// # Sub-packages
//
//   - api: the session endpoint client (login, refresh, logout)
//   - audit: async event dispatch (Dispatcher and Sink implementations)
//   - fakebackend: an in-process backend with cookie refresh sessions, used by
//     tests, the load test and the example
//   - flows: the login, refresh and logout flows, written against Deps structs
package internal
