// Package api speaks the backend's session endpoints: login, refresh and
// logout. It knows the wire format and nothing about token storage or the
// refresh state machine.
//
// # What this package must NOT do
//
//   - Send requests through the coordinated transport. A refresh call that
//     itself returned 401 would otherwise queue behind its own episode.
//   - Import goSession.
package api
