// Package refresh coordinates access-token refresh across concurrent requests.
//
// # State machine
//
// A [Coordinator] is either Idle or Refreshing. The first request that fails
// with 401 while Idle becomes the episode leader: it moves the coordinator to
// Refreshing and calls the refresh endpoint once. Requests that fail while
// Refreshing are queued as waiters. When the episode resolves, the leader's
// request is replayed first and waiters are replayed in FIFO order with the
// new token; on failure the session is logged out and every caller, waiters
// included, receives [ErrRefreshFailed].
//
// A request already replayed once is never refreshed again.
//
// # What this package must NOT do
//
//   - Read or write the token store directly; callers inject Install and
//     ForceLogout.
//   - Import goSession or transport.
package refresh
