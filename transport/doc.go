// Package transport provides the http.RoundTripper that attaches the current
// access token to outgoing requests and hands 401 responses to the refresh
// coordinator.
//
// Requests that already carry an Authorization header are sent unchanged and
// never coordinated. Replayed requests are marked through their context (see
// [WithRetried]) so a second 401 is returned to the caller instead of starting
// another refresh.
package transport
