// Package fakebackend is an in-process implementation of the backend contract
// the session client expects: password login, cookie-based refresh with
// rotation, logout and a protected API. Tests, the load test and the example
// run against it.
//
// It exposes switches to make refresh fail or stall and counters for each
// endpoint, so callers can assert how many refresh calls a scenario made.
package fakebackend
