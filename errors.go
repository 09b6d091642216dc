package goSession

import (
	"errors"

	"github.com/MrEthical07/goSession/refresh"
)

var (
	// ErrInvalidCredentials means the backend rejected a login, or the
	// identifier or secret was empty.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthenticated means a protected request still answered 401 after
	// the session had its chance to refresh.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrRefreshFailed means the refresh endpoint rejected or could not be
	// reached. The session has been logged out when this is returned.
	ErrRefreshFailed = refresh.ErrRefreshFailed
	// ErrTransport means no response was received from the backend.
	ErrTransport = errors.New("transport failure")
	// ErrUnexpectedStatus means the backend answered with a status the
	// operation does not handle.
	ErrUnexpectedStatus = errors.New("unexpected status")
	// ErrTokenInvalid means the backend issued a token that does not decode
	// into the expected claims.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrClientNotReady is returned by every operation after Close.
	ErrClientNotReady = errors.New("client not ready")
)
