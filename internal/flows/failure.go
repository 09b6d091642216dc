package flows

import (
	"context"
	"errors"
	"net/http"

	"github.com/MrEthical07/goSession/internal/api"
)

// FailureKind classifies flow failures for root-level mapping.
type FailureKind int

const (
	FailureNone FailureKind = iota
	// FailureInput means the caller passed unusable arguments.
	FailureInput
	// FailureRejected means the backend answered 4xx.
	FailureRejected
	// FailureStatus means the backend answered with an unexpected status.
	FailureStatus
	// FailureTransport means no response was received.
	FailureTransport
	// FailureMalformed means a 2xx response carried no usable token.
	FailureMalformed
	// FailureToken means the issued token failed claims verification.
	FailureToken
)

func (k FailureKind) String() string {
	switch k {
	case FailureNone:
		return "none"
	case FailureInput:
		return "input"
	case FailureRejected:
		return "rejected"
	case FailureStatus:
		return "status"
	case FailureTransport:
		return "transport"
	case FailureMalformed:
		return "malformed"
	case FailureToken:
		return "token"
	default:
		return "unknown"
	}
}

// Classify maps a backend client error onto a FailureKind.
func Classify(err error) FailureKind {
	if err == nil {
		return FailureNone
	}
	var se *api.StatusError
	switch {
	case errors.As(err, &se):
		if se.Status >= http.StatusBadRequest && se.Status < http.StatusInternalServerError {
			return FailureRejected
		}
		return FailureStatus
	case errors.Is(err, api.ErrMalformedResponse):
		return FailureMalformed
	case errors.Is(err, api.ErrTransport),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return FailureTransport
	default:
		return FailureTransport
	}
}
