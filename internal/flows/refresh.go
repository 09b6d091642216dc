package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/goSession/jwt"
)

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	Call     func(ctx context.Context) (string, error)
	Verifier Verifier
}

// RefreshResult carries the new token or failure metadata. Installing the
// token is left to the caller so the refresh coordinator controls ordering.
type RefreshResult struct {
	Failure FailureKind
	Err     error
	Token   string
	Claims  *jwt.Claims
}

// RunRefresh calls the refresh endpoint and verifies the returned token.
func RunRefresh(ctx context.Context, deps RefreshDeps) RefreshResult {
	token, err := deps.Call(ctx)
	if err != nil {
		return RefreshResult{Failure: Classify(err), Err: err}
	}

	res := deps.Verifier.Verify(token)
	if !res.Valid {
		return RefreshResult{Failure: FailureToken, Err: errors.New("refreshed token failed verification")}
	}
	return RefreshResult{Token: token, Claims: res.Claims}
}
