package flows

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/goSession/jwt"
)

var (
	errMissingIdentifier = errors.New("identifier is required")
	errMissingSecret     = errors.New("secret is required")
)

// LoginDeps captures login flow dependencies.
type LoginDeps struct {
	Call     func(ctx context.Context, identifier, secret string) (string, error)
	Verifier Verifier
	Install  func(ctx context.Context, token string)
}

// LoginResult carries the installed token and its claims, or failure metadata.
type LoginResult struct {
	Failure FailureKind
	Err     error
	Token   string
	Claims  *jwt.Claims
}

// RunLogin exchanges credentials for a token and installs it. A token that
// fails verification is never installed.
func RunLogin(ctx context.Context, identifier, secret string, deps LoginDeps) LoginResult {
	if strings.TrimSpace(identifier) == "" {
		return LoginResult{Failure: FailureInput, Err: errMissingIdentifier}
	}
	if secret == "" {
		return LoginResult{Failure: FailureInput, Err: errMissingSecret}
	}

	token, err := deps.Call(ctx, identifier, secret)
	if err != nil {
		return LoginResult{Failure: Classify(err), Err: err}
	}

	res := deps.Verifier.Verify(token)
	if !res.Valid {
		return LoginResult{Failure: FailureToken, Err: errors.New("issued token failed verification")}
	}

	deps.Install(ctx, token)
	return LoginResult{Token: token, Claims: res.Claims}
}
