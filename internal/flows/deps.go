package flows

import "github.com/MrEthical07/goSession/jwt"

// Deps groups flow dependency sets. The root client builds this once and
// delegates each operation to the matching flow.
type Deps struct {
	Login   LoginDeps
	Refresh RefreshDeps
	Logout  LogoutDeps
}

// Verifier checks a token's claims.
type Verifier interface {
	Verify(token string) jwt.Result
}
