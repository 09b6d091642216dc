package jwt

import (
	"crypto/ed25519"
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod names the algorithm used to sign or verify access tokens.
type SigningMethod string

const (
	// MethodNone disables signature checks (advisory decoding only).
	MethodNone SigningMethod = ""
	// MethodEd25519 selects EdDSA over Ed25519 keys.
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 selects HMAC-SHA256 with a shared secret.
	MethodHS256 SigningMethod = "hs256"
)

func (m SigningMethod) method() jwt.SigningMethod {
	switch m {
	case MethodHS256:
		return jwt.SigningMethodHS256
	default:
		return jwt.SigningMethodEdDSA
	}
}

func signKey(m SigningMethod, key []byte) (interface{}, error) {
	switch m {
	case MethodHS256:
		if len(key) == 0 {
			return nil, errors.New("hs256 requires a secret")
		}
		return key, nil
	case MethodEd25519:
		return parseEdPrivateKey(key)
	default:
		return nil, errors.New("unsupported signing method")
	}
}

func verifyKey(m SigningMethod, key []byte) (interface{}, error) {
	switch m {
	case MethodHS256:
		if len(key) == 0 {
			return nil, errors.New("hs256 requires a secret")
		}
		return key, nil
	case MethodEd25519:
		return parseEdPublicKey(key)
	default:
		return nil, errors.New("unsupported signing method")
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
