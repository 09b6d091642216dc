package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// VerifierConfig configures a [Verifier].
//
// With SigningMethod left as [MethodNone] the verifier only decodes claims.
// Setting a method together with VerifyKey (or VerifyKeys) turns on signature,
// issuer and audience checks.
type VerifierConfig struct {
	SigningMethod SigningMethod
	VerifyKey     []byte
	VerifyKeys    map[string][]byte
	Issuer        string
	Audience      string
	Now           func() time.Time
}

// Result is the outcome of [Verifier.Verify].
//
// Malformed and expired tokens both yield Valid=false with nil Claims; callers
// cannot tell the two apart from a Result alone.
type Result struct {
	Valid  bool
	Claims *Claims
}

// Verifier decodes access-token claims and reports whether they are
// structurally valid and unexpired. It is safe for concurrent use.
type Verifier struct {
	config VerifierConfig
	now    func() time.Time
	parser *jwt.Parser
}

// NewVerifier validates cfg and returns a ready [Verifier].
func NewVerifier(cfg VerifierConfig) (*Verifier, error) {
	v := &Verifier{config: cfg, now: cfg.Now}
	if v.now == nil {
		v.now = time.Now
	}

	switch cfg.SigningMethod {
	case MethodNone:
		v.parser = jwt.NewParser()
		return v, nil
	case MethodEd25519, MethodHS256:
	default:
		return nil, fmt.Errorf("unsupported signing method %q", cfg.SigningMethod)
	}

	if len(cfg.VerifyKey) == 0 && len(cfg.VerifyKeys) == 0 {
		return nil, errors.New("signed verification requires a verify key")
	}
	if len(cfg.VerifyKey) > 0 {
		if _, err := verifyKey(cfg.SigningMethod, cfg.VerifyKey); err != nil {
			return nil, err
		}
	}
	for kid, key := range cfg.VerifyKeys {
		if strings.TrimSpace(kid) == "" {
			return nil, errors.New("verify key map contains empty kid")
		}
		if _, err := verifyKey(cfg.SigningMethod, key); err != nil {
			return nil, fmt.Errorf("invalid verify key for kid %q: %w", kid, err)
		}
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{cfg.SigningMethod.method().Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	}
	if cfg.Issuer != "" {
		options = append(options, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		options = append(options, jwt.WithAudience(cfg.Audience))
	}
	v.parser = jwt.NewParser(options...)

	return v, nil
}

// Signed reports whether the verifier checks signatures.
func (v *Verifier) Signed() bool {
	return v != nil && v.config.SigningMethod != MethodNone
}

// Verify decodes token and reports whether it is well-formed and unexpired.
//
// A token is valid iff it decodes into [Claims] with a subject and expiry and
// the expiry is strictly after the verifier's clock. In signed mode the
// signature must also check out.
func (v *Verifier) Verify(token string) Result {
	if v == nil || token == "" {
		return Result{}
	}

	claims, err := v.decode(token)
	if err != nil || !claims.wellFormed() {
		return Result{}
	}
	if !claims.ExpiresAt.Time.After(v.now()) {
		return Result{}
	}

	return Result{Valid: true, Claims: claims}
}

// Decode returns the embedded claims without the expiry check. Proactive
// refresh uses it to read the expiry of a token that is about to lapse.
func (v *Verifier) Decode(token string) (*Claims, error) {
	if v == nil {
		return nil, errors.New("nil verifier")
	}
	claims, err := v.decode(token)
	if err != nil {
		return nil, err
	}
	if !claims.wellFormed() {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

func (v *Verifier) decode(token string) (*Claims, error) {
	claims := &Claims{}
	if !v.Signed() {
		if _, _, err := v.parser.ParseUnverified(token, claims); err != nil {
			return nil, err
		}
		return claims, nil
	}

	parsed, err := v.parser.ParseWithClaims(token, claims, v.keyFunc)
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

func (v *Verifier) keyFunc(t *jwt.Token) (interface{}, error) {
	if t.Method.Alg() != v.config.SigningMethod.method().Alg() {
		return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
	}

	if len(v.config.VerifyKeys) > 0 {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("missing kid")
		}
		key, ok := v.config.VerifyKeys[kid]
		if !ok {
			return nil, errors.New("unknown kid")
		}
		return verifyKey(v.config.SigningMethod, key)
	}

	return verifyKey(v.config.SigningMethod, v.config.VerifyKey)
}
