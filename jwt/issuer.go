package jwt

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// IssuerConfig configures an [Issuer].
type IssuerConfig struct {
	SigningMethod SigningMethod
	PrivateKey    []byte
	TTL           time.Duration
	Issuer        string
	Audience      string
	KeyID         string
	Now           func() time.Time
}

// Issuer signs access tokens in the [Claims] shape. The client never needs
// one; demo backends, the load test and tests do.
type Issuer struct {
	config IssuerConfig
	key    interface{}
	now    func() time.Time
}

// NewIssuer validates cfg and parses the signing key once.
func NewIssuer(cfg IssuerConfig) (*Issuer, error) {
	if cfg.TTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.SigningMethod == MethodNone {
		return nil, errors.New("issuer requires a signing method")
	}
	key, err := signKey(cfg.SigningMethod, cfg.PrivateKey)
	if err != nil {
		return nil, err
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	i := &Issuer{config: cfg, key: key, now: cfg.Now}
	if i.now == nil {
		i.now = time.Now
	}
	return i, nil
}

// Issue mints a token for id that expires after the configured TTL.
func (i *Issuer) Issue(id Identity) (string, error) {
	return i.IssueUntil(id, i.now().Add(i.config.TTL))
}

// IssueUntil mints a token for id with an explicit expiry. Tests use it to
// produce already-expired tokens.
func (i *Issuer) IssueUntil(id Identity, expiresAt time.Time) (string, error) {
	if i == nil {
		return "", errors.New("nil issuer")
	}
	if id.SubjectID == "" {
		return "", errors.New("subject id required")
	}

	now := i.now()
	claims := Claims{
		Email: id.Email,
		Role:  id.Role,
		OrgID: id.OrgID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   id.SubjectID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    i.config.Issuer,
		},
	}
	if i.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{i.config.Audience}
	}

	token := jwt.NewWithClaims(i.config.SigningMethod.method(), claims)
	if i.config.KeyID != "" {
		token.Header["kid"] = i.config.KeyID
	}
	return token.SignedString(i.key)
}
