package jwt

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the claim set carried by access tokens.
//
// The subject id travels in the registered "sub" claim and the expiry in
// "exp"; both are required for a token to be considered well-formed.
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	OrgID string `json:"org_id,omitempty"`
	jwt.RegisteredClaims
}

// Identity is the user-facing part of [Claims] used when minting tokens.
type Identity struct {
	SubjectID string
	Email     string
	Role      string
	OrgID     string
}

// SubjectID returns the "sub" claim.
func (c *Claims) SubjectID() string {
	if c == nil {
		return ""
	}
	return c.Subject
}

// Expiry returns the "exp" claim, or the zero time when absent.
func (c *Claims) Expiry() time.Time {
	if c == nil || c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// Identity returns the identity portion of the claims.
func (c *Claims) Identity() Identity {
	if c == nil {
		return Identity{}
	}
	return Identity{
		SubjectID: c.Subject,
		Email:     c.Email,
		Role:      c.Role,
		OrgID:     c.OrgID,
	}
}

func (c *Claims) wellFormed() bool {
	return c != nil && c.Subject != "" && c.ExpiresAt != nil
}
