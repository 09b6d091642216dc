package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

func newEdKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	return pub, priv
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func newTestIssuer(t *testing.T, priv ed25519.PrivateKey, now func() time.Time) *Issuer {
	t.Helper()
	iss, err := NewIssuer(IssuerConfig{
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		TTL:           time.Hour,
		Issuer:        "api",
		Now:           now,
	})
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	return iss
}

var alice = Identity{SubjectID: "u-1", Email: "alice@example.com", Role: "admin", OrgID: "org-9"}

func TestVerifyValidTokenReturnsEmbeddedClaims(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	_, priv := newEdKeys(t)
	iss := newTestIssuer(t, priv, fixedClock(now))

	token, err := iss.IssueUntil(alice, now.Add(3600*time.Second))
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	v, err := NewVerifier(VerifierConfig{Now: fixedClock(now)})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	res := v.Verify(token)
	if !res.Valid {
		t.Fatal("expected token to be valid")
	}
	if got := res.Claims.Identity(); got != alice {
		t.Fatalf("unexpected identity: %+v", got)
	}
	if !res.Claims.Expiry().Equal(now.Add(time.Hour)) {
		t.Fatalf("unexpected expiry %v", res.Claims.Expiry())
	}
}

func TestVerifyExpiredTokenIsInvalid(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	_, priv := newEdKeys(t)
	iss := newTestIssuer(t, priv, fixedClock(now))
	v, _ := NewVerifier(VerifierConfig{Now: fixedClock(now)})

	for _, exp := range []time.Time{now.Add(-time.Second), now, now.Add(-24 * time.Hour)} {
		token, err := iss.IssueUntil(alice, exp)
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		res := v.Verify(token)
		if res.Valid || res.Claims != nil {
			t.Fatalf("expected exp=%v to be invalid with nil claims, got %+v", exp, res)
		}
	}
}

func TestVerifyMalformedTokens(t *testing.T) {
	v, _ := NewVerifier(VerifierConfig{})

	noSubject := gjwt.NewWithClaims(gjwt.SigningMethodHS256, Claims{
		RegisteredClaims: gjwt.RegisteredClaims{ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Hour))},
	})
	noSubjectToken, _ := noSubject.SignedString([]byte("secret-secret-secret-secret"))

	noExpiry := gjwt.NewWithClaims(gjwt.SigningMethodHS256, Claims{
		RegisteredClaims: gjwt.RegisteredClaims{Subject: "u-1"},
	})
	noExpiryToken, _ := noExpiry.SignedString([]byte("secret-secret-secret-secret"))

	badExp := "eyJhbGciOiJIUzI1NiJ9." + base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"u-1","exp":"soon"}`)) + ".sig"

	inputs := []string{
		"",
		"not-a-token",
		"a.b.c",
		"eyJhbGciOiJub25lIn0.eyJ1aWQiOiJ0ZXN0In0.",
		badExp,
		noSubjectToken,
		noExpiryToken,
	}
	for _, in := range inputs {
		res := v.Verify(in)
		if res.Valid || res.Claims != nil {
			t.Fatalf("expected %q to be rejected, got %+v", in, res)
		}
	}
}

func TestVerifyAdvisoryIgnoresSignature(t *testing.T) {
	_, priv := newEdKeys(t)
	_, otherPriv := newEdKeys(t)
	iss := newTestIssuer(t, otherPriv, nil)
	token, err := iss.Issue(alice)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	advisory, _ := NewVerifier(VerifierConfig{})
	if !advisory.Verify(token).Valid {
		t.Fatal("advisory verifier should accept any well-formed unexpired token")
	}

	signed, err := NewVerifier(VerifierConfig{
		SigningMethod: MethodEd25519,
		VerifyKey:     priv.Public().(ed25519.PublicKey),
	})
	if err != nil {
		t.Fatalf("new signed verifier: %v", err)
	}
	if signed.Verify(token).Valid {
		t.Fatal("signed verifier must reject a token signed by another key")
	}
}

func TestVerifySignedModeChecksIssuerAndAlgorithm(t *testing.T) {
	pub, priv := newEdKeys(t)
	v, err := NewVerifier(VerifierConfig{
		SigningMethod: MethodEd25519,
		VerifyKey:     pub,
		Issuer:        "api",
	})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	good, _ := newTestIssuer(t, priv, nil).Issue(alice)
	if !v.Verify(good).Valid {
		t.Fatal("expected correctly signed token to pass")
	}

	other, _ := NewIssuer(IssuerConfig{SigningMethod: MethodEd25519, PrivateKey: priv, TTL: time.Hour, Issuer: "other"})
	wrongIssuer, _ := other.Issue(alice)
	if v.Verify(wrongIssuer).Valid {
		t.Fatal("expected wrong issuer to fail")
	}

	hs, _ := NewIssuer(IssuerConfig{SigningMethod: MethodHS256, PrivateKey: []byte("secret-secret-secret-secret"), TTL: time.Hour, Issuer: "api"})
	wrongAlg, _ := hs.Issue(alice)
	if v.Verify(wrongAlg).Valid {
		t.Fatal("expected wrong algorithm to fail")
	}
}

func TestVerifySignedModeKeyIDs(t *testing.T) {
	pub, priv := newEdKeys(t)
	v, err := NewVerifier(VerifierConfig{
		SigningMethod: MethodEd25519,
		VerifyKeys:    map[string][]byte{"k1": pub},
	})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	k1, _ := NewIssuer(IssuerConfig{SigningMethod: MethodEd25519, PrivateKey: priv, TTL: time.Hour, KeyID: "k1"})
	k2, _ := NewIssuer(IssuerConfig{SigningMethod: MethodEd25519, PrivateKey: priv, TTL: time.Hour, KeyID: "k2"})

	tok1, _ := k1.Issue(alice)
	tok2, _ := k2.Issue(alice)
	if !v.Verify(tok1).Valid {
		t.Fatal("expected known kid to pass")
	}
	if v.Verify(tok2).Valid {
		t.Fatal("expected unknown kid to fail")
	}
}

func TestNewVerifierRejectsBadConfig(t *testing.T) {
	cases := []VerifierConfig{
		{SigningMethod: "rs256", VerifyKey: []byte("x")},
		{SigningMethod: MethodEd25519},
		{SigningMethod: MethodEd25519, VerifyKey: []byte("short")},
		{SigningMethod: MethodHS256, VerifyKeys: map[string][]byte{" ": []byte("secret")}},
	}
	for i, cfg := range cases {
		if _, err := NewVerifier(cfg); err == nil {
			t.Fatalf("case %d: expected config error", i)
		}
	}
}

func TestDecodeReturnsExpiredClaims(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	_, priv := newEdKeys(t)
	token, _ := newTestIssuer(t, priv, fixedClock(now)).IssueUntil(alice, now.Add(-time.Minute))

	v, _ := NewVerifier(VerifierConfig{Now: fixedClock(now)})
	claims, err := v.Decode(token)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if claims.SubjectID() != "u-1" {
		t.Fatalf("unexpected subject %q", claims.SubjectID())
	}
	if _, err := v.Decode("garbage"); err == nil {
		t.Fatal("expected decode error for garbage")
	}
}

func TestIssuerRejectsBadConfig(t *testing.T) {
	if _, err := NewIssuer(IssuerConfig{SigningMethod: MethodHS256, PrivateKey: []byte("k"), TTL: 0}); err == nil {
		t.Fatal("expected ttl error")
	}
	if _, err := NewIssuer(IssuerConfig{TTL: time.Minute}); err == nil {
		t.Fatal("expected signing method error")
	}
	iss, _ := NewIssuer(IssuerConfig{SigningMethod: MethodHS256, PrivateKey: []byte("k"), TTL: time.Minute})
	if _, err := iss.Issue(Identity{}); err == nil {
		t.Fatal("expected subject error")
	}
}
