package fakebackend

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/MrEthical07/goSession/jwt"
)

// DefaultCookieName names the refresh cookie.
const DefaultCookieName = "refresh_token"

// Account is a login the backend accepts.
type Account struct {
	Identifier string
	Secret     string
	SubjectID  string
	Email      string
	Role       string
	OrgID      string
}

// Options configures a [Backend].
type Options struct {
	// Secret is the HS256 key used for access tokens. Required.
	Secret     []byte
	AccessTTL  time.Duration
	Accounts   []Account
	CookieName string
	Now        func() time.Time
	Logger     logrus.FieldLogger
}

type loginRequest struct {
	Identifier string `json:"identifier" validate:"required"`
	Secret     string `json:"secret" validate:"required"`
}

type tokenResponse struct {
	AccessToken string `json:"accessToken"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// Me is the body served by GET /api/me.
type Me struct {
	SubjectID string `json:"sub"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	OrgID     string `json:"org_id"`
}

// Backend serves the session endpoints.
type Backend struct {
	issuer   *jwt.Issuer
	verifier *jwt.Verifier
	validate *validator.Validate
	cookie   string
	log      logrus.FieldLogger
	router   chi.Router

	accounts map[string]Account

	mu       sync.Mutex
	sessions map[string]string // refresh token -> identifier
	gate     chan struct{}

	failRefresh  atomic.Bool
	refreshDelay atomic.Int64

	loginCalls   atomic.Int64
	refreshCalls atomic.Int64
	rotations    atomic.Int64
	logoutCalls  atomic.Int64
	apiCalls     atomic.Int64
}

// New builds a backend and its router.
func New(opts Options) (*Backend, error) {
	if len(opts.Secret) == 0 {
		return nil, errors.New("fakebackend: secret required")
	}
	if opts.AccessTTL <= 0 {
		opts.AccessTTL = 15 * time.Minute
	}
	if opts.CookieName == "" {
		opts.CookieName = DefaultCookieName
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	issuer, err := jwt.NewIssuer(jwt.IssuerConfig{
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    opts.Secret,
		TTL:           opts.AccessTTL,
		Issuer:        "fakebackend",
		Now:           opts.Now,
	})
	if err != nil {
		return nil, err
	}
	verifier, err := jwt.NewVerifier(jwt.VerifierConfig{
		SigningMethod: jwt.MethodHS256,
		VerifyKey:     opts.Secret,
		Issuer:        "fakebackend",
		Now:           opts.Now,
	})
	if err != nil {
		return nil, err
	}

	b := &Backend{
		issuer:   issuer,
		verifier: verifier,
		validate: validator.New(),
		cookie:   opts.CookieName,
		log:      opts.Logger.WithField("component", "fakebackend"),
		accounts: make(map[string]Account, len(opts.Accounts)),
		sessions: make(map[string]string),
	}
	for _, a := range opts.Accounts {
		if a.SubjectID == "" {
			a.SubjectID = a.Identifier
		}
		b.accounts[a.Identifier] = a
	}
	b.router = b.routes()
	return b, nil
}

func (b *Backend) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/auth", func(auth chi.Router) {
		auth.Post("/login", b.handleLogin)
		auth.Post("/refresh", b.handleRefresh)
		auth.Post("/logout", b.handleLogout)
	})
	r.Route("/api", func(api chi.Router) {
		api.Use(b.requireBearer)
		api.Get("/me", b.handleMe)
		api.Post("/echo", b.handleEcho)
	})
	return r
}

// Handler returns the router.
func (b *Backend) Handler() http.Handler { return b.router }

// FailRefresh makes every refresh call answer 401 while on is true.
func (b *Backend) FailRefresh(on bool) { b.failRefresh.Store(on) }

// SetRefreshDelay delays every refresh response by d.
func (b *Backend) SetRefreshDelay(d time.Duration) { b.refreshDelay.Store(int64(d)) }

// HoldRefresh makes refresh calls block until the returned release func runs.
func (b *Backend) HoldRefresh() (release func()) {
	gate := make(chan struct{})
	b.mu.Lock()
	b.gate = gate
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			if b.gate == gate {
				b.gate = nil
			}
			b.mu.Unlock()
			close(gate)
		})
	}
}

// LoginCalls, RefreshCalls, LogoutCalls and APICalls count handled requests.
func (b *Backend) LoginCalls() int64   { return b.loginCalls.Load() }
func (b *Backend) RefreshCalls() int64 { return b.refreshCalls.Load() }
func (b *Backend) LogoutCalls() int64  { return b.logoutCalls.Load() }
func (b *Backend) APICalls() int64     { return b.apiCalls.Load() }

// Rotations counts refresh sessions rotated, including ones whose response is
// still held.
func (b *Backend) Rotations() int64 { return b.rotations.Load() }

// Sessions reports how many refresh sessions are live.
func (b *Backend) Sessions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sessions)
}

// Mint issues an access token for identifier expiring at expiresAt.
func (b *Backend) Mint(identifier string, expiresAt time.Time) (string, error) {
	a, ok := b.accounts[identifier]
	if !ok {
		return "", errors.New("fakebackend: unknown account")
	}
	return b.issuer.IssueUntil(identity(a), expiresAt)
}

func identity(a Account) jwt.Identity {
	return jwt.Identity{SubjectID: a.SubjectID, Email: a.Email, Role: a.Role, OrgID: a.OrgID}
}

func (b *Backend) handleLogin(w http.ResponseWriter, r *http.Request) {
	b.loginCalls.Add(1)

	var req loginRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "invalid request body"})
		return
	}
	if err := b.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "identifier and secret are required"})
		return
	}

	a, ok := b.accounts[req.Identifier]
	if !ok || a.Secret != req.Secret {
		writeJSON(w, http.StatusUnauthorized, messageResponse{Message: "invalid credentials"})
		return
	}

	access, err := b.issuer.Issue(identity(a))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, messageResponse{Message: "issue failed"})
		return
	}
	b.startSession(w, a.Identifier)
	b.log.WithField("identifier", a.Identifier).Debug("fakebackend: login")
	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: access})
}

func (b *Backend) handleRefresh(w http.ResponseWriter, r *http.Request) {
	b.refreshCalls.Add(1)

	// Rotation happens before any hold: a held response is a refresh that
	// already succeeded server side and is still in transit.
	status, body := http.StatusUnauthorized, any(messageResponse{Message: "refresh rejected"})
	if !b.failRefresh.Load() {
		status, body = b.rotate(w, r)
	}

	b.mu.Lock()
	gate := b.gate
	b.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}
	if d := time.Duration(b.refreshDelay.Load()); d > 0 {
		select {
		case <-time.After(d):
		case <-r.Context().Done():
			return
		}
	}

	writeJSON(w, status, body)
}

func (b *Backend) rotate(w http.ResponseWriter, r *http.Request) (int, any) {
	c, err := r.Cookie(b.cookie)
	if err != nil || c.Value == "" {
		return http.StatusUnauthorized, messageResponse{Message: "missing refresh cookie"}
	}

	b.mu.Lock()
	identifier, ok := b.sessions[c.Value]
	if ok {
		delete(b.sessions, c.Value)
	}
	b.mu.Unlock()
	if !ok {
		return http.StatusUnauthorized, messageResponse{Message: "unknown refresh session"}
	}

	access, err := b.issuer.Issue(identity(b.accounts[identifier]))
	if err != nil {
		return http.StatusInternalServerError, messageResponse{Message: "issue failed"}
	}
	b.startSession(w, identifier)
	b.rotations.Add(1)
	return http.StatusOK, tokenResponse{AccessToken: access}
}

func (b *Backend) handleLogout(w http.ResponseWriter, r *http.Request) {
	b.logoutCalls.Add(1)
	if c, err := r.Cookie(b.cookie); err == nil {
		b.mu.Lock()
		delete(b.sessions, c.Value)
		b.mu.Unlock()
	}
	http.SetCookie(w, &http.Cookie{Name: b.cookie, Value: "", Path: "/auth", MaxAge: -1, HttpOnly: true})
	w.WriteHeader(http.StatusNoContent)
}

func (b *Backend) handleMe(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	writeJSON(w, http.StatusOK, Me{
		SubjectID: claims.SubjectID(),
		Email:     claims.Email,
		Role:      claims.Role,
		OrgID:     claims.OrgID,
	})
}

func (b *Backend) handleEcho(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", r.Header.Get("Content-Type"))
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, io.LimitReader(r.Body, 1<<20))
}

func (b *Backend) startSession(w http.ResponseWriter, identifier string) {
	token := uuid.NewString()
	b.mu.Lock()
	b.sessions[token] = identifier
	b.mu.Unlock()
	http.SetCookie(w, &http.Cookie{
		Name:     b.cookie,
		Value:    token,
		Path:     "/auth",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}
