package goSession

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/MrEthical07/goSession/internal/fakebackend"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Now()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	backend *fakebackend.Backend
	server  *httptest.Server
	clock   *fakeClock
	log     *logrus.Logger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	quiet := logrus.New()
	quiet.SetOutput(io.Discard)
	clock := newFakeClock()

	b, err := fakebackend.New(fakebackend.Options{
		Secret:    testSecret,
		AccessTTL: 15 * time.Minute,
		Accounts: []fakebackend.Account{{
			Identifier: "alice",
			Secret:     "pw",
			SubjectID:  "user-1",
			Email:      "alice@example.com",
			Role:       "admin",
			OrgID:      "org-1",
		}},
		Now:    clock.Now,
		Logger: quiet,
	})
	if err != nil {
		t.Fatalf("backend: %v", err)
	}
	srv := httptest.NewServer(b.Handler())
	t.Cleanup(srv.Close)
	return &testEnv{backend: b, server: srv, clock: clock, log: quiet}
}

func (e *testEnv) config() Config {
	cfg := DefaultConfig()
	cfg.BaseURL = e.server.URL
	return cfg
}

func (e *testEnv) build(t *testing.T, cfg Config, opts ...func(*Builder)) *Client {
	t.Helper()
	b := New().WithConfig(cfg).WithClock(e.clock.Now).WithLogger(e.log)
	for _, opt := range opts {
		opt(b)
	}
	c, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func (e *testEnv) client(t *testing.T) *Client {
	t.Helper()
	return e.build(t, e.config())
}

func login(t *testing.T, c *Client) {
	t.Helper()
	if _, err := c.Login(context.Background(), "alice", "pw"); err != nil {
		t.Fatalf("login: %v", err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestLoginInstallsTokenAndClaims(t *testing.T) {
	env := newTestEnv(t)
	c := env.client(t)

	if c.Session().IsAuthenticated {
		t.Fatalf("new client should start logged out")
	}

	claims, err := c.Login(context.Background(), "alice", "pw")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if claims.SubjectID() != "user-1" || claims.Email != "alice@example.com" || claims.OrgID != "org-1" {
		t.Fatalf("unexpected claims %+v", claims)
	}

	s := c.Session()
	if !s.IsAuthenticated || s.Token == "" || s.User.SubjectID() != "user-1" {
		t.Fatalf("expected authenticated state, got %+v", s)
	}

	var me fakebackend.Me
	if err := c.GetJSON(context.Background(), "/api/me", &me); err != nil {
		t.Fatalf("get me: %v", err)
	}
	if me.SubjectID != "user-1" || me.Role != "admin" {
		t.Fatalf("unexpected me %+v", me)
	}
	if env.backend.RefreshCalls() != 0 {
		t.Fatalf("login must not refresh")
	}
	if snap := c.MetricsSnapshot(); snap.Counters[MetricLoginSuccess] != 1 {
		t.Fatalf("expected one login success, got %d", snap.Counters[MetricLoginSuccess])
	}
}

func TestLoginErrors(t *testing.T) {
	env := newTestEnv(t)
	c := env.client(t)
	ctx := context.Background()

	if _, err := c.Login(ctx, "alice", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := c.Login(ctx, "", "pw"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for empty identifier, got %v", err)
	}
	if env.backend.LoginCalls() != 1 {
		t.Fatalf("empty input must not reach the backend, got %d calls", env.backend.LoginCalls())
	}
	if c.Session().IsAuthenticated {
		t.Fatalf("failed login must leave the session logged out")
	}

	cfg := env.config()
	dead := httptest.NewServer(http.NotFoundHandler())
	cfg.BaseURL = dead.URL
	dead.Close()
	offline := env.build(t, cfg)
	if _, err := offline.Login(ctx, "alice", "pw"); !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
}

func TestLoginUnexpectedStatus(t *testing.T) {
	env := newTestEnv(t)
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"down"}`, http.StatusBadGateway)
	}))
	t.Cleanup(broken.Close)

	cfg := env.config()
	cfg.BaseURL = broken.URL
	c := env.build(t, cfg)

	if _, err := c.Login(context.Background(), "alice", "pw"); !errors.Is(err, ErrUnexpectedStatus) {
		t.Fatalf("expected ErrUnexpectedStatus, got %v", err)
	}
}

func TestExpiredTokenRefreshesAndReplays(t *testing.T) {
	env := newTestEnv(t)
	c := env.client(t)
	login(t, c)
	before := c.Session().Token

	env.clock.Advance(20 * time.Minute)

	var echoed map[string]string
	if err := c.DoJSON(context.Background(), http.MethodPost, "/api/echo", map[string]string{"k": "v"}, &echoed); err != nil {
		t.Fatalf("echo: %v", err)
	}
	if echoed["k"] != "v" {
		t.Fatalf("body not replayed intact: %v", echoed)
	}
	if env.backend.RefreshCalls() != 1 {
		t.Fatalf("expected one refresh, got %d", env.backend.RefreshCalls())
	}
	if env.backend.APICalls() != 2 {
		t.Fatalf("expected original and replay, got %d api calls", env.backend.APICalls())
	}

	after := c.Session()
	if !after.IsAuthenticated || after.Token == before {
		t.Fatalf("expected a new authenticated token")
	}

	snap := c.MetricsSnapshot()
	if snap.Counters[MetricRefreshSuccess] != 1 || snap.Counters[MetricReplay] != 1 {
		t.Fatalf("unexpected counters %v", snap.Counters)
	}
}

func TestConcurrent401sShareOneRefresh(t *testing.T) {
	env := newTestEnv(t)
	c := env.client(t)
	login(t, c)
	env.clock.Advance(20 * time.Minute)

	release := env.backend.HoldRefresh()
	defer release()

	const n = 10
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			var me fakebackend.Me
			if err := c.GetJSON(context.Background(), "/api/me", &me); err != nil {
				return err
			}
			if me.SubjectID != "user-1" {
				return errors.New("unexpected subject " + me.SubjectID)
			}
			return nil
		})
	}

	waitFor(t, "queued requests", func() bool { return c.coord.Pending() == n-1 })
	release()

	if err := g.Wait(); err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if env.backend.RefreshCalls() != 1 {
		t.Fatalf("expected one refresh, got %d", env.backend.RefreshCalls())
	}
	if env.backend.APICalls() != 2*n {
		t.Fatalf("expected %d api calls, got %d", 2*n, env.backend.APICalls())
	}
	if got := c.MetricsSnapshot().Counters[MetricRefreshWaiterQueued]; got != n-1 {
		t.Fatalf("expected %d queued waiters, got %d", n-1, got)
	}
}

func TestRefreshFailureLogsOutAndRejectsQueued(t *testing.T) {
	env := newTestEnv(t)
	c := env.client(t)
	login(t, c)
	env.clock.Advance(20 * time.Minute)
	env.backend.FailRefresh(true)

	release := env.backend.HoldRefresh()
	defer release()

	const n = 5
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = c.GetJSON(context.Background(), "/api/me", nil)
		}(i)
	}

	waitFor(t, "queued requests", func() bool { return c.coord.Pending() == n-1 })
	release()
	wg.Wait()

	for i, err := range errs {
		if !errors.Is(err, ErrRefreshFailed) {
			t.Fatalf("request %d: expected ErrRefreshFailed, got %v", i, err)
		}
	}
	if c.Session().IsAuthenticated {
		t.Fatalf("failed refresh must log out")
	}
	if env.backend.LogoutCalls() != 1 {
		t.Fatalf("expected one logout call, got %d", env.backend.LogoutCalls())
	}

	snap := c.MetricsSnapshot()
	if snap.Counters[MetricForcedLogout] != 1 || snap.Counters[MetricRefreshWaiterRejected] != n-1 {
		t.Fatalf("unexpected counters %v", snap.Counters)
	}
}

func TestRequestWithoutSessionFailsRefresh(t *testing.T) {
	env := newTestEnv(t)
	c := env.client(t)

	err := c.GetJSON(context.Background(), "/api/me", nil)
	if !errors.Is(err, ErrRefreshFailed) {
		t.Fatalf("expected ErrRefreshFailed without a refresh cookie, got %v", err)
	}
	if env.backend.RefreshCalls() != 1 {
		t.Fatalf("expected one refresh attempt, got %d", env.backend.RefreshCalls())
	}
}

func TestManualRefreshRotatesToken(t *testing.T) {
	env := newTestEnv(t)
	c := env.client(t)
	login(t, c)
	before := c.Session().Token

	claims, err := c.Refresh(context.Background())
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if claims.SubjectID() != "user-1" {
		t.Fatalf("unexpected subject %q", claims.SubjectID())
	}
	if c.Session().Token == before {
		t.Fatalf("expected rotated token")
	}
}

func TestManualRefreshFailureLogsOut(t *testing.T) {
	env := newTestEnv(t)
	c := env.client(t)
	login(t, c)
	env.backend.FailRefresh(true)

	if _, err := c.Refresh(context.Background()); !errors.Is(err, ErrRefreshFailed) {
		t.Fatalf("expected ErrRefreshFailed, got %v", err)
	}
	if c.Session().IsAuthenticated {
		t.Fatalf("expected logged out state")
	}
}

func TestProactiveRefreshAvoids401(t *testing.T) {
	env := newTestEnv(t)
	cfg := env.config()
	cfg.Refresh.ProactiveWindow = 5 * time.Minute
	c := env.build(t, cfg)
	login(t, c)

	env.clock.Advance(12 * time.Minute)
	if err := c.GetJSON(context.Background(), "/api/me", nil); err != nil {
		t.Fatalf("get: %v", err)
	}
	if env.backend.RefreshCalls() != 1 {
		t.Fatalf("expected proactive refresh, got %d", env.backend.RefreshCalls())
	}
	if env.backend.APICalls() != 1 {
		t.Fatalf("expected a single api call, got %d", env.backend.APICalls())
	}
}

func TestProactiveWindowLongerThanTokenLifetimeDoesNotRefreshEveryRequest(t *testing.T) {
	env := newTestEnv(t)
	cfg := env.config()
	cfg.Refresh.ProactiveWindow = 20 * time.Minute
	c := env.build(t, cfg)
	login(t, c)

	for i := 0; i < 3; i++ {
		if err := c.GetJSON(context.Background(), "/api/me", nil); err != nil {
			t.Fatalf("get %d: %v", i, err)
		}
	}
	if env.backend.RefreshCalls() != 0 {
		t.Fatalf("a 15m token must not be refreshed ahead of every request, got %d refreshes", env.backend.RefreshCalls())
	}

	env.clock.Advance(16 * time.Minute)
	if err := c.GetJSON(context.Background(), "/api/me", nil); err != nil {
		t.Fatalf("get after expiry: %v", err)
	}
	if env.backend.RefreshCalls() != 1 {
		t.Fatalf("expired token should still refresh on 401, got %d", env.backend.RefreshCalls())
	}
}

func TestLogoutClearsEvenWhenBackendUnreachable(t *testing.T) {
	env := newTestEnv(t)
	c := env.client(t)
	login(t, c)

	env.server.Close()
	c.Logout(context.Background())

	if c.Session().IsAuthenticated {
		t.Fatalf("logout must clear the session")
	}
	snap := c.MetricsSnapshot()
	if snap.Counters[MetricLogoutRemoteFailure] != 1 {
		t.Fatalf("expected remote failure to be counted, got %v", snap.Counters)
	}

	c.Logout(context.Background())
	if c.Session().IsAuthenticated || snap.Counters[MetricForcedLogout] != 0 {
		t.Fatalf("second logout must be a no-op on state")
	}
}

func TestLogoutDuringRefreshStaysLoggedOut(t *testing.T) {
	env := newTestEnv(t)
	c := env.client(t)
	login(t, c)
	env.clock.Advance(20 * time.Minute)

	release := env.backend.HoldRefresh()
	defer release()

	done := make(chan error, 1)
	go func() { done <- c.GetJSON(context.Background(), "/api/me", nil) }()
	waitFor(t, "server side rotation", func() bool { return env.backend.Rotations() == 1 })

	c.Logout(context.Background())
	release()

	if err := <-done; !errors.Is(err, ErrRefreshFailed) {
		t.Fatalf("expected ErrRefreshFailed for a request whose session was logged out, got %v", err)
	}
	if s := c.Session(); s.IsAuthenticated || s.Token != "" {
		t.Fatalf("refresh finishing after logout must not restore the session, got %+v", s)
	}
	if env.backend.LogoutCalls() != 2 {
		t.Fatalf("expected the rotated session to be revoked, got %d logout calls", env.backend.LogoutCalls())
	}
	if env.backend.Sessions() != 0 {
		t.Fatalf("expected no live backend sessions, got %d", env.backend.Sessions())
	}
	if got := c.MetricsSnapshot().Counters[MetricForcedLogout]; got != 0 {
		t.Fatalf("explicit logout must not be reported as forced, got %d", got)
	}
}

func TestSubscribeObservesLoginAndLogoutInOrder(t *testing.T) {
	env := newTestEnv(t)
	c := env.client(t)

	states, cancel := c.Subscribe(8)
	defer cancel()

	login(t, c)
	c.Logout(context.Background())

	var got []SessionState
	for len(got) < 3 {
		select {
		case s := <-states:
			got = append(got, s)
		case <-time.After(time.Second):
			t.Fatalf("expected 3 states, got %d", len(got))
		}
	}
	if got[0].IsAuthenticated || !got[1].IsAuthenticated || got[2].IsAuthenticated {
		t.Fatalf("unexpected state sequence %+v", got)
	}
	if got[1].User.SubjectID() != "user-1" || got[2].Token != "" || got[2].User != nil {
		t.Fatalf("state must never mix token and user: %+v", got)
	}
}

func TestSubscribeLatestWinsWhenBehind(t *testing.T) {
	env := newTestEnv(t)
	c := env.client(t)

	states, cancel := c.Subscribe(1)
	defer cancel()

	login(t, c)
	c.Logout(context.Background())
	login(t, c)

	s := <-states
	if !s.IsAuthenticated {
		t.Fatalf("slow subscriber should see the latest state, got %+v", s)
	}
}

func TestCloseStopsClient(t *testing.T) {
	env := newTestEnv(t)
	c := env.client(t)
	states, _ := c.Subscribe(1)
	<-states

	c.Close()
	c.Close()

	if _, err := c.Login(context.Background(), "alice", "pw"); !errors.Is(err, ErrClientNotReady) {
		t.Fatalf("expected ErrClientNotReady, got %v", err)
	}
	if err := c.GetJSON(context.Background(), "/api/me", nil); !errors.Is(err, ErrClientNotReady) {
		t.Fatalf("expected ErrClientNotReady, got %v", err)
	}
	if _, ok := <-states; ok {
		t.Fatalf("subscriber channel should be closed")
	}
}

func TestNewRequestCarriesContextRequestID(t *testing.T) {
	env := newTestEnv(t)
	c := env.client(t)

	req, err := c.NewRequest(WithRequestID(context.Background(), "req-1"), http.MethodGet, "/api/me", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if req.Header.Get("X-Request-ID") != "req-1" {
		t.Fatalf("expected request id header, got %q", req.Header.Get("X-Request-ID"))
	}
	if req.URL.String() != env.server.URL+"/api/me" {
		t.Fatalf("unexpected url %s", req.URL)
	}
}

func TestAuditRecordsLifecycle(t *testing.T) {
	env := newTestEnv(t)
	cfg := env.config()
	cfg.Audit.Enabled = true
	sink := NewChannelSink(16)
	c := env.build(t, cfg, func(b *Builder) { b.WithAuditSink(sink) })

	login(t, c)
	c.Logout(context.Background())
	c.Close()

	var types []string
	for len(types) < 2 {
		select {
		case ev := <-sink.Events():
			types = append(types, ev.EventType)
		case <-time.After(time.Second):
			t.Fatalf("expected 2 audit events, got %v", types)
		}
	}
	if types[0] != AuditLogin || types[1] != AuditLogout {
		t.Fatalf("unexpected audit sequence %v", types)
	}
}
