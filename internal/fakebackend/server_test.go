package fakebackend

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func newTestBackend(t *testing.T) (*Backend, *httptest.Server, *http.Client) {
	t.Helper()
	quiet := logrus.New()
	quiet.SetOutput(io.Discard)
	b, err := New(Options{
		Secret:   []byte("0123456789abcdef0123456789abcdef"),
		Accounts: []Account{{Identifier: "alice", Secret: "pw", Email: "alice@example.com", Role: "admin", OrgID: "org-1"}},
		Logger:   quiet,
	})
	if err != nil {
		t.Fatalf("new backend: %v", err)
	}
	srv := httptest.NewServer(b.Handler())
	t.Cleanup(srv.Close)
	jar, _ := cookiejar.New(nil)
	return b, srv, &http.Client{Jar: jar}
}

func post(t *testing.T, c *http.Client, url, body string) (*http.Response, string) {
	t.Helper()
	resp, err := c.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp, string(data)
}

func accessToken(t *testing.T, body string) string {
	t.Helper()
	var out tokenResponse
	if err := json.Unmarshal([]byte(body), &out); err != nil || out.AccessToken == "" {
		t.Fatalf("expected access token in %q", body)
	}
	return out.AccessToken
}

func TestLoginRefreshRotatesAndLogoutEndsSession(t *testing.T) {
	b, srv, c := newTestBackend(t)

	resp, body := post(t, c, srv.URL+"/auth/login", `{"identifier":"alice","secret":"pw"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status %d: %s", resp.StatusCode, body)
	}
	accessToken(t, body)
	if b.Sessions() != 1 {
		t.Fatalf("expected one session")
	}

	resp, body = post(t, c, srv.URL+"/auth/refresh", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh status %d: %s", resp.StatusCode, body)
	}
	accessToken(t, body)
	if b.Sessions() != 1 || b.RefreshCalls() != 1 {
		t.Fatalf("refresh should rotate the session in place")
	}

	resp, _ = post(t, c, srv.URL+"/auth/logout", "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("logout status %d", resp.StatusCode)
	}
	if b.Sessions() != 0 {
		t.Fatalf("logout should end the session")
	}

	resp, _ = post(t, c, srv.URL+"/auth/refresh", "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("refresh after logout should be 401, got %d", resp.StatusCode)
	}
}

func TestLoginRejections(t *testing.T) {
	_, srv, c := newTestBackend(t)

	resp, body := post(t, c, srv.URL+"/auth/login", `{"identifier":"alice","secret":"nope"}`)
	if resp.StatusCode != http.StatusUnauthorized || !strings.Contains(body, "invalid credentials") {
		t.Fatalf("expected 401 invalid credentials, got %d %s", resp.StatusCode, body)
	}

	resp, _ = post(t, c, srv.URL+"/auth/login", `{"identifier":"alice"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing secret, got %d", resp.StatusCode)
	}
}

func TestProtectedAPIRequiresValidToken(t *testing.T) {
	b, srv, c := newTestBackend(t)

	get := func(token string) *http.Response {
		req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/me", nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := c.Do(req)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		return resp
	}

	if resp := get(""); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	expired, err := b.Mint("alice", time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if resp := get(expired); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for expired token, got %d", resp.StatusCode)
	}

	valid, _ := b.Mint("alice", time.Now().Add(time.Hour))
	resp := get(valid)
	defer resp.Body.Close()
	var me Me
	if err := json.NewDecoder(resp.Body).Decode(&me); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if me.SubjectID != "alice" || me.Role != "admin" || me.OrgID != "org-1" {
		t.Fatalf("unexpected me %+v", me)
	}
}

func TestFailRefreshAndHold(t *testing.T) {
	b, srv, c := newTestBackend(t)
	post(t, c, srv.URL+"/auth/login", `{"identifier":"alice","secret":"pw"}`)

	b.FailRefresh(true)
	if resp, _ := post(t, c, srv.URL+"/auth/refresh", ""); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected forced refresh failure, got %d", resp.StatusCode)
	}
	b.FailRefresh(false)

	release := b.HoldRefresh()
	done := make(chan int, 1)
	go func() {
		resp, err := c.Post(srv.URL+"/auth/refresh", "application/json", nil)
		if err != nil {
			done <- 0
			return
		}
		resp.Body.Close()
		done <- resp.StatusCode
	}()

	select {
	case <-done:
		t.Fatalf("refresh should be held")
	case <-time.After(30 * time.Millisecond):
	}
	if b.Rotations() != 1 {
		t.Fatalf("held refresh should already have rotated, got %d", b.Rotations())
	}
	release()
	release()
	if status := <-done; status != http.StatusOK {
		t.Fatalf("expected held refresh to succeed, got %d", status)
	}
}
