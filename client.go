package goSession

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/MrEthical07/goSession/internal/api"
	internalaudit "github.com/MrEthical07/goSession/internal/audit"
	"github.com/MrEthical07/goSession/internal/flows"
	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/refresh"
	"github.com/MrEthical07/goSession/tokenstore"
	"github.com/MrEthical07/goSession/transport"
)

// Client is one authenticated session against one backend. Build it with
// [New]; it is safe for concurrent use.
type Client struct {
	config    Config
	log       logrus.FieldLogger
	now       func() time.Time
	store     *tokenstore.Store
	verifier  *jwt.Verifier
	api       *api.Client
	coord     *refresh.Coordinator
	transport *transport.Transport
	http      *http.Client
	flows     flows.Deps
	hub       *stateHub
	metrics   *Metrics
	audit     *internalaudit.Dispatcher

	closed    atomic.Bool
	closeOnce sync.Once
}

// Login exchanges credentials for a token, installs it and returns its
// claims. It never starts a refresh.
//
// Errors: [ErrInvalidCredentials] for a 4xx answer or empty input,
// [ErrTransport] when the backend could not be reached, [ErrUnexpectedStatus]
// for other statuses, [ErrTokenInvalid] for an undecodable token.
func (c *Client) Login(ctx context.Context, identifier, secret string) (*Claims, error) {
	if c.closed.Load() {
		return nil, ErrClientNotReady
	}

	res := flows.RunLogin(ctx, identifier, secret, c.flows.Login)
	if res.Failure != flows.FailureNone {
		err := loginError(res.Failure, res.Err)
		c.metrics.Inc(MetricLoginFailure)
		c.log.WithError(res.Err).WithField("failure", res.Failure.String()).Info("goSession: login failed")
		c.emitAudit(ctx, internalaudit.Event{
			EventType: internalaudit.EventLogin,
			Error:     err.Error(),
			Metadata:  map[string]string{"failure": res.Failure.String()},
		})
		return nil, err
	}

	c.metrics.Inc(MetricLoginSuccess)
	c.log.WithField("subject", res.Claims.SubjectID()).Info("goSession: logged in")
	c.emitAudit(ctx, internalaudit.Event{
		EventType: internalaudit.EventLogin,
		Subject:   res.Claims.SubjectID(),
		Success:   true,
	})
	return res.Claims, nil
}

// Logout ends the session. The backend call is best effort and bounded by
// Logout.Timeout; whatever it returns, the token is cleared and subscribers
// see the logged-out state before Logout returns.
func (c *Client) Logout(ctx context.Context) {
	c.logout(ctx, nil)
}

// Refresh obtains a new token outside the 401 path and returns its claims.
// It shares the in-flight refresh when there is one. On failure the session
// is logged out, as on the 401 path, and the error wraps [ErrRefreshFailed].
func (c *Client) Refresh(ctx context.Context) (*Claims, error) {
	if c.closed.Load() {
		return nil, ErrClientNotReady
	}
	token, err := c.coord.Refresh(ctx)
	if err != nil {
		return nil, err
	}
	res := c.verifier.Verify(token)
	if !res.Valid {
		return nil, ErrTokenInvalid
	}
	return res.Claims, nil
}

// Session returns the state derived from the current token. An expired token
// yields the logged-out state even before anything clears it.
func (c *Client) Session() SessionState {
	return deriveState(c.store.Get(), c.verifier)
}

// Subscribe returns a channel that receives the current state immediately and
// a new state after every token change, in order. A subscriber that falls
// behind keeps only the most recent states that fit in buffer. cancel stops
// delivery and closes the channel.
func (c *Client) Subscribe(buffer int) (<-chan SessionState, func()) {
	return c.hub.subscribe(buffer, c.Session())
}

// HTTPClient returns the credentialed client. Requests sent through it get
// the bearer token attached and are refreshed and replayed on 401.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

// Do sends req through the credentialed client.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.closed.Load() {
		return nil, ErrClientNotReady
	}
	return c.http.Do(req)
}

// NewRequest builds a request for path resolved against BaseURL.
func (c *Client) NewRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.api.Resolve(path), body)
	if err != nil {
		return nil, err
	}
	if id := requestIDFromContext(ctx); id != "" && c.config.HTTP.RequestIDHeader != "" && c.config.HTTP.RequestIDHeader != "-" {
		req.Header.Set(c.config.HTTP.RequestIDHeader, id)
	}
	return req, nil
}

// GetJSON sends GET path and decodes a JSON response into out.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	return c.DoJSON(ctx, http.MethodGet, path, nil, out)
}

// DoJSON sends in as a JSON body (when non-nil) and decodes a 2xx JSON
// response into out (when non-nil). A final 401 is [ErrUnauthenticated];
// other non-2xx statuses wrap [ErrUnexpectedStatus].
func (c *Client) DoJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := c.NewRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.Do(req)
	if err != nil {
		return requestError(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthenticated
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 16<<10))
		return fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 16<<10))
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// MetricsSnapshot copies the client's counters.
func (c *Client) MetricsSnapshot() MetricsSnapshot {
	return c.metrics.Snapshot()
}

// AuditDropped reports audit events dropped on a full buffer.
func (c *Client) AuditDropped() uint64 {
	return c.audit.Dropped()
}

// Close waits for pending replays, flushes audit events and closes
// subscriber channels. The stored token is kept so a new client can resume.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.coord.Wait()
		c.audit.Close()
		c.transport.CloseIdleConnections()
		c.hub.close()
	})
}

func (c *Client) logout(ctx context.Context, cause error) {
	res := flows.RunLogout(ctx, c.flows.Logout)
	c.metrics.Inc(MetricLogout)

	entry := c.log
	if res.RemoteErr != nil {
		c.metrics.Inc(MetricLogoutRemoteFailure)
		entry = entry.WithField("remote_error", res.RemoteErr.Error())
	}

	ev := internalaudit.Event{EventType: internalaudit.EventLogout, Success: true}
	if cause != nil {
		c.metrics.Inc(MetricForcedLogout)
		ev.EventType = internalaudit.EventForcedLogout
		ev.Error = cause.Error()
		entry.WithError(cause).Warn("goSession: session ended after failed refresh")
	} else {
		entry.Info("goSession: logged out")
	}
	if res.RemoteErr != nil {
		ev.Metadata = map[string]string{"remote_error": res.RemoteErr.Error()}
	}
	c.emitAudit(ctx, ev)
}

// discardToken revokes the backend session opened by a refresh that finished
// after the session had already ended.
func (c *Client) discardToken(ctx context.Context, token string) {
	lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.config.Logout.Timeout)
	defer cancel()

	entry := c.log
	if err := c.api.Logout(lctx, token); err != nil {
		entry = entry.WithField("remote_error", err.Error())
	}
	entry.Info("goSession: refresh finished after logout, result discarded")
}

// refreshToken runs the refresh flow for the coordinator.
func (c *Client) refreshToken(ctx context.Context) (string, error) {
	res := flows.RunRefresh(ctx, c.flows.Refresh)
	if res.Failure != flows.FailureNone {
		return "", refreshError(res.Failure, res.Err)
	}
	return res.Token, nil
}

// refreshDue reports whether the current token expires within the proactive
// window.
func (c *Client) refreshDue() bool {
	token := c.store.Get()
	if token == "" {
		return false
	}
	claims, err := c.verifier.Decode(token)
	if err != nil {
		return false
	}
	window := c.config.Refresh.ProactiveWindow
	// A token whose whole lifetime fits in the window would refresh before
	// every request; leave it to the 401 path.
	if claims.IssuedAt != nil && claims.Expiry().Sub(claims.IssuedAt.Time) <= window {
		return false
	}
	return claims.Expiry().Sub(c.now()) <= window
}

func (c *Client) emitAudit(ctx context.Context, ev internalaudit.Event) {
	if c.audit == nil {
		return
	}
	c.audit.Emit(context.WithoutCancel(ctx), ev)
}

func loginError(kind flows.FailureKind, cause error) error {
	switch kind {
	case flows.FailureInput, flows.FailureRejected:
		return fmt.Errorf("%w: %w", ErrInvalidCredentials, cause)
	case flows.FailureStatus:
		return fmt.Errorf("%w: %w", ErrUnexpectedStatus, cause)
	case flows.FailureMalformed, flows.FailureToken:
		return fmt.Errorf("%w: %w", ErrTokenInvalid, cause)
	default:
		return transportError(cause)
	}
}

func refreshError(kind flows.FailureKind, cause error) error {
	switch kind {
	case flows.FailureRejected:
		return cause
	case flows.FailureStatus:
		return fmt.Errorf("%w: %w", ErrUnexpectedStatus, cause)
	case flows.FailureMalformed, flows.FailureToken:
		return fmt.Errorf("%w: %w", ErrTokenInvalid, cause)
	default:
		return transportError(cause)
	}
}

func transportError(cause error) error {
	if errors.Is(cause, ErrTransport) {
		return cause
	}
	return fmt.Errorf("%w: %w", ErrTransport, cause)
}

// requestError maps an error from the credentialed client.
func requestError(err error) error {
	switch {
	case errors.Is(err, ErrRefreshFailed),
		errors.Is(err, ErrClientNotReady),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return transportError(err)
	}
}
