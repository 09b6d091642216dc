package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/MrEthical07/goSession/refresh"
)

// DefaultRequestIDHeader is set on every request that does not carry one.
const DefaultRequestIDHeader = "X-Request-ID"

// TokenSource returns the current access token, or "" when there is none.
type TokenSource interface {
	Get() string
}

// Recoverer is the part of the refresh coordinator the transport drives.
type Recoverer interface {
	Handle(ctx context.Context, resp *http.Response, retried bool, sent string, replay refresh.ReplayFunc) (*http.Response, error)
	Refresh(ctx context.Context) (string, error)
}

// Options configures a [Transport].
type Options struct {
	// Base sends the prepared requests. Defaults to http.DefaultTransport.
	Base      http.RoundTripper
	Tokens    TokenSource
	Recoverer Recoverer
	// RequestIDHeader names the correlation header. "-" disables it.
	RequestIDHeader string
	NewRequestID    func() string
	// RefreshDue, when set, is consulted before each coordinated request. A
	// true result refreshes ahead of sending instead of waiting for a 401.
	RefreshDue func() bool
	Logger     logrus.FieldLogger
}

// Transport is an http.RoundTripper bound to one session.
type Transport struct {
	base       http.RoundTripper
	tokens     TokenSource
	recoverer  Recoverer
	idHeader   string
	newID      func() string
	refreshDue func() bool
	log        logrus.FieldLogger
}

// New returns a transport. Tokens and Recoverer are required.
func New(opts Options) (*Transport, error) {
	if opts.Tokens == nil {
		return nil, errors.New("transport: token source required")
	}
	if opts.Recoverer == nil {
		return nil, errors.New("transport: recoverer required")
	}
	t := &Transport{
		base:       opts.Base,
		tokens:     opts.Tokens,
		recoverer:  opts.Recoverer,
		idHeader:   opts.RequestIDHeader,
		newID:      opts.NewRequestID,
		refreshDue: opts.RefreshDue,
		log:        opts.Logger,
	}
	if t.base == nil {
		t.base = http.DefaultTransport
	}
	if t.idHeader == "" {
		t.idHeader = DefaultRequestIDHeader
	}
	if t.idHeader == "-" {
		t.idHeader = ""
	}
	if t.newID == nil {
		t.newID = uuid.NewString
	}
	if t.log == nil {
		t.log = logrus.StandardLogger()
	}
	return t, nil
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Authorization") != "" {
		return t.base.RoundTrip(t.withRequestID(req.Clone(req.Context())))
	}

	ctx := req.Context()
	retried := Retried(ctx)

	if !retried && t.refreshDue != nil && t.refreshDue() {
		if _, err := t.recoverer.Refresh(ctx); err != nil {
			closeBody(req)
			return nil, err
		}
	}

	work, err := rewindable(req)
	if err != nil {
		return nil, err
	}
	work = t.withRequestID(work)

	sent := t.tokens.Get()
	resp, err := t.send(work, sent)
	if err != nil {
		return nil, err
	}

	return t.recoverer.Handle(ctx, resp, retried, sent, func(ctx context.Context, token string) (*http.Response, error) {
		replay := work.Clone(WithRetried(ctx))
		t.log.WithField("method", replay.Method).WithField("path", replay.URL.Path).Debug("goSession: replaying request after refresh")
		return t.send(replay, token)
	})
}

// CloseIdleConnections forwards to the base transport when it supports it.
func (t *Transport) CloseIdleConnections() {
	type closeIdler interface{ CloseIdleConnections() }
	if c, ok := t.base.(closeIdler); ok {
		c.CloseIdleConnections()
	}
}

func (t *Transport) send(req *http.Request, token string) (*http.Response, error) {
	out := req.Clone(req.Context())
	if token != "" {
		out.Header.Set("Authorization", "Bearer "+token)
	}
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		out.Body = body
	}
	return t.base.RoundTrip(out)
}

func (t *Transport) withRequestID(req *http.Request) *http.Request {
	if t.idHeader != "" && req.Header.Get(t.idHeader) == "" {
		req.Header.Set(t.idHeader, t.newID())
	}
	return req
}

// rewindable clones req so its body can be sent more than once.
func rewindable(req *http.Request) (*http.Request, error) {
	work := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return work, nil
	}
	if req.GetBody != nil {
		// every send reads a fresh copy from GetBody
		closeBody(req)
		return work, nil
	}

	data, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, err
	}
	work.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	work.Body, _ = work.GetBody()
	work.ContentLength = int64(len(data))
	return work, nil
}

func closeBody(req *http.Request) {
	if req.Body != nil {
		_ = req.Body.Close()
	}
}
