package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// ErrTransport marks failures where no response was received.
var ErrTransport = errors.New("api: transport failure")

// ErrMalformedResponse marks a 2xx response without a usable token.
var ErrMalformedResponse = errors.New("api: malformed response")

// maxErrorBody bounds how much of an error body is read for its message.
const maxErrorBody = 16 << 10

// StatusError is a non-2xx answer from the backend.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: status %d", e.Status)
	}
	return fmt.Sprintf("api: status %d: %s", e.Status, e.Message)
}

// Endpoints are paths resolved against the client's base URL.
type Endpoints struct {
	Login   string
	Refresh string
	Logout  string
}

// Client calls the session endpoints.
type Client struct {
	base      *url.URL
	http      *http.Client
	endpoints Endpoints
	idHeader  string
	newID     func() string
}

// Options configures a [Client].
type Options struct {
	BaseURL   string
	HTTP      *http.Client
	Endpoints Endpoints
	// RequestIDHeader is set on every call when non-empty.
	RequestIDHeader string
	NewRequestID    func() string
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Secret     string `json:"secret"`
}

type tokenResponse struct {
	AccessToken string `json:"accessToken"`
}

type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// New returns a client for opts.BaseURL.
func New(opts Options) (*Client, error) {
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("api: parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, errors.New("api: base url must be absolute")
	}
	hc := opts.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{
		base:      base,
		http:      hc,
		endpoints: opts.Endpoints,
		idHeader:  opts.RequestIDHeader,
		newID:     opts.NewRequestID,
	}, nil
}

// Resolve joins path onto the base URL. Absolute URLs are returned as is.
func (c *Client) Resolve(path string) string {
	ref, err := url.Parse(path)
	if err != nil || ref.IsAbs() {
		return path
	}
	if !strings.HasPrefix(ref.Path, "/") && c.base.Path != "" {
		ref.Path = strings.TrimSuffix(c.base.Path, "/") + "/" + ref.Path
	}
	return c.base.ResolveReference(ref).String()
}

// Login exchanges credentials for an access token.
func (c *Client) Login(ctx context.Context, identifier, secret string) (string, error) {
	body, err := json.Marshal(loginRequest{Identifier: identifier, Secret: secret})
	if err != nil {
		return "", err
	}
	return c.token(ctx, c.endpoints.Login, body)
}

// Refresh asks for a new access token. Credentials travel out of band, usually
// as an HTTP-only cookie held by the client's jar.
func (c *Client) Refresh(ctx context.Context) (string, error) {
	return c.token(ctx, c.endpoints.Refresh, nil)
}

// Logout ends the server side of the session. accessToken may be empty.
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	req, err := c.newRequest(ctx, c.endpoints.Logout, nil)
	if err != nil {
		return err
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	return nil
}

func (c *Client) token(ctx context.Context, path string, body []byte) (string, error) {
	req, err := c.newRequest(ctx, path, body)
	if err != nil {
		return "", err
	}
	resp, err := c.do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", statusError(resp)
	}

	var out tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("%w: missing accessToken", ErrMalformedResponse)
	}
	return out.AccessToken, nil
}

func (c *Client) newRequest(ctx context.Context, path string, body []byte) (*http.Request, error) {
	var reader io.Reader = http.NoBody
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Resolve(path), reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.idHeader != "" && c.newID != nil {
		req.Header.Set(c.idHeader, c.newID())
	}
	return req, nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return resp, nil
}

func statusError(resp *http.Response) error {
	se := &StatusError{Status: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var body errorResponse
	if json.Unmarshal(data, &body) == nil {
		se.Message = body.Message
		if se.Message == "" {
			se.Message = body.Error
		}
	}
	return se
}
