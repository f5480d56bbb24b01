// Package blogapi is the HTTP client for the blog backend.
package blogapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/starford/scribe/internal/apperr"
)

// DefaultBaseURL is where the backend listens in development.
const DefaultBaseURL = "http://localhost:8080"

// TokenSource supplies the bearer token for each request. An empty token
// sends no Authorization header.
type TokenSource interface {
	Token() string
}

// StaticToken is a fixed TokenSource.
type StaticToken string

func (t StaticToken) Token() string { return string(t) }

// APIError is a failed request. Message is what the user sees: the
// backend's JSON "message" when it sent one, otherwise a generic status
// line. Status is zero when no response arrived.
type APIError struct {
	Status  int
	Message string
	Err     error
}

func (e *APIError) Error() string { return e.Message }

func (e *APIError) Unwrap() []error {
	errs := []error{apperr.ErrTransient}
	if e.Status == http.StatusNotFound {
		errs = append(errs, apperr.ErrNotFound)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// ErrEmptyResponse is returned when a call that expects data got none.
var ErrEmptyResponse = errors.New("response is empty")

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout bounds each request. Zero keeps the HTTP client's own setting.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// Client talks to the blog backend.
type Client struct {
	base    *url.URL
	http    *http.Client
	timeout time.Duration
	tokens  TokenSource
	logger  *slog.Logger
}

// New returns a client for the backend at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("blogapi: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("blogapi: base url %q: scheme must be http or https", baseURL)
	}
	c := &Client{
		base:   u,
		http:   http.DefaultClient,
		tokens: StaticToken(""),
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// BaseURL returns the backend root.
func (c *Client) BaseURL() string { return c.base.String() }

type request struct {
	method      string
	path        string
	query       url.Values
	body        io.Reader
	contentType string
}

func jsonRequest(method, path string, payload any) (request, error) {
	r := request{method: method, path: path}
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return r, err
		}
		r.body = bytes.NewReader(buf)
		r.contentType = "application/json"
	}
	return r, nil
}

// do sends r and decodes a JSON reply into out. A nil out discards the
// body; otherwise an empty or null body is ErrEmptyResponse.
func (c *Client) do(ctx context.Context, r request, out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	u := *c.base
	u.Path = c.base.Path + r.path
	if len(r.query) > 0 {
		u.RawQuery = r.query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, r.method, u.String(), r.body)
	if err != nil {
		return fmt.Errorf("blogapi: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	if tok := c.tokens.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("blogapi: request failed",
			slog.String("method", r.method),
			slog.String("path", r.path),
			slog.String("error", err.Error()))
		return &APIError{Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	c.logger.Debug("blogapi: request",
		slog.String("method", r.method),
		slog.String("path", r.path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("took", time.Since(start)))
	if err != nil {
		return &APIError{Status: resp.StatusCode, Message: err.Error(), Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errorFromResponse(resp.StatusCode, data)
	}
	if out == nil {
		return nil
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return &APIError{Status: resp.StatusCode, Message: "Response is empty", Err: ErrEmptyResponse}
	}
	if err := json.Unmarshal(trimmed, out); err != nil {
		return fmt.Errorf("blogapi: decode %s %s: %w", r.method, r.path, err)
	}
	return nil
}

func errorFromResponse(status int, body []byte) *APIError {
	var payload struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Message != "" {
		return &APIError{Status: status, Message: payload.Message}
	}
	return &APIError{Status: status, Message: fmt.Sprintf("HTTP error! status: %d", status)}
}
