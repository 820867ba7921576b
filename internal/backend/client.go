// Package backend is the REST client for the marketplace API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/thegamersstation/gsm/internal/apperr"
	"github.com/thegamersstation/gsm/internal/bus"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ErrNoRefreshToken is returned by Refresh when no refresh token is stored.
var ErrNoRefreshToken = errors.New("No refresh token available")

// Client talks JSON to <origin>/api/v1.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  *Tokens
	bus     *bus.Bus
	log     *zap.Logger

	refreshes singleflight.Group
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http = &http.Client{Timeout: d}
		}
	}
}

// New creates a Client. b may be nil.
func New(baseURL string, tokens *Tokens, b *bus.Bus, log *zap.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		tokens:  tokens,
		bus:     b,
		log:     log,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Tokens returns the session store backing the client.
func (c *Client) Tokens() *Tokens { return c.tokens }

// BaseURL returns the API base URL.
func (c *Client) BaseURL() string { return c.baseURL }

type request struct {
	method string
	path   string
	query  url.Values
	in     any
	out    any
	public bool
}

// Do performs an authenticated JSON request. A 401/403 triggers one token
// refresh, shared by concurrent callers, and one retry. A second rejection
// ends the session.
func (c *Client) Do(ctx context.Context, method, path string, in, out any) error {
	return c.do(ctx, request{method: method, path: path, in: in, out: out})
}

func (c *Client) do(ctx context.Context, r request) error {
	var body []byte
	if r.in != nil {
		b, err := json.Marshal(r.in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", r.method, r.path, err)
		}
		body = b
	}

	token := ""
	if !r.public {
		token = c.tokens.AccessToken()
	}
	status, raw, err := c.send(ctx, r, body, token)
	if err != nil {
		return err
	}

	if !r.public && isAuthRejection(status) {
		first := apperr.FromResponse(status, raw)
		// Another caller may have rotated the token while this request was in flight.
		if c.tokens.AccessToken() == token {
			if rerr := c.refreshShared(ctx); rerr != nil {
				c.log.Warn("token refresh failed", zap.String("path", r.path), zap.Error(rerr))
				c.endSession()
				return first
			}
		}
		status, raw, err = c.send(ctx, r, body, c.tokens.AccessToken())
		if err != nil {
			return err
		}
		if isAuthRejection(status) {
			c.endSession()
			return apperr.FromResponse(status, raw)
		}
	}

	if status < 200 || status > 299 {
		return apperr.FromResponse(status, raw)
	}
	if r.out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, r.out); err != nil {
		return fmt.Errorf("decode %s %s: %w", r.method, r.path, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, r request, body []byte, token string) (int, []byte, error) {
	u := c.baseURL + r.path
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, u, rd)
	if err != nil {
		return 0, nil, fmt.Errorf("build %s %s: %w", r.method, r.path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w", r.method, r.path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read %s %s: %w", r.method, r.path, err)
	}
	c.log.Debug("api request",
		zap.String("method", r.method),
		zap.String("path", r.path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)),
	)
	return resp.StatusCode, raw, nil
}

func (c *Client) refreshShared(ctx context.Context) error {
	_, err, _ := c.refreshes.Do("refresh", func() (any, error) {
		return c.Refresh(ctx)
	})
	return err
}

func (c *Client) endSession() {
	if err := c.tokens.Clear(); err != nil {
		c.log.Error("clear tokens", zap.Error(err))
	}
	c.bus.Emit(bus.KindAuthLogout, bus.Navigation{To: "/login"})
}

func isAuthRejection(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}
