// Package remote is the HTTP client for the RemoteStore REST contract.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/starford/checktick/internal/apperr"
	"github.com/starford/checktick/internal/models"
)

// SessionCookie is the cookie carrying the session credential.
const SessionCookie = "session_token"

const defaultTimeout = 10 * time.Second

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client. Its cookie jar is kept.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout bounds each request that has no deadline of its own.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithBearer sends the token as an Authorization header.
func WithBearer(token string) Option {
	return func(c *Client) { c.bearer = token }
}

// WithSessionToken stores the token as the session cookie.
func WithSessionToken(token string) Option {
	return func(c *Client) { c.session = token }
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// Client talks to one RemoteStore.
type Client struct {
	base    *url.URL
	http    *http.Client
	timeout time.Duration
	bearer  string
	session string
	logger  *slog.Logger
}

// New returns a client for the store rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("remote: parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("remote: base url %q must be absolute", baseURL)
	}
	c := &Client{base: u, timeout: defaultTimeout, logger: slog.Default()}
	for _, o := range opts {
		o(c)
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.session != "" {
		if c.http.Jar == nil {
			jar, err := cookiejar.New(nil)
			if err != nil {
				return nil, fmt.Errorf("remote: cookie jar: %w", err)
			}
			c.http.Jar = jar
		}
		c.http.Jar.SetCookies(u, []*http.Cookie{{Name: SessionCookie, Value: c.session, Path: "/"}})
	}
	return c, nil
}

// Tasks returns the task collection.
func (c *Client) Tasks() *TaskCollection {
	return &TaskCollection{Collection: NewCollection[models.Task](c, "/api/tasks")}
}

// Notes returns the sticky-note collection.
func (c *Client) Notes() *Collection[models.Note] {
	return NewCollection[models.Note](c, "/api/notes")
}

// Edges returns the note connection collection.
func (c *Client) Edges() *Collection[models.Edge] {
	return NewCollection[models.Edge](c, "/api/edges")
}

type errorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("remote: encode %s %s: %w", method, path, err)
		}
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, rd)
	if err != nil {
		return fmt.Errorf("remote: build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return &apperr.RemoteError{Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()
	c.logger.Debug("remote request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("took", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		var eb errorBody
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &eb) == nil {
			if eb.Error != "" {
				msg = eb.Error
			} else if eb.Detail != "" {
				msg = eb.Detail
			}
		}
		return &apperr.RemoteError{
			Method:  method,
			Path:    path,
			Status:  resp.StatusCode,
			Message: msg,
			Err:     apperr.FromStatus(resp.StatusCode),
		}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return &apperr.RemoteError{Method: method, Path: path, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
