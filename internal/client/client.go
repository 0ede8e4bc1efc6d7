// Package client talks to the book storage backend over REST.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/dotcommander/scribe/internal/core"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	limiter    *rate.Limiter
	tokens     TokenStore
	logger     *slog.Logger
}

type Option func(*Client)

// WithRetry sets how many times a retryable failure is repeated. The default is
// zero: failures surface to the caller, who retries by editing again.
func WithRetry(maxRetries int) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		transport := c.httpClient.Transport
		c.httpClient = &http.Client{
			Timeout:   timeout,
			Transport: transport,
		}
	}
}

func WithRateLimit(requestsPerMinute int, burst int) Option {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), burst)
	}
}

func WithTokenStore(store TokenStore) Option {
	return func(c *Client) {
		c.tokens = store
	}
}

// WithToken seeds an in-memory token store with token
func WithToken(token string) Option {
	return func(c *Client) {
		c.tokens = NewMemoryTokenStore(token)
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func NewClient(baseURL string, opts ...Option) *Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     10,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		limiter: rate.NewLimiter(rate.Limit(10), 20),
		tokens:  NewMemoryTokenStore(""),
		logger:  slog.Default().With("component", "storage_client"),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.logger.Debug("storage client initialized",
		"base_url", c.baseURL,
		"max_retries", c.maxRetries,
		"rate_limit", fmt.Sprintf("%v req/s", c.limiter.Limit()))

	return c
}

// do sends one JSON request. in may be nil; out may be nil to discard the body.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	requestID := fmt.Sprintf("req_%d", time.Now().UnixNano())
	startTime := time.Now()

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait failed: %w", err)
	}

	var body []byte
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * time.Second
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := c.doOnce(ctx, requestID, method, path, body, out)
		if err == nil {
			c.logger.Debug("request completed",
				"request_id", requestID,
				"method", method,
				"path", path,
				"attempt", attempt,
				"duration_ms", time.Since(startTime).Milliseconds())
			return nil
		}
		lastErr = err

		if !core.IsRetryable(err) || ctx.Err() != nil {
			break
		}
		c.logger.Warn("request failed, will retry",
			"request_id", requestID,
			"attempt", attempt,
			"error", err)
	}

	c.logger.Debug("request failed",
		"request_id", requestID,
		"method", method,
		"path", path,
		"duration_ms", time.Since(startTime).Milliseconds(),
		"error", lastErr)
	return lastErr
}

func (c *Client) doOnce(ctx context.Context, requestID, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.tokens.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w: %w", method, path, core.ErrNetwork, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: reading response: %w: %w", method, path, core.ErrNetwork, err)
	}

	c.logger.Debug("response received",
		"request_id", requestID,
		"status_code", resp.StatusCode,
		"body_size", len(respBody))

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		c.tokens.Clear()
		c.logger.Warn("backend rejected token, cleared stored credentials", "path", path)
		return &core.APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: string(respBody)}
	case resp.StatusCode == http.StatusNotFound:
		kind, id := resourceOf(path)
		return core.NewNotFoundError(kind, id)
	case resp.StatusCode >= 300:
		return &core.APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%s %s: parsing response: %w", method, path, err)
	}
	return nil
}

// resourceOf maps "/characters/abc?x=y" to ("character", "abc")
func resourceOf(path string) (kind, id string) {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	parts := strings.Split(strings.Trim(path, "/"), "/")
	kind = strings.TrimSuffix(parts[0], "s")
	if len(parts) > 1 {
		id, _ = url.PathUnescape(parts[1])
	}
	return kind, id
}

func itemPath(collection, id string) string {
	return "/" + collection + "/" + url.PathEscape(id)
}

func scopedPath(collection, projectID string) string {
	return "/" + collection + "?" + url.Values{"projectId": {projectID}}.Encode()
}
