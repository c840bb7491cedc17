package features

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

	"github.com/ciscoinsights/device-insights/internal/ratelimit"
)

// Feature Navigator endpoint paths.
const (
	platformPath = "/api/v1/platform"
	releasePath  = "/api/v1/release"
	featurePath  = "/api/v1/by_product_result"
)

const (
	defaultTimeout = 60 * time.Second
	backoffBase    = 500 * time.Millisecond
	backoffCap     = 8 * time.Second
)

// Option configures a Client.
type Option func(*Client)

// Client calls the Cisco Feature Navigator API. Every endpoint is a
// JSON POST; calls are paced by the limiter and retried with capped
// exponential backoff on transient failures.
type Client struct {
	base    url.URL
	http    *http.Client
	limiter *ratelimit.Limiter
	retries int
}

// NewClient returns a client against the given base URL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	c := &Client{
		base: *base,
		http: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithLimiter paces calls through the given limiter.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithRetries sets how many times a transient failure is retried.
func WithRetries(n int) Option {
	return func(c *Client) { c.retries = n }
}

type platformRequest struct {
	MDFProductType string `json:"mdf_product_type"`
}

type releaseRequest struct {
	PlatformID int `json:"platform_id"`
}

type featureRequest struct {
	PlatformID int `json:"platform_id"`
	ReleaseID  int `json:"release_id"`
}

// Platforms lists the platforms catalogued under one MDF product type.
func (c *Client) Platforms(ctx context.Context, mdfProductType string) ([]Platform, error) {
	var out []Platform
	if err := c.do(ctx, platformPath, platformRequest{MDFProductType: mdfProductType}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Releases lists the software releases available on one platform.
func (c *Client) Releases(ctx context.Context, platformID int) ([]Release, error) {
	var out []Release
	if err := c.do(ctx, releasePath, releaseRequest{PlatformID: platformID}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Features lists the features of one platform/release pair.
func (c *Client) Features(ctx context.Context, platformID, releaseID int) ([]Feature, error) {
	var out []Feature
	req := featureRequest{PlatformID: platformID, ReleaseID: releaseID}
	if err := c.do(ctx, featurePath, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, path string, reqData, respData any) error {
	body, err := json.Marshal(reqData)
	if err != nil {
		return err
	}
	reqURL := c.base.JoinPath(path).String()

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff(attempt)):
			}
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx, reqURL); err != nil {
				return err
			}
		}
		lastErr = c.once(ctx, reqURL, body, respData)
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

func (c *Client) once(ctx context.Context, reqURL string, body []byte, respData any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return &statusError{code: resp.StatusCode, body: string(respBody)}
	}
	if err := json.Unmarshal(respBody, respData); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status code %d: %s", e.code, e.body)
}

// retryable reports whether the call may succeed on another attempt:
// transport errors, throttling, and upstream 5xx responses.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.code == http.StatusTooManyRequests || se.code >= 500
	}
	var ue *url.Error
	return errors.As(err, &ue)
}

func backoff(attempt int) time.Duration {
	d := backoffBase * time.Duration(1<<(attempt-1))
	if d > backoffCap {
		d = backoffCap
	}
	return d
}
