// Package fetch provides the shared HTTP fetcher capability used to
// retrieve remote rule lists, netset resources, and origin content.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	fetchTimeout = 30 * time.Second
	maxBodySize  = 8 * 1024 * 1024
	userAgent    = "cfgapp/1.0"

	// Outbound request budget shared by all concurrent fetches of one client.
	fetchRateLimit = 20
	fetchRateBurst = 10
)

// Result is the outcome of one fetch. Non-2xx statuses are ordinary
// results; only transport-level failures surface as errors.
type Result struct {
	StatusCode int
	Header     http.Header
	Body       string
}

// Success reports whether the response carried a 2xx status.
func (r *Result) Success() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Fetcher retrieves a URL as text. Implementations must be safe for use
// from concurrent goroutines.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Result, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, url string) (*Result, error)

func (f FetcherFunc) Fetch(ctx context.Context, url string) (*Result, error) {
	return f(ctx, url)
}

type Client struct {
	client  *http.Client
	limiter *rate.Limiter
}

var _ Fetcher = (*Client)(nil)

// NewClient returns a Client with a 30 second request timeout and a rate
// limit shared across concurrent fetches.
func NewClient() *Client {
	return &Client{
		client:  &http.Client{Timeout: fetchTimeout},
		limiter: rate.NewLimiter(rate.Limit(fetchRateLimit), fetchRateBurst),
	}
}

// SetTimeout overrides the request timeout.
func (c *Client) SetTimeout(timeout time.Duration) {
	c.client.Timeout = timeout
}

// Fetch retrieves url with the default headers.
func (c *Client) Fetch(ctx context.Context, url string) (*Result, error) {
	return c.FetchWithHeaders(ctx, url, nil)
}

// FetchWithHeaders retrieves url with extra request headers attached, used
// by the origin-forwarding path to relay inbound headers. Response bodies
// are capped at 8 MiB.
func (c *Client) FetchWithHeaders(ctx context.Context, url string, headers http.Header) (*Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait for %s: %w", url, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", url, err)
	}
	for key, values := range headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", userAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read response from %s: %w", url, err)
	}

	return &Result{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       string(body),
	}, nil
}
