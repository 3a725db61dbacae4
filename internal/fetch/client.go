// Package fetch implements the Throttled Fetch component: a browser-mimicking
// HTTP/2 client with a pre-call delay, bounded retry, exponential backoff
// with jitter, and Chrome-shaped headers on the real host OS (spec §4.2).
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"runtime"
	"time"

	"golang.org/x/net/http2"

	"github.com/antigravity-proxy/antigravity-proxy/internal/fingerprint"
	"github.com/antigravity-proxy/antigravity-proxy/internal/jitter"
	"github.com/antigravity-proxy/antigravity-proxy/internal/logger"
)

// MaxRetries is the number of additional attempts after the first (spec §4.2).
const MaxRetries = 2

// retriableStatuses are server errors worth retrying; 429 is deliberately
// excluded so the pool can switch accounts instead.
var retriableStatuses = map[int]bool{500: true, 502: true, 503: true, 504: true}

// Request is one outbound call through the throttled client.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

// Response is the result of a throttled call; HTTP error statuses are
// returned here, never as an error (spec §4.2).
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Client issues Throttled Fetch requests.
type Client struct {
	httpClient      *http.Client
	ThrottleEnabled bool
	BaseDelayMs     int
}

// Option configures a Client.
type Option func(*Client)

// WithThrottle enables or disables the pre-call delay (spec §6's
// requestThrottlingEnabled knob).
func WithThrottle(enabled bool, baseDelayMs int) Option {
	return func(c *Client) {
		c.ThrottleEnabled = enabled
		c.BaseDelayMs = baseDelayMs
	}
}

// New builds a Client with an HTTP/2 transport.
func New(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Transport: &http2.Transport{
				AllowHTTP: false,
			},
		},
		ThrottleEnabled: true,
		BaseDelayMs:     200,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetHTTPClientForTest swaps the underlying HTTP client, bypassing the
// HTTP/2-only transport so tests can point at a plaintext httptest.Server.
func (c *Client) SetHTTPClientForTest(hc *http.Client) {
	c.httpClient = hc
}

// ChromeProfile is the rotating browser identity Throttled Fetch attaches to
// every request: a Chrome build on the real host OS, desktop device class,
// en-US locale (spec §4.2). Go's stdlib TLS stack can't reproduce a
// browser's exact ClientHello/JA3 fingerprint; this profile only shapes
// header order/values, which is recorded as an open limitation in
// DESIGN.md.
type ChromeProfile struct {
	ChromeVersion string
	Platform      string
	Locale        string
}

var chromeVersions = []string{
	"124.0.6367.207",
	"126.0.6478.127",
	"128.0.6613.137",
	"130.0.6723.92",
}

// RotateChromeProfile picks a fresh Chrome >= 110 build for the host OS.
func RotateChromeProfile() ChromeProfile {
	return ChromeProfile{
		ChromeVersion: chromeVersions[rand.IntN(len(chromeVersions))],
		Platform:      fingerprint.HostPlatform(runtime.GOOS),
		Locale:        "en-US",
	}
}

// Do issues req, applying the pre-call delay and retry policy of spec §4.2.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	if c.ThrottleEnabled {
		delay := jitter.PreCallDelay(c.BaseDelayMs)
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	var lastErr error
	for attempt := 0; attempt <= MaxRetries; attempt++ {
		resp, err := c.attempt(ctx, req)
		if err == nil {
			if !retriableStatuses[resp.StatusCode] {
				return resp, nil
			}
			lastErr = fmt.Errorf("upstream returned retriable status %d", resp.StatusCode)
		} else if jitter.IsNetworkError(err.Error()) {
			lastErr = err
		} else {
			// Not retriable: surface immediately (e.g. a malformed request).
			return nil, err
		}

		if attempt == MaxRetries {
			break
		}

		logger.Debug("throttled fetch retrying", "attempt", attempt, "url", req.URL, "error", lastErr)
		backoff := jitter.RetryBackoff(attempt)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("throttled fetch exhausted retries: %w", lastErr)
}

func (c *Client) attempt(ctx context.Context, req Request) (*Response, error) {
	profile := RotateChromeProfile()

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	httpReq.Header.Set("Accept-Language", profile.Locale)
	httpReq.Header.Set("Sec-Ch-Ua-Platform", fmt.Sprintf(`"%s"`, profile.Platform))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	return &Response{StatusCode: resp.StatusCode, Headers: resp.Header, Body: body}, nil
}
