package crunchyroll

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultBaseURL        = "https://beta-api.crunchyroll.com"
	defaultBasicAuth      = "MWVud2kxNnp2dnI4eWI1ajRqc3A6MVBmSHpSRndlXzBKVzMxQzNwUDFQU2hNNWNzdTBpNS0="
	defaultUserAgent      = "Crunchyroll/3.31.1 Android/8.0.0 okhttp/4.9.2"
	defaultAcceptEncoding = "gzip"
	defaultRequestTimeout = 30 * time.Second
	errorBodyLimit        = 4096
)

// Identity holds the product-identity values the remote API expects on every
// call. They are not user state and must be sent verbatim.
type Identity struct {
	BaseURL        string
	BasicAuth      string
	UserAgent      string
	AcceptEncoding string
}

// DefaultIdentity returns the Android client identity accepted by the API.
func DefaultIdentity() Identity {
	return Identity{
		BaseURL:        defaultBaseURL,
		BasicAuth:      defaultBasicAuth,
		UserAgent:      defaultUserAgent,
		AcceptEncoding: defaultAcceptEncoding,
	}
}

func (id Identity) normalized() (Identity, error) {
	id.BaseURL = strings.TrimRight(strings.TrimSpace(id.BaseURL), "/")
	id.BasicAuth = strings.TrimSpace(id.BasicAuth)
	id.UserAgent = strings.TrimSpace(id.UserAgent)
	id.AcceptEncoding = strings.TrimSpace(id.AcceptEncoding)
	if id.BaseURL == "" {
		return id, errors.New("crunchyroll base url required")
	}
	if _, err := url.Parse(id.BaseURL); err != nil {
		return id, fmt.Errorf("parse crunchyroll base url: %w", err)
	}
	if id.BasicAuth == "" {
		return id, errors.New("crunchyroll basic auth token required")
	}
	if id.UserAgent == "" {
		return id, errors.New("crunchyroll user agent required")
	}
	return id, nil
}

// RefreshPolicy decides what happens when a token refresh fails.
type RefreshPolicy int

const (
	// RefreshStrict fails the pending call with the refresh error.
	RefreshStrict RefreshPolicy = iota
	// RefreshPermissive logs the failure and proceeds with the stale token.
	RefreshPermissive
)

func (p RefreshPolicy) String() string {
	if p == RefreshPermissive {
		return "permissive"
	}
	return "strict"
}

// ParseRefreshPolicy maps a configuration value onto a RefreshPolicy.
func ParseRefreshPolicy(value string) (RefreshPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "strict":
		return RefreshStrict, nil
	case "permissive":
		return RefreshPermissive, nil
	default:
		return RefreshStrict, fmt.Errorf("unknown refresh policy %q", value)
	}
}

// HTTPDoer abstracts http.Client.Do for testing.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for API calls.
func WithHTTPClient(client HTTPDoer) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithClock overrides the time source used for token expiry (used in tests).
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger attaches a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRateLimit caps outgoing requests per second. A non-positive rate
// disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithRefreshPolicy selects the behaviour on refresh failure.
func WithRefreshPolicy(policy RefreshPolicy) Option {
	return func(c *Client) {
		c.refreshPolicy = policy
	}
}

// Client performs authenticated calls against the API. It is safe for
// concurrent use; the token is guarded by a read/write mutex.
type Client struct {
	identity      Identity
	httpClient    HTTPDoer
	logger        *slog.Logger
	limiter       *rate.Limiter
	refreshPolicy RefreshPolicy
	now           func() time.Time

	mu            sync.RWMutex
	token         AuthToken
	lifecycle     *TokenLifecycle
	authenticated bool
}

// New builds an unauthenticated Client. Call Login before any content call.
func New(identity Identity, opts ...Option) (*Client, error) {
	normalized, err := identity.normalized()
	if err != nil {
		return nil, err
	}
	client := &Client{
		identity:   normalized,
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		logger:     slog.New(slog.DiscardHandler),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(client)
	}
	client.lifecycle = NewTokenLifecycle(client.now)
	return client, nil
}

// Token returns a snapshot of the current credential state.
func (c *Client) Token() AuthToken {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Authenticated reports whether Login has succeeded on this client.
func (c *Client) Authenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authenticated
}

// TokenValid reports whether the access token can be used without a refresh.
func (c *Client) TokenValid() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authenticated && c.lifecycle.IsValid()
}

func (c *Client) endpoint(path string, query url.Values) (string, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	endpoint, err := url.Parse(c.identity.BaseURL + path)
	if err != nil {
		return "", fmt.Errorf("parse crunchyroll url: %w", err)
	}
	if len(query) > 0 {
		merged := endpoint.Query()
		for key, values := range query {
			for _, v := range values {
				merged.Add(key, v)
			}
		}
		endpoint.RawQuery = merged.Encode()
	}
	return endpoint.String(), nil
}

// send waits for the rate limiter and executes the request.
func (c *Client) send(req *http.Request) (*http.Response, time.Duration, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return nil, 0, fmt.Errorf("wait for rate limiter: %w", err)
		}
	}
	requestStart := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(requestStart)
	if err != nil {
		return nil, latency, fmt.Errorf("execute request (latency=%v): %w", latency, err)
	}
	return resp, latency, nil
}

// bodyReader undoes gzip content-encoding, which the transport leaves alone
// because Accept-Encoding is set explicitly.
func bodyReader(resp *http.Response) (io.ReadCloser, error) {
	if strings.EqualFold(strings.TrimSpace(resp.Header.Get("Content-Encoding")), "gzip") {
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("open gzip body: %w", err)
		}
		return zr, nil
	}
	return io.NopCloser(resp.Body), nil
}

func readErrorBody(resp *http.Response) string {
	reader, err := bodyReader(resp)
	if err != nil {
		return ""
	}
	defer reader.Close()
	data, _ := io.ReadAll(io.LimitReader(reader, errorBodyLimit))
	return strings.TrimSpace(string(data))
}
