// Package provider fetches earnings and daily prices from Alpha Vantage
// through one rate-limited gate.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	apperrors "earnings-tracker/internal/errors"
	"earnings-tracker/internal/logging"
	"earnings-tracker/internal/metrics"
	"earnings-tracker/internal/resilience"
	"earnings-tracker/internal/security"
	"earnings-tracker/pkg/utils"
)

const (
	// DefaultBaseURL is the Alpha Vantage query endpoint.
	DefaultBaseURL = "https://www.alphavantage.co/query"

	// DefaultMinInterval keeps the free tier's five calls per minute.
	DefaultMinInterval = 12 * time.Second

	DefaultCooldown   = 60 * time.Second
	DefaultMaxRetries = 3
	DefaultRetryWait  = 5 * time.Second
	DefaultTimeout    = 30 * time.Second

	// ServiceName identifies the provider in monitors and health checks.
	ServiceName = "alphavantage"
)

// PayloadCache keeps the last good raw response per request key.
type PayloadCache interface {
	SavePayload(ctx context.Context, key string, body []byte) error
	LoadPayload(ctx context.Context, key string) ([]byte, time.Time, error)
}

// Request is one provider query.
type Request struct {
	Function string
	Symbol   string
	Params   url.Values
	// DataKey is the top-level key a successful body carries.
	DataKey string
}

// Key identifies the request in the payload cache.
func (r Request) Key() string {
	if r.Symbol == "" {
		return r.Function
	}
	return r.Function + ":" + r.Symbol
}

// Payload is a raw provider response.
type Payload struct {
	Body      []byte
	FetchedAt time.Time
	Attempts  int
	// Stale marks a body served from the payload cache after a failed fetch.
	Stale bool
}

// Client is an Alpha Vantage API client. All requests made through one
// client share its limiter.
type Client struct {
	baseURL    string
	apiKey     string
	limiter    *rate.Limiter
	httpClient *http.Client
	cooldown   time.Duration
	maxRetries int
	retryWait  time.Duration
	timeout    time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
	now        func() time.Time
	cache      PayloadCache
	breaker    *resilience.CircuitBreaker
	monitor    *resilience.ServiceMonitor
	logger     zerolog.Logger
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = baseURL
		}
	}
}

// WithMinInterval sets the minimum gap between any two outbound calls.
func WithMinInterval(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.limiter = rate.NewLimiter(rate.Every(d), 1)
		} else {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
		}
	}
}

// WithCooldown sets the wait after an in-band rate-limit marker.
func WithCooldown(d time.Duration) ClientOption {
	return func(c *Client) { c.cooldown = d }
}

// WithMaxRetries bounds both marker retries and transport retries.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithRetryWait sets the linear backoff unit for network and 5xx errors.
func WithRetryWait(d time.Duration) ClientOption {
	return func(c *Client) { c.retryWait = d }
}

// WithTimeout bounds how long one attempt waits for response headers.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithSleep replaces the cooldown sleep, mainly in tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) ClientOption {
	return func(c *Client) { c.sleep = sleep }
}

// WithPayloadCache enables last-known-good fallback.
func WithPayloadCache(cache PayloadCache) ClientOption {
	return func(c *Client) { c.cache = cache }
}

// WithQuotaCircuit stops new fetches while the quota is exhausted.
func WithQuotaCircuit(cb *resilience.CircuitBreaker) ClientOption {
	return func(c *Client) { c.breaker = cb }
}

// WithServiceMonitor records call outcomes for status reporting.
func WithServiceMonitor(m *resilience.ServiceMonitor) ClientOption {
	return func(c *Client) { c.monitor = m }
}

// WithLogger sets a logger.
func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a new Alpha Vantage API client.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		apiKey:     apiKey,
		limiter:    rate.NewLimiter(rate.Every(DefaultMinInterval), 1),
		cooldown:   DefaultCooldown,
		maxRetries: DefaultMaxRetries,
		retryWait:  DefaultRetryWait,
		timeout:    DefaultTimeout,
		sleep:      utils.SleepContext,
		now:        time.Now,
		logger:     zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.httpClient = c.newHTTPClient()
	return c
}

// newHTTPClient builds the retrying client. The gate sits below the retry
// layer so every physical attempt waits its turn. The timeout bounds the wait
// for response headers only; time queued at the gate does not count.
func (c *Client) newHTTPClient() *http.Client {
	rc := retryablehttp.NewClient()
	rc.Logger = nil
	rc.RetryMax = c.maxRetries
	rc.RetryWaitMin = c.retryWait
	rc.RetryWaitMax = c.retryWait * time.Duration(c.maxRetries+1)
	rc.Backoff = linearBackoff(c.retryWait)
	rc.CheckRetry = checkRetry
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	base := http.DefaultTransport.(*http.Transport).Clone()
	base.ResponseHeaderTimeout = c.timeout
	rc.HTTPClient = &http.Client{
		Transport: &gatedTransport{base: base, limiter: c.limiter},
	}
	return rc.StandardClient()
}

func linearBackoff(unit time.Duration) retryablehttp.Backoff {
	return func(_, _ time.Duration, attemptNum int, _ *http.Response) time.Duration {
		return unit * time.Duration(attemptNum+1)
	}
}

// checkRetry retries connection errors and 5xx. 429 is left to the
// cooldown loop.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// gatedTransport waits on the shared limiter before each round trip.
type gatedTransport struct {
	base    http.RoundTripper
	limiter *rate.Limiter
}

func (t *gatedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	if n, ok := req.Context().Value(callCounterKey{}).(*atomic.Int32); ok {
		n.Add(1)
	}
	return t.base.RoundTrip(req)
}

// callCounterKey carries the number of physical calls made for one Fetch,
// transport retries included.
type callCounterKey struct{}

// Fetch performs req, cooling down and retrying on rate-limit markers. On
// persistent failure it serves the cached payload, marked stale, if one exists.
func (c *Client) Fetch(ctx context.Context, req Request) (*Payload, error) {
	start := time.Now()
	logger := logging.WithSymbol(c.logger, req.Symbol).With().Str("function", req.Function).Logger()
	calls := new(atomic.Int32)
	ctx = context.WithValue(ctx, callCounterKey{}, calls)

	if c.breaker != nil {
		if err := c.breaker.Allow(); err != nil {
			perr := apperrors.NewProviderError(req.Function, req.Symbol, 0, "quota circuit open",
				fmt.Errorf("%w: %w", apperrors.ErrRateLimited, err))
			return c.fallback(ctx, req, perr, start, logger)
		}
	}

	for attempt := 1; ; attempt++ {
		callStart := time.Now()
		body, err := c.do(ctx, req)
		logging.LogAPICall(logger, req.Function, req.Symbol, attempt, time.Since(callStart), err)
		if c.monitor != nil {
			c.monitor.UpdateStatus(ServiceName, time.Since(callStart), err)
		}

		if err == nil {
			c.recordOutcome(nil)
			if c.cache != nil {
				if cerr := c.cache.SavePayload(ctx, req.Key(), body); cerr != nil {
					logger.Warn().Err(cerr).Msg("Failed to cache provider payload")
				}
			}
			metrics.RecordProviderCall(req.Function, "success", time.Since(start))
			return &Payload{Body: body, FetchedAt: c.now(), Attempts: int(calls.Load())}, nil
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if !errors.Is(err, apperrors.ErrRateLimited) {
			perr := apperrors.NewProviderError(req.Function, req.Symbol, int(calls.Load()), "request failed", err)
			c.recordOutcome(perr)
			return c.fallback(ctx, req, perr, start, logger)
		}

		if attempt > c.maxRetries {
			perr := apperrors.NewProviderError(req.Function, req.Symbol, int(calls.Load()), "rate limit persisted", err)
			if c.recordOutcome(perr) {
				metrics.QuotaCircuitTrips.Inc()
				logger.Warn().Msg("Provider quota exhausted; halting fetches")
			}
			return c.fallback(ctx, req, perr, start, logger)
		}

		logger.Warn().
			Int("attempt", attempt).
			Dur("cooldown", c.cooldown).
			Msg("Rate limit marker received; cooling down")
		metrics.ProviderCooldowns.Inc()
		if err := c.sleep(ctx, c.cooldown); err != nil {
			return nil, err
		}
	}
}

// recordOutcome feeds the final outcome of a fetch to the quota circuit and
// reports whether it tripped the circuit open.
func (c *Client) recordOutcome(err error) bool {
	if c.breaker == nil {
		return false
	}
	wasOpen := c.breaker.IsOpen()
	c.breaker.Record(err)
	return !wasOpen && c.breaker.IsOpen()
}

func (c *Client) fallback(ctx context.Context, req Request, cause error, start time.Time, logger zerolog.Logger) (*Payload, error) {
	status := "error"
	if errors.Is(cause, apperrors.ErrRateLimited) {
		status = "rate_limited"
	}

	if c.cache != nil {
		body, fetchedAt, err := c.cache.LoadPayload(ctx, req.Key())
		if err == nil {
			logger.Warn().
				Err(cause).
				Time("fetched_at", fetchedAt).
				Msg("Serving cached provider payload")
			metrics.RecordProviderCall(req.Function, "stale", time.Since(start))
			return &Payload{Body: body, FetchedAt: fetchedAt, Stale: true}, nil
		}
	}

	metrics.RecordProviderCall(req.Function, status, time.Since(start))
	return nil, cause
}

// do performs one logical HTTP call and classifies the outcome.
func (c *Client) do(ctx context.Context, req Request) ([]byte, error) {
	params := url.Values{}
	for k, v := range req.Params {
		params[k] = v
	}
	params.Set("function", req.Function)
	if req.Symbol != "" {
		params.Set("symbol", req.Symbol)
	}
	params.Set("apikey", c.apiKey)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportError(err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: HTTP 429", apperrors.ErrRateLimited)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: HTTP %d: %s", apperrors.ErrProvider, resp.StatusCode, truncate(body, 200))
	}

	return body, inspectBody(body, req.DataKey)
}

// inspectBody detects in-band errors in a 200 response.
func inspectBody(body []byte, dataKey string) error {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil {
		return fmt.Errorf("%w: malformed response: %v", apperrors.ErrProvider, err)
	}
	if dataKey != "" {
		if _, ok := top[dataKey]; ok {
			return nil
		}
	}
	for _, key := range []string{"Note", "Information"} {
		if raw, ok := top[key]; ok {
			return fmt.Errorf("%w: %s", apperrors.ErrRateLimited, message(raw))
		}
	}
	if raw, ok := top["Error Message"]; ok {
		return fmt.Errorf("%w: %s", apperrors.ErrProvider, message(raw))
	}
	if dataKey != "" {
		return fmt.Errorf("%w: response lacks %q", apperrors.ErrProvider, dataKey)
	}
	return nil
}

func message(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func classifyTransportError(err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		// the wrapping *url.Error would quote the request URL, key included
		return context.Canceled
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("%w: %s", apperrors.ErrTimeout, security.RedactError(err))
	default:
		return fmt.Errorf("%w: %s", apperrors.ErrProvider, security.RedactError(err))
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
