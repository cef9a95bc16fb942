// Package client issues paced, retried calls to a SerpApi-compatible search
// endpoint and returns decoded pages.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/serp-harvest/pkg/cache"
	"github.com/Sternrassler/serp-harvest/pkg/query"
	"github.com/Sternrassler/serp-harvest/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for search API calls.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "serp_requests_total",
		Help: "Total search API requests by engine and status",
	}, []string{"engine", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "serp_request_duration_seconds",
		Help:    "Search API request duration in seconds by engine",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"engine"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "serp_errors_total",
		Help: "Total search API errors by class",
	}, []string{"class"})
)

// DefaultEndpoint is the SerpApi JSON search endpoint.
const DefaultEndpoint = "https://serpapi.com/search.json"

// maxErrorBody bounds how much of an error response is kept for messages.
const maxErrorBody = 200

// ErrorClass represents a classification of failed calls.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors other than auth and throttling.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassAuth represents 401/403 credential rejections.
	ErrorClassAuth ErrorClass = "auth"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 throttling.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassDecode represents a 2xx body that is not a JSON object.
	ErrorClassDecode ErrorClass = "decode"

	// ErrorClassCancelled represents a caller cancellation before the call.
	ErrorClassCancelled ErrorClass = "cancelled"
)

// PageCache is the optional store consulted before calling the API.
// *cache.Manager implements it.
type PageCache interface {
	Get(ctx context.Context, key cache.CacheKey) (*cache.CacheEntry, error)
	Set(ctx context.Context, key cache.CacheKey, entry *cache.CacheEntry) error
}

// Config holds the client configuration.
type Config struct {
	// Endpoint is the search API URL.
	Endpoint string

	// Engine is sent as the "engine" parameter.
	Engine string

	// UserAgent is sent with every request.
	UserAgent string

	// Timeout bounds a single HTTP call.
	Timeout time.Duration

	// Pacing is applied per session (one session per run).
	Pacing ratelimit.Config

	// Retry controls backoff between attempts of one page.
	Retry RetryConfig

	// Cache, when set, serves repeated pages without an API call.
	Cache PageCache

	// CacheTTL is the lifetime of cached pages.
	CacheTTL time.Duration
}

// DefaultConfig returns a safe default configuration for engine.
func DefaultConfig(engine string) Config {
	return Config{
		Endpoint:  DefaultEndpoint,
		Engine:    engine,
		UserAgent: "serp-harvest/0.1",
		Timeout:   15 * time.Second,
		Pacing:    ratelimit.DefaultConfig(),
		Retry:     DefaultRetryConfig(),
		CacheTTL:  cache.DefaultTTL,
	}
}

// Client holds the read-only parts shared by all runs. It is safe for
// concurrent use; per-run state lives in Fetcher.
type Client struct {
	httpClient *http.Client
	endpoint   *url.URL
	config     Config
	sleep      Sleeper
	logger     zerolog.Logger
}

// New creates a new search API client.
func New(cfg Config) (*Client, error) {
	if cfg.Engine == "" {
		return nil, fmt.Errorf("engine is required")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	endpoint, err := url.Parse(cfg.Endpoint)
	if err != nil || endpoint.Scheme == "" || endpoint.Host == "" {
		return nil, fmt.Errorf("invalid endpoint %q", cfg.Endpoint)
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive (got %v)", cfg.Timeout)
	}
	if cfg.Retry.MaxAttempts < 1 {
		return nil, fmt.Errorf("max_attempts must be >= 1 (got %d)", cfg.Retry.MaxAttempts)
	}

	return &Client{
		httpClient: &http.Client{},
		endpoint:   endpoint,
		config:     cfg,
		sleep:      timerSleep,
		logger:     log.With().Str("component", "serp-client").Str("engine", cfg.Engine).Logger(),
	}, nil
}

// Engine returns the configured engine name.
func (c *Client) Engine() string {
	return c.config.Engine
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// SetSleeper replaces the backoff sleeper (for testing).
func (c *Client) SetSleeper(sleep Sleeper) {
	c.sleep = sleep
}

// SetLogger replaces the client logger.
func (c *Client) SetLogger(logger zerolog.Logger) {
	c.logger = logger.With().Str("engine", c.config.Engine).Logger()
}

// Session creates the per-run fetcher bound to cred. Each session owns its
// own pacer, so independent runs never share rate limiter state.
func (c *Client) Session(cred Credential, logger zerolog.Logger) (*Fetcher, error) {
	if cred.Empty() {
		return nil, &AuthError{Message: "no API key configured"}
	}
	logger = logger.With().Str("engine", c.config.Engine).Logger()
	return &Fetcher{
		client: c,
		cred:   cred,
		pacer:  ratelimit.NewPacer(c.config.Pacing, logger),
		logger: logger,
	}, nil
}

// Fetcher performs the calls of one run. Calls must be sequential.
type Fetcher struct {
	client *Client
	cred   Credential
	pacer  *ratelimit.Pacer
	logger zerolog.Logger
}

// Fetch retrieves one page. It returns *AuthError for rejected credentials
// and *FetchFailed for every other failure.
func (f *Fetcher) Fetch(ctx context.Context, page query.PageRequest) (*RawPage, error) {
	c := f.client
	logger := f.logger.With().Int("page", page.Number()).Logger()

	key := cache.CacheKey{Engine: c.config.Engine, Params: page.Params, Cursor: page.Cursor}
	if c.config.Cache != nil {
		if raw := f.fromCache(ctx, key, page, logger); raw != nil {
			return raw, nil
		}
	}

	target, err := f.pageURL(page)
	if err != nil {
		return nil, &FetchFailed{Page: page.Index, Err: err}
	}

	var (
		status  int
		calls   int
		body    []byte
		latency time.Duration
	)

	_, err = retryWithBackoff(ctx, c.config.Retry, c.sleep, logger, func(attempt int) (ErrorClass, time.Duration, error) {
		if _, err := f.pacer.Wait(ctx); err != nil {
			return ErrorClassCancelled, 0, err
		}

		calls++
		var (
			class   ErrorClass
			hint    time.Duration
			callErr error
		)
		status, body, latency, class, hint, callErr = f.do(ctx, target, attempt, logger)
		return class, hint, callErr
	})

	if err != nil {
		var authErr *AuthError
		if errors.As(err, &authErr) {
			return nil, authErr
		}
		return nil, &FetchFailed{Status: status, Page: page.Index, Attempts: calls, Err: err}
	}

	raw, err := DecodePage(page.Index, body)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
		logger.Warn().Err(err).Msg("Undecodable search API response")
		return nil, &FetchFailed{Status: status, Page: page.Index, Attempts: calls, Err: err}
	}
	raw.Status = status
	raw.Attempts = calls
	raw.Latency = latency

	if c.config.Cache != nil {
		if err := c.config.Cache.Set(ctx, key, cache.NewEntry(body, c.config.CacheTTL)); err != nil {
			logger.Warn().Err(err).Msg("Failed to cache page")
		}
	}

	return raw, nil
}

// fromCache returns the cached page or nil. Cache failures fall back to the API.
func (f *Fetcher) fromCache(ctx context.Context, key cache.CacheKey, page query.PageRequest, logger zerolog.Logger) *RawPage {
	entry, err := f.client.config.Cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			logger.Warn().Err(err).Msg("Cache get error")
		}
		return nil
	}

	raw, err := DecodePage(page.Index, entry.Data)
	if err != nil {
		logger.Warn().Err(err).Msg("Discarding undecodable cache entry")
		return nil
	}
	raw.Cached = true
	logger.Debug().Str("key", key.String()).Msg("Page served from cache")
	return raw
}

// do performs one HTTP call and classifies its outcome.
func (f *Fetcher) do(ctx context.Context, target *url.URL, attempt int, logger zerolog.Logger) (int, []byte, time.Duration, ErrorClass, time.Duration, error) {
	c := f.client

	callCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, target.String(), nil)
	if err != nil {
		return 0, nil, 0, ErrorClassClient, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(start)
	requestDuration.WithLabelValues(c.config.Engine).Observe(latency.Seconds())

	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues(c.config.Engine, "network_error").Inc()
		logger.Warn().
			Err(scrubError(err, f.cred)).
			Int("attempt", attempt).
			Dur("latency", latency).
			Str("url", redactURL(target)).
			Msg("Search API request failed")
		return 0, nil, latency, ErrorClassNetwork, 0, scrubError(err, f.cred)
	}
	defer resp.Body.Close()

	requestsTotal.WithLabelValues(c.config.Engine, strconv.Itoa(resp.StatusCode)).Inc()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return resp.StatusCode, nil, latency, ErrorClassNetwork, 0, fmt.Errorf("read body: %w", scrubError(err, f.cred))
	}

	errClass := classifyStatus(resp.StatusCode)
	event := logger.Debug()
	if errClass != "" {
		event = logger.Warn().Str("error_class", string(errClass))
	}
	event.
		Int("attempt", attempt).
		Int("status", resp.StatusCode).
		Dur("latency", latency).
		Str("url", redactURL(target)).
		Msg("Search API request")

	switch errClass {
	case "":
		return resp.StatusCode, body, latency, "", 0, nil
	case ErrorClassAuth:
		errorsTotal.WithLabelValues(string(errClass)).Inc()
		return resp.StatusCode, nil, latency, errClass, 0, &AuthError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(body),
		}
	default:
		errorsTotal.WithLabelValues(string(errClass)).Inc()
		var hint time.Duration
		if errClass == ErrorClassRateLimit {
			hint, _ = ratelimit.RetryAfter(resp.Header, time.Now())
		}
		return resp.StatusCode, nil, latency, errClass, hint, &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: errClass,
			Message:    errorMessage(body),
		}
	}
}

// pageURL builds the request URL with the credential attached.
func (f *Fetcher) pageURL(page query.PageRequest) (*url.URL, error) {
	c := f.client

	if page.HasCursor() {
		next, err := c.endpoint.Parse(page.Cursor)
		if err != nil {
			return nil, fmt.Errorf("parse next-page cursor: %w", err)
		}
		q := next.Query()
		q.Set("api_key", f.cred.secret())
		next.RawQuery = q.Encode()
		return next, nil
	}

	u := *c.endpoint
	q := u.Query()
	for key, values := range page.Params {
		q[key] = append([]string(nil), values...)
	}
	q.Set("engine", c.config.Engine)
	q.Set("api_key", f.cred.secret())
	u.RawQuery = q.Encode()
	return &u, nil
}

// classifyStatus maps an HTTP status to an error class ("" for success).
func classifyStatus(status int) ErrorClass {
	switch {
	case status >= 200 && status < 300:
		return ""
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrorClassAuth
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status >= 500:
		return ErrorClassServer
	default:
		return ErrorClassClient
	}
}

// errorMessage extracts a short message from an error body.
func errorMessage(body []byte) string {
	if raw, err := DecodePage(0, body); err == nil {
		if msg := raw.APIError(); msg != "" {
			return msg
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > maxErrorBody {
		msg = msg[:maxErrorBody] + "..."
	}
	return msg
}

// redactURL renders u with the api_key parameter masked.
func redactURL(u *url.URL) string {
	masked := *u
	q := masked.Query()
	if q.Has("api_key") {
		q.Set("api_key", redacted)
		masked.RawQuery = q.Encode()
	}
	return masked.String()
}

// scrubError masks the credential in transport errors, which embed the URL.
func scrubError(err error, cred Credential) error {
	if err == nil || cred.Empty() {
		return err
	}
	msg := err.Error()
	if !strings.Contains(msg, cred.secret()) {
		return err
	}
	return errors.New(strings.ReplaceAll(msg, cred.secret(), redacted))
}
