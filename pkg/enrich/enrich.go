// Package enrich looks up contact emails on the websites of search results.
package enrich

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/Sternrassler/serp-harvest/pkg/normalize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

var requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "serp_enrich_requests_total",
	Help: "Total website fetches for email enrichment by outcome",
}, []string{"outcome"})

var emailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)

// blacklist holds substrings that mark an address as a placeholder, an asset
// name or a third-party vendor.
var blacklist = []string{
	"noreply",
	"no-reply",
	"example.com",
	"test.com",
	".png",
	".jpg",
	".jpeg",
	".gif",
	".svg",
	"godaddy.com",
	"afterpay",
	"logo",
	"website.com",
}

// Config holds enrichment settings.
type Config struct {
	// RequestsPerSecond paces website fetches across all records.
	RequestsPerSecond float64

	// Timeout bounds one website fetch.
	Timeout time.Duration

	UserAgent string

	// MaxBodyBytes caps how much of a page is read.
	MaxBodyBytes int64
}

// DefaultConfig returns one request per second with a 10s timeout.
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 1,
		Timeout:           10 * time.Second,
		UserAgent:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64)",
		MaxBodyBytes:      2 << 20,
	}
}

// Enricher fetches websites one at a time under a shared rate limit.
type Enricher struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	config     Config
	logger     zerolog.Logger
}

// New creates an enricher.
func New(cfg Config) *Enricher {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultConfig().MaxBodyBytes
	}
	return &Enricher{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(limit, 1),
		config:     cfg,
		logger:     log.With().Str("component", "enrich").Logger(),
	}
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (e *Enricher) SetHTTPClient(client *http.Client) {
	e.httpClient = client
}

// SetLogger replaces the enricher logger.
func (e *Enricher) SetLogger(logger zerolog.Logger) {
	e.logger = logger
}

// Enrich fills Email for records that have a website and no email yet. It
// returns the number of emails found. Fetch failures are logged and skipped;
// only cancellation stops the loop early.
func (e *Enricher) Enrich(ctx context.Context, records []normalize.ResultRecord) int {
	found := 0
	for i := range records {
		r := &records[i]
		if r.URL == "" || r.Email != "" {
			continue
		}
		if ctx.Err() != nil {
			break
		}

		email, err := e.FindEmail(ctx, r.URL)
		if err != nil {
			e.logger.Warn().Err(err).Str("website", r.URL).Msg("Email lookup failed")
			continue
		}
		if email != "" {
			r.Email = email
			found++
		}
	}

	e.logger.Info().Int("records", len(records)).Int("emails_found", found).Msg("Enrichment complete")
	return found
}

// FindEmail fetches website and returns the first acceptable address on it,
// or "" when there is none.
func (e *Enricher) FindEmail(ctx context.Context, website string) (string, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("enrich wait: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, website, nil)
	if err != nil {
		requestsTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("create request: %w", err)
	}
	if e.config.UserAgent != "" {
		req.Header.Set("User-Agent", e.config.UserAgent)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		requestsTotal.WithLabelValues("error").Inc()
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		requestsTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("website returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, e.config.MaxBodyBytes))
	if err != nil {
		requestsTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("read website: %w", err)
	}

	email := ExtractEmail(body)
	if email == "" {
		requestsTotal.WithLabelValues("none").Inc()
	} else {
		requestsTotal.WithLabelValues("found").Inc()
	}
	e.logger.Debug().Str("website", website).Bool("found", email != "").Msg("Website scanned")
	return email, nil
}

// ExtractEmail returns the first acceptable address in an HTML page. mailto
// links are preferred over addresses found in the page text.
func ExtractEmail(html []byte) string {
	if doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html)); err == nil {
		var email string
		doc.Find(`a[href^="mailto:"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			href, _ := s.Attr("href")
			addr := strings.TrimPrefix(href, "mailto:")
			if i := strings.IndexByte(addr, '?'); i >= 0 {
				addr = addr[:i]
			}
			addr = strings.TrimSpace(addr)
			if emailPattern.MatchString(addr) && Acceptable(addr) {
				email = addr
				return false
			}
			return true
		})
		if email != "" {
			return email
		}
	}

	for _, candidate := range emailPattern.FindAllString(string(html), -1) {
		if Acceptable(candidate) {
			return candidate
		}
	}
	return ""
}

// Acceptable reports whether addr passes the blacklist.
func Acceptable(addr string) bool {
	lower := strings.ToLower(addr)
	for _, bad := range blacklist {
		if strings.Contains(lower, bad) {
			return false
		}
	}
	return true
}
