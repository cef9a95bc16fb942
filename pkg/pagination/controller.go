package pagination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/serp-harvest/pkg/client"
	"github.com/Sternrassler/serp-harvest/pkg/query"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for pagination.
var (
	pagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "serp_pages_total",
		Help: "Total pages processed by outcome (fetched, cached, failed)",
	}, []string{"outcome"})

	stopsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "serp_pagination_stops_total",
		Help: "Total pagination runs by stop reason",
	}, []string{"reason"})
)

// DefaultFailureThreshold is the number of consecutive failed pages tolerated.
const DefaultFailureThreshold = 2

// StopReason records why a run ended.
type StopReason string

const (
	// StopTargetReached means the consumer kept at least Target results.
	StopTargetReached StopReason = "target_reached"

	// StopEmptyPage means a page returned no entries.
	StopEmptyPage StopReason = "empty_page"

	// StopExhausted means the page sequence ended.
	StopExhausted StopReason = "exhausted"

	// StopFailures means more than FailureThreshold pages failed in a row.
	StopFailures StopReason = "consecutive_failures"

	// StopCancelled means the context was cancelled between pages.
	StopCancelled StopReason = "cancelled"
)

// Config holds controller configuration.
type Config struct {
	// FailureThreshold is the number of consecutive page failures tolerated;
	// one more ends the run.
	FailureThreshold int
}

// DefaultConfig returns the default controller configuration.
func DefaultConfig() Config {
	return Config{FailureThreshold: DefaultFailureThreshold}
}

// FetchFunc retrieves one page. *client.Fetcher.Fetch satisfies it.
type FetchFunc func(ctx context.Context, page query.PageRequest) (*client.RawPage, error)

// Yield reports what the consumer made of one page.
type Yield struct {
	// Entries is the number of raw entries on the page.
	Entries int

	// Kept is the number of new distinct results the page contributed.
	Kept int
}

// PageConsumer receives each successfully fetched page in order.
type PageConsumer func(page *client.RawPage) Yield

// Stats summarizes a run.
type Stats struct {
	PagesFetched int
	PagesFailed  int
	APICalls     int
	CacheHits    int
	Kept         int
	StopReason   StopReason
	Elapsed      time.Duration
}

// Controller walks a page sequence. It holds no per-run state and may be
// shared by concurrent runs.
type Controller struct {
	config Config
	logger zerolog.Logger
}

// NewController creates a new controller.
func NewController(config Config) *Controller {
	if config.FailureThreshold < 0 {
		config.FailureThreshold = DefaultFailureThreshold
	}
	return &Controller{
		config: config,
		logger: log.With().Str("component", "pagination").Logger(),
	}
}

// SetLogger replaces the controller logger.
func (c *Controller) SetLogger(logger zerolog.Logger) {
	c.logger = logger
}

// Run fetches pages until a stop condition holds. It returns an error only
// for fatal conditions (rejected credential, unexpected fetch errors); page
// failures and cancellation are reported through Stats.
func (c *Controller) Run(ctx context.Context, pages *query.Pages, fetch FetchFunc, consume PageConsumer) (Stats, error) {
	start := time.Now()
	target := pages.Target()

	var (
		stats       Stats
		consecutive int
	)
	finish := func(reason StopReason) Stats {
		stats.StopReason = reason
		stats.Elapsed = time.Since(start)
		stopsTotal.WithLabelValues(string(reason)).Inc()
		c.logger.Info().
			Str("stop_reason", string(reason)).
			Int("pages_fetched", stats.PagesFetched).
			Int("pages_failed", stats.PagesFailed).
			Int("api_calls", stats.APICalls).
			Int("kept", stats.Kept).
			Dur("duration", stats.Elapsed).
			Msg("Pagination complete")
		return stats
	}

	// In-flight calls run to completion; cancellation is observed between pages.
	fetchCtx := context.WithoutCancel(ctx)

	for {
		if ctx.Err() != nil {
			return finish(StopCancelled), nil
		}

		page, ok := pages.Next()
		if !ok {
			return finish(StopExhausted), nil
		}

		raw, err := fetch(fetchCtx, page)
		if err != nil {
			var failed *client.FetchFailed
			if !errors.As(err, &failed) {
				stats.Elapsed = time.Since(start)
				c.logger.Error().
					Err(err).
					Int("page", page.Number()).
					Msg("Pagination aborted")
				return stats, fmt.Errorf("page %d: %w", page.Number(), err)
			}

			stats.PagesFailed++
			stats.APICalls += failed.Attempts
			consecutive++
			pagesTotal.WithLabelValues("failed").Inc()
			c.logger.Warn().
				Err(err).
				Int("page", page.Number()).
				Int("consecutive_failures", consecutive).
				Msg("Page fetch failed")

			// No cursor can follow a failed page.
			pages.Advance("")

			if consecutive > c.config.FailureThreshold {
				return finish(StopFailures), nil
			}
			continue
		}

		consecutive = 0
		stats.PagesFetched++
		if raw.Cached {
			stats.CacheHits++
			pagesTotal.WithLabelValues("cached").Inc()
		} else {
			stats.APICalls += raw.Attempts
			pagesTotal.WithLabelValues("fetched").Inc()
		}

		yield := consume(raw)
		stats.Kept += yield.Kept
		pages.Advance(raw.NextCursor())

		c.logger.Debug().
			Int("page", page.Number()).
			Int("entries", yield.Entries).
			Int("kept", yield.Kept).
			Int("total_kept", stats.Kept).
			Bool("cached", raw.Cached).
			Msg("Page processed")

		if stats.Kept >= target {
			return finish(StopTargetReached), nil
		}
		if yield.Entries == 0 {
			return finish(StopEmptyPage), nil
		}
	}
}

// Collect runs the sequence and returns the fetched pages in order. Raw
// entries under resultsKey count toward the target.
func (c *Controller) Collect(ctx context.Context, pages *query.Pages, fetch FetchFunc, resultsKey string) ([]*client.RawPage, Stats, error) {
	var out []*client.RawPage
	stats, err := c.Run(ctx, pages, fetch, func(raw *client.RawPage) Yield {
		out = append(out, raw)
		n := len(raw.Entries(resultsKey))
		return Yield{Entries: n, Kept: n}
	})
	return out, stats, err
}
