// Package ratelimit paces outbound search API calls with a token bucket and
// interprets throttling signals returned by the API.
//
// A Pacer is owned by exactly one run. Calls within a run are sequential, so
// the bucket state needs no coordination beyond what rate.Limiter provides.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Prometheus metrics for pacing.
var (
	pacerWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "serp_pacer_wait_seconds",
		Help:    "Time spent waiting for a request token",
		Buckets: []float64{0, 0.1, 0.25, 0.5, 1, 2, 5},
	})

	pacerThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "serp_pacer_throttles_total",
		Help: "Total number of requests delayed by the pacer",
	})
)

// Config holds pacing parameters.
type Config struct {
	// RequestsPerSecond is the aggregate call ceiling. Zero or negative disables pacing.
	RequestsPerSecond float64

	// Burst is the number of calls allowed back to back (minimum 1).
	Burst int
}

// DefaultConfig returns a conservative pacing configuration.
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 1,
		Burst:             1,
	}
}

// Pacer enforces the minimum interval between calls of one run.
type Pacer struct {
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewPacer creates a pacer. A non-positive rate yields an unlimited pacer.
func NewPacer(cfg Config, logger zerolog.Logger) *Pacer {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	return &Pacer{
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}
}

// Wait blocks until the next call may be issued and returns the time spent waiting.
func (p *Pacer) Wait(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := p.limiter.Wait(ctx); err != nil {
		return time.Since(start), fmt.Errorf("pacer wait: %w", err)
	}

	waited := time.Since(start)
	pacerWaitSeconds.Observe(waited.Seconds())
	if waited > time.Millisecond {
		pacerThrottlesTotal.Inc()
		p.logger.Debug().
			Dur("waited", waited).
			Msg("Request paced")
	}
	return waited, nil
}

// Limit returns the configured calls per second (math.MaxFloat64 when unlimited).
func (p *Pacer) Limit() float64 {
	return float64(p.limiter.Limit())
}
