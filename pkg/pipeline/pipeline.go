// Package pipeline runs one search intent end to end: build the page
// sequence, fetch it through a paced session, and normalize the results.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/serp-harvest/pkg/client"
	"github.com/Sternrassler/serp-harvest/pkg/engine"
	"github.com/Sternrassler/serp-harvest/pkg/normalize"
	"github.com/Sternrassler/serp-harvest/pkg/pagination"
	"github.com/Sternrassler/serp-harvest/pkg/query"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Options configures a Pipeline.
type Options struct {
	// Profile overrides the engine profile looked up from the client's engine.
	Profile *engine.Profile

	// MaxPages caps pages per run (0 = query.DefaultMaxPages).
	MaxPages int

	// Pagination configures the stop conditions (nil = pagination.DefaultConfig).
	Pagination *pagination.Config

	// OnPage, when set, observes every fetched page before normalization.
	OnPage func(runID string, page *client.RawPage)
}

// Summary holds the counters of one run.
type Summary struct {
	PagesFetched int                   `json:"pages_fetched"`
	PagesFailed  int                   `json:"pages_failed"`
	APICalls     int                   `json:"api_calls"`
	CacheHits    int                   `json:"cache_hits"`
	Dropped      int                   `json:"dropped"`
	Duplicates   int                   `json:"duplicates"`
	StopReason   pagination.StopReason `json:"stop_reason"`
	Elapsed      time.Duration         `json:"elapsed"`
}

// RunOutcome is the result of one run.
type RunOutcome struct {
	RunID   string
	Records []normalize.ResultRecord
	Summary Summary
}

// Pipeline is safe for concurrent Runs; each run owns its session,
// normalizer and controller.
type Pipeline struct {
	client  *client.Client
	profile engine.Profile
	options Options
	logger  zerolog.Logger
}

// New creates a pipeline over c.
func New(c *client.Client, opts Options) (*Pipeline, error) {
	var profile engine.Profile
	if opts.Profile != nil {
		profile = *opts.Profile
	} else {
		p, err := engine.Lookup(c.Engine())
		if err != nil {
			return nil, err
		}
		profile = p
	}
	if opts.MaxPages > 0 {
		profile.Paging.MaxPages = opts.MaxPages
	}
	if opts.Pagination == nil {
		def := pagination.DefaultConfig()
		opts.Pagination = &def
	}

	return &Pipeline{
		client:  c,
		profile: profile,
		options: opts,
		logger:  log.With().Str("component", "pipeline").Str("engine", profile.Name).Logger(),
	}, nil
}

// SetLogger replaces the pipeline logger.
func (p *Pipeline) SetLogger(logger zerolog.Logger) {
	p.logger = logger.With().Str("engine", p.profile.Name).Logger()
}

// Run executes req. Invalid requests and rejected credentials are returned as
// errors with a nil outcome; page failures are absorbed into the summary.
func (p *Pipeline) Run(ctx context.Context, req query.SearchRequest, cred client.Credential) (*RunOutcome, error) {
	runID := uuid.NewString()
	logger := p.logger.With().Str("run_id", runID).Logger()

	req = p.profile.Request(req)
	pages, err := query.Build(req, p.profile.Paging)
	if err != nil {
		logger.Error().Err(err).Msg("Rejected search request")
		return nil, err
	}

	fetcher, err := p.client.Session(cred, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Cannot open search session")
		return nil, err
	}

	norm := normalize.New(p.profile.Schema)
	norm.SetLogger(logger)
	ctrl := pagination.NewController(*p.options.Pagination)
	ctrl.SetLogger(logger)

	logger.Info().
		Str("query", req.Query).
		Int("target", req.Target).
		Int("planned_pages", pages.Planned()).
		Msg("Starting run")

	var records []normalize.ResultRecord
	stats, err := ctrl.Run(ctx, pages, fetcher.Fetch, func(raw *client.RawPage) pagination.Yield {
		if p.options.OnPage != nil {
			p.options.OnPage(runID, raw)
		}
		kept, yield := norm.Page(raw)
		records = append(records, kept...)
		return yield
	})
	if err != nil {
		logger.Error().Err(err).Msg("Run aborted")
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}

	if len(records) > req.Target {
		records = records[:req.Target]
	}

	outcome := &RunOutcome{
		RunID:   runID,
		Records: records,
		Summary: Summary{
			PagesFetched: stats.PagesFetched,
			PagesFailed:  stats.PagesFailed,
			APICalls:     stats.APICalls,
			CacheHits:    stats.CacheHits,
			Dropped:      norm.Dropped(),
			Duplicates:   norm.Duplicates(),
			StopReason:   stats.StopReason,
			Elapsed:      stats.Elapsed,
		},
	}

	for _, problem := range norm.ParseErrors() {
		logger.Debug().Err(problem).Msg("Entry dropped")
	}

	logger.Info().
		Int("records", len(records)).
		Int("pages_fetched", stats.PagesFetched).
		Int("pages_failed", stats.PagesFailed).
		Int("dropped", outcome.Summary.Dropped).
		Int("duplicates", outcome.Summary.Duplicates).
		Str("stop_reason", string(stats.StopReason)).
		Dur("duration", stats.Elapsed).
		Msg("Run complete")

	return outcome, nil
}
