package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Sternrassler/serp-harvest/pkg/cache"
	"github.com/Sternrassler/serp-harvest/pkg/client"
	"github.com/Sternrassler/serp-harvest/pkg/config"
	"github.com/Sternrassler/serp-harvest/pkg/enrich"
	"github.com/Sternrassler/serp-harvest/pkg/logging"
	"github.com/Sternrassler/serp-harvest/pkg/metrics"
	"github.com/Sternrassler/serp-harvest/pkg/normalize"
	"github.com/Sternrassler/serp-harvest/pkg/pipeline"
	"github.com/Sternrassler/serp-harvest/pkg/query"
	"github.com/Sternrassler/serp-harvest/pkg/sink"
	"github.com/alexflint/go-arg"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	programName = "serp-harvest"
	version     = "v0.1.0"

	// maxConcurrentRuns bounds how many queries are harvested at once.
	maxConcurrentRuns = 4
)

type args struct {
	Config      string   `arg:"--config,-c" default:"config.yaml" help:"settings document"`
	Query       []string `arg:"--query,-q,separate" help:"search query (repeatable)"`
	Target      int      `arg:"--target,-n" default:"20" help:"distinct results wanted per query"`
	Engine      string   `arg:"--engine,-e" help:"override serpapi.engine"`
	Location    string   `arg:"--location" help:"engine location string"`
	Locale      string   `arg:"--locale" default:"en" help:"interface language (hl)"`
	Region      string   `arg:"--region" help:"country code (gl)"`
	MetricsAddr string   `arg:"--metrics-addr" help:"serve /metrics and /health on this address"`
	Enrich      bool     `arg:"--enrich" help:"look up emails on result websites"`
}

func (args) Version() string {
	return fmt.Sprintf("%s %s", programName, version)
}

func (args) Description() string {
	return "Harvests paginated search results from SerpApi into CSV and bbolt files."
}

func main() {
	var a args
	p, err := arg.NewParser(arg.Config{Program: programName}, &a)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid argument definition: %v\n", err)
		os.Exit(2)
	}
	p.MustParse(os.Args[1:])
	if len(a.Query) == 0 {
		p.Fail("at least one --query is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, a, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", programName, err)
		os.Exit(1)
	}
}

// queryResult is the outcome of one --query.
type queryResult struct {
	query   string
	outcome *pipeline.RunOutcome
}

func run(ctx context.Context, a args, stdout, stderr io.Writer) error {
	settings, err := config.Load(a.Config)
	if err != nil {
		return err
	}
	if a.Engine != "" {
		settings.SerpAPI.Engine = a.Engine
	}
	if a.Enrich {
		settings.Enrich.Enabled = true
	}
	if err := settings.Validate(); err != nil {
		return err
	}

	logging.Setup(settings.LoggingConfig(stderr))
	logger := logging.NewLogger("cli")

	clientCfg := settings.ClientConfig()
	if settings.Cache.Enabled {
		rdb := redis.NewClient(&redis.Options{Addr: settings.Cache.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis at %s: %w", settings.Cache.RedisAddr, err)
		}
		logger.Info().Str("addr", settings.Cache.RedisAddr).Msg("Page cache enabled")
		clientCfg.Cache = cache.NewManager(rdb, cache.WithNamespace(settings.Cache.Namespace))
	}

	c, err := client.New(clientCfg)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}

	if a.MetricsAddr != "" {
		shutdown := serveMetrics(a.MetricsAddr, logger)
		defer shutdown()
	}

	opts := pipeline.Options{MaxPages: settings.Pagination.MaxPages}
	paging := settings.PaginationConfig()
	opts.Pagination = &paging
	if settings.Output.RawDir != "" {
		dumper, err := sink.NewRawDumper(settings.Output.RawDir, settings.SerpAPI.Engine)
		if err != nil {
			return err
		}
		prefixed := len(a.Query) > 1
		opts.OnPage = func(runID string, page *client.RawPage) {
			prefix := ""
			if prefixed {
				prefix = runID
			}
			if err := dumper.Dump(prefix, page); err != nil {
				logger.Warn().Err(err).Msg("Failed to dump raw page")
			}
		}
	}

	pl, err := pipeline.New(c, opts)
	if err != nil {
		return err
	}

	results, err := harvest(ctx, pl, a, settings.Credential(), logger)
	if err != nil {
		return err
	}

	if settings.Enrich.Enabled {
		e := enrich.New(enrich.Config{
			RequestsPerSecond: settings.Enrich.RequestsPerSecond,
			Timeout:           settings.Enrich.Timeout,
			UserAgent:         settings.Enrich.UserAgent,
		})
		for _, r := range results {
			e.Enrich(ctx, r.outcome.Records)
		}
	}

	return writeOutputs(settings.Output, results, stdout, logger)
}

// harvest runs every query concurrently. A fatal error in one run cancels
// the others.
func harvest(ctx context.Context, pl *pipeline.Pipeline, a args, cred client.Credential, logger zerolog.Logger) ([]queryResult, error) {
	results := make([]queryResult, len(a.Query))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentRuns)
	for i, q := range a.Query {
		g.Go(func() error {
			outcome, err := pl.Run(gctx, query.SearchRequest{
				Query:    q,
				Target:   a.Target,
				Locale:   a.Locale,
				Region:   a.Region,
				Location: a.Location,
			}, cred)
			if err != nil {
				return fmt.Errorf("query %q: %w", q, err)
			}
			results[i] = queryResult{query: q, outcome: outcome}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, r := range results {
		logger.Info().
			Str("query", r.query).
			Str("run_id", r.outcome.RunID).
			Int("records", len(r.outcome.Records)).
			Str("stop_reason", string(r.outcome.Summary.StopReason)).
			Msg("Query harvested")
	}
	return results, nil
}

func writeOutputs(out config.Output, results []queryResult, stdout io.Writer, logger zerolog.Logger) error {
	var all []normalize.ResultRecord
	for _, r := range results {
		all = append(all, r.outcome.Records...)
	}

	if out.CSV != "" {
		w, err := sink.CreateCSV(out.CSV)
		if err != nil {
			return err
		}
		if err := w.Write(all); err != nil {
			w.Close()
			return err
		}
		if err := w.Close(); err != nil {
			return fmt.Errorf("close csv: %w", err)
		}
		logger.Info().Str("path", out.CSV).Int("rows", w.Written()).Msg("CSV written")
	}

	if out.Bolt != "" {
		store, err := sink.OpenBolt(out.Bolt)
		if err != nil {
			return err
		}
		defer store.Close()
		for _, r := range results {
			if err := store.Put(r.query, r.outcome.Records); err != nil {
				return fmt.Errorf("store %q: %w", r.query, err)
			}
		}
		logger.Info().Str("path", out.Bolt).Int("queries", len(results)).Msg("Results stored")
	}

	for _, r := range results {
		s := r.outcome.Summary
		fmt.Fprintf(stdout, "%s: %d results (%d pages, %d failed, %d API calls, %d cache hits, stop: %s)\n",
			r.query, len(r.outcome.Records), s.PagesFetched, s.PagesFailed, s.APICalls, s.CacheHits, s.StopReason)
	}
	_, err := sink.Summarize(all).WriteTo(stdout)
	return err
}

// serveMetrics starts the metrics server and returns its shutdown function.
func serveMetrics(addr string, logger zerolog.Logger) func() {
	srv := &http.Server{
		Addr:              addr,
		Handler:           metrics.NewServeMux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info().Str("addr", addr).Msg("Serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
		wg.Wait()
	}
}
