package pagination

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/Sternrassler/serp-harvest/internal/testutil"
	"github.com/Sternrassler/serp-harvest/pkg/client"
	"github.com/Sternrassler/serp-harvest/pkg/query"
	"github.com/Sternrassler/serp-harvest/pkg/ratelimit"
	"github.com/rs/zerolog"
)

func quietController(threshold int) *Controller {
	c := NewController(Config{FailureThreshold: threshold})
	c.SetLogger(zerolog.New(os.Stderr).Level(zerolog.Disabled))
	return c
}

func offsetPages(t *testing.T, target, maxPages int) *query.Pages {
	t.Helper()
	pages, err := query.Build(query.SearchRequest{Query: "coffee", Target: target}, query.Paging{
		Mode:        query.ModeOffset,
		PerPage:     10,
		OffsetParam: "start",
		MaxPages:    maxPages,
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return pages
}

// fakeSource serves scripted outcomes per page index and records call order.
type fakeSource struct {
	outcomes map[int]func(index int) (*client.RawPage, error)
	events   []string
	calls    []int
}

func (f *fakeSource) fetch(_ context.Context, page query.PageRequest) (*client.RawPage, error) {
	f.events = append(f.events, fmt.Sprintf("fetch-start-%d", page.Index))
	defer func() { f.events = append(f.events, fmt.Sprintf("fetch-end-%d", page.Index)) }()
	f.calls = append(f.calls, page.Index)
	if out, ok := f.outcomes[page.Index]; ok {
		return out(page.Index)
	}
	return pageOf(page.Index, 0), nil
}

func pageOf(index, n int) *client.RawPage {
	entries := make([]any, n)
	for i := range n {
		entries[i] = map[string]any{"link": fmt.Sprintf("https://example.com/%d-%d", index, i)}
	}
	return &client.RawPage{Index: index, Status: 200, Attempts: 1, Body: map[string]any{"organic_results": entries}}
}

func full(n int) func(int) (*client.RawPage, error) {
	return func(index int) (*client.RawPage, error) { return pageOf(index, n), nil }
}

func failing(index int) (*client.RawPage, error) {
	return nil, &client.FetchFailed{Status: 503, Page: index, Attempts: 3, Err: client.ErrRetryExhausted}
}

func countEntries(raw *client.RawPage) Yield {
	n := len(raw.Entries("organic_results"))
	return Yield{Entries: n, Kept: n}
}

func TestRun_Sequential(t *testing.T) {
	src := &fakeSource{outcomes: map[int]func(int) (*client.RawPage, error){0: full(10), 1: full(10), 2: full(10)}}

	_, err := quietController(2).Run(context.Background(), offsetPages(t, 30, 3), src.fetch, countEntries)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []string{"fetch-start-0", "fetch-end-0", "fetch-start-1", "fetch-end-1", "fetch-start-2", "fetch-end-2"}
	if fmt.Sprint(src.events) != fmt.Sprint(want) {
		t.Errorf("events = %v, want %v", src.events, want)
	}
}

func TestRun_StopConditions(t *testing.T) {
	tests := []struct {
		name       string
		target     int
		maxPages   int
		threshold  int
		outcomes   map[int]func(int) (*client.RawPage, error)
		wantReason StopReason
		wantCalls  int
		wantKept   int
		wantFailed int
	}{
		{
			name:       "target reached on first page",
			target:     10,
			maxPages:   3,
			threshold:  2,
			outcomes:   map[int]func(int) (*client.RawPage, error){0: full(10)},
			wantReason: StopTargetReached,
			wantCalls:  1,
			wantKept:   10,
		},
		{
			name:       "empty page",
			target:     50,
			maxPages:   5,
			threshold:  2,
			outcomes:   map[int]func(int) (*client.RawPage, error){0: full(10), 1: full(0)},
			wantReason: StopEmptyPage,
			wantCalls:  2,
			wantKept:   10,
		},
		{
			name:       "exhausted",
			target:     100,
			maxPages:   2,
			threshold:  2,
			outcomes:   map[int]func(int) (*client.RawPage, error){0: full(10), 1: full(10)},
			wantReason: StopExhausted,
			wantCalls:  2,
			wantKept:   20,
		},
		{
			name:       "partial failure",
			target:     30,
			maxPages:   3,
			threshold:  2,
			outcomes:   map[int]func(int) (*client.RawPage, error){0: full(10), 1: failing, 2: full(0)},
			wantReason: StopEmptyPage,
			wantCalls:  3,
			wantKept:   10,
			wantFailed: 1,
		},
		{
			name:      "consecutive failures",
			target:    100,
			maxPages:  10,
			threshold: 2,
			outcomes: map[int]func(int) (*client.RawPage, error){
				0: full(10), 1: failing, 2: failing, 3: failing, 4: full(10),
			},
			wantReason: StopFailures,
			wantCalls:  4,
			wantKept:   10,
			wantFailed: 3,
		},
		{
			name:      "failures below threshold",
			target:    30,
			maxPages:  5,
			threshold: 2,
			outcomes: map[int]func(int) (*client.RawPage, error){
				0: failing, 1: failing, 2: full(10), 3: full(10), 4: full(10),
			},
			wantReason: StopTargetReached,
			wantCalls:  5,
			wantKept:   30,
			wantFailed: 2,
		},
		{
			name:       "zero threshold",
			target:     30,
			maxPages:   3,
			threshold:  0,
			outcomes:   map[int]func(int) (*client.RawPage, error){0: failing},
			wantReason: StopFailures,
			wantCalls:  1,
			wantFailed: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeSource{outcomes: tt.outcomes}

			stats, err := quietController(tt.threshold).Run(context.Background(), offsetPages(t, tt.target, tt.maxPages), src.fetch, countEntries)
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}

			if stats.StopReason != tt.wantReason {
				t.Errorf("StopReason = %q, want %q", stats.StopReason, tt.wantReason)
			}
			if len(src.calls) != tt.wantCalls {
				t.Errorf("calls = %v, want %d", src.calls, tt.wantCalls)
			}
			if stats.Kept != tt.wantKept {
				t.Errorf("Kept = %d, want %d", stats.Kept, tt.wantKept)
			}
			if stats.PagesFailed != tt.wantFailed {
				t.Errorf("PagesFailed = %d, want %d", stats.PagesFailed, tt.wantFailed)
			}
			if stats.PagesFetched+stats.PagesFailed != len(src.calls) {
				t.Errorf("fetched %d + failed %d != calls %d", stats.PagesFetched, stats.PagesFailed, len(src.calls))
			}
		})
	}
}

func TestRun_KeptDrivesTarget(t *testing.T) {
	src := &fakeSource{outcomes: map[int]func(int) (*client.RawPage, error){0: full(10), 1: full(10), 2: full(10)}}

	// Only half of each page survives deduplication.
	stats, err := quietController(2).Run(context.Background(), offsetPages(t, 10, 3), src.fetch, func(raw *client.RawPage) Yield {
		n := len(raw.Entries("organic_results"))
		return Yield{Entries: n, Kept: n / 2}
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if stats.PagesFetched != 2 || stats.Kept != 10 || stats.StopReason != StopTargetReached {
		t.Errorf("stats = %+v", stats)
	}
}

func TestRun_APICallsAndCacheHits(t *testing.T) {
	src := &fakeSource{outcomes: map[int]func(int) (*client.RawPage, error){
		0: func(i int) (*client.RawPage, error) {
			p := pageOf(i, 10)
			p.Cached = true
			p.Attempts = 0
			return p, nil
		},
		1: func(i int) (*client.RawPage, error) {
			p := pageOf(i, 10)
			p.Attempts = 2
			return p, nil
		},
		2: failing,
	}}

	stats, _ := quietController(2).Run(context.Background(), offsetPages(t, 100, 3), src.fetch, countEntries)
	if stats.CacheHits != 1 {
		t.Errorf("CacheHits = %d, want 1", stats.CacheHits)
	}
	if stats.APICalls != 5 {
		t.Errorf("APICalls = %d, want 5 (0 cached + 2 + 3 failed)", stats.APICalls)
	}
}

func TestRun_AuthAborts(t *testing.T) {
	src := &fakeSource{outcomes: map[int]func(int) (*client.RawPage, error){
		0: full(10),
		1: func(int) (*client.RawPage, error) { return nil, &client.AuthError{StatusCode: 401} },
	}}

	stats, err := quietController(2).Run(context.Background(), offsetPages(t, 100, 5), src.fetch, countEntries)
	if !errors.Is(err, client.ErrAuth) {
		t.Fatalf("Run() error = %v, want ErrAuth", err)
	}
	if len(src.calls) != 2 {
		t.Errorf("calls = %v, want 2", src.calls)
	}
	if stats.PagesFetched != 1 {
		t.Errorf("PagesFetched = %d, want 1", stats.PagesFetched)
	}
}

func TestRun_CancelBetweenPages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var seen context.Context

	src := &fakeSource{}
	fetch := func(fctx context.Context, page query.PageRequest) (*client.RawPage, error) {
		seen = fctx
		if page.Index == 0 {
			cancel()
		}
		return src.fetch(fctx, page)
	}

	stats, err := quietController(2).Run(ctx, offsetPages(t, 100, 5), fetch, func(raw *client.RawPage) Yield {
		return Yield{Entries: 10, Kept: 10}
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if stats.StopReason != StopCancelled {
		t.Errorf("StopReason = %q, want %q", stats.StopReason, StopCancelled)
	}
	if stats.PagesFetched != 1 || stats.Kept != 10 {
		t.Errorf("stats = %+v, want the completed first page", stats)
	}
	if seen.Err() != nil {
		t.Error("in-flight fetch must not observe cancellation")
	}
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &fakeSource{}
	stats, err := quietController(2).Run(ctx, offsetPages(t, 10, 3), src.fetch, countEntries)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(src.calls) != 0 || stats.StopReason != StopCancelled {
		t.Errorf("calls = %v, stats = %+v", src.calls, stats)
	}
}

func TestRun_CursorMode(t *testing.T) {
	pages, err := query.Build(query.SearchRequest{Query: "plumbers", Target: 100}, query.Paging{
		Mode:     query.ModeCursor,
		PerPage:  20,
		MaxPages: 5,
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	var cursors []string
	fetch := func(_ context.Context, page query.PageRequest) (*client.RawPage, error) {
		cursors = append(cursors, page.Cursor)
		raw := pageOf(page.Index, 20)
		if page.Index < 2 {
			raw.Body["serpapi_pagination"] = map[string]any{"next": fmt.Sprintf("https://serpapi.com/search.json?start=%d", (page.Index+1)*20)}
		}
		return raw, nil
	}

	stats, err := quietController(2).Run(context.Background(), pages, fetch, countEntries)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if stats.PagesFetched != 3 || stats.StopReason != StopExhausted {
		t.Errorf("stats = %+v, want 3 pages then exhausted", stats)
	}
	want := []string{"", "https://serpapi.com/search.json?start=20", "https://serpapi.com/search.json?start=40"}
	if fmt.Sprint(cursors) != fmt.Sprint(want) {
		t.Errorf("cursors = %v, want %v", cursors, want)
	}
}

func TestRun_CursorModeFailureEndsSequence(t *testing.T) {
	pages, _ := query.Build(query.SearchRequest{Query: "plumbers", Target: 100}, query.Paging{
		Mode: query.ModeCursor, PerPage: 20, MaxPages: 5,
	})
	src := &fakeSource{outcomes: map[int]func(int) (*client.RawPage, error){0: failing}}

	stats, err := quietController(2).Run(context.Background(), pages, src.fetch, countEntries)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(src.calls) != 1 || stats.StopReason != StopExhausted {
		t.Errorf("calls = %v, stats = %+v", src.calls, stats)
	}
}

func TestCollect(t *testing.T) {
	src := &fakeSource{outcomes: map[int]func(int) (*client.RawPage, error){0: full(10), 1: failing, 2: full(10)}}

	pages, stats, err := quietController(2).Collect(context.Background(), offsetPages(t, 20, 3), src.fetch, "organic_results")
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(pages) != 2 || pages[0].Index != 0 || pages[1].Index != 2 {
		t.Errorf("pages = %d, want indexes 0 and 2", len(pages))
	}
	if stats.PagesFailed != 1 || stats.StopReason != StopTargetReached {
		t.Errorf("stats = %+v", stats)
	}
}

// TestRun_AgainstMockAPI wires a real fetcher: three pages where page 2
// answers 503 on every attempt.
func TestRun_AgainstMockAPI(t *testing.T) {
	mock := testutil.NewMockSerpAPI()
	defer mock.Close()
	mock.ByOffset("start", 10, map[int]testutil.MockResponse{
		0: testutil.NewJSONResponse(testutil.OrganicPage("example.com", "p1", 1, 10)),
		1: testutil.NewErrorResponse(http.StatusServiceUnavailable, "unavailable"),
		2: testutil.NewJSONResponse(testutil.OrganicPage("example.com", "p3", 21, 0)),
	}, testutil.NewJSONResponse(`{"organic_results": []}`))

	cfg := client.DefaultConfig("google")
	cfg.Endpoint = mock.URL()
	cfg.Pacing = ratelimit.Config{}
	cfg.Retry.InitialBackoff = time.Millisecond
	cfg.Retry.MaxBackoff = 5 * time.Millisecond
	c, err := client.New(cfg)
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}
	f, err := c.Session("key", zerolog.Nop())
	if err != nil {
		t.Fatalf("Session() error = %v", err)
	}

	stats, err := quietController(2).Run(context.Background(), offsetPages(t, 30, 3), f.Fetch, countEntries)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if stats.Kept != 10 || stats.PagesFailed != 1 || stats.PagesFetched != 2 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.APICalls != 5 || mock.RequestCount() != 5 {
		t.Errorf("APICalls = %d, requests = %d, want 5 (1 + 3 retries + 1)", stats.APICalls, mock.RequestCount())
	}
}
