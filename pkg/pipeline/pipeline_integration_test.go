//go:build integration

package pipeline

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/serp-harvest/internal/testutil"
	"github.com/Sternrassler/serp-harvest/pkg/cache"
	"github.com/Sternrassler/serp-harvest/pkg/client"
	"github.com/Sternrassler/serp-harvest/pkg/query"
	"github.com/Sternrassler/serp-harvest/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupRedisContainer(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: endpoint})
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}

	t.Cleanup(func() {
		rdb.Close()
		container.Terminate(ctx)
	})
	return rdb
}

func TestIntegration_CachedRerun(t *testing.T) {
	rdb := setupRedisContainer(t)

	mock := testutil.NewMockSerpAPI()
	defer mock.Close()
	organicByOffset(mock, map[int]testutil.MockResponse{
		0: testutil.NewJSONResponse(testutil.OrganicPage("example.com", "r", 1, 10)),
		1: testutil.NewJSONResponse(testutil.OrganicPage("example.com", "r", 11, 10)),
	})

	cfg := client.DefaultConfig("google")
	cfg.Endpoint = mock.URL()
	cfg.Pacing = ratelimit.Config{}
	cfg.Cache = cache.NewManager(rdb, cache.WithNamespace("pipeline-it"))
	cfg.CacheTTL = time.Minute
	c, err := client.New(cfg)
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}
	c.SetLogger(zerolog.Nop())

	p, err := New(c, Options{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	p.SetLogger(zerolog.Nop())

	req := query.SearchRequest{Query: "coffee", Target: 20}
	first, err := p.Run(context.Background(), req, testKey)
	if err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	second, err := p.Run(context.Background(), req, testKey)
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}

	if mock.RequestCount() != 2 {
		t.Errorf("requests = %d, want 2 (second run served from cache)", mock.RequestCount())
	}
	if second.Summary.CacheHits != 2 || second.Summary.APICalls != 0 {
		t.Errorf("second summary = %+v", second.Summary)
	}
	if len(first.Records) != len(second.Records) {
		t.Errorf("records differ: %d vs %d", len(first.Records), len(second.Records))
	}
	if first.RunID == second.RunID {
		t.Error("run ids must differ")
	}

	keys, err := rdb.Keys(context.Background(), "pipeline-it:*").Result()
	if err != nil {
		t.Fatalf("Keys() error = %v", err)
	}
	for _, key := range keys {
		val, _ := rdb.Get(context.Background(), key).Result()
		for _, s := range []string{key, val} {
			if strings.Contains(s, string(testKey)) {
				t.Errorf("credential persisted in redis: %q", key)
			}
		}
	}
}
