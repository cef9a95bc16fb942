// Package config loads the serp-harvest settings document.
//
// Settings are read once at startup, validated, and passed by value into the
// components that need them. Nothing reads configuration from globals.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Sternrassler/serp-harvest/pkg/cache"
	"github.com/Sternrassler/serp-harvest/pkg/client"
	"github.com/Sternrassler/serp-harvest/pkg/engine"
	"github.com/Sternrassler/serp-harvest/pkg/logging"
	"github.com/Sternrassler/serp-harvest/pkg/pagination"
	"github.com/Sternrassler/serp-harvest/pkg/query"
	"github.com/Sternrassler/serp-harvest/pkg/ratelimit"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned when the settings document fails validation.
var ErrInvalidConfig = errors.New("invalid config")

// APIKeyEnv overrides serpapi.api_key when set.
const APIKeyEnv = "SERPAPI_API_KEY"

// SerpAPI selects the search endpoint.
type SerpAPI struct {
	// APIKey renders as [REDACTED] when printed or re-encoded.
	APIKey   client.Credential `yaml:"api_key"`
	Endpoint string            `yaml:"endpoint"`
	Engine   string            `yaml:"engine"`
}

// Fetch controls pacing, timeouts and retries.
type Fetch struct {
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	Timeout           time.Duration `yaml:"timeout"`
	MaxAttempts       int           `yaml:"max_attempts"`
	InitialBackoff    time.Duration `yaml:"initial_backoff"`
	MaxBackoff        time.Duration `yaml:"max_backoff"`
	UserAgent         string        `yaml:"user_agent"`
}

// Pagination bounds each run.
type Pagination struct {
	MaxPages         int `yaml:"max_pages"`
	FailureThreshold int `yaml:"failure_threshold"`
}

// Cache configures the optional Redis page cache.
type Cache struct {
	Enabled   bool          `yaml:"enabled"`
	RedisAddr string        `yaml:"redis_addr"`
	Namespace string        `yaml:"namespace"`
	TTL       time.Duration `yaml:"ttl"`
}

// Enrich configures email lookup on result websites.
type Enrich struct {
	Enabled           bool          `yaml:"enabled"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Timeout           time.Duration `yaml:"timeout"`
	UserAgent         string        `yaml:"user_agent"`
}

// Output selects the sinks. Empty paths disable a sink.
type Output struct {
	CSV    string `yaml:"csv"`
	Bolt   string `yaml:"bolt"`
	RawDir string `yaml:"raw_dir"`
}

// Log configures logging.
type Log struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Settings is the validated settings document. Treat it as read-only.
type Settings struct {
	SerpAPI    SerpAPI    `yaml:"serpapi"`
	Fetch      Fetch      `yaml:"fetch"`
	Pagination Pagination `yaml:"pagination"`
	Cache      Cache      `yaml:"cache"`
	Enrich     Enrich     `yaml:"enrich"`
	Output     Output     `yaml:"output"`
	Log        Log        `yaml:"log"`
}

// Default returns the settings used for keys missing from the document.
func Default() Settings {
	retry := client.DefaultRetryConfig()
	return Settings{
		SerpAPI: SerpAPI{
			Endpoint: client.DefaultEndpoint,
			Engine:   "google_maps",
		},
		Fetch: Fetch{
			RequestsPerSecond: 1,
			Burst:             1,
			Timeout:           15 * time.Second,
			MaxAttempts:       retry.MaxAttempts,
			InitialBackoff:    retry.InitialBackoff,
			MaxBackoff:        retry.MaxBackoff,
			UserAgent:         "serp-harvest/0.1",
		},
		Pagination: Pagination{
			MaxPages:         query.DefaultMaxPages,
			FailureThreshold: pagination.DefaultFailureThreshold,
		},
		Cache: Cache{
			RedisAddr: "localhost:6379",
			Namespace: "serp-harvest",
			TTL:       cache.DefaultTTL,
		},
		Enrich: Enrich{
			RequestsPerSecond: 1,
			Timeout:           10 * time.Second,
			UserAgent:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64)",
		},
		Output: Output{
			CSV: "results.csv",
		},
		Log: Log{
			Level: string(logging.LevelInfo),
		},
	}
}

// Load reads, defaults and validates the document at path. SERPAPI_API_KEY,
// when set, replaces the key from the file.
func Load(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("read config: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return Settings{}, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Parse decodes and validates a settings document.
func Parse(data []byte) (Settings, error) {
	s := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return Settings{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if key := os.Getenv(APIKeyEnv); key != "" {
		s.SerpAPI.APIKey = client.Credential(key)
	}

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate checks every section and reports all problems at once.
func (s Settings) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(!s.SerpAPI.APIKey.Empty(), "serpapi.api_key is required (or set %s)", APIKeyEnv)
	check(s.SerpAPI.Endpoint != "", "serpapi.endpoint is required")
	if _, err := engine.Lookup(s.SerpAPI.Engine); err != nil {
		errs = append(errs, fmt.Errorf("serpapi.engine: %w", err))
	}

	check(s.Fetch.RequestsPerSecond >= 0, "fetch.requests_per_second must not be negative")
	check(s.Fetch.Burst >= 1, "fetch.burst must be >= 1 (got %d)", s.Fetch.Burst)
	check(s.Fetch.Timeout > 0, "fetch.timeout must be positive")
	check(s.Fetch.MaxAttempts >= 1, "fetch.max_attempts must be >= 1 (got %d)", s.Fetch.MaxAttempts)
	check(s.Fetch.InitialBackoff > 0, "fetch.initial_backoff must be positive")
	check(s.Fetch.MaxBackoff >= s.Fetch.InitialBackoff, "fetch.max_backoff must be >= fetch.initial_backoff")

	check(s.Pagination.MaxPages >= 1, "pagination.max_pages must be >= 1 (got %d)", s.Pagination.MaxPages)
	check(s.Pagination.FailureThreshold >= 0, "pagination.failure_threshold must not be negative")

	if s.Cache.Enabled {
		check(s.Cache.RedisAddr != "", "cache.redis_addr is required when the cache is enabled")
		check(s.Cache.TTL > 0, "cache.ttl must be positive")
	}
	if s.Enrich.Enabled {
		check(s.Enrich.RequestsPerSecond > 0, "enrich.requests_per_second must be positive")
		check(s.Enrich.Timeout > 0, "enrich.timeout must be positive")
	}

	check(logging.ValidLevel(logging.LogLevel(s.Log.Level)), "log.level %q is not one of debug, info, warn, error", s.Log.Level)

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Credential returns the API key.
func (s Settings) Credential() client.Credential {
	return s.SerpAPI.APIKey
}

// ClientConfig maps the settings onto a client configuration. The cache is
// left unset; callers attach it once Redis is connected.
func (s Settings) ClientConfig() client.Config {
	cfg := client.DefaultConfig(s.SerpAPI.Engine)
	cfg.Endpoint = s.SerpAPI.Endpoint
	cfg.UserAgent = s.Fetch.UserAgent
	cfg.Timeout = s.Fetch.Timeout
	cfg.Pacing = ratelimit.Config{
		RequestsPerSecond: s.Fetch.RequestsPerSecond,
		Burst:             s.Fetch.Burst,
	}
	cfg.Retry.MaxAttempts = s.Fetch.MaxAttempts
	cfg.Retry.InitialBackoff = s.Fetch.InitialBackoff
	cfg.Retry.MaxBackoff = s.Fetch.MaxBackoff
	cfg.CacheTTL = s.Cache.TTL
	return cfg
}

// PaginationConfig returns the controller configuration.
func (s Settings) PaginationConfig() pagination.Config {
	return pagination.Config{FailureThreshold: s.Pagination.FailureThreshold}
}

// LoggingConfig returns the logger configuration with the API key registered
// as a secret.
func (s Settings) LoggingConfig(out io.Writer) logging.Config {
	return logging.Config{
		Level:   logging.LogLevel(s.Log.Level),
		Pretty:  s.Log.Pretty,
		Output:  out,
		Secrets: []string{string(s.SerpAPI.APIKey)},
	}
}
