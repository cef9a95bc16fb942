// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"bytes"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer

	// Secrets are masked in every line written, e.g. the API key.
	Secrets []string
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	var output io.Writer = cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if secrets := nonEmpty(cfg.Secrets); len(secrets) > 0 {
		output = &redactingWriter{out: output, secrets: secrets}
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// ValidLevel reports whether level is one of the known levels.
func ValidLevel(level LogLevel) bool {
	switch strings.ToLower(string(level)) {
	case "debug", "info", "warn", "warning", "error":
		return true
	}
	return false
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// redactingWriter masks secrets in each write. zerolog emits one event per
// Write, so a secret never straddles two calls.
type redactingWriter struct {
	out     io.Writer
	secrets [][]byte
}

func (w *redactingWriter) Write(p []byte) (int, error) {
	masked := p
	for _, secret := range w.secrets {
		if bytes.Contains(masked, secret) {
			masked = bytes.ReplaceAll(masked, secret, []byte("[REDACTED]"))
		}
	}
	if _, err := w.out.Write(masked); err != nil {
		return 0, err
	}
	return len(p), nil
}

func nonEmpty(secrets []string) [][]byte {
	var out [][]byte
	for _, s := range secrets {
		if s != "" {
			out = append(out, []byte(s))
		}
	}
	return out
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Every search API attempt (status, latency, redacted URL)
//   - Cache hits and pacer waits
//   - Per-page entry and kept counts
//   - Dropped result entries
//
// Info: Normal operation events
//   - Run start and completion with summary counters
//   - Pagination stop reason
//   - Body-level "no results" messages
//   - Sink output written
//
// Warn: Warning conditions that don't prevent operation
//   - Retry attempts and exhausted retries
//   - Failed pages (absorbed into the run summary)
//   - Cache errors (fallback to the API)
//   - Enrichment fetch failures
//
// Error: Error conditions requiring attention
//   - Rejected credential
//   - Invalid search requests
//   - Configuration errors
//
// Context Fields:
//   - component: emitting package
//   - run_id: identifier of one pipeline run
//   - engine: search engine name
//   - page: 1-based page number
//   - attempt: 1-based attempt within a page
//   - status: HTTP status code
//   - latency: duration of one HTTP call
//   - error_class: client, auth, server, rate_limit, network, decode, cancelled
//   - stop_reason: why pagination ended
//
// The API key is never a field; Config.Secrets masks it should it reach a
// message through an error string.
