// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
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

var validate = validator.New()

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel `validate:"omitempty,oneof=debug info warn warning error"`

	// Pretty enables human-readable console output (default: on when Output is a terminal).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer

	// Fields are attached to every entry, e.g. {"region": "eu-west-1"}.
	Fields map[string]string
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: IsTerminal(os.Stderr),
		Output: os.Stderr,
	}
}

// Validate checks the configured level.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid log level %q: want debug, info, warn or error", c.Level)
	}
	return nil
}

// ParseLevel validates a level string, e.g. from a command line flag.
func ParseLevel(s string) (LogLevel, error) {
	cfg := Config{Level: LogLevel(strings.ToLower(s))}
	if err := cfg.Validate(); err != nil {
		return "", err
	}
	return cfg.Level, nil
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Setup configures the global zerolog logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(cfg.zerologLevel())

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly}
	}

	ctx := zerolog.New(out).With().Timestamp()
	for _, key := range slices.Sorted(maps.Keys(cfg.Fields)) {
		ctx = ctx.Str(key, cfg.Fields[key])
	}
	logger := ctx.Logger()

	log.Logger = logger
	return logger
}

// zerologLevel maps the configured level, falling back to info.
func (c Config) zerologLevel() zerolog.Level {
	level := strings.ToLower(string(c.Level))
	if level == "warning" {
		level = "warn"
	}
	parsed, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return parsed
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Cache operations (hit/miss, key, TTL)
//   - Page fetches and prefetch handover
//   - Query state polling
//
// Info: Normal operation events
//   - Query started, stopped or finished
//   - Batch collection summaries
//   - Throttle state back to healthy
//   - Server startup/shutdown
//
// Warn: Warning conditions that don't prevent operation
//   - Throttling responses and delays
//   - Retry attempts
//   - Cache errors (fallback to direct request)
//   - Circuit breaker state changes
//
// Error: Error conditions requiring attention
//   - Failed requests (after retries)
//   - Critical throttle blocks
//   - Open circuit breaker
//   - Configuration errors
//
// Context Fields:
//   - component: Emitting package (aws-client, athena, ssm, pagination)
//   - operation: service.Operation, e.g. athena.GetQueryResults
//   - service: AWS service name
//   - status: HTTP status code
//   - code: AWS error code
//   - error_class: Error classification (client, server, rate_limit, network)
//   - page: 0-based page index of a traversal
//   - query_execution_id: Athena query execution
//   - ttl: Cache entry TTL
