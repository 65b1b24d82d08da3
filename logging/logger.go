// Package logging configures the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Canonical field names shared by every component.
const (
	FieldComponent = "component"
	FieldJobID     = "job_id"
	FieldDirection = "direction"
	FieldMedium    = "medium"
	FieldState     = "state"
	FieldPercent   = "percent"
	FieldPath      = "path"
	FieldDevice    = "device"
	FieldSource    = "source"
	FieldTarget    = "target"
	FieldCaps      = "capabilities"
)

// Config captures options for configuring the global logger.
type Config struct {
	Level   string    // optional log level ("debug", "info", etc.)
	Output  io.Writer // optional writer (defaults to os.Stderr)
	Service string    // optional service name attached to every entry
}

var (
	mu   sync.Mutex
	once bool
	base zerolog.Logger
)

// Configure initialises the global logger. Only the first call has an effect.
func Configure(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	if once {
		return
	}
	once = true

	level := zerolog.InfoLevel
	if cfg.Level != "" {
		if parsed, err := zerolog.ParseLevel(cfg.Level); err == nil {
			level = parsed
		}
	} else if env := os.Getenv("REFLASH_LOG_LEVEL"); env != "" {
		if parsed, err := zerolog.ParseLevel(env); err == nil {
			level = parsed
		}
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	writer := cfg.Output
	if writer == nil {
		writer = os.Stderr
	}

	service := cfg.Service
	if service == "" {
		service = "reflash"
	}

	base = zerolog.New(writer).With().
		Timestamp().
		Str("service", service).
		Logger()
}

// Base returns the configured base logger. An unconfigured logger discards.
func Base() zerolog.Logger {
	mu.Lock()
	defer mu.Unlock()
	if !once {
		return zerolog.Nop()
	}
	return base
}

// WithComponent returns a child logger annotated with the given component name.
func WithComponent(component string) zerolog.Logger {
	return Base().With().Str(FieldComponent, component).Logger()
}

// OpenFile opens path for appending log output, creating it if needed.
func OpenFile(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
}

func reset() {
	mu.Lock()
	defer mu.Unlock()
	once = false
	base = zerolog.Nop()
}
