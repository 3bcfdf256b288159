package observability

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	loggerMu     sync.Mutex
	globalLogger zerolog.Logger
	initialized  bool
)

// InitLogger configures the global structured logger. JSON lines by default,
// a console writer when pretty is set. Later calls are no-ops.
func InitLogger(level string, pretty bool) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	if initialized {
		return
	}

	logLevel, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || logLevel == zerolog.NoLevel {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	if pretty {
		output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		globalLogger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		globalLogger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	log.Logger = globalLogger
	initialized = true
}

// GetLogger returns the global logger, initialising it with defaults on
// first use.
func GetLogger() zerolog.Logger {
	loggerMu.Lock()
	ready := initialized
	loggerMu.Unlock()
	if !ready {
		InitLogger("info", false)
	}
	loggerMu.Lock()
	defer loggerMu.Unlock()
	return globalLogger
}

// Component returns a logger tagged with a component name.
func Component(name string) zerolog.Logger {
	return GetLogger().With().Str("component", name).Logger()
}

// WithCorrelationID creates a logger carrying a correlation ID, generating
// one when empty.
func WithCorrelationID(correlationID string) zerolog.Logger {
	if correlationID == "" {
		correlationID = NewCorrelationID()
	}
	return GetLogger().With().Str("correlation_id", correlationID).Logger()
}

// NewCorrelationID generates a new correlation ID.
func NewCorrelationID() string {
	return uuid.New().String()
}
