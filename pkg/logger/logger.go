package logger

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

type ctxKey struct{}

// Logger wraps zerolog.Logger
type Logger struct {
	zerolog.Logger
}

// New creates a logger for serviceName. Development gets a colored console
// writer at debug level; every other environment writes JSON lines at info.
func New(serviceName string, environment string) *Logger {
	if environment == "development" {
		l := NewWithWriter(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}, serviceName)
		l.Logger = l.Logger.Level(zerolog.DebugLevel)
		return l
	}

	l := NewWithWriter(os.Stdout, serviceName)
	l.Logger = l.Logger.Level(zerolog.InfoLevel)
	return l
}

// NewWithWriter creates a logger writing to w with no level filter.
func NewWithWriter(w io.Writer, serviceName string) *Logger {
	return &Logger{
		Logger: zerolog.New(w).With().Timestamp().Str("service", serviceName).Logger(),
	}
}

// Nop returns a logger that discards everything. Used by tests.
func Nop() *Logger {
	return &Logger{Logger: zerolog.Nop()}
}

// SetLevel overrides the minimum level ("debug", "info", "warn", ...).
// An empty name keeps the current level.
func (l *Logger) SetLevel(name string) error {
	if name == "" {
		return nil
	}
	lvl, err := zerolog.ParseLevel(name)
	if err != nil {
		return err
	}
	l.Logger = l.Logger.Level(lvl)
	return nil
}

// WithContext stores l in ctx.
func WithContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the request-scoped logger stored by WithContext, or
// fallback when there is none.
func FromContext(ctx context.Context, fallback *Logger) *Logger {
	if l, ok := ctx.Value(ctxKey{}).(*Logger); ok {
		return l
	}
	return fallback
}

// WithRequestID returns a logger with the request ID attached
func (l *Logger) WithRequestID(requestID string) *Logger {
	return &Logger{Logger: l.Logger.With().Str("request_id", requestID).Logger()}
}

// WithUserID returns a logger with the user ID attached
func (l *Logger) WithUserID(userID string) *Logger {
	return &Logger{Logger: l.Logger.With().Str("user_id", userID).Logger()}
}

func (l *Logger) WithCVID(cvID string) *Logger {
	return &Logger{Logger: l.Logger.With().Str("cv_id", cvID).Logger()}
}

func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{Logger: l.Logger.With().Str("component", component).Logger()}
}
