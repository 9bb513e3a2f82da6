package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Logger interface for structured logging
type Logger interface {
	WithCorrelationID(id string) Logger
	WithFields(fields map[string]interface{}) Logger
	WithField(key string, value interface{}) Logger
	Info(msg string)
	Error(msg string, err error)
	Warn(msg string)
	Debug(msg string)
}

// StructuredLogger implements Logger interface using logrus
type StructuredLogger struct {
	logger        *logrus.Logger
	entry         *logrus.Entry
	serviceName   string
	correlationID string
}

// NewLogger creates a JSON logger writing to stderr at the level named by LOG_LEVEL.
func NewLogger(serviceName string) Logger {
	return NewLoggerWithOutput(serviceName, os.Stderr, os.Getenv("LOG_LEVEL"))
}

// NewLoggerWithOutput creates a JSON logger writing to w.
// Stdout is left to program output; logs go elsewhere.
func NewLoggerWithOutput(serviceName string, w io.Writer, level string) Logger {
	logger := logrus.New()
	logger.SetOutput(w)
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})

	l := &StructuredLogger{
		logger:      logger,
		entry:       logger.WithField("service", serviceName),
		serviceName: serviceName,
	}
	l.SetLevel(level)
	return l
}

// WithCorrelationID tags every later entry with id.
func (l *StructuredLogger) WithCorrelationID(id string) Logger {
	if id == "" {
		return l
	}
	return l.derive(l.entry.WithField("correlation_id", id), id)
}

// WithFields returns a child logger carrying fields.
func (l *StructuredLogger) WithFields(fields map[string]interface{}) Logger {
	return l.derive(l.entry.WithFields(fields), l.correlationID)
}

// WithField returns a child logger carrying one more field.
func (l *StructuredLogger) WithField(key string, value interface{}) Logger {
	return l.derive(l.entry.WithField(key, value), l.correlationID)
}

func (l *StructuredLogger) derive(entry *logrus.Entry, correlationID string) *StructuredLogger {
	return &StructuredLogger{
		logger:        l.logger,
		entry:         entry,
		serviceName:   l.serviceName,
		correlationID: correlationID,
	}
}

// Info logs an info message
func (l *StructuredLogger) Info(msg string) {
	l.entry.Info(msg)
}

// Error logs an error message, attaching err under the "error" key when non-nil.
func (l *StructuredLogger) Error(msg string, err error) {
	if err != nil {
		l.entry.WithField("error", err.Error()).Error(msg)
	} else {
		l.entry.Error(msg)
	}
}

// Warn logs a warning message
func (l *StructuredLogger) Warn(msg string) {
	l.entry.Warn(msg)
}

// Debug logs a debug message
func (l *StructuredLogger) Debug(msg string) {
	l.entry.Debug(msg)
}

// SetLevel sets the logging level. Unknown names fall back to info.
func (l *StructuredLogger) SetLevel(level string) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		l.logger.SetLevel(logrus.DebugLevel)
	case "info":
		l.logger.SetLevel(logrus.InfoLevel)
	case "warn", "warning":
		l.logger.SetLevel(logrus.WarnLevel)
	case "error":
		l.logger.SetLevel(logrus.ErrorLevel)
	default:
		l.logger.SetLevel(logrus.InfoLevel)
	}
}

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

// LoggerKey is the context key for logger
const LoggerKey contextKey = "logger"

// WithLoggerContext adds logger to context
func WithLoggerContext(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// GetLoggerFromContext retrieves logger from context
func GetLoggerFromContext(ctx context.Context) (Logger, bool) {
	logger, ok := ctx.Value(LoggerKey).(Logger)
	return logger, ok
}

// FromContextOr returns the logger stored in ctx, or fallback when there is none.
func FromContextOr(ctx context.Context, fallback Logger) Logger {
	if l, ok := GetLoggerFromContext(ctx); ok && l != nil {
		return l
	}
	return fallback
}
