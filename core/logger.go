package core

import (
	"go.uber.org/zap"
)

// Logger interface for structured logging
// Implementations can provide custom logging behavior; DefaultLogger is backed by zap.
type Logger interface {
	// Debug logs a debug message with optional fields
	Debug(msg string, fields ...Field)

	// Info logs an info message with optional fields
	Info(msg string, fields ...Field)

	// Warn logs a warning message with optional fields
	Warn(msg string, fields ...Field)

	// Error logs an error message with optional fields
	Error(msg string, fields ...Field)
}

// Field represents a key-value pair for structured logging
type Field struct {
	Key   string
	Value any
}

// F creates a new Field with the given key and value
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// DefaultLogger adapts a *zap.Logger to the Logger interface.
type DefaultLogger struct {
	l *zap.Logger
}

// NewDefaultLogger creates a DefaultLogger with zap's production configuration.
// It falls back to a no-op zap logger if the production logger cannot be built.
func NewDefaultLogger() *DefaultLogger {
	l, err := zap.NewProduction()
	if err != nil {
		l = zap.NewNop()
	}
	return &DefaultLogger{l: l}
}

// NewZapLogger wraps an existing zap logger.
func NewZapLogger(l *zap.Logger) *DefaultLogger {
	if l == nil {
		l = zap.NewNop()
	}
	return &DefaultLogger{l: l}
}

// Zap returns the underlying zap logger.
func (l *DefaultLogger) Zap() *zap.Logger {
	return l.l
}

// Named returns a child logger with the given name segment.
func (l *DefaultLogger) Named(name string) *DefaultLogger {
	return &DefaultLogger{l: l.l.Named(name)}
}

func (l *DefaultLogger) Debug(msg string, fields ...Field) {
	l.l.Debug(msg, zapFields(fields)...)
}

func (l *DefaultLogger) Info(msg string, fields ...Field) {
	l.l.Info(msg, zapFields(fields)...)
}

func (l *DefaultLogger) Warn(msg string, fields ...Field) {
	l.l.Warn(msg, zapFields(fields)...)
}

func (l *DefaultLogger) Error(msg string, fields ...Field) {
	l.l.Error(msg, zapFields(fields)...)
}

func zapFields(fields []Field) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	out := make([]zap.Field, len(fields))
	for i, f := range fields {
		if err, ok := f.Value.(error); ok {
			out[i] = zap.NamedError(f.Key, err)
			continue
		}
		out[i] = zap.Any(f.Key, f.Value)
	}
	return out
}

// NoOpLogger is a logger that discards all log messages
// Useful for tests or when logging is not desired
type NoOpLogger struct{}

// NewNoOpLogger creates a new NoOpLogger
func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{}
}

func (l *NoOpLogger) Debug(msg string, fields ...Field) {}
func (l *NoOpLogger) Info(msg string, fields ...Field)  {}
func (l *NoOpLogger) Warn(msg string, fields ...Field)  {}
func (l *NoOpLogger) Error(msg string, fields ...Field) {}
