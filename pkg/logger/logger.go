// Package logger provides structured logging utilities.
package logger

import (
	"os"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a wrapper around zap.Logger.
type Logger struct {
	*zap.Logger
}

// Options configure New.
type Options struct {
	Level string
	// Console switches to the human-readable development encoder.
	Console bool
	// Fields are attached to every entry.
	Fields []zap.Field
}

// New creates a JSON logger at the given level.
func New(level string) (*Logger, error) {
	return NewWithOptions(Options{Level: level})
}

// NewWithOptions creates a logger from opts.
func NewWithOptions(opts Options) (*Logger, error) {
	var config zap.Config
	if opts.Console {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
		config.EncoderConfig.TimeKey = "ts"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		config.EncoderConfig.EncodeDuration = zapcore.SecondsDurationEncoder
		config.OutputPaths = []string{"stdout"}
	}
	config.Level = zap.NewAtomicLevelAt(parseLevel(opts.Level))

	zl, err := config.Build(zap.Fields(opts.Fields...))
	if err != nil {
		return nil, err
	}
	return &Logger{Logger: zl}, nil
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// With creates a child logger with additional fields.
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{Logger: l.Logger.With(fields...)}
}

// WithContext creates a child logger with request context fields.
func (l *Logger) WithContext(correlationID, userID string) *Logger {
	fields := make([]zap.Field, 0, 2)
	if correlationID != "" {
		fields = append(fields, zap.String("correlation_id", correlationID))
	}
	if userID != "" {
		fields = append(fields, zap.String("user_id", userID))
	}
	return l.With(fields...)
}

// Named returns a child logger for a component.
func (l *Logger) Named(component string) *Logger {
	return &Logger{Logger: l.Logger.Named(component)}
}

// parseLevel maps a level name to a zap level; unknown names mean info.
func parseLevel(level string) zapcore.Level {
	if level == "warning" || level == "WARNING" {
		return zapcore.WarnLevel
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

var global atomic.Pointer[Logger]

func init() {
	l, err := NewWithOptions(Options{Console: os.Getenv("ENV") == "development"})
	if err != nil {
		l = NewNop()
	}
	global.Store(l)
}

// Global returns the process-wide logger.
func Global() *Logger {
	return global.Load()
}

// SetGlobal replaces the process-wide logger.
func SetGlobal(l *Logger) {
	global.Store(l)
}
