// Package logging provides logging utilities for the application.
package logging

import (
	"context"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the interface for logging.
type Logger interface {
	// Debug logs a debug message.
	Debug(args ...interface{})
	// Debugf logs a formatted debug message.
	Debugf(format string, args ...interface{})
	// Info logs an info message.
	Info(args ...interface{})
	// Infof logs a formatted info message.
	Infof(format string, args ...interface{})
	// Warn logs a warning message.
	Warn(args ...interface{})
	// Warnf logs a formatted warning message.
	Warnf(format string, args ...interface{})
	// Error logs an error message.
	Error(args ...interface{})
	// Errorf logs a formatted error message.
	Errorf(format string, args ...interface{})
	// Fatal logs a fatal message and exits.
	Fatal(args ...interface{})
	// WithField adds a field to the logger.
	WithField(key string, value interface{}) Logger
	// WithFields adds multiple fields to the logger.
	WithFields(fields map[string]interface{}) Logger
	// WithError adds an error to the logger.
	WithError(err error) Logger
}

// LogrusLogger is an implementation of the Logger interface using Logrus.
type LogrusLogger struct {
	logger *logrus.Entry
}

// NewLogrusLogger creates a new LogrusLogger writing JSON to stdout.
func NewLogrusLogger() *LogrusLogger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	logger.SetFormatter(jsonFormatter())
	return &LogrusLogger{
		logger: logrus.NewEntry(logger),
	}
}

func jsonFormatter() logrus.Formatter {
	return &logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.999Z07:00",
	}
}

// Debug logs a debug message.
func (l *LogrusLogger) Debug(args ...interface{}) {
	l.logger.Debug(args...)
}

// Debugf logs a formatted debug message.
func (l *LogrusLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debugf(format, args...)
}

// Info logs an info message.
func (l *LogrusLogger) Info(args ...interface{}) {
	l.logger.Info(args...)
}

// Infof logs a formatted info message.
func (l *LogrusLogger) Infof(format string, args ...interface{}) {
	l.logger.Infof(format, args...)
}

// Warn logs a warning message.
func (l *LogrusLogger) Warn(args ...interface{}) {
	l.logger.Warn(args...)
}

// Warnf logs a formatted warning message.
func (l *LogrusLogger) Warnf(format string, args ...interface{}) {
	l.logger.Warnf(format, args...)
}

// Error logs an error message.
func (l *LogrusLogger) Error(args ...interface{}) {
	l.logger.Error(args...)
}

// Errorf logs a formatted error message.
func (l *LogrusLogger) Errorf(format string, args ...interface{}) {
	l.logger.Errorf(format, args...)
}

// Fatal logs a fatal message and exits.
func (l *LogrusLogger) Fatal(args ...interface{}) {
	l.logger.Fatal(args...)
}

// WithField adds a field to the logger.
func (l *LogrusLogger) WithField(key string, value interface{}) Logger {
	return &LogrusLogger{
		logger: l.logger.WithField(key, value),
	}
}

// WithFields adds multiple fields to the logger.
func (l *LogrusLogger) WithFields(fields map[string]interface{}) Logger {
	return &LogrusLogger{
		logger: l.logger.WithFields(logrus.Fields(fields)),
	}
}

// WithError adds an error to the logger.
func (l *LogrusLogger) WithError(err error) Logger {
	return &LogrusLogger{
		logger: l.logger.WithError(err),
	}
}

// SetLevel sets the logging level. Unknown levels fall back to info.
func (l *LogrusLogger) SetLevel(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.logger.Logger.SetLevel(lvl)
}

// SetFormat switches between "json" and "text" output.
func (l *LogrusLogger) SetFormat(format string) {
	switch format {
	case "text":
		l.logger.Logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		l.logger.Logger.SetFormatter(jsonFormatter())
	}
}

// SetOutput redirects the log output.
func (l *LogrusLogger) SetOutput(w io.Writer) {
	l.logger.Logger.SetOutput(w)
}

// DefaultLogger is the default logger for the application.
var DefaultLogger Logger = NewLogrusLogger()

// Debug logs a debug message.
func Debug(args ...interface{}) {
	DefaultLogger.Debug(args...)
}

// Debugf logs a formatted debug message.
func Debugf(format string, args ...interface{}) {
	DefaultLogger.Debugf(format, args...)
}

// Info logs an info message.
func Info(args ...interface{}) {
	DefaultLogger.Info(args...)
}

// Infof logs a formatted info message.
func Infof(format string, args ...interface{}) {
	DefaultLogger.Infof(format, args...)
}

// Warn logs a warning message.
func Warn(args ...interface{}) {
	DefaultLogger.Warn(args...)
}

// Error logs an error message.
func Error(args ...interface{}) {
	DefaultLogger.Error(args...)
}

// Errorf logs a formatted error message.
func Errorf(format string, args ...interface{}) {
	DefaultLogger.Errorf(format, args...)
}

// Fatal logs a fatal message and exits.
func Fatal(args ...interface{}) {
	DefaultLogger.Fatal(args...)
}

// WithField adds a field to the logger.
func WithField(key string, value interface{}) Logger {
	return DefaultLogger.WithField(key, value)
}

// WithFields adds multiple fields to the logger.
func WithFields(fields map[string]interface{}) Logger {
	return DefaultLogger.WithFields(fields)
}

// WithError adds an error to the logger.
func WithError(err error) Logger {
	return DefaultLogger.WithError(err)
}

// Setup configures level and format of the default logger and of the logrus standard
// logger used by the broker adapters.
func Setup(level, format string) {
	if l, ok := DefaultLogger.(*LogrusLogger); ok {
		l.SetLevel(level)
		l.SetFormat(format)
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logrus.SetLevel(lvl)
	if format == "text" {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logrus.SetFormatter(jsonFormatter())
	}
}

type contextKey struct{}

// NewContext returns a context carrying logger.
func NewContext(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext returns the logger stored in ctx, or the default logger.
func FromContext(ctx context.Context) Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(contextKey{}).(Logger); ok {
			return logger
		}
	}
	return DefaultLogger
}
