// Package logger provides structured logging for the workflow engine and the
// settlement pipeline.
//
// It wraps log/slog with:
//   - a global DefaultLogger configured from LOG_LEVEL
//   - execution-scoped fields pulled from context.Context
//   - redaction of bearer tokens and signed certificates
//   - json/text format selection through Configure
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"sync"
)

var (
	// DefaultLogger is the global structured logger instance.
	// It is safe for concurrent use and initialized with slog.LevelInfo by default.
	DefaultLogger *slog.Logger

	// logOutput is where handlers built by this package write.
	logOutput io.Writer = os.Stderr

	mu sync.Mutex
)

func init() {
	level := slog.LevelInfo
	if envLevel := os.Getenv("LOG_LEVEL"); envLevel != "" {
		level = ParseLevel(envLevel)
	}
	DefaultLogger = slog.New(NewContextHandler(newBaseHandler(level, false)))
}

func newBaseHandler(level slog.Level, useJSON bool) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if useJSON {
		return slog.NewJSONHandler(logOutput, opts)
	}
	return slog.NewTextHandler(logOutput, opts)
}

// ParseLevel converts a level name into a slog.Level. Unknown names map to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetLevel changes the logging level for all subsequent log operations.
// The logger instance is replaced as a whole, so concurrent readers never see a partial update.
func SetLevel(level slog.Level) {
	mu.Lock()
	defer mu.Unlock()
	DefaultLogger = slog.New(NewContextHandler(newBaseHandler(level, false)))
}

// SetVerbose enables debug-level logging when verbose is true, otherwise sets info-level.
func SetVerbose(verbose bool) {
	if verbose {
		SetLevel(slog.LevelDebug)
	} else {
		SetLevel(slog.LevelInfo)
	}
}

// SetOutput redirects log output and rebuilds the default logger at the given level.
// Used by the CLI and by tests that assert on log lines.
func SetOutput(w io.Writer, level slog.Level) {
	mu.Lock()
	defer mu.Unlock()
	logOutput = w
	DefaultLogger = slog.New(NewContextHandler(newBaseHandler(level, false)))
}

// Info logs an informational message with structured key-value attributes.
func Info(msg string, args ...any) {
	DefaultLogger.Info(msg, args...)
}

// InfoContext logs an informational message with context fields attached.
func InfoContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.InfoContext(ctx, msg, args...)
}

// Debug logs a debug-level message with structured attributes.
func Debug(msg string, args ...any) {
	DefaultLogger.Debug(msg, args...)
}

// DebugContext logs a debug message with context fields attached.
func DebugContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.DebugContext(ctx, msg, args...)
}

// Warn logs a warning message with structured attributes.
// Use for recoverable situations such as a missing template variable.
func Warn(msg string, args ...any) {
	DefaultLogger.Warn(msg, args...)
}

// WarnContext logs a warning message with context fields attached.
func WarnContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.WarnContext(ctx, msg, args...)
}

// Error logs an error message with structured attributes.
func Error(msg string, args ...any) {
	DefaultLogger.Error(msg, args...)
}

// ErrorContext logs an error message with context fields attached.
func ErrorContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.ErrorContext(ctx, msg, args...)
}

var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`Bearer\s+[a-zA-Z0-9_\-.]+`),
	// compact JWS: header.payload.signature, header always starts with eyJ
	regexp.MustCompile(`eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`),
}

// RedactSensitiveData removes bearer tokens and signed certificates from strings.
func RedactSensitiveData(input string) string {
	result := input
	for _, pattern := range sensitivePatterns {
		result = pattern.ReplaceAllStringFunc(result, func(match string) string {
			if strings.HasPrefix(match, "Bearer") {
				return "Bearer [REDACTED]"
			}
			if len(match) > 8 {
				return match[:4] + "...[REDACTED]"
			}
			return "[REDACTED]"
		})
	}
	return result
}
