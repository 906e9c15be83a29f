// Package logger provides structured logging for the finsy library.
//
// It wraps log/slog with package-level helpers so library code can log
// without threading a logger through every type. The log level defaults
// to INFO; setting the environment variable FINSY_DEBUG to "1" or "true"
// raises it to DEBUG at process start, which also makes message-level
// stream traffic visible. GRPC_TRACE and GRPC_VERBOSITY are honored by
// the underlying gRPC library and are not interpreted here.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Config holds logger configuration.
type Config struct {
	Level  string // DEBUG, INFO, WARN, ERROR
	Format string // text, json
	Output io.Writer
}

var (
	mu       sync.RWMutex
	levelVar = new(slog.LevelVar)
	slogger  *slog.Logger
)

func init() {
	levelVar.Set(slog.LevelInfo)
	if debugEnv(os.Getenv("FINSY_DEBUG")) {
		levelVar.Set(slog.LevelDebug)
	}
	slogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelVar}))
}

// debugEnv reports whether the FINSY_DEBUG value enables debug logging.
func debugEnv(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func parseLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Init reconfigures the package logger. Output defaults to stderr.
func Init(cfg Config) {
	mu.Lock()
	defer mu.Unlock()

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	levelVar.Set(parseLevel(cfg.Level))
	if debugEnv(os.Getenv("FINSY_DEBUG")) {
		levelVar.Set(slog.LevelDebug)
	}

	opts := &slog.HandlerOptions{Level: levelVar}
	if strings.EqualFold(cfg.Format, "json") {
		slogger = slog.New(slog.NewJSONHandler(out, opts))
	} else {
		slogger = slog.New(slog.NewTextHandler(out, opts))
	}
}

// SetLevel adjusts the log level at runtime.
func SetLevel(level string) {
	levelVar.Set(parseLevel(level))
}

// DebugEnabled reports whether DEBUG records are being emitted.
func DebugEnabled() bool {
	return levelVar.Level() <= slog.LevelDebug
}

func getLogger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return slogger
}

// Debug logs at DEBUG level with key-value pairs.
func Debug(msg string, args ...any) {
	getLogger().Debug(msg, args...)
}

// Info logs at INFO level with key-value pairs.
func Info(msg string, args ...any) {
	getLogger().Info(msg, args...)
}

// Warn logs at WARN level with key-value pairs.
func Warn(msg string, args ...any) {
	getLogger().Warn(msg, args...)
}

// Error logs at ERROR level with key-value pairs.
func Error(msg string, args ...any) {
	getLogger().Error(msg, args...)
}

// With returns a logger carrying the given attributes.
func With(args ...any) *slog.Logger {
	return getLogger().With(args...)
}
