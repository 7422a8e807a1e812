package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/go-chi/chi/v5/middleware"
)

// Type alias for slog.Level for easier usage
type Level = slog.Level

const (
	LevelTrace   = slog.Level(-8)
	LevelDebug   = slog.LevelDebug // -4
	LevelInfo    = slog.LevelInfo  // 0
	LevelWarning = slog.LevelWarn  // 4
	LevelError   = slog.LevelError // 8
	LevelFatal   = slog.Level(12)  // 12
)

var (
	Logger          *slog.Logger
	errorSampleRate int32 = 100 // Log 1 out of every 100 errors by default (configurable via ERROR_SAMPLE_RATE)
	programLevel          = new(slog.LevelVar)
)

// Error counters for the health endpoint (incremented regardless of sampling)
var (
	TotalErrors    atomic.Int64
	TotalWarnings  atomic.Int64
	Total5xxErrors atomic.Int64
	Total4xxErrors atomic.Int64
	Total400Errors atomic.Int64
	Total404Errors atomic.Int64
	Total422Errors atomic.Int64
	RenderErrors   atomic.Int64
)

func init() {
	programLevel.Set(slog.LevelInfo)

	levelStr := os.Getenv("LOG_LEVEL")
	if levelStr == "" {
		levelStr = "INFO"
	}
	level, err := ParseLevel(levelStr)
	if err != nil {
		level = slog.LevelInfo
	}
	programLevel.Set(level)

	// ERROR_SAMPLE_RATE=1 logs every error/warning, 100 logs 1%
	if sampleStr := os.Getenv("ERROR_SAMPLE_RATE"); sampleStr != "" {
		if rate, err := strconv.Atoi(sampleStr); err == nil && rate > 0 {
			atomic.StoreInt32(&errorSampleRate, int32(rate))
		}
	}

	setupJSONLogging(os.Stdout)
}

// setupJSONLogging configures JSON logging to w
func setupJSONLogging(w io.Writer) {
	opts := &slog.HandlerOptions{
		Level: programLevel,
	}

	Logger = slog.New(slog.NewJSONHandler(w, opts))
	slog.SetDefault(Logger)
}

// Configure applies a level and sample rate loaded from configuration.
// A sample rate below 1 leaves the current rate unchanged.
func Configure(level string, sampleRate int) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}
	programLevel.Set(lvl)
	if sampleRate > 0 {
		atomic.StoreInt32(&errorSampleRate, int32(sampleRate))
	}
	fmt.Fprintf(os.Stderr, "JSON logging enabled (level: %s, sampling: 1/%d)\n", lvl, atomic.LoadInt32(&errorSampleRate))
	return nil
}

// SetOutput redirects log output, mainly for tests
func SetOutput(w io.Writer) {
	setupJSONLogging(w)
}

// SetLevel sets the minimum log level for the logger
func SetLevel(level slog.Level) {
	programLevel.Set(level)
}

// GetLevel returns the current minimum log level
func GetLevel() slog.Level {
	return programLevel.Level()
}

// ParseLevel converts a string level name to slog.Level
func ParseLevel(levelStr string) (slog.Level, error) {
	switch strings.ToUpper(levelStr) {
	case "TRACE":
		return LevelTrace, nil
	case "DEBUG":
		return LevelDebug, nil
	case "INFO":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarning, nil
	case "ERROR":
		return LevelError, nil
	case "FATAL":
		return LevelFatal, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %s (defaulting to INFO)", levelStr)
	}
}

// shouldSample returns true for 1 out of every N messages
func shouldSample() bool {
	rate := atomic.LoadInt32(&errorSampleRate)
	if rate <= 1 {
		return true
	}
	return rand.Intn(int(rate)) == 0
}

// FromContext returns the logger enriched with chi's request id, when present
func FromContext(ctx context.Context) *slog.Logger {
	l := Logger
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		l = l.With("request_id", reqID)
	}
	return l
}

// Trace logs a trace-level message (never sampled)
func Trace(msg string, args ...any) {
	Logger.Log(context.Background(), LevelTrace, msg, args...)
}

// Debug logs a debug-level message (never sampled)
func Debug(msg string, args ...any) {
	Logger.Debug(msg, args...)
}

// Info logs an info-level message (never sampled)
func Info(msg string, args ...any) {
	Logger.Info(msg, args...)
}

// Warn logs a warning-level message WITH SAMPLING.
// The counter is always incremented.
func Warn(msg string, args ...any) {
	TotalWarnings.Add(1)
	if shouldSample() {
		Logger.Warn(msg, args...)
	}
}

// Error logs an error-level message WITH SAMPLING.
// The counter is always incremented.
func Error(msg string, args ...any) {
	TotalErrors.Add(1)
	if shouldSample() {
		Logger.Error(msg, args...)
	}
}

// Fatal logs a fatal-level message and exits
func Fatal(msg string, args ...any) {
	Logger.Log(context.Background(), LevelFatal, msg, args...)
	os.Exit(1)
}

// ErrorHttp5xx increments the 5xx counters
func ErrorHttp5xx() {
	Total5xxErrors.Add(1)
	TotalErrors.Add(1)
}

// WarnHttp4xx increments the 4xx counters
func WarnHttp4xx(status int) {
	Total4xxErrors.Add(1)
	TotalWarnings.Add(1)

	switch status {
	case 400:
		Total400Errors.Add(1)
	case 404:
		Total404Errors.Add(1)
	case 422:
		Total422Errors.Add(1)
	}
}

// CountRenderErrors records per-row render failures of a generation run
func CountRenderErrors(n int) {
	RenderErrors.Add(int64(n))
}

// Counters is a point-in-time copy of the error counters
type Counters struct {
	Errors       int64 `json:"errors"`
	Warnings     int64 `json:"warnings"`
	HTTP4xx      int64 `json:"http4xx"`
	HTTP5xx      int64 `json:"http5xx"`
	HTTP400      int64 `json:"http400"`
	HTTP404      int64 `json:"http404"`
	HTTP422      int64 `json:"http422"`
	RenderErrors int64 `json:"renderErrors"`
}

// Snapshot returns the current counter values
func Snapshot() Counters {
	return Counters{
		Errors:       TotalErrors.Load(),
		Warnings:     TotalWarnings.Load(),
		HTTP4xx:      Total4xxErrors.Load(),
		HTTP5xx:      Total5xxErrors.Load(),
		HTTP400:      Total400Errors.Load(),
		HTTP404:      Total404Errors.Load(),
		HTTP422:      Total422Errors.Load(),
		RenderErrors: RenderErrors.Load(),
	}
}
