// Package logging configures log/slog for sheetpipe.
//
// Request IDs set by chi's RequestID middleware are carried into every entry
// logged through FromContext, and stage loggers add the stage and table names.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

// Setup configures the global slog logger to write to stdout.
//
// Level values: "debug", "info", "warn", "error" (default: "info")
// Format values: "text", "json" (default: "text")
func Setup(level, format string) {
	SetupWriter(os.Stdout, level, format)
}

// SetupWriter configures the global slog logger to write to w. The CLI logs
// to stderr so table output on stdout stays clean.
func SetupWriter(w io.Writer, level, format string) {
	slog.SetDefault(slog.New(NewHandler(w, level, format)))
}

// NewHandler builds a text or JSON handler at the given level.
func NewHandler(w io.Writer, level, format string) slog.Handler {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(level),
	}
	if strings.ToLower(format) == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// ParseLevel converts a string log level to slog.Level. Unknown values
// map to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

type runIDKey struct{}

// WithRunID attaches a pipeline run ID to ctx. Loggers built from the
// returned context carry it as run_id.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

// RunID returns the run ID stored by WithRunID.
func RunID(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

// FromContext returns the default logger, tagged with the chi request ID
// and the run ID when ctx carries them.
//
//	func handleSort(w http.ResponseWriter, r *http.Request) {
//	    logging.FromContext(r.Context()).Info("sorting", "table", name)
//	}
func FromContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		logger = logger.With("request_id", reqID)
	}
	if runID := RunID(ctx); runID != "" {
		logger = logger.With("run_id", runID)
	}
	return logger
}

// WithFields returns a request-scoped logger with additional fields.
func WithFields(ctx context.Context, args ...any) *slog.Logger {
	return FromContext(ctx).With(args...)
}

// ForStage returns the logger used by one pipeline stage.
func ForStage(ctx context.Context, stage, table string) *slog.Logger {
	return WithFields(ctx, "stage", stage, "table", table)
}
