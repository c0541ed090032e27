package logger

import (
	"context"

	"go.uber.org/zap"
)

// Standard field names for consistent structured logging.
const (
	FieldRunID     = "run_id"
	FieldBatchNo   = "batch_no"
	FieldComponent = "component"

	FieldAttempt    = "attempt"
	FieldRetries    = "retries"
	FieldSize       = "size"
	FieldBatchSize  = "batch_size"
	FieldInFlight   = "in_flight"
	FieldTotal      = "total"
	FieldDurationMS = "duration_ms"

	FieldError  = "error"
	FieldSymbol = "symbol" // ꩜, ✿, ❀
	FieldPath   = "path"
)

type contextKey string

const runIDKey contextKey = "logger_run_id"

// WithRunID adds a run ID to the context for logging
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// RunIDFromContext returns the run ID stored by WithRunID, if any
func RunIDFromContext(ctx context.Context) string {
	runID, _ := ctx.Value(runIDKey).(string)
	return runID
}

// LoggerFromContext returns the global logger with run_id attached when present.
func LoggerFromContext(ctx context.Context) *zap.SugaredLogger {
	if runID := RunIDFromContext(ctx); runID != "" {
		return Logger.With(FieldRunID, runID)
	}
	return Logger
}

// ComponentLogger returns a named logger for a specific component.
//
// Example:
//
//	d := batch.NewDispatcher(cfg, batch.Options{
//	    Logger: logger.ComponentLogger("pulse.batch"),
//	})
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}
