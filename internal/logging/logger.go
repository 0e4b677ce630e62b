package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Init configures the global slog logger.
// In production (ENVIRONMENT=production) it uses JSON output for log aggregation.
// Otherwise it uses the human-readable text handler.
func Init() {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))

	var handler slog.Handler
	if env == "production" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
	}

	slog.SetDefault(slog.New(handler))
}

// WithOperation returns a logger with operation context fields attached.
// Use this for all logging within a reflection generation run.
func WithOperation(operationID, userID string) *slog.Logger {
	return slog.With(
		"operation_id", operationID,
		"user_id", userID,
	)
}

// WithWeek returns a logger scoped to a specific target week.
func WithWeek(logger *slog.Logger, weekKey string) *slog.Logger {
	return logger.With("week_key", weekKey)
}
