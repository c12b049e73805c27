package protofish

import (
	"log/slog"

	"github.com/google/uuid"
)

// loggerOrDefault mirrors the teacher's pattern of never forcing a handler
// on the embedding application: library components take an optional
// *slog.Logger and fall back to slog.Default() when nil.
func loggerOrDefault(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.Default()
}

// newCorrelationId returns a short id used to tell interleaved per-
// connection background-task logs apart ("conn" field), the same role
// google/uuid plays for message ids in the teacher's clog package.
func newCorrelationId() string {
	return uuid.NewString()
}
