package logging

import "log/slog"

// EnableTrace turns on per-item trace logs. Off by default: tracing
// logs one line per sighting and drowns the debug stream on big runs.
var EnableTrace = false

// Trace logs at DEBUG level, but only when EnableTrace is set, so the
// per-item call sites stay cheap in normal operation.
func Trace(logger *slog.Logger, msg string, args ...any) {
	if EnableTrace {
		logger.Debug(msg, args...)
	}
}
