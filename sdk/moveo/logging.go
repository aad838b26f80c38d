package moveo

import (
	"log/slog"
	"sync/atomic"
)

var discardLogger = slog.New(slog.DiscardHandler)

// diagLogger gates diagnostic output behind the Logging switch.
type diagLogger struct {
	enabled atomic.Bool
	logger  *slog.Logger
}

func newDiagLogger(logger *slog.Logger, enabled bool) *diagLogger {
	d := &diagLogger{logger: logger.With("component", "moveo")}
	d.enabled.Store(enabled)
	return d
}

// get returns the configured logger, or a discarding one when logging is off.
func (d *diagLogger) get() *slog.Logger {
	if d.enabled.Load() {
		return d.logger
	}
	return discardLogger
}
