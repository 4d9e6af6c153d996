package retouch

import (
	"log/slog"

	"github.com/gogpu/retouch/internal/logging"
)

// SetLogger configures the logger for retouch and all its sub-packages.
// By default, retouch produces no log output. Call SetLogger to enable
// logging.
//
// SetLogger is safe for concurrent use: it stores the new logger atomically.
// Pass nil to disable logging (restore default silent behavior).
//
// Log levels used by retouch:
//   - [slog.LevelDebug]: queue drains, backend calls, pipeline steps
//   - [slog.LevelInfo]: lifecycle events (model loaded, run finished)
//   - [slog.LevelWarn]: non-fatal issues (failed sync, undecodable bitmap, double release)
//
// Example:
//
//	retouch.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	logging.Set(l)
}

// Logger returns the current logger used by retouch.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return logging.Logger()
}
