package surfacehost

import (
	"log/slog"
	"sync/atomic"
)

var defaultLogger atomic.Pointer[slog.Logger]

func init() {
	defaultLogger.Store(slog.New(slog.DiscardHandler))
}

// SetLogger replaces the logger used by registries and present loops that
// were not given one through WithLogger. A nil logger silences output again,
// which is also the initial state.
//
// Records are emitted at these levels:
//   - [slog.LevelDebug]: round stages, pool hits, coalesced requests
//   - [slog.LevelInfo]: registry and plugin lifecycle
//   - [slog.LevelWarn]: failed rounds and disposal of busy surfaces
//
// For example:
//
//	surfacehost.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(slog.DiscardHandler)
	}
	defaultLogger.Store(l)
}

// Logger returns the logger installed by SetLogger.
func Logger() *slog.Logger {
	return defaultLogger.Load()
}

// surfaceLogger scopes l to one surface.
func surfaceLogger(l *slog.Logger, id string) *slog.Logger {
	return l.With("surface", id)
}
