package dispatch

import (
	"sync/atomic"

	"go.uber.org/zap"
)

var logger atomic.Pointer[zap.Logger]

func init() {
	logger.Store(zap.NewNop())
}

// Logger returns the dispatch package's logger instance.
func Logger() *zap.Logger {
	return logger.Load()
}

// SetLogger configures the dispatch package's logger. Hooks may already be
// running; the swap is atomic.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	logger.Store(l)
}
