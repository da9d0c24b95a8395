package loader

import (
	"sync/atomic"

	"go.uber.org/zap"
)

var logger atomic.Pointer[zap.Logger]

func init() {
	logger.Store(zap.NewNop())
}

// Logger returns the loader package's logger instance.
// It uses a no-op logger until a bridge is initialized.
func Logger() *zap.Logger {
	return logger.Load()
}

// SetLogger configures the loader package's logger. A nil logger restores
// the no-op default.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	logger.Store(l)
}
