package loader

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/gdext-bridge/abi"
)

// DefaultMinHostVersion is the oldest host the bridge loads into.
const DefaultMinHostVersion = "v4.1.0"

// LogLevelEnv names the environment variable that overrides Config.LogLevel.
const LogLevelEnv = "LOG_LEVEL"

// LevelFunc runs at one initialization level.
type LevelFunc func(b *Bridge, level abi.InitializationLevel) error

// Config holds the load-time options of a bridge.
type Config struct {
	// MinimumLevel is the first level the host initializes the extension
	// at. Deinitializing it closes the bridge.
	MinimumLevel abi.InitializationLevel

	// MinHostVersion is a semantic version such as "v4.1.0". Older hosts make
	// the entry point fail. Empty means DefaultMinHostVersion.
	MinHostVersion string

	// LogLevel is the console level: debug, info, warn or error. LOG_LEVEL
	// takes precedence. Empty means warn.
	LogLevel string

	// Logger replaces the console and host loggers entirely.
	Logger *zap.Logger

	// Token overrides the instance binding token. Null allocates one.
	Token abi.Ptr

	// Init registers classes for a level. Deinit runs before the classes of
	// the level are unregistered.
	Init   LevelFunc
	Deinit LevelFunc
}

func (c Config) minHostVersion() string {
	if c.MinHostVersion == "" {
		return DefaultMinHostVersion
	}
	return c.MinHostVersion
}

// level resolves the console level from LOG_LEVEL and LogLevel.
func (c Config) level() zapcore.Level {
	for _, s := range []string{os.Getenv(LogLevelEnv), c.LogLevel} {
		if s == "" {
			continue
		}
		if l, err := zapcore.ParseLevel(s); err == nil {
			return l
		}
	}
	return zapcore.WarnLevel
}
