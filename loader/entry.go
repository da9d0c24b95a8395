package loader

import (
	"go.uber.org/zap"

	"github.com/wippyai/gdext-bridge/abi"
)

// Entry returns the load-time entry point for cfg. It reports false to the
// host when the bridge cannot be built; the reason goes to PrintError since
// no logger exists yet.
func Entry(cfg Config) abi.EntryFunc {
	return func(table *abi.InterfaceTable, library abi.Ptr, init *abi.Initialization) bool {
		if init == nil {
			report(table, "entry called without an initialization record")
			return false
		}
		b, err := Initialize(table, library, cfg)
		if err != nil {
			report(table, err.Error())
			return false
		}
		init.MinimumLevel = cfg.MinimumLevel
		init.Userdata = library
		init.Initialize = func(_ abi.Ptr, level abi.InitializationLevel) {
			if err := b.InitializeLevel(level); err != nil {
				b.log.Error("level initialization failed", zap.Stringer("level", level), zap.Error(err))
			}
		}
		init.Deinitialize = func(_ abi.Ptr, level abi.InitializationLevel) {
			if err := b.DeinitializeLevel(level); err != nil {
				b.log.Error("level deinitialization failed", zap.Stringer("level", level), zap.Error(err))
			}
		}
		return true
	}
}

func report(table *abi.InterfaceTable, msg string) {
	if table == nil || table.PrintError == nil {
		return
	}
	table.PrintError(msg, "loader.Entry", "loader/entry.go", 0, false)
}
