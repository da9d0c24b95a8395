// Package loader receives the host's interface table at load time and owns
// the bridge built on top of it.
//
// # Lifecycle
//
// The host looks up the function returned by Entry and calls it once with the
// interface table, the library handle and an abi.Initialization to fill in.
// Entry negotiates the host version, builds the Bridge and installs the level
// callbacks. The host then calls InitializeLevel for each level from the
// configured minimum upward and DeinitializeLevel in reverse on shutdown.
// Classes remember the level they were registered at and are unregistered,
// leaf first, when that level is torn down.
//
// # Single Initialization
//
// Only one Bridge may be live per process. A second Initialize while one is
// live fails with errors.ErrReinitialization. Deinitializing the minimum level
// closes the bridge and releases the guard.
//
// # Logging
//
// Unless Config.Logger is set, the bridge logs to stderr at the level named
// by LOG_LEVEL (default warn) and forwards warnings and errors to the host's
// PrintWarning and PrintError entries.
package loader
