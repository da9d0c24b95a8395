package loader

import (
	stderrors "errors"
	"strconv"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/mod/semver"

	"github.com/wippyai/gdext-bridge/abi"
	"github.com/wippyai/gdext-bridge/binding"
	"github.com/wippyai/gdext-bridge/classdb"
	"github.com/wippyai/gdext-bridge/dispatch"
	"github.com/wippyai/gdext-bridge/errors"
	"github.com/wippyai/gdext-bridge/variant"
)

var current atomic.Pointer[Bridge]

// Bridge is the process-wide context built from the host's interface
// table. The table is never mutated after Initialize.
type Bridge struct {
	table   *abi.InterfaceTable
	library abi.Ptr
	version abi.GodotVersion
	cfg     Config
	log     *zap.Logger

	m   *variant.Marshaler
	reg *classdb.Registry
	mgr *binding.Manager
	d   *dispatch.Dispatcher

	mu     sync.Mutex
	active [abi.MaxInitializationLevel]bool
	closed bool
}

// Initialize builds the bridge for table. It fails with
// errors.ErrReinitialization while another bridge is live and with a
// version error when the host is older than cfg.MinHostVersion.
func Initialize(table *abi.InterfaceTable, library abi.Ptr, cfg Config) (*Bridge, error) {
	if table == nil {
		return nil, errors.NotInitialized("interface table")
	}
	if current.Load() != nil {
		return nil, errors.Reinitialization()
	}
	if cfg.MinimumLevel < abi.InitializationCore || cfg.MinimumLevel >= abi.MaxInitializationLevel {
		return nil, errors.InvalidInput(errors.PhaseInit, "minimum level "+cfg.MinimumLevel.String())
	}
	version, err := negotiate(table, cfg.minHostVersion())
	if err != nil {
		return nil, err
	}

	m, err := variant.New(table)
	if err != nil {
		return nil, err
	}
	mgr, err := binding.NewManager(m, library, cfg.Token)
	if err != nil {
		return nil, err
	}
	b := &Bridge{
		table:   table,
		library: library,
		version: version,
		cfg:     cfg,
		m:       m,
		reg:     classdb.New(m, library),
		mgr:     mgr,
	}
	b.d = dispatch.New(b.reg, mgr)
	if !current.CompareAndSwap(nil, b) {
		_ = mgr.Close()
		return nil, errors.Reinitialization()
	}

	b.log = newLogger(cfg, table)
	installLogger(b.log)
	b.log.Info("bridge initialized",
		zap.String("host", version.String),
		zap.Stringer("library", library),
		zap.Stringer("minimum_level", cfg.MinimumLevel))
	return b, nil
}

// negotiate checks the host version against minimum once, at load.
func negotiate(table *abi.InterfaceTable, minimum string) (abi.GodotVersion, error) {
	if !semver.IsValid(minimum) {
		return abi.GodotVersion{}, errors.InvalidInput(errors.PhaseInit, "minimum host version "+strconv.Quote(minimum))
	}
	if table.GetGodotVersion == nil {
		return abi.GodotVersion{}, errors.NotInitialized("get_godot_version")
	}
	v := table.GetGodotVersion()
	if semver.Compare(v.Semver(), minimum) < 0 {
		return v, errors.New(errors.PhaseInit, errors.KindVersion).
			Value(v.Semver()).
			Detail("host %s is older than %s", v.Semver(), minimum).
			Build()
	}
	return v, nil
}

func installLogger(l *zap.Logger) {
	SetLogger(l)
	variant.SetLogger(l)
	classdb.SetLogger(l)
	binding.SetLogger(l)
	dispatch.SetLogger(l)
}

// Current returns the live bridge, or nil before Initialize and after Close.
func Current() *Bridge {
	return current.Load()
}

// Table returns the host interface table.
func (b *Bridge) Table() *abi.InterfaceTable { return b.table }

// Library returns the library handle the host loaded the extension with.
func (b *Bridge) Library() abi.Ptr { return b.library }

// Version returns the negotiated host version.
func (b *Bridge) Version() abi.GodotVersion { return b.version }

// Marshaler returns the Variant marshaler.
func (b *Bridge) Marshaler() *variant.Marshaler { return b.m }

// Classes returns the class registrar.
func (b *Bridge) Classes() *classdb.Registry { return b.reg }

// Bindings returns the instance binding manager.
func (b *Bridge) Bindings() *binding.Manager { return b.mgr }

// Dispatcher returns the callback dispatcher.
func (b *Bridge) Dispatcher() *dispatch.Dispatcher { return b.d }

// Logger returns the bridge's process logger.
func (b *Bridge) Logger() *zap.Logger { return b.log }

// LibraryPath asks the host where the extension library was loaded from.
func (b *Bridge) LibraryPath() (string, error) {
	if b.table.GetLibraryPath == nil {
		return "", errors.Unsupported(errors.PhaseHost, "get_library_path")
	}
	size := abi.TypeSize(abi.VariantTypeString)
	ret := b.table.MemAlloc(size)
	if ret.IsNull() {
		return "", errors.AllocationFailed(errors.PhaseHost, size)
	}
	b.table.GetLibraryPath(b.library, ret)
	defer b.m.FreeTyped(abi.VariantTypeString, ret)
	return b.m.String(ret, variant.UTF8)
}

// InitializeLevel runs Config.Init for level. Classes registered meanwhile
// belong to level. Levels below the configured minimum are ignored.
func (b *Bridge) InitializeLevel(level abi.InitializationLevel) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errors.Lifecycle("initialize %s on a closed bridge", level)
	}
	if level < b.cfg.MinimumLevel || level >= abi.MaxInitializationLevel {
		return nil
	}
	if b.active[level] {
		return errors.Lifecycle("level %s already initialized", level)
	}
	b.active[level] = true
	b.reg.SetLevel(level)
	b.log.Debug("initializing level", zap.Stringer("level", level))
	if b.cfg.Init == nil {
		return nil
	}
	if err := b.cfg.Init(b, level); err != nil {
		return errors.Wrap(errors.PhaseInit, errors.KindRegistration, err, "initialize "+level.String())
	}
	return nil
}

// DeinitializeLevel runs Config.Deinit for level and unregisters the
// classes registered at it. Deinitializing the minimum level closes the
// bridge.
func (b *Bridge) DeinitializeLevel(level abi.InitializationLevel) error {
	b.mu.Lock()
	if b.closed || level < abi.InitializationCore || level >= abi.MaxInitializationLevel || !b.active[level] {
		b.mu.Unlock()
		return nil
	}
	b.active[level] = false
	b.log.Debug("deinitializing level", zap.Stringer("level", level))

	var errs []error
	if b.cfg.Deinit != nil {
		if err := b.cfg.Deinit(b, level); err != nil {
			errs = append(errs, errors.Wrap(errors.PhaseInit, errors.KindRegistration, err, "deinitialize "+level.String()))
		}
	}
	errs = append(errs, b.reg.UnregisterLevel(level))
	b.d.Prune()
	last := level == b.cfg.MinimumLevel
	b.mu.Unlock()

	if last {
		errs = append(errs, b.Close())
	}
	return stderrors.Join(errs...)
}

// Close unregisters every remaining class, releases the binding token and
// the process-wide guard. It is safe to call more than once.
func (b *Bridge) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.active = [abi.MaxInitializationLevel]bool{}
	b.mu.Unlock()

	errs := []error{b.reg.Close()}
	b.d.Prune()
	errs = append(errs, b.mgr.Close())
	b.log.Info("bridge closed")
	_ = b.log.Sync()

	if current.CompareAndSwap(b, nil) {
		installLogger(zap.NewNop())
	}
	return stderrors.Join(errs...)
}
