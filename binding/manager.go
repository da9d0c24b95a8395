package binding

import (
	"strconv"
	"sync"
	"weak"

	"go.uber.org/zap"

	"github.com/wippyai/gdext-bridge/abi"
	"github.com/wippyai/gdext-bridge/errors"
	"github.com/wippyai/gdext-bridge/resource"
	"github.com/wippyai/gdext-bridge/variant"
)

// State is the lifecycle state of one binding.
type State uint8

const (
	StateUnbound State = iota
	StateBound
	StateReleased
)

func (s State) String() string {
	switch s {
	case StateUnbound:
		return "unbound"
	case StateBound:
		return "bound"
	case StateReleased:
		return "released"
	}
	return "unknown"
}

// record is one binding. The host stores its handle as the binding pointer
// and, for extension instances, as the instance pointer.
type record struct {
	object abi.Ptr
	id     uint64
	handle resource.Handle

	mu       sync.Mutex
	state    State
	class    string
	instance any
	// keep counts the reasons to hold the wrapper strongly: one for the
	// binding itself plus the host references observed since.
	keep   int
	strong *Object
	weak   weak.Pointer[Object]
}

// Manager owns the bindings of one token.
type Manager struct {
	m       *variant.Marshaler
	table   *abi.InterfaceTable
	library abi.Ptr
	token   abi.Ptr
	owned   bool

	records   *resource.Table[*record]
	observer  *staleObserver
	callbacks abi.InstanceBindingCallbacks

	mu       sync.RWMutex
	byObject map[abi.Ptr]*record
	// tombstones maps the objects of released bindings to their instance
	// ids. An entry only stands while the address still names that object.
	tombstones map[abi.Ptr]uint64

	bindMu sync.RWMutex
	binds  map[bindKey]abi.Ptr
}

type bindKey struct {
	class  string
	method string
	hash   int64
}

// maxTombstones triggers a sweep of tombstones whose objects the host has
// destroyed.
const maxTombstones = 1024

// staleObserver reports binding handles presented after release.
type staleObserver struct{}

func (*staleObserver) OnResourceEvent(e resource.Event) {
	if e.Type == resource.EventStale {
		Logger().Warn("binding used after release",
			zap.String("table", e.Table),
			zap.Stringer("handle", e.Handle))
	}
}

// NewManager creates a manager for library. A Null token makes the manager
// allocate a unique one from host memory.
func NewManager(m *variant.Marshaler, library, token abi.Ptr) (*Manager, error) {
	if m == nil {
		return nil, errors.NotInitialized("variant marshaler")
	}
	mgr := &Manager{
		m:          m,
		table:      m.Table(),
		library:    library,
		token:      token,
		records:    resource.NewTable[*record]("binding"),
		observer:   &staleObserver{},
		byObject:   make(map[abi.Ptr]*record),
		tombstones: make(map[abi.Ptr]uint64),
		binds:      make(map[bindKey]abi.Ptr),
	}
	mgr.records.Subscribe(mgr.observer)
	if token.IsNull() {
		p := mgr.table.MemAlloc(1)
		if p.IsNull() {
			return nil, errors.AllocationFailed(errors.PhaseBinding, 1)
		}
		mgr.token = p
		mgr.owned = true
	}
	mgr.callbacks = abi.InstanceBindingCallbacks{
		Create:    mgr.create,
		Free:      mgr.free,
		Reference: mgr.reference,
	}
	return mgr, nil
}

// Token returns the token distinguishing this manager's bindings.
func (mgr *Manager) Token() abi.Ptr { return mgr.token }

// Marshaler returns the marshaler used for outbound calls.
func (mgr *Manager) Marshaler() *variant.Marshaler { return mgr.m }

// Callbacks returns the binding callbacks passed to the host. The pointer
// is stable for the manager's lifetime.
func (mgr *Manager) Callbacks() *abi.InstanceBindingCallbacks { return &mgr.callbacks }

// Len returns the number of bound objects.
func (mgr *Manager) Len() int { return mgr.records.Len() }

// bind returns the live binding of obj, creating one when there is none.
// existing reports whether the binding was already there.
func (mgr *Manager) bind(obj abi.Ptr, class string, instance any) (r *record, existing bool, err error) {
	id := mgr.table.ObjectGetInstanceID(obj)

	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	if live, ok := mgr.byObject[obj]; ok {
		return live, true, nil
	}
	r = &record{
		object:   obj,
		id:       id,
		state:    StateBound,
		class:    class,
		instance: instance,
		keep:     1,
	}
	h, err := mgr.records.Insert(r)
	if err != nil {
		return nil, false, errors.Wrap(errors.PhaseBinding, errors.KindAllocation, err, "binding for "+obj.String())
	}
	r.handle = h
	mgr.byObject[obj] = r
	delete(mgr.tombstones, obj)
	return r, false, nil
}

// Attach binds a freshly constructed host object to instance, the Go side
// of extension class class. It returns the handle the host echoes back as
// the instance pointer.
func (mgr *Manager) Attach(obj abi.Ptr, class string, instance any) (abi.Ptr, *Object, error) {
	if obj.IsNull() {
		return abi.Null, nil, errors.NilPointer(errors.PhaseBinding, "object")
	}
	r, existing, err := mgr.bind(obj, class, instance)
	if err != nil {
		return abi.Null, nil, err
	}
	if existing {
		return abi.Null, nil, errors.New(errors.PhaseBinding, errors.KindDuplicate).
			Class(class).
			Detail("object %s is already bound", obj).
			Build()
	}
	mgr.table.ObjectSetInstanceBinding(obj, mgr.token, abi.Ptr(r.handle), &mgr.callbacks)

	Logger().Debug("attached instance",
		zap.String("class", class),
		zap.Stringer("object", obj),
		zap.Stringer("handle", r.handle))
	return abi.Ptr(r.handle), mgr.wrapper(r), nil
}

// Wrap returns the wrapper of obj, creating the binding through the host on
// first use. Repeated calls return the same wrapper while it is alive.
func (mgr *Manager) Wrap(obj abi.Ptr) (*Object, error) {
	if obj.IsNull() {
		return nil, errors.NilPointer(errors.PhaseBinding, "object")
	}
	h := mgr.table.ObjectGetInstanceBinding(obj, mgr.token, &mgr.callbacks)
	if h.IsNull() {
		return nil, errors.NotFound(errors.PhaseBinding, "object", obj.String())
	}
	r, err := mgr.resolve(h)
	if err != nil {
		return nil, err
	}
	return mgr.wrapper(r), nil
}

// Lookup returns the wrapper of an already bound object without asking the
// host.
func (mgr *Manager) Lookup(obj abi.Ptr) (*Object, error) {
	r, err := mgr.byPtr(obj)
	if err != nil {
		return nil, err
	}
	return mgr.wrapper(r), nil
}

// Instance returns the Go side of an extension instance.
func (mgr *Manager) Instance(obj abi.Ptr) (any, error) {
	r, err := mgr.byPtr(obj)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.instance == nil {
		return nil, errors.NotFound(errors.PhaseBinding, "instance", obj.String())
	}
	return r.instance, nil
}

// Resolve maps an instance pointer handed out by Attach back to its object
// and Go instance.
func (mgr *Manager) Resolve(instance abi.Ptr) (abi.Ptr, any, error) {
	r, err := mgr.resolve(instance)
	if err != nil {
		return abi.Null, nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.instance == nil {
		return r.object, nil, errors.Lifecycle("instance %s has been freed", instance)
	}
	return r.object, r.instance, nil
}

// ClearInstance drops the Go instance while the binding itself stays until
// the host frees it.
func (mgr *Manager) ClearInstance(instance abi.Ptr) {
	r, err := mgr.resolve(instance)
	if err != nil {
		return
	}
	r.mu.Lock()
	r.instance = nil
	r.mu.Unlock()
}

func (mgr *Manager) resolve(h abi.Ptr) (*record, error) {
	r, err := mgr.records.Lookup(resource.Handle(h))
	if err != nil {
		if err == resource.ErrStaleHandle {
			return nil, errors.Lifecycle("binding %s used after release", h)
		}
		return nil, errors.Wrap(errors.PhaseBinding, errors.KindNotFound, err, "binding "+h.String())
	}
	return r, nil
}

func (mgr *Manager) byPtr(obj abi.Ptr) (*record, error) {
	mgr.mu.RLock()
	r, ok := mgr.byObject[obj]
	mgr.mu.RUnlock()
	switch {
	case ok:
		return r, nil
	case mgr.released(obj):
		return nil, errors.Lifecycle("object %s used after release", obj)
	}
	return nil, errors.NotFound(errors.PhaseBinding, "binding", obj.String())
}

// released reports whether obj still names an object whose binding was
// released. A tombstone whose address the host has since given to another
// object is dropped.
func (mgr *Manager) released(obj abi.Ptr) bool {
	mgr.mu.RLock()
	id, ok := mgr.tombstones[obj]
	mgr.mu.RUnlock()
	if !ok {
		return false
	}
	if mgr.table.ObjectGetInstanceFromID(id) == obj {
		return true
	}
	if mgr.table.ObjectGetInstanceID(obj) == 0 {
		return true
	}
	mgr.mu.Lock()
	if cur, ok := mgr.tombstones[obj]; ok && cur == id {
		delete(mgr.tombstones, obj)
	}
	mgr.mu.Unlock()
	return false
}

// sweepTombstones drops the tombstones of objects the host has destroyed.
func (mgr *Manager) sweepTombstones() {
	mgr.mu.RLock()
	dead := make(map[abi.Ptr]uint64)
	for obj, id := range mgr.tombstones {
		dead[obj] = id
	}
	mgr.mu.RUnlock()
	for obj, id := range dead {
		if mgr.table.ObjectGetInstanceFromID(id) == obj {
			delete(dead, obj)
		}
	}

	mgr.mu.Lock()
	for obj, id := range dead {
		if cur, ok := mgr.tombstones[obj]; ok && cur == id {
			delete(mgr.tombstones, obj)
		}
	}
	mgr.mu.Unlock()
}

func (mgr *Manager) wrapper(r *record) *Object {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.strong != nil {
		return r.strong
	}
	if o := r.weak.Value(); o != nil {
		if r.keep > 0 {
			r.strong = o
		}
		return o
	}
	o := &Object{ptr: r.object, mgr: mgr, rec: r}
	r.weak = weak.Make(o)
	if r.keep > 0 {
		r.strong = o
	}
	return o
}

// State reports the binding state of obj.
func (mgr *Manager) State(obj abi.Ptr) State {
	mgr.mu.RLock()
	r, ok := mgr.byObject[obj]
	mgr.mu.RUnlock()
	switch {
	case ok:
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.state
	case mgr.released(obj):
		return StateReleased
	}
	return StateUnbound
}

// KeepAlive returns the keep-alive count of obj. The wrapper is held
// strongly while it is positive.
func (mgr *Manager) KeepAlive(obj abi.Ptr) (int, error) {
	r, err := mgr.byPtr(obj)
	if err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.keep, nil
}

// Reference adjusts the keep-alive of the binding named by binding. It
// never vetoes the host's decision to free the object.
func (mgr *Manager) Reference(binding abi.Ptr, reference bool) bool {
	r, err := mgr.resolve(binding)
	if err != nil {
		Logger().Warn("reference on unknown binding", zap.Stringer("binding", binding), zap.Error(err))
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if reference {
		r.keep++
		if r.strong == nil {
			r.strong = r.weak.Value()
		}
		return true
	}
	if r.keep > 0 {
		r.keep--
	}
	if r.keep == 0 {
		r.strong = nil
	}
	return true
}

// Release detaches obj, asking the host to run the free callback. Released
// objects report errors.ErrLifecycle on further use.
func (mgr *Manager) Release(obj abi.Ptr) error {
	r, err := mgr.byPtr(obj)
	if err != nil {
		return err
	}
	mgr.table.ObjectFreeInstanceBinding(obj, mgr.token)
	// Bindings installed without callbacks are not freed by the host.
	mgr.release(r)
	return nil
}

// Release implements resource.Releaser: closing the records table releases
// every remaining binding.
func (r *record) Release() { r.markReleased() }

// markReleased drops the Go references of r. It reports whether r was
// bound before.
func (r *record) markReleased() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateReleased {
		return false
	}
	r.state = StateReleased
	r.strong = nil
	r.instance = nil
	r.keep = 0
	return true
}

func (mgr *Manager) release(r *record) {
	if !r.markReleased() {
		return
	}
	mgr.records.Remove(r.handle)

	mgr.mu.Lock()
	if mgr.byObject[r.object] == r {
		delete(mgr.byObject, r.object)
	}
	mgr.tombstones[r.object] = r.id
	sweep := len(mgr.tombstones) > maxTombstones
	mgr.mu.Unlock()
	if sweep {
		mgr.sweepTombstones()
	}

	Logger().Debug("released binding",
		zap.String("class", r.class),
		zap.Stringer("object", r.object),
		zap.Stringer("handle", r.handle))
}

func (mgr *Manager) create(token, obj abi.Ptr) abi.Ptr {
	if token != mgr.token {
		Logger().Error("binding create with foreign token", zap.Stringer("token", token))
		return abi.Null
	}
	r, existing, err := mgr.bind(obj, "", nil)
	if err != nil {
		Logger().Error("binding create failed", zap.Stringer("object", obj), zap.Error(err))
		return abi.Null
	}
	if !existing {
		Logger().Debug("created binding", zap.Stringer("object", obj), zap.Stringer("handle", r.handle))
	}
	return abi.Ptr(r.handle)
}

func (mgr *Manager) free(token, obj, binding abi.Ptr) {
	if token != mgr.token {
		Logger().Error("binding free with foreign token", zap.Stringer("token", token))
		return
	}
	r, err := mgr.resolve(binding)
	if err != nil {
		Logger().Warn("free of unknown binding",
			zap.Stringer("object", obj),
			zap.Stringer("binding", binding),
			zap.Error(err))
		return
	}
	mgr.release(r)
}

func (mgr *Manager) reference(token, binding abi.Ptr, reference bool) bool {
	if token != mgr.token {
		return true
	}
	return mgr.Reference(binding, reference)
}

// FromID wraps the live object with instance id id.
func (mgr *Manager) FromID(id uint64) (*Object, error) {
	obj := mgr.table.ObjectGetInstanceFromID(id)
	if obj.IsNull() {
		return nil, errors.NotFound(errors.PhaseBinding, "instance id", strconv.FormatUint(id, 10))
	}
	return mgr.Wrap(obj)
}

// Singleton wraps the named engine singleton.
func (mgr *Manager) Singleton(name string) (*Object, error) {
	p, err := mgr.m.StringName(name)
	if err != nil {
		return nil, err
	}
	obj := mgr.table.GlobalGetSingleton(p)
	mgr.m.FreeTyped(abi.VariantTypeStringName, p)
	if obj.IsNull() {
		return nil, errors.NotFound(errors.PhaseBinding, "singleton", name)
	}
	return mgr.Wrap(obj)
}

// Close forgets every binding. Objects still alive in the host keep their
// binding pointers, which now resolve to lifecycle errors.
func (mgr *Manager) Close() error {
	if err := mgr.records.Close(); err != nil {
		return err
	}
	mgr.records.Unsubscribe(mgr.observer)

	mgr.mu.Lock()
	for obj, r := range mgr.byObject {
		mgr.tombstones[obj] = r.id
	}
	clear(mgr.byObject)
	mgr.mu.Unlock()

	mgr.bindMu.Lock()
	clear(mgr.binds)
	mgr.bindMu.Unlock()
	Logger().Debug("binding manager closed", zap.Int("retired_slots", mgr.records.Retired()))
	if mgr.owned {
		mgr.table.MemFree(mgr.token)
		mgr.owned = false
	}
	return nil
}
