package classdb

import (
	stderrors "errors"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/gdext-bridge/abi"
	"github.com/wippyai/gdext-bridge/errors"
	"github.com/wippyai/gdext-bridge/resource"
	"github.com/wippyai/gdext-bridge/variant"
)

// Dispatcher supplies the host-facing callbacks of registered classes.
type Dispatcher interface {
	// CreationInfo returns the hooks for c, chosen by its capabilities.
	CreationInfo(c *Class) abi.ClassCreationInfo
	// MethodCallbacks returns the variant and ptrcall entry points shared
	// by every bound method.
	MethodCallbacks() (abi.ClassMethodCall, abi.ClassMethodPtrCall)
}

// Registry tracks the classes one library registered with the host.
type Registry struct {
	m       *variant.Marshaler
	table   *abi.InterfaceTable
	library abi.Ptr

	// regMu serializes host registration calls.
	regMu sync.Mutex

	mu         sync.RWMutex
	byName     map[string]*Class
	order      []*Class
	dispatcher Dispatcher
	resolve    ObjectResolver
	level      abi.InitializationLevel

	classes  *resource.Table[*Class]
	methods  *resource.Table[*Method]
	observer *staleUserdata
}

// staleUserdata logs userdata the host presents after its class or method
// was unregistered.
type staleUserdata struct{}

func (*staleUserdata) OnResourceEvent(e resource.Event) {
	if e.Type == resource.EventStale {
		Logger().Warn("stale userdata from host", zap.String("table", e.Table), zap.Stringer("handle", e.Handle))
	}
}

// New creates a registry for library.
func New(m *variant.Marshaler, library abi.Ptr) *Registry {
	r := &Registry{
		m:        m,
		table:    m.Table(),
		library:  library,
		byName:   make(map[string]*Class),
		classes:  resource.NewTable[*Class]("class"),
		methods:  resource.NewTable[*Method]("method"),
		observer: &staleUserdata{},
	}
	r.classes.Subscribe(r.observer)
	r.methods.Subscribe(r.observer)
	return r
}

// Marshaler returns the marshaler the registry encodes defaults with.
func (r *Registry) Marshaler() *variant.Marshaler { return r.m }

// Library returns the library pointer classes are registered under.
func (r *Registry) Library() abi.Ptr { return r.library }

// SetDispatcher installs the callbacks given to the host. It must be set
// before the first class is registered.
func (r *Registry) SetDispatcher(d Dispatcher) {
	r.mu.Lock()
	r.dispatcher = d
	r.mu.Unlock()
}

// SetObjectResolver installs the resolver methods use for object arguments.
// Methods bound afterwards pick it up.
func (r *Registry) SetObjectResolver(fn ObjectResolver) {
	r.mu.Lock()
	r.resolve = fn
	r.mu.Unlock()
}

// SetLevel sets the initialization level recorded on new classes.
func (r *Registry) SetLevel(level abi.InitializationLevel) {
	r.mu.Lock()
	r.level = level
	r.mu.Unlock()
}

// Level returns the current initialization level.
func (r *Registry) Level() abi.InitializationLevel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.level
}

// Register registers *T as class name, constructed with new(T). An empty
// name uses the type name.
func Register[T any](r *Registry, name, parent string) (*Class, error) {
	if name == "" {
		name = reflect.TypeFor[T]().Name()
	}
	return r.RegisterClass(Def{
		Name:   name,
		Parent: parent,
		New:    func() any { return new(T) },
	}, reflect.TypeFor[*T]())
}

// RegisterClass registers def with the host. t is the instance type New
// returns; when nil it is taken from one New call.
func (r *Registry) RegisterClass(def Def, t reflect.Type) (*Class, error) {
	if def.Name == "" || def.Parent == "" {
		return nil, errors.InvalidInput(errors.PhaseRegister, "class name and parent are required")
	}
	if def.New == nil && !def.Abstract && !def.Virtual {
		return nil, errors.New(errors.PhaseRegister, errors.KindInvalidInput).
			Class(def.Name).
			Detail("concrete class needs a constructor").
			Build()
	}
	if t == nil && def.New != nil {
		t = reflect.TypeOf(def.New())
	}

	r.regMu.Lock()
	defer r.regMu.Unlock()

	r.mu.RLock()
	d := r.dispatcher
	_, dup := r.byName[def.Name]
	base := r.byName[def.Parent]
	level := r.level
	r.mu.RUnlock()
	if d == nil {
		return nil, errors.NotInitialized("class dispatcher")
	}
	if dup || r.hostHasClass(def.Name) {
		return nil, errors.Duplicate(def.Name, "class", def.Name)
	}

	c := &Class{
		Name:     def.Name,
		Parent:   def.Parent,
		Base:     base,
		Level:    level,
		Type:     t,
		Caps:     capabilitiesOf(t),
		Abstract: def.Abstract,
		Virtual:  def.Virtual,
		Exposed:  !def.Hidden,
		newFn:    def.New,
		methods:  make(map[string]*Method),
	}
	switch {
	case base != nil:
		c.Native = base.Native
	case r.hostHasClass(def.Parent):
		c.Native = def.Parent
	default:
		return nil, errors.MissingParent(def.Name, def.Parent)
	}

	h, err := r.classes.Insert(c)
	if err != nil {
		return nil, errors.Registration(def.Name, "", err)
	}
	c.handle = h

	info := d.CreationInfo(c)
	info.ClassUserdata = c.Userdata()
	info.IsAbstract = def.Abstract
	info.IsVirtual = def.Virtual
	info.IsExposed = !def.Hidden

	s := &temps{m: r.m}
	defer s.free()
	name, parent := s.name(def.Name), s.name(def.Parent)
	if s.err != nil {
		r.classes.Remove(h)
		return nil, errors.Registration(def.Name, "", s.err)
	}
	r.table.ClassdbRegisterExtensionClass(r.library, name, parent, &info)
	if r.table.ClassdbGetClassTag(name).IsNull() {
		r.classes.Remove(h)
		return nil, errors.Registration(def.Name, "", stderrors.New("host rejected class"))
	}

	r.mu.Lock()
	r.byName[c.Name] = c
	r.order = append(r.order, c)
	r.mu.Unlock()

	Logger().Debug("registered class",
		zap.String("class", c.Name),
		zap.String("parent", c.Parent),
		zap.String("native", c.Native),
		zap.Stringer("level", level),
		zap.Uint16("caps", uint16(c.Caps)))
	return c, nil
}

func (r *Registry) hostHasClass(name string) bool {
	p, err := r.m.StringName(name)
	if err != nil {
		return false
	}
	defer r.m.FreeTyped(abi.VariantTypeStringName, p)
	return !r.table.ClassdbGetClassTag(p).IsNull()
}

func (r *Registry) lookup(class string) (*Class, error) {
	r.mu.RLock()
	c, ok := r.byName[class]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.NotFound(errors.PhaseRegister, "class", class)
	}
	return c, nil
}

// AddMethod binds fn as method name of class. Method expressions such as
// (*Foo).Bar bind instance methods; other functions are static.
func (r *Registry) AddMethod(class, name string, fn any, opts ...MethodOption) (*Method, error) {
	c, err := r.lookup(class)
	if err != nil {
		return nil, err
	}
	m, err := bind(c, name, fn)
	if err != nil {
		return nil, err
	}
	for _, opt := range opts {
		opt(m)
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	m.resolve = r.resolve
	r.mu.RUnlock()

	r.regMu.Lock()
	defer r.regMu.Unlock()

	c.mu.RLock()
	_, dup := c.methods[name]
	c.mu.RUnlock()
	if dup {
		return nil, errors.Duplicate(class, "method", name)
	}

	h, err := r.methods.Insert(m)
	if err != nil {
		return nil, errors.Registration(class, name, err)
	}
	m.handle = h

	// Virtual overrides are found through get_virtual, not the method table.
	if !m.Flags.Has(abi.MethodFlagVirtual) {
		if err := r.registerMethod(c, m); err != nil {
			r.methods.Remove(h)
			return nil, err
		}
	}

	c.mu.Lock()
	c.methods[name] = m
	c.order = append(c.order, m)
	c.mu.Unlock()

	Logger().Debug("registered method",
		zap.Stringer("method", m),
		zap.Int("args", len(m.Args)),
		zap.Int("defaults", len(m.Defaults)),
		zap.Bool("vararg", m.IsVararg()),
		zap.Bool("static", m.IsStatic()))
	return m, nil
}

func (m *Method) validate() error {
	if len(m.ArgNames) > len(m.Args) {
		return errors.New(errors.PhaseRegister, errors.KindInvalidInput).
			Class(m.Class.Name).
			Member(m.Name).
			Detail("%d argument names for %d arguments", len(m.ArgNames), len(m.Args)).
			Build()
	}
	for i := len(m.ArgNames); i < len(m.Args); i++ {
		m.ArgNames = append(m.ArgNames, fmt.Sprintf("arg%d", i))
	}
	if len(m.Defaults) > len(m.Args) {
		return errors.New(errors.PhaseRegister, errors.KindInvalidInput).
			Class(m.Class.Name).
			Member(m.Name).
			Detail("%d defaults for %d arguments", len(m.Defaults), len(m.Args)).
			Build()
	}
	for j, d := range m.Defaults {
		i := m.MinArgs() + j
		if _, err := variant.Coerce(d, m.params[i]); err != nil {
			return errors.Registration(m.Class.Name, m.Name, &ArgumentError{Index: i, Expected: m.Args[i], Err: err})
		}
	}
	return nil
}

func (r *Registry) registerMethod(c *Class, m *Method) error {
	r.mu.RLock()
	d := r.dispatcher
	r.mu.RUnlock()
	call, ptrcall := d.MethodCallbacks()
	if m.IsVararg() {
		ptrcall = nil
	}

	for _, v := range m.Defaults {
		slot, err := r.m.Encode(v)
		if err != nil {
			r.freeDefaults(m)
			return errors.Registration(c.Name, m.Name, err)
		}
		m.defaultSlots = append(m.defaultSlots, slot)
	}

	s := &temps{m: r.m}
	defer s.free()
	info := abi.ClassMethodInfo{
		Name:             s.name(m.Name),
		MethodUserdata:   m.Userdata(),
		Call:             call,
		Ptrcall:          ptrcall,
		Flags:            m.Flags,
		HasReturnValue:   m.HasReturn,
		DefaultArguments: m.defaultSlots,
	}
	if m.HasReturn {
		info.ReturnValueInfo = &abi.PropertyInfo{
			Type:  m.Return,
			Name:  s.name(""),
			Usage: abi.PropertyUsageDefault,
		}
		info.ReturnValueMetadata = m.ReturnMeta
	}
	for i, t := range m.Args {
		info.ArgumentsInfo = append(info.ArgumentsInfo, s.propertyInfo(Property{Name: m.ArgNames[i], Type: t}))
		info.ArgumentsMetadata = append(info.ArgumentsMetadata, m.ArgMeta[i])
	}
	className := s.name(c.Name)
	if s.err != nil {
		r.freeDefaults(m)
		return errors.Registration(c.Name, m.Name, s.err)
	}
	r.table.ClassdbRegisterExtensionClassMethod(r.library, className, &info)
	return nil
}

func (r *Registry) freeDefaults(m *Method) {
	for _, slot := range m.defaultSlots {
		r.m.Destroy(slot)
	}
	m.defaultSlots = nil
}

// AddProperty registers p on class. The getter must take no arguments and
// return a value, the setter must take one; either may be empty. A Nil
// type is taken from the getter.
func (r *Registry) AddProperty(class string, p Property) error {
	c, err := r.lookup(class)
	if err != nil {
		return err
	}
	if p.Name == "" {
		return errors.InvalidInput(errors.PhaseRegister, class+": property name is required")
	}
	if p.Getter != "" {
		g, ok := c.Method(p.Getter)
		if !ok {
			return errors.Registration(class, p.Name, errors.NotFound(errors.PhaseRegister, "getter", p.Getter))
		}
		if len(g.Args) != 0 || !g.HasReturn {
			return errors.Registration(class, p.Name, errors.InvalidInput(errors.PhaseRegister, "getter "+p.Getter+" must take no arguments and return a value"))
		}
		if p.Type == abi.VariantTypeNil {
			p.Type = g.Return
		}
	}
	if p.Setter != "" {
		st, ok := c.Method(p.Setter)
		if !ok {
			return errors.Registration(class, p.Name, errors.NotFound(errors.PhaseRegister, "setter", p.Setter))
		}
		if len(st.Args) != 1 {
			return errors.Registration(class, p.Name, errors.InvalidInput(errors.PhaseRegister, "setter "+p.Setter+" must take one argument"))
		}
		if p.Type == abi.VariantTypeNil {
			p.Type = st.Args[0]
		}
	}
	if p.Usage == abi.PropertyUsageNone {
		p.Usage = abi.PropertyUsageDefault
	}

	r.regMu.Lock()
	defer r.regMu.Unlock()
	for k := c; k != nil; k = k.Base {
		k.mu.RLock()
		dup := k.hasProperty(p.Name)
		k.mu.RUnlock()
		if dup {
			return errors.Duplicate(class, "property", p.Name)
		}
	}

	s := &temps{m: r.m}
	defer s.free()
	info := s.propertyInfo(p)
	className, setter, getter := s.name(class), s.optName(p.Setter), s.optName(p.Getter)
	if s.err != nil {
		return errors.Registration(class, p.Name, s.err)
	}
	r.table.ClassdbRegisterExtensionClassProperty(r.library, className, &info, setter, getter)

	c.mu.Lock()
	c.properties = append(c.properties, p)
	c.mu.Unlock()
	return nil
}

// AddPropertyGroup starts an editor group; properties whose names begin
// with prefix are listed under it.
func (r *Registry) AddPropertyGroup(class, name, prefix string) error {
	return r.addGroup(class, name, prefix, abi.PropertyUsageGroup)
}

// AddPropertySubgroup starts a subgroup within the current group.
func (r *Registry) AddPropertySubgroup(class, name, prefix string) error {
	return r.addGroup(class, name, prefix, abi.PropertyUsageSubgroup)
}

func (r *Registry) addGroup(class, name, prefix string, usage abi.PropertyUsage) error {
	c, err := r.lookup(class)
	if err != nil {
		return err
	}
	if name == "" {
		return errors.InvalidInput(errors.PhaseRegister, class+": group name is required")
	}

	r.regMu.Lock()
	defer r.regMu.Unlock()

	s := &temps{m: r.m}
	defer s.free()
	className, group, pfx := s.name(class), s.str(name), s.str(prefix)
	if s.err != nil {
		return errors.Registration(class, name, s.err)
	}
	if usage == abi.PropertyUsageGroup {
		r.table.ClassdbRegisterExtensionClassPropertyGroup(r.library, className, group, pfx)
	} else {
		r.table.ClassdbRegisterExtensionClassPropertySubgroup(r.library, className, group, pfx)
	}

	c.mu.Lock()
	c.properties = append(c.properties, Property{Name: name, HintString: prefix, Usage: usage})
	c.mu.Unlock()
	return nil
}

// AddSignal registers signal name with the given arguments.
func (r *Registry) AddSignal(class, name string, args ...Property) error {
	c, err := r.lookup(class)
	if err != nil {
		return err
	}
	if name == "" {
		return errors.InvalidInput(errors.PhaseRegister, class+": signal name is required")
	}

	r.regMu.Lock()
	defer r.regMu.Unlock()
	c.mu.RLock()
	for _, sg := range c.signals {
		if sg.Name == name {
			c.mu.RUnlock()
			return errors.Duplicate(class, "signal", name)
		}
	}
	c.mu.RUnlock()

	s := &temps{m: r.m}
	defer s.free()
	infos := make([]abi.PropertyInfo, len(args))
	for i, a := range args {
		infos[i] = s.propertyInfo(a)
	}
	className, signal := s.name(class), s.name(name)
	if s.err != nil {
		return errors.Registration(class, name, s.err)
	}
	r.table.ClassdbRegisterExtensionClassSignal(r.library, className, signal, infos)

	c.mu.Lock()
	c.signals = append(c.signals, Signal{Name: name, Args: append([]Property(nil), args...)})
	c.mu.Unlock()
	return nil
}

// AddConstant registers an integer constant. A non-empty Enum groups it
// into an enum, or a bitfield when Bitfield is set.
func (r *Registry) AddConstant(class string, k Constant) error {
	c, err := r.lookup(class)
	if err != nil {
		return err
	}
	if k.Name == "" {
		return errors.InvalidInput(errors.PhaseRegister, class+": constant name is required")
	}

	r.regMu.Lock()
	defer r.regMu.Unlock()
	c.mu.RLock()
	for _, existing := range c.constants {
		if existing.Name == k.Name {
			c.mu.RUnlock()
			return errors.Duplicate(class, "constant", k.Name)
		}
	}
	c.mu.RUnlock()

	s := &temps{m: r.m}
	defer s.free()
	className, enum, name := s.name(class), s.optName(k.Enum), s.name(k.Name)
	if s.err != nil {
		return errors.Registration(class, k.Name, s.err)
	}
	r.table.ClassdbRegisterExtensionClassIntegerConstant(r.library, className, enum, name, k.Value, k.Bitfield)

	c.mu.Lock()
	c.constants = append(c.constants, k)
	c.mu.Unlock()
	return nil
}

// UnregisterClass removes class from the host. Subclasses must be
// unregistered first.
func (r *Registry) UnregisterClass(class string) error {
	r.regMu.Lock()
	defer r.regMu.Unlock()
	return r.unregister(class)
}

func (r *Registry) unregister(class string) error {
	c, err := r.lookup(class)
	if err != nil {
		return err
	}

	r.mu.RLock()
	var children []string
	for _, k := range r.order {
		if k.Base == c {
			children = append(children, k.Name)
		}
	}
	r.mu.RUnlock()
	if len(children) > 0 {
		sort.Strings(children)
		return errors.HasSubclasses(class, children)
	}

	s := &temps{m: r.m}
	name := s.name(class)
	if s.err != nil {
		s.free()
		return errors.Registration(class, "", s.err)
	}
	r.table.ClassdbUnregisterExtensionClass(r.library, name)
	s.free()
	if r.hostHasClass(class) {
		return errors.Registration(class, "", stderrors.New("host refused to unregister class"))
	}

	c.mu.Lock()
	for _, m := range c.order {
		r.freeDefaults(m)
		r.methods.Remove(m.handle)
	}
	c.methods = make(map[string]*Method)
	c.order = nil
	c.mu.Unlock()
	r.classes.Remove(c.handle)

	r.mu.Lock()
	delete(r.byName, class)
	for i, k := range r.order {
		if k == c {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	Logger().Debug("unregistered class", zap.String("class", class))
	return nil
}

// UnregisterLevel removes every class registered at level, most recent
// first. It keeps going past failures and returns them joined.
func (r *Registry) UnregisterLevel(level abi.InitializationLevel) error {
	return r.unregisterWhere(func(c *Class) bool { return c.Level == level })
}

// UnregisterAll removes every class, most recent first.
func (r *Registry) UnregisterAll() error {
	return r.unregisterWhere(func(*Class) bool { return true })
}

// Close unregisters every class and stops accepting new ones. Userdata the
// host still holds resolves to errors afterwards.
func (r *Registry) Close() error {
	err := r.UnregisterAll()
	_ = r.methods.Close()
	_ = r.classes.Close()
	r.methods.Unsubscribe(r.observer)
	r.classes.Unsubscribe(r.observer)
	return err
}

func (r *Registry) unregisterWhere(match func(*Class) bool) error {
	r.regMu.Lock()
	defer r.regMu.Unlock()

	r.mu.RLock()
	var victims []string
	for i := len(r.order) - 1; i >= 0; i-- {
		if match(r.order[i]) {
			victims = append(victims, r.order[i].Name)
		}
	}
	r.mu.RUnlock()

	var errs []error
	for _, name := range victims {
		if err := r.unregister(name); err != nil {
			Logger().Warn("unregister failed", zap.String("class", name), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

// Class returns the registered class called name.
func (r *Registry) Class(name string) (*Class, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byName[name]
	return c, ok
}

// ClassByUserdata resolves the class userdata the host passes to hooks.
func (r *Registry) ClassByUserdata(p abi.Ptr) (*Class, error) {
	c, err := r.classes.Lookup(resource.Handle(p))
	if err != nil {
		return nil, errors.Wrap(errors.PhaseCall, errors.KindNotFound, err, "class userdata "+p.String())
	}
	return c, nil
}

// Method resolves the method userdata the host passes to call hooks.
func (r *Registry) Method(p abi.Ptr) (*Method, error) {
	m, err := r.methods.Lookup(resource.Handle(p))
	if err != nil {
		return nil, errors.Wrap(errors.PhaseCall, errors.KindNotFound, err, "method userdata "+p.String())
	}
	return m, nil
}

// Classes returns the registered classes in registration order.
func (r *Registry) Classes() []*Class {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Class(nil), r.order...)
}

// DefaultSlot returns the host Variant holding default i of m.
func (m *Method) DefaultSlot(i int) (abi.Ptr, bool) {
	j := i - m.MinArgs()
	if j < 0 || j >= len(m.defaultSlots) {
		return abi.Null, false
	}
	return m.defaultSlots[j], true
}
