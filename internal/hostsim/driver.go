package hostsim

import (
	"fmt"
	"sort"

	"github.com/wippyai/gdext-bridge/abi"
)

// Property is a registered property, argument or return description.
type Property struct {
	Name       string
	ClassName  string
	HintString string
	Type       abi.VariantType
	Hint       abi.PropertyHint
	Usage      abi.PropertyUsage
}

// Signal is a registered signal.
type Signal struct {
	Name string
	Args []Property
}

// Constant is a registered integer constant.
type Constant struct {
	Name     string
	Enum     string
	Value    int64
	Bitfield bool
}

// MethodInfo describes a bound method as the class database sees it.
type MethodInfo struct {
	Name      string
	Args      []abi.VariantType
	ArgNames  []string
	Return    abi.VariantType
	HasReturn bool
	Flags     abi.MethodFlags
	Defaults  int
}

// ClassInfo is a snapshot of one class database entry.
type ClassInfo struct {
	Name       string
	Parent     string
	Native     bool
	Abstract   bool
	Virtual    bool
	Exposed    bool
	Methods    []MethodInfo
	Properties []Property
	Signals    []Signal
	Constants  []Constant
}

func (h *Host) classInfo(c *class) ClassInfo {
	info := ClassInfo{
		Name:     c.name,
		Native:   c.native,
		Abstract: c.info.IsAbstract,
		Virtual:  c.info.IsVirtual,
		Exposed:  c.native || c.info.IsExposed,
	}
	if c.parent != nil {
		info.Parent = c.parent.name
	}
	for _, m := range c.methods {
		info.Methods = append(info.Methods, MethodInfo{
			Name:      m.name,
			Args:      append([]abi.VariantType(nil), m.args...),
			ArgNames:  append([]string(nil), m.argName...),
			Return:    m.ret,
			HasReturn: m.hasRet,
			Flags:     m.flags,
			Defaults:  len(m.defs),
		})
	}
	sort.Slice(info.Methods, func(i, j int) bool { return info.Methods[i].Name < info.Methods[j].Name })
	for _, p := range c.properties {
		info.Properties = append(info.Properties, p.Property)
	}
	info.Signals = append(info.Signals, c.signals...)
	info.Constants = append(info.Constants, c.constants...)
	return info
}

// Classes returns every registered class sorted by name.
func (h *Host) Classes() []ClassInfo {
	h.mu.Lock()
	classes := make([]*class, 0, len(h.classes))
	for _, c := range h.classes {
		classes = append(classes, c)
	}
	h.mu.Unlock()
	sort.Slice(classes, func(i, j int) bool { return classes[i].name < classes[j].name })

	out := make([]ClassInfo, len(classes))
	for i, c := range classes {
		out[i] = h.classInfo(c)
	}
	return out
}

// Class returns the class database entry for name.
func (h *Host) Class(name string) (ClassInfo, bool) {
	c := h.class(name)
	if c == nil {
		return ClassInfo{}, false
	}
	return h.classInfo(c), true
}

// Load calls entry and runs the initialization levels it asks for.
func (h *Host) Load(entry abi.EntryFunc) error {
	if h.initInfo != nil {
		return fmt.Errorf("extension already loaded")
	}
	info := &abi.Initialization{}
	if !entry(h.table, h.library, info) {
		return fmt.Errorf("extension entry point reported failure")
	}
	if info.Initialize == nil || info.Deinitialize == nil {
		return fmt.Errorf("extension entry point set no initialization callbacks")
	}
	h.initInfo = info

	top := abi.InitializationScene
	if h.opts.Editor {
		top = abi.InitializationEditor
	}
	for level := info.MinimumLevel; level <= top; level++ {
		h.Initialize(level)
	}
	return nil
}

// Initialize runs one initialization level.
func (h *Host) Initialize(level abi.InitializationLevel) {
	if h.initInfo == nil {
		h.fail("initialize %s: no extension loaded", level)
		return
	}
	h.levels = append(h.levels, level)
	h.initInfo.Initialize(h.initInfo.Userdata, level)
}

// Unload deinitializes every level that was initialized, in reverse order.
func (h *Host) Unload() {
	if h.initInfo == nil {
		return
	}
	for len(h.levels) > 0 {
		level := h.levels[len(h.levels)-1]
		h.levels = h.levels[:len(h.levels)-1]
		h.initInfo.Deinitialize(h.initInfo.Userdata, level)
	}
	h.initInfo = nil
}

// Instantiate constructs an instance of className the way the engine does
// for scripts and scenes.
func (h *Host) Instantiate(className string) (abi.Ptr, error) {
	p := h.construct(className)
	if p.IsNull() {
		return abi.Null, fmt.Errorf("cannot instantiate %q", className)
	}
	return p, nil
}

// Singleton returns the named engine singleton.
func (h *Host) Singleton(name string) abi.Ptr {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.singletons[name]
}

// Free destroys obj regardless of its reference count.
func (h *Host) Free(obj abi.Ptr) {
	h.table.ObjectDestroy(obj)
}

// Alive reports whether obj is a live object.
func (h *Host) Alive(obj abi.Ptr) bool {
	return h.object(obj) != nil
}

// Objects returns the number of live objects, singletons included.
func (h *Host) Objects() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.objects)
}

// Reference takes a reference on a RefCounted object.
func (h *Host) Reference(obj abi.Ptr) {
	h.objRetain(obj)
}

// Unreference drops a reference and reports whether the object died.
func (h *Host) Unreference(obj abi.Ptr) bool {
	o := h.object(obj)
	if o == nil || !o.refcounted {
		return false
	}
	return h.unreference(o)
}

// RefCount returns the reference count of obj, or 0 for non-RefCounted
// objects.
func (h *Host) RefCount(obj abi.Ptr) int {
	o := h.object(obj)
	if o == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return int(o.refs)
}

// Bindings returns the number of instance bindings attached to obj.
func (h *Host) Bindings(obj abi.Ptr) int {
	o := h.object(obj)
	if o == nil {
		return 0
	}
	return len(h.bindingsOf(o))
}

func (h *Host) mustObject(obj abi.Ptr, op string) (*object, error) {
	o := h.object(obj)
	if o == nil {
		return nil, fmt.Errorf("%s: unknown object %s", op, obj)
	}
	return o, nil
}

func (h *Host) mustMethod(o *object, name string) (*method, error) {
	m := o.effectiveClass().findMethod(name)
	if m == nil {
		return nil, fmt.Errorf("method %q not found in class %q", name, o.className())
	}
	return m, nil
}

// Call invokes a method through the variant-call path. args are Variant
// slots; the returned slot is owned by the caller and released with
// FreeVariant.
func (h *Host) Call(obj abi.Ptr, name string, args ...abi.Ptr) (abi.Ptr, abi.CallError, error) {
	return h.call(obj, name, args, false)
}

// CallConst is Call on a read-only receiver. Methods not flagged const fail
// with CallErrorMethodNotConst and are not run.
func (h *Host) CallConst(obj abi.Ptr, name string, args ...abi.Ptr) (abi.Ptr, abi.CallError, error) {
	return h.call(obj, name, args, true)
}

func (h *Host) call(obj abi.Ptr, name string, args []abi.Ptr, readOnly bool) (abi.Ptr, abi.CallError, error) {
	o, err := h.mustObject(obj, "call")
	if err != nil {
		return abi.Null, abi.CallError{}, err
	}
	m, err := h.mustMethod(o, name)
	if err != nil {
		return abi.Null, abi.CallError{}, err
	}
	ret := h.alloc(abi.VariantSize)
	var ce abi.CallError
	if readOnly && !m.flags.Has(abi.MethodFlagConst) && !m.flags.Has(abi.MethodFlagStatic) {
		h.store(ret, nilVal)
		h.putCallError(&ce, abi.CallErrorMethodNotConst, 0, 0)
		return ret, ce, nil
	}
	h.table.ObjectMethodBindCall(m.bind, obj, args, ret, &ce)
	return ret, ce, nil
}

// Ptrcall invokes a method with typed arguments. ret must be initialized
// typed storage of the method's return kind, or null.
func (h *Host) Ptrcall(obj abi.Ptr, name string, args []abi.Ptr, ret abi.Ptr) error {
	o, err := h.mustObject(obj, "ptrcall")
	if err != nil {
		return err
	}
	m, err := h.mustMethod(o, name)
	if err != nil {
		return err
	}
	h.table.ObjectMethodBindPtrcall(m.bind, obj, args, ret)
	return nil
}

// MethodBind returns the bind of class.method, or null.
func (h *Host) MethodBind(className, name string) abi.Ptr {
	c := h.class(className)
	if c == nil {
		return abi.Null
	}
	if m := c.findMethod(name); m != nil {
		return m.bind
	}
	return abi.Null
}

// MethodHash returns the hash ClassdbGetMethodBind expects for
// class.method.
func (h *Host) MethodHash(className, name string) (int64, bool) {
	c := h.class(className)
	if c == nil {
		return 0, false
	}
	if m := c.findMethod(name); m != nil {
		return m.hash, true
	}
	return 0, false
}

// Get reads a property through registered accessors or the extension get
// hook. The returned slot is owned by the caller.
func (h *Host) Get(obj abi.Ptr, name string) (abi.Ptr, bool) {
	v, ok := h.objectGet(h.object(obj), name)
	ret := h.alloc(abi.VariantSize)
	h.store(ret, v)
	return ret, ok
}

// Set writes a property; value is a Variant slot that stays owned by the
// caller.
func (h *Host) Set(obj abi.Ptr, name string, value abi.Ptr) bool {
	return h.objectSet(h.object(obj), name, h.load(value))
}

// PropertyList asks the extension for its dynamic property list.
func (h *Host) PropertyList(obj abi.Ptr) []Property {
	o := h.object(obj)
	if o == nil || o.ext == nil || o.ext.info.GetPropertyList == nil {
		return nil
	}
	list := o.ext.info.GetPropertyList(o.instance)
	out := make([]Property, len(list))
	for i := range list {
		out[i] = h.propertyInfo(&list[i])
	}
	if o.ext.info.FreePropertyList != nil {
		o.ext.info.FreePropertyList(o.instance, list)
	}
	return out
}

// CanRevert reports whether the extension offers a revert value for name.
func (h *Host) CanRevert(obj abi.Ptr, name string) bool {
	o := h.object(obj)
	if o == nil || o.ext == nil || o.ext.info.PropertyCanRevert == nil {
		return false
	}
	key := h.StringName(name)
	defer h.FreeString(key)
	return o.ext.info.PropertyCanRevert(o.instance, key)
}

// GetRevert returns the revert value for name as a caller-owned slot.
func (h *Host) GetRevert(obj abi.Ptr, name string) (abi.Ptr, bool) {
	ret := h.alloc(abi.VariantSize)
	h.store(ret, nilVal)
	o := h.object(obj)
	if o == nil || o.ext == nil || o.ext.info.PropertyGetRevert == nil {
		return ret, false
	}
	key := h.StringName(name)
	defer h.FreeString(key)
	return ret, o.ext.info.PropertyGetRevert(o.instance, key, ret)
}

// Notify delivers a notification to the extension instance of obj.
func (h *Host) Notify(obj abi.Ptr, what int32, reversed bool) {
	o := h.object(obj)
	if o == nil || o.ext == nil || o.ext.info.Notification == nil {
		return
	}
	o.ext.info.Notification(o.instance, what, reversed)
}

// ToString renders obj the way print() does: through the extension hook
// when it reports a valid result, otherwise as <Class#id>.
func (h *Host) ToString(obj abi.Ptr) string {
	o := h.object(obj)
	if o == nil {
		return "<Freed Object>"
	}
	if o.ext != nil && o.ext.info.ToString != nil {
		out := h.alloc(abi.TypeSize(abi.VariantTypeString))
		h.putString(out, "")
		valid := false
		o.ext.info.ToString(o.instance, &valid, out)
		s := h.typedString(out)
		h.freeTyped(abi.VariantTypeString, out)
		if valid {
			return s
		}
	}
	return fmt.Sprintf("<%s#%d>", o.className(), o.id)
}

// CallVirtual looks up a virtual override through the extension and calls
// it with typed arguments. It reports whether an override exists.
func (h *Host) CallVirtual(obj abi.Ptr, name string, args []abi.Ptr, ret abi.Ptr) bool {
	o := h.object(obj)
	if o == nil || o.ext == nil || o.ext.info.GetVirtual == nil {
		return false
	}
	key := h.StringName(name)
	fn := o.ext.info.GetVirtual(o.ext.info.ClassUserdata, key)
	h.FreeString(key)
	if fn == nil {
		return false
	}
	fn(o.instance, args, ret)
	return true
}

// Variant and typed storage helpers for drivers and tests. Every slot
// returned is caller-owned and released with FreeVariant or FreeTyped.

func (h *Host) newVariant(v val) abi.Ptr {
	p := h.alloc(abi.VariantSize)
	h.store(p, v)
	return p
}

// VariantNil returns a nil Variant slot.
func (h *Host) VariantNil() abi.Ptr { return h.newVariant(nilVal) }

// VariantInt returns an int Variant slot.
func (h *Host) VariantInt(i int64) abi.Ptr { return h.newVariant(vInt(i)) }

// VariantFloat returns a float Variant slot.
func (h *Host) VariantFloat(f float64) abi.Ptr { return h.newVariant(vFloat(f)) }

// VariantBool returns a bool Variant slot.
func (h *Host) VariantBool(b bool) abi.Ptr { return h.newVariant(vBool(b)) }

// VariantString returns a String Variant slot.
func (h *Host) VariantString(s string) abi.Ptr {
	return h.newVariant(h.vStr(abi.VariantTypeString, s))
}

// VariantObject returns an Object Variant slot holding a reference to obj.
func (h *Host) VariantObject(obj abi.Ptr) abi.Ptr { return h.newVariant(h.vObject(obj)) }

// FreeVariant destroys and frees a Variant slot.
func (h *Host) FreeVariant(p abi.Ptr) {
	h.destroySlot(p)
	h.free(p)
}

// Type returns the kind of the Variant at p.
func (h *Host) Type(p abi.Ptr) abi.VariantType { return h.load(p).t }

// Int reads an int or float Variant.
func (h *Host) Int(p abi.Ptr) (int64, bool) { return h.load(p).asInt() }

// Float reads a numeric Variant.
func (h *Host) Float(p abi.Ptr) (float64, bool) { return h.load(p).asFloat() }

// Bool reads a Variant as a condition.
func (h *Host) Bool(p abi.Ptr) bool { return h.booleanize(h.load(p)) }

// Str reads a String, StringName or NodePath Variant.
func (h *Host) Str(p abi.Ptr) (string, bool) { return h.asString(h.load(p)) }

// Object reads an Object Variant.
func (h *Host) Object(p abi.Ptr) abi.Ptr { return h.load(p).objectPtr() }

// Stringify renders the Variant at p.
func (h *Host) Stringify(p abi.Ptr) string { return h.stringify(h.load(p)) }

// NewTyped allocates typed storage of t holding its default value.
func (h *Host) NewTyped(t abi.VariantType) abi.Ptr { return h.newTyped(t) }

// FreeTyped destroys and frees typed storage of t.
func (h *Host) FreeTyped(t abi.VariantType, p abi.Ptr) { h.freeTyped(t, p) }

// TypedInt allocates int typed storage.
func (h *Host) TypedInt(i int64) abi.Ptr {
	p := h.alloc(abi.TypeSize(abi.VariantTypeInt))
	h.putInt(p, i)
	return p
}

// ReadInt reads int typed storage.
func (h *Host) ReadInt(p abi.Ptr) int64 { return h.getInt(p) }
