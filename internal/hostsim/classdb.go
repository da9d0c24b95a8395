package hostsim

import (
	"sort"

	"github.com/wippyai/gdext-bridge/abi"
)

type class struct {
	name       string
	parent     *class
	tag        abi.Ptr
	native     bool
	refcounted bool
	library    abi.Ptr
	info       abi.ClassCreationInfo
	methods    map[string]*method
	properties []*property
	signals    []Signal
	constants  []Constant
	virtuals   []string
}

type property struct {
	Property
	setter string
	getter string
}

// method is a bound method: native methods run a Go function against typed
// storage, extension methods forward to the registered callbacks.
type method struct {
	bind    abi.Ptr
	class   *class
	name    string
	flags   abi.MethodFlags
	args    []abi.VariantType
	argName []string
	ret     abi.VariantType
	hasRet  bool
	vararg  bool
	hash    int64
	native  func(o *object, args []abi.Ptr, ret abi.Ptr)
	ext     abi.ClassMethodInfo
	defs    []abi.Ptr
}

func (c *class) isRefCounted() bool {
	for k := c; k != nil; k = k.parent {
		if k.refcounted {
			return true
		}
	}
	return false
}

func (c *class) inherits(base *class) bool {
	for k := c; k != nil; k = k.parent {
		if k == base {
			return true
		}
	}
	return false
}

// nativeBase returns the nearest native ancestor.
func (c *class) nativeBase() *class {
	k := c
	for k != nil && !k.native {
		k = k.parent
	}
	return k
}

func (c *class) findMethod(name string) *method {
	for k := c; k != nil; k = k.parent {
		if m, ok := k.methods[name]; ok {
			return m
		}
	}
	return nil
}

func (c *class) findProperty(name string) *property {
	for k := c; k != nil; k = k.parent {
		for _, p := range k.properties {
			if p.Name == name && p.Usage&(abi.PropertyUsageGroup|abi.PropertyUsageSubgroup|abi.PropertyUsageCategory) == 0 {
				return p
			}
		}
	}
	return nil
}

func (h *Host) class(name string) *class {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.classes[name]
}

func (h *Host) addClass(c *class) {
	c.tag = h.alloc(abi.PointerSize)
	if c.methods == nil {
		c.methods = make(map[string]*method)
	}
	h.mu.Lock()
	h.classes[c.name] = c
	h.classTags[c.tag] = c
	h.mu.Unlock()
}

func (h *Host) addMethod(c *class, m *method) {
	m.bind = h.alloc(abi.PointerSize)
	m.class = c
	ret := abi.VariantTypeNil
	if m.hasRet {
		ret = m.ret
	}
	m.hash = abi.MethodHash(ret, m.args...)
	h.mu.Lock()
	c.methods[m.name] = m
	h.binds[m.bind] = m
	h.mu.Unlock()
}

func (h *Host) propertyInfo(p *abi.PropertyInfo) Property {
	out := Property{
		Type:  p.Type,
		Hint:  p.Hint,
		Usage: p.Usage,
	}
	if !p.Name.IsNull() {
		out.Name = h.typedString(p.Name)
	}
	if !p.ClassName.IsNull() {
		out.ClassName = h.typedString(p.ClassName)
	}
	if !p.HintString.IsNull() {
		out.HintString = h.typedString(p.HintString)
	}
	return out
}

func (h *Host) extClass(library, className abi.Ptr, op string) *class {
	name := h.typedString(className)
	c := h.class(name)
	if c == nil {
		h.fail("%s: class %q is not registered", op, name)
		return nil
	}
	if c.native || c.library != library {
		h.fail("%s: class %q does not belong to this library", op, name)
		return nil
	}
	return c
}

func (h *Host) installClassDB(t *abi.InterfaceTable) {
	t.ClassdbConstructObject = func(className abi.Ptr) abi.Ptr {
		return h.construct(h.typedString(className))
	}

	t.ClassdbGetClassTag = func(className abi.Ptr) abi.Ptr {
		if c := h.class(h.typedString(className)); c != nil {
			return c.tag
		}
		return abi.Null
	}

	t.ClassdbGetMethodBind = func(className, name abi.Ptr, hash int64) abi.Ptr {
		cn, mn := h.typedString(className), h.typedString(name)
		c := h.class(cn)
		if c == nil {
			h.fail("get_method_bind: unknown class %q", cn)
			return abi.Null
		}
		m := c.findMethod(mn)
		if m == nil {
			h.fail("get_method_bind: method %q not found in class %q", mn, cn)
			return abi.Null
		}
		if hash != m.hash {
			h.fail("get_method_bind: hash %d does not match %s.%s", hash, cn, mn)
			return abi.Null
		}
		return m.bind
	}

	t.ClassdbRegisterExtensionClass = func(library, className, parentName abi.Ptr, info *abi.ClassCreationInfo) {
		name, parent := h.typedString(className), h.typedString(parentName)
		if h.class(name) != nil {
			h.fail("class %q is already registered", name)
			return
		}
		p := h.class(parent)
		if p == nil {
			h.fail("parent class %q of %q is not registered", parent, name)
			return
		}
		if info == nil || info.CreateInstance == nil || info.FreeInstance == nil {
			h.fail("class %q registered without create/free callbacks", name)
			return
		}
		h.addClass(&class{
			name:    name,
			parent:  p,
			library: library,
			info:    *info,
		})
	}

	t.ClassdbRegisterExtensionClassMethod = func(library, className abi.Ptr, info *abi.ClassMethodInfo) {
		c := h.extClass(library, className, "register_method")
		if c == nil || info == nil {
			return
		}
		name := h.typedString(info.Name)
		if _, dup := c.methods[name]; dup {
			h.fail("method %q already registered in class %q", name, c.name)
			return
		}
		m := &method{
			name:   name,
			flags:  info.Flags,
			hasRet: info.HasReturnValue,
			vararg: info.Flags.Has(abi.MethodFlagVararg),
			ext:    *info,
		}
		if info.ReturnValueInfo != nil {
			m.ret = info.ReturnValueInfo.Type
		}
		for i := range info.ArgumentsInfo {
			a := h.propertyInfo(&info.ArgumentsInfo[i])
			m.args = append(m.args, a.Type)
			m.argName = append(m.argName, a.Name)
		}
		for _, d := range info.DefaultArguments {
			slot := h.alloc(abi.VariantSize)
			h.store(slot, h.dup(h.load(d)))
			m.defs = append(m.defs, slot)
		}
		h.addMethod(c, m)
	}

	t.ClassdbRegisterExtensionClassIntegerConstant = func(library, className, enumName, constantName abi.Ptr, value int64, isBitfield bool) {
		c := h.extClass(library, className, "register_constant")
		if c == nil {
			return
		}
		k := Constant{Name: h.typedString(constantName), Value: value, Bitfield: isBitfield}
		if !enumName.IsNull() {
			k.Enum = h.typedString(enumName)
		}
		for _, existing := range c.constants {
			if existing.Name == k.Name {
				h.fail("constant %q already registered in class %q", k.Name, c.name)
				return
			}
		}
		c.constants = append(c.constants, k)
	}

	t.ClassdbRegisterExtensionClassProperty = func(library, className abi.Ptr, info *abi.PropertyInfo, setter, getter abi.Ptr) {
		c := h.extClass(library, className, "register_property")
		if c == nil || info == nil {
			return
		}
		p := &property{Property: h.propertyInfo(info)}
		if !setter.IsNull() {
			p.setter = h.typedString(setter)
		}
		if !getter.IsNull() {
			p.getter = h.typedString(getter)
		}
		if p.getter != "" && c.findMethod(p.getter) == nil {
			h.fail("property %q getter %q not found in class %q", p.Name, p.getter, c.name)
			return
		}
		if p.setter != "" && c.findMethod(p.setter) == nil {
			h.fail("property %q setter %q not found in class %q", p.Name, p.setter, c.name)
			return
		}
		c.properties = append(c.properties, p)
	}

	group := func(usage abi.PropertyUsage) func(library, className, name, prefix abi.Ptr) {
		return func(library, className, name, prefix abi.Ptr) {
			c := h.extClass(library, className, "register_group")
			if c == nil {
				return
			}
			p := &property{Property: Property{
				Name:       h.typedString(name),
				HintString: h.typedString(prefix),
				Usage:      usage,
			}}
			c.properties = append(c.properties, p)
		}
	}
	t.ClassdbRegisterExtensionClassPropertyGroup = group(abi.PropertyUsageGroup)
	t.ClassdbRegisterExtensionClassPropertySubgroup = group(abi.PropertyUsageSubgroup)

	t.ClassdbRegisterExtensionClassSignal = func(library, className, signal abi.Ptr, args []abi.PropertyInfo) {
		c := h.extClass(library, className, "register_signal")
		if c == nil {
			return
		}
		s := Signal{Name: h.typedString(signal)}
		for _, existing := range c.signals {
			if existing.Name == s.Name {
				h.fail("signal %q already registered in class %q", s.Name, c.name)
				return
			}
		}
		for i := range args {
			s.Args = append(s.Args, h.propertyInfo(&args[i]))
		}
		c.signals = append(c.signals, s)
	}

	t.ClassdbUnregisterExtensionClass = func(library, className abi.Ptr) {
		c := h.extClass(library, className, "unregister_class")
		if c == nil {
			return
		}
		h.mu.Lock()
		var children []string
		for _, k := range h.classes {
			if k.parent == c {
				children = append(children, k.name)
			}
		}
		if len(children) > 0 {
			h.mu.Unlock()
			sort.Strings(children)
			h.fail("cannot unregister class %q: subclasses %v still registered", c.name, children)
			return
		}
		delete(h.classes, c.name)
		delete(h.classTags, c.tag)
		for _, m := range c.methods {
			delete(h.binds, m.bind)
		}
		h.mu.Unlock()

		for _, m := range c.methods {
			for _, d := range m.defs {
				h.destroySlot(d)
				h.free(d)
			}
			h.free(m.bind)
		}
		h.free(c.tag)
	}

	t.GetLibraryPath = func(library, ret abi.Ptr) {
		if library != h.library {
			h.fail("get_library_path: unknown library %s", library)
		}
		h.putString(ret, h.opts.LibraryPath)
	}
}

// methodBind resolves a bind pointer.
func (h *Host) methodBind(p abi.Ptr) *method {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.binds[p]
}

func (h *Host) installMethodCalls(t *abi.InterfaceTable) {
	t.ObjectMethodBindCall = func(bind, p abi.Ptr, args []abi.Ptr, ret abi.Ptr, err *abi.CallError) {
		h.store(ret, nilVal)
		h.putCallError(err, abi.CallOK, 0, 0)

		m := h.methodBind(bind)
		if m == nil {
			h.putCallError(err, abi.CallErrorInvalidMethod, 0, 0)
			return
		}
		o := h.object(p)
		if o == nil && !m.flags.Has(abi.MethodFlagStatic) {
			h.putCallError(err, abi.CallErrorInstanceIsNull, 0, 0)
			return
		}

		if m.native == nil {
			var instance abi.Ptr
			if o != nil {
				instance = o.instance
			}
			h.extensionCall(m, instance, args, ret, err)
			return
		}

		if len(args) < len(m.args) {
			h.putCallError(err, abi.CallErrorTooFewArguments, 0, int32(len(m.args)))
			return
		}
		if len(args) > len(m.args) {
			h.putCallError(err, abi.CallErrorTooManyArguments, 0, int32(len(m.args)))
			return
		}

		typed := make([]abi.Ptr, len(args))
		defer func() {
			for i, p := range typed {
				if !p.IsNull() {
					h.freeTyped(m.args[i], p)
				}
			}
		}()
		for i, a := range args {
			v, ok := h.convert(h.load(a), m.args[i])
			if !ok {
				h.putCallError(err, abi.CallErrorInvalidArgument, int32(i), int32(m.args[i]))
				return
			}
			typed[i] = h.alloc(typedSize(m.args[i]))
			h.writeTyped(m.args[i], typed[i], v)
		}

		var r abi.Ptr
		if m.hasRet {
			r = h.newTyped(m.ret)
		}
		m.native(o, typed, r)
		if m.hasRet {
			h.destroySlot(ret)
			h.store(ret, h.dup(h.readTyped(m.ret, r)))
			h.freeTyped(m.ret, r)
		}
	}

	t.ObjectMethodBindPtrcall = func(bind, p abi.Ptr, args []abi.Ptr, ret abi.Ptr) {
		m := h.methodBind(bind)
		if m == nil {
			h.fail("ptrcall: unknown method bind %s", bind)
			return
		}
		o := h.object(p)
		if m.native != nil {
			m.native(o, args, ret)
			return
		}
		if m.ext.Ptrcall == nil {
			h.fail("ptrcall: method %q has no ptrcall", m.name)
			return
		}
		var instance abi.Ptr
		if o != nil {
			instance = o.instance
		}
		m.ext.Ptrcall(m.ext.MethodUserdata, instance, args, ret)
	}
}

func typedSize(t abi.VariantType) uint32 {
	return abi.TypeSize(t)
}

// newTyped allocates typed storage holding the default value of t.
func (h *Host) newTyped(t abi.VariantType) abi.Ptr {
	p := h.alloc(typedSize(t))
	h.writeTyped(t, p, h.defaultVal(t))
	return p
}

// freeTyped destroys and frees typed storage.
func (h *Host) freeTyped(t abi.VariantType, p abi.Ptr) {
	if t == abi.VariantTypeNil {
		h.destroySlot(p)
	} else {
		h.releaseValue(t, h.read(p, typedSize(t)))
	}
	h.free(p)
}
