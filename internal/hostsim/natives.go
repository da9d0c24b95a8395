package hostsim

import (
	"github.com/wippyai/gdext-bridge/abi"
)

type nativeMethod struct {
	name   string
	args   []abi.VariantType
	ret    abi.VariantType
	hasRet bool
	fn     func(o *object, args []abi.Ptr, ret abi.Ptr)
}

func (h *Host) nativeClass(name, parent string, refcounted bool, methods ...nativeMethod) *class {
	c := &class{name: name, native: true, refcounted: refcounted}
	if parent != "" {
		c.parent = h.class(parent)
	}
	h.addClass(c)
	for _, nm := range methods {
		h.addMethod(c, &method{
			name:   nm.name,
			flags:  abi.MethodFlagsDefault,
			args:   nm.args,
			ret:    nm.ret,
			hasRet: nm.hasRet,
			native: nm.fn,
		})
	}
	return c
}

func (h *Host) installNativeClasses() {
	h.nativeClass("Object", "", false,
		nativeMethod{name: "get_class", ret: abi.VariantTypeString, hasRet: true,
			fn: func(o *object, _ []abi.Ptr, ret abi.Ptr) {
				h.assignTyped(abi.VariantTypeString, ret, h.vStr(abi.VariantTypeString, o.className()))
			}},
		nativeMethod{name: "get_instance_id", ret: abi.VariantTypeInt, hasRet: true,
			fn: func(o *object, _ []abi.Ptr, ret abi.Ptr) {
				h.putInt(ret, int64(o.id))
			}},
		nativeMethod{name: "is_class", args: []abi.VariantType{abi.VariantTypeString}, ret: abi.VariantTypeBool, hasRet: true,
			fn: func(o *object, args []abi.Ptr, ret abi.Ptr) {
				target := h.class(h.typedString(args[0]))
				c := o.class
				if o.ext != nil {
					c = o.ext
				}
				h.putBool(ret, target != nil && c.inherits(target))
			}},
		nativeMethod{name: "has_method", args: []abi.VariantType{abi.VariantTypeStringName}, ret: abi.VariantTypeBool, hasRet: true,
			fn: func(o *object, args []abi.Ptr, ret abi.Ptr) {
				c := o.class
				if o.ext != nil {
					c = o.ext
				}
				h.putBool(ret, c.findMethod(h.typedString(args[0])) != nil)
			}},
		nativeMethod{name: "get", args: []abi.VariantType{abi.VariantTypeStringName}, ret: abi.VariantTypeNil, hasRet: true,
			fn: func(o *object, args []abi.Ptr, ret abi.Ptr) {
				v, _ := h.objectGet(o, h.typedString(args[0]))
				h.assign(ret, v)
			}},
		nativeMethod{name: "set", args: []abi.VariantType{abi.VariantTypeStringName, abi.VariantTypeNil},
			fn: func(o *object, args []abi.Ptr, _ abi.Ptr) {
				h.objectSet(o, h.typedString(args[0]), h.load(args[1]))
			}},
	)

	h.nativeClass("RefCounted", "Object", true,
		nativeMethod{name: "get_reference_count", ret: abi.VariantTypeInt, hasRet: true,
			fn: func(o *object, _ []abi.Ptr, ret abi.Ptr) {
				h.mu.Lock()
				refs := o.refs
				h.mu.Unlock()
				h.putInt(ret, int64(refs))
			}},
	)

	h.nativeClass("Resource", "RefCounted", false,
		h.nativeProperty("resource_name", "set_name", "get_name", abi.VariantTypeString)...,
	)
	h.declareProperty("Resource", "resource_name", abi.VariantTypeString, "set_name", "get_name")

	node := h.nativeClass("Node", "Object", false,
		h.nativeProperty("name", "set_name", "get_name", abi.VariantTypeStringName)...,
	)
	node.virtuals = []string{"_ready", "_process", "_physics_process", "_enter_tree", "_exit_tree"}
	h.declareProperty("Node", "name", abi.VariantTypeStringName, "set_name", "get_name")

	h.nativeClass("Node2D", "Node", false)
	h.nativeClass("Node3D", "Node", false)

	engine := h.nativeClass("Engine", "Object", false,
		nativeMethod{name: "is_editor_hint", ret: abi.VariantTypeBool, hasRet: true,
			fn: func(_ *object, _ []abi.Ptr, ret abi.Ptr) {
				h.putBool(ret, false)
			}},
	)
	h.singletons["Engine"] = h.newObject(engine).ptr
}

// nativeProperty builds a setter and getter pair backed by the object's
// native property storage.
func (h *Host) nativeProperty(name, setter, getter string, t abi.VariantType) []nativeMethod {
	return []nativeMethod{
		{name: setter, args: []abi.VariantType{t},
			fn: func(o *object, args []abi.Ptr, _ abi.Ptr) {
				v := h.dup(h.readTyped(t, args[0]))
				if slot, ok := o.props[name]; ok {
					h.assign(slot, v)
					return
				}
				slot := h.alloc(abi.VariantSize)
				h.store(slot, v)
				o.props[name] = slot
			}},
		{name: getter, ret: t, hasRet: true,
			fn: func(o *object, _ []abi.Ptr, ret abi.Ptr) {
				v := h.defaultVal(t)
				if slot, ok := o.props[name]; ok {
					h.drop(v)
					v = h.dup(h.load(slot))
				}
				h.assignTyped(t, ret, v)
			}},
	}
}

func (h *Host) declareProperty(className, name string, t abi.VariantType, setter, getter string) {
	c := h.class(className)
	c.properties = append(c.properties, &property{
		Property: Property{Name: name, Type: t, Usage: abi.PropertyUsageDefault},
		setter:   setter,
		getter:   getter,
	})
}

// callMethod invokes m through the variant-call path. args are borrowed.
func (h *Host) callMethod(o *object, m *method, args []val) (val, abi.CallError) {
	slots := make([]abi.Ptr, len(args))
	for i, a := range args {
		slots[i] = h.alloc(abi.VariantSize)
		h.store(slots[i], h.dup(a))
	}
	ret := h.alloc(abi.VariantSize)

	var ce abi.CallError
	var p abi.Ptr
	if o != nil {
		p = o.ptr
	}
	h.table.ObjectMethodBindCall(m.bind, p, slots, ret, &ce)

	out := h.dup(h.load(ret))
	h.destroySlot(ret)
	h.free(ret)
	for _, s := range slots {
		h.destroySlot(s)
		h.free(s)
	}
	return out, ce
}

func (o *object) effectiveClass() *class {
	if o.ext != nil {
		return o.ext
	}
	return o.class
}

// objectGet resolves a property: registered getter first, then the
// extension get hook.
func (h *Host) objectGet(o *object, name string) (val, bool) {
	if o == nil {
		return nilVal, false
	}
	c := o.effectiveClass()
	if p := c.findProperty(name); p != nil && p.getter != "" {
		if m := c.findMethod(p.getter); m != nil {
			v, ce := h.callMethod(o, m, nil)
			if ce.OK() {
				return v, true
			}
			h.drop(v)
			return nilVal, false
		}
	}
	if o.ext != nil && o.ext.info.Get != nil {
		ret := h.alloc(abi.VariantSize)
		key := h.StringName(name)
		defer h.FreeString(key)
		h.store(ret, nilVal)
		ok := o.ext.info.Get(o.instance, key, ret)
		v := h.dup(h.load(ret))
		h.destroySlot(ret)
		h.free(ret)
		if ok {
			return v, true
		}
		h.drop(v)
	}
	return nilVal, false
}

// objectSet resolves a property the same way; value is borrowed.
func (h *Host) objectSet(o *object, name string, value val) bool {
	if o == nil {
		return false
	}
	c := o.effectiveClass()
	if p := c.findProperty(name); p != nil && p.setter != "" {
		if m := c.findMethod(p.setter); m != nil {
			v, ce := h.callMethod(o, m, []val{value})
			h.drop(v)
			return ce.OK()
		}
	}
	if o.ext != nil && o.ext.info.Set != nil {
		slot := h.alloc(abi.VariantSize)
		h.store(slot, h.dup(value))
		key := h.StringName(name)
		ok := o.ext.info.Set(o.instance, key, slot)
		h.FreeString(key)
		h.destroySlot(slot)
		h.free(slot)
		return ok
	}
	return false
}
