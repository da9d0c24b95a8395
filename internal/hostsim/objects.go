package hostsim

import (
	"sync"

	"github.com/wippyai/gdext-bridge/abi"
)

const objectSize = 16

type instanceBinding struct {
	token     abi.Ptr
	binding   abi.Ptr
	callbacks abi.InstanceBindingCallbacks
}

type object struct {
	ptr        abi.Ptr
	id         uint64
	class      *class
	ext        *class
	instance   abi.Ptr
	refcounted bool
	refs       int32
	props      map[string]abi.Ptr
	bindings   []*instanceBinding
	bindMu     sync.Mutex
	freed      bool
}

func (o *object) className() string {
	if o.ext != nil {
		return o.ext.name
	}
	return o.class.name
}

func (h *Host) object(p abi.Ptr) *object {
	if p.IsNull() {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.objects[p]
}

// newObject constructs a bare native object of class c.
func (h *Host) newObject(c *class) *object {
	o := &object{
		ptr:        h.alloc(objectSize),
		class:      c,
		refcounted: c.isRefCounted(),
		props:      make(map[string]abi.Ptr),
	}
	if o.refcounted {
		o.refs = 1
	}
	h.mu.Lock()
	h.nextID++
	o.id = h.nextID
	h.objects[o.ptr] = o
	h.byID[o.id] = o
	h.mu.Unlock()
	h.putU64(o.ptr, o.id)
	return o
}

// construct instantiates className: native classes directly, extension
// classes through their create_instance callback.
func (h *Host) construct(name string) abi.Ptr {
	c := h.class(name)
	if c == nil {
		h.fail("cannot construct unknown class %q", name)
		return abi.Null
	}
	if c.native {
		return h.newObject(c).ptr
	}
	if c.info.IsAbstract || c.info.IsVirtual {
		h.fail("cannot instantiate abstract class %q", name)
		return abi.Null
	}
	if c.info.CreateInstance == nil {
		h.fail("class %q has no create_instance", name)
		return abi.Null
	}
	p := c.info.CreateInstance(c.info.ClassUserdata)
	if o := h.object(p); o == nil || o.ext == nil {
		h.fail("create_instance of %q did not set an instance", name)
	}
	return p
}

// destroy runs the extension free callback, then every binding free
// callback, then releases the object.
func (h *Host) destroy(o *object) {
	h.mu.Lock()
	if o.freed {
		h.mu.Unlock()
		h.fail("object %d freed twice", o.id)
		return
	}
	o.freed = true
	h.mu.Unlock()

	if o.ext != nil && o.ext.info.FreeInstance != nil {
		o.ext.info.FreeInstance(o.ext.info.ClassUserdata, o.instance)
	}

	o.bindMu.Lock()
	bindings := o.bindings
	o.bindings = nil
	o.bindMu.Unlock()
	for _, b := range bindings {
		if b.callbacks.Free != nil {
			b.callbacks.Free(b.token, o.ptr, b.binding)
		}
	}

	for name, slot := range o.props {
		h.destroySlot(slot)
		h.free(slot)
		delete(o.props, name)
	}

	h.mu.Lock()
	delete(h.objects, o.ptr)
	delete(h.byID, o.id)
	h.mu.Unlock()
	h.free(o.ptr)
}

func (h *Host) objRetain(p abi.Ptr) {
	o := h.object(p)
	if o == nil || !o.refcounted {
		return
	}
	h.reference(o)
}

func (h *Host) objRelease(p abi.Ptr) {
	o := h.object(p)
	if o == nil || !o.refcounted {
		return
	}
	h.unreference(o)
}

// reference increments the refcount and notifies the extension and every
// binding.
func (h *Host) reference(o *object) {
	h.mu.Lock()
	o.refs++
	h.mu.Unlock()

	if o.ext != nil && o.ext.info.Reference != nil {
		o.ext.info.Reference(o.instance)
	}
	for _, b := range h.bindingsOf(o) {
		if b.callbacks.Reference != nil {
			b.callbacks.Reference(b.token, b.binding, true)
		}
	}
}

// unreference decrements the refcount and frees the object when it reaches
// zero, unless a binding vetoes it. It reports whether the object died.
func (h *Host) unreference(o *object) bool {
	h.mu.Lock()
	o.refs--
	refs := o.refs
	h.mu.Unlock()

	if o.ext != nil && o.ext.info.Unreference != nil {
		o.ext.info.Unreference(o.instance)
	}
	die := refs <= 0
	for _, b := range h.bindingsOf(o) {
		if b.callbacks.Reference != nil {
			if !b.callbacks.Reference(b.token, b.binding, false) {
				die = false
			}
		}
	}
	if die {
		h.destroy(o)
	}
	return die
}

func (h *Host) bindingsOf(o *object) []*instanceBinding {
	o.bindMu.Lock()
	defer o.bindMu.Unlock()
	out := make([]*instanceBinding, len(o.bindings))
	copy(out, o.bindings)
	return out
}

func (o *object) findBinding(token abi.Ptr) *instanceBinding {
	for _, b := range o.bindings {
		if b.token == token {
			return b
		}
	}
	return nil
}

func (h *Host) installObjects(t *abi.InterfaceTable) {
	t.ObjectDestroy = func(p abi.Ptr) {
		if o := h.object(p); o != nil {
			h.destroy(o)
			return
		}
		h.fail("object_destroy: unknown object %s", p)
	}

	t.GlobalGetSingleton = func(name abi.Ptr) abi.Ptr {
		n := h.typedString(name)
		h.mu.Lock()
		p, ok := h.singletons[n]
		h.mu.Unlock()
		if !ok {
			h.fail("singleton %q not found", n)
		}
		return p
	}

	t.ObjectGetInstanceBinding = func(p, token abi.Ptr, callbacks *abi.InstanceBindingCallbacks) abi.Ptr {
		o := h.object(p)
		if o == nil {
			h.fail("get_instance_binding: unknown object %s", p)
			return abi.Null
		}
		o.bindMu.Lock()
		defer o.bindMu.Unlock()
		if b := o.findBinding(token); b != nil {
			return b.binding
		}
		if callbacks == nil || callbacks.Create == nil {
			return abi.Null
		}
		binding := callbacks.Create(token, p)
		o.bindings = append(o.bindings, &instanceBinding{token: token, binding: binding, callbacks: *callbacks})
		return binding
	}

	t.ObjectSetInstanceBinding = func(p, token, binding abi.Ptr, callbacks *abi.InstanceBindingCallbacks) {
		o := h.object(p)
		if o == nil {
			h.fail("set_instance_binding: unknown object %s", p)
			return
		}
		o.bindMu.Lock()
		defer o.bindMu.Unlock()
		if o.findBinding(token) != nil {
			h.fail("instance binding for token %s already set on object %d", token, o.id)
			return
		}
		b := &instanceBinding{token: token, binding: binding}
		if callbacks != nil {
			b.callbacks = *callbacks
		}
		o.bindings = append(o.bindings, b)
	}

	t.ObjectFreeInstanceBinding = func(p, token abi.Ptr) {
		o := h.object(p)
		if o == nil {
			return
		}
		o.bindMu.Lock()
		var freed *instanceBinding
		for i, b := range o.bindings {
			if b.token == token {
				freed = b
				o.bindings = append(o.bindings[:i], o.bindings[i+1:]...)
				break
			}
		}
		o.bindMu.Unlock()
		if freed != nil && freed.callbacks.Free != nil {
			freed.callbacks.Free(token, p, freed.binding)
		}
	}

	t.ObjectSetInstance = func(p, className, instance abi.Ptr) {
		o := h.object(p)
		if o == nil {
			h.fail("set_instance: unknown object %s", p)
			return
		}
		name := h.typedString(className)
		c := h.class(name)
		if c == nil || c.native {
			h.fail("set_instance: %q is not an extension class", name)
			return
		}
		if !c.inherits(o.class) {
			h.fail("set_instance: %q does not inherit %q", name, o.class.name)
			return
		}
		o.ext = c
		o.instance = instance
	}

	t.ObjectGetClassName = func(p, library, ret abi.Ptr) bool {
		o := h.object(p)
		if o == nil {
			return false
		}
		name := o.class.name
		if o.ext != nil && o.ext.library == library {
			name = o.ext.name
		}
		h.putString(ret, name)
		return true
	}

	t.ObjectCastTo = func(p, tag abi.Ptr) abi.Ptr {
		o := h.object(p)
		if o == nil {
			return abi.Null
		}
		h.mu.Lock()
		target := h.classTags[tag]
		h.mu.Unlock()
		if target == nil {
			return abi.Null
		}
		c := o.class
		if o.ext != nil {
			c = o.ext
		}
		if c.inherits(target) {
			return p
		}
		return abi.Null
	}

	t.ObjectGetInstanceFromID = func(id uint64) abi.Ptr {
		h.mu.Lock()
		defer h.mu.Unlock()
		if o, ok := h.byID[id]; ok {
			return o.ptr
		}
		return abi.Null
	}

	t.ObjectGetInstanceID = func(p abi.Ptr) uint64 {
		if o := h.object(p); o != nil {
			return o.id
		}
		return 0
	}

	t.RefGetObject = func(ref abi.Ptr) abi.Ptr {
		return abi.Ptr(h.u32(ref))
	}

	t.RefSetObject = func(ref, p abi.Ptr) {
		old := abi.Ptr(h.u32(ref))
		if old == p {
			return
		}
		h.objRetain(p)
		h.putU64(ref, uint64(p))
		h.objRelease(old)
	}
}
