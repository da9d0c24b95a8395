package binding

import (
	"reflect"

	"go.uber.org/zap"

	"github.com/wippyai/gdext-bridge/abi"
	"github.com/wippyai/gdext-bridge/errors"
	"github.com/wippyai/gdext-bridge/variant"
)

// Object is the Go wrapper of a bound host object. It implements
// variant.HostObject, so it encodes as an Object Variant.
type Object struct {
	ptr abi.Ptr
	mgr *Manager
	rec *record
}

// HostPtr returns the host object pointer.
func (o *Object) HostPtr() abi.Ptr {
	if o == nil {
		return abi.Null
	}
	return o.ptr
}

func (o *Object) String() string {
	if o == nil {
		return "<nil>"
	}
	return "Object(" + o.ptr.String() + ")"
}

// Alive reports whether the binding has not been released.
func (o *Object) Alive() bool {
	if o == nil {
		return false
	}
	o.rec.mu.Lock()
	defer o.rec.mu.Unlock()
	return o.rec.state == StateBound
}

func (o *Object) live() error {
	if o == nil || o.ptr.IsNull() {
		return errors.NilPointer(errors.PhaseBinding, "object")
	}
	if !o.Alive() {
		return errors.Lifecycle("object %s used after release", o.ptr)
	}
	return nil
}

// Instance returns the Go side of an extension instance.
func (o *Object) Instance() (any, error) {
	if err := o.live(); err != nil {
		return nil, err
	}
	return o.mgr.Instance(o.ptr)
}

// Class returns the object's class name as seen by this library: the
// extension class for its own instances, the native class otherwise.
func (o *Object) Class() (string, error) {
	if err := o.live(); err != nil {
		return "", err
	}
	o.rec.mu.Lock()
	class := o.rec.class
	o.rec.mu.Unlock()
	if class != "" {
		return class, nil
	}

	t := o.mgr.table
	ret := t.MemAlloc(abi.TypeSize(abi.VariantTypeString))
	if ret.IsNull() {
		return "", errors.AllocationFailed(errors.PhaseBinding, abi.TypeSize(abi.VariantTypeString))
	}
	if !t.ObjectGetClassName(o.ptr, o.mgr.library, ret) {
		t.MemFree(ret)
		return "", errors.NotFound(errors.PhaseBinding, "object", o.ptr.String())
	}
	name, err := o.mgr.m.String(ret, variant.UTF8)
	o.mgr.m.FreeTyped(abi.VariantTypeString, ret)
	if err != nil {
		return "", err
	}

	o.rec.mu.Lock()
	o.rec.class = name
	o.rec.mu.Unlock()
	return name, nil
}

// InstanceID returns the host instance id.
func (o *Object) InstanceID() uint64 {
	if o == nil {
		return 0
	}
	return o.mgr.table.ObjectGetInstanceID(o.ptr)
}

// CastTo returns o as class, or a type mismatch when o does not inherit it.
func (o *Object) CastTo(class string) (*Object, error) {
	if err := o.live(); err != nil {
		return nil, err
	}
	m := o.mgr.m
	name, err := m.StringName(class)
	if err != nil {
		return nil, err
	}
	tag := o.mgr.table.ClassdbGetClassTag(name)
	m.FreeTyped(abi.VariantTypeStringName, name)
	if tag.IsNull() {
		return nil, errors.NotFound(errors.PhaseBinding, "class", class)
	}
	cast := o.mgr.table.ObjectCastTo(o.ptr, tag)
	if cast.IsNull() {
		actual, _ := o.Class()
		return nil, errors.New(errors.PhaseBinding, errors.KindTypeMismatch).
			Class(actual).
			Detail("object %s is not a %s", o.ptr, class).
			Build()
	}
	return o.mgr.Wrap(cast)
}

// Free destroys the host object. The binding is released by the host's
// free callback.
func (o *Object) Free() error {
	if err := o.live(); err != nil {
		return err
	}
	o.mgr.table.ObjectDestroy(o.ptr)
	return nil
}

func (mgr *Manager) methodBind(class, method string, hash int64) (abi.Ptr, error) {
	key := bindKey{class: class, method: method, hash: hash}
	mgr.bindMu.RLock()
	bind, ok := mgr.binds[key]
	mgr.bindMu.RUnlock()
	if ok {
		return bind, nil
	}

	cn, err := mgr.m.StringName(class)
	if err != nil {
		return abi.Null, err
	}
	defer mgr.m.FreeTyped(abi.VariantTypeStringName, cn)
	mn, err := mgr.m.StringName(method)
	if err != nil {
		return abi.Null, err
	}
	defer mgr.m.FreeTyped(abi.VariantTypeStringName, mn)

	bind = mgr.table.ClassdbGetMethodBind(cn, mn, hash)
	if bind.IsNull() {
		return abi.Null, errors.NotFound(errors.PhaseCall, "method", class+"."+method)
	}
	mgr.bindMu.Lock()
	mgr.binds[key] = bind
	mgr.bindMu.Unlock()
	return bind, nil
}

// Call invokes one of the engine methods listed by EngineMethodHash
// through the variant convention. A failed call returns an error carrying
// the host's CallError as its value.
func (o *Object) Call(method string, args ...any) (any, error) {
	hash, ok := EngineMethodHash(method)
	if !ok {
		return nil, errors.New(errors.PhaseCall, errors.KindNotFound).
			Member(method).
			Detail("no known hash for method %q", method).
			Build()
	}
	return o.CallHash(method, hash, args...)
}

// CallHash invokes method, whose signature hashes to hash, through the
// variant convention.
func (o *Object) CallHash(method string, hash int64, args ...any) (any, error) {
	if err := o.live(); err != nil {
		return nil, err
	}
	class, err := o.Class()
	if err != nil {
		return nil, err
	}
	bind, err := o.mgr.methodBind(class, method, hash)
	if err != nil {
		return nil, err
	}

	m, t := o.mgr.m, o.mgr.table
	slots := make([]abi.Ptr, 0, len(args))
	defer func() {
		for _, s := range slots {
			m.Destroy(s)
		}
	}()
	for i, a := range args {
		s, err := m.Encode(a)
		if err != nil {
			return nil, errors.New(errors.PhaseCall, errors.KindInvalidInput).
				Class(class).
				Member(method).
				Cause(err).
				Detail("argument %d", i).
				Build()
		}
		slots = append(slots, s)
	}

	ret := t.MemAlloc(abi.VariantSize)
	if ret.IsNull() {
		return nil, errors.AllocationFailed(errors.PhaseCall, abi.VariantSize)
	}
	defer m.Destroy(ret)

	var ce abi.CallError
	t.ObjectMethodBindCall(bind, o.ptr, slots, ret, &ce)
	if !ce.OK() {
		Logger().Debug("outbound call failed",
			zap.String("class", class),
			zap.String("method", method),
			zap.Stringer("error", ce))
		return nil, errors.New(errors.PhaseCall, errors.KindCallFailed).
			Class(class).
			Member(method).
			Value(ce).
			Detail("%s", ce).
			Build()
	}
	return m.DecodeAny(ret)
}

// Ptrcall invokes method through the ptrcall convention. argTypes and ret
// must match the method's declared signature, whose hash selects the bind;
// ret Nil means no result.
func (o *Object) Ptrcall(method string, ret abi.VariantType, argTypes []abi.VariantType, args ...any) (any, error) {
	if err := o.live(); err != nil {
		return nil, err
	}
	if len(argTypes) != len(args) {
		return nil, errors.InvalidInput(errors.PhaseCall, "argument types do not match arguments")
	}
	class, err := o.Class()
	if err != nil {
		return nil, err
	}
	bind, err := o.mgr.methodBind(class, method, abi.MethodHash(ret, argTypes...))
	if err != nil {
		return nil, err
	}

	m := o.mgr.m
	typed := make([]abi.Ptr, 0, len(args))
	defer func() {
		for i, p := range typed {
			m.FreeTyped(argTypes[i], p)
		}
	}()
	for i, a := range args {
		p, err := m.NewTyped(argTypes[i], a)
		if err != nil {
			return nil, errors.New(errors.PhaseCall, errors.KindInvalidInput).
				Class(class).
				Member(method).
				Cause(err).
				Detail("argument %d", i).
				Build()
		}
		typed = append(typed, p)
	}

	if ret == abi.VariantTypeNil {
		o.mgr.table.ObjectMethodBindPtrcall(bind, o.ptr, typed, abi.Null)
		return nil, nil
	}
	rp, err := m.NewTyped(ret, zeroOf(ret))
	if err != nil {
		return nil, err
	}
	defer m.FreeTyped(ret, rp)
	o.mgr.table.ObjectMethodBindPtrcall(bind, o.ptr, typed, rp)
	return m.ReadTyped(ret, rp)
}

// zeroOf is the default value of kind t as Decode would produce it.
func zeroOf(t abi.VariantType) any {
	gt := variant.GoType(t)
	if gt == nil {
		return nil
	}
	return reflect.Zero(gt).Interface()
}

// Owner is embedded in extension instance types to reach their host
// object. It implements variant.HostObject.
type Owner struct {
	obj *Object
}

// SetOwner is called once the instance is bound.
func (o *Owner) SetOwner(obj *Object) { o.obj = obj }

// Object returns the host object owning the instance.
func (o *Owner) Object() *Object {
	if o == nil {
		return nil
	}
	return o.obj
}

// HostPtr returns the owning host object pointer.
func (o *Owner) HostPtr() abi.Ptr {
	if o == nil {
		return abi.Null
	}
	return o.obj.HostPtr()
}
