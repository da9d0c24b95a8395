package dispatch

import (
	"fmt"
	"reflect"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/gdext-bridge/abi"
	"github.com/wippyai/gdext-bridge/binding"
	"github.com/wippyai/gdext-bridge/classdb"
	"github.com/wippyai/gdext-bridge/errors"
	"github.com/wippyai/gdext-bridge/variant"
)

var objectWrapperType = reflect.TypeFor[*binding.Object]()

// owned is implemented by instances embedding binding.Owner.
type owned interface {
	SetOwner(*binding.Object)
}

// Dispatcher routes host callbacks to Go instances.
type Dispatcher struct {
	reg   *classdb.Registry
	mgr   *binding.Manager
	m     *variant.Marshaler
	table *abi.InterfaceTable

	mu       sync.RWMutex
	virtuals map[*classdb.Method]abi.ClassCallVirtual
}

// New creates a dispatcher and installs it, and its object resolver, on
// reg.
func New(reg *classdb.Registry, mgr *binding.Manager) *Dispatcher {
	d := &Dispatcher{
		reg:      reg,
		mgr:      mgr,
		m:        reg.Marshaler(),
		table:    reg.Marshaler().Table(),
		virtuals: make(map[*classdb.Method]abi.ClassCallVirtual),
	}
	reg.SetDispatcher(d)
	reg.SetObjectResolver(d.resolveObject)
	return d
}

// CreationInfo returns the hooks installed for c. Optional hooks are set
// only when c's instances implement the matching interface.
func (d *Dispatcher) CreationInfo(c *classdb.Class) abi.ClassCreationInfo {
	info := abi.ClassCreationInfo{
		CreateInstance: d.CreateInstance,
		FreeInstance:   d.FreeInstance,
		GetVirtual:     d.GetVirtual,
		ToString:       d.ToString,
	}
	if c.Caps.Has(classdb.CapGet) {
		info.Get = d.Get
	}
	if c.Caps.Has(classdb.CapSet) {
		info.Set = d.Set
	}
	if c.Caps.Has(classdb.CapPropertyList) {
		info.GetPropertyList = d.GetPropertyList
		info.FreePropertyList = d.FreePropertyList
	}
	if c.Caps.Has(classdb.CapRevert) {
		info.PropertyCanRevert = d.PropertyCanRevert
		info.PropertyGetRevert = d.PropertyGetRevert
	}
	if c.Caps.Has(classdb.CapNotification) {
		info.Notification = d.Notification
	}
	if c.Caps.Has(classdb.CapReference) {
		info.Reference = d.Reference
		info.Unreference = d.Unreference
	}
	return info
}

// MethodCallbacks returns the shared method entry points.
func (d *Dispatcher) MethodCallbacks() (abi.ClassMethodCall, abi.ClassMethodPtrCall) {
	return d.Call, d.Ptrcall
}

// recoverHook logs a panic escaping hook. It must be deferred directly.
func recoverHook(hook string, fields ...zap.Field) {
	if r := recover(); r != nil {
		Logger().Error("panic in extension hook",
			append(fields,
				zap.String("hook", hook),
				zap.Any("panic", r),
				zap.Stack("stack"))...)
	}
}

func (d *Dispatcher) instance(p abi.Ptr, hook string) (any, bool) {
	_, inst, err := d.mgr.Resolve(p)
	if err != nil {
		Logger().Error("hook on unknown instance",
			zap.String("hook", hook),
			zap.Stringer("instance", p),
			zap.Error(err))
		return nil, false
	}
	return inst, true
}

func (d *Dispatcher) name(p abi.Ptr) (string, bool) {
	v, err := d.m.ReadTyped(abi.VariantTypeStringName, p)
	if err != nil {
		Logger().Error("unreadable name", zap.Stringer("name", p), zap.Error(err))
		return "", false
	}
	return string(v.(variant.StringName)), true
}

// CreateInstance constructs the nearest native ancestor, binds a new Go
// instance to it and returns the host object.
func (d *Dispatcher) CreateInstance(userdata abi.Ptr) (obj abi.Ptr) {
	defer recoverHook("create_instance", zap.Stringer("userdata", userdata))

	c, err := d.reg.ClassByUserdata(userdata)
	if err != nil {
		Logger().Error("create_instance for unknown class", zap.Error(err))
		return abi.Null
	}
	inst, err := c.New()
	if err != nil {
		Logger().Error("instance constructor failed", zap.String("class", c.Name), zap.Error(err))
		return abi.Null
	}

	native, err := d.m.StringName(c.Native)
	if err != nil {
		Logger().Error("create_instance", zap.String("class", c.Name), zap.Error(err))
		return abi.Null
	}
	obj = d.table.ClassdbConstructObject(native)
	d.m.FreeTyped(abi.VariantTypeStringName, native)
	if obj.IsNull() {
		Logger().Error("host could not construct native base",
			zap.String("class", c.Name),
			zap.String("native", c.Native))
		return abi.Null
	}

	handle, w, err := d.mgr.Attach(obj, c.Name, inst)
	if err != nil {
		Logger().Error("attach failed", zap.String("class", c.Name), zap.Error(err))
		d.table.ObjectDestroy(obj)
		return abi.Null
	}
	className, err := d.m.StringName(c.Name)
	if err != nil {
		Logger().Error("create_instance", zap.String("class", c.Name), zap.Error(err))
		d.table.ObjectDestroy(obj)
		return abi.Null
	}
	d.table.ObjectSetInstance(obj, className, handle)
	d.m.FreeTyped(abi.VariantTypeStringName, className)

	if o, ok := inst.(owned); ok {
		o.SetOwner(w)
	}
	Logger().Debug("created instance",
		zap.String("class", c.Name),
		zap.Stringer("object", obj),
		zap.Stringer("instance", handle))
	return obj
}

// FreeInstance runs the instance's Free hook. The binding itself is
// released by the host's binding free callback that follows.
func (d *Dispatcher) FreeInstance(userdata, instance abi.Ptr) {
	defer recoverHook("free_instance", zap.Stringer("instance", instance))
	inst, ok := d.instance(instance, "free_instance")
	if !ok {
		return
	}
	if f, ok := inst.(classdb.Freer); ok {
		f.Free()
	}
	d.mgr.ClearInstance(instance)
}

// Get reads a dynamic property. false means the instance does not handle
// name and the host should try elsewhere.
func (d *Dispatcher) Get(instance, name, ret abi.Ptr) bool {
	defer recoverHook("get", zap.Stringer("instance", instance))
	inst, ok := d.instance(instance, "get")
	if !ok {
		return false
	}
	g, ok := inst.(classdb.Getter)
	if !ok {
		return false
	}
	n, ok := d.name(name)
	if !ok {
		return false
	}
	v, found := g.Get(n)
	if !found {
		return false
	}
	if err := d.m.Assign(ret, v); err != nil {
		Logger().Error("get returned an unencodable value", zap.String("property", n), zap.Error(err))
		return false
	}
	return true
}

// Set writes a dynamic property.
func (d *Dispatcher) Set(instance, name, value abi.Ptr) bool {
	defer recoverHook("set", zap.Stringer("instance", instance))
	inst, ok := d.instance(instance, "set")
	if !ok {
		return false
	}
	s, ok := inst.(classdb.Setter)
	if !ok {
		return false
	}
	n, ok := d.name(name)
	if !ok {
		return false
	}
	v, err := d.m.DecodeAny(value)
	if err != nil {
		Logger().Warn("set with undecodable value", zap.String("property", n), zap.Error(err))
		return false
	}
	return s.Set(n, v)
}

// GetPropertyList returns the instance's dynamic properties. The strings
// in the list are released by FreePropertyList.
func (d *Dispatcher) GetPropertyList(instance abi.Ptr) (list []abi.PropertyInfo) {
	defer recoverHook("get_property_list", zap.Stringer("instance", instance))
	inst, ok := d.instance(instance, "get_property_list")
	if !ok {
		return nil
	}
	pl, ok := inst.(classdb.PropertyLister)
	if !ok {
		return nil
	}
	props := pl.PropertyList()
	list = make([]abi.PropertyInfo, 0, len(props))
	for _, p := range props {
		info, err := d.propertyInfo(p)
		if err != nil {
			Logger().Error("property list entry dropped", zap.String("property", p.Name), zap.Error(err))
			continue
		}
		list = append(list, info)
	}
	return list
}

func (d *Dispatcher) propertyInfo(p classdb.Property) (abi.PropertyInfo, error) {
	info := abi.PropertyInfo{Type: p.Type, Hint: p.Hint, Usage: p.Usage}
	if info.Usage == abi.PropertyUsageNone {
		info.Usage = abi.PropertyUsageDefault
	}
	var err error
	if info.Name, err = d.m.StringName(p.Name); err != nil {
		return info, err
	}
	if p.ClassName != "" {
		if info.ClassName, err = d.m.StringName(p.ClassName); err != nil {
			d.freeInfo(info)
			return info, err
		}
	}
	if p.HintString != "" {
		if info.HintString, err = d.m.NewTyped(abi.VariantTypeString, p.HintString); err != nil {
			d.freeInfo(info)
			return info, err
		}
	}
	return info, nil
}

func (d *Dispatcher) freeInfo(info abi.PropertyInfo) {
	d.m.FreeTyped(abi.VariantTypeStringName, info.Name)
	d.m.FreeTyped(abi.VariantTypeStringName, info.ClassName)
	d.m.FreeTyped(abi.VariantTypeString, info.HintString)
}

// FreePropertyList releases a list returned by GetPropertyList.
func (d *Dispatcher) FreePropertyList(_ abi.Ptr, list []abi.PropertyInfo) {
	for _, info := range list {
		d.freeInfo(info)
	}
}

// PropertyCanRevert reports whether name has a revert value.
func (d *Dispatcher) PropertyCanRevert(instance, name abi.Ptr) bool {
	defer recoverHook("property_can_revert", zap.Stringer("instance", instance))
	inst, ok := d.instance(instance, "property_can_revert")
	if !ok {
		return false
	}
	r, ok := inst.(classdb.Reverter)
	if !ok {
		return false
	}
	n, ok := d.name(name)
	return ok && r.CanRevert(n)
}

// PropertyGetRevert stores the revert value of name in ret.
func (d *Dispatcher) PropertyGetRevert(instance, name, ret abi.Ptr) bool {
	defer recoverHook("property_get_revert", zap.Stringer("instance", instance))
	inst, ok := d.instance(instance, "property_get_revert")
	if !ok {
		return false
	}
	r, ok := inst.(classdb.Reverter)
	if !ok {
		return false
	}
	n, ok := d.name(name)
	if !ok {
		return false
	}
	v, found := r.Revert(n)
	if !found {
		return false
	}
	if err := d.m.Assign(ret, v); err != nil {
		Logger().Error("revert value unencodable", zap.String("property", n), zap.Error(err))
		return false
	}
	return true
}

// Notification delivers a host notification.
func (d *Dispatcher) Notification(instance abi.Ptr, what int32, reversed bool) {
	defer recoverHook("notification", zap.Stringer("instance", instance), zap.Int32("what", what))
	inst, ok := d.instance(instance, "notification")
	if !ok {
		return
	}
	if n, ok := inst.(classdb.Notifier); ok {
		n.Notification(what, reversed)
	}
}

// ToString renders the instance, falling back to the default extension
// text for instances without a String method.
func (d *Dispatcher) ToString(instance abi.Ptr, isValid *bool, out abi.Ptr) {
	defer recoverHook("to_string", zap.Stringer("instance", instance))
	obj, inst, err := d.mgr.Resolve(instance)
	if err != nil {
		Logger().Error("to_string on unknown instance", zap.Stringer("instance", instance), zap.Error(err))
		return
	}
	var text string
	if s, ok := inst.(fmt.Stringer); ok {
		text = s.String()
	} else {
		class := "Object"
		if w, err := d.mgr.Lookup(obj); err == nil {
			class, _ = w.Class()
		}
		text = fmt.Sprintf("[ GDExtension::%s <--> Instance ID:%d ]", class, d.table.ObjectGetInstanceID(obj))
	}
	if err := d.m.AssignTyped(abi.VariantTypeString, out, text); err != nil {
		Logger().Error("to_string result unencodable", zap.Error(err))
		return
	}
	if isValid != nil {
		*isValid = true
	}
}

// Reference forwards a host reference increment.
func (d *Dispatcher) Reference(instance abi.Ptr) {
	defer recoverHook("reference", zap.Stringer("instance", instance))
	if inst, ok := d.instance(instance, "reference"); ok {
		if r, ok := inst.(classdb.RefObserver); ok {
			r.Referenced()
		}
	}
}

// Unreference forwards a host reference decrement.
func (d *Dispatcher) Unreference(instance abi.Ptr) {
	defer recoverHook("unreference", zap.Stringer("instance", instance))
	if inst, ok := d.instance(instance, "unreference"); ok {
		if r, ok := inst.(classdb.RefObserver); ok {
			r.Unreferenced()
		}
	}
}

// resolveObject maps an object argument to a bound method's parameter
// type: the wrapper itself or the Go side of an extension instance.
func (d *Dispatcher) resolveObject(obj abi.Ptr, t reflect.Type) (reflect.Value, error) {
	if t == objectWrapperType {
		w, err := d.mgr.Wrap(obj)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(w), nil
	}
	inst, err := d.mgr.Instance(obj)
	if err != nil {
		return reflect.Value{}, err
	}
	v := reflect.ValueOf(inst)
	if !v.Type().AssignableTo(t) {
		return reflect.Value{}, errors.New(errors.PhaseCall, errors.KindTypeMismatch).
			Value(obj).
			Detail("object %s holds %s, not %s", obj, v.Type(), t).
			Build()
	}
	return v, nil
}
