package dispatch

import (
	stderrors "errors"

	"go.uber.org/zap"

	"github.com/wippyai/gdext-bridge/abi"
	"github.com/wippyai/gdext-bridge/classdb"
)

func setCallError(ce *abi.CallError, kind abi.CallErrorType, argument, expected int32) {
	if ce == nil {
		return
	}
	ce.Error = kind
	ce.Argument = argument
	ce.Expected = expected
}

// receiver resolves the Go receiver of m for instance; static methods have
// none.
func (d *Dispatcher) receiver(m *classdb.Method, instance abi.Ptr) (any, bool) {
	if m.IsStatic() {
		return nil, true
	}
	if instance.IsNull() {
		return nil, false
	}
	_, inst, err := d.mgr.Resolve(instance)
	if err != nil {
		Logger().Error("call on unknown instance",
			zap.Stringer("method", m),
			zap.Stringer("instance", instance),
			zap.Error(err))
		return nil, false
	}
	return inst, true
}

// Call is the variant-call entry point. Argument count is checked against
// the method's range before anything is decoded; missing trailing arguments
// take their defaults.
// CallErrorMethodNotConst is never set here: the host raises it before a
// non-const method reaches a read-only receiver.
func (d *Dispatcher) Call(methodUserdata, instance abi.Ptr, args []abi.Ptr, ret abi.Ptr, ce *abi.CallError) {
	setCallError(ce, abi.CallOK, 0, 0)
	defer func() {
		if r := recover(); r != nil {
			Logger().Error("panic in method call",
				zap.Stringer("method_userdata", methodUserdata),
				zap.Any("panic", r),
				zap.Stack("stack"))
			setCallError(ce, abi.CallErrorInvalidMethod, 0, 0)
		}
	}()

	m, err := d.reg.Method(methodUserdata)
	if err != nil {
		Logger().Error("call of unknown method", zap.Error(err))
		setCallError(ce, abi.CallErrorInvalidMethod, 0, 0)
		return
	}

	n := len(args)
	if n < m.MinArgs() {
		setCallError(ce, abi.CallErrorTooFewArguments, 0, int32(m.MinArgs()))
		return
	}
	if limit := m.MaxArgs(); limit >= 0 && n > limit {
		setCallError(ce, abi.CallErrorTooManyArguments, 0, int32(limit))
		return
	}

	recv, ok := d.receiver(m, instance)
	if !ok {
		setCallError(ce, abi.CallErrorInstanceIsNull, 0, 0)
		return
	}

	values := make([]any, max(n, len(m.Args)))
	for i, a := range args {
		if i >= len(m.Args) {
			v, err := d.m.DecodeAny(a)
			if err != nil {
				setCallError(ce, abi.CallErrorInvalidArgument, int32(i), int32(abi.VariantTypeNil))
				return
			}
			values[i] = v
			continue
		}
		v, err := d.m.Decode(a, m.Args[i])
		if err != nil {
			setCallError(ce, abi.CallErrorInvalidArgument, int32(i), int32(m.Args[i]))
			return
		}
		values[i] = v
	}
	for i := n; i < len(m.Args); i++ {
		values[i], _ = m.Default(i)
	}

	res, err := m.Invoke(recv, values)
	if err != nil {
		var argErr *classdb.ArgumentError
		if stderrors.As(err, &argErr) {
			setCallError(ce, abi.CallErrorInvalidArgument, int32(argErr.Index), int32(argErr.Expected))
			return
		}
		Logger().Warn("method returned an error", zap.Stringer("method", m), zap.Error(err))
		setCallError(ce, abi.CallErrorInvalidMethod, 0, 0)
		return
	}
	if !m.HasReturn || ret.IsNull() {
		return
	}
	if err := d.m.Assign(ret, res); err != nil {
		Logger().Error("method result unencodable", zap.Stringer("method", m), zap.Error(err))
		setCallError(ce, abi.CallErrorInvalidMethod, 0, 0)
	}
}

// Ptrcall is the typed entry point. The host guarantees arity, so any
// failure here is logged as a contract violation.
func (d *Dispatcher) Ptrcall(methodUserdata, instance abi.Ptr, args []abi.Ptr, ret abi.Ptr) {
	defer recoverHook("ptrcall", zap.Stringer("method_userdata", methodUserdata))

	m, err := d.reg.Method(methodUserdata)
	if err != nil {
		Logger().Error("ptrcall of unknown method", zap.Error(err))
		return
	}
	d.ptrcall(m, instance, args, ret)
}

func (d *Dispatcher) ptrcall(m *classdb.Method, instance abi.Ptr, args []abi.Ptr, ret abi.Ptr) {
	if len(args) != len(m.Args) {
		Logger().Error("ptrcall arity mismatch",
			zap.Stringer("method", m),
			zap.Int("got", len(args)),
			zap.Int("want", len(m.Args)))
		return
	}
	recv, ok := d.receiver(m, instance)
	if !ok {
		Logger().Error("ptrcall without instance", zap.Stringer("method", m))
		return
	}

	values := make([]any, len(args))
	for i, a := range args {
		v, err := d.m.ReadTyped(m.Args[i], a)
		if err != nil {
			Logger().Error("ptrcall argument unreadable",
				zap.Stringer("method", m),
				zap.Int("argument", i),
				zap.Error(err))
			return
		}
		values[i] = v
	}

	res, err := m.Invoke(recv, values)
	if err != nil {
		Logger().Error("ptrcall failed", zap.Stringer("method", m), zap.Error(err))
		return
	}
	if !m.HasReturn || ret.IsNull() {
		return
	}
	if err := d.m.AssignTyped(m.Return, ret, res); err != nil {
		Logger().Error("ptrcall result unencodable", zap.Stringer("method", m), zap.Error(err))
	}
}

// GetVirtual returns the override of virtual method name for the class
// named by userdata, or nil when the class keeps the native default.
func (d *Dispatcher) GetVirtual(userdata, name abi.Ptr) abi.ClassCallVirtual {
	defer recoverHook("get_virtual", zap.Stringer("userdata", userdata))

	c, err := d.reg.ClassByUserdata(userdata)
	if err != nil {
		Logger().Error("get_virtual for unknown class", zap.Error(err))
		return nil
	}
	n, ok := d.name(name)
	if !ok {
		return nil
	}
	m, ok := c.VirtualMethod(n)
	if !ok {
		return nil
	}

	d.mu.RLock()
	fn, ok := d.virtuals[m]
	d.mu.RUnlock()
	if ok {
		return fn
	}
	fn = func(instance abi.Ptr, args []abi.Ptr, ret abi.Ptr) {
		d.CallVirtual(m, instance, args, ret)
	}
	d.mu.Lock()
	if cached, ok := d.virtuals[m]; ok {
		fn = cached
	} else {
		d.virtuals[m] = fn
	}
	d.mu.Unlock()
	return fn
}

// CallVirtual runs a virtual override with typed arguments.
func (d *Dispatcher) CallVirtual(m *classdb.Method, instance abi.Ptr, args []abi.Ptr, ret abi.Ptr) {
	defer recoverHook("call_virtual", zap.Stringer("method", m))
	d.ptrcall(m, instance, args, ret)
}

// Prune drops cached virtual closures of classes no longer registered.
func (d *Dispatcher) Prune() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for m := range d.virtuals {
		if c, ok := d.reg.Class(m.Class.Name); !ok || c != m.Class {
			delete(d.virtuals, m)
		}
	}
}
