package classdb

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/wippyai/gdext-bridge/abi"
	"github.com/wippyai/gdext-bridge/errors"
	"github.com/wippyai/gdext-bridge/resource"
	"github.com/wippyai/gdext-bridge/variant"
)

var (
	errorType  = reflect.TypeFor[error]()
	anySlice   = reflect.TypeFor[[]any]()
	objectType = reflect.TypeFor[variant.Object]()
)

// ObjectResolver maps a host object argument onto Go type t, typically the
// instance type of an extension class.
type ObjectResolver func(obj abi.Ptr, t reflect.Type) (reflect.Value, error)

// MethodOption adjusts a method at registration.
type MethodOption func(*Method)

// ArgNames names the fixed arguments in order.
func ArgNames(names ...string) MethodOption {
	return func(m *Method) { m.ArgNames = names }
}

// Defaults supplies values for the trailing arguments.
func Defaults(values ...any) MethodOption {
	return func(m *Method) { m.Defaults = values }
}

// Const marks a method that does not mutate its instance. The host refuses
// other methods on read-only receivers with CallErrorMethodNotConst.
func Const() MethodOption {
	return func(m *Method) { m.Flags |= abi.MethodFlagConst }
}

// Editor marks an editor-only method.
func Editor() MethodOption {
	return func(m *Method) { m.Flags |= abi.MethodFlagEditor }
}

// ArgumentError reports an argument that could not be converted.
type ArgumentError struct {
	Index    int
	Expected abi.VariantType
	Err      error
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("argument %d: expected %s: %v", e.Index, e.Expected, e.Err)
}

func (e *ArgumentError) Unwrap() error { return e.Err }

// Method is a Go function bound as a class method.
type Method struct {
	Name     string
	Class    *Class
	Flags    abi.MethodFlags
	Args     []abi.VariantType
	ArgMeta  []abi.ArgumentMetadata
	ArgNames []string
	Defaults []any

	Return     abi.VariantType
	ReturnMeta abi.ArgumentMetadata
	HasReturn  bool

	fn           reflect.Value
	recv         reflect.Type
	params       []reflect.Type
	returnsError bool
	resolve      ObjectResolver

	handle       resource.Handle
	defaultSlots []abi.Ptr
}

// Userdata returns the method userdata handed to the host.
func (m *Method) Userdata() abi.Ptr { return abi.Ptr(m.handle) }

// Hash returns the signature hash the host checks when the method bind is
// looked up.
func (m *Method) Hash() int64 {
	ret := abi.VariantTypeNil
	if m.HasReturn {
		ret = m.Return
	}
	return abi.MethodHash(ret, m.Args...)
}

// IsVararg reports whether trailing arguments are collected into ...any.
func (m *Method) IsVararg() bool { return m.Flags.Has(abi.MethodFlagVararg) }

// IsStatic reports whether the method takes no instance.
func (m *Method) IsStatic() bool { return m.Flags.Has(abi.MethodFlagStatic) }

// MinArgs is the fewest arguments a call may pass.
func (m *Method) MinArgs() int { return len(m.Args) - len(m.Defaults) }

// MaxArgs is the most arguments a call may pass, or -1 for vararg methods.
func (m *Method) MaxArgs() int {
	if m.IsVararg() {
		return -1
	}
	return len(m.Args)
}

// Default returns the value substituted for a missing argument i.
func (m *Method) Default(i int) (any, bool) {
	j := i - m.MinArgs()
	if j < 0 || j >= len(m.Defaults) {
		return nil, false
	}
	return m.Defaults[j], true
}

func (m *Method) String() string {
	return m.Class.Name + "." + m.Name
}

// bind inspects fn and fills the signature. A function whose first
// parameter is the class instance type is an instance method.
func bind(c *Class, name string, fn any) (*Method, error) {
	v := reflect.ValueOf(fn)
	if !v.IsValid() || v.Kind() != reflect.Func {
		return nil, errors.InvalidInput(errors.PhaseRegister, fmt.Sprintf("%s.%s: not a function (%T)", c.Name, name, fn))
	}
	t := v.Type()
	m := &Method{
		Name:  name,
		Class: c,
		Flags: abi.MethodFlagsDefault,
		fn:    v,
	}

	in := 0
	if t.NumIn() > 0 && c.Type != nil && receiverOf(c, t.In(0)) {
		m.recv = t.In(0)
		in = 1
	} else {
		m.Flags |= abi.MethodFlagStatic
	}
	if strings.HasPrefix(name, "_") {
		if m.recv == nil {
			return nil, errors.InvalidInput(errors.PhaseRegister, fmt.Sprintf("%s.%s: virtual methods need a receiver", c.Name, name))
		}
		m.Flags |= abi.MethodFlagVirtual
	}

	last := t.NumIn()
	if t.IsVariadic() {
		if t.In(last-1) != anySlice {
			return nil, errors.InvalidInput(errors.PhaseRegister, fmt.Sprintf("%s.%s: variadic parameter must be ...any", c.Name, name))
		}
		m.Flags |= abi.MethodFlagVararg
		last--
	}
	for i := in; i < last; i++ {
		p := t.In(i)
		k, ok := variant.KindOfType(p)
		if !ok {
			return nil, errors.Unsupported(errors.PhaseRegister, fmt.Sprintf("%s.%s: parameter %d of type %s", c.Name, name, i-in, p))
		}
		m.params = append(m.params, p)
		m.Args = append(m.Args, k)
		m.ArgMeta = append(m.ArgMeta, metadataOf(p))
	}

	switch t.NumOut() {
	case 0:
	case 1:
		if t.Out(0) == errorType {
			m.returnsError = true
			break
		}
		if err := m.setReturn(t.Out(0)); err != nil {
			return nil, err
		}
	case 2:
		if t.Out(1) != errorType {
			return nil, errors.Unsupported(errors.PhaseRegister, fmt.Sprintf("%s.%s: second result must be error", c.Name, name))
		}
		m.returnsError = true
		if err := m.setReturn(t.Out(0)); err != nil {
			return nil, err
		}
	default:
		return nil, errors.Unsupported(errors.PhaseRegister, fmt.Sprintf("%s.%s: %d results", c.Name, name, t.NumOut()))
	}
	return m, nil
}

func (m *Method) setReturn(t reflect.Type) error {
	k, ok := variant.KindOfType(t)
	if !ok {
		return errors.Unsupported(errors.PhaseRegister, fmt.Sprintf("%s: result of type %s", m, t))
	}
	m.HasReturn = true
	m.Return = k
	m.ReturnMeta = metadataOf(t)
	return nil
}

// receiverOf reports whether t is the instance type of c or of one of its
// extension ancestors.
func receiverOf(c *Class, t reflect.Type) bool {
	for k := c; k != nil; k = k.Base {
		if k.Type == t {
			return true
		}
	}
	return false
}

func metadataOf(t reflect.Type) abi.ArgumentMetadata {
	switch t.Kind() {
	case reflect.Int8:
		return abi.ArgumentMetadataIntIsInt8
	case reflect.Int16:
		return abi.ArgumentMetadataIntIsInt16
	case reflect.Int32:
		return abi.ArgumentMetadataIntIsInt32
	case reflect.Int, reflect.Int64:
		return abi.ArgumentMetadataIntIsInt64
	case reflect.Uint8:
		return abi.ArgumentMetadataIntIsUint8
	case reflect.Uint16:
		return abi.ArgumentMetadataIntIsUint16
	case reflect.Uint32:
		return abi.ArgumentMetadataIntIsUint32
	case reflect.Uint, reflect.Uint64:
		return abi.ArgumentMetadataIntIsUint64
	case reflect.Float32:
		return abi.ArgumentMetadataRealIsFloat
	case reflect.Float64:
		return abi.ArgumentMetadataRealIsDouble
	}
	return abi.ArgumentMetadataNone
}

// Invoke calls the method with decoded arguments. Missing trailing
// arguments must already be filled from Defaults. recv is ignored for
// static methods.
func (m *Method) Invoke(recv any, args []any) (any, error) {
	in := make([]reflect.Value, 0, len(args)+1)
	if m.recv != nil {
		r, err := m.receiver(recv)
		if err != nil {
			return nil, err
		}
		in = append(in, r)
	}
	if len(args) < len(m.params) {
		return nil, errors.New(errors.PhaseCall, errors.KindInvalidInput).
			Class(m.Class.Name).
			Member(m.Name).
			Detail("%d arguments, need %d", len(args), len(m.params)).
			Build()
	}
	for i, p := range m.params {
		v, err := m.convert(args[i], p)
		if err != nil {
			return nil, &ArgumentError{Index: i, Expected: m.Args[i], Err: err}
		}
		in = append(in, v)
	}
	if m.IsVararg() {
		rest := args[len(m.params):]
		for _, a := range rest {
			if a == nil {
				in = append(in, reflect.Zero(anySlice.Elem()))
				continue
			}
			in = append(in, reflect.ValueOf(a))
		}
	} else if len(args) > len(m.params) {
		return nil, errors.New(errors.PhaseCall, errors.KindInvalidInput).
			Class(m.Class.Name).
			Member(m.Name).
			Detail("%d arguments, accepts %d", len(args), len(m.params)).
			Build()
	}

	out := m.fn.Call(in)
	var err error
	if m.returnsError {
		if e := out[len(out)-1]; !e.IsNil() {
			err = e.Interface().(error)
		}
		out = out[:len(out)-1]
	}
	if len(out) == 0 {
		return nil, err
	}
	return result(out[0]), err
}

// receiver finds the value of the receiver type in recv, following
// embedded parents when the method is declared on an ancestor.
func (m *Method) receiver(recv any) (reflect.Value, error) {
	if recv == nil {
		return reflect.Value{}, errors.NilPointer(errors.PhaseCall, m.String()+" receiver")
	}
	v := reflect.ValueOf(recv)
	for {
		if v.Type() == m.recv {
			return v, nil
		}
		if v.Kind() == reflect.Pointer && v.Type().Elem() == m.recv {
			return v.Elem(), nil
		}
		next, ok := embedded(v, m.recv)
		if !ok {
			return reflect.Value{}, errors.New(errors.PhaseCall, errors.KindTypeMismatch).
				Class(m.Class.Name).
				Member(m.Name).
				Detail("receiver %s is not %s", reflect.TypeOf(recv), m.recv).
				Build()
		}
		v = next
	}
}

// embedded returns the first embedded field of v that is, points to, or
// leads to want.
func embedded(v reflect.Value, want reflect.Type) (reflect.Value, bool) {
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return reflect.Value{}, false
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return reflect.Value{}, false
	}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.Anonymous {
			continue
		}
		fv := v.Field(i)
		if f.Type == want {
			return fv, true
		}
		if fv.CanAddr() && reflect.PointerTo(f.Type) == want {
			return fv.Addr(), true
		}
		if _, ok := embedded(fv, want); ok {
			if fv.CanAddr() && fv.Kind() == reflect.Struct {
				return fv.Addr(), true
			}
			return fv, true
		}
	}
	return reflect.Value{}, false
}

func (m *Method) convert(v any, t reflect.Type) (reflect.Value, error) {
	if obj, ok := v.(variant.Object); ok && t != objectType && t.Kind() != reflect.Interface {
		if obj.IsNull() {
			switch t.Kind() {
			case reflect.Pointer, reflect.Interface:
				return reflect.Zero(t), nil
			}
		}
		if m.resolve == nil {
			return reflect.Value{}, errors.Unsupported(errors.PhaseCall, "object argument without resolver")
		}
		return m.resolve(obj.Ptr, t)
	}
	return variant.Coerce(v, t)
}

// result unwraps a Go result to the value Encode accepts.
func result(v reflect.Value) any {
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Slice, reflect.Map:
		if v.IsNil() {
			return nil
		}
	}
	return v.Interface()
}
