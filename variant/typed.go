package variant

import (
	"github.com/wippyai/gdext-bridge/abi"
	"github.com/wippyai/gdext-bridge/errors"
)

// construct builds the default value of t in uninitialized typed storage.
func (m *Marshaler) construct(t abi.VariantType, p abi.Ptr) error {
	if t == abi.VariantTypeNil {
		m.table.VariantNewNil(p)
		return nil
	}
	if c := m.ctors[t]; c != nil {
		c(p, nil)
		return nil
	}
	if abi.IsPOD(t) {
		return m.mem.Write(uint32(p), make([]byte, abi.TypeSize(t)))
	}
	return errors.Unsupported(errors.PhaseMarshal, "default constructor of "+t.String())
}

// DestroyTyped destroys typed storage of t in place. Plain-data kinds have
// no destructor.
func (m *Marshaler) DestroyTyped(t abi.VariantType, p abi.Ptr) {
	if t == abi.VariantTypeNil {
		m.table.VariantDestroy(p)
		return
	}
	if d := m.dtors[t]; d != nil {
		d(p)
	}
}

// ReadTyped decodes typed storage of t. t Nil reads a full Variant.
func (m *Marshaler) ReadTyped(t abi.VariantType, p abi.Ptr) (any, error) {
	if p.IsNull() {
		return nil, errors.NilPointer(errors.PhaseMarshal, "typed storage of "+t.String())
	}
	switch {
	case t == abi.VariantTypeNil:
		return m.DecodeAny(p)
	case abi.IsPOD(t):
		b, err := m.mem.Read(uint32(p), abi.TypeSize(t))
		if err != nil {
			return nil, errors.Wrap(errors.PhaseMarshal, errors.KindOutOfBounds, err, "read "+t.String())
		}
		return decodePOD(t, b)
	case t == abi.VariantTypeString:
		return m.String(p, UTF8)
	case t == abi.VariantTypeStringName:
		s, err := m.stringFrom(abi.VariantTypeStringName, p)
		return StringName(s), err
	case t == abi.VariantTypeNodePath:
		s, err := m.stringFrom(abi.VariantTypeNodePath, p)
		return NodePath(s), err
	case t == abi.VariantTypeArray:
		return m.readArray(p)
	case t == abi.VariantTypeDictionary:
		return m.readDictionary(p)
	case abi.IsPacked(t):
		return m.readPacked(t, p)
	case t == abi.VariantTypeCallable:
		obj, name, err := m.readNamed(t, p, "get_method")
		return Callable{Object: obj, Method: name}, err
	case t == abi.VariantTypeSignal:
		obj, name, err := m.readNamed(t, p, "get_name")
		return Signal{Object: obj, Name: name}, err
	}
	return nil, errors.Unsupported(errors.PhaseMarshal, "reading "+t.String())
}

// WriteTyped constructs v as typed storage of t in uninitialized p. On
// error p is left uninitialized.
func (m *Marshaler) WriteTyped(t abi.VariantType, p abi.Ptr, v any) error {
	if p.IsNull() {
		return errors.NilPointer(errors.PhaseMarshal, "typed storage of "+t.String())
	}
	switch {
	case t == abi.VariantTypeNil:
		return m.EncodeInto(p, v)
	case abi.IsPOD(t):
		b, err := encodePOD(t, v)
		if err != nil {
			return err
		}
		return m.mem.Write(uint32(p), b)
	case t == abi.VariantTypeString, t == abi.VariantTypeStringName, t == abi.VariantTypeNodePath:
		s, ok := stringValue(v)
		if !ok {
			return m.mismatch(v, t)
		}
		return m.newStringKind(t, p, s)
	case t == abi.VariantTypeArray:
		arr, ok := arrayValue(v)
		if !ok {
			return m.mismatch(v, t)
		}
		return m.writeArray(p, arr)
	case t == abi.VariantTypeDictionary:
		d, ok := v.(Dictionary)
		if !ok {
			return m.mismatch(v, t)
		}
		return m.writeDictionary(p, d)
	case abi.IsPacked(t):
		return m.writePacked(t, p, v)
	case t == abi.VariantTypeCallable:
		c, ok := v.(Callable)
		if !ok {
			return m.mismatch(v, t)
		}
		return m.writeNamed(t, p, c.Object, c.Method)
	case t == abi.VariantTypeSignal:
		sg, ok := v.(Signal)
		if !ok {
			return m.mismatch(v, t)
		}
		return m.writeNamed(t, p, sg.Object, sg.Name)
	}
	return errors.Unsupported(errors.PhaseMarshal, "writing "+t.String())
}

// AssignTyped replaces initialized typed storage of t with v. On error p
// holds the default value of t.
func (m *Marshaler) AssignTyped(t abi.VariantType, p abi.Ptr, v any) error {
	m.DestroyTyped(t, p)
	if err := m.WriteTyped(t, p, v); err != nil {
		if cerr := m.construct(t, p); cerr != nil {
			Logger().Error("typed storage left uninitialized")
		}
		return err
	}
	return nil
}

func (m *Marshaler) mismatch(v any, t abi.VariantType) error {
	k, ok := KindOf(v)
	if !ok {
		return errors.New(errors.PhaseMarshal, errors.KindUnsupported).
			Value(v).
			Detail("no host kind for %T, want %s", v, t).
			Build()
	}
	return errors.TypeMismatch(errors.PhaseMarshal, k, t)
}

func stringValue(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case StringName:
		return string(x), true
	case NodePath:
		return string(x), true
	}
	return "", false
}

func arrayValue(v any) (Array, bool) {
	switch x := v.(type) {
	case Array:
		return x, true
	case []any:
		return Array(x), true
	case nil:
		return nil, true
	}
	return nil, false
}
