package variant

import (
	"sync"

	"go.uber.org/zap"

	gdextbridge "github.com/wippyai/gdext-bridge"
	"github.com/wippyai/gdext-bridge/abi"
	"github.com/wippyai/gdext-bridge/errors"
)

type builtinKey struct {
	kind abi.VariantType
	name string
}

// Marshaler converts values across the boundary using one interface table.
// It is safe for concurrent use.
type Marshaler struct {
	table *abi.InterfaceTable
	mem   gdextbridge.Memory

	fromType [abi.VariantTypeMax]abi.VariantFromTypeConstructor
	toType   [abi.VariantTypeMax]abi.TypeFromVariantConstructor
	ctors    [abi.VariantTypeMax]abi.PtrConstructor
	dtors    [abi.VariantTypeMax]abi.PtrDestructor

	mu        sync.RWMutex
	builtins  map[builtinKey]abi.PtrBuiltInMethod
	utilities map[string]abi.PtrUtilityFunction
}

// New resolves the typed accessors of table.
func New(table *abi.InterfaceTable) (*Marshaler, error) {
	if table == nil {
		return nil, errors.NotInitialized("variant marshaler")
	}
	if table.Memory == nil || table.MemAlloc == nil {
		return nil, errors.NilPointer(errors.PhaseInit, "interface table memory")
	}
	m := &Marshaler{
		table:     table,
		mem:       table.Memory,
		builtins:  make(map[builtinKey]abi.PtrBuiltInMethod),
		utilities: make(map[string]abi.PtrUtilityFunction),
	}
	for t := abi.VariantTypeBool; t < abi.VariantTypeMax; t++ {
		m.fromType[t] = table.GetVariantFromTypeConstructor(t)
		m.toType[t] = table.GetVariantToTypeConstructor(t)
		m.ctors[t] = table.VariantGetPtrConstructor(t, 0)
		m.dtors[t] = table.VariantGetPtrDestructor(t)
		if m.fromType[t] == nil || m.toType[t] == nil {
			return nil, errors.New(errors.PhaseInit, errors.KindUnsupported).
				Detail("host has no variant constructors for %s", t).
				Build()
		}
	}
	return m, nil
}

// Table returns the interface table m was built from.
func (m *Marshaler) Table() *abi.InterfaceTable { return m.table }

// Memory returns the host address space.
func (m *Marshaler) Memory() gdextbridge.Memory { return m.mem }

func (m *Marshaler) alloc(n uint32) (abi.Ptr, error) {
	p := m.table.MemAlloc(n)
	if p.IsNull() {
		return abi.Null, errors.AllocationFailed(errors.PhaseMarshal, n)
	}
	return p, nil
}

// NewSlot allocates a nil Variant slot owned by the caller.
func (m *Marshaler) NewSlot() (abi.Ptr, error) {
	p, err := m.alloc(abi.VariantSize)
	if err != nil {
		return abi.Null, err
	}
	m.table.VariantNewNil(p)
	return p, nil
}

// Destroy destroys the Variant in slot and frees the slot.
func (m *Marshaler) Destroy(slot abi.Ptr) {
	if slot.IsNull() {
		return
	}
	m.table.VariantDestroy(slot)
	m.table.MemFree(slot)
}

// Copy constructs a copy of src in the uninitialized dst.
func (m *Marshaler) Copy(dst, src abi.Ptr) {
	m.table.VariantNewCopy(dst, src)
}

// Type returns the runtime kind of the Variant in slot.
func (m *Marshaler) Type(slot abi.Ptr) abi.VariantType {
	return m.table.VariantGetType(slot)
}

// Encode returns a new slot holding v. The caller releases it with Destroy.
func (m *Marshaler) Encode(v any) (abi.Ptr, error) {
	p, err := m.alloc(abi.VariantSize)
	if err != nil {
		return abi.Null, err
	}
	if err := m.EncodeInto(p, v); err != nil {
		m.table.MemFree(p)
		return abi.Null, err
	}
	return p, nil
}

// EncodeInto constructs v in the uninitialized slot dst. On error dst is
// left uninitialized.
func (m *Marshaler) EncodeInto(dst abi.Ptr, v any) error {
	t, ok := KindOf(v)
	if !ok {
		return errors.New(errors.PhaseMarshal, errors.KindUnsupported).
			Value(v).
			Detail("no host kind for %T", v).
			Build()
	}
	if t == abi.VariantTypeNil {
		m.table.VariantNewNil(dst)
		return nil
	}

	s := newScratch()
	defer m.release(s)
	tmp, err := m.scratchTyped(s, t, v)
	if err != nil {
		return err
	}
	m.fromType[t](dst, tmp)
	return nil
}

// Assign replaces the Variant in the initialized slot dst with v. On error
// dst holds nil.
func (m *Marshaler) Assign(dst abi.Ptr, v any) error {
	m.table.VariantDestroy(dst)
	if err := m.EncodeInto(dst, v); err != nil {
		m.table.VariantNewNil(dst)
		return err
	}
	return nil
}

// Decode reads slot as kind expected. A slot of another kind is converted
// when the host allows it strictly, otherwise the result is a type
// mismatch. expected Nil decodes the slot's own kind.
func (m *Marshaler) Decode(slot abi.Ptr, expected abi.VariantType) (any, error) {
	actual := m.table.VariantGetType(slot)
	if expected == abi.VariantTypeNil {
		expected = actual
	}
	if expected == abi.VariantTypeNil {
		return nil, nil
	}
	if !expected.Valid() {
		return nil, errors.InvalidInput(errors.PhaseMarshal, "invalid variant kind "+expected.String())
	}

	s := newScratch()
	defer m.release(s)

	src := slot
	if actual != expected {
		if !m.table.VariantCanConvertStrict(actual, expected) {
			return nil, errors.TypeMismatch(errors.PhaseMarshal, actual, expected)
		}
		conv, err := m.scratchNil(s)
		if err != nil {
			return nil, err
		}
		var ce abi.CallError
		m.table.VariantConstruct(expected, conv, []abi.Ptr{slot}, &ce)
		if !ce.OK() {
			return nil, errors.New(errors.PhaseMarshal, errors.KindTypeMismatch).
				Value(ce).
				Detail("cannot convert %s to %s: %s", actual, expected, ce).
				Build()
		}
		Logger().Debug("converted variant",
			zap.Stringer("from", actual),
			zap.Stringer("to", expected))
		src = conv
	}

	typed, err := m.scratchAlloc(s, abi.TypeSize(expected))
	if err != nil {
		return nil, err
	}
	m.toType[expected](typed, src)
	s.constructed(typed, expected, false)
	return m.ReadTyped(expected, typed)
}

// DecodeAny reads slot as its own kind.
func (m *Marshaler) DecodeAny(slot abi.Ptr) (any, error) {
	return m.Decode(slot, abi.VariantTypeNil)
}
