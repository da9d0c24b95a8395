package hostsim

import (
	"encoding/binary"

	"github.com/wippyai/gdext-bridge/abi"
)

const maxHashDepth = 100

func (h *Host) installVariants(t *abi.InterfaceTable) {
	t.VariantNewCopy = func(dst, src abi.Ptr) {
		h.store(dst, h.dup(h.load(src)))
	}
	t.VariantNewNil = func(dst abi.Ptr) {
		h.store(dst, nilVal)
	}
	t.VariantDestroy = func(self abi.Ptr) {
		h.destroySlot(self)
	}

	t.VariantCall = func(self, method abi.Ptr, args []abi.Ptr, ret abi.Ptr, ce *abi.CallError) {
		name := h.typedString(method)
		s := h.load(self)
		if s.t != abi.VariantTypeObject {
			h.callBuiltin(self, name, args, ret, ce)
			return
		}
		o := h.object(s.objectPtr())
		if o == nil {
			h.store(ret, nilVal)
			h.putCallError(ce, abi.CallErrorInstanceIsNull, 0, 0)
			return
		}
		m := o.effectiveClass().findMethod(name)
		if m == nil {
			h.store(ret, nilVal)
			h.putCallError(ce, abi.CallErrorInvalidMethod, 0, 0)
			return
		}
		h.table.ObjectMethodBindCall(m.bind, o.ptr, args, ret, ce)
	}

	t.VariantConstruct = func(vt abi.VariantType, ret abi.Ptr, args []abi.Ptr, ce *abi.CallError) {
		h.putCallError(ce, abi.CallOK, 0, 0)
		v, code := h.constructVariant(vt, args)
		if code.Error != abi.CallOK && ce != nil {
			*ce = code
		}
		h.store(ret, v)
	}

	t.VariantEvaluate = func(op abi.VariantOperator, a, b, ret abi.Ptr) bool {
		right := nilVal
		if !b.IsNull() {
			right = h.load(b)
		}
		v, ok := h.evaluate(op, h.load(a), right)
		h.store(ret, v)
		return ok
	}

	t.VariantHash = func(self abi.Ptr) int64 {
		return int64(h.hash(h.load(self), maxHashDepth))
	}
	t.VariantRecursiveHash = func(self abi.Ptr, depth int64) int64 {
		return int64(h.hash(h.load(self), int(depth)))
	}
	t.VariantHashCompare = func(self, other abi.Ptr) bool {
		a, b := h.load(self), h.load(other)
		return a.t == b.t && h.equal(a, b)
	}
	t.VariantBooleanize = func(self abi.Ptr) bool {
		return h.booleanize(h.load(self))
	}
	t.VariantDuplicate = func(self, ret abi.Ptr, deep bool) {
		h.store(ret, h.duplicate(h.load(self), deep))
	}
	t.VariantStringify = func(self, ret abi.Ptr) {
		h.putString(ret, h.stringify(h.load(self)))
	}
	t.VariantGetType = func(self abi.Ptr) abi.VariantType {
		return h.load(self).t
	}
	t.VariantHasMethod = func(self, method abi.Ptr) bool {
		name := h.typedString(method)
		s := h.load(self)
		if s.t == abi.VariantTypeObject {
			o := h.object(s.objectPtr())
			return o != nil && o.effectiveClass().findMethod(name) != nil
		}
		_, ok := h.builtin(s.t, name)
		return ok
	}
	t.VariantCanConvert = canConvert
	t.VariantCanConvertStrict = canConvertStrict

	t.GetVariantFromTypeConstructor = func(vt abi.VariantType) abi.VariantFromTypeConstructor {
		if !vt.Valid() || vt == abi.VariantTypeNil {
			return nil
		}
		return func(dst, src abi.Ptr) {
			h.store(dst, h.dup(h.readTyped(vt, src)))
		}
	}
	t.GetVariantToTypeConstructor = func(vt abi.VariantType) abi.TypeFromVariantConstructor {
		if !vt.Valid() || vt == abi.VariantTypeNil {
			return nil
		}
		return func(dst, src abi.Ptr) {
			v := h.load(src)
			if v.t != vt {
				h.fail("variant of type %s read as %s", v.t, vt)
				h.writeTyped(vt, dst, h.defaultVal(vt))
				return
			}
			h.writeTyped(vt, dst, h.dup(v))
		}
	}
}

// constructVariant builds a value of vt from Variant arguments: no
// arguments gives the default, one argument converts, and vector kinds
// accept one number per component.
func (h *Host) constructVariant(vt abi.VariantType, args []abi.Ptr) (val, abi.CallError) {
	if !vt.Valid() {
		return nilVal, abi.CallError{Error: abi.CallErrorInvalidMethod}
	}
	switch len(args) {
	case 0:
		return h.defaultVal(vt), abi.CallError{}
	case 1:
		v, ok := h.convert(h.load(args[0]), vt)
		if !ok {
			return nilVal, abi.CallError{Error: abi.CallErrorInvalidArgument, Expected: int32(vt)}
		}
		return v, abi.CallError{}
	}
	n := len(memberNames[vt])
	if n == 0 {
		return nilVal, abi.CallError{Error: abi.CallErrorInvalidMethod}
	}
	if len(args) != n {
		return nilVal, abi.CallError{Error: abi.CallErrorTooManyArguments, Expected: int32(n)}
	}
	out := h.defaultVal(vt)
	for i, a := range args {
		x := h.load(a)
		if !isNumber(x.t) {
			return nilVal, abi.CallError{Error: abi.CallErrorInvalidArgument, Argument: int32(i), Expected: int32(abi.VariantTypeFloat)}
		}
		out, _ = withComponent(out, i, x)
	}
	return out, abi.CallError{}
}

// packedElemType is the typed kind of one element of a packed array.
func packedElemType(t abi.VariantType) abi.VariantType {
	switch t {
	case abi.VariantTypePackedByteArray, abi.VariantTypePackedInt32Array, abi.VariantTypePackedInt64Array:
		return abi.VariantTypeInt
	case abi.VariantTypePackedFloat32Array, abi.VariantTypePackedFloat64Array:
		return abi.VariantTypeFloat
	case abi.VariantTypePackedStringArray:
		return abi.VariantTypeString
	case abi.VariantTypePackedVector2Array:
		return abi.VariantTypeVector2
	case abi.VariantTypePackedVector3Array:
		return abi.VariantTypeVector3
	case abi.VariantTypePackedColorArray:
		return abi.VariantTypeColor
	}
	return abi.VariantTypeNil
}

// indexedType is the typed kind exchanged by the indexed ptr accessors of t.
func indexedType(t abi.VariantType) (abi.VariantType, bool) {
	switch {
	case t == abi.VariantTypeArray:
		return abi.VariantTypeNil, true
	case abi.IsPacked(t):
		return packedElemType(t), true
	case isIntVector(t):
		return abi.VariantTypeInt, true
	case len(memberNames[t]) > 0:
		return abi.VariantTypeFloat, true
	}
	return abi.VariantTypeNil, false
}

func (h *Host) installPtrAccessors(t *abi.InterfaceTable) {
	t.VariantGetPtrOperatorEvaluator = func(op abi.VariantOperator, a, b abi.VariantType) abi.PtrOperatorEvaluator {
		if !h.supportsOperator(op, a, b) {
			return nil
		}
		return func(left, right, ret abi.Ptr) {
			l := h.readTyped(a, left)
			r := nilVal
			if b != abi.VariantTypeNil && !right.IsNull() {
				r = h.readTyped(b, right)
			}
			v, ok := h.evaluate(op, l, r)
			if !ok {
				h.fail("operator %d failed on %s and %s", op, a, b)
				return
			}
			h.assignTyped(v.t, ret, v)
		}
	}

	t.VariantGetPtrBuiltinMethod = func(vt abi.VariantType, method abi.Ptr, _ int64) abi.PtrBuiltInMethod {
		return h.ptrBuiltin(vt, h.typedString(method))
	}
	t.VariantGetPtrUtilityFunction = func(name abi.Ptr, _ int64) abi.PtrUtilityFunction {
		return h.ptrUtility(h.typedString(name))
	}

	t.VariantGetPtrConstructor = h.ptrConstructor
	t.VariantGetPtrDestructor = func(vt abi.VariantType) abi.PtrDestructor {
		if !vt.Valid() || vt == abi.VariantTypeNil || abi.IsPOD(vt) {
			return nil
		}
		return func(base abi.Ptr) {
			h.releaseValue(vt, h.read(base, abi.TypeSize(vt)))
			h.write(base, make([]byte, abi.TypeSize(vt)))
		}
	}

	t.VariantGetPtrGetter = func(vt abi.VariantType, member abi.Ptr) abi.PtrGetter {
		i := memberIndex(vt, h.typedString(member))
		if i < 0 {
			return nil
		}
		ct, _ := indexedType(vt)
		return func(base, ret abi.Ptr) {
			h.assignTyped(ct, ret, component(h.readTyped(vt, base), i))
		}
	}
	t.VariantGetPtrSetter = func(vt abi.VariantType, member abi.Ptr) abi.PtrSetter {
		i := memberIndex(vt, h.typedString(member))
		if i < 0 {
			return nil
		}
		ct, _ := indexedType(vt)
		return func(base, value abi.Ptr) {
			out, _ := withComponent(h.readTyped(vt, base), i, h.readTyped(ct, value))
			h.write(base, out.b)
		}
	}

	t.VariantGetPtrIndexedGetter = func(vt abi.VariantType) abi.PtrIndexedGetter {
		et, ok := indexedType(vt)
		if !ok {
			return nil
		}
		return func(base abi.Ptr, index int64, ret abi.Ptr) {
			v, valid, oob := h.getIndexed(h.readTyped(vt, base), index)
			if !valid || oob {
				h.fail("index %d out of bounds for %s", index, vt)
				return
			}
			h.assignTyped(et, ret, v)
		}
	}
	t.VariantGetPtrIndexedSetter = func(vt abi.VariantType) abi.PtrIndexedSetter {
		et, ok := indexedType(vt)
		if !ok {
			return nil
		}
		return func(base abi.Ptr, index int64, value abi.Ptr) {
			self := h.readTyped(vt, base)
			n, _ := h.length(self)
			if index < 0 {
				index += int64(n)
			}
			if index < 0 || index >= int64(n) {
				h.fail("index %d out of bounds for %s", index, vt)
				return
			}
			v := h.readTyped(et, value)
			switch {
			case vt == abi.VariantTypeArray:
				c := h.container(le32(self.b))
				h.assign(c.at(int(index)), h.dup(v))
			case abi.IsPacked(vt):
				h.packedSet(h.container(le32(self.b)), int(index), v)
			default:
				out, _ := withComponent(self, int(index), v)
				h.write(base, out.b)
			}
		}
	}

	t.VariantGetPtrKeyedGetter = func(vt abi.VariantType) abi.PtrKeyedGetter {
		if vt != abi.VariantTypeDictionary {
			return nil
		}
		return func(base, key, ret abi.Ptr) {
			v, ok := h.getKeyed(h.readTyped(vt, base), h.dup(h.load(key)))
			if !ok {
				h.fail("key not found")
			}
			h.assign(ret, v)
		}
	}
	t.VariantGetPtrKeyedSetter = func(vt abi.VariantType) abi.PtrKeyedSetter {
		if vt != abi.VariantTypeDictionary {
			return nil
		}
		return func(base, key, value abi.Ptr) {
			h.setKeyed(h.readTyped(vt, base), h.load(key), h.load(value))
		}
	}

	packedIndex := func(kind abi.VariantType) func(self abi.Ptr, index int64) abi.Ptr {
		return func(self abi.Ptr, index int64) abi.Ptr {
			c := h.typedContainer(self)
			if c == nil || c.kind != kind {
				h.fail("operator[]: not a %s", kind)
				return abi.Null
			}
			if index < 0 || index >= int64(c.n) {
				h.fail("index %d out of bounds (size %d)", index, c.n)
				return abi.Null
			}
			return c.at(int(index))
		}
	}
	t.PackedByteArrayOperatorIndex = packedIndex(abi.VariantTypePackedByteArray)
	t.PackedInt32ArrayOperatorIndex = packedIndex(abi.VariantTypePackedInt32Array)
	t.PackedInt64ArrayOperatorIndex = packedIndex(abi.VariantTypePackedInt64Array)
	t.PackedFloat32ArrayOperatorIndex = packedIndex(abi.VariantTypePackedFloat32Array)
	t.PackedFloat64ArrayOperatorIndex = packedIndex(abi.VariantTypePackedFloat64Array)
	t.PackedStringArrayOperatorIndex = packedIndex(abi.VariantTypePackedStringArray)
	t.PackedVector2ArrayOperatorIndex = packedIndex(abi.VariantTypePackedVector2Array)
	t.PackedVector3ArrayOperatorIndex = packedIndex(abi.VariantTypePackedVector3Array)
	t.PackedColorArrayOperatorIndex = packedIndex(abi.VariantTypePackedColorArray)
	t.ArrayOperatorIndex = packedIndex(abi.VariantTypeArray)
	t.DictionaryOperatorIndex = func(self, key abi.Ptr) abi.Ptr {
		c := h.typedContainer(self)
		if c == nil || c.kind != abi.VariantTypeDictionary {
			h.fail("operator[]: not a Dictionary")
			return abi.Null
		}
		return h.dictSlot(c, h.load(key), true)
	}
}

// supportsOperator probes op with sample operands of the given kinds.
func (h *Host) supportsOperator(op abi.VariantOperator, a, b abi.VariantType) bool {
	if !a.Valid() || !b.Valid() {
		return false
	}
	sample := func(t abi.VariantType) val {
		switch t {
		case abi.VariantTypeInt:
			return vInt(1)
		case abi.VariantTypeFloat:
			return vFloat(1)
		}
		return h.defaultVal(t)
	}
	x, y := sample(a), sample(b)
	v, ok := h.evaluate(op, x, y)
	h.drop(v)
	h.drop(x)
	h.drop(y)
	return ok
}

// ptrConstructor returns constructor index of vt: 0 is the default, 1 the
// copy, and higher indices convert between related kinds.
func (h *Host) ptrConstructor(vt abi.VariantType, index int32) abi.PtrConstructor {
	if !vt.Valid() || vt == abi.VariantTypeNil {
		return nil
	}
	switch index {
	case 0:
		return func(base abi.Ptr, _ []abi.Ptr) {
			h.writeTyped(vt, base, h.defaultVal(vt))
		}
	case 1:
		return func(base abi.Ptr, args []abi.Ptr) {
			h.writeTyped(vt, base, h.dup(h.readTyped(vt, args[0])))
		}
	}

	fromString := func(base abi.Ptr, args []abi.Ptr) {
		h.putString(base, h.typedString(args[0]))
	}
	switch vt {
	case abi.VariantTypeString:
		if index == 2 || index == 3 {
			return fromString
		}
	case abi.VariantTypeStringName, abi.VariantTypeNodePath:
		if index == 2 {
			return fromString
		}
	case abi.VariantTypeCallable, abi.VariantTypeSignal:
		if index == 2 {
			return func(base abi.Ptr, args []abi.Ptr) {
				b := make([]byte, abi.TypeSize(vt))
				binary.LittleEndian.PutUint32(b, h.u32(args[0]))
				binary.LittleEndian.PutUint32(b[4:], h.newString(h.typedString(args[1])))
				h.write(base, b)
			}
		}
	}
	return nil
}
