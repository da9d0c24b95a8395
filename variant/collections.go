package variant

import (
	"math"

	"github.com/wippyai/gdext-bridge/abi"
	"github.com/wippyai/gdext-bridge/errors"
)

// builtin resolves and caches a builtin method of kind t.
func (m *Marshaler) builtin(t abi.VariantType, name string, hash int64) (abi.PtrBuiltInMethod, error) {
	key := builtinKey{kind: t, name: name}
	m.mu.RLock()
	fn, ok := m.builtins[key]
	m.mu.RUnlock()
	if ok {
		return fn, nil
	}

	sn, err := m.NewTyped(abi.VariantTypeStringName, name)
	if err != nil {
		return nil, err
	}
	fn = m.table.VariantGetPtrBuiltinMethod(t, sn, hash)
	m.FreeTyped(abi.VariantTypeStringName, sn)
	if fn == nil {
		return nil, errors.NotFound(errors.PhaseMarshal, t.String()+" method", name)
	}

	m.mu.Lock()
	m.builtins[key] = fn
	m.mu.Unlock()
	return fn, nil
}

// size calls the size builtin of an Array, Dictionary or packed array.
func (m *Marshaler) size(t abi.VariantType, p abi.Ptr) (int64, error) {
	fn, err := m.builtin(t, "size", hashIntConst)
	if err != nil {
		return 0, err
	}
	s := newScratch()
	defer m.release(s)
	ret, err := m.scratchDefault(s, abi.VariantTypeInt)
	if err != nil {
		return 0, err
	}
	fn(p, nil, ret)
	b, err := m.mem.Read(uint32(ret), 8)
	if err != nil {
		return 0, errors.Wrap(errors.PhaseMarshal, errors.KindOutOfBounds, err, "read size")
	}
	return int64(le.Uint64(b)), nil
}

func (m *Marshaler) resize(t abi.VariantType, p abi.Ptr, n int) error {
	fn, err := m.builtin(t, "resize", hashIntFromInt)
	if err != nil {
		return err
	}
	s := newScratch()
	defer m.release(s)
	arg, err := m.scratchTyped(s, abi.VariantTypeInt, int64(n))
	if err != nil {
		return err
	}
	ret, err := m.scratchDefault(s, abi.VariantTypeInt)
	if err != nil {
		return err
	}
	fn(p, []abi.Ptr{arg}, ret)
	return nil
}

func (m *Marshaler) readArray(p abi.Ptr) (Array, error) {
	n, err := m.size(abi.VariantTypeArray, p)
	if err != nil {
		return nil, err
	}
	out := make(Array, n)
	for i := range out {
		slot := m.table.ArrayOperatorIndex(p, int64(i))
		if slot.IsNull() {
			return nil, errors.OutOfBounds(errors.PhaseMarshal, int64(i), n)
		}
		if out[i], err = m.DecodeAny(slot); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// writeArray constructs an Array holding arr in the uninitialized p.
func (m *Marshaler) writeArray(p abi.Ptr, arr Array) error {
	if err := m.construct(abi.VariantTypeArray, p); err != nil {
		return err
	}
	err := m.fillArray(p, arr)
	if err != nil {
		m.DestroyTyped(abi.VariantTypeArray, p)
	}
	return err
}

func (m *Marshaler) fillArray(p abi.Ptr, arr Array) error {
	if len(arr) == 0 {
		return nil
	}
	if err := m.resize(abi.VariantTypeArray, p, len(arr)); err != nil {
		return err
	}
	for i, v := range arr {
		slot := m.table.ArrayOperatorIndex(p, int64(i))
		if slot.IsNull() {
			return errors.OutOfBounds(errors.PhaseMarshal, int64(i), int64(len(arr)))
		}
		if err := m.Assign(slot, v); err != nil {
			return err
		}
	}
	return nil
}

func (m *Marshaler) readDictionary(p abi.Ptr) (Dictionary, error) {
	keysFn, err := m.builtin(abi.VariantTypeDictionary, "keys", hashArrayConst)
	if err != nil {
		return nil, err
	}
	s := newScratch()
	defer m.release(s)
	keys, err := m.scratchDefault(s, abi.VariantTypeArray)
	if err != nil {
		return nil, err
	}
	keysFn(p, nil, keys)
	n, err := m.size(abi.VariantTypeArray, keys)
	if err != nil {
		return nil, err
	}

	out := make(Dictionary, 0, n)
	for i := int64(0); i < n; i++ {
		keySlot := m.table.ArrayOperatorIndex(keys, i)
		if keySlot.IsNull() {
			return nil, errors.OutOfBounds(errors.PhaseMarshal, i, n)
		}
		key, err := m.DecodeAny(keySlot)
		if err != nil {
			return nil, err
		}
		val, err := m.DecodeAny(m.table.DictionaryOperatorIndex(p, keySlot))
		if err != nil {
			return nil, err
		}
		out = append(out, Entry{Key: key, Value: val})
	}
	return out, nil
}

// writeDictionary constructs a Dictionary holding d in the uninitialized p.
func (m *Marshaler) writeDictionary(p abi.Ptr, d Dictionary) error {
	if err := m.construct(abi.VariantTypeDictionary, p); err != nil {
		return err
	}
	for _, e := range d {
		if err := m.setEntry(p, e); err != nil {
			m.DestroyTyped(abi.VariantTypeDictionary, p)
			return err
		}
	}
	return nil
}

func (m *Marshaler) setEntry(p abi.Ptr, e Entry) error {
	s := newScratch()
	defer m.release(s)
	key, err := m.scratchVariant(s, e.Key)
	if err != nil {
		return err
	}
	slot := m.table.DictionaryOperatorIndex(p, key)
	if slot.IsNull() {
		return errors.NilPointer(errors.PhaseMarshal, "dictionary slot")
	}
	return m.Assign(slot, e.Value)
}

func (m *Marshaler) packedIndex(t abi.VariantType) func(self abi.Ptr, index int64) abi.Ptr {
	switch t {
	case abi.VariantTypePackedByteArray:
		return m.table.PackedByteArrayOperatorIndex
	case abi.VariantTypePackedInt32Array:
		return m.table.PackedInt32ArrayOperatorIndex
	case abi.VariantTypePackedInt64Array:
		return m.table.PackedInt64ArrayOperatorIndex
	case abi.VariantTypePackedFloat32Array:
		return m.table.PackedFloat32ArrayOperatorIndex
	case abi.VariantTypePackedFloat64Array:
		return m.table.PackedFloat64ArrayOperatorIndex
	case abi.VariantTypePackedStringArray:
		return m.table.PackedStringArrayOperatorIndex
	case abi.VariantTypePackedVector2Array:
		return m.table.PackedVector2ArrayOperatorIndex
	case abi.VariantTypePackedVector3Array:
		return m.table.PackedVector3ArrayOperatorIndex
	case abi.VariantTypePackedColorArray:
		return m.table.PackedColorArrayOperatorIndex
	}
	return nil
}

// packedElemSize is the typed storage width of one element of t.
func packedElemSize(t abi.VariantType) uint32 {
	switch t {
	case abi.VariantTypePackedByteArray:
		return 1
	case abi.VariantTypePackedInt32Array, abi.VariantTypePackedFloat32Array:
		return 4
	case abi.VariantTypePackedInt64Array, abi.VariantTypePackedFloat64Array:
		return 8
	case abi.VariantTypePackedStringArray:
		return abi.TypeSize(abi.VariantTypeString)
	case abi.VariantTypePackedVector2Array:
		return abi.TypeSize(abi.VariantTypeVector2)
	case abi.VariantTypePackedVector3Array:
		return abi.TypeSize(abi.VariantTypeVector3)
	case abi.VariantTypePackedColorArray:
		return abi.TypeSize(abi.VariantTypeColor)
	}
	return 0
}

func (m *Marshaler) readPacked(t abi.VariantType, p abi.Ptr) (any, error) {
	n, err := m.size(t, p)
	if err != nil {
		return nil, err
	}
	index := m.packedIndex(t)
	size := packedElemSize(t)
	elem := func(i int) (abi.Ptr, []byte, error) {
		e := index(p, int64(i))
		if e.IsNull() {
			return abi.Null, nil, errors.OutOfBounds(errors.PhaseMarshal, int64(i), n)
		}
		b, err := m.mem.Read(uint32(e), size)
		if err != nil {
			return abi.Null, nil, errors.Wrap(errors.PhaseMarshal, errors.KindOutOfBounds, err, "read element")
		}
		return e, b, nil
	}

	switch t {
	case abi.VariantTypePackedByteArray:
		return packed[PackedByteArray](readElems(int(n), elem, func(_ abi.Ptr, b []byte) (byte, error) {
			return b[0], nil
		}))
	case abi.VariantTypePackedInt32Array:
		return packed[PackedInt32Array](readElems(int(n), elem, func(_ abi.Ptr, b []byte) (int32, error) {
			return int32(le.Uint32(b)), nil
		}))
	case abi.VariantTypePackedInt64Array:
		return packed[PackedInt64Array](readElems(int(n), elem, func(_ abi.Ptr, b []byte) (int64, error) {
			return int64(le.Uint64(b)), nil
		}))
	case abi.VariantTypePackedFloat32Array:
		return packed[PackedFloat32Array](readElems(int(n), elem, func(_ abi.Ptr, b []byte) (float32, error) {
			return math.Float32frombits(le.Uint32(b)), nil
		}))
	case abi.VariantTypePackedFloat64Array:
		return packed[PackedFloat64Array](readElems(int(n), elem, func(_ abi.Ptr, b []byte) (float64, error) {
			return math.Float64frombits(le.Uint64(b)), nil
		}))
	case abi.VariantTypePackedStringArray:
		return packed[PackedStringArray](readElems(int(n), elem, func(e abi.Ptr, _ []byte) (string, error) {
			return m.String(e, UTF8)
		}))
	case abi.VariantTypePackedVector2Array:
		return packed[PackedVector2Array](readElems(int(n), elem, podElem[Vector2](abi.VariantTypeVector2)))
	case abi.VariantTypePackedVector3Array:
		return packed[PackedVector3Array](readElems(int(n), elem, podElem[Vector3](abi.VariantTypeVector3)))
	case abi.VariantTypePackedColorArray:
		return packed[PackedColorArray](readElems(int(n), elem, podElem[Color](abi.VariantTypeColor)))
	}
	return nil, errors.Unsupported(errors.PhaseMarshal, "reading "+t.String())
}

func readElems[E any](n int, elem func(int) (abi.Ptr, []byte, error), dec func(abi.Ptr, []byte) (E, error)) ([]E, error) {
	out := make([]E, n)
	for i := range out {
		p, b, err := elem(i)
		if err != nil {
			return nil, err
		}
		if out[i], err = dec(p, b); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// packed converts decoded elements to the named packed type S.
func packed[S ~[]E, E any](elems []E, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return S(elems), nil
}

func podElem[E any](t abi.VariantType) func(abi.Ptr, []byte) (E, error) {
	return func(_ abi.Ptr, b []byte) (E, error) {
		var zero E
		v, err := decodePOD(t, b)
		if err != nil {
			return zero, err
		}
		return v.(E), nil
	}
}

// writePacked constructs a packed array of t holding v in the uninitialized p.
func (m *Marshaler) writePacked(t abi.VariantType, p abi.Ptr, v any) error {
	n, put, ok := m.packedSource(t, v)
	if !ok {
		return m.mismatch(v, t)
	}
	if err := m.construct(t, p); err != nil {
		return err
	}
	err := m.fillPacked(t, p, n, put)
	if err != nil {
		m.DestroyTyped(t, p)
	}
	return err
}

func (m *Marshaler) fillPacked(t abi.VariantType, p abi.Ptr, n int, put func(i int, e abi.Ptr) error) error {
	if n == 0 {
		return nil
	}
	if err := m.resize(t, p, n); err != nil {
		return err
	}
	index := m.packedIndex(t)
	for i := 0; i < n; i++ {
		e := index(p, int64(i))
		if e.IsNull() {
			return errors.OutOfBounds(errors.PhaseMarshal, int64(i), int64(n))
		}
		if err := put(i, e); err != nil {
			return err
		}
	}
	return nil
}

// packedSource returns the length of v and a writer for its elements.
func (m *Marshaler) packedSource(t abi.VariantType, v any) (int, func(int, abi.Ptr) error, bool) {
	raw := func(e abi.Ptr, b []byte) error {
		return m.mem.Write(uint32(e), b)
	}
	pod := func(kind abi.VariantType, x any, e abi.Ptr) error {
		b, err := encodePOD(kind, x)
		if err != nil {
			return err
		}
		return raw(e, b)
	}

	switch t {
	case abi.VariantTypePackedByteArray:
		s, ok := sliceOf[byte, PackedByteArray](v)
		return len(s), func(i int, e abi.Ptr) error { return raw(e, []byte{s[i]}) }, ok
	case abi.VariantTypePackedInt32Array:
		s, ok := sliceOf[int32, PackedInt32Array](v)
		return len(s), func(i int, e abi.Ptr) error {
			return raw(e, le.AppendUint32(nil, uint32(s[i])))
		}, ok
	case abi.VariantTypePackedInt64Array:
		s, ok := sliceOf[int64, PackedInt64Array](v)
		return len(s), func(i int, e abi.Ptr) error {
			return raw(e, le.AppendUint64(nil, uint64(s[i])))
		}, ok
	case abi.VariantTypePackedFloat32Array:
		s, ok := sliceOf[float32, PackedFloat32Array](v)
		return len(s), func(i int, e abi.Ptr) error {
			return raw(e, le.AppendUint32(nil, math.Float32bits(s[i])))
		}, ok
	case abi.VariantTypePackedFloat64Array:
		s, ok := sliceOf[float64, PackedFloat64Array](v)
		return len(s), func(i int, e abi.Ptr) error {
			return raw(e, le.AppendUint64(nil, math.Float64bits(s[i])))
		}, ok
	case abi.VariantTypePackedStringArray:
		s, ok := sliceOf[string, PackedStringArray](v)
		return len(s), func(i int, e abi.Ptr) error {
			m.DestroyTyped(abi.VariantTypeString, e)
			return m.NewString(e, s[i], UTF8)
		}, ok
	case abi.VariantTypePackedVector2Array:
		s, ok := sliceOf[Vector2, PackedVector2Array](v)
		return len(s), func(i int, e abi.Ptr) error { return pod(abi.VariantTypeVector2, s[i], e) }, ok
	case abi.VariantTypePackedVector3Array:
		s, ok := sliceOf[Vector3, PackedVector3Array](v)
		return len(s), func(i int, e abi.Ptr) error { return pod(abi.VariantTypeVector3, s[i], e) }, ok
	case abi.VariantTypePackedColorArray:
		s, ok := sliceOf[Color, PackedColorArray](v)
		return len(s), func(i int, e abi.Ptr) error { return pod(abi.VariantTypeColor, s[i], e) }, ok
	}
	return 0, nil, false
}

// sliceOf accepts both the packed type and its plain slice form.
func sliceOf[E any, S ~[]E](v any) ([]E, bool) {
	switch x := v.(type) {
	case S:
		return x, true
	case []E:
		return x, true
	case nil:
		return nil, true
	}
	return nil, false
}
