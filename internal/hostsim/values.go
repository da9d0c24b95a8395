package hostsim

import (
	"encoding/binary"
	"math"

	"github.com/wippyai/gdext-bridge/abi"
)

// Variant slot layout: u32 type tag at 0, payload at 8. Typed storage up to
// 16 bytes is kept inline in the payload; larger kinds are boxed on the heap
// and the payload holds the box pointer. An Object payload is the object
// pointer followed by its instance id.
const (
	slotPayload = 8
	inlineSize  = 16
)

// val is a Variant in typed form. A val obtained from load borrows the
// references of its slot; every other constructor returns an owned val.
type val struct {
	t abi.VariantType
	b []byte
}

var nilVal = val{t: abi.VariantTypeNil}

func boxed(t abi.VariantType) bool {
	return t != abi.VariantTypeNil && abi.TypeSize(t) > inlineSize
}

// load returns a borrowed view of slot.
func (h *Host) load(slot abi.Ptr) val {
	if slot.IsNull() {
		h.fail("load: null variant")
		return nilVal
	}
	t := abi.VariantType(h.u32(slot))
	if t == abi.VariantTypeNil {
		return nilVal
	}
	if !t.Valid() {
		h.fail("load: corrupt variant tag %d at %s", t, slot)
		return nilVal
	}
	n := abi.TypeSize(t)
	if boxed(t) {
		return val{t: t, b: h.read(abi.Ptr(h.u32(slot.Add(slotPayload))), n)}
	}
	return val{t: t, b: h.read(slot.Add(slotPayload), n)}
}

// store moves an owned val into an uninitialized slot.
func (h *Host) store(slot abi.Ptr, v val) {
	raw := make([]byte, abi.VariantSize)
	binary.LittleEndian.PutUint32(raw, uint32(v.t))
	if v.t != abi.VariantTypeNil {
		n := abi.TypeSize(v.t)
		if boxed(v.t) {
			box := h.alloc(n)
			h.write(box, v.b[:n])
			binary.LittleEndian.PutUint32(raw[slotPayload:], uint32(box))
		} else {
			copy(raw[slotPayload:], v.b[:n])
		}
		if v.t == abi.VariantTypeObject {
			if o := h.object(v.objectPtr()); o != nil {
				binary.LittleEndian.PutUint64(raw[slotPayload+8:], o.id)
			}
		}
	}
	h.write(slot, raw)
}

// assign replaces the content of an initialized slot with an owned val.
func (h *Host) assign(slot abi.Ptr, v val) {
	h.destroySlot(slot)
	h.store(slot, v)
}

func (h *Host) destroySlot(slot abi.Ptr) {
	if slot.IsNull() {
		return
	}
	v := h.load(slot)
	if boxed(v.t) {
		h.free(abi.Ptr(h.u32(slot.Add(slotPayload))))
	}
	h.write(slot, make([]byte, abi.VariantSize))
	h.drop(v)
}

// dup takes an additional reference on v and returns it as owned.
func (h *Host) dup(v val) val {
	h.retainValue(v.t, v.b)
	if v.t == abi.VariantTypeObject {
		h.objRetain(v.objectPtr())
	}
	b := make([]byte, len(v.b))
	copy(b, v.b)
	return val{t: v.t, b: b}
}

// drop releases an owned val.
func (h *Host) drop(v val) {
	h.releaseValue(v.t, v.b)
	if v.t == abi.VariantTypeObject {
		h.objRelease(v.objectPtr())
	}
}

// retainValue takes the string and container references held by typed
// storage. Object pointers in typed storage hold no reference.
func (h *Host) retainValue(t abi.VariantType, b []byte) {
	switch {
	case isStringKind(t):
		h.strRetain(le32(b))
	case t == abi.VariantTypeArray || t == abi.VariantTypeDictionary || abi.IsPacked(t):
		h.containerRetain(le32(b))
	case t == abi.VariantTypeCallable || t == abi.VariantTypeSignal:
		h.strRetain(le32(b[4:]))
	}
}

func (h *Host) releaseValue(t abi.VariantType, b []byte) {
	switch {
	case isStringKind(t):
		h.strRelease(le32(b))
	case t == abi.VariantTypeArray || t == abi.VariantTypeDictionary || abi.IsPacked(t):
		h.containerRelease(le32(b))
	case t == abi.VariantTypeCallable || t == abi.VariantTypeSignal:
		h.strRelease(le32(b[4:]))
	}
}

// readTyped returns the typed storage at p as a borrowed val.
func (h *Host) readTyped(t abi.VariantType, p abi.Ptr) val {
	if t == abi.VariantTypeNil {
		return h.load(p)
	}
	return val{t: t, b: h.read(p, abi.TypeSize(t))}
}

// writeTyped moves an owned val into uninitialized typed storage. Object
// references owned by v are dropped since typed storage holds none.
func (h *Host) writeTyped(t abi.VariantType, p abi.Ptr, v val) {
	if t == abi.VariantTypeNil {
		h.store(p, v)
		return
	}
	h.write(p, v.b[:abi.TypeSize(t)])
	if v.t == abi.VariantTypeObject {
		h.objRelease(v.objectPtr())
	}
}

// assignTyped replaces initialized typed storage.
func (h *Host) assignTyped(t abi.VariantType, p abi.Ptr, v val) {
	if t == abi.VariantTypeNil {
		h.assign(p, v)
		return
	}
	old := h.readTyped(t, p)
	h.writeTyped(t, p, v)
	h.releaseValue(t, old.b)
}

func isStringKind(t abi.VariantType) bool {
	return t == abi.VariantTypeString || t == abi.VariantTypeStringName || t == abi.VariantTypeNodePath
}

func (v val) objectPtr() abi.Ptr {
	if v.t != abi.VariantTypeObject || len(v.b) < 4 {
		return abi.Null
	}
	return abi.Ptr(le32(v.b))
}

// Constructors for owned vals.

func vBool(b bool) val {
	out := make([]byte, 1)
	if b {
		out[0] = 1
	}
	return val{t: abi.VariantTypeBool, b: out}
}

func vInt(i int64) val {
	out := make([]byte, 8)
	binary.LittleEndian.PutUint64(out, uint64(i))
	return val{t: abi.VariantTypeInt, b: out}
}

func vFloat(f float64) val {
	out := make([]byte, 8)
	binary.LittleEndian.PutUint64(out, math.Float64bits(f))
	return val{t: abi.VariantTypeFloat, b: out}
}

func vFloats(t abi.VariantType, fs ...float32) val {
	out := make([]byte, abi.TypeSize(t))
	for i, f := range fs {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(f))
	}
	return val{t: t, b: out}
}

func vInts(t abi.VariantType, is ...int32) val {
	out := make([]byte, abi.TypeSize(t))
	for i, n := range is {
		binary.LittleEndian.PutUint32(out[i*4:], uint32(n))
	}
	return val{t: t, b: out}
}

func (h *Host) vStr(t abi.VariantType, s string) val {
	out := make([]byte, abi.TypeSize(t))
	binary.LittleEndian.PutUint32(out, h.newString(s))
	return val{t: t, b: out}
}

func (h *Host) vObject(p abi.Ptr) val {
	out := make([]byte, abi.TypeSize(abi.VariantTypeObject))
	binary.LittleEndian.PutUint32(out, uint32(p))
	h.objRetain(p)
	return val{t: abi.VariantTypeObject, b: out}
}

func (h *Host) vNamed(t abi.VariantType, obj abi.Ptr, name string) val {
	out := make([]byte, abi.TypeSize(t))
	binary.LittleEndian.PutUint32(out, uint32(obj))
	binary.LittleEndian.PutUint32(out[4:], h.newString(name))
	return val{t: t, b: out}
}

func (h *Host) vContainer(t abi.VariantType, id uint32) val {
	out := make([]byte, abi.TypeSize(t))
	binary.LittleEndian.PutUint32(out, id)
	return val{t: t, b: out}
}

// defaultVal returns the default value of t.
func (h *Host) defaultVal(t abi.VariantType) val {
	switch {
	case t == abi.VariantTypeNil:
		return nilVal
	case t == abi.VariantTypeArray || t == abi.VariantTypeDictionary || abi.IsPacked(t):
		return h.vContainer(t, h.newContainer(t))
	case t == abi.VariantTypeTransform2D:
		return vFloats(t, 1, 0, 0, 1, 0, 0)
	case t == abi.VariantTypeBasis:
		return vFloats(t, 1, 0, 0, 0, 1, 0, 0, 0, 1)
	case t == abi.VariantTypeTransform3D:
		return vFloats(t, 1, 0, 0, 0, 1, 0, 0, 0, 1, 0, 0, 0)
	case t == abi.VariantTypeProjection:
		return vFloats(t, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1)
	case t == abi.VariantTypeQuaternion:
		return vFloats(t, 0, 0, 0, 1)
	case t == abi.VariantTypeColor:
		return vFloats(t, 0, 0, 0, 1)
	}
	return val{t: t, b: make([]byte, abi.TypeSize(t))}
}

// Accessors on vals.

func (v val) asBool() bool {
	return len(v.b) > 0 && v.b[0] != 0
}

func (v val) asInt() (int64, bool) {
	switch v.t {
	case abi.VariantTypeInt:
		return int64(binary.LittleEndian.Uint64(v.b)), true
	case abi.VariantTypeFloat:
		return int64(math.Float64frombits(binary.LittleEndian.Uint64(v.b))), true
	case abi.VariantTypeBool:
		if v.asBool() {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func (v val) asFloat() (float64, bool) {
	switch v.t {
	case abi.VariantTypeFloat:
		return math.Float64frombits(binary.LittleEndian.Uint64(v.b)), true
	case abi.VariantTypeInt, abi.VariantTypeBool:
		i, _ := v.asInt()
		return float64(i), true
	}
	return 0, false
}

func (v val) f32(i int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(v.b[i*4:]))
}

func (v val) i32(i int) int32 {
	return int32(binary.LittleEndian.Uint32(v.b[i*4:]))
}

func (v val) components() int {
	return len(v.b) / 4
}

func (h *Host) asString(v val) (string, bool) {
	if !isStringKind(v.t) {
		return "", false
	}
	return h.str(le32(v.b)), true
}

func le32(b []byte) uint32 {
	return binary.LittleEndian.Uint32(b)
}
