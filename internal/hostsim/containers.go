package hostsim

import (
	"encoding/binary"
	"math"

	"github.com/wippyai/gdext-bridge/abi"
)

// container backs Array, Dictionary and the packed arrays. Array elements
// are Variant slots and packed elements are typed storage, both in a single
// heap block so element pointers are real host addresses. Dictionary
// entries own one key slot and one value slot each, in insertion order.
type container struct {
	kind abi.VariantType
	refs int32
	data abi.Ptr
	n    int
	elem uint32
	keys []abi.Ptr
	vals []abi.Ptr
}

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

func (h *Host) newContainer(t abi.VariantType) uint32 {
	c := &container{kind: t, refs: 1}
	switch {
	case t == abi.VariantTypeArray:
		c.elem = abi.VariantSize
	case abi.IsPacked(t):
		c.elem = packedElemSize(t)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextContainer++
	h.containers[h.nextContainer] = c
	return h.nextContainer
}

func (h *Host) container(id uint32) *container {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.containers[id]
	if !ok {
		h.failLocked("use of released container %d", id)
		return nil
	}
	return c
}

// typedContainer resolves the container behind typed storage at p.
func (h *Host) typedContainer(p abi.Ptr) *container {
	if p.IsNull() {
		h.fail("null container pointer")
		return nil
	}
	return h.container(h.u32(p))
}

func (h *Host) containerRetain(id uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.containers[id]; ok {
		c.refs++
	}
}

func (h *Host) containerRelease(id uint32) {
	h.mu.Lock()
	c, ok := h.containers[id]
	if !ok {
		h.mu.Unlock()
		h.fail("double release of container %d", id)
		return
	}
	c.refs--
	if c.refs > 0 {
		h.mu.Unlock()
		return
	}
	delete(h.containers, id)
	h.mu.Unlock()

	h.resize(c, 0)
	for i := range c.keys {
		h.destroySlot(c.keys[i])
		h.destroySlot(c.vals[i])
		h.free(c.keys[i])
		h.free(c.vals[i])
	}
	c.keys, c.vals = nil, nil
}

// Containers returns the number of live container payloads.
func (h *Host) Containers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.containers)
}

func (c *container) at(i int) abi.Ptr {
	return c.data.Add(uint32(i) * c.elem)
}

// resize grows with zeroed elements, which are nil Variants, empty strings
// and zero numbers, or shrinks releasing the dropped elements.
func (h *Host) resize(c *container, n int) {
	if n < 0 || c.kind == abi.VariantTypeDictionary {
		return
	}
	for i := n; i < c.n; i++ {
		switch c.kind {
		case abi.VariantTypeArray:
			h.destroySlot(c.at(i))
		case abi.VariantTypePackedStringArray:
			h.strRelease(h.u32(c.at(i)))
		}
	}
	if n == 0 {
		h.free(c.data)
		c.data, c.n = abi.Null, 0
		return
	}
	data := h.alloc(uint32(n) * c.elem)
	if keep := min(n, c.n); keep > 0 {
		h.write(data, h.read(c.data, uint32(keep)*c.elem))
	}
	h.free(c.data)
	c.data, c.n = data, n
}

func (h *Host) arrayAppend(c *container, v val) {
	h.resize(c, c.n+1)
	h.store(c.at(c.n-1), v)
}

// packedGet returns element i as an owned val.
func (h *Host) packedGet(c *container, i int) val {
	b := h.read(c.at(i), c.elem)
	switch c.kind {
	case abi.VariantTypePackedByteArray:
		return vInt(int64(b[0]))
	case abi.VariantTypePackedInt32Array:
		return vInt(int64(int32(binary.LittleEndian.Uint32(b))))
	case abi.VariantTypePackedInt64Array:
		return vInt(int64(binary.LittleEndian.Uint64(b)))
	case abi.VariantTypePackedFloat32Array:
		return vFloat(float64(math.Float32frombits(binary.LittleEndian.Uint32(b))))
	case abi.VariantTypePackedFloat64Array:
		return vFloat(math.Float64frombits(binary.LittleEndian.Uint64(b)))
	case abi.VariantTypePackedStringArray:
		return h.dup(val{t: abi.VariantTypeString, b: b})
	case abi.VariantTypePackedVector2Array:
		return val{t: abi.VariantTypeVector2, b: b}
	case abi.VariantTypePackedVector3Array:
		return val{t: abi.VariantTypeVector3, b: b}
	case abi.VariantTypePackedColorArray:
		return val{t: abi.VariantTypeColor, b: b}
	}
	return nilVal
}

// packedSet converts v into element i. It reports false when v does not fit
// the element type.
func (h *Host) packedSet(c *container, i int, v val) bool {
	p := c.at(i)
	switch c.kind {
	case abi.VariantTypePackedByteArray:
		n, ok := v.asInt()
		if !ok {
			return false
		}
		h.write(p, []byte{byte(n)})
	case abi.VariantTypePackedInt32Array:
		n, ok := v.asInt()
		if !ok {
			return false
		}
		h.putU32(p, uint32(int32(n)))
	case abi.VariantTypePackedInt64Array:
		n, ok := v.asInt()
		if !ok {
			return false
		}
		h.putU64(p, uint64(n))
	case abi.VariantTypePackedFloat32Array:
		f, ok := v.asFloat()
		if !ok {
			return false
		}
		h.putU32(p, math.Float32bits(float32(f)))
	case abi.VariantTypePackedFloat64Array:
		f, ok := v.asFloat()
		if !ok {
			return false
		}
		h.putU64(p, math.Float64bits(f))
	case abi.VariantTypePackedStringArray:
		s, ok := h.asString(v)
		if !ok {
			return false
		}
		old := h.u32(p)
		h.putU32(p, h.newString(s))
		h.strRelease(old)
	case abi.VariantTypePackedVector2Array:
		if v.t != abi.VariantTypeVector2 {
			return false
		}
		h.write(p, v.b)
	case abi.VariantTypePackedVector3Array:
		if v.t != abi.VariantTypeVector3 {
			return false
		}
		h.write(p, v.b)
	case abi.VariantTypePackedColorArray:
		if v.t != abi.VariantTypeColor {
			return false
		}
		h.write(p, v.b)
	default:
		return false
	}
	return true
}

// elements returns the elements of an Array or packed array as owned vals.
func (h *Host) elements(c *container) []val {
	out := make([]val, c.n)
	for i := 0; i < c.n; i++ {
		if c.kind == abi.VariantTypeArray {
			out[i] = h.dup(h.load(c.at(i)))
		} else {
			out[i] = h.packedGet(c, i)
		}
	}
	return out
}

func (h *Host) dropAll(vs []val) {
	for _, v := range vs {
		h.drop(v)
	}
}

// dictFind returns the index of key, or -1.
func (h *Host) dictFind(c *container, key val) int {
	for i, k := range c.keys {
		if h.equal(h.load(k), key) {
			return i
		}
	}
	return -1
}

// dictSlot returns the value slot for key, inserting a nil entry when the
// key is absent and insert is set.
func (h *Host) dictSlot(c *container, key val, insert bool) abi.Ptr {
	if i := h.dictFind(c, key); i >= 0 {
		return c.vals[i]
	}
	if !insert {
		return abi.Null
	}
	k := h.alloc(abi.VariantSize)
	v := h.alloc(abi.VariantSize)
	h.store(k, h.dup(key))
	c.keys = append(c.keys, k)
	c.vals = append(c.vals, v)
	return v
}

func (h *Host) dictErase(c *container, key val) bool {
	i := h.dictFind(c, key)
	if i < 0 {
		return false
	}
	k, v := c.keys[i], c.vals[i]
	c.keys = append(c.keys[:i], c.keys[i+1:]...)
	c.vals = append(c.vals[:i], c.vals[i+1:]...)
	h.destroySlot(k)
	h.destroySlot(v)
	h.free(k)
	h.free(v)
	return true
}

// newArray builds an Array from owned vals.
func (h *Host) newArray(elems []val) val {
	id := h.newContainer(abi.VariantTypeArray)
	c := h.container(id)
	h.resize(c, len(elems))
	for i, e := range elems {
		h.store(c.at(i), e)
	}
	return h.vContainer(abi.VariantTypeArray, id)
}

// convertContainer converts between Array and packed arrays.
func (h *Host) convertContainer(v val, to abi.VariantType) (val, bool) {
	src := h.container(le32(v.b))
	if src == nil {
		return nilVal, false
	}
	elems := h.elements(src)
	defer h.dropAll(elems)

	if to == abi.VariantTypeArray {
		dup := make([]val, len(elems))
		for i, e := range elems {
			dup[i] = h.dup(e)
		}
		return h.newArray(dup), true
	}

	id := h.newContainer(to)
	dst := h.container(id)
	h.resize(dst, len(elems))
	for i, e := range elems {
		if !h.packedSet(dst, i, e) {
			h.containerRelease(id)
			return nilVal, false
		}
	}
	return h.vContainer(to, id), true
}
