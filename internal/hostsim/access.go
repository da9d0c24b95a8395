package hostsim

import (
	"github.com/wippyai/gdext-bridge/abi"
)

var memberNames = map[abi.VariantType][]string{
	abi.VariantTypeVector2:    {"x", "y"},
	abi.VariantTypeVector2i:   {"x", "y"},
	abi.VariantTypeVector3:    {"x", "y", "z"},
	abi.VariantTypeVector3i:   {"x", "y", "z"},
	abi.VariantTypeVector4:    {"x", "y", "z", "w"},
	abi.VariantTypeVector4i:   {"x", "y", "z", "w"},
	abi.VariantTypeQuaternion: {"x", "y", "z", "w"},
	abi.VariantTypeColor:      {"r", "g", "b", "a"},
	abi.VariantTypePlane:      {"x", "y", "z", "d"},
}

func memberIndex(t abi.VariantType, name string) int {
	for i, n := range memberNames[t] {
		if n == name {
			return i
		}
	}
	return -1
}

func isIntVector(t abi.VariantType) bool {
	return t == abi.VariantTypeVector2i || t == abi.VariantTypeVector3i || t == abi.VariantTypeVector4i
}

// component reads component i of a vector-like value as an owned val.
func component(v val, i int) val {
	if isIntVector(v.t) {
		return vInt(int64(v.i32(i)))
	}
	return vFloat(float64(v.f32(i)))
}

// withComponent returns v with component i replaced.
func withComponent(v val, i int, x val) (val, bool) {
	out := val{t: v.t, b: append([]byte(nil), v.b...)}
	if isIntVector(v.t) {
		n, ok := x.asInt()
		if !ok {
			return v, false
		}
		r := vInts(abi.VariantTypeVector4i, int32(n))
		copy(out.b[i*4:], r.b[:4])
		return out, true
	}
	f, ok := x.asFloat()
	if !ok {
		return v, false
	}
	r := vFloats(abi.VariantTypeVector4, float32(f))
	copy(out.b[i*4:], r.b[:4])
	return out, true
}

// getNamed returns an owned val.
func (h *Host) getNamed(self val, name string) (val, bool) {
	switch self.t {
	case abi.VariantTypeObject:
		return h.objectGet(h.object(self.objectPtr()), name)
	case abi.VariantTypeDictionary:
		return h.getKeyed(self, h.vStr(abi.VariantTypeString, name))
	case abi.VariantTypeRect2, abi.VariantTypeRect2i:
		t := abi.VariantTypeVector2
		if self.t == abi.VariantTypeRect2i {
			t = abi.VariantTypeVector2i
		}
		switch name {
		case "position":
			return val{t: t, b: append([]byte(nil), self.b[:8]...)}, true
		case "size":
			return val{t: t, b: append([]byte(nil), self.b[8:16]...)}, true
		}
		return nilVal, false
	}
	if i := memberIndex(self.t, name); i >= 0 {
		return component(self, i), true
	}
	return nilVal, false
}

// setNamed mutates self in place; self must be the slot's own val.
func (h *Host) setNamed(slot abi.Ptr, name string, value val) bool {
	self := h.load(slot)
	switch self.t {
	case abi.VariantTypeObject:
		return h.objectSet(h.object(self.objectPtr()), name, value)
	case abi.VariantTypeDictionary:
		key := h.vStr(abi.VariantTypeString, name)
		defer h.drop(key)
		return h.setKeyed(self, key, value)
	}
	i := memberIndex(self.t, name)
	if i < 0 {
		return false
	}
	out, ok := withComponent(self, i, value)
	if !ok {
		return false
	}
	h.assign(slot, out)
	return true
}

// getKeyed returns an owned val; key is owned and consumed.
func (h *Host) getKeyed(self, key val) (val, bool) {
	defer h.drop(key)
	switch self.t {
	case abi.VariantTypeDictionary:
		c := h.container(le32(self.b))
		if c == nil {
			return nilVal, false
		}
		slot := h.dictSlot(c, key, false)
		if slot.IsNull() {
			return nilVal, false
		}
		return h.dup(h.load(slot)), true
	case abi.VariantTypeObject:
		name, ok := h.asString(key)
		if !ok {
			return nilVal, false
		}
		return h.objectGet(h.object(self.objectPtr()), name)
	}
	return nilVal, false
}

// setKeyed stores a copy of value under key.
func (h *Host) setKeyed(self, key, value val) bool {
	switch self.t {
	case abi.VariantTypeDictionary:
		c := h.container(le32(self.b))
		if c == nil {
			return false
		}
		slot := h.dictSlot(c, key, true)
		h.assign(slot, h.dup(value))
		return true
	case abi.VariantTypeObject:
		name, ok := h.asString(key)
		if !ok {
			return false
		}
		return h.objectSet(h.object(self.objectPtr()), name, value)
	}
	return false
}

func (h *Host) length(v val) (int, bool) {
	switch {
	case v.t == abi.VariantTypeArray || abi.IsPacked(v.t):
		c := h.container(le32(v.b))
		if c == nil {
			return 0, false
		}
		return c.n, true
	case v.t == abi.VariantTypeDictionary:
		c := h.container(le32(v.b))
		if c == nil {
			return 0, false
		}
		return len(c.keys), true
	case isStringKind(v.t):
		s, _ := h.asString(v)
		return len([]rune(s)), true
	}
	if n := len(memberNames[v.t]); n > 0 {
		return n, true
	}
	return 0, false
}

// getIndexed returns an owned val; negative indices count from the end.
func (h *Host) getIndexed(self val, index int64) (v val, valid, oob bool) {
	n, ok := h.length(self)
	if !ok || self.t == abi.VariantTypeDictionary {
		return nilVal, false, false
	}
	if index < 0 {
		index += int64(n)
	}
	if index < 0 || index >= int64(n) {
		return nilVal, true, true
	}
	switch {
	case self.t == abi.VariantTypeArray:
		c := h.container(le32(self.b))
		return h.dup(h.load(c.at(int(index)))), true, false
	case abi.IsPacked(self.t):
		return h.packedGet(h.container(le32(self.b)), int(index)), true, false
	case isStringKind(self.t):
		s, _ := h.asString(self)
		return h.vStr(abi.VariantTypeString, string([]rune(s)[index])), true, false
	}
	return component(self, int(index)), true, false
}

func (h *Host) setIndexed(slot abi.Ptr, index int64, value val) (valid, oob bool) {
	self := h.load(slot)
	n, ok := h.length(self)
	if !ok || self.t == abi.VariantTypeDictionary || isStringKind(self.t) {
		return false, false
	}
	if index < 0 {
		index += int64(n)
	}
	if index < 0 || index >= int64(n) {
		return true, true
	}
	switch {
	case self.t == abi.VariantTypeArray:
		c := h.container(le32(self.b))
		h.assign(c.at(int(index)), h.dup(value))
		return true, false
	case abi.IsPacked(self.t):
		return h.packedSet(h.container(le32(self.b)), int(index), value), false
	}
	out, ok := withComponent(self, int(index), value)
	if !ok {
		return false, false
	}
	h.assign(slot, out)
	return true, false
}

// Iteration keeps a plain int position in the iterator Variant. Dictionary
// iteration yields keys, int iteration counts from zero.
func (h *Host) iterLen(self val) (int, bool) {
	if self.t == abi.VariantTypeInt {
		n, _ := self.asInt()
		return int(n), true
	}
	if self.t == abi.VariantTypeArray || self.t == abi.VariantTypeDictionary || abi.IsPacked(self.t) || isStringKind(self.t) {
		return h.length(self)
	}
	return 0, false
}

func (h *Host) iterGet(self val, pos int) (val, bool) {
	switch {
	case self.t == abi.VariantTypeInt:
		return vInt(int64(pos)), true
	case self.t == abi.VariantTypeDictionary:
		c := h.container(le32(self.b))
		if c == nil || pos >= len(c.keys) {
			return nilVal, false
		}
		return h.dup(h.load(c.keys[pos])), true
	}
	v, valid, oob := h.getIndexed(self, int64(pos))
	return v, valid && !oob
}

func (h *Host) installAccess(t *abi.InterfaceTable) {
	t.VariantGetNamed = func(self, key, ret abi.Ptr) bool {
		v, ok := h.getNamed(h.load(self), h.typedString(key))
		h.store(ret, v)
		return ok
	}
	t.VariantSetNamed = func(self, key, value abi.Ptr) bool {
		return h.setNamed(self, h.typedString(key), h.load(value))
	}
	t.VariantGetKeyed = func(self, key, ret abi.Ptr) bool {
		v, ok := h.getKeyed(h.load(self), h.dup(h.load(key)))
		h.store(ret, v)
		return ok
	}
	t.VariantSetKeyed = func(self, key, value abi.Ptr) bool {
		return h.setKeyed(h.load(self), h.load(key), h.load(value))
	}
	t.VariantGetIndexed = func(self abi.Ptr, index int64, ret abi.Ptr) (bool, bool) {
		v, valid, oob := h.getIndexed(h.load(self), index)
		h.store(ret, v)
		return valid, oob
	}
	t.VariantSetIndexed = func(self abi.Ptr, index int64, value abi.Ptr) (bool, bool) {
		return h.setIndexed(self, index, h.load(value))
	}
	t.VariantGet = func(self, key, ret abi.Ptr) bool {
		s, k := h.load(self), h.load(key)
		switch {
		case k.t == abi.VariantTypeInt && s.t != abi.VariantTypeDictionary:
			i, _ := k.asInt()
			v, valid, oob := h.getIndexed(s, i)
			h.store(ret, v)
			return valid && !oob
		case isStringKind(k.t) && s.t != abi.VariantTypeDictionary:
			name, _ := h.asString(k)
			v, ok := h.getNamed(s, name)
			h.store(ret, v)
			return ok
		}
		v, ok := h.getKeyed(s, h.dup(k))
		h.store(ret, v)
		return ok
	}
	t.VariantSet = func(self, key, value abi.Ptr) bool {
		s, k, v := h.load(self), h.load(key), h.load(value)
		switch {
		case k.t == abi.VariantTypeInt && s.t != abi.VariantTypeDictionary:
			i, _ := k.asInt()
			valid, oob := h.setIndexed(self, i, v)
			return valid && !oob
		case isStringKind(k.t) && s.t != abi.VariantTypeDictionary:
			name, _ := h.asString(k)
			return h.setNamed(self, name, v)
		}
		return h.setKeyed(s, k, v)
	}

	t.VariantIterInit = func(self, iter abi.Ptr) (bool, bool) {
		n, ok := h.iterLen(h.load(self))
		if !ok {
			return false, false
		}
		h.assign(iter, vInt(0))
		return n > 0, true
	}
	t.VariantIterNext = func(self, iter abi.Ptr) (bool, bool) {
		n, ok := h.iterLen(h.load(self))
		pos, isInt := h.load(iter).asInt()
		if !ok || !isInt {
			return false, false
		}
		pos++
		h.assign(iter, vInt(pos))
		return pos < int64(n), true
	}
	t.VariantIterGet = func(self, iter, ret abi.Ptr) bool {
		pos, ok := h.load(iter).asInt()
		if !ok {
			h.store(ret, nilVal)
			return false
		}
		v, ok := h.iterGet(h.load(self), int(pos))
		h.store(ret, v)
		return ok
	}
}
