package hostsim

import (
	"bytes"
	"fmt"
	"hash/fnv"
	"math"
	"strconv"
	"strings"

	"github.com/wippyai/gdext-bridge/abi"
)

// equal implements Variant equality: numbers compare across int and float,
// strings across their three kinds, containers element-wise.
func (h *Host) equal(a, b val) bool {
	if a.t != b.t {
		if isNumber(a.t) && isNumber(b.t) {
			x, _ := a.asFloat()
			y, _ := b.asFloat()
			return x == y
		}
		if isStringKind(a.t) && isStringKind(b.t) {
			x, _ := h.asString(a)
			y, _ := h.asString(b)
			return x == y
		}
		return false
	}
	switch {
	case a.t == abi.VariantTypeNil:
		return true
	case isStringKind(a.t):
		x, _ := h.asString(a)
		y, _ := h.asString(b)
		return x == y
	case a.t == abi.VariantTypeArray || abi.IsPacked(a.t):
		if le32(a.b) == le32(b.b) {
			return true
		}
		ca, cb := h.container(le32(a.b)), h.container(le32(b.b))
		if ca == nil || cb == nil || ca.n != cb.n {
			return false
		}
		ea, eb := h.elements(ca), h.elements(cb)
		defer h.dropAll(ea)
		defer h.dropAll(eb)
		for i := range ea {
			if !h.equal(ea[i], eb[i]) {
				return false
			}
		}
		return true
	case a.t == abi.VariantTypeDictionary:
		if le32(a.b) == le32(b.b) {
			return true
		}
		ca, cb := h.container(le32(a.b)), h.container(le32(b.b))
		if ca == nil || cb == nil || len(ca.keys) != len(cb.keys) {
			return false
		}
		for i, k := range ca.keys {
			slot := h.dictSlot(cb, h.load(k), false)
			if slot.IsNull() || !h.equal(h.load(ca.vals[i]), h.load(slot)) {
				return false
			}
		}
		return true
	case a.t == abi.VariantTypeCallable || a.t == abi.VariantTypeSignal:
		return le32(a.b) == le32(b.b) && h.str(le32(a.b[4:])) == h.str(le32(b.b[4:]))
	}
	return bytes.Equal(a.b, b.b)
}

func isNumber(t abi.VariantType) bool {
	return t == abi.VariantTypeInt || t == abi.VariantTypeFloat
}

// hash folds v into a 32-bit FNV-1a hash; depth bounds container recursion.
func (h *Host) hash(v val, depth int) uint32 {
	f := fnv.New32a()
	h.hashInto(f, v, depth)
	return f.Sum32()
}

type hashWriter interface {
	Write(p []byte) (int, error)
}

func (h *Host) hashInto(w hashWriter, v val, depth int) {
	switch {
	case isStringKind(v.t):
		s, _ := h.asString(v)
		w.Write([]byte{byte(abi.VariantTypeString)})
		w.Write([]byte(s))
	case v.t == abi.VariantTypeArray || abi.IsPacked(v.t):
		w.Write([]byte{byte(v.t)})
		if depth <= 0 {
			return
		}
		if c := h.container(le32(v.b)); c != nil {
			elems := h.elements(c)
			for _, e := range elems {
				h.hashInto(w, e, depth-1)
			}
			h.dropAll(elems)
		}
	case v.t == abi.VariantTypeDictionary:
		w.Write([]byte{byte(v.t)})
		if depth <= 0 {
			return
		}
		if c := h.container(le32(v.b)); c != nil {
			for i := range c.keys {
				h.hashInto(w, h.load(c.keys[i]), depth-1)
				h.hashInto(w, h.load(c.vals[i]), depth-1)
			}
		}
	case v.t == abi.VariantTypeCallable || v.t == abi.VariantTypeSignal:
		w.Write([]byte{byte(v.t)})
		w.Write(v.b[:4])
		w.Write([]byte(h.str(le32(v.b[4:]))))
	default:
		w.Write([]byte{byte(v.t)})
		w.Write(v.b)
	}
}

// booleanize mirrors the truthiness rules: zero values are false.
func (h *Host) booleanize(v val) bool {
	switch {
	case v.t == abi.VariantTypeNil:
		return false
	case v.t == abi.VariantTypeBool:
		return v.asBool()
	case isNumber(v.t):
		f, _ := v.asFloat()
		return f != 0
	case isStringKind(v.t):
		s, _ := h.asString(v)
		return s != ""
	case v.t == abi.VariantTypeArray || abi.IsPacked(v.t):
		c := h.container(le32(v.b))
		return c != nil && c.n > 0
	case v.t == abi.VariantTypeDictionary:
		c := h.container(le32(v.b))
		return c != nil && len(c.keys) > 0
	case v.t == abi.VariantTypeObject:
		return h.object(v.objectPtr()) != nil
	}
	for _, b := range v.b {
		if b != 0 {
			return true
		}
	}
	return false
}

func formatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case math.IsNaN(f):
		return "nan"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func (h *Host) stringify(v val) string {
	return h.stringifyDepth(v, false)
}

func (h *Host) stringifyDepth(v val, quoted bool) string {
	switch v.t {
	case abi.VariantTypeNil:
		return "<null>"
	case abi.VariantTypeBool:
		return strconv.FormatBool(v.asBool())
	case abi.VariantTypeInt:
		i, _ := v.asInt()
		return strconv.FormatInt(i, 10)
	case abi.VariantTypeFloat:
		f, _ := v.asFloat()
		return formatFloat(f)
	case abi.VariantTypeString, abi.VariantTypeStringName, abi.VariantTypeNodePath:
		s, _ := h.asString(v)
		if quoted {
			return strconv.Quote(s)
		}
		return s
	case abi.VariantTypeVector2i, abi.VariantTypeVector3i, abi.VariantTypeVector4i:
		parts := make([]string, v.components())
		for i := range parts {
			parts[i] = strconv.Itoa(int(v.i32(i)))
		}
		return "(" + strings.Join(parts, ", ") + ")"
	case abi.VariantTypeRect2i:
		return fmt.Sprintf("[P: (%d, %d), S: (%d, %d)]", v.i32(0), v.i32(1), v.i32(2), v.i32(3))
	case abi.VariantTypeRect2:
		return fmt.Sprintf("[P: (%s, %s), S: (%s, %s)]", f32s(v, 0), f32s(v, 1), f32s(v, 2), f32s(v, 3))
	case abi.VariantTypeRID:
		return fmt.Sprintf("RID(%d)", le64(v.b))
	case abi.VariantTypeObject:
		o := h.object(v.objectPtr())
		if o == nil {
			return "<Object#null>"
		}
		return fmt.Sprintf("<%s#%d>", o.className(), o.id)
	case abi.VariantTypeCallable:
		o := h.object(abi.Ptr(le32(v.b)))
		if o == nil {
			return "null::" + h.str(le32(v.b[4:]))
		}
		return o.className() + "::" + h.str(le32(v.b[4:]))
	case abi.VariantTypeSignal:
		return "Signal(" + h.str(le32(v.b[4:])) + ")"
	case abi.VariantTypeDictionary:
		c := h.container(le32(v.b))
		if c == nil || len(c.keys) == 0 {
			return "{  }"
		}
		parts := make([]string, len(c.keys))
		for i := range c.keys {
			parts[i] = h.stringifyDepth(h.load(c.keys[i]), true) + ": " + h.stringifyDepth(h.load(c.vals[i]), true)
		}
		return "{ " + strings.Join(parts, ", ") + " }"
	}
	if v.t == abi.VariantTypeArray || abi.IsPacked(v.t) {
		c := h.container(le32(v.b))
		if c == nil {
			return "[]"
		}
		elems := h.elements(c)
		defer h.dropAll(elems)
		parts := make([]string, len(elems))
		for i, e := range elems {
			parts[i] = h.stringifyDepth(e, true)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}

	parts := make([]string, v.components())
	for i := range parts {
		parts[i] = f32s(v, i)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func f32s(v val, i int) string {
	return formatFloat(float64(v.f32(i)))
}

// convertPairs lists the conversions allowed without loss of meaning, in
// both directions.
var convertPairs = [][2]abi.VariantType{
	{abi.VariantTypeBool, abi.VariantTypeInt},
	{abi.VariantTypeBool, abi.VariantTypeFloat},
	{abi.VariantTypeInt, abi.VariantTypeFloat},
	{abi.VariantTypeString, abi.VariantTypeStringName},
	{abi.VariantTypeString, abi.VariantTypeNodePath},
	{abi.VariantTypeStringName, abi.VariantTypeNodePath},
	{abi.VariantTypeVector2, abi.VariantTypeVector2i},
	{abi.VariantTypeVector3, abi.VariantTypeVector3i},
	{abi.VariantTypeVector4, abi.VariantTypeVector4i},
	{abi.VariantTypeRect2, abi.VariantTypeRect2i},
}

func canConvertStrict(from, to abi.VariantType) bool {
	if from == to || to == abi.VariantTypeNil {
		return true
	}
	if from == abi.VariantTypeNil && to == abi.VariantTypeObject {
		return true
	}
	for _, p := range convertPairs {
		if (p[0] == from && p[1] == to) || (p[1] == from && p[0] == to) {
			return true
		}
	}
	if from == abi.VariantTypeArray && abi.IsPacked(to) {
		return true
	}
	if abi.IsPacked(from) && to == abi.VariantTypeArray {
		return true
	}
	return false
}

func canConvert(from, to abi.VariantType) bool {
	if canConvertStrict(from, to) {
		return true
	}
	switch to {
	case abi.VariantTypeString:
		return true
	case abi.VariantTypeBool:
		return from != abi.VariantTypeNil
	case abi.VariantTypeInt, abi.VariantTypeFloat:
		return isStringKind(from)
	}
	return false
}

// convert returns v as an owned val of type to, following canConvert.
func (h *Host) convert(v val, to abi.VariantType) (val, bool) {
	if v.t == to || to == abi.VariantTypeNil {
		return h.dup(v), true
	}
	if !canConvert(v.t, to) {
		return nilVal, false
	}

	switch to {
	case abi.VariantTypeBool:
		return vBool(h.booleanize(v)), true
	case abi.VariantTypeInt:
		if s, ok := h.asString(v); ok {
			i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
			return vInt(i), err == nil
		}
		i, _ := v.asInt()
		return vInt(i), true
	case abi.VariantTypeFloat:
		if s, ok := h.asString(v); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			return vFloat(f), err == nil
		}
		f, _ := v.asFloat()
		return vFloat(f), true
	case abi.VariantTypeString, abi.VariantTypeStringName, abi.VariantTypeNodePath:
		return h.vStr(to, h.stringify(v)), true
	case abi.VariantTypeObject:
		return val{t: to, b: make([]byte, abi.TypeSize(to))}, true
	case abi.VariantTypeVector2, abi.VariantTypeVector3, abi.VariantTypeVector4, abi.VariantTypeRect2:
		fs := make([]float32, v.components())
		for i := range fs {
			fs[i] = float32(v.i32(i))
		}
		return vFloats(to, fs...), true
	case abi.VariantTypeVector2i, abi.VariantTypeVector3i, abi.VariantTypeVector4i, abi.VariantTypeRect2i:
		is := make([]int32, v.components())
		for i := range is {
			is[i] = int32(v.f32(i))
		}
		return vInts(to, is...), true
	}
	if to == abi.VariantTypeArray || abi.IsPacked(to) {
		return h.convertContainer(v, to)
	}
	return nilVal, false
}

// evaluate applies op; ok is false when the operand kinds do not support it.
func (h *Host) evaluate(op abi.VariantOperator, a, b val) (val, bool) {
	switch op {
	case abi.OpEqual:
		return vBool(h.equal(a, b)), true
	case abi.OpNotEqual:
		return vBool(!h.equal(a, b)), true
	case abi.OpNot:
		return vBool(!h.booleanize(a)), true
	case abi.OpAnd:
		return vBool(h.booleanize(a) && h.booleanize(b)), true
	case abi.OpOr:
		return vBool(h.booleanize(a) || h.booleanize(b)), true
	case abi.OpXor:
		return vBool(h.booleanize(a) != h.booleanize(b)), true
	case abi.OpIn:
		return h.contains(b, a)
	}

	if isNumber(a.t) && (isNumber(b.t) || op == abi.OpNegate || op == abi.OpPositive || op == abi.OpBitNegate) {
		return evalNumber(op, a, b)
	}
	if isStringKind(a.t) && isStringKind(b.t) {
		x, _ := h.asString(a)
		y, _ := h.asString(b)
		switch op {
		case abi.OpAdd:
			return h.vStr(abi.VariantTypeString, x+y), true
		case abi.OpLess:
			return vBool(x < y), true
		case abi.OpLessEqual:
			return vBool(x <= y), true
		case abi.OpGreater:
			return vBool(x > y), true
		case abi.OpGreaterEqual:
			return vBool(x >= y), true
		}
		return nilVal, false
	}
	if a.t == b.t && (a.t == abi.VariantTypeVector2 || a.t == abi.VariantTypeVector3 || a.t == abi.VariantTypeVector4) {
		fs := make([]float32, a.components())
		for i := range fs {
			x, y := a.f32(i), b.f32(i)
			switch op {
			case abi.OpAdd:
				fs[i] = x + y
			case abi.OpSubtract:
				fs[i] = x - y
			case abi.OpMultiply:
				fs[i] = x * y
			case abi.OpDivide:
				fs[i] = x / y
			default:
				return nilVal, false
			}
		}
		return vFloats(a.t, fs...), true
	}
	if a.t == abi.VariantTypeArray && b.t == abi.VariantTypeArray && op == abi.OpAdd {
		ca, cb := h.container(le32(a.b)), h.container(le32(b.b))
		if ca == nil || cb == nil {
			return nilVal, false
		}
		return h.newArray(append(h.elements(ca), h.elements(cb)...)), true
	}
	return nilVal, false
}

func evalNumber(op abi.VariantOperator, a, b val) (val, bool) {
	if a.t == abi.VariantTypeInt && (b.t == abi.VariantTypeInt || b.t == abi.VariantTypeNil) {
		x, _ := a.asInt()
		y, _ := b.asInt()
		switch op {
		case abi.OpAdd:
			return vInt(x + y), true
		case abi.OpSubtract:
			return vInt(x - y), true
		case abi.OpMultiply:
			return vInt(x * y), true
		case abi.OpDivide:
			if y == 0 {
				return nilVal, false
			}
			return vInt(x / y), true
		case abi.OpModule:
			if y == 0 {
				return nilVal, false
			}
			return vInt(x % y), true
		case abi.OpNegate:
			return vInt(-x), true
		case abi.OpPositive:
			return vInt(x), true
		case abi.OpShiftLeft:
			return vInt(x << uint64(y)), true
		case abi.OpShiftRight:
			return vInt(x >> uint64(y)), true
		case abi.OpBitAnd:
			return vInt(x & y), true
		case abi.OpBitOr:
			return vInt(x | y), true
		case abi.OpBitXor:
			return vInt(x ^ y), true
		case abi.OpBitNegate:
			return vInt(^x), true
		case abi.OpPower:
			return vInt(int64(math.Pow(float64(x), float64(y)))), true
		case abi.OpLess:
			return vBool(x < y), true
		case abi.OpLessEqual:
			return vBool(x <= y), true
		case abi.OpGreater:
			return vBool(x > y), true
		case abi.OpGreaterEqual:
			return vBool(x >= y), true
		}
		return nilVal, false
	}

	x, _ := a.asFloat()
	y, _ := b.asFloat()
	switch op {
	case abi.OpAdd:
		return vFloat(x + y), true
	case abi.OpSubtract:
		return vFloat(x - y), true
	case abi.OpMultiply:
		return vFloat(x * y), true
	case abi.OpDivide:
		return vFloat(x / y), true
	case abi.OpModule:
		return vFloat(math.Mod(x, y)), true
	case abi.OpNegate:
		return vFloat(-x), true
	case abi.OpPositive:
		return vFloat(x), true
	case abi.OpPower:
		return vFloat(math.Pow(x, y)), true
	case abi.OpLess:
		return vBool(x < y), true
	case abi.OpLessEqual:
		return vBool(x <= y), true
	case abi.OpGreater:
		return vBool(x > y), true
	case abi.OpGreaterEqual:
		return vBool(x >= y), true
	}
	return nilVal, false
}

// contains implements the "in" operator with container on the left.
func (h *Host) contains(container, item val) (val, bool) {
	switch {
	case isStringKind(container.t):
		s, _ := h.asString(container)
		sub, ok := h.asString(item)
		if !ok {
			return nilVal, false
		}
		return vBool(strings.Contains(s, sub)), true
	case container.t == abi.VariantTypeDictionary:
		c := h.container(le32(container.b))
		return vBool(c != nil && h.dictFind(c, item) >= 0), true
	case container.t == abi.VariantTypeArray || abi.IsPacked(container.t):
		c := h.container(le32(container.b))
		if c == nil {
			return vBool(false), true
		}
		elems := h.elements(c)
		defer h.dropAll(elems)
		for _, e := range elems {
			if h.equal(e, item) {
				return vBool(true), true
			}
		}
		return vBool(false), true
	}
	return nilVal, false
}

// duplicate copies containers; deep also copies nested containers.
func (h *Host) duplicate(v val, deep bool) val {
	switch {
	case v.t == abi.VariantTypeArray || abi.IsPacked(v.t):
		c := h.container(le32(v.b))
		if c == nil {
			return h.defaultVal(v.t)
		}
		elems := h.elements(c)
		if deep {
			for i, e := range elems {
				elems[i] = h.duplicate(e, true)
				h.drop(e)
			}
		}
		if v.t == abi.VariantTypeArray {
			return h.newArray(elems)
		}
		id := h.newContainer(v.t)
		dst := h.container(id)
		h.resize(dst, len(elems))
		for i, e := range elems {
			h.packedSet(dst, i, e)
		}
		h.dropAll(elems)
		return h.vContainer(v.t, id)
	case v.t == abi.VariantTypeDictionary:
		c := h.container(le32(v.b))
		id := h.newContainer(abi.VariantTypeDictionary)
		if c == nil {
			return h.vContainer(v.t, id)
		}
		dst := h.container(id)
		for i := range c.keys {
			k := h.load(c.keys[i])
			value := h.load(c.vals[i])
			slot := h.dictSlot(dst, k, true)
			if deep {
				h.store(slot, h.duplicate(value, true))
			} else {
				h.store(slot, h.dup(value))
			}
		}
		return h.vContainer(v.t, id)
	}
	return h.dup(v)
}
