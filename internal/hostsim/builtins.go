package hostsim

import (
	"math"
	"strings"

	"github.com/wippyai/gdext-bridge/abi"
)

// builtin is a method of a builtin Variant type. Argument kinds are the
// ptrcall layout; Nil means a full Variant. fn borrows self and args and
// returns an owned result.
type builtin struct {
	args   []abi.VariantType
	ret    abi.VariantType
	hasRet bool
	fn     func(self val, args []val) val
}

type utility struct {
	args []abi.VariantType
	ret  abi.VariantType
	fn   func(args []val) val
}

func (h *Host) installBuiltins() {
	h.builtins = make(map[abi.VariantType]map[string]builtin)
	add := func(t abi.VariantType, name string, b builtin) {
		if h.builtins[t] == nil {
			h.builtins[t] = make(map[string]builtin)
		}
		h.builtins[t][name] = b
	}
	size := builtin{ret: abi.VariantTypeInt, hasRet: true, fn: func(self val, _ []val) val {
		n, _ := h.length(self)
		return vInt(int64(n))
	}}
	isEmpty := builtin{ret: abi.VariantTypeBool, hasRet: true, fn: func(self val, _ []val) val {
		n, _ := h.length(self)
		return vBool(n == 0)
	}}
	resize := builtin{args: []abi.VariantType{abi.VariantTypeInt}, ret: abi.VariantTypeInt, hasRet: true, fn: func(self val, args []val) val {
		n, _ := args[0].asInt()
		c := h.container(le32(self.b))
		if c == nil || n < 0 {
			return vInt(31)
		}
		h.resize(c, int(n))
		return vInt(0)
	}}
	has := builtin{args: []abi.VariantType{abi.VariantTypeNil}, ret: abi.VariantTypeBool, hasRet: true, fn: func(self val, args []val) val {
		v, _ := h.contains(self, args[0])
		return v
	}}
	clear := builtin{fn: func(self val, _ []val) val {
		c := h.container(le32(self.b))
		if c == nil {
			return nilVal
		}
		h.resize(c, 0)
		for len(c.keys) > 0 {
			h.dictErase(c, h.load(c.keys[0]))
		}
		return nilVal
	}}

	for _, t := range []abi.VariantType{abi.VariantTypeArray, abi.VariantTypeDictionary} {
		add(t, "size", size)
		add(t, "is_empty", isEmpty)
		add(t, "has", has)
		add(t, "clear", clear)
	}
	for t := abi.VariantTypePackedByteArray; t <= abi.VariantTypePackedColorArray; t++ {
		add(t, "size", size)
		add(t, "is_empty", isEmpty)
		add(t, "resize", resize)
		add(t, "has", has)
	}

	add(abi.VariantTypeArray, "resize", resize)
	appendFn := builtin{args: []abi.VariantType{abi.VariantTypeNil}, fn: func(self val, args []val) val {
		if c := h.container(le32(self.b)); c != nil {
			h.arrayAppend(c, h.dup(args[0]))
		}
		return nilVal
	}}
	add(abi.VariantTypeArray, "append", appendFn)
	add(abi.VariantTypeArray, "push_back", appendFn)
	add(abi.VariantTypeArray, "find", builtin{args: []abi.VariantType{abi.VariantTypeNil}, ret: abi.VariantTypeInt, hasRet: true,
		fn: func(self val, args []val) val {
			c := h.container(le32(self.b))
			if c == nil {
				return vInt(-1)
			}
			for i := 0; i < c.n; i++ {
				if h.equal(h.load(c.at(i)), args[0]) {
					return vInt(int64(i))
				}
			}
			return vInt(-1)
		}})

	dictList := func(keys bool) builtin {
		return builtin{ret: abi.VariantTypeArray, hasRet: true, fn: func(self val, _ []val) val {
			c := h.container(le32(self.b))
			if c == nil {
				return h.newArray(nil)
			}
			src := c.vals
			if keys {
				src = c.keys
			}
			out := make([]val, len(src))
			for i, s := range src {
				out[i] = h.dup(h.load(s))
			}
			return h.newArray(out)
		}}
	}
	add(abi.VariantTypeDictionary, "keys", dictList(true))
	add(abi.VariantTypeDictionary, "values", dictList(false))
	add(abi.VariantTypeDictionary, "erase", builtin{args: []abi.VariantType{abi.VariantTypeNil}, ret: abi.VariantTypeBool, hasRet: true,
		fn: func(self val, args []val) val {
			c := h.container(le32(self.b))
			return vBool(c != nil && h.dictErase(c, args[0]))
		}})

	strFn := func(f func(string) string) builtin {
		return builtin{ret: abi.VariantTypeString, hasRet: true, fn: func(self val, _ []val) val {
			s, _ := h.asString(self)
			return h.vStr(abi.VariantTypeString, f(s))
		}}
	}
	add(abi.VariantTypeString, "length", size)
	add(abi.VariantTypeString, "is_empty", isEmpty)
	add(abi.VariantTypeString, "to_upper", strFn(strings.ToUpper))
	add(abi.VariantTypeString, "to_lower", strFn(strings.ToLower))
	add(abi.VariantTypeString, "begins_with", builtin{args: []abi.VariantType{abi.VariantTypeString}, ret: abi.VariantTypeBool, hasRet: true,
		fn: func(self val, args []val) val {
			s, _ := h.asString(self)
			p, _ := h.asString(args[0])
			return vBool(strings.HasPrefix(s, p))
		}})

	for _, t := range []abi.VariantType{abi.VariantTypeVector2, abi.VariantTypeVector3, abi.VariantTypeVector4} {
		t := t
		add(t, "length", builtin{ret: abi.VariantTypeFloat, hasRet: true, fn: func(self val, _ []val) val {
			var sum float64
			for i := 0; i < self.components(); i++ {
				f := float64(self.f32(i))
				sum += f * f
			}
			return vFloat(math.Sqrt(sum))
		}})
		add(t, "dot", builtin{args: []abi.VariantType{t}, ret: abi.VariantTypeFloat, hasRet: true, fn: func(self val, args []val) val {
			var sum float64
			for i := 0; i < self.components(); i++ {
				sum += float64(self.f32(i)) * float64(args[0].f32(i))
			}
			return vFloat(sum)
		}})
	}

	getObject := builtin{ret: abi.VariantTypeObject, hasRet: true, fn: func(self val, _ []val) val {
		return h.vObject(abi.Ptr(le32(self.b)))
	}}
	getName := builtin{ret: abi.VariantTypeStringName, hasRet: true, fn: func(self val, _ []val) val {
		return h.vStr(abi.VariantTypeStringName, h.str(le32(self.b[4:])))
	}}
	add(abi.VariantTypeCallable, "get_object", getObject)
	add(abi.VariantTypeCallable, "get_method", getName)
	add(abi.VariantTypeCallable, "is_null", builtin{ret: abi.VariantTypeBool, hasRet: true, fn: func(self val, _ []val) val {
		return vBool(le32(self.b) == 0)
	}})
	add(abi.VariantTypeSignal, "get_object", getObject)
	add(abi.VariantTypeSignal, "get_name", getName)

	h.utilities = map[string]utility{
		"absi": {args: []abi.VariantType{abi.VariantTypeInt}, ret: abi.VariantTypeInt, fn: func(a []val) val {
			i, _ := a[0].asInt()
			if i < 0 {
				i = -i
			}
			return vInt(i)
		}},
		"absf": {args: []abi.VariantType{abi.VariantTypeFloat}, ret: abi.VariantTypeFloat, fn: func(a []val) val {
			f, _ := a[0].asFloat()
			return vFloat(math.Abs(f))
		}},
		"maxi": {args: []abi.VariantType{abi.VariantTypeInt, abi.VariantTypeInt}, ret: abi.VariantTypeInt, fn: func(a []val) val {
			x, _ := a[0].asInt()
			y, _ := a[1].asInt()
			return vInt(max(x, y))
		}},
		"mini": {args: []abi.VariantType{abi.VariantTypeInt, abi.VariantTypeInt}, ret: abi.VariantTypeInt, fn: func(a []val) val {
			x, _ := a[0].asInt()
			y, _ := a[1].asInt()
			return vInt(min(x, y))
		}},
		"clampi": {args: []abi.VariantType{abi.VariantTypeInt, abi.VariantTypeInt, abi.VariantTypeInt}, ret: abi.VariantTypeInt, fn: func(a []val) val {
			x, _ := a[0].asInt()
			lo, _ := a[1].asInt()
			hi, _ := a[2].asInt()
			return vInt(min(max(x, lo), hi))
		}},
		"lerpf": {args: []abi.VariantType{abi.VariantTypeFloat, abi.VariantTypeFloat, abi.VariantTypeFloat}, ret: abi.VariantTypeFloat, fn: func(a []val) val {
			from, _ := a[0].asFloat()
			to, _ := a[1].asFloat()
			w, _ := a[2].asFloat()
			return vFloat(from + (to-from)*w)
		}},
		"is_equal_approx": {args: []abi.VariantType{abi.VariantTypeFloat, abi.VariantTypeFloat}, ret: abi.VariantTypeBool, fn: func(a []val) val {
			x, _ := a[0].asFloat()
			y, _ := a[1].asFloat()
			tolerance := 0.00001 * math.Abs(x)
			if tolerance < 0.00001 {
				tolerance = 0.00001
			}
			return vBool(math.Abs(x-y) < tolerance)
		}},
	}
}

func (h *Host) builtin(t abi.VariantType, name string) (builtin, bool) {
	b, ok := h.builtins[t][name]
	return b, ok
}

// callBuiltin runs a builtin through the variant path. args are Variant
// slots; the result is written to the uninitialized ret.
func (h *Host) callBuiltin(self abi.Ptr, name string, args []abi.Ptr, ret abi.Ptr, ce *abi.CallError) {
	s := h.load(self)
	b, ok := h.builtin(s.t, name)
	if !ok {
		h.store(ret, nilVal)
		h.putCallError(ce, abi.CallErrorInvalidMethod, 0, 0)
		return
	}
	if len(args) < len(b.args) {
		h.store(ret, nilVal)
		h.putCallError(ce, abi.CallErrorTooFewArguments, 0, int32(len(b.args)))
		return
	}
	if len(args) > len(b.args) {
		h.store(ret, nilVal)
		h.putCallError(ce, abi.CallErrorTooManyArguments, 0, int32(len(b.args)))
		return
	}
	vals := make([]val, len(args))
	for i, a := range args {
		v, ok := h.convert(h.load(a), b.args[i])
		if !ok {
			h.dropAll(vals[:i])
			h.store(ret, nilVal)
			h.putCallError(ce, abi.CallErrorInvalidArgument, int32(i), int32(b.args[i]))
			return
		}
		vals[i] = v
	}
	out := b.fn(s, vals)
	h.dropAll(vals)
	h.store(ret, out)
	h.putCallError(ce, abi.CallOK, 0, 0)
}

func (h *Host) ptrBuiltin(t abi.VariantType, name string) abi.PtrBuiltInMethod {
	b, ok := h.builtin(t, name)
	if !ok {
		return nil
	}
	return func(base abi.Ptr, args []abi.Ptr, ret abi.Ptr) {
		self := h.readTyped(t, base)
		vals := make([]val, len(b.args))
		for i := range b.args {
			if i < len(args) {
				vals[i] = h.readTyped(b.args[i], args[i])
			}
		}
		out := b.fn(self, vals)
		if b.hasRet && !ret.IsNull() {
			h.assignTyped(b.ret, ret, out)
			return
		}
		h.drop(out)
	}
}

func (h *Host) ptrUtility(name string) abi.PtrUtilityFunction {
	u, ok := h.utilities[name]
	if !ok {
		return nil
	}
	return func(ret abi.Ptr, args []abi.Ptr) {
		vals := make([]val, len(u.args))
		for i := range u.args {
			if i < len(args) {
				vals[i] = h.readTyped(u.args[i], args[i])
			}
		}
		h.assignTyped(u.ret, ret, u.fn(vals))
	}
}
