package hostsim

import (
	"testing"

	"github.com/wippyai/gdext-bridge/abi"
)

func TestVariantConstructAndEvaluate(t *testing.T) {
	h := newHost(t)
	tab := h.Table()

	x := h.VariantInt(20)
	y := h.VariantFloat(1.5)
	defer h.FreeVariant(x)
	defer h.FreeVariant(y)

	ret := h.alloc(abi.VariantSize)
	if !tab.VariantEvaluate(abi.OpAdd, x, y, ret) {
		t.Fatal("int + float not supported")
	}
	if f, _ := h.Float(ret); f != 21.5 {
		t.Errorf("20 + 1.5 = %v", f)
	}
	tab.VariantDestroy(ret)

	if !tab.VariantEvaluate(abi.OpLess, x, y, ret) || h.Bool(ret) {
		t.Error("20 < 1.5 should be false")
	}
	tab.VariantDestroy(ret)

	s := h.VariantString("a")
	defer h.FreeVariant(s)
	if tab.VariantEvaluate(abi.OpSubtract, s, x, ret) {
		t.Error("String - int should not be supported")
	}
	tab.VariantDestroy(ret)

	var ce abi.CallError
	digits := h.VariantString("12")
	defer h.FreeVariant(digits)
	tab.VariantConstruct(abi.VariantTypeInt, ret, []abi.Ptr{digits}, &ce)
	if n, _ := h.Int(ret); !ce.OK() || n != 12 {
		t.Errorf("int(\"12\") = %d, error %v", n, ce)
	}
	tab.VariantDestroy(ret)

	tab.VariantConstruct(abi.VariantTypeInt, ret, []abi.Ptr{s}, &ce)
	if ce.Error != abi.CallErrorInvalidArgument {
		t.Errorf("int(\"a\") error = %v", ce)
	}
	tab.VariantDestroy(ret)

	tab.VariantConstruct(abi.VariantTypeVector2, ret, []abi.Ptr{x, y}, &ce)
	if !ce.OK() {
		t.Fatalf("Vector2(20, 1.5) error = %v", ce)
	}
	if got := h.Stringify(ret); got != "(20, 1.5)" {
		t.Errorf("Stringify = %q", got)
	}
	tab.VariantDestroy(ret)
	h.free(ret)
}

func TestVariantHashCompare(t *testing.T) {
	h := newHost(t)
	tab := h.Table()

	a, b := h.VariantString("key"), h.VariantString("key")
	i, f := h.VariantInt(1), h.VariantFloat(1)
	defer func() {
		for _, p := range []abi.Ptr{a, b, i, f} {
			h.FreeVariant(p)
		}
	}()

	if tab.VariantHash(a) != tab.VariantHash(b) {
		t.Error("equal strings hash differently")
	}
	if !tab.VariantHashCompare(a, b) {
		t.Error("HashCompare(equal strings) = false")
	}
	if tab.VariantHashCompare(i, f) {
		t.Error("HashCompare(1, 1.0) = true")
	}
	null := h.VariantNil()
	defer h.FreeVariant(null)
	if !tab.VariantBooleanize(a) || tab.VariantBooleanize(null) {
		t.Error("Booleanize mismatch")
	}
}

func TestArrayBuiltinsAndIteration(t *testing.T) {
	h := newHost(t)
	tab := h.Table()
	baseContainers := h.Containers()

	arr := h.alloc(abi.VariantSize)
	var ce abi.CallError
	tab.VariantConstruct(abi.VariantTypeArray, arr, nil, &ce)

	appendName := h.StringName("append")
	defer h.FreeString(appendName)
	for i := int64(0); i < 3; i++ {
		v := h.VariantInt(i * 10)
		ret := h.alloc(abi.VariantSize)
		tab.VariantCall(arr, appendName, []abi.Ptr{v}, ret, &ce)
		if !ce.OK() {
			t.Fatalf("append error = %v", ce)
		}
		h.FreeVariant(ret)
		h.FreeVariant(v)
	}

	sizeName := h.StringName("size")
	defer h.FreeString(sizeName)
	ret := h.alloc(abi.VariantSize)
	tab.VariantCall(arr, sizeName, nil, ret, &ce)
	if n, _ := h.Int(ret); n != 3 {
		t.Errorf("size() = %d", n)
	}
	h.FreeVariant(ret)

	extra := h.VariantInt(1)
	ret = h.alloc(abi.VariantSize)
	tab.VariantCall(arr, sizeName, []abi.Ptr{extra}, ret, &ce)
	if ce.Error != abi.CallErrorTooManyArguments || ce.Expected != 0 {
		t.Errorf("size(1) error = %v", ce)
	}
	h.FreeVariant(ret)
	h.FreeVariant(extra)

	iter := h.VariantNil()
	var got []int64
	more, valid := tab.VariantIterInit(arr, iter)
	for valid && more {
		v := h.alloc(abi.VariantSize)
		tab.VariantIterGet(arr, iter, v)
		n, _ := h.Int(v)
		got = append(got, n)
		h.FreeVariant(v)
		more, valid = tab.VariantIterNext(arr, iter)
	}
	h.FreeVariant(iter)
	if len(got) != 3 || got[0] != 0 || got[2] != 20 {
		t.Errorf("iteration = %v", got)
	}

	v := h.alloc(abi.VariantSize)
	valid, oob := tab.VariantGetIndexed(arr, -1, v)
	if !valid || oob {
		t.Errorf("GetIndexed(-1) valid=%v oob=%v", valid, oob)
	}
	if n, _ := h.Int(v); n != 20 {
		t.Errorf("arr[-1] = %d", n)
	}
	h.FreeVariant(v)

	v = h.alloc(abi.VariantSize)
	if _, oob := tab.VariantGetIndexed(arr, 5, v); !oob {
		t.Error("GetIndexed(5) not out of bounds")
	}
	h.FreeVariant(v)

	h.FreeVariant(arr)
	if h.Containers() != baseContainers {
		t.Errorf("Containers() = %d, want %d", h.Containers(), baseContainers)
	}
}

func TestDictionaryKeyed(t *testing.T) {
	h := newHost(t)
	tab := h.Table()

	dict := h.alloc(abi.VariantSize)
	var ce abi.CallError
	tab.VariantConstruct(abi.VariantTypeDictionary, dict, nil, &ce)
	defer h.FreeVariant(dict)

	key, value := h.VariantString("hp"), h.VariantInt(7)
	defer h.FreeVariant(key)
	defer h.FreeVariant(value)
	if !tab.VariantSetKeyed(dict, key, value) {
		t.Fatal("SetKeyed failed")
	}

	ret := h.alloc(abi.VariantSize)
	if !tab.VariantGetKeyed(dict, key, ret) {
		t.Fatal("GetKeyed failed")
	}
	if n, _ := h.Int(ret); n != 7 {
		t.Errorf("dict[hp] = %d", n)
	}
	h.FreeVariant(ret)

	name := h.StringName("hp")
	defer h.FreeString(name)
	ret = h.alloc(abi.VariantSize)
	if !tab.VariantGetNamed(dict, name, ret) {
		t.Error("GetNamed on Dictionary failed")
	}
	h.FreeVariant(ret)

	missing := h.VariantString("mp")
	defer h.FreeVariant(missing)
	ret = h.alloc(abi.VariantSize)
	if tab.VariantGetKeyed(dict, missing, ret) {
		t.Error("GetKeyed(missing) = true")
	}
	h.FreeVariant(ret)
}

func TestPtrAccessors(t *testing.T) {
	h := newHost(t)
	tab := h.Table()

	add := tab.VariantGetPtrOperatorEvaluator(abi.OpAdd, abi.VariantTypeInt, abi.VariantTypeInt)
	if add == nil {
		t.Fatal("no int + int evaluator")
	}
	a, b, r := h.TypedInt(2), h.TypedInt(3), h.TypedInt(0)
	add(a, b, r)
	if h.ReadInt(r) != 5 {
		t.Errorf("2 + 3 = %d", h.ReadInt(r))
	}
	if tab.VariantGetPtrOperatorEvaluator(abi.OpAdd, abi.VariantTypeString, abi.VariantTypeInt) != nil {
		t.Error("String + int evaluator should be nil")
	}

	name := h.StringName("maxi")
	maxi := tab.VariantGetPtrUtilityFunction(name, 0)
	h.FreeString(name)
	if maxi == nil {
		t.Fatal("no maxi utility")
	}
	maxi(r, []abi.Ptr{a, b})
	if h.ReadInt(r) != 3 {
		t.Errorf("maxi(2, 3) = %d", h.ReadInt(r))
	}

	if tab.VariantGetPtrDestructor(abi.VariantTypeInt) != nil {
		t.Error("int should have no destructor")
	}
	if tab.VariantGetPtrDestructor(abi.VariantTypeString) == nil {
		t.Error("String should have a destructor")
	}

	x := h.StringName("x")
	vec := h.NewTyped(abi.VariantTypeVector2)
	f := h.NewTyped(abi.VariantTypeFloat)
	h.write(f, vFloat(4).b)
	tab.VariantGetPtrSetter(abi.VariantTypeVector2, x)(vec, f)
	out := h.NewTyped(abi.VariantTypeFloat)
	tab.VariantGetPtrGetter(abi.VariantTypeVector2, x)(vec, out)
	if v, _ := h.readTyped(abi.VariantTypeFloat, out).asFloat(); v != 4 {
		t.Errorf("vec.x = %v", v)
	}
	h.FreeString(x)
	for _, p := range []abi.Ptr{a, b, r, vec, f, out} {
		h.free(p)
	}
}

func TestPackedArrayOperatorIndex(t *testing.T) {
	h := newHost(t)
	tab := h.Table()

	arr := h.NewTyped(abi.VariantTypePackedInt32Array)
	defer h.FreeTyped(abi.VariantTypePackedInt32Array, arr)

	name := h.StringName("resize")
	resize := tab.VariantGetPtrBuiltinMethod(abi.VariantTypePackedInt32Array, name, 0)
	h.FreeString(name)
	n := h.TypedInt(4)
	r := h.TypedInt(0)
	resize(arr, []abi.Ptr{n}, r)

	elem := tab.PackedInt32ArrayOperatorIndex(arr, 2)
	if elem.IsNull() {
		t.Fatal("operator[](2) = null")
	}
	h.putU32(elem, 99)

	get := tab.VariantGetPtrIndexedGetter(abi.VariantTypePackedInt32Array)
	get(arr, 2, r)
	if h.ReadInt(r) != 99 {
		t.Errorf("arr[2] = %d", h.ReadInt(r))
	}
	if !tab.PackedInt32ArrayOperatorIndex(arr, 4).IsNull() {
		t.Error("operator[](4) should be null")
	}
	h.free(n)
	h.free(r)
}

func TestVariantFromAndToType(t *testing.T) {
	h := newHost(t)
	tab := h.Table()

	src := h.TypedString("round")
	slot := h.alloc(abi.VariantSize)
	tab.GetVariantFromTypeConstructor(abi.VariantTypeString)(slot, src)
	h.FreeString(src)

	dst := h.alloc(8)
	tab.GetVariantToTypeConstructor(abi.VariantTypeString)(dst, slot)
	h.FreeVariant(slot)
	if got := h.ReadString(dst); got != "round" {
		t.Errorf("got %q", got)
	}
	h.FreeString(dst)
}
