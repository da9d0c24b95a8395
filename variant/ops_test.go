package variant

import (
	stderrors "errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wippyai/gdext-bridge/abi"
	"github.com/wippyai/gdext-bridge/errors"
)

func TestIndexedAccess(t *testing.T) {
	f := newFixture(t)
	f.checkBalanced(t, func() {
		got, err := f.m.GetIndexed(Array{1, 2, 3}, 1)
		if err != nil {
			t.Fatalf("GetIndexed failed: %v", err)
		}
		if got != int64(2) {
			t.Errorf("GetIndexed = %v, want 2", got)
		}

		_, err = f.m.GetIndexed(Array{1}, 5)
		var e *errors.Error
		if !stderrors.As(err, &e) || e.Kind != errors.KindOutOfBounds {
			t.Errorf("GetIndexed(5) error = %v, want out of bounds", err)
		}

		updated, err := f.m.SetIndexed(Array{1, 2}, 0, "x")
		if err != nil {
			t.Fatalf("SetIndexed failed: %v", err)
		}
		if diff := cmp.Diff(Array{"x", int64(2)}, updated); diff != "" {
			t.Errorf("SetIndexed mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestKeyedAndNamedAccess(t *testing.T) {
	f := newFixture(t)
	f.checkBalanced(t, func() {
		d := Dictionary{{Key: "a", Value: 1}}
		got, err := f.m.GetKeyed(d, "a")
		if err != nil || got != int64(1) {
			t.Errorf("GetKeyed(a) = %v, %v; want 1", got, err)
		}
		if _, err := f.m.GetKeyed(d, "missing"); err == nil {
			t.Error("GetKeyed(missing) succeeded")
		}

		updated, err := f.m.SetKeyed(d, "b", true)
		if err != nil {
			t.Fatalf("SetKeyed failed: %v", err)
		}
		want := Dictionary{{Key: "a", Value: int64(1)}, {Key: "b", Value: true}}
		if diff := cmp.Diff(want, updated); diff != "" {
			t.Errorf("SetKeyed mismatch (-want +got):\n%s", diff)
		}

		y, err := f.m.GetNamed(Vector2{1, 2}, "y")
		if err != nil || y != 2.0 {
			t.Errorf("GetNamed(y) = %v, %v; want 2", y, err)
		}
		v, err := f.m.SetNamed(Vector2{1, 2}, "x", 5.0)
		if err != nil || v != (Vector2{5, 2}) {
			t.Errorf("SetNamed(x) = %v, %v; want (5, 2)", v, err)
		}
		if _, err := f.m.GetNamed(Vector2{}, "w"); err == nil {
			t.Error("GetNamed(w) on Vector2 succeeded")
		}
	})
}

func TestFailedOperationsReleaseCleanly(t *testing.T) {
	f := newFixture(t)
	unencodable := make(chan int)
	f.checkBalanced(t, func() {
		if _, err := f.m.GetKeyed(Dictionary{{Key: "a", Value: 1}}, unencodable); err == nil {
			t.Error("GetKeyed with an unencodable key succeeded")
		}
		if _, err := f.m.Evaluate(abi.OpAdd, int64(1), unencodable); err == nil {
			t.Error("Evaluate with an unencodable operand succeeded")
		}
		if _, err := f.m.Call("abc", "length", unencodable); err == nil {
			t.Error("Call with an unencodable argument succeeded")
		}
	})
}

func TestIterate(t *testing.T) {
	f := newFixture(t)
	f.checkBalanced(t, func() {
		var sum int64
		err := f.m.Iterate(Array{1, 2, 3, 4}, func(v any) bool {
			sum += v.(int64)
			return true
		})
		if err != nil {
			t.Fatalf("Iterate failed: %v", err)
		}
		if sum != 10 {
			t.Errorf("sum = %d, want 10", sum)
		}

		var seen int
		_ = f.m.Iterate(Array{1, 2, 3}, func(any) bool {
			seen++
			return seen < 2
		})
		if seen != 2 {
			t.Errorf("early stop visited %d, want 2", seen)
		}

		if err := f.m.Iterate(Array{}, func(any) bool {
			t.Error("callback on empty array")
			return true
		}); err != nil {
			t.Errorf("Iterate(empty) failed: %v", err)
		}
	})
}

func TestHashingAndTruth(t *testing.T) {
	f := newFixture(t)
	f.checkBalanced(t, func() {
		a, _ := f.m.Hash(Array{1, "x"})
		b, _ := f.m.Hash(Array{1, "x"})
		if a != b {
			t.Errorf("equal arrays hash %d and %d", a, b)
		}
		if r, _ := f.m.RecursiveHash(Array{1, "x"}, 100); r != a {
			t.Errorf("RecursiveHash = %d, want %d", r, a)
		}

		if eq, _ := f.m.HashCompare("k", "k"); !eq {
			t.Error("HashCompare(k, k) = false")
		}
		if eq, _ := f.m.HashCompare(1, 1.0); eq {
			t.Error("HashCompare(int, float) = true")
		}

		for _, tt := range []struct {
			in   any
			want bool
		}{{0, false}, {3, true}, {"", false}, {"x", true}, {nil, false}, {Array{}, false}} {
			if got, _ := f.m.Booleanize(tt.in); got != tt.want {
				t.Errorf("Booleanize(%v) = %v, want %v", tt.in, got, tt.want)
			}
		}
	})
}

func TestStringifyAndEvaluate(t *testing.T) {
	f := newFixture(t)
	f.checkBalanced(t, func() {
		s, err := f.m.Stringify(Vector2{20, 1.5})
		if err != nil || s != "(20, 1.5)" {
			t.Errorf("Stringify = %q, %v", s, err)
		}

		sum, err := f.m.Evaluate(abi.OpAdd, 2, 3)
		if err != nil || sum != int64(5) {
			t.Errorf("Evaluate(2 + 3) = %v, %v", sum, err)
		}
		less, err := f.m.Evaluate(abi.OpLess, 1.5, 2)
		if err != nil || less != true {
			t.Errorf("Evaluate(1.5 < 2) = %v, %v", less, err)
		}
		if _, err := f.m.Evaluate(abi.OpSubtract, "a", Array{}); err == nil {
			t.Error("Evaluate(String - Array) succeeded")
		}
	})
}

func TestCallBuiltins(t *testing.T) {
	f := newFixture(t)
	f.checkBalanced(t, func() {
		up, err := f.m.Call("godot", "to_upper")
		if err != nil || up != "GODOT" {
			t.Errorf("Call(to_upper) = %v, %v", up, err)
		}
		n, err := f.m.Call(Array{1, 2}, "size")
		if err != nil || n != int64(2) {
			t.Errorf("Call(size) = %v, %v", n, err)
		}

		_, err = f.m.Call("x", "length", 1)
		var e *errors.Error
		if !stderrors.As(err, &e) || e.Kind != errors.KindCallFailed {
			t.Fatalf("Call(length, 1) error = %v, want call failure", err)
		}
		ce, ok := e.Value.(abi.CallError)
		if !ok || ce.Error != abi.CallErrorTooManyArguments || ce.Expected != 0 {
			t.Errorf("CallError = %+v, want too many arguments", e.Value)
		}

		if _, err := f.m.Call(1, "no_such_method"); err == nil {
			t.Error("Call(no_such_method) succeeded")
		}
	})
}

func TestUtility(t *testing.T) {
	f := newFixture(t)
	f.checkBalanced(t, func() {
		ints := []abi.VariantType{abi.VariantTypeInt, abi.VariantTypeInt}
		got, err := f.m.Utility("maxi", 3133453818, abi.VariantTypeInt, ints, 3, 9)
		if err != nil || got != int64(9) {
			t.Errorf("maxi(3, 9) = %v, %v", got, err)
		}
		got, err = f.m.Utility("lerpf", 0, abi.VariantTypeFloat,
			[]abi.VariantType{abi.VariantTypeFloat, abi.VariantTypeFloat, abi.VariantTypeFloat}, 0.0, 10.0, 0.5)
		if err != nil || got != 5.0 {
			t.Errorf("lerpf = %v, %v", got, err)
		}
		if _, err := f.m.Utility("nope", 0, abi.VariantTypeNil, nil); err == nil {
			t.Error("Utility(nope) succeeded")
		}
		if _, err := f.m.Utility("maxi", 0, abi.VariantTypeInt, ints, 1); err == nil {
			t.Error("Utility with wrong arity succeeded")
		}
	})
}

func TestCallableRoundTrip(t *testing.T) {
	f := newFixture(t)
	obj, err := f.host.Instantiate("Node")
	if err != nil {
		t.Fatalf("Instantiate failed: %v", err)
	}
	defer f.host.Free(obj)

	f.checkBalanced(t, func() {
		for _, in := range []any{
			Callable{Object: obj, Method: "queue_free"},
			Signal{Object: obj, Name: "renamed"},
		} {
			slot, err := f.m.Encode(in)
			if err != nil {
				t.Fatalf("Encode(%T) failed: %v", in, err)
			}
			got, err := f.m.DecodeAny(slot)
			f.m.Destroy(slot)
			if err != nil {
				t.Fatalf("DecodeAny(%T) failed: %v", in, err)
			}
			if diff := cmp.Diff(in, got); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		}
	})
}
