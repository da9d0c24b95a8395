package variant

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wippyai/gdext-bridge/abi"
	"github.com/wippyai/gdext-bridge/errors"
	"github.com/wippyai/gdext-bridge/internal/hostsim"
)

type fixture struct {
	host *hostsim.Host
	m    *Marshaler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	h, err := hostsim.New(ctx, hostsim.DefaultOptions())
	if err != nil {
		t.Fatalf("hostsim.New failed: %v", err)
	}
	t.Cleanup(func() { _ = h.Close(ctx) })
	m, err := New(h.Table())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return &fixture{host: h, m: m}
}

// checkBalanced fails the test if fn leaves host memory, strings or
// containers behind, or makes the host report an error.
func (f *fixture) checkBalanced(t *testing.T, fn func()) {
	t.Helper()
	blocks, strs, conts := f.host.Heap().Live(), f.host.Strings(), f.host.Containers()
	fn()
	if got := f.host.Heap().Live(); got != blocks {
		t.Errorf("live heap blocks = %d, want %d", got, blocks)
	}
	if got := f.host.Strings(); got != strs {
		t.Errorf("live strings = %d, want %d", got, strs)
	}
	if got := f.host.Containers(); got != conts {
		t.Errorf("live containers = %d, want %d", got, conts)
	}
	for _, msg := range f.host.Errors() {
		t.Errorf("host error: %s", msg)
	}
}

func TestNewRejectsNilTable(t *testing.T) {
	_, err := New(nil)
	if !stderrors.Is(err, errors.ErrNotInitialized) {
		t.Errorf("New(nil) error = %v, want ErrNotInitialized", err)
	}
}

func TestRoundTrip(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		in   any
		want any
	}{
		{"nil", nil, nil},
		{"bool", true, true},
		{"int", 42, int64(42)},
		{"negative int", int64(-7), int64(-7)},
		{"uint8", uint8(200), int64(200)},
		{"float", 2.5, 2.5},
		{"float32", float32(0.5), 0.5},
		{"string", "héllo wörld", "héllo wörld"},
		{"empty string", "", ""},
		{"string name", StringName("_ready"), StringName("_ready")},
		{"node path", NodePath("Root/Child:position"), NodePath("Root/Child:position")},
		{"vector2", Vector2{1.5, -2}, Vector2{1.5, -2}},
		{"vector2i", Vector2i{3, 4}, Vector2i{3, 4}},
		{"rect2", Rect2{Vector2{0, 1}, Vector2{2, 3}}, Rect2{Vector2{0, 1}, Vector2{2, 3}}},
		{"vector3", Vector3{1, 2, 3}, Vector3{1, 2, 3}},
		{"vector4i", Vector4i{1, 2, 3, 4}, Vector4i{1, 2, 3, 4}},
		{"transform2d", Transform2D{{1, 0}, {0, 1}, {5, 6}}, Transform2D{{1, 0}, {0, 1}, {5, 6}}},
		{"plane", Plane{Normal: Vector3{0, 1, 0}, D: 2}, Plane{Normal: Vector3{0, 1, 0}, D: 2}},
		{"quaternion", Quaternion{0, 0, 0, 1}, Quaternion{0, 0, 0, 1}},
		{"aabb", AABB{Vector3{1, 1, 1}, Vector3{2, 2, 2}}, AABB{Vector3{1, 1, 1}, Vector3{2, 2, 2}}},
		{"basis", Basis{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}, Basis{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}},
		{
			"transform3d",
			Transform3D{Basis: Basis{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}, Origin: Vector3{7, 8, 9}},
			Transform3D{Basis: Basis{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}, Origin: Vector3{7, 8, 9}},
		},
		{"projection", Projection{{1, 0, 0, 0}, {0, 1, 0, 0}, {0, 0, 1, 0}, {0, 0, 0, 1}}, Projection{{1, 0, 0, 0}, {0, 1, 0, 0}, {0, 0, 1, 0}, {0, 0, 0, 1}}},
		{"color", Color{1, 0.5, 0.25, 1}, Color{1, 0.5, 0.25, 1}},
		{"rid", RID(99), RID(99)},
		{"null object", Object{}, Object{}},
		{"array", Array{int64(1), "two", 3.0, nil}, Array{int64(1), "two", 3.0, nil}},
		{"plain slice", []any{true, Vector2{1, 1}}, Array{true, Vector2{1, 1}}},
		{"empty array", Array{}, Array{}},
		{"nested array", Array{Array{int64(1)}, Array{}}, Array{Array{int64(1)}, Array{}}},
		{
			"dictionary",
			Dictionary{{Key: "a", Value: int64(1)}, {Key: int64(2), Value: Array{"x"}}},
			Dictionary{{Key: "a", Value: int64(1)}, {Key: int64(2), Value: Array{"x"}}},
		},
		{"empty dictionary", Dictionary{}, Dictionary{}},
		{"bytes", []byte{0, 1, 255}, PackedByteArray{0, 1, 255}},
		{"int32s", PackedInt32Array{-1, 2, 1 << 30}, PackedInt32Array{-1, 2, 1 << 30}},
		{"int64s", []int64{1 << 40, -3}, PackedInt64Array{1 << 40, -3}},
		{"float32s", PackedFloat32Array{0.5, -1}, PackedFloat32Array{0.5, -1}},
		{"float64s", PackedFloat64Array{1e100}, PackedFloat64Array{1e100}},
		{"strings", []string{"a", "", "ç"}, PackedStringArray{"a", "", "ç"}},
		{"vector2s", PackedVector2Array{{1, 2}, {3, 4}}, PackedVector2Array{{1, 2}, {3, 4}}},
		{"vector3s", PackedVector3Array{{1, 2, 3}}, PackedVector3Array{{1, 2, 3}}},
		{"colors", PackedColorArray{{0, 0, 0, 1}}, PackedColorArray{{0, 0, 0, 1}}},
		{"empty packed", PackedStringArray{}, PackedStringArray{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.checkBalanced(t, func() {
				slot, err := f.m.Encode(tt.in)
				if err != nil {
					t.Fatalf("Encode(%v) failed: %v", tt.in, err)
				}
				defer f.m.Destroy(slot)

				got, err := f.m.DecodeAny(slot)
				if err != nil {
					t.Fatalf("DecodeAny failed: %v", err)
				}
				if diff := cmp.Diff(tt.want, got); diff != "" {
					t.Errorf("round trip mismatch (-want +got):\n%s", diff)
				}
				want, _ := KindOf(tt.in)
				if k := f.m.Type(slot); k != want {
					t.Errorf("Type() = %s, want %s", k, want)
				}
			})
		})
	}
}

func TestTypedRoundTrip(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		kind abi.VariantType
		in   any
	}{
		{abi.VariantTypeInt, int64(5)},
		{abi.VariantTypeString, "typed"},
		{abi.VariantTypeStringName, StringName("name")},
		{abi.VariantTypeNodePath, NodePath("a/b")},
		{abi.VariantTypeArray, Array{int64(1), "x"}},
		{abi.VariantTypeDictionary, Dictionary{{Key: "k", Value: 1.5}}},
		{abi.VariantTypePackedStringArray, PackedStringArray{"p", "q"}},
		{abi.VariantTypeNil, "variant"},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			f.checkBalanced(t, func() {
				p, err := f.m.NewTyped(tt.kind, tt.in)
				if err != nil {
					t.Fatalf("NewTyped failed: %v", err)
				}
				defer f.m.FreeTyped(tt.kind, p)
				got, err := f.m.ReadTyped(tt.kind, p)
				if err != nil {
					t.Fatalf("ReadTyped failed: %v", err)
				}
				if diff := cmp.Diff(tt.in, got); diff != "" {
					t.Errorf("typed round trip mismatch (-want +got):\n%s", diff)
				}
			})
		})
	}
}

func TestAssignTypedReplacesValue(t *testing.T) {
	f := newFixture(t)
	f.checkBalanced(t, func() {
		p, err := f.m.NewTyped(abi.VariantTypeString, "first")
		if err != nil {
			t.Fatalf("NewTyped failed: %v", err)
		}
		defer f.m.FreeTyped(abi.VariantTypeString, p)

		if err := f.m.AssignTyped(abi.VariantTypeString, p, "second"); err != nil {
			t.Fatalf("AssignTyped failed: %v", err)
		}
		got, _ := f.m.ReadTyped(abi.VariantTypeString, p)
		if got != "second" {
			t.Errorf("after assign = %v, want second", got)
		}

		err = f.m.AssignTyped(abi.VariantTypeString, p, 12)
		if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseMarshal, Kind: errors.KindTypeMismatch}) {
			t.Errorf("AssignTyped(int) error = %v, want type mismatch", err)
		}
		got, _ = f.m.ReadTyped(abi.VariantTypeString, p)
		if got != "" {
			t.Errorf("after failed assign = %q, want default", got)
		}
	})
}

func TestAssignResetsOnFailure(t *testing.T) {
	f := newFixture(t)
	f.checkBalanced(t, func() {
		slot, err := f.m.Encode("value")
		if err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
		defer f.m.Destroy(slot)

		if err := f.m.Assign(slot, struct{}{}); err == nil {
			t.Fatal("Assign(struct{}) succeeded")
		}
		if k := f.m.Type(slot); k != abi.VariantTypeNil {
			t.Errorf("Type() after failed assign = %s, want Nil", k)
		}
	})
}

func TestDecodeConversion(t *testing.T) {
	f := newFixture(t)

	f.checkBalanced(t, func() {
		slot, _ := f.m.Encode(3)
		defer f.m.Destroy(slot)

		got, err := f.m.Decode(slot, abi.VariantTypeFloat)
		if err != nil {
			t.Fatalf("Decode(int as float) failed: %v", err)
		}
		if got != 3.0 {
			t.Errorf("Decode(int as float) = %v, want 3", got)
		}

		_, err = f.m.Decode(slot, abi.VariantTypeString)
		var e *errors.Error
		if !stderrors.As(err, &e) || e.Kind != errors.KindTypeMismatch {
			t.Fatalf("Decode(int as String) error = %v, want type mismatch", err)
		}
	})

	f.checkBalanced(t, func() {
		slot, _ := f.m.Encode("name")
		defer f.m.Destroy(slot)
		got, err := f.m.Decode(slot, abi.VariantTypeStringName)
		if err != nil {
			t.Fatalf("Decode(String as StringName) failed: %v", err)
		}
		if got != StringName("name") {
			t.Errorf("Decode(String as StringName) = %v", got)
		}
	})
}

func TestEncodeUnsupported(t *testing.T) {
	f := newFixture(t)
	f.checkBalanced(t, func() {
		_, err := f.m.Encode(make(chan int))
		var e *errors.Error
		if !stderrors.As(err, &e) || e.Kind != errors.KindUnsupported {
			t.Errorf("Encode(chan) error = %v, want unsupported", err)
		}
		_, err = f.m.Encode(uint64(1 << 63))
		if err == nil {
			t.Error("Encode(uint64 overflow) succeeded")
		}
	})
}

func TestGoType(t *testing.T) {
	if GoType(abi.VariantTypeNil) != nil {
		t.Error("GoType(Nil) should be nil")
	}
	for k := abi.VariantTypeBool; k < abi.VariantTypeMax; k++ {
		if GoType(k) == nil {
			t.Errorf("GoType(%s) = nil", k)
		}
	}
}
