package demo

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"

	"github.com/wippyai/gdext-bridge/abi"
	"github.com/wippyai/gdext-bridge/internal/hostsim"
	"github.com/wippyai/gdext-bridge/loader"
	"github.com/wippyai/gdext-bridge/variant"
)

type session struct {
	host *hostsim.Host
	m    *variant.Marshaler
}

func load(t *testing.T) *session {
	t.Helper()
	ctx := context.Background()
	h, err := hostsim.New(ctx, hostsim.DefaultOptions())
	if err != nil {
		t.Fatalf("hostsim.New failed: %v", err)
	}
	cfg := Config()
	cfg.Logger = zap.NewNop()
	if err := h.Load(loader.Entry(cfg)); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	t.Cleanup(func() {
		h.Unload()
		if loader.Current() != nil {
			t.Error("bridge still live after unload")
		}
		_ = h.Close(ctx)
	})
	return &session{host: h, m: loader.Current().Marshaler()}
}

func (s *session) call(t *testing.T, obj abi.Ptr, method string, args ...any) any {
	t.Helper()
	slots := make([]abi.Ptr, len(args))
	for i, a := range args {
		p, err := s.m.Encode(a)
		if err != nil {
			t.Fatalf("Encode(%v) failed: %v", a, err)
		}
		slots[i] = p
	}
	ret, ce, err := s.host.Call(obj, method, slots...)
	for _, p := range slots {
		s.m.Destroy(p)
	}
	if err != nil {
		t.Fatalf("Call(%s) failed: %v", method, err)
	}
	defer s.host.FreeVariant(ret)
	if !ce.OK() {
		t.Fatalf("Call(%s) = %s", method, ce)
	}
	v, err := s.m.DecodeAny(ret)
	if err != nil {
		t.Fatalf("decode %s result: %v", method, err)
	}
	return v
}

func TestClassDatabase(t *testing.T) {
	s := load(t)

	foo, ok := s.host.Class("Foo")
	if !ok || foo.Parent != "RefCounted" {
		t.Fatalf("Foo = %+v, %v", foo, ok)
	}
	ex, ok := s.host.Class("Example")
	if !ok || ex.Parent != "Node" {
		t.Fatalf("Example = %+v, %v", ex, ok)
	}

	methods := make(map[string]hostsim.MethodInfo)
	for _, m := range ex.Methods {
		methods[m.Name] = m
	}
	if _, ok := methods["_ready"]; ok {
		t.Error("virtual _ready registered as a method")
	}
	if m := methods["def_args"]; m.Defaults != 2 || len(m.Args) != 2 {
		t.Errorf("def_args = %+v", m)
	}
	if m := methods["test_static"]; !m.Flags.Has(abi.MethodFlagStatic) {
		t.Errorf("test_static flags = %v", m.Flags)
	}
	if m := methods["vararg_sum"]; !m.Flags.Has(abi.MethodFlagVararg) {
		t.Errorf("vararg_sum flags = %v", m.Flags)
	}
	if m := methods["simple_const_func"]; !m.Flags.Has(abi.MethodFlagConst) {
		t.Errorf("simple_const_func flags = %v", m.Flags)
	}

	wantConstants := []hostsim.Constant{
		{Enum: "ExampleEnum", Name: "FIRST", Value: 0},
		{Enum: "ExampleEnum", Name: "ANSWER_TO_EVERYTHING", Value: 42},
		{Name: "CONSTANT_WITHOUT_ENUM", Value: 314},
	}
	if diff := cmp.Diff(wantConstants, ex.Constants); diff != "" {
		t.Errorf("constants mismatch (-want +got):\n%s", diff)
	}
	if len(ex.Signals) != 1 || ex.Signals[0].Name != "custom_signal" || len(ex.Signals[0].Args) != 2 {
		t.Errorf("signals = %+v", ex.Signals)
	}
	names := make([]string, len(ex.Properties))
	for i, p := range ex.Properties {
		names[i] = p.Name
	}
	if diff := cmp.Diff([]string{"Test group", "Test subgroup", "group_subgroup_custom_position"}, names); diff != "" {
		t.Errorf("properties mismatch (-want +got):\n%s", diff)
	}
}

func TestFooBar(t *testing.T) {
	s := load(t)
	obj, err := s.host.Instantiate("Foo")
	if err != nil {
		t.Fatalf("Instantiate failed: %v", err)
	}
	defer s.host.Unreference(obj)

	if got := s.call(t, obj, "bar", 21); got != int64(42) {
		t.Errorf("bar(21) = %v", got)
	}
	arg := s.host.TypedInt(5)
	ret := s.host.TypedInt(0)
	if err := s.host.Ptrcall(obj, "bar", []abi.Ptr{arg}, ret); err != nil {
		t.Fatalf("Ptrcall failed: %v", err)
	}
	if got := s.host.ReadInt(ret); got != 10 {
		t.Errorf("ptrcall bar(5) = %d", got)
	}
	s.host.FreeTyped(abi.VariantTypeInt, arg)
	s.host.FreeTyped(abi.VariantTypeInt, ret)
	if got := s.call(t, obj, "calls"); got != int64(2) {
		t.Errorf("calls = %v", got)
	}
}

func TestExampleMethods(t *testing.T) {
	s := load(t)
	obj, err := s.host.Instantiate("Example")
	if err != nil {
		t.Fatalf("Instantiate failed: %v", err)
	}
	defer s.host.Free(obj)

	tests := []struct {
		method string
		args   []any
		want   any
	}{
		{"test_static", []any{int32(3), int32(4)}, int64(7)},
		{"def_args", nil, int64(300)},
		{"def_args", []any{1}, int64(201)},
		{"def_args", []any{1, 2}, int64(3)},
		{"vararg_sum", []any{10, 1, 2, 3}, int64(16)},
		{"return_something", []any{"x", 1.5, 2.5, 1, 2, 3, 4, 5},
			"(1. x, 2. 1.500000, 3. 2.500000, 4. 1, 5. 2, 6. 3, 7. 4, 8. 5)"},
		{"test_array", nil, variant.Array{int64(1), int64(2)}},
		{"test_cast_to", nil, "Example"},
		{"is_ready", nil, false},
	}
	for _, tt := range tests {
		got := s.call(t, obj, tt.method, tt.args...)
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("%s%v mismatch (-want +got):\n%s", tt.method, tt.args, diff)
		}
	}

	dict, ok := s.call(t, obj, "test_dictionary").(variant.Dictionary)
	if !ok {
		t.Fatal("test_dictionary did not return a Dictionary")
	}
	if v, _ := dict.Get(variant.StringName("hello")); v != "world" {
		t.Errorf("dict[hello] = %v", v)
	}

	pos := variant.Vector2{X: 1.5, Y: -2}
	s.call(t, obj, "set_custom_position", pos)
	got, ok := s.host.Get(obj, "group_subgroup_custom_position")
	if !ok {
		t.Fatal("custom position property unreadable")
	}
	v, err := s.m.DecodeAny(got)
	s.host.FreeVariant(got)
	if err != nil || v != pos {
		t.Errorf("custom position = %v, %v", v, err)
	}
	if str := s.host.ToString(obj); str != "Example(1.5, -2)" {
		t.Errorf("ToString = %q", str)
	}

	if !s.host.CallVirtual(obj, "_ready", nil, abi.Null) {
		t.Fatal("_ready override missing")
	}
	if got := s.call(t, obj, "is_ready"); got != true {
		t.Error("_ready did not run")
	}
	s.host.Notify(obj, 10, false)
	inst, err := loader.Current().Bindings().Instance(obj)
	if err != nil {
		t.Fatalf("Instance failed: %v", err)
	}
	if diff := cmp.Diff([]int32{10}, inst.(*Example).notifications); diff != "" {
		t.Errorf("notifications mismatch (-want +got):\n%s", diff)
	}
	for _, m := range s.host.Errors() {
		t.Errorf("host error: %s", m)
	}
}
