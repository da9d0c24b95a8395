package classdb

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/gdext-bridge/abi"
	"github.com/wippyai/gdext-bridge/errors"
	"github.com/wippyai/gdext-bridge/internal/hostsim"
	"github.com/wippyai/gdext-bridge/variant"
)

type stubDispatcher struct{}

func (stubDispatcher) CreationInfo(*Class) abi.ClassCreationInfo {
	return abi.ClassCreationInfo{
		CreateInstance: func(abi.Ptr) abi.Ptr { return abi.Null },
		FreeInstance:   func(abi.Ptr, abi.Ptr) {},
	}
}

func (stubDispatcher) MethodCallbacks() (abi.ClassMethodCall, abi.ClassMethodPtrCall) {
	return func(abi.Ptr, abi.Ptr, []abi.Ptr, abi.Ptr, *abi.CallError) {},
		func(abi.Ptr, abi.Ptr, []abi.Ptr, abi.Ptr) {}
}

type base struct{ hits int }

func (b *base) Hit() int64 {
	b.hits++
	return int64(b.hits)
}

type derived struct {
	base
	label string
}

func (d *derived) Label() string     { return d.label }
func (d *derived) SetLabel(s string) { d.label = s }

func (d *derived) Scale(x int32, factor float64) float64 { return float64(x) * factor }

func (d *derived) Sum(first int64, rest ...any) int64 {
	total := first
	for _, v := range rest {
		switch x := v.(type) {
		case int64:
			total += x
		case float64:
			total += int64(x)
		}
	}
	return total
}

func (d *derived) Fail() (int64, error) { return 0, fmt.Errorf("boom") }

func (d *derived) Small(v int8) int8 { return v }

func (d *derived) String() string { return "derived:" + d.label }

func (d *derived) Notification(int32, bool) {}

func describe(name string) string { return "class " + name }

type fixture struct {
	host *hostsim.Host
	reg  *Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	h, err := hostsim.New(ctx, hostsim.DefaultOptions())
	if err != nil {
		t.Fatalf("hostsim.New failed: %v", err)
	}
	t.Cleanup(func() { _ = h.Close(ctx) })
	m, err := variant.New(h.Table())
	if err != nil {
		t.Fatalf("variant.New failed: %v", err)
	}
	r := New(m, h.Library())
	r.SetDispatcher(stubDispatcher{})
	return &fixture{host: h, reg: r}
}

func (f *fixture) noHostErrors(t *testing.T) {
	t.Helper()
	for _, msg := range f.host.Errors() {
		t.Errorf("host error: %s", msg)
	}
}

func (f *fixture) registerPair(t *testing.T) (*Class, *Class) {
	t.Helper()
	b, err := Register[base](f.reg, "Base", "RefCounted")
	if err != nil {
		t.Fatalf("Register(Base) failed: %v", err)
	}
	d, err := Register[derived](f.reg, "Derived", "Base")
	if err != nil {
		t.Fatalf("Register(Derived) failed: %v", err)
	}
	return b, d
}

func isKind(err error, phase errors.Phase, kind errors.Kind) bool {
	return stderrors.Is(err, &errors.Error{Phase: phase, Kind: kind})
}

func TestRegisterClass(t *testing.T) {
	f := newFixture(t)
	b, d := f.registerPair(t)

	if b.Native != "RefCounted" || d.Native != "RefCounted" {
		t.Errorf("native bases = %q, %q, want RefCounted", b.Native, d.Native)
	}
	if d.Base != b {
		t.Error("Derived.Base is not Base")
	}
	if !d.Inherits("Base") || !d.Inherits("RefCounted") || d.Inherits("Node") {
		t.Error("Inherits reports the wrong ancestry")
	}
	if got := len(d.Chain()); got != 2 {
		t.Errorf("len(Chain) = %d, want 2", got)
	}
	if !d.Caps.Has(CapToString | CapNotification) {
		t.Errorf("Derived caps = %b, want ToString and Notification", d.Caps)
	}
	if b.Caps != 0 {
		t.Errorf("Base caps = %b, want none", b.Caps)
	}

	info, ok := f.host.Class("Derived")
	if !ok {
		t.Fatal("host does not know Derived")
	}
	if info.Parent != "Base" || !info.Exposed {
		t.Errorf("host class = %+v", info)
	}

	got, err := f.reg.ClassByUserdata(d.Userdata())
	if err != nil || got != d {
		t.Errorf("ClassByUserdata = %v, %v", got, err)
	}
	f.noHostErrors(t)
}

func TestRegisterClassErrors(t *testing.T) {
	f := newFixture(t)
	f.registerPair(t)

	_, err := Register[base](f.reg, "Base", "Object")
	if !isKind(err, errors.PhaseRegister, errors.KindDuplicate) {
		t.Errorf("duplicate class error = %v", err)
	}

	_, err = Register[base](f.reg, "Node", "Object")
	if !isKind(err, errors.PhaseRegister, errors.KindDuplicate) {
		t.Errorf("native name clash error = %v", err)
	}

	_, err = Register[base](f.reg, "Orphan", "NoSuchParent")
	if !isKind(err, errors.PhaseRegister, errors.KindMissingParent) {
		t.Errorf("missing parent error = %v", err)
	}

	_, err = f.reg.RegisterClass(Def{Name: "Bare", Parent: "Object"}, nil)
	if !isKind(err, errors.PhaseRegister, errors.KindInvalidInput) {
		t.Errorf("no constructor error = %v", err)
	}

	abstract, err := f.reg.RegisterClass(Def{Name: "Shape", Parent: "Object", Abstract: true}, nil)
	if err != nil {
		t.Fatalf("abstract class failed: %v", err)
	}
	if _, err := abstract.New(); !isKind(err, errors.PhaseCall, errors.KindUnsupported) {
		t.Errorf("abstract New error = %v", err)
	}

	bare := New(f.reg.Marshaler(), f.host.Library())
	if _, err := Register[base](bare, "Late", "Object"); !stderrors.Is(err, errors.ErrNotInitialized) {
		t.Errorf("no dispatcher error = %v", err)
	}
	f.noHostErrors(t)
}

func TestAddMethodSignatures(t *testing.T) {
	f := newFixture(t)
	f.registerPair(t)

	hit, err := f.reg.AddMethod("Base", "hit", (*base).Hit)
	if err != nil {
		t.Fatalf("AddMethod(hit) failed: %v", err)
	}
	if hit.IsStatic() || !hit.HasReturn || hit.Return != abi.VariantTypeInt {
		t.Errorf("hit = %+v", hit)
	}

	scale, err := f.reg.AddMethod("Derived", "scale", (*derived).Scale,
		ArgNames("x", "factor"), Defaults(2.0), Const())
	if err != nil {
		t.Fatalf("AddMethod(scale) failed: %v", err)
	}
	if diff := cmp.Diff([]abi.VariantType{abi.VariantTypeInt, abi.VariantTypeFloat}, scale.Args); diff != "" {
		t.Errorf("scale args mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]abi.ArgumentMetadata{abi.ArgumentMetadataIntIsInt32, abi.ArgumentMetadataRealIsDouble}, scale.ArgMeta); diff != "" {
		t.Errorf("scale metadata mismatch (-want +got):\n%s", diff)
	}
	if scale.MinArgs() != 1 || scale.MaxArgs() != 2 {
		t.Errorf("scale arg range = [%d, %d], want [1, 2]", scale.MinArgs(), scale.MaxArgs())
	}
	if !scale.Flags.Has(abi.MethodFlagConst) {
		t.Error("scale is not const")
	}
	for _, m := range []*Method{hit, scale} {
		want, ok := f.host.MethodHash(m.Class.Name, m.Name)
		if !ok || m.Hash() != want {
			t.Errorf("%s hash = %d, host expects %d", m.Name, m.Hash(), want)
		}
	}
	if hit.Hash() == scale.Hash() {
		t.Error("different signatures share a hash")
	}

	sum, err := f.reg.AddMethod("Derived", "sum", (*derived).Sum)
	if err != nil {
		t.Fatalf("AddMethod(sum) failed: %v", err)
	}
	if !sum.IsVararg() || sum.MaxArgs() != -1 || sum.MinArgs() != 1 {
		t.Errorf("sum = vararg %v, range [%d, %d]", sum.IsVararg(), sum.MinArgs(), sum.MaxArgs())
	}

	static, err := f.reg.AddMethod("Derived", "describe", describe)
	if err != nil {
		t.Fatalf("AddMethod(describe) failed: %v", err)
	}
	if !static.IsStatic() {
		t.Error("describe is not static")
	}

	virt, err := f.reg.AddMethod("Derived", "_ready", (*derived).SetLabel)
	if err != nil {
		t.Fatalf("AddMethod(_ready) failed: %v", err)
	}
	if _, ok := f.reg.mustClass(t, "Derived").VirtualMethod("_ready"); !ok || !virt.Flags.Has(abi.MethodFlagVirtual) {
		t.Error("_ready is not a virtual override")
	}

	if _, err := f.reg.AddMethod("Derived", "scale", (*derived).Scale); !isKind(err, errors.PhaseRegister, errors.KindDuplicate) {
		t.Errorf("duplicate method error = %v", err)
	}
	if _, err := f.reg.AddMethod("Derived", "bad", 42); !isKind(err, errors.PhaseRegister, errors.KindInvalidInput) {
		t.Errorf("non-function error = %v", err)
	}
	if _, err := f.reg.AddMethod("Derived", "bad", (*derived).Scale, Defaults("x", "y", "z")); !isKind(err, errors.PhaseRegister, errors.KindInvalidInput) {
		t.Errorf("too many defaults error = %v", err)
	}
	if _, err := f.reg.AddMethod("Derived", "bad", (*derived).Scale, Defaults("fast")); !isKind(err, errors.PhaseRegister, errors.KindRegistration) {
		t.Errorf("ill-typed default error = %v", err)
	}
	if _, err := f.reg.AddMethod("Nope", "x", describe); !isKind(err, errors.PhaseRegister, errors.KindNotFound) {
		t.Errorf("unknown class error = %v", err)
	}

	info, _ := f.host.Class("Derived")
	names := make(map[string]int)
	for _, m := range info.Methods {
		names[m.Name] = m.Defaults
	}
	want := map[string]int{"scale": 1, "sum": 0, "describe": 0}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("host methods mismatch (-want +got):\n%s", diff)
	}
	f.noHostErrors(t)
}

func (r *Registry) mustClass(t *testing.T, name string) *Class {
	t.Helper()
	c, ok := r.Class(name)
	if !ok {
		t.Fatalf("class %q not registered", name)
	}
	return c
}

func TestInvoke(t *testing.T) {
	f := newFixture(t)
	f.registerPair(t)

	hit, _ := f.reg.AddMethod("Base", "hit", (*base).Hit)
	scale, _ := f.reg.AddMethod("Derived", "scale", (*derived).Scale)
	sum, _ := f.reg.AddMethod("Derived", "sum", (*derived).Sum)
	fail, _ := f.reg.AddMethod("Derived", "fail", (*derived).Fail)
	small, _ := f.reg.AddMethod("Derived", "small", (*derived).Small)
	desc, _ := f.reg.AddMethod("Derived", "describe", describe)

	d := &derived{}

	got, err := hit.Invoke(d, nil)
	if err != nil || got != int64(1) {
		t.Errorf("hit via embedded receiver = %v, %v", got, err)
	}
	if d.hits != 1 {
		t.Errorf("hits = %d, want 1", d.hits)
	}

	got, err = scale.Invoke(d, []any{int64(21), 2.0})
	if err != nil || got != 42.0 {
		t.Errorf("scale = %v, %v", got, err)
	}

	got, err = sum.Invoke(d, []any{int64(1), int64(2), 3.0})
	if err != nil || got != int64(6) {
		t.Errorf("sum = %v, %v", got, err)
	}

	got, err = desc.Invoke(nil, []any{"Foo"})
	if err != nil || got != "class Foo" {
		t.Errorf("describe = %v, %v", got, err)
	}

	if _, err := fail.Invoke(d, nil); err == nil || err.Error() != "boom" {
		t.Errorf("fail error = %v", err)
	}

	_, err = scale.Invoke(d, []any{"x", 1.0})
	var argErr *ArgumentError
	if !stderrors.As(err, &argErr) || argErr.Index != 0 || argErr.Expected != abi.VariantTypeInt {
		t.Errorf("bad argument error = %v", err)
	}

	_, err = small.Invoke(d, []any{int64(300)})
	if !stderrors.As(err, &argErr) || !isKind(err, errors.PhaseMarshal, errors.KindOverflow) {
		t.Errorf("overflow error = %v", err)
	}

	if _, err := hit.Invoke(nil, nil); !isKind(err, errors.PhaseCall, errors.KindNilPointer) {
		t.Errorf("nil receiver error = %v", err)
	}
}

func TestAddProperty(t *testing.T) {
	f := newFixture(t)
	f.registerPair(t)
	_, _ = f.reg.AddMethod("Derived", "get_label", (*derived).Label)
	_, _ = f.reg.AddMethod("Derived", "set_label", (*derived).SetLabel)
	_, _ = f.reg.AddMethod("Derived", "scale", (*derived).Scale)

	if err := f.reg.AddPropertyGroup("Derived", "Text", "label_"); err != nil {
		t.Fatalf("AddPropertyGroup failed: %v", err)
	}
	if err := f.reg.AddPropertySubgroup("Derived", "Style", "label_style_"); err != nil {
		t.Fatalf("AddPropertySubgroup failed: %v", err)
	}
	if err := f.reg.AddProperty("Derived", Property{Name: "label", Getter: "get_label", Setter: "set_label"}); err != nil {
		t.Fatalf("AddProperty failed: %v", err)
	}

	tests := []struct {
		name string
		prop Property
		kind errors.Kind
	}{
		{"duplicate", Property{Name: "label", Getter: "get_label"}, errors.KindDuplicate},
		{"missing getter", Property{Name: "x", Getter: "get_x"}, errors.KindRegistration},
		{"getter with arguments", Property{Name: "y", Getter: "scale"}, errors.KindRegistration},
		{"setter arity", Property{Name: "z", Setter: "scale"}, errors.KindRegistration},
		{"no name", Property{Getter: "get_label"}, errors.KindInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.reg.AddProperty("Derived", tt.prop)
			if !isKind(err, errors.PhaseRegister, tt.kind) {
				t.Errorf("AddProperty error = %v, want kind %s", err, tt.kind)
			}
		})
	}

	info, _ := f.host.Class("Derived")
	want := []hostsim.Property{
		{Name: "Text", HintString: "label_", Usage: abi.PropertyUsageGroup},
		{Name: "Style", HintString: "label_style_", Usage: abi.PropertyUsageSubgroup},
		{Name: "label", Type: abi.VariantTypeString, Usage: abi.PropertyUsageDefault},
	}
	if diff := cmp.Diff(want, info.Properties); diff != "" {
		t.Errorf("host properties mismatch (-want +got):\n%s", diff)
	}
	f.noHostErrors(t)
}

func TestSignalsAndConstants(t *testing.T) {
	f := newFixture(t)
	f.registerPair(t)

	arg := Property{Name: "amount", Type: abi.VariantTypeInt}
	if err := f.reg.AddSignal("Derived", "changed", arg); err != nil {
		t.Fatalf("AddSignal failed: %v", err)
	}
	if err := f.reg.AddSignal("Derived", "changed"); !isKind(err, errors.PhaseRegister, errors.KindDuplicate) {
		t.Errorf("duplicate signal error = %v", err)
	}

	consts := []Constant{
		{Name: "LIMIT", Value: 10},
		{Enum: "Mode", Name: "MODE_FAST", Value: 1},
		{Enum: "Flags", Name: "FLAG_A", Value: 4, Bitfield: true},
	}
	for _, k := range consts {
		if err := f.reg.AddConstant("Derived", k); err != nil {
			t.Fatalf("AddConstant(%s) failed: %v", k.Name, err)
		}
	}
	if err := f.reg.AddConstant("Derived", Constant{Name: "LIMIT"}); !isKind(err, errors.PhaseRegister, errors.KindDuplicate) {
		t.Errorf("duplicate constant error = %v", err)
	}

	info, _ := f.host.Class("Derived")
	wantSignals := []hostsim.Signal{{Name: "changed", Args: []hostsim.Property{
		{Name: "amount", Type: abi.VariantTypeInt, Usage: abi.PropertyUsageDefault},
	}}}
	if diff := cmp.Diff(wantSignals, info.Signals); diff != "" {
		t.Errorf("host signals mismatch (-want +got):\n%s", diff)
	}
	wantConsts := []hostsim.Constant{
		{Name: "LIMIT", Value: 10},
		{Name: "MODE_FAST", Enum: "Mode", Value: 1},
		{Name: "FLAG_A", Enum: "Flags", Value: 4, Bitfield: true},
	}
	if diff := cmp.Diff(wantConsts, info.Constants); diff != "" {
		t.Errorf("host constants mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(consts, f.reg.mustClass(t, "Derived").Constants()); diff != "" {
		t.Errorf("local constants mismatch (-want +got):\n%s", diff)
	}
	f.noHostErrors(t)
}

func TestUnregisterOrdering(t *testing.T) {
	f := newFixture(t)
	live := f.host.Heap().Live()
	strs := f.host.Strings()

	f.reg.SetLevel(abi.InitializationScene)
	b, d := f.registerPair(t)
	f.reg.SetLevel(abi.InitializationEditor)
	if _, err := Register[base](f.reg, "EditorOnly", "Object"); err != nil {
		t.Fatalf("Register(EditorOnly) failed: %v", err)
	}
	scale, _ := f.reg.AddMethod("Derived", "scale", (*derived).Scale, Defaults(1.5))

	err := f.reg.UnregisterClass("Base")
	if !isKind(err, errors.PhaseRegister, errors.KindHasSubclasses) {
		t.Fatalf("unregister parent first error = %v", err)
	}

	if err := f.reg.UnregisterLevel(abi.InitializationEditor); err != nil {
		t.Fatalf("UnregisterLevel(editor) failed: %v", err)
	}
	if _, ok := f.host.Class("EditorOnly"); ok {
		t.Error("EditorOnly still registered")
	}
	if _, ok := f.host.Class("Derived"); !ok {
		t.Error("Derived unregistered with the editor level")
	}

	if err := f.reg.UnregisterLevel(abi.InitializationScene); err != nil {
		t.Fatalf("UnregisterLevel(scene) failed: %v", err)
	}
	if got := len(f.reg.Classes()); got != 0 {
		t.Errorf("%d classes left", got)
	}
	if _, err := f.reg.ClassByUserdata(b.Userdata()); !isKind(err, errors.PhaseCall, errors.KindNotFound) {
		t.Errorf("stale class userdata error = %v", err)
	}
	if _, err := f.reg.Method(scale.Userdata()); !isKind(err, errors.PhaseCall, errors.KindNotFound) {
		t.Errorf("stale method userdata error = %v", err)
	}
	if _, ok := f.reg.Class(d.Name); ok {
		t.Error("Derived still in registry")
	}

	if got := f.host.Heap().Live(); got != live {
		t.Errorf("live heap blocks = %d, want %d", got, live)
	}
	if got := f.host.Strings(); got != strs {
		t.Errorf("live strings = %d, want %d", got, strs)
	}
	f.noHostErrors(t)
}

func TestClose(t *testing.T) {
	f := newFixture(t)
	core, logs := observer.New(zapcore.WarnLevel)
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(zap.NewNop()) })

	_, d := f.registerPair(t)
	label, err := f.reg.AddMethod("Derived", "label", (*derived).Label)
	if err != nil {
		t.Fatalf("AddMethod failed: %v", err)
	}

	if err := f.reg.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	for _, name := range []string{"Base", "Derived"} {
		if _, ok := f.host.Class(name); ok {
			t.Errorf("%s still registered with the host", name)
		}
	}
	if _, err := f.reg.ClassByUserdata(d.Userdata()); !isKind(err, errors.PhaseCall, errors.KindNotFound) {
		t.Errorf("class userdata after Close error = %v", err)
	}
	if _, err := f.reg.Method(label.Userdata()); !isKind(err, errors.PhaseCall, errors.KindNotFound) {
		t.Errorf("method userdata after Close error = %v", err)
	}
	if got := logs.FilterMessage("stale userdata from host").Len(); got != 2 {
		t.Errorf("stale userdata warnings = %d, want 2", got)
	}

	if _, err := Register[base](f.reg, "Late", "Object"); err == nil {
		t.Error("Register after Close succeeded")
	}
	if _, ok := f.host.Class("Late"); ok {
		t.Error("Late reached the host")
	}
	f.noHostErrors(t)
}

func TestConcurrentRegistration(t *testing.T) {
	f := newFixture(t)

	const n = 16
	var g errgroup.Group
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("Worker%02d", i)
		g.Go(func() error {
			if _, err := Register[derived](f.reg, name, "Node"); err != nil {
				return err
			}
			if _, err := f.reg.AddMethod(name, "scale", (*derived).Scale, Defaults(1.0)); err != nil {
				return err
			}
			return f.reg.AddSignal(name, "done")
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent registration failed: %v", err)
	}

	classes := f.reg.Classes()
	if len(classes) != n {
		t.Fatalf("registered %d classes, want %d", len(classes), n)
	}

	var lookups errgroup.Group
	for _, c := range classes {
		lookups.Go(func() error {
			got, err := f.reg.ClassByUserdata(c.Userdata())
			if err != nil {
				return err
			}
			m, ok := got.Method("scale")
			if !ok {
				return fmt.Errorf("%s lost scale", c.Name)
			}
			if _, err := f.reg.Method(m.Userdata()); err != nil {
				return err
			}
			return nil
		})
	}
	if err := lookups.Wait(); err != nil {
		t.Fatalf("concurrent lookup failed: %v", err)
	}

	if err := f.reg.UnregisterAll(); err != nil {
		t.Fatalf("UnregisterAll failed: %v", err)
	}
	f.noHostErrors(t)
}
