package dispatch

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/gdext-bridge/abi"
	"github.com/wippyai/gdext-bridge/binding"
	"github.com/wippyai/gdext-bridge/classdb"
	"github.com/wippyai/gdext-bridge/internal/hostsim"
	"github.com/wippyai/gdext-bridge/variant"
)

type widget struct {
	binding.Owner
	label   string
	dynamic map[string]any
	notes   []int32
	refs    int
	elapsed float64
	freed   *bool
}

func (w *widget) Double(x int64) int64       { return 2 * x }
func (w *widget) Sum3(a, b, c int64) int64   { return a + b + c }
func (w *widget) Label() string              { return w.label }
func (w *widget) SetLabel(s string)          { w.label = s }
func (w *widget) Process(delta float64)      { w.elapsed += delta }
func (w *widget) Explode()                   { panic("kaboom") }
func (w *widget) Refuse() error              { return fmt.Errorf("refused") }
func (w *widget) PeerLabel(o *widget) string { return o.label }
func (w *widget) Self() *widget              { return w }
func (w *widget) Count(prefix string, rest ...any) string {
	return fmt.Sprintf("%s%d", prefix, len(rest))
}

func (w *widget) Get(name string) (any, bool) {
	v, ok := w.dynamic[name]
	return v, ok
}

func (w *widget) Set(name string, v any) bool {
	if name == "readonly" {
		return false
	}
	if w.dynamic == nil {
		w.dynamic = make(map[string]any)
	}
	w.dynamic[name] = v
	return true
}

func (w *widget) PropertyList() []classdb.Property {
	return []classdb.Property{
		{Name: "speed", Type: abi.VariantTypeFloat, HintString: "0,10"},
		{Name: "target", Type: abi.VariantTypeObject, ClassName: "Node"},
	}
}

func (w *widget) CanRevert(name string) bool { return name == "speed" }

func (w *widget) Revert(name string) (any, bool) {
	if name == "speed" {
		return 1.5, true
	}
	return nil, false
}

func (w *widget) Notification(what int32, reversed bool) {
	if reversed {
		what = -what
	}
	w.notes = append(w.notes, what)
}

func (w *widget) Referenced()   { w.refs++ }
func (w *widget) Unreferenced() { w.refs-- }

func (w *widget) Free() {
	if w.freed != nil {
		*w.freed = true
	}
}

func (w *widget) String() string { return "widget(" + w.label + ")" }

type plain struct{}

func (*plain) Ping() string { return "pong" }

type fixture struct {
	host *hostsim.Host
	m    *variant.Marshaler
	reg  *classdb.Registry
	mgr  *binding.Manager
	d    *Dispatcher
	logs *observer.ObservedLogs
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
	mgr, err := binding.NewManager(m, h.Library(), abi.Null)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	reg := classdb.New(m, h.Library())
	d := New(reg, mgr)

	core, logs := observer.New(zapcore.WarnLevel)
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(nil) })

	f := &fixture{host: h, m: m, reg: reg, mgr: mgr, d: d, logs: logs}
	f.registerWidget(t)
	return f
}

func (f *fixture) registerWidget(t *testing.T) {
	t.Helper()
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("registration failed: %v", err)
		}
	}
	_, err := classdb.Register[widget](f.reg, "Widget", "RefCounted")
	must(err)
	for _, b := range []struct {
		name string
		fn   any
		opts []classdb.MethodOption
	}{
		{"double", (*widget).Double, nil},
		{"sum3", (*widget).Sum3, []classdb.MethodOption{classdb.Defaults(int64(10), int64(100))}},
		{"get_label", (*widget).Label, []classdb.MethodOption{classdb.Const()}},
		{"set_label", (*widget).SetLabel, nil},
		{"_process", (*widget).Process, nil},
		{"explode", (*widget).Explode, nil},
		{"refuse", (*widget).Refuse, nil},
		{"peer_label", (*widget).PeerLabel, nil},
		{"self", (*widget).Self, nil},
		{"count", (*widget).Count, nil},
		{"version", func() string { return "1.0" }, nil},
	} {
		_, err := f.reg.AddMethod("Widget", b.name, b.fn, b.opts...)
		must(err)
	}
	must(f.reg.AddProperty("Widget", classdb.Property{Name: "label", Getter: "get_label", Setter: "set_label"}))

	_, err = classdb.Register[plain](f.reg, "Plain", "Node")
	must(err)
	_, err = f.reg.AddMethod("Plain", "ping", (*plain).Ping)
	must(err)
}

func (f *fixture) noHostErrors(t *testing.T) {
	t.Helper()
	for _, msg := range f.host.Errors() {
		t.Errorf("host error: %s", msg)
	}
}

func (f *fixture) instantiate(t *testing.T, class string) abi.Ptr {
	t.Helper()
	obj, err := f.host.Instantiate(class)
	if err != nil {
		t.Fatalf("Instantiate(%s) failed: %v", class, err)
	}
	return obj
}

func (f *fixture) widget(t *testing.T, obj abi.Ptr) *widget {
	t.Helper()
	inst, err := f.mgr.Instance(obj)
	if err != nil {
		t.Fatalf("Instance failed: %v", err)
	}
	return inst.(*widget)
}

// call runs a variant call and returns the decoded result.
func (f *fixture) call(t *testing.T, obj abi.Ptr, method string, args ...any) (any, abi.CallError) {
	t.Helper()
	slots := make([]abi.Ptr, len(args))
	for i, a := range args {
		s, err := f.m.Encode(a)
		if err != nil {
			t.Fatalf("Encode(%v) failed: %v", a, err)
		}
		slots[i] = s
	}
	defer func() {
		for _, s := range slots {
			f.m.Destroy(s)
		}
	}()
	ret, ce, err := f.host.Call(obj, method, slots...)
	if err != nil {
		t.Fatalf("Call(%s) failed: %v", method, err)
	}
	defer f.host.FreeVariant(ret)
	v, err := f.m.DecodeAny(ret)
	if err != nil {
		t.Fatalf("decode result of %s: %v", method, err)
	}
	return v, ce
}

func TestCreateAndFreeInstance(t *testing.T) {
	f := newFixture(t)
	live, strs := f.host.Heap().Live(), f.host.Strings()

	obj := f.instantiate(t, "Widget")
	w := f.widget(t, obj)
	freed := false
	w.freed = &freed

	if w.Object() == nil || w.HostPtr() != obj {
		t.Error("owner not set on new instance")
	}
	if f.mgr.State(obj) != binding.StateBound {
		t.Errorf("state = %s, want bound", f.mgr.State(obj))
	}

	f.host.Reference(obj)
	if w.refs != 1 {
		t.Errorf("Referenced calls = %d, want 1", w.refs)
	}
	f.host.Unreference(obj)
	if !f.host.Unreference(obj) {
		t.Fatal("object did not die on last unreference")
	}
	if !freed {
		t.Error("Free hook not called")
	}
	if f.mgr.State(obj) != binding.StateReleased {
		t.Errorf("state = %s, want released", f.mgr.State(obj))
	}
	if got := f.host.Heap().Live(); got != live {
		t.Errorf("live heap blocks = %d, want %d", got, live)
	}
	if got := f.host.Strings(); got != strs {
		t.Errorf("live strings = %d, want %d", got, strs)
	}
	f.noHostErrors(t)
}

func TestConstReceiver(t *testing.T) {
	f := newFixture(t)
	obj := f.instantiate(t, "Widget")
	defer f.host.Free(obj)
	w := f.widget(t, obj)
	w.label = "kept"

	arg, _ := f.m.Encode("changed")
	defer f.m.Destroy(arg)
	ret, ce, err := f.host.CallConst(obj, "set_label", arg)
	if err != nil {
		t.Fatalf("CallConst(set_label) failed: %v", err)
	}
	f.host.FreeVariant(ret)
	if ce.Error != abi.CallErrorMethodNotConst {
		t.Errorf("set_label on read-only receiver = %s, want method_not_const", ce)
	}
	if w.label != "kept" {
		t.Errorf("label = %q, want kept", w.label)
	}

	ret, ce, err = f.host.CallConst(obj, "get_label")
	if err != nil {
		t.Fatalf("CallConst(get_label) failed: %v", err)
	}
	defer f.host.FreeVariant(ret)
	if !ce.OK() {
		t.Fatalf("get_label on read-only receiver = %s", ce)
	}
	if got, _ := f.m.DecodeAny(ret); got != "kept" {
		t.Errorf("get_label = %v, want kept", got)
	}
	f.noHostErrors(t)
}

func TestArgumentCountValidation(t *testing.T) {
	f := newFixture(t)
	obj := f.instantiate(t, "Widget")
	defer f.host.Free(obj)

	tests := []struct {
		name string
		args []any
		want abi.CallError
		ret  any
	}{
		{"too few", nil, abi.CallError{Error: abi.CallErrorTooFewArguments, Expected: 1}, nil},
		{"too many", []any{1, 2, 3, 4}, abi.CallError{Error: abi.CallErrorTooManyArguments, Expected: 3}, nil},
		{"both defaults", []any{1}, abi.CallError{}, int64(111)},
		{"one default", []any{1, 2}, abi.CallError{}, int64(103)},
		{"all given", []any{1, 2, 3}, abi.CallError{}, int64(6)},
		{"bad type", []any{1, "two"}, abi.CallError{Error: abi.CallErrorInvalidArgument, Argument: 1, Expected: int32(abi.VariantTypeInt)}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ce := f.call(t, obj, "sum3", tt.args...)
			if diff := cmp.Diff(tt.want, ce); diff != "" {
				t.Errorf("call error mismatch (-want +got):\n%s", diff)
			}
			if got != tt.ret {
				t.Errorf("result = %v, want %v", got, tt.ret)
			}
		})
	}

	_, ce := f.call(t, obj, "double")
	if ce.Error != abi.CallErrorTooFewArguments || ce.Expected != 1 {
		t.Errorf("double() = %s, want TooFewArguments expecting 1", ce)
	}
	f.noHostErrors(t)
}

func TestCallAndPtrcallAgree(t *testing.T) {
	f := newFixture(t)
	obj := f.instantiate(t, "Widget")
	defer f.host.Free(obj)

	for _, x := range []int64{0, 1, 21, -7, 1 << 40} {
		viaCall, ce := f.call(t, obj, "double", x)
		if !ce.OK() {
			t.Fatalf("double(%d) call error %s", x, ce)
		}

		arg := f.host.TypedInt(x)
		ret := f.host.TypedInt(0)
		if err := f.host.Ptrcall(obj, "double", []abi.Ptr{arg}, ret); err != nil {
			t.Fatalf("Ptrcall failed: %v", err)
		}
		viaPtr := f.host.ReadInt(ret)
		f.host.FreeTyped(abi.VariantTypeInt, arg)
		f.host.FreeTyped(abi.VariantTypeInt, ret)

		if viaCall != viaPtr || viaPtr != 2*x {
			t.Errorf("double(%d): call %v, ptrcall %d", x, viaCall, viaPtr)
		}
	}

	label, err := f.m.NewTyped(abi.VariantTypeString, "typed")
	if err != nil {
		t.Fatalf("NewTyped failed: %v", err)
	}
	if err := f.host.Ptrcall(obj, "set_label", []abi.Ptr{label}, abi.Null); err != nil {
		t.Fatalf("Ptrcall(set_label) failed: %v", err)
	}
	f.m.FreeTyped(abi.VariantTypeString, label)
	got, _ := f.call(t, obj, "get_label")
	if got != "typed" {
		t.Errorf("get_label after ptrcall set = %v", got)
	}
	f.noHostErrors(t)
}

func TestVarargAndStatic(t *testing.T) {
	f := newFixture(t)
	obj := f.instantiate(t, "Widget")
	defer f.host.Free(obj)

	got, ce := f.call(t, obj, "count", "n=", 1, "two", 3.0)
	if !ce.OK() || got != "n=3" {
		t.Errorf("count = %v, %s", got, ce)
	}
	got, ce = f.call(t, obj, "count", "n=")
	if !ce.OK() || got != "n=0" {
		t.Errorf("count without rest = %v, %s", got, ce)
	}
	got, ce = f.call(t, obj, "version")
	if !ce.OK() || got != "1.0" {
		t.Errorf("version = %v, %s", got, ce)
	}
	f.noHostErrors(t)
}

func TestFaultsBecomeCallErrors(t *testing.T) {
	f := newFixture(t)
	obj := f.instantiate(t, "Widget")
	defer f.host.Free(obj)

	_, ce := f.call(t, obj, "explode")
	if ce.Error != abi.CallErrorInvalidMethod {
		t.Errorf("explode = %s, want InvalidMethod", ce)
	}
	if n := f.logs.FilterMessage("panic in method call").Len(); n != 1 {
		t.Errorf("panic log entries = %d, want 1", n)
	}

	_, ce = f.call(t, obj, "refuse")
	if ce.Error != abi.CallErrorInvalidMethod {
		t.Errorf("refuse = %s, want InvalidMethod", ce)
	}
	entries := f.logs.FilterMessage("method returned an error").All()
	if len(entries) != 1 || entries[0].ContextMap()["error"] != "refused" {
		t.Errorf("error log entries = %+v", entries)
	}

	c, _ := f.reg.Class("Widget")
	double, _ := c.Method("double")
	arg := f.host.VariantInt(1)
	ret := f.host.VariantNil()
	var direct abi.CallError
	f.d.Call(double.Userdata(), abi.Null, []abi.Ptr{arg}, ret, &direct)
	f.host.FreeVariant(arg)
	f.host.FreeVariant(ret)
	if direct.Error != abi.CallErrorInstanceIsNull {
		t.Errorf("call without instance = %s, want InstanceIsNull", direct)
	}

	f.d.Call(abi.Ptr(0xdead), abi.Null, nil, abi.Null, &direct)
	if direct.Error != abi.CallErrorInvalidMethod {
		t.Errorf("call of unknown method = %s, want InvalidMethod", direct)
	}
	f.noHostErrors(t)
}

func TestObjectArguments(t *testing.T) {
	f := newFixture(t)
	a := f.instantiate(t, "Widget")
	defer f.host.Free(a)
	b := f.instantiate(t, "Widget")
	defer f.host.Free(b)
	f.widget(t, b).label = "bee"

	bv := f.host.VariantObject(b)
	ret, ce, err := f.host.Call(a, "peer_label", bv)
	f.host.FreeVariant(bv)
	if err != nil || !ce.OK() {
		t.Fatalf("peer_label = %s, %v", ce, err)
	}
	if s, _ := f.host.Str(ret); s != "bee" {
		t.Errorf("peer_label = %q, want bee", s)
	}
	f.host.FreeVariant(ret)

	self, ce := f.call(t, a, "self")
	if !ce.OK() || self != (variant.Object{Ptr: a}) {
		t.Errorf("self = %v, %s", self, ce)
	}

	plainObj := f.instantiate(t, "Plain")
	defer f.host.Free(plainObj)
	pv := f.host.VariantObject(plainObj)
	ret, ce, _ = f.host.Call(a, "peer_label", pv)
	f.host.FreeVariant(pv)
	f.host.FreeVariant(ret)
	if ce.Error != abi.CallErrorInvalidArgument || ce.Argument != 0 {
		t.Errorf("peer_label(Plain) = %s, want InvalidArgument on 0", ce)
	}
	f.noHostErrors(t)
}

func TestPropertyHooks(t *testing.T) {
	f := newFixture(t)
	obj := f.instantiate(t, "Widget")
	defer f.host.Free(obj)

	val := f.host.VariantString("Zed")
	if !f.host.Set(obj, "label", val) {
		t.Error("Set(label) through registered setter failed")
	}
	f.host.FreeVariant(val)
	if got := f.widget(t, obj).label; got != "Zed" {
		t.Errorf("label = %q", got)
	}

	val = f.host.VariantInt(7)
	if !f.host.Set(obj, "power", val) {
		t.Error("Set(power) through set hook failed")
	}
	if f.host.Set(obj, "readonly", val) {
		t.Error("Set(readonly) was accepted")
	}
	f.host.FreeVariant(val)

	got, ok := f.host.Get(obj, "power")
	if n, _ := f.host.Int(got); !ok || n != 7 {
		t.Errorf("Get(power) = %d, %v", n, ok)
	}
	f.host.FreeVariant(got)
	got, ok = f.host.Get(obj, "missing")
	if ok {
		t.Error("Get(missing) reported found")
	}
	f.host.FreeVariant(got)

	want := []hostsim.Property{
		{Name: "speed", Type: abi.VariantTypeFloat, HintString: "0,10", Usage: abi.PropertyUsageDefault},
		{Name: "target", Type: abi.VariantTypeObject, ClassName: "Node", Usage: abi.PropertyUsageDefault},
	}
	if diff := cmp.Diff(want, f.host.PropertyList(obj)); diff != "" {
		t.Errorf("property list mismatch (-want +got):\n%s", diff)
	}

	if !f.host.CanRevert(obj, "speed") || f.host.CanRevert(obj, "label") {
		t.Error("CanRevert mismatch")
	}
	rv, ok := f.host.GetRevert(obj, "speed")
	if v, _ := f.host.Float(rv); !ok || v != 1.5 {
		t.Errorf("GetRevert(speed) = %v, %v", v, ok)
	}
	f.host.FreeVariant(rv)
	f.noHostErrors(t)
}

func TestNotificationToStringAndVirtual(t *testing.T) {
	f := newFixture(t)
	obj := f.instantiate(t, "Widget")
	defer f.host.Free(obj)
	w := f.widget(t, obj)
	w.label = "w1"

	f.host.Notify(obj, 13, false)
	f.host.Notify(obj, 7, true)
	if diff := cmp.Diff([]int32{13, -7}, w.notes); diff != "" {
		t.Errorf("notifications mismatch (-want +got):\n%s", diff)
	}

	if got := f.host.ToString(obj); got != "widget(w1)" {
		t.Errorf("ToString = %q", got)
	}
	p := f.instantiate(t, "Plain")
	defer f.host.Free(p)
	id := f.host.Table().ObjectGetInstanceID(p)
	if got, want := f.host.ToString(p), fmt.Sprintf("[ GDExtension::Plain <--> Instance ID:%d ]", id); got != want {
		t.Errorf("default ToString = %q, want %q", got, want)
	}

	delta, _ := f.m.NewTyped(abi.VariantTypeFloat, 0.25)
	for i := 0; i < 2; i++ {
		if !f.host.CallVirtual(obj, "_process", []abi.Ptr{delta}, abi.Null) {
			t.Fatal("_process override not found")
		}
	}
	f.m.FreeTyped(abi.VariantTypeFloat, delta)
	if w.elapsed != 0.5 {
		t.Errorf("elapsed = %v, want 0.5", w.elapsed)
	}
	if f.host.CallVirtual(obj, "_ready", nil, abi.Null) {
		t.Error("_ready reported as overridden")
	}
	if len(f.d.virtuals) != 1 {
		t.Errorf("cached virtual closures = %d, want 1", len(f.d.virtuals))
	}
	f.noHostErrors(t)
}

func TestPruneVirtuals(t *testing.T) {
	f := newFixture(t)
	obj := f.instantiate(t, "Widget")
	if !f.host.CallVirtual(obj, "_process", []abi.Ptr{mustTyped(t, f.m, 0.1)}, abi.Null) {
		t.Fatal("_process override not found")
	}
	f.host.Free(obj)

	if err := f.reg.UnregisterAll(); err != nil {
		t.Fatalf("UnregisterAll failed: %v", err)
	}
	f.d.Prune()
	if len(f.d.virtuals) != 0 {
		t.Errorf("cached virtual closures = %d after prune", len(f.d.virtuals))
	}
	f.noHostErrors(t)
}

func mustTyped(t *testing.T, m *variant.Marshaler, v float64) abi.Ptr {
	t.Helper()
	p, err := m.NewTyped(abi.VariantTypeFloat, v)
	if err != nil {
		t.Fatalf("NewTyped failed: %v", err)
	}
	t.Cleanup(func() { m.FreeTyped(abi.VariantTypeFloat, p) })
	return p
}
