package testbed

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/gdext-bridge/abi"
	"github.com/wippyai/gdext-bridge/binding"
	"github.com/wippyai/gdext-bridge/internal/demo"
	"github.com/wippyai/gdext-bridge/internal/hostsim"
	"github.com/wippyai/gdext-bridge/loader"
	"github.com/wippyai/gdext-bridge/variant"
)

func newHost(t *testing.T) *hostsim.Host {
	t.Helper()
	ctx := context.Background()
	h, err := hostsim.New(ctx, hostsim.DefaultOptions())
	if err != nil {
		t.Fatalf("create host: %v", err)
	}
	t.Cleanup(func() { _ = h.Close(ctx) })
	return h
}

func loadDemo(t *testing.T, h *hostsim.Host) *loader.Bridge {
	t.Helper()
	cfg := demo.Config()
	cfg.Logger = zap.NewNop()
	if err := h.Load(loader.Entry(cfg)); err != nil {
		t.Fatalf("load demo: %v", err)
	}
	t.Cleanup(h.Unload)
	return loader.Current()
}

func noErrors(t *testing.T, h *hostsim.Host) {
	t.Helper()
	for _, m := range h.Errors() {
		t.Errorf("host error: %s", m)
	}
}

func TestFoo_PtrcallBar(t *testing.T) {
	h := newHost(t)
	loadDemo(t, h)

	obj, err := h.Instantiate("Foo")
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	defer h.Unreference(obj)

	arg := h.TypedInt(21)
	ret := h.NewTyped(abi.VariantTypeInt)
	defer h.FreeTyped(abi.VariantTypeInt, arg)
	defer h.FreeTyped(abi.VariantTypeInt, ret)

	if err := h.Ptrcall(obj, "bar", []abi.Ptr{arg}, ret); err != nil {
		t.Fatalf("ptrcall bar: %v", err)
	}
	if got := h.ReadInt(ret); got != 42 {
		t.Errorf("bar(21) = %d, want 42", got)
	}
	noErrors(t, h)
}

func TestFoo_CallWithoutArguments(t *testing.T) {
	h := newHost(t)
	loadDemo(t, h)

	obj, err := h.Instantiate("Foo")
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	defer h.Unreference(obj)

	ret, ce, err := h.Call(obj, "bar")
	if err != nil {
		t.Fatalf("call bar: %v", err)
	}
	defer h.FreeVariant(ret)

	want := abi.CallError{Error: abi.CallErrorTooFewArguments, Expected: 1}
	if ce != want {
		t.Errorf("bar() error = %s, want %s", ce, want)
	}
	if h.Type(ret) != abi.VariantTypeNil {
		t.Errorf("bar() wrote a %s result", h.Type(ret))
	}
}

func TestFoo_RefCountedLifecycle(t *testing.T) {
	h := newHost(t)
	b := loadDemo(t, h)
	mgr := b.Bindings()

	obj, err := h.Instantiate("Foo")
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	w, err := mgr.Wrap(obj)
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	if again, _ := mgr.Wrap(obj); again != w {
		t.Error("second wrap returned a different wrapper")
	}

	h.Reference(obj)
	if n, _ := mgr.KeepAlive(obj); n != 2 {
		t.Errorf("keep-alive after reference = %d, want 2", n)
	}
	if h.Unreference(obj) {
		t.Fatal("object died with a reference left")
	}
	if !h.Unreference(obj) {
		t.Fatal("object survived its last reference")
	}

	if mgr.State(obj) != binding.StateReleased {
		t.Errorf("state = %s, want released", mgr.State(obj))
	}
	if w.Alive() {
		t.Error("wrapper alive after host object died")
	}
	if _, err := w.Call("get_reference_count"); err == nil {
		t.Error("call through released wrapper succeeded")
	}
	noErrors(t, h)
}

func TestExample_OutboundCalls(t *testing.T) {
	h := newHost(t)
	b := loadDemo(t, h)

	obj, err := h.Instantiate("Example")
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	defer h.Free(obj)

	w, err := b.Bindings().Wrap(obj)
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	inst, err := w.Instance()
	if err != nil {
		t.Fatalf("instance: %v", err)
	}
	ex, ok := inst.(*demo.Example)
	if !ok || ex.Object() != w {
		t.Fatalf("instance = %T, owner mismatch", inst)
	}

	if _, err := w.Call("set_name", "Player"); err != nil {
		t.Fatalf("set_name: %v", err)
	}
	name, err := w.Call("get_name")
	if err != nil {
		t.Fatalf("get_name: %v", err)
	}
	if name != variant.StringName("Player") {
		t.Errorf("get_name = %v", name)
	}

	class, err := w.Class()
	if err != nil || class != "Example" {
		t.Errorf("class = %q, %v", class, err)
	}
	if _, err := w.Call("vararg_sum", 1, 2, 3); err == nil {
		t.Error("extension method reached without its hash")
	}
	ec, _ := b.Classes().Class("Example")
	vsum, ok := ec.Method("vararg_sum")
	if !ok {
		t.Fatal("Example has no vararg_sum")
	}
	sum, err := w.CallHash("vararg_sum", vsum.Hash(), 1, 2, 3)
	if err != nil || sum != int64(6) {
		t.Errorf("vararg_sum = %v, %v", sum, err)
	}
	if _, err := w.CallHash("vararg_sum", vsum.Hash(), 1, "two"); err == nil {
		t.Error("vararg_sum with a string succeeded")
	}
	if _, err := w.CallHash("vararg_sum", vsum.Hash()+1, 1, 2); err == nil {
		t.Error("vararg_sum with a wrong hash succeeded")
	}
	h.ResetMessages()
}

func TestLoadUnloadCycle(t *testing.T) {
	h := newHost(t)
	live, strs := h.Heap().Live(), h.Strings()

	for cycle := 0; cycle < 3; cycle++ {
		cfg := demo.Config()
		cfg.Logger = zap.NewNop()
		if err := h.Load(loader.Entry(cfg)); err != nil {
			t.Fatalf("cycle %d: load: %v", cycle, err)
		}
		obj, err := h.Instantiate("Foo")
		if err != nil {
			t.Fatalf("cycle %d: instantiate: %v", cycle, err)
		}
		h.Unreference(obj)
		h.Unload()

		if loader.Current() != nil {
			t.Fatalf("cycle %d: bridge still current", cycle)
		}
		if _, ok := h.Class("Foo"); ok {
			t.Fatalf("cycle %d: Foo still registered", cycle)
		}
		if got := h.Heap().Live(); got != live {
			t.Errorf("cycle %d: live heap blocks = %d, want %d", cycle, got, live)
		}
		if got := h.Strings(); got != strs {
			t.Errorf("cycle %d: live strings = %d, want %d", cycle, got, strs)
		}
	}
	noErrors(t, h)
}

func TestConcurrentCalls(t *testing.T) {
	h := newHost(t)
	loadDemo(t, h)

	const workers = 16
	objs := make([]abi.Ptr, workers)
	for i := range objs {
		obj, err := h.Instantiate("Foo")
		if err != nil {
			t.Fatalf("instantiate: %v", err)
		}
		objs[i] = obj
	}
	defer func() {
		for _, obj := range objs {
			h.Unreference(obj)
		}
	}()

	var g errgroup.Group
	for i, obj := range objs {
		g.Go(func() error {
			for n := int64(0); n < 50; n++ {
				arg := h.VariantInt(n + int64(i))
				ret, ce, err := h.Call(obj, "bar", arg)
				h.FreeVariant(arg)
				if err != nil {
					return err
				}
				got, _ := h.Int(ret)
				h.FreeVariant(ret)
				if !ce.OK() || got != 2*(n+int64(i)) {
					t.Errorf("worker %d: bar(%d) = %d, %s", i, n+int64(i), got, ce)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("worker failed: %v", err)
	}
	noErrors(t, h)
}
