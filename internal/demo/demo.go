// Package demo is a small extension used by the testbed, the gdbridge CLI and
// the basic example. It registers two classes at the scene level: Foo, a
// RefCounted with a single doubling method, and Example, a Node exercising
// every kind of member the registrar supports.
package demo

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/gdext-bridge/abi"
	"github.com/wippyai/gdext-bridge/binding"
	"github.com/wippyai/gdext-bridge/classdb"
	"github.com/wippyai/gdext-bridge/loader"
	"github.com/wippyai/gdext-bridge/variant"
)

// ExampleEnum values are exported as the ExampleEnum enum of Example.
type ExampleEnum int64

const (
	ExampleFirst       ExampleEnum = 0
	AnswerToEverything ExampleEnum = 42
)

// ConstantWithoutEnum is exported as a plain class constant.
const ConstantWithoutEnum = 314

// Foo doubles integers.
type Foo struct {
	binding.Owner
	calls int64
}

func (f *Foo) Bar(x int64) int64 {
	f.calls++
	return 2 * x
}

func (f *Foo) Calls() int64 { return f.calls }

// Example is a Node with static, const, vararg, defaulted and virtual
// methods, a grouped property, a signal and constants.
type Example struct {
	binding.Owner
	customPosition variant.Vector2
	ready          bool
	notifications  []int32
}

func testStatic(a, b int32) int32 { return a + b }

func (e *Example) SimpleFunc() {
	Logger().Debug("simple func called")
}

func (e *Example) SimpleConstFunc(a int64) {
	Logger().Debug("simple const func called", zap.Int64("a", a))
}

func (e *Example) ReturnSomething(base string, f32 float32, f64 float64,
	i int, i8 int8, i16 int16, i32 int32, i64 int64) string {
	return fmt.Sprintf("(1. %s, 2. %f, 3. %f, 4. %d, 5. %d, 6. %d, 7. %d, 8. %d)", base, f32, f64, i, i8, i16, i32, i64)
}

func (e *Example) DefArgs(a, b int32) int32 { return a + b }

func (e *Example) TestArray() variant.Array { return variant.Array{int64(1), int64(2)} }

func (e *Example) TestDictionary() variant.Dictionary {
	return variant.Dictionary{
		{Key: variant.StringName("hello"), Value: "world"},
		{Key: variant.StringName("foo"), Value: "bar"},
	}
}

// VarargSum adds the integer arguments following base.
func (e *Example) VarargSum(base int64, rest ...any) (int64, error) {
	sum := base
	for i, v := range rest {
		n, ok := v.(int64)
		if !ok {
			return 0, fmt.Errorf("argument %d is %T, not an integer", i+1, v)
		}
		sum += n
	}
	return sum, nil
}

func (e *Example) SetCustomPosition(pos variant.Vector2) { e.customPosition = pos }

func (e *Example) GetCustomPosition() variant.Vector2 { return e.customPosition }

// TestCastTo casts the owner to Node and reports the class the host sees.
func (e *Example) TestCastTo() (string, error) {
	obj := e.Object()
	if obj == nil {
		return "", fmt.Errorf("example has no owner")
	}
	node, err := obj.CastTo("Node")
	if err != nil {
		return "", err
	}
	class, err := node.Call("get_class")
	if err != nil {
		return "", err
	}
	s, _ := class.(string)
	return s, nil
}

// Ready overrides Node._ready.
func (e *Example) Ready() {
	e.ready = true
	Logger().Info("example ready", zap.Stringer("object", e.HostPtr()))
}

func (e *Example) IsReady() bool { return e.ready }

func (e *Example) Notification(what int32, reversed bool) {
	e.notifications = append(e.notifications, what)
}

func (e *Example) String() string {
	return fmt.Sprintf("Example(%g, %g)", e.customPosition.X, e.customPosition.Y)
}

type methodDef struct {
	name string
	fn   any
	opts []classdb.MethodOption
}

var fooMethods = []methodDef{
	{"bar", (*Foo).Bar, []classdb.MethodOption{classdb.ArgNames("x")}},
	{"calls", (*Foo).Calls, []classdb.MethodOption{classdb.Const()}},
}

var exampleMethods = []methodDef{
	{"_ready", (*Example).Ready, nil},
	{"test_static", testStatic, []classdb.MethodOption{classdb.ArgNames("a", "b")}},
	{"simple_func", (*Example).SimpleFunc, nil},
	{"simple_const_func", (*Example).SimpleConstFunc, []classdb.MethodOption{classdb.ArgNames("a"), classdb.Const()}},
	{"return_something", (*Example).ReturnSomething, []classdb.MethodOption{
		classdb.ArgNames("base", "f32", "f64", "i", "i8", "i16", "i32", "i64"),
	}},
	{"def_args", (*Example).DefArgs, []classdb.MethodOption{
		classdb.ArgNames("a", "b"),
		classdb.Defaults(int32(100), int32(200)),
	}},
	{"test_array", (*Example).TestArray, nil},
	{"test_dictionary", (*Example).TestDictionary, nil},
	{"vararg_sum", (*Example).VarargSum, []classdb.MethodOption{classdb.ArgNames("base")}},
	{"get_custom_position", (*Example).GetCustomPosition, nil},
	{"set_custom_position", (*Example).SetCustomPosition, []classdb.MethodOption{classdb.ArgNames("position")}},
	{"test_cast_to", (*Example).TestCastTo, nil},
	{"is_ready", (*Example).IsReady, []classdb.MethodOption{classdb.Const()}},
}

func bindMethods(reg *classdb.Registry, class string, defs []methodDef) error {
	for _, d := range defs {
		if _, err := reg.AddMethod(class, d.name, d.fn, d.opts...); err != nil {
			return err
		}
	}
	return nil
}

// Register adds Foo and Example to reg.
func Register(reg *classdb.Registry) error {
	if _, err := classdb.Register[Foo](reg, "Foo", "RefCounted"); err != nil {
		return err
	}
	if err := bindMethods(reg, "Foo", fooMethods); err != nil {
		return err
	}

	if _, err := classdb.Register[Example](reg, "Example", "Node"); err != nil {
		return err
	}
	if err := bindMethods(reg, "Example", exampleMethods); err != nil {
		return err
	}
	if err := reg.AddPropertyGroup("Example", "Test group", "group_"); err != nil {
		return err
	}
	if err := reg.AddPropertySubgroup("Example", "Test subgroup", "group_subgroup_"); err != nil {
		return err
	}
	if err := reg.AddProperty("Example", classdb.Property{
		Name:   "group_subgroup_custom_position",
		Getter: "get_custom_position",
		Setter: "set_custom_position",
	}); err != nil {
		return err
	}
	if err := reg.AddSignal("Example", "custom_signal",
		classdb.Property{Name: "name", Type: abi.VariantTypeString},
		classdb.Property{Name: "value", Type: abi.VariantTypeInt},
	); err != nil {
		return err
	}
	for _, k := range []classdb.Constant{
		{Enum: "ExampleEnum", Name: "FIRST", Value: int64(ExampleFirst)},
		{Enum: "ExampleEnum", Name: "ANSWER_TO_EVERYTHING", Value: int64(AnswerToEverything)},
		{Name: "CONSTANT_WITHOUT_ENUM", Value: ConstantWithoutEnum},
	} {
		if err := reg.AddConstant("Example", k); err != nil {
			return err
		}
	}
	return nil
}

func initialize(b *loader.Bridge, level abi.InitializationLevel) error {
	if level != abi.InitializationScene {
		return nil
	}
	SetLogger(b.Logger().Named("demo"))
	Logger().Debug("registering demo types")
	return Register(b.Classes())
}

func deinitialize(_ *loader.Bridge, level abi.InitializationLevel) error {
	if level == abi.InitializationScene {
		Logger().Debug("unregistering demo types")
	}
	return nil
}

// Config returns the loader configuration of the demo extension.
func Config() loader.Config {
	return loader.Config{
		MinimumLevel: abi.InitializationScene,
		Init:         initialize,
		Deinit:       deinitialize,
	}
}

// Entry is the demo extension's load-time entry point.
func Entry() abi.EntryFunc {
	return loader.Entry(Config())
}
