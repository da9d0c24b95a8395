package classdb

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/wippyai/gdext-bridge/abi"
	"github.com/wippyai/gdext-bridge/errors"
	"github.com/wippyai/gdext-bridge/resource"
)

// Optional instance behaviors. A class's instances are checked against
// these once, at registration; hooks for the missing ones are reported to
// the host as absent.
type (
	// Getter handles property reads the host cannot resolve through
	// registered accessors.
	Getter interface {
		Get(name string) (any, bool)
	}
	// Setter handles property writes the same way.
	Setter interface {
		Set(name string, value any) bool
	}
	// PropertyLister reports dynamic properties.
	PropertyLister interface {
		PropertyList() []Property
	}
	// Reverter offers editor revert values.
	Reverter interface {
		CanRevert(name string) bool
		Revert(name string) (any, bool)
	}
	// Notifier receives host notifications. reversed is set for
	// notifications the host delivers leaf to root.
	Notifier interface {
		Notification(what int32, reversed bool)
	}
	// RefObserver follows the host reference count of RefCounted instances.
	RefObserver interface {
		Referenced()
		Unreferenced()
	}
	// Freer is called when the host frees the instance.
	Freer interface {
		Free()
	}
)

// Capability is the set of optional hooks a class installs.
type Capability uint16

const (
	CapGet Capability = 1 << iota
	CapSet
	CapPropertyList
	CapRevert
	CapNotification
	CapToString
	CapReference
	CapFree
)

var capabilityTypes = []struct {
	cap Capability
	t   reflect.Type
}{
	{CapGet, reflect.TypeFor[Getter]()},
	{CapSet, reflect.TypeFor[Setter]()},
	{CapPropertyList, reflect.TypeFor[PropertyLister]()},
	{CapRevert, reflect.TypeFor[Reverter]()},
	{CapNotification, reflect.TypeFor[Notifier]()},
	{CapToString, reflect.TypeFor[fmt.Stringer]()},
	{CapReference, reflect.TypeFor[RefObserver]()},
	{CapFree, reflect.TypeFor[Freer]()},
}

func capabilitiesOf(t reflect.Type) Capability {
	var caps Capability
	if t == nil {
		return 0
	}
	for _, c := range capabilityTypes {
		if t.Implements(c.t) {
			caps |= c.cap
		}
	}
	return caps
}

// Has reports whether every capability in want is set.
func (c Capability) Has(want Capability) bool { return c&want == want }

// Def describes a class to register. New constructs the Go side of one
// instance; it may be nil only for abstract and virtual classes.
type Def struct {
	Name     string
	Parent   string
	New      func() any
	Abstract bool
	Virtual  bool
	Hidden   bool
}

// Property describes a registered or dynamic property.
type Property struct {
	Name       string
	ClassName  string
	HintString string
	Setter     string
	Getter     string
	Type       abi.VariantType
	Hint       abi.PropertyHint
	Usage      abi.PropertyUsage
}

// Signal describes a registered signal.
type Signal struct {
	Name string
	Args []Property
}

// Constant is an integer constant, optionally part of an enum or bitfield.
type Constant struct {
	Enum     string
	Name     string
	Value    int64
	Bitfield bool
}

// Class is one registered extension class. Its metadata is immutable once
// the class is registered, except for the members added through the
// Registry.
type Class struct {
	Name   string
	Parent string
	// Native is the nearest native ancestor the host constructs.
	Native string
	// Base is the parent when it is an extension class of this registry.
	Base     *Class
	Level    abi.InitializationLevel
	Caps     Capability
	Type     reflect.Type
	Abstract bool
	Virtual  bool
	Exposed  bool

	handle resource.Handle
	newFn  func() any

	mu         sync.RWMutex
	methods    map[string]*Method
	order      []*Method
	properties []Property
	signals    []Signal
	constants  []Constant
}

// Userdata returns the class userdata handed to the host.
func (c *Class) Userdata() abi.Ptr { return abi.Ptr(c.handle) }

// New constructs the Go side of a new instance.
func (c *Class) New() (any, error) {
	if c.newFn == nil {
		return nil, errors.New(errors.PhaseCall, errors.KindUnsupported).
			Class(c.Name).
			Detail("class has no constructor").
			Build()
	}
	inst := c.newFn()
	if inst == nil {
		return nil, errors.NilPointer(errors.PhaseCall, c.Name+" instance")
	}
	return inst, nil
}

// Chain returns the extension classes from the root-most to c.
func (c *Class) Chain() []*Class {
	var out []*Class
	for k := c; k != nil; k = k.Base {
		out = append(out, k)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Inherits reports whether c is name or descends from it.
func (c *Class) Inherits(name string) bool {
	for k := c; k != nil; k = k.Base {
		if k.Name == name {
			return true
		}
	}
	return c.Native == name
}

// Method finds a method declared on c or an extension ancestor.
func (c *Class) Method(name string) (*Method, bool) {
	for k := c; k != nil; k = k.Base {
		k.mu.RLock()
		m, ok := k.methods[name]
		k.mu.RUnlock()
		if ok {
			return m, true
		}
	}
	return nil, false
}

// VirtualMethod finds the override of virtual method name, if any.
func (c *Class) VirtualMethod(name string) (*Method, bool) {
	m, ok := c.Method(name)
	if !ok || !m.Flags.Has(abi.MethodFlagVirtual) {
		return nil, false
	}
	return m, true
}

// Methods returns the methods declared on c in registration order.
func (c *Class) Methods() []*Method {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Method, len(c.order))
	copy(out, c.order)
	return out
}

// MethodNames returns the sorted names of the methods declared on c.
func (c *Class) MethodNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.methods))
	for n := range c.methods {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Properties returns the registered properties, groups included.
func (c *Class) Properties() []Property {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Property(nil), c.properties...)
}

// Signals returns the registered signals.
func (c *Class) Signals() []Signal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Signal(nil), c.signals...)
}

// Constants returns the registered constants.
func (c *Class) Constants() []Constant {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Constant(nil), c.constants...)
}

func (c *Class) hasProperty(name string) bool {
	for _, p := range c.properties {
		if p.Name == name && p.Usage&(abi.PropertyUsageGroup|abi.PropertyUsageSubgroup) == 0 {
			return true
		}
	}
	return false
}
