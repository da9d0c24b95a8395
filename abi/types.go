package abi

import "fmt"

// Ptr is an address in the host address space. The zero value is null.
type Ptr uint32

// Null is the null host pointer.
const Null Ptr = 0

// IsNull reports whether p is the null pointer.
func (p Ptr) IsNull() bool { return p == Null }

// Add offsets p by n bytes.
func (p Ptr) Add(n uint32) Ptr { return p + Ptr(n) }

func (p Ptr) String() string { return fmt.Sprintf("0x%08x", uint32(p)) }

// Sizes of the fixed layouts shared with the host.
const (
	PointerSize   = 8
	VariantSize   = 24
	CallErrorSize = 12
)

// InitializationLevel orders the startup and shutdown phases of the host.
type InitializationLevel int32

const (
	InitializationCore InitializationLevel = iota
	InitializationServers
	InitializationScene
	InitializationEditor
	MaxInitializationLevel
)

func (l InitializationLevel) String() string {
	switch l {
	case InitializationCore:
		return "core"
	case InitializationServers:
		return "servers"
	case InitializationScene:
		return "scene"
	case InitializationEditor:
		return "editor"
	}
	return fmt.Sprintf("level(%d)", int32(l))
}

// MethodFlags describe how a bound method may be invoked.
type MethodFlags uint32

const (
	MethodFlagNormal MethodFlags = 1 << iota
	MethodFlagEditor
	MethodFlagConst
	MethodFlagVirtual
	MethodFlagVararg
	MethodFlagStatic

	MethodFlagsDefault = MethodFlagNormal
)

// Has reports whether all bits of f are set.
func (m MethodFlags) Has(f MethodFlags) bool { return m&f == f }

// ArgumentMetadata refines the storage of INT and FLOAT arguments.
type ArgumentMetadata int32

const (
	ArgumentMetadataNone ArgumentMetadata = iota
	ArgumentMetadataIntIsInt8
	ArgumentMetadataIntIsInt16
	ArgumentMetadataIntIsInt32
	ArgumentMetadataIntIsInt64
	ArgumentMetadataIntIsUint8
	ArgumentMetadataIntIsUint16
	ArgumentMetadataIntIsUint32
	ArgumentMetadataIntIsUint64
	ArgumentMetadataRealIsFloat
	ArgumentMetadataRealIsDouble
)

// PropertyHint mirrors the subset of host property hints the bridge emits.
type PropertyHint uint32

const (
	PropertyHintNone PropertyHint = iota
	PropertyHintRange
	PropertyHintEnum
	PropertyHintEnumSuggestion
	PropertyHintExpEasing
	PropertyHintLink
	PropertyHintFlags
)

// PropertyUsage flags control editor and storage behavior of a property.
type PropertyUsage uint32

const (
	PropertyUsageNone      PropertyUsage = 0
	PropertyUsageStorage   PropertyUsage = 1 << 1
	PropertyUsageEditor    PropertyUsage = 1 << 2
	PropertyUsageInternal  PropertyUsage = 1 << 3
	PropertyUsageGroup     PropertyUsage = 1 << 6
	PropertyUsageCategory  PropertyUsage = 1 << 7
	PropertyUsageSubgroup  PropertyUsage = 1 << 8
	PropertyUsageReadOnly  PropertyUsage = 1 << 27
	PropertyUsageDefault                 = PropertyUsageStorage | PropertyUsageEditor
	PropertyUsageNoEditor                = PropertyUsageStorage
)

// GodotVersion is the host version reported through the table.
type GodotVersion struct {
	Major  uint32
	Minor  uint32
	Patch  uint32
	String string
}

// Semver renders the version in the form expected by golang.org/x/mod/semver.
func (v GodotVersion) Semver() string {
	return fmt.Sprintf("v%d.%d.%d", v.Major, v.Minor, v.Patch)
}
