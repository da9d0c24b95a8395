package abi

import "fmt"

// VariantType is the runtime kind tag of a host Variant.
type VariantType int32

const (
	VariantTypeNil VariantType = iota

	// atomic types
	VariantTypeBool
	VariantTypeInt
	VariantTypeFloat
	VariantTypeString

	// math types
	VariantTypeVector2
	VariantTypeVector2i
	VariantTypeRect2
	VariantTypeRect2i
	VariantTypeVector3
	VariantTypeVector3i
	VariantTypeTransform2D
	VariantTypeVector4
	VariantTypeVector4i
	VariantTypePlane
	VariantTypeQuaternion
	VariantTypeAABB
	VariantTypeBasis
	VariantTypeTransform3D
	VariantTypeProjection

	// misc types
	VariantTypeColor
	VariantTypeStringName
	VariantTypeNodePath
	VariantTypeRID
	VariantTypeObject
	VariantTypeCallable
	VariantTypeSignal
	VariantTypeDictionary
	VariantTypeArray

	// typed arrays
	VariantTypePackedByteArray
	VariantTypePackedInt32Array
	VariantTypePackedInt64Array
	VariantTypePackedFloat32Array
	VariantTypePackedFloat64Array
	VariantTypePackedStringArray
	VariantTypePackedVector2Array
	VariantTypePackedVector3Array
	VariantTypePackedColorArray

	VariantTypeMax
)

var variantTypeNames = [VariantTypeMax]string{
	"Nil", "bool", "int", "float", "String",
	"Vector2", "Vector2i", "Rect2", "Rect2i", "Vector3", "Vector3i", "Transform2D",
	"Vector4", "Vector4i", "Plane", "Quaternion", "AABB", "Basis", "Transform3D", "Projection",
	"Color", "StringName", "NodePath", "RID", "Object", "Callable", "Signal", "Dictionary", "Array",
	"PackedByteArray", "PackedInt32Array", "PackedInt64Array", "PackedFloat32Array",
	"PackedFloat64Array", "PackedStringArray", "PackedVector2Array", "PackedVector3Array",
	"PackedColorArray",
}

func (t VariantType) String() string {
	if t >= 0 && t < VariantTypeMax {
		return variantTypeNames[t]
	}
	return fmt.Sprintf("VariantType(%d)", int32(t))
}

// Valid reports whether t names a real Variant kind.
func (t VariantType) Valid() bool { return t >= VariantTypeNil && t < VariantTypeMax }

// Sizes of typed (ptrcall) storage for a 64-bit host built with 32-bit reals.
var typeSizes = [VariantTypeMax]uint32{
	VariantTypeNil:                0,
	VariantTypeBool:               1,
	VariantTypeInt:                8,
	VariantTypeFloat:              8,
	VariantTypeString:             8,
	VariantTypeVector2:            8,
	VariantTypeVector2i:           8,
	VariantTypeRect2:              16,
	VariantTypeRect2i:             16,
	VariantTypeVector3:            12,
	VariantTypeVector3i:           12,
	VariantTypeTransform2D:        24,
	VariantTypeVector4:            16,
	VariantTypeVector4i:           16,
	VariantTypePlane:              16,
	VariantTypeQuaternion:         16,
	VariantTypeAABB:               24,
	VariantTypeBasis:              36,
	VariantTypeTransform3D:        48,
	VariantTypeProjection:         64,
	VariantTypeColor:              16,
	VariantTypeStringName:         8,
	VariantTypeNodePath:           8,
	VariantTypeRID:                8,
	VariantTypeObject:             PointerSize,
	VariantTypeCallable:           16,
	VariantTypeSignal:             16,
	VariantTypeDictionary:         8,
	VariantTypeArray:              8,
	VariantTypePackedByteArray:    16,
	VariantTypePackedInt32Array:   16,
	VariantTypePackedInt64Array:   16,
	VariantTypePackedFloat32Array: 16,
	VariantTypePackedFloat64Array: 16,
	VariantTypePackedStringArray:  16,
	VariantTypePackedVector2Array: 16,
	VariantTypePackedVector3Array: 16,
	VariantTypePackedColorArray:   16,
}

// TypeSize returns the size of the typed storage for t. A Nil argument in a
// ptrcall signature is a full Variant.
func TypeSize(t VariantType) uint32 {
	if t == VariantTypeNil {
		return VariantSize
	}
	if !t.Valid() {
		return 0
	}
	return typeSizes[t]
}

// IsPOD reports whether typed storage of t is plain data the bridge may read
// and write directly. Every other kind is opaque and handled through the
// table's constructors and destructors.
func IsPOD(t VariantType) bool {
	switch t {
	case VariantTypeBool, VariantTypeInt, VariantTypeFloat,
		VariantTypeVector2, VariantTypeVector2i, VariantTypeRect2, VariantTypeRect2i,
		VariantTypeVector3, VariantTypeVector3i, VariantTypeTransform2D,
		VariantTypeVector4, VariantTypeVector4i, VariantTypePlane, VariantTypeQuaternion,
		VariantTypeAABB, VariantTypeBasis, VariantTypeTransform3D, VariantTypeProjection,
		VariantTypeColor, VariantTypeRID, VariantTypeObject:
		return true
	}
	return false
}

// IsPacked reports whether t belongs to the packed-array family.
func IsPacked(t VariantType) bool {
	return t >= VariantTypePackedByteArray && t <= VariantTypePackedColorArray
}

// VariantOperator selects the operation of VariantEvaluate.
type VariantOperator int32

const (
	OpEqual VariantOperator = iota
	OpNotEqual
	OpLess
	OpLessEqual
	OpGreater
	OpGreaterEqual
	OpAdd
	OpSubtract
	OpMultiply
	OpDivide
	OpNegate
	OpPositive
	OpModule
	OpPower
	OpShiftLeft
	OpShiftRight
	OpBitAnd
	OpBitOr
	OpBitXor
	OpBitNegate
	OpAnd
	OpOr
	OpXor
	OpNot
	OpIn
	OpMax
)
