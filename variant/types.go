package variant

import (
	"reflect"

	"github.com/wippyai/gdext-bridge/abi"
)

// Native counterparts of the host math and misc kinds. Layouts match the
// host's typed storage with 32-bit reals.
type (
	Vector2  struct{ X, Y float32 }
	Vector2i struct{ X, Y int32 }
	Rect2    struct{ Position, Size Vector2 }
	Rect2i   struct{ Position, Size Vector2i }
	Vector3  struct{ X, Y, Z float32 }
	Vector3i struct{ X, Y, Z int32 }
	// Transform2D holds the x and y axes followed by the origin.
	Transform2D [3]Vector2
	Vector4     struct{ X, Y, Z, W float32 }
	Vector4i    struct{ X, Y, Z, W int32 }
	Plane       struct {
		Normal Vector3
		D      float32
	}
	Quaternion struct{ X, Y, Z, W float32 }
	AABB       struct{ Position, Size Vector3 }
	// Basis holds three rows.
	Basis       [3]Vector3
	Transform3D struct {
		Basis  Basis
		Origin Vector3
	}
	Projection [4]Vector4
	Color      struct{ R, G, B, A float32 }
)

// StringName and NodePath are distinct host string kinds.
type (
	StringName string
	NodePath   string
)

// RID is an opaque server resource id.
type RID uint64

// Object is a reference to a host object. Identity is the pointer.
type Object struct {
	Ptr abi.Ptr
}

// IsNull reports whether o refers to no object.
func (o Object) IsNull() bool { return o.Ptr.IsNull() }

// HostPtr returns the object pointer.
func (o Object) HostPtr() abi.Ptr { return o.Ptr }

// HostObject is implemented by managed wrappers of host objects; Encode
// stores them as Object.
type HostObject interface {
	HostPtr() abi.Ptr
}

// Callable names a method on an object.
type Callable struct {
	Object abi.Ptr
	Method StringName
}

// Signal names a signal on an object.
type Signal struct {
	Object abi.Ptr
	Name   StringName
}

// Array is a host Array decoded element-wise.
type Array []any

// Entry is one Dictionary entry.
type Entry struct {
	Key   any
	Value any
}

// Dictionary is a host Dictionary in insertion order.
type Dictionary []Entry

// Get returns the value stored under key.
func (d Dictionary) Get(key any) (any, bool) {
	for _, e := range d {
		if reflect.DeepEqual(e.Key, key) {
			return e.Value, true
		}
	}
	return nil, false
}

// Set replaces or appends the entry for key.
func (d *Dictionary) Set(key, value any) {
	for i, e := range *d {
		if reflect.DeepEqual(e.Key, key) {
			(*d)[i].Value = value
			return
		}
	}
	*d = append(*d, Entry{Key: key, Value: value})
}

// Packed arrays.
type (
	PackedByteArray    []byte
	PackedInt32Array   []int32
	PackedInt64Array   []int64
	PackedFloat32Array []float32
	PackedFloat64Array []float64
	PackedStringArray  []string
	PackedVector2Array []Vector2
	PackedVector3Array []Vector3
	PackedColorArray   []Color
)

// KindOf returns the Variant kind Encode uses for v. ok is false when v has
// no host counterpart.
func KindOf(v any) (abi.VariantType, bool) {
	switch v.(type) {
	case nil:
		return abi.VariantTypeNil, true
	case bool:
		return abi.VariantTypeBool, true
	case int, int8, int16, int32, int64, uint8, uint16, uint32, uint, uint64:
		return abi.VariantTypeInt, true
	case float32, float64:
		return abi.VariantTypeFloat, true
	case string:
		return abi.VariantTypeString, true
	case Vector2:
		return abi.VariantTypeVector2, true
	case Vector2i:
		return abi.VariantTypeVector2i, true
	case Rect2:
		return abi.VariantTypeRect2, true
	case Rect2i:
		return abi.VariantTypeRect2i, true
	case Vector3:
		return abi.VariantTypeVector3, true
	case Vector3i:
		return abi.VariantTypeVector3i, true
	case Transform2D:
		return abi.VariantTypeTransform2D, true
	case Vector4:
		return abi.VariantTypeVector4, true
	case Vector4i:
		return abi.VariantTypeVector4i, true
	case Plane:
		return abi.VariantTypePlane, true
	case Quaternion:
		return abi.VariantTypeQuaternion, true
	case AABB:
		return abi.VariantTypeAABB, true
	case Basis:
		return abi.VariantTypeBasis, true
	case Transform3D:
		return abi.VariantTypeTransform3D, true
	case Projection:
		return abi.VariantTypeProjection, true
	case Color:
		return abi.VariantTypeColor, true
	case StringName:
		return abi.VariantTypeStringName, true
	case NodePath:
		return abi.VariantTypeNodePath, true
	case RID:
		return abi.VariantTypeRID, true
	case HostObject:
		return abi.VariantTypeObject, true
	case Callable:
		return abi.VariantTypeCallable, true
	case Signal:
		return abi.VariantTypeSignal, true
	case Dictionary:
		return abi.VariantTypeDictionary, true
	case Array, []any:
		return abi.VariantTypeArray, true
	case PackedByteArray, []byte:
		return abi.VariantTypePackedByteArray, true
	case PackedInt32Array, []int32:
		return abi.VariantTypePackedInt32Array, true
	case PackedInt64Array, []int64:
		return abi.VariantTypePackedInt64Array, true
	case PackedFloat32Array, []float32:
		return abi.VariantTypePackedFloat32Array, true
	case PackedFloat64Array, []float64:
		return abi.VariantTypePackedFloat64Array, true
	case PackedStringArray, []string:
		return abi.VariantTypePackedStringArray, true
	case PackedVector2Array, []Vector2:
		return abi.VariantTypePackedVector2Array, true
	case PackedVector3Array, []Vector3:
		return abi.VariantTypePackedVector3Array, true
	case PackedColorArray, []Color:
		return abi.VariantTypePackedColorArray, true
	}
	return abi.VariantTypeNil, false
}

// GoType returns the Go type Decode produces for t.
func GoType(t abi.VariantType) reflect.Type {
	if t == abi.VariantTypeNil || !t.Valid() {
		return nil
	}
	return goTypes[t]
}

var goTypes = [abi.VariantTypeMax]reflect.Type{
	abi.VariantTypeBool:               reflect.TypeFor[bool](),
	abi.VariantTypeInt:                reflect.TypeFor[int64](),
	abi.VariantTypeFloat:              reflect.TypeFor[float64](),
	abi.VariantTypeString:             reflect.TypeFor[string](),
	abi.VariantTypeVector2:            reflect.TypeFor[Vector2](),
	abi.VariantTypeVector2i:           reflect.TypeFor[Vector2i](),
	abi.VariantTypeRect2:              reflect.TypeFor[Rect2](),
	abi.VariantTypeRect2i:             reflect.TypeFor[Rect2i](),
	abi.VariantTypeVector3:            reflect.TypeFor[Vector3](),
	abi.VariantTypeVector3i:           reflect.TypeFor[Vector3i](),
	abi.VariantTypeTransform2D:        reflect.TypeFor[Transform2D](),
	abi.VariantTypeVector4:            reflect.TypeFor[Vector4](),
	abi.VariantTypeVector4i:           reflect.TypeFor[Vector4i](),
	abi.VariantTypePlane:              reflect.TypeFor[Plane](),
	abi.VariantTypeQuaternion:         reflect.TypeFor[Quaternion](),
	abi.VariantTypeAABB:               reflect.TypeFor[AABB](),
	abi.VariantTypeBasis:              reflect.TypeFor[Basis](),
	abi.VariantTypeTransform3D:        reflect.TypeFor[Transform3D](),
	abi.VariantTypeProjection:         reflect.TypeFor[Projection](),
	abi.VariantTypeColor:              reflect.TypeFor[Color](),
	abi.VariantTypeStringName:         reflect.TypeFor[StringName](),
	abi.VariantTypeNodePath:           reflect.TypeFor[NodePath](),
	abi.VariantTypeRID:                reflect.TypeFor[RID](),
	abi.VariantTypeObject:             reflect.TypeFor[Object](),
	abi.VariantTypeCallable:           reflect.TypeFor[Callable](),
	abi.VariantTypeSignal:             reflect.TypeFor[Signal](),
	abi.VariantTypeDictionary:         reflect.TypeFor[Dictionary](),
	abi.VariantTypeArray:              reflect.TypeFor[Array](),
	abi.VariantTypePackedByteArray:    reflect.TypeFor[PackedByteArray](),
	abi.VariantTypePackedInt32Array:   reflect.TypeFor[PackedInt32Array](),
	abi.VariantTypePackedInt64Array:   reflect.TypeFor[PackedInt64Array](),
	abi.VariantTypePackedFloat32Array: reflect.TypeFor[PackedFloat32Array](),
	abi.VariantTypePackedFloat64Array: reflect.TypeFor[PackedFloat64Array](),
	abi.VariantTypePackedStringArray:  reflect.TypeFor[PackedStringArray](),
	abi.VariantTypePackedVector2Array: reflect.TypeFor[PackedVector2Array](),
	abi.VariantTypePackedVector3Array: reflect.TypeFor[PackedVector3Array](),
	abi.VariantTypePackedColorArray:   reflect.TypeFor[PackedColorArray](),
}

var (
	anyType        = reflect.TypeFor[any]()
	hostObjectType = reflect.TypeFor[HostObject]()
	byGoType       = func() map[reflect.Type]abi.VariantType {
		m := make(map[reflect.Type]abi.VariantType, len(goTypes)+10)
		for k, t := range goTypes {
			if t != nil {
				m[t] = abi.VariantType(k)
			}
		}
		m[reflect.TypeFor[[]any]()] = abi.VariantTypeArray
		m[reflect.TypeFor[[]byte]()] = abi.VariantTypePackedByteArray
		m[reflect.TypeFor[[]int32]()] = abi.VariantTypePackedInt32Array
		m[reflect.TypeFor[[]int64]()] = abi.VariantTypePackedInt64Array
		m[reflect.TypeFor[[]float32]()] = abi.VariantTypePackedFloat32Array
		m[reflect.TypeFor[[]float64]()] = abi.VariantTypePackedFloat64Array
		m[reflect.TypeFor[[]string]()] = abi.VariantTypePackedStringArray
		m[reflect.TypeFor[[]Vector2]()] = abi.VariantTypePackedVector2Array
		m[reflect.TypeFor[[]Vector3]()] = abi.VariantTypePackedVector3Array
		m[reflect.TypeFor[[]Color]()] = abi.VariantTypePackedColorArray
		return m
	}()
)

// KindOfType returns the Variant kind values of Go type t travel as. An
// interface type such as any maps to Nil, meaning any Variant.
func KindOfType(t reflect.Type) (abi.VariantType, bool) {
	if t == nil || t == anyType {
		return abi.VariantTypeNil, true
	}
	if k, ok := byGoType[t]; ok {
		return k, true
	}
	if t.Implements(hostObjectType) {
		return abi.VariantTypeObject, true
	}
	switch t.Kind() {
	case reflect.Bool:
		return abi.VariantTypeBool, true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint, reflect.Uint64:
		return abi.VariantTypeInt, true
	case reflect.Float32, reflect.Float64:
		return abi.VariantTypeFloat, true
	case reflect.String:
		return abi.VariantTypeString, true
	case reflect.Interface:
		return abi.VariantTypeNil, true
	}
	return abi.VariantTypeNil, false
}
