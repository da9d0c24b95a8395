package variant

import (
	"encoding/binary"
	"math"

	"github.com/wippyai/gdext-bridge/abi"
	"github.com/wippyai/gdext-bridge/errors"
)

var le = binary.LittleEndian

// toInt64 accepts every Go integer kind and bool; floats are rejected so a
// lossy conversion is never chosen silently.
func toInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint:
		if uint64(x) > math.MaxInt64 {
			return 0, false
		}
		return int64(x), true
	case uint64:
		if x > math.MaxInt64 {
			return 0, false
		}
		return int64(x), true
	case RID:
		return int64(x), true
	}
	return 0, false
}

func toFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	}
	if i, ok := toInt64(v); ok {
		return float64(i), true
	}
	return 0, false
}

type floatWriter struct {
	b   []byte
	off int
}

func (w *floatWriter) f(fs ...float32) {
	for _, f := range fs {
		le.PutUint32(w.b[w.off:], math.Float32bits(f))
		w.off += 4
	}
}

func (w *floatWriter) i(is ...int32) {
	for _, i := range is {
		le.PutUint32(w.b[w.off:], uint32(i))
		w.off += 4
	}
}

func (w *floatWriter) v2(v Vector2)  { w.f(v.X, v.Y) }
func (w *floatWriter) v3(v Vector3)  { w.f(v.X, v.Y, v.Z) }
func (w *floatWriter) v4(v Vector4)  { w.f(v.X, v.Y, v.Z, v.W) }
func (w *floatWriter) v2i(v Vector2i) { w.i(v.X, v.Y) }

// encodePOD renders v as typed storage of t. t must satisfy abi.IsPOD.
func encodePOD(t abi.VariantType, v any) ([]byte, error) {
	b := make([]byte, abi.TypeSize(t))
	w := &floatWriter{b: b}
	mismatch := func() ([]byte, error) {
		k, _ := KindOf(v)
		return nil, errors.TypeMismatch(errors.PhaseMarshal, k, t)
	}

	switch t {
	case abi.VariantTypeBool:
		x, ok := v.(bool)
		if !ok {
			return mismatch()
		}
		if x {
			b[0] = 1
		}
	case abi.VariantTypeInt:
		x, ok := toInt64(v)
		if !ok {
			return mismatch()
		}
		le.PutUint64(b, uint64(x))
	case abi.VariantTypeFloat:
		x, ok := toFloat64(v)
		if !ok {
			return mismatch()
		}
		le.PutUint64(b, math.Float64bits(x))
	case abi.VariantTypeVector2:
		x, ok := v.(Vector2)
		if !ok {
			return mismatch()
		}
		w.v2(x)
	case abi.VariantTypeVector2i:
		x, ok := v.(Vector2i)
		if !ok {
			return mismatch()
		}
		w.v2i(x)
	case abi.VariantTypeRect2:
		x, ok := v.(Rect2)
		if !ok {
			return mismatch()
		}
		w.v2(x.Position)
		w.v2(x.Size)
	case abi.VariantTypeRect2i:
		x, ok := v.(Rect2i)
		if !ok {
			return mismatch()
		}
		w.v2i(x.Position)
		w.v2i(x.Size)
	case abi.VariantTypeVector3:
		x, ok := v.(Vector3)
		if !ok {
			return mismatch()
		}
		w.v3(x)
	case abi.VariantTypeVector3i:
		x, ok := v.(Vector3i)
		if !ok {
			return mismatch()
		}
		w.i(x.X, x.Y, x.Z)
	case abi.VariantTypeTransform2D:
		x, ok := v.(Transform2D)
		if !ok {
			return mismatch()
		}
		for _, r := range x {
			w.v2(r)
		}
	case abi.VariantTypeVector4:
		x, ok := v.(Vector4)
		if !ok {
			return mismatch()
		}
		w.v4(x)
	case abi.VariantTypeVector4i:
		x, ok := v.(Vector4i)
		if !ok {
			return mismatch()
		}
		w.i(x.X, x.Y, x.Z, x.W)
	case abi.VariantTypePlane:
		x, ok := v.(Plane)
		if !ok {
			return mismatch()
		}
		w.v3(x.Normal)
		w.f(x.D)
	case abi.VariantTypeQuaternion:
		x, ok := v.(Quaternion)
		if !ok {
			return mismatch()
		}
		w.f(x.X, x.Y, x.Z, x.W)
	case abi.VariantTypeAABB:
		x, ok := v.(AABB)
		if !ok {
			return mismatch()
		}
		w.v3(x.Position)
		w.v3(x.Size)
	case abi.VariantTypeBasis:
		x, ok := v.(Basis)
		if !ok {
			return mismatch()
		}
		for _, r := range x {
			w.v3(r)
		}
	case abi.VariantTypeTransform3D:
		x, ok := v.(Transform3D)
		if !ok {
			return mismatch()
		}
		for _, r := range x.Basis {
			w.v3(r)
		}
		w.v3(x.Origin)
	case abi.VariantTypeProjection:
		x, ok := v.(Projection)
		if !ok {
			return mismatch()
		}
		for _, r := range x {
			w.v4(r)
		}
	case abi.VariantTypeColor:
		x, ok := v.(Color)
		if !ok {
			return mismatch()
		}
		w.f(x.R, x.G, x.B, x.A)
	case abi.VariantTypeRID:
		x, ok := toInt64(v)
		if !ok {
			return mismatch()
		}
		le.PutUint64(b, uint64(x))
	case abi.VariantTypeObject:
		var p abi.Ptr
		switch x := v.(type) {
		case nil:
		case HostObject:
			p = x.HostPtr()
		default:
			return mismatch()
		}
		le.PutUint64(b, uint64(p))
	default:
		return nil, errors.Unsupported(errors.PhaseMarshal, "plain-data encoding of "+t.String())
	}
	return b, nil
}

type floatReader struct {
	b   []byte
	off int
}

func (r *floatReader) f() float32 {
	v := math.Float32frombits(le.Uint32(r.b[r.off:]))
	r.off += 4
	return v
}

func (r *floatReader) i() int32 {
	v := int32(le.Uint32(r.b[r.off:]))
	r.off += 4
	return v
}

func (r *floatReader) v2() Vector2   { return Vector2{r.f(), r.f()} }
func (r *floatReader) v3() Vector3   { return Vector3{r.f(), r.f(), r.f()} }
func (r *floatReader) v4() Vector4   { return Vector4{r.f(), r.f(), r.f(), r.f()} }
func (r *floatReader) v2i() Vector2i { return Vector2i{r.i(), r.i()} }

// decodePOD reads typed storage of t.
func decodePOD(t abi.VariantType, b []byte) (any, error) {
	if uint32(len(b)) < abi.TypeSize(t) {
		return nil, errors.InvalidInput(errors.PhaseMarshal, "short typed storage for "+t.String())
	}
	r := &floatReader{b: b}
	switch t {
	case abi.VariantTypeBool:
		return b[0] != 0, nil
	case abi.VariantTypeInt:
		return int64(le.Uint64(b)), nil
	case abi.VariantTypeFloat:
		return math.Float64frombits(le.Uint64(b)), nil
	case abi.VariantTypeVector2:
		return r.v2(), nil
	case abi.VariantTypeVector2i:
		return r.v2i(), nil
	case abi.VariantTypeRect2:
		return Rect2{r.v2(), r.v2()}, nil
	case abi.VariantTypeRect2i:
		return Rect2i{r.v2i(), r.v2i()}, nil
	case abi.VariantTypeVector3:
		return r.v3(), nil
	case abi.VariantTypeVector3i:
		return Vector3i{r.i(), r.i(), r.i()}, nil
	case abi.VariantTypeTransform2D:
		return Transform2D{r.v2(), r.v2(), r.v2()}, nil
	case abi.VariantTypeVector4:
		return r.v4(), nil
	case abi.VariantTypeVector4i:
		return Vector4i{r.i(), r.i(), r.i(), r.i()}, nil
	case abi.VariantTypePlane:
		return Plane{Normal: r.v3(), D: r.f()}, nil
	case abi.VariantTypeQuaternion:
		return Quaternion{r.f(), r.f(), r.f(), r.f()}, nil
	case abi.VariantTypeAABB:
		return AABB{r.v3(), r.v3()}, nil
	case abi.VariantTypeBasis:
		return Basis{r.v3(), r.v3(), r.v3()}, nil
	case abi.VariantTypeTransform3D:
		return Transform3D{Basis: Basis{r.v3(), r.v3(), r.v3()}, Origin: r.v3()}, nil
	case abi.VariantTypeProjection:
		return Projection{r.v4(), r.v4(), r.v4(), r.v4()}, nil
	case abi.VariantTypeColor:
		return Color{r.f(), r.f(), r.f(), r.f()}, nil
	case abi.VariantTypeRID:
		return RID(le.Uint64(b)), nil
	case abi.VariantTypeObject:
		return Object{Ptr: abi.Ptr(le.Uint64(b))}, nil
	}
	return nil, errors.Unsupported(errors.PhaseMarshal, "plain-data decoding of "+t.String())
}
