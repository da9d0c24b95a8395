package variant

import (
	"reflect"

	"github.com/wippyai/gdext-bridge/errors"
)

// Coerce converts a decoded value to Go type t: numeric widths are checked
// for overflow, named types convert from their underlying form, and nil
// becomes the zero value of nilable types.
func Coerce(v any, t reflect.Type) (reflect.Value, error) {
	if v == nil {
		switch t.Kind() {
		case reflect.Interface, reflect.Pointer, reflect.Slice, reflect.Map, reflect.Func:
			return reflect.Zero(t), nil
		}
		return reflect.Value{}, coerceErr(v, t)
	}

	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(t) {
		out := reflect.New(t).Elem()
		out.Set(rv)
		return out, nil
	}

	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, ok := toInt64(v)
		if !ok {
			return reflect.Value{}, coerceErr(v, t)
		}
		out := reflect.New(t).Elem()
		if out.OverflowInt(i) {
			return reflect.Value{}, errors.Overflow(errors.PhaseMarshal, v, t.String())
		}
		out.SetInt(i)
		return out, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		i, ok := toInt64(v)
		if !ok {
			return reflect.Value{}, coerceErr(v, t)
		}
		out := reflect.New(t).Elem()
		if i < 0 || out.OverflowUint(uint64(i)) {
			return reflect.Value{}, errors.Overflow(errors.PhaseMarshal, v, t.String())
		}
		out.SetUint(uint64(i))
		return out, nil
	case reflect.Float32, reflect.Float64:
		f, ok := toFloat64(v)
		if !ok {
			return reflect.Value{}, coerceErr(v, t)
		}
		out := reflect.New(t).Elem()
		out.SetFloat(f)
		return out, nil
	case reflect.String, reflect.Slice, reflect.Struct, reflect.Array, reflect.Bool:
		if rv.Kind() == t.Kind() && rv.Type().ConvertibleTo(t) {
			return rv.Convert(t), nil
		}
	}
	return reflect.Value{}, coerceErr(v, t)
}

func coerceErr(v any, t reflect.Type) error {
	return errors.New(errors.PhaseMarshal, errors.KindTypeMismatch).
		Value(v).
		Detail("cannot use %T as %s", v, t).
		Build()
}
