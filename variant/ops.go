package variant

import (
	"github.com/wippyai/gdext-bridge/abi"
	"github.com/wippyai/gdext-bridge/errors"
)

// readNamed reads a Callable or Signal through its object and name getters.
func (m *Marshaler) readNamed(t abi.VariantType, p abi.Ptr, nameGetter string) (abi.Ptr, StringName, error) {
	getObject, err := m.builtin(t, "get_object", hashObjectConst)
	if err != nil {
		return abi.Null, "", err
	}
	getName, err := m.builtin(t, nameGetter, hashStringNameConst)
	if err != nil {
		return abi.Null, "", err
	}

	s := newScratch()
	defer m.release(s)
	obj, err := m.scratchDefault(s, abi.VariantTypeObject)
	if err != nil {
		return abi.Null, "", err
	}
	name, err := m.scratchDefault(s, abi.VariantTypeStringName)
	if err != nil {
		return abi.Null, "", err
	}
	getObject(p, nil, obj)
	getName(p, nil, name)

	o, err := m.ReadTyped(abi.VariantTypeObject, obj)
	if err != nil {
		return abi.Null, "", err
	}
	n, err := m.ReadTyped(abi.VariantTypeStringName, name)
	if err != nil {
		return abi.Null, "", err
	}
	return o.(Object).Ptr, n.(StringName), nil
}

// writeNamed constructs a Callable or Signal from an object and a name.
func (m *Marshaler) writeNamed(t abi.VariantType, p, object abi.Ptr, name StringName) error {
	ctor := m.table.VariantGetPtrConstructor(t, 2)
	if ctor == nil {
		return errors.Unsupported(errors.PhaseMarshal, t.String()+" from object and name")
	}
	s := newScratch()
	defer m.release(s)
	obj, err := m.scratchTyped(s, abi.VariantTypeObject, Object{Ptr: object})
	if err != nil {
		return err
	}
	sn, err := m.scratchTyped(s, abi.VariantTypeStringName, name)
	if err != nil {
		return err
	}
	ctor(p, []abi.Ptr{obj, sn})
	return nil
}

// op runs fn with self encoded into a temporary slot and decodes ret. ret
// starts as nil so it is safe to destroy whether or not fn reached the host.
func (m *Marshaler) op(self any, fn func(s *scratch, self, ret abi.Ptr) error) (any, error) {
	s := newScratch()
	defer m.release(s)
	sp, err := m.scratchVariant(s, self)
	if err != nil {
		return nil, err
	}
	ret, err := m.scratchNil(s)
	if err != nil {
		return nil, err
	}
	if err := fn(s, sp, ret); err != nil {
		return nil, err
	}
	return m.DecodeAny(ret)
}

// mutate runs fn against self encoded into a temporary slot and returns
// the updated self.
func (m *Marshaler) mutate(self any, fn func(s *scratch, self abi.Ptr) error) (any, error) {
	s := newScratch()
	defer m.release(s)
	sp, err := m.scratchVariant(s, self)
	if err != nil {
		return nil, err
	}
	if err := fn(s, sp); err != nil {
		return nil, err
	}
	return m.DecodeAny(sp)
}

// GetIndexed returns self[index].
func (m *Marshaler) GetIndexed(self any, index int64) (any, error) {
	return m.op(self, func(_ *scratch, sp, ret abi.Ptr) error {
		valid, oob := m.table.VariantGetIndexed(sp, index, ret)
		return indexErr(m.table.VariantGetType(sp), index, valid, oob)
	})
}

// SetIndexed returns self with self[index] replaced by value.
func (m *Marshaler) SetIndexed(self any, index int64, value any) (any, error) {
	return m.mutate(self, func(s *scratch, sp abi.Ptr) error {
		vp, err := m.scratchVariant(s, value)
		if err != nil {
			return err
		}
		valid, oob := m.table.VariantSetIndexed(sp, index, vp)
		return indexErr(m.table.VariantGetType(sp), index, valid, oob)
	})
}

func indexErr(t abi.VariantType, index int64, valid, oob bool) error {
	switch {
	case !valid:
		return errors.Unsupported(errors.PhaseHost, "indexing "+t.String())
	case oob:
		return errors.New(errors.PhaseHost, errors.KindOutOfBounds).
			Value(index).
			Detail("index %d out of bounds for %s", index, t).
			Build()
	}
	return nil
}

// GetKeyed returns self[key].
func (m *Marshaler) GetKeyed(self, key any) (any, error) {
	return m.op(self, func(s *scratch, sp, ret abi.Ptr) error {
		kp, err := m.scratchVariant(s, key)
		if err != nil {
			return err
		}
		if !m.table.VariantGetKeyed(sp, kp, ret) {
			return errors.New(errors.PhaseHost, errors.KindNotFound).
				Value(key).
				Detail("key %v not found", key).
				Build()
		}
		return nil
	})
}

// SetKeyed returns self with self[key] set to value.
func (m *Marshaler) SetKeyed(self, key, value any) (any, error) {
	return m.mutate(self, func(s *scratch, sp abi.Ptr) error {
		kp, err := m.scratchVariant(s, key)
		if err != nil {
			return err
		}
		vp, err := m.scratchVariant(s, value)
		if err != nil {
			return err
		}
		if !m.table.VariantSetKeyed(sp, kp, vp) {
			return errors.Unsupported(errors.PhaseHost, "keyed set on "+m.table.VariantGetType(sp).String())
		}
		return nil
	})
}

// GetNamed returns the member or property name of self.
func (m *Marshaler) GetNamed(self any, name string) (any, error) {
	return m.op(self, func(s *scratch, sp, ret abi.Ptr) error {
		np, err := m.scratchTyped(s, abi.VariantTypeStringName, name)
		if err != nil {
			return err
		}
		if !m.table.VariantGetNamed(sp, np, ret) {
			return errors.NotFound(errors.PhaseHost, "member", name)
		}
		return nil
	})
}

// SetNamed returns self with the member name set to value.
func (m *Marshaler) SetNamed(self any, name string, value any) (any, error) {
	return m.mutate(self, func(s *scratch, sp abi.Ptr) error {
		np, err := m.scratchTyped(s, abi.VariantTypeStringName, name)
		if err != nil {
			return err
		}
		vp, err := m.scratchVariant(s, value)
		if err != nil {
			return err
		}
		if !m.table.VariantSetNamed(sp, np, vp) {
			return errors.NotFound(errors.PhaseHost, "member", name)
		}
		return nil
	})
}

// Iterate calls fn for every value the host iteration protocol yields for
// self, stopping early when fn returns false.
func (m *Marshaler) Iterate(self any, fn func(v any) bool) error {
	s := newScratch()
	defer m.release(s)
	sp, err := m.scratchVariant(s, self)
	if err != nil {
		return err
	}
	iter, err := m.scratchNil(s)
	if err != nil {
		return err
	}

	more, valid := m.table.VariantIterInit(sp, iter)
	for valid && more {
		v, err := m.iterGet(sp, iter)
		if err != nil {
			return err
		}
		if !fn(v) {
			return nil
		}
		more, valid = m.table.VariantIterNext(sp, iter)
	}
	if !valid {
		return errors.Unsupported(errors.PhaseHost, "iterating "+m.table.VariantGetType(sp).String())
	}
	return nil
}

func (m *Marshaler) iterGet(self, iter abi.Ptr) (any, error) {
	s := newScratch()
	defer m.release(s)
	ret, err := m.scratchNil(s)
	if err != nil {
		return nil, err
	}
	if !m.table.VariantIterGet(self, iter, ret) {
		return nil, errors.Lifecycle("iterator invalidated")
	}
	return m.DecodeAny(ret)
}

// Hash returns the host hash of v.
func (m *Marshaler) Hash(v any) (int64, error) {
	return m.hashWith(v, func(p abi.Ptr) int64 { return m.table.VariantHash(p) })
}

// RecursiveHash hashes v descending at most depth levels into containers.
func (m *Marshaler) RecursiveHash(v any, depth int64) (int64, error) {
	return m.hashWith(v, func(p abi.Ptr) int64 { return m.table.VariantRecursiveHash(p, depth) })
}

func (m *Marshaler) hashWith(v any, fn func(abi.Ptr) int64) (int64, error) {
	s := newScratch()
	defer m.release(s)
	p, err := m.scratchVariant(s, v)
	if err != nil {
		return 0, err
	}
	return fn(p), nil
}

// HashCompare reports whether a and b are equal under hashing rules.
func (m *Marshaler) HashCompare(a, b any) (bool, error) {
	s := newScratch()
	defer m.release(s)
	ap, err := m.scratchVariant(s, a)
	if err != nil {
		return false, err
	}
	bp, err := m.scratchVariant(s, b)
	if err != nil {
		return false, err
	}
	return m.table.VariantHashCompare(ap, bp), nil
}

// Booleanize returns the truthiness of v.
func (m *Marshaler) Booleanize(v any) (bool, error) {
	s := newScratch()
	defer m.release(s)
	p, err := m.scratchVariant(s, v)
	if err != nil {
		return false, err
	}
	return m.table.VariantBooleanize(p), nil
}

// Stringify returns the host text form of v.
func (m *Marshaler) Stringify(v any) (string, error) {
	s := newScratch()
	defer m.release(s)
	p, err := m.scratchVariant(s, v)
	if err != nil {
		return "", err
	}
	ret, err := m.scratchAlloc(s, abi.TypeSize(abi.VariantTypeString))
	if err != nil {
		return "", err
	}
	m.table.VariantStringify(p, ret)
	s.constructed(ret, abi.VariantTypeString, false)
	return m.String(ret, UTF8)
}

// StringifySlot returns the host text form of the Variant in slot.
func (m *Marshaler) StringifySlot(slot abi.Ptr) (string, error) {
	s := newScratch()
	defer m.release(s)
	ret, err := m.scratchAlloc(s, abi.TypeSize(abi.VariantTypeString))
	if err != nil {
		return "", err
	}
	m.table.VariantStringify(slot, ret)
	s.constructed(ret, abi.VariantTypeString, false)
	return m.String(ret, UTF8)
}

// Evaluate applies op to a and b. Unary operators ignore b.
func (m *Marshaler) Evaluate(op abi.VariantOperator, a, b any) (any, error) {
	return m.op(a, func(s *scratch, ap, ret abi.Ptr) error {
		bp, err := m.scratchVariant(s, b)
		if err != nil {
			return err
		}
		if !m.table.VariantEvaluate(op, ap, bp, ret) {
			return errors.New(errors.PhaseHost, errors.KindUnsupported).
				Value(op).
				Detail("operator %d not valid for %s and %s",
					op, m.table.VariantGetType(ap), m.table.VariantGetType(bp)).
				Build()
		}
		return nil
	})
}

// Call invokes method on self through the host's dynamic dispatch. A
// failed call returns an error whose Value is the abi.CallError.
func (m *Marshaler) Call(self any, method string, args ...any) (any, error) {
	return m.op(self, func(s *scratch, sp, ret abi.Ptr) error {
		mp, err := m.scratchTyped(s, abi.VariantTypeStringName, method)
		if err != nil {
			return err
		}
		argv := make([]abi.Ptr, len(args))
		for i, a := range args {
			if argv[i], err = m.scratchVariant(s, a); err != nil {
				return err
			}
		}
		var ce abi.CallError
		m.table.VariantCall(sp, mp, argv, ret, &ce)
		if !ce.OK() {
			return callErr(method, ce)
		}
		return nil
	})
}

func callErr(method string, ce abi.CallError) error {
	return errors.New(errors.PhaseHost, errors.KindCallFailed).
		Member(method).
		Value(ce).
		Detail("%s", ce).
		Build()
}

// Utility calls a global utility function. argTypes gives the typed kind
// of every argument and ret the kind of the result.
func (m *Marshaler) Utility(name string, hash int64, ret abi.VariantType, argTypes []abi.VariantType, args ...any) (any, error) {
	if len(args) != len(argTypes) {
		return nil, errors.InvalidInput(errors.PhaseHost, "utility "+name+" argument count")
	}
	fn, err := m.utility(name, hash)
	if err != nil {
		return nil, err
	}

	s := newScratch()
	defer m.release(s)
	argv := make([]abi.Ptr, len(args))
	for i, a := range args {
		if argv[i], err = m.scratchTyped(s, argTypes[i], a); err != nil {
			return nil, err
		}
	}
	rp, err := m.scratchDefault(s, ret)
	if err != nil {
		return nil, err
	}
	fn(rp, argv)
	return m.ReadTyped(ret, rp)
}

func (m *Marshaler) utility(name string, hash int64) (abi.PtrUtilityFunction, error) {
	m.mu.RLock()
	fn, ok := m.utilities[name]
	m.mu.RUnlock()
	if ok {
		return fn, nil
	}
	sn, err := m.NewTyped(abi.VariantTypeStringName, name)
	if err != nil {
		return nil, err
	}
	fn = m.table.VariantGetPtrUtilityFunction(sn, hash)
	m.FreeTyped(abi.VariantTypeStringName, sn)
	if fn == nil {
		return nil, errors.NotFound(errors.PhaseHost, "utility function", name)
	}
	m.mu.Lock()
	m.utilities[name] = fn
	m.mu.Unlock()
	return fn, nil
}

// IterInit starts host iteration over the Variant in self. iter must be an
// initialized Variant slot; the host stores its cursor there.
func (m *Marshaler) IterInit(self, iter abi.Ptr) (more, valid bool) {
	return m.table.VariantIterInit(self, iter)
}

// IterNext advances the cursor in iter.
func (m *Marshaler) IterNext(self, iter abi.Ptr) (more, valid bool) {
	return m.table.VariantIterNext(self, iter)
}

// IterGet decodes the value at the cursor in iter.
func (m *Marshaler) IterGet(self, iter abi.Ptr) (any, error) {
	return m.iterGet(self, iter)
}
