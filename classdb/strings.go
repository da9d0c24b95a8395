package classdb

import (
	"github.com/wippyai/gdext-bridge/abi"
	"github.com/wippyai/gdext-bridge/variant"
)

type tempString struct {
	t abi.VariantType
	p abi.Ptr
}

// temps holds host strings that only live for one registration call.
type temps struct {
	m    *variant.Marshaler
	ptrs []tempString
	err  error
}

func (s *temps) add(t abi.VariantType, v string) abi.Ptr {
	if s.err != nil {
		return abi.Null
	}
	p, err := s.m.NewTyped(t, v)
	if err != nil {
		s.err = err
		return abi.Null
	}
	s.ptrs = append(s.ptrs, tempString{t: t, p: p})
	return p
}

func (s *temps) name(v string) abi.Ptr { return s.add(abi.VariantTypeStringName, v) }

func (s *temps) str(v string) abi.Ptr { return s.add(abi.VariantTypeString, v) }

// optName is name for non-empty v and Null otherwise.
func (s *temps) optName(v string) abi.Ptr {
	if v == "" {
		return abi.Null
	}
	return s.name(v)
}

func (s *temps) free() {
	for i := len(s.ptrs) - 1; i >= 0; i-- {
		s.m.FreeTyped(s.ptrs[i].t, s.ptrs[i].p)
	}
	s.ptrs = nil
}

func (s *temps) propertyInfo(p Property) abi.PropertyInfo {
	info := abi.PropertyInfo{
		Type:      p.Type,
		Name:      s.name(p.Name),
		ClassName: s.optName(p.ClassName),
		Hint:      p.Hint,
		Usage:     p.Usage,
	}
	if p.HintString != "" {
		info.HintString = s.str(p.HintString)
	}
	if info.Usage == abi.PropertyUsageNone {
		info.Usage = abi.PropertyUsageDefault
	}
	return info
}
