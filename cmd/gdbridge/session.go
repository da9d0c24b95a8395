package main

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/wippyai/gdext-bridge/abi"
	"github.com/wippyai/gdext-bridge/internal/demo"
	"github.com/wippyai/gdext-bridge/internal/hostsim"
	"github.com/wippyai/gdext-bridge/loader"
	"github.com/wippyai/gdext-bridge/variant"
)

// session is the demo extension loaded into an in-process host.
type session struct {
	host    *hostsim.Host
	m       *variant.Marshaler
	objects map[string]abi.Ptr
}

func newSession(ctx context.Context, logLevel string) (*session, error) {
	h, err := hostsim.New(ctx, hostsim.DefaultOptions())
	if err != nil {
		return nil, fmt.Errorf("create host: %w", err)
	}
	cfg := demo.Config()
	cfg.LogLevel = logLevel
	if err := h.Load(loader.Entry(cfg)); err != nil {
		_ = h.Close(ctx)
		return nil, fmt.Errorf("load extension: %w", err)
	}
	return &session{
		host:    h,
		m:       loader.Current().Marshaler(),
		objects: make(map[string]abi.Ptr),
	}, nil
}

func (s *session) Close(ctx context.Context) error {
	for _, obj := range s.objects {
		s.host.Free(obj)
	}
	s.objects = nil
	s.host.Unload()
	return s.host.Close(ctx)
}

// classes returns the extension classes sorted by name, or every class when
// all is set.
func (s *session) classes(all bool) []hostsim.ClassInfo {
	var out []hostsim.ClassInfo
	for _, c := range s.host.Classes() {
		if all || !c.Native {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *session) method(class, name string) (hostsim.MethodInfo, error) {
	c, ok := s.host.Class(class)
	if !ok {
		return hostsim.MethodInfo{}, fmt.Errorf("unknown class %q", class)
	}
	for _, m := range c.Methods {
		if m.Name == name {
			return m, nil
		}
	}
	return hostsim.MethodInfo{}, fmt.Errorf("class %s has no method %q", class, name)
}

// instance returns the object calls on class go to, creating it on first use.
func (s *session) instance(class string) (abi.Ptr, error) {
	if obj, ok := s.objects[class]; ok {
		return obj, nil
	}
	obj, err := s.host.Instantiate(class)
	if err != nil {
		return abi.Null, err
	}
	s.objects[class] = obj
	return obj, nil
}

// call invokes class.method with arguments parsed from raw and renders the
// result.
func (s *session) call(class, method string, raw []string) (string, error) {
	info, err := s.method(class, method)
	if err != nil {
		return "", err
	}
	obj, err := s.instance(class)
	if err != nil {
		return "", err
	}

	slots := make([]abi.Ptr, 0, len(raw))
	defer func() {
		for _, p := range slots {
			s.m.Destroy(p)
		}
	}()
	for i, r := range raw {
		t := abi.VariantTypeNil
		if i < len(info.Args) {
			t = info.Args[i]
		}
		v, err := parseArg(r, t)
		if err != nil {
			return "", fmt.Errorf("argument %d: %w", i, err)
		}
		p, err := s.m.Encode(v)
		if err != nil {
			return "", fmt.Errorf("argument %d: %w", i, err)
		}
		slots = append(slots, p)
	}

	ret, ce, err := s.host.Call(obj, method, slots...)
	if err != nil {
		return "", err
	}
	defer s.host.FreeVariant(ret)
	if !ce.OK() {
		return "", fmt.Errorf("call failed: %s", ce)
	}
	if !info.HasReturn {
		return "<void>", nil
	}
	return s.host.Stringify(ret), nil
}

// parseArg converts command-line text to a value of variant type t.
func parseArg(raw string, t abi.VariantType) (any, error) {
	switch t {
	case abi.VariantTypeBool:
		return strconv.ParseBool(raw)
	case abi.VariantTypeInt:
		return strconv.ParseInt(raw, 10, 64)
	case abi.VariantTypeFloat:
		return strconv.ParseFloat(raw, 64)
	case abi.VariantTypeString:
		return raw, nil
	case abi.VariantTypeStringName:
		return variant.StringName(raw), nil
	case abi.VariantTypeVector2:
		parts := strings.Split(raw, ",")
		if len(parts) != 2 {
			return nil, fmt.Errorf("vector2 wants x,y: %q", raw)
		}
		var xy [2]float32
		for i, p := range parts {
			f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
			if err != nil {
				return nil, err
			}
			xy[i] = float32(f)
		}
		return variant.Vector2{X: xy[0], Y: xy[1]}, nil
	case abi.VariantTypeNil:
		if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return i, nil
		}
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f, nil
		}
		return raw, nil
	}
	return nil, fmt.Errorf("cannot enter %s values", t)
}

func methodSignature(m hostsim.MethodInfo) string {
	params := make([]string, len(m.Args))
	for i, t := range m.Args {
		name := fmt.Sprintf("arg%d", i)
		if i < len(m.ArgNames) {
			name = m.ArgNames[i]
		}
		params[i] = name + ": " + t.String()
	}
	if m.Flags.Has(abi.MethodFlagVararg) {
		params = append(params, "...")
	}
	sig := m.Name + "(" + strings.Join(params, ", ") + ")"
	if m.HasReturn {
		sig += " -> " + m.Return.String()
	}
	return sig
}
