package variant

import (
	"sync"

	"github.com/wippyai/gdext-bridge/abi"
)

// scratchEntry is one temporary allocation. Constructed entries are
// destroyed before they are freed.
type scratchEntry struct {
	ptr         abi.Ptr
	kind        abi.VariantType
	variant     bool
	constructed bool
}

// scratch collects the temporaries of one marshaling operation so they can
// be released together.
type scratch struct {
	entries []scratchEntry
}

const maxPooledScratch = 64

var scratchPool = sync.Pool{
	New: func() any {
		return &scratch{entries: make([]scratchEntry, 0, 8)}
	},
}

func newScratch() *scratch {
	return scratchPool.Get().(*scratch)
}

func (s *scratch) add(p abi.Ptr) {
	s.entries = append(s.entries, scratchEntry{ptr: p})
}

// constructed marks p as holding a live value of kind t.
func (s *scratch) constructed(p abi.Ptr, t abi.VariantType, variant bool) {
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].ptr == p {
			s.entries[i].kind = t
			s.entries[i].variant = variant
			s.entries[i].constructed = true
			return
		}
	}
}

// release destroys and frees everything in reverse order and returns s to
// the pool.
func (m *Marshaler) release(s *scratch) {
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if e.constructed {
			if e.variant {
				m.table.VariantDestroy(e.ptr)
			} else {
				m.DestroyTyped(e.kind, e.ptr)
			}
		}
		m.table.MemFree(e.ptr)
	}
	if cap(s.entries) > maxPooledScratch {
		return
	}
	s.entries = s.entries[:0]
	scratchPool.Put(s)
}

// scratchAlloc allocates uninitialized host memory owned by s.
func (m *Marshaler) scratchAlloc(s *scratch, n uint32) (abi.Ptr, error) {
	p, err := m.alloc(n)
	if err != nil {
		return abi.Null, err
	}
	s.add(p)
	return p, nil
}

// scratchVariant encodes v into a temporary slot owned by s.
func (m *Marshaler) scratchVariant(s *scratch, v any) (abi.Ptr, error) {
	p, err := m.scratchAlloc(s, abi.VariantSize)
	if err != nil {
		return abi.Null, err
	}
	if err := m.EncodeInto(p, v); err != nil {
		return abi.Null, err
	}
	s.constructed(p, abi.VariantTypeNil, true)
	return p, nil
}

// scratchNil returns a temporary nil slot owned by s.
func (m *Marshaler) scratchNil(s *scratch) (abi.Ptr, error) {
	p, err := m.scratchAlloc(s, abi.VariantSize)
	if err != nil {
		return abi.Null, err
	}
	m.table.VariantNewNil(p)
	s.constructed(p, abi.VariantTypeNil, true)
	return p, nil
}

// scratchTyped writes v as typed storage of t owned by s.
func (m *Marshaler) scratchTyped(s *scratch, t abi.VariantType, v any) (abi.Ptr, error) {
	p, err := m.scratchAlloc(s, abi.TypeSize(t))
	if err != nil {
		return abi.Null, err
	}
	if err := m.WriteTyped(t, p, v); err != nil {
		return abi.Null, err
	}
	s.constructed(p, t, t == abi.VariantTypeNil)
	return p, nil
}

// scratchDefault constructs the default value of t owned by s.
func (m *Marshaler) scratchDefault(s *scratch, t abi.VariantType) (abi.Ptr, error) {
	if t == abi.VariantTypeNil {
		return m.scratchNil(s)
	}
	p, err := m.scratchAlloc(s, abi.TypeSize(t))
	if err != nil {
		return abi.Null, err
	}
	if err := m.construct(t, p); err != nil {
		return abi.Null, err
	}
	s.constructed(p, t, false)
	return p, nil
}
