package hostsim

import (
	"fmt"
	"sort"
	"sync"
)

const (
	heapBase  = 64
	heapAlign = 8

	// Poison fills blocks handed out through mem_alloc, which does not
	// clear memory.
	Poison byte = 0xcd
)

type span struct {
	off  uint32
	size uint32
}

// Heap is a first-fit allocator over the host address space. Offset 0 is
// never handed out so the zero pointer stays null.
type Heap struct {
	mem    *Memory
	free   []span
	allocs map[uint32]uint32
	mu     sync.Mutex
}

func newHeap(mem *Memory) *Heap {
	return &Heap{
		mem:    mem,
		free:   []span{{off: heapBase, size: mem.Size() - heapBase}},
		allocs: make(map[uint32]uint32),
	}
}

func alignUp(n uint32) uint32 {
	if n == 0 {
		n = 1
	}
	return (n + heapAlign - 1) &^ (heapAlign - 1)
}

// Alloc returns a zeroed block of at least size bytes.
func (h *Heap) Alloc(size uint32) (uint32, error) {
	return h.alloc(size, 0)
}

// AllocRaw returns a block of at least size bytes filled with Poison.
func (h *Heap) AllocRaw(size uint32) (uint32, error) {
	return h.alloc(size, Poison)
}

func (h *Heap) alloc(size uint32, fill byte) (uint32, error) {
	size = alignUp(size)

	h.mu.Lock()
	defer h.mu.Unlock()

	for {
		if off, ok := h.takeLocked(size); ok {
			h.mem.fill(off, size, fill)
			return off, nil
		}
		end := h.mem.Size()
		if !h.mem.grow(size) {
			return 0, fmt.Errorf("host heap exhausted: cannot allocate %d bytes", size)
		}
		h.insertLocked(span{off: end, size: h.mem.Size() - end})
	}
}

func (h *Heap) takeLocked(size uint32) (uint32, bool) {
	for i := range h.free {
		s := &h.free[i]
		if s.size < size {
			continue
		}
		off := s.off
		s.off += size
		s.size -= size
		if s.size == 0 {
			h.free = append(h.free[:i], h.free[i+1:]...)
		}
		h.allocs[off] = size
		return off, true
	}
	return 0, false
}

// Realloc resizes a block, moving it when needed. Bytes past the old size
// are filled with Poison.
func (h *Heap) Realloc(ptr, size uint32) (uint32, error) {
	if ptr == 0 {
		return h.AllocRaw(size)
	}
	if size == 0 {
		h.Free(ptr)
		return 0, nil
	}

	h.mu.Lock()
	old, ok := h.allocs[ptr]
	h.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("realloc of unknown block 0x%x", ptr)
	}
	if alignUp(size) <= old {
		return ptr, nil
	}

	n, err := h.AllocRaw(size)
	if err != nil {
		return 0, err
	}
	data, err := h.mem.Read(ptr, old)
	if err != nil {
		return 0, err
	}
	if err := h.mem.Write(n, data); err != nil {
		return 0, err
	}
	h.Free(ptr)
	return n, nil
}

// Free releases a block. Freeing null is a no-op.
func (h *Heap) Free(ptr uint32) {
	if ptr == 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	size, ok := h.allocs[ptr]
	if !ok {
		return
	}
	delete(h.allocs, ptr)
	h.insertLocked(span{off: ptr, size: size})
}

// Owns reports whether ptr is the start of a live block.
func (h *Heap) Owns(ptr uint32) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.allocs[ptr]
	return ok
}

// Live returns the number of outstanding blocks.
func (h *Heap) Live() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.allocs)
}

func (h *Heap) insertLocked(s span) {
	i := sort.Search(len(h.free), func(i int) bool { return h.free[i].off >= s.off })
	h.free = append(h.free, span{})
	copy(h.free[i+1:], h.free[i:])
	h.free[i] = s

	if i+1 < len(h.free) && h.free[i].off+h.free[i].size == h.free[i+1].off {
		h.free[i].size += h.free[i+1].size
		h.free = append(h.free[:i+1], h.free[i+2:]...)
	}
	if i > 0 && h.free[i-1].off+h.free[i-1].size == h.free[i].off {
		h.free[i-1].size += h.free[i].size
		h.free = append(h.free[:i], h.free[i+1:]...)
	}
}
