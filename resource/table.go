package resource

import (
	"errors"
	"sync"
)

var (
	ErrClosed        = errors.New("resource table closed")
	ErrInvalidHandle = errors.New("invalid resource handle")
	ErrStaleHandle   = errors.New("stale resource handle")
	ErrTableFull     = errors.New("resource table full")
)

// Table is a generational slot arena. Released slots are recycled with a
// bumped generation so a handle kept past Remove never aliases a new value;
// a slot whose generation would wrap is retired.
// Table is safe for concurrent use.
type Table[T any] struct {
	name      string
	slots     []slot[T]
	freeList  []uint32
	observers []Observer
	live      int
	retired   int
	mu        sync.RWMutex
	obsMu     sync.RWMutex
	closed    bool
}

type slot[T any] struct {
	value T
	gen   uint8
	valid bool
}

// NewTable creates an empty table. name labels lifecycle events.
func NewTable[T any](name string) *Table[T] {
	return &Table[T]{
		name:     name,
		slots:    make([]slot[T], 0, 64),
		freeList: make([]uint32, 0, 16),
	}
}

// Name returns the table label.
func (t *Table[T]) Name() string { return t.name }

// Insert stores value and returns its handle.
func (t *Table[T]) Insert(value T) (Handle, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return 0, ErrClosed
	}

	var h Handle
	if n := len(t.freeList); n > 0 {
		idx := t.freeList[n-1]
		t.freeList = t.freeList[:n-1]
		s := &t.slots[idx]
		s.value = value
		s.valid = true
		h = makeHandle(idx, s.gen)
	} else {
		if len(t.slots) >= MaxSlots {
			t.mu.Unlock()
			return 0, ErrTableFull
		}
		t.slots = append(t.slots, slot[T]{value: value, gen: 1, valid: true})
		h = makeHandle(uint32(len(t.slots)-1), 1)
	}
	t.live++
	t.mu.Unlock()

	t.notify(Event{Type: EventCreated, Handle: h, Value: value})
	return h, nil
}

// Get retrieves a value by handle.
func (t *Table[T]) Get(h Handle) (T, bool) {
	v, err := t.Lookup(h)
	return v, err == nil
}

// Lookup retrieves a value by handle, distinguishing a handle that never
// existed from one whose slot was released.
func (t *Table[T]) Lookup(h Handle) (T, error) {
	var zero T

	t.mu.RLock()
	s, err := t.slotLocked(h)
	if err != nil {
		t.mu.RUnlock()
		if err == ErrStaleHandle {
			t.notify(Event{Type: EventStale, Handle: h})
		}
		return zero, err
	}
	v := s.value
	t.mu.RUnlock()
	return v, nil
}

// Remove releases the slot and returns its value. The handle and every
// copy of it become stale.
func (t *Table[T]) Remove(h Handle) (T, bool) {
	var zero T

	t.mu.Lock()
	s, err := t.slotLocked(h)
	if err != nil {
		t.mu.Unlock()
		return zero, false
	}
	v := s.value
	s.value = zero
	s.valid = false
	s.gen++
	if s.gen == 0 {
		t.retired++
	} else {
		t.freeList = append(t.freeList, uint32(h.Index()))
	}
	t.live--
	t.mu.Unlock()

	t.notify(Event{Type: EventReleased, Handle: h, Value: v})
	return v, true
}

// Retired returns the number of slots taken out of circulation because
// their generation counter ran out.
func (t *Table[T]) Retired() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.retired
}

// Len returns the number of live handles.
func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.live
}

// Each calls fn for every live handle until fn returns false. fn must not
// mutate the table.
func (t *Table[T]) Each(fn func(Handle, T) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for i := range t.slots {
		s := &t.slots[i]
		if s.valid {
			if !fn(makeHandle(uint32(i), s.gen), s.value) {
				return
			}
		}
	}
}

// Clear removes every live handle, calling Release on values that
// implement Releaser.
func (t *Table[T]) Clear() {
	var handles []Handle
	t.Each(func(h Handle, _ T) bool {
		handles = append(handles, h)
		return true
	})
	for _, h := range handles {
		if v, ok := t.Remove(h); ok {
			if r, ok := any(v).(Releaser); ok {
				r.Release()
			}
		}
	}
}

// Close clears the table and stops accepting inserts.
func (t *Table[T]) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	t.Clear()
	return nil
}

// Subscribe adds an observer for lifecycle events.
func (t *Table[T]) Subscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = append(t.observers, o)
}

// Unsubscribe removes an observer.
func (t *Table[T]) Unsubscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	for i, obs := range t.observers {
		if obs == o {
			t.observers = append(t.observers[:i], t.observers[i+1:]...)
			return
		}
	}
}

func (t *Table[T]) slotLocked(h Handle) (*slot[T], error) {
	idx := h.Index()
	if idx < 0 || idx >= len(t.slots) {
		return nil, ErrInvalidHandle
	}
	s := &t.slots[idx]
	if !s.valid || s.gen != h.Generation() {
		return nil, ErrStaleHandle
	}
	return s, nil
}

func (t *Table[T]) notify(e Event) {
	e.Table = t.name
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, o := range t.observers {
		o.OnResourceEvent(e)
	}
}
