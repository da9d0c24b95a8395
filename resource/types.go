package resource

import "fmt"

// Handle is an opaque generational reference to a slot in a Table.
// The low 24 bits hold the slot index plus one, the high 8 bits the slot
// generation. Handle 0 is reserved and always invalid.
type Handle uint32

const (
	indexBits = 24
	indexMask = 1<<indexBits - 1

	// MaxSlots is the largest number of live slots one table can address.
	MaxSlots = indexMask
)

func makeHandle(index uint32, gen uint8) Handle {
	return Handle(uint32(gen)<<indexBits | (index + 1))
}

// Index returns the slot index, or -1 for the zero handle.
func (h Handle) Index() int {
	return int(uint32(h)&indexMask) - 1
}

// Generation returns the generation the handle was issued under.
func (h Handle) Generation() uint8 {
	return uint8(uint32(h) >> indexBits)
}

// IsZero reports whether h is the reserved invalid handle.
func (h Handle) IsZero() bool { return h == 0 }

func (h Handle) String() string {
	if h == 0 {
		return "handle(nil)"
	}
	return fmt.Sprintf("handle(%d@%d)", h.Index(), h.Generation())
}

// Event types for handle lifecycle notifications.
type EventType uint8

const (
	EventCreated EventType = iota
	EventReleased
	EventStale
)

func (t EventType) String() string {
	switch t {
	case EventCreated:
		return "created"
	case EventReleased:
		return "released"
	case EventStale:
		return "stale"
	}
	return fmt.Sprintf("event(%d)", uint8(t))
}

// Event represents a handle lifecycle event.
type Event struct {
	Value  any
	Table  string
	Handle Handle
	Type   EventType
}

// Observer receives notifications about handle lifecycle events.
type Observer interface {
	OnResourceEvent(Event)
}

// Releaser is optionally implemented by values that need cleanup when the
// table is cleared or closed.
type Releaser interface {
	Release()
}
