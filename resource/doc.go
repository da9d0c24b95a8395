// Package resource provides generational handle tables.
//
// The bridge hands opaque integers to the host as class userdata, method
// userdata, class-instance pointers and binding pointers. Each of those
// integers is a Handle into a Table owned by the component that issued it:
//
//	instances := resource.NewTable[*Instance]("instances")
//
//	// Insert a value, get a handle
//	h, err := instances.Insert(inst)
//
//	// Retrieve value by handle
//	inst, ok := instances.Get(h)
//
//	// Remove; h is now stale
//	inst, ok = instances.Remove(h)
//
// # Generations
//
// A Handle packs a slot index with the slot's generation. Remove bumps the
// generation before the slot is recycled, so a handle the host echoes back
// after release is detected by Lookup as ErrStaleHandle instead of aliasing
// whatever value reuses the slot. A slot whose generation counter is
// exhausted is retired instead of recycled, so no (index, generation) pair
// is ever issued twice.
//
// # Observers
//
// Register observers to track handle lifecycle events:
//
//	table.Subscribe(observer)
//
// Observers see EventCreated, EventReleased and EventStale, the last one
// whenever a lookup presents a stale handle.
//
// # Memory Management
//
// Values are not garbage collected while their handle is live. The owner
// must call Remove when the host releases the handle, or Close to release
// all remaining values at shutdown.
package resource
