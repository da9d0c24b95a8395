// Package binding pairs host objects with their Go side.
//
// Every host object the bridge touches gets one binding per token: a record
// named by an opaque handle that the host stores and echoes back. A binding
// is created either by Attach, when the bridge constructs an extension
// instance, or lazily by the host's create callback the first time Wrap asks
// for an object the bridge has not seen. Both paths converge on the same
// record.
//
// # States
//
//	Unbound --Attach/Wrap--> Bound --free callback--> Released
//
// Reference callbacks move a Bound record between strongly and weakly held
// wrappers; they never create or free the record. Any use of a Released
// object reports errors.ErrLifecycle until the address is reused by a new
// host object.
//
// # Outbound Calls
//
// Object.Call and Object.Ptrcall invoke host methods through cached method
// binds, using the variant and ptrcall conventions respectively.
package binding
