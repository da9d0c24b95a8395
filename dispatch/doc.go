// Package dispatch implements every callback the host invokes on
// registered classes and methods.
//
// A Dispatcher resolves the userdata and instance pointers the host echoes
// back through the class registry and the binding manager, converts
// arguments with the variant marshaler and calls into Go. Faults never
// cross the boundary: argument problems become abi.CallError values on the
// variant path, and everything else, panics included, is logged and
// reported through the hook's in-band status.
package dispatch
