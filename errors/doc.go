// Package errors provides structured error types for the bridge.
//
// Errors are categorized by Phase (which component raised it) and Kind (error
// category). The taxonomy follows the bridge's failure classes:
//
//   - protocol errors (reinitialization, registering before init, unregistering
//     a class with live subclasses) abort the registration step
//   - call errors are reported to the host through abi.CallError, never as Go errors
//   - marshal errors surface as a failed conversion the caller must check
//   - lifecycle errors flag use of a binding after the host released it
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseRegister, errors.KindDuplicate).
//		Class("Foo").
//		Member("bar").
//		Detail("method already bound").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.MissingParent("Foo", "Node3D")
//	err := errors.TypeMismatch(errors.PhaseMarshal, abi.VariantTypeString, abi.VariantTypeInt)
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
