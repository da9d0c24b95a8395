// Package abi defines the binary interface shared between the host engine and
// the bridge: the interface table of host entry points, the callback shapes
// the bridge installs, and the value layouts both sides read directly.
//
// Everything here mirrors the GDExtension C header. Pointers are addresses in
// the host address space (Ptr); fields that hold a pointer inside typed
// storage are PointerSize bytes wide.
//
// # Layouts
//
// CallError is written by the bridge and read by the host without
// interpretation, so its layout is fixed:
//
//	offset 0  int32  error kind (CallErrorType)
//	offset 4  int32  offending argument index
//	offset 8  int32  expected type or argument count
//
// A Variant slot is VariantSize bytes. Its layout is private to the host; the
// bridge touches it only through the table.
package abi
