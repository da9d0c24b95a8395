// Package variant converts between host Variants, host typed storage and
// native Go values.
//
// A Marshaler is built once per interface table. It caches the table's
// typed constructors, destructors and the builtin methods it needs, and
// offers both calling conventions of the host:
//
//   - the variant path: Encode, EncodeInto and Decode move values in and out
//     of 24-byte Variant slots;
//   - the ptrcall path: ReadTyped, WriteTyped and AssignTyped move values in
//     and out of the fixed-layout typed storage of a single kind.
//
// Both paths produce the same Go values for the same host value. Each
// host kind has one native counterpart (see KindOf and GoType); Encode never
// picks a lossy constructor, and Decode converts only where the host's
// strict conversion matrix allows it.
//
// Ownership follows the host: the caller that allocates a slot destroys it.
// Encode returns a slot owned by the caller (release it with Destroy);
// EncodeInto and WriteTyped construct into uninitialized storage;
// AssignTyped replaces initialized storage.
//
// Strings cross the boundary in any of the five host encodings through
// golang.org/x/text, see NewString and String.
package variant
