package abi

import (
	"encoding/binary"
	"hash/fnv"
)

// MethodHash returns the compatibility hash of a method signature: its
// return type (Nil when it returns nothing) followed by its argument types.
// ClassdbGetMethodBind only hands out a bind whose hash matches.
func MethodHash(ret VariantType, args ...VariantType) int64 {
	f := fnv.New64a()
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(ret))
	_, _ = f.Write(b[:])
	for _, a := range args {
		binary.LittleEndian.PutUint32(b[:], uint32(a))
		_, _ = f.Write(b[:])
	}
	return int64(f.Sum64() &^ (1 << 63))
}
