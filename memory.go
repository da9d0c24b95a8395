package gdextbridge

// Memory is the host address space as seen by the bridge. Every abi.Ptr handed
// across the boundary is an offset into it.
type Memory interface {
	Read(offset uint32, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
	ReadU8(offset uint32) (uint8, error)
	ReadU16(offset uint32) (uint16, error)
	ReadU32(offset uint32) (uint32, error)
	ReadU64(offset uint32) (uint64, error)
	WriteU8(offset uint32, value uint8) error
	WriteU16(offset uint32, value uint16) error
	WriteU32(offset uint32, value uint32) error
	WriteU64(offset uint32, value uint64) error
}

// MemorySizer provides the current size of the host address space in bytes.
type MemorySizer interface {
	Size() uint32
}

// Allocator allocates memory owned by the host heap.
type Allocator interface {
	Alloc(size uint32) (uint32, error)
	Realloc(ptr, size uint32) (uint32, error)
	Free(ptr uint32)
}
