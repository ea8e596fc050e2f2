package thunkgen

// GuestMemory represents the guest address space as seen from the host.
// Addresses are uint64 so the same interface serves 32-bit and 64-bit
// guests; implementations reject addresses beyond their pointer width.
type GuestMemory interface {
	Read(addr uint64, length uint32) ([]byte, error)
	Write(addr uint64, data []byte) error
	ReadU8(addr uint64) (uint8, error)
	ReadU16(addr uint64) (uint16, error)
	ReadU32(addr uint64) (uint32, error)
	ReadU64(addr uint64) (uint64, error)
	WriteU8(addr uint64, value uint8) error
	WriteU16(addr uint64, value uint16) error
	WriteU32(addr uint64, value uint32) error
	WriteU64(addr uint64, value uint64) error
}

// MemorySizer provides the current size of the guest address space in bytes.
type MemorySizer interface {
	Size() uint64
}

// Allocator allocates memory in the guest address space. Trampoline and
// packed-argument storage for callback dispatch is obtained through this.
type Allocator interface {
	Alloc(size, align uint32) (uint64, error)
	Free(addr uint64, size, align uint32)
}
