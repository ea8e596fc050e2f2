package guestmem

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/wippyai/thunkgen"
	"github.com/wippyai/thunkgen/abi"
)

// flatAllocBase reserves the first page so a zero guest pointer never
// aliases a live allocation.
const flatAllocBase = 0x1000

// Flat is a guest address space backed by an in-process byte slice. Guest
// addresses are plain offsets into the slice. Allocation bumps a cursor and
// never reclaims, which is enough for trampoline and packed-record storage
// over a process lifetime.
type Flat struct {
	mu   sync.RWMutex
	data []byte
	next uint64
}

// NewFlat creates a flat guest space of the given size in bytes. Sizes at
// or below the reserved first page leave no allocatable room, though reads
// and writes still work.
func NewFlat(size uint64) *Flat {
	return &Flat{
		data: make([]byte, size),
		next: flatAllocBase,
	}
}

// Read returns a copy of length bytes at addr. Unlike a wasm memory view,
// the result stays valid across later writes.
func (f *Flat) Read(addr uint64, length uint32) ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	size := uint64(len(f.data))
	if addr > size || uint64(length) > size-addr {
		return nil, fmt.Errorf("read out of bounds: addr=%d, length=%d", addr, length)
	}
	out := make([]byte, length)
	copy(out, f.data[addr:addr+uint64(length)])
	return out, nil
}

func (f *Flat) Write(addr uint64, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	size := uint64(len(f.data))
	if addr > size || uint64(len(data)) > size-addr {
		return fmt.Errorf("write out of bounds: addr=%d, length=%d", addr, len(data))
	}
	copy(f.data[addr:], data)
	return nil
}

func (f *Flat) ReadU8(addr uint64) (uint8, error) {
	data, err := f.Read(addr, 1)
	if err != nil {
		return 0, err
	}
	return data[0], nil
}

func (f *Flat) ReadU16(addr uint64) (uint16, error) {
	data, err := f.Read(addr, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(data), nil
}

func (f *Flat) ReadU32(addr uint64) (uint32, error) {
	data, err := f.Read(addr, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(data), nil
}

func (f *Flat) ReadU64(addr uint64) (uint64, error) {
	data, err := f.Read(addr, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(data), nil
}

func (f *Flat) WriteU8(addr uint64, value uint8) error {
	return f.Write(addr, []byte{value})
}

func (f *Flat) WriteU16(addr uint64, value uint16) error {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], value)
	return f.Write(addr, buf[:])
}

func (f *Flat) WriteU32(addr uint64, value uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], value)
	return f.Write(addr, buf[:])
}

func (f *Flat) WriteU64(addr uint64, value uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], value)
	return f.Write(addr, buf[:])
}

// Size returns the total size of the guest space in bytes.
func (f *Flat) Size() uint64 {
	return uint64(len(f.data))
}

// Alloc reserves size bytes at the given alignment and returns the guest
// address. Zero size still reserves one byte so distinct allocations get
// distinct addresses.
func (f *Flat) Alloc(size, align uint32) (uint64, error) {
	if size == 0 {
		size = 1
	}
	if align == 0 {
		align = 1
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	addr := abi.AlignTo64(f.next, align)
	if addr+uint64(size) > uint64(len(f.data)) {
		return 0, fmt.Errorf("out of guest memory: need %d bytes aligned to %d", size, align)
	}
	f.next = addr + uint64(size)
	return addr, nil
}

// Free is accepted for interface symmetry; flat memory reclaims nothing.
func (f *Flat) Free(addr uint64, size, align uint32) {}

// Compile-time check that Flat implements the guest memory contracts.
var _ thunkgen.GuestMemory = (*Flat)(nil)
var _ thunkgen.MemorySizer = (*Flat)(nil)
var _ thunkgen.Allocator = (*Flat)(nil)
