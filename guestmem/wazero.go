package guestmem

import (
	"context"
	"fmt"
	"math"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/thunkgen"
)

// WazeroMemory adapts a wazero module memory to the guest memory contract.
// Wasm linear memories are 32-bit indexed, so any address above the uint32
// range is out of bounds by construction.
type WazeroMemory struct {
	mem api.Memory
}

// NewWazeroMemory wraps a wazero api.Memory, typically obtained from
// Module.Memory() after instantiation.
func NewWazeroMemory(mem api.Memory) *WazeroMemory {
	return &WazeroMemory{mem: mem}
}

// Read returns a view over module memory at addr. The slice stays valid
// until the memory grows; callers that hold data across guest calls should
// copy it.
func (m *WazeroMemory) Read(addr uint64, length uint32) ([]byte, error) {
	if addr <= math.MaxUint32 {
		if data, ok := m.mem.Read(uint32(addr), length); ok {
			return data, nil
		}
	}
	return nil, fmt.Errorf("read out of bounds: addr=%d, length=%d", addr, length)
}

func (m *WazeroMemory) Write(addr uint64, data []byte) error {
	if addr <= math.MaxUint32 {
		if ok := m.mem.Write(uint32(addr), data); ok {
			return nil
		}
	}
	return fmt.Errorf("write out of bounds: addr=%d, length=%d", addr, len(data))
}

func (m *WazeroMemory) ReadU8(addr uint64) (uint8, error) {
	if addr <= math.MaxUint32 {
		if v, ok := m.mem.ReadByte(uint32(addr)); ok {
			return v, nil
		}
	}
	return 0, fmt.Errorf("read out of bounds: addr=%d", addr)
}

func (m *WazeroMemory) ReadU16(addr uint64) (uint16, error) {
	if addr <= math.MaxUint32 {
		if v, ok := m.mem.ReadUint16Le(uint32(addr)); ok {
			return v, nil
		}
	}
	return 0, fmt.Errorf("read out of bounds: addr=%d", addr)
}

func (m *WazeroMemory) ReadU32(addr uint64) (uint32, error) {
	if addr <= math.MaxUint32 {
		if v, ok := m.mem.ReadUint32Le(uint32(addr)); ok {
			return v, nil
		}
	}
	return 0, fmt.Errorf("read out of bounds: addr=%d", addr)
}

func (m *WazeroMemory) ReadU64(addr uint64) (uint64, error) {
	if addr <= math.MaxUint32 {
		if v, ok := m.mem.ReadUint64Le(uint32(addr)); ok {
			return v, nil
		}
	}
	return 0, fmt.Errorf("read out of bounds: addr=%d", addr)
}

func (m *WazeroMemory) WriteU8(addr uint64, value uint8) error {
	if addr <= math.MaxUint32 {
		if ok := m.mem.WriteByte(uint32(addr), value); ok {
			return nil
		}
	}
	return fmt.Errorf("write out of bounds: addr=%d", addr)
}

func (m *WazeroMemory) WriteU16(addr uint64, value uint16) error {
	if addr <= math.MaxUint32 {
		if ok := m.mem.WriteUint16Le(uint32(addr), value); ok {
			return nil
		}
	}
	return fmt.Errorf("write out of bounds: addr=%d", addr)
}

func (m *WazeroMemory) WriteU32(addr uint64, value uint32) error {
	if addr <= math.MaxUint32 {
		if ok := m.mem.WriteUint32Le(uint32(addr), value); ok {
			return nil
		}
	}
	return fmt.Errorf("write out of bounds: addr=%d", addr)
}

func (m *WazeroMemory) WriteU64(addr uint64, value uint64) error {
	if addr <= math.MaxUint32 {
		if ok := m.mem.WriteUint64Le(uint32(addr), value); ok {
			return nil
		}
	}
	return fmt.Errorf("write out of bounds: addr=%d", addr)
}

func (m *WazeroMemory) Size() uint64 {
	if m.mem == nil {
		return 0
	}
	return uint64(m.mem.Size())
}

// WazeroAllocator allocates guest memory through an exported realloc-style
// function with the cabi_realloc shape: (ptr, oldSize, align, newSize)
// returning the new pointer.
type WazeroAllocator struct {
	ctx context.Context
	fn  api.Function
}

// NewWazeroAllocator wraps an exported guest allocator function. The
// context is captured for all subsequent calls; pass the context that owns
// the module instance.
func NewWazeroAllocator(ctx context.Context, fn api.Function) *WazeroAllocator {
	if ctx == nil {
		ctx = context.Background()
	}
	return &WazeroAllocator{ctx: ctx, fn: fn}
}

func (a *WazeroAllocator) Alloc(size, align uint32) (uint64, error) {
	if a.fn == nil {
		return 0, fmt.Errorf("no allocator available")
	}
	results, err := a.fn.Call(a.ctx, 0, 0, uint64(align), uint64(size))
	if err != nil {
		return 0, fmt.Errorf("guest allocation failed: %w", err)
	}
	if len(results) == 0 {
		return 0, fmt.Errorf("guest allocator returned no result")
	}
	return results[0], nil
}

// Free releases an allocation by shrinking it to zero bytes. Failures are
// logged rather than surfaced since callers free on teardown paths.
func (a *WazeroAllocator) Free(addr uint64, size, align uint32) {
	if a.fn == nil || addr == 0 {
		return
	}
	if _, err := a.fn.Call(a.ctx, addr, uint64(size), uint64(align), 0); err != nil {
		Logger().Warn("guest free failed",
			zap.Uint64("addr", addr),
			zap.Uint32("size", size),
			zap.Error(err))
	}
}

// Compile-time check that the wazero adapters satisfy the guest contracts.
var _ thunkgen.GuestMemory = (*WazeroMemory)(nil)
var _ thunkgen.MemorySizer = (*WazeroMemory)(nil)
var _ thunkgen.Allocator = (*WazeroAllocator)(nil)
