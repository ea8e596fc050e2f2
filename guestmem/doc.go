// Package guestmem provides guest address space implementations for thunk
// dispatch.
//
// Two providers are included. Flat backs the guest with an in-process byte
// slice and a bump allocator; it is the reference provider used throughout
// the tests and works for embedding scenarios where the host owns the guest
// image directly. WazeroMemory and WazeroAllocator adapt a wazero module so
// a wasm guest's linear memory and exported allocator serve the same
// contracts.
//
// All providers speak the interfaces declared in the root package:
// thunkgen.GuestMemory for byte and scalar access, thunkgen.MemorySizer for
// the current size, and thunkgen.Allocator for trampoline and packed-record
// storage. Addresses are uint64 throughout so one contract covers 32-bit
// and 64-bit guests; each provider rejects addresses beyond its own range.
package guestmem
