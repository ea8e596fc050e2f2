package runtime

import (
	"crypto/sha256"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/thunkgen"
	"github.com/wippyai/thunkgen/errors"
)

// HostPacker identifies the host packing routine for one callback
// signature. The emitted C++ keys trampolines by the packer's code
// address; this model keys by the hash of the signature the packer was
// generated from. The zero value means the packer is not yet known,
// which is the guest-side allocation path.
type HostPacker [sha256.Size]byte

// PackerFor returns the host packer identity of a callback signature.
func PackerFor(signature string) HostPacker {
	return HostPacker(thunkgen.CallbackHash(signature))
}

func (p HostPacker) IsZero() bool {
	return p == HostPacker{}
}

// CallCallback re-enters guest execution at unpacker(target, args). The
// emulator supplies it; the table stamps it into every descriptor.
type CallCallback func(guestUnpacker, guestTarget, argsAddr uint64) error

// GuestcallInfo describes one guest function as callable from native
// code. A real trampoline finds its descriptor through a hidden register
// (r11 on x86-64, x11 on AArch64) because the native signature leaves no
// room for a context parameter; this model resolves descriptors by
// trampoline address instead.
type GuestcallInfo struct {
	HostPacker    HostPacker
	CallCallback  CallCallback
	GuestUnpacker uint64
	GuestTarget   uint64
}

// TrampolineKey identifies one trampoline instance: a guest function as
// observed through one host packing routine.
type TrampolineKey struct {
	GuestTarget uint64
	HostPacker  HostPacker
}

// Guest address space reserved per trampoline, standing in for the
// emulator's host code page.
const (
	trampolineSize  = 32
	trampolineAlign = 8
)

// TrampolineTable owns every host-to-guest trampoline in the process. A
// trampoline is allocated on the first observation of its key and
// released only at teardown.
type TrampolineTable struct {
	byKey  map[TrampolineKey]uint64
	byAddr map[uint64]*GuestcallInfo
	alloc  thunkgen.Allocator
	call   CallCallback
	closed bool
	mu     sync.RWMutex
}

// NewTrampolineTable builds a table around the two emulator hooks.
// Either hook may be nil, in which case the paths that need it report an
// error; this mirrors the weakly-linked primitives being absent when a
// library has no callbacks.
func NewTrampolineTable(alloc thunkgen.Allocator, call CallCallback) *TrampolineTable {
	return &TrampolineTable{
		byKey:  make(map[TrampolineKey]uint64),
		byAddr: make(map[uint64]*GuestcallInfo),
		alloc:  alloc,
		call:   call,
	}
}

// Make returns the trampoline for (packer, guestTarget), allocating on
// first observation. packer may be zero when the guest allocates before
// any host unpacker has seen the pointer; Finalize supplies it later.
func (t *TrampolineTable) Make(packer HostPacker, guestTarget, guestUnpacker uint64) (uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return 0, errors.New(errors.PhaseDispatch, errors.KindInvalidState).
			Detail("trampoline table closed").Build()
	}

	key := TrampolineKey{GuestTarget: guestTarget, HostPacker: packer}
	if addr, ok := t.byKey[key]; ok {
		return addr, nil
	}

	if t.alloc == nil {
		return 0, errors.New(errors.PhaseDispatch, errors.KindInvalidState).
			Detail("no trampoline allocator installed").Build()
	}
	addr, err := t.alloc.Alloc(trampolineSize, trampolineAlign)
	if err != nil {
		return 0, errors.Wrap(errors.PhaseDispatch, errors.KindInvalidState, err, "allocate trampoline")
	}

	t.byKey[key] = addr
	t.byAddr[addr] = &GuestcallInfo{
		HostPacker:    packer,
		CallCallback:  t.call,
		GuestUnpacker: guestUnpacker,
		GuestTarget:   guestTarget,
	}
	Logger().Debug("trampoline allocated",
		zap.Uint64("addr", addr),
		zap.Uint64("guest_target", guestTarget))
	return addr, nil
}

// Finalize binds the host packer to a trampoline that was allocated
// before the packer was known. Rebinding the same packer is a no-op;
// binding a different one is an error.
func (t *TrampolineTable) Finalize(addr uint64, packer HostPacker) error {
	if packer.IsZero() {
		return errors.InvalidInput(errors.PhaseDispatch, "finalize requires a host packer")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	info, ok := t.byAddr[addr]
	if !ok {
		return errors.NotFound(errors.PhaseDispatch, "trampoline", fmt.Sprintf("%#x", addr))
	}
	if info.HostPacker == packer {
		return nil
	}
	if !info.HostPacker.IsZero() {
		return errors.New(errors.PhaseDispatch, errors.KindInvalidState).
			Detail("trampoline %#x already finalized", addr).Build()
	}
	info.HostPacker = packer
	return nil
}

// ByAddr resolves a trampoline back to a copy of its descriptor.
func (t *TrampolineTable) ByAddr(addr uint64) (GuestcallInfo, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	info, ok := t.byAddr[addr]
	if !ok {
		return GuestcallInfo{}, false
	}
	return *info, true
}

// Invoke runs the host-to-guest transfer for the trampoline at addr: the
// packed record travels to the guest unpacker, which applies it to the
// guest target. The caller builds the record beforehand and reads the
// return slot afterward.
func (t *TrampolineTable) Invoke(addr, argsAddr uint64) error {
	info, ok := t.ByAddr(addr)
	if !ok {
		return errors.NotFound(errors.PhaseDispatch, "trampoline", fmt.Sprintf("%#x", addr))
	}
	if info.HostPacker.IsZero() {
		return errors.New(errors.PhaseDispatch, errors.KindInvalidState).
			Detail("trampoline %#x not finalized", addr).Build()
	}
	if info.CallCallback == nil {
		return errors.New(errors.PhaseDispatch, errors.KindInvalidState).
			Detail("no guest re-entry hook installed").Build()
	}
	return info.CallCallback(info.GuestUnpacker, info.GuestTarget, argsAddr)
}

// Len reports the number of live trampolines.
func (t *TrampolineTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byAddr)
}

// Close releases every trampoline. Only process teardown calls this.
func (t *TrampolineTable) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}
	t.closed = true

	if t.alloc != nil {
		for addr := range t.byAddr {
			t.alloc.Free(addr, trampolineSize, trampolineAlign)
		}
	}
	t.byKey = nil
	t.byAddr = nil
}
