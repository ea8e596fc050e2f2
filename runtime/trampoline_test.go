package runtime

import (
	"fmt"
	"strings"
	"testing"

	"github.com/wippyai/thunkgen/abi"
	"github.com/wippyai/thunkgen/errors"
	"github.com/wippyai/thunkgen/guestmem"
)

type bumpAlloc struct {
	next   uint64
	allocs int
	frees  int
	fail   bool
}

func newBumpAlloc() *bumpAlloc {
	return &bumpAlloc{next: 0x2000}
}

func (b *bumpAlloc) Alloc(size, align uint32) (uint64, error) {
	if b.fail {
		return 0, fmt.Errorf("no space")
	}
	b.allocs++
	a := uint64(align)
	b.next = (b.next + a - 1) &^ (a - 1)
	addr := b.next
	b.next += uint64(size)
	return addr, nil
}

func (b *bumpAlloc) Free(addr uint64, size, align uint32) {
	b.frees++
}

func TestTrampolineMakeIdempotent(t *testing.T) {
	alloc := newBumpAlloc()
	table := NewTrampolineTable(alloc, nil)

	packer := PackerFor("void (int)")
	first, err := table.Make(packer, 0x5001, 0x6001)
	if err != nil {
		t.Fatalf("Make error: %v", err)
	}
	if first == 0 {
		t.Fatal("Make returned a zero trampoline")
	}

	again, err := table.Make(packer, 0x5001, 0x6001)
	if err != nil {
		t.Fatalf("Make error: %v", err)
	}
	if again != first {
		t.Errorf("second Make = %#x, want %#x", again, first)
	}
	if alloc.allocs != 1 {
		t.Errorf("allocs = %d, want 1", alloc.allocs)
	}
	if table.Len() != 1 {
		t.Errorf("Len = %d, want 1", table.Len())
	}

	info, ok := table.ByAddr(first)
	if !ok {
		t.Fatal("ByAddr missed a live trampoline")
	}
	if info.HostPacker != packer || info.GuestTarget != 0x5001 || info.GuestUnpacker != 0x6001 {
		t.Errorf("descriptor = %+v, want packer/target/unpacker as made", info)
	}

	// ByAddr hands out copies.
	info.GuestTarget = 0xdead
	fresh, _ := table.ByAddr(first)
	if fresh.GuestTarget != 0x5001 {
		t.Error("mutating a ByAddr result changed the table")
	}
}

func TestTrampolineDistinctKeys(t *testing.T) {
	alloc := newBumpAlloc()
	table := NewTrampolineTable(alloc, nil)

	a, err := table.Make(PackerFor("void (int)"), 0x5001, 0x6001)
	if err != nil {
		t.Fatalf("Make error: %v", err)
	}
	// Same guest target through a different packing routine is a
	// different trampoline.
	b, err := table.Make(PackerFor("void (float)"), 0x5001, 0x6001)
	if err != nil {
		t.Fatalf("Make error: %v", err)
	}
	// And so is a guest-allocated one whose packer is not yet known.
	c, err := table.Make(HostPacker{}, 0x5001, 0x6001)
	if err != nil {
		t.Fatalf("Make error: %v", err)
	}

	if a == b || a == c || b == c {
		t.Errorf("trampolines collide: %#x %#x %#x", a, b, c)
	}
	if alloc.allocs != 3 {
		t.Errorf("allocs = %d, want 3", alloc.allocs)
	}
}

func TestTrampolineFinalize(t *testing.T) {
	table := NewTrampolineTable(newBumpAlloc(), func(unpacker, target, args uint64) error {
		return nil
	})

	addr, err := table.Make(HostPacker{}, 0x5001, 0x6001)
	if err != nil {
		t.Fatalf("Make error: %v", err)
	}

	// Until the packer arrives the trampoline cannot run.
	err = table.Invoke(addr, 0x7000)
	e := wantKind(t, err, errors.KindInvalidState)
	if !strings.Contains(e.Detail, "not finalized") {
		t.Errorf("Detail = %q, want not finalized", e.Detail)
	}

	err = table.Finalize(addr, HostPacker{})
	wantKind(t, err, errors.KindInvalidInput)

	packer := PackerFor("void (int)")
	if err := table.Finalize(addr, packer); err != nil {
		t.Fatalf("Finalize error: %v", err)
	}
	info, _ := table.ByAddr(addr)
	if info.HostPacker != packer {
		t.Errorf("HostPacker = %x, want the finalized packer", info.HostPacker)
	}
	if err := table.Invoke(addr, 0x7000); err != nil {
		t.Errorf("Invoke after Finalize error: %v", err)
	}

	// Rebinding the same packer is a no-op; a different one is refused.
	if err := table.Finalize(addr, packer); err != nil {
		t.Errorf("repeat Finalize error: %v", err)
	}
	err = table.Finalize(addr, PackerFor("void (float)"))
	e = wantKind(t, err, errors.KindInvalidState)
	if !strings.Contains(e.Detail, "already finalized") {
		t.Errorf("Detail = %q, want already finalized", e.Detail)
	}

	err = table.Finalize(0xdead, packer)
	wantKind(t, err, errors.KindNotFound)
}

func TestTrampolineInvokeGuestRoundTrip(t *testing.T) {
	x32 := abi.X86_32
	layout, err := NewGuestCallback(x32, []abi.Info{x32.BuiltinInfo(abi.Int)}, x32.BuiltinInfo(abi.Int))
	if err != nil {
		t.Fatalf("NewGuestCallback error: %v", err)
	}

	mem := guestmem.NewFlat(64 * 1024)

	const guestTarget = 0x5001
	const guestUnpacker = 0x6001

	// The re-entry hook plays the guest unpacker: apply the packed
	// record to the target and write the return slot back.
	var hookUnpacker, hookTarget uint64
	call := func(unpacker, target, argsAddr uint64) error {
		hookUnpacker, hookTarget = unpacker, target
		rec := layout.At(mem, argsAddr)
		v, err := rec.ArgUint(0)
		if err != nil {
			return err
		}
		ctx, err := rec.ContextPointer()
		if err != nil {
			return err
		}
		if ctx != 0xfee1 {
			return fmt.Errorf("context = %#x, want 0xfee1", ctx)
		}
		return rec.SetReturnUint(v * 3)
	}

	// Flat memory is also the allocator, so trampolines live in the
	// same guest space as the records.
	table := NewTrampolineTable(mem, call)
	tramp, err := table.Make(PackerFor("int (int)"), guestTarget, guestUnpacker)
	if err != nil {
		t.Fatalf("Make error: %v", err)
	}

	recAddr, err := mem.Alloc(layout.Size(), layout.Align())
	if err != nil {
		t.Fatalf("Alloc error: %v", err)
	}
	rec := layout.At(mem, recAddr)
	if err := rec.SetArgUint(0, 14); err != nil {
		t.Fatalf("SetArgUint error: %v", err)
	}
	if err := rec.SetContextPointer(0xfee1); err != nil {
		t.Fatalf("SetContextPointer error: %v", err)
	}

	if err := table.Invoke(tramp, recAddr); err != nil {
		t.Fatalf("Invoke error: %v", err)
	}

	if hookUnpacker != guestUnpacker || hookTarget != guestTarget {
		t.Errorf("hook saw unpacker=%#x target=%#x, want %#x/%#x",
			hookUnpacker, hookTarget, guestUnpacker, guestTarget)
	}
	v, err := rec.ReturnUint()
	if err != nil {
		t.Fatalf("ReturnUint error: %v", err)
	}
	if v != 42 {
		t.Errorf("return slot = %d, want 42", v)
	}
}

func TestTrampolineNoAllocator(t *testing.T) {
	table := NewTrampolineTable(nil, nil)
	_, err := table.Make(PackerFor("void (int)"), 0x5001, 0x6001)
	e := wantKind(t, err, errors.KindInvalidState)
	if !strings.Contains(e.Detail, "no trampoline allocator") {
		t.Errorf("Detail = %q, want no trampoline allocator", e.Detail)
	}
}

func TestTrampolineNoCallCallback(t *testing.T) {
	table := NewTrampolineTable(newBumpAlloc(), nil)
	addr, err := table.Make(PackerFor("void (int)"), 0x5001, 0x6001)
	if err != nil {
		t.Fatalf("Make error: %v", err)
	}
	err = table.Invoke(addr, 0x7000)
	e := wantKind(t, err, errors.KindInvalidState)
	if !strings.Contains(e.Detail, "re-entry") {
		t.Errorf("Detail = %q, want missing re-entry hook", e.Detail)
	}
}

func TestTrampolineAllocFailure(t *testing.T) {
	alloc := newBumpAlloc()
	alloc.fail = true
	table := NewTrampolineTable(alloc, nil)

	_, err := table.Make(PackerFor("void (int)"), 0x5001, 0x6001)
	e := wantKind(t, err, errors.KindInvalidState)
	if e.Cause == nil {
		t.Error("allocation failure should carry its cause")
	}
}

func TestTrampolineClose(t *testing.T) {
	alloc := newBumpAlloc()
	table := NewTrampolineTable(alloc, nil)

	if _, err := table.Make(PackerFor("void (int)"), 0x5001, 0x6001); err != nil {
		t.Fatalf("Make error: %v", err)
	}
	if _, err := table.Make(PackerFor("void (int)"), 0x5002, 0x6001); err != nil {
		t.Fatalf("Make error: %v", err)
	}

	table.Close()
	if alloc.frees != 2 {
		t.Errorf("frees = %d, want 2", alloc.frees)
	}
	if table.Len() != 0 {
		t.Errorf("Len = %d, want 0", table.Len())
	}

	_, err := table.Make(PackerFor("void (int)"), 0x5003, 0x6001)
	wantKind(t, err, errors.KindInvalidState)

	err = table.Invoke(0x2000, 0x7000)
	wantKind(t, err, errors.KindNotFound)

	// Close is idempotent.
	table.Close()
	if alloc.frees != 2 {
		t.Errorf("frees = %d after second Close, want 2", alloc.frees)
	}
}
