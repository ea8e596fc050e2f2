// Package runtime models the host half of the thunk calling convention:
// packed-argument records, export dispatch keyed by SHA-256, thunk
// library initialization, and host-to-guest trampolines.
//
// # Dispatch
//
// A guest stub packs its arguments into a record in guest memory and
// issues a hypercall naming an export by hash. The registry routes the
// record address to the bound unpacker:
//
//	layout, _ := runtime.NewCall(abi.X86_32,
//	    []abi.Info{{Size: 4, Align: 4}},
//	    abi.Info{Size: 4, Align: 4})
//
//	reg := runtime.NewRegistry()
//	reg.Register(runtime.FunctionExport("libtest", "func",
//	    func(mem thunkgen.GuestMemory, argsAddr uint64) error {
//	        rec := layout.At(mem, argsAddr)
//	        v, err := rec.ArgUint(0)
//	        if err != nil {
//	            return err
//	        }
//	        return rec.SetReturnUint(v * 2)
//	    }))
//
//	err := reg.Dispatch(mem, thunkgen.FunctionHash("libtest", "func"), argsAddr)
//
// Dispatch runs on the calling goroutine, mirroring the caller-threaded
// contract: a guest thread that issues a hypercall runs the host
// unpacker on that same thread.
//
// # Packed Records
//
// PackedLayout computes slot offsets from the guest ABI tables, so host
// code addresses the same bytes the generated guest stub wrote. Argument
// slots come first in declaration order, then the hidden context slot
// for callbacks, then the return slot. Slot sizes and alignments are
// guest sizes, never host sizes.
//
// # Library Initialization
//
// Library drives the one-shot state machine
//
//	Unloaded -> Loading -> Ready | Failed
//
// on first use. Ready and Failed are terminal within a process lifetime;
// a failed library returns nil exports forever and Err explains why. The
// dynamic loader itself is an external collaborator supplied through the
// Loader interface; DlsymDefault must resolve through the global scope
// so preload interposition wins over the library's own definition.
//
// # Trampolines
//
// Native libraries invoke guest callbacks through trampolines. A
// trampoline is allocated on first observation of a guest function
// pointer, keyed by (guest target, host packer), and lives until
// teardown. The emitted C++ passes the GuestcallInfo descriptor in a
// hidden register (r11 on x86-64, x11 on AArch64) because the callback
// carries the native signature and has no room for a context parameter;
// this model resolves the descriptor by trampoline address instead.
//
//	table := runtime.NewTrampolineTable(alloc, callCallback)
//	tramp, err := table.Make(packer, guestTarget, guestUnpacker)
//	...
//	err = table.Invoke(tramp, argsAddr)
//
// # Thread Safety
//
// Registry, Library, and TrampolineTable are safe for concurrent use.
// Library serializes the first load under a latch and fast-paths
// subsequent calls on an atomic state check. Record accessors perform no
// locking of their own; concurrent access to the same record follows the
// same rules as real guest memory.
package runtime
