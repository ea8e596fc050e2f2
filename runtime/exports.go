package runtime

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/thunkgen"
	"github.com/wippyai/thunkgen/errors"
)

// Unpacker is the host-side body behind one export. It receives the guest
// address space and the address of the packed-arguments record, and must
// write the return slot before returning.
type Unpacker func(mem thunkgen.GuestMemory, argsAddr uint64) error

// ExportEntry binds a wire identity to its unpacker. Name is a diagnostic
// label ("libtest:func", or a callback signature) and never participates
// in matching.
type ExportEntry struct {
	SHA256 [sha256.Size]byte
	Name   string
	Unpack Unpacker
}

// FunctionExport builds the entry for an exported function.
func FunctionExport(library, function string, unpack Unpacker) ExportEntry {
	return ExportEntry{
		SHA256: thunkgen.FunctionHash(library, function),
		Name:   library + ":" + function,
		Unpack: unpack,
	}
}

// CallbackExport builds the entry for a callback-signature endpoint.
// Callback endpoints are shared across libraries.
func CallbackExport(signature string, unpack Unpacker) ExportEntry {
	return ExportEntry{
		SHA256: thunkgen.CallbackHash(signature),
		Name:   signature,
		Unpack: unpack,
	}
}

// Registry maps wire identities to unpackers. It stands in for the
// emulator's view over every bound thunk library in the process.
type Registry struct {
	entries map[[sha256.Size]byte]ExportEntry
	mu      sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[[sha256.Size]byte]ExportEntry),
	}
}

// Register adds entries atomically: on any rejected entry nothing from
// the batch is registered.
func (r *Registry) Register(entries ...ExportEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[[sha256.Size]byte]struct{}, len(entries))
	for _, e := range entries {
		if e.Unpack == nil {
			return errors.InvalidInput(errors.PhaseDispatch, "export "+e.Name+" has no unpacker")
		}
		if _, dup := r.entries[e.SHA256]; dup {
			return errors.Duplicate(errors.PhaseDispatch, "export", e.Name)
		}
		if _, dup := seen[e.SHA256]; dup {
			return errors.Duplicate(errors.PhaseDispatch, "export", e.Name)
		}
		seen[e.SHA256] = struct{}{}
	}

	for _, e := range entries {
		r.entries[e.SHA256] = e
	}
	return nil
}

// Bind drives a library's initialization and publishes its exports.
// Binding a failed library surfaces its load error.
func (r *Registry) Bind(lib *Library) error {
	exports := lib.Exports()
	if lib.State() == Failed {
		return lib.Err()
	}
	if err := r.Register(exports...); err != nil {
		return err
	}
	Logger().Debug("thunk library bound",
		zap.String("library", lib.Name()),
		zap.Int("exports", len(exports)))
	return nil
}

// Lookup finds an entry by wire identity.
func (r *Registry) Lookup(sha [sha256.Size]byte) (ExportEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[sha]
	return e, ok
}

// Dispatch routes one hypercall to the unpacker registered under sha,
// running it on the calling goroutine. A miss models the emulator
// skipping an unbound call site.
func (r *Registry) Dispatch(mem thunkgen.GuestMemory, sha [sha256.Size]byte, argsAddr uint64) error {
	entry, ok := r.Lookup(sha)
	if !ok {
		return errors.NotFound(errors.PhaseDispatch, "export", hex.EncodeToString(sha[:]))
	}
	return entry.Unpack(mem, argsAddr)
}

// Len reports the number of registered entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
