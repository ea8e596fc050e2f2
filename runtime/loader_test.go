package runtime

import (
	"fmt"
	"sync"
	"testing"

	"github.com/wippyai/thunkgen"
	"github.com/wippyai/thunkgen/errors"
)

// fakeLoader models the host dynamic loader: libraries carry symbols, and
// loading merges them into a global scope where earlier definitions win,
// the way RTLD_GLOBAL treats a preloaded interposer.
type fakeLoader struct {
	libs    map[string]map[string]uintptr
	globals map[string]uintptr
	dlopens int
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{
		libs:    make(map[string]map[string]uintptr),
		globals: make(map[string]uintptr),
	}
}

func (f *fakeLoader) addLib(soname string, syms map[string]uintptr) {
	f.libs[soname] = syms
}

func (f *fakeLoader) Dlopen(soname string) (uintptr, error) {
	f.dlopens++
	syms, ok := f.libs[soname]
	if !ok {
		return 0, fmt.Errorf("%s: cannot open shared object file", soname)
	}
	for name, addr := range syms {
		if _, taken := f.globals[name]; !taken {
			f.globals[name] = addr
		}
	}
	return 0x1000, nil
}

func (f *fakeLoader) DlsymDefault(symbol string) (uintptr, error) {
	if addr, ok := f.globals[symbol]; ok {
		return addr, nil
	}
	return 0, fmt.Errorf("undefined symbol: %s", symbol)
}

func TestLibraryLoadSuccess(t *testing.T) {
	loader := newFakeLoader()
	loader.addLib("libtest.so", map[string]uintptr{
		"func1": 0x100,
		"func2": 0x200,
	})

	lib, err := NewLibrary(LibraryConfig{
		Name:    "libtest",
		Symbols: []string{"func1", "func2"},
		Exports: []ExportEntry{FunctionExport("libtest", "func1", nopUnpacker)},
	}, loader)
	if err != nil {
		t.Fatalf("NewLibrary error: %v", err)
	}

	if lib.State() != Unloaded {
		t.Errorf("State = %v, want Unloaded", lib.State())
	}
	if _, ok := lib.Symbol("func1"); ok {
		t.Error("Symbol should not resolve before the first Exports call")
	}

	exports := lib.Exports()
	if len(exports) != 1 {
		t.Fatalf("Exports = %d entries, want 1", len(exports))
	}
	if lib.State() != Ready {
		t.Errorf("State = %v, want Ready", lib.State())
	}
	if lib.Err() != nil {
		t.Errorf("Err = %v, want nil", lib.Err())
	}
	if loader.dlopens != 1 {
		t.Errorf("dlopens = %d, want 1", loader.dlopens)
	}

	// Initialization happens once.
	if again := lib.Exports(); len(again) != 1 {
		t.Errorf("second Exports = %d entries, want 1", len(again))
	}
	if loader.dlopens != 1 {
		t.Errorf("dlopens = %d after second call, want 1", loader.dlopens)
	}

	addr, ok := lib.Symbol("func2")
	if !ok || addr != 0x200 {
		t.Errorf("Symbol(func2) = %#x, %v; want 0x200", addr, ok)
	}
	if _, ok := lib.Symbol("absent"); ok {
		t.Error("Symbol resolved a name that was never required")
	}
}

func TestLibraryLoadFailureTerminal(t *testing.T) {
	loader := newFakeLoader()

	lib, err := NewLibrary(LibraryConfig{Name: "libmissing"}, loader)
	if err != nil {
		t.Fatalf("NewLibrary error: %v", err)
	}

	if exports := lib.Exports(); exports != nil {
		t.Errorf("Exports = %v, want nil", exports)
	}
	if lib.State() != Failed {
		t.Errorf("State = %v, want Failed", lib.State())
	}
	wantKind(t, lib.Err(), errors.KindLibraryLoad)

	// Failed is terminal: no retry, still nil.
	if exports := lib.Exports(); exports != nil {
		t.Errorf("Exports after failure = %v, want nil", exports)
	}
	if loader.dlopens != 1 {
		t.Errorf("dlopens = %d, want 1", loader.dlopens)
	}
}

func TestLibraryMissingSymbols(t *testing.T) {
	loader := newFakeLoader()
	loader.addLib("libtest.so", map[string]uintptr{"present": 0x100})

	lib, err := NewLibrary(LibraryConfig{
		Name:    "libtest",
		Symbols: []string{"present", "gone1", "gone2"},
	}, loader)
	if err != nil {
		t.Fatalf("NewLibrary error: %v", err)
	}

	if exports := lib.Exports(); exports != nil {
		t.Errorf("Exports = %v, want nil", exports)
	}
	mse, ok := lib.Err().(*errors.MissingSymbolsError)
	if !ok {
		t.Fatalf("Err = %T (%v), want *errors.MissingSymbolsError", lib.Err(), lib.Err())
	}
	// Every unresolved symbol is reported, not just the first.
	if len(mse.Symbols) != 2 {
		t.Fatalf("Symbols = %d, want 2: %v", len(mse.Symbols), mse.Symbols)
	}
	for i, want := range []string{"gone1", "gone2"} {
		if mse.Symbols[i].Library != "libtest.so" || mse.Symbols[i].Symbol != want {
			t.Errorf("Symbols[%d] = %+v, want libtest.so#%s", i, mse.Symbols[i], want)
		}
	}
}

func TestLibrarySONameDefaults(t *testing.T) {
	loader := newFakeLoader()

	tests := []struct {
		name string
		cfg  LibraryConfig
		want string
	}{
		{"plain", LibraryConfig{Name: "libtest"}, "libtest.so"},
		{"versioned", LibraryConfig{Name: "libtest", Version: 123}, "libtest.so.123"},
		{"explicit wins", LibraryConfig{Name: "libtest", Version: 2, SOName: "libtest-custom.so"}, "libtest-custom.so"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lib, err := NewLibrary(tt.cfg, loader)
			if err != nil {
				t.Fatalf("NewLibrary error: %v", err)
			}
			if lib.SOName() != tt.want {
				t.Errorf("SOName = %q, want %q", lib.SOName(), tt.want)
			}
		})
	}
}

func TestLibraryPreloadInterposition(t *testing.T) {
	loader := newFakeLoader()
	// An interposer is already in the global scope before the library
	// loads its own definition.
	loader.globals["hooked"] = 0x999
	loader.addLib("libtest.so", map[string]uintptr{"hooked": 0x111})

	lib, err := NewLibrary(LibraryConfig{
		Name:    "libtest",
		Symbols: []string{"hooked"},
	}, loader)
	if err != nil {
		t.Fatalf("NewLibrary error: %v", err)
	}

	lib.Exports()
	if lib.State() != Ready {
		t.Fatalf("State = %v, want Ready (err: %v)", lib.State(), lib.Err())
	}
	addr, ok := lib.Symbol("hooked")
	if !ok || addr != 0x999 {
		t.Errorf("Symbol(hooked) = %#x, %v; want the interposer at 0x999", addr, ok)
	}
}

func TestLibraryConcurrentFirstCall(t *testing.T) {
	loader := newFakeLoader()
	loader.addLib("libtest.so", map[string]uintptr{"func1": 0x100})

	lib, err := NewLibrary(LibraryConfig{
		Name:    "libtest",
		Symbols: []string{"func1"},
		Exports: []ExportEntry{FunctionExport("libtest", "func1", nopUnpacker)},
	}, loader)
	if err != nil {
		t.Fatalf("NewLibrary error: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if exports := lib.Exports(); len(exports) != 1 {
				t.Errorf("Exports = %d entries, want 1", len(exports))
			}
		}()
	}
	wg.Wait()

	if loader.dlopens != 1 {
		t.Errorf("dlopens = %d, want exactly 1", loader.dlopens)
	}
}

func TestNewLibraryValidation(t *testing.T) {
	_, err := NewLibrary(LibraryConfig{}, newFakeLoader())
	wantKind(t, err, errors.KindInvalidInput)

	_, err = NewLibrary(LibraryConfig{Name: "libtest"}, nil)
	wantKind(t, err, errors.KindInvalidInput)
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{Unloaded, "unloaded"},
		{Loading, "loading"},
		{Ready, "ready"},
		{Failed, "failed"},
		{State(9), "state(9)"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", int32(tt.state), got, tt.want)
		}
	}
}

func TestRegistryBindLibrary(t *testing.T) {
	loader := newFakeLoader()
	loader.addLib("libtest.so", map[string]uintptr{"func1": 0x100})

	lib, err := NewLibrary(LibraryConfig{
		Name:    "libtest",
		Symbols: []string{"func1"},
		Exports: []ExportEntry{FunctionExport("libtest", "func1", nopUnpacker)},
	}, loader)
	if err != nil {
		t.Fatalf("NewLibrary error: %v", err)
	}

	reg := NewRegistry()
	if err := reg.Bind(lib); err != nil {
		t.Fatalf("Bind error: %v", err)
	}
	if _, ok := reg.Lookup(thunkgen.FunctionHash("libtest", "func1")); !ok {
		t.Error("Bind did not publish the library exports")
	}

	// Binding a library that cannot load surfaces its error and
	// publishes nothing.
	broken, err := NewLibrary(LibraryConfig{Name: "libgone"}, loader)
	if err != nil {
		t.Fatalf("NewLibrary error: %v", err)
	}
	err = reg.Bind(broken)
	wantKind(t, err, errors.KindLibraryLoad)
	if reg.Len() != 1 {
		t.Errorf("Len = %d, want 1", reg.Len())
	}
}
