package runtime

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/thunkgen/errors"
)

// State tracks a thunk library within the process lifetime.
type State int32

const (
	Unloaded State = iota
	Loading
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Loader resolves native host libraries. The real dynamic loader is an
// external collaborator, so it enters through this interface.
type Loader interface {
	// Dlopen loads soname with global symbol visibility (RTLD_GLOBAL |
	// RTLD_LAZY semantics) and returns an opaque handle.
	Dlopen(soname string) (uintptr, error)

	// DlsymDefault resolves symbol through the global scope rather than
	// a library handle, so a preloaded interposer wins over the
	// library's own definition.
	DlsymDefault(symbol string) (uintptr, error)
}

// LibraryConfig describes one thunk library to load.
type LibraryConfig struct {
	// Name is the library name export identities hash, e.g. "libtest".
	Name string

	// SOName overrides the dlopen target. When empty it defaults to
	// "<Name>.so", or "<Name>.so.<Version>" when Version is set.
	SOName string

	// Version selects a versioned soname, mirroring the generator's
	// version annotation.
	Version int

	// Symbols are the host symbols that must all resolve for the
	// library to become Ready.
	Symbols []string

	// Exports are the dispatch entries published once Ready.
	Exports []ExportEntry
}

// Library drives the one-shot initialization state machine
// Unloaded -> Loading -> Ready | Failed. Ready and Failed are terminal;
// a failed library returns nil exports forever.
type Library struct {
	name     string
	soname   string
	symbols  []string
	exports  []ExportEntry
	loader   Loader
	handle   uintptr
	resolved map[string]uintptr
	loadErr  error
	state    atomic.Int32
	mu       sync.Mutex
}

func NewLibrary(cfg LibraryConfig, loader Loader) (*Library, error) {
	if cfg.Name == "" {
		return nil, errors.InvalidInput(errors.PhaseLoad, "library name is required")
	}
	if loader == nil {
		return nil, errors.InvalidInput(errors.PhaseLoad, "loader is required")
	}

	soname := cfg.SOName
	if soname == "" {
		soname = cfg.Name + ".so"
		if cfg.Version > 0 {
			soname = fmt.Sprintf("%s.so.%d", cfg.Name, cfg.Version)
		}
	}

	return &Library{
		name:    cfg.Name,
		soname:  soname,
		symbols: cfg.Symbols,
		exports: cfg.Exports,
		loader:  loader,
	}, nil
}

func (l *Library) Name() string { return l.name }

// SOName returns the dlopen target.
func (l *Library) SOName() string { return l.soname }

func (l *Library) State() State {
	return State(l.state.Load())
}

// Err reports why the library failed, or nil.
func (l *Library) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loadErr
}

// Exports drives initialization on first call and returns the dispatch
// entries, or nil once the library has failed. The first caller to
// observe Unloaded performs the load; later calls fast-path on the
// terminal state without taking the latch.
func (l *Library) Exports() []ExportEntry {
	switch State(l.state.Load()) {
	case Ready:
		return l.exports
	case Failed:
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	switch State(l.state.Load()) {
	case Ready:
		return l.exports
	case Failed:
		return nil
	}

	l.state.Store(int32(Loading))
	if err := l.load(); err != nil {
		l.loadErr = err
		l.state.Store(int32(Failed))
		Logger().Warn("thunk library failed",
			zap.String("library", l.name),
			zap.String("soname", l.soname),
			zap.Error(err))
		return nil
	}
	l.state.Store(int32(Ready))
	Logger().Debug("thunk library ready",
		zap.String("library", l.name),
		zap.String("soname", l.soname),
		zap.Int("symbols", len(l.resolved)),
		zap.Int("exports", len(l.exports)))
	return l.exports
}

func (l *Library) load() error {
	handle, err := l.loader.Dlopen(l.soname)
	if err != nil {
		return errors.LibraryLoad(l.soname, err)
	}
	l.handle = handle

	l.resolved = make(map[string]uintptr, len(l.symbols))
	var missing []string
	for _, sym := range l.symbols {
		addr, err := l.loader.DlsymDefault(sym)
		if err != nil || addr == 0 {
			missing = append(missing, l.soname+"#"+sym)
			continue
		}
		l.resolved[sym] = addr
	}
	if len(missing) > 0 {
		return errors.NewMissingSymbolsError(missing)
	}
	return nil
}

// Symbol returns the resolved host address of a required symbol. It does
// not drive initialization; before Ready it reports false.
func (l *Library) Symbol(name string) (uintptr, bool) {
	if State(l.state.Load()) != Ready {
		return 0, false
	}
	addr, ok := l.resolved[name]
	return addr, ok
}
