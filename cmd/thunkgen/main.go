package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/wippyai/thunkgen/abi"
	"github.com/wippyai/thunkgen/analysis"
	"github.com/wippyai/thunkgen/cdecl"
	"github.com/wippyai/thunkgen/gen"
	"github.com/wippyai/thunkgen/guestmem"
	"github.com/wippyai/thunkgen/layout"
	"github.com/wippyai/thunkgen/runtime"
)

func main() {
	var (
		libname     = flag.String("libname", "", "Library name (default: input basename without extension)")
		guestOut    = flag.String("guest", "", "Guest module output path (default <libname>_guest.inl)")
		hostOut     = flag.String("host", "", "Host module output path (default <libname>_host.inl)")
		manifestOut = flag.String("manifest", "", "JSON manifest output path (optional)")
		abiName     = flag.String("abi", "x86_64", "Guest ABI (x86_32 or x86_64)")
		watch       = flag.Bool("watch", false, "Regenerate whenever the input file changes")
		interactive = flag.Bool("i", false, "Interactive inspector TUI")
		inspect     = flag.Bool("inspect", false, "Treat the input as a generated manifest and summarize it")
		verbose     = flag.Bool("v", false, "Debug logging")
	)
	flag.Parse()

	if *inspect {
		if flag.NArg() != 1 {
			fmt.Fprintln(os.Stderr, "Usage: thunkgen -inspect <manifest.json>")
			os.Exit(1)
		}
		if err := inspectManifest(flag.Arg(0)); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: thunkgen [flags] <interface-file>")
		fmt.Fprintln(os.Stderr, "       thunkgen -libname libGL -abi x86_32 -guest g.inl -host h.inl gl_interface.h")
		fmt.Fprintln(os.Stderr, "       thunkgen -i <interface-file>  (interactive inspector)")
		fmt.Fprintln(os.Stderr, "       thunkgen -inspect <manifest.json>")
		flag.PrintDefaults()
		os.Exit(1)
	}

	logger := zap.NewNop()
	if *verbose {
		var err error
		logger, err = zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		runtime.SetLogger(logger)
		guestmem.SetLogger(logger)
	}
	defer logger.Sync()

	cfg, err := newConfig(flag.Arg(0), *libname, *guestOut, *hostOut, *manifestOut, *abiName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *interactive {
		if err := runInspector(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := generateAndWrite(cfg, logger); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if !*watch {
			os.Exit(1)
		}
	}

	if *watch {
		if err := watchLoop(cfg, logger); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
}

// config is one resolved generator invocation.
type config struct {
	input       string
	libname     string
	guestOut    string
	hostOut     string
	manifestOut string
	guestArch   abi.Arch
	hostArch    abi.Arch
}

func newConfig(input, libname, guestOut, hostOut, manifestOut, abiName string) (*config, error) {
	guestArch, err := abi.ParseArch(abiName)
	if err != nil {
		return nil, err
	}
	if libname == "" {
		base := filepath.Base(input)
		libname = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if guestOut == "" {
		guestOut = libname + "_guest.inl"
	}
	if hostOut == "" {
		hostOut = libname + "_host.inl"
	}
	return &config{
		input:       input,
		libname:     libname,
		guestOut:    guestOut,
		hostOut:     hostOut,
		manifestOut: manifestOut,
		guestArch:   guestArch,
		hostArch:    abi.X86_64,
	}, nil
}

// generation holds one complete generator run, kept around so the
// inspector can browse it without re-parsing.
type generation struct {
	api      *analysis.API
	set      *layout.Set
	guest    []byte
	host     []byte
	manifest []byte
}

func generate(cfg *config) (*generation, error) {
	src, err := os.ReadFile(cfg.input)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}

	guestTU, hostTU, err := cdecl.ParseViews(string(src))
	if err != nil {
		return nil, err
	}
	api, err := analysis.Analyze(guestTU, cfg.libname)
	if err != nil {
		return nil, err
	}
	set, err := layout.Compute(guestTU, hostTU, api, cfg.guestArch, cfg.hostArch)
	if err != nil {
		return nil, err
	}

	hostSrc, err := gen.Host(api, set)
	if err != nil {
		return nil, err
	}
	manifest, err := gen.BuildManifest(api, cfg.guestArch, cfg.hostArch).Encode()
	if err != nil {
		return nil, err
	}

	return &generation{
		api:      api,
		set:      set,
		guest:    gen.Guest(api),
		host:     hostSrc,
		manifest: manifest,
	}, nil
}

func generateAndWrite(cfg *config, logger *zap.Logger) error {
	g, err := generate(cfg)
	if err != nil {
		return err
	}

	outputs := []struct {
		path string
		data []byte
	}{
		{cfg.guestOut, g.guest},
		{cfg.hostOut, g.host},
	}
	if cfg.manifestOut != "" {
		outputs = append(outputs, struct {
			path string
			data []byte
		}{cfg.manifestOut, g.manifest})
	}

	for _, out := range outputs {
		wrote, err := writeIfChanged(out.path, out.data)
		if err != nil {
			return err
		}
		if wrote {
			logger.Debug("wrote output", zap.String("path", out.path), zap.Int("bytes", len(out.data)))
		} else {
			logger.Debug("output unchanged", zap.String("path", out.path))
		}
	}

	fmt.Printf("%s: %d functions, %d callbacks, %d types -> %s, %s\n",
		cfg.libname, len(g.api.Functions), len(g.api.Callbacks), len(g.set.Types),
		cfg.guestOut, cfg.hostOut)
	return nil
}

// inspectManifest validates a previously generated manifest (including
// its format-version compatibility) and prints its contents.
func inspectManifest(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}
	m, err := gen.ParseManifest(data)
	if err != nil {
		return err
	}

	fmt.Printf("%s (format %s)\n", m.Library, m.FormatVersion)
	fmt.Printf("  soname:  %s\n", m.SOName)
	fmt.Printf("  abi:     guest %s, host %s\n", m.ABI.Guest, m.ABI.Host)
	fmt.Printf("  arities: %v\n", m.AllowedArities)
	fmt.Printf("Exports (%d):\n", len(m.Exports))
	for _, e := range m.Exports {
		fmt.Printf("  %-32s arity %-2d %s\n", e.Name, e.Arity, e.SHA256[:16])
	}
	if len(m.Callbacks) > 0 {
		fmt.Printf("Callbacks (%d):\n", len(m.Callbacks))
		for _, cb := range m.Callbacks {
			fmt.Printf("  %-32s %s\n", cb.Signature, cb.SHA256[:16])
		}
	}
	return nil
}

// writeIfChanged skips the rewrite when the file already holds the exact
// bytes, keeping watch mode from retriggering downstream build systems.
func writeIfChanged(path string, data []byte) (bool, error) {
	if existing, err := os.ReadFile(path); err == nil && bytes.Equal(existing, data) {
		return false, nil
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}

// watchLoop regenerates on every change to the input file. The watch is
// placed on the parent directory because editors typically replace the
// file, which drops a watch placed on the file itself.
func watchLoop(cfg *config, logger *zap.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(cfg.input)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	target := filepath.Clean(cfg.input)
	fmt.Printf("Watching %s (ctrl+c to stop)\n", cfg.input)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
				continue
			}
			logger.Debug("input changed", zap.String("op", event.Op.String()))
			if err := generateAndWrite(cfg, logger); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error", zap.Error(err))
		}
	}
}
