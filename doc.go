// Package thunkgen generates cross-architecture foreign-function thunks.
//
// The toolchain takes an annotated C interface definition for a native
// library and produces two C++ source modules: a guest-side module of call
// stubs that marshal arguments into packed records and transfer control to
// the host, and a host-side module of unpacking functions, layout adapters,
// and a library loader. A Go runtime model of the host half (export
// registries, trampoline tables, the loader state machine) supports testing
// the contract without a CPU emulator.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	thunkgen/            Root package with core GuestMemory and Allocator interfaces
//	├── abi/             Guest/host ABI tables: sizes, alignment, pointer width, arities
//	├── cdecl/           C-declaration front-end: tokenizer, preprocessor, parser, AST
//	├── analysis/        Annotation validation and API model construction
//	├── layout/          Per-ABI data layout computation and the type classifier
//	├── gen/             Guest-stub and host-unpacker source emitters
//	├── runtime/         Host runtime contract: exports, trampolines, loader states
//	├── guestmem/        Guest address-space implementations (flat, wazero-backed)
//	├── errors/          Structured error types for diagnostics
//	└── cmd/thunkgen/    Driver CLI with watch mode and an interactive inspector
//
// # Quick Start
//
// Generate the two modules for an annotated interface definition:
//
//	src, _ := os.ReadFile("libtest_interface.h")
//	guestTU, hostTU, err := cdecl.ParseViews(string(src))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	api, err := analysis.Analyze(guestTU, "libtest")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	set, err := layout.Compute(guestTU, hostTU, api, abi.X86_32, abi.X86_64)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	guestSrc := gen.Guest(api)
//	hostSrc, err := gen.Host(api, set)
//
// # Generation Model
//
// Every thunked function is carried across the architecture boundary as a
// packed-arguments record: one guest-sized, guest-aligned slot per
// parameter plus a return slot. Aggregates referenced by the API are
// classified per guest/host ABI pair:
//
//   - Identical: bit-exact under both views, crosses untouched
//   - Repackable: same member names, adaptable by field-wise copy
//   - Incompatible: crosses only with explicit annotations
//   - Opaque: declared but never defined, pointers pass through
//
// Host-side bindings are keyed by SHA-256 of "library:function" so that
// mismatched generator output can never bind to the wrong unpacker.
//
// # Thread Safety
//
// Generation is single-threaded and deterministic: identical inputs yield
// byte-identical outputs. The runtime model is caller-threaded; export
// lookup after initialization is read-only and safe for concurrent use.
package thunkgen
