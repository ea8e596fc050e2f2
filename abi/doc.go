// Package abi provides the architecture tables that drive layout
// computation and packed-argument records.
//
// Each supported architecture carries size and alignment info for the C
// builtin types, the pointer width, and enum sizing. Struct member
// alignment follows the processor-specific ABI, not the preferred
// alignment a compiler may report: on x86_32, 8-byte scalars such as
// double and unsigned long long align to 4 inside aggregates.
//
// # Contents
//
//   - abi.go: Arch, the Builtin type categories, per-arch Info tables
//   - arity.go: the allowed packed-argument slot counts
//   - helpers.go: offset arithmetic shared by layout and runtime
package abi
