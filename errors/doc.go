// Package errors provides structured error types for the thunkgen toolchain.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type includes rich context: a symbol/field path, guest/host type
// spellings, and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseLayout, errors.KindIncompatibleLayout).
//		Path("struct A", "b").
//		GuestType("uint32_t").
//		HostType("uint64_t").
//		Detail("member width differs between guest and host").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.UnknownAnnotation(path, "fexgen::frobnicate")
//	err := errors.UnsupportedParameter("func1", 0, "void *")
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
