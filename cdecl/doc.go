// Package cdecl parses the C-declaration subset that thunk interface
// definitions are written in.
//
// This is a purpose-built front-end, not a general C parser. It accepts
// exactly what the generator consumes: struct/union/enum declarations,
// typedefs and using-aliases, function declarations, and the rigid
// template configuration records (fex_gen_config, fex_gen_type,
// fex_gen_param). A small preprocessor handles the conditional blocks
// that split one source text into a guest view and a host view.
//
// Marker namespaces (namespace fexgen { ... }) are skipped wholesale:
// annotation names are validated downstream against a fixed set, so their
// declarations carry no information.
//
// Parse one view, or both at once:
//
//	guest, host, err := cdecl.ParseViews(source)
//
// The returned TranslationUnit keeps declarations in source order and
// resolves named references through Canonical.
package cdecl
