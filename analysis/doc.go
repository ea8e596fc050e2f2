// Package analysis validates configuration records against a parsed
// interface definition and derives the thunked API model consumed by
// the layout and generation stages.
//
// The recognized annotation set is closed. A base class or configuration
// member outside the set aborts analysis rather than being skipped, so a
// typo in an interface definition cannot silently drop behavior.
//
// Variadic functions are rewritten at this stage: the ellipsis becomes a
// trailing count and argument-array parameter pair, the thunk symbols
// move to <name>_internal, and both the guest entry point and the host
// body become author-provided.
package analysis
