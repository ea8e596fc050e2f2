// Package gen emits the two generated source modules from an analyzed
// API and its layout verdicts, plus a JSON manifest describing the
// result.
//
// The guest module packs call arguments into records and transfers
// control through hypercall markers. The host module declares the
// packed record per function, converts each argument between the guest
// and host views, and calls the symbol resolved from the native
// library. Both modules identify endpoints by SHA-256: functions hash
// "library:function", callbacks hash their signature alone so equal
// signatures share one endpoint across libraries.
//
// Emission is deterministic. Functions appear in declaration order,
// callbacks in registration order, and types in by-value dependency
// order, so identical inputs produce byte-identical outputs.
package gen
