// Package layout computes data layouts for both ABI views of an
// interface and classifies every referenced type by how the two relate.
//
// A Calculator sizes types under a single architecture following the
// processor-specific C rules from package abi. Compute runs one
// calculator per view and buckets each named type:
//
//   - Identical: the views agree bit-exactly; values reinterpret.
//   - Repackable: member names match and every member converts, but
//     offsets or widths differ; values convert field by field.
//   - Incompatible: no automatic conversion exists.
//   - Opaque: the type is never defined and lives behind annotated
//     pointers only.
//
// Annotations override the verdict: assume_compatible_data_layout
// forces Identical, opaque_type skips classification entirely.
//
// The resulting Set lists types so by-value dependencies precede their
// containers, which is the order the emitted conversion code needs to
// compile.
package layout
