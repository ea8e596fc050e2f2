package abi

// AlignTo rounds offset up to the next multiple of align. A zero align
// leaves the offset untouched.
func AlignTo(offset, align uint32) uint32 {
	if align == 0 {
		return offset
	}
	return (offset + align - 1) &^ (align - 1)
}

// AlignTo64 is AlignTo over 64-bit offsets, for guest address arithmetic.
func AlignTo64(offset uint64, align uint32) uint64 {
	if align == 0 {
		return offset
	}
	a := uint64(align)
	return (offset + a - 1) &^ (a - 1)
}
