package abi

// AllowedArities is the set of packed-argument slot counts the dispatch
// tables support, in ascending order. Counts 19 through 22 have no
// dispatcher; 23 exists for one deep graphics entry point. Generation must
// fail for any function or callback whose slot count falls outside this set.
var AllowedArities = []int{
	0, 1, 2, 3, 4, 5, 6, 7, 8, 9,
	10, 11, 12, 13, 14, 15, 16, 17, 18,
	23,
}

// MaxArity is the largest supported slot count.
const MaxArity = 23

// ArityAllowed reports whether a packed record with n argument slots has a
// dispatcher.
func ArityAllowed(n int) bool {
	return (n >= 0 && n <= 18) || n == MaxArity
}
