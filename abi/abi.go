package abi

import "fmt"

// Arch identifies a processor ABI on one side of the thunk boundary.
type Arch int

const (
	X86_32 Arch = iota
	X86_64
)

func (a Arch) String() string {
	switch a {
	case X86_32:
		return "x86_32"
	case X86_64:
		return "x86_64"
	default:
		return fmt.Sprintf("arch(%d)", int(a))
	}
}

// ParseArch converts a CLI spelling into an Arch.
func ParseArch(s string) (Arch, error) {
	switch s {
	case "x86_32", "i386", "x86":
		return X86_32, nil
	case "x86_64", "amd64":
		return X86_64, nil
	default:
		return 0, fmt.Errorf("unknown architecture %q (want x86_32 or x86_64)", s)
	}
}

// Info carries the size and struct-member alignment of a type under one ABI.
type Info struct {
	Size  uint32
	Align uint32
}

// Builtin enumerates the C builtin type categories the front-end produces.
// Fixed-width typedefs (uint32_t and friends) normalize onto these.
type Builtin int

const (
	Void Builtin = iota
	Bool
	Char
	SChar
	UChar
	Short
	UShort
	Int
	UInt
	Long
	ULong
	LongLong
	ULongLong
	IntPtr
	UIntPtr
	Float
	Double
	LongDouble
)

var builtinNames = [...]string{
	Void:       "void",
	Bool:       "bool",
	Char:       "char",
	SChar:      "signed char",
	UChar:      "unsigned char",
	Short:      "short",
	UShort:     "unsigned short",
	Int:        "int",
	UInt:       "unsigned int",
	Long:       "long",
	ULong:      "unsigned long",
	LongLong:   "long long",
	ULongLong:  "unsigned long long",
	IntPtr:     "intptr_t",
	UIntPtr:    "uintptr_t",
	Float:      "float",
	Double:     "double",
	LongDouble: "long double",
}

func (b Builtin) String() string {
	if int(b) < len(builtinNames) {
		return builtinNames[b]
	}
	return fmt.Sprintf("builtin(%d)", int(b))
}

// IsInteger reports whether b is an integer category (bool and char count).
func (b Builtin) IsInteger() bool {
	return b >= Bool && b <= UIntPtr
}

// IsSigned reports whether b is a signed integer category. Plain char is
// treated as signed, matching the x86 psABI.
func (b Builtin) IsSigned() bool {
	switch b {
	case Char, SChar, Short, Int, Long, LongLong, IntPtr:
		return true
	default:
		return false
	}
}

// x86_32 System V: pointers and long are 4 bytes; 8-byte scalars align to 4
// inside aggregates; long double is the 12-byte x87 format.
var x8632Info = [...]Info{
	Void:       {0, 1},
	Bool:       {1, 1},
	Char:       {1, 1},
	SChar:      {1, 1},
	UChar:      {1, 1},
	Short:      {2, 2},
	UShort:     {2, 2},
	Int:        {4, 4},
	UInt:       {4, 4},
	Long:       {4, 4},
	ULong:      {4, 4},
	LongLong:   {8, 4},
	ULongLong:  {8, 4},
	IntPtr:     {4, 4},
	UIntPtr:    {4, 4},
	Float:      {4, 4},
	Double:     {8, 4},
	LongDouble: {12, 4},
}

// x86_64 System V: everything naturally aligned; long double is the
// 16-byte x87 format.
var x8664Info = [...]Info{
	Void:       {0, 1},
	Bool:       {1, 1},
	Char:       {1, 1},
	SChar:      {1, 1},
	UChar:      {1, 1},
	Short:      {2, 2},
	UShort:     {2, 2},
	Int:        {4, 4},
	UInt:       {4, 4},
	Long:       {8, 8},
	ULong:      {8, 8},
	LongLong:   {8, 8},
	ULongLong:  {8, 8},
	IntPtr:     {8, 8},
	UIntPtr:    {8, 8},
	Float:      {4, 4},
	Double:     {8, 8},
	LongDouble: {16, 16},
}

// BuiltinInfo returns the size/alignment of a builtin category under a.
func (a Arch) BuiltinInfo(b Builtin) Info {
	switch a {
	case X86_64:
		return x8664Info[b]
	default:
		return x8632Info[b]
	}
}

// PointerInfo returns the size/alignment of a data or function pointer.
func (a Arch) PointerInfo() Info {
	switch a {
	case X86_64:
		return Info{Size: 8, Align: 8}
	default:
		return Info{Size: 4, Align: 4}
	}
}

// PointerWidth returns the pointer size in bytes.
func (a Arch) PointerWidth() uint32 {
	return a.PointerInfo().Size
}

// IntegerForWidth returns the unsigned builtin category whose fixed-width
// spelling matches the given byte width. Emitters use it to spell guest
// pointer wrappers (uint32_t / uint64_t).
func IntegerForWidth(width uint32) string {
	switch width {
	case 1:
		return "uint8_t"
	case 2:
		return "uint16_t"
	case 4:
		return "uint32_t"
	case 8:
		return "uint64_t"
	default:
		return fmt.Sprintf("uint%d_t", width*8)
	}
}
