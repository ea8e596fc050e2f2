package gen

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/wippyai/thunkgen"
	"github.com/wippyai/thunkgen/analysis"
	"github.com/wippyai/thunkgen/cdecl"
)

// FunctionHash identifies an exported function. Both sides derive it
// from the sanitized library name and the thunk symbol name.
func FunctionHash(library, function string) [sha256.Size]byte {
	return thunkgen.FunctionHash(library, function)
}

// CallbackHash identifies a callback signature. The library name is
// deliberately absent: equal signatures share one endpoint across
// libraries.
func CallbackHash(signature string) [sha256.Size]byte {
	return thunkgen.CallbackHash(signature)
}

// thunkBytes renders a hash the way guest markers embed it, as
// comma-separated 0x-prefixed byte literals.
func thunkBytes(h [sha256.Size]byte) string {
	parts := make([]string, len(h))
	for i, b := range h {
		parts[i] = fmt.Sprintf("%#02x", b)
	}
	return strings.Join(parts, ", ")
}

// escapeBytes renders a hash as the body of a C string literal built
// from \x escapes.
func escapeBytes(h [sha256.Size]byte) string {
	var sb strings.Builder
	for _, b := range h {
		fmt.Fprintf(&sb, "\\x%02x", b)
	}
	return sb.String()
}

// emitter accumulates generated source text. Methods chain so emission
// sites read top to bottom like the output they produce.
type emitter struct {
	buf strings.Builder
}

func (e *emitter) line(s string) *emitter {
	e.buf.WriteString(s)
	e.buf.WriteByte('\n')
	return e
}

func (e *emitter) linef(format string, args ...any) *emitter {
	fmt.Fprintf(&e.buf, format, args...)
	e.buf.WriteByte('\n')
	return e
}

func (e *emitter) bytes() []byte {
	return []byte(e.buf.String())
}

// argName is the positional parameter name both modules use.
func argName(idx int) string {
	return fmt.Sprintf("a_%d", idx)
}

// typeName spells a type the way wrapper references do: canonical
// form with the top-level qualifier stripped.
func typeName(t cdecl.Type) string {
	return cdecl.CString(cdecl.Unqualified(t))
}

// declList renders named declarators joined for a parameter list.
func declList(types []cdecl.Type) string {
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = cdecl.FormatDecl(t, argName(i))
	}
	return strings.Join(parts, ", ")
}

func paramTypes(params []analysis.Param) []cdecl.Type {
	ts := make([]cdecl.Type, len(params))
	for i, p := range params {
		ts[i] = p.Type
	}
	return ts
}

func sigTypes(params []cdecl.Param) []cdecl.Type {
	ts := make([]cdecl.Type, len(params))
	for i, p := range params {
		ts[i] = p.Type
	}
	return ts
}

// wrapperSignature spells a callback signature as it appears inside
// GuestWrapperForHostFunction template arguments: R(A, B).
func wrapperSignature(sig *cdecl.FunctionType) string {
	parts := make([]string, len(sig.Params))
	for i, p := range sig.Params {
		parts[i] = cdecl.CString(p.Type)
	}
	return cdecl.CString(sig.Ret) + "(" + strings.Join(parts, ", ") + ")"
}
