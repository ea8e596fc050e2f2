package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in the pipeline the error occurred
type Phase string

const (
	PhaseParse    Phase = "parse"    // interface definition parsing
	PhaseAnalyze  Phase = "analyze"  // annotation and signature analysis
	PhaseLayout   Phase = "layout"   // data layout computation
	PhaseGenerate Phase = "generate" // guest/host source emission
	PhaseLoad     Phase = "load"     // host library resolution
	PhaseDispatch Phase = "dispatch" // thunk and trampoline dispatch
	PhaseConfig   Phase = "config"   // manifest and CLI configuration
)

// Kind categorizes the error
type Kind string

const (
	KindSyntax             Kind = "syntax"
	KindUnknownAnnotation  Kind = "unknown_annotation"
	KindIncompleteType     Kind = "incomplete_type"
	KindUnsupportedType    Kind = "unsupported_type"
	KindIncompatibleLayout Kind = "incompatible_layout"
	KindRepackRequired     Kind = "repack_required"
	KindUnannotatedPointer Kind = "unannotated_pointer"
	KindArity              Kind = "arity"
	KindCycle              Kind = "cycle"
	KindDuplicate          Kind = "duplicate"
	KindNotFound           Kind = "not_found"
	KindLibraryLoad        Kind = "library_load"
	KindSymbolMissing      Kind = "symbol_missing"
	KindInvalidState       Kind = "invalid_state"
	KindInvalidInput       Kind = "invalid_input"
	KindVersionMismatch    Kind = "version_mismatch"
)

// Error is the structured error type used throughout the toolchain
type Error struct {
	Value     any
	Cause     error
	Phase     Phase
	Kind      Kind
	GuestType string
	HostType  string
	Detail    string
	Path      []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.GuestType != "" || e.HostType != "" {
		b.WriteString(": ")
		if e.GuestType != "" && e.HostType != "" {
			b.WriteString("guest type ")
			b.WriteString(e.GuestType)
			b.WriteString(", host type ")
			b.WriteString(e.HostType)
		} else if e.GuestType != "" {
			b.WriteString("guest type ")
			b.WriteString(e.GuestType)
		} else {
			b.WriteString("host type ")
			b.WriteString(e.HostType)
		}
	}

	if e.Detail != "" {
		if e.GuestType != "" || e.HostType != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the symbol/field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// GuestType sets the guest-side type spelling
func (b *Builder) GuestType(t string) *Builder {
	b.err.GuestType = t
	return b
}

// HostType sets the host-side type spelling
func (b *Builder) HostType(t string) *Builder {
	b.err.HostType = t
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// UnknownAnnotation creates an error for an unrecognized annotation base
func UnknownAnnotation(path []string, annotation string) *Error {
	return &Error{
		Phase:  PhaseAnalyze,
		Kind:   KindUnknownAnnotation,
		Path:   path,
		Detail: fmt.Sprintf("unknown annotation %q", annotation),
	}
}

// UnknownMember creates an error for an unrecognized config record member
func UnknownMember(path []string, member string) *Error {
	return &Error{
		Phase:  PhaseAnalyze,
		Kind:   KindUnknownAnnotation,
		Path:   path,
		Detail: fmt.Sprintf("unknown configuration member %q", member),
	}
}

// IncompleteType creates an error for a pointee with no visible definition.
// The wording is load-bearing: callers grep for "incomplete type".
func IncompleteType(phase Phase, path []string, ctype string) *Error {
	return &Error{
		Phase:     phase,
		Kind:      KindIncompleteType,
		Path:      path,
		GuestType: ctype,
		Detail:    fmt.Sprintf("incomplete type %s", ctype),
	}
}

// UnsupportedParameter creates an error for a parameter type the guest ABI
// cannot carry without an annotation
func UnsupportedParameter(function string, index int, ctype string) *Error {
	return &Error{
		Phase:     PhaseGenerate,
		Kind:      KindUnsupportedType,
		Path:      []string{function, fmt.Sprintf("parameter %d", index)},
		GuestType: ctype,
		Detail:    fmt.Sprintf("unsupported parameter type %s", ctype),
	}
}

// RepackRequired creates an error for a pointer parameter that would need
// automatic repacking of its pointee
func RepackRequired(function string, index int, ctype string) *Error {
	return &Error{
		Phase:     PhaseGenerate,
		Kind:      KindRepackRequired,
		Path:      []string{function, fmt.Sprintf("parameter %d", index)},
		GuestType: ctype,
		Detail:    fmt.Sprintf("pointer parameter %s of function %s requires automatic repacking, which is not implemented yet", ctype, function),
	}
}

// UnannotatedPointer creates an error for a pointer parameter that cannot be
// unpacked without an annotation
func UnannotatedPointer(function string, index int, ctype string) *Error {
	return &Error{
		Phase:     PhaseGenerate,
		Kind:      KindUnannotatedPointer,
		Path:      []string{function, fmt.Sprintf("parameter %d", index)},
		GuestType: ctype,
		Detail:    fmt.Sprintf("cannot generate unpacking function for function %s with unannotated pointer parameter %s", function, ctype),
	}
}

// ArityUnsupported creates an error for a parameter count outside the
// supported set
func ArityUnsupported(function string, count int) *Error {
	return &Error{
		Phase:  PhaseAnalyze,
		Kind:   KindArity,
		Path:   []string{function},
		Detail: fmt.Sprintf("unsupported number of arguments (%d)", count),
		Value:  count,
	}
}

// IncompatibleLayout creates an error for an aggregate whose guest and host
// views cannot be reconciled
func IncompatibleLayout(typeName, member string, guestType, hostType string) *Error {
	return &Error{
		Phase:     PhaseLayout,
		Kind:      KindIncompatibleLayout,
		Path:      []string{typeName, member},
		GuestType: guestType,
		HostType:  hostType,
		Detail:    "layouts differ and no override is present",
	}
}

// Cycle creates an error for an unbreakable type dependency cycle
func Cycle(path []string) *Error {
	return &Error{
		Phase:  PhaseLayout,
		Kind:   KindCycle,
		Path:   path,
		Detail: "circular by-value dependency between aggregates",
	}
}

// Duplicate creates a duplicate registration error
func Duplicate(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindDuplicate,
		Detail: fmt.Sprintf("duplicate %s %q", what, name),
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// LibraryLoad creates an error for a failed library open
func LibraryLoad(library string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindLibraryLoad,
		Detail: fmt.Sprintf("open %s", library),
		Cause:  cause,
	}
}

// SymbolMissing creates an error for a single unresolved host symbol
func SymbolMissing(library, symbol string) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindSymbolMissing,
		Detail: fmt.Sprintf("symbol %q not resolved in %s", symbol, library),
	}
}

// InvalidState creates an error for a forbidden loader state transition
func InvalidState(phase Phase, from, to string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidState,
		Detail: fmt.Sprintf("invalid transition %s -> %s", from, to),
	}
}

// VersionMismatch creates an error for an unsupported manifest format version
func VersionMismatch(got, supported string) *Error {
	return &Error{
		Phase:  PhaseConfig,
		Kind:   KindVersionMismatch,
		Detail: fmt.Sprintf("format version %s not supported (want %s)", got, supported),
	}
}

// ParseFailed creates a parsing error
func ParseFailed(what string, cause error) *Error {
	return &Error{
		Phase:  PhaseParse,
		Kind:   KindSyntax,
		Detail: fmt.Sprintf("parse %s", what),
		Cause:  cause,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// MissingSymbol represents a single unresolved host symbol
type MissingSymbol struct {
	Library string // e.g., "libGL.so.1"
	Symbol  string // e.g., "glClearColor"
}

// MissingSymbolsError is returned when host library binding fails because
// one or more symbols could not be resolved
type MissingSymbolsError struct {
	Symbols []MissingSymbol
}

// NewMissingSymbolsError creates an error from a list of "library#symbol" strings
func NewMissingSymbolsError(symbols []string) *MissingSymbolsError {
	result := &MissingSymbolsError{
		Symbols: make([]MissingSymbol, 0, len(symbols)),
	}
	for _, sym := range symbols {
		lib, fn := parseSymbolKey(sym)
		result.Symbols = append(result.Symbols, MissingSymbol{
			Library: lib,
			Symbol:  fn,
		})
	}
	return result
}

func parseSymbolKey(key string) (library, symbol string) {
	lib, fn, found := strings.Cut(key, "#")
	if found {
		return lib, fn
	}
	return key, ""
}

// demangleCXX extracts a readable qualified name from an Itanium-mangled
// C++ symbol. Thunked libraries with C++ surfaces export these.
func demangleCXX(name string) string {
	// Itanium nested names start with _ZN
	if !strings.HasPrefix(name, "_ZN") {
		return name
	}

	// Extract path segments from the mangled name
	// Format: _ZN<len><name><len><name>...E<params>
	s := name[3:] // skip "_ZN"
	var parts []string

	for len(s) > 0 && s[0] != 'E' {
		// Read length (can be multiple digits)
		lenEnd := 0
		for lenEnd < len(s) && s[lenEnd] >= '0' && s[lenEnd] <= '9' {
			lenEnd++
		}
		if lenEnd == 0 {
			break
		}

		length := 0
		for i := 0; i < lenEnd; i++ {
			length = length*10 + int(s[i]-'0')
		}
		s = s[lenEnd:]

		if length > len(s) {
			break
		}

		parts = append(parts, s[:length])
		s = s[length:]
	}

	if len(parts) == 0 {
		return name
	}

	return strings.Join(parts, "::")
}

func (e *MissingSymbolsError) Error() string {
	if len(e.Symbols) == 0 {
		return "[load] symbol_missing: no symbols specified"
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("missing %d host symbol(s):\n", len(e.Symbols)))

	// Group by library for cleaner output
	byLib := make(map[string][]string)
	var libOrder []string
	for _, sym := range e.Symbols {
		if _, exists := byLib[sym.Library]; !exists {
			libOrder = append(libOrder, sym.Library)
		}
		fn := demangleCXX(sym.Symbol)
		byLib[sym.Library] = append(byLib[sym.Library], fn)
	}

	for _, lib := range libOrder {
		b.WriteString("\n  ")
		b.WriteString(lib)
		b.WriteString(":\n")
		for _, fn := range byLib[lib] {
			b.WriteString("    - ")
			b.WriteString(fn)
			b.WriteByte('\n')
		}
	}

	return strings.TrimSuffix(b.String(), "\n")
}

// Is reports whether target matches this error type
func (e *MissingSymbolsError) Is(target error) bool {
	_, ok := target.(*MissingSymbolsError)
	return ok
}
