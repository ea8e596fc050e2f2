package analysis

import (
	"strconv"

	"github.com/wippyai/thunkgen/cdecl"
)

// TypeFlags are the type-level annotation overrides that steer layout
// classification and wrapper emission.
type TypeFlags struct {
	// AssumedCompatible treats the type as layout-identical across guest
	// and host without verification.
	AssumedCompatible bool
	// PointersOnly marks an opaque type that may only be referenced
	// behind pointers.
	PointersOnly bool
	// EmitLayoutWrappers forces wrapper emission even when the type is
	// classified incompatible.
	EmitLayoutWrappers bool
}

// TrackedType is one named type referenced by the thunked interface.
type TrackedType struct {
	Name  string
	Flags TypeFlags
}

// Callback describes a function-pointer parameter crossing the thunk
// boundary.
type Callback struct {
	Sig *cdecl.FunctionType
	// Stub callbacks never cross: the host receives an aborting stub
	// instead of a trampoline.
	Stub bool
}

// Param is one parameter of a thunked function.
type Param struct {
	Name  string
	Type  cdecl.Type // written spelling
	Canon cdecl.Type // canonical form

	// Passthrough forwards the raw guest pointer without conversion.
	Passthrough bool
	// AssumeCompat treats the pointee layout as identical without
	// verification.
	AssumeCompat bool
	// Callback is set when the canonical type is a function pointer.
	Callback *Callback
}

// Function is one function marked for thunking.
type Function struct {
	// Name is the public symbol exported by the guest library.
	Name string
	// ThunkName names the packing and unpacking symbols. It differs
	// from Name only for variadic functions, which thunk through
	// <name>_internal.
	ThunkName string

	Ret      cdecl.Type
	RetCanon cdecl.Type

	// Params is the thunked parameter list. For variadic functions it
	// carries the promoted count and argument-array parameters.
	Params []Param
	// APIParams is the parameter list as declared. It feeds the public
	// alias and the host symbol declaration.
	APIParams []Param
	// Variadic records a trailing ellipsis on the declaration.
	Variadic bool

	CustomHostImpl      bool
	CustomGuestEntry    bool
	ReturnsGuestPointer bool
	UniformVaType       cdecl.Type

	// HostLoader names the resolver the generated loader calls for this
	// symbol. There is no annotation surface for it yet; every function
	// resolves through dlsym_default.
	HostLoader string

	Line int
}

// CallbackSignature is one distinct function-pointer signature that
// needs a guest-callable trampoline entry.
type CallbackSignature struct {
	Sig *cdecl.FunctionType
	// CStr is the canonical C spelling, e.g. "void (int, char *)". It
	// names the signature in generated comments and hash inputs.
	CStr string
}

// API is the analyzed thunk interface of one library.
type API struct {
	// Library is the symbol-safe library name, dashes replaced by
	// underscores.
	Library string
	// LibFilename is the library name as given; it forms the host
	// library filename.
	LibFilename string
	// Version selects <LibFilename>.so.<Version> at load time.
	Version *int64

	Functions []*Function
	Callbacks []*CallbackSignature
	Types     []*TrackedType

	functions       map[string]*Function
	types           map[string]*TrackedType
	callbacks       map[string]*CallbackSignature
	typeConfigured  map[string]bool
	paramConfigured map[string]bool
}

// Function looks up a thunked function by public name.
func (a *API) Function(name string) (*Function, bool) {
	fn, ok := a.functions[name]
	return fn, ok
}

// Type looks up a tracked type by name.
func (a *API) Type(name string) (*TrackedType, bool) {
	t, ok := a.types[name]
	return t, ok
}

// SOName returns the host library filename honoring the version
// annotation, e.g. "libGL.so.1".
func (a *API) SOName() string {
	name := a.LibFilename + ".so"
	if a.Version != nil {
		name += "." + strconv.FormatInt(*a.Version, 10)
	}
	return name
}
