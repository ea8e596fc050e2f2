package gen

import (
	"github.com/wippyai/thunkgen/analysis"
	"github.com/wippyai/thunkgen/cdecl"
)

// Guest emits the guest-side module: hypercall markers, argument
// packers, public aliases, and the symbol enumerator. The output lands
// in a translation unit that supplies the MAKE_THUNK macro family and
// AllocateHostTrampolineForGuestFunction.
func Guest(api *analysis.API) []byte {
	e := &emitter{}

	// Transition points into the host, one per thunked symbol.
	e.line(`extern "C" {`)
	for _, f := range api.Functions {
		h := FunctionHash(api.Library, f.ThunkName)
		e.linef("MAKE_THUNK(%s, %s, \"%s\")", api.Library, f.ThunkName, thunkBytes(h))
	}
	e.line("}")

	// Transition points for invoking host function pointers by
	// signature. These are shared across libraries, hence no library
	// name in the hash.
	for i, cb := range api.Callbacks {
		h := CallbackHash(cb.CStr)
		e.linef("  // %s", cb.CStr)
		e.linef("  MAKE_CALLBACK_THUNK(callback_%d, %s, \"%s\");", i, cb.CStr, thunkBytes(h))
	}

	// Packing functions.
	e.line(`extern "C" {`)
	for _, f := range api.Functions {
		emitPacker(e, api, f)
	}
	e.line("}")

	// Public symbols equivalent to the native guest library's exports.
	e.line(`extern "C" {`)
	for _, f := range api.Functions {
		if f.CustomGuestEntry {
			continue
		}
		e.linef("__attribute__((alias(\"fexfn_pack_%s\"))) auto %s(%s) -> %s;",
			f.Name, f.Name, declList(paramTypes(f.APIParams)), cdecl.CString(f.Ret))
	}
	e.line("}")

	// Symbol enumerator. The second argument is reserved for symbol
	// version metadata.
	e.line("#define FOREACH_SYMBOL(EXPAND) \\")
	for _, f := range api.Functions {
		e.linef("  EXPAND(%s, \"TODO\") \\", f.Name)
	}
	e.line("")

	return e.bytes()
}

func emitPacker(e *emitter, api *analysis.API, f *analysis.Function) {
	isVoid := cdecl.IsVoid(f.RetCanon)

	// Trailing return type keeps function pointer returns readable.
	e.linef("FEX_PACKFN_LINKAGE auto fexfn_pack_%s(%s) -> %s {",
		f.ThunkName, declList(paramTypes(f.Params)), cdecl.CString(f.Ret))
	e.line("  struct {")
	for i, p := range f.Params {
		e.linef("    %s;", cdecl.FormatDecl(cdecl.Unqualified(p.Type), argName(i)))
	}
	if !isVoid {
		e.linef("    %s;", cdecl.FormatDecl(f.Ret, "rv"))
	} else if len(f.Params) == 0 {
		// An empty record would have size 0 in C but 1 in C++.
		e.line("    char force_nonempty;")
	}
	e.line("  } args;")

	for i, p := range f.Params {
		if p.Callback != nil && !p.Callback.Stub {
			// Guest function pointers cross wrapped in a host-callable
			// trampoline.
			e.linef("  args.a_%d = AllocateHostTrampolineForGuestFunction(a_%d);", i, i)
		} else {
			e.linef("  args.a_%d = a_%d;", i, i)
		}
	}
	e.linef("  fexthunks_%s_%s(&args);", api.Library, f.ThunkName)
	if !isVoid {
		e.line("  return args.rv;")
	}
	e.line("}")
}
