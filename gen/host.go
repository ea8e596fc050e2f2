package gen

import (
	"fmt"
	"strings"

	"github.com/wippyai/thunkgen/analysis"
	"github.com/wippyai/thunkgen/cdecl"
	"github.com/wippyai/thunkgen/errors"
	"github.com/wippyai/thunkgen/layout"
)

// Host emits the host-side module: layout wrappers, loader symbol
// declarations, argument unpackers, the export table, and the library
// initializer. It fails when a signature cannot cross the boundary
// under the computed layouts.
func Host(api *analysis.API, set *layout.Set) ([]byte, error) {
	e := &emitter{}

	emitLayoutWrappers(e, set)

	// Forward declarations for symbols resolved from the native
	// library. These use the public signature; variadic functions keep
	// their ellipsis here and nowhere else.
	for _, f := range api.Functions {
		ellipsis := ""
		if f.Variadic {
			ellipsis = ", ..."
		}
		e.linef("using fexldr_type_%s_%s = auto (%s%s) -> %s;",
			api.Library, f.Name, declList(paramTypes(f.APIParams)), ellipsis, cdecl.CString(f.Ret))
		e.linef("static fexldr_type_%s_%s *fexldr_ptr_%s_%s;",
			api.Library, f.Name, api.Library, f.Name)
	}

	e.line(`extern "C" {`)
	for _, f := range api.Functions {
		if err := emitUnpacker(e, api, set, f); err != nil {
			return nil, err
		}
	}
	e.line("}")

	emitExports(e, api)
	emitLoader(e, api)
	emitAccessor(e, api)

	return e.bytes(), nil
}

func emitUnpacker(e *emitter, api *analysis.API, set *layout.Set, f *analysis.Function) error {
	lib := api.Library

	// Aborting stubs for callbacks the host must never invoke.
	for i, p := range f.Params {
		if p.Callback == nil || !p.Callback.Stub {
			continue
		}
		sig := p.Callback.Sig
		ellipsis := ""
		if sig.Variadic {
			ellipsis = ", ..."
		}
		e.linef("[[noreturn]] static %s fexfn_unpack_%sCBFN%d_stub(%s%s) {",
			cdecl.CString(sig.Ret), f.ThunkName, i, declList(sigTypes(sig.Params)), ellipsis)
		e.linef("  fprintf(stderr, \"FATAL: Attempted to invoke callback stub for %s\\n\");", f.ThunkName)
		e.line("  std::abort();")
		e.line("}")
	}

	// Forward declaration for the author-provided body. Passthrough
	// parameters arrive still wrapped.
	if f.CustomHostImpl {
		parts := make([]string, len(f.Params))
		for i, p := range f.Params {
			if p.Passthrough {
				parts[i] = fmt.Sprintf("guest_layout<%s> %s", cdecl.CString(p.Type), argName(i))
			} else {
				parts[i] = cdecl.FormatDecl(p.Type, argName(i))
			}
		}
		e.linef("static auto fexfn_impl_%s_%s(%s) -> %s;",
			lib, f.ThunkName, strings.Join(parts, ", "), cdecl.CString(f.Ret))
	}

	for i, p := range f.Params {
		if err := checkParamCrossing(set, f, i, p); err != nil {
			return err
		}
	}
	if err := checkReturnCrossing(set, f); err != nil {
		return err
	}

	// Packed argument record, one guest-laid-out slot per argument.
	structName := fmt.Sprintf("fexfn_packed_args_%s_%s", lib, f.ThunkName)
	e.linef("struct %s {", structName)
	for i, p := range f.Params {
		e.linef("  guest_layout<%s> a_%d;", typeName(p.Canon), i)
	}
	if !cdecl.IsVoid(f.RetCanon) {
		e.linef("  guest_layout<%s> rv;", typeName(f.RetCanon))
	} else if len(f.Params) == 0 {
		e.line("    char force_nonempty;")
	}
	e.line("};")

	target := fmt.Sprintf("fexldr_ptr_%s_%s", lib, f.ThunkName)
	if f.CustomHostImpl {
		target = fmt.Sprintf("fexfn_impl_%s_%s", lib, f.ThunkName)
	}

	e.linef("static void fexfn_unpack_%s_%s(%s* args) {", lib, f.ThunkName, structName)
	for i, p := range f.Params {
		needsLocal, err := conversionLocal(set, f, i, p)
		if err != nil {
			return err
		}
		if needsLocal {
			e.linef("  host_layout<%s> a_%d { args->a_%d };", typeName(p.Canon), i, i)
		}
	}

	args := make([]string, len(f.Params))
	for i, p := range f.Params {
		args[i] = callArg(f, i, p)
	}

	isVoid := cdecl.IsVoid(f.RetCanon)
	returnsFnPtr := cdecl.IsFunctionPointer(f.RetCanon)
	var call strings.Builder
	if !isVoid {
		call.WriteString("  args->rv = ")
		if !returnsFnPtr {
			// Function pointer results assign raw; the guest slot
			// truncates the address itself.
			fmt.Fprintf(&call, "to_guest(to_host_layout<%s>(", cdecl.CString(f.Ret))
		}
	}
	fmt.Fprintf(&call, "%s(%s)", target, strings.Join(args, ", "))
	if !isVoid && !returnsFnPtr {
		call.WriteString("))")
	}
	call.WriteString(";")
	e.line(call.String())
	e.line("}")
	return nil
}

// checkParamCrossing rejects pointer parameters whose pointee cannot
// cross unannotated: width-divergent void pointers, aggregates with
// irreconcilable layouts, and pointees that were never defined.
func checkParamCrossing(set *layout.Set, f *analysis.Function, idx int, p analysis.Param) error {
	if p.Passthrough || p.AssumeCompat || p.Callback != nil {
		return nil
	}
	ptr, ok := cdecl.Unqualified(p.Canon).(*cdecl.PointerType)
	if !ok {
		return nil
	}
	pointee := cdecl.Unqualified(ptr.Pointee)

	if cdecl.IsVoid(pointee) {
		if set.GuestArch.PointerWidth() != set.HostArch.PointerWidth() {
			return errors.UnsupportedParameter(f.ThunkName, idx, cdecl.CString(p.Canon))
		}
		return nil
	}

	named, ok := pointee.(*cdecl.NamedType)
	if !ok {
		return nil
	}
	tl, ok := set.Lookup(named.Name)
	if !ok || tl.Flags.AssumedCompatible {
		return nil
	}
	switch tl.Class {
	case layout.Opaque:
		return errors.IncompleteType(errors.PhaseGenerate,
			[]string{f.ThunkName, fmt.Sprintf("parameter %d", idx)}, cdecl.CString(p.Canon))
	case layout.Incompatible:
		if tl.Guest != nil && tl.Guest.Union {
			// Unions fall through to the unpack diagnostic.
			return nil
		}
		return errors.UnsupportedParameter(f.ThunkName, idx, cdecl.CString(p.Canon))
	}
	return nil
}

// checkReturnCrossing rejects by-value aggregate returns whose wrappers
// cannot convert.
func checkReturnCrossing(set *layout.Set, f *analysis.Function) error {
	named, ok := cdecl.Unqualified(f.RetCanon).(*cdecl.NamedType)
	if !ok {
		return nil
	}
	tl, ok := set.Lookup(named.Name)
	if !ok || tl.Flags.AssumedCompatible || tl.Enum {
		return nil
	}
	switch tl.Class {
	case layout.Opaque:
		return errors.IncompleteType(errors.PhaseGenerate,
			[]string{f.ThunkName, "return"}, cdecl.CString(f.RetCanon))
	case layout.Incompatible:
		return incompatibleLayoutError(tl)
	}
	return nil
}

// conversionLocal reports whether the unpacker declares a host_layout
// local for the parameter, or fails when no conversion exists.
func conversionLocal(set *layout.Set, f *analysis.Function, idx int, p analysis.Param) (bool, error) {
	if p.Callback != nil || p.Passthrough {
		// Callbacks convert at the call site; passthrough forwards raw.
		return false, nil
	}
	canon := cdecl.Unqualified(p.Canon)
	ptr, isPtr := canon.(*cdecl.PointerType)
	if !isPtr {
		// By-value crossing converts through the type's wrappers, which
		// must therefore exist.
		if named, ok := canon.(*cdecl.NamedType); ok {
			tl, found := set.Lookup(named.Name)
			if found && !tl.Flags.AssumedCompatible && !tl.Enum {
				switch tl.Class {
				case layout.Incompatible:
					return false, incompatibleLayoutError(tl)
				case layout.Opaque:
					return false, errors.IncompleteType(errors.PhaseGenerate,
						[]string{f.ThunkName, fmt.Sprintf("parameter %d", idx)}, cdecl.CString(p.Canon))
				}
			}
		}
		return true, nil
	}
	if p.AssumeCompat {
		return true, nil
	}

	pointee := cdecl.Unqualified(ptr.Pointee)
	switch pt := pointee.(type) {
	case *cdecl.BuiltinType:
		return true, nil
	case *cdecl.PointerType:
		// Multi-level pointers convert by width alone.
		return true, nil
	case *cdecl.NamedType:
		tl, found := set.Lookup(pt.Name)
		if !found || tl.Flags.AssumedCompatible || tl.Class == layout.Identical {
			return true, nil
		}
		if tl.Class == layout.Repackable {
			return false, errors.RepackRequired(f.ThunkName, idx, cdecl.CString(p.Canon))
		}
		return false, errors.UnannotatedPointer(f.ThunkName, idx, cdecl.CString(p.Canon))
	default:
		return true, nil
	}
}

func callArg(f *analysis.Function, idx int, p analysis.Param) string {
	if p.Callback != nil && p.Callback.Stub {
		return fmt.Sprintf("fexfn_unpack_%sCBFN%d_stub", f.ThunkName, idx)
	}
	if p.Callback != nil {
		ref := fmt.Sprintf("args->a_%d", idx)
		if f.CustomHostImpl {
			return fmt.Sprintf("(FinalizeHostTrampolineForGuestFunction(%s), %s)", ref, ref)
		}
		return fmt.Sprintf("(FinalizeHostTrampolineForGuestFunction(%s), (%s)(uint64_t { %s.data }))",
			ref, typeName(p.Canon), ref)
	}
	if p.Passthrough {
		return fmt.Sprintf("args->a_%d", idx)
	}
	return fmt.Sprintf("a_%d.data", idx)
}

func incompatibleLayoutError(tl *layout.TypeLayout) error {
	guestType, hostType := "", ""
	if tl.Guest != nil {
		if m := tl.Guest.Member(tl.BadMember); m != nil {
			guestType = cdecl.CString(m.Type)
		}
	}
	if tl.Host != nil {
		if m := tl.Host.Member(tl.BadMember); m != nil {
			hostType = cdecl.CString(m.Type)
		}
	}
	return errors.IncompatibleLayout(tl.Name, tl.BadMember, guestType, hostType)
}

// emitExports writes the null-terminated endpoint table: one entry per
// function, then one per distinct callback signature.
func emitExports(e *emitter, api *analysis.API) {
	e.line("static ExportEntry exports[] = {")
	for _, f := range api.Functions {
		h := FunctionHash(api.Library, f.ThunkName)
		e.linef("  {(uint8_t*)\"%s\", (void(*)(void *))&fexfn_unpack_%s_%s}, // %s:%s",
			escapeBytes(h), api.Library, f.ThunkName, api.Library, f.ThunkName)
	}
	for _, cb := range api.Callbacks {
		h := CallbackHash(cb.CStr)
		annotations := make([]string, len(cb.Sig.Params))
		for i := range cb.Sig.Params {
			annotations[i] = "ParameterAnnotations {}"
		}
		e.linef("  {(uint8_t*)\"%s\", (void(*)(void *))&GuestWrapperForHostFunction<%s>::Call<%s>}, // %s",
			escapeBytes(h), wrapperSignature(cb.Sig), strings.Join(annotations, ", "), cb.CStr)
	}
	e.line("  { nullptr, nullptr }")
	e.line("};")
}

func emitLoader(e *emitter, api *analysis.API) {
	lib := api.Library
	e.linef("static void* fexldr_ptr_%s_so;", lib)
	e.linef("extern \"C\" bool fexldr_init_%s() {", lib)
	// Load into the global namespace so preloaded or already-linked
	// copies win, matching how these libraries load natively.
	e.linef("  fexldr_ptr_%s_so = dlopen(\"%s\", RTLD_GLOBAL | RTLD_LAZY);", lib, api.SOName())
	e.linef("  if (!fexldr_ptr_%s_so) { return false; }", lib)
	e.line("")
	for _, f := range api.Functions {
		e.linef("  (void*&)fexldr_ptr_%s_%s = %s(fexldr_ptr_%s_so, \"%s\");",
			lib, f.Name, f.HostLoader, lib, f.Name)
	}
	e.line("  return true;")
	e.line("}")
}

// emitAccessor writes the runtime entry point. Initialization runs at
// most once; a failed load pins every later call to nullptr.
func emitAccessor(e *emitter, api *analysis.API) {
	lib := api.Library
	e.linef("extern \"C\" ExportEntry* fexthunks_exports_%s() {", lib)
	e.linef("  static bool init_ok = fexldr_init_%s();", lib)
	e.line("  if (!init_ok) {")
	e.line("    return nullptr;")
	e.line("  }")
	e.line("  return exports;")
	e.line("}")
}
