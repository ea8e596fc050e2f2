package analysis

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wippyai/thunkgen/abi"
	"github.com/wippyai/thunkgen/cdecl"
	"github.com/wippyai/thunkgen/errors"
)

// Analyze validates the configuration records in tu and builds the
// thunked API model for libname. Functions appear in declaration order,
// types and callback signatures in first-reference order, so repeated
// runs over the same input produce identical models.
func Analyze(tu *cdecl.TranslationUnit, libname string) (*API, error) {
	api := &API{
		Library:         sanitizeLibName(libname),
		LibFilename:     libname,
		functions:       make(map[string]*Function),
		types:           make(map[string]*TrackedType),
		callbacks:       make(map[string]*CallbackSignature),
		typeConfigured:  make(map[string]bool),
		paramConfigured: make(map[string]bool),
	}

	// Function configs are indexed first so that function order follows
	// the declarations, not the configuration records. Parameter configs
	// are deferred until every function is built.
	configs := make(map[string]*cdecl.ConfigDecl)
	var paramConfigs []*cdecl.ConfigDecl
	for _, cfg := range tu.Configs {
		switch cfg.Kind {
		case cdecl.ConfigFunction:
			if _, ok := configs[cfg.Target]; ok {
				return nil, errors.Duplicate(errors.PhaseAnalyze, "function configuration", cfg.Target)
			}
			if _, ok := tu.Function(cfg.Target); !ok {
				return nil, errors.NotFound(errors.PhaseAnalyze, "function", cfg.Target)
			}
			configs[cfg.Target] = cfg
		case cdecl.ConfigType:
			if err := api.applyTypeConfig(tu, cfg); err != nil {
				return nil, err
			}
		case cdecl.ConfigParam:
			paramConfigs = append(paramConfigs, cfg)
		}
	}

	for _, decl := range tu.Functions {
		cfg, ok := configs[decl.Name]
		if !ok {
			continue
		}
		fn, err := api.buildFunction(tu, decl, cfg)
		if err != nil {
			return nil, err
		}
		api.Functions = append(api.Functions, fn)
		api.functions[fn.Name] = fn
	}

	for _, cfg := range paramConfigs {
		if err := api.applyParamConfig(tu, cfg); err != nil {
			return nil, err
		}
	}

	for _, fn := range api.Functions {
		api.collectTypes(fn.RetCanon)
		for i := range fn.Params {
			api.collectTypes(fn.Params[i].Canon)
		}
	}

	return api, nil
}

func (api *API) buildFunction(tu *cdecl.TranslationUnit, decl *cdecl.FunctionDecl, cfg *cdecl.ConfigDecl) (*Function, error) {
	fn := &Function{
		Name:       decl.Name,
		ThunkName:  decl.Name,
		Ret:        decl.Ret,
		Variadic:   decl.Variadic,
		HostLoader: "dlsym_default",
		Line:       decl.Line,
	}

	var stubCallbacks bool
	for _, base := range cfg.Bases {
		switch annotationName(base) {
		case "custom_host_impl":
			fn.CustomHostImpl = true
		case "custom_guest_entrypoint":
			fn.CustomGuestEntry = true
		case "returns_guest_pointer":
			fn.ReturnsGuestPointer = true
		case "callback_stub":
			stubCallbacks = true
		default:
			return nil, errors.UnknownAnnotation([]string{cfg.Kind.String(), decl.Name}, base)
		}
	}

	for _, m := range cfg.Members {
		switch m.Name {
		case "version":
			if m.Kind != cdecl.ConfigValue {
				return nil, errors.InvalidInput(errors.PhaseAnalyze,
					fmt.Sprintf("version of %s must be an integer member", decl.Name))
			}
			if api.Version != nil && *api.Version != m.Value {
				return nil, errors.Duplicate(errors.PhaseAnalyze, "library version", strconv.FormatInt(m.Value, 10))
			}
			v := m.Value
			api.Version = &v
		case "uniform_va_type":
			if m.Kind != cdecl.ConfigAlias {
				return nil, errors.InvalidInput(errors.PhaseAnalyze,
					fmt.Sprintf("uniform_va_type of %s must be a type alias member", decl.Name))
			}
			fn.UniformVaType = m.Type
		default:
			return nil, errors.UnknownMember([]string{cfg.Kind.String(), decl.Name}, m.Name)
		}
	}

	retCanon, err := tu.Canonical(decl.Ret)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseAnalyze, errors.KindNotFound, err,
			fmt.Sprintf("return type of %s", decl.Name))
	}
	fn.RetCanon = retCanon

	// Raw guest function pointers cannot be converted on return. The
	// annotation is the author's assertion that the caller copes.
	if cdecl.IsFunctionPointer(retCanon) && !fn.ReturnsGuestPointer {
		return nil, errors.New(errors.PhaseAnalyze, errors.KindUnsupportedType).
			Path(decl.Name).
			GuestType(cdecl.CString(decl.Ret)).
			Detail("function %s returns a function pointer and must be annotated returns_guest_pointer", decl.Name).
			Build()
	}

	fn.APIParams = make([]Param, len(decl.Params))
	for i, p := range decl.Params {
		canon, err := tu.Canonical(p.Type)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseAnalyze, errors.KindNotFound, err,
				fmt.Sprintf("parameter %d of %s", i, decl.Name))
		}
		fn.APIParams[i] = Param{Name: p.Name, Type: p.Type, Canon: canon}
	}

	fn.Params = make([]Param, len(fn.APIParams), len(fn.APIParams)+2)
	copy(fn.Params, fn.APIParams)

	if decl.Variadic {
		if fn.UniformVaType == nil {
			return nil, errors.New(errors.PhaseAnalyze, errors.KindUnsupportedType).
				Path(decl.Name).
				Detail("variadic function %s requires a uniform_va_type annotation", decl.Name).
				Build()
		}
		vaCanon, err := tu.Canonical(fn.UniformVaType)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseAnalyze, errors.KindNotFound, err,
				fmt.Sprintf("uniform_va_type of %s", decl.Name))
		}
		// The public variadic entry point cannot be generated: the guest
		// wrapper materializes the vararg list by hand and the host
		// implementation expands the array again.
		fn.ThunkName = decl.Name + "_internal"
		fn.CustomGuestEntry = true
		fn.CustomHostImpl = true
		fn.Params = append(fn.Params,
			Param{
				Name:  "count",
				Type:  &cdecl.BuiltinType{Kind: abi.ULong},
				Canon: &cdecl.BuiltinType{Kind: abi.ULong},
			},
			Param{
				Name:  "args",
				Type:  &cdecl.PointerType{Pointee: fn.UniformVaType},
				Canon: &cdecl.PointerType{Pointee: vaCanon},
			},
		)
	}

	if !abi.ArityAllowed(len(fn.Params)) {
		return nil, errors.ArityUnsupported(decl.Name, len(fn.Params))
	}

	for i := range fn.Params {
		p := &fn.Params[i]
		ptr, ok := cdecl.Unqualified(p.Canon).(*cdecl.PointerType)
		if !ok {
			continue
		}
		ft, ok := ptr.Pointee.(*cdecl.FunctionType)
		if !ok {
			continue
		}
		p.Callback = &Callback{Sig: ft, Stub: stubCallbacks}
		if stubCallbacks {
			continue
		}
		if _, err := api.registerCallback(tu, ft); err != nil {
			return nil, err
		}
	}

	if fn.ReturnsGuestPointer {
		if ptr, ok := cdecl.Unqualified(retCanon).(*cdecl.PointerType); ok {
			if ft, ok := ptr.Pointee.(*cdecl.FunctionType); ok {
				if _, err := api.registerCallback(tu, ft); err != nil {
					return nil, err
				}
			}
		}
	}

	return fn, nil
}

func (api *API) applyTypeConfig(tu *cdecl.TranslationUnit, cfg *cdecl.ConfigDecl) error {
	canon, err := tu.Canonical(cfg.TargetType)
	if err != nil {
		return errors.Wrap(errors.PhaseAnalyze, errors.KindNotFound, err, "type configuration")
	}

	// A function type registers a callback signature that is not bound
	// to any particular parameter.
	if ft, ok := canon.(*cdecl.FunctionType); ok {
		if len(cfg.Bases) > 0 {
			return errors.UnknownAnnotation([]string{cfg.Kind.String(), cdecl.CString(ft)}, cfg.Bases[0])
		}
		if len(cfg.Members) > 0 {
			return errors.UnknownMember([]string{cfg.Kind.String(), cdecl.CString(ft)}, cfg.Members[0].Name)
		}
		_, err := api.registerCallback(tu, ft)
		return err
	}

	nt, ok := canon.(*cdecl.NamedType)
	if !ok {
		return errors.InvalidInput(errors.PhaseAnalyze,
			fmt.Sprintf("type configuration must name a record, enum, or function type, got %s", cdecl.CString(canon)))
	}

	var flags TypeFlags
	for _, base := range cfg.Bases {
		switch annotationName(base) {
		case "opaque_type":
			flags.AssumedCompatible = true
			flags.PointersOnly = true
		case "assume_compatible_data_layout":
			flags.AssumedCompatible = true
		case "emit_layout_wrappers":
			flags.EmitLayoutWrappers = true
		default:
			return errors.UnknownAnnotation([]string{cfg.Kind.String(), nt.Name}, base)
		}
	}
	if len(cfg.Members) > 0 {
		return errors.UnknownMember([]string{cfg.Kind.String(), nt.Name}, cfg.Members[0].Name)
	}

	if api.typeConfigured[nt.Name] {
		return errors.Duplicate(errors.PhaseAnalyze, "type configuration", nt.Name)
	}
	api.typeConfigured[nt.Name] = true

	if existing, ok := api.types[nt.Name]; ok {
		existing.Flags = flags
		return nil
	}
	tt := &TrackedType{Name: nt.Name, Flags: flags}
	api.types[nt.Name] = tt
	api.Types = append(api.Types, tt)
	return nil
}

func (api *API) applyParamConfig(tu *cdecl.TranslationUnit, cfg *cdecl.ConfigDecl) error {
	fn, ok := api.functions[cfg.Target]
	if !ok {
		return errors.NotFound(errors.PhaseAnalyze, "thunked function", cfg.Target)
	}
	path := []string{cfg.Kind.String(), fn.Name, fmt.Sprintf("parameter %d", cfg.ParamIndex)}

	if cfg.ParamIndex < 0 || cfg.ParamIndex >= len(fn.APIParams) {
		return errors.InvalidInput(errors.PhaseAnalyze,
			fmt.Sprintf("parameter index %d out of range for %s", cfg.ParamIndex, fn.Name))
	}
	key := fmt.Sprintf("%s#%d", fn.Name, cfg.ParamIndex)
	if api.paramConfigured[key] {
		return errors.Duplicate(errors.PhaseAnalyze, "parameter configuration", key)
	}
	api.paramConfigured[key] = true

	p := &fn.Params[cfg.ParamIndex]

	declared, err := tu.Canonical(cfg.TargetType)
	if err != nil {
		return errors.Wrap(errors.PhaseAnalyze, errors.KindNotFound, err, "parameter configuration")
	}
	if cdecl.CString(declared) != cdecl.CString(p.Canon) {
		return errors.New(errors.PhaseAnalyze, errors.KindInvalidInput).
			Path(path...).
			GuestType(cdecl.CString(p.Canon)).
			Detail("configuration names type %s, parameter is %s", cdecl.CString(declared), cdecl.CString(p.Canon)).
			Build()
	}

	_, isPointer := cdecl.Unqualified(p.Canon).(*cdecl.PointerType)
	for _, base := range cfg.Bases {
		name := annotationName(base)
		switch name {
		case "ptr_passthrough":
			p.Passthrough = true
		case "assume_compatible_data_layout":
			p.AssumeCompat = true
		default:
			return errors.UnknownAnnotation(path, base)
		}
		if !isPointer {
			return errors.InvalidInput(errors.PhaseAnalyze,
				fmt.Sprintf("%s on parameter %d of %s requires a pointer type", name, cfg.ParamIndex, fn.Name))
		}
	}
	if len(cfg.Members) > 0 {
		return errors.UnknownMember(path, cfg.Members[0].Name)
	}
	return nil
}

// registerCallback records a distinct function-pointer signature. The
// canonical spelling is the identity: two parameters sharing a spelling
// share the trampoline entry.
func (api *API) registerCallback(tu *cdecl.TranslationUnit, ft *cdecl.FunctionType) (*CallbackSignature, error) {
	canon, err := tu.Canonical(ft)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseAnalyze, errors.KindNotFound, err, "callback signature")
	}
	cft := canon.(*cdecl.FunctionType)

	if cft.Variadic {
		return nil, errors.New(errors.PhaseAnalyze, errors.KindUnsupportedType).
			GuestType(cdecl.CString(cft)).
			Detail("variadic function pointer %s is only supported as a callback stub", cdecl.CString(cft)).
			Build()
	}
	if !abi.ArityAllowed(len(cft.Params)) {
		return nil, errors.ArityUnsupported(cdecl.CString(cft), len(cft.Params))
	}

	cstr := cdecl.CString(cft)
	if cb, ok := api.callbacks[cstr]; ok {
		return cb, nil
	}
	cb := &CallbackSignature{Sig: cft, CStr: cstr}
	api.callbacks[cstr] = cb
	api.Callbacks = append(api.Callbacks, cb)

	api.collectTypes(cft.Ret)
	for _, p := range cft.Params {
		api.collectTypes(p.Type)
	}
	return cb, nil
}

// collectTypes registers every named type reachable from t through
// qualifiers, pointers, arrays, and signatures. Walking record members
// is the layout package's concern.
func (api *API) collectTypes(t cdecl.Type) {
	switch tt := t.(type) {
	case *cdecl.ConstType:
		api.collectTypes(tt.Inner)
	case *cdecl.PointerType:
		api.collectTypes(tt.Pointee)
	case *cdecl.ArrayType:
		api.collectTypes(tt.Elem)
	case *cdecl.FunctionType:
		api.collectTypes(tt.Ret)
		for _, p := range tt.Params {
			api.collectTypes(p.Type)
		}
	case *cdecl.NamedType:
		if _, ok := api.types[tt.Name]; ok {
			return
		}
		reg := &TrackedType{Name: tt.Name}
		api.types[tt.Name] = reg
		api.Types = append(api.Types, reg)
	}
}

func annotationName(base string) string {
	return strings.TrimPrefix(base, "fexgen::")
}

func sanitizeLibName(name string) string {
	return strings.ReplaceAll(name, "-", "_")
}
