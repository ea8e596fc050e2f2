package gen

import (
	"github.com/wippyai/thunkgen/cdecl"
	"github.com/wippyai/thunkgen/layout"
)

// emitLayoutWrappers writes the guest_layout/host_layout/to_guest
// family for every classified type. The set is already ordered so
// by-value dependencies precede their containers; value containment
// cannot cycle in C, so ordering alone suffices.
func emitLayoutWrappers(e *emitter, set *layout.Set) {
	for _, tl := range set.Types {
		// Opaque handles cross as integers; no layout is spelled out.
		if tl.Class == layout.Opaque {
			continue
		}
		// Anonymous aggregates cannot be named in a specialization.
		if cdecl.IsAnonymous(tl.Name) {
			continue
		}
		if tl.Enum {
			emitEnumWrapper(e, tl)
			continue
		}
		if tl.Class == layout.Incompatible && (!tl.Flags.EmitLayoutWrappers || tl.Guest == nil || tl.Host == nil) {
			emitPoisonedWrapper(e, tl)
			continue
		}
		emitGuestWrapper(e, tl)
		emitHostWrapper(e, tl)
		emitToGuest(e, tl)
	}
}

// Enums carry in a fixed-size integer of the guest's underlying width.
func emitEnumWrapper(e *emitter, tl *layout.TypeLayout) {
	e.linef("template<>\nstruct guest_layout<%s> {", tl.Name)
	sign := "u"
	if tl.EnumSigned {
		sign = ""
	}
	e.linef("  using type = %sint%d_t;", sign, tl.GuestInfo.Size*8)
	e.line("  type data;")
	e.line("};")
}

// Specializing without a definition turns any use of the wrappers for
// this type into a compile error at the point of use.
func emitPoisonedWrapper(e *emitter, tl *layout.TypeLayout) {
	e.linef("template<>\nstruct guest_layout<%s>;", tl.Name)
	e.linef("template<>\nstruct host_layout<%s>;", tl.Name)
	e.linef("guest_layout<%s>& to_guest(const host_layout<%s>&) = delete;", tl.Name, tl.Name)
}

func emitGuestWrapper(e *emitter, tl *layout.TypeLayout) {
	e.linef("template<>\nstruct guest_layout<%s> {", tl.Name)
	if tl.Class == layout.Identical {
		e.linef("  using type = %s;", tl.Name)
	} else {
		e.line("  struct type {")
		for _, m := range tl.Guest.Members {
			e.linef("    guest_layout<%s> %s;", cdecl.CString(m.Type), m.Name)
		}
		e.line("  };")
	}
	e.line("  type data;")
	e.line("};")

	e.linef("template<>\nstruct guest_layout<const %s> : guest_layout<%s> {", tl.Name, tl.Name)
	e.linef("  guest_layout& operator=(const guest_layout<%s>& other) { memcpy(this, &other, sizeof(other)); return *this; }", tl.Name)
	e.line("};")
}

func emitHostWrapper(e *emitter, tl *layout.TypeLayout) {
	e.line("template<>")
	e.linef("struct host_layout<%s> {", tl.Name)
	e.linef("  using type = %s;", tl.Name)
	e.line("  type data;")
	e.line("")
	e.linef("  host_layout(const guest_layout<%s>& from) :", tl.Name)
	if tl.Class == layout.Identical {
		e.line("    data { from.data } {")
	} else {
		// Initializer-list conversion detects unintended narrowing;
		// array members copy element-wise in the body.
		e.line("    data {")
		for _, m := range tl.Host.Members {
			emitHostCtorField(e, m, true)
		}
		e.line("    } {")
		for _, m := range tl.Host.Members {
			emitHostCtorField(e, m, false)
		}
	}
	e.line("  }")
	e.line("};")
	e.line("")
}

func emitHostCtorField(e *emitter, m layout.MemberInfo, skipArrays bool) {
	arr, isArray := arrayOf(m.Type)
	switch {
	case !isArray && skipArrays:
		if cdecl.IsFunctionPointer(m.Type) {
			// Function pointers need manual handling; zero them out.
			e.linef("      .%s { },", m.Name)
		} else {
			e.linef("      .%s = host_layout<%s> { from.data.%s }.data,", m.Name, cdecl.CString(m.Type), m.Name)
		}
	case isArray && !skipArrays:
		e.linef("      for (size_t i = 0; i < %d; ++i) {", arr.Len)
		e.linef("        data.%s[i] = host_layout<%s> { from.data.%s }.data[i];", m.Name, cdecl.CString(m.Type), m.Name)
		e.line("      }")
	}
}

func emitToGuest(e *emitter, tl *layout.TypeLayout) {
	e.linef("inline guest_layout<%s> to_guest(const host_layout<%s>& from) {", tl.Name, tl.Name)
	if tl.Class == layout.Identical {
		e.linef("  guest_layout<%s> ret;", tl.Name)
		e.line("  static_assert(sizeof(from) == sizeof(ret));")
		e.line("  memcpy(&ret, &from, sizeof(from));")
	} else {
		e.linef("  guest_layout<%s> ret { .data {", tl.Name)
		for _, m := range tl.Guest.Members {
			emitToGuestField(e, m, true)
		}
		e.line("  } };")
		for _, m := range tl.Guest.Members {
			emitToGuestField(e, m, false)
		}
	}
	e.line("  return ret;")
	e.line("}")
	e.line("")
}

func emitToGuestField(e *emitter, m layout.MemberInfo, skipArrays bool) {
	arr, isArray := arrayOf(m.Type)
	switch {
	case !isArray && skipArrays:
		if cdecl.IsFunctionPointer(m.Type) {
			e.linef("    .%s { },", m.Name)
		} else {
			e.linef("    .%s = to_guest(to_host_layout(from.data.%s)),", m.Name, m.Name)
		}
	case isArray && !skipArrays:
		e.linef("    for (size_t i = 0; i < %d; ++i) {", arr.Len)
		e.linef("      ret.data.%s.data[i] = to_guest(to_host_layout(from.data.%s[i]));", m.Name, m.Name)
		e.line("    }")
	}
}

func arrayOf(t cdecl.Type) (*cdecl.ArrayType, bool) {
	arr, ok := cdecl.Unqualified(t).(*cdecl.ArrayType)
	return arr, ok
}
