package layout

import (
	"fmt"

	"github.com/wippyai/thunkgen/abi"
	"github.com/wippyai/thunkgen/analysis"
	"github.com/wippyai/thunkgen/cdecl"
	"github.com/wippyai/thunkgen/errors"
)

// Classification buckets a type by how its guest and host layouts
// relate.
type Classification int

const (
	// Identical types reinterpret bit-exactly across the views.
	Identical Classification = iota
	// Repackable types convert with a field-wise copy keyed by member
	// name.
	Repackable
	// Incompatible types have no automatic conversion.
	Incompatible
	// Opaque types are declared but not defined in at least one view and
	// are only usable behind annotated pointers.
	Opaque
)

func (c Classification) String() string {
	switch c {
	case Identical:
		return "identical"
	case Repackable:
		return "repackable"
	case Incompatible:
		return "incompatible"
	case Opaque:
		return "opaque"
	default:
		return fmt.Sprintf("classification(%d)", int(c))
	}
}

// TypeLayout is the cross-view verdict for one named type.
type TypeLayout struct {
	Name  string
	Class Classification
	Flags analysis.TypeFlags

	GuestInfo abi.Info
	HostInfo  abi.Info

	// Guest and Host hold the per-view record layouts. Both are nil for
	// enums and opaque types.
	Guest *RecordLayout
	Host  *RecordLayout

	// Enum marks enumerations, which convert through their underlying
	// integer.
	Enum       bool
	EnumSigned bool

	// BadMember names the member that forced Incompatible, when a single
	// member did.
	BadMember string
}

// Set is the layout universe of one interface: every named type
// reachable from the thunked API, classified under a guest/host
// architecture pair and ordered so by-value dependencies precede their
// containers.
type Set struct {
	Types []*TypeLayout

	GuestArch abi.Arch
	HostArch  abi.Arch

	guestTU *cdecl.TranslationUnit
	hostTU  *cdecl.TranslationUnit
	guest   *Calculator
	host    *Calculator
	flags   map[string]analysis.TypeFlags
	byName  map[string]*TypeLayout
	walking map[string]bool
}

// Lookup returns the layout verdict for a named type.
func (s *Set) Lookup(name string) (*TypeLayout, bool) {
	tl, ok := s.byName[name]
	return tl, ok
}

// Compute classifies every type the API references under the given
// architecture pair. The guest view decides member spellings; both
// views must agree for a type to be Identical.
func Compute(guestTU, hostTU *cdecl.TranslationUnit, api *analysis.API, guestArch, hostArch abi.Arch) (*Set, error) {
	s := &Set{
		GuestArch: guestArch,
		HostArch:  hostArch,
		guestTU:   guestTU,
		hostTU:    hostTU,
		guest:     NewCalculator(guestTU, guestArch),
		host:      NewCalculator(hostTU, hostArch),
		flags:     make(map[string]analysis.TypeFlags),
		byName:    make(map[string]*TypeLayout),
		walking:   make(map[string]bool),
	}

	// Seed with the types the analyzer saw in signatures, then close
	// over by-value members from the guest view. Repacking a container
	// references each member's wrapper, so members need verdicts too.
	names := make([]string, 0, len(api.Types))
	seen := make(map[string]bool, len(api.Types))
	for _, t := range api.Types {
		s.flags[t.Name] = t.Flags
		names = append(names, t.Name)
		seen[t.Name] = true
	}
	for i := 0; i < len(names); i++ {
		if s.flags[names[i]].PointersOnly {
			continue
		}
		rec, ok := guestTU.Record(names[i])
		if !ok || !rec.Defined {
			continue
		}
		for _, m := range rec.Members {
			canon, err := guestTU.Canonical(m.Type)
			if err != nil {
				return nil, errors.Wrap(errors.PhaseLayout, errors.KindNotFound, err,
					fmt.Sprintf("member %s.%s", names[i], m.Name))
			}
			for _, dep := range valueDeps(canon) {
				if !seen[dep] {
					seen[dep] = true
					names = append(names, dep)
				}
			}
		}
	}

	for _, name := range names {
		if _, err := s.ensure(name); err != nil {
			return nil, err
		}
	}

	s.sortTypes()
	return s, nil
}

func (s *Set) ensure(name string) (*TypeLayout, error) {
	if tl, ok := s.byName[name]; ok {
		return tl, nil
	}
	s.walking[name] = true
	tl, err := s.classify(name)
	delete(s.walking, name)
	if err != nil {
		return nil, err
	}
	s.byName[name] = tl
	s.Types = append(s.Types, tl)
	return tl, nil
}

func (s *Set) classify(name string) (*TypeLayout, error) {
	tl := &TypeLayout{Name: name, Flags: s.flags[name]}

	// Pointer-only types are opaque handles; no layout is computed.
	if tl.Flags.PointersOnly {
		tl.Class = Opaque
		return tl, nil
	}

	if _, ok := s.guestTU.Enum(name); ok {
		return s.classifyEnum(tl)
	}

	grec, gok := s.guestTU.Record(name)
	hrec, hok := s.hostTU.Record(name)
	switch {
	case !gok && !hok:
		return nil, errors.NotFound(errors.PhaseLayout, "type", name)
	case !gok || !hok:
		// The name resolves in only one view.
		tl.Class = Incompatible
		return tl, nil
	case !grec.Defined || !hrec.Defined:
		tl.Class = Opaque
		return tl, nil
	}

	gl, err := s.guest.Record(name)
	if err != nil {
		return nil, err
	}
	hl, err := s.host.Record(name)
	if err != nil {
		return nil, err
	}
	tl.Guest, tl.Host = gl, hl
	tl.GuestInfo, tl.HostInfo = gl.Info, hl.Info

	if tl.Flags.AssumedCompatible {
		tl.Class = Identical
		return tl, nil
	}

	class, bad, err := s.compareRecords(gl, hl)
	if err != nil {
		return nil, err
	}
	tl.Class, tl.BadMember = class, bad
	return tl, nil
}

func (s *Set) classifyEnum(tl *TypeLayout) (*TypeLayout, error) {
	if _, ok := s.hostTU.Enum(tl.Name); !ok {
		tl.Class = Incompatible
		return tl, nil
	}
	tl.Enum = true

	gk, err := s.guest.EnumUnderlying(tl.Name)
	if err != nil {
		return nil, err
	}
	hk, err := s.host.EnumUnderlying(tl.Name)
	if err != nil {
		return nil, err
	}
	named := &cdecl.NamedType{Name: tl.Name}
	if tl.GuestInfo, err = s.guest.TypeInfo(named); err != nil {
		return nil, err
	}
	if tl.HostInfo, err = s.host.TypeInfo(named); err != nil {
		return nil, err
	}
	tl.EnumSigned = gk.IsSigned()

	if tl.Flags.AssumedCompatible ||
		(tl.GuestInfo == tl.HostInfo && gk.IsSigned() == hk.IsSigned()) {
		tl.Class = Identical
	} else {
		tl.Class = Repackable
	}
	return tl, nil
}

// compareRecords decides how two views of one record relate. The
// returned string names the member that forced Incompatible, if one
// did.
func (s *Set) compareRecords(g, h *RecordLayout) (Classification, string, error) {
	// Bit-exact identity: equal totals and, positionally, equal member
	// names, offsets, and recursively identical member types.
	if g.Info == h.Info && len(g.Members) == len(h.Members) && g.Union == h.Union {
		identical := true
		for i := range g.Members {
			gm, hm := &g.Members[i], &h.Members[i]
			if gm.Name != hm.Name || gm.Offset != hm.Offset || gm.Info != hm.Info {
				identical = false
				break
			}
			mc, err := s.typePairClass(gm.Canon, hm.Canon, []string{g.Name, gm.Name})
			if err != nil {
				return 0, "", err
			}
			if mc != Identical {
				identical = false
				break
			}
		}
		if identical {
			return Identical, "", nil
		}
	}

	// Unions convert bit-exactly or not at all; a field-wise copy would
	// write overlapping storage once per member.
	if g.Union || h.Union {
		return Incompatible, "", nil
	}

	if len(g.Members) != len(h.Members) {
		return Incompatible, "", nil
	}
	for i := range g.Members {
		gm := &g.Members[i]
		hm := h.Member(gm.Name)
		if gm.Name == "" || hm == nil {
			return Incompatible, gm.Name, nil
		}
		mc, err := s.typePairClass(gm.Canon, hm.Canon, []string{g.Name, gm.Name})
		if err != nil {
			return 0, "", err
		}
		if mc != Identical && mc != Repackable {
			return Incompatible, gm.Name, nil
		}
		// Repacking spells guest_layout<M> per member; synthesized names
		// for anonymous types cannot appear in source.
		if anonByValue(gm.Canon) {
			return Incompatible, gm.Name, nil
		}
	}
	return Repackable, "", nil
}

// typePairClass relates a guest member type to its host counterpart.
// path carries the container and member names for diagnostics.
func (s *Set) typePairClass(g, h cdecl.Type, path []string) (Classification, error) {
	g = cdecl.Unqualified(g)
	h = cdecl.Unqualified(h)

	switch gt := g.(type) {
	case *cdecl.BuiltinType:
		ht, ok := h.(*cdecl.BuiltinType)
		if !ok {
			return Incompatible, nil
		}
		if gt.Kind == ht.Kind {
			if s.GuestArch.BuiltinInfo(gt.Kind) == s.HostArch.BuiltinInfo(ht.Kind) {
				return Identical, nil
			}
			return Repackable, nil
		}
		if gt.Kind.IsInteger() && ht.Kind.IsInteger() {
			return Repackable, nil
		}
		return Incompatible, nil

	case *cdecl.PointerType:
		ht, ok := h.(*cdecl.PointerType)
		if !ok {
			return Incompatible, nil
		}
		gp := cdecl.Unqualified(gt.Pointee)
		hp := cdecl.Unqualified(ht.Pointee)
		// Guest function pointers hold trampoline addresses the host must
		// not call directly; the conversion zero-fills them.
		if _, fn := gp.(*cdecl.FunctionType); fn {
			if _, fn2 := hp.(*cdecl.FunctionType); !fn2 {
				return Incompatible, nil
			}
			return Repackable, nil
		}
		full, err := s.pointeeCompatible(gp, hp, path)
		if err != nil {
			return 0, err
		}
		if !full {
			return Incompatible, nil
		}
		if s.GuestArch.PointerWidth() == s.HostArch.PointerWidth() {
			return Identical, nil
		}
		return Repackable, nil

	case *cdecl.ArrayType:
		ht, ok := h.(*cdecl.ArrayType)
		if !ok || gt.Len != ht.Len {
			return Incompatible, nil
		}
		return s.typePairClass(gt.Elem, ht.Elem, path)

	case *cdecl.NamedType:
		ht, ok := h.(*cdecl.NamedType)
		if !ok || ht.Name != gt.Name {
			return Incompatible, nil
		}
		dep, err := s.ensure(gt.Name)
		if err != nil {
			return 0, err
		}
		if dep.Class == Identical || dep.Class == Repackable {
			return dep.Class, nil
		}
		return Incompatible, nil
	}
	return Incompatible, nil
}

// pointeeCompatible reports whether data behind a pointer member can
// cross raw. A field-wise repack converts the pointer value but never
// what it points at, so a pointee that would itself need conversion
// poisons the container.
func (s *Set) pointeeCompatible(g, h cdecl.Type, path []string) (bool, error) {
	switch gt := g.(type) {
	case *cdecl.BuiltinType:
		ht, ok := h.(*cdecl.BuiltinType)
		if !ok {
			return false, nil
		}
		if gt.Kind == abi.Void {
			// void pointees are taken on faith when the pointer widths
			// already match.
			return ht.Kind == abi.Void && s.GuestArch.PointerWidth() == s.HostArch.PointerWidth(), nil
		}
		return gt.Kind == ht.Kind &&
			s.GuestArch.BuiltinInfo(gt.Kind) == s.HostArch.BuiltinInfo(ht.Kind), nil

	case *cdecl.PointerType:
		// Nested pointers default to compatible, mirroring the reference
		// generator's unpack-time fallback.
		_, ok := h.(*cdecl.PointerType)
		return ok, nil

	case *cdecl.NamedType:
		ht, ok := h.(*cdecl.NamedType)
		if !ok || ht.Name != gt.Name {
			return false, nil
		}
		if s.flags[gt.Name].AssumedCompatible {
			return true, nil
		}
		if s.walking[gt.Name] {
			// Self-reference through a pointer. Taken as compatible while
			// the container is still being classified.
			return true, nil
		}
		dep, err := s.ensure(gt.Name)
		if err != nil {
			return false, err
		}
		if dep.Class == Opaque {
			return false, errors.IncompleteType(errors.PhaseLayout, append(path, gt.Name), gt.Name)
		}
		return dep.Class == Identical, nil
	}
	return false, nil
}

// valueDeps lists the named types t embeds by value. Array layers peel;
// pointers are not followed.
func valueDeps(t cdecl.Type) []string {
	switch tt := t.(type) {
	case *cdecl.ConstType:
		return valueDeps(tt.Inner)
	case *cdecl.ArrayType:
		return valueDeps(tt.Elem)
	case *cdecl.NamedType:
		return []string{tt.Name}
	}
	return nil
}

// anonByValue reports whether t embeds an anonymous record or enum by
// value.
func anonByValue(t cdecl.Type) bool {
	switch tt := t.(type) {
	case *cdecl.ConstType:
		return anonByValue(tt.Inner)
	case *cdecl.ArrayType:
		return anonByValue(tt.Elem)
	case *cdecl.NamedType:
		return cdecl.IsAnonymous(tt.Name)
	}
	return false
}
