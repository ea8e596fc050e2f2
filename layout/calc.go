package layout

import (
	"fmt"

	"github.com/wippyai/thunkgen/abi"
	"github.com/wippyai/thunkgen/cdecl"
	"github.com/wippyai/thunkgen/errors"
)

// MemberInfo is one record member sized under one ABI view. Type keeps
// the written spelling for emission; Canon is the resolved form.
type MemberInfo struct {
	Name   string
	Type   cdecl.Type
	Canon  cdecl.Type
	Offset uint32
	Info   abi.Info
}

// RecordLayout is the computed layout of one record under one ABI view.
type RecordLayout struct {
	Name    string
	Union   bool
	Info    abi.Info
	Members []MemberInfo
}

// Member returns the named member, or nil.
func (r *RecordLayout) Member(name string) *MemberInfo {
	for i := range r.Members {
		if r.Members[i].Name == name {
			return &r.Members[i]
		}
	}
	return nil
}

// Calculator computes type sizes and record layouts for one
// translation-unit view under one architecture. Record results are
// cached by name.
type Calculator struct {
	tu      *cdecl.TranslationUnit
	arch    abi.Arch
	cache   map[string]*RecordLayout
	walking map[string]bool
	path    []string
}

// NewCalculator creates a calculator for tu under arch.
func NewCalculator(tu *cdecl.TranslationUnit, arch abi.Arch) *Calculator {
	return &Calculator{
		tu:      tu,
		arch:    arch,
		cache:   make(map[string]*RecordLayout),
		walking: make(map[string]bool),
	}
}

// Arch returns the architecture this calculator sizes for.
func (c *Calculator) Arch() abi.Arch {
	return c.arch
}

// TypeInfo computes the size and alignment of t. Typedefs are resolved
// against the calculator's translation unit first.
func (c *Calculator) TypeInfo(t cdecl.Type) (abi.Info, error) {
	canon, err := c.tu.Canonical(t)
	if err != nil {
		return abi.Info{}, errors.Wrap(errors.PhaseLayout, errors.KindNotFound, err, "resolving type for layout")
	}
	return c.typeInfo(canon)
}

func (c *Calculator) typeInfo(t cdecl.Type) (abi.Info, error) {
	switch tt := t.(type) {
	case *cdecl.BuiltinType:
		return c.arch.BuiltinInfo(tt.Kind), nil
	case *cdecl.ConstType:
		return c.typeInfo(tt.Inner)
	case *cdecl.PointerType:
		return c.arch.PointerInfo(), nil
	case *cdecl.ArrayType:
		elem, err := c.typeInfo(tt.Elem)
		if err != nil {
			return abi.Info{}, err
		}
		return abi.Info{Size: elem.Size * uint32(tt.Len), Align: elem.Align}, nil
	case *cdecl.NamedType:
		if e, ok := c.tu.Enum(tt.Name); ok {
			return c.enumInfo(e)
		}
		rec, err := c.Record(tt.Name)
		if err != nil {
			return abi.Info{}, err
		}
		return rec.Info, nil
	default:
		return abi.Info{}, errors.InvalidInput(errors.PhaseLayout,
			fmt.Sprintf("type %s has no object layout", cdecl.CString(t)))
	}
}

// Record computes the layout of the named record. Undefined records
// report an incomplete type; by-value recursion reports a cycle.
func (c *Calculator) Record(name string) (*RecordLayout, error) {
	if cached, ok := c.cache[name]; ok {
		return cached, nil
	}
	rec, ok := c.tu.Record(name)
	if !ok {
		return nil, errors.NotFound(errors.PhaseLayout, "record", name)
	}
	if !rec.Defined {
		return nil, errors.IncompleteType(errors.PhaseLayout, append(c.chain(), name), name)
	}
	if c.walking[name] {
		return nil, errors.Cycle(append(c.chain(), name))
	}
	c.walking[name] = true
	c.path = append(c.path, name)
	defer func() {
		delete(c.walking, name)
		c.path = c.path[:len(c.path)-1]
	}()

	rl := &RecordLayout{Name: name, Union: rec.Union}
	maxAlign := uint32(1)
	offset := uint32(0)
	maxSize := uint32(0)

	for _, m := range rec.Members {
		canon, err := c.tu.Canonical(m.Type)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseLayout, errors.KindNotFound, err,
				fmt.Sprintf("member %s.%s", name, m.Name))
		}
		info, err := c.typeInfo(canon)
		if err != nil {
			return nil, err
		}
		member := MemberInfo{Name: m.Name, Type: m.Type, Canon: canon, Info: info}
		if rec.Union {
			if info.Size > maxSize {
				maxSize = info.Size
			}
		} else {
			offset = abi.AlignTo(offset, info.Align)
			member.Offset = offset
			offset += info.Size
		}
		if info.Align > maxAlign {
			maxAlign = info.Align
		}
		rl.Members = append(rl.Members, member)
	}

	if len(rec.Members) == 0 {
		// C++ gives empty records size 1.
		rl.Info = abi.Info{Size: 1, Align: 1}
	} else if rec.Union {
		rl.Info = abi.Info{Size: abi.AlignTo(maxSize, maxAlign), Align: maxAlign}
	} else {
		rl.Info = abi.Info{Size: abi.AlignTo(offset, maxAlign), Align: maxAlign}
	}

	c.cache[name] = rl
	return rl, nil
}

// EnumUnderlying resolves the named enum to its underlying integer
// category. Plain enums size to int.
func (c *Calculator) EnumUnderlying(name string) (abi.Builtin, error) {
	e, ok := c.tu.Enum(name)
	if !ok {
		return 0, errors.NotFound(errors.PhaseLayout, "enum", name)
	}
	if e.Underlying == nil {
		return abi.Int, nil
	}
	canon, err := c.tu.Canonical(e.Underlying)
	if err != nil {
		return 0, errors.Wrap(errors.PhaseLayout, errors.KindNotFound, err,
			fmt.Sprintf("underlying type of enum %s", name))
	}
	b, ok := cdecl.Unqualified(canon).(*cdecl.BuiltinType)
	if !ok || !b.Kind.IsInteger() {
		return 0, errors.InvalidInput(errors.PhaseLayout,
			fmt.Sprintf("enum %s has non-integer underlying type %s", name, cdecl.CString(canon)))
	}
	return b.Kind, nil
}

func (c *Calculator) enumInfo(e *cdecl.EnumDecl) (abi.Info, error) {
	if e.Underlying == nil {
		return c.arch.BuiltinInfo(abi.Int), nil
	}
	return c.TypeInfo(e.Underlying)
}

func (c *Calculator) chain() []string {
	out := make([]string, len(c.path))
	copy(out, c.path)
	return out
}
