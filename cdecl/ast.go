package cdecl

import (
	"fmt"
	"strings"

	"github.com/wippyai/thunkgen/abi"
)

// Type is implemented by all C type nodes.
type Type interface {
	typeNode()
}

// BuiltinType is a C builtin scalar. Spelling preserves the written form
// when it differs from the category name (uint32_t, size_t).
type BuiltinType struct {
	Kind     abi.Builtin
	Spelling string
}

// ConstType is a const-qualified type.
type ConstType struct {
	Inner Type
}

// PointerType is a pointer to Pointee. Function pointers are
// PointerType{Pointee: *FunctionType}.
type PointerType struct {
	Pointee Type
}

// ArrayType is a fixed-length array member type.
type ArrayType struct {
	Elem Type
	Len  uint64
}

// FunctionType is a function signature used as a type (callback
// registrations, function-pointer pointees).
type FunctionType struct {
	Ret      Type
	Params   []Param
	Variadic bool
}

// NamedType references a record, enum, or typedef by name. Resolution
// happens against the owning TranslationUnit.
type NamedType struct {
	Name string
}

func (*BuiltinType) typeNode()  {}
func (*ConstType) typeNode()    {}
func (*PointerType) typeNode()  {}
func (*ArrayType) typeNode()    {}
func (*FunctionType) typeNode() {}
func (*NamedType) typeNode()    {}

// Param is one function parameter. Name may be empty.
type Param struct {
	Name string
	Type Type
}

// Member is one record member.
type Member struct {
	Name string
	Type Type
	Line int
}

// RecordDecl is a struct or union declaration.
type RecordDecl struct {
	Name    string
	Members []Member
	Line    int
	Union   bool
	Defined bool
}

// Enumerator is one enum constant.
type Enumerator struct {
	Name  string
	Value int64
}

// EnumDecl is an enum declaration. Underlying is nil for plain enums,
// which size to int.
type EnumDecl struct {
	Name        string
	Underlying  Type
	Enumerators []Enumerator
	Line        int
	Scoped      bool
	Defined     bool
}

// TypedefDecl covers both typedef and using-alias declarations.
type TypedefDecl struct {
	Name string
	Type Type
	Line int
}

// FunctionDecl is a top-level function declaration.
type FunctionDecl struct {
	Name     string
	Ret      Type
	Params   []Param
	Variadic bool
	Line     int
}

// Signature returns the function's type.
func (f *FunctionDecl) Signature() *FunctionType {
	return &FunctionType{Ret: f.Ret, Params: f.Params, Variadic: f.Variadic}
}

// ConfigKind distinguishes the three configuration record templates.
type ConfigKind int

const (
	// ConfigFunction is template<> struct fex_gen_config<func>.
	ConfigFunction ConfigKind = iota
	// ConfigType is template<> struct fex_gen_type<T>.
	ConfigType
	// ConfigParam is template<> struct fex_gen_param<func, index, T>.
	ConfigParam
)

func (k ConfigKind) String() string {
	switch k {
	case ConfigFunction:
		return "fex_gen_config"
	case ConfigType:
		return "fex_gen_type"
	case ConfigParam:
		return "fex_gen_param"
	}
	return "config"
}

// ConfigMemberKind distinguishes the two member forms inside a config
// record body.
type ConfigMemberKind int

const (
	// ConfigValue is "int name = 123;".
	ConfigValue ConfigMemberKind = iota
	// ConfigAlias is "using name = type;".
	ConfigAlias
)

// ConfigMember is one member of a configuration record body.
type ConfigMember struct {
	Kind  ConfigMemberKind
	Name  string
	Value int64
	Type  Type
	Line  int
}

// ConfigDecl is one parsed configuration record specialization.
type ConfigDecl struct {
	Kind       ConfigKind
	Target     string // function name for ConfigFunction/ConfigParam
	TargetType Type   // subject type for ConfigType and ConfigParam
	ParamIndex int    // for ConfigParam
	Bases      []string
	Members    []ConfigMember
	Line       int
}

// TranslationUnit is the parsed form of one preprocessed view.
type TranslationUnit struct {
	Records   []*RecordDecl
	Enums     []*EnumDecl
	Typedefs  []*TypedefDecl
	Functions []*FunctionDecl
	Configs   []*ConfigDecl

	records   map[string]*RecordDecl
	enums     map[string]*EnumDecl
	typedefs  map[string]*TypedefDecl
	functions map[string]*FunctionDecl
}

func newTranslationUnit() *TranslationUnit {
	return &TranslationUnit{
		records:   make(map[string]*RecordDecl),
		enums:     make(map[string]*EnumDecl),
		typedefs:  make(map[string]*TypedefDecl),
		functions: make(map[string]*FunctionDecl),
	}
}

// Record looks up a struct/union declaration by tag name.
func (tu *TranslationUnit) Record(name string) (*RecordDecl, bool) {
	r, ok := tu.records[name]
	return r, ok
}

// Enum looks up an enum declaration by name.
func (tu *TranslationUnit) Enum(name string) (*EnumDecl, bool) {
	e, ok := tu.enums[name]
	return e, ok
}

// Typedef looks up a typedef or using-alias by name.
func (tu *TranslationUnit) Typedef(name string) (*TypedefDecl, bool) {
	t, ok := tu.typedefs[name]
	return t, ok
}

// Function looks up a function declaration by name.
func (tu *TranslationUnit) Function(name string) (*FunctionDecl, bool) {
	f, ok := tu.functions[name]
	return f, ok
}

// Canonical resolves typedef and alias sugar recursively, returning the
// underlying type. Record and enum references stay named. Unknown names
// are an error.
func (tu *TranslationUnit) Canonical(t Type) (Type, error) {
	return tu.canonical(t, 0)
}

func (tu *TranslationUnit) canonical(t Type, depth int) (Type, error) {
	if depth > 64 {
		return nil, fmt.Errorf("typedef resolution too deep at %s", CString(t))
	}

	switch tt := t.(type) {
	case *BuiltinType:
		return tt, nil
	case *ConstType:
		inner, err := tu.canonical(tt.Inner, depth+1)
		if err != nil {
			return nil, err
		}
		return &ConstType{Inner: inner}, nil
	case *PointerType:
		pointee, err := tu.canonical(tt.Pointee, depth+1)
		if err != nil {
			return nil, err
		}
		return &PointerType{Pointee: pointee}, nil
	case *ArrayType:
		elem, err := tu.canonical(tt.Elem, depth+1)
		if err != nil {
			return nil, err
		}
		return &ArrayType{Elem: elem, Len: tt.Len}, nil
	case *FunctionType:
		ret, err := tu.canonical(tt.Ret, depth+1)
		if err != nil {
			return nil, err
		}
		params := make([]Param, len(tt.Params))
		for i, p := range tt.Params {
			pt, err := tu.canonical(p.Type, depth+1)
			if err != nil {
				return nil, err
			}
			params[i] = Param{Name: p.Name, Type: pt}
		}
		return &FunctionType{Ret: ret, Params: params, Variadic: tt.Variadic}, nil
	case *NamedType:
		if td, ok := tu.typedefs[tt.Name]; ok {
			return tu.canonical(td.Type, depth+1)
		}
		if _, ok := tu.records[tt.Name]; ok {
			return tt, nil
		}
		if _, ok := tu.enums[tt.Name]; ok {
			return tt, nil
		}
		return nil, fmt.Errorf("unknown type name %q", tt.Name)
	default:
		return nil, fmt.Errorf("unexpected type node %T", t)
	}
}

// IsVoid reports whether t is the void builtin (after canonicalization by
// the caller).
func IsVoid(t Type) bool {
	b, ok := t.(*BuiltinType)
	return ok && b.Kind == abi.Void
}

// IsVoidPointer reports whether t is void* (possibly const-qualified
// pointee).
func IsVoidPointer(t Type) bool {
	p, ok := t.(*PointerType)
	if !ok {
		return false
	}
	pointee := p.Pointee
	if c, ok := pointee.(*ConstType); ok {
		pointee = c.Inner
	}
	return IsVoid(pointee)
}

// IsFunctionPointer reports whether t is a pointer to a function type.
func IsFunctionPointer(t Type) bool {
	p, ok := t.(*PointerType)
	if !ok {
		return false
	}
	_, ok = p.Pointee.(*FunctionType)
	return ok
}

// IsAnonymous reports whether name is a synthesized placeholder for an
// anonymous record or enum. Such names cannot appear in emitted source.
func IsAnonymous(name string) bool {
	return strings.HasPrefix(name, "__anon_")
}

// Unqualified strips one leading const qualifier.
func Unqualified(t Type) Type {
	if c, ok := t.(*ConstType); ok {
		return c.Inner
	}
	return t
}

// CString renders t as a C type spelling, clang style: "char *",
// "const A *", "int (*)(char, char)".
func CString(t Type) string {
	return strings.TrimRight(FormatDecl(t, ""), " ")
}

// FormatDecl renders a C declaration of name with type t, distributing
// the declarator the way C syntax demands ("int (*cb)(char)",
// "char buf[16]").
func FormatDecl(t Type, name string) string {
	switch tt := t.(type) {
	case *BuiltinType:
		return joinSpec(tt.CName(), name)
	case *NamedType:
		return joinSpec(tt.Name, name)
	case *ConstType:
		switch tt.Inner.(type) {
		case *BuiltinType, *NamedType:
			return "const " + FormatDecl(tt.Inner, name)
		default:
			return FormatDecl(tt.Inner, joinSpec("const", name))
		}
	case *PointerType:
		return FormatDecl(tt.Pointee, "*"+name)
	case *ArrayType:
		if strings.HasPrefix(name, "*") {
			name = "(" + name + ")"
		}
		return FormatDecl(tt.Elem, fmt.Sprintf("%s[%d]", name, tt.Len))
	case *FunctionType:
		if strings.HasPrefix(name, "*") {
			name = "(" + name + ")"
		}
		params := make([]string, 0, len(tt.Params)+1)
		for _, p := range tt.Params {
			params = append(params, CString(p.Type))
		}
		if tt.Variadic {
			params = append(params, "...")
		}
		return FormatDecl(tt.Ret, name+"("+strings.Join(params, ", ")+")")
	default:
		return joinSpec("?", name)
	}
}

// CName returns the C spelling of the builtin, preferring the written
// form.
func (b *BuiltinType) CName() string {
	if b.Spelling != "" {
		return b.Spelling
	}
	return b.Kind.String()
}

func joinSpec(spec, declarator string) string {
	if declarator == "" {
		return spec
	}
	return spec + " " + declarator
}
