package cdecl

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wippyai/thunkgen/abi"
	"github.com/wippyai/thunkgen/cdecl/internal/token"
)

type parser struct {
	tu        *TranslationUnit
	tokens    []token.Token
	pos       int
	anonCount int
}

func newParser(tokens []token.Token) *parser {
	return &parser{
		tu:     newTranslationUnit(),
		tokens: tokens,
	}
}

func (p *parser) peek() *token.Token {
	if p.pos >= len(p.tokens) {
		return nil
	}
	return &p.tokens[p.pos]
}

func (p *parser) peekAt(n int) *token.Token {
	if p.pos+n >= len(p.tokens) {
		return nil
	}
	return &p.tokens[p.pos+n]
}

func (p *parser) next() *token.Token {
	if p.pos >= len(p.tokens) {
		return nil
	}
	t := &p.tokens[p.pos]
	p.pos++
	return t
}

// peekIs reports whether the next token has the given value.
func (p *parser) peekIs(value string) bool {
	t := p.peek()
	return t != nil && t.Value == value
}

// accept consumes the next token when it has the given value.
func (p *parser) accept(value string) bool {
	if p.peekIs(value) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expect(value string) (*token.Token, error) {
	t := p.next()
	if t == nil {
		return nil, fmt.Errorf("unexpected end of input, expected %q", value)
	}
	if t.Value != value {
		return nil, fmt.Errorf("line %d: expected %q, got %q", t.Line, value, t.Value)
	}
	return t, nil
}

func (p *parser) expectIdent() (*token.Token, error) {
	t := p.next()
	if t == nil {
		return nil, fmt.Errorf("unexpected end of input, expected identifier")
	}
	if t.Type != token.Ident {
		return nil, fmt.Errorf("line %d: expected identifier, got %q", t.Line, t.Value)
	}
	return t, nil
}

// expectInteger consumes an integer literal, accepting a leading sign.
func (p *parser) expectInteger() (int64, error) {
	negative := p.accept("-")
	if !negative {
		p.accept("+")
	}
	t := p.next()
	if t == nil {
		return 0, fmt.Errorf("unexpected end of input, expected integer")
	}
	if t.Type != token.Number {
		return 0, fmt.Errorf("line %d: expected integer, got %q", t.Line, t.Value)
	}
	v, err := parseIntLiteral(t.Value)
	if err != nil {
		return 0, fmt.Errorf("line %d: %v", t.Line, err)
	}
	if negative {
		v = -v
	}
	return v, nil
}

func parseIntLiteral(s string) (int64, error) {
	lit := strings.TrimRight(s, "uUlL")
	v, err := strconv.ParseInt(lit, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("bad integer literal %q", s)
	}
	return v, nil
}

func (p *parser) parseTranslationUnit() (*TranslationUnit, error) {
	for p.peek() != nil {
		if err := p.parseTopLevel(); err != nil {
			return nil, err
		}
	}
	return p.tu, nil
}

func (p *parser) parseTopLevel() error {
	t := p.peek()
	if t.Type == token.Ident {
		switch t.Value {
		case "template":
			return p.parseTemplate()
		case "struct", "union":
			// A standalone record declaration, unless the tag is the
			// type specifier of a function declaration.
			if n1, n2 := p.peekAt(1), p.peekAt(2); n1 != nil && n1.Type == token.Ident &&
				(n2 == nil || n2.Value == "{" || n2.Value == ";") {
				return p.parseRecordDecl()
			}
			return p.parseFunctionDecl()
		case "enum":
			if p.isStandaloneEnum() {
				return p.parseEnumDecl()
			}
			return p.parseFunctionDecl()
		case "typedef":
			return p.parseTypedef()
		case "using":
			return p.parseUsing()
		case "extern":
			return p.parseExtern()
		case "namespace":
			return p.skipNamespace()
		}
		return p.parseFunctionDecl()
	}
	if t.Value == ";" {
		p.next()
		return nil
	}
	return fmt.Errorf("line %d: unexpected %q at top level", t.Line, t.Value)
}

// isStandaloneEnum distinguishes "enum E { ... };" from an enum type
// specifier heading a function declaration.
func (p *parser) isStandaloneEnum() bool {
	i := 1
	if t := p.peekAt(i); t != nil && (t.Value == "class" || t.Value == "struct") {
		i++
	}
	if t := p.peekAt(i); t != nil && t.Type == token.Ident {
		i++
	}
	t := p.peekAt(i)
	return t != nil && (t.Value == "{" || t.Value == ":" || t.Value == ";")
}

func (p *parser) parseRecordDecl() error {
	kw := p.next() // struct or union
	nameTok, err := p.expectIdent()
	if err != nil {
		return err
	}

	if p.accept(";") {
		p.declareRecord(nameTok.Value, kw.Value == "union", nameTok.Line)
		return nil
	}

	rec, err := p.parseRecordBody(nameTok.Value, kw.Value == "union", nameTok.Line)
	if err != nil {
		return err
	}
	if _, err := p.expect(";"); err != nil {
		return err
	}
	return p.defineRecord(rec)
}

// parseRecordBody parses "{ members }" for the named record.
func (p *parser) parseRecordBody(name string, union bool, line int) (*RecordDecl, error) {
	if _, err := p.expect("{"); err != nil {
		return nil, err
	}

	rec := &RecordDecl{Name: name, Union: union, Defined: true, Line: line}
	for !p.peekIs("}") {
		t := p.peek()
		if t == nil {
			return nil, fmt.Errorf("unterminated record %q", name)
		}
		memberLine := t.Line
		base, err := p.parseDeclSpec()
		if err != nil {
			return nil, err
		}
		for {
			typ, memberName, err := p.parseDeclarator(base)
			if err != nil {
				return nil, err
			}
			if memberName == "" {
				return nil, fmt.Errorf("line %d: member of %q needs a name", memberLine, name)
			}
			if p.peekIs(":") {
				return nil, fmt.Errorf("line %d: bit-field member %q is not supported", memberLine, memberName)
			}
			rec.Members = append(rec.Members, Member{Name: memberName, Type: typ, Line: memberLine})
			if p.accept(",") {
				continue
			}
			if _, err := p.expect(";"); err != nil {
				return nil, err
			}
			break
		}
	}
	p.next() // }
	return rec, nil
}

func (p *parser) parseEnumDecl() error {
	if _, err := p.parseEnumSpec(); err != nil {
		return err
	}
	_, err := p.expect(";")
	return err
}

// parseEnumSpec parses an enum definition or reference and registers
// definitions. The returned type references it.
func (p *parser) parseEnumSpec() (Type, error) {
	kw := p.next() // enum
	scoped := false
	if p.accept("class") || p.accept("struct") {
		scoped = true
	}

	name := ""
	if t := p.peek(); t != nil && t.Type == token.Ident {
		name = t.Value
		p.next()
	}
	if name == "" {
		p.anonCount++
		name = fmt.Sprintf("__anon_enum_%d", p.anonCount)
	}

	var underlying Type
	if p.accept(":") {
		u, err := p.parseDeclSpec()
		if err != nil {
			return nil, err
		}
		underlying = u
	}

	if !p.peekIs("{") {
		// Reference to a (possibly forward-declared) enum.
		if _, ok := p.tu.enums[name]; !ok {
			decl := &EnumDecl{Name: name, Underlying: underlying, Scoped: scoped, Line: kw.Line}
			p.tu.enums[name] = decl
			p.tu.Enums = append(p.tu.Enums, decl)
		}
		return &NamedType{Name: name}, nil
	}

	p.next() // {
	decl := &EnumDecl{Name: name, Underlying: underlying, Scoped: scoped, Defined: true, Line: kw.Line}
	nextValue := int64(0)
	for !p.peekIs("}") {
		enumTok, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		value := nextValue
		if p.accept("=") {
			if t := p.peek(); t != nil && t.Type == token.Ident {
				ref, ok := lookupEnumerator(decl, t.Value)
				if !ok {
					return nil, fmt.Errorf("line %d: unknown enumerator %q", t.Line, t.Value)
				}
				p.next()
				value = ref
			} else {
				v, err := p.expectInteger()
				if err != nil {
					return nil, err
				}
				value = v
			}
		}
		decl.Enumerators = append(decl.Enumerators, Enumerator{Name: enumTok.Value, Value: value})
		nextValue = value + 1
		if !p.accept(",") {
			break
		}
	}
	if _, err := p.expect("}"); err != nil {
		return nil, err
	}

	if existing, ok := p.tu.enums[name]; ok {
		if existing.Defined {
			return nil, fmt.Errorf("line %d: redefinition of enum %q", kw.Line, name)
		}
		*existing = *decl
	} else {
		p.tu.enums[name] = decl
		p.tu.Enums = append(p.tu.Enums, decl)
	}
	return &NamedType{Name: name}, nil
}

func lookupEnumerator(decl *EnumDecl, name string) (int64, bool) {
	for _, e := range decl.Enumerators {
		if e.Name == name {
			return e.Value, true
		}
	}
	return 0, false
}

func (p *parser) parseTypedef() error {
	kw := p.next() // typedef
	base, err := p.parseDeclSpec()
	if err != nil {
		return err
	}
	typ, name, err := p.parseDeclarator(base)
	if err != nil {
		return err
	}
	if name == "" {
		return fmt.Errorf("line %d: typedef needs a name", kw.Line)
	}
	if _, err := p.expect(";"); err != nil {
		return err
	}

	// typedef struct { ... } Name; names the anonymous record, which then
	// resolves directly, no alias entry needed.
	if nt, ok := typ.(*NamedType); ok {
		if rec, found := p.tu.records[nt.Name]; found && strings.HasPrefix(rec.Name, "__anon_record_") {
			delete(p.tu.records, rec.Name)
			rec.Name = name
			p.tu.records[name] = rec
			return nil
		}
	}

	return p.addTypedef(name, typ, kw.Line)
}

func (p *parser) parseUsing() error {
	kw := p.next() // using
	if p.peekIs("namespace") {
		return fmt.Errorf("line %d: using-directives are not supported", kw.Line)
	}
	nameTok, err := p.expectIdent()
	if err != nil {
		return err
	}
	if _, err := p.expect("="); err != nil {
		return err
	}
	typ, err := p.parseTypeID()
	if err != nil {
		return err
	}
	if _, err := p.expect(";"); err != nil {
		return err
	}
	return p.addTypedef(nameTok.Value, typ, kw.Line)
}

func (p *parser) addTypedef(name string, typ Type, line int) error {
	if _, exists := p.tu.typedefs[name]; exists {
		return fmt.Errorf("line %d: redefinition of alias %q", line, name)
	}
	decl := &TypedefDecl{Name: name, Type: typ, Line: line}
	p.tu.typedefs[name] = decl
	p.tu.Typedefs = append(p.tu.Typedefs, decl)
	return nil
}

func (p *parser) parseExtern() error {
	p.next() // extern
	if p.accept(`"`) {
		if _, err := p.expectIdent(); err != nil { // the linkage string, C
			return err
		}
		if _, err := p.expect(`"`); err != nil {
			return err
		}
	}
	if p.accept("{") {
		for !p.peekIs("}") {
			if p.peek() == nil {
				return fmt.Errorf("unterminated extern block")
			}
			if err := p.parseTopLevel(); err != nil {
				return err
			}
		}
		p.next() // }
		return nil
	}
	return p.parseTopLevel()
}

// skipNamespace skips a namespace block. Marker namespaces carry nothing
// the generator consumes; annotations are validated by name downstream.
func (p *parser) skipNamespace() error {
	kw := p.next() // namespace
	for !p.peekIs("{") {
		if p.peek() == nil {
			return fmt.Errorf("line %d: unterminated namespace", kw.Line)
		}
		p.next()
	}
	depth := 0
	for {
		t := p.next()
		if t == nil {
			return fmt.Errorf("line %d: unterminated namespace", kw.Line)
		}
		switch t.Value {
		case "{":
			depth++
		case "}":
			depth--
			if depth == 0 {
				return nil
			}
		}
	}
}

func (p *parser) parseFunctionDecl() error {
	base, err := p.parseDeclSpec()
	if err != nil {
		return err
	}
	typ, name, err := p.parseDeclarator(base)
	if err != nil {
		return err
	}
	ft, ok := typ.(*FunctionType)
	if !ok {
		t := p.peek()
		line := 0
		if t != nil {
			line = t.Line
		}
		return fmt.Errorf("line %d: expected a function declaration for %q", line, name)
	}
	if name == "" {
		return fmt.Errorf("function declaration needs a name")
	}
	tok, err := p.expect(";")
	if err != nil {
		return err
	}
	if _, exists := p.tu.functions[name]; exists {
		return fmt.Errorf("line %d: redeclaration of function %q", tok.Line, name)
	}
	decl := &FunctionDecl{
		Name:     name,
		Ret:      ft.Ret,
		Params:   ft.Params,
		Variadic: ft.Variadic,
		Line:     tok.Line,
	}
	p.tu.functions[name] = decl
	p.tu.Functions = append(p.tu.Functions, decl)
	return nil
}

func (p *parser) declareRecord(name string, union bool, line int) *RecordDecl {
	if rec, ok := p.tu.records[name]; ok {
		return rec
	}
	rec := &RecordDecl{Name: name, Union: union, Line: line}
	p.tu.records[name] = rec
	p.tu.Records = append(p.tu.Records, rec)
	return rec
}

func (p *parser) defineRecord(rec *RecordDecl) error {
	if existing, ok := p.tu.records[rec.Name]; ok {
		if existing.Defined {
			return fmt.Errorf("line %d: redefinition of %q", rec.Line, rec.Name)
		}
		*existing = *rec
		return nil
	}
	p.tu.records[rec.Name] = rec
	p.tu.Records = append(p.tu.Records, rec)
	return nil
}

// fixedWidthBuiltins maps the stdint spellings the front-end treats as
// builtins onto their ABI categories.
var fixedWidthBuiltins = map[string]abi.Builtin{
	"int8_t":    abi.SChar,
	"uint8_t":   abi.UChar,
	"int16_t":   abi.Short,
	"uint16_t":  abi.UShort,
	"int32_t":   abi.Int,
	"uint32_t":  abi.UInt,
	"int64_t":   abi.LongLong,
	"uint64_t":  abi.ULongLong,
	"size_t":    abi.UIntPtr,
	"ssize_t":   abi.IntPtr,
	"intptr_t":  abi.IntPtr,
	"uintptr_t": abi.UIntPtr,
	"ptrdiff_t": abi.IntPtr,
	"wchar_t":   abi.Int,
}

// parseDeclSpec parses declaration specifiers: qualifiers plus exactly
// one type noun ("unsigned long long", "const char", "struct A",
// "uint32_t", a typedef name).
func (p *parser) parseDeclSpec() (Type, error) {
	var constQ, signedQ, unsignedQ, shortQ bool
	longCount := 0
	baseKW := ""
	var named Type
	line := 0
	if t := p.peek(); t != nil {
		line = t.Line
	}

loop:
	for {
		t := p.peek()
		if t == nil || t.Type != token.Ident {
			break
		}
		switch t.Value {
		case "const":
			p.next()
			constQ = true
		case "volatile":
			p.next() // layout-neutral
		case "signed":
			p.next()
			signedQ = true
		case "unsigned":
			p.next()
			unsignedQ = true
		case "short":
			p.next()
			shortQ = true
		case "long":
			p.next()
			longCount++
		case "void", "bool", "char", "int", "float", "double":
			if baseKW != "" || named != nil {
				break loop
			}
			p.next()
			baseKW = t.Value
		case "struct", "union":
			if baseKW != "" || named != nil {
				break loop
			}
			elaborated, err := p.parseElaboratedRecord()
			if err != nil {
				return nil, err
			}
			named = elaborated
		case "enum":
			if baseKW != "" || named != nil {
				break loop
			}
			elaborated, err := p.parseEnumSpec()
			if err != nil {
				return nil, err
			}
			named = elaborated
		default:
			if baseKW != "" || named != nil || signedQ || unsignedQ || shortQ || longCount > 0 {
				break loop
			}
			p.next()
			if kind, ok := fixedWidthBuiltins[t.Value]; ok {
				named = &BuiltinType{Kind: kind, Spelling: t.Value}
			} else {
				named = &NamedType{Name: t.Value}
			}
		}
	}

	var result Type
	switch {
	case named != nil:
		if baseKW != "" || signedQ || unsignedQ || shortQ || longCount > 0 {
			return nil, fmt.Errorf("line %d: conflicting type specifiers", line)
		}
		result = named
	default:
		kind, err := assembleBuiltin(baseKW, signedQ, unsignedQ, shortQ, longCount)
		if err != nil {
			return nil, fmt.Errorf("line %d: %v", line, err)
		}
		result = &BuiltinType{Kind: kind}
	}

	if constQ {
		result = &ConstType{Inner: result}
	}
	return result, nil
}

func assembleBuiltin(baseKW string, signedQ, unsignedQ, shortQ bool, longCount int) (abi.Builtin, error) {
	switch baseKW {
	case "void":
		return abi.Void, nil
	case "bool":
		return abi.Bool, nil
	case "float":
		return abi.Float, nil
	case "double":
		if longCount == 1 {
			return abi.LongDouble, nil
		}
		return abi.Double, nil
	case "char":
		switch {
		case unsignedQ:
			return abi.UChar, nil
		case signedQ:
			return abi.SChar, nil
		default:
			return abi.Char, nil
		}
	case "int", "":
		if baseKW == "" && !signedQ && !unsignedQ && !shortQ && longCount == 0 {
			return 0, fmt.Errorf("expected a type")
		}
		switch {
		case shortQ && unsignedQ:
			return abi.UShort, nil
		case shortQ:
			return abi.Short, nil
		case longCount >= 2 && unsignedQ:
			return abi.ULongLong, nil
		case longCount >= 2:
			return abi.LongLong, nil
		case longCount == 1 && unsignedQ:
			return abi.ULong, nil
		case longCount == 1:
			return abi.Long, nil
		case unsignedQ:
			return abi.UInt, nil
		default:
			return abi.Int, nil
		}
	default:
		return 0, fmt.Errorf("unexpected type keyword %q", baseKW)
	}
}

// parseElaboratedRecord handles "struct A", "struct A { ... }" and
// anonymous "struct { ... }" appearing in a type-specifier position.
func (p *parser) parseElaboratedRecord() (Type, error) {
	kw := p.next() // struct or union
	union := kw.Value == "union"

	name := ""
	if t := p.peek(); t != nil && t.Type == token.Ident {
		name = t.Value
		p.next()
	}

	if p.peekIs("{") {
		if name == "" {
			p.anonCount++
			name = fmt.Sprintf("__anon_record_%d", p.anonCount)
		}
		rec, err := p.parseRecordBody(name, union, kw.Line)
		if err != nil {
			return nil, err
		}
		if err := p.defineRecord(rec); err != nil {
			return nil, err
		}
		return &NamedType{Name: name}, nil
	}

	if name == "" {
		return nil, fmt.Errorf("line %d: anonymous %s without a body", kw.Line, kw.Value)
	}
	p.declareRecord(name, union, kw.Line)
	return &NamedType{Name: name}, nil
}

// parseDeclarator applies pointer, array, and function declarator syntax
// to a base type, returning the full type and the declared name (empty
// for abstract declarators).
func (p *parser) parseDeclarator(base Type) (Type, string, error) {
	for p.accept("*") {
		base = &PointerType{Pointee: base}
		for p.accept("const") || p.accept("volatile") {
			// qualifiers on the pointer itself are layout-neutral
		}
	}

	// Function-pointer declarator: (*name)(params)
	if p.peekIs("(") {
		if star := p.peekAt(1); star != nil && star.Value == "*" {
			p.next() // (
			p.next() // *
			name := ""
			if t := p.peek(); t != nil && t.Type == token.Ident {
				name = t.Value
				p.next()
			}
			if _, err := p.expect(")"); err != nil {
				return nil, "", err
			}
			params, variadic, err := p.parseParamList()
			if err != nil {
				return nil, "", err
			}
			fn := &FunctionType{Ret: base, Params: params, Variadic: variadic}
			return &PointerType{Pointee: fn}, name, nil
		}
	}

	name := ""
	if t := p.peek(); t != nil && t.Type == token.Ident && !isReservedWord(t.Value) {
		name = t.Value
		p.next()
	}

	if p.peekIs("[") {
		var dims []uint64
		for p.accept("[") {
			t := p.next()
			if t == nil || t.Type != token.Number {
				return nil, "", fmt.Errorf("expected array length")
			}
			n, err := parseIntLiteral(t.Value)
			if err != nil || n < 0 {
				return nil, "", fmt.Errorf("line %d: bad array length %q", t.Line, t.Value)
			}
			if _, err := p.expect("]"); err != nil {
				return nil, "", err
			}
			dims = append(dims, uint64(n))
		}
		for i := len(dims) - 1; i >= 0; i-- {
			base = &ArrayType{Elem: base, Len: dims[i]}
		}
		return base, name, nil
	}

	if p.peekIs("(") {
		params, variadic, err := p.parseParamList()
		if err != nil {
			return nil, "", err
		}
		return &FunctionType{Ret: base, Params: params, Variadic: variadic}, name, nil
	}

	return base, name, nil
}

func isReservedWord(s string) bool {
	switch s {
	case "const", "volatile", "struct", "union", "enum", "signed", "unsigned",
		"short", "long", "void", "bool", "char", "int", "float", "double",
		"template", "typedef", "using", "extern", "namespace", "class":
		return true
	}
	return false
}

func (p *parser) parseParamList() ([]Param, bool, error) {
	if _, err := p.expect("("); err != nil {
		return nil, false, err
	}
	if p.accept(")") {
		return nil, false, nil
	}

	// (void) means no parameters
	if p.peekIs("void") {
		if n := p.peekAt(1); n != nil && n.Value == ")" {
			p.next()
			p.next()
			return nil, false, nil
		}
	}

	var params []Param
	variadic := false
	for {
		if p.accept("...") {
			variadic = true
			break
		}
		base, err := p.parseDeclSpec()
		if err != nil {
			return nil, false, err
		}
		typ, name, err := p.parseDeclarator(base)
		if err != nil {
			return nil, false, err
		}
		// C parameter adjustment: functions and arrays decay to pointers.
		switch tt := typ.(type) {
		case *FunctionType:
			typ = &PointerType{Pointee: tt}
		case *ArrayType:
			typ = &PointerType{Pointee: tt.Elem}
		}
		params = append(params, Param{Name: name, Type: typ})
		if !p.accept(",") {
			break
		}
	}
	if _, err := p.expect(")"); err != nil {
		return nil, false, err
	}
	return params, variadic, nil
}

// parseTypeID parses an abstract type (template argument, using-alias
// target).
func (p *parser) parseTypeID() (Type, error) {
	base, err := p.parseDeclSpec()
	if err != nil {
		return nil, err
	}
	typ, name, err := p.parseDeclarator(base)
	if err != nil {
		return nil, err
	}
	if name != "" {
		return nil, fmt.Errorf("unexpected name %q in type", name)
	}
	return typ, nil
}

func (p *parser) parseTemplate() error {
	kw := p.next() // template
	if _, err := p.expect("<"); err != nil {
		return err
	}

	if !p.peekIs(">") {
		// Primary template declaration: skip the parameter list and the
		// (empty) body; only specializations carry configuration.
		depth := 1
		for depth > 0 {
			t := p.next()
			if t == nil {
				return fmt.Errorf("line %d: unterminated template parameter list", kw.Line)
			}
			switch t.Value {
			case "<":
				depth++
			case ">":
				depth--
			}
		}
		if _, err := p.expect("struct"); err != nil {
			return err
		}
		if _, err := p.expectIdent(); err != nil {
			return err
		}
		if err := p.skipBraced(); err != nil {
			return err
		}
		_, err := p.expect(";")
		return err
	}
	p.next() // >

	if _, err := p.expect("struct"); err != nil {
		return err
	}
	nameTok, err := p.expectIdent()
	if err != nil {
		return err
	}

	var kind ConfigKind
	switch nameTok.Value {
	case "fex_gen_config":
		kind = ConfigFunction
	case "fex_gen_type":
		kind = ConfigType
	case "fex_gen_param":
		kind = ConfigParam
	default:
		return fmt.Errorf("line %d: unexpected template specialization %q", nameTok.Line, nameTok.Value)
	}

	if _, err := p.expect("<"); err != nil {
		return err
	}

	cfg := &ConfigDecl{Kind: kind, Line: nameTok.Line}
	switch kind {
	case ConfigFunction:
		t, err := p.expectIdent()
		if err != nil {
			return err
		}
		cfg.Target = t.Value
	case ConfigType:
		typ, err := p.parseTypeID()
		if err != nil {
			return err
		}
		cfg.TargetType = typ
	case ConfigParam:
		t, err := p.expectIdent()
		if err != nil {
			return err
		}
		cfg.Target = t.Value
		if _, err := p.expect(","); err != nil {
			return err
		}
		idx, err := p.expectInteger()
		if err != nil {
			return err
		}
		if idx < 0 {
			return fmt.Errorf("line %d: negative parameter index", nameTok.Line)
		}
		cfg.ParamIndex = int(idx)
		if _, err := p.expect(","); err != nil {
			return err
		}
		typ, err := p.parseTypeID()
		if err != nil {
			return err
		}
		cfg.TargetType = typ
	}

	if _, err := p.expect(">"); err != nil {
		return err
	}

	if p.accept(":") {
		for {
			base, err := p.parseQualifiedName()
			if err != nil {
				return err
			}
			cfg.Bases = append(cfg.Bases, base)
			if !p.accept(",") {
				break
			}
		}
	}

	if _, err := p.expect("{"); err != nil {
		return err
	}
	for !p.peekIs("}") {
		if p.peek() == nil {
			return fmt.Errorf("line %d: unterminated configuration record", nameTok.Line)
		}
		member, err := p.parseConfigMember()
		if err != nil {
			return err
		}
		cfg.Members = append(cfg.Members, member)
	}
	p.next() // }
	if _, err := p.expect(";"); err != nil {
		return err
	}

	p.tu.Configs = append(p.tu.Configs, cfg)
	return nil
}

func (p *parser) parseQualifiedName() (string, error) {
	t, err := p.expectIdent()
	if err != nil {
		return "", err
	}
	name := t.Value
	for p.accept("::") {
		t, err := p.expectIdent()
		if err != nil {
			return "", err
		}
		name += "::" + t.Value
	}
	return name, nil
}

func (p *parser) parseConfigMember() (ConfigMember, error) {
	if p.peekIs("using") {
		kw := p.next()
		nameTok, err := p.expectIdent()
		if err != nil {
			return ConfigMember{}, err
		}
		if _, err := p.expect("="); err != nil {
			return ConfigMember{}, err
		}
		typ, err := p.parseTypeID()
		if err != nil {
			return ConfigMember{}, err
		}
		if _, err := p.expect(";"); err != nil {
			return ConfigMember{}, err
		}
		return ConfigMember{Kind: ConfigAlias, Name: nameTok.Value, Type: typ, Line: kw.Line}, nil
	}

	base, err := p.parseDeclSpec()
	if err != nil {
		return ConfigMember{}, err
	}
	_, name, err := p.parseDeclarator(base)
	if err != nil {
		return ConfigMember{}, err
	}
	if name == "" {
		return ConfigMember{}, fmt.Errorf("configuration member needs a name")
	}
	if _, err := p.expect("="); err != nil {
		return ConfigMember{}, err
	}
	value, err := p.expectInteger()
	if err != nil {
		return ConfigMember{}, err
	}
	tok, err := p.expect(";")
	if err != nil {
		return ConfigMember{}, err
	}
	return ConfigMember{Kind: ConfigValue, Name: name, Value: value, Line: tok.Line}, nil
}

func (p *parser) skipBraced() error {
	if _, err := p.expect("{"); err != nil {
		return err
	}
	depth := 1
	for depth > 0 {
		t := p.next()
		if t == nil {
			return fmt.Errorf("unterminated braces")
		}
		switch t.Value {
		case "{":
			depth++
		case "}":
			depth--
		}
	}
	return nil
}
