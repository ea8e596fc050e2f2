package cdecl

import (
	"strings"
	"testing"

	"github.com/wippyai/thunkgen/abi"
)

func TestParseFunctions(t *testing.T) {
	tu, err := Parse(`
void func();
int add(int a, int b);
char* name(const char* prefix);
void takes_cb(int (*cb)(char, char));
int printf_like(const char* fmt, ...);
void no_params(void);
`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if len(tu.Functions) != 6 {
		t.Fatalf("function count = %d, want 6", len(tu.Functions))
	}

	f, ok := tu.Function("func")
	if !ok {
		t.Fatal("func not found")
	}
	if !IsVoid(f.Ret) || len(f.Params) != 0 {
		t.Errorf("func signature wrong: ret=%s params=%d", CString(f.Ret), len(f.Params))
	}

	add, _ := tu.Function("add")
	if len(add.Params) != 2 || add.Params[0].Name != "a" || add.Params[1].Name != "b" {
		t.Errorf("add params = %+v", add.Params)
	}
	if CString(add.Ret) != "int" {
		t.Errorf("add return = %q, want int", CString(add.Ret))
	}

	name, _ := tu.Function("name")
	if CString(name.Ret) != "char *" {
		t.Errorf("name return = %q, want 'char *'", CString(name.Ret))
	}
	if CString(name.Params[0].Type) != "const char *" {
		t.Errorf("name param = %q, want 'const char *'", CString(name.Params[0].Type))
	}

	cb, _ := tu.Function("takes_cb")
	if !IsFunctionPointer(cb.Params[0].Type) {
		t.Errorf("takes_cb param should be a function pointer, got %q", CString(cb.Params[0].Type))
	}
	if got := CString(cb.Params[0].Type); got != "int (*)(char, char)" {
		t.Errorf("callback spelling = %q, want 'int (*)(char, char)'", got)
	}

	v, _ := tu.Function("printf_like")
	if !v.Variadic {
		t.Error("printf_like should be variadic")
	}
	if len(v.Params) != 1 {
		t.Errorf("printf_like fixed params = %d, want 1", len(v.Params))
	}

	np, _ := tu.Function("no_params")
	if len(np.Params) != 0 {
		t.Errorf("(void) parameter list should be empty, got %d", len(np.Params))
	}
}

func TestParseRecords(t *testing.T) {
	tu, err := Parse(`
struct Fwd;
struct A {
	int x;
	char buf[16];
	struct Fwd* next;
	int (*cb)(int);
};
union U {
	int i;
	float f;
};
typedef struct {
	int value;
} Anon;
`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	fwd, ok := tu.Record("Fwd")
	if !ok || fwd.Defined {
		t.Error("Fwd should be forward-declared only")
	}

	a, ok := tu.Record("A")
	if !ok || !a.Defined {
		t.Fatal("A not defined")
	}
	if len(a.Members) != 4 {
		t.Fatalf("A members = %d, want 4", len(a.Members))
	}
	if arr, ok := a.Members[1].Type.(*ArrayType); !ok || arr.Len != 16 {
		t.Errorf("buf should be a 16-element array, got %q", CString(a.Members[1].Type))
	}
	if !IsFunctionPointer(a.Members[3].Type) {
		t.Errorf("cb should be a function pointer, got %q", CString(a.Members[3].Type))
	}

	u, ok := tu.Record("U")
	if !ok || !u.Union || len(u.Members) != 2 {
		t.Error("U should be a union with two members")
	}

	anon, ok := tu.Record("Anon")
	if !ok || !anon.Defined || len(anon.Members) != 1 {
		t.Error("typedef struct {...} Anon should define record Anon")
	}
}

func TestParseEnums(t *testing.T) {
	tu, err := Parse(`
enum Plain { A, B, C };
enum Valued { X = 4, Y, Z = -2 };
enum class Scoped : uint8_t { S1, S2 };
`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	plain, ok := tu.Enum("Plain")
	if !ok {
		t.Fatal("Plain not found")
	}
	wantPlain := []Enumerator{{"A", 0}, {"B", 1}, {"C", 2}}
	for i, want := range wantPlain {
		if plain.Enumerators[i] != want {
			t.Errorf("Plain[%d] = %+v, want %+v", i, plain.Enumerators[i], want)
		}
	}

	valued, _ := tu.Enum("Valued")
	wantValued := []Enumerator{{"X", 4}, {"Y", 5}, {"Z", -2}}
	for i, want := range wantValued {
		if valued.Enumerators[i] != want {
			t.Errorf("Valued[%d] = %+v, want %+v", i, valued.Enumerators[i], want)
		}
	}

	scoped, _ := tu.Enum("Scoped")
	if !scoped.Scoped {
		t.Error("Scoped should be marked scoped")
	}
	b, ok := scoped.Underlying.(*BuiltinType)
	if !ok || b.Kind != abi.UChar {
		t.Errorf("Scoped underlying = %v, want uint8_t", scoped.Underlying)
	}
}

func TestParseTypedefs(t *testing.T) {
	tu, err := Parse(`
typedef unsigned long long u64;
typedef int (*Callback)(char, char);
using Alias = const char*;
`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	u64, ok := tu.Typedef("u64")
	if !ok {
		t.Fatal("u64 not found")
	}
	if b, ok := u64.Type.(*BuiltinType); !ok || b.Kind != abi.ULongLong {
		t.Errorf("u64 = %q, want unsigned long long", CString(u64.Type))
	}

	cb, ok := tu.Typedef("Callback")
	if !ok || !IsFunctionPointer(cb.Type) {
		t.Error("Callback should be a function-pointer typedef")
	}

	alias, ok := tu.Typedef("Alias")
	if !ok || CString(alias.Type) != "const char *" {
		t.Errorf("Alias = %q, want 'const char *'", CString(alias.Type))
	}
}

func TestParseConfigRecords(t *testing.T) {
	tu, err := Parse(`
template<auto> struct fex_gen_config {};
template<typename> struct fex_gen_type {};

void func(int a);
void versioned();
void variadic(int fmt, ...);
struct Opaque;

template<> struct fex_gen_config<func> : fexgen::custom_host_impl {};
template<> struct fex_gen_config<versioned> { int version = 123; };
template<> struct fex_gen_config<variadic> { using uniform_va_type = char; };
template<> struct fex_gen_type<Opaque> : fexgen::opaque_type {};
template<> struct fex_gen_type<int(char, char)> {};
template<> struct fex_gen_param<func, 0, int> : fexgen::assume_compatible_data_layout {};
`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if len(tu.Configs) != 6 {
		t.Fatalf("config count = %d, want 6", len(tu.Configs))
	}

	c0 := tu.Configs[0]
	if c0.Kind != ConfigFunction || c0.Target != "func" {
		t.Errorf("config 0 = %+v", c0)
	}
	if len(c0.Bases) != 1 || c0.Bases[0] != "fexgen::custom_host_impl" {
		t.Errorf("config 0 bases = %v", c0.Bases)
	}

	c1 := tu.Configs[1]
	if len(c1.Members) != 1 || c1.Members[0].Kind != ConfigValue ||
		c1.Members[0].Name != "version" || c1.Members[0].Value != 123 {
		t.Errorf("version member = %+v", c1.Members)
	}

	c2 := tu.Configs[2]
	if len(c2.Members) != 1 || c2.Members[0].Kind != ConfigAlias || c2.Members[0].Name != "uniform_va_type" {
		t.Errorf("uniform_va_type member = %+v", c2.Members)
	}
	if b, ok := c2.Members[0].Type.(*BuiltinType); !ok || b.Kind != abi.Char {
		t.Errorf("uniform_va_type = %v, want char", c2.Members[0].Type)
	}

	c3 := tu.Configs[3]
	if c3.Kind != ConfigType {
		t.Errorf("config 3 kind = %v, want fex_gen_type", c3.Kind)
	}
	if nt, ok := c3.TargetType.(*NamedType); !ok || nt.Name != "Opaque" {
		t.Errorf("config 3 target = %v", c3.TargetType)
	}

	c4 := tu.Configs[4]
	ft, ok := c4.TargetType.(*FunctionType)
	if !ok {
		t.Fatalf("config 4 target should be a function type, got %T", c4.TargetType)
	}
	if CString(ft.Ret) != "int" || len(ft.Params) != 2 {
		t.Errorf("config 4 signature = %q", CString(ft))
	}

	c5 := tu.Configs[5]
	if c5.Kind != ConfigParam || c5.Target != "func" || c5.ParamIndex != 0 {
		t.Errorf("config 5 = %+v", c5)
	}
	if len(c5.Bases) != 1 || c5.Bases[0] != "fexgen::assume_compatible_data_layout" {
		t.Errorf("config 5 bases = %v", c5.Bases)
	}
}

func TestParseUnknownTemplateSpecialization(t *testing.T) {
	_, err := Parse(`template<> struct something_else<int> {};`)
	if err == nil {
		t.Fatal("expected error for unknown template specialization")
	}
	if !strings.Contains(err.Error(), "something_else") {
		t.Errorf("error should name the template, got: %v", err)
	}
}

func TestParseExternAndNamespace(t *testing.T) {
	tu, err := Parse(`
namespace fexgen {
struct custom_host_impl {};
struct opaque_type {};
}

extern "C" {
void exported(int x);
}

extern "C" void single();
`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, ok := tu.Function("exported"); !ok {
		t.Error("exported not parsed inside extern block")
	}
	if _, ok := tu.Function("single"); !ok {
		t.Error("single not parsed after extern linkage")
	}
	// Marker namespace contents are skipped, not declared.
	if _, ok := tu.Record("custom_host_impl"); ok {
		t.Error("namespace contents should be skipped")
	}
}

func TestParseHostGuestViews(t *testing.T) {
	source := `
struct A {
	int x;
#ifdef HOST
	int host_only;
#endif
};
void func(A* a);
template<> struct fex_gen_config<func> {};
`
	guest, host, err := ParseViews(source)
	if err != nil {
		t.Fatalf("ParseViews: %v", err)
	}

	ga, _ := guest.Record("A")
	ha, _ := host.Record("A")
	if len(ga.Members) != 1 {
		t.Errorf("guest A members = %d, want 1", len(ga.Members))
	}
	if len(ha.Members) != 2 {
		t.Errorf("host A members = %d, want 2", len(ha.Members))
	}
}

func TestCanonical(t *testing.T) {
	tu, err := Parse(`
struct A { int x; };
typedef struct A AliasA;
typedef AliasA* PtrA;
typedef unsigned int MyUint;
`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	ptr, _ := tu.Typedef("PtrA")
	canon, err := tu.Canonical(ptr.Type)
	if err != nil {
		t.Fatalf("Canonical: %v", err)
	}
	pt, ok := canon.(*PointerType)
	if !ok {
		t.Fatalf("canonical PtrA = %T, want pointer", canon)
	}
	if nt, ok := pt.Pointee.(*NamedType); !ok || nt.Name != "A" {
		t.Errorf("canonical pointee = %v, want A", pt.Pointee)
	}

	mu, _ := tu.Typedef("MyUint")
	canon, err = tu.Canonical(mu.Type)
	if err != nil {
		t.Fatalf("Canonical: %v", err)
	}
	if b, ok := canon.(*BuiltinType); !ok || b.Kind != abi.UInt {
		t.Errorf("canonical MyUint = %v, want unsigned int", canon)
	}

	if _, err := tu.Canonical(&NamedType{Name: "Missing"}); err == nil {
		t.Error("Canonical should fail on unknown names")
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name   string
		source string
	}{
		{"bitfield member", "struct A { int x : 3; };"},
		{"record redefinition", "struct A { int x; }; struct A { int y; };"},
		{"missing semicolon", "void func()"},
		{"stray token", "@"},
		{"unterminated record", "struct A { int x;"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.source); err == nil {
				t.Errorf("Parse(%q) should fail", tt.source)
			}
		})
	}
}

func TestParamDecay(t *testing.T) {
	tu, err := Parse(`void func(int arr[4], void handler(int));`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	f, _ := tu.Function("func")
	if got := CString(f.Params[0].Type); got != "int *" {
		t.Errorf("array param decays to %q, want 'int *'", got)
	}
	if !IsFunctionPointer(f.Params[1].Type) {
		t.Errorf("function param decays to %q, want function pointer", CString(f.Params[1].Type))
	}
}
