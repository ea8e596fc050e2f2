package gen

import (
	"strings"
	"testing"

	"github.com/wippyai/thunkgen/abi"
	"github.com/wippyai/thunkgen/analysis"
	"github.com/wippyai/thunkgen/cdecl"
	"github.com/wippyai/thunkgen/errors"
	"github.com/wippyai/thunkgen/layout"
)

func pipeline(t *testing.T, src string, guestArch, hostArch abi.Arch) (*analysis.API, *layout.Set) {
	t.Helper()
	guest, host, err := cdecl.ParseViews(src)
	if err != nil {
		t.Fatalf("ParseViews: %v", err)
	}
	api, err := analysis.Analyze(guest, "libtest")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	set, err := layout.Compute(guest, host, api, guestArch, hostArch)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	return api, set
}

func generateGuest(t *testing.T, src string) string {
	t.Helper()
	api, _ := pipeline(t, src, abi.X86_64, abi.X86_64)
	return string(Guest(api))
}

func generateHost(t *testing.T, src string, guestArch, hostArch abi.Arch) string {
	t.Helper()
	api, set := pipeline(t, src, guestArch, hostArch)
	out, err := Host(api, set)
	if err != nil {
		t.Fatalf("Host: %v", err)
	}
	return string(out)
}

func hostError(t *testing.T, src string, guestArch, hostArch abi.Arch) *errors.Error {
	t.Helper()
	api, set := pipeline(t, src, guestArch, hostArch)
	_, err := Host(api, set)
	if err == nil {
		t.Fatal("Host() succeeded, want error")
	}
	e, ok := err.(*errors.Error)
	if !ok {
		t.Fatalf("Host() error = %T (%v), want *errors.Error", err, err)
	}
	return e
}

func wantContains(t *testing.T, out, want string) {
	t.Helper()
	if !strings.Contains(out, want) {
		t.Errorf("output missing %q\n--- output ---\n%s", want, out)
	}
}

func wantMissing(t *testing.T, out, text string) {
	t.Helper()
	if strings.Contains(out, text) {
		t.Errorf("output unexpectedly contains %q", text)
	}
}

// exportCount counts real export entries, excluding the sentinel.
func exportCount(out string) int {
	return strings.Count(out, "  {(uint8_t*)")
}

const trivialSrc = `
void func();
template<auto> struct fex_gen_config {};
template<> struct fex_gen_config<func> {};
`

// Known vectors pin the embedded hash encodings. SHA-256("libtest:func")
// is 1823ab86952e7f782b47465c0c2daa9a162c1b48d015aacf7bbee5d12134bebd.
const (
	funcHashGuest = `0x18, 0x23, 0xab, 0x86, 0x95, 0x2e, 0x7f, 0x78, 0x2b, 0x47, 0x46, 0x5c, 0xc, 0x2d, 0xaa, 0x9a, 0x16, 0x2c, 0x1b, 0x48, 0xd0, 0x15, 0xaa, 0xcf, 0x7b, 0xbe, 0xe5, 0xd1, 0x21, 0x34, 0xbe, 0xbd`
	funcHashHost  = `\x18\x23\xab\x86\x95\x2e\x7f\x78\x2b\x47\x46\x5c\x0c\x2d\xaa\x9a\x16\x2c\x1b\x48\xd0\x15\xaa\xcf\x7b\xbe\xe5\xd1\x21\x34\xbe\xbd`
	funcHashHex   = "1823ab86952e7f782b47465c0c2daa9a162c1b48d015aacf7bbee5d12134bebd"

	// SHA-256("fexcallback_int (char, char)")
	cbHashGuest = `0x81, 0x7b, 0x7b, 0xe4, 0x81, 0x3b, 0x99, 0x82, 0x84, 0xd1, 0x60, 0xc7, 0xc3, 0x1e, 0xfd, 0x6f, 0xea, 0x60, 0x9c, 0x71, 0xd0, 0xca, 0x74, 0x3f, 0x3a, 0x47, 0x8, 0xba, 0x26, 0xde, 0x8b, 0x49`
	cbHashHost  = `\x81\x7b\x7b\xe4\x81\x3b\x99\x82\x84\xd1\x60\xc7\xc3\x1e\xfd\x6f\xea\x60\x9c\x71\xd0\xca\x74\x3f\x3a\x47\x08\xba\x26\xde\x8b\x49`
	cbHashHex   = "817b7be4813b998284d160c7c31efd6fea609c71d0ca743f3a4708ba26de8b49"
)

func TestHashEncodings(t *testing.T) {
	fh := FunctionHash("libtest", "func")
	if got := thunkBytes(fh); got != funcHashGuest {
		t.Errorf("thunkBytes = %s, want %s", got, funcHashGuest)
	}
	if got := escapeBytes(fh); got != funcHashHost {
		t.Errorf("escapeBytes = %s, want %s", got, funcHashHost)
	}

	ch := CallbackHash("int (char, char)")
	if got := thunkBytes(ch); got != cbHashGuest {
		t.Errorf("callback thunkBytes = %s, want %s", got, cbHashGuest)
	}
	if got := escapeBytes(ch); got != cbHashHost {
		t.Errorf("callback escapeBytes = %s, want %s", got, cbHashHost)
	}

	// Callback identity must not depend on the library.
	if CallbackHash("int (char, char)") != CallbackHash("int (char, char)") {
		t.Error("callback hash not stable")
	}
	if FunctionHash("liba", "fn") == FunctionHash("libb", "fn") {
		t.Error("function hash ignores the library name")
	}
}

func TestGenerationIdempotent(t *testing.T) {
	src := `
struct Mixed { char c; double d; };
struct TestStruct { int member; };
void func(int a, TestStruct* s);
int calc(Mixed m);
void notify(int (*cb)(char, char));

template<auto> struct fex_gen_config {};
template<> struct fex_gen_config<func> {};
template<> struct fex_gen_config<calc> {};
template<> struct fex_gen_config<notify> {};
template<typename> struct fex_gen_type {};
template<> struct fex_gen_type<TestStruct> : fexgen::assume_compatible_data_layout {};
`
	run := func() (string, string, string) {
		api, set := pipeline(t, src, abi.X86_32, abi.X86_64)
		hostOut, err := Host(api, set)
		if err != nil {
			t.Fatalf("Host: %v", err)
		}
		manifest, err := BuildManifest(api, abi.X86_32, abi.X86_64).Encode()
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		return string(Guest(api)), string(hostOut), string(manifest)
	}

	g1, h1, m1 := run()
	g2, h2, m2 := run()
	if g1 != g2 {
		t.Error("guest output differs between runs")
	}
	if h1 != h2 {
		t.Error("host output differs between runs")
	}
	if m1 != m2 {
		t.Error("manifest differs between runs")
	}
}
