package cdecl

import (
	"strings"
	"testing"
)

func pp(t *testing.T, source string, defines ...string) string {
	t.Helper()
	defined := make(map[string]bool)
	for _, d := range defines {
		defined[d] = true
	}
	out, err := preprocess(source, defined)
	if err != nil {
		t.Fatalf("preprocess: %v", err)
	}
	return out
}

func TestPreprocessIfdef(t *testing.T) {
	source := "a\n#ifdef HOST\nb\n#else\nc\n#endif\nd\n"

	guest := pp(t, source)
	if strings.Contains(guest, "b") || !strings.Contains(guest, "c") {
		t.Errorf("guest view wrong: %q", guest)
	}

	host := pp(t, source, "HOST")
	if !strings.Contains(host, "b") || strings.Contains(host, "c") {
		t.Errorf("host view wrong: %q", host)
	}

	for _, view := range []string{guest, host} {
		if !strings.Contains(view, "a") || !strings.Contains(view, "d") {
			t.Errorf("unconditional lines missing: %q", view)
		}
	}
}

func TestPreprocessIfndef(t *testing.T) {
	source := "#ifndef HOST\nguest_only\n#endif\n"
	if !strings.Contains(pp(t, source), "guest_only") {
		t.Error("ifndef should take when undefined")
	}
	if strings.Contains(pp(t, source, "HOST"), "guest_only") {
		t.Error("ifndef should skip when defined")
	}
}

func TestPreprocessNesting(t *testing.T) {
	source := `#ifdef A
#ifdef B
ab
#else
a_only
#endif
#endif
`
	if out := pp(t, source, "A", "B"); !strings.Contains(out, "ab") {
		t.Errorf("A+B view = %q", out)
	}
	if out := pp(t, source, "A"); !strings.Contains(out, "a_only") || strings.Contains(out, "ab") {
		t.Errorf("A view = %q", out)
	}
	// Outer false suppresses both inner branches.
	if out := pp(t, source, "B"); strings.Contains(out, "ab") || strings.Contains(out, "a_only") {
		t.Errorf("B view = %q", out)
	}
}

func TestPreprocessDefineUndef(t *testing.T) {
	source := "#define X\n#ifdef X\nyes\n#endif\n#undef X\n#ifdef X\nno\n#endif\n"
	out := pp(t, source)
	if !strings.Contains(out, "yes") || strings.Contains(out, "no") {
		t.Errorf("define/undef view = %q", out)
	}
}

func TestPreprocessLinesPreserved(t *testing.T) {
	source := "#include <stdint.h>\n#ifdef HOST\nskipped\n#endif\nkept\n"
	out := pp(t, source)
	// Directive and suppressed lines become blanks so line numbers hold.
	gotLines := strings.Count(out, "\n")
	wantLines := strings.Count(source, "\n")
	if gotLines != wantLines {
		t.Errorf("line count = %d, want %d", gotLines, wantLines)
	}
	if idx := strings.Index(out, "kept"); idx >= 0 {
		if line := strings.Count(out[:idx], "\n") + 1; line != 5 {
			t.Errorf("kept moved to line %d, want 5", line)
		}
	} else {
		t.Error("kept line missing")
	}
}

func TestPreprocessErrors(t *testing.T) {
	tests := []struct {
		name   string
		source string
	}{
		{"unmatched else", "#else\n"},
		{"unmatched endif", "#endif\n"},
		{"duplicate else", "#ifdef A\n#else\n#else\n#endif\n"},
		{"unterminated", "#ifdef A\n"},
		{"unsupported directive", "#if defined(A)\n#endif\n"},
		{"ifdef without name", "#ifdef\n#endif\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := preprocess(tt.source, nil); err == nil {
				t.Errorf("preprocess(%q) should fail", tt.source)
			}
		})
	}
}
