package cdecl

import (
	"fmt"
	"strings"
)

// condFrame tracks one open conditional block.
type condFrame struct {
	taken    bool // this branch is emitting
	everTook bool // some branch of this block emitted
	seenElse bool
}

// preprocess filters source according to conditional-compilation
// directives. Only the directive subset the interface definitions use is
// supported: #ifdef, #ifndef, #else, #endif, #define, #undef, #include
// (skipped), #pragma (skipped). Suppressed and directive lines become
// blank lines so token line numbers stay true to the input.
func preprocess(source string, defines map[string]bool) (string, error) {
	defined := make(map[string]bool, len(defines))
	for k, v := range defines {
		defined[k] = v
	}

	var out strings.Builder
	var stack []condFrame

	active := func() bool {
		for _, f := range stack {
			if !f.taken {
				return false
			}
		}
		return true
	}

	lines := strings.Split(source, "\n")
	for i, line := range lines {
		lineno := i + 1
		trimmed := strings.TrimSpace(line)

		if !strings.HasPrefix(trimmed, "#") {
			if active() {
				out.WriteString(line)
			}
			out.WriteByte('\n')
			continue
		}

		fields := strings.Fields(strings.TrimSpace(trimmed[1:]))
		if len(fields) == 0 {
			out.WriteByte('\n') // null directive
			continue
		}

		directive := fields[0]
		arg := ""
		if len(fields) > 1 {
			arg = fields[1]
		}

		switch directive {
		case "ifdef", "ifndef":
			if arg == "" {
				return "", fmt.Errorf("line %d: #%s without a name", lineno, directive)
			}
			take := defined[arg]
			if directive == "ifndef" {
				take = !take
			}
			take = take && active()
			stack = append(stack, condFrame{taken: take, everTook: take})
		case "else":
			if len(stack) == 0 {
				return "", fmt.Errorf("line %d: #else without matching #ifdef", lineno)
			}
			top := &stack[len(stack)-1]
			if top.seenElse {
				return "", fmt.Errorf("line %d: duplicate #else", lineno)
			}
			top.seenElse = true
			parent := true
			for _, f := range stack[:len(stack)-1] {
				if !f.taken {
					parent = false
					break
				}
			}
			top.taken = parent && !top.everTook
			if top.taken {
				top.everTook = true
			}
		case "endif":
			if len(stack) == 0 {
				return "", fmt.Errorf("line %d: #endif without matching #ifdef", lineno)
			}
			stack = stack[:len(stack)-1]
		case "define":
			if arg == "" {
				return "", fmt.Errorf("line %d: #define without a name", lineno)
			}
			if active() {
				defined[arg] = true
			}
		case "undef":
			if arg == "" {
				return "", fmt.Errorf("line %d: #undef without a name", lineno)
			}
			if active() {
				delete(defined, arg)
			}
		case "include", "pragma":
			// External headers and pragmas carry nothing the subset
			// front-end consumes.
		default:
			return "", fmt.Errorf("line %d: unsupported directive #%s", lineno, directive)
		}
		out.WriteByte('\n')
	}

	if len(stack) != 0 {
		return "", fmt.Errorf("unterminated conditional (%d open at end of input)", len(stack))
	}

	return out.String(), nil
}
