package cdecl

import (
	"github.com/wippyai/thunkgen/cdecl/internal/token"
	"github.com/wippyai/thunkgen/errors"
)

// HostDefine is the preprocessor name separating the host view of an
// interface definition from the guest view.
const HostDefine = "HOST"

// Parse preprocesses and parses one view of a translation unit. Each
// name in defines is treated as a defined object-like macro.
func Parse(source string, defines ...string) (*TranslationUnit, error) {
	defined := make(map[string]bool, len(defines))
	for _, d := range defines {
		defined[d] = true
	}

	preprocessed, err := preprocess(source, defined)
	if err != nil {
		return nil, errors.ParseFailed("translation unit", err)
	}

	tokens := token.Tokenize(preprocessed)
	p := newParser(tokens)
	tu, err := p.parseTranslationUnit()
	if err != nil {
		return nil, errors.ParseFailed("translation unit", err)
	}
	return tu, nil
}

// ParseViews parses the guest and host views of one source text. The two
// views come from the same tokens modulo HOST-conditional blocks, so
// record and function names line up across them.
func ParseViews(source string) (guest, host *TranslationUnit, err error) {
	guest, err = Parse(source)
	if err != nil {
		return nil, nil, err
	}
	host, err = Parse(source, HostDefine)
	if err != nil {
		return nil, nil, err
	}
	return guest, host, nil
}
