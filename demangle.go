package tracemap

import (
	"strings"

	"github.com/ianlancetaylor/demangle"
)

// coldSuffix marks compiler generated cold-path clones of a function
// (e.g. "_Z3fooi.cold"). The suffix is not part of the mangled name and has
// to come off before demangling.
const coldSuffix = ".cold"

// Demangler converts a compiler mangled identifier into human-readable form.
// A failed conversion is reported by a non-nil error or an empty result.
type Demangler func(name string) (string, error)

// EffectiveName returns the name under which a symbol is encoded, applying
// the demangler d as follows.
//
//    1. A trailing ".cold" suffix is stripped before demangling.
//    2. If demangling fails, the original name is used untouched; the
//       stripped suffix does not leak into the fallback.
//    3. If demangling succeeds, the demangled name is used as is. The ".cold"
//       suffix is not restored, so cold-path clones encode under the name of
//       the function they were cloned from.
//
// A nil d leaves name untouched.
func EffectiveName(name string, d Demangler) string {
	if d == nil {
		return name
	}
	s, err := d(strings.TrimSuffix(name, coldSuffix))
	if err != nil || len(s) == 0 {
		return name
	}
	return s
}

// CXXFilt returns a demangler for Itanium C++ ABI and Rust symbol names, in
// the manner of the c++filt tool.
func CXXFilt() Demangler {
	return func(name string) (string, error) {
		return demangle.ToString(name)
	}
}
