package hierarchy

import "strings"

// Normalize converts a simulator-native hierarchical name into a canonical
// external name path.
//
//	":TEST_TRAN_STR:GEN_CHAIN(1):TC"  ->  ".test_tran_str.gen_chain(1).tc"
//
// Leading ':' and '@' markers are dropped, ':' separators become '.', and the
// result is lowercased with a single leading dot. Already-canonical input is
// returned unchanged, so Normalize(Normalize(p)) == Normalize(p).
func Normalize(native string) string {
	src := strings.TrimLeft(native, ":@.")

	var b strings.Builder
	b.Grow(len(src) + 1)
	b.WriteByte('.')
	for i := 0; i < len(src); i++ {
		c := src[i]
		if c == ':' {
			c = '.'
		}
		if 'A' <= c && c <= 'Z' {
			c += 'a' - 'A'
		}
		b.WriteByte(c)
	}
	return b.String()
}

// Join extends a canonical path by one lowercased segment. An empty base
// (or the bare root ".") starts a new absolute path.
func Join(base, segment string) string {
	segment = strings.ToLower(segment)
	if base == "" || base == "." {
		return "." + segment
	}
	return base + "." + segment
}
