package symbol

import "strings"

// Name is a single "::"-separated dotted path extracted from a demangled
// symbol, e.g. ["core", "ptr", "drop_in_place"]. A demangled symbol can
// split into more than one Name when it contains generic parameters that
// themselves reference other paths (see SplitNames).
type Name struct {
	Parts []string
}

// String joins Parts with "::".
func (n Name) String() string {
	return strings.Join(n.Parts, "::")
}

// HasPrefix reports whether n starts with all of prefix's parts, in order.
// This backs the capability trie's longest-prefix lookup.
func (n Name) HasPrefix(prefix Name) bool {
	if len(prefix.Parts) > len(n.Parts) {
		return false
	}

	for i, p := range prefix.Parts {
		if n.Parts[i] != p {
			return false
		}
	}

	return true
}

// SplitNames splits a demangled, human-readable symbol (already "::"-joined,
// with generics in angle brackets) into the distinct dotted-name paths it
// references. A symbol like
//
//	core::ptr::drop_in_place<std::rt::lang_start<()>::{{closure}}>
//
// names both "core::ptr::drop_in_place" and, inside its generic parameter,
// "std::rt::lang_start", plus the synthetic closure marker "{{closure}}" -
// each becomes its own Name. Parens and '&' are ignored (reference/tuple/
// fn-argument syntax carries no path information). A "<T as Trait>::method"
// cast keeps the type and the trait as two separate names, but suppresses
// comma-splitting while inside the cast so a generic argument inside T isn't
// mistaken for a sibling name. The literal token "mut" is dropped, since it
// never starts or continues a path.
func SplitNames(composite string) []Name {
	var (
		names    []Name
		current  []string
		ident    strings.Builder
		asActive bool
	)

	flushIdent := func() {
		part := ident.String()
		ident.Reset()

		if part == "" || part == "mut" || part == "as" {
			return
		}

		current = append(current, part)
	}

	flushName := func() {
		flushIdent()

		if len(current) > 0 {
			names = append(names, Name{Parts: current})
			current = nil
		}
	}

	s := composite

	for len(s) > 0 {
		switch {
		case strings.HasPrefix(s, "::"):
			flushIdent()
			s = s[2:]
		case strings.HasPrefix(s, " as "):
			flushName()
			asActive = true
			s = s[len(" as "):]
		case s[0] == '<':
			flushName()
			s = s[1:]
		case s[0] == '>':
			if asActive {
				// The cast's trait path continues past '>' (e.g. the
				// "::fmt" in "<T as Trait>::fmt"), so keep current alive.
				flushIdent()
				asActive = false
			} else {
				flushName()
			}

			s = s[1:]
		case s[0] == ',':
			if asActive {
				ident.WriteByte(',')
			} else {
				flushName()
			}

			s = s[1:]
		case s[0] == '(' || s[0] == ')' || s[0] == '&':
			flushIdent()
			s = s[1:]
		case s[0] == ' ':
			flushIdent()
			s = s[1:]
		default:
			ident.WriteByte(s[0])
			s = s[1:]
		}
	}

	flushName()

	return names
}
