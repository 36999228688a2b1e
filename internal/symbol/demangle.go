package symbol

import (
	"strconv"
	"strings"
)

// segmentIterator walks the length-prefixed identifier segments of a legacy
// Rust mangled name (the "_ZN...E" scheme), without unescaping their
// content. It is deliberately simple: it exists for call sites that only
// need to look at one or two leading segments (crate name, module name,
// look-through detection) without the cost of fully demangling.
type segmentIterator struct {
	data string
}

// newSegmentIterator returns an iterator over data's mangled segments. If
// data does not start with the legacy "_ZN" prefix, the iterator yields no
// segments.
func newSegmentIterator(data string) segmentIterator {
	if rest, ok := strings.CutPrefix(data, "_ZN"); ok {
		return segmentIterator{data: rest}
	}

	return segmentIterator{}
}

// next returns the next raw segment, or ok=false when the input is
// exhausted or malformed. A segment beginning with '_' indicates mangled
// content nested inside this one (e.g. a monomorphized closure); this
// iterator does not support that and stops instead of misinterpreting it.
func (it *segmentIterator) next() (string, bool) {
	numDigits := 0
	for numDigits < len(it.data) && it.data[numDigits] >= '0' && it.data[numDigits] <= '9' {
		numDigits++
	}

	if numDigits == 0 {
		return "", false
	}

	length, err := strconv.Atoi(it.data[:numDigits])
	if err != nil {
		return "", false
	}

	rest := it.data[numDigits:]
	if length >= len(rest) {
		return "", false
	}

	part, rest := rest[:length], rest[length:]
	it.data = rest

	if strings.HasPrefix(part, "_") {
		return "", false
	}

	return part, true
}

// legacyEscapes maps the fixed-width escape tokens rustc's legacy mangler
// substitutes for characters that aren't valid in a mangled identifier.
var legacyEscapes = map[string]string{
	"SP": "@",
	"BP": "*",
	"RF": "&",
	"LT": "<",
	"GT": ">",
	"LP": "(",
	"RP": ")",
	"C":  ",",
}

// unescapeLegacySegment reverses the escaping rustc's legacy mangler applies
// within a single identifier segment: "$TOKEN$" replacements, ".." for the
// path separator "::", and a lone "." for "-" (used in lifetime names).
func unescapeLegacySegment(s string) string {
	var b strings.Builder

	for i := 0; i < len(s); {
		switch {
		case s[i] == '$':
			end := strings.IndexByte(s[i+1:], '$')
			if end < 0 {
				b.WriteByte(s[i])
				i++

				continue
			}

			token := s[i+1 : i+1+end]
			i += 1 + end + 1

			switch {
			case legacyEscapes[token] != "":
				b.WriteString(legacyEscapes[token])
			case strings.HasPrefix(token, "u"):
				if v, err := strconv.ParseInt(token[1:], 16, 32); err == nil {
					b.WriteRune(rune(v))

					continue
				}

				b.WriteByte('$')
				b.WriteString(token)
				b.WriteByte('$')
			default:
				b.WriteByte('$')
				b.WriteString(token)
				b.WriteByte('$')
			}
		case s[i] == '.' && i+1 < len(s) && s[i+1] == '.':
			b.WriteString("::")
			i += 2
		case s[i] == '.':
			b.WriteByte('-')
			i++
		default:
			b.WriteByte(s[i])
			i++
		}
	}

	return b.String()
}

// isHashSuffix reports whether segment looks like the trailing
// disambiguation hash rustc appends to every mangled symbol (a lowercase
// 'h' followed by 16 hex digits), which is dropped from the demangled form.
func isHashSuffix(segment string) bool {
	if len(segment) != 17 || segment[0] != 'h' {
		return false
	}

	for _, c := range segment[1:] {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}

	return true
}

// Demangle converts a legacy-mangled Rust symbol name into its human-
// readable, "::"-joined form (e.g. "core::ptr::drop_in_place<...>"). The
// trailing disambiguation hash segment is dropped. ok is false if mangled
// does not look like a legacy-mangled name this package understands (v0
// mangling and mangled names with nested mangling are out of scope, the
// same limitation the original fast-path demangler documents).
func Demangle(mangled string) (demangled string, ok bool) {
	it := newSegmentIterator(mangled)

	var segments []string

	for {
		seg, more := it.next()
		if !more {
			break
		}

		segments = append(segments, seg)
	}

	if len(segments) == 0 {
		return "", false
	}

	if isHashSuffix(segments[len(segments)-1]) {
		segments = segments[:len(segments)-1]
	}

	if len(segments) == 0 {
		return "", false
	}

	parts := make([]string, len(segments))
	for i, seg := range segments {
		parts[i] = unescapeLegacySegment(seg)
	}

	return strings.Join(parts, "::"), true
}
