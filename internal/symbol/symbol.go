package symbol

// Symbol is a named entry from an object file's symbol table: a function,
// static, or other linker-visible item, keyed by its possibly-mangled name.
type Symbol struct {
	bytes Bytes
}

// New wraps a symbol table entry's raw name bytes.
func New(name Bytes) Symbol {
	return Symbol{bytes: name}
}

// Raw returns the symbol's unmangled, on-disk name bytes.
func (s Symbol) Raw() string {
	return s.bytes.String()
}

// Names returns the dotted-name paths this symbol references: its own
// defining path, plus one per generic-argument path found in a demangled
// display of it (see SplitNames). Ok is false if the symbol's name isn't a
// legacy-mangled Rust symbol this package can demangle, e.g. a C symbol or
// a v0-mangled one.
func (s Symbol) Names() ([]Name, bool) {
	demangled, ok := Demangle(s.Raw())
	if !ok {
		return nil, false
	}

	return SplitNames(demangled), true
}

// ModuleName returns the second raw mangled segment, conventionally the
// top-level module within the owning crate (the first segment is the
// crate name). Ok is false if the symbol has fewer than two segments.
func (s Symbol) ModuleName() (string, bool) {
	segs, ok := rawSegments(s.Raw())
	if !ok || len(segs) < 2 {
		return "", false
	}

	return segs[1], true
}

// CrateName returns the first raw mangled segment, conventionally the name
// of the crate that defines the symbol.
func (s Symbol) CrateName() (string, bool) {
	segs, ok := rawSegments(s.Raw())
	if !ok || len(segs) < 1 {
		return "", false
	}

	return segs[0], true
}

// IsLookThrough reports whether the symbol is one of the small set of
// transparent wrapper functions in core::ops::function (Fn/FnMut/FnOnce
// call shims) whose own body should be ignored in favor of attributing
// whatever it calls directly to the caller - calling through one of these
// should not, by itself, grant any capability.
func (s Symbol) IsLookThrough() bool {
	segs, ok := rawSegments(s.Raw())
	if !ok || len(segs) < 3 {
		return false
	}

	return segs[0] == "core" && segs[1] == "ops" && segs[2] == "function"
}

// String returns the symbol's demangled display form, or its raw name if it
// can't be demangled.
func (s Symbol) String() string {
	if demangled, ok := Demangle(s.Raw()); ok {
		return demangled
	}

	return s.Raw()
}

// rawSegments returns the symbol's un-unescaped mangled segments (crate
// name, module name, ... , hash), without joining or unescaping them. Used
// by ModuleName/CrateName/IsLookThrough, which only ever need to compare
// leading segments against known ASCII identifiers and have no need to pay
// for full demangling.
func rawSegments(raw string) ([]string, bool) {
	it := newSegmentIterator(raw)

	var segs []string

	for {
		seg, more := it.next()
		if !more {
			break
		}

		segs = append(segs, seg)
	}

	if len(segs) == 0 {
		return nil, false
	}

	return segs, true
}
