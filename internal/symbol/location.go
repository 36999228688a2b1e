package symbol

import (
	"strconv"
	"strings"
)

// SourceLocation is a DWARF line-table entry attributing a relocation or
// inlined-subroutine boundary to a source file position.
type SourceLocation struct {
	File string
	Line int
	// Column is 0 when HasColumn is false; DWARF line programs are not
	// required to carry column information.
	Column    int
	HasColumn bool
}

// toolchainSourceMarkers are path fragments that identify a DWARF comp-dir
// or file path as belonging to the Rust toolchain's own source (the
// standard library and compiler-builtins), rather than to any crate under
// analysis. Usages attributed only to toolchain source are suppressed,
// since the toolchain itself is trusted and not subject to policy.
var toolchainSourceMarkers = []string{
	"/rustc/",
	"/library/core/",
	"/library/std/",
	"/library/alloc/",
	"/library/proc_macro/",
}

// IsToolchainSource reports whether the location's file lies inside the
// Rust toolchain's own source tree, as opposed to a crate under analysis
// (including crates checked out from the crates.io registry).
func (l SourceLocation) IsToolchainSource() bool {
	for _, marker := range toolchainSourceMarkers {
		if strings.Contains(l.File, marker) {
			return true
		}
	}

	return false
}

// String renders "file:line" or "file:line:column" when a column is known.
func (l SourceLocation) String() string {
	if l.HasColumn {
		return l.File + ":" + strconv.Itoa(l.Line) + ":" + strconv.Itoa(l.Column)
	}

	return l.File + ":" + strconv.Itoa(l.Line)
}
