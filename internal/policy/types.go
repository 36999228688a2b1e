// Package policy implements capcage's declarative capability policy: TOML
// parsing, the five-scope permission inheritance model, and import
// resolution of capabilities exported by a dependency's own policy.
package policy

import "sort"

// CapabilityName is a short identifier naming a category of sensitive
// platform APIs, e.g. "fs", "net", "process". "unsafe" and "error" are
// built-in and special: unsafe tracks raw-pointer/inline-assembly usage,
// error tracks code the analyzer failed to parse.
type CapabilityName string

const (
	CapabilityUnsafe CapabilityName = "unsafe"
	CapabilityError  CapabilityName = "error"
)

// Scope determines when a permission record applies: to the package's own
// primary build output, its build script, its tests, or to someone else's
// build script/tests that link the package in.
type Scope int

const (
	ScopeAll Scope = iota
	ScopeBuild
	ScopeTest
	ScopeFromBuild
	ScopeFromTest
)

func (s Scope) String() string {
	switch s {
	case ScopeAll:
		return "all"
	case ScopeBuild:
		return "build"
	case ScopeTest:
		return "test"
	case ScopeFromBuild:
		return "from_build"
	case ScopeFromTest:
		return "from_test"
	default:
		return "unknown"
	}
}

// Parent returns the scope a given scope inherits grants from, and whether
// it has one. Build and Test inherit from their From* sibling, which in
// turn inherits from All:
//
//	All  ──┬── FromBuild ── Build
//	       └── FromTest  ── Test
func (s Scope) Parent() (Scope, bool) {
	switch s {
	case ScopeBuild:
		return ScopeFromBuild, true
	case ScopeTest:
		return ScopeFromTest, true
	case ScopeFromBuild, ScopeFromTest:
		return ScopeAll, true
	default:
		return 0, false
	}
}

// scopeApplicationOrder lists scopes in an order where every scope's parent
// precedes it, so a single top-down pass applies inheritance correctly.
var scopeApplicationOrder = []Scope{ScopeAll, ScopeFromBuild, ScopeFromTest, ScopeBuild, ScopeTest}

// Selector is the key permission records are stored and looked up under.
type Selector struct {
	Package string
	Scope   Scope
}

// unionSortedDedup merges a and b, sorts the result, and removes duplicates.
// This is the list-composition rule used throughout inheritance: a child's
// lists are never replaced by a parent's, only unioned with it.
func unionSortedDedup(a, b []string) []string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(a)+len(b))

	out := make([]string, 0, len(a)+len(b))

	for _, s := range a {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}

			out = append(out, s)
		}
	}

	for _, s := range b {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}

			out = append(out, s)
		}
	}

	sort.Strings(out)

	return out
}
