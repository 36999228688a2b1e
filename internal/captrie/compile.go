package captrie

import "strings"

// IncludeRule grants Capability to every name under Prefix.
type IncludeRule struct {
	Capability CapabilityName
	Prefix     string // "::"-separated, e.g. "std::fs"
}

// ExcludeRule revokes Capability from every name under Prefix, overriding
// any shallower include for the same capability.
type ExcludeRule struct {
	Capability CapabilityName
	Prefix     string
}

// Compile builds a trie from a flat rule list in three passes: first every
// node any rule mentions is created (so a later include's UpdateSubtree
// cascade reaches every node that will ever need it, including nodes only
// an exclude rule names), then every include grants its capability across
// its whole subtree, and only once all includes are applied are the
// excludes applied the same way. This order is significant - it's what
// makes a deeper exclude always beat a shallower include regardless of the
// declaration order in the source policy (spec §4.3, §8's
// "include-then-exclude" invariant), and it's why node creation must
// precede every mutation rather than being interleaved rule-by-rule: a node
// created after its ancestor's grant would not retroactively inherit it.
func Compile(includes []IncludeRule, excludes []ExcludeRule) *Trie {
	t := New()

	for _, inc := range includes {
		t.CreateEntry(splitPrefix(inc.Prefix))
	}

	for _, exc := range excludes {
		t.CreateEntry(splitPrefix(exc.Prefix))
	}

	for _, inc := range includes {
		t.MutTree(splitPrefix(inc.Prefix)).UpdateSubtree(Add(inc.Capability))
	}

	for _, exc := range excludes {
		t.MutTree(splitPrefix(exc.Prefix)).UpdateSubtree(Remove(exc.Capability))
	}

	return t
}

func splitPrefix(prefix string) []string {
	if prefix == "" {
		return nil
	}

	return strings.Split(prefix, "::")
}
