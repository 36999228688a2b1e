// Package analyzer implements the symbol-graph analyzer (spec §4.4): it
// walks an executable's input objects, resolves each relocation to a set of
// target symbols, attributes the reference to a package, and walks the
// capability trie to emit UsageRecords.
package analyzer

// RelocTarget is the resolved destination of one relocation: either a named
// symbol, or (when the symbol table entry carries no name, as for an
// anonymous section-local symbol) the section it points into, which must be
// walked recursively.
type RelocTarget struct {
	SymbolName   string
	SectionIndex int
	IsSection    bool
}

// Relocation is one entry from a section's relocation table: an offset
// within the section, and the target it refers to.
type Relocation struct {
	Offset uint64
	Target RelocTarget
}

// Section is one defined section of an input object file.
type Section struct {
	Index            int
	Name             string
	StartSymbol      string
	StartSymbolLocal bool
	Relocations      []Relocation
}

// HasStartSymbol reports whether a globally visible symbol starts at this
// section's offset zero.
func (s Section) HasStartSymbol() bool {
	return s.StartSymbol != "" && !s.StartSymbolLocal
}

// Object is one input object file (a loose `.o`, or a single archive
// member), reduced to the section/relocation shape the analyzer needs.
type Object struct {
	Path     string
	Sections map[int]Section
}

// targetSymbols implements target_symbols (spec §4.4 step 3b): resolves a
// single relocation target to the set of symbol names it ultimately
// references, recursing through nameless section targets and visiting each
// section at most once to guard against cyclic section graphs.
func (o *Object) targetSymbols(target RelocTarget, visited map[int]bool) []string {
	if !target.IsSection {
		if target.SymbolName == "" {
			return nil
		}

		return []string{target.SymbolName}
	}

	if visited[target.SectionIndex] {
		return nil
	}
	visited[target.SectionIndex] = true

	sec, ok := o.Sections[target.SectionIndex]
	if !ok {
		return nil
	}

	var out []string
	for _, rel := range sec.Relocations {
		out = append(out, o.targetSymbols(rel.Target, visited)...)
	}

	return dedupStrings(out)
}

// TargetSymbols resolves a relocation's full target-symbol set, starting a
// fresh visited-section set for this top-level call.
func (o *Object) TargetSymbols(rel Relocation) []string {
	return o.targetSymbols(rel.Target, make(map[int]bool))
}

func dedupStrings(in []string) []string {
	if len(in) < 2 {
		return in
	}

	seen := make(map[string]bool, len(in))
	out := in[:0]

	for _, s := range in {
		if seen[s] {
			continue
		}

		seen[s] = true
		out = append(out, s)
	}

	return out
}
