package analyzer

import (
	"github.com/capcage/capcage/internal/captrie"
	"github.com/capcage/capcage/internal/symbol"
)

// Analyze implements spec §4.4 steps 2-3: it walks every input object's
// sections whose start symbol survived into the executable, resolves each
// relocation's target symbols, attributes the reference to a package, and
// walks the capability trie to emit UsageRecords. Look-through symbols are
// expanded transparently and intra-crate / toolchain-source references are
// suppressed.
func Analyze(exe *Executable, objects []*Object, inlineEdges []InlineEdge, trie *captrie.Trie, resolver PackageResolver) []UsageRecord {
	outbound := buildOutboundIndex(objects)

	var records []UsageRecord

	for _, obj := range objects {
		for _, sec := range obj.Sections {
			if !sec.HasStartSymbol() {
				continue
			}

			startAddr, ok := exe.SymbolAddress(sec.StartSymbol)
			if !ok {
				continue
			}

			for _, rel := range sec.Relocations {
				loc, ok := exe.LocationForAddress(startAddr + rel.Offset)
				if !ok || loc.IsToolchainSource() {
					continue
				}

				fromPkg, ok := attributePackage(loc, sec.StartSymbol, resolver)
				if !ok {
					continue
				}

				for _, target := range obj.TargetSymbols(rel) {
					records = append(records, recordsForTarget(fromPkg, sec.StartSymbol, target, loc, trie, outbound)...)
				}
			}
		}
	}

	for _, edge := range inlineEdges {
		if edge.Location.IsToolchainSource() {
			continue
		}

		fromPkg, ok := attributePackage(edge.Location, edge.Caller, resolver)
		if !ok {
			continue
		}

		records = append(records, recordsForTarget(fromPkg, edge.Caller, edge.Callee, edge.Location, trie, outbound)...)
	}

	return records
}

// attributePackage implements step 3d's "debug info over the source file
// (authoritative) or else via package_for_path (fallback)" rule: the
// resolver is handed the source path DWARF already attributed to this
// reference, falling back to the crate name embedded in the referencing
// symbol's own mangled name when no package owns that path (e.g. generated
// sources).
func attributePackage(loc symbol.SourceLocation, fromSymbolRaw string, resolver PackageResolver) (string, bool) {
	if resolver != nil {
		if pkg, ok := resolver.PackageForPath(loc.File); ok {
			return pkg, true
		}
	}

	return symbolCrateName(fromSymbolRaw)
}

func symbolCrateName(raw string) (string, bool) {
	return symbol.New(symbol.Borrowed([]byte(raw))).CrateName()
}

// buildOutboundIndex maps every section start symbol across all input
// objects to the symbols its own relocations directly target, the data
// look-through expansion needs to replace a reference to a transparent
// symbol with its own outbound references.
func buildOutboundIndex(objects []*Object) map[string][]string {
	out := make(map[string][]string)

	for _, obj := range objects {
		for _, sec := range obj.Sections {
			if sec.StartSymbol == "" {
				continue
			}

			var targets []string
			for _, rel := range sec.Relocations {
				targets = append(targets, obj.TargetSymbols(rel)...)
			}

			out[sec.StartSymbol] = append(out[sec.StartSymbol], targets...)
		}
	}

	return out
}

// resolveLookThrough expands name into its own outbound references if it is
// look-through (spec §4.4, "core::ops::function" symbols), recursively, so
// a chain of trait-object shims still attributes to the real callee.
func resolveLookThrough(name string, outbound map[string][]string, visited map[string]bool) []string {
	if visited[name] {
		return nil
	}
	visited[name] = true

	if !symbol.New(symbol.Borrowed([]byte(name))).IsLookThrough() {
		return []string{name}
	}

	var out []string
	for _, next := range outbound[name] {
		out = append(out, resolveLookThrough(next, outbound, visited)...)
	}

	return out
}

// recordsForTarget resolves target (after look-through expansion) to the
// capabilities it reaches, suppressing intra-crate references, and returns
// one UsageRecord per capability found.
func recordsForTarget(fromPkg, fromSymbolRaw, target string, loc symbol.SourceLocation, trie *captrie.Trie, outbound map[string][]string) []UsageRecord {
	var out []UsageRecord

	for _, resolved := range resolveLookThrough(target, outbound, make(map[string]bool)) {
		names, ok := symbol.New(symbol.Borrowed([]byte(resolved))).Names()
		if !ok {
			continue
		}

		for _, name := range names {
			if len(name.Parts) == 0 || name.Parts[0] == fromPkg {
				continue
			}

			caps := trie.Get(name.Parts)
			for capability := range caps {
				out = append(out, UsageRecord{
					FromPackage: fromPkg,
					FromSymbol:  fromSymbolRaw,
					ToSymbol:    resolved,
					Capability:  capability,
					Location:    loc,
				})
			}
		}
	}

	return out
}
