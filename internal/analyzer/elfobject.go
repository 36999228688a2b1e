package analyzer

import (
	"bytes"
	"debug/elf"
	"fmt"
	"sort"

	"github.com/capcage/capcage/internal/problem"
)

// startSymbolCandidate is a section-start symbol candidate reduced to the
// fields disambiguateStartSymbols needs, so that logic can be unit-tested
// without a real ELF file.
type startSymbolCandidate struct {
	name    string
	section int
	local   bool
}

// disambiguateStartSymbols resolves spec §9's open question: whether a
// section ever starts (offset zero) with more than one globally-visible
// symbol. Every candidate ties at offset zero by construction, so "lowest
// address" cannot break the tie; the name sorting first lexicographically
// is used instead, and an ambiguity Problem is recorded per affected
// section rather than silently picking one.
func disambiguateStartSymbols(candidates []startSymbolCandidate, objPath string) (startSymbol map[int]string, startSymbolLocal map[int]bool, problems []problem.Problem) {
	globalNames := make(map[int][]string)
	localOnly := make(map[int]bool)

	for _, c := range candidates {
		if c.local {
			localOnly[c.section] = true
			continue
		}

		globalNames[c.section] = append(globalNames[c.section], c.name)
	}

	startSymbol = make(map[int]string)
	startSymbolLocal = make(map[int]bool)

	for section, names := range globalNames {
		sort.Strings(names)
		startSymbol[section] = names[0]

		if len(names) > 1 {
			problems = append(problems, problem.NewMessage(fmt.Sprintf(
				"%s: section %d starts with %d globally-visible symbols (%v); attributing to %q",
				objPath, section, len(names), names, names[0],
			)))
		}
	}

	for section := range localOnly {
		if _, hasGlobal := startSymbol[section]; !hasGlobal {
			startSymbolLocal[section] = true
		}
	}

	return startSymbol, startSymbolLocal, problems
}

// ParseObject reads a loose object file (or one archive member's bytes) and
// reduces it to the Section/Relocation shape the analyzer walks. Only
// ELF64 relocatable objects are supported, matching the Rust toolchain's
// usual output on every platform this tool targets.
func ParseObject(path string, data []byte) (*Object, []problem.Problem, error) {
	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("analyzer: parse object %s: %w", path, err)
	}
	defer f.Close()

	symbols, _ := f.Symbols() // a nil symbol table just means nothing to attribute

	var candidates []startSymbolCandidate

	for _, sym := range symbols {
		if sym.Value != 0 || int(sym.Section) <= 0 || int(sym.Section) >= len(f.Sections) {
			continue
		}

		candidates = append(candidates, startSymbolCandidate{
			name:    sym.Name,
			section: int(sym.Section),
			local:   elf.ST_BIND(sym.Info) == elf.STB_LOCAL,
		})
	}

	startSymbol, startSymbolLocal, problems := disambiguateStartSymbols(candidates, path)

	obj := &Object{Path: path, Sections: make(map[int]Section)}

	for idx, sec := range f.Sections {
		section := Section{
			Index:            idx,
			Name:             sec.Name,
			StartSymbol:      startSymbol[idx],
			StartSymbolLocal: startSymbolLocal[idx],
		}

		relSec := findRelocationSection(f, sec.Name)
		if relSec != nil {
			relocs, err := parseRelocations(f, relSec, symbols)
			if err != nil {
				return nil, nil, fmt.Errorf("analyzer: parse relocations for %s: %w", sec.Name, err)
			}

			section.Relocations = relocs
		}

		obj.Sections[idx] = section
	}

	return obj, problems, nil
}

func findRelocationSection(f *elf.File, targetName string) *elf.Section {
	for _, sec := range f.Sections {
		if sec.Type != elf.SHT_RELA && sec.Type != elf.SHT_REL {
			continue
		}

		if sec.Name == ".rela"+targetName || sec.Name == ".rel"+targetName {
			return sec
		}
	}

	return nil
}

// rela64 mirrors Elf64_Rela: Offset, Info (symbol index in the high 32
// bits, relocation type in the low 32), and Addend.
type rela64 struct {
	Offset uint64
	Info   uint64
	Addend int64
}

func parseRelocations(f *elf.File, sec *elf.Section, symbols []elf.Symbol) ([]Relocation, error) {
	data, err := sec.Data()
	if err != nil {
		return nil, err
	}

	const entrySize = 24 // sizeof(rela64)
	if sec.Type == elf.SHT_REL {
		return nil, fmt.Errorf("analyzer: SHT_REL sections (no addend) are not supported on this target")
	}

	var (
		order = f.ByteOrder
		out   []Relocation
	)

	for off := 0; off+entrySize <= len(data); off += entrySize {
		var r rela64
		r.Offset = order.Uint64(data[off:])
		r.Info = order.Uint64(data[off+8:])
		r.Addend = int64(order.Uint64(data[off+16:]))

		symIdx := r.Info >> 32
		if int(symIdx) >= len(symbols) {
			continue
		}

		sym := symbols[symIdx]

		target := RelocTarget{}
		if sym.Name != "" {
			target.SymbolName = sym.Name
		} else {
			target.IsSection = true
			target.SectionIndex = int(sym.Section)
		}

		out = append(out, Relocation{Offset: r.Offset, Target: target})
	}

	return out, nil
}
