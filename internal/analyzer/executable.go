package analyzer

import (
	"bytes"
	"debug/dwarf"
	"debug/elf"
	"fmt"
	"sort"

	"github.com/capcage/capcage/internal/symbol"
)

// addrRange is one contiguous run of addresses a single line-table entry
// covers, ending at the next entry's address (or EndSequence).
type addrRange struct {
	start, end uint64
	loc        symbol.SourceLocation
}

// Executable is the final linked binary: a symbol-name→address map and an
// address→source-location index built from its DWARF line tables.
type Executable struct {
	addrOf map[string]uint64
	ranges []addrRange // sorted by start, non-overlapping
}

// NewExecutable returns an Executable built directly from a symbol address
// map, bypassing ELF/DWARF parsing. Used by tests and by any caller that
// already has this data from another source.
func NewExecutable(addrOf map[string]uint64) *Executable {
	return &Executable{addrOf: addrOf}
}

// AddRange records that addresses [start, end) map to loc. Ranges must be
// added in non-overlapping, ascending order.
func (e *Executable) AddRange(start, end uint64, loc symbol.SourceLocation) {
	e.ranges = append(e.ranges, addrRange{start: start, end: end, loc: loc})
}

// SymbolAddress returns the virtual address of a defined symbol by name.
func (e *Executable) SymbolAddress(name string) (uint64, bool) {
	addr, ok := e.addrOf[name]

	return addr, ok
}

// LocationForAddress returns the source location DWARF attributes to addr,
// if any line-table entry covers it.
func (e *Executable) LocationForAddress(addr uint64) (symbol.SourceLocation, bool) {
	i := sort.Search(len(e.ranges), func(i int) bool { return e.ranges[i].end > addr })
	if i == len(e.ranges) || addr < e.ranges[i].start {
		return symbol.SourceLocation{}, false
	}

	return e.ranges[i].loc, true
}

// ParseExecutable loads the final linked ELF executable or shared object,
// indexing its defined symbols and DWARF line-number program, and returns
// the inlined-subroutine edges found in the same DWARF data.
func ParseExecutable(data []byte) (*Executable, []InlineEdge, error) {
	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("analyzer: parse executable: %w", err)
	}
	defer f.Close()

	exe := &Executable{addrOf: make(map[string]uint64)}

	symbols, err := f.Symbols()
	if err == nil {
		for _, sym := range symbols {
			if sym.Name == "" || sym.Value == 0 {
				continue
			}

			exe.addrOf[sym.Name] = sym.Value
		}
	}

	dw, err := f.DWARF()
	if err != nil {
		// Stripped binaries carry no DWARF; every location lookup then
		// misses and step 3a's "if absent, skip" rule applies uniformly.
		return exe, nil, nil
	}

	ranges, err := buildLineIndex(dw)
	if err != nil {
		return nil, nil, fmt.Errorf("analyzer: build line index: %w", err)
	}

	exe.ranges = ranges

	edges, err := ExtractInlineEdges(dw)
	if err != nil {
		return nil, nil, fmt.Errorf("analyzer: extract inline edges: %w", err)
	}

	return exe, edges, nil
}

func buildLineIndex(dw *dwarf.Data) ([]addrRange, error) {
	var ranges []addrRange

	reader := dw.Reader()

	for {
		entry, err := reader.Next()
		if err != nil {
			return nil, err
		}

		if entry == nil {
			break
		}

		if entry.Tag != dwarf.TagCompileUnit {
			continue
		}

		lr, err := dw.LineReader(entry)
		if err != nil || lr == nil {
			continue
		}

		var (
			le   dwarf.LineEntry
			prev *dwarf.LineEntry
		)

		for {
			if err := lr.Next(&le); err != nil {
				break
			}

			if prev != nil && !prev.EndSequence {
				ranges = append(ranges, addrRange{
					start: prev.Address,
					end:   le.Address,
					loc: symbol.SourceLocation{
						File:      prev.File.Name,
						Line:      prev.Line,
						Column:    prev.Column,
						HasColumn: prev.Column > 0,
					},
				})
			}

			entryCopy := le
			prev = &entryCopy
		}

		reader.SkipChildren()
	}

	sort.Slice(ranges, func(i, j int) bool { return ranges[i].start < ranges[j].start })

	return ranges, nil
}
