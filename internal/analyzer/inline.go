package analyzer

import (
	"debug/dwarf"

	"github.com/capcage/capcage/internal/symbol"
)

// InlineEdge is one (caller, inlined-callee, call-site) triple recorded by
// a DW_TAG_inlined_subroutine entry (spec §4.4, "Inlined-function
// expansion"): the analyzer injects an implicit reference edge at Location
// so capabilities reached only via inlining still attribute to Caller.
type InlineEdge struct {
	Caller   string
	Callee   string
	Location symbol.SourceLocation
}

// ExtractInlineEdges walks every compile unit's DWARF tree and records one
// InlineEdge per inlined_subroutine entry, attributing nested inlines to
// the nearest enclosing (non-inlined) subprogram.
func ExtractInlineEdges(dw *dwarf.Data) ([]InlineEdge, error) {
	var (
		edges []InlineEdge
		stack []string // enclosing subprogram/caller names, innermost last
		files []*dwarf.LineFile
	)

	reader := dw.Reader()

	for {
		entry, err := reader.Next()
		if err != nil {
			return nil, err
		}

		if entry == nil {
			break
		}

		if entry.Tag == 0 {
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}

			continue
		}

		switch entry.Tag {
		case dwarf.TagCompileUnit:
			if lr, lrErr := dw.LineReader(entry); lrErr == nil && lr != nil {
				files = lr.Files()
			}

			if entry.Children {
				stack = append(stack, "")
			}
		case dwarf.TagSubprogram:
			name := subprogramName(entry)
			if entry.Children {
				stack = append(stack, name)
			}
		case dwarf.TagInlinedSubroutine:
			caller := currentCaller(stack)
			callee := abstractOriginName(dw, entry)
			loc := callSiteLocation(entry, files)

			if caller != "" && callee != "" {
				edges = append(edges, InlineEdge{Caller: caller, Callee: callee, Location: loc})
			}

			if entry.Children {
				stack = append(stack, caller)
			}
		default:
			if entry.Children {
				stack = append(stack, currentCaller(stack))
			}
		}
	}

	return edges, nil
}

func currentCaller(stack []string) string {
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] != "" {
			return stack[i]
		}
	}

	return ""
}

func subprogramName(entry *dwarf.Entry) string {
	if v, ok := entry.Val(dwarf.AttrLinkageName).(string); ok && v != "" {
		return v
	}

	if v, ok := entry.Val(dwarf.AttrName).(string); ok {
		return v
	}

	return ""
}

func abstractOriginName(dw *dwarf.Data, entry *dwarf.Entry) string {
	off, ok := entry.Val(dwarf.AttrAbstractOrigin).(dwarf.Offset)
	if !ok {
		return ""
	}

	originReader := dw.Reader()
	if err := originReader.Seek(off); err != nil {
		return ""
	}

	origin, err := originReader.Next()
	if err != nil || origin == nil {
		return ""
	}

	return subprogramName(origin)
}

func callSiteLocation(entry *dwarf.Entry, files []*dwarf.LineFile) symbol.SourceLocation {
	fileIdx, fileOK := entry.Val(dwarf.AttrCallFile).(int64)
	line, lineOK := entry.Val(dwarf.AttrCallLine).(int64)

	if !fileOK || !lineOK || int(fileIdx) < 0 || int(fileIdx) >= len(files) || files[fileIdx] == nil {
		return symbol.SourceLocation{}
	}

	return symbol.SourceLocation{File: files[fileIdx].Name, Line: int(line)}
}
