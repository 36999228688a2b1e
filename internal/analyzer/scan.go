package analyzer

import (
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/capcage/capcage/internal/captrie"
	"github.com/capcage/capcage/internal/problem"
)

// ScanInputs is everything one crate's compiled output contributes to a
// scan: every object file the linker consumed (loose `.o` files and
// `.a`/`.rlib` archives) plus the path to the linked executable or shared
// object. Grounded on original_source/src/symbol_graph.rs's scan_objects,
// which takes the same two inputs (object paths, exe_path).
type ScanInputs struct {
	ObjectPaths    []string
	ExecutablePath string
}

// ScanOutputs is what a completed scan produced: every usage record found,
// plus any non-fatal Problems raised while reading individual object files
// (e.g. an ambiguous section-start symbol) that don't stop the scan.
type ScanOutputs struct {
	Records  []UsageRecord
	Problems []problem.Problem
}

func isArchiveName(path string) bool {
	return strings.HasSuffix(path, ".a") || strings.HasSuffix(path, ".rlib")
}

// ScanObjects reads the executable and every object file referenced by
// inputs, builds the symbol graph, and evaluates it against trie into usage
// records. A per-file read/parse error is collected rather than aborting
// the whole scan, since one damaged archive member shouldn't hide every
// other crate's findings; ScanObjects only returns an error when nothing
// usable came out of the scan at all (the executable itself couldn't be
// read).
func ScanObjects(inputs ScanInputs, trie *captrie.Trie, resolver PackageResolver) (*ScanOutputs, error) {
	exeData, err := os.ReadFile(inputs.ExecutablePath)
	if err != nil {
		return nil, fmt.Errorf("analyzer: read executable %q: %w", inputs.ExecutablePath, err)
	}

	exe, inlineEdges, err := ParseExecutable(exeData)
	if err != nil {
		return nil, fmt.Errorf("analyzer: parse executable %q: %w", inputs.ExecutablePath, err)
	}

	var (
		objects  []*Object
		problems []problem.Problem
		errs     *multierror.Error
	)

	for _, path := range inputs.ObjectPaths {
		fileObjects, fileProblems, err := readObjectFile(path)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}

		objects = append(objects, fileObjects...)
		problems = append(problems, fileProblems...)
	}

	records := Analyze(exe, objects, inlineEdges, trie, resolver)

	if errs != nil {
		for _, fileErr := range errs.Errors {
			problems = append(problems, problem.NewMessage(fileErr.Error()))
		}
	}

	return &ScanOutputs{Records: records, Problems: problems}, nil
}

// readObjectFile loads one linker input, which may be a loose object file
// or an `ar` archive of many, and parses every ELF64 relocatable object it
// contains.
func readObjectFile(path string) ([]*Object, []problem.Problem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("analyzer: read %q: %w", path, err)
	}

	if !isArchiveName(path) {
		obj, problems, err := ParseObject(path, data)
		if err != nil {
			return nil, nil, fmt.Errorf("analyzer: %q: %w", path, err)
		}

		return []*Object{obj}, problems, nil
	}

	members, err := ParseArchive(data)
	if err != nil {
		return nil, nil, fmt.Errorf("analyzer: parse archive %q: %w", path, err)
	}

	var (
		objects  []*Object
		problems []problem.Problem
	)

	for _, member := range members {
		memberPath := fmt.Sprintf("%s(%s)", path, member.Name)

		obj, objProblems, err := ParseObject(memberPath, member.Data)
		if err != nil {
			// One damaged member doesn't invalidate the rest of the
			// archive - surfaced as a Problem, not a fatal error.
			problems = append(problems, problem.NewMessage(fmt.Sprintf("analyzer: %s: %v", memberPath, err)))

			continue
		}

		objects = append(objects, obj)
		problems = append(problems, objProblems...)
	}

	return objects, problems, nil
}
