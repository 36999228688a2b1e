// Package policyedit implements the minimal concrete policy-editor
// collaborator spec.md §1 treats as an external tool: applying a small set
// of named, automatic edits to the policy TOML file in response to
// Problems, and previewing the resulting diff before it's written.
//
// Grounded on original_source/src/config_editor.rs's ConfigEditor: a
// get-or-create `[pkg.<name>]` table, one fix per supported Problem kind,
// and a fix_problems driver that returns which of the given Problems it
// was able to fix. Decoding into a generic map[string]any rather than
// toml_edit's format-preserving Document loses comments and key ordering on
// rewrite - no library in the example pack offers format-preserving TOML
// editing (only github.com/BurntSushi/toml, which round-trips values, not
// layout) - a documented limitation, not an oversight.
package policyedit

import (
	"bytes"
	"fmt"
	"os"
	"sort"

	"github.com/BurntSushi/toml"

	"github.com/capcage/capcage/internal/problem"
)

// Editor loads a policy TOML file into a generic document, applies fixes,
// and renders the result back to TOML text.
type Editor struct {
	doc map[string]any
}

// Load reads and decodes the policy file at path.
func Load(path string) (*Editor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("policyedit: read %q: %w", path, err)
	}

	return FromTOML(string(data))
}

// FromTOML decodes a policy document already held in memory, e.g. for
// tests or a not-yet-written first-run config.
func FromTOML(text string) (*Editor, error) {
	doc := map[string]any{}
	if text != "" {
		if _, err := toml.Decode(text, &doc); err != nil {
			return nil, fmt.Errorf("policyedit: decode: %w", err)
		}
	}

	return &Editor{doc: doc}, nil
}

// ToTOML renders the current document state.
func (e *Editor) ToTOML() (string, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(e.doc); err != nil {
		return "", fmt.Errorf("policyedit: encode: %w", err)
	}

	return buf.String(), nil
}

// Write renders the document and writes it to path.
func (e *Editor) Write(path string) error {
	text, err := e.ToTOML()
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return fmt.Errorf("policyedit: write %q: %w", path, err)
	}

	return nil
}

// FixProblems attempts to fix every problem in problems in order, returning
// the subset it knew how to fix (mirroring ConfigEditor::fix_problems).
func (e *Editor) FixProblems(problems []problem.Problem) []problem.Problem {
	var fixed []problem.Problem

	for _, p := range problems {
		if e.FixProblem(p) {
			fixed = append(fixed, p)
		}
	}

	return fixed
}

// FixProblem applies the one known fix for p's Kind, if any, and reports
// whether a fix was applied.
func (e *Editor) FixProblem(p problem.Problem) bool {
	switch p.Kind {
	case problem.DisallowedApiUsage:
		e.addToPkgList(p.Package, "allow_apis", p.Capability)
		return true
	case problem.IsProcMacro:
		e.pkgTable(p.Package)["allow_proc_macro"] = true
		return true
	case problem.DisallowedUnsafe:
		e.pkgTable(p.Package)["allow_unsafe"] = true
		return true
	case problem.DisallowedBuildInstruction:
		e.addToPkgList(p.Package, "allow_build_instructions", p.Text)
		return true
	default:
		return false
	}
}

// GrantCapability adds capability to pkgName's allow_apis list directly,
// the same edit FixProblem applies for a DisallowedApiUsage Problem, for UI
// flows that grant a capability without going through the problem store.
func (e *Editor) GrantCapability(pkgName, capability string) {
	e.addToPkgList(pkgName, "allow_apis", capability)
}

// AllowBuildInstruction adds instruction to pkgName's
// allow_build_instructions list directly.
func (e *Editor) AllowBuildInstruction(pkgName, instruction string) {
	e.addToPkgList(pkgName, "allow_build_instructions", instruction)
}

func (e *Editor) pkgTable(pkgName string) map[string]any {
	pkgSection, ok := e.doc["pkg"].(map[string]any)
	if !ok {
		pkgSection = map[string]any{}
		e.doc["pkg"] = pkgSection
	}

	table, ok := pkgSection[pkgName].(map[string]any)
	if !ok {
		table = map[string]any{}
		pkgSection[pkgName] = table
	}

	return table
}

// addToPkgList appends value to the named list field under [pkg.<pkgName>],
// sorted and deduplicated, matching internal/policy's own list-composition
// rule so repeated fixes are idempotent.
func (e *Editor) addToPkgList(pkgName, field, value string) {
	table := e.pkgTable(pkgName)

	existing, _ := table[field].([]any)

	values := make([]string, 0, len(existing)+1)

	for _, v := range existing {
		if s, ok := v.(string); ok {
			values = append(values, s)
		}
	}

	values = append(values, value)

	table[field] = sortedDedup(values)
}

func sortedDedup(values []string) []string {
	seen := make(map[string]struct{}, len(values))

	out := make([]string, 0, len(values))

	for _, v := range values {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}

			out = append(out, v)
		}
	}

	sort.Strings(out)

	return out
}
