package policyedit

import (
	"strings"

	"github.com/google/go-cmp/cmp"
)

// Preview renders the document's current state and returns a line-oriented
// diff against before, for display ahead of a Write so a user (or the basic
// UI's auto-apply path) can see exactly what a fix changed.
func (e *Editor) Preview(before string) (string, error) {
	after, err := e.ToTOML()
	if err != nil {
		return "", err
	}

	return Diff(before, after), nil
}

// Diff returns a human-readable line diff between two TOML texts, using
// cmp.Diff applied to []string lines rather than Go structs, so the
// `-`/`+`-prefixed report reads like a conventional text diff.
func Diff(before, after string) string {
	return cmp.Diff(splitLines(before), splitLines(after))
}

func splitLines(text string) []string {
	if text == "" {
		return nil
	}

	return strings.Split(strings.TrimRight(text, "\n"), "\n")
}
