package main

import (
	"fmt"
	"os"
	"path/filepath"
)

// writePolicyAtomic overwrites path with contents via a write-then-rename,
// so a wrapper process reading the same path (internal/policy.Load is
// called fresh every retry iteration, per spec.md §5) never observes a
// partially-written file.
func writePolicyAtomic(path, contents string) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, ".capcage-policy-*.toml")
	if err != nil {
		return fmt.Errorf("capcage: creating temp policy file: %w", err)
	}

	tmpPath := tmp.Name()

	_, writeErr := tmp.WriteString(contents)
	closeErr := tmp.Close()

	if writeErr != nil || closeErr != nil {
		os.Remove(tmpPath)

		if writeErr != nil {
			return fmt.Errorf("capcage: writing temp policy file: %w", writeErr)
		}

		return fmt.Errorf("capcage: closing temp policy file: %w", closeErr)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)

		return fmt.Errorf("capcage: renaming policy file into place: %w", err)
	}

	return nil
}
