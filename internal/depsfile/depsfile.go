// Package depsfile locates and parses the dep-info file rustc emits
// alongside a compiled crate, recovering the crate's source file list
// without needing to reparse Cargo's own build plan. Grounded on
// original_source/src/deps.rs.
package depsfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SourcePaths derives the dep-info file rustc would have written for this
// invocation of rustc (flags, the same slice the compiler wrapper forwards
// to the real compiler) and parses it for the crate's source file list. It
// returns a nil slice, not an error, when the invocation didn't request
// dep-info output at all - mirroring source_files_from_rustc_args's
// `return Ok(vec![])` short-circuit.
func SourcePaths(flags []string) ([]string, error) {
	path, err := depsPath(flags)
	if err != nil {
		return nil, err
	}

	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("depsfile: read %q: %w", path, err)
	}

	return parseDeps(string(data)), nil
}

// parseDeps extracts source file paths from dep-info text. rustc emits one
// phony `<filename>:` line per source file (used by Make-style build
// systems to tolerate a deleted dependency) alongside the main
// `<target>: <deps...>` rule; only the phony lines are wanted here.
func parseDeps(depsText string) []string {
	var deps []string

	for _, line := range strings.Split(depsText, "\n") {
		filename, ok := strings.CutSuffix(line, ":")
		if !ok {
			continue
		}

		deps = append(deps, filename)
	}

	return deps
}

// depsPath derives the dep-info file path from rustc's own flags, returning
// "" if this invocation didn't request dep-info (--emit=...dep-info...) at
// all.
func depsPath(flags []string) (string, error) {
	var crateName, extra, outDir string

	emitDepInfo := false

	for i := 0; i < len(flags); i++ {
		arg := flags[i]

		switch {
		case arg == "-C":
			i++
			if i >= len(flags) {
				return "", fmt.Errorf("depsfile: missing argument to -C")
			}

			if rest, ok := strings.CutPrefix(flags[i], "extra-filename="); ok {
				extra = rest
			}
		case arg == "--out-dir":
			i++
			if i >= len(flags) {
				return "", fmt.Errorf("depsfile: missing argument to --out-dir")
			}

			outDir = flags[i]
		case arg == "--crate-name":
			i++
			if i >= len(flags) {
				return "", fmt.Errorf("depsfile: missing argument to --crate-name")
			}

			crateName = flags[i]
		case strings.HasPrefix(arg, "--emit="):
			emitDepInfo = strings.Contains(arg, "dep-info")
		}
	}

	if !emitDepInfo {
		return "", nil
	}

	if crateName == "" {
		return "", fmt.Errorf("depsfile: missing --crate-name")
	}

	if extra == "" {
		return "", fmt.Errorf("depsfile: missing -C extra-filename=")
	}

	if outDir == "" {
		return "", fmt.Errorf("depsfile: missing --out-dir")
	}

	return filepath.Join(outDir, crateName+extra+".d"), nil
}
