// Package rustcdiag parses rustc's `--error-format=json` diagnostic stream
// for the one kind of error the compiler wrapper cares about: a forced
// `-Funsafe-code` lint firing because a crate used unsafe code despite
// policy disallowing it. Grounded on
// original_source/src/proxy/errors.rs::get_error.
package rustcdiag

import (
	"encoding/json"
	"strings"

	"github.com/capcage/capcage/internal/symbol"
)

type message struct {
	Code  code   `json:"code"`
	Level string `json:"level"`
	Spans []span `json:"spans"`
}

type code struct {
	Code string `json:"code"`
}

type span struct {
	FileName  string `json:"file_name"`
	LineStart int    `json:"line_start"`
}

// UnsafeLocations scans output, one rustc JSON diagnostic per line, and
// returns the source location of every forbidden-unsafe-code-lint
// diagnostic it finds. Lines that aren't valid diagnostic JSON (rustc's
// json format also interleaves artifact-notification messages with a
// different shape) are silently skipped, matching get_error's
// `let Ok(message) = ... else { continue }`.
func UnsafeLocations(output string) []symbol.SourceLocation {
	var locations []symbol.SourceLocation

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var msg message
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			continue
		}

		if msg.Level != "error" || msg.Code.Code != "unsafe_code" || len(msg.Spans) == 0 {
			continue
		}

		first := msg.Spans[0]
		locations = append(locations, symbol.SourceLocation{File: first.FileName, Line: first.LineStart})
	}

	return locations
}
