package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/capcage/capcage/internal/analyzer"
)

// usageCount is one row of the summary report: how many times a package
// reached a capability, grounded on original_source/src/summary.rs's
// per-crate/per-capability usage counts.
type usageCount struct {
	Package    string `json:"package"`
	Capability string `json:"capability"`
	Count      int    `json:"count"`
}

// buildSummary tallies records into usageCounts, capped at cap entries when
// cap is non-negative (a negative usage-report-cap means unlimited, per
// spec.md §6's --usage-report-cap flag).
func buildSummary(records []analyzer.UsageRecord, cap int) []usageCount {
	type key struct{ pkg, capability string }

	tallies := make(map[key]int)

	for _, r := range records {
		tallies[key{pkg: r.FromPackage, capability: string(r.Capability)}]++
	}

	out := make([]usageCount, 0, len(tallies))

	for k, count := range tallies {
		out = append(out, usageCount{Package: k.pkg, Capability: k.capability, Count: count})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Package != out[j].Package {
			return out[i].Package < out[j].Package
		}

		return out[i].Capability < out[j].Capability
	})

	if cap >= 0 && len(out) > cap {
		out = out[:cap]
	}

	return out
}

// writeSummaryTable renders counts as a human-readable, column-aligned
// table, the --ui-less default rendering of the summary subcommand.
func writeSummaryTable(w io.Writer, counts []usageCount) error {
	if len(counts) == 0 {
		_, err := fmt.Fprintln(w, "(no capability usage recorded)")

		return err
	}

	pkgWidth, capWidth := len("PACKAGE"), len("CAPABILITY")

	for _, c := range counts {
		pkgWidth = max(pkgWidth, len(c.Package))
		capWidth = max(capWidth, len(c.Capability))
	}

	var b strings.Builder

	fmt.Fprintf(&b, "%-*s  %-*s  COUNT\n", pkgWidth, "PACKAGE", capWidth, "CAPABILITY")

	for _, c := range counts {
		fmt.Fprintf(&b, "%-*s  %-*s  %d\n", pkgWidth, c.Package, capWidth, c.Capability, c.Count)
	}

	_, err := io.WriteString(w, b.String())

	return err
}

// writeSummaryJSON renders counts as an indented JSON array.
func writeSummaryJSON(w io.Writer, counts []usageCount) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(counts)
}
