package main

import (
	"fmt"
	"io"
)

// DebugLogger provides structured debug tracing for the supervisor and its
// wrapper roles, grounded on cmd/agent-sandbox/debug.go: disabled by default
// (nil output), a thin fmt.Fprintf wrapper when enabled. No third-party
// structured-logging library is wired here for this exact concern
// (see SPEC_FULL.md §2.2).
type DebugLogger struct {
	output io.Writer
}

// NewDebugLogger returns a logger writing to output. A nil output disables
// every method.
func NewDebugLogger(output io.Writer) *DebugLogger {
	return &DebugLogger{output: output}
}

// Enabled reports whether this logger actually writes anything.
func (d *DebugLogger) Enabled() bool {
	return d != nil && d.output != nil
}

// Section outputs a section header.
func (d *DebugLogger) Section(name string) {
	if !d.Enabled() {
		return
	}

	_, _ = fmt.Fprintf(d.output, "\n=== %s ===\n", name)
}

// Logf outputs a formatted debug message.
func (d *DebugLogger) Logf(format string, args ...any) {
	if !d.Enabled() {
		return
	}

	_, _ = fmt.Fprintf(d.output, format+"\n", args...)
}

// Bulletf outputs an indented bullet point.
func (d *DebugLogger) Bulletf(format string, args ...any) {
	if !d.Enabled() {
		return
	}

	_, _ = fmt.Fprintf(d.output, "  • "+format+"\n", args...)
}

// Role announces which of the four wrapper roles this process instance is
// playing, the first thing worth knowing when debugging a stuck build.
func (d *DebugLogger) Role(role wrapperRole) {
	d.Section("role")
	d.Bulletf("%s", role)
}
