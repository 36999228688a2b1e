package rpcproto

import "github.com/capcage/capcage/internal/symbol"

// CrateKind classifies which of a crate's outputs a request concerns, the
// Go equivalent of the original's CrateSel.kind: a crate compiled as a
// normal library/binary target, its own build script, or its own test
// harness. The supervisor resolves a different policy.Scope for each (and
// a further FromBuild/FromTest scope for a *dependency* pulled into a
// build-script or test link - see cmd/capcage/handler.go's scopeFor).
type CrateKind string

const (
	CrateKindNormal      CrateKind = "normal"
	CrateKindBuildScript CrateKind = "build_script"
	CrateKindTest        CrateKind = "test"
)

// CrateUsesUnsafe reports that a crate's compiled object contains unsafe
// code, with one location per occurrence the compiler front-end observed.
type CrateUsesUnsafe struct {
	Crate     string                  `json:"crate"`
	Kind      CrateKind               `json:"kind"`
	Locations []symbol.SourceLocation `json:"locations"`
}

// RustcStarted announces that the compiler wrapper is about to invoke rustc
// for a crate, before any output exists to analyze.
type RustcStarted struct {
	Crate string `json:"crate"`
}

// RustcComplete reports that rustc finished compiling a crate, along with
// the set of source paths it read (used to confirm the crate's on-disk
// footprint matches what the package index expects).
type RustcComplete struct {
	Crate       string   `json:"crate"`
	SourcePaths []string `json:"source_paths"`
}

// LinkInfo describes one linker invocation: every input (object file or
// archive) it was asked to combine, and the artifact it produced.
type LinkInfo struct {
	Crate  string    `json:"crate"`
	Kind   CrateKind `json:"kind"`
	Inputs []string  `json:"inputs"`
	Output string    `json:"output"`
}

// LinkerInvoked reports that the linker wrapper intercepted a link step,
// giving the supervisor a chance to analyze the inputs before they run.
type LinkerInvoked struct {
	Info LinkInfo `json:"info"`
}

// BinExecutionOutput captures the result of running a compiled binary
// (principally a build script) to completion.
type BinExecutionOutput struct {
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
}

// BuildScriptComplete reports that a package's build script finished
// running, along with its captured output.
type BuildScriptComplete struct {
	Crate  string             `json:"crate"`
	Output BinExecutionOutput `json:"output"`
}
