package buildjail

import (
	"fmt"
	"path/filepath"

	"github.com/capcage/capcage/internal/policy"
	"github.com/capcage/capcage/sandbox"
)

// RustcInputs carries what the rustc wrapper has learned from the command
// line and environment about one rustc invocation: the directories it reads
// from and writes to, and any variables a build script exported via
// cargo:rustc-env= that need to reach this compile.
type RustcInputs struct {
	HomeDir           string
	Environ           map[string]string
	ManifestDir       string
	TargetDir         string
	OutputDirectories []string
	BuildScriptEnv    []string
}

// ForRustc builds a Backend for running rustc itself, grounded on the
// original's sandbox::for_rustc: the manifest directory is readable, the
// target directory and any declared output directories (--out-dir,
// incremental=...) are writable, and rustc additionally needs the wire
// protocol's own environment variables plus whatever a build script
// exported.
func ForRustc(pol policy.SandboxPolicy, in RustcInputs) (Backend, error) {
	writeDirs := append([]string(nil), in.OutputDirectories...)
	writeDirs = append(writeDirs, in.TargetDir)

	return New(pol, Inputs{
		HomeDir:   in.HomeDir,
		WorkDir:   in.ManifestDir,
		Environ:   in.Environ,
		ReadDirs:  []string{in.ManifestDir},
		WriteDirs: writeDirs,
		PassEnv:   append(append([]string(nil), RustcPassthroughEnv...), in.BuildScriptEnv...),
	})
}

// BuildScriptInputs carries what the build-script wrapper has learned about
// one build.rs invocation.
type BuildScriptInputs struct {
	HomeDir     string
	Environ     map[string]string
	ManifestDir string
	OutDir      string

	// PolicySnapshot, when non-empty, is mounted read-only at
	// PolicySnapshotPath so the build script's own child processes (if any)
	// could in principle consult the same flattened policy the supervisor
	// is enforcing against it.
	PolicySnapshot     string
	PolicySnapshotPath string
}

// PolicySnapshotPath is the fixed sandbox path a flattened policy snapshot
// is injected at for a sandboxed build script, analogous to the
// environment-variable-named paths the wrapper otherwise communicates over.
const PolicySnapshotPath = "/run/capcage/policy.toml"

// ForBuildScript builds a Backend for running a build.rs binary, grounded on
// the original's sandbox::for_perm_sel as applied to a build script: the
// manifest directory is readable and OUT_DIR is writable.
func ForBuildScript(pol policy.SandboxPolicy, in BuildScriptInputs) (Backend, error) {
	inputs := Inputs{
		HomeDir:   in.HomeDir,
		WorkDir:   in.ManifestDir,
		Environ:   in.Environ,
		ReadDirs:  []string{in.ManifestDir},
		WriteDirs: []string{in.OutDir},
	}

	if in.PolicySnapshot != "" {
		path := in.PolicySnapshotPath
		if path == "" {
			path = PolicySnapshotPath
		}

		inputs.InjectedFiles = []sandbox.InjectedFile{{Dst: path, Data: in.PolicySnapshot}}
	}

	return New(pol, inputs)
}

// BinExecutionInputs carries what's known about running an already-built
// binary (for example a proc-macro's own test binary) under policy.
type BinExecutionInputs struct {
	HomeDir string
	Environ map[string]string
	BinPath string
	OutDir  string
}

// ForBinExecution builds a Backend for running an arbitrary built binary,
// grounded on the original's sandbox::for_perm_sel: the binary's build
// directory is readable (it may load sibling artifacts) and OUT_DIR, if set,
// is writable.
func ForBinExecution(pol policy.SandboxPolicy, in BinExecutionInputs) (Backend, error) {
	if in.BinPath == "" {
		return nil, fmt.Errorf("buildjail: missing BinPath")
	}

	buildDir := buildDirectory(in.BinPath)

	inputs := Inputs{
		HomeDir:  in.HomeDir,
		WorkDir:  buildDir,
		Environ:  in.Environ,
		ReadDirs: []string{buildDir},
	}

	if in.OutDir != "" {
		inputs.WriteDirs = []string{in.OutDir}
	}

	return New(pol, inputs)
}

// buildDirectory returns the directory that should be readable for a bin
// execution: the binary's parent directory, or its grandparent when the
// parent is cargo's "deps" directory (so sibling rlibs under the same
// target/<profile>/ tree stay reachable too).
func buildDirectory(binPath string) string {
	parent := filepath.Dir(binPath)
	if filepath.Base(parent) == "deps" {
		if grandparent := filepath.Dir(parent); grandparent != parent {
			return grandparent
		}
	}

	return parent
}
