package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/capcage/capcage/internal/buildjail"
)

// wrapperRole is the role this process instance plays, selected by argv and
// environment (spec.md §4.5's four-role table).
type wrapperRole int

const (
	roleSupervisor wrapperRole = iota
	roleCompiler
	roleLinker
	roleBuildScript
)

func (r wrapperRole) String() string {
	switch r {
	case roleSupervisor:
		return "supervisor"
	case roleCompiler:
		return "compiler-wrapper"
	case roleLinker:
		return "linker-wrapper"
	case roleBuildScript:
		return "build-script-wrapper"
	default:
		return "unknown"
	}
}

// originalBuildScriptName names the sibling binary a linker wrapper
// renames a just-linked build script to, freeing up its original path for a
// hard link (or copy) of this same wrapper binary. Grounded on the
// original's orig_build_rs_bin_path, which replaces the build script's file
// name with a fixed sibling name rather than appending a suffix.
const originalBuildScriptName = "original-build-script"

// siblingOriginalBuildScript returns the path a build-script wrapper should
// proxy to, if binaryPath (argv[0]) has a sibling renamed original next to
// it. Spec.md's "argv[0] is a specific filename and a sibling renamed
// binary exists" selector.
func siblingOriginalBuildScript(binaryPath string) (string, bool) {
	candidate := filepath.Join(filepath.Dir(binaryPath), originalBuildScriptName)

	info, err := os.Stat(candidate)
	if err != nil || info.IsDir() {
		return "", false
	}

	return candidate, true
}

// isPathToRustc reports whether arg names a real rustc binary (the
// compiler wrapper's selector: "first positional argument is the real
// compiler").
func isPathToRustc(arg string) bool {
	return filepath.Base(arg) == "rustc"
}

// isLinkerInvocation reports whether args (the wrapper's own argv[1:], as
// passed by rustc invoking -C linker=self) look like a linker command
// line rather than a compiler one: it carries a "-o <output>" pair and ran
// under a crate's CARGO_PKG_NAME, the two facts original_source's
// LinkInfo::from_env requires.
func isLinkerInvocation(args []string, environ map[string]string) bool {
	if environ["CARGO_PKG_NAME"] == "" {
		return false
	}

	for i, a := range args {
		if a == "-o" && i+1 < len(args) {
			return true
		}
	}

	return false
}

// detectRole implements spec.md §4.5's selector table in priority order:
// build-script wrapper (sibling renamed binary) beats compiler wrapper
// (argv[1] is rustc) beats linker wrapper (environment + argv shape), with
// "no socket-path env var" gating all three behind supervisor mode first.
func detectRole(args []string, environ map[string]string) (wrapperRole, error) {
	if environ[buildjail.SocketPathEnv] == "" {
		return roleSupervisor, nil
	}

	if len(args) == 0 {
		return 0, errUnexpectedInvocation(args)
	}

	if _, ok := siblingOriginalBuildScript(args[0]); ok {
		return roleBuildScript, nil
	}

	if len(args) > 1 && isPathToRustc(args[1]) {
		return roleCompiler, nil
	}

	if isLinkerInvocation(args[1:], environ) {
		return roleLinker, nil
	}

	return 0, errUnexpectedInvocation(args)
}

func errUnexpectedInvocation(args []string) error {
	return &unexpectedInvocationError{args: append([]string(nil), args...)}
}

type unexpectedInvocationError struct {
	args []string
}

func (e *unexpectedInvocationError) Error() string {
	return "capcage: unexpected wrapper invocation with args: " + strings.Join(e.args, " ")
}
