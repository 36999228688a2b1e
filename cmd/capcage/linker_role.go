package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/capcage/capcage/internal/buildjail"
	"github.com/capcage/capcage/internal/rpcproto"
)

// linkerRoleInputs is what the linker wrapper needs: the real linker
// invocation (args, as detected by isLinkerInvocation) plus enough
// environment to find the real linker and reach the supervisor.
type linkerRoleInputs struct {
	Args       []string
	Environ    map[string]string
	SocketPath string
}

// runLinkerWrapper implements the Linker Wrapper role of spec.md §4.5:
// invoke the real linker unmodified, then report the link's inputs/output
// to the supervisor so the analyzer can scan the produced artifact. When
// the artifact being linked is a build script binary, it additionally
// performs the interposition dance from
// original_source/src/proxy/subprocess.rs::setup_build_script_wrapper so a
// later invocation of that same path runs through this wrapper instead of
// the real build script.
func runLinkerWrapper(ctx context.Context, in linkerRoleInputs) int {
	info, err := parseLinkInfo(in.Args, in.Environ)
	if err != nil {
		fmt.Fprintln(os.Stderr, "capcage: parsing link invocation:", err)
		return exitCodeInternalError
	}

	realLinker := in.Environ[buildjail.OrigLinkerEnv]
	if realLinker == "" {
		realLinker = "cc"
	}

	cmd := exec.CommandContext(ctx, realLinker, in.Args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if asExitError(err, &exitErr) {
			return exitErr.ExitCode()
		}

		fmt.Fprintln(os.Stderr, "capcage: running linker:", err)

		return exitCodeInternalError
	}

	if isBuildScriptOutput(in.Environ) {
		if err := setupBuildScriptWrapper(info.Output); err != nil {
			fmt.Fprintln(os.Stderr, "capcage: setting up build-script interposition:", err)
			return exitCodeInternalError
		}
	}

	resp, err := rpcproto.Call(in.SocketPath, rpcproto.NewLinkerInvoked(rpcproto.LinkerInvoked{Info: info}))
	if err != nil {
		fmt.Fprintln(os.Stderr, "capcage: reporting link:", err)
		return exitCodeInternalError
	}

	if resp.Kind == rpcproto.ResponseGiveUp {
		return exitCodeProblemsFound
	}

	return exitCodeClean
}

// isBuildScriptOutput reports whether the artifact currently being linked
// is a build.rs binary, following cargo's own convention of setting
// CARGO_CRATE_NAME to "build_script_build" (or "build-script-build") for
// this link step.
func isBuildScriptOutput(environ map[string]string) bool {
	return environ["CARGO_CRATE_NAME"] == "build_script_build" || environ["CARGO_CRATE_NAME"] == "build-script-build"
}

// setupBuildScriptWrapper renames the just-linked build-script binary to a
// fixed sibling name, then re-creates the original path as a hard link to
// this wrapper binary (or a copy of it when the hard link fails), so cargo's canonicalized path to the build script (it
// resolves the path once, before running it) transparently runs through
// roleBuildScript instead.
func setupBuildScriptWrapper(outputPath string) error {
	originalPath := filepath.Join(filepath.Dir(outputPath), originalBuildScriptName)

	if err := os.Rename(outputPath, originalPath); err != nil {
		return fmt.Errorf("renaming build script to %s: %w", originalPath, err)
	}

	if err := os.Chmod(originalPath, 0o755); err != nil {
		return fmt.Errorf("making %s executable: %w", originalPath, err)
	}

	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolving own executable path: %w", err)
	}

	if err := os.Link(self, outputPath); err == nil {
		return nil
	}

	// Cross-filesystem or other hard-link failure: fall back to a copy.
	return copyFile(self, outputPath)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o755)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}

	return out.Close()
}

// parseLinkInfo derives an rpcproto.LinkInfo from a linker argv, grounded
// on original_source/src/link_info.rs::LinkInfo::from_env: object_paths
// comes from every .o/.rlib/.a argument, output_file from the -o <path>
// pair isLinkerInvocation already confirmed is present.
func parseLinkInfo(args []string, environ map[string]string) (rpcproto.LinkInfo, error) {
	info := rpcproto.LinkInfo{Crate: environ["CARGO_PKG_NAME"], Kind: crateKindFromEnviron(environ)}

	for i := 0; i < len(args); i++ {
		arg := args[i]

		if arg == "-o" && i+1 < len(args) {
			info.Output = args[i+1]
			i++

			continue
		}

		if isObjectLikeArg(arg) {
			info.Inputs = append(info.Inputs, arg)
		}
	}

	if info.Output == "" {
		return info, fmt.Errorf("link_info: no -o output found in args")
	}

	return info, nil
}

// crateKindFromEnviron recovers the rpcproto.CrateKind the compiler wrapper
// classified this crate as, propagated across the rustc-to-linker process
// boundary via buildjail.CrateKindEnv since the linker is spawned by rustc
// itself (through -C linker=self) rather than directly by this binary, and
// so only ever observes whatever environment rustc's own child inherited.
func crateKindFromEnviron(environ map[string]string) rpcproto.CrateKind {
	switch rpcproto.CrateKind(environ[buildjail.CrateKindEnv]) {
	case rpcproto.CrateKindBuildScript:
		return rpcproto.CrateKindBuildScript
	case rpcproto.CrateKindTest:
		return rpcproto.CrateKindTest
	default:
		return rpcproto.CrateKindNormal
	}
}

func isObjectLikeArg(arg string) bool {
	if strings.HasPrefix(arg, "-") {
		return false
	}

	for _, ext := range [...]string{".o", ".rlib", ".a"} {
		if strings.HasSuffix(arg, ext) {
			return true
		}
	}

	return false
}
