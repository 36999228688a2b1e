package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/capcage/capcage/internal/buildjail"
	"github.com/capcage/capcage/internal/depsfile"
	"github.com/capcage/capcage/internal/policy"
	"github.com/capcage/capcage/internal/rpcproto"
	"github.com/capcage/capcage/internal/rustcdiag"
	"github.com/capcage/capcage/internal/symbol"
	"github.com/capcage/capcage/internal/unsafescan"
)

// compilerRoleInputs is what the compiler wrapper needs: the real rustc
// invocation it was asked to proxy (Args[0] is the real rustc's path per
// roles.go's detectRole, Args[1:] are rustc's own flags), plus enough
// environment to reach the supervisor and re-load the policy.
type compilerRoleInputs struct {
	Args       []string
	Environ    map[string]string
	SocketPath string
	PolicyPath string
	HomeDir    string
}

// runCompilerWrapper implements the Compiler Wrapper role of spec.md §4.5 as
// a retry loop, grounded on original_source/src/proxy/subprocess.rs's
// RustcRunner::run: each pass re-reads the policy from scratch (it may have
// just been edited in response to a problem this same crate raised),
// re-derives rustc's command line, and runs rustc with both stdout and
// stderr fully buffered rather than streamed - nothing reaches the real
// terminal until the loop reaches a terminal (non-retry) outcome. Linking is
// withheld until a first non-linking pass has told the supervisor which
// source files this crate read (so the package index can attribute symbols
// that appear in the eventual linked artifact); unsafe code is detected two
// ways every pass - parsing rustc's own forced -Funsafe-code diagnostic on
// failure, and a textual scan of the crate's known sources whenever policy
// doesn't permit unsafe at all, belt-and-suspenders against a compile that
// happens to succeed despite the lint.
func runCompilerWrapper(ctx context.Context, in compilerRoleInputs) int {
	crate := in.Environ["CARGO_PKG_NAME"]
	rustcPath := in.Args[0]
	flags := in.Args[1:]

	if _, err := rpcproto.Call(in.SocketPath, rpcproto.NewRustcStarted(rpcproto.RustcStarted{Crate: crate})); err != nil {
		fmt.Fprintln(os.Stderr, "capcage: reporting rustc start:", err)
		return exitCodeInternalError
	}

	selfExe, err := os.Executable()
	if err != nil {
		fmt.Fprintln(os.Stderr, "capcage: resolving own executable path:", err)
		return exitCodeInternalError
	}

	kind := classifyCrateKind(in.Environ, flags)
	linkingRequested := argsRequestLinking(flags)

	var sourcePaths []string

	haveSourcePaths := false

	for {
		pol, err := policy.Load(in.PolicyPath, nil)
		if err != nil {
			fmt.Fprintln(os.Stderr, "capcage: reloading policy:", err)
			return exitCodeInternalError
		}

		scope := scopeFor(kind, false)
		pkgPolicy := pol.Packages[policy.Selector{Package: crate, Scope: scope}]
		unsafePermitted := pkgPolicy.AllowUnsafe

		allowLinking := haveSourcePaths

		rewritten, origLinker := rewriteRustcArgs(flags, linkingRequested, allowLinking, unsafePermitted, selfExe)
		argv := append([]string{rustcPath}, rewritten...)

		manifestDir := in.Environ["CARGO_MANIFEST_DIR"]
		targetDir := in.Environ[buildjail.TargetDirEnv]

		backend, err := buildjail.ForRustc(pkgPolicy.Sandbox, buildjail.RustcInputs{
			HomeDir:     in.HomeDir,
			Environ:     in.Environ,
			ManifestDir: manifestDir,
			TargetDir:   targetDir,
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, "capcage: building rustc sandbox:", err)
			return exitCodeInternalError
		}

		cmd, cleanup, err := backend.Command(ctx, argv)
		if err != nil {
			fmt.Fprintln(os.Stderr, "capcage: preparing rustc invocation:", err)
			return exitCodeInternalError
		}

		// Carries our crate classification and the real linker path across
		// the rustc-to-linker process boundary: rustc spawns the linker
		// itself (we only redirected -C linker= to point back at us), so
		// the linker wrapper only ever sees whatever environment rustc's
		// own child inherited. cmd.Environ() returns a copy of the
		// effective environment regardless of whether cmd.Env is already
		// set (the jailed backend rebuilds it from scratch) or still nil
		// (the disabled backend, which otherwise inherits os.Environ()
		// wholesale) - appending onto that copy works uniformly either way.
		env := append(cmd.Environ(), buildjail.CrateKindEnv+"="+string(kind))
		if origLinker != "" {
			env = append(env, buildjail.OrigLinkerEnv+"="+origLinker)
		}

		cmd.Env = env

		cmd.Stdin = os.Stdin

		var stdout, stderr bytes.Buffer

		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		runErr := cmd.Run()
		_ = cleanup()

		exitCode := 0

		var exitErr *exec.ExitError
		if runErr != nil {
			if ok := asExitError(runErr, &exitErr); ok {
				exitCode = exitErr.ExitCode()
			} else {
				fmt.Fprintln(os.Stderr, "capcage: running rustc:", runErr)
				return exitCodeInternalError
			}
		}

		var unsafeLocations []symbol.SourceLocation

		if exitCode == 0 {
			if !allowLinking {
				paths, err := depsfile.SourcePaths(flags)
				if err != nil {
					fmt.Fprintln(os.Stderr, "capcage: locating rustc source paths:", err)
					return exitCodeInternalError
				}

				resp, err := rpcproto.Call(in.SocketPath, rpcproto.NewRustcComplete(rpcproto.RustcComplete{
					Crate:       crate,
					SourcePaths: paths,
				}))
				if err != nil {
					fmt.Fprintln(os.Stderr, "capcage: reporting rustc completion:", err)
					return exitCodeInternalError
				}

				sourcePaths = paths
				haveSourcePaths = true

				if resp.Kind == rpcproto.ResponseGiveUp {
					return exitCodeProblemsFound
				}

				if linkingRequested {
					// Retry now that source paths are known, this time
					// allowing the --emit=...,link,... component through.
					continue
				}
			}
		} else {
			unsafeLocations = append(unsafeLocations, rustcdiag.UnsafeLocations(stderr.String())...)
		}

		if !unsafePermitted {
			for _, path := range sourcePaths {
				loc, err := unsafescan.ScanFile(path)
				if err != nil || loc == nil {
					continue
				}

				unsafeLocations = append(unsafeLocations, *loc)
			}
		}

		if len(unsafeLocations) > 0 {
			resp, err := rpcproto.Call(in.SocketPath, rpcproto.NewCrateUsesUnsafe(rpcproto.CrateUsesUnsafe{
				Crate:     crate,
				Kind:      kind,
				Locations: dedupLocations(unsafeLocations),
			}))
			if err != nil {
				fmt.Fprintln(os.Stderr, "capcage: reporting unsafe usage:", err)
				return exitCodeInternalError
			}

			if resp.Kind == rpcproto.ResponseGiveUp {
				return exitCodeProblemsFound
			}

			continue
		}

		os.Stdout.Write(stdout.Bytes())
		os.Stderr.Write(stderr.Bytes())

		return exitCode
	}
}

// classifyCrateKind determines which of rpcproto.CrateKind this rustc
// invocation is compiling: a package's own build.rs (cargo always compiles
// it under the synthetic crate name build_script_build), a #[cfg(test)]
// harness binary (cargo passes rustc its own --test flag for those), or an
// ordinary library/binary target.
func classifyCrateKind(environ map[string]string, flags []string) rpcproto.CrateKind {
	if isBuildScriptOutput(environ) {
		return rpcproto.CrateKindBuildScript
	}

	if isTestInvocation(flags) {
		return rpcproto.CrateKindTest
	}

	return rpcproto.CrateKindNormal
}

func isTestInvocation(flags []string) bool {
	for _, f := range flags {
		if f == "--test" {
			return true
		}
	}

	return false
}

// argsRequestLinking reports whether flags asks rustc to perform the link
// step itself (--emit=...,link,...), computed once up front since the
// rewritten argv this wrapper constructs may later strip that component out
// until source paths are known.
func argsRequestLinking(flags []string) bool {
	for _, arg := range flags {
		emit, ok := strings.CutPrefix(arg, "--emit=")
		if !ok {
			continue
		}

		for _, part := range strings.Split(emit, ",") {
			if part == "link" {
				return true
			}
		}
	}

	return false
}

// rewriteRustcArgs rebuilds rustc's own flag list the way the compiler
// wrapper needs it, grounded on RustcRunner::get_command: the original
// -C linker= is captured and stripped (the wrapper substitutes itself so
// the Linker Wrapper role gets a chance to intercept the link step),
// -C debuginfo= is forced to 2 regardless of what was asked (debug info is
// how the analyzer attributes symbols to source locations), any
// --error-format is stripped and a fixed --error-format=json re-added so
// diagnostics are machine-parseable, and the link component of --emit= is
// withheld until source paths are known. -Funsafe-code is appended whenever
// policy doesn't permit unsafe for this crate.
func rewriteRustcArgs(flags []string, linkingRequested, allowLinking, unsafePermitted bool, selfExe string) ([]string, string) {
	out := make([]string, 0, len(flags)+4)

	var origLinker string

	for i := 0; i < len(flags); i++ {
		arg := flags[i]

		if arg == "-C" && i+1 < len(flags) {
			next := flags[i+1]

			if linker, ok := strings.CutPrefix(next, "linker="); ok {
				origLinker = linker
				i++

				continue
			}

			if strings.HasPrefix(next, "debuginfo=") {
				out = append(out, "-C", "debuginfo=2")
				i++

				continue
			}
		}

		if strings.HasPrefix(arg, "--error-format") {
			continue
		}

		if emit, ok := strings.CutPrefix(arg, "--emit="); ok && linkingRequested && !allowLinking {
			parts := strings.Split(emit, ",")
			kept := make([]string, 0, len(parts))

			for _, p := range parts {
				if p != "link" {
					kept = append(kept, p)
				}
			}

			out = append(out, "--emit="+strings.Join(kept, ","))

			continue
		}

		out = append(out, arg)
	}

	out = append(out, "--error-format=json", "-C", "linker="+selfExe)

	if !unsafePermitted {
		out = append(out, "-Funsafe-code")
	}

	return out, origLinker
}

// dedupLocations sorts and removes duplicate locations, mirroring
// RustcRunner::run's `unsafe_locations.sort(); unsafe_locations.dedup();`
// before reporting them (the JSON-diagnostic pass and the textual scan can
// both surface the same line).
func dedupLocations(locations []symbol.SourceLocation) []symbol.SourceLocation {
	sorted := append([]symbol.SourceLocation(nil), locations...)

	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].File != sorted[j].File {
			return sorted[i].File < sorted[j].File
		}

		return sorted[i].Line < sorted[j].Line
	})

	out := sorted[:0]

	for i, loc := range sorted {
		if i == 0 || loc != sorted[i-1] {
			out = append(out, loc)
		}
	}

	return out
}
