package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/capcage/capcage/internal/buildjail"
	"github.com/capcage/capcage/internal/policy"
	"github.com/capcage/capcage/internal/rpcproto"
)

// buildScriptRoleInputs is what the build-script wrapper needs: argv[0] is
// the wrapper's own path (cargo still invokes it at the original location,
// per roles.go's detectRole), the real build.rs binary has been moved to
// originalBuildScriptName next to it by the linker wrapper's
// setupBuildScriptWrapper.
type buildScriptRoleInputs struct {
	Args       []string
	Environ    map[string]string
	SocketPath string
	PolicyPath string
	HomeDir    string
}

// runBuildScriptWrapper implements the Build Script Wrapper role of
// spec.md §4.5 as a retry loop, grounded on
// original_source/src/proxy/subprocess.rs::proxy_build_script: each pass
// re-reads the policy (it may have just gained an allow_build_instructions
// entry in response to this same build script's last attempt), runs the
// real build.rs binary sandboxed per the crate's build-scope policy, and
// reports its output to the supervisor. A Continue reply with a nonzero
// exit code means the supervisor expects a policy fix to have unlocked
// something before the next attempt, so the loop runs the script again
// without forwarding any output; only a terminal outcome (success, or
// GiveUp) writes anything to the real stdout/stderr.
func runBuildScriptWrapper(ctx context.Context, in buildScriptRoleInputs) int {
	original, ok := siblingOriginalBuildScript(in.Args[0])
	if !ok {
		fmt.Fprintln(os.Stderr, "capcage: no original build script found next to", in.Args[0])
		return exitCodeInternalError
	}

	crate := in.Environ["CARGO_PKG_NAME"]

	for {
		pol, err := policy.Load(in.PolicyPath, nil)
		if err != nil {
			fmt.Fprintln(os.Stderr, "capcage: reloading policy:", err)
			return exitCodeInternalError
		}

		pkgPolicy := pol.Packages[policy.Selector{Package: crate, Scope: policy.ScopeBuild}]

		manifestDir := in.Environ["CARGO_MANIFEST_DIR"]
		outDir := in.Environ["OUT_DIR"]

		backend, err := buildjail.ForBuildScript(pkgPolicy.Sandbox, buildjail.BuildScriptInputs{
			HomeDir:     in.HomeDir,
			Environ:     in.Environ,
			ManifestDir: manifestDir,
			OutDir:      outDir,
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, "capcage: building build-script sandbox:", err)
			return exitCodeInternalError
		}

		cmd, cleanup, err := backend.Command(ctx, append([]string{original}, in.Args[1:]...))
		if err != nil {
			fmt.Fprintln(os.Stderr, "capcage: preparing build-script invocation:", err)
			return exitCodeInternalError
		}

		cmd.Env = append(cmd.Environ(), buildjail.CrateKindEnv+"="+string(rpcproto.CrateKindBuildScript))

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
				fmt.Fprintln(os.Stderr, "capcage: running build script:", runErr)
				return exitCodeInternalError
			}
		}

		resp, err := rpcproto.Call(in.SocketPath, rpcproto.NewBuildScriptComplete(rpcproto.BuildScriptComplete{
			Crate: crate,
			Output: rpcproto.BinExecutionOutput{
				ExitCode: exitCode,
				Stdout:   stdout.String(),
				Stderr:   stderr.String(),
			},
		}))
		if err != nil {
			fmt.Fprintln(os.Stderr, "capcage: reporting build script completion:", err)
			return exitCodeInternalError
		}

		if resp.Kind == rpcproto.ResponseGiveUp {
			return exitCodeProblemsFound
		}

		if exitCode != 0 {
			continue
		}

		// A build script's stdout carries cargo: directives cargo itself
		// must see (cargo:rustc-link-lib=, cargo:rerun-if-changed=, ...);
		// it's only forwarded once the script has actually succeeded,
		// matching proxy_build_script's own write-on-Done discipline.
		os.Stdout.Write(stdout.Bytes())
		os.Stderr.Write(stderr.Bytes())

		return exitCode
	}
}
