package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/capcage/capcage/internal/analyzer"
	"github.com/capcage/capcage/internal/buildjail"
	"github.com/capcage/capcage/internal/captrie"
	"github.com/capcage/capcage/internal/pkgindex"
	"github.com/capcage/capcage/internal/policy"
	"github.com/capcage/capcage/internal/policyedit"
	"github.com/capcage/capcage/internal/problem"
	"github.com/capcage/capcage/internal/problemstore"
	"github.com/capcage/capcage/internal/rpcproto"
)

// supervisorInputs is everything the supervisor role needs to spawn cargo,
// accept wrapper connections, and report the outcome.
type supervisorInputs struct {
	WorkspacePath  string
	PolicyPath     string
	SelfExe        string
	Environ        map[string]string
	Stdout, Stderr io.Writer
	Debug          *DebugLogger
	FailOnWarnings bool
}

// supervisorResult is what runSupervisor hands back to the CLI layer: the
// host build tool's exit status and the store it ran against, so `check`
// can derive a process exit code and `summary` can derive a report.
type supervisorResult struct {
	BuildExitCode int
	Store         *problemstore.Store
	Index         *pkgindex.Index
	Records       []analyzer.UsageRecord
}

// runSupervisor implements the Supervisor role of spec.md §4.5: load and
// compile policy, listen on an AF_UNIX socket, spawn cargo with
// RUSTC_WRAPPER pointed at this same binary, and dispatch every wrapper
// connection to a requestHandler until cargo exits.
func runSupervisor(ctx context.Context, in supervisorInputs) (*supervisorResult, error) {
	if _, statErr := os.Stat(in.PolicyPath); statErr != nil {
		store := problemstore.New()
		store.Append([]problem.Problem{problem.NewMissingConfiguration(in.PolicyPath)})
		store.Abort()

		return &supervisorResult{BuildExitCode: exitCodeProblemsFound, Store: store}, nil
	}

	idx, err := pkgindex.New(in.WorkspacePath)
	if err != nil {
		return nil, fmt.Errorf("capcage: indexing workspace: %w", err)
	}

	importer := pkgindex.CapabilityImporter{Index: idx}

	pol, err := policy.Load(in.PolicyPath, importer)
	if err != nil {
		return nil, fmt.Errorf("capcage: loading policy: %w", err)
	}

	trie := compileTrie(pol)

	store := problemstore.New()

	editor, editorErr := policyedit.Load(in.PolicyPath)
	if editorErr != nil {
		// A policy file the editor can't re-decode (e.g. hand-written
		// unknown tables that toml.Decode's generic map stumbles over)
		// still lets the build run; it just can't auto-fix anything.
		editor = nil
	}

	handler := &requestHandler{
		policy: pol,
		index:  idx,
		trie:   trie,
		store:  store,
		resolver: &autoResolver{
			store:          store,
			editor:         editor,
			policyPath:     in.PolicyPath,
			failOnWarnings: in.FailOnWarnings,
			debug:          in.Debug,
		},
	}

	socketPath := filepath.Join(os.TempDir(), fmt.Sprintf("capcage-%d.sock", os.Getpid()))

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("capcage: binding supervisor socket: %w", err)
	}
	defer os.Remove(socketPath)
	defer listener.Close()

	in.Debug.Bulletf("socket: %s", socketPath)

	go acceptLoop(listener, handler, in.Debug)

	cmd := buildHostToolCommand(ctx, in, socketPath)
	cmd.Stdin = nil
	cmd.Stdout = in.Stdout
	cmd.Stderr = in.Stderr

	runErr := cmd.Run()

	// Every entry the handler creates is resolved synchronously by
	// handler.resolver before the handler blocks on its reply (see
	// handler.go), so no entry can still be waiting once every rustc/
	// linker/build-script child has exited and cargo itself has returned;
	// nothing needs flushing here. store.Aborted() reports exactly
	// whether an unfixable problem was seen during the run.
	exitCode := 0

	var exitErr *exec.ExitError
	if runErr != nil {
		if asExitError(runErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("capcage: running host build tool: %w", runErr)
		}
	}

	records := handler.Records()

	// The hygiene pass runs once cargo has fully exited, against the final
	// resolved policy and every usage record the build produced. Nothing
	// is blocked on its outcome the way a reporting wrapper blocks on an
	// Entry's reply, but it still goes through the same resolver so an
	// Error-severity finding (e.g. an unconfigured build script under
	// explicit_build_scripts) aborts the store exactly as it would have
	// mid-build, and a fixable one (e.g. a proc-macro crate missing
	// allow_proc_macro) gets the same auto-fix pass, and Info/Warning
	// entries the same passesWithoutFix treatment, as mid-build entries.
	if hygieneProblems := runHygienePass(pol, idx, importer, records); len(hygieneProblems) > 0 {
		entry := store.Append(hygieneProblems)
		handler.resolver.resolve(entry)
	}

	return &supervisorResult{BuildExitCode: exitCode, Store: store, Index: idx, Records: records}, nil
}

func asExitError(err error, target **exec.ExitError) bool {
	ee, ok := err.(*exec.ExitError)
	if ok {
		*target = ee
	}

	return ok
}

// acceptLoop runs until listener is closed, spawning one goroutine per
// connection, mirroring spec.md §5's "per-connection request handler
// spawned fresh for each wrapper connection" thread model.
func acceptLoop(listener net.Listener, handler *requestHandler, debug *DebugLogger) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			return
		}

		go func() {
			if err := rpcproto.Serve(conn, handler.handle); err != nil {
				debug.Bulletf("connection error: %v", err)
			}
		}()
	}
}

// buildHostToolCommand constructs the `cargo build` invocation, rebuilding
// its environment the same way internal/buildjail does for a sandboxed
// child: every capcage-internal variable named explicitly, plus the
// caller's own environment passed through wholesale (the host tool itself
// is not sandboxed - only rustc/build-script invocations it spawns are,
// via internal/buildjail, once a compiler or build-script wrapper resolves
// a NamespaceJail policy for them).
func buildHostToolCommand(ctx context.Context, in supervisorInputs, socketPath string) *exec.Cmd {
	env := make(map[string]string, len(in.Environ)+4)
	for k, v := range in.Environ {
		env[k] = v
	}

	env["RUSTC_WRAPPER"] = in.SelfExe
	env[buildjail.SocketPathEnv] = socketPath
	env[buildjail.ConfigPathEnv] = in.PolicyPath
	env[buildjail.TargetDirEnv] = filepath.Join(in.WorkspacePath, "target")
	env[buildjail.ManifestDirEnv] = in.WorkspacePath

	cmd := exec.CommandContext(ctx, "cargo", "build")
	cmd.Dir = in.WorkspacePath
	cmd.Env = envToSlice(env)

	return cmd
}

func envToSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}

	return out
}

// compileTrie flattens every api.<name> rule in pol into the include/exclude
// lists captrie.Compile expects.
func compileTrie(pol *policy.Policy) *captrie.Trie {
	var includes []captrie.IncludeRule

	var excludes []captrie.ExcludeRule

	for name, rule := range pol.Capabilities {
		for _, prefix := range rule.Include {
			includes = append(includes, captrie.IncludeRule{Capability: captrie.CapabilityName(name), Prefix: prefix})
		}

		for _, prefix := range rule.Exclude {
			excludes = append(excludes, captrie.ExcludeRule{Capability: captrie.CapabilityName(name), Prefix: prefix})
		}
	}

	return captrie.Compile(includes, excludes)
}
