package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/capcage/capcage/internal/buildjail"
)

// cleanupTimeout bounds how long a supervisor run waits for cargo to exit
// gracefully after SIGTERM before escalating to SIGKILL, mirroring
// cmd/agent-sandbox/run.go's two-stage shutdown.
const cleanupTimeout = 10 * time.Second

// Run is capcage's single entry point, isolated from global state (stdio,
// os.Args, os.Environ): detectRole picks one of the four roles described
// in spec.md §4.5, and only roleSupervisor
// parses the CLI and owns a process lifetime long enough to care about
// signals.
func Run(stdout, stderr io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	role, err := detectRole(args, env)
	if err != nil {
		fmt.Fprintln(stderr, "capcage:", err)
		return exitCodeInternalError
	}

	socketPath := env[buildjail.SocketPathEnv]
	policyPath := env[buildjail.ConfigPathEnv]
	homeDir := env["HOME"]

	switch role {
	case roleCompiler:
		return runCompilerWrapper(context.Background(), compilerRoleInputs{
			Args:       args[1:],
			Environ:    env,
			SocketPath: socketPath,
			PolicyPath: policyPath,
			HomeDir:    homeDir,
		})
	case roleLinker:
		return runLinkerWrapper(context.Background(), linkerRoleInputs{
			Args:       args[1:],
			Environ:    env,
			SocketPath: socketPath,
		})
	case roleBuildScript:
		return runBuildScriptWrapper(context.Background(), buildScriptRoleInputs{
			Args:       args,
			Environ:    env,
			SocketPath: socketPath,
			PolicyPath: policyPath,
			HomeDir:    homeDir,
		})
	default:
		return runSupervisorRole(stdout, stderr, args[1:], env, sigCh)
	}
}

// runSupervisorRole parses the CLI, runs the selected subcommand to
// completion under two-stage SIGTERM/SIGKILL shutdown, and renders its
// report.
func runSupervisorRole(stdout, stderr io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	cfg, _, err := parseCLI(args)
	if err != nil {
		fmt.Fprintln(stderr, "capcage:", err)
		fmt.Fprintln(stderr)
		fmt.Fprintln(stderr, usageHelp)

		return exitCodeInternalError
	}

	var debug *DebugLogger
	if cfg.Debug {
		debug = NewDebugLogger(stderr)
	}

	self, err := os.Executable()
	if err != nil {
		fmt.Fprintln(stderr, "capcage: resolving own executable path:", err)
		return exitCodeInternalError
	}

	killCtx, kill := context.WithCancel(context.Background())
	defer kill()

	termCtx, terminate := context.WithCancel(killCtx)
	defer terminate()

	done := make(chan supervisorOutcome, 1)

	go func() {
		result, err := runSupervisor(termCtx, supervisorInputs{
			WorkspacePath:  cfg.Path,
			PolicyPath:     cfg.PolicyPath,
			SelfExe:        self,
			Environ:        env,
			Stdout:         stdout,
			Stderr:         stderr,
			Debug:          debug,
			FailOnWarnings: cfg.FailOnWarnings,
		})
		done <- supervisorOutcome{result: result, err: err}
	}()

	out := waitForSupervisor(done, sigCh, terminate, kill, stderr)
	if out.err != nil {
		fmt.Fprintln(stderr, "capcage:", out.err)
		return exitCodeInternalError
	}

	return renderOutcome(stdout, stderr, cfg, out.result)
}

type supervisorOutcome struct {
	result *supervisorResult
	err    error
}

// waitForSupervisor mirrors cmd/agent-sandbox/run.go's two-stage shutdown:
// a first interrupt asks cargo to wind down gracefully (SIGTERM via
// context cancellation), a second interrupt or a timeout force-kills it.
func waitForSupervisor(done chan supervisorOutcome, sigCh <-chan os.Signal, terminate, kill context.CancelFunc, stderr io.Writer) supervisorOutcome {
	if sigCh == nil {
		return <-done
	}

	select {
	case o := <-done:
		return o
	case <-sigCh:
		fmt.Fprintln(stderr, "Interrupted, waiting up to 10s for cargo to wind down... (Ctrl+C again to force exit)")
		terminate()
	}

	select {
	case o := <-done:
		return o
	case <-time.After(cleanupTimeout):
		fmt.Fprintln(stderr, "Cleanup timed out, forced exit.")
		kill()

		return <-done
	case <-sigCh:
		fmt.Fprintln(stderr, "Forced exit.")
		kill()

		return <-done
	}
}

// renderOutcome turns a finished supervisor run into capcage's process exit
// code, per subcommand: `check` reports pass/fail against cargo's own exit
// status and whether the problem store was aborted, `summary`/`ui` print a
// permission usage report built from every linker invocation's scan
// records.
func renderOutcome(stdout, stderr io.Writer, cfg *cliConfig, result *supervisorResult) int {
	colourOn := cfg.Colour.enabled(isTerminalFile(os.Stderr))

	switch cfg.Subcommand {
	case "summary":
		counts := buildSummary(result.Records, cfg.UsageReportCap)
		if cfg.SummaryJSON {
			if err := writeSummaryJSON(stdout, counts); err != nil {
				fmt.Fprintln(stderr, "capcage:", err)
				return exitCodeInternalError
			}
		} else if err := writeSummaryTable(stdout, counts); err != nil {
			fmt.Fprintln(stderr, "capcage:", err)
			return exitCodeInternalError
		}

		return exitCodeFromResult(result)
	case "ui":
		counts := buildSummary(result.Records, cfg.UsageReportCap)
		if err := writeSummaryTable(stdout, counts); err != nil {
			fmt.Fprintln(stderr, "capcage:", err)
			return exitCodeInternalError
		}

		return exitCodeFromResult(result)
	default: // "check"
		code := exitCodeFromResult(result)
		if code == exitCodeClean {
			fmt.Fprintln(stdout, "capcage: no capability problems found")
		} else {
			fmt.Fprintln(stderr, colourize(colourOn, ansiRed, "capcage: capability problems found, see --ui=full or --debug"))
		}

		return code
	}
}

func exitCodeFromResult(result *supervisorResult) int {
	if result.Store.Aborted() && result.BuildExitCode == 0 {
		return exitCodeProblemsFound
	}

	if result.BuildExitCode != 0 {
		return exitCodeProblemsFound
	}

	return exitCodeClean
}
