package main

import (
	"bytes"
	"testing"

	"github.com/capcage/capcage/internal/problemstore"
)

func TestExitCodeFromResultCleanBuildNoAbort(t *testing.T) {
	result := &supervisorResult{BuildExitCode: 0, Store: problemstore.New()}

	if got := exitCodeFromResult(result); got != exitCodeClean {
		t.Errorf("exitCodeFromResult = %d, want exitCodeClean", got)
	}
}

func TestExitCodeFromResultAbortedStoreIsProblemsFound(t *testing.T) {
	store := problemstore.New()
	store.Abort()

	result := &supervisorResult{BuildExitCode: 0, Store: store}

	if got := exitCodeFromResult(result); got != exitCodeProblemsFound {
		t.Errorf("exitCodeFromResult = %d, want exitCodeProblemsFound", got)
	}
}

func TestExitCodeFromResultNonZeroCargoExitIsProblemsFound(t *testing.T) {
	result := &supervisorResult{BuildExitCode: 1, Store: problemstore.New()}

	if got := exitCodeFromResult(result); got != exitCodeProblemsFound {
		t.Errorf("exitCodeFromResult = %d, want exitCodeProblemsFound", got)
	}
}

func TestRenderOutcomeCheckPrintsCleanMessage(t *testing.T) {
	var stdout, stderr bytes.Buffer

	cfg := &cliConfig{Subcommand: "check", Colour: colourNever}
	result := &supervisorResult{BuildExitCode: 0, Store: problemstore.New()}

	code := renderOutcome(&stdout, &stderr, cfg, result)

	if code != exitCodeClean {
		t.Errorf("code = %d, want exitCodeClean", code)
	}

	if stdout.String() == "" {
		t.Error("expected a success message on stdout")
	}
}

func TestRenderOutcomeCheckReportsAbortedStore(t *testing.T) {
	var stdout, stderr bytes.Buffer

	store := problemstore.New()
	store.Abort()

	cfg := &cliConfig{Subcommand: "check", Colour: colourNever}
	result := &supervisorResult{BuildExitCode: 0, Store: store}

	code := renderOutcome(&stdout, &stderr, cfg, result)

	if code != exitCodeProblemsFound {
		t.Errorf("code = %d, want exitCodeProblemsFound", code)
	}

	if stderr.String() == "" {
		t.Error("expected a failure message on stderr")
	}
}

func TestRenderOutcomeSummaryWritesJSON(t *testing.T) {
	var stdout, stderr bytes.Buffer

	cfg := &cliConfig{Subcommand: "summary", SummaryJSON: true, UsageReportCap: -1, Colour: colourNever}
	result := &supervisorResult{BuildExitCode: 0, Store: problemstore.New()}

	code := renderOutcome(&stdout, &stderr, cfg, result)

	if code != exitCodeClean {
		t.Errorf("code = %d, want exitCodeClean", code)
	}

	if stdout.String() != "[]\n" {
		t.Errorf("stdout = %q, want an empty JSON array", stdout.String())
	}
}
