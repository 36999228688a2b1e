package policyedit

import (
	"strings"
	"testing"

	"github.com/capcage/capcage/internal/problem"
)

func TestFixDisallowedApiUsageNoExistingConfig(t *testing.T) {
	e, err := FromTOML("")
	if err != nil {
		t.Fatalf("FromTOML: %v", err)
	}

	p := problem.NewDisallowedAPIUsage("crab1", "fs", nil)
	if !e.FixProblem(p) {
		t.Fatal("expected FixProblem to report it handled DisallowedApiUsage")
	}

	out, err := e.ToTOML()
	if err != nil {
		t.Fatalf("ToTOML: %v", err)
	}

	if !strings.Contains(out, "allow_apis") || !strings.Contains(out, "fs") {
		t.Fatalf("expected allow_apis = [\"fs\"] in output, got:\n%s", out)
	}
}

func TestFixDisallowedApiUsageMergesWithExistingConfig(t *testing.T) {
	e, err := FromTOML("[pkg.crab1]\nallow_apis = [\"net\"]\n")
	if err != nil {
		t.Fatalf("FromTOML: %v", err)
	}

	e.FixProblem(problem.NewDisallowedAPIUsage("crab1", "fs", nil))

	out, err := e.ToTOML()
	if err != nil {
		t.Fatalf("ToTOML: %v", err)
	}

	if !strings.Contains(out, "fs") || !strings.Contains(out, "net") {
		t.Fatalf("expected both fs and net in allow_apis, got:\n%s", out)
	}
}

func TestFixIsProcMacroSetsAllowProcMacro(t *testing.T) {
	e, err := FromTOML("")
	if err != nil {
		t.Fatalf("FromTOML: %v", err)
	}

	if !e.FixProblem(problem.NewIsProcMacro("crab1")) {
		t.Fatal("expected FixProblem to report it handled IsProcMacro")
	}

	out, err := e.ToTOML()
	if err != nil {
		t.Fatalf("ToTOML: %v", err)
	}

	if !strings.Contains(out, "allow_proc_macro = true") {
		t.Fatalf("expected allow_proc_macro = true, got:\n%s", out)
	}
}

func TestFixDisallowedBuildInstructionAddsToAllowlist(t *testing.T) {
	e, err := FromTOML("")
	if err != nil {
		t.Fatalf("FromTOML: %v", err)
	}

	if !e.FixProblem(problem.NewDisallowedBuildInstruction("crab1", "cargo:rustc-link-search=dir")) {
		t.Fatal("expected FixProblem to report it handled DisallowedBuildInstruction")
	}

	out, err := e.ToTOML()
	if err != nil {
		t.Fatalf("ToTOML: %v", err)
	}

	if !strings.Contains(out, "cargo:rustc-link-search=dir") {
		t.Fatalf("expected the directive in allow_build_instructions, got:\n%s", out)
	}
}

func TestFixProblemReturnsFalseForUnsupportedKind(t *testing.T) {
	e, err := FromTOML("")
	if err != nil {
		t.Fatalf("FromTOML: %v", err)
	}

	if e.FixProblem(problem.NewMissingConfiguration("/some/path")) {
		t.Fatal("expected FixProblem to report it does not handle MissingConfiguration")
	}
}

func TestFixProblemsReturnsOnlyTheFixableSubset(t *testing.T) {
	e, err := FromTOML("")
	if err != nil {
		t.Fatalf("FromTOML: %v", err)
	}

	problems := []problem.Problem{
		problem.NewDisallowedAPIUsage("crab1", "fs", nil),
		problem.NewMissingConfiguration("/some/path"),
	}

	fixed := e.FixProblems(problems)
	if len(fixed) != 1 {
		t.Fatalf("got %d fixed problems, want 1", len(fixed))
	}
}

func TestAddToPkgListIsIdempotent(t *testing.T) {
	e, err := FromTOML("")
	if err != nil {
		t.Fatalf("FromTOML: %v", err)
	}

	e.GrantCapability("crab1", "fs")
	e.GrantCapability("crab1", "fs")

	out, err := e.ToTOML()
	if err != nil {
		t.Fatalf("ToTOML: %v", err)
	}

	if strings.Count(out, "\"fs\"") != 1 {
		t.Fatalf("expected \"fs\" to appear exactly once after two identical grants, got:\n%s", out)
	}
}

func TestPreviewReportsADiff(t *testing.T) {
	e, err := FromTOML("")
	if err != nil {
		t.Fatalf("FromTOML: %v", err)
	}

	before, err := e.ToTOML()
	if err != nil {
		t.Fatalf("ToTOML: %v", err)
	}

	e.GrantCapability("crab1", "fs")

	diff, err := e.Preview(before)
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}

	if diff == "" {
		t.Fatal("expected a non-empty diff after granting a capability")
	}
}
