// Package buildinstr checks a build script's captured stdout against a
// package's allow_build_instructions policy (spec §6), turning any
// "cargo:" directive outside the allowlist into a DisallowedBuildInstruction
// Problem.
package buildinstr

import (
	"strings"

	"github.com/capcage/capcage/internal/problem"
	"github.com/capcage/capcage/internal/rpcproto"
)

// alwaysPermitted lists cargo: directive prefixes that are harmless enough
// to not require an explicit allow_build_instructions entry - requiring
// every crate to list these would just add policy noise.
var alwaysPermitted = []string{"cargo:rerun-if-", "cargo:warning", "cargo:rustc-cfg="}

// Check inspects a build script's captured output for pkg, returning one
// Problem per disallowed directive (or a single BuildScriptFailed Problem,
// and no directive checks, if the script exited non-zero).
// allowBuildInstructions is the package's resolved Build-scope
// AllowBuildInstructions list (policy.PackagePolicy.AllowBuildInstructions).
func Check(pkg string, output rpcproto.BinExecutionOutput, allowBuildInstructions []string) []problem.Problem {
	if output.ExitCode != 0 {
		return []problem.Problem{problem.NewBuildScriptFailed(pkg, output.ExitCode, output.Stdout, output.Stderr)}
	}

	var problems []problem.Problem

	for _, line := range strings.Split(output.Stdout, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if !strings.HasPrefix(line, "cargo:") {
			continue
		}

		if p, disallowed := checkDirective(pkg, line, allowBuildInstructions); disallowed {
			problems = append(problems, p)
		}
	}

	return problems
}

func checkDirective(pkg, instruction string, allowBuildInstructions []string) (problem.Problem, bool) {
	for _, prefix := range alwaysPermitted {
		if strings.HasPrefix(instruction, prefix) {
			return problem.Problem{}, false
		}
	}

	for _, rule := range allowBuildInstructions {
		if matches(instruction, rule) {
			return problem.Problem{}, false
		}
	}

	return problem.NewDisallowedBuildInstruction(pkg, instruction), true
}

// matches implements the allowlist's one wildcard form: a rule ending in
// "*" matches by prefix, anything else must match the directive exactly.
func matches(instruction, rule string) bool {
	if prefix, ok := strings.CutSuffix(rule, "*"); ok {
		return strings.HasPrefix(instruction, prefix)
	}

	return instruction == rule
}
