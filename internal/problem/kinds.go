package problem

import (
	"fmt"

	"github.com/capcage/capcage/internal/symbol"
)

func NewMessage(text string) Problem {
	p := new(Message)
	p.Text = text

	return p
}

func NewMissingConfiguration(path string) Problem {
	p := new(MissingConfiguration)
	p.Path = path

	return p
}

func NewUsesBuildScript(pkg string) Problem {
	p := new(UsesBuildScript)
	p.Package = pkg

	return p
}

func NewDisallowedUnsafe(pkg string, locations []symbol.SourceLocation) Problem {
	p := new(DisallowedUnsafe)
	p.Package = pkg
	p.Locations = locations

	return p
}

func NewIsProcMacro(pkg string) Problem {
	p := new(IsProcMacro)
	p.Package = pkg

	return p
}

func NewDisallowedAPIUsage(pkg, capability string, usages []Usage) Problem {
	p := new(DisallowedApiUsage)
	p.Package = pkg
	p.Capability = capability
	p.Usages = usages

	return p
}

func NewBuildScriptFailed(pkg string, exitCode int, stdout, stderr string) Problem {
	p := new(BuildScriptFailed)
	p.Package = pkg
	p.ExitCode = exitCode
	p.Stdout = stdout
	p.Stderr = stderr

	return p
}

func NewDisallowedBuildInstruction(pkg, instruction string) Problem {
	p := new(DisallowedBuildInstruction)
	p.Package = pkg
	p.Text = instruction

	return p
}

func NewUnusedPackageConfig(pkg string) Problem {
	p := new(UnusedPackageConfig)
	p.Package = pkg

	return p
}

func NewUnusedAllowAPI(pkg, capability string) Problem {
	p := new(UnusedAllowApi)
	p.Package = pkg
	p.Capability = capability

	return p
}

func NewAvailableAPI(pkg, capability string) Problem {
	p := new(AvailableApi)
	p.Package = pkg
	p.Capability = capability

	return p
}

func NewPossibleExportedAPI(pkg, capability string) Problem {
	p := new(PossibleExportedApi)
	p.Package = pkg
	p.Capability = capability

	return p
}

func NewSelectSandbox(pkg string) Problem {
	p := new(SelectSandbox)
	p.Package = pkg

	return p
}

func NewImportStdAPI(capability string) Problem {
	p := new(ImportStdApi)
	p.Capability = capability

	return p
}

// Error renders a one-line human-readable description, used both for
// Message problems' own text and as a fallback Error() implementation so a
// Problem can satisfy the error interface when a component needs to return
// one as a Go error.
func (p Problem) Error() string {
	switch p.Kind {
	case Message:
		return p.Text
	case MissingConfiguration:
		return fmt.Sprintf("policy file not found: %s", p.Path)
	case UsesBuildScript:
		return fmt.Sprintf("%s: has a build script, which is not permitted by policy", p.Package)
	case DisallowedUnsafe:
		return fmt.Sprintf("%s: uses unsafe code without allow_unsafe", p.Package)
	case IsProcMacro:
		return fmt.Sprintf("%s: is a proc-macro, which is not permitted by policy", p.Package)
	case DisallowedApiUsage:
		return fmt.Sprintf("%s: uses capability %q without a grant", p.Package, p.Capability)
	case BuildScriptFailed:
		return fmt.Sprintf("%s: build script failed with exit code %d", p.Package, p.ExitCode)
	case DisallowedBuildInstruction:
		return fmt.Sprintf("%s: disallowed build instruction %q", p.Package, p.Text)
	case UnusedPackageConfig:
		return fmt.Sprintf("%s: configured in policy but not present in the dependency graph", p.Package)
	case UnusedAllowApi:
		return fmt.Sprintf("%s: capability %q granted but never used", p.Package, p.Capability)
	case AvailableApi:
		return fmt.Sprintf("%s: exports capability %q that nothing imports", p.Package, p.Capability)
	case PossibleExportedApi:
		return fmt.Sprintf("%s: module name collides with capability %q", p.Package, p.Capability)
	case SelectSandbox:
		return fmt.Sprintf("%s: select a sandbox kind", p.Package)
	case ImportStdApi:
		return fmt.Sprintf("import standard library capability %q?", p.Capability)
	default:
		return "unknown problem"
	}
}

// DedupKey returns the key used for cross-entry deduplication: it strips
// location/usage lists so repeated hits of the same API by the same crate
// collapse into a single logical problem (spec §4.6).
func (p Problem) DedupKey() string {
	return fmt.Sprintf("%d|%s|%s|%s|%s", p.Kind, p.Package, p.Capability, p.Path, p.Text)
}

// GroupKey returns the key used for within-entry grouping
// (grouped_by_type_crate_and_api, spec §4.6): consecutive DisallowedApiUsage
// problems sharing (crate, first-capability) merge into one. Problems of
// any other kind never group with anything, including each other.
func (p Problem) GroupKey() (string, bool) {
	if p.Kind != DisallowedApiUsage {
		return "", false
	}

	return p.Package + "|" + p.Capability, true
}
