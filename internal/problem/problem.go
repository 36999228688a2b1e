// Package problem defines the Problem taxonomy (spec §7): the sum type
// reported by every component that detects a policy violation or a
// first-run bootstrap prompt, and the severities attached to each kind.
package problem

import "github.com/capcage/capcage/internal/symbol"

// Kind selects which variant of Problem a value holds. Kind-specific data
// lives in the fields documented next to each constant below; fields not
// relevant to the current Kind are left zero.
type Kind int

const (
	// Message is a generic diagnostic. Uses Text.
	Message Kind = iota
	// MissingConfiguration reports that the policy file is absent. Uses Path.
	MissingConfiguration
	// UsesBuildScript reports a package has a build script but the policy
	// requires opt-in. Uses Package.
	UsesBuildScript
	// DisallowedUnsafe reports unsafe code used without allow_unsafe. Uses
	// Package and Locations.
	DisallowedUnsafe
	// IsProcMacro reports a proc-macro package not allowed by policy. Uses
	// Package.
	IsProcMacro
	// DisallowedApiUsage reports a capability used without a grant. Uses
	// Package, Capability, and Usages.
	DisallowedApiUsage
	// BuildScriptFailed reports a non-zero exit from a sandboxed build
	// script. Uses Package, ExitCode, Stdout, Stderr.
	BuildScriptFailed
	// DisallowedBuildInstruction reports a cargo: stdout directive outside
	// the allowlist. Uses Package and Text (the directive line).
	DisallowedBuildInstruction
	// UnusedPackageConfig reports the policy names a package absent from
	// the dependency graph. Uses Package.
	UnusedPackageConfig
	// UnusedAllowApi reports a capability granted but never reached. Uses
	// Package and Capability.
	UnusedAllowApi
	// AvailableApi reports an exported capability never imported. Uses
	// Package and Capability.
	AvailableApi
	// PossibleExportedApi reports a module name colliding with a
	// capability name. Uses Package and Capability.
	PossibleExportedApi
	// SelectSandbox is a first-run interactive bootstrap prompt. Uses
	// Package.
	SelectSandbox
	// ImportStdApi is a first-run interactive bootstrap prompt. Uses
	// Capability.
	ImportStdApi
)

// Severity classifies how a Problem affects the exit code and default
// rendering: Error problems block the build, Warning problems don't unless
// --fail-on-warnings is set, Info problems are bootstrap prompts only.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
	SeverityInfo
)

// severityByKind is the fixed Kind→Severity table from spec §7.
var severityByKind = map[Kind]Severity{
	Message:                    SeverityError,
	MissingConfiguration:       SeverityError,
	UsesBuildScript:            SeverityError,
	DisallowedUnsafe:           SeverityError,
	IsProcMacro:                SeverityError,
	DisallowedApiUsage:         SeverityError,
	BuildScriptFailed:          SeverityError,
	DisallowedBuildInstruction: SeverityError,
	UnusedPackageConfig:        SeverityWarning,
	UnusedAllowApi:             SeverityWarning,
	AvailableApi:               SeverityWarning,
	PossibleExportedApi:        SeverityWarning,
	SelectSandbox:              SeverityInfo,
	ImportStdApi:               SeverityInfo,
}

// Usage is one instance of a disallowed capability reference, carried by a
// DisallowedApiUsage problem.
type Usage struct {
	FromSymbol string
	ToSymbol   string
	Location   symbol.SourceLocation
}

// Problem is a single diagnostic of a known Kind. Always-relevant fields
// (Kind, Severity) are populated by New; Kind-specific fields are set by the
// caller via the constructors in kinds.go.
type Problem struct {
	Kind     Kind
	Severity Severity

	Text     string
	Path     string
	Package  string
	Capability string

	Locations []symbol.SourceLocation
	Usages    []Usage

	ExitCode int
	Stdout   string
	Stderr   string
}

// new builds a Problem of kind k with its fixed severity already attached.
func new(k Kind) Problem {
	return Problem{Kind: k, Severity: severityByKind[k]}
}
