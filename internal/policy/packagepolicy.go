package policy

// SandboxKind selects a sandbox backend variant for a package's build
// script.
type SandboxKind string

const (
	SandboxDisabled  SandboxKind = "Disabled"
	SandboxNamespace SandboxKind = "NamespaceJail"
)

// UnmarshalText validates a TOML sandbox.kind string against the known
// variants, rather than accepting any string silently - an unrecognized
// kind is a policy-authoring mistake and should fail to load, not be
// treated as Disabled.
func (k *SandboxKind) UnmarshalText(text []byte) error {
	switch SandboxKind(text) {
	case SandboxDisabled, SandboxNamespace:
		*k = SandboxKind(text)

		return nil
	default:
		return &unknownSandboxKindError{kind: string(text)}
	}
}

// MarshalText renders the sandbox kind back to its TOML string form.
func (k SandboxKind) MarshalText() ([]byte, error) {
	return []byte(k), nil
}

type unknownSandboxKindError struct {
	kind string
}

func (e *unknownSandboxKindError) Error() string {
	return "policy: unknown sandbox kind " + e.kind + ` (want "Disabled" or "NamespaceJail")`
}

// SandboxPolicy is the per-package sandbox configuration applied to a build
// script's execution.
type SandboxPolicy struct {
	Kind          SandboxKind
	ExtraArgs     []string
	AllowNetwork  bool
	BindWritable  []string
	MakeWritable  []string
	PassEnv       []string
	kindSet       bool
	allowNetSet   bool
}

// KindWasSet reports whether this scope's TOML actually declared
// `sandbox.kind` itself, as opposed to inheriting or defaulting to it -
// used to drive the SelectSandbox bootstrap prompt (spec §7), which should
// only fire for a package that never made a choice at all.
func (s SandboxPolicy) KindWasSet() bool {
	return s.kindSet
}

// inherit composes a child sandbox policy over its parent: list fields
// union-sorted-dedup, kind and allow_network take the child's value when it
// was explicitly set in the TOML and otherwise inherit the parent's.
func (child SandboxPolicy) inherit(parent SandboxPolicy) SandboxPolicy {
	out := SandboxPolicy{
		ExtraArgs:    unionSortedDedup(parent.ExtraArgs, child.ExtraArgs),
		BindWritable: unionSortedDedup(parent.BindWritable, child.BindWritable),
		MakeWritable: unionSortedDedup(parent.MakeWritable, child.MakeWritable),
		PassEnv:      unionSortedDedup(parent.PassEnv, child.PassEnv),
	}

	if child.kindSet {
		out.Kind = child.Kind
		out.kindSet = true
	} else {
		out.Kind = parent.Kind
		out.kindSet = parent.kindSet
	}

	if child.allowNetSet {
		out.AllowNetwork = child.AllowNetwork
		out.allowNetSet = true
	} else {
		out.AllowNetwork = parent.AllowNetwork
		out.allowNetSet = parent.allowNetSet
	}

	return out
}

// PackagePolicy is the fully-resolved (post-inheritance) policy for one
// (package, scope) pair.
type PackagePolicy struct {
	AllowUnsafe            bool
	AllowProcMacro         bool
	AllowBuildInstructions []string
	AllowAPIs              []string
	Sandbox                SandboxPolicy
	Import                 []string
}

// Inherit applies the §4.2 composition rule: the child's lists are
// union-sorted-deduped with the parent's, scalar booleans are ORed, and the
// sandbox composes via SandboxPolicy.inherit. Calling Inherit twice with the
// same parent is idempotent, since union-dedup and OR are both idempotent
// operations.
func (child PackagePolicy) Inherit(parent PackagePolicy) PackagePolicy {
	return PackagePolicy{
		AllowUnsafe:            child.AllowUnsafe || parent.AllowUnsafe,
		AllowProcMacro:         child.AllowProcMacro || parent.AllowProcMacro,
		AllowBuildInstructions: unionSortedDedup(parent.AllowBuildInstructions, child.AllowBuildInstructions),
		AllowAPIs:              unionSortedDedup(parent.AllowAPIs, child.AllowAPIs),
		Sandbox:                child.Sandbox.inherit(parent.Sandbox),
		Import:                 unionSortedDedup(parent.Import, child.Import),
	}
}
