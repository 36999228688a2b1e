package policy

// This file holds the raw decode target for the TOML policy file (§6): the
// on-disk schema, kept deliberately separate from the resolved Policy/
// PackagePolicy types since the TOML shape (optional pointers distinguishing
// "absent" from "false"/"empty") and the resolved, inheritance-applied shape
// serve different purposes.

// fileDoc mirrors the policy file's top-level tables.
type fileDoc struct {
	Common commonDoc             `toml:"common"`
	API    map[string]apiDoc     `toml:"api"`
	Pkg    map[string]pkgDoc     `toml:"pkg"`
	Sandbox sandboxDoc           `toml:"sandbox"`
}

// commonDoc is the `[common]` table.
type commonDoc struct {
	Version               int      `toml:"version"`
	ExplicitBuildScripts  bool     `toml:"explicit_build_scripts"`
	BuildFlags            []string `toml:"build_flags"`
	ImportStd             []string `toml:"import_std"`
	Features              []string `toml:"features"`
	Profile               string   `toml:"profile"`
}

// apiDoc is one `[api.<name>]` table.
type apiDoc struct {
	Include      []string `toml:"include"`
	Exclude      []string `toml:"exclude"`
	NoAutoDetect []string `toml:"no_auto_detect"`
}

// sandboxDoc is a `[sandbox]` or `[pkg.<name>.sandbox]` table. Kind and
// AllowNetwork are pointers so the loader can distinguish "not set, inherit
// from parent scope" from an explicit false/empty value, matching the
// teacher's CommandRule pattern of using the decoded shape itself to carry
// the "was this field present" signal.
type sandboxDoc struct {
	Kind         *SandboxKind `toml:"kind"`
	ExtraArgs    []string     `toml:"extra_args"`
	AllowNetwork *bool        `toml:"allow_network"`
	BindWritable []string     `toml:"bind_writable"`
	MakeWritable []string     `toml:"make_writable"`
	PassEnv      []string     `toml:"pass_env"`
}

func (d sandboxDoc) resolve() SandboxPolicy {
	out := SandboxPolicy{
		ExtraArgs:    d.ExtraArgs,
		BindWritable: d.BindWritable,
		MakeWritable: d.MakeWritable,
		PassEnv:      d.PassEnv,
	}

	if d.Kind != nil {
		out.Kind = *d.Kind
		out.kindSet = true
	}

	if d.AllowNetwork != nil {
		out.AllowNetwork = *d.AllowNetwork
		out.allowNetSet = true
	}

	return out
}

// pkgDoc is a `[pkg.<name>]` table, with its nested scope overrides.
type pkgDoc struct {
	AllowUnsafe            bool       `toml:"allow_unsafe"`
	AllowProcMacro         bool       `toml:"allow_proc_macro"`
	AllowBuildInstructions []string   `toml:"allow_build_instructions"`
	AllowAPIs              []string   `toml:"allow_apis"`
	Sandbox                sandboxDoc `toml:"sandbox"`
	Import                 []string   `toml:"import"`

	Build *pkgDoc   `toml:"build"`
	Test  *pkgDoc   `toml:"test"`
	From  *fromDoc  `toml:"from"`
}

// fromDoc holds `[pkg.<name>.from.build]` and `[pkg.<name>.from.test]`.
type fromDoc struct {
	Build *pkgDoc `toml:"build"`
	Test  *pkgDoc `toml:"test"`
}

func (d pkgDoc) resolve() PackagePolicy {
	return PackagePolicy{
		AllowUnsafe:            d.AllowUnsafe,
		AllowProcMacro:         d.AllowProcMacro,
		AllowBuildInstructions: d.AllowBuildInstructions,
		AllowAPIs:              d.AllowAPIs,
		Sandbox:                d.Sandbox.resolve(),
		Import:                 d.Import,
	}
}
