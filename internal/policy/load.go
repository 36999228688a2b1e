package policy

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Policy is the fully parsed and inheritance-resolved policy file.
type Policy struct {
	Version              int
	ExplicitBuildScripts bool
	BuildFlags           []string
	ImportStd            []string
	Features             []string
	Profile              string

	Capabilities map[CapabilityName]CapabilityRule
	Packages     map[Selector]PackagePolicy
}

// Load reads and resolves the TOML policy file at path: it decodes the raw
// schema, rejecting unknown fields, applies five-scope inheritance to every
// declared package, and resolves `import = [...]` declarations via
// resolveImports.
func Load(path string, importer Importer) (*Policy, error) {
	var doc fileDoc

	meta, err := toml.DecodeFile(path, &doc)
	if err != nil {
		return nil, fmt.Errorf("policy: parse %s: %w", path, err)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("policy: %s: unknown field %q", path, undecoded[0].String())
	}

	return fromDocument(doc, importer)
}

func fromDocument(doc fileDoc, importer Importer) (*Policy, error) {
	caps := make(map[CapabilityName]CapabilityRule, len(doc.API))

	for name, a := range doc.API {
		caps[CapabilityName(name)] = CapabilityRule{
			Include:      a.Include,
			Exclude:      a.Exclude,
			NoAutoDetect: a.NoAutoDetect,
		}
	}

	p := &Policy{
		Version:              doc.Common.Version,
		ExplicitBuildScripts: doc.Common.ExplicitBuildScripts,
		BuildFlags:           doc.Common.BuildFlags,
		ImportStd:            doc.Common.ImportStd,
		Features:             doc.Common.Features,
		Profile:              doc.Common.Profile,
		Capabilities:         caps,
		Packages:             make(map[Selector]PackagePolicy),
	}

	globalSandbox := doc.Sandbox.resolve()

	for name, pkg := range doc.Pkg {
		scoped := expandPackageScopes(pkg)
		resolved := resolveScopes(scoped)

		for scope, pol := range resolved {
			pol.Sandbox = pol.Sandbox.inherit(globalSandbox)
			p.Packages[Selector{Package: name, Scope: scope}] = pol
		}
	}

	if importer != nil {
		if err := resolveImports(p, importer); err != nil {
			return nil, err
		}
	}

	return p, nil
}

// expandPackageScopes reads a pkgDoc's nested build/test/from tables into
// one raw (un-inherited) PackagePolicy per scope.
func expandPackageScopes(doc pkgDoc) map[Scope]PackagePolicy {
	out := map[Scope]PackagePolicy{
		ScopeAll: doc.resolve(),
	}

	if doc.Build != nil {
		out[ScopeBuild] = doc.Build.resolve()
	}

	if doc.Test != nil {
		out[ScopeTest] = doc.Test.resolve()
	}

	if doc.From != nil {
		if doc.From.Build != nil {
			out[ScopeFromBuild] = doc.From.Build.resolve()
		}

		if doc.From.Test != nil {
			out[ScopeFromTest] = doc.From.Test.resolve()
		}
	}

	return out
}

// resolveScopes applies inheritance top-down over scopeApplicationOrder, so
// that by the time a scope is visited its parent has already been resolved.
func resolveScopes(raw map[Scope]PackagePolicy) map[Scope]PackagePolicy {
	resolved := make(map[Scope]PackagePolicy, len(scopeApplicationOrder))

	for _, scope := range scopeApplicationOrder {
		child := raw[scope]

		parentScope, hasParent := scope.Parent()
		if !hasParent {
			resolved[scope] = child

			continue
		}

		resolved[scope] = child.Inherit(resolved[parentScope])
	}

	return resolved
}
