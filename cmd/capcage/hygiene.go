package main

import (
	"sort"
	"strings"

	"github.com/capcage/capcage/internal/analyzer"
	"github.com/capcage/capcage/internal/pkgindex"
	"github.com/capcage/capcage/internal/policy"
	"github.com/capcage/capcage/internal/problem"
)

// runHygienePass produces the post-build advisory problems spec.md §7
// describes: policy entries that never mattered, capabilities granted but
// unused, and packages that would benefit from an entry the policy doesn't
// have yet. Unlike the wrapper-reported problems handler.go deals with,
// nothing here blocks the build that already ran; it's computed once after
// cargo exits, from the final policy and the accumulated usage records.
func runHygienePass(pol *policy.Policy, idx *pkgindex.Index, importer pkgindex.CapabilityImporter, records []analyzer.UsageRecord) []problem.Problem {
	var problems []problem.Problem

	problems = append(problems, unusedPackageConfigs(pol, idx)...)
	problems = append(problems, unusedAllowAPIs(pol, records)...)
	problems = append(problems, usesBuildScriptProblems(pol, idx)...)
	problems = append(problems, isProcMacroProblems(pol, idx)...)
	problems = append(problems, selectSandboxProblems(pol, idx)...)
	problems = append(problems, importStdAPIProblems(pol)...)
	problems = append(problems, availableAPIProblems(pol, importer)...)
	problems = append(problems, possibleExportedAPIProblems(pol, idx)...)
	problems = append(problems, unreachableQualifiedGrants(pol, idx)...)

	return problems
}

// unusedPackageConfigs flags a package name declared anywhere in the policy
// that names none of idx.PermissionSelectors' reachable (package, scope)
// pairs - almost always a typo, or a dependency that was since removed
// from Cargo.toml, since a package the dependency graph still resolves
// always contributes at least its ScopeAll selector.
func unusedPackageConfigs(pol *policy.Policy, idx *pkgindex.Index) []problem.Problem {
	declared := declaredPackageNames(pol)

	reachable := make(map[string]bool)
	for _, sel := range idx.PermissionSelectors() {
		reachable[sel.Package] = true
	}

	var problems []problem.Problem
	for _, name := range sortedKeys(declared) {
		if !reachable[name] {
			problems = append(problems, problem.NewUnusedPackageConfig(name))
		}
	}

	return problems
}

// unusedAllowAPIs flags an AllowAPIs grant (ScopeAll, the common case most
// policies write their capability grants under) that no usage record the
// build actually produced ever exercised. A wildcard grant ("*") is never
// flagged, since it exists precisely to cover capabilities not enumerated
// individually.
func unusedAllowAPIs(pol *policy.Policy, records []analyzer.UsageRecord) []problem.Problem {
	used := make(map[string]map[string]bool)
	for _, r := range records {
		if used[r.FromPackage] == nil {
			used[r.FromPackage] = make(map[string]bool)
		}
		used[r.FromPackage][string(r.Capability)] = true
	}

	var problems []problem.Problem

	for _, sel := range sortedSelectors(pol) {
		if sel.Scope != policy.ScopeAll {
			continue
		}

		pkgPolicy := pol.Packages[sel]
		for _, capability := range pkgPolicy.AllowAPIs {
			if capability == "*" {
				continue
			}

			if used[sel.Package][capability] {
				continue
			}

			problems = append(problems, problem.NewUnusedAllowAPI(sel.Package, capability))
		}
	}

	return problems
}

// usesBuildScriptProblems flags a package with a custom-build target that
// the policy never mentions at all, but only once the policy has opted
// into explicit_build_scripts - without that opt-in, an unconfigured build
// script is expected (it runs under the implicit default policy) rather
// than a hygiene finding.
func usesBuildScriptProblems(pol *policy.Policy, idx *pkgindex.Index) []problem.Problem {
	if !pol.ExplicitBuildScripts {
		return nil
	}

	declared := declaredPackageNames(pol)

	var problems []problem.Problem
	for _, id := range idx.All() {
		if idx.HasBuildScript(id) && !declared[id.Name] {
			problems = append(problems, problem.NewUsesBuildScript(id.Name))
		}
	}

	return problems
}

// isProcMacroProblems flags a proc-macro package whose resolved policy
// doesn't set allow_proc_macro, matching DisallowedApiUsage's advisory
// counterpart: this is raised even for a proc-macro the build never
// actually complained about, since a later compiler upgrade or feature
// change could make the omission bite without any policy change at all.
func isProcMacroProblems(pol *policy.Policy, idx *pkgindex.Index) []problem.Problem {
	var problems []problem.Problem

	for _, id := range idx.All() {
		if !idx.IsProcMacro(id) {
			continue
		}

		if pol.Packages[policy.Selector{Package: id.Name, Scope: policy.ScopeAll}].AllowProcMacro {
			continue
		}

		problems = append(problems, problem.NewIsProcMacro(id.Name))
	}

	return problems
}

// selectSandboxProblems flags a package with a build script whose Build
// scope never made an explicit sandbox.kind choice - it's running Disabled
// by default, silently, rather than because anyone decided that was safe.
func selectSandboxProblems(pol *policy.Policy, idx *pkgindex.Index) []problem.Problem {
	var problems []problem.Problem

	for _, id := range idx.All() {
		if !idx.HasBuildScript(id) {
			continue
		}

		buildPolicy := pol.Packages[policy.Selector{Package: id.Name, Scope: policy.ScopeBuild}]
		if buildPolicy.Sandbox.KindWasSet() {
			continue
		}

		problems = append(problems, problem.NewSelectSandbox(id.Name))
	}

	return problems
}

// importStdAPIProblems flags an import_std entry that names a capability
// never actually defined under [api.*] - it can't do anything until the
// capability it refers to exists.
func importStdAPIProblems(pol *policy.Policy) []problem.Problem {
	var problems []problem.Problem

	for _, name := range pol.ImportStd {
		if _, ok := pol.Capabilities[policy.CapabilityName(name)]; !ok {
			problems = append(problems, problem.NewImportStdAPI(name))
		}
	}

	return problems
}

// availableAPIProblems flags a capability a package exports via its own
// capcage-exports.toml that no policy entry ever imports - the export sits
// there unused because nothing declared `import = ["<api>"]` for it.
func availableAPIProblems(pol *policy.Policy, importer pkgindex.CapabilityImporter) []problem.Problem {
	exported := importer.ExportedAPINames()

	var problems []problem.Problem

	for _, pkgName := range sortedKeys(toSet(mapKeys(exported))) {
		apis := append([]string(nil), exported[pkgName]...)
		sort.Strings(apis)

		for _, api := range apis {
			qualified := policy.CapabilityName(pkgName + "::" + api)
			if _, ok := pol.Capabilities[qualified]; ok {
				continue
			}

			problems = append(problems, problem.NewAvailableAPI(pkgName, api))
		}
	}

	return problems
}

// possibleExportedAPIProblems flags a package whose own lib name collides
// with a capability name already defined in the policy - a strong signal
// the capability was meant to scope that package's own API rather than
// being a coincidental name clash.
func possibleExportedAPIProblems(pol *policy.Policy, idx *pkgindex.Index) []problem.Problem {
	var problems []problem.Problem

	for _, id := range idx.All() {
		libName := idx.LibName(id)
		if libName == "" {
			continue
		}

		if _, ok := pol.Capabilities[policy.CapabilityName(libName)]; ok {
			problems = append(problems, problem.NewPossibleExportedAPI(id.Name, libName))
		}
	}

	return problems
}

// unreachableQualifiedGrants flags an AllowAPIs entry naming a qualified
// capability ("exporter::api", the form resolveImports injects for a
// package's own `import = [...]` declaration) that the granted package
// can't actually reach: idx.TransitiveDeps walks the normal dependency
// edges, so an exporter absent from that set means the grant can never be
// exercised no matter what the granted crate does.
func unreachableQualifiedGrants(pol *policy.Policy, idx *pkgindex.Index) []problem.Problem {
	byName := make(map[string]pkgindex.PackageId, len(idx.All()))
	for _, id := range idx.All() {
		if _, ok := byName[id.Name]; !ok {
			byName[id.Name] = id
		}
	}

	var problems []problem.Problem

	for _, sel := range sortedSelectors(pol) {
		if sel.Scope != policy.ScopeAll {
			continue
		}

		grantee, ok := byName[sel.Package]
		if !ok {
			continue
		}

		deps := idx.TransitiveDeps(grantee)

		for _, capability := range pol.Packages[sel].AllowAPIs {
			exporter, _, isQualified := splitQualifiedCapability(capability)
			if !isQualified {
				continue
			}

			if _, reachable := deps[strings.ReplaceAll(exporter, "-", "_")]; reachable {
				continue
			}

			problems = append(problems, problem.NewMessage(
				sel.Package+": granted capability "+capability+" exported by "+exporter+
					", which isn't among its dependencies",
			))
		}
	}

	return problems
}

// splitQualifiedCapability splits a "pkg::api" capability name, as injected
// by resolveImports for a package's own `import = [...]` declaration.
func splitQualifiedCapability(capability string) (pkg, api string, ok bool) {
	for i := 0; i+1 < len(capability); i++ {
		if capability[i] == ':' && capability[i+1] == ':' {
			return capability[:i], capability[i+2:], true
		}
	}

	return "", "", false
}

// declaredPackageNames collects every distinct package name appearing as a
// key anywhere in pol.Packages, regardless of which scope.
func declaredPackageNames(pol *policy.Policy) map[string]bool {
	out := make(map[string]bool)
	for sel := range pol.Packages {
		out[sel.Package] = true
	}

	return out
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}

	sort.Strings(out)

	return out
}

func sortedSelectors(pol *policy.Policy) []policy.Selector {
	out := make([]policy.Selector, 0, len(pol.Packages))
	for sel := range pol.Packages {
		out = append(out, sel)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Package != out[j].Package {
			return out[i].Package < out[j].Package
		}

		return out[i].Scope < out[j].Scope
	})

	return out
}

func mapKeys(m map[string][]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}

	return out
}

func toSet(keys []string) map[string]bool {
	out := make(map[string]bool, len(keys))
	for _, k := range keys {
		out[k] = true
	}

	return out
}
