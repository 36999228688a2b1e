package pkgindex

import "github.com/capcage/capcage/internal/policy"

// PermissionSelectors returns the set of (package, scope) pairs that are
// actually reachable given which packages have build scripts and targets at
// all, used to flag policy entries configuring a scope that can never
// apply (spec §4.1). Build/FromBuild selectors are only included for
// packages with a build script; Test/FromTest selectors are only included
// for packages with at least one build target, since a target-less package
// can define no tests either. All is always included.
func (idx *Index) PermissionSelectors() []policy.Selector {
	var out []policy.Selector

	for _, id := range idx.all {
		out = append(out, policy.Selector{Package: id.Name, Scope: policy.ScopeAll})

		if idx.HasBuildScript(id) {
			out = append(out,
				policy.Selector{Package: id.Name, Scope: policy.ScopeBuild},
				policy.Selector{Package: id.Name, Scope: policy.ScopeFromBuild},
			)
		}

		if idx.HasTargets(id) {
			out = append(out,
				policy.Selector{Package: id.Name, Scope: policy.ScopeTest},
				policy.Selector{Package: id.Name, Scope: policy.ScopeFromTest},
			)
		}
	}

	return out
}
