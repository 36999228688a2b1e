package main

import (
	"testing"

	"github.com/capcage/capcage/internal/analyzer"
	"github.com/capcage/capcage/internal/policy"
	"github.com/capcage/capcage/internal/symbol"
)

func TestUnusedAllowAPIsFlagsGrantNeverExercised(t *testing.T) {
	pol := &policy.Policy{Packages: map[policy.Selector]policy.PackagePolicy{
		{Package: "acme", Scope: policy.ScopeAll}: {AllowAPIs: []string{"fs", "net"}},
	}}

	records := []analyzer.UsageRecord{
		{FromPackage: "acme", Capability: "fs", Location: symbol.SourceLocation{File: "lib.rs"}},
	}

	problems := unusedAllowAPIs(pol, records)
	if len(problems) != 1 {
		t.Fatalf("len(problems) = %d, want 1", len(problems))
	}

	if problems[0].Package != "acme" || problems[0].Capability != "net" {
		t.Errorf("problem = %+v, want acme/net", problems[0])
	}
}

func TestUnusedAllowAPIsIgnoresWildcardGrant(t *testing.T) {
	pol := &policy.Policy{Packages: map[policy.Selector]policy.PackagePolicy{
		{Package: "acme", Scope: policy.ScopeAll}: {AllowAPIs: []string{"*"}},
	}}

	if problems := unusedAllowAPIs(pol, nil); len(problems) != 0 {
		t.Errorf("problems = %v, want none for wildcard grant", problems)
	}
}

func TestUnusedAllowAPIsIgnoresNonAllScopes(t *testing.T) {
	pol := &policy.Policy{Packages: map[policy.Selector]policy.PackagePolicy{
		{Package: "acme", Scope: policy.ScopeBuild}: {AllowAPIs: []string{"fs"}},
	}}

	if problems := unusedAllowAPIs(pol, nil); len(problems) != 0 {
		t.Errorf("problems = %v, want none for non-All scope", problems)
	}
}

func TestImportStdAPIProblemsFlagsUndefinedCapability(t *testing.T) {
	pol := &policy.Policy{
		ImportStd:    []string{"fs", "net"},
		Capabilities: map[policy.CapabilityName]policy.CapabilityRule{"fs": {}},
	}

	problems := importStdAPIProblems(pol)
	if len(problems) != 1 || problems[0].Capability != "net" {
		t.Errorf("problems = %+v, want one entry for net", problems)
	}
}

func TestImportStdAPIProblemsNoneWhenAllDefined(t *testing.T) {
	pol := &policy.Policy{
		ImportStd:    []string{"fs"},
		Capabilities: map[policy.CapabilityName]policy.CapabilityRule{"fs": {}},
	}

	if problems := importStdAPIProblems(pol); len(problems) != 0 {
		t.Errorf("problems = %v, want none", problems)
	}
}

func TestSplitQualifiedCapability(t *testing.T) {
	pkg, api, ok := splitQualifiedCapability("acme::fs")
	if !ok || pkg != "acme" || api != "fs" {
		t.Errorf("splitQualifiedCapability = (%q, %q, %v), want (acme, fs, true)", pkg, api, ok)
	}

	if _, _, ok := splitQualifiedCapability("plain"); ok {
		t.Error("splitQualifiedCapability(\"plain\") reported qualified")
	}
}

func TestDeclaredPackageNamesCollectsAcrossScopes(t *testing.T) {
	pol := &policy.Policy{Packages: map[policy.Selector]policy.PackagePolicy{
		{Package: "acme", Scope: policy.ScopeAll}:   {},
		{Package: "acme", Scope: policy.ScopeBuild}: {},
		{Package: "other", Scope: policy.ScopeTest}: {},
	}}

	names := declaredPackageNames(pol)
	if len(names) != 2 || !names["acme"] || !names["other"] {
		t.Errorf("names = %v, want {acme, other}", names)
	}
}

func TestHygieneHelpersAndCompileTrieTolerateEmptyPolicy(t *testing.T) {
	// Sanity check that runHygienePass's sub-helpers tolerate a policy with
	// no packages and no capabilities at all, the state a brand-new
	// cackle.toml starts in.
	pol := &policy.Policy{Packages: map[policy.Selector]policy.PackagePolicy{}}

	if problems := unusedAllowAPIs(pol, nil); len(problems) != 0 {
		t.Errorf("unusedAllowAPIs = %v, want none", problems)
	}

	if problems := importStdAPIProblems(pol); len(problems) != 0 {
		t.Errorf("importStdAPIProblems = %v, want none", problems)
	}

	if trie := compileTrie(pol); trie == nil {
		t.Error("compileTrie returned nil for empty policy")
	}
}
