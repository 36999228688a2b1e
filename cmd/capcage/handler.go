package main

import (
	"fmt"
	"sync"

	"github.com/capcage/capcage/internal/analyzer"
	"github.com/capcage/capcage/internal/buildinstr"
	"github.com/capcage/capcage/internal/captrie"
	"github.com/capcage/capcage/internal/pkgindex"
	"github.com/capcage/capcage/internal/policy"
	"github.com/capcage/capcage/internal/problem"
	"github.com/capcage/capcage/internal/problemstore"
	"github.com/capcage/capcage/internal/rpcproto"
)

// requestHandler turns one wire-protocol request into problems (appended to
// the store) and a reply, the supervisor's half of spec.md §4.5's state
// machine. It holds no network or process state, so it's exercised directly
// in tests without a socket or subprocess.
type requestHandler struct {
	policy   *policy.Policy
	index    *pkgindex.Index
	trie     *captrie.Trie
	store    *problemstore.Store
	resolver *autoResolver

	recordsMu sync.Mutex
	records   []analyzer.UsageRecord

	// sourcesMu guards sourceCrate, the source-path-to-crate bookkeeping
	// KindRustcComplete populates: the compiler front-end's own claim of
	// which files it read for a crate, cross-checked here against the
	// package index's directory-based fallback attribution
	// (pkgindex.PackageForPath) so a symlinked or vendored source tree
	// that would fool the fallback path gets flagged instead of silently
	// misattributing capability usage to the wrong package.
	sourcesMu   sync.Mutex
	sourceCrate map[string]string
}

// Records returns every usage record accumulated so far across every
// linker invocation this handler has seen, the raw material the `summary`
// subcommand tallies via buildSummary.
func (h *requestHandler) Records() []analyzer.UsageRecord {
	h.recordsMu.Lock()
	defer h.recordsMu.Unlock()

	out := make([]analyzer.UsageRecord, len(h.records))
	copy(out, h.records)

	return out
}

// packagePolicyFor looks up the fully-resolved (post-inheritance)
// PackagePolicy for pkg at scope, defaulting to the zero value (nothing
// granted) for packages the policy file never mentions - spec.md §7's
// UnusedPackageConfig/implicit-deny default.
func (h *requestHandler) packagePolicyFor(pkg string, scope policy.Scope) policy.PackagePolicy {
	if h.policy == nil {
		return policy.PackagePolicy{}
	}

	return h.policy.Packages[policy.Selector{Package: pkg, Scope: scope}]
}

// scopeFor resolves which of the five policy.Scope values governs a
// request concerning a crate of the given kind, distinguishing the root
// crate a request is directly about from some other crate only pulled in
// as a dependency of that root's link (spec.md §7's five-scope model): a
// build script and its own dependencies see Build/FromBuild, a test
// harness and its dependencies see Test/FromTest, and everything else
// (ordinary library and binary crates) sees All regardless of dependency
// position.
func scopeFor(kind rpcproto.CrateKind, dependency bool) policy.Scope {
	switch kind {
	case rpcproto.CrateKindBuildScript:
		if dependency {
			return policy.ScopeFromBuild
		}

		return policy.ScopeBuild
	case rpcproto.CrateKindTest:
		if dependency {
			return policy.ScopeFromTest
		}

		return policy.ScopeTest
	default:
		return policy.ScopeAll
	}
}

func (h *requestHandler) allowedForScope(pkg string, scope policy.Scope, capability string) bool {
	pol := h.packagePolicyFor(pkg, scope)
	for _, allowed := range pol.AllowAPIs {
		if allowed == capability || allowed == "*" {
			return true
		}
	}

	return false
}

// handle dispatches req to the matching analysis, appends any resulting
// problems to the store, blocks on that entry's reply, and translates the
// in-process problemstore.Reply to the wire-level rpcproto.Response.
func (h *requestHandler) handle(req rpcproto.Request) rpcproto.Response {
	var problems []problem.Problem

	switch req.Kind {
	case rpcproto.KindCrateUsesUnsafe:
		problems = h.handleCrateUsesUnsafe(*req.CrateUsesUnsafe)
	case rpcproto.KindRustcStarted:
		// No problems are raised purely from a compile starting; this
		// request exists so the supervisor can track in-flight crates for
		// --debug tracing.
	case rpcproto.KindRustcComplete:
		problems = h.handleRustcComplete(*req.RustcComplete)
	case rpcproto.KindLinkerInvoked:
		problems = h.handleLinkerInvoked(*req.LinkerInvoked)
	case rpcproto.KindBuildScriptComplete:
		problems = h.handleBuildScriptComplete(*req.BuildScriptComplete)
	}

	if len(problems) == 0 {
		return rpcproto.Response{Kind: rpcproto.ResponseContinue}
	}

	entry := h.store.Append(problems)

	if h.resolver != nil {
		h.resolver.resolve(entry)
	}

	reply := <-entry.Reply()

	if reply == problemstore.GiveUp {
		return rpcproto.Response{Kind: rpcproto.ResponseGiveUp}
	}

	return rpcproto.Response{Kind: rpcproto.ResponseContinue}
}

func (h *requestHandler) handleCrateUsesUnsafe(v rpcproto.CrateUsesUnsafe) []problem.Problem {
	scope := scopeFor(v.Kind, false)
	if h.packagePolicyFor(v.Crate, scope).AllowUnsafe {
		return nil
	}

	return []problem.Problem{problem.NewDisallowedUnsafe(v.Crate, v.Locations)}
}

// handleRustcComplete records which source files the compiler front-end
// read for v.Crate and flags any whose directory-based package attribution
// (pkgindex.PackageForPath, the fallback path spec.md §4.4 step 3d falls
// back to when debug info doesn't resolve a symbol's origin) disagrees
// with what the compiler itself reported - a vendored or symlinked source
// tree is exactly the case where that fallback can silently misattribute
// usage to the wrong package.
func (h *requestHandler) handleRustcComplete(v rpcproto.RustcComplete) []problem.Problem {
	var problems []problem.Problem

	h.sourcesMu.Lock()
	if h.sourceCrate == nil {
		h.sourceCrate = make(map[string]string)
	}

	for _, path := range v.SourcePaths {
		h.sourceCrate[path] = v.Crate

		if h.index == nil {
			continue
		}

		if name, ok := h.index.PackageForPath(path); ok && name != v.Crate {
			problems = append(problems, problem.NewMessage(fmt.Sprintf(
				"source file %q reported by rustc for crate %q resolves to package %q by directory, footprint mismatch",
				path, v.Crate, name,
			)))
		}
	}
	h.sourcesMu.Unlock()

	return problems
}

func (h *requestHandler) handleLinkerInvoked(v rpcproto.LinkerInvoked) []problem.Problem {
	outputs, err := analyzer.ScanObjects(analyzer.ScanInputs{
		ObjectPaths:    v.Info.Inputs,
		ExecutablePath: v.Info.Output,
	}, h.trie, h.index)
	if err != nil {
		return []problem.Problem{problem.NewMessage(err.Error())}
	}

	h.recordsMu.Lock()
	h.records = append(h.records, outputs.Records...)
	h.recordsMu.Unlock()

	rootCrate := v.Info.Crate
	kind := v.Info.Kind

	allowed := func(pkg, capability string) bool {
		scope := scopeFor(kind, pkg != rootCrate)

		return h.allowedForScope(pkg, scope, capability)
	}

	problems := append([]problem.Problem(nil), outputs.Problems...)
	problems = append(problems, analyzer.Evaluate(outputs.Records, allowed)...)

	return problems
}

func (h *requestHandler) handleBuildScriptComplete(v rpcproto.BuildScriptComplete) []problem.Problem {
	pol := h.packagePolicyFor(v.Crate, policy.ScopeBuild)

	return buildinstr.Check(v.Crate, v.Output, pol.AllowBuildInstructions)
}
