package main

import (
	"sync"

	"github.com/capcage/capcage/internal/policyedit"
	"github.com/capcage/capcage/internal/problem"
	"github.com/capcage/capcage/internal/problemstore"
)

// autoResolver is the non-interactive stand-in for spec.md §1's external UI
// collaborator: `--ui=none`/`--ui=basic` have no human to ask, so every
// newly appended entry is resolved immediately rather than left blocking
// forever. It auto-fixes what internal/policyedit knows how to fix
// (writing the change back to the policy file under the same atomic-rename
// discipline the supervisor uses everywhere else), silently waves through
// Warning/Info problems unless --fail-on-warnings is set, and aborts the
// whole store - the only rejection problemstore.Entry exposes - the moment
// an Error-severity problem survives both of those.
type autoResolver struct {
	mu             sync.Mutex
	editor         *policyedit.Editor
	policyPath     string
	failOnWarnings bool
	debug          *DebugLogger
	store          *problemstore.Store
}

func (r *autoResolver) resolve(entry *problemstore.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	problems := entry.Problems()
	if len(problems) == 0 {
		return
	}

	fixed := r.fix(problems)

	// Resolve descending so earlier indices stay valid as later ones are
	// removed (problemstore.Entry.Resolve shifts the slice on each call).
	unresolved := 0

	for i := len(problems) - 1; i >= 0; i-- {
		p := problems[i]

		if fixed[i] || r.passesWithoutFix(p) {
			entry.Resolve(i)

			continue
		}

		unresolved++
	}

	if unresolved > 0 {
		if r.debug.Enabled() {
			r.debug.Bulletf("auto-resolver: aborting, %d unresolved problem(s) with no human to ask", unresolved)
		}

		r.store.Abort()
	}
}

// fix reports, per problem, whether internal/policyedit knew how to fix it,
// persisting the edited policy file once if any problem was fixed.
func (r *autoResolver) fix(problems []problem.Problem) []bool {
	fixed := make([]bool, len(problems))

	if r.editor == nil {
		return fixed
	}

	anyFixed := false

	for i, p := range problems {
		if r.editor.FixProblem(p) {
			fixed[i] = true
			anyFixed = true
		}
	}

	if anyFixed {
		if text, err := r.editor.ToTOML(); err == nil {
			_ = writePolicyAtomic(r.policyPath, text)
		}
	}

	return fixed
}

// passesWithoutFix reports whether p can be silently waved through even
// though no edit fixed it: Info-severity bootstrap prompts always are
// (spec.md §5.1), Warning-severity problems are unless --fail-on-warnings.
func (r *autoResolver) passesWithoutFix(p problem.Problem) bool {
	switch p.Severity {
	case problem.SeverityInfo:
		return true
	case problem.SeverityWarning:
		return !r.failOnWarnings
	default:
		return false
	}
}
