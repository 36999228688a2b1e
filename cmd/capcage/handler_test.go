package main

import (
	"runtime"
	"testing"

	"github.com/capcage/capcage/internal/policy"
	"github.com/capcage/capcage/internal/problemstore"
	"github.com/capcage/capcage/internal/rpcproto"
	"github.com/capcage/capcage/internal/symbol"
)

func newTestHandler(pol *policy.Policy) *requestHandler {
	return &requestHandler{policy: pol, store: problemstore.New()}
}

func TestHandleCrateUsesUnsafeAllowedProducesNoProblem(t *testing.T) {
	pol := &policy.Policy{Packages: map[policy.Selector]policy.PackagePolicy{
		{Package: "libc", Scope: policy.ScopeAll}: {AllowUnsafe: true},
	}}

	h := newTestHandler(pol)

	resp := h.handle(rpcproto.NewCrateUsesUnsafe(rpcproto.CrateUsesUnsafe{
		Crate:     "libc",
		Locations: []symbol.SourceLocation{{File: "lib.rs"}},
	}))

	if resp.Kind != rpcproto.ResponseContinue {
		t.Errorf("resp.Kind = %v, want Continue", resp.Kind)
	}
}

func TestHandleCrateUsesUnsafeDisallowedBlocksUntilResolved(t *testing.T) {
	h := newTestHandler(&policy.Policy{Packages: map[policy.Selector]policy.PackagePolicy{}})

	done := make(chan rpcproto.Response, 1)

	go func() {
		done <- h.handle(rpcproto.NewCrateUsesUnsafe(rpcproto.CrateUsesUnsafe{Crate: "sneaky"}))
	}()

	waitForEntries(t, h.store, 1)

	entries := h.store.Entries()
	entries[0].Resolve(0)

	resp := <-done
	if resp.Kind != rpcproto.ResponseContinue {
		t.Errorf("resp.Kind = %v, want Continue after Resolve", resp.Kind)
	}
}

func TestHandleCrateUsesUnsafeAbortSendsGiveUp(t *testing.T) {
	h := newTestHandler(&policy.Policy{Packages: map[policy.Selector]policy.PackagePolicy{}})

	done := make(chan rpcproto.Response, 1)

	go func() {
		done <- h.handle(rpcproto.NewCrateUsesUnsafe(rpcproto.CrateUsesUnsafe{Crate: "sneaky"}))
	}()

	waitForEntries(t, h.store, 1)
	h.store.Abort()

	resp := <-done
	if resp.Kind != rpcproto.ResponseGiveUp {
		t.Errorf("resp.Kind = %v, want GiveUp after Abort", resp.Kind)
	}
}

func TestHandleRustcStartedProducesNoProblem(t *testing.T) {
	h := newTestHandler(&policy.Policy{})

	resp := h.handle(rpcproto.NewRustcStarted(rpcproto.RustcStarted{Crate: "foo"}))
	if resp.Kind != rpcproto.ResponseContinue {
		t.Errorf("resp.Kind = %v, want Continue", resp.Kind)
	}
}

func TestHandleBuildScriptCompleteNonZeroExitReportsFailure(t *testing.T) {
	h := newTestHandler(&policy.Policy{})

	done := make(chan rpcproto.Response, 1)

	go func() {
		done <- h.handle(rpcproto.NewBuildScriptComplete(rpcproto.BuildScriptComplete{
			Crate: "foo",
			Output: rpcproto.BinExecutionOutput{
				ExitCode: 1,
				Stderr:   "boom",
			},
		}))
	}()

	waitForEntries(t, h.store, 1)

	entries := h.store.Entries()
	if len(entries[0].Problems()) != 1 {
		t.Fatalf("len(Problems()) = %d, want 1", len(entries[0].Problems()))
	}

	entries[0].Resolve(0)
	<-done
}

// waitForEntries spins briefly until the store has at least n entries,
// avoiding a fixed sleep while the handler goroutine races to call Append.
func waitForEntries(t *testing.T, store *problemstore.Store, n int) {
	t.Helper()

	for range 100000 {
		if len(store.Entries()) >= n {
			return
		}

		runtime.Gosched()
	}

	t.Fatalf("store never reached %d entries", n)
}
