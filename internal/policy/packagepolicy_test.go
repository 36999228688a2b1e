package policy

import (
	"reflect"
	"testing"
)

func TestInheritanceUnionsListsAndOrsBooleans(t *testing.T) {
	parent := PackagePolicy{
		AllowUnsafe: true,
		AllowAPIs:   []string{"fs"},
	}
	child := PackagePolicy{
		AllowAPIs: []string{"process", "fs"},
	}

	got := child.Inherit(parent)

	if !got.AllowUnsafe {
		t.Fatal("expected AllowUnsafe to be ORed in from the parent")
	}

	want := []string{"fs", "process"}
	if !reflect.DeepEqual(got.AllowAPIs, want) {
		t.Fatalf("AllowAPIs = %v, want %v (sorted, deduped union)", got.AllowAPIs, want)
	}
}

func TestInheritanceIsIdempotent(t *testing.T) {
	parent := PackagePolicy{AllowUnsafe: true, AllowAPIs: []string{"fs"}}
	child := PackagePolicy{AllowAPIs: []string{"process"}}

	once := child.Inherit(parent)
	twice := once.Inherit(parent)

	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("applying inheritance twice changed the result:\nonce:  %+v\ntwice: %+v", once, twice)
	}
}

// TestScenario6Inheritance reproduces spec scenario 6: pkg.bar sets
// allow_unsafe and allow_apis at the top level with an empty test override;
// after resolving scopes, both bar.test and bar.from_test must carry the
// parent's allow_unsafe and allow_apis.
func TestScenario6Inheritance(t *testing.T) {
	raw := map[Scope]PackagePolicy{
		ScopeAll:  {AllowUnsafe: true, AllowAPIs: []string{"fs", "process"}},
		ScopeTest: {},
	}

	resolved := resolveScopes(raw)

	for _, scope := range []Scope{ScopeTest, ScopeFromTest} {
		pol := resolved[scope]
		if !pol.AllowUnsafe {
			t.Errorf("scope %s: AllowUnsafe = false, want true", scope)
		}

		want := []string{"fs", "process"}
		if !reflect.DeepEqual(pol.AllowAPIs, want) {
			t.Errorf("scope %s: AllowAPIs = %v, want %v", scope, pol.AllowAPIs, want)
		}
	}
}

func TestSandboxKindUnmarshalTextRejectsUnknown(t *testing.T) {
	var k SandboxKind

	if err := k.UnmarshalText([]byte("Disabled")); err != nil {
		t.Fatalf("unexpected error for a known kind: %v", err)
	}

	if err := k.UnmarshalText([]byte("Bogus")); err == nil {
		t.Fatal("expected an error for an unknown sandbox kind")
	}
}
