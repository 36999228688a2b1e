package symbol

import "testing"

func TestSourceLocationIsToolchainSource(t *testing.T) {
	cases := []struct {
		file string
		want bool
	}{
		{"/root/.rustup/toolchains/stable-x86_64/lib/rustlib/src/rust/library/core/src/ptr/mod.rs", true},
		{"/root/.cargo/registry/src/index.crates.io-1234/serde-1.0.0/src/lib.rs", false},
		{"/home/user/myproject/src/main.rs", false},
	}

	for _, tc := range cases {
		loc := SourceLocation{File: tc.file, Line: 1}
		if got := loc.IsToolchainSource(); got != tc.want {
			t.Errorf("IsToolchainSource(%q) = %v, want %v", tc.file, got, tc.want)
		}
	}
}

func TestSourceLocationString(t *testing.T) {
	loc := SourceLocation{File: "src/main.rs", Line: 12}
	if got, want := loc.String(), "src/main.rs:12"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}

	loc = SourceLocation{File: "src/main.rs", Line: 12, Column: 5, HasColumn: true}
	if got, want := loc.String(), "src/main.rs:12:5"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}
