//go:build linux

package buildjail

import (
	"context"
	"os/exec"
	"path/filepath"
	"slices"
	"testing"

	"github.com/capcage/capcage/internal/policy"
)

func bwrapArgs(t *testing.T, cmd *exec.Cmd) []string {
	t.Helper()

	args := slices.Clone(cmd.Args)
	if len(args) > 0 && filepath.Base(args[0]) == "bwrap" {
		args = args[1:]
	}

	for i, a := range args {
		if a == "--" {
			return args[:i]
		}
	}

	return args
}

func containsSubsequence(haystack, needle []string) bool {
	if len(needle) == 0 {
		return true
	}

	if len(haystack) < len(needle) {
		return false
	}

	for i := 0; i <= len(haystack)-len(needle); i++ {
		ok := true

		for j := range needle {
			if haystack[i+j] != needle[j] {
				ok = false

				break
			}
		}

		if ok {
			return true
		}
	}

	return false
}

func mustContainSubsequence(t *testing.T, haystack, needle []string) {
	t.Helper()

	if !containsSubsequence(haystack, needle) {
		t.Fatalf("expected args to contain %v\nargs: %v", needle, haystack)
	}
}

func TestNewReturnsDirectExecutionBackendForDisabledPolicy(t *testing.T) {
	t.Parallel()

	b, err := New(policy.SandboxPolicy{Kind: policy.SandboxDisabled}, Inputs{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	cmd, _, err := b.Command(t.Context(), []string{"true"})
	if err != nil {
		t.Fatalf("Command: %v", err)
	}

	if filepath.Base(cmd.Path) != "true" {
		t.Fatalf("expected the real binary to run directly, got %q", cmd.Path)
	}
}

func TestNewReturnsDirectExecutionBackendForZeroValuePolicy(t *testing.T) {
	t.Parallel()

	b, err := New(policy.SandboxPolicy{}, Inputs{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, ok := b.(disabledBackend); !ok {
		t.Fatalf("expected a disabledBackend for the zero-value policy kind, got %T", b)
	}
}

func TestNewRejectsUnknownSandboxKind(t *testing.T) {
	t.Parallel()

	_, err := New(policy.SandboxPolicy{Kind: policy.SandboxKind("bogus")}, Inputs{})
	if err == nil {
		t.Fatal("expected an error for an unknown sandbox kind")
	}
}

func TestDisabledBackendRejectsEmptyArgv(t *testing.T) {
	t.Parallel()

	_, _, err := disabledBackend{}.Command(t.Context(), nil)
	if err == nil {
		t.Fatal("expected an error for an empty argv")
	}
}

func namespaceInputs(t *testing.T) (string, Inputs) {
	t.Helper()

	homeDir := t.TempDir()
	workDir := t.TempDir()

	return homeDir, Inputs{
		HomeDir: homeDir,
		WorkDir: workDir,
		Environ: map[string]string{
			"PATH":            "/usr/bin",
			"HOME":            homeDir,
			"CARGO_PKG_NAME":  "demo",
			"SHELL":           "/bin/bash",
			"LD_LIBRARY_PATH": "/usr/lib",
		},
	}
}

func mustCommand(t *testing.T, b Backend, argv ...string) *exec.Cmd {
	t.Helper()

	cmd, cleanup, err := b.Command(context.Background(), argv)
	if err != nil {
		t.Fatalf("Command: %v", err)
	}

	if cleanup != nil {
		t.Cleanup(func() { _ = cleanup() })
	}

	return cmd
}

func TestNamespaceJailMasksHomeWithTmpfs(t *testing.T) {
	t.Parallel()

	homeDir, in := namespaceInputs(t)

	b, err := New(policy.SandboxPolicy{Kind: policy.SandboxNamespace}, in)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	args := bwrapArgs(t, mustCommand(t, b, "true"))

	mustContainSubsequence(t, args, []string{"--tmpfs", homeDir})
	mustContainSubsequence(t, args, []string{"--tmpfs", "/var"})
	mustContainSubsequence(t, args, []string{"--tmpfs", "/tmp"})
}

func TestNamespaceJailDefaultsToNoNetwork(t *testing.T) {
	t.Parallel()

	_, in := namespaceInputs(t)

	b, err := New(policy.SandboxPolicy{Kind: policy.SandboxNamespace}, in)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	args := bwrapArgs(t, mustCommand(t, b, "true"))

	if slices.Contains(args, "--share-net") {
		t.Fatalf("expected no --share-net by default, got: %v", args)
	}

	// /run is always tmpfs'd by the planner itself; what differs by
	// AllowNetwork is whether resolv.conf's directory gets rebound into it.
	mustContainSubsequence(t, args, []string{"--tmpfs", "/run"})
}

func TestNamespaceJailAllowNetworkSharesNet(t *testing.T) {
	t.Parallel()

	_, in := namespaceInputs(t)

	b, err := New(policy.SandboxPolicy{Kind: policy.SandboxNamespace, AllowNetwork: true}, in)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	args := bwrapArgs(t, mustCommand(t, b, "true"))

	if !slices.Contains(args, "--share-net") {
		t.Fatalf("expected --share-net when AllowNetwork is set, got: %v", args)
	}
}

func TestNamespaceJailPassesExtraArgsVerbatim(t *testing.T) {
	t.Parallel()

	_, in := namespaceInputs(t)

	b, err := New(policy.SandboxPolicy{Kind: policy.SandboxNamespace, ExtraArgs: []string{"--cap-drop", "ALL"}}, in)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	args := bwrapArgs(t, mustCommand(t, b, "true"))

	mustContainSubsequence(t, args, []string{"--cap-drop", "ALL"})
}

func TestNamespaceJailRejectsMissingBindWritableDirectory(t *testing.T) {
	t.Parallel()

	_, in := namespaceInputs(t)

	_, err := New(policy.SandboxPolicy{Kind: policy.SandboxNamespace, BindWritable: []string{"/does/not/exist"}}, in)
	if err == nil {
		t.Fatal("expected an error for a BindWritable directory that doesn't exist")
	}
}

func TestNamespaceJailCreatesMakeWritableDirectory(t *testing.T) {
	t.Parallel()

	homeDir, in := namespaceInputs(t)
	target := filepath.Join(homeDir, "scratch", "nested")

	b, err := New(policy.SandboxPolicy{Kind: policy.SandboxNamespace, MakeWritable: []string{target}}, in)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	args := bwrapArgs(t, mustCommand(t, b, "true"))
	mustContainSubsequence(t, args, []string{"--bind-try", target, target})
}

func TestBuildEnvSetsUserAndPassesAllowlistedVars(t *testing.T) {
	t.Parallel()

	env := buildEnv(policy.SandboxPolicy{}, Inputs{Environ: map[string]string{
		"PATH":           "/usr/bin",
		"HOME":           "/home/user",
		"SHELL":          "/bin/bash",
		"CARGO_PKG_NAME": "demo",
		"RUSTC_WRAPPER":  "/path/to/capcage",
		"RANDOM_VAR":     "nope",
	}})

	if env["USER"] != "user" {
		t.Fatalf("expected USER=user, got %q", env["USER"])
	}

	if env["PATH"] != "/usr/bin" || env["HOME"] != "/home/user" {
		t.Fatalf("expected PATH/HOME to pass through, got %+v", env)
	}

	if env["CARGO_PKG_NAME"] != "demo" {
		t.Fatalf("expected build-tool-prefixed vars to pass through, got %+v", env)
	}

	if _, ok := env["RUSTC_WRAPPER"]; ok {
		t.Fatalf("expected RUSTC_WRAPPER to be excluded, got %+v", env)
	}

	if _, ok := env["SHELL"]; ok {
		t.Fatalf("expected an unrelated host var not to pass through, got %+v", env)
	}

	if _, ok := env["RANDOM_VAR"]; ok {
		t.Fatalf("expected an unrelated host var not to pass through, got %+v", env)
	}
}

func TestBuildEnvPassesThroughPolicyAndRoleExtras(t *testing.T) {
	t.Parallel()

	env := buildEnv(
		policy.SandboxPolicy{PassEnv: []string{"MY_TOKEN"}},
		Inputs{Environ: map[string]string{"MY_TOKEN": "secret", "OTHER": "x"}, PassEnv: []string{"OTHER"}},
	)

	if env["MY_TOKEN"] != "secret" {
		t.Fatalf("expected policy PassEnv to pass through, got %+v", env)
	}

	if env["OTHER"] != "x" {
		t.Fatalf("expected role-level PassEnv to pass through, got %+v", env)
	}
}

func TestForRustcMountsManifestDirReadOnlyAndOutputDirsWritable(t *testing.T) {
	t.Parallel()

	homeDir := t.TempDir()
	manifestDir := t.TempDir()
	targetDir := t.TempDir()

	b, err := ForRustc(policy.SandboxPolicy{Kind: policy.SandboxNamespace}, RustcInputs{
		HomeDir:     homeDir,
		Environ:     map[string]string{"PATH": "/usr/bin", "HOME": homeDir},
		ManifestDir: manifestDir,
		TargetDir:   targetDir,
	})
	if err != nil {
		t.Fatalf("ForRustc: %v", err)
	}

	args := bwrapArgs(t, mustCommand(t, b, "rustc", "--version"))

	mustContainSubsequence(t, args, []string{"--ro-bind-try", manifestDir, manifestDir})
	mustContainSubsequence(t, args, []string{"--bind-try", targetDir, targetDir})
}

func TestForBuildScriptInjectsPolicySnapshotWhenProvided(t *testing.T) {
	t.Parallel()

	homeDir := t.TempDir()
	manifestDir := t.TempDir()
	outDir := t.TempDir()

	b, err := ForBuildScript(policy.SandboxPolicy{Kind: policy.SandboxNamespace}, BuildScriptInputs{
		HomeDir:        homeDir,
		Environ:        map[string]string{"PATH": "/usr/bin", "HOME": homeDir},
		ManifestDir:    manifestDir,
		OutDir:         outDir,
		PolicySnapshot: "schema_version = 1\n",
	})
	if err != nil {
		t.Fatalf("ForBuildScript: %v", err)
	}

	cmd := mustCommand(t, b, "./build-script-build")

	if len(cmd.ExtraFiles) != 1 {
		t.Fatalf("expected one injected policy snapshot file, got %d", len(cmd.ExtraFiles))
	}

	args := bwrapArgs(t, cmd)
	mustContainSubsequence(t, args, []string{"--bind-try", outDir, outDir})
}

func TestForBuildScriptOmitsInjectedFileWhenNoSnapshotGiven(t *testing.T) {
	t.Parallel()

	homeDir := t.TempDir()
	manifestDir := t.TempDir()
	outDir := t.TempDir()

	b, err := ForBuildScript(policy.SandboxPolicy{Kind: policy.SandboxNamespace}, BuildScriptInputs{
		HomeDir:     homeDir,
		Environ:     map[string]string{"PATH": "/usr/bin", "HOME": homeDir},
		ManifestDir: manifestDir,
		OutDir:      outDir,
	})
	if err != nil {
		t.Fatalf("ForBuildScript: %v", err)
	}

	cmd := mustCommand(t, b, "./build-script-build")
	if len(cmd.ExtraFiles) != 0 {
		t.Fatalf("expected no extra files without a policy snapshot, got %d", len(cmd.ExtraFiles))
	}
}

func TestForBinExecutionUsesDepsGrandparentAsBuildDirectory(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	depsDir := filepath.Join(root, "target", "debug", "deps")
	binPath := filepath.Join(depsDir, "demo-abcdef")

	got := buildDirectory(binPath)
	want := filepath.Join(root, "target", "debug")

	if got != want {
		t.Fatalf("buildDirectory(%q) = %q, want %q", binPath, got, want)
	}
}

func TestForBinExecutionUsesParentWhenNotUnderDeps(t *testing.T) {
	t.Parallel()

	binPath := "/build/target/debug/demo"

	got := buildDirectory(binPath)
	want := "/build/target/debug"

	if got != want {
		t.Fatalf("buildDirectory(%q) = %q, want %q", binPath, got, want)
	}
}

func TestForBinExecutionRequiresBinPath(t *testing.T) {
	t.Parallel()

	homeDir := t.TempDir()

	_, err := ForBinExecution(policy.SandboxPolicy{Kind: policy.SandboxNamespace}, BinExecutionInputs{
		HomeDir: homeDir,
		Environ: map[string]string{"PATH": "/usr/bin", "HOME": homeDir},
	})
	if err == nil {
		t.Fatal("expected an error when BinPath is empty")
	}
}

func TestIsBuildToolEnvMatchesPrefixesAndOneOffsExcludesRustcWrapper(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		want bool
	}{
		{"CARGO_PKG_NAME", true},
		{"RUSTC_BOOTSTRAP", true},
		{"DEP_OPENSSL_INCLUDE", true},
		{"TARGET", true},
		{"OPT_LEVEL", true},
		{"PROFILE", true},
		{"HOST", true},
		{"NUM_JOBS", true},
		{"DEBUG", true},
		{"RUSTC_WRAPPER", false},
		{"SHELL", false},
		{"RANDOM", false},
	}

	for _, tt := range tests {
		if got := IsBuildToolEnv(tt.name); got != tt.want {
			t.Errorf("IsBuildToolEnv(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
