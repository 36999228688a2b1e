//go:build linux

package sandbox_test

import (
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"testing"

	"github.com/capcage/capcage/sandbox"
)

func newTestEnv(t *testing.T) (sandbox.Environment, string, string) {
	t.Helper()

	homeDir := t.TempDir()
	workDir := t.TempDir()

	return sandbox.Environment{
		HomeDir: homeDir,
		WorkDir: workDir,
		HostEnv: map[string]string{"PATH": "/usr/bin"},
	}, homeDir, workDir
}

func mustCommand(t *testing.T, cfg *sandbox.Config, env sandbox.Environment, argv ...string) *exec.Cmd {
	t.Helper()

	s, err := sandbox.NewWithEnvironment(cfg, env)
	if err != nil {
		t.Fatalf("NewWithEnvironment: %v", err)
	}

	cmd, cleanup, err := s.Command(t.Context(), argv)
	if err != nil {
		t.Fatalf("Command: %v", err)
	}

	if cleanup != nil {
		t.Cleanup(func() { _ = cleanup() })
	}

	return cmd
}

func bwrapArgs(cmd *exec.Cmd) []string {
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

func TestBasePresetMountsWorkDirReadWriteAndHomeDirReadOnly(t *testing.T) {
	t.Parallel()

	env, homeDir, workDir := newTestEnv(t)
	cfg := sandbox.Config{Filesystem: sandbox.Filesystem{Presets: []string{"!@all", "@base"}}}

	cmd := mustCommand(t, &cfg, env, "true")
	args := bwrapArgs(cmd)

	mustContainSubsequence(t, args, []string{"--bind", workDir, workDir})
	mustContainSubsequence(t, args, []string{"--ro-bind", homeDir, homeDir})
}

func TestCachesPresetMountsCargoRegistryWritable(t *testing.T) {
	t.Parallel()

	env, homeDir, _ := newTestEnv(t)
	registryDir := filepath.Join(homeDir, ".cargo", "registry")
	if err := os.MkdirAll(registryDir, 0o755); err != nil {
		t.Fatalf("mkdir registry: %v", err)
	}

	cfg := sandbox.Config{Filesystem: sandbox.Filesystem{Presets: []string{"!@all", "@caches"}}}

	cmd := mustCommand(t, &cfg, env, "true")
	args := bwrapArgs(cmd)

	mustContainSubsequence(t, args, []string{"--bind", registryDir, registryDir})
}

func TestToolchainPresetMountsRustupReadOnly(t *testing.T) {
	t.Parallel()

	env, homeDir, _ := newTestEnv(t)
	rustupDir := filepath.Join(homeDir, ".rustup")
	if err := os.MkdirAll(rustupDir, 0o755); err != nil {
		t.Fatalf("mkdir rustup: %v", err)
	}

	cfg := sandbox.Config{Filesystem: sandbox.Filesystem{Presets: []string{"!@all", "@toolchain"}}}

	cmd := mustCommand(t, &cfg, env, "true")
	args := bwrapArgs(cmd)

	mustContainSubsequence(t, args, []string{"--ro-bind", rustupDir, rustupDir})
}

func TestAllPresetDisabledProducesNoPresetMounts(t *testing.T) {
	t.Parallel()

	env, homeDir, workDir := newTestEnv(t)
	cfg := sandbox.Config{Filesystem: sandbox.Filesystem{Presets: []string{"!@all"}}}

	cmd := mustCommand(t, &cfg, env, "true")
	args := bwrapArgs(cmd)

	if containsSubsequence(args, []string{"--bind", workDir, workDir}) {
		t.Fatalf("expected no work dir mount with all presets disabled, got: %v", args)
	}

	if containsSubsequence(args, []string{"--ro-bind", homeDir, homeDir}) {
		t.Fatalf("expected no home dir mount with all presets disabled, got: %v", args)
	}
}

func TestUnknownPresetNameFailsValidation(t *testing.T) {
	t.Parallel()

	env, _, _ := newTestEnv(t)
	cfg := sandbox.Config{Filesystem: sandbox.Filesystem{Presets: []string{"@nonsense"}}}

	_, err := sandbox.NewWithEnvironment(&cfg, env)
	if err == nil {
		t.Fatal("expected an error for an unknown preset name")
	}
}

func TestRawArgsAppendedVerbatimBeforeArgvSeparator(t *testing.T) {
	t.Parallel()

	env, _, _ := newTestEnv(t)
	cfg := sandbox.Config{
		Filesystem: sandbox.Filesystem{Presets: []string{"!@all"}},
		RawArgs:    []string{"--cap-drop", "ALL"},
	}

	cmd := mustCommand(t, &cfg, env, "true")
	args := bwrapArgs(cmd)

	mustContainSubsequence(t, args, []string{"--cap-drop", "ALL"})
}

func TestRawArgsAreClonedNotAliasedByNewWithEnvironment(t *testing.T) {
	t.Parallel()

	env, _, _ := newTestEnv(t)
	rawArgs := []string{"--cap-drop", "ALL"}
	cfg := sandbox.Config{
		Filesystem: sandbox.Filesystem{Presets: []string{"!@all"}},
		RawArgs:    rawArgs,
	}

	s, err := sandbox.NewWithEnvironment(&cfg, env)
	if err != nil {
		t.Fatalf("NewWithEnvironment: %v", err)
	}

	rawArgs[0] = "--mutated"

	cmd, cleanup, err := s.Command(t.Context(), []string{"true"})
	if err != nil {
		t.Fatalf("Command: %v", err)
	}

	if cleanup != nil {
		t.Cleanup(func() { _ = cleanup() })
	}

	args := bwrapArgs(cmd)
	if containsSubsequence(args, []string{"--mutated"}) {
		t.Fatalf("expected a post-construction mutation of the caller's slice to not affect the built command, got: %v", args)
	}
}

func TestDefaultNetworkSharesHostNetworkNamespace(t *testing.T) {
	t.Parallel()

	env, _, _ := newTestEnv(t)
	cfg := sandbox.Config{Filesystem: sandbox.Filesystem{Presets: []string{"!@all"}}}

	cmd := mustCommand(t, &cfg, env, "true")
	args := bwrapArgs(cmd)

	if !slices.Contains(args, "--share-net") {
		t.Fatalf("expected --share-net by default, got: %v", args)
	}
}

func TestNetworkDisabledOmitsShareNet(t *testing.T) {
	t.Parallel()

	env, _, _ := newTestEnv(t)
	disabled := false
	cfg := sandbox.Config{
		Filesystem: sandbox.Filesystem{Presets: []string{"!@all"}},
		Network:    &disabled,
	}

	cmd := mustCommand(t, &cfg, env, "true")
	args := bwrapArgs(cmd)

	if slices.Contains(args, "--share-net") {
		t.Fatalf("expected no --share-net when network is disabled, got: %v", args)
	}
}

func TestBaseFSEmptyMountsTmpfsRoot(t *testing.T) {
	t.Parallel()

	env, _, _ := newTestEnv(t)
	cfg := sandbox.Config{
		BaseFS:     sandbox.BaseFSEmpty,
		Filesystem: sandbox.Filesystem{Presets: []string{"!@all"}},
	}

	cmd := mustCommand(t, &cfg, env, "true")
	args := bwrapArgs(cmd)

	mustContainSubsequence(t, args, []string{"--tmpfs", "/"})
}

func TestTempDirNormalizesTmpAndSetsTMPDIR(t *testing.T) {
	t.Parallel()

	env, _, _ := newTestEnv(t)
	tempDir := t.TempDir()
	cfg := sandbox.Config{
		Filesystem: sandbox.Filesystem{Presets: []string{"!@all"}},
		TempDir:    tempDir,
	}

	cmd := mustCommand(t, &cfg, env, "true")
	args := bwrapArgs(cmd)

	mustContainSubsequence(t, args, []string{"--bind", tempDir, "/tmp"})
	mustContainSubsequence(t, args, []string{"--setenv", "TMPDIR", "/tmp"})
}

func TestInjectedFileIsMaterializedAsExtraFile(t *testing.T) {
	t.Parallel()

	env, _, _ := newTestEnv(t)
	cfg := sandbox.Config{
		Filesystem: sandbox.Filesystem{Presets: []string{"!@all"}},
		InjectedFiles: []sandbox.InjectedFile{
			{Dst: "/etc/capcage/policy.toml", Data: "schema_version = 1\n"},
		},
	}

	cmd := mustCommand(t, &cfg, env, "true")

	if len(cmd.ExtraFiles) != 1 {
		t.Fatalf("expected one extra file for one injected file, got %d", len(cmd.ExtraFiles))
	}

	args := bwrapArgs(cmd)
	mustContainSubsequence(t, args, []string{"--ro-bind-data"})

	found := false
	for _, a := range args {
		if a == "/etc/capcage/policy.toml" {
			found = true
		}
	}

	if !found {
		t.Fatalf("expected injected file destination in bwrap args, got: %v", args)
	}
}

func TestInjectedFileRequiresAbsoluteDestination(t *testing.T) {
	t.Parallel()

	env, _, _ := newTestEnv(t)
	cfg := sandbox.Config{
		InjectedFiles: []sandbox.InjectedFile{{Dst: "relative/path", Data: "x"}},
	}

	_, err := sandbox.NewWithEnvironment(&cfg, env)
	if err == nil {
		t.Fatal("expected an error for a non-absolute injected file destination")
	}
}

func TestEnvironmentRequiresAbsoluteWorkDir(t *testing.T) {
	t.Parallel()

	cfg := sandbox.Config{}
	env := sandbox.Environment{HomeDir: "/home/user", WorkDir: "relative", HostEnv: map[string]string{}}

	_, err := sandbox.NewWithEnvironment(&cfg, env)
	if err == nil {
		t.Fatal("expected an error for a non-absolute WorkDir")
	}
}

func TestCommandFailsOnUninitializedSandbox(t *testing.T) {
	t.Parallel()

	var s sandbox.Sandbox

	_, _, err := s.Command(t.Context(), []string{"true"})
	if err == nil {
		t.Fatal("expected an error from Command on a zero-value Sandbox")
	}
}

func TestCommandFailsOnEmptyArgv(t *testing.T) {
	t.Parallel()

	env, _, _ := newTestEnv(t)
	cfg := sandbox.Config{Filesystem: sandbox.Filesystem{Presets: []string{"!@all"}}}

	s, err := sandbox.NewWithEnvironment(&cfg, env)
	if err != nil {
		t.Fatalf("NewWithEnvironment: %v", err)
	}

	_, _, err = s.Command(t.Context(), nil)
	if err == nil {
		t.Fatal("expected an error for an empty argv")
	}
}
