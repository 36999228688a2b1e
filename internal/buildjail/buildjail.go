// Package buildjail bridges §4.2 policy decisions to the adapted sandbox
// package, implementing the two Sandbox Backend variants from spec.md §4.7:
// Disabled (run the command directly) and NamespaceJail (run it under a
// bubblewrap-based user-namespace jail).
package buildjail

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/capcage/capcage/internal/policy"
	"github.com/capcage/capcage/sandbox"
)

// Backend runs a command under whatever restrictions a resolved
// policy.SandboxPolicy calls for.
type Backend interface {
	// Command returns an unstarted *exec.Cmd for argv plus a cleanup
	// function that must be called once the command has finished (it may
	// release sandbox-internal resources such as injected-file handles).
	Command(ctx context.Context, argv []string) (*exec.Cmd, func() error, error)
}

// Inputs carries the per-invocation paths and environment that baseline
// policy construction alone can't know: what's being compiled, where its
// output goes, and what else the caller (rustc wrapper, build-script
// wrapper, bin-execution wrapper) has already learned about this build step.
type Inputs struct {
	// HomeDir is the real user's home directory (host path), the root of
	// the tmpfs-then-targeted-binds baseline.
	HomeDir string

	// WorkDir is the directory the sandboxed process starts in (typically
	// the crate's manifest directory). It must already be reachable
	// through ReadDirs or WriteDirs, or the chdir inside the sandbox will
	// fail.
	WorkDir string

	// Environ is a snapshot of the supervisor's own environment, consulted
	// for PATH/HOME/LD_LIBRARY_PATH passthrough and for build-tool-prefixed
	// variables (see IsBuildToolEnv).
	Environ map[string]string

	// ReadDirs are additional host paths bound read-only (e.g. a crate's
	// manifest directory, rustc's declared input directories).
	ReadDirs []string

	// WriteDirs are additional host paths bound read-write, created first
	// if missing (e.g. OUT_DIR, the target directory, rustc's declared
	// output directories).
	WriteDirs []string

	// PassEnv lists extra environment variable names to pass through
	// beyond policy.SandboxPolicy.PassEnv (e.g. the RUSTC_ENV_VARS rustc
	// needs, or variables a build script set via cargo:rustc-env=).
	PassEnv []string

	// InjectedFiles mounts in-memory content read-only at a fixed sandbox
	// path with no host-side source (e.g. a flattened, filtered policy
	// snapshot for a build script to consult).
	InjectedFiles []sandbox.InjectedFile
}

// New resolves pol into a Backend. A Disabled policy (the zero value) yields
// a backend that runs argv directly, unsandboxed.
func New(pol policy.SandboxPolicy, in Inputs) (Backend, error) {
	switch pol.Kind {
	case policy.SandboxDisabled, "":
		return disabledBackend{}, nil
	case policy.SandboxNamespace:
		cfg, env, err := buildConfig(pol, in)
		if err != nil {
			return nil, fmt.Errorf("buildjail: %w", err)
		}

		sb, err := sandbox.NewWithEnvironment(cfg, env)
		if err != nil {
			return nil, fmt.Errorf("buildjail: constructing sandbox: %w", err)
		}

		return &jailBackend{sb: sb}, nil
	default:
		return nil, fmt.Errorf("buildjail: unknown sandbox kind %q", pol.Kind)
	}
}

type disabledBackend struct{}

func (disabledBackend) Command(ctx context.Context, argv []string) (*exec.Cmd, func() error, error) {
	if len(argv) == 0 {
		return nil, nil, errors.New("buildjail: no command provided")
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)

	return cmd, func() error { return nil }, nil
}

type jailBackend struct {
	sb *sandbox.Sandbox
}

func (j *jailBackend) Command(ctx context.Context, argv []string) (*exec.Cmd, func() error, error) {
	return j.sb.Command(ctx, argv)
}

// buildConfig implements spec.md §4.7's baseline NamespaceJail policy,
// grounded on the original cackle's sandbox.rs::from_config: the root
// filesystem is readable (sandbox.BaseFSHost, the package default), $HOME,
// /tmp and /var are masked with tmpfs, then the cargo/rustup toolchain
// install is bound back in read-only, and the environment is rebuilt from
// scratch rather than inherited wholesale.
func buildConfig(pol policy.SandboxPolicy, in Inputs) (*sandbox.Config, sandbox.Environment, error) {
	if strings.TrimSpace(in.HomeDir) == "" {
		return nil, sandbox.Environment{}, errors.New("missing HomeDir")
	}

	if strings.TrimSpace(in.WorkDir) == "" {
		return nil, sandbox.Environment{}, errors.New("missing WorkDir")
	}

	cargoHome := filepath.Join(in.HomeDir, ".cargo")

	mounts := []sandbox.Mount{
		sandbox.Tmpfs(in.HomeDir),
		sandbox.Tmpfs("/var"),
		sandbox.Tmpfs("/tmp"),
		sandbox.ROTry(filepath.Join(cargoHome, "bin")),
		sandbox.ROTry(filepath.Join(cargoHome, "git")),
		sandbox.ROTry(filepath.Join(cargoHome, "registry")),
		sandbox.ROTry(filepath.Join(in.HomeDir, ".rustup")),
	}

	for _, dir := range in.ReadDirs {
		mounts = append(mounts, sandbox.ROTry(dir))
	}

	for _, dir := range pol.BindWritable {
		info, err := os.Stat(dir)
		if err != nil {
			return nil, sandbox.Environment{}, fmt.Errorf("sandbox config says to bind directory %q, but it doesn't exist: %w", dir, err)
		}

		if !info.IsDir() {
			return nil, sandbox.Environment{}, fmt.Errorf("sandbox config says to bind directory %q, but that isn't a directory", dir)
		}

		mounts = append(mounts, sandbox.RWTry(dir))
	}

	for _, dir := range pol.MakeWritable {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, sandbox.Environment{}, fmt.Errorf("creating directory %q: %w", dir, err)
		}

		mounts = append(mounts, sandbox.RWTry(dir))
	}

	for _, dir := range in.WriteDirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, sandbox.Environment{}, fmt.Errorf("creating directory %q: %w", dir, err)
		}

		mounts = append(mounts, sandbox.RWTry(dir))
	}

	// The planner already tmpfs's /run unconditionally and only rebinds
	// /etc/resolv.conf's backing directory into it when Network is enabled
	// (see bwrap.go's dnsResolverArgs gate), so name resolution is broken
	// precisely when network access isn't: no separate mount is needed here.
	network := pol.AllowNetwork

	cfg := &sandbox.Config{
		Network:       &network,
		Filesystem:    sandbox.Filesystem{Presets: []string{"!@all"}, Mounts: mounts},
		RawArgs:       append([]string(nil), pol.ExtraArgs...),
		InjectedFiles: append([]sandbox.InjectedFile(nil), in.InjectedFiles...),
	}

	env := sandbox.Environment{
		HomeDir: in.HomeDir,
		WorkDir: in.WorkDir,
		HostEnv: buildEnv(pol, in),
	}

	return cfg, env, nil
}

// buildEnv rebuilds the sandboxed process's environment from scratch rather
// than inheriting the caller's wholesale, matching the original's
// set_env/pass_env discipline: every variable that reaches the child is
// named explicitly, either hardcoded (USER) or passed through because it's
// on an allowlist.
func buildEnv(pol policy.SandboxPolicy, in Inputs) map[string]string {
	env := map[string]string{"USER": "user"}

	passEnv := func(name string) {
		if value, ok := in.Environ[name]; ok {
			env[name] = value
		}
	}

	passEnv("PATH")
	passEnv("HOME")
	passEnv("LD_LIBRARY_PATH")

	for name := range in.Environ {
		if IsBuildToolEnv(name) {
			passEnv(name)
		}
	}

	for _, name := range pol.PassEnv {
		passEnv(name)
	}

	for _, name := range in.PassEnv {
		passEnv(name)
	}

	return env
}
