package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/capcage/capcage/internal/buildjail"
)

func TestDetectRoleSupervisorWhenSocketEnvUnset(t *testing.T) {
	role, err := detectRole([]string{"capcage", "check"}, map[string]string{})
	if err != nil {
		t.Fatalf("detectRole: %v", err)
	}

	if role != roleSupervisor {
		t.Errorf("role = %v, want roleSupervisor", role)
	}
}

func TestDetectRoleCompilerWhenFirstArgIsRustc(t *testing.T) {
	environ := map[string]string{buildjail.SocketPathEnv: "/tmp/capcage.sock"}

	role, err := detectRole([]string{"/path/to/capcage", "/usr/bin/rustc", "--crate-name", "foo"}, environ)
	if err != nil {
		t.Fatalf("detectRole: %v", err)
	}

	if role != roleCompiler {
		t.Errorf("role = %v, want roleCompiler", role)
	}
}

func TestDetectRoleLinkerWhenArgsLookLikeALinkCommand(t *testing.T) {
	environ := map[string]string{
		buildjail.SocketPathEnv: "/tmp/capcage.sock",
		"CARGO_PKG_NAME":        "foo",
	}

	role, err := detectRole([]string{"/path/to/capcage", "a.o", "-o", "liba.rlib"}, environ)
	if err != nil {
		t.Fatalf("detectRole: %v", err)
	}

	if role != roleLinker {
		t.Errorf("role = %v, want roleLinker", role)
	}
}

func TestDetectRoleBuildScriptWhenSiblingOriginalExists(t *testing.T) {
	dir := t.TempDir()
	wrapperPath := filepath.Join(dir, "build-script-build")

	if err := os.WriteFile(filepath.Join(dir, originalBuildScriptName), []byte("x"), 0o755); err != nil {
		t.Fatal(err)
	}

	environ := map[string]string{buildjail.SocketPathEnv: "/tmp/capcage.sock"}

	role, err := detectRole([]string{wrapperPath}, environ)
	if err != nil {
		t.Fatalf("detectRole: %v", err)
	}

	if role != roleBuildScript {
		t.Errorf("role = %v, want roleBuildScript", role)
	}
}

func TestDetectRoleBuildScriptBeatsCompilerWhenBothSelectorsCouldMatch(t *testing.T) {
	dir := t.TempDir()
	wrapperPath := filepath.Join(dir, "build-script-build")

	if err := os.WriteFile(filepath.Join(dir, originalBuildScriptName), []byte("x"), 0o755); err != nil {
		t.Fatal(err)
	}

	environ := map[string]string{buildjail.SocketPathEnv: "/tmp/capcage.sock"}

	role, err := detectRole([]string{wrapperPath, "/usr/bin/rustc"}, environ)
	if err != nil {
		t.Fatalf("detectRole: %v", err)
	}

	if role != roleBuildScript {
		t.Errorf("role = %v, want roleBuildScript (sibling check takes priority)", role)
	}
}

func TestDetectRoleRejectsUnrecognizedWrapperInvocation(t *testing.T) {
	environ := map[string]string{buildjail.SocketPathEnv: "/tmp/capcage.sock"}

	if _, err := detectRole([]string{"/path/to/capcage", "--bogus"}, environ); err == nil {
		t.Fatal("expected an error for an unrecognized wrapper invocation")
	}
}

func TestSiblingOriginalBuildScriptAbsentByDefault(t *testing.T) {
	dir := t.TempDir()
	if _, ok := siblingOriginalBuildScript(filepath.Join(dir, "build-script-build")); ok {
		t.Error("expected no sibling original build script in an empty directory")
	}
}
