package analyzer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestIsArchiveName(t *testing.T) {
	cases := map[string]bool{
		"libfoo.a":   true,
		"libfoo.rlib": true,
		"foo.o":      false,
		"foo":        false,
	}

	for name, want := range cases {
		if got := isArchiveName(name); got != want {
			t.Errorf("isArchiveName(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestReadObjectFileRejectsLooseNonELF(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bogus.o")

	if err := os.WriteFile(path, []byte("not an elf object"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, _, err := readObjectFile(path)
	if err == nil {
		t.Fatal("expected an error for a loose file that isn't a valid ELF object")
	}
}

func TestReadObjectFileArchiveMemberFailuresBecomeProblemsNotErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "libfoo.a")

	data := buildArchive(t, map[string][]byte{
		"bad.o": []byte("not an elf object"),
	}, []string{"bad.o"})

	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	objects, problems, err := readObjectFile(path)
	if err != nil {
		t.Fatalf("readObjectFile: unexpected fatal error for a damaged archive member: %v", err)
	}

	if len(objects) != 0 {
		t.Fatalf("expected no successfully parsed objects, got %d", len(objects))
	}

	if len(problems) != 1 {
		t.Fatalf("expected exactly one Problem recording the damaged member, got %d: %v", len(problems), problems)
	}

	if !strings.Contains(problems[0].Error(), "bad.o") {
		t.Errorf("problem %q does not mention the damaged member name", problems[0].Error())
	}
}

func TestScanObjectsFailsOnUnreadableExecutable(t *testing.T) {
	_, err := ScanObjects(ScanInputs{ExecutablePath: "/nonexistent/path/to/exe"}, nil, nil)
	if err == nil {
		t.Fatal("expected an error when the executable path can't be read")
	}
}
