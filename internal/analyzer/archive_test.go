package analyzer

import (
	"bytes"
	"fmt"
	"testing"
)

// buildArchive hand-assembles a minimal ar archive with the given named
// members, mirroring the common header format ParseArchive targets.
func buildArchive(t *testing.T, members map[string][]byte, order []string) []byte {
	t.Helper()

	var buf bytes.Buffer
	buf.WriteString(archiveMagic)

	for _, name := range order {
		data := members[name]

		header := fmt.Sprintf("%-16s%-12s%-6s%-6s%-8s%-10d`\n", name, "0", "0", "0", "0", len(data))
		if len(header) != memberHeaderSize {
			t.Fatalf("test bug: built header of length %d, want %d", len(header), memberHeaderSize)
		}

		buf.WriteString(header)
		buf.Write(data)

		if len(data)%2 != 0 {
			buf.WriteByte('\n')
		}
	}

	return buf.Bytes()
}

func TestParseArchiveReturnsEachMember(t *testing.T) {
	order := []string{"a.o", "b.o"}
	members := map[string][]byte{
		"a.o": []byte("AAAA"),
		"b.o": []byte("BBB"), // odd length, exercises the padding byte
	}

	data := buildArchive(t, members, order)

	got, err := ParseArchive(data)
	if err != nil {
		t.Fatalf("ParseArchive: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("got %d members, want 2", len(got))
	}

	for i, name := range order {
		if got[i].Name != name {
			t.Errorf("member %d name = %q, want %q", i, got[i].Name, name)
		}

		if !bytes.Equal(got[i].Data, members[name]) {
			t.Errorf("member %d data = %q, want %q", i, got[i].Data, members[name])
		}
	}
}

func TestParseArchiveRejectsBadMagic(t *testing.T) {
	if _, err := ParseArchive([]byte("not an archive")); err == nil {
		t.Fatal("expected an error for data missing the ar magic")
	}
}

func TestParseArchiveSkipsSymbolTableMembers(t *testing.T) {
	order := []string{"/", "a.o"}
	members := map[string][]byte{
		"/":   []byte("symtab-contents"),
		"a.o": []byte("AAAA"),
	}

	data := buildArchive(t, members, order)

	got, err := ParseArchive(data)
	if err != nil {
		t.Fatalf("ParseArchive: %v", err)
	}

	if len(got) != 1 || got[0].Name != "a.o" {
		t.Fatalf("expected only a.o to be returned, got %+v", got)
	}
}
