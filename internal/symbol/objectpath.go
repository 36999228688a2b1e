package symbol

// ObjectFilePath identifies the object file a symbol came from, with at
// most one level of archive nesting: either a standalone .o on disk, or a
// member extracted from a .rlib/.a archive. Archives-of-archives don't
// occur in a cargo build, so a second nesting level is never needed.
type ObjectFilePath struct {
	// Outer is the path to the .o file, or to the archive containing
	// ArchiveMember.
	Outer string
	// ArchiveMember is the member name inside Outer's archive (e.g.
	// "foo-abcdef01.foo.o"), or "" if Outer is a standalone object file.
	ArchiveMember string
}

// IsArchiveMember reports whether this path refers to a member inside an
// archive, rather than a standalone object file.
func (p ObjectFilePath) IsArchiveMember() bool {
	return p.ArchiveMember != ""
}

// String renders "archive.rlib(member.o)" for an archive member, or the bare
// path for a standalone object file.
func (p ObjectFilePath) String() string {
	if p.IsArchiveMember() {
		return p.Outer + "(" + p.ArchiveMember + ")"
	}

	return p.Outer
}
