package analyzer

import (
	"fmt"
	"strconv"
	"strings"
)

// archiveMagic is the global header every Unix ar archive starts with.
const archiveMagic = "!<arch>\n"

// memberHeaderSize is the fixed-width per-member header: name(16) mtime(12)
// uid(6) gid(6) mode(8) size(10) end-magic(2).
const memberHeaderSize = 60

// ArchiveMember is one member extracted from an ar archive.
type ArchiveMember struct {
	Name string
	Data []byte
}

// ParseArchive parses a Unix ar archive (the format `.a` static libraries
// and rlibs use), including GNU's "//" long-filename table and the "/" /
// "/SYM64/" symbol-table members, which are skipped rather than returned as
// members.
func ParseArchive(data []byte) ([]ArchiveMember, error) {
	if !strings.HasPrefix(string(data), archiveMagic) {
		return nil, fmt.Errorf("analyzer: not an ar archive (missing %q magic)", archiveMagic)
	}

	var (
		members   []ArchiveMember
		longNames string
	)

	offset := len(archiveMagic)

	for offset < len(data) {
		if offset+memberHeaderSize > len(data) {
			return nil, fmt.Errorf("analyzer: truncated ar member header at offset %d", offset)
		}

		header := data[offset : offset+memberHeaderSize]
		offset += memberHeaderSize

		if header[58] != 0x60 || header[59] != 0x0A {
			return nil, fmt.Errorf("analyzer: bad ar member magic at offset %d", offset-memberHeaderSize)
		}

		rawName := strings.TrimRight(string(header[0:16]), " ")
		sizeField := strings.TrimSpace(string(header[48:58]))

		size, err := strconv.Atoi(sizeField)
		if err != nil {
			return nil, fmt.Errorf("analyzer: bad ar member size %q: %w", sizeField, err)
		}

		if offset+size > len(data) {
			return nil, fmt.Errorf("analyzer: ar member data runs past end of archive")
		}

		body := data[offset : offset+size]
		offset += size

		if size%2 != 0 && offset < len(data) {
			offset++ // members are padded to an even boundary
		}

		switch {
		case rawName == "//":
			longNames = string(body)

			continue
		case rawName == "/" || rawName == "/SYM64/":
			continue
		case strings.HasPrefix(rawName, "/"):
			name, err := resolveLongName(rawName, longNames)
			if err != nil {
				return nil, err
			}

			members = append(members, ArchiveMember{Name: name, Data: body})
		default:
			members = append(members, ArchiveMember{Name: strings.TrimSuffix(rawName, "/"), Data: body})
		}
	}

	return members, nil
}

// resolveLongName looks up a GNU-style "/<offset>" name reference in the
// "//" long-filename table, which stores names as "name/\n"-terminated
// entries concatenated together.
func resolveLongName(rawName, longNames string) (string, error) {
	offsetField := strings.TrimPrefix(rawName, "/")

	offset, err := strconv.Atoi(offsetField)
	if err != nil {
		return "", fmt.Errorf("analyzer: bad long-name offset %q: %w", rawName, err)
	}

	if offset < 0 || offset > len(longNames) {
		return "", fmt.Errorf("analyzer: long-name offset %d out of range", offset)
	}

	rest := longNames[offset:]
	if end := strings.IndexAny(rest, "/\n"); end >= 0 {
		return rest[:end], nil
	}

	return rest, nil
}
