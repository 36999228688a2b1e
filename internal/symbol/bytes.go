// Package symbol holds the small value types shared by the symbol-graph
// analyzer: demangling, dotted-name splitting, source locations, and
// object-file paths.
package symbol

// Bytes holds symbol-table content that may be borrowed from a parse buffer
// or own a heap copy. Go slices already share a backing array safely across
// reads, so unlike a reference-counted copy-on-write holder, Bytes exists
// only to make the borrowed/owned distinction explicit at call sites that
// care whether a slice outlives the buffer it was read from.
type Bytes struct {
	data  []byte
	owned bool
}

// Borrowed wraps data without copying it. The caller must not mutate data,
// and must not let it outlive the buffer it came from unless ToHeap is
// called first.
func Borrowed(data []byte) Bytes {
	return Bytes{data: data}
}

// ToHeap returns a Bytes value backed by a copy of the data, safe to retain
// past the lifetime of whatever buffer the original was read from. Calling
// ToHeap on an already-owned Bytes is a no-op.
func (b Bytes) ToHeap() Bytes {
	if b.owned {
		return b
	}

	cp := make([]byte, len(b.data))
	copy(cp, b.data)

	return Bytes{data: cp, owned: true}
}

// Data returns the underlying bytes.
func (b Bytes) Data() []byte {
	return b.data
}

// String returns the bytes interpreted as UTF-8, replacing invalid sequences.
func (b Bytes) String() string {
	return string(b.data)
}
