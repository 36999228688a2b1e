// Package rpcproto implements the wrapper/supervisor wire protocol (spec
// §4.5/§6): length-prefixed JSON over an AF_UNIX stream, exactly one
// request and one response per connection.
package rpcproto

import (
	"encoding/binary"
	"fmt"
	"io"
)

// writeFrame writes a little-endian uint64 length prefix followed by body.
func writeFrame(w io.Writer, body []byte) error {
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(body)))

	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("rpcproto: write length prefix: %w", err)
	}

	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("rpcproto: write body: %w", err)
	}

	return nil
}

// maxFrameBytes bounds a single frame's body to guard a misbehaving peer
// from forcing an unbounded allocation; every real request/response in this
// protocol is well under a megabyte.
const maxFrameBytes = 64 << 20

// readFrame reads one length-prefixed frame and returns its body.
func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [8]byte

	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("rpcproto: read length prefix: %w", err)
	}

	n := binary.LittleEndian.Uint64(lenBuf[:])
	if n > maxFrameBytes {
		return nil, fmt.Errorf("rpcproto: frame of %d bytes exceeds the %d byte limit", n, maxFrameBytes)
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("rpcproto: read body: %w", err)
	}

	return body, nil
}
