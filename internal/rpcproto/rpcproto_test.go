package rpcproto

import (
	"bytes"
	"net"
	"testing"

	"github.com/capcage/capcage/internal/symbol"
)

func TestFrameRoundTrip(t *testing.T) {
	cases := [][]byte{
		nil,
		[]byte("hello"),
		bytes.Repeat([]byte("x"), 4096),
	}

	for _, body := range cases {
		var buf bytes.Buffer

		if err := writeFrame(&buf, body); err != nil {
			t.Fatalf("writeFrame: %v", err)
		}

		got, err := readFrame(&buf)
		if err != nil {
			t.Fatalf("readFrame: %v", err)
		}

		if !bytes.Equal(got, body) && !(len(got) == 0 && len(body) == 0) {
			t.Fatalf("round-trip mismatch: got %q, want %q", got, body)
		}
	}
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer

	oversized := uint64(maxFrameBytes) + 1
	lenBuf := make([]byte, 8)
	for i := 0; i < 8; i++ {
		lenBuf[i] = byte(oversized >> (8 * i))
	}
	buf.Write(lenBuf)

	if _, err := readFrame(&buf); err == nil {
		t.Fatal("expected an error for a frame exceeding maxFrameBytes")
	}
}

func TestRequestRoundTripEveryVariant(t *testing.T) {
	reqs := []Request{
		NewCrateUsesUnsafe(CrateUsesUnsafe{
			Crate: "acme",
			Locations: []symbol.SourceLocation{
				{File: "src/lib.rs", Line: 10, Column: 5, HasColumn: true},
			},
		}),
		NewRustcStarted(RustcStarted{Crate: "acme"}),
		NewRustcComplete(RustcComplete{Crate: "acme", SourcePaths: []string{"src/lib.rs", "src/main.rs"}}),
		NewLinkerInvoked(LinkerInvoked{Info: LinkInfo{
			Crate:  "acme",
			Inputs: []string{"libacme.rlib", "libfoo.a"},
			Output: "target/debug/acme",
		}}),
		NewBuildScriptComplete(BuildScriptComplete{
			Crate:  "acme",
			Output: BinExecutionOutput{ExitCode: 0, Stdout: "cargo:rustc-link-lib=z\n"},
		}),
	}

	for _, req := range reqs {
		var buf bytes.Buffer

		if err := WriteRequest(&buf, req); err != nil {
			t.Fatalf("WriteRequest(%s): %v", req.Kind, err)
		}

		got, err := ReadRequest(&buf)
		if err != nil {
			t.Fatalf("ReadRequest(%s): %v", req.Kind, err)
		}

		if got.Kind != req.Kind {
			t.Fatalf("kind mismatch: got %s, want %s", got.Kind, req.Kind)
		}
	}
}

func TestWriteRequestRejectsMismatchedPayload(t *testing.T) {
	bad := Request{Kind: KindCrateUsesUnsafe}

	var buf bytes.Buffer
	if err := WriteRequest(&buf, bad); err == nil {
		t.Fatal("expected an error for a request whose Kind has no matching payload")
	}
}

func TestResponseRoundTrip(t *testing.T) {
	for _, kind := range []ResponseKind{ResponseContinue, ResponseGiveUp} {
		var buf bytes.Buffer

		if err := WriteResponse(&buf, Response{Kind: kind}); err != nil {
			t.Fatalf("WriteResponse(%s): %v", kind, err)
		}

		got, err := ReadResponse(&buf)
		if err != nil {
			t.Fatalf("ReadResponse(%s): %v", kind, err)
		}

		if got.Kind != kind {
			t.Fatalf("kind mismatch: got %s, want %s", got.Kind, kind)
		}
	}
}

func TestReadResponseRejectsUnknownKind(t *testing.T) {
	var buf bytes.Buffer
	if err := writeFrame(&buf, []byte(`{"type":"Bogus"}`)); err != nil {
		t.Fatalf("writeFrame: %v", err)
	}

	if _, err := ReadResponse(&buf); err == nil {
		t.Fatal("expected an error for an unknown response kind")
	}
}

func TestCallAndServeOverNetPipe(t *testing.T) {
	clientConn, serverConn := net.Pipe()

	handle := func(req Request) Response {
		if req.Kind != KindRustcStarted {
			t.Errorf("server saw unexpected request kind %s", req.Kind)
		}

		return Response{Kind: ResponseContinue}
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- Serve(serverConn, handle) }()

	if err := WriteRequest(clientConn, NewRustcStarted(RustcStarted{Crate: "acme"})); err != nil {
		t.Fatalf("WriteRequest: %v", err)
	}

	resp, err := ReadResponse(clientConn)
	if err != nil {
		t.Fatalf("ReadResponse: %v", err)
	}

	if resp.Kind != ResponseContinue {
		t.Fatalf("response = %v, want Continue", resp.Kind)
	}

	clientConn.Close()

	if err := <-serveErr; err != nil {
		t.Fatalf("Serve: %v", err)
	}
}
