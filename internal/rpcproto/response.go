package rpcproto

import (
	"encoding/json"
	"fmt"
	"io"
)

// ResponseKind is the supervisor's answer to a Request: Continue lets the
// wrapper proceed, GiveUp tells it to exit non-zero (spec §4.5/§6). It
// reuses problemstore's Continue/GiveUp vocabulary but is its own type: the
// wire value is what a wrapper process (in a different address space) gets
// back, not the in-process problemstore.Reply a UI resolves.
type ResponseKind string

const (
	ResponseContinue ResponseKind = "Continue"
	ResponseGiveUp   ResponseKind = "GiveUp"
)

type Response struct {
	Kind ResponseKind `json:"type"`
}

func (k ResponseKind) valid() bool {
	return k == ResponseContinue || k == ResponseGiveUp
}

// WriteResponse writes resp as one length-prefixed JSON frame.
func WriteResponse(w io.Writer, resp Response) error {
	if !resp.Kind.valid() {
		return fmt.Errorf("rpcproto: unknown response kind %q", resp.Kind)
	}

	body, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("rpcproto: marshal response: %w", err)
	}

	return writeFrame(w, body)
}

// ReadResponse reads one length-prefixed JSON frame and decodes it as a
// Response.
func ReadResponse(r io.Reader) (Response, error) {
	body, err := readFrame(r)
	if err != nil {
		return Response{}, err
	}

	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return Response{}, fmt.Errorf("rpcproto: unmarshal response: %w", err)
	}

	if !resp.Kind.valid() {
		return Response{}, fmt.Errorf("rpcproto: unknown response kind %q", resp.Kind)
	}

	return resp, nil
}
