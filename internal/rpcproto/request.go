package rpcproto

import (
	"encoding/json"
	"fmt"
	"io"
)

// RequestKind discriminates the Request sum type's concrete variant (spec
// §4.5/§6).
type RequestKind string

const (
	KindCrateUsesUnsafe     RequestKind = "CrateUsesUnsafe"
	KindRustcStarted        RequestKind = "RustcStarted"
	KindRustcComplete       RequestKind = "RustcComplete"
	KindLinkerInvoked       RequestKind = "LinkerInvoked"
	KindBuildScriptComplete RequestKind = "BuildScriptComplete"
)

// Request is the message a wrapper process sends the supervisor. Exactly
// one of the typed fields is populated, selected by Kind; this mirrors the
// teacher's CommandRule polymorphic-field pattern
// (cmd/agent-sandbox/config.go) generalized to five variants instead of two.
type Request struct {
	Kind RequestKind `json:"type"`

	CrateUsesUnsafe     *CrateUsesUnsafe     `json:"crate_uses_unsafe,omitempty"`
	RustcStarted        *RustcStarted        `json:"rustc_started,omitempty"`
	RustcComplete       *RustcComplete       `json:"rustc_complete,omitempty"`
	LinkerInvoked       *LinkerInvoked       `json:"linker_invoked,omitempty"`
	BuildScriptComplete *BuildScriptComplete `json:"build_script_complete,omitempty"`
}

func NewCrateUsesUnsafe(v CrateUsesUnsafe) Request {
	return Request{Kind: KindCrateUsesUnsafe, CrateUsesUnsafe: &v}
}

func NewRustcStarted(v RustcStarted) Request {
	return Request{Kind: KindRustcStarted, RustcStarted: &v}
}

func NewRustcComplete(v RustcComplete) Request {
	return Request{Kind: KindRustcComplete, RustcComplete: &v}
}

func NewLinkerInvoked(v LinkerInvoked) Request {
	return Request{Kind: KindLinkerInvoked, LinkerInvoked: &v}
}

func NewBuildScriptComplete(v BuildScriptComplete) Request {
	return Request{Kind: KindBuildScriptComplete, BuildScriptComplete: &v}
}

// validate checks that the field matching Kind is populated (other payload
// fields are not checked), the
// same invariant cmd/agent-sandbox/config.go's CommandRule.UnmarshalJSON
// enforces for its own polymorphic field.
func (r Request) validate() error {
	switch r.Kind {
	case KindCrateUsesUnsafe:
		if r.CrateUsesUnsafe == nil {
			return fmt.Errorf("rpcproto: request kind %q missing crate_uses_unsafe payload", r.Kind)
		}
	case KindRustcStarted:
		if r.RustcStarted == nil {
			return fmt.Errorf("rpcproto: request kind %q missing rustc_started payload", r.Kind)
		}
	case KindRustcComplete:
		if r.RustcComplete == nil {
			return fmt.Errorf("rpcproto: request kind %q missing rustc_complete payload", r.Kind)
		}
	case KindLinkerInvoked:
		if r.LinkerInvoked == nil {
			return fmt.Errorf("rpcproto: request kind %q missing linker_invoked payload", r.Kind)
		}
	case KindBuildScriptComplete:
		if r.BuildScriptComplete == nil {
			return fmt.Errorf("rpcproto: request kind %q missing build_script_complete payload", r.Kind)
		}
	default:
		return fmt.Errorf("rpcproto: unknown request kind %q", r.Kind)
	}

	return nil
}

// WriteRequest writes r as one length-prefixed JSON frame.
func WriteRequest(w io.Writer, r Request) error {
	if err := r.validate(); err != nil {
		return err
	}

	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("rpcproto: marshal request: %w", err)
	}

	return writeFrame(w, body)
}

// ReadRequest reads one length-prefixed JSON frame and decodes it as a
// Request.
func ReadRequest(r io.Reader) (Request, error) {
	body, err := readFrame(r)
	if err != nil {
		return Request{}, err
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		return Request{}, fmt.Errorf("rpcproto: unmarshal request: %w", err)
	}

	if err := req.validate(); err != nil {
		return Request{}, err
	}

	return req, nil
}
