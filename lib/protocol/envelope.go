// Package protocol defines the envelope exchanged between a live page and its
// server, the sequence IDs used to track outbound envelopes, and the decoding
// of envelope payloads into typed messages.
//
// Text frames carry one JSON envelope each:
//
//	{"t": "click", "i": 12, "d": {"id": "42"}}
//
// where t is the message type, i the tracking ID (0 for untracked messages)
// and d an arbitrary payload. Binary frames carry msgpack encoded upload
// chunks, see EncodeChunk.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
)

// Reserved message types.
const (
	TypePatch       = "patch"
	TypeParams      = "params"
	TypeRedirect    = "redirect"
	TypeAck         = "ack"
	TypeError       = "err"
	TypePing        = "ping"
	TypeUpload      = "upload"
	TypeUploadChunk = "upload-chunk"
)

// ErrMalformed is matched by every *ProtocolError.
var ErrMalformed = errors.New("protocol: malformed envelope")

// ProtocolError reports an inbound frame that could not be parsed.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol: %s: %v", e.Reason, e.Err)
	}
	return "protocol: " + e.Reason
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrMalformed.
func (e *ProtocolError) Is(target error) bool {
	return target == ErrMalformed
}

// Envelope is the wire message unit.
//
// ID is 0 for fire-and-forget messages and a strictly increasing positive
// integer for tracked client messages that expect an ack.
type Envelope struct {
	Type string
	ID   uint64
	Data any
}

// New builds an untracked envelope.
func New(typ string, data any) Envelope {
	return Envelope{Type: typ, Data: data}
}

// Tracked reports whether the envelope expects an ack.
func (e Envelope) Tracked() bool {
	return e.ID != 0
}

type wireEnvelope struct {
	T string          `json:"t"`
	I uint64          `json:"i"`
	D json.RawMessage `json:"d"`
}

// Serialize encodes an envelope as {"t","i","d"} JSON text.
func Serialize(e Envelope) (string, error) {
	d, err := json.Marshal(e.Data)
	if err != nil {
		return "", fmt.Errorf("protocol: encode %q payload: %w", e.Type, err)
	}
	out, err := json.Marshal(wireEnvelope{T: e.Type, I: e.ID, D: d})
	if err != nil {
		return "", fmt.Errorf("protocol: encode %q: %w", e.Type, err)
	}
	return string(out), nil
}

// Parse decodes a text frame. The payload must be a string or the bytes of a
// text frame; anything else, or invalid JSON, fails with a *ProtocolError.
func Parse(payload any) (Envelope, error) {
	var raw []byte
	switch p := payload.(type) {
	case string:
		raw = []byte(p)
	case []byte:
		raw = p
	default:
		return Envelope{}, &ProtocolError{Reason: fmt.Sprintf("unexpected payload type %T", payload)}
	}

	// An empty type is kept; only a frame without "t" is rejected.
	var w struct {
		T *string         `json:"t"`
		I uint64          `json:"i"`
		D json.RawMessage `json:"d"`
	}
	if err := json.Unmarshal(raw, &w); err != nil {
		return Envelope{}, &ProtocolError{Reason: "invalid envelope", Err: err}
	}
	if w.T == nil {
		return Envelope{}, &ProtocolError{Reason: "missing type"}
	}

	e := Envelope{Type: *w.T, ID: w.I}
	if len(w.D) > 0 && !bytes.Equal(w.D, []byte("null")) {
		if err := json.Unmarshal(w.D, &e.Data); err != nil {
			return Envelope{}, &ProtocolError{Reason: "invalid payload", Err: err}
		}
	}
	return e, nil
}

// ParseString is Parse for callers that already hold a string.
func ParseString(s string) (Envelope, error) {
	return Parse(s)
}

// IDGen hands out tracking IDs. The first call to Next returns 1 and IDs are
// never reused for the lifetime of the generator. Safe for concurrent use.
type IDGen struct {
	n atomic.Uint64
}

// Next returns the next tracking ID.
func (g *IDGen) Next() uint64 {
	return g.n.Add(1)
}

// Tracked builds an envelope with the next tracking ID.
func (g *IDGen) Tracked(typ string, data any) Envelope {
	return Envelope{Type: typ, ID: g.Next(), Data: data}
}
