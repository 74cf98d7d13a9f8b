package protocol

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// PatchAction is the mutation a patch instruction performs on its anchor.
type PatchAction int

// Patch actions, numbered as on the wire.
const (
	Noop PatchAction = iota
	Replace
	Append
	Prepend
)

func (a PatchAction) String() string {
	switch a {
	case Noop:
		return "NOOP"
	case Replace:
		return "REPLACE"
	case Append:
		return "APPEND"
	case Prepend:
		return "PREPEND"
	}
	return fmt.Sprintf("PatchAction(%d)", int(a))
}

// Instruction is one entry of a patch batch. Anchor names an attribute
// carried by exactly one live element.
type Instruction struct {
	Anchor string      `json:"Anchor"`
	Action PatchAction `json:"Action"`
	HTML   string      `json:"HTML"`
}

// Message is the decoded form of an inbound envelope.
type Message interface {
	Kind() string
}

// PatchMessage carries a patch batch in application order.
type PatchMessage struct {
	Instructions []Instruction
}

// ParamsMessage carries new query parameters for the page location.
type ParamsMessage struct {
	Query url.Values
}

// RedirectMessage asks for a hard navigation.
type RedirectMessage struct {
	URL string
}

// AckMessage acknowledges the tracked envelope with the same ID.
type AckMessage struct {
	ID uint64
}

// ErrorMessage reports a server side failure. Detail is whatever the server
// attached and is not interpreted.
type ErrorMessage struct {
	Detail any
}

// AppMessage is any message type the runtime does not reserve. It is routed
// verbatim to subscribers registered for Name.
type AppMessage struct {
	Name    string
	Payload any
}

func (PatchMessage) Kind() string    { return TypePatch }
func (ParamsMessage) Kind() string   { return TypeParams }
func (RedirectMessage) Kind() string { return TypeRedirect }
func (AckMessage) Kind() string      { return TypeAck }
func (ErrorMessage) Kind() string    { return TypeError }
func (m AppMessage) Kind() string    { return m.Name }

// Decode turns an envelope into its typed message. Unknown types decode to
// AppMessage so they can still reach generic dispatch.
func Decode(e Envelope) (Message, error) {
	switch e.Type {
	case TypePatch:
		var batch []Instruction
		if e.Data != nil {
			if err := remarshal(e.Data, &batch); err != nil {
				return nil, &ProtocolError{Reason: "invalid patch batch", Err: err}
			}
		}
		return PatchMessage{Instructions: batch}, nil
	case TypeParams:
		q, err := decodeQuery(e.Data)
		if err != nil {
			return nil, &ProtocolError{Reason: "invalid params", Err: err}
		}
		return ParamsMessage{Query: q}, nil
	case TypeRedirect:
		u, ok := e.Data.(string)
		if !ok || u == "" {
			return nil, &ProtocolError{Reason: fmt.Sprintf("redirect target must be a string, got %T", e.Data)}
		}
		return RedirectMessage{URL: u}, nil
	case TypeAck:
		return AckMessage{ID: e.ID}, nil
	case TypeError:
		return ErrorMessage{Detail: e.Data}, nil
	}
	return AppMessage{Name: e.Type, Payload: e.Data}, nil
}

func remarshal(in any, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

// decodeQuery accepts either a query string ("a=1&b=2", optionally with a
// leading '?') or a mapping of names to strings or lists.
func decodeQuery(d any) (url.Values, error) {
	switch v := d.(type) {
	case nil:
		return url.Values{}, nil
	case string:
		return url.ParseQuery(strings.TrimPrefix(v, "?"))
	case map[string]any:
		q := url.Values{}
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			switch val := v[k].(type) {
			case []any:
				for _, item := range val {
					q.Add(k, fmt.Sprint(item))
				}
			case nil:
				q.Set(k, "")
			default:
				q.Set(k, fmt.Sprint(val))
			}
		}
		return q, nil
	}
	return nil, fmt.Errorf("unexpected params payload %T", d)
}
