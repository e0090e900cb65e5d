package mcpui

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// EnvelopeKind tells which of the three JSON-RPC message shapes an Envelope has.
type EnvelopeKind int

// Envelope is an inbound payload validated once at the channel boundary. Only the fields that
// belong to its Kind are set.
type Envelope struct {
	Kind   EnvelopeKind
	ID     json.RawMessage
	Method string
	Params json.RawMessage
	Result json.RawMessage
	Error  *JSONRPCError
}

const (
	// EnvelopeRequest has an id and a method.
	EnvelopeRequest EnvelopeKind = iota + 1
	// EnvelopeResponse has an id and either a result or an error.
	EnvelopeResponse
	// EnvelopeNotification has a method and no id.
	EnvelopeNotification
)

// ErrMalformedEnvelope is returned by DecodeEnvelope for payloads that have none of the recognized
// shapes. The Bridge drops such payloads silently.
var ErrMalformedEnvelope = errors.New("malformed envelope")

// DecodeEnvelope interprets an untyped payload as a request, a response or a notification.
func DecodeEnvelope(payload []byte) (Envelope, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return Envelope{}, fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)
	}
	if fields == nil {
		return Envelope{}, fmt.Errorf("%w: not an object", ErrMalformedEnvelope)
	}

	var version string
	if err := json.Unmarshal(fields["jsonrpc"], &version); err != nil || version != JSONRPCVersion {
		return Envelope{}, fmt.Errorf("%w: invalid jsonrpc version", ErrMalformedEnvelope)
	}

	id, hasID := fields["id"]
	if hasID && isNull(id) {
		hasID = false
	}
	if hasID && !validID(id) {
		return Envelope{}, fmt.Errorf("%w: invalid id %s", ErrMalformedEnvelope, id)
	}

	var method string
	rawMethod, hasMethod := fields["method"]
	if hasMethod {
		if err := json.Unmarshal(rawMethod, &method); err != nil || method == "" {
			return Envelope{}, fmt.Errorf("%w: invalid method", ErrMalformedEnvelope)
		}
	}

	result, hasResult := fields["result"]
	rawErr, hasError := fields["error"]
	if hasError && isNull(rawErr) {
		hasError = false
	}

	switch {
	case hasMethod && hasID:
		return Envelope{Kind: EnvelopeRequest, ID: id, Method: method, Params: fields["params"]}, nil
	case hasMethod:
		return Envelope{Kind: EnvelopeNotification, Method: method, Params: fields["params"]}, nil
	case hasID && hasError:
		var rpcErr JSONRPCError
		if err := json.Unmarshal(rawErr, &rpcErr); err != nil {
			return Envelope{}, fmt.Errorf("%w: invalid error object: %w", ErrMalformedEnvelope, err)
		}
		return Envelope{Kind: EnvelopeResponse, ID: id, Error: &rpcErr}, nil
	case hasID && hasResult:
		return Envelope{Kind: EnvelopeResponse, ID: id, Result: result}, nil
	default:
		return Envelope{}, fmt.Errorf("%w: unrecognized shape", ErrMalformedEnvelope)
	}
}

// CorrelationID returns the integer id of a response envelope. Both numeric ids and strings holding
// a decimal integer are accepted, since some hosts stringify ids.
func (e Envelope) CorrelationID() (int64, bool) {
	id := bytes.TrimSpace(e.ID)
	if len(id) == 0 {
		return 0, false
	}
	if id[0] == '"' {
		var s string
		if err := json.Unmarshal(id, &s); err != nil {
			return 0, false
		}
		id = []byte(s)
	}
	n, err := strconv.ParseInt(string(id), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (k EnvelopeKind) String() string {
	switch k {
	case EnvelopeRequest:
		return "request"
	case EnvelopeResponse:
		return "response"
	case EnvelopeNotification:
		return "notification"
	default:
		return "unknown"
	}
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}

func validID(raw json.RawMessage) bool {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch v.(type) {
	case string, float64:
		return true
	default:
		return false
	}
}
