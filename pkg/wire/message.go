// Package wire defines the JSON-RPC 2.0 envelope types and error taxonomy
// that flow through the interceptor. Types are intentionally independent of
// any MCP SDK: the interceptor owns its own framing (see pkg/codec) and
// therefore owns the wire shapes the framing carries.
package wire

import "encoding/json"

// ProtocolVersion is the only JSON-RPC version this interceptor accepts.
const ProtocolVersion = "2.0"

// ID is a JSON-RPC request identifier: a string, a number, or null.
// It round-trips through json.RawMessage so callers never lose precision
// or misrender the "no id" (notification) case as a zero value.
type ID struct {
	raw json.RawMessage
}

// NewID wraps an already-encoded JSON scalar as an ID.
func NewID(raw json.RawMessage) ID {
	return ID{raw: raw}
}

// IsZero reports whether no id was present on the wire at all (a notification).
func (id ID) IsZero() bool { return id.raw == nil }

// Raw returns the undecoded JSON bytes of the id, or nil if absent.
func (id ID) Raw() json.RawMessage { return id.raw }

// MarshalJSON implements json.Marshaler.
func (id ID) MarshalJSON() ([]byte, error) {
	if id.raw == nil {
		return []byte("null"), nil
	}
	return id.raw, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(data []byte) error {
	id.raw = append(json.RawMessage(nil), data...)
	return nil
}

// Request is a JSON-RPC 2.0 request or notification.
// A Request with a nil/zero ID is a notification: no Response is emitted.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      *ID             `json:"id,omitempty"`
}

// IsNotification reports whether this request carries no id.
func (r *Request) IsNotification() bool {
	return r.ID == nil || r.ID.IsZero()
}

// Validate checks that jsonrpc equals "2.0" and that method is non-empty.
func (r *Request) Validate() error {
	if r.JSONRPC != ProtocolVersion {
		return &Error{Code: CodeInvalidRequest, Message: "invalid jsonrpc version"}
	}
	if r.Method == "" {
		return &Error{Code: CodeInvalidRequest, Message: "missing method"}
	}
	return nil
}

// Response is a JSON-RPC 2.0 response. Exactly one of Result/Error is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      ID              `json:"id"`
}

// Validate enforces "exactly one of result or error is present".
func (r *Response) Validate() error {
	hasResult := len(r.Result) > 0 && string(r.Result) != "null"
	hasError := r.Error != nil
	if hasResult == hasError {
		return &Error{Code: CodeInvalidRequest, Message: "response must carry exactly one of result or error"}
	}
	return nil
}

// NewResultResponse builds a success response for the given request id.
func NewResultResponse(id ID, result json.RawMessage) *Response {
	return &Response{JSONRPC: ProtocolVersion, ID: id, Result: result}
}

// NewErrorResponse builds an error response for the given request id.
func NewErrorResponse(id ID, err *Error) *Response {
	return &Response{JSONRPC: ProtocolVersion, ID: id, Error: err}
}
