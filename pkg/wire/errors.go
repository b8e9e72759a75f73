package wire

import "fmt"

// Error is a JSON-RPC 2.0 error object, extended with the interceptor's
// own codes (spec.md section 6).
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Standard JSON-RPC 2.0 codes, plus the interceptor-originated ones.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInternalError  = -32603

	// CodePolicyBlock is returned when the policy evaluator denies a request.
	CodePolicyBlock = -32000
	// CodeSessionError is returned for session/authentication failures.
	CodeSessionError = -32001
)

// NewPolicyBlock builds the error surfaced when the policy engine denies a call.
func NewPolicyBlock(reason string) *Error {
	return &Error{Code: CodePolicyBlock, Message: reason}
}

// NewSessionError builds the error surfaced for missing/invalid sessions.
func NewSessionError(reason string) *Error {
	return &Error{Code: CodeSessionError, Message: reason}
}

// NewInternalError builds the generic, detail-free error surfaced to clients
// for everything that isn't a policy block or session error. Full detail for
// these belongs only in the signed audit log, never in the client response.
func NewInternalError() *Error {
	return &Error{Code: CodeInternalError, Message: "Internal error"}
}

// NewParseError builds the error surfaced when the codec fails to parse a body.
func NewParseError() *Error {
	return &Error{Code: CodeParseError, Message: "Parse error"}
}

// NewInvalidRequest builds the error surfaced for structurally invalid requests.
func NewInvalidRequest(reason string) *Error {
	return &Error{Code: CodeInvalidRequest, Message: reason}
}

// NewMethodNotFound builds the error surfaced for unroutable methods.
func NewMethodNotFound(method string) *Error {
	return &Error{Code: CodeMethodNotFound, Message: fmt.Sprintf("method not found: %s", method)}
}
