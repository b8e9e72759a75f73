// Package protocol translates between the wire-level JSON-RPC messages a
// specific MCP protocol version sends and the version-agnostic security
// event model the policy engine operates on. Two adapters exist today,
// "2024-11-05" and "2025-11-25"; a version negotiator picks one per
// session and the choice is sticky for that session's lifetime.
package protocol

import (
	"encoding/json"

	"github.com/mcpgate/mcpgate/internal/taint"
	"github.com/mcpgate/mcpgate/pkg/wire"
)

// EventKind discriminates the SecurityEvent variants.
type EventKind int

const (
	EventHandshake EventKind = iota
	EventToolRequest
	EventResourceRequest
	EventPassthrough
)

// SecurityEvent is the protocol-agnostic shape the policy engine consumes.
// Exactly one of the per-kind fields is populated, matching EventKind.
type SecurityEvent struct {
	Kind EventKind

	// Handshake
	ProtocolVersion string
	ClientInfo      json.RawMessage
	AudienceToken   string
	Capabilities    json.RawMessage

	// ToolRequest
	RequestID    wire.ID
	ToolName     taint.Tainted[string]
	Arguments    taint.Tainted[map[string]interface{}]
	SessionToken string

	// ResourceRequest
	URI taint.Tainted[string]

	// Passthrough
	Method string
	Params json.RawMessage
}

// DecisionKind discriminates the SecurityDecision variants.
type DecisionKind int

const (
	DecisionAllow DecisionKind = iota
	DecisionAllowWithTransforms
	DecisionDeny
)

// SecurityDecision is the policy engine's verdict on a SecurityEvent.
type SecurityDecision struct {
	Kind DecisionKind

	// AllowWithTransforms
	TaintsToAdd      []string
	TaintsToRemove   []string
	OutputTransforms []OutputTransform

	// Deny
	ErrorCode int
	Reason    string
}

// Allow is the no-op decision.
func Allow() SecurityDecision { return SecurityDecision{Kind: DecisionAllow} }

// Deny builds a Deny decision carrying a JSON-RPC error code and reason.
func Deny(code int, reason string) SecurityDecision {
	return SecurityDecision{Kind: DecisionDeny, ErrorCode: code, Reason: reason}
}

// TransformKind discriminates OutputTransform variants.
type TransformKind int

const (
	TransformSpotlight TransformKind = iota
	TransformRedact
)

// OutputTransform names a transformation to apply to specific fields of
// an upstream response before it reaches the client.
type OutputTransform struct {
	Kind      TransformKind
	JSONPaths []string
}
