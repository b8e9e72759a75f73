package protocol

import "github.com/mcpgate/mcpgate/pkg/wire"

// PrivateParamPrefix marks interceptor-private keys in JSON-RPC params
// (e.g. "_lilith_zero_session_id"). sanitize_for_upstream strips every
// key carrying this prefix before a request leaves for upstream.
const PrivateParamPrefix = "_lilith_zero_"

// SessionIDParam is the params field an adapter reads the session token
// from, and removes before forwarding upstream.
const SessionIDParam = PrivateParamPrefix + "session_id"

// AudienceTokenParam is the params field carrying the optional JWT
// audience-binding token on the initialize handshake.
const AudienceTokenParam = PrivateParamPrefix + "audience_token"

// Adapter translates between one specific MCP wire protocol version and
// the version-agnostic SecurityEvent/SecurityDecision model. Each
// concrete version lives in its own subpackage; ActiveSession dispatches
// to whichever one was negotiated for a session.
type Adapter interface {
	// Version returns the protocol version string this adapter implements.
	Version() string

	// ParseRequest converts a raw JSON-RPC request into a SecurityEvent.
	ParseRequest(req *wire.Request) SecurityEvent

	// ApplyDecision rewrites an upstream response per decision's output
	// transforms. It is a no-op for Allow/Deny decisions (Deny is handled
	// upstream of the response path entirely).
	ApplyDecision(decision SecurityDecision, resp *wire.Response) *wire.Response

	// ExtractSessionToken reads the session token from a request's params.
	ExtractSessionToken(req *wire.Request) string

	// SanitizeForUpstream strips interceptor-private params before the
	// request is forwarded to the upstream MCP server.
	SanitizeForUpstream(req *wire.Request)
}
