// Package v20241105 implements the legacy MCP protocol adapter. Its
// parse/apply logic is deliberately close to the 2025 adapter: the two
// diverge only in the response-side field traversal used by Spotlight.
package v20241105

import (
	"encoding/json"

	"github.com/mcpgate/mcpgate/internal/adapter/protocol"
	"github.com/mcpgate/mcpgate/internal/taint"
	"github.com/mcpgate/mcpgate/pkg/wire"
)

const version = "2024-11-05"

// Adapter implements protocol.Adapter for the 2024-11-05 MCP version.
type Adapter struct{}

// New returns a 2024-11-05 adapter.
func New() *Adapter { return &Adapter{} }

// Version implements protocol.Adapter.
func (a *Adapter) Version() string { return version }

// ParseRequest implements protocol.Adapter.
func (a *Adapter) ParseRequest(req *wire.Request) protocol.SecurityEvent {
	switch req.Method {
	case "initialize":
		params := decodeParams(req.Params)
		audienceToken, _ := params[protocol.AudienceTokenParam].(string)
		clientVersion, _ := params["protocolVersion"].(string)
		return protocol.SecurityEvent{
			Kind:            protocol.EventHandshake,
			ProtocolVersion: clientVersion,
			ClientInfo:      reencode(params["clientInfo"]),
			Capabilities:    reencode(params["capabilities"]),
			AudienceToken:   audienceToken,
		}

	case "tools/call":
		params := decodeParams(req.Params)
		name, _ := params["name"].(string)
		if name == "" {
			name = "unknown"
		}
		args, _ := params["arguments"].(map[string]interface{})
		if args == nil {
			args = map[string]interface{}{}
		}
		event := protocol.SecurityEvent{
			Kind:         protocol.EventToolRequest,
			ToolName:     taint.New(name, "UNTRUSTED_READ"),
			Arguments:    taint.New(args, "UNTRUSTED_READ"),
			SessionToken: a.ExtractSessionToken(req),
		}
		if req.ID != nil {
			event.RequestID = *req.ID
		}
		return event

	case "resources/read":
		params := decodeParams(req.Params)
		uri, _ := params["uri"].(string)
		event := protocol.SecurityEvent{
			Kind:         protocol.EventResourceRequest,
			URI:          taint.New(uri, "UNTRUSTED_READ"),
			SessionToken: a.ExtractSessionToken(req),
		}
		if req.ID != nil {
			event.RequestID = *req.ID
		}
		return event

	default:
		return protocol.SecurityEvent{
			Kind:   protocol.EventPassthrough,
			Method: req.Method,
			Params: req.Params,
		}
	}
}

// ApplyDecision implements protocol.Adapter. The legacy adapter's
// spotlight traversal only ever touches result.content[*].text.
func (a *Adapter) ApplyDecision(decision protocol.SecurityDecision, resp *wire.Response) *wire.Response {
	if decision.Kind != protocol.DecisionAllowWithTransforms || resp == nil {
		return resp
	}
	protocol.ApplyOutputTransforms(resp, decision.OutputTransforms, false)
	return resp
}

// ExtractSessionToken implements protocol.Adapter.
func (a *Adapter) ExtractSessionToken(req *wire.Request) string {
	params := decodeParams(req.Params)
	token, _ := params[protocol.SessionIDParam].(string)
	return token
}

// SanitizeForUpstream implements protocol.Adapter.
func (a *Adapter) SanitizeForUpstream(req *wire.Request) {
	params := decodeParams(req.Params)
	if params == nil {
		return
	}
	stripped := false
	for k := range params {
		if hasPrivatePrefix(k) {
			delete(params, k)
			stripped = true
		}
	}
	if stripped {
		req.Params, _ = json.Marshal(params)
	}
}

func hasPrivatePrefix(key string) bool {
	return len(key) >= len(protocol.PrivateParamPrefix) && key[:len(protocol.PrivateParamPrefix)] == protocol.PrivateParamPrefix
}

func decodeParams(raw json.RawMessage) map[string]interface{} {
	if len(raw) == 0 {
		return map[string]interface{}{}
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return map[string]interface{}{}
	}
	return m
}

func reencode(v interface{}) json.RawMessage {
	if v == nil {
		return json.RawMessage("null")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return b
}
