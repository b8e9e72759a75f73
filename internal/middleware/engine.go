// Package middleware implements the central event-loop actor that ties
// together the protocol adapters, the policy evaluator, the session
// store, the subprocess supervisor and the audit log. One Engine serves
// one client connection for the lifetime of its subprocess.
package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/mcpgate/mcpgate/internal/adapter/protocol"
	"github.com/mcpgate/mcpgate/internal/audit"
	"github.com/mcpgate/mcpgate/internal/crypto"
	"github.com/mcpgate/mcpgate/internal/metrics"
	"github.com/mcpgate/mcpgate/internal/policy"
	"github.com/mcpgate/mcpgate/internal/policy/pattern"
	"github.com/mcpgate/mcpgate/internal/session"
	"github.com/mcpgate/mcpgate/internal/supervisor"
	"github.com/mcpgate/mcpgate/pkg/codec"
	"github.com/mcpgate/mcpgate/pkg/wire"
)

// ToolClassifier maps a tool name to the coarser tool_class tags a
// policy's class-scoped rules may select on. A nil Classifier means no
// tool carries any class (selector-by-class rules simply never fire).
type ToolClassifier interface {
	ClassesFor(tool string) []string
}

// NoClasses is the zero-value ToolClassifier: every tool is classless.
type NoClasses struct{}

// ClassesFor implements ToolClassifier.
func (NoClasses) ClassesFor(string) []string { return nil }

// requestKind discriminates how a pending request's response must be
// post-processed once it arrives (or, for Deny, is already final).
type requestKind int

const (
	kindPassthrough requestKind = iota
	kindHandshake
	kindEvaluated
)

// pendingRequest is what the engine remembers about a request it has
// forwarded (or answered synchronously) while waiting for its turn to be
// flushed to the client in submission order.
type pendingRequest struct {
	kind           requestKind
	adapterVersion string
	decision       protocol.SecurityDecision
	newSessionID   string // set only for kindHandshake
}

// Engine is the per-connection middleware actor.
type Engine struct {
	Adapters       map[string]protocol.Adapter
	DefaultVersion string

	Evaluator  *policy.Evaluator
	Sessions   *session.Store
	Audit      *audit.Logger
	Signer     *crypto.SessionSigner
	Audience   *crypto.AudienceVerifier // nil if audience binding is not configured
	Classifier ToolClassifier

	// Metrics is nil-safe: a nil Metrics disables recording entirely, so
	// tests and callers that don't pass --metrics-addr pay no cost.
	Metrics *metrics.Metrics

	// Tracer emits one span per pipeline stage (decode, adapt, evaluate,
	// sanitize). Backed by the global TracerProvider, which is a no-op
	// until cmd/mcpgate installs the stdout exporter, so callers that
	// never configure OpenTelemetry pay only the no-op's cost.
	Tracer trace.Tracer

	// stageDuration records each pipeline stage's wall-clock time as an
	// OTel histogram, alongside (not instead of) the Tracer's spans —
	// backed by the global MeterProvider, no-op the same way Tracer is.
	stageDuration otelmetric.Float64Histogram

	Logger *slog.Logger
}

// tracerName identifies this package's spans and instruments to whatever
// TracerProvider/MeterProvider is installed globally.
const tracerName = "github.com/mcpgate/mcpgate/internal/middleware"

func (e *Engine) recordDecision(verdict string) {
	if e.Metrics == nil {
		return
	}
	e.Metrics.DecisionsTotal.WithLabelValues(verdict).Inc()
}

// recordActiveSessions refreshes the active-sessions gauge from the store's
// current size. Cheap enough to call after every session touch.
func (e *Engine) recordActiveSessions() {
	if e.Metrics == nil {
		return
	}
	e.Metrics.ActiveSessions.Set(float64(e.Sessions.Len()))
}

// NewEngine builds an Engine. adapters must contain at least one entry;
// defaultVersion selects the adapter used to negotiate unknown/newer
// protocol versions and to extract session tokens before a session's
// sticky version is known.
func NewEngine(adapters map[string]protocol.Adapter, defaultVersion string, evaluator *policy.Evaluator, sessions *session.Store, auditLog *audit.Logger, signer *crypto.SessionSigner, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	hist, err := otel.Meter(tracerName).Float64Histogram(
		"mcpgate.pipeline.stage.duration",
		otelmetric.WithDescription("Wall-clock time spent in each pipeline stage"),
		otelmetric.WithUnit("s"),
	)
	if err != nil {
		logger.Warn("failed to create pipeline stage histogram", "error", err)
	}
	return &Engine{
		Adapters:       adapters,
		DefaultVersion: defaultVersion,
		Evaluator:      evaluator,
		Sessions:       sessions,
		Audit:          auditLog,
		Signer:         signer,
		Classifier:     NoClasses{},
		Tracer:         otel.Tracer(tracerName),
		stageDuration:  hist,
		Logger:         logger,
	}
}

// startStage starts both the span and the duration-histogram recording for
// one pipeline stage (decode, adapt, evaluate, sanitize). The returned func
// ends the span and records the elapsed time; call it when the stage
// completes.
func (e *Engine) startStage(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func()) {
	spanCtx, span := e.Tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	start := time.Now()
	return spanCtx, func() {
		span.End()
		e.stageDuration.Record(ctx, time.Since(start).Seconds(), otelmetric.WithAttributes(append(attrs, attribute.String("stage", name))...))
	}
}

func (e *Engine) adapterFor(version string) protocol.Adapter {
	if a, ok := e.Adapters[version]; ok {
		return a
	}
	return e.Adapters[e.DefaultVersion]
}

// idKey returns a map key for a JSON-RPC id, stable across requests and
// the corresponding response.
func idKey(id wire.ID) string {
	raw := id.Raw()
	if raw == nil {
		return ""
	}
	return string(raw)
}

// Run drives the central event loop: it selects over sup.Downstream and
// sup.Upstream until one of them closes, dispatching each event and
// flushing responses to clientOut in the order their requests were
// submitted — even when the upstream subprocess answers out of order.
func (e *Engine) Run(ctx context.Context, sup *supervisor.Supervisor, clientOut func([]byte) error) error {
	loop := &loopState{
		engine:    e,
		pending:   map[string]*pendingRequest{},
		responses: map[string]*wire.Response{},
	}

	downstream := sup.Downstream
	upstream := sup.Upstream

	for downstream != nil && upstream != nil {
		select {
		case ev, ok := <-downstream:
			if !ok {
				downstream = nil
				continue
			}
			loop.handleDownstream(ctx, sup, clientOut, ev)

		case ev, ok := <-upstream:
			if !ok {
				upstream = nil
				continue
			}
			loop.handleUpstream(clientOut, ev)
		}
	}

	loop.failAllPending(clientOut)
	return ctx.Err()
}

// loopState holds the per-run mutable correlation bookkeeping. It is not
// safe for concurrent use — Run's single goroutine is its only caller.
type loopState struct {
	engine *Engine

	order     []string // request ids, in submission order
	pending   map[string]*pendingRequest
	responses map[string]*wire.Response
}

func (l *loopState) handleDownstream(ctx context.Context, sup *supervisor.Supervisor, clientOut func([]byte) error, ev supervisor.DownstreamEvent) {
	switch ev.Kind {
	case supervisor.DownstreamError:
		l.engine.Logger.Warn("malformed downstream frame", "error", ev.Err)
		if l.engine.Metrics != nil {
			l.engine.Metrics.CodecErrorsTotal.Inc()
		}
		l.engine.audit("", "downstream_frame_error", map[string]interface{}{"error": ev.Err.Error()})

	case supervisor.DownstreamDisconnect:
		// Handled by Run falling out of the select loop once the channel closes.

	case supervisor.DownstreamRequest:
		ctx, end := l.engine.startStage(ctx, "decode")
		var req wire.Request
		err := json.Unmarshal(ev.Payload, &req)
		end()
		if err != nil {
			l.engine.Logger.Warn("downstream payload is not a JSON-RPC request", "error", err)
			return
		}
		l.processRequest(ctx, sup, clientOut, &req)
	}
}

func (l *loopState) handleUpstream(clientOut func([]byte) error, ev supervisor.UpstreamEvent) {
	switch ev.Kind {
	case supervisor.UpstreamLog:
		l.engine.Logger.Debug("upstream stderr", "line", ev.Line)

	case supervisor.UpstreamTerminated:
		if ev.Err != nil {
			l.engine.Logger.Warn("upstream subprocess terminated with error", "error", ev.Err)
		}

	case supervisor.UpstreamResponse:
		var resp wire.Response
		if err := json.Unmarshal(ev.Payload, &resp); err != nil {
			l.engine.Logger.Warn("upstream payload is not a JSON-RPC response", "error", err)
			return
		}
		key := idKey(resp.ID)
		meta, ok := l.pending[key]
		if !ok {
			// Unsolicited response (or one we've already flushed/cancelled); drop.
			return
		}
		l.finishResponse(key, meta, &resp)
		l.flush(clientOut)
	}
}

// processRequest runs one downstream request through sanitation, session
// lookup and (where applicable) policy evaluation, then either answers it
// synchronously (handshake, deny, malformed session) or forwards it
// upstream and reserves its place in the submission-ordered queue.
func (l *loopState) processRequest(ctx context.Context, sup *supervisor.Supervisor, clientOut func([]byte) error, req *wire.Request) {
	e := l.engine

	if err := req.Validate(); err != nil {
		l.respondError(clientOut, req, wire.NewInvalidRequest(err.Error()))
		return
	}

	_, endAdapt := e.startStage(ctx, "adapt")
	adapter := e.adapterFor(e.DefaultVersion)
	event := adapter.ParseRequest(req)
	endAdapt()

	switch event.Kind {
	case protocol.EventHandshake:
		l.handleHandshake(ctx, sup, clientOut, req, event)

	case protocol.EventToolRequest:
		l.handleSecured(ctx, sup, clientOut, req, event.SessionToken, event.ToolName.Peek(), event.Arguments.Peek())

	case protocol.EventResourceRequest:
		l.handleSecured(ctx, sup, clientOut, req, event.SessionToken, "resource:"+event.URI.Peek(), nil)

	default:
		l.submit(sup, req, &pendingRequest{kind: kindPassthrough})
	}
}

func (l *loopState) handleHandshake(ctx context.Context, sup *supervisor.Supervisor, clientOut func([]byte) error, req *wire.Request, event protocol.SecurityEvent) {
	e := l.engine

	if e.Audience != nil {
		if event.AudienceToken == "" {
			l.respondError(clientOut, req, wire.NewSessionError("handshake missing required audience token"))
			return
		}
		if _, err := e.Audience.Verify(event.AudienceToken); err != nil {
			l.respondError(clientOut, req, wire.NewSessionError("audience token rejected: "+err.Error()))
			return
		}
	}

	version := event.ProtocolVersion
	if _, known := e.Adapters[version]; !known {
		version = e.DefaultVersion
	}

	sessionID, err := e.Signer.Generate()
	if err != nil {
		e.Logger.Error("failed to mint session id", "error", err)
		l.respondError(clientOut, req, wire.NewInternalError())
		return
	}
	if _, err := e.Sessions.GetOrCreate(ctx, sessionID, version); err != nil {
		e.Logger.Error("session store unavailable during handshake", "error", err)
		l.respondError(clientOut, req, wire.NewInternalError())
		return
	}
	e.recordActiveSessions()

	e.audit(sessionID, "handshake", map[string]interface{}{"protocol_version": version})

	_, endSanitize := e.startStage(ctx, "sanitize")
	adapter := e.adapterFor(version)
	adapter.SanitizeForUpstream(req)
	endSanitize()
	l.submit(sup, req, &pendingRequest{kind: kindHandshake, adapterVersion: version, newSessionID: sessionID})
}

func (l *loopState) handleSecured(ctx context.Context, sup *supervisor.Supervisor, clientOut func([]byte) error, req *wire.Request, sessionToken, toolName string, args map[string]interface{}) {
	e := l.engine

	if sessionToken == "" || !e.Signer.Validate(sessionToken) {
		l.respondError(clientOut, req, wire.NewSessionError("missing or invalid session"))
		return
	}

	state, err := e.Sessions.GetOrCreate(ctx, sessionToken, "")
	if err != nil {
		e.Logger.Error("session store unavailable", "error", err)
		l.respondError(clientOut, req, wire.NewInternalError())
		return
	}
	version := state.ProtocolVersion
	if version == "" {
		version = e.DefaultVersion
	}

	classes := e.Classifier.ClassesFor(toolName)
	history := e.Sessions.ReadHistory(ctx, sessionToken)
	currentTaints := e.Sessions.ReadTaints(ctx, sessionToken)

	_, endEval := e.startStage(ctx, "evaluate", attribute.String("tool", toolName))
	decision, err := e.Evaluator.Evaluate(policy.Input{
		Tool:          toolName,
		ToolClasses:   classes,
		History:       history,
		CurrentTaints: currentTaints,
		Args:          args,
	})
	endEval()
	if err != nil {
		e.Logger.Error("policy evaluation failed", "error", err, "tool", toolName)
		e.audit(sessionToken, "evaluation_error", map[string]interface{}{"tool": toolName, "error": err.Error()})
		l.respondError(clientOut, req, wire.NewInternalError())
		return
	}

	if decision.Kind == policy.DecisionDeny {
		e.recordDecision(metrics.VerdictDeny)
		e.audit(sessionToken, "policy_deny", map[string]interface{}{"tool": toolName, "reason": decision.Reason})
		l.respondError(clientOut, req, wire.NewPolicyBlock(decision.Reason))
		return
	}

	commit := session.CommitSet{
		TaintsToAdd:    decision.TaintsToAdd,
		TaintsToRemove: decision.TaintsToRemove,
		HistoryEntry:   &pattern.HistoryEntry{Tool: toolName, Classes: classes, Timestamp: time.Now().Unix()},
	}
	if err := e.Sessions.Mutate(ctx, sessionToken, commit); err != nil {
		e.Logger.Error("failed to commit session mutation", "error", err)
		l.respondError(clientOut, req, wire.NewInternalError())
		return
	}

	if decision.Kind == policy.DecisionAllowWithTransforms {
		e.recordDecision(metrics.VerdictAllowWithTransforms)
	} else {
		e.recordDecision(metrics.VerdictAllow)
	}
	e.audit(sessionToken, "tool_call", map[string]interface{}{"tool": toolName, "allow_with_transforms": decision.Kind == policy.DecisionAllowWithTransforms})

	protoDecision := toProtocolDecision(decision)
	_, endSanitize := e.startStage(ctx, "sanitize")
	adapter := e.adapterFor(version)
	adapter.SanitizeForUpstream(req)
	endSanitize()
	l.submit(sup, req, &pendingRequest{kind: kindEvaluated, adapterVersion: version, decision: protoDecision})
}

// submit writes req to the subprocess and, unless it is a notification,
// reserves its place in the submission-ordered response queue.
func (l *loopState) submit(sup *supervisor.Supervisor, req *wire.Request, meta *pendingRequest) {
	frame, err := codec.EncodeValue(req)
	if err != nil {
		l.engine.Logger.Error("failed to encode outbound request", "error", err)
		return
	}
	if _, err := sup.Stdin().Write(frame); err != nil {
		l.engine.Logger.Warn("failed to write to subprocess stdin", "error", err)
		return
	}

	if req.IsNotification() {
		return
	}
	key := idKey(*req.ID)
	l.order = append(l.order, key)
	l.pending[key] = meta
}

// respondError answers a request synchronously without touching the
// subprocess — used for denials and fail-closed errors. Notifications are
// silently dropped per JSON-RPC semantics (no response is ever emitted
// for them).
func (l *loopState) respondError(clientOut func([]byte) error, req *wire.Request, wireErr *wire.Error) {
	if req.IsNotification() {
		return
	}
	resp := wire.NewErrorResponse(*req.ID, wireErr)
	l.writeResponse(clientOut, resp)
}

func (l *loopState) writeResponse(clientOut func([]byte) error, resp *wire.Response) {
	frame, err := codec.EncodeValue(resp)
	if err != nil {
		l.engine.Logger.Error("failed to encode response", "error", err)
		return
	}
	if err := clientOut(frame); err != nil {
		l.engine.Logger.Warn("failed to write response to client", "error", err)
	}
}

// finishResponse post-processes an upstream response per its pending
// request's kind, then buffers it for in-order flushing.
func (l *loopState) finishResponse(key string, meta *pendingRequest, resp *wire.Response) {
	adapter := l.engine.adapterFor(meta.adapterVersion)

	switch meta.kind {
	case kindHandshake:
		injectSessionID(resp, meta.newSessionID)
	case kindEvaluated:
		resp = adapter.ApplyDecision(meta.decision, resp)
	}

	l.responses[key] = resp
}

// flush writes every response at the head of the submission queue that
// has arrived, in order, stopping at the first gap.
func (l *loopState) flush(clientOut func([]byte) error) {
	for len(l.order) > 0 {
		key := l.order[0]
		resp, ok := l.responses[key]
		if !ok {
			return
		}
		l.writeResponse(clientOut, resp)
		delete(l.responses, key)
		delete(l.pending, key)
		l.order = l.order[1:]
	}
}

// failAllPending answers every still-outstanding request with a generic
// internal error once the subprocess or client connection has gone away,
// so no caller is left waiting forever.
func (l *loopState) failAllPending(clientOut func([]byte) error) {
	for _, key := range l.order {
		if _, already := l.responses[key]; already {
			continue
		}
		resp := &wire.Response{JSONRPC: wire.ProtocolVersion, ID: wire.NewID(json.RawMessage(key)), Error: wire.NewInternalError()}
		l.writeResponse(clientOut, resp)
	}
	l.order = nil
	l.pending = map[string]*pendingRequest{}
	l.responses = map[string]*wire.Response{}
}

// injectSessionID adds the interceptor-minted session id to a successful
// initialize response's result, so the client can echo it back as
// params._lilith_zero_session_id on every subsequent call. Left untouched
// on error responses.
func injectSessionID(resp *wire.Response, sessionID string) {
	if resp == nil || resp.Error != nil || sessionID == "" {
		return
	}
	var result map[string]interface{}
	if len(resp.Result) > 0 {
		_ = json.Unmarshal(resp.Result, &result)
	}
	if result == nil {
		result = map[string]interface{}{}
	}
	result[protocol.SessionIDParam] = sessionID
	if b, err := json.Marshal(result); err == nil {
		resp.Result = b
	}
}

func toProtocolDecision(d policy.Decision) protocol.SecurityDecision {
	transforms := make([]protocol.OutputTransform, 0, len(d.OutputTransforms))
	for _, t := range d.OutputTransforms {
		transforms = append(transforms, protocol.OutputTransform{Kind: protocol.TransformKind(t.Kind), JSONPaths: t.JSONPaths})
	}
	kind := protocol.DecisionAllow
	if d.Kind == policy.DecisionAllowWithTransforms {
		kind = protocol.DecisionAllowWithTransforms
	}
	return protocol.SecurityDecision{
		Kind:             kind,
		TaintsToAdd:      d.TaintsToAdd,
		TaintsToRemove:   d.TaintsToRemove,
		OutputTransforms: transforms,
	}
}

// audit appends an audit entry and logs (without propagating) any write
// failure. The event loop's own correctness never depends on audit
// succeeding; Logger.Append is itself fail-closed for callers that do
// need to react to a broken audit sink (e.g. the CLI's top-level wiring).
func (e *Engine) audit(sessionID, eventType string, details map[string]interface{}) {
	if e.Audit == nil {
		return
	}
	entry := audit.Entry{SessionID: sessionID, Timestamp: time.Now().Unix(), EventType: eventType, Details: details}
	if err := e.Audit.Append(entry); err != nil {
		e.Logger.Error("audit append failed", "error", err, "event_type", eventType)
		if e.Metrics != nil {
			e.Metrics.AuditAppendFailures.Inc()
		}
	}
}
