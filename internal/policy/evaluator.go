package policy

import (
	"fmt"

	"github.com/mcpgate/mcpgate/internal/policy/pattern"
	"github.com/mcpgate/mcpgate/internal/policy/selector"
	"github.com/mcpgate/mcpgate/internal/taint"
)

// lethal trifecta tags, per spec: simultaneous possession of all three
// flags access to private data, exposure to untrusted input, and the
// capability to write externally.
const (
	TagPrivateRead   = "PRIVATE_READ"
	TagUntrustedRead = "UNTRUSTED_READ"
	TagExternalWrite = "EXTERNAL_WRITE"
)

// Decision is the evaluator's verdict plus the taint mutations it staged.
// Mutations are populated only when Kind is DecisionAllow or
// DecisionAllowWithTransforms — committing them is the caller's
// responsibility (the evaluator never mutates SessionState directly).
type Decision struct {
	Kind             DecisionKind
	TaintsToAdd      []string
	TaintsToRemove   []string
	OutputTransforms []Transform

	ErrorCode int
	Reason    string
}

// DecisionKind mirrors the wire-facing protocol.DecisionKind, kept
// separate so this package has no dependency on the adapter layer.
type DecisionKind int

const (
	DecisionAllow DecisionKind = iota
	DecisionAllowWithTransforms
	DecisionDeny
)

// Transform names an output transform a rule requested. The evaluator
// itself never applies these — that's the protocol adapter's job — it
// only threads the request through to AllowWithTransforms.
type Transform struct {
	Kind      TransformKind
	JSONPaths []string
}

// TransformKind mirrors protocol.TransformKind.
type TransformKind int

const (
	TransformSpotlight TransformKind = iota
	TransformRedact
)

// Input bundles everything Evaluate needs to reach a verdict.
type Input struct {
	Tool          string
	ToolClasses   []string
	History       []pattern.HistoryEntry
	CurrentTaints taint.Set
	Args          map[string]interface{}
}

// Evaluator runs a Definition's algorithm (spec §4.4): static ACL, then
// ordered dynamic taint rules, then the lethal-trifecta guard.
type Evaluator struct {
	def *Definition
}

// NewEvaluator binds an Evaluator to an immutable policy snapshot.
func NewEvaluator(def *Definition) *Evaluator {
	return &Evaluator{def: def}
}

func deny(code int, reason string) Decision {
	return Decision{Kind: DecisionDeny, ErrorCode: code, Reason: reason}
}

// Evaluate runs the full pipeline and returns the decision, never
// mutating in.CurrentTaints.
func (e *Evaluator) Evaluate(in Input) (Decision, error) {
	// 1. Static ACL.
	verdict, explicit := e.def.StaticRules[in.Tool]
	if explicit {
		if verdict == StaticDeny {
			return deny(-32000, fmt.Sprintf("tool %q is forbidden by static policy", in.Tool)), nil
		}
	} else if len(e.def.StaticRules) > 0 {
		// Static entries exist but none names this tool: implicit deny.
		return deny(-32000, fmt.Sprintf("tool %q is not present in static policy", in.Tool)), nil
	}
	// Either explicitly ALLOW, or the policy has no static entries at all
	// (permissive default) — either way, dynamic rules still run.

	ids := selector.Table{}.IDsFor(in.Tool, in.ToolClasses)

	var taintsToAdd, taintsToRemove []string
	var transforms []Transform

	ctx := pattern.Context{
		History:       in.History,
		Tool:          in.Tool,
		Classes:       in.ToolClasses,
		CurrentTaints: in.CurrentTaints,
		Args:          in.Args,
	}

	for _, rule := range e.def.TaintRules {
		fired, err := e.ruleFires(rule, ctx, ids)
		if err != nil {
			return Decision{}, err
		}
		if !fired {
			continue
		}

		if len(rule.Exceptions) > 0 {
			excepted, err := e.checkExceptions(rule.Exceptions, ctx)
			if err != nil {
				return Decision{}, err
			}
			if excepted {
				continue
			}
		}

		if len(rule.OutputTransforms) > 0 {
			transforms = append(transforms, rule.OutputTransforms...)
		}

		switch rule.Action {
		case ActionBlock, ActionDeny:
			return deny(-32000, firstNonEmpty(rule.ErrorMessage, "blocked by policy rule")), nil

		case ActionCheckTaint:
			merged := in.CurrentTaints.Union(taint.NewSet(taintsToAdd...))
			for _, tag := range rule.ForbiddenTags {
				if merged.Has(tag) {
					return deny(-32000, firstNonEmpty(rule.ErrorMessage, "forbidden taint detected")), nil
				}
			}

		case ActionAddTaint:
			if rule.Tag != "" {
				taintsToAdd = appendUnique(taintsToAdd, rule.Tag)
			}

		case ActionRemoveTaint:
			if rule.Tag != "" {
				taintsToRemove = appendUnique(taintsToRemove, rule.Tag)
			}

		case ActionAllow:
			// Explicit approval recorded; continue evaluating remaining rules.
		}
	}

	// 3. Lethal-trifecta guard.
	if e.def.ProtectLethalTrifecta {
		merged := in.CurrentTaints.Union(taint.NewSet(taintsToAdd...))
		if merged.Has(TagPrivateRead) && merged.Has(TagUntrustedRead) && merged.Has(TagExternalWrite) {
			return deny(-32000, "lethal trifecta"), nil
		}
	}

	if len(taintsToAdd) == 0 && len(taintsToRemove) == 0 && len(transforms) == 0 {
		return Decision{Kind: DecisionAllow}, nil
	}
	return Decision{
		Kind:             DecisionAllowWithTransforms,
		TaintsToAdd:      taintsToAdd,
		TaintsToRemove:   taintsToRemove,
		OutputTransforms: transforms,
	}, nil
}

// ruleFires evaluates a rule's trigger: if it carries a Pattern, that
// condition decides; otherwise the rule fires when its selector matches
// the request's interned tool/class ids.
func (e *Evaluator) ruleFires(rule Rule, ctx pattern.Context, ids map[selector.ID]struct{}) (bool, error) {
	if rule.Pattern != nil {
		return pattern.Eval(*rule.Pattern, ctx)
	}
	return selector.Matches(selector.Intern(rule.Selector.Name), ids), nil
}

func (e *Evaluator) checkExceptions(exceptions []RuleException, ctx pattern.Context) (bool, error) {
	for _, exc := range exceptions {
		ok, err := pattern.Eval(exc.Condition, ctx)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func appendUnique(s []string, v string) []string {
	for _, existing := range s {
		if existing == v {
			return s
		}
	}
	return append(s, v)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
