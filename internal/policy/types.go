// Package policy implements the static-ACL-plus-dynamic-taint-rule
// evaluation pipeline: a PolicyDefinition is an immutable snapshot loaded
// once (and atomically swapped on reload), consulted by the Evaluator for
// every tool/resource request.
package policy

import (
	"fmt"

	"github.com/mcpgate/mcpgate/internal/policy/pattern"
)

// Action names what a PolicyRule does when its selector or pattern matches.
type Action int

const (
	ActionAllow Action = iota
	ActionDeny
	ActionAddTaint
	ActionRemoveTaint
	ActionCheckTaint
	ActionBlock
)

func (a Action) String() string {
	switch a {
	case ActionAllow:
		return "ALLOW"
	case ActionDeny:
		return "DENY"
	case ActionAddTaint:
		return "ADD_TAINT"
	case ActionRemoveTaint:
		return "REMOVE_TAINT"
	case ActionCheckTaint:
		return "CHECK_TAINT"
	case ActionBlock:
		return "BLOCK"
	default:
		return "UNKNOWN"
	}
}

// StaticVerdict is the value stored in PolicyDefinition.StaticRules.
type StaticVerdict int

const (
	StaticAllow StaticVerdict = iota
	StaticDeny
)

// SelectorKind distinguishes a rule selector naming an exact tool vs. a
// tool class (a coarser tag a tool may carry, e.g. SENSITIVE_READ).
type SelectorKind int

const (
	SelectorTool SelectorKind = iota
	SelectorClass
)

// Selector identifies what a PolicyRule applies to.
type Selector struct {
	Kind SelectorKind
	Name string
}

// RuleException suppresses a rule's action when its condition holds.
type RuleException struct {
	Condition pattern.Condition
	Reason    string
}

// Rule is one entry in a PolicyDefinition's ordered taint_rules list.
//
// Invariants (checked by Validate): ADD_TAINT/REMOVE_TAINT require Tag;
// CHECK_TAINT requires a non-empty ForbiddenTags; a rule whose Pattern
// uses tool_args_match may only be selected by exact tool name, never by
// class, since class-scoped rules can fan out over heterogeneous
// argument shapes.
type Rule struct {
	Selector      Selector
	Action        Action
	Tag           string
	ForbiddenTags []string
	Pattern       *pattern.Condition
	Exceptions    []RuleException
	ErrorMessage  string

	// OutputTransforms are threaded into the decision's
	// AllowWithTransforms when this rule fires without denying. Not part
	// of the original action vocabulary; lets a taint/pattern rule also
	// request Spotlight/Redact on the eventual response.
	OutputTransforms []Transform
}

// Definition is an immutable policy snapshot.
type Definition struct {
	ID                    string
	Name                  string
	Version               string
	StaticRules           map[string]StaticVerdict
	TaintRules            []Rule
	ProtectLethalTrifecta bool
}

// Validate checks the structural invariants spec §3/§4.3 place on a
// policy definition: ADD_TAINT/REMOVE_TAINT require a Tag, CHECK_TAINT
// requires a non-empty ForbiddenTags, and tool_args_match patterns may
// only appear on rules selected by exact tool name — a class-scoped rule
// using it is rejected outright since class members can have
// heterogeneous argument shapes.
func (d *Definition) Validate() error {
	for i, rule := range d.TaintRules {
		switch rule.Action {
		case ActionAddTaint, ActionRemoveTaint:
			if rule.Tag == "" {
				return fmt.Errorf("policy: rule %d: %v action requires a tag", i, rule.Action)
			}
		case ActionCheckTaint:
			if len(rule.ForbiddenTags) == 0 {
				return fmt.Errorf("policy: rule %d: CHECK_TAINT action requires forbidden_tags", i)
			}
		}

		if rule.Pattern != nil && usesToolArgsMatch(*rule.Pattern) && rule.Selector.Kind == SelectorClass {
			return fmt.Errorf("policy: rule %d: tool_args_match is not allowed in a class-scoped rule (selector %q)", i, rule.Selector.Name)
		}
	}
	return nil
}

// usesToolArgsMatch reports whether cond (or any of its descendants)
// contains a tool_args_match node.
func usesToolArgsMatch(cond pattern.Condition) bool {
	switch cond.Kind {
	case pattern.KindToolArgsMatch:
		return true
	case pattern.KindAnd, pattern.KindOr:
		for _, c := range cond.Children {
			if usesToolArgsMatch(c) {
				return true
			}
		}
	case pattern.KindNot:
		if cond.Child != nil {
			return usesToolArgsMatch(*cond.Child)
		}
	}
	return false
}
