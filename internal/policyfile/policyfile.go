// Package policyfile loads the operator-authored policy YAML file named by
// POLICIES_YAML_PATH into an internal/policy.Definition. The YAML shape is
// a direct, human-readable rendering of policy.Definition/policy.Rule —
// grounded on the Rust predecessor's PolicyLoader
// (sentinel_core/interceptor/rust/src/loader/policy_loader.rs), adapted
// from its multi-tenant customers+policies document to the single active
// policy definition this interceptor evaluates per connection.
package policyfile

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/mcpgate/mcpgate/internal/policy"
	"github.com/mcpgate/mcpgate/internal/policy/pattern"
	"github.com/mcpgate/mcpgate/internal/sandbox"
)

// Document is the root of a policies.yaml file.
type Document struct {
	Name                  string              `yaml:"name"`
	Version               string              `yaml:"version"`
	ProtectLethalTrifecta bool                `yaml:"protect_lethal_trifecta"`
	StaticRules           map[string]string   `yaml:"static_rules" validate:"omitempty,dive,oneof=allow deny ALLOW DENY"`
	ToolClasses           map[string][]string `yaml:"tool_classes"`
	Rules                 []RuleDoc           `yaml:"rules" validate:"omitempty,dive"`
	SandboxPolicy         *SandboxPolicyDoc   `yaml:"sandbox_policy"`
}

// SandboxPolicyDoc is the YAML rendering of sandbox.Policy (spec.md
// line 154's `sandbox_policy` spawn parameter): paths the supervised
// subprocess may read/write, and whether it may reach the network.
type SandboxPolicyDoc struct {
	ReadPaths    []string `yaml:"read_paths"`
	WritePaths   []string `yaml:"write_paths"`
	AllowNetwork bool     `yaml:"allow_network"`
}

// RuleDoc is one taint_rules entry.
type RuleDoc struct {
	Name          string              `yaml:"name"`
	Tool          string              `yaml:"tool"`
	ToolClass     string              `yaml:"tool_class"`
	Action        string              `yaml:"action" validate:"required,oneof=ALLOW DENY ADD_TAINT REMOVE_TAINT CHECK_TAINT BLOCK allow deny add_taint remove_taint check_taint block"`
	Tag           string              `yaml:"tag"`
	ForbiddenTags []string            `yaml:"forbidden_tags"`
	Pattern       *ConditionDoc       `yaml:"pattern"`
	Exceptions    []ExceptionDoc      `yaml:"exceptions"`
	ErrorMessage  string              `yaml:"error_message"`
	Transforms    []TransformDoc      `yaml:"transforms"`
}

// ExceptionDoc suppresses its parent rule's action when Condition holds.
type ExceptionDoc struct {
	Condition ConditionDoc `yaml:"condition"`
	Reason    string       `yaml:"reason"`
}

// TransformDoc requests an output transform on an allowed response.
type TransformDoc struct {
	Kind      string   `yaml:"kind" validate:"required,oneof=spotlight redact SPOTLIGHT REDACT"`
	JSONPaths []string `yaml:"json_paths"`
}

// ConditionDoc is the YAML rendering of pattern.Condition's recursive
// tree. Exactly one of the kind-specific fields is populated per Kind.
type ConditionDoc struct {
	And             []ConditionDoc    `yaml:"and"`
	Or              []ConditionDoc    `yaml:"or"`
	Not             *ConditionDoc     `yaml:"not"`
	EQ              *EqDoc            `yaml:"eq"`
	Var             string            `yaml:"var"`
	Literal         interface{}       `yaml:"literal"`
	SessionHasTaint string            `yaml:"session_has_taint"`
	ToolArgsMatch   map[string]string `yaml:"tool_args_match"`
	HistoryContains string            `yaml:"history_contains"`
	CEL             string            `yaml:"cel"`
}

// EqDoc is the two-sided operand pair for an "eq" condition.
type EqDoc struct {
	LHS ConditionDoc `yaml:"lhs"`
	RHS ConditionDoc `yaml:"rhs"`
}

// Result bundles everything a loaded policy file contributes to startup:
// the evaluator's definition, the inverted tool-class map, and an
// optional sandbox policy for the supervised subprocess.
type Result struct {
	Definition  *policy.Definition
	ToolClasses map[string][]string
	Sandbox     *sandbox.Policy
}

// Load reads and parses the policy file at path into a validated
// policy.Definition, plus the tool-class map resolved from ToolClasses
// (used by middleware.ToolClassifier). An empty path is not an error:
// the caller gets an empty, permissive definition — only an explicitly
// named but unreadable/malformed file fails.
func Load(path string) (*Result, error) {
	if path == "" {
		return &Result{Definition: &policy.Definition{}}, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("policyfile: read %s: %w", path, err)
	}

	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("policyfile: parse %s: %w", path, err)
	}

	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(doc); err != nil {
		return nil, fmt.Errorf("policyfile: %s: %w", path, err)
	}

	def, err := toDefinition(doc)
	if err != nil {
		return nil, fmt.Errorf("policyfile: %s: %w", path, err)
	}
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("policyfile: %s: %w", path, err)
	}

	result := &Result{
		Definition:  def,
		ToolClasses: invertToolClasses(doc.ToolClasses),
	}
	if doc.SandboxPolicy != nil {
		result.Sandbox = &sandbox.Policy{
			ReadPaths:    doc.SandboxPolicy.ReadPaths,
			WritePaths:   doc.SandboxPolicy.WritePaths,
			AllowNetwork: doc.SandboxPolicy.AllowNetwork,
		}
	}
	return result, nil
}

// invertToolClasses turns a class -> [tools] map (the natural way an
// operator writes it) into a tool -> [classes] map (the natural way
// middleware.ToolClassifier.ClassesFor consumes it).
func invertToolClasses(classToTools map[string][]string) map[string][]string {
	if len(classToTools) == 0 {
		return nil
	}
	out := make(map[string][]string)
	for class, tools := range classToTools {
		for _, tool := range tools {
			out[tool] = appendUnique(out[tool], class)
		}
	}
	return out
}

func appendUnique(s []string, v string) []string {
	for _, existing := range s {
		if existing == v {
			return s
		}
	}
	return append(s, v)
}

func toDefinition(doc Document) (*policy.Definition, error) {
	def := &policy.Definition{
		Name:                  doc.Name,
		Version:               doc.Version,
		ProtectLethalTrifecta: doc.ProtectLethalTrifecta,
	}

	if len(doc.StaticRules) > 0 {
		def.StaticRules = make(map[string]policy.StaticVerdict, len(doc.StaticRules))
		for tool, verdict := range doc.StaticRules {
			v, err := parseStaticVerdict(verdict)
			if err != nil {
				return nil, fmt.Errorf("static_rules[%s]: %w", tool, err)
			}
			def.StaticRules[tool] = v
		}
	}

	for i, rd := range doc.Rules {
		rule, err := toRule(rd)
		if err != nil {
			return nil, fmt.Errorf("rules[%d] (%s): %w", i, rd.Name, err)
		}
		def.TaintRules = append(def.TaintRules, rule)
	}

	return def, nil
}

func parseStaticVerdict(s string) (policy.StaticVerdict, error) {
	switch normalize(s) {
	case "allow":
		return policy.StaticAllow, nil
	case "deny":
		return policy.StaticDeny, nil
	default:
		return 0, fmt.Errorf("unrecognized verdict %q", s)
	}
}

func toRule(rd RuleDoc) (policy.Rule, error) {
	action, err := parseAction(rd.Action)
	if err != nil {
		return policy.Rule{}, err
	}

	selector, err := selectorFor(rd.Tool, rd.ToolClass, rd.Pattern != nil)
	if err != nil {
		return policy.Rule{}, err
	}

	rule := policy.Rule{
		Selector:      selector,
		Action:        action,
		Tag:           rd.Tag,
		ForbiddenTags: rd.ForbiddenTags,
		ErrorMessage:  rd.ErrorMessage,
	}

	if rd.Pattern != nil {
		cond, err := toCondition(*rd.Pattern)
		if err != nil {
			return policy.Rule{}, fmt.Errorf("pattern: %w", err)
		}
		// The evaluator's ruleFires gives Pattern absolute priority over
		// Selector whenever both are present (it never consults Selector
		// once Pattern != nil) — so a rule scoped to an exact tool with a
		// pattern (spec.md §8 scenario 4's wildcard-match example) needs
		// its tool scoping folded into the tree itself, not left to the
		// selector, or the pattern would fire for every tool's calls.
		if rd.Tool != "" {
			cond = pattern.And(pattern.Eq(pattern.Var("tool"), pattern.Literal(jsonString(rd.Tool))), cond)
		}
		rule.Pattern = &cond
	}

	for i, exc := range rd.Exceptions {
		cond, err := toCondition(exc.Condition)
		if err != nil {
			return policy.Rule{}, fmt.Errorf("exceptions[%d]: %w", i, err)
		}
		rule.Exceptions = append(rule.Exceptions, policy.RuleException{Condition: cond, Reason: exc.Reason})
	}

	for i, td := range rd.Transforms {
		transform, err := toTransform(td)
		if err != nil {
			return policy.Rule{}, fmt.Errorf("transforms[%d]: %w", i, err)
		}
		rule.OutputTransforms = append(rule.OutputTransforms, transform)
	}

	return rule, nil
}

func selectorFor(tool, class string, hasPattern bool) (policy.Selector, error) {
	switch {
	case tool != "" && class != "":
		return policy.Selector{}, fmt.Errorf("specify tool OR tool_class, not both")
	case tool != "":
		return policy.Selector{Kind: policy.SelectorTool, Name: tool}, nil
	case class != "":
		return policy.Selector{Kind: policy.SelectorClass, Name: class}, nil
	case hasPattern:
		// A pattern-only rule (e.g. history_contains/CEL across tools)
		// fires purely from pattern.Eval; ruleFires never consults the
		// zero-value Selector in that case.
		return policy.Selector{}, nil
	default:
		return policy.Selector{}, fmt.Errorf("rule must specify tool or tool_class unless it carries a pattern")
	}
}

func parseAction(s string) (policy.Action, error) {
	switch normalize(s) {
	case "allow":
		return policy.ActionAllow, nil
	case "deny":
		return policy.ActionDeny, nil
	case "add_taint":
		return policy.ActionAddTaint, nil
	case "remove_taint":
		return policy.ActionRemoveTaint, nil
	case "check_taint":
		return policy.ActionCheckTaint, nil
	case "block":
		return policy.ActionBlock, nil
	default:
		return 0, fmt.Errorf("unrecognized action %q", s)
	}
}

func toTransform(td TransformDoc) (policy.Transform, error) {
	switch normalize(td.Kind) {
	case "spotlight":
		return policy.Transform{Kind: policy.TransformSpotlight, JSONPaths: td.JSONPaths}, nil
	case "redact":
		return policy.Transform{Kind: policy.TransformRedact, JSONPaths: td.JSONPaths}, nil
	default:
		return policy.Transform{}, fmt.Errorf("unrecognized transform kind %q", td.Kind)
	}
}

func toCondition(cd ConditionDoc) (pattern.Condition, error) {
	switch {
	case len(cd.And) > 0:
		children, err := toConditions(cd.And)
		if err != nil {
			return pattern.Condition{}, err
		}
		return pattern.And(children...), nil

	case len(cd.Or) > 0:
		children, err := toConditions(cd.Or)
		if err != nil {
			return pattern.Condition{}, err
		}
		return pattern.Or(children...), nil

	case cd.Not != nil:
		child, err := toCondition(*cd.Not)
		if err != nil {
			return pattern.Condition{}, err
		}
		return pattern.Not(child), nil

	case cd.EQ != nil:
		lhs, err := toCondition(cd.EQ.LHS)
		if err != nil {
			return pattern.Condition{}, err
		}
		rhs, err := toCondition(cd.EQ.RHS)
		if err != nil {
			return pattern.Condition{}, err
		}
		return pattern.Eq(lhs, rhs), nil

	case cd.Var != "":
		return pattern.Var(cd.Var), nil

	case cd.Literal != nil:
		raw, err := json.Marshal(cd.Literal)
		if err != nil {
			return pattern.Condition{}, fmt.Errorf("literal: %w", err)
		}
		return pattern.Literal(raw), nil

	case cd.SessionHasTaint != "":
		return pattern.SessionHasTaint(cd.SessionHasTaint), nil

	case len(cd.ToolArgsMatch) > 0:
		return pattern.ToolArgsMatch(cd.ToolArgsMatch), nil

	case cd.HistoryContains != "":
		return pattern.HistoryContains(cd.HistoryContains), nil

	case cd.CEL != "":
		return pattern.CEL(cd.CEL), nil

	default:
		return pattern.Condition{}, fmt.Errorf("empty or unrecognized condition node")
	}
}

func toConditions(docs []ConditionDoc) ([]pattern.Condition, error) {
	out := make([]pattern.Condition, 0, len(docs))
	for i, d := range docs {
		c, err := toCondition(d)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		out = append(out, c)
	}
	return out, nil
}

func jsonString(s string) json.RawMessage {
	raw, _ := json.Marshal(s)
	return raw
}

func normalize(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}
