package policy

import (
	"testing"

	"github.com/mcpgate/mcpgate/internal/policy/pattern"
	"github.com/mcpgate/mcpgate/internal/taint"
)

func TestStaticDenyAlwaysWins(t *testing.T) {
	def := &Definition{
		StaticRules: map[string]StaticVerdict{"delete_db": StaticDeny},
	}
	eval := NewEvaluator(def)

	dec, err := eval.Evaluate(Input{Tool: "delete_db", CurrentTaints: taint.NewSet()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dec.Kind != DecisionDeny || dec.ErrorCode != -32000 {
		t.Fatalf("expected static deny, got %+v", dec)
	}
}

func TestImplicitDenyWhenStaticRulesPresentButToolAbsent(t *testing.T) {
	def := &Definition{
		StaticRules: map[string]StaticVerdict{"read_file": StaticAllow},
	}
	eval := NewEvaluator(def)

	dec, err := eval.Evaluate(Input{Tool: "unknown_tool", CurrentTaints: taint.NewSet()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dec.Kind != DecisionDeny {
		t.Fatalf("expected implicit deny for tool absent from static rules, got %+v", dec)
	}
}

func TestPermissiveWhenNoStaticRulesAtAll(t *testing.T) {
	def := &Definition{}
	eval := NewEvaluator(def)

	dec, err := eval.Evaluate(Input{Tool: "anything", CurrentTaints: taint.NewSet()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dec.Kind != DecisionAllow {
		t.Fatalf("expected permissive allow with empty static rules, got %+v", dec)
	}
}

func TestTaintAccumulationThenBlock(t *testing.T) {
	def := &Definition{
		TaintRules: []Rule{
			{Selector: Selector{Kind: SelectorTool, Name: "read_secret"}, Action: ActionAddTaint, Tag: TagPrivateRead},
			{Selector: Selector{Kind: SelectorTool, Name: "http_post"}, Action: ActionCheckTaint, ForbiddenTags: []string{TagPrivateRead}, ErrorMessage: "exfiltration blocked"},
		},
	}
	eval := NewEvaluator(def)

	dec, err := eval.Evaluate(Input{Tool: "read_secret", CurrentTaints: taint.NewSet()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dec.Kind != DecisionAllowWithTransforms {
		t.Fatalf("expected AllowWithTransforms carrying a staged taint, got %+v", dec)
	}
	sessionTaints := taint.NewSet(dec.TaintsToAdd...)
	if !sessionTaints.Has(TagPrivateRead) {
		t.Fatalf("expected PRIVATE_READ staged, got %+v", dec.TaintsToAdd)
	}

	// Simulate the commit step applying the staged taint before the next call.
	dec2, err := eval.Evaluate(Input{Tool: "http_post", CurrentTaints: sessionTaints})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dec2.Kind != DecisionDeny || dec2.ErrorCode != -32000 {
		t.Fatalf("expected deny due to forbidden taint, got %+v", dec2)
	}
}

func TestWildcardPatternRule(t *testing.T) {
	cond := pattern.ToolArgsMatch(map[string]string{"to": "*@external.com"})
	def := &Definition{
		TaintRules: []Rule{
			{Pattern: &cond, Action: ActionBlock, ErrorMessage: "external send blocked"},
		},
	}
	eval := NewEvaluator(def)

	allowed, err := eval.Evaluate(Input{
		Tool:          "send_email",
		CurrentTaints: taint.NewSet(),
		Args:          map[string]interface{}{"to": "user@company.com"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if allowed.Kind != DecisionAllow {
		t.Fatalf("expected allow for internal recipient, got %+v", allowed)
	}

	denied, err := eval.Evaluate(Input{
		Tool:          "send_email",
		CurrentTaints: taint.NewSet(),
		Args:          map[string]interface{}{"to": "x@external.com"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if denied.Kind != DecisionDeny {
		t.Fatalf("expected deny for external recipient, got %+v", denied)
	}
}

func TestExceptionSuppressesRule(t *testing.T) {
	def := &Definition{
		TaintRules: []Rule{
			{
				Selector:      Selector{Kind: SelectorTool, Name: "http_post"},
				Action:        ActionCheckTaint,
				ForbiddenTags: []string{TagPrivateRead},
				ErrorMessage:  "blocked",
				Exceptions: []RuleException{
					{Condition: pattern.HistoryContains("admin_override")},
				},
			},
		},
	}
	eval := NewEvaluator(def)

	dec, err := eval.Evaluate(Input{
		Tool:          "http_post",
		CurrentTaints: taint.NewSet(TagPrivateRead),
		History:       []pattern.HistoryEntry{{Tool: "admin_override"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dec.Kind != DecisionAllow {
		t.Fatalf("expected exception to suppress the block, got %+v", dec)
	}
}

func TestLethalTrifectaGuard(t *testing.T) {
	def := &Definition{
		ProtectLethalTrifecta: true,
		TaintRules: []Rule{
			{Selector: Selector{Kind: SelectorTool, Name: "http_post"}, Action: ActionAddTaint, Tag: TagExternalWrite},
		},
	}
	eval := NewEvaluator(def)

	dec, err := eval.Evaluate(Input{
		Tool:          "http_post",
		CurrentTaints: taint.NewSet(TagPrivateRead, TagUntrustedRead),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dec.Kind != DecisionDeny || dec.Reason != "lethal trifecta" {
		t.Fatalf("expected lethal trifecta denial, got %+v", dec)
	}
}

func TestClassSelectorMatches(t *testing.T) {
	def := &Definition{
		TaintRules: []Rule{
			{Selector: Selector{Kind: SelectorClass, Name: "CONSEQUENTIAL_WRITE"}, Action: ActionAddTaint, Tag: TagExternalWrite},
		},
	}
	eval := NewEvaluator(def)

	dec, err := eval.Evaluate(Input{
		Tool:          "write_to_s3",
		ToolClasses:   []string{"CONSEQUENTIAL_WRITE"},
		CurrentTaints: taint.NewSet(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dec.Kind != DecisionAllowWithTransforms {
		t.Fatalf("expected class selector to match and stage a taint, got %+v", dec)
	}
}
