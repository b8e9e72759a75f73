package policy

import (
	"testing"

	"github.com/mcpgate/mcpgate/internal/policy/pattern"
)

func TestValidateRejectsAddTaintWithoutTag(t *testing.T) {
	def := &Definition{TaintRules: []Rule{{Selector: Selector{Kind: SelectorTool, Name: "x"}, Action: ActionAddTaint}}}
	if err := def.Validate(); err == nil {
		t.Fatal("expected error for ADD_TAINT rule missing a tag")
	}
}

func TestValidateRejectsCheckTaintWithoutForbiddenTags(t *testing.T) {
	def := &Definition{TaintRules: []Rule{{Selector: Selector{Kind: SelectorTool, Name: "x"}, Action: ActionCheckTaint}}}
	if err := def.Validate(); err == nil {
		t.Fatal("expected error for CHECK_TAINT rule missing forbidden_tags")
	}
}

func TestValidateRejectsToolArgsMatchOnClassSelector(t *testing.T) {
	cond := pattern.ToolArgsMatch(map[string]string{"to": "*@external.com"})
	def := &Definition{TaintRules: []Rule{{
		Selector: Selector{Kind: SelectorClass, Name: "COMMS"},
		Action:   ActionBlock,
		Pattern:  &cond,
	}}}
	if err := def.Validate(); err == nil {
		t.Fatal("expected error for tool_args_match on a class-scoped rule")
	}
}

func TestValidateAllowsToolArgsMatchOnExactToolSelector(t *testing.T) {
	cond := pattern.ToolArgsMatch(map[string]string{"to": "*@external.com"})
	def := &Definition{TaintRules: []Rule{{
		Selector: Selector{Kind: SelectorTool, Name: "send_email"},
		Action:   ActionBlock,
		Pattern:  &cond,
	}}}
	if err := def.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateAcceptsWellFormedDefinition(t *testing.T) {
	def := &Definition{TaintRules: []Rule{
		{Selector: Selector{Kind: SelectorTool, Name: "read_secret"}, Action: ActionAddTaint, Tag: TagPrivateRead},
	}}
	if err := def.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
