// Package pattern implements the declarative LogicCondition tree the
// policy evaluator uses both for rule-trigger patterns and for rule
// exception clauses. Evaluation is pure and stateless: the same
// (condition, context) pair always yields the same result.
package pattern

import "encoding/json"

// Kind discriminates the LogicCondition variants.
type Kind int

const (
	KindAnd Kind = iota
	KindOr
	KindNot
	KindEQ
	KindVar
	KindLiteral
	KindSessionHasTaint
	KindToolArgsMatch
	KindHistoryContains
	KindCEL
)

// Condition is a node in the recursive pattern tree. Exactly the fields
// relevant to Kind are populated; the rest are zero.
type Condition struct {
	Kind Kind

	// AND / OR
	Children []Condition

	// NOT
	Child *Condition

	// EQ
	LHS *Condition
	RHS *Condition

	// VAR
	Name string

	// LITERAL
	Value json.RawMessage

	// session_has_taint
	Tag string

	// tool_args_match — field -> glob pattern
	ArgsMatch map[string]string

	// history_contains
	ToolName string

	// CEL — an optional additive expression, evaluated via cel-go when
	// present instead of the tree semantics above.
	Expression string
}

// And builds an AND node.
func And(children ...Condition) Condition { return Condition{Kind: KindAnd, Children: children} }

// Or builds an OR node.
func Or(children ...Condition) Condition { return Condition{Kind: KindOr, Children: children} }

// Not builds a NOT node.
func Not(child Condition) Condition { return Condition{Kind: KindNot, Child: &child} }

// Eq builds an EQ node.
func Eq(lhs, rhs Condition) Condition { return Condition{Kind: KindEQ, LHS: &lhs, RHS: &rhs} }

// Var builds a VAR node.
func Var(name string) Condition { return Condition{Kind: KindVar, Name: name} }

// Literal builds a LITERAL node from a raw JSON value.
func Literal(raw json.RawMessage) Condition { return Condition{Kind: KindLiteral, Value: raw} }

// SessionHasTaint builds a session_has_taint node.
func SessionHasTaint(tag string) Condition { return Condition{Kind: KindSessionHasTaint, Tag: tag} }

// ToolArgsMatch builds a tool_args_match node.
func ToolArgsMatch(fields map[string]string) Condition {
	return Condition{Kind: KindToolArgsMatch, ArgsMatch: fields}
}

// HistoryContains builds a history_contains node.
func HistoryContains(toolName string) Condition {
	return Condition{Kind: KindHistoryContains, ToolName: toolName}
}

// CEL builds a node that defers to a compiled CEL expression.
func CEL(expression string) Condition { return Condition{Kind: KindCEL, Expression: expression} }
