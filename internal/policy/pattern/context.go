package pattern

import "github.com/mcpgate/mcpgate/internal/taint"

// HistoryEntry records one tool invocation in a session's bounded history.
type HistoryEntry struct {
	Tool      string
	Classes   []string
	Timestamp int64
}

// Context carries everything a condition evaluation can reference:
// {history, tool, classes, current_taints, args} in spec terms.
type Context struct {
	History       []HistoryEntry
	Tool          string
	Classes       []string
	CurrentTaints taint.Set
	Args          map[string]interface{}
}

// Env builds the flat VAR lookup environment: {tool, classes, ...args}.
// Args fields take precedence only when they don't collide with the two
// reserved names; in practice policies should avoid naming an argument
// "tool" or "classes".
func (c Context) Env() map[string]interface{} {
	env := make(map[string]interface{}, len(c.Args)+2)
	for k, v := range c.Args {
		env[k] = v
	}
	env["tool"] = c.Tool
	classes := make([]interface{}, len(c.Classes))
	for i, cl := range c.Classes {
		classes[i] = cl
	}
	env["classes"] = classes
	return env
}
