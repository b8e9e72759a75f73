package pattern

import (
	"encoding/json"
	"testing"

	"github.com/mcpgate/mcpgate/internal/taint"
)

func ctxWith(tool string, args map[string]interface{}, taints ...string) Context {
	return Context{
		Tool:          tool,
		Args:          args,
		CurrentTaints: taint.NewSet(taints...),
	}
}

func TestEvalAndOrShortCircuit(t *testing.T) {
	if ok, err := Eval(And(), Context{}); err != nil || !ok {
		t.Fatalf("empty AND should be true, got %v %v", ok, err)
	}
	if ok, err := Eval(Or(), Context{}); err != nil || ok {
		t.Fatalf("empty OR should be false, got %v %v", ok, err)
	}

	truthy := SessionHasTaint("X")
	falsy := SessionHasTaint("Y")
	ctx := ctxWith("t", nil, "X")

	if ok, _ := Eval(And(truthy, falsy), ctx); ok {
		t.Fatal("AND with a false child should be false")
	}
	if ok, _ := Eval(Or(falsy, truthy), ctx); !ok {
		t.Fatal("OR with a true child should be true")
	}
}

func TestEvalNot(t *testing.T) {
	ctx := ctxWith("t", nil)
	ok, err := Eval(Not(SessionHasTaint("X")), ctx)
	if err != nil || !ok {
		t.Fatalf("NOT of false should be true, got %v %v", ok, err)
	}
}

func TestEvalEQStrictTypesAndNumericCoercion(t *testing.T) {
	ctx := ctxWith("read_file", map[string]interface{}{"count": float64(3)})

	ok, err := Eval(Eq(Var("count"), Literal(json.RawMessage(`3`))), ctx)
	if err != nil || !ok {
		t.Fatalf("int literal should coerce to match float arg, got %v %v", ok, err)
	}

	ok, err = Eval(Eq(Var("count"), Literal(json.RawMessage(`"3"`))), ctx)
	if err != nil || ok {
		t.Fatalf("string literal should not equal numeric var, got %v %v", ok, err)
	}

	ok, err = Eval(Eq(Var("tool"), Literal(json.RawMessage(`"read_file"`))), ctx)
	if err != nil || !ok {
		t.Fatalf("tool var should equal its literal name, got %v %v", ok, err)
	}
}

func TestEvalSessionHasTaint(t *testing.T) {
	ctx := ctxWith("t", nil, "PRIVATE_READ")
	ok, _ := Eval(SessionHasTaint("PRIVATE_READ"), ctx)
	if !ok {
		t.Fatal("expected PRIVATE_READ to be present")
	}
	ok, _ = Eval(SessionHasTaint("EXTERNAL_WRITE"), ctx)
	if ok {
		t.Fatal("did not expect EXTERNAL_WRITE to be present")
	}
}

func TestEvalToolArgsMatch(t *testing.T) {
	allowCtx := ctxWith("send_email", map[string]interface{}{"to": "user@company.com"})
	denyCtx := ctxWith("send_email", map[string]interface{}{"to": "x@external.com"})
	cond := ToolArgsMatch(map[string]string{"to": "*@external.com"})

	if ok, _ := Eval(cond, allowCtx); ok {
		t.Fatal("internal recipient should not match external glob")
	}
	if ok, _ := Eval(cond, denyCtx); !ok {
		t.Fatal("external recipient should match glob")
	}
}

func TestEvalToolArgsMatchMissingFieldIsFalse(t *testing.T) {
	ctx := ctxWith("send_email", map[string]interface{}{})
	cond := ToolArgsMatch(map[string]string{"to": "*@external.com"})
	if ok, _ := Eval(cond, ctx); ok {
		t.Fatal("missing field should not match")
	}
}

func TestEvalHistoryContains(t *testing.T) {
	ctx := Context{History: []HistoryEntry{{Tool: "read_secret"}, {Tool: "list_files"}}}
	if ok, _ := Eval(HistoryContains("read_secret"), ctx); !ok {
		t.Fatal("expected history_contains to find read_secret")
	}
	if ok, _ := Eval(HistoryContains("delete_db"), ctx); ok {
		t.Fatal("did not expect delete_db in history")
	}
}
