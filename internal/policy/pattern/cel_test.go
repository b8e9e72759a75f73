package pattern

import "testing"

func TestEvalCELSimpleExpression(t *testing.T) {
	ctx := ctxWith("send_email", map[string]interface{}{"to": "x@external.com"})
	ok, err := Eval(CEL(`args["to"].endsWith("@external.com")`), ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected CEL expression to match")
	}
}

func TestEvalCELNonBoolResultErrors(t *testing.T) {
	ctx := ctxWith("t", nil)
	_, err := Eval(CEL(`"not a bool"`), ctx)
	if err == nil {
		t.Fatal("expected error for non-bool CEL result")
	}
}

func TestEvalCELCompileErrorSurfaces(t *testing.T) {
	ctx := ctxWith("t", nil)
	_, err := Eval(CEL(`this is not valid cel (((`), ctx)
	if err == nil {
		t.Fatal("expected compile error")
	}
}
