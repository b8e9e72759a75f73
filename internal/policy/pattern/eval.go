package pattern

import (
	"encoding/json"
	"fmt"
)

// Error marks a failure to evaluate a condition (malformed literal,
// type mismatch CEL can't coerce, etc).
type Error struct {
	Condition Kind
	Err       error
}

func (e *Error) Error() string { return fmt.Sprintf("pattern: %v: %v", e.Condition, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Eval evaluates a condition tree against ctx. AND/OR short-circuit; an
// empty AND is true, an empty OR is false, matching the spec.
func Eval(cond Condition, ctx Context) (bool, error) {
	switch cond.Kind {
	case KindAnd:
		for _, child := range cond.Children {
			ok, err := Eval(child, ctx)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil

	case KindOr:
		for _, child := range cond.Children {
			ok, err := Eval(child, ctx)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil

	case KindNot:
		if cond.Child == nil {
			return false, &Error{Condition: KindNot, Err: fmt.Errorf("NOT with no child")}
		}
		ok, err := Eval(*cond.Child, ctx)
		if err != nil {
			return false, err
		}
		return !ok, nil

	case KindEQ:
		if cond.LHS == nil || cond.RHS == nil {
			return false, &Error{Condition: KindEQ, Err: fmt.Errorf("EQ missing operand")}
		}
		lhs, err := resolve(*cond.LHS, ctx)
		if err != nil {
			return false, err
		}
		rhs, err := resolve(*cond.RHS, ctx)
		if err != nil {
			return false, err
		}
		return jsonValuesEqual(lhs, rhs), nil

	case KindSessionHasTaint:
		return ctx.CurrentTaints.Has(cond.Tag), nil

	case KindToolArgsMatch:
		for field, globPattern := range cond.ArgsMatch {
			val, ok := ctx.Args[field]
			if !ok {
				return false, nil
			}
			s, ok := val.(string)
			if !ok {
				return false, nil
			}
			if !globMatch(globPattern, s) {
				return false, nil
			}
		}
		return true, nil

	case KindHistoryContains:
		for _, h := range ctx.History {
			if h.Tool == cond.ToolName {
				return true, nil
			}
		}
		return false, nil

	case KindVar, KindLiteral:
		// These only make sense nested under EQ; evaluating them
		// directly as a boolean is a policy authoring error.
		return false, &Error{Condition: cond.Kind, Err: fmt.Errorf("cannot evaluate %v as a standalone boolean condition", cond.Kind)}

	case KindCEL:
		return evalCEL(cond.Expression, ctx)

	default:
		return false, &Error{Condition: cond.Kind, Err: fmt.Errorf("unknown condition kind")}
	}
}

// resolve returns the value a VAR or LITERAL node denotes, for use inside EQ.
func resolve(cond Condition, ctx Context) (interface{}, error) {
	switch cond.Kind {
	case KindVar:
		env := ctx.Env()
		val, ok := env[cond.Name]
		if !ok {
			return nil, nil
		}
		return val, nil
	case KindLiteral:
		if len(cond.Value) == 0 {
			return nil, nil
		}
		var v interface{}
		if err := json.Unmarshal(cond.Value, &v); err != nil {
			return nil, &Error{Condition: KindLiteral, Err: err}
		}
		return v, nil
	default:
		return nil, &Error{Condition: cond.Kind, Err: fmt.Errorf("EQ operand must be VAR or LITERAL, got %v", cond.Kind)}
	}
}

// jsonValuesEqual implements EQ's strict type equality with numeric
// coercion: float64, int, int64 and json.Number values compare by their
// float64 conversion, with no range check.
func jsonValuesEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	af, aIsNum := toFloat(a)
	bf, bIsNum := toFloat(b)
	if aIsNum && bIsNum {
		return af == bf
	}

	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case []interface{}:
		bv, ok := b.([]interface{})
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !jsonValuesEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	case map[string]interface{}:
		bv, ok := b.(map[string]interface{})
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			bvv, ok := bv[k]
			if !ok || !jsonValuesEqual(v, bvv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
