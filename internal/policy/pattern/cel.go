package pattern

import (
	"context"
	"fmt"
	"time"

	"github.com/google/cel-go/cel"
)

// celCostLimit bounds the runtime cost of a single CEL program.
const celCostLimit = 100_000

// celEvalTimeout bounds how long a single CEL evaluation may run.
const celEvalTimeout = 2 * time.Second

var celEnv *cel.Env

func init() {
	env, err := cel.NewEnv(
		cel.Variable("tool", cel.StringType),
		cel.Variable("classes", cel.ListType(cel.StringType)),
		cel.Variable("args", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("taints", cel.ListType(cel.StringType)),
	)
	if err != nil {
		panic(fmt.Sprintf("pattern: building CEL environment: %v", err))
	}
	celEnv = env
}

// evalCEL compiles and runs an additive CEL expression as a boolean
// condition, giving power users richer expressions than the built-in
// tree grammar without displacing it as the primary mechanism.
func evalCEL(expression string, ctx Context) (bool, error) {
	ast, issues := celEnv.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return false, &Error{Condition: KindCEL, Err: fmt.Errorf("compiling expression: %w", issues.Err())}
	}

	prg, err := celEnv.Program(ast, cel.EvalOptions(cel.OptOptimize), cel.CostLimit(celCostLimit))
	if err != nil {
		return false, &Error{Condition: KindCEL, Err: fmt.Errorf("building program: %w", err)}
	}

	evalCtx, cancel := context.WithTimeout(context.Background(), celEvalTimeout)
	defer cancel()

	out, _, err := prg.ContextEval(evalCtx, map[string]interface{}{
		"tool":    ctx.Tool,
		"classes": ctx.Classes,
		"args":    ctx.Args,
		"taints":  ctx.CurrentTaints.ToSlice(),
	})
	if err != nil {
		return false, &Error{Condition: KindCEL, Err: fmt.Errorf("evaluating expression: %w", err)}
	}

	b, ok := out.Value().(bool)
	if !ok {
		return false, &Error{Condition: KindCEL, Err: fmt.Errorf("expression did not evaluate to a bool, got %T", out.Value())}
	}
	return b, nil
}
