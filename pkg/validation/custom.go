package validation

import (
	"fmt"
	"strconv"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

// newCELEnv builds the restricted, side-effect-free environment custom
// rules evaluate in: only `output`, `task`, and the four conversion
// helpers are declared, matching the DESIGN NOTES guidance against
// evaluating arbitrary host-language expressions (spec.md §4.5).
func newCELEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("output", cel.DynType),
		cel.Variable("task", cel.DynType),
		cel.Function("len",
			cel.Overload("len_dyn", []*cel.Type{cel.DynType}, cel.IntType,
				cel.UnaryBinding(celLen)),
		),
		cel.Function("str",
			cel.Overload("str_dyn", []*cel.Type{cel.DynType}, cel.StringType,
				cel.UnaryBinding(celStr)),
		),
		cel.Function("int",
			cel.Overload("int_dyn", []*cel.Type{cel.DynType}, cel.IntType,
				cel.UnaryBinding(celInt)),
		),
		cel.Function("float",
			cel.Overload("float_dyn", []*cel.Type{cel.DynType}, cel.DoubleType,
				cel.UnaryBinding(celFloat)),
		),
	)
}

func celLen(val ref.Val) ref.Val {
	switch v := val.Value().(type) {
	case string:
		return types.Int(len(v))
	case []any:
		return types.Int(len(v))
	case map[string]any:
		return types.Int(len(v))
	default:
		return types.NewErr("len: unsupported type %T", v)
	}
}

func celStr(val ref.Val) ref.Val {
	return types.String(fmt.Sprintf("%v", val.Value()))
}

func celInt(val ref.Val) ref.Val {
	switch v := val.Value().(type) {
	case int64:
		return types.Int(v)
	case int:
		return types.Int(v)
	case float64:
		return types.Int(int64(v))
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return types.NewErr("int: %v", err)
		}
		return types.Int(n)
	default:
		return types.NewErr("int: unsupported type %T", v)
	}
}

func celFloat(val ref.Val) ref.Val {
	switch v := val.Value().(type) {
	case float64:
		return types.Double(v)
	case int64:
		return types.Double(float64(v))
	case int:
		return types.Double(float64(v))
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return types.NewErr("float: %v", err)
		}
		return types.Double(f)
	default:
		return types.NewErr("float: unsupported type %T", v)
	}
}

// evalCustom compiles and runs a custom predicate expression against
// output and task, requiring a boolean result.
func evalCustom(expr string, output, task map[string]any) (bool, error) {
	env, err := newCELEnv()
	if err != nil {
		return false, fmt.Errorf("validation: build CEL env: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return false, fmt.Errorf("validation: invalid custom rule %q: %w", expr, issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return false, fmt.Errorf("validation: plan custom rule: %w", err)
	}
	out, _, err := prg.Eval(map[string]any{"output": output, "task": task})
	if err != nil {
		return false, fmt.Errorf("validation: evaluate custom rule: %w", err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("validation: custom rule must evaluate to bool, got %T", out.Value())
	}
	return b, nil
}

func checkCustom(expr string, output, task map[string]any) Result {
	passed, err := evalCustom(expr, output, task)
	if err != nil {
		return Result{Passed: false, Message: err.Error()}
	}
	if passed {
		return Result{Passed: true, ConfidenceScore: 1}
	}
	return Result{
		Passed:   false,
		Expected: "true",
		Actual:   "false",
		Message:  fmt.Sprintf("custom expression %q evaluated false", expr),
	}
}
