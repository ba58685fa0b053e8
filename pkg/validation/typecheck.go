package validation

import (
	"fmt"
	"strconv"
)

// valueKey is the conventional output_data key the type/range/format rules
// check, since those rules validate a single scalar rather than the whole
// output mapping (an Open Question decision — see DESIGN.md).
const valueKey = "value"

func checkType(rest string, output map[string]any) Result {
	v, ok := output[valueKey]
	if !ok {
		return Result{Passed: false, Expected: rest, Message: fmt.Sprintf("output has no %q field", valueKey)}
	}
	actual := typeNameOf(v)
	if actual == rest {
		return Result{Passed: true, ConfidenceScore: 1}
	}
	return Result{
		Passed:      false,
		Expected:    rest,
		Actual:      actual,
		Message:     fmt.Sprintf("expected type %s, got %s", rest, actual),
		AutoFixable: convertibleTo(v, rest),
	}
}

func fixType(rest string, output map[string]any) map[string]any {
	v, ok := output[valueKey]
	if !ok {
		return output
	}
	converted, ok := convert(v, rest)
	if !ok {
		return output
	}
	fixed := make(map[string]any, len(output))
	for k, val := range output {
		fixed[k] = val
	}
	fixed[valueKey] = converted
	return fixed
}

func typeNameOf(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case int, int64, float64:
		if _, ok := v.(float64); ok {
			return "float"
		}
		return "int"
	case bool:
		return "bool"
	case []any:
		return "list"
	case map[string]any:
		return "dict"
	default:
		return "object"
	}
}

func convertibleTo(v any, target string) bool {
	_, ok := convert(v, target)
	return ok
}

func convert(v any, target string) (any, bool) {
	switch target {
	case "string":
		return fmt.Sprintf("%v", v), true
	case "int":
		switch t := v.(type) {
		case int:
			return t, true
		case int64:
			return int(t), true
		case float64:
			return int(t), true
		case string:
			n, err := strconv.Atoi(t)
			if err != nil {
				return nil, false
			}
			return n, true
		case bool:
			if t {
				return 1, true
			}
			return 0, true
		}
	case "float":
		switch t := v.(type) {
		case float64:
			return t, true
		case int:
			return float64(t), true
		case int64:
			return float64(t), true
		case string:
			f, err := strconv.ParseFloat(t, 64)
			if err != nil {
				return nil, false
			}
			return f, true
		}
	case "bool":
		switch t := v.(type) {
		case bool:
			return t, true
		case string:
			b, err := strconv.ParseBool(t)
			if err != nil {
				return nil, false
			}
			return b, true
		}
	case "list":
		if l, ok := v.([]any); ok {
			return l, true
		}
	case "dict", "object":
		if m, ok := v.(map[string]any); ok {
			return m, true
		}
	}
	return nil, false
}
