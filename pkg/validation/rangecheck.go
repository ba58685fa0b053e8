package validation

import (
	"fmt"
	"strconv"
	"strings"
)

// RangeSpec is the parsed form of a "range:" rule's "min:A,max:B" syntax.
type RangeSpec struct {
	Min float64
	Max float64
}

func parseRangeSpec(rest string) (RangeSpec, error) {
	var spec RangeSpec
	for _, part := range strings.Split(rest, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), ":", 2)
		if len(kv) != 2 {
			return spec, fmt.Errorf("malformed range clause: %q", part)
		}
		val, err := strconv.ParseFloat(strings.TrimSpace(kv[1]), 64)
		if err != nil {
			return spec, fmt.Errorf("malformed range bound: %q", part)
		}
		switch strings.TrimSpace(kv[0]) {
		case "min":
			spec.Min = val
		case "max":
			spec.Max = val
		default:
			return spec, fmt.Errorf("unknown range key: %q", kv[0])
		}
	}
	return spec, nil
}

func checkRange(rest string, output map[string]any) Result {
	spec, err := parseRangeSpec(rest)
	if err != nil {
		return Result{Passed: false, Message: err.Error()}
	}
	v, ok := output[valueKey]
	if !ok {
		return Result{Passed: false, Message: fmt.Sprintf("output has no %q field", valueKey)}
	}
	n, ok := toFloat(v)
	if !ok {
		return Result{Passed: false, Message: fmt.Sprintf("%q is not numeric", valueKey)}
	}
	if n >= spec.Min && n <= spec.Max {
		return Result{Passed: true, ConfidenceScore: 1}
	}
	return Result{
		Passed:      false,
		Expected:    fmt.Sprintf("[%v, %v]", spec.Min, spec.Max),
		Actual:      fmt.Sprintf("%v", n),
		Message:     "value out of range",
		AutoFixable: true,
	}
}

// fixRange clamps the value to the nearest bound, per spec.md §4.5.
func fixRange(rest string, output map[string]any) map[string]any {
	spec, err := parseRangeSpec(rest)
	if err != nil {
		return output
	}
	v, ok := output[valueKey]
	if !ok {
		return output
	}
	n, ok := toFloat(v)
	if !ok {
		return output
	}
	clamped := n
	if clamped < spec.Min {
		clamped = spec.Min
	}
	if clamped > spec.Max {
		clamped = spec.Max
	}
	fixed := make(map[string]any, len(output))
	for k, val := range output {
		fixed[k] = val
	}
	fixed[valueKey] = clamped
	return fixed
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	default:
		return 0, false
	}
}
