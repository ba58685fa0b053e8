package graph

import (
	"fmt"
	"regexp"
)

// refPattern matches `{{task_id.output}}` placeholders inside a string leaf
// of input_data, mirroring the teacher's `{{task_id.result}}` convention.
var refPattern = regexp.MustCompile(`\{\{([a-zA-Z0-9_\-]+)\.output\}\}`)

// ResolveInput substitutes `{{dep_id.output}}` references found in string
// leaves of a node's InputData with the referenced node's OutputData,
// returning a fresh map. It fails if a reference points at a node that is
// not yet SUCCESS, preserving the happens-before edge the scheduler relies on.
func ResolveInput(input map[string]any, nodes map[string]*TaskNode) (map[string]any, error) {
	resolved := make(map[string]any, len(input))
	for k, v := range input {
		rv, err := resolveValue(v, nodes)
		if err != nil {
			return nil, err
		}
		resolved[k] = rv
	}
	return resolved, nil
}

func resolveValue(v any, nodes map[string]*TaskNode) (any, error) {
	switch val := v.(type) {
	case string:
		return resolveString(val, nodes)
	case map[string]any:
		return ResolveInput(val, nodes)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			rv, err := resolveValue(item, nodes)
			if err != nil {
				return nil, err
			}
			out[i] = rv
		}
		return out, nil
	default:
		return v, nil
	}
}

func resolveString(s string, nodes map[string]*TaskNode) (any, error) {
	matches := refPattern.FindStringSubmatch(s)
	if matches != nil && matches[0] == s {
		// Whole-string reference: return the referenced output verbatim
		// (preserves non-string types instead of stringifying them).
		return lookupOutput(matches[1], nodes)
	}

	var outerErr error
	out := refPattern.ReplaceAllStringFunc(s, func(match string) string {
		sub := refPattern.FindStringSubmatch(match)
		val, err := lookupOutput(sub[1], nodes)
		if err != nil {
			outerErr = err
			return match
		}
		return fmt.Sprintf("%v", val)
	})
	if outerErr != nil {
		return nil, outerErr
	}
	return out, nil
}

func lookupOutput(depID string, nodes map[string]*TaskNode) (any, error) {
	dep, ok := nodes[depID]
	if !ok {
		return nil, fmt.Errorf("context injection: task %q does not exist", depID)
	}
	if dep.GetStatus() != StatusSuccess {
		return nil, fmt.Errorf("context injection: task %q is not SUCCESS (status=%s)", depID, dep.GetStatus())
	}
	return dep.OutputData, nil
}
