package validation

import "strings"

// SemanticGrader grades free-form output against a semantic rule string,
// returning a confidence in [0, 1]. Implementations can wrap an LLM or any
// other judge; none is wired by default (spec.md §4.5: "implementation-
// defined ... used for LLM-graded checks").
type SemanticGrader interface {
	Grade(rule string, output map[string]any) (confidence float64, message string)
}

// HeuristicGrader is the dependency-free default: it checks that the
// rule's keywords appear somewhere in the stringified output, giving a
// coarse but deterministic confidence signal when no real judge is wired.
type HeuristicGrader struct{}

func (HeuristicGrader) Grade(rule string, output map[string]any) (float64, string) {
	haystack := strings.ToLower(flattenToString(output))
	keywords := strings.Fields(strings.ToLower(rule))
	if len(keywords) == 0 {
		return 0, "empty semantic rule"
	}
	hits := 0
	for _, kw := range keywords {
		if strings.Contains(haystack, kw) {
			hits++
		}
	}
	confidence := float64(hits) / float64(len(keywords))
	return confidence, "heuristic keyword-overlap grading"
}

func flattenToString(output map[string]any) string {
	var sb strings.Builder
	for k, v := range output {
		sb.WriteString(k)
		sb.WriteString(" ")
		sb.WriteString(toStringAny(v))
		sb.WriteString(" ")
	}
	return sb.String()
}

func toStringAny(v any) string {
	switch t := v.(type) {
	case string:
		return t
	default:
		return ""
	}
}

func checkSemantic(rest string, output map[string]any, grader SemanticGrader) Result {
	if grader == nil {
		grader = HeuristicGrader{}
	}
	confidence, message := grader.Grade(rest, output)
	return Result{
		Passed:          confidence >= 0.5,
		ConfidenceScore: confidence,
		Message:         message,
	}
}
