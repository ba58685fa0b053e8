package validation

import (
	"fmt"

	"github.com/r3e/taskgraph/pkg/graph"
)

// Service evaluates a node's validation_rule and, when enabled, mutates
// node.OutputData in place to correct auto-fixable failures.
type Service struct {
	AutoFixEnabled bool
	SemanticGrader SemanticGrader
}

func NewService(autoFixEnabled bool) *Service {
	return &Service{AutoFixEnabled: autoFixEnabled}
}

// taskView is the restricted "task" binding custom expressions can read.
func taskView(node *graph.TaskNode) map[string]any {
	return map[string]any{
		"id":         node.ID,
		"agent_type": node.AgentType,
		"tags":       node.Tags,
		"priority":   node.Priority,
	}
}

// Validate parses node.ValidationRule and checks it against the node's
// output, applying auto-fix in place when enabled and the result allows it.
func (s *Service) Validate(node *graph.TaskNode) Result {
	if node.ValidationRule == "" {
		return Result{Passed: true, ConfidenceScore: 1}
	}
	kind, rest := Parse(node.ValidationRule)
	output := node.OutputData
	if output == nil {
		output = map[string]any{}
	}

	var result Result
	switch kind {
	case KindSchema:
		result = checkSchema(rest, output)
	case KindType:
		result = checkType(rest, output)
	case KindRange:
		result = checkRange(rest, output)
	case KindFormat:
		result = checkFormat(rest, output)
	case KindSemantic:
		result = checkSemantic(rest, output, s.SemanticGrader)
	default:
		result = checkCustom(rest, output, taskView(node))
	}

	if !result.Passed && result.AutoFixable && s.AutoFixEnabled {
		fixed := s.autoFix(kind, rest, output)
		node.OutputData = fixed
		result.Passed = true
		result.Message = fmt.Sprintf("%s (auto-fixed)", result.Message)
	}
	return result
}

func (s *Service) autoFix(kind Kind, rest string, output map[string]any) map[string]any {
	switch kind {
	case KindSchema:
		return fixSchema(rest, output)
	case KindType:
		return fixType(rest, output)
	case KindRange:
		return fixRange(rest, output)
	default:
		return output
	}
}
