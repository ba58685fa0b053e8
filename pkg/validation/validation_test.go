package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r3e/taskgraph/pkg/graph"
)

func TestParse_DefaultsToCustomForUnknownKind(t *testing.T) {
	kind, rest := Parse("output.value > 0")
	assert.Equal(t, KindCustom, kind)
	assert.Equal(t, "output.value > 0", rest)
}

func TestParse_RecognizesDeclaredKinds(t *testing.T) {
	kind, rest := Parse("range: min:0,max:10")
	assert.Equal(t, KindRange, kind)
	assert.Equal(t, "min:0,max:10", rest)
}

func TestValidate_SchemaAutoFixesMissingKeys(t *testing.T) {
	svc := NewService(true)
	node := graph.NewTaskNode("n1", "echo")
	node.ValidationRule = `schema: {"required": ["a", "b"]}`
	node.OutputData = map[string]any{"a": 1}

	result := svc.Validate(node)
	require.True(t, result.Passed)
	assert.Contains(t, result.Message, "auto-fixed")
	assert.Contains(t, node.OutputData, "b")
	assert.Nil(t, node.OutputData["b"])
}

func TestValidate_SchemaFailsWithoutAutoFix(t *testing.T) {
	svc := NewService(false)
	node := graph.NewTaskNode("n1", "echo")
	node.ValidationRule = `schema: {"required": ["a", "b"]}`
	node.OutputData = map[string]any{"a": 1}

	result := svc.Validate(node)
	assert.False(t, result.Passed)
	assert.True(t, result.AutoFixable)
}

func TestValidate_RangeClampsOnAutoFix(t *testing.T) {
	svc := NewService(true)
	node := graph.NewTaskNode("n1", "echo")
	node.ValidationRule = "range: min:0,max:10"
	node.OutputData = map[string]any{"value": 42.0}

	result := svc.Validate(node)
	require.True(t, result.Passed)
	assert.Equal(t, 10.0, node.OutputData["value"])
}

func TestValidate_TypeConvertsStringToInt(t *testing.T) {
	svc := NewService(true)
	node := graph.NewTaskNode("n1", "echo")
	node.ValidationRule = "type: int"
	node.OutputData = map[string]any{"value": "42"}

	result := svc.Validate(node)
	require.True(t, result.Passed)
	assert.Equal(t, 42, node.OutputData["value"])
}

func TestValidate_FormatRejectsWithoutAutoFix(t *testing.T) {
	svc := NewService(true)
	node := graph.NewTaskNode("n1", "echo")
	node.ValidationRule = "format: email"
	node.OutputData = map[string]any{"value": "not-an-email"}

	result := svc.Validate(node)
	assert.False(t, result.Passed)
	assert.False(t, result.AutoFixable)
}

func TestValidate_FormatAcceptsValidEmail(t *testing.T) {
	svc := NewService(true)
	node := graph.NewTaskNode("n1", "echo")
	node.ValidationRule = "format: email"
	node.OutputData = map[string]any{"value": "user@example.com"}

	result := svc.Validate(node)
	assert.True(t, result.Passed)
}

func TestValidate_CustomExpressionOverOutput(t *testing.T) {
	svc := NewService(false)
	node := graph.NewTaskNode("n1", "echo")
	node.ValidationRule = "output.count > 0"
	node.OutputData = map[string]any{"count": 3}

	result := svc.Validate(node)
	assert.True(t, result.Passed)
}

func TestValidate_CustomExpressionUsesLenHelper(t *testing.T) {
	svc := NewService(false)
	node := graph.NewTaskNode("n1", "echo")
	node.ValidationRule = `len(output.items) == 2`
	node.OutputData = map[string]any{"items": []any{"a", "b"}}

	result := svc.Validate(node)
	assert.True(t, result.Passed)
}

func TestValidate_CustomExpressionRejectingNonBoolErrors(t *testing.T) {
	svc := NewService(false)
	node := graph.NewTaskNode("n1", "echo")
	node.ValidationRule = `str(output.count)`
	node.OutputData = map[string]any{"count": 3}

	result := svc.Validate(node)
	assert.False(t, result.Passed)
}

func TestValidate_SemanticHeuristicGrading(t *testing.T) {
	svc := NewService(false)
	node := graph.NewTaskNode("n1", "echo")
	node.ValidationRule = "semantic: mentions refund policy"
	node.OutputData = map[string]any{"text": "our refund policy is generous"}

	result := svc.Validate(node)
	assert.True(t, result.Passed)
	assert.Greater(t, result.ConfidenceScore, 0.0)
}
