package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveInput_WholeStringReference(t *testing.T) {
	a := NewTaskNode("A", "echo")
	a.Complete(map[string]any{"count": 3})
	nodes := map[string]*TaskNode{"A": a}

	out, err := ResolveInput(map[string]any{"value": "{{A.output}}"}, nodes)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"count": 3}, out["value"])
}

func TestResolveInput_PendingDependencyFails(t *testing.T) {
	a := NewTaskNode("A", "echo")
	nodes := map[string]*TaskNode{"A": a}

	_, err := ResolveInput(map[string]any{"value": "{{A.output}}"}, nodes)
	require.Error(t, err)
}

func TestResolveInput_UnknownReferenceFails(t *testing.T) {
	_, err := ResolveInput(map[string]any{"value": "{{ghost.output}}"}, map[string]*TaskNode{})
	require.Error(t, err)
}
