package httpapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r3e/taskgraph/pkg/graph"
)

func TestToTaskGraphRequiresNodes(t *testing.T) {
	req := SubmitGraphRequest{GoalSummary: "empty"}
	_, err := req.toTaskGraph()
	require.Error(t, err)
}

func TestToTaskGraphDefaultsModeToSequential(t *testing.T) {
	req := SubmitGraphRequest{
		GoalSummary: "defaulted mode",
		Nodes:       []NodeRequest{{ID: "a", AgentType: "echo"}},
	}
	g, err := req.toTaskGraph()
	require.NoError(t, err)
	assert.Equal(t, graph.ModeSequential, g.ExecutionMode)
	assert.Contains(t, g.Nodes, "a")
}

func TestToTaskGraphRejectsUnknownMode(t *testing.T) {
	req := SubmitGraphRequest{
		ExecutionMode: "bogus",
		Nodes:         []NodeRequest{{ID: "a", AgentType: "echo"}},
	}
	_, err := req.toTaskGraph()
	require.Error(t, err)
}

func TestToTaskGraphRejectsNodeMissingFields(t *testing.T) {
	req := SubmitGraphRequest{
		Nodes: []NodeRequest{{ID: "", AgentType: "echo"}},
	}
	_, err := req.toTaskGraph()
	require.Error(t, err)
}

func TestToTaskGraphRejectsUnknownDependency(t *testing.T) {
	req := SubmitGraphRequest{
		Nodes: []NodeRequest{{ID: "a", AgentType: "echo", Dependencies: []string{"missing"}}},
	}
	_, err := req.toTaskGraph()
	require.Error(t, err)
}

func TestToTaskGraphCarriesNodeFields(t *testing.T) {
	req := SubmitGraphRequest{
		ExecutionMode:    string(graph.ModeParallel),
		MaxParallelTasks: 4,
		Nodes: []NodeRequest{
			{ID: "a", AgentType: "echo", Priority: 5, RequiredPermissions: []string{"READ"}},
			{ID: "b", AgentType: "echo", Dependencies: []string{"a"}},
		},
	}
	g, err := req.toTaskGraph()
	require.NoError(t, err)
	assert.Equal(t, graph.ModeParallel, g.ExecutionMode)
	assert.Equal(t, 4, g.MaxParallelTasks)
	assert.Equal(t, 5, g.Nodes["a"].Priority)
	assert.Equal(t, []string{"READ"}, g.Nodes["a"].RequiredPermissions)
	assert.Equal(t, []string{"a"}, g.Nodes["b"].Dependencies)
}

func TestToSecurityContext(t *testing.T) {
	req := SubmitGraphRequest{
		UserID:          "u1",
		OriginIP:        "1.2.3.4",
		AllowedScopes:   []string{"READ", "EXECUTE"},
		IsAuthenticated: true,
		MFAVerified:     true,
	}
	sec := req.toSecurityContext()
	assert.Equal(t, "u1", sec.UserID)
	assert.Equal(t, "1.2.3.4", sec.OriginIP)
	assert.True(t, sec.IsAuthenticated)
	assert.True(t, sec.MFAVerified)
	assert.ElementsMatch(t, []string{"READ", "EXECUTE"}, sec.AllowedScopes)
}
