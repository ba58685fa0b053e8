package graph

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildLinear() *TaskGraph {
	g := New("two node chain", ModeSequential)
	a := NewTaskNode("A", "echo")
	b := NewTaskNode("B", "echo")
	b.Dependencies = []string{"A"}
	g.AddNode(a)
	g.AddNode(b)
	return g
}

func TestValidate_CycleDetected(t *testing.T) {
	g := New("cyclic", ModeSequential)
	a := NewTaskNode("A", "echo")
	b := NewTaskNode("B", "echo")
	a.Dependencies = []string{"B"}
	b.Dependencies = []string{"A"}
	g.AddNode(a)
	g.AddNode(b)

	err := g.Validate()
	require.Error(t, err)
}

func TestValidate_UnknownDependency(t *testing.T) {
	g := New("dangling", ModeSequential)
	a := NewTaskNode("A", "echo")
	a.Dependencies = []string{"ghost"}
	g.AddNode(a)

	require.Error(t, g.Validate())
}

func TestReadySet_RespectsDependencies(t *testing.T) {
	g := buildLinear()
	ready := g.ReadySet()
	require.Len(t, ready, 1)
	assert.Equal(t, "A", ready[0].ID)

	g.Nodes["A"].Complete(map[string]any{"ok": true})
	ready = g.ReadySet()
	require.Len(t, ready, 1)
	assert.Equal(t, "B", ready[0].ID)
}

func TestReadySet_PriorityOrder(t *testing.T) {
	g := New("fanout", ModeParallel)
	low := NewTaskNode("low", "echo")
	low.Priority = 1
	high := NewTaskNode("high", "echo")
	high.Priority = 10
	g.AddNode(low)
	g.AddNode(high)

	ready := g.ReadySet()
	require.Len(t, ready, 2)
	assert.Equal(t, "high", ready[0].ID)
	assert.Equal(t, "low", ready[1].ID)
}

func TestCascadeSkip(t *testing.T) {
	g := buildLinear()
	g.Nodes["A"].SetStatus(StatusFailed)
	g.CascadeSkip("A")
	assert.Equal(t, StatusCancelled, g.Nodes["B"].GetStatus())
}

func TestAllTerminal(t *testing.T) {
	g := buildLinear()
	assert.False(t, g.AllTerminal())
	g.Nodes["A"].Complete(nil)
	g.Nodes["B"].Complete(nil)
	assert.True(t, g.AllTerminal())
}

// TestStatus_MonotonicUntilTerminal checks that once a node reaches a
// terminal status it never flips back to a non-terminal one through the
// node's own transition methods.
func TestStatus_MonotonicUntilTerminal(t *testing.T) {
	n := NewTaskNode("A", "echo")
	require.False(t, n.GetStatus().IsTerminal())

	n.MarkRunning()
	require.False(t, n.GetStatus().IsTerminal())

	n.Complete(map[string]any{"ok": true})
	require.True(t, n.GetStatus().IsTerminal())
	assert.Equal(t, StatusSuccess, n.GetStatus())
}

// TestAppendError_RetriesBoundedByMaxRetries is a property test over the
// retry budget: AppendError must return true exactly MaxRetries times
// before the node lands on FAILED for good.
func TestAppendError_RetriesBoundedByMaxRetries(t *testing.T) {
	n := NewTaskNode("A", "echo")
	n.RetryConfig.MaxRetries = 3

	var retried int
	for i := 0; i < 10; i++ {
		if n.AppendError("boom") {
			retried++
			continue
		}
		break
	}

	assert.Equal(t, 3, retried)
	assert.Equal(t, StatusFailed, n.GetStatus())
	assert.Equal(t, 3, n.Retries)
}

// TestDependency_DownstreamStartsAfterUpstreamCompletes is the
// dependency-respect invariant: a node only enters ReadySet, and so can
// only be marked running, once every dependency has a CompletedAt at or
// before the downstream node's own StartedAt.
func TestDependency_DownstreamStartsAfterUpstreamCompletes(t *testing.T) {
	g := buildLinear()

	a := g.Nodes["A"]
	a.MarkRunning()
	time.Sleep(time.Millisecond)
	a.Complete(map[string]any{"ok": true})

	ready := g.ReadySet()
	require.Len(t, ready, 1)
	b := ready[0]
	b.MarkRunning()

	require.NotNil(t, a.CompletedAt)
	require.NotNil(t, b.StartedAt)
	assert.False(t, b.StartedAt.Before(*a.CompletedAt))
}
