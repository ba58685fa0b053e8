package graph

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ExecutionMode selects how the Orchestrator schedules a graph's nodes.
type ExecutionMode string

const (
	ModeSequential  ExecutionMode = "SEQUENTIAL"
	ModeParallel    ExecutionMode = "PARALLEL"
	ModeDistributed ExecutionMode = "DISTRIBUTED"
	ModeStreaming   ExecutionMode = "STREAMING"
)

// RiskLevel is assigned by the Orchestrator's risk-assessment step.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// TaskGraph is a DAG of TaskNodes plus execution policy.
type TaskGraph struct {
	GraphID          string               `json:"graph_id"`
	Nodes            map[string]*TaskNode `json:"nodes"`
	Order            []string             `json:"order"`
	ExecutionMode    ExecutionMode        `json:"execution_mode"`
	MaxParallelTasks int                  `json:"max_parallel_tasks"`
	RiskLevel        RiskLevel            `json:"risk_level,omitempty"`
	GoalSummary      string               `json:"goal_summary"`
	Status           string               `json:"status"`
	CreatedAt        time.Time            `json:"created_at"`
	UpdatedAt        time.Time            `json:"updated_at"`
}

// New creates an empty TaskGraph with a fresh id.
func New(goalSummary string, mode ExecutionMode) *TaskGraph {
	now := time.Now()
	return &TaskGraph{
		GraphID:          uuid.NewString(),
		Nodes:            make(map[string]*TaskNode),
		ExecutionMode:    mode,
		MaxParallelTasks: 1,
		GoalSummary:      goalSummary,
		Status:           string(StatusPending),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// AddNode appends a node to the graph, preserving insertion order.
func (g *TaskGraph) AddNode(n *TaskNode) {
	if _, exists := g.Nodes[n.ID]; !exists {
		g.Order = append(g.Order, n.ID)
	}
	g.Nodes[n.ID] = n
}

// Validate checks the invariants from spec.md §3: acyclic, every dependency
// resolves to a node in the graph, and MaxParallelTasks >= 1.
func (g *TaskGraph) Validate() error {
	if g.MaxParallelTasks < 1 {
		return fmt.Errorf("taskgraph %s: max_parallel_tasks must be >= 1", g.GraphID)
	}
	for id, n := range g.Nodes {
		for _, dep := range n.Dependencies {
			if _, ok := g.Nodes[dep]; !ok {
				return fmt.Errorf("taskgraph %s: node %s depends on unknown node %s", g.GraphID, id, dep)
			}
		}
	}
	if cycle := g.findCycle(); cycle != "" {
		return fmt.Errorf("taskgraph %s: cycle detected at node %s", g.GraphID, cycle)
	}
	return nil
}

// findCycle runs a DFS with a coloring scheme and returns the id of a node
// on a cycle, or "" if the graph is acyclic.
func (g *TaskGraph) findCycle() string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g.Nodes))
	var visit func(id string) string
	visit = func(id string) string {
		color[id] = gray
		for _, dep := range g.Nodes[id].Dependencies {
			switch color[dep] {
			case gray:
				return dep
			case white:
				if c := visit(dep); c != "" {
					return c
				}
			}
		}
		color[id] = black
		return ""
	}
	for id := range g.Nodes {
		if color[id] == white {
			if c := visit(id); c != "" {
				return c
			}
		}
	}
	return ""
}

// ReadySet returns PENDING/RETRY nodes whose dependencies are all SUCCESS,
// sorted by priority descending then by insertion order (stable).
func (g *TaskGraph) ReadySet() []*TaskNode {
	var ready []*TaskNode
	for _, id := range g.Order {
		n := g.Nodes[id]
		status := n.GetStatus()
		if status != StatusPending && status != StatusRetry {
			continue
		}
		if g.dependenciesSatisfied(n) {
			ready = append(ready, n)
		}
	}
	sortByPriorityStable(ready)
	return ready
}

func (g *TaskGraph) dependenciesSatisfied(n *TaskNode) bool {
	for _, dep := range n.Dependencies {
		depNode, ok := g.Nodes[dep]
		if !ok || depNode.GetStatus() != StatusSuccess {
			return false
		}
	}
	return true
}

// sortByPriorityStable is a stable descending-priority sort (insertion-order
// stable for ties), matching the ready-set ordering in spec.md §4.8.
func sortByPriorityStable(nodes []*TaskNode) {
	for i := 1; i < len(nodes); i++ {
		j := i
		for j > 0 && nodes[j-1].Priority < nodes[j].Priority {
			nodes[j-1], nodes[j] = nodes[j], nodes[j-1]
			j--
		}
	}
}

// AllTerminal reports whether every node has reached a terminal status.
func (g *TaskGraph) AllTerminal() bool {
	for _, id := range g.Order {
		if !g.Nodes[id].GetStatus().IsTerminal() {
			return false
		}
	}
	return true
}

// Downstream returns the ids of nodes that directly depend on id.
func (g *TaskGraph) Downstream(id string) []string {
	var out []string
	for _, nid := range g.Order {
		n := g.Nodes[nid]
		for _, dep := range n.Dependencies {
			if dep == id {
				out = append(out, nid)
				break
			}
		}
	}
	return out
}

// CascadeSkip marks every node transitively downstream of failedID as
// CANCELLED, the way the teacher's DAGScheduler.cascadeSkip walks the
// dependency graph breadth-first.
func (g *TaskGraph) CascadeSkip(failedID string) {
	queue := []string{failedID}
	visited := map[string]bool{}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if visited[cur] {
			continue
		}
		visited[cur] = true
		for _, down := range g.Downstream(cur) {
			n := g.Nodes[down]
			if n.GetStatus() == StatusPending {
				n.Skip(fmt.Sprintf("skipped due to upstream failure in %s", cur))
				queue = append(queue, down)
			}
		}
	}
}
