package httpapi

import (
	"fmt"

	"github.com/r3e/taskgraph/pkg/graph"
	"github.com/r3e/taskgraph/pkg/security"
)

// NodeRequest is the wire shape of one TaskNode on submission.
type NodeRequest struct {
	ID                  string             `json:"id"`
	AgentType           string             `json:"agent_type"`
	Dependencies        []string           `json:"dependencies,omitempty"`
	InputData           map[string]any     `json:"input_data,omitempty"`
	RequiredPermissions []string           `json:"required_permissions,omitempty"`
	ValidationRule      string             `json:"validation_rule,omitempty"`
	TimeoutSeconds      int                `json:"timeout_seconds,omitempty"`
	Priority            int                `json:"priority,omitempty"`
	Tags                []string           `json:"tags,omitempty"`
	RetryConfig         *graph.RetryConfig `json:"retry_config,omitempty"`
}

// SubmitGraphRequest is the POST /v1/graphs body.
type SubmitGraphRequest struct {
	GoalSummary      string        `json:"goal_summary"`
	ExecutionMode    string        `json:"execution_mode"`
	MaxParallelTasks int           `json:"max_parallel_tasks"`
	Nodes            []NodeRequest `json:"nodes"`

	UserID          string   `json:"user_id"`
	OriginIP        string   `json:"origin_ip,omitempty"`
	AllowedScopes   []string `json:"allowed_scopes"`
	IsAuthenticated bool     `json:"is_authenticated"`
	MFAVerified     bool     `json:"mfa_verified"`
}

func (r SubmitGraphRequest) toTaskGraph() (*graph.TaskGraph, error) {
	if len(r.Nodes) == 0 {
		return nil, fmt.Errorf("httpapi: graph must declare at least one node")
	}
	mode := graph.ExecutionMode(r.ExecutionMode)
	switch mode {
	case graph.ModeSequential, graph.ModeParallel, graph.ModeDistributed, graph.ModeStreaming:
	case "":
		mode = graph.ModeSequential
	default:
		return nil, fmt.Errorf("httpapi: unknown execution_mode %q", r.ExecutionMode)
	}

	g := graph.New(r.GoalSummary, mode)
	if r.MaxParallelTasks > 0 {
		g.MaxParallelTasks = r.MaxParallelTasks
	}
	for _, nr := range r.Nodes {
		if nr.ID == "" || nr.AgentType == "" {
			return nil, fmt.Errorf("httpapi: every node requires id and agent_type")
		}
		n := graph.NewTaskNode(nr.ID, nr.AgentType)
		n.Dependencies = nr.Dependencies
		n.InputData = nr.InputData
		n.RequiredPermissions = nr.RequiredPermissions
		n.ValidationRule = nr.ValidationRule
		n.TimeoutSeconds = nr.TimeoutSeconds
		n.Priority = nr.Priority
		n.Tags = nr.Tags
		if nr.RetryConfig != nil {
			n.RetryConfig = *nr.RetryConfig
		}
		g.AddNode(n)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

func (r SubmitGraphRequest) toSecurityContext() *security.Context {
	return &security.Context{
		UserID:          r.UserID,
		OriginIP:        r.OriginIP,
		AllowedScopes:   r.AllowedScopes,
		IsAuthenticated: r.IsAuthenticated,
		MFAVerified:     r.MFAVerified,
	}
}
