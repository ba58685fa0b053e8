package orchestrator

// NodeError records one node's terminal failure for the user-visible result.
type NodeError struct {
	NodeID    string `json:"node_id"`
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"`
}

// Result is the user-visible shape of a finished (or partially finished)
// orchestration run (spec.md §7).
type Result struct {
	GraphID              string      `json:"graph_id"`
	Status               string      `json:"status"` // success | partial_failure | failed
	RiskLevel            string      `json:"risk_level"`
	CompletedNodes       []string    `json:"completed_nodes"`
	TotalNodes           int         `json:"total_nodes"`
	Errors               []NodeError `json:"errors,omitempty"`
	ExecutionLog         []string    `json:"execution_log"`
	ExecutionTimeSeconds float64     `json:"execution_time_seconds"`
	ExecutionMode        string      `json:"execution_mode,omitempty"`
}
