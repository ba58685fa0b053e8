package orchestrator

import "errors"

// ErrCostBudgetExceeded is recorded as a graph-level error (not a node
// error) when a DISTRIBUTED run exhausts max_credits with nodes still
// PENDING (spec.md §7 kind 7).
var ErrCostBudgetExceeded = errors.New("orchestrator: cost budget exceeded")

// ErrSLATimeout names the DISTRIBUTED-mode SLA failure. sweepSLATimeouts
// marks such a node FAILED with the message "SLA Timeout" when now-started_at
// exceeds its timeout_seconds (spec.md §7 kind 6).
var ErrSLATimeout = errors.New("orchestrator: SLA timeout")

// ErrNoHandler is returned when a node's agent_type has no registered
// handler.
var ErrNoHandler = errors.New("orchestrator: no handler registered for agent_type")
