// Package graph defines the TaskNode/TaskGraph data model: a DAG of
// typed work items bound to handler agents.
package graph

import (
	"sync"
	"time"
)

// Status is the lifecycle state of a TaskNode.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusQueued    Status = "QUEUED"
	StatusRunning   Status = "RUNNING"
	StatusSuccess   Status = "SUCCESS"
	StatusRetry     Status = "RETRY"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
	StatusEscalated Status = "ESCALATED"
	StatusPaused    Status = "PAUSED"
	StatusTimeout   Status = "TIMEOUT"
)

// IsTerminal reports whether status is a final state for a single run.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusCancelled, StatusTimeout:
		return true
	default:
		return false
	}
}

// RetryStrategy selects the backoff shape used between attempts.
type RetryStrategy string

const (
	RetryFixed       RetryStrategy = "FIXED"
	RetryLinear      RetryStrategy = "LINEAR"
	RetryExponential RetryStrategy = "EXPONENTIAL_BACKOFF"
	RetryFibonacci   RetryStrategy = "FIBONACCI"
	RetryAdaptive    RetryStrategy = "ADAPTIVE"
)

// RetryConfig configures the retry delay schedule for a node's Handler Runtime attempts.
type RetryConfig struct {
	Strategy   RetryStrategy `json:"strategy"`
	MaxRetries int           `json:"max_retries"`
	Initial    time.Duration `json:"initial"`
	Multiplier float64       `json:"multiplier"`
	Max        time.Duration `json:"max"`
	Jitter     bool          `json:"jitter"`
}

// DefaultRetryConfig mirrors the teacher's executor.go defaults (3 retries,
// 1s initial backoff, doubling each attempt).
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Strategy:   RetryExponential,
		MaxRetries: 3,
		Initial:    time.Second,
		Multiplier: 2,
		Max:        30 * time.Second,
		Jitter:     true,
	}
}

// TaskNode is a single unit of work within a TaskGraph.
type TaskNode struct {
	ID                  string         `json:"id"`
	AgentType           string         `json:"agent_type"`
	Dependencies        []string       `json:"dependencies,omitempty"`
	InputData           map[string]any `json:"input_data,omitempty"`
	OutputData          map[string]any `json:"output_data,omitempty"`
	RequiredPermissions []string       `json:"required_permissions,omitempty"`
	ValidationRule      string         `json:"validation_rule,omitempty"`
	RetryConfig         RetryConfig    `json:"retry_config"`
	TimeoutSeconds      int            `json:"timeout_seconds,omitempty"`
	Priority            int            `json:"priority"`
	Tags                []string       `json:"tags,omitempty"`

	Status      Status     `json:"status"`
	Retries     int        `json:"retries"`
	ErrorLog    []string   `json:"error_log,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	mu sync.RWMutex
}

// NewTaskNode creates a node in the PENDING state with sane defaults.
func NewTaskNode(id, agentType string) *TaskNode {
	return &TaskNode{
		ID:          id,
		AgentType:   agentType,
		InputData:   map[string]any{},
		RetryConfig: DefaultRetryConfig(),
		Status:      StatusPending,
		CreatedAt:   time.Now(),
	}
}

// GetStatus returns the node's status thread-safely.
func (t *TaskNode) GetStatus() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.Status
}

// SetStatus sets the node's status thread-safely. Callers are responsible
// for only making legal transitions (enforced by the scheduler, not here).
func (t *TaskNode) SetStatus(s Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Status = s
}

// MarkRunning transitions PENDING/RETRY -> RUNNING and stamps StartedAt on
// the first transition only.
func (t *TaskNode) MarkRunning() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Status = StatusRunning
	if t.StartedAt == nil {
		now := time.Now()
		t.StartedAt = &now
	}
}

// Complete transitions the node to SUCCESS with the given output.
func (t *TaskNode) Complete(output map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Status = StatusSuccess
	t.OutputData = output
	now := time.Now()
	t.CompletedAt = &now
}

// AppendError records an error message and, if retries remain, moves the
// node to RETRY; otherwise to FAILED. Returns true if the node will retry.
func (t *TaskNode) AppendError(msg string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ErrorLog = append(t.ErrorLog, msg)
	if t.Retries < t.RetryConfig.MaxRetries {
		t.Retries++
		t.Status = StatusRetry
		return true
	}
	t.Status = StatusFailed
	now := time.Now()
	t.CompletedAt = &now
	return false
}

// FailNonRetryable transitions the node straight to FAILED, bypassing the
// retry budget. Used for decisions the Handler Runtime never retries
// (validation failure, input-resolution and dispatch errors, SLA timeout).
func (t *TaskNode) FailNonRetryable(reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ErrorLog = append(t.ErrorLog, reason)
	t.Status = StatusFailed
	now := time.Now()
	t.CompletedAt = &now
}

// Timeout transitions the node straight to TIMEOUT. The DISTRIBUTED-mode
// SLA check does not use it; it marks an expired node FAILED instead.
func (t *TaskNode) Timeout(reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ErrorLog = append(t.ErrorLog, reason)
	t.Status = StatusTimeout
	now := time.Now()
	t.CompletedAt = &now
}

// Skip marks a node SKIPPED-equivalent (CANCELLED) due to an upstream failure.
func (t *TaskNode) Skip(reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Status = StatusCancelled
	t.ErrorLog = append(t.ErrorLog, reason)
	now := time.Now()
	t.CompletedAt = &now
}

// Snapshot is a serializable, lock-free copy of a TaskNode's fields.
type Snapshot struct {
	ID                  string         `json:"id"`
	AgentType           string         `json:"agent_type"`
	Dependencies        []string       `json:"dependencies,omitempty"`
	InputData           map[string]any `json:"input_data,omitempty"`
	OutputData          map[string]any `json:"output_data,omitempty"`
	RequiredPermissions []string       `json:"required_permissions,omitempty"`
	ValidationRule      string         `json:"validation_rule,omitempty"`
	RetryConfig         RetryConfig    `json:"retry_config"`
	TimeoutSeconds      int            `json:"timeout_seconds,omitempty"`
	Priority            int            `json:"priority"`
	Tags                []string       `json:"tags,omitempty"`
	Status              Status         `json:"status"`
	Retries             int            `json:"retries"`
	ErrorLog            []string       `json:"error_log,omitempty"`
	CreatedAt           time.Time      `json:"created_at"`
	StartedAt           *time.Time     `json:"started_at,omitempty"`
	CompletedAt         *time.Time     `json:"completed_at,omitempty"`
}

// Snapshot returns a value copy safe to serialize without racing the mutex.
func (t *TaskNode) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Snapshot{
		ID:                  t.ID,
		AgentType:           t.AgentType,
		Dependencies:        append([]string(nil), t.Dependencies...),
		InputData:           t.InputData,
		OutputData:          t.OutputData,
		RequiredPermissions: t.RequiredPermissions,
		ValidationRule:      t.ValidationRule,
		RetryConfig:         t.RetryConfig,
		TimeoutSeconds:      t.TimeoutSeconds,
		Priority:            t.Priority,
		Tags:                append([]string(nil), t.Tags...),
		Status:              t.Status,
		Retries:             t.Retries,
		ErrorLog:            append([]string(nil), t.ErrorLog...),
		CreatedAt:           t.CreatedAt,
		StartedAt:           t.StartedAt,
		CompletedAt:         t.CompletedAt,
	}
}
