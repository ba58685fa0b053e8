// Package taskqueue implements the reliable hand-off from an Orchestrator
// to remote Workers: a durable, strict-FIFO pending list plus a processing
// list, following the reliable-pop pattern (spec.md §4.2). The queue is a
// transport, not a scheduler: it carries Priority as inert metadata only
// and never reorders on it — dispatch ordering is the Orchestrator's job,
// decided before a node ever reaches Push (pkg/graph.TaskGraph.ReadySet).
package taskqueue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Payload is a self-describing serialization of a TaskNode plus the graph
// it belongs to, as handed off to a remote Worker.
type Payload struct {
	ID         string          `json:"id"`
	GraphID    string          `json:"graph_id"`
	NodeID     string          `json:"node_id"`
	Node       json.RawMessage `json:"node"`
	Priority   int             `json:"priority"`
	EnqueuedAt time.Time       `json:"enqueued_at"`

	// raw carries the exact JSON a RedisQueue received it as, so Complete
	// can remove the identical list value LREM requires. Never set outside
	// pkg/taskqueue; absent for queues that don't need value-equality
	// removal (MemoryQueue, PostgresQueue key by ID instead).
	raw string
}

// NewPayload builds a Payload with a fresh queue-local id.
func NewPayload(graphID, nodeID string, node json.RawMessage, priority int) Payload {
	return Payload{
		ID:         uuid.NewString(),
		GraphID:    graphID,
		NodeID:     nodeID,
		Node:       node,
		Priority:   priority,
		EnqueuedAt: time.Now(),
	}
}

// Queue is the reliable-pop task queue contract. Implementations must
// leave a crashed consumer's in-flight payload on the processing list so a
// supervisor can redeliver it (spec.md §4.2 reliability contract).
type Queue interface {
	// Push appends payload to the pending list.
	Push(ctx context.Context, p Payload) error
	// Pop atomically moves the oldest pending payload (FIFO by enqueue
	// order) to the processing list, blocking up to timeout. Returns nil,
	// nil on timeout.
	Pop(ctx context.Context, timeout time.Duration) (*Payload, error)
	// Size reports the length of the pending list, for backpressure.
	Size(ctx context.Context) (int, error)
	// Complete removes payload from the processing list.
	Complete(ctx context.Context, p Payload) error
	// Pending returns payloads still on the processing list, for
	// supervisor-driven redelivery after a consumer crash.
	Pending(ctx context.Context) ([]Payload, error)
}
