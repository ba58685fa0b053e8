// Package worker implements the distributed-mode Task Queue consumer:
// pop a payload, decode it into a TaskNode, run it through the Handler
// Runtime, and publish the result back to the Event Bus for the
// Orchestrator to observe (spec.md §4.9).
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/r3e/taskgraph/pkg/eventbus"
	"github.com/r3e/taskgraph/pkg/graph"
	"github.com/r3e/taskgraph/pkg/handlerruntime"
	"github.com/r3e/taskgraph/pkg/security"
	"github.com/r3e/taskgraph/pkg/taskqueue"
)

// DefaultPopTimeout matches spec.md §4.9's pop(timeout=5s).
const DefaultPopTimeout = 5 * time.Second

// Worker consumes one Task Queue, one node at a time, and is safe to run
// as many concurrent processes as the queue backend supports.
type Worker struct {
	Queue    taskqueue.Queue
	Bus      *eventbus.Bus
	Runtime  *handlerruntime.Runtime
	Handlers map[string]handlerruntime.HandlerFunc
	// Identity is the security context applied to every popped node. The
	// source partially elides permission checks on a distributed pop; this
	// port re-runs them against a fixed worker identity rather than trust
	// the payload (spec.md §9 open question).
	Identity   *security.Context
	PopTimeout time.Duration
}

// New constructs a Worker with the spec's default pop timeout.
func New(queue taskqueue.Queue, bus *eventbus.Bus, runtime *handlerruntime.Runtime, handlers map[string]handlerruntime.HandlerFunc, identity *security.Context) *Worker {
	return &Worker{
		Queue: queue, Bus: bus, Runtime: runtime, Handlers: handlers,
		Identity: identity, PopTimeout: DefaultPopTimeout,
	}
}

// Run pops and processes payloads until ctx is cancelled. A payload popped
// but not yet completed when ctx is cancelled is left on the processing
// list for a supervisor to redeliver.
func (w *Worker) Run(ctx context.Context) error {
	timeout := w.PopTimeout
	if timeout <= 0 {
		timeout = DefaultPopTimeout
	}
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p, err := w.Queue.Pop(ctx, timeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Error("worker: pop failed", "error", err)
			continue
		}
		if p == nil {
			continue // timed out with nothing pending
		}
		w.process(ctx, *p)
	}
}

func (w *Worker) process(ctx context.Context, p taskqueue.Payload) {
	var node graph.TaskNode
	if err := json.Unmarshal(p.Node, &node); err != nil {
		slog.Error("worker: decode payload failed", "error", err, "node_id", p.NodeID)
		w.publishFailed(p, fmt.Sprintf("decode error: %v", err))
		w.complete(ctx, p)
		return
	}

	handler, ok := w.Handlers[node.AgentType]
	if !ok {
		slog.Error("worker: no handler registered", "agent_type", node.AgentType, "node_id", p.NodeID)
		w.publishFailed(p, fmt.Sprintf("no handler registered for agent_type %q", node.AgentType))
		w.complete(ctx, p)
		return
	}

	// The worker owns retry delay in DISTRIBUTED mode (spec.md §4.8): it
	// keeps a popped node until it reaches a terminal status rather than
	// handing it back to the queue between attempts.
	var outcome handlerruntime.Outcome
	for {
		if ctx.Err() != nil {
			return // leave popped-but-unacked on the processing list
		}
		outcome = w.Runtime.Execute(ctx, &node, w.Identity, handler)
		if outcome.Status != graph.StatusRetry {
			break
		}
		time.Sleep(outcome.RetryDelay)
	}

	switch outcome.Status {
	case graph.StatusSuccess:
		w.publishCompleted(p, node.OutputData)
	default:
		msg := "unknown error"
		if outcome.Err != nil {
			msg = outcome.Err.Error()
		}
		w.publishFailed(p, msg)
	}
	w.complete(ctx, p)
}

func (w *Worker) complete(ctx context.Context, p taskqueue.Payload) {
	if err := w.Queue.Complete(ctx, p); err != nil {
		slog.Error("worker: complete failed", "error", err, "node_id", p.NodeID)
	}
}

func (w *Worker) publishCompleted(p taskqueue.Payload, result map[string]any) {
	if w.Bus == nil {
		return
	}
	w.Bus.Publish(eventbus.New("task.completed", "worker", map[string]any{
		"graph_id": p.GraphID, "node_id": p.NodeID, "result": result,
	}))
}

func (w *Worker) publishFailed(p taskqueue.Payload, errMsg string) {
	if w.Bus == nil {
		return
	}
	e := eventbus.New("task.failed", "worker", map[string]any{
		"graph_id": p.GraphID, "node_id": p.NodeID, "error": errMsg,
	})
	e.Priority = 3
	w.Bus.Publish(e)
}
