package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/r3e/taskgraph/pkg/billing"
	"github.com/r3e/taskgraph/pkg/eventbus"
	"github.com/r3e/taskgraph/pkg/graph"
	"github.com/r3e/taskgraph/pkg/taskqueue"
)

// dispatchNode resolves a node's input references, runs it through the
// Handler Runtime, applies validation on success, cascades a cancel to
// downstream nodes on terminal failure, and persists the snapshot.
// Used by SEQUENTIAL, PARALLEL, and STREAMING; DISTRIBUTED dispatches to
// the Task Queue instead (see runDistributed).
func (r *run) dispatchNode(ctx context.Context, node *graph.TaskNode) {
	resolved, err := graph.ResolveInput(node.InputData, r.g.Nodes)
	if err != nil {
		node.FailNonRetryable(err.Error())
		r.g.CascadeSkip(node.ID)
		r.o.persistSnapshot(ctx, r.g)
		return
	}
	node.InputData = resolved

	handler := r.o.handlerFor(node)
	outcome := r.runtime.Execute(ctx, node, r.sec, handler)

	switch outcome.Status {
	case graph.StatusSuccess:
		r.o.postExecute(node)
		if node.GetStatus() != graph.StatusSuccess {
			r.g.CascadeSkip(node.ID)
		}
		r.note("node %s succeeded in %s", node.ID, outcome.ExecutionTime)
		r.o.health.recordNode(node.GetStatus() == graph.StatusSuccess, float64(outcome.ExecutionTime.Milliseconds()))
	case graph.StatusRetry:
		r.note("node %s retrying after %s: %v", node.ID, outcome.RetryDelay, outcome.Err)
		time.Sleep(outcome.RetryDelay)
	default:
		if !node.GetStatus().IsTerminal() {
			node.FailNonRetryable(fmt.Sprint(outcome.Err))
		}
		r.note("node %s failed: %v", node.ID, outcome.Err)
		r.g.CascadeSkip(node.ID)
		r.o.health.recordNode(false, float64(outcome.ExecutionTime.Milliseconds()))
	}
	r.o.persistSnapshot(ctx, r.g)
}

// runSequential implements the SEQUENTIAL mode loop of spec.md §4.8: ready
// nodes execute one at a time in ready-set order until nothing PENDING
// remains or a stuck state is detected.
func (r *run) runSequential(ctx context.Context) error {
	for {
		if r.g.AllTerminal() {
			return nil
		}
		ready := r.g.ReadySet()
		if len(ready) == 0 {
			return fmt.Errorf("orchestrator: stuck state, %d node(s) pending with unmet dependencies", pendingCount(r.g))
		}
		for _, node := range ready {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			r.dispatchNode(ctx, node)
		}
	}
}

// runParallel implements PARALLEL mode: each wave of the ready set
// dispatches up to max_parallel_tasks concurrently and the Orchestrator
// waits for the whole wave before recomputing readiness.
func (r *run) runParallel(ctx context.Context) error {
	maxParallel := r.g.MaxParallelTasks
	if maxParallel < 1 {
		maxParallel = 1
	}
	for {
		if r.g.AllTerminal() {
			return nil
		}
		ready := r.g.ReadySet()
		if len(ready) == 0 {
			return fmt.Errorf("orchestrator: stuck state, %d node(s) pending with unmet dependencies", pendingCount(r.g))
		}

		sem := make(chan struct{}, maxParallel)
		var wg sync.WaitGroup
		for _, node := range ready {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			wg.Add(1)
			sem <- struct{}{}
			go func(n *graph.TaskNode) {
				defer wg.Done()
				defer func() { <-sem }()
				r.dispatchNode(ctx, n)
			}(node)
		}
		wg.Wait()
	}
}

// runStreaming implements STREAMING mode: the SEQUENTIAL schedule plus
// stream.<kind> updates carrying a per-graph monotonic sequence number.
func (r *run) runStreaming(ctx context.Context) error {
	for {
		if r.g.AllTerminal() {
			r.o.emit("stream.status", 2, map[string]any{
				"graph_id": r.g.GraphID, "seq": r.nextSeq(), "status": "completed",
			})
			return nil
		}
		ready := r.g.ReadySet()
		if len(ready) == 0 {
			return fmt.Errorf("orchestrator: stuck state, %d node(s) pending with unmet dependencies", pendingCount(r.g))
		}
		for _, node := range ready {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			r.o.emit("stream.progress", 2, map[string]any{
				"graph_id": r.g.GraphID, "node_id": node.ID, "seq": r.nextSeq(),
			})
			r.dispatchNode(ctx, node)
			switch node.GetStatus() {
			case graph.StatusSuccess:
				r.o.emit("stream.output", 2, map[string]any{
					"graph_id": r.g.GraphID, "node_id": node.ID, "seq": r.nextSeq(), "output": node.OutputData,
				})
			case graph.StatusFailed, graph.StatusTimeout, graph.StatusCancelled:
				r.o.emit("stream.error", 3, map[string]any{
					"graph_id": r.g.GraphID, "node_id": node.ID, "seq": r.nextSeq(),
				})
			}
		}
	}
}

// runDistributed implements DISTRIBUTED mode of spec.md §4.8: nodes are
// pushed to the Task Queue for a remote Worker to execute; completion is
// observed as task.completed/task.failed bus events; a global credit
// budget and per-node SLA timeout bound the run.
func (r *run) runDistributed(ctx context.Context) error {
	if r.o.Queue == nil || r.o.Bus == nil {
		return fmt.Errorf("orchestrator: distributed mode requires a task queue and event bus")
	}

	results := make(chan eventbus.Event, 256)
	subName := "orchestrator." + r.g.GraphID
	r.o.Bus.Subscribe("task.completed", subName, func(e eventbus.Event) error { results <- e; return nil })
	r.o.Bus.Subscribe("task.failed", subName, func(e eventbus.Event) error { results <- e; return nil })
	defer r.o.Bus.Unsubscribe("task.completed", subName)
	defer r.o.Bus.Unsubscribe("task.failed", subName)

	cost := billing.DefaultCostPerNode
	if r.o.Billing != nil {
		cost = r.o.Billing.CostPerNode
	}
	maxCredits := r.o.Config.MaxCredits
	if maxCredits <= 0 {
		maxCredits = DefaultConfig().MaxCredits
	}
	maxQueueSize := r.o.Config.MaxQueueSize
	if maxQueueSize <= 0 {
		maxQueueSize = DefaultConfig().MaxQueueSize
	}

	var spent float64
	dispatched := make(map[string]bool)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e := <-results:
			r.applyDistributedResult(ctx, e, dispatched)
		case <-ticker.C:
		}

		if r.g.AllTerminal() {
			return nil
		}
		r.sweepSLATimeouts(ctx)
		if r.g.AllTerminal() {
			return nil
		}

		if spent >= maxCredits {
			r.note("graph %s aborted: cost budget exceeded (%.2f/%.2f credits)", r.g.GraphID, spent, maxCredits)
			return ErrCostBudgetExceeded
		}

		if size, err := r.o.Queue.Size(ctx); err == nil && size > maxQueueSize {
			time.Sleep(time.Second)
			continue
		}

		for _, node := range r.g.ReadySet() {
			if dispatched[node.ID] {
				continue
			}
			if spent+cost > maxCredits {
				break
			}
			resolved, err := graph.ResolveInput(node.InputData, r.g.Nodes)
			if err != nil {
				node.FailNonRetryable(err.Error())
				r.g.CascadeSkip(node.ID)
				continue
			}
			node.InputData = resolved
			node.MarkRunning()
			r.o.persistSnapshot(ctx, r.g)

			wire, err := json.Marshal(node.Snapshot())
			if err != nil {
				node.FailNonRetryable(fmt.Sprintf("encode node: %v", err))
				r.g.CascadeSkip(node.ID)
				continue
			}
			p := taskqueue.NewPayload(r.g.GraphID, node.ID, wire, node.Priority)
			if err := r.o.Queue.Push(ctx, p); err != nil {
				node.FailNonRetryable(fmt.Sprintf("queue push failed: %v", err))
				r.g.CascadeSkip(node.ID)
				continue
			}
			dispatched[node.ID] = true
			spent += cost
			r.note("node %s dispatched to task queue", node.ID)
		}
	}
}

// applyDistributedResult matches an arriving task.completed/task.failed
// event against this run's graph id and updates the node accordingly. A
// retryable failure clears the dispatched marker so the next ready-set
// pass redispatches it.
func (r *run) applyDistributedResult(ctx context.Context, e eventbus.Event, dispatched map[string]bool) {
	graphID, _ := e.Payload["graph_id"].(string)
	if graphID != r.g.GraphID {
		return
	}
	nodeID, _ := e.Payload["node_id"].(string)
	node, ok := r.g.Nodes[nodeID]
	if !ok {
		return
	}

	durationMs := float64(0)
	if node.StartedAt != nil {
		durationMs = float64(time.Since(*node.StartedAt).Milliseconds())
	}

	switch e.EventType {
	case "task.completed":
		output, _ := e.Payload["result"].(map[string]any)
		node.Complete(output)
		r.o.postExecute(node)
		r.note("node %s completed (distributed)", nodeID)
		r.o.health.recordNode(node.GetStatus() == graph.StatusSuccess, durationMs)
	case "task.failed":
		errMsg, _ := e.Payload["error"].(string)
		if node.AppendError(errMsg) {
			delete(dispatched, nodeID)
			r.note("node %s will retry (distributed): %s", nodeID, errMsg)
		} else {
			r.g.CascadeSkip(nodeID)
			r.note("node %s failed (distributed): %s", nodeID, errMsg)
			r.o.health.recordNode(false, durationMs)
		}
	}
	r.o.persistSnapshot(ctx, r.g)
}

// sweepSLATimeouts fails any RUNNING node whose started_at exceeds its
// timeout_seconds, a check that only applies in DISTRIBUTED mode since
// the Worker executing it may be remote (spec.md §5).
func (r *run) sweepSLATimeouts(ctx context.Context) {
	for _, id := range r.g.Order {
		n := r.g.Nodes[id]
		if n.GetStatus() != graph.StatusRunning || n.TimeoutSeconds <= 0 || n.StartedAt == nil {
			continue
		}
		if time.Since(*n.StartedAt) > time.Duration(n.TimeoutSeconds)*time.Second {
			n.FailNonRetryable("SLA Timeout")
			r.g.CascadeSkip(id)
			r.note("node %s SLA timeout after %ds", id, n.TimeoutSeconds)
			r.o.persistSnapshot(ctx, r.g)
		}
	}
}

func pendingCount(g *graph.TaskGraph) int {
	count := 0
	for _, id := range g.Order {
		if g.Nodes[id].GetStatus() == graph.StatusPending {
			count++
		}
	}
	return count
}
