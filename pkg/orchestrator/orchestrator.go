// Package orchestrator owns a TaskGraph's lifecycle: risk assessment,
// billing gate, dependency-respecting dispatch through the Handler
// Runtime in one of four execution modes, persistence on every status
// change, and the memory-store call on completion (spec.md §4.8).
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/r3e/taskgraph/pkg/billing"
	"github.com/r3e/taskgraph/pkg/eventbus"
	"github.com/r3e/taskgraph/pkg/graph"
	"github.com/r3e/taskgraph/pkg/handlerruntime"
	"github.com/r3e/taskgraph/pkg/memory"
	"github.com/r3e/taskgraph/pkg/persistence"
	"github.com/r3e/taskgraph/pkg/security"
	"github.com/r3e/taskgraph/pkg/taskqueue"
	"github.com/r3e/taskgraph/pkg/validation"
)

// Orchestrator coordinates the Event Bus, Task Queue, Handler Runtime,
// Security Service, Validation Service, Memory Service, Billing Gate, and
// persistence store around one running TaskGraph at a time per caller.
type Orchestrator struct {
	Bus        *eventbus.Bus
	Queue      taskqueue.Queue
	Runtime    *handlerruntime.Runtime
	Security   *security.Service
	Validation *validation.Service
	Memory     *memory.Service
	Billing    *billing.Gate
	Store      persistence.Store
	Handlers   map[string]handlerruntime.HandlerFunc
	Config     Config

	health *healthCounters
}

// New wires an Orchestrator and, if sec is non-nil, binds its audit log to
// emit "security.audit" events on bus (spec.md §6 event vocabulary).
func New(bus *eventbus.Bus, queue taskqueue.Queue, runtime *handlerruntime.Runtime, sec *security.Service, val *validation.Service, mem *memory.Service, gate *billing.Gate, store persistence.Store, handlers map[string]handlerruntime.HandlerFunc, cfg Config) *Orchestrator {
	o := &Orchestrator{
		Bus: bus, Queue: queue, Runtime: runtime, Security: sec,
		Validation: val, Memory: mem, Billing: gate, Store: store,
		Handlers: handlers, Config: cfg,
		health: newHealthCounters(),
	}
	if sec != nil && bus != nil {
		sec.Audit.Publish = func(entry security.AuditEntry) {
			bus.Publish(eventbus.New("security.audit", "security", map[string]any{
				"action": entry.Action, "resource": entry.Resource, "allowed": entry.Allowed,
				"user_id": entry.UserID,
			}))
		}
	}
	if runtime != nil && sec != nil {
		runtime.Security = sec
	}
	return o
}

// run carries the mutable bookkeeping for one Submit call: the execution
// log and a mutex since PARALLEL/DISTRIBUTED modes append concurrently.
type run struct {
	o       *Orchestrator
	g       *graph.TaskGraph
	sec     *security.Context
	runtime *handlerruntime.Runtime

	mu      sync.Mutex
	log     []string
	seq     int
	started time.Time
}

func (r *run) note(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	r.mu.Lock()
	r.log = append(r.log, line)
	r.mu.Unlock()
	slog.Info("orchestrator: " + line)
}

func (r *run) nextSeq() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	return r.seq
}

// Submit runs a graph to completion (or budget/stuck-state exhaustion) and
// returns the user-visible result.
func (o *Orchestrator) Submit(ctx context.Context, g *graph.TaskGraph, sec *security.Context) (*Result, error) {
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("orchestrator: invalid graph: %w", err)
	}

	var requiredScopes []string
	for _, id := range g.Order {
		requiredScopes = append(requiredScopes, g.Nodes[id].RequiredPermissions...)
	}
	assessment := o.Security.AssessRisk(sec, requiredScopes)
	g.RiskLevel = assessment.Level

	if o.Billing != nil {
		if err := o.Billing.CheckGraphLimit(ctx, sec.UserID, len(g.Nodes)); err != nil {
			return nil, fmt.Errorf("orchestrator: %w", err)
		}
	}

	runtimeForUser := *o.Runtime
	if o.Billing != nil {
		runtimeForUser.Billing = o.Billing.ForUser(sec.UserID)
	}

	r := &run{o: o, g: g, sec: sec, runtime: &runtimeForUser, started: time.Now()}
	r.note("graph %s started, mode=%s, risk=%s", g.GraphID, g.ExecutionMode, g.RiskLevel)

	o.health.graphStarted(g.GraphID)
	defer o.health.graphFinished(g.GraphID)

	g.Status = "RUNNING"
	o.persistSnapshot(ctx, g)
	o.emit("graph.started", 5, map[string]any{"graph_id": g.GraphID, "risk_level": g.RiskLevel})

	var runErr error
	switch g.ExecutionMode {
	case graph.ModeParallel:
		runErr = r.runParallel(ctx)
	case graph.ModeDistributed:
		runErr = r.runDistributed(ctx)
	case graph.ModeStreaming:
		runErr = r.runStreaming(ctx)
	default:
		runErr = r.runSequential(ctx)
	}

	result := o.buildResult(g, r, runErr)

	g.Status = result.Status
	g.UpdatedAt = time.Now()
	o.persistSnapshot(ctx, g)

	if result.Status == "failed" || result.Status == "partial_failure" {
		o.emit("graph.failed", 5, map[string]any{"graph_id": g.GraphID, "status": result.Status})
	} else {
		o.emit("graph.completed", 5, map[string]any{"graph_id": g.GraphID, "status": result.Status})
	}

	if o.Memory != nil {
		snapshot, _ := graph.Encode(g)
		record := memory.Record{
			RecordID:      g.GraphID,
			Category:      "orchestration_run",
			GoalSummary:   g.GoalSummary,
			GraphSnapshot: snapshot,
			ExecutionLog:  r.log,
			Tags:          []string{string(g.RiskLevel), result.Status},
		}
		if err := o.Memory.Store(ctx, record); err != nil {
			slog.Warn("orchestrator: memory store failed", "error", err, "graph_id", g.GraphID)
		} else {
			o.emit("memory.stored", 1, map[string]any{"graph_id": g.GraphID})
		}
	}

	return result, nil
}

// handlerFor returns the registered handler for node's agent_type, or one
// that fails with ErrNoHandler when none is registered. Validation is not
// applied here; dispatchNode runs postExecute after a successful invocation.
func (o *Orchestrator) handlerFor(node *graph.TaskNode) handlerruntime.HandlerFunc {
	h, ok := o.Handlers[node.AgentType]
	if !ok {
		return func(ctx context.Context, n *graph.TaskNode, sec *security.Context) (map[string]any, error) {
			return nil, fmt.Errorf("%w: %s", ErrNoHandler, n.AgentType)
		}
	}
	return h
}

// postExecute runs the Validation Service over a just-succeeded node and
// demotes it to FAILED (non-retryable) when validation fails after
// auto-fix, emitting the corresponding bus event either way.
func (o *Orchestrator) postExecute(node *graph.TaskNode) {
	if node.GetStatus() != graph.StatusSuccess || node.ValidationRule == "" || o.Validation == nil {
		return
	}
	vres := o.Validation.Validate(node)
	if vres.Passed {
		o.emit(fmt.Sprintf("validation.passed.%s", node.ID), 1, map[string]any{"node_id": node.ID})
		return
	}
	node.FailNonRetryable(fmt.Sprintf("validation failed: %s", vres.Message))
	o.emit(fmt.Sprintf("validation.failed.%s", node.ID), 3, map[string]any{"node_id": node.ID, "message": vres.Message})
}

func (o *Orchestrator) emit(eventType string, priority int, payload map[string]any) {
	if o.Bus == nil {
		return
	}
	e := eventbus.New(eventType, "orchestrator", payload)
	e.Priority = priority
	o.Bus.Publish(e)
}

func (o *Orchestrator) persistSnapshot(ctx context.Context, g *graph.TaskGraph) {
	if o.Store == nil {
		return
	}
	data, err := graph.Encode(g)
	if err != nil {
		slog.Warn("orchestrator: encode graph failed", "error", err, "graph_id", g.GraphID)
		return
	}
	snap := persistence.GraphSnapshot{
		ID: g.GraphID, Status: g.Status, StateJSON: string(data),
		CreatedAt: g.CreatedAt, UpdatedAt: time.Now(),
	}
	if err := o.Store.UpsertGraphSnapshot(ctx, snap); err != nil {
		slog.Warn("orchestrator: persist snapshot failed", "error", err, "graph_id", g.GraphID)
	}
}

// buildResult computes the §7 user-visible result shape from final node
// statuses.
func (o *Orchestrator) buildResult(g *graph.TaskGraph, r *run, runErr error) *Result {
	res := &Result{
		GraphID:              g.GraphID,
		RiskLevel:            string(g.RiskLevel),
		TotalNodes:           len(g.Nodes),
		ExecutionLog:         append([]string(nil), r.log...),
		ExecutionTimeSeconds: time.Since(r.started).Seconds(),
		ExecutionMode:        string(g.ExecutionMode),
	}

	var failed, succeeded int
	for _, id := range g.Order {
		n := g.Nodes[id]
		switch n.GetStatus() {
		case graph.StatusSuccess:
			succeeded++
			res.CompletedNodes = append(res.CompletedNodes, id)
		case graph.StatusFailed, graph.StatusTimeout, graph.StatusCancelled:
			failed++
			msg := "unknown error"
			if errs := n.ErrorLog; len(errs) > 0 {
				msg = errs[len(errs)-1]
			}
			res.Errors = append(res.Errors, NodeError{
				NodeID: id, Error: msg, Timestamp: time.Now().UTC().Format(time.RFC3339),
			})
		}
	}

	if runErr != nil {
		res.Errors = append(res.Errors, NodeError{
			Error: runErr.Error(), Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}

	switch {
	case runErr == nil && failed == 0:
		res.Status = "success"
	case succeeded > 0:
		res.Status = "partial_failure"
	default:
		res.Status = "failed"
	}
	return res
}
