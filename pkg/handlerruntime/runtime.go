// Package handlerruntime wraps every handler invocation with the
// cross-cutting concerns spec.md §4.3 requires, so handler bodies stay
// pure: circuit breaking, permission checks, lifecycle hooks, result
// caching, retry classification, billing, and metrics.
package handlerruntime

import (
	"context"
	"fmt"
	"time"

	"github.com/r3e/taskgraph/pkg/eventbus"
	"github.com/r3e/taskgraph/pkg/graph"
	"github.com/r3e/taskgraph/pkg/security"
)

// HandlerFunc is the pure handler body a Runtime wraps.
type HandlerFunc func(ctx context.Context, node *graph.TaskNode, sec *security.Context) (map[string]any, error)

// Biller debits one node's cost per invocation (spec.md §4.3 step 10,
// §4.7). Satisfied by *billing.NodeBiller (from Gate.ForUser), which
// debits Gate.CostPerNode; kept as a narrow interface here to avoid an
// import cycle between handlerruntime and billing.
type Biller interface {
	DebitOne(ctx context.Context) error
}

// Outcome reports what Execute decided, for the Orchestrator to act on
// (retry scheduling happens one layer up, per §4.8).
type Outcome struct {
	Status        graph.Status
	RetryDelay    time.Duration
	Err           error
	ExecutionTime time.Duration
}

// Runtime is the per-process Handler Runtime instance. One Runtime serves
// every agent_type; circuit breakers are tracked per agent_type inside it.
type Runtime struct {
	Bus      *eventbus.Bus
	Breakers *Registry
	Cache    Cache
	Metrics  *Metrics
	Billing  Biller
	Hooks    Hooks
	Security *security.Service
	Enabled  bool
}

// New creates a Runtime with sane defaults (enabled, in-memory cache, a
// fresh circuit breaker registry).
func New(bus *eventbus.Bus, metrics *Metrics) *Runtime {
	return &Runtime{
		Bus:      bus,
		Breakers: NewRegistry(),
		Cache:    NewMemoryCache(),
		Metrics:  metrics,
		Enabled:  true,
	}
}

// Execute runs handler for node under sec, implementing §4.3's ten-step
// sequence.
func (r *Runtime) Execute(ctx context.Context, node *graph.TaskNode, sec *security.Context, handler HandlerFunc) Outcome {
	start := time.Now()

	if !r.Enabled {
		return Outcome{Status: graph.StatusFailed, Err: ErrDisabled}
	}

	breaker := r.Breakers.For(node.AgentType)
	if !breaker.Probe() {
		return Outcome{Status: graph.StatusFailed, Err: ErrCircuitOpen}
	}

	if err := r.checkPermissions(node, sec); err != nil {
		return Outcome{Status: graph.StatusFailed, Err: err}
	}

	runBefore(r.Hooks, node)
	r.publish(fmt.Sprintf("task.%s.started", node.ID), node, 0, nil)

	cacheKey := DeriveCacheKey(node)
	if r.Cache != nil {
		if cached, ok := r.Cache.Get(cacheKey); ok {
			node.Complete(cached)
			r.recordOutcome(node, "cache_hit", time.Since(start))
			return Outcome{Status: graph.StatusSuccess, ExecutionTime: time.Since(start)}
		}
	}

	node.MarkRunning()
	output, err := handler(ctx, node, sec)

	elapsed := time.Since(start)
	if r.Billing != nil {
		if billErr := r.Billing.DebitOne(ctx); billErr != nil {
			node.AppendError(billErr.Error())
			r.recordOutcome(node, "billing_rejected", elapsed)
			return Outcome{Status: graph.StatusFailed, Err: billErr, ExecutionTime: elapsed}
		}
	}

	if err == nil {
		breaker.RecordSuccess()
		if r.Cache != nil {
			r.Cache.Set(cacheKey, output)
		}
		node.Complete(output)
		r.publish(fmt.Sprintf("task.%s.completed", node.ID), node, 0, output)
		runOnSuccess(r.Hooks, node)
		runAfter(r.Hooks, node)
		r.recordOutcome(node, "success", elapsed)
		return Outcome{Status: graph.StatusSuccess, ExecutionTime: elapsed}
	}

	breaker.RecordFailure()
	willRetry := node.AppendError(err.Error())
	runOnFailure(r.Hooks, node, err)
	runAfter(r.Hooks, node)

	if willRetry {
		delay := RetryDelay(node.RetryConfig, node.Retries-1)
		r.publish(fmt.Sprintf("task.%s.retry", node.ID), node, 0, map[string]any{"error": err.Error()})
		runOnRetry(r.Hooks, node, delay.Milliseconds())
		r.recordOutcome(node, "retry", elapsed)
		return Outcome{Status: graph.StatusRetry, RetryDelay: delay, Err: err, ExecutionTime: elapsed}
	}

	r.publish(fmt.Sprintf("task.%s.failed", node.ID), node, 1, map[string]any{"error": err.Error()})
	r.recordOutcome(node, "failed", elapsed)
	return Outcome{Status: graph.StatusFailed, Err: err, ExecutionTime: elapsed}
}

// checkPermissions gates node execution on sec holding every scope node
// requires. When a Security service is wired, the check runs through
// ValidatePermissions so the denial (or grant) lands in the audit log and
// fires a "security.audit" event; checkPermissions additionally publishes a
// "security.permission_check" event carrying the per-node decision, per the
// event vocabulary in spec.md §6. Without a wired Security service it falls
// back to a bare scope check, for callers (notably tests) that construct a
// Runtime without one.
func (r *Runtime) checkPermissions(node *graph.TaskNode, sec *security.Context) error {
	var allowed bool
	var checkErr error
	if r.Security != nil {
		resource := fmt.Sprintf("task:%s", node.ID)
		checkErr = r.Security.ValidatePermissions(sec, resource, node.RequiredPermissions)
		allowed = checkErr == nil
	} else {
		allowed = sec.HasAllScopes(node.RequiredPermissions)
		if !allowed {
			checkErr = security.ErrPermissionDenied
		}
	}

	r.publish("security.permission_check", node, 0, map[string]any{
		"node_id":              node.ID,
		"agent_type":           node.AgentType,
		"required_permissions": node.RequiredPermissions,
		"allowed":              allowed,
	})
	return checkErr
}

func (r *Runtime) publish(eventType string, node *graph.TaskNode, priority int, payload map[string]any) {
	if r.Bus == nil {
		return
	}
	e := eventbus.New(eventType, "handlerruntime", payload)
	e.Priority = priority
	r.Bus.Publish(e)
}

func (r *Runtime) recordOutcome(node *graph.TaskNode, outcome string, elapsed time.Duration) {
	if r.Metrics == nil {
		return
	}
	r.Metrics.Invocations.WithLabelValues(node.AgentType, outcome).Inc()
	r.Metrics.Duration.WithLabelValues(node.AgentType).Observe(elapsed.Seconds())
}
