package handlerruntime

import "github.com/r3e/taskgraph/pkg/graph"

// Hooks are the lifecycle callbacks run around a handler invocation
// (spec.md §4.3 steps 4 and 8).
type Hooks struct {
	BeforeExecute []func(node *graph.TaskNode)
	AfterExecute  []func(node *graph.TaskNode)
	OnSuccess     []func(node *graph.TaskNode)
	OnFailure     []func(node *graph.TaskNode, err error)
	OnRetry       []func(node *graph.TaskNode, delay int64)
}

func runBefore(h Hooks, node *graph.TaskNode) {
	for _, fn := range h.BeforeExecute {
		fn(node)
	}
}

func runAfter(h Hooks, node *graph.TaskNode) {
	for _, fn := range h.AfterExecute {
		fn(node)
	}
}

func runOnSuccess(h Hooks, node *graph.TaskNode) {
	for _, fn := range h.OnSuccess {
		fn(node)
	}
}

func runOnFailure(h Hooks, node *graph.TaskNode, err error) {
	for _, fn := range h.OnFailure {
		fn(node, err)
	}
}

func runOnRetry(h Hooks, node *graph.TaskNode, delayMs int64) {
	for _, fn := range h.OnRetry {
		fn(node, delayMs)
	}
}
