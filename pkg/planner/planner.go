// Package planner defines the Planner contract: turning a goal string
// into a task graph. No implementation ships here — the core treats a
// configured Planner as just another handler (spec.md §1, §4.9).
package planner

import (
	"context"

	"github.com/r3e/taskgraph/pkg/graph"
)

// Planner produces a TaskGraph from a free-form goal description.
type Planner interface {
	Plan(ctx context.Context, goal string) (*graph.TaskGraph, error)
}
