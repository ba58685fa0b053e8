package orchestrator

import (
	"sync"
	"time"
)

// Health is the operational snapshot the original implementation's
// Orchestrator.get_health exposed: in-flight graph count, cumulative node
// outcomes, and process uptime.
type Health struct {
	ActiveGraphs       int     `json:"active_graphs"`
	CompletedTasks     int64   `json:"completed_tasks"`
	FailedTasks        int64   `json:"failed_tasks"`
	AvgExecutionTimeMs float64 `json:"avg_execution_time_ms"`
	UptimeSeconds      float64 `json:"uptime_seconds"`
	ErrorRate          float64 `json:"error_rate"`
}

// healthCounters is the mutable bookkeeping behind GetHealth, guarded by
// its own mutex so it can be updated from concurrent PARALLEL/DISTRIBUTED
// dispatch goroutines without touching a run's own log mutex.
type healthCounters struct {
	mu                   sync.Mutex
	startTime            time.Time
	active               map[string]struct{}
	totalExecuted        int64
	totalFailed          int64
	totalExecutionTimeMs float64
}

func newHealthCounters() *healthCounters {
	return &healthCounters{
		startTime: time.Now(),
		active:    make(map[string]struct{}),
	}
}

func (h *healthCounters) graphStarted(graphID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.active[graphID] = struct{}{}
}

func (h *healthCounters) graphFinished(graphID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.active, graphID)
}

func (h *healthCounters) recordNode(success bool, durationMs float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if success {
		h.totalExecuted++
	} else {
		h.totalFailed++
	}
	h.totalExecutionTimeMs += durationMs
}

func (h *healthCounters) snapshot() Health {
	h.mu.Lock()
	defer h.mu.Unlock()

	total := h.totalExecuted + h.totalFailed
	var avg, errRate float64
	if total > 0 {
		avg = h.totalExecutionTimeMs / float64(total)
		errRate = float64(h.totalFailed) / float64(total)
	}
	return Health{
		ActiveGraphs:       len(h.active),
		CompletedTasks:     h.totalExecuted,
		FailedTasks:        h.totalFailed,
		AvgExecutionTimeMs: avg,
		UptimeSeconds:      time.Since(h.startTime).Seconds(),
		ErrorRate:          errRate,
	}
}

// GetHealth returns the Orchestrator's operational metrics.
func (o *Orchestrator) GetHealth() Health {
	return o.health.snapshot()
}
