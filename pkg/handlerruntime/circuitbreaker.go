package handlerruntime

import (
	"sync"
	"time"
)

// CircuitState is the lifecycle state of a per-handler circuit breaker.
type CircuitState string

const (
	CircuitClosed   CircuitState = "CLOSED"
	CircuitOpen     CircuitState = "OPEN"
	CircuitHalfOpen CircuitState = "HALF_OPEN"
)

// CircuitBreaker tracks consecutive failures/successes for one agent_type,
// with the defaults from spec.md §3: 5 failures -> OPEN, 60s -> HALF_OPEN,
// 2 consecutive successes -> CLOSED.
type CircuitBreaker struct {
	mu                 sync.Mutex
	state              CircuitState
	failureCount       int
	consecutiveSuccess int
	lastFailureTime    time.Time
	failureThreshold   int
	cooldown           time.Duration
	successThreshold   int
}

func NewCircuitBreaker() *CircuitBreaker {
	return &CircuitBreaker{
		state:            CircuitClosed,
		failureThreshold: 5,
		cooldown:         60 * time.Second,
		successThreshold: 2,
	}
}

// Probe reports whether an invocation may proceed, transitioning OPEN ->
// HALF_OPEN when the cooldown has elapsed (step 2 of §4.3).
func (c *CircuitBreaker) Probe() (allowed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case CircuitOpen:
		if time.Since(c.lastFailureTime) >= c.cooldown {
			c.state = CircuitHalfOpen
			c.consecutiveSuccess = 0
			return true
		}
		return false
	default:
		return true
	}
}

// RecordSuccess advances HALF_OPEN -> CLOSED once successThreshold
// consecutive successes accumulate (step 8 of §4.3).
func (c *CircuitBreaker) RecordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consecutiveSuccess++
	if c.state == CircuitHalfOpen && c.consecutiveSuccess >= c.successThreshold {
		c.state = CircuitClosed
		c.failureCount = 0
	}
}

// RecordFailure increments the failure count and opens the circuit once
// the count reaches the threshold (step 9 of §4.3).
func (c *CircuitBreaker) RecordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failureCount++
	c.consecutiveSuccess = 0
	if c.failureCount >= c.failureThreshold {
		c.state = CircuitOpen
		c.lastFailureTime = time.Now()
	}
}

// State returns a snapshot of the breaker for inspection/telemetry.
func (c *CircuitBreaker) State() (state CircuitState, failureCount int, lastFailure time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.failureCount, c.lastFailureTime
}

// Registry keeps one CircuitBreaker per agent_type.
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

func NewRegistry() *Registry {
	return &Registry{breakers: make(map[string]*CircuitBreaker)}
}

func (r *Registry) For(agentType string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	cb, ok := r.breakers[agentType]
	if !ok {
		cb = NewCircuitBreaker()
		r.breakers[agentType] = cb
	}
	return cb
}
