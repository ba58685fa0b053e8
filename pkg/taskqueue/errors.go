package taskqueue

import "errors"

// ErrQueueFull is returned by a bounded queue's Push when at capacity.
var ErrQueueFull = errors.New("taskqueue: queue is full")
