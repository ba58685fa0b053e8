package handlerruntime

import (
	"math"
	"math/rand"
	"time"

	"github.com/r3e/taskgraph/pkg/graph"
)

// RetryDelay computes the backoff before attempt k (0-indexed) per
// spec.md §4.3's five strategies.
func RetryDelay(cfg graph.RetryConfig, k int) time.Duration {
	var d time.Duration
	switch cfg.Strategy {
	case graph.RetryFixed:
		d = cfg.Initial
	case graph.RetryLinear:
		d = cfg.Initial * time.Duration(k+1)
	case graph.RetryExponential:
		d = time.Duration(float64(cfg.Initial) * math.Pow(cfg.Multiplier, float64(k)))
		if d > cfg.Max {
			d = cfg.Max
		}
		if cfg.Jitter {
			d = time.Duration(float64(d) * (0.5 + rand.Float64()))
		}
		return d
	case graph.RetryFibonacci:
		d = cfg.Initial * time.Duration(fibonacci(k))
	case graph.RetryAdaptive:
		d = adaptiveDelay(cfg, k)
	default:
		d = cfg.Initial
	}
	if cfg.Max > 0 && d > cfg.Max {
		d = cfg.Max
	}
	return d
}

// fibonacci follows fib(0)=fib(1)=1 per the spec's indexing.
func fibonacci(k int) int {
	if k <= 1 {
		return 1
	}
	a, b := 1, 1
	for i := 2; i <= k; i++ {
		a, b = b, a+b
	}
	return b
}

// adaptiveDelay is implementation-defined but must be monotonic in k and
// bounded by cfg.Max: it grows with the square root of the attempt number,
// a gentler curve than exponential for handlers expected to self-heal.
func adaptiveDelay(cfg graph.RetryConfig, k int) time.Duration {
	d := time.Duration(float64(cfg.Initial) * math.Sqrt(float64(k+1)))
	if cfg.Max > 0 && d > cfg.Max {
		return cfg.Max
	}
	return d
}
