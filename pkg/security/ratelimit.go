package security

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter is a per-identifier token bucket: capacity
// max_requests_per_hour, refilling at capacity/3600 tokens per second
// (spec.md §4.4). It is built directly on golang.org/x/time/rate, whose
// Limiter is exactly this bucket shape.
type RateLimiter struct {
	mu              sync.Mutex
	buckets         map[string]*bucket
	capacityPerHour float64
}

type bucket struct {
	limiter     *rate.Limiter
	threatScore float64
}

// NewRateLimiter creates a limiter with the given hourly capacity per
// identifier.
func NewRateLimiter(capacityPerHour float64) *RateLimiter {
	return &RateLimiter{
		buckets:         make(map[string]*bucket),
		capacityPerHour: capacityPerHour,
	}
}

func (r *RateLimiter) bucketFor(identifier string) *bucket {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.buckets[identifier]
	if !ok {
		b = &bucket{
			limiter: rate.NewLimiter(rate.Limit(r.capacityPerHour/3600), int(r.capacityPerHour)),
		}
		r.buckets[identifier] = b
	}
	return b
}

// Allow consumes one token for identifier. On denial it returns the
// seconds the caller must wait and bumps the identifier's threat score by
// 0.05 (spec.md §4.4).
func (r *RateLimiter) Allow(identifier string) (allowed bool, retryAfter time.Duration, threatScore float64) {
	b := r.bucketFor(identifier)
	reservation := b.limiter.ReserveN(time.Now(), 1)
	if !reservation.OK() {
		r.mu.Lock()
		b.threatScore += 0.05
		score := b.threatScore
		r.mu.Unlock()
		return false, 0, score
	}
	if delay := reservation.Delay(); delay > 0 {
		reservation.Cancel()
		r.mu.Lock()
		b.threatScore += 0.05
		score := b.threatScore
		r.mu.Unlock()
		return false, delay, score
	}
	r.mu.Lock()
	score := b.threatScore
	r.mu.Unlock()
	return true, 0, score
}

// ThreatScore returns the identifier's current historical threat score,
// used as a risk-scoring input (spec.md §4.4).
func (r *RateLimiter) ThreatScore(identifier string) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.buckets[identifier]; ok {
		return b.threatScore
	}
	return 0
}
