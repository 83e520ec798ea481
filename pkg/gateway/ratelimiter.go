package gateway

import (
	"sync"
	"time"
)

// Default per-connection limits
const (
	DefaultRequestsPerMinute = 60
	DefaultMaxConcurrent     = 10
)

// ClientRateLimiter bounds one connection's request rate over a sliding
// one-minute window and its number of requests in flight.
type ClientRateLimiter struct {
	mu                sync.Mutex
	requestsPerMinute int
	maxConcurrent     int
	requests          []time.Time
	inFlight          int

	now func() time.Time
}

// NewClientRateLimiter creates a limiter. Non-positive limits disable
// the corresponding check.
func NewClientRateLimiter(requestsPerMinute, maxConcurrent int) *ClientRateLimiter {
	return &ClientRateLimiter{
		requestsPerMinute: requestsPerMinute,
		maxConcurrent:     maxConcurrent,
		now:               time.Now,
	}
}

// Acquire admits one request. On success the caller must call release
// once the request completes.
func (r *ClientRateLimiter) Acquire() (release func(), err *RPCError) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.maxConcurrent > 0 && r.inFlight >= r.maxConcurrent {
		return nil, &RPCError{Code: TooManyConcurrent, Message: "too many concurrent requests"}
	}

	now := r.now()
	r.prune(now)
	if r.requestsPerMinute > 0 && len(r.requests) >= r.requestsPerMinute {
		return nil, &RPCError{Code: RateLimitExceeded, Message: "rate limit exceeded"}
	}

	r.requests = append(r.requests, now)
	r.inFlight++

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			if r.inFlight > 0 {
				r.inFlight--
			}
			r.mu.Unlock()
		})
	}, nil
}

// Stats returns the requests in the current window and those in flight
func (r *ClientRateLimiter) Stats() (requests, inFlight int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.prune(r.now())
	return len(r.requests), r.inFlight
}

// prune must be called with mu held
func (r *ClientRateLimiter) prune(now time.Time) {
	cutoff := now.Add(-time.Minute)
	kept := r.requests[:0]
	for _, t := range r.requests {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	r.requests = kept
}
