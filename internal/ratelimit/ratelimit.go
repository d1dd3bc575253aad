// Package ratelimit provides per-user token buckets for throttled vault
// operations.
package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
)

// PerUser keeps one token bucket per user id. Buckets are created lazily on
// first use and share the same rate and burst.
type PerUser struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	limit   rate.Limit
	burst   int
}

func NewPerUser(limit rate.Limit, burst int) *PerUser {
	return &PerUser{
		buckets: make(map[string]*rate.Limiter),
		limit:   limit,
		burst:   burst,
	}
}

// Allow consumes one token from the user's bucket, reporting whether the
// operation may proceed. Exhausted buckets reject immediately, they never
// queue.
func (p *PerUser) Allow(userID string) bool {
	p.mu.Lock()
	bucket, ok := p.buckets[userID]
	if !ok {
		bucket = rate.NewLimiter(p.limit, p.burst)
		p.buckets[userID] = bucket
	}
	p.mu.Unlock()
	return bucket.Allow()
}
