// Package ratelimit provides a token-bucket rate limiter used to bound how
// often a region index snapshot may be rebuilt.
package ratelimit

import (
	"sync"
	"time"
)

// Bucket is a token bucket rate limiter: it holds up to capacity tokens,
// refilling at refillRate tokens per second, and each Allow call attempts
// to spend one token.
type Bucket struct {
	capacity   int64
	tokens     int64
	refillRate int64
	lastRefill time.Time
	mu         sync.Mutex
}

// New returns a Bucket starting full, with the given capacity and
// per-second refill rate.
func New(capacity, refillRate int64) *Bucket {
	return &Bucket{
		capacity:   capacity,
		tokens:     capacity,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// Allow reports whether n tokens are available, consuming them if so.
func (b *Bucket) Allow(n int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()

	if b.tokens >= n {
		b.tokens -= n
		return true
	}
	return false
}

func (b *Bucket) refill() {
	now := time.Now()
	elapsed := now.Sub(b.lastRefill)
	add := int64(elapsed.Seconds() * float64(b.refillRate))

	if add > 0 {
		b.tokens = min64(b.capacity, b.tokens+add)
		b.lastRefill = now
	}
}

// WaitTime returns how long to wait until n tokens become available.
func (b *Bucket) WaitTime(n int64) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()

	if b.tokens >= n {
		return 0
	}
	needed := n - b.tokens
	seconds := float64(needed) / float64(b.refillRate)
	return time.Duration(seconds * float64(time.Second))
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
