// Package ratelimit bounds per-identity message throughput with a fixed
// counter window per key and a hard ceiling on tracked keys.
package ratelimit

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// MaxTrackedKeys is a hard memory bound, not a soft hint: the key space
// is attacker-influenced, every new socket can present a new identity.
const MaxTrackedKeys = 20000

type window struct {
	start time.Time
	count int
}

// Limiter allows up to limit events per key per interval. The key map is
// an LRU capped at MaxTrackedKeys; inserting past the ceiling evicts the
// least recently checked key and never rejects the key being recorded.
type Limiter struct {
	mu       sync.Mutex
	keys     *lru.Cache[string, *window]
	limit    int
	interval time.Duration
}

func NewLimiter(limit int, interval time.Duration) *Limiter {
	keys, err := lru.New[string, *window](MaxTrackedKeys)
	if err != nil {
		panic(err) // only possible with a non-positive size
	}
	return &Limiter{
		keys:     keys,
		limit:    limit,
		interval: interval,
	}
}

// Allow records one event for key at time now and reports whether it is
// within quota.
func (l *Limiter) Allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.keys.Get(key)
	if !ok || now.Sub(w.start) >= l.interval {
		l.keys.Add(key, &window{start: now, count: 1})
		return true
	}
	if w.count >= l.limit {
		return false
	}
	w.count++
	return true
}

// TrackedKeys returns the number of keys currently held.
func (l *Limiter) TrackedKeys() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.keys.Len()
}
