package presence

import (
	"sync"
	"time"
)

// DefaultWindow is the presence coalescing window.
const DefaultWindow = 200 * time.Millisecond

// Coalescer merges bursts of presence-change requests into one broadcast
// per window. The first Request in an idle coalescer starts a single-shot
// timer; requests landing while the timer is pending only merge their
// excluded keys into the accumulating set. When the window elapses the
// flush callback runs once with the union of all excludes, and the next
// Request starts a fresh window. Generic over the key type used for
// exclusion so rooms can exclude by connection id.
type Coalescer[K comparable] struct {
	mu      sync.Mutex
	window  time.Duration
	flush   func(exclude map[K]struct{})
	timer   *time.Timer
	pending bool
	exclude map[K]struct{}
	stopped bool
}

func NewCoalescer[K comparable](window time.Duration, flush func(exclude map[K]struct{})) *Coalescer[K] {
	return &Coalescer[K]{window: window, flush: flush}
}

// Request signals that presence may have changed. Returns immediately;
// the broadcast happens asynchronously once the window elapses. Excluded
// keys accumulate across all requests absorbed into the same window.
func (c *Coalescer[K]) Request(exclude ...K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	if c.exclude == nil {
		c.exclude = make(map[K]struct{})
	}
	for _, k := range exclude {
		c.exclude[k] = struct{}{}
	}
	if c.pending {
		return
	}
	c.pending = true
	c.timer = time.AfterFunc(c.window, c.fire)
}

func (c *Coalescer[K]) fire() {
	c.mu.Lock()
	exclude := c.exclude
	c.exclude = nil
	c.pending = false
	stopped := c.stopped
	c.mu.Unlock()
	if stopped {
		return
	}
	c.flush(exclude)
}

// Stop cancels any pending window. Idempotent; a stopped coalescer
// ignores further requests.
func (c *Coalescer[K]) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	if c.timer != nil {
		c.timer.Stop()
	}
	c.exclude = nil
	c.pending = false
}
