package waitsignal

import (
	"sync"
	"time"
)

// Policy selects how pending signals accumulate.
type Policy int

const (
	// Queue keeps a counter of pending signals.
	Queue Policy = iota
	// LatestOnly keeps at most one pending signal.
	LatestOnly
)

func (p Policy) String() string {
	switch p {
	case Queue:
		return "queue"
	case LatestOnly:
		return "latest_only"
	default:
		return "unknown"
	}
}

// Cond is a wait/signal primitive with queued wake semantics. The zero value
// is a Queue-policy Cond ready to use.
type Cond struct {
	mu      sync.Mutex
	policy  Policy
	pending int
	waiters []chan struct{}
}

// New creates a Cond with the given policy.
func New(policy Policy) *Cond {
	return &Cond{policy: policy}
}

// Wait blocks until a signal is consumed or timeout elapses. A negative
// timeout waits forever and a zero timeout only polls. It reports whether a
// signal was consumed.
func (c *Cond) Wait(timeout time.Duration) bool {
	c.mu.Lock()
	if c.pending > 0 {
		c.pending--
		c.mu.Unlock()
		return true
	}
	if timeout == 0 {
		c.mu.Unlock()
		return false
	}

	ch := make(chan struct{}, 1)
	c.waiters = append(c.waiters, ch)
	c.mu.Unlock()

	if timeout < 0 {
		<-ch
		return true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ch:
		return true
	case <-timer.C:
	}

	c.mu.Lock()
	for i, w := range c.waiters {
		if w == ch {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			c.mu.Unlock()
			return false
		}
	}
	c.mu.Unlock()

	// A signaller removed us before the timer fired; the wake is already
	// buffered in ch.
	<-ch
	return true
}

// SignalOne wakes the longest waiting goroutine, or queues the signal if no
// goroutine is waiting.
func (c *Cond) SignalOne() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.waiters) > 0 {
		ch := c.waiters[0]
		c.waiters = c.waiters[1:]
		ch <- struct{}{}
		return
	}

	if c.policy == LatestOnly {
		c.pending = 1
		return
	}
	c.pending++
}

// SignalAll wakes every current waiter and discards pending signals.
func (c *Cond) SignalAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, ch := range c.waiters {
		ch <- struct{}{}
	}
	c.waiters = nil
	c.pending = 0
}

// Reset discards pending signals without waking anybody.
func (c *Cond) Reset() {
	c.mu.Lock()
	c.pending = 0
	c.mu.Unlock()
}

// Pending returns the number of queued signals.
func (c *Cond) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// Waiting returns the number of goroutines blocked in Wait.
func (c *Cond) Waiting() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// Policy returns the queuing policy.
func (c *Cond) Policy() Policy {
	return c.policy
}
