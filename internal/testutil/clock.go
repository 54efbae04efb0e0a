// Package testutil provides shared test fixtures: a controllable clock
// and batch-directory builders.
package testutil

import (
	"sync"
	"time"
)

// FixedClock is a thread-safe controllable time source for tests.
//
// Unlike time.Now, it only moves when a test calls Advance, which makes
// timestamp-dependent behavior (run records, backup pruning order)
// deterministic.
type FixedClock struct {
	mu sync.Mutex
	t  time.Time
}

// NewFixedClock creates a clock pinned at the given instant.
func NewFixedClock(t time.Time) *FixedClock {
	return &FixedClock{t: t}
}

// Now returns the current pinned instant. Pass the method value as a
// `func() time.Time` clock dependency.
func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Advance moves the clock forward by d and returns the new instant.
func (c *FixedClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
	return c.t
}
