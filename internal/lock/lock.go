// Package lock provides the single-flight import lock.
//
// The lock serializes import runs across scheduler ticks, and across
// machine instances when the Redis backend is used. Holds are bounded by
// a TTL: a run that legitimately outlives the TTL loses exclusivity and
// may overlap with the next tick. That is an accepted tradeoff of the
// design (the TTL exists so a crashed holder cannot wedge imports
// forever) and is deliberately not worked around here. Release is
// owner-checked, so an expired holder cannot release a successor's lock.
package lock

import "context"

// Locker is a single named, non-reentrant, TTL-bounded lock.
//
// Acquire does not block or retry; callers treat a false return as
// "another run is active" and try again on the next tick. Every
// successful Acquire must be paired with exactly one Release, including
// on error paths. Release is idempotent: releasing an unheld lock is
// not an error.
type Locker interface {
	// Acquire attempts to take the lock. Returns false if it is already
	// held elsewhere.
	Acquire(ctx context.Context) (bool, error)

	// Release releases the lock if this locker still holds it.
	Release(ctx context.Context) error
}
