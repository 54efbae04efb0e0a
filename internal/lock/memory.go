package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memoryLockState is the shared lock record behind MemoryLocker handles.
// It plays the role the Redis key plays for RedisLocker: it remembers
// the current owner token and the hold deadline.
type memoryLockState struct {
	mu       sync.Mutex
	owner    string
	deadline time.Time

	ttl time.Duration

	// now is swapped in tests to simulate TTL expiry.
	now func() time.Time
}

// MemoryLocker implements Locker with in-process state. It honors the
// same semantics as the Redis backend: a held lock older than the TTL
// can be taken over, and Release is owner-checked so an expired holder
// cannot release a successor's lock. It only serializes ticks within a
// single process, and is the default when no Redis URL is configured.
type MemoryLocker struct {
	state *memoryLockState
	token string
}

var _ Locker = (*MemoryLocker)(nil)

// NewMemoryLocker creates an in-process locker with the given hold TTL.
func NewMemoryLocker(ttl time.Duration) *MemoryLocker {
	return &MemoryLocker{state: &memoryLockState{ttl: ttl, now: time.Now}}
}

// Handle returns a new locker contending for the same lock, the way two
// RedisLocker instances contend for the same key.
func (l *MemoryLocker) Handle() *MemoryLocker {
	return &MemoryLocker{state: l.state}
}

// Acquire takes the lock unless it is held and its TTL has not expired.
func (l *MemoryLocker) Acquire(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s := l.state
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.owner != "" && s.now().Before(s.deadline) {
		return false, nil
	}
	l.token = uuid.NewString()
	s.owner = l.token
	s.deadline = s.now().Add(s.ttl)
	return true, nil
}

// Release releases the lock if this handle still owns it. Releasing an
// unheld or taken-over lock is a no-op.
func (l *MemoryLocker) Release(ctx context.Context) error {
	s := l.state
	s.mu.Lock()
	defer s.mu.Unlock()

	if l.token != "" && s.owner == l.token {
		s.owner = ""
		s.deadline = time.Time{}
	}
	l.token = ""
	return nil
}
