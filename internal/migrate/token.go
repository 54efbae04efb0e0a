package migrate

import (
	"sync"

	"github.com/google/uuid"
)

// TokenSource generates run tokens for import runs.
// Implemented by UUIDv7Source (production) and FixedTokenSource (tests).
type TokenSource interface {
	Generate() string
}

// UUIDv7Source generates time-sortable UUIDv7 run tokens.
//
// UUIDv7 embeds a timestamp in the most significant bits, so run tokens
// sort by start time, which is convenient when scanning the run history.
//
// Thread-safety: UUIDv7Source is stateless and safe for concurrent use.
type UUIDv7Source struct{}

// Generate creates a new UUIDv7 as a hyphenated string.
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Source) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedTokenSource returns predetermined tokens for deterministic tests.
//
// Thread-safety: safe for concurrent use via internal mutex.
type FixedTokenSource struct {
	mu     sync.Mutex
	tokens []string
	idx    int
}

// NewFixedTokenSource creates a source that returns tokens in order.
//
// Example:
//
//	src := NewFixedTokenSource("run-1", "run-2")
//	src.Generate() // "run-1"
//	src.Generate() // "run-2"
//	src.Generate() // panic: tokens exhausted
func NewFixedTokenSource(tokens ...string) *FixedTokenSource {
	return &FixedTokenSource{tokens: tokens}
}

// Generate returns the next predetermined token.
//
// Panics when all tokens are consumed: a test drawing more tokens than
// it provided is a test bug, and failing fast surfaces it immediately.
func (s *FixedTokenSource) Generate() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.idx >= len(s.tokens) {
		panic("FixedTokenSource: tokens exhausted")
	}
	token := s.tokens[s.idx]
	s.idx++
	return token
}
