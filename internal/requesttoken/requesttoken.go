// Package requesttoken tags outstanding async requests so that a response
// superseded by a newer request for the same key can be recognised and
// dropped on arrival. Requests are never cancelled.
package requesttoken

import "sync"

// Token identifies one issued request for a key. The zero Token is never
// issued.
type Token uint64

// Sequencer hands out monotonically increasing tokens per key.
type Sequencer struct {
	mu     sync.Mutex
	latest map[string]Token
}

// New returns an empty Sequencer.
func New() *Sequencer {
	return &Sequencer{latest: make(map[string]Token)}
}

// Issue records a new request for key and returns its token. Any token issued
// earlier for the same key becomes stale.
func (s *Sequencer) Issue(key string) Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == nil {
		s.latest = make(map[string]Token)
	}
	next := s.latest[key] + 1
	s.latest[key] = next
	return next
}

// IsLatest reports whether tok is still the newest token for key.
func (s *Sequencer) IsLatest(key string, tok Token) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return tok != 0 && s.latest[key] == tok
}

// Invalidate makes every outstanding token for key stale without starting a
// new request.
func (s *Sequencer) Invalidate(key string) {
	s.Issue(key)
}

// Commit runs apply only if tok is still the newest token for key. The check
// and apply happen under the sequencer lock, so a concurrent Issue cannot
// slip between them.
func (s *Sequencer) Commit(key string, tok Token, apply func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok == 0 || s.latest[key] != tok {
		return false
	}
	apply()
	return true
}
