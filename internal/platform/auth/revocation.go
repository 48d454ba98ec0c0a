package auth

import (
	"sync"
	"time"
)

// RevocationList remembers logged-out session ids until the session would
// have expired anyway.
type RevocationList interface {
	Revoke(jti string, expiresAt time.Time)
	IsRevoked(jti string) bool
}

// MemoryRevocations is an in-process RevocationList. Entries are swept every
// interval once they pass their expiry.
type MemoryRevocations struct {
	mu      sync.RWMutex
	entries map[string]time.Time
	now     func() time.Time
	done    chan struct{}
}

func NewMemoryRevocations(interval time.Duration) *MemoryRevocations {
	s := &MemoryRevocations{
		entries: make(map[string]time.Time),
		now:     time.Now,
		done:    make(chan struct{}),
	}
	if interval > 0 {
		go s.cleanupLoop(interval)
	}
	return s
}

func (s *MemoryRevocations) Revoke(jti string, expiresAt time.Time) {
	if jti == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[jti] = expiresAt
}

func (s *MemoryRevocations) IsRevoked(jti string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[jti]
	return ok
}

func (s *MemoryRevocations) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close stops the sweeper. Safe to call more than once.
func (s *MemoryRevocations) Close() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

func (s *MemoryRevocations) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *MemoryRevocations) cleanup() {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for jti, exp := range s.entries {
		if now.After(exp) {
			delete(s.entries, jti)
		}
	}
}
