package text

import (
	"sync"
	"time"
)

// PendingEntry is a short-lived record of an amount whose sign was omitted,
// waiting for the sender's "add" or "subtract" follow-up. The envelope name
// is kept as typed; it is resolved only when the entry is consumed.
type PendingEntry struct {
	EnvelopeName string
	AmountCents  int64
	CreatedAt    time.Time
}

// SessionStore holds at most one pending entry per sender. Expiry is lazy:
// entries past the TTL are treated as absent on Take and removed by
// PurgeExpired, which callers run per request instead of on a timer.
type SessionStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]PendingEntry
}

func NewSessionStore(ttl time.Duration) *SessionStore {
	return &SessionStore{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]PendingEntry),
	}
}

// Put stores a pending entry for the sender, overwriting any existing one.
func (s *SessionStore) Put(sender, envelopeName string, amountCents int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[sender] = PendingEntry{
		EnvelopeName: envelopeName,
		AmountCents:  amountCents,
		CreatedAt:    s.now(),
	}
}

// Take removes and returns the sender's pending entry if it exists and has
// not expired. The entry is gone either way; a consumed entry is never
// reapplied even if the follow-up fails downstream.
func (s *SessionStore) Take(sender string) (PendingEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[sender]
	if !ok {
		return PendingEntry{}, false
	}
	delete(s.entries, sender)
	if s.now().Sub(entry.CreatedAt) > s.ttl {
		return PendingEntry{}, false
	}
	return entry, true
}

// PurgeExpired removes all expired entries and returns how many were removed.
func (s *SessionStore) PurgeExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for sender, entry := range s.entries {
		if now.Sub(entry.CreatedAt) > s.ttl {
			delete(s.entries, sender)
			removed++
		}
	}
	return removed
}

// Len returns the current number of pending entries.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
