package text

import (
	"testing"
	"time"
)

func TestSessionPutTake(t *testing.T) {
	s := NewSessionStore(5 * time.Minute)

	s.Put("15551234567", "Groceries", 2550)

	entry, ok := s.Take("15551234567")
	if !ok {
		t.Fatal("expected pending entry")
	}
	if entry.EnvelopeName != "Groceries" || entry.AmountCents != 2550 {
		t.Fatalf("unexpected entry: %+v", entry)
	}

	// Consumed: a second take finds nothing.
	if _, ok := s.Take("15551234567"); ok {
		t.Fatal("entry not consumed by first take")
	}
}

func TestSessionOverwrite(t *testing.T) {
	s := NewSessionStore(5 * time.Minute)

	s.Put("15551234567", "Groceries", 2550)
	s.Put("15551234567", "Vacation", 10000)

	if s.Len() != 1 {
		t.Fatalf("expected one entry per sender, got %d", s.Len())
	}
	entry, ok := s.Take("15551234567")
	if !ok || entry.EnvelopeName != "Vacation" || entry.AmountCents != 10000 {
		t.Fatalf("expected latest entry, got %+v (ok=%v)", entry, ok)
	}
}

func TestSessionExpiry(t *testing.T) {
	s := NewSessionStore(5 * time.Minute)
	now := time.Now()
	s.now = func() time.Time { return now }

	s.Put("15551234567", "Groceries", 2550)

	// Exactly at the TTL the entry is still valid.
	now = now.Add(5 * time.Minute)
	entry, ok := s.Take("15551234567")
	if !ok || entry.AmountCents != 2550 {
		t.Fatalf("entry at TTL boundary should be valid, got %+v (ok=%v)", entry, ok)
	}

	// Past the TTL it is treated as absent.
	now = time.Now()
	s.now = func() time.Time { return now }
	s.Put("15551234567", "Groceries", 2550)
	now = now.Add(6 * time.Minute)
	if _, ok := s.Take("15551234567"); ok {
		t.Fatal("expired entry returned from take")
	}
	if s.Len() != 0 {
		t.Fatalf("expired entry not removed, len=%d", s.Len())
	}
}

func TestSessionPurgeExpired(t *testing.T) {
	s := NewSessionStore(5 * time.Minute)
	now := time.Now()
	s.now = func() time.Time { return now }

	s.Put("1111", "Groceries", 100)
	s.Put("2222", "Vacation", 200)
	now = now.Add(3 * time.Minute)
	s.Put("3333", "Rent", 300)

	now = now.Add(3 * time.Minute) // first two are now 6m old, third 3m
	if removed := s.PurgeExpired(); removed != 2 {
		t.Fatalf("expected 2 purged, got %d", removed)
	}
	if s.Len() != 1 {
		t.Fatalf("expected 1 remaining, got %d", s.Len())
	}
	if _, ok := s.Take("3333"); !ok {
		t.Fatal("fresh entry should survive the purge")
	}
}
