package memory

import (
	"context"
	"sync"

	"github.com/BrandonDHaskell/Recertify/server/internal/recertify/store"
)

// CertificationEventStore is an in-memory append-only log of certification
// decisions.  It is intended for use in tests and dev environments.
type CertificationEventStore struct {
	mu     sync.Mutex
	events []store.CertificationEvent
}

func NewCertificationEventStore() *CertificationEventStore {
	return &CertificationEventStore{}
}

func (s *CertificationEventStore) RecordCertification(_ context.Context, ev store.CertificationEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

// Events returns a copy of all recorded events.  Test-only helper.
func (s *CertificationEventStore) Events() []store.CertificationEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.CertificationEvent, len(s.events))
	copy(out, s.events)
	return out
}
