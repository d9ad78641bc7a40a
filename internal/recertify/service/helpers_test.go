package service_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/BrandonDHaskell/Recertify/server/internal/recertify/service"
	"github.com/BrandonDHaskell/Recertify/server/internal/recertify/store"
	"github.com/BrandonDHaskell/Recertify/server/internal/recertify/store/memory"
	"github.com/BrandonDHaskell/Recertify/server/internal/recertify/types"
)

var errBoom = errors.New("boom")

// refNow is the reference instant most tests run at.
var refNow = time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)

func fixedClock(t time.Time) service.Clock {
	return func() time.Time { return t }
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func ptr(t time.Time) *time.Time { return &t }

func pending(id int64, risk types.RiskLevel, reviewer string, next time.Time) types.Entitlement {
	return types.Entitlement{
		AccessID:       id,
		UserID:         "U001",
		UserName:       "John Doe",
		SystemName:     "CRM",
		AccessLevel:    "Admin",
		DateGranted:    day("2024-01-01"),
		RiskLevel:      risk,
		ReviewerID:     reviewer,
		ReviewerName:   "Reviewer " + reviewer,
		ReviewStatus:   types.StatusPending,
		NextReviewDate: next,
	}
}

// newLoadedStore returns a memory store holding recs verbatim.
func newLoadedStore(recs ...types.Entitlement) *memory.EntitlementStore {
	st := memory.NewEntitlementStore()
	if err := st.Load(context.Background(), recs); err != nil {
		panic(err)
	}
	return st
}

// ── Fake collaborators ───────────────────────────────────────────────────────

// recordingSender keeps every notification; failFor lists reviewer IDs whose
// delivery fails.
type recordingSender struct {
	mu      sync.Mutex
	sent    []types.Notification
	failFor map[string]bool
}

func (s *recordingSender) Name() string { return "recording" }

func (s *recordingSender) Send(_ context.Context, n types.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFor[n.ReviewerID] {
		return errBoom
	}
	s.sent = append(s.sent, n)
	return nil
}

func (s *recordingSender) Sent() []types.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Notification, len(s.sent))
	copy(out, s.sent)
	return out
}

// blockingSender parks the first Send until release is closed.
type blockingSender struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingSender() *blockingSender {
	return &blockingSender{entered: make(chan struct{}), release: make(chan struct{})}
}

func (s *blockingSender) Name() string { return "blocking" }

func (s *blockingSender) Send(ctx context.Context, _ types.Notification) error {
	s.once.Do(func() { close(s.entered) })
	select {
	case <-s.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type failingSelector struct{}

func (failingSelector) Due(context.Context) ([]types.Entitlement, error) {
	return nil, errBoom
}

type fixedLock struct {
	ok       bool
	err      error
	released int
}

func (l *fixedLock) Acquire(context.Context) (func(), bool, error) {
	if l.err != nil || !l.ok {
		return nil, false, l.err
	}
	return func() { l.released++ }, true, nil
}

type failingAudit struct{}

func (failingAudit) RecordCertification(context.Context, store.CertificationEvent) error { return errBoom }
