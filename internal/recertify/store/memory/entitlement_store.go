package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/BrandonDHaskell/Recertify/server/internal/recertify/store"
	"github.com/BrandonDHaskell/Recertify/server/internal/recertify/types"
)

// EntitlementStore keeps entitlements in a map guarded by a single RWMutex.
// Records handed out are deep copies.
type EntitlementStore struct {
	mu   sync.RWMutex
	data map[int64]types.Entitlement
}

func NewEntitlementStore() *EntitlementStore {
	return &EntitlementStore{
		data: make(map[int64]types.Entitlement),
	}
}

func (s *EntitlementStore) Load(_ context.Context, recs []types.Entitlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range recs {
		next := e.Clone()
		if cur, ok := s.data[e.AccessID]; ok {
			keepReviewState(&next, cur)
		}
		s.data[e.AccessID] = next
	}
	return nil
}

// keepReviewState copies the decision fields of cur onto a reloaded record.
func keepReviewState(next *types.Entitlement, cur types.Entitlement) {
	next.ReviewStatus = cur.ReviewStatus
	next.ReviewComments = cur.ReviewComments
	next.LastReviewed = nil
	if cur.LastReviewed != nil {
		t := *cur.LastReviewed
		next.LastReviewed = &t
	}
	if next.RiskLevel == cur.RiskLevel {
		next.NextReviewDate = cur.NextReviewDate
	}
}

func (s *EntitlementStore) List(_ context.Context) ([]types.Entitlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot(func(types.Entitlement) bool { return true }), nil
}

func (s *EntitlementStore) ListByReviewer(_ context.Context, reviewerID string) ([]types.Entitlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot(func(e types.Entitlement) bool { return e.ReviewerID == reviewerID }), nil
}

func (s *EntitlementStore) Get(_ context.Context, accessID int64) (types.Entitlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[accessID]
	if !ok {
		return types.Entitlement{}, store.ErrNotFound
	}
	return e.Clone(), nil
}

func (s *EntitlementStore) Update(_ context.Context, accessID int64, fn store.MutateFn) (types.Entitlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.data[accessID]
	if !ok {
		return types.Entitlement{}, store.ErrNotFound
	}

	next := cur.Clone()
	if err := fn(&next); err != nil {
		return types.Entitlement{}, err
	}
	next.AccessID = accessID

	s.data[accessID] = next
	return next.Clone(), nil
}

// snapshot must be called with mu held.
func (s *EntitlementStore) snapshot(keep func(types.Entitlement) bool) []types.Entitlement {
	out := make([]types.Entitlement, 0, len(s.data))
	for _, e := range s.data {
		if keep(e) {
			out = append(out, e.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccessID < out[j].AccessID })
	return out
}
