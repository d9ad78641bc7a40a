package service

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Recertify/server/internal/recertify/store"
	"github.com/BrandonDHaskell/Recertify/server/internal/recertify/types"
)

// DefaultLookahead is how far ahead of now an entitlement counts as due.
const DefaultLookahead = 7 * 24 * time.Hour

// SelectDue returns the pending entitlements whose next review date falls on
// or before now+window, ordered by next review date then access_id.
// Entitlements with an invalid risk level cannot be scheduled; they are
// passed to skip (if non-nil) and left out of the result.
func SelectDue(ents []types.Entitlement, now time.Time, window time.Duration, skip func(types.Entitlement)) []types.Entitlement {
	cutoff := now.Add(window)

	out := make([]types.Entitlement, 0)
	for _, e := range ents {
		if !e.Pending() {
			continue
		}
		if !e.RiskLevel.Valid() || e.NextReviewDate.IsZero() {
			if skip != nil {
				skip(e)
			}
			continue
		}
		if e.NextReviewDate.After(cutoff) {
			continue
		}
		out = append(out, e)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].NextReviewDate.Equal(out[j].NextReviewDate) {
			return out[i].NextReviewDate.Before(out[j].NextReviewDate)
		}
		return out[i].AccessID < out[j].AccessID
	})
	return out
}

// DueReviewSelector reads the store and picks the entitlements that need a
// reviewer's attention.
type DueReviewSelector struct {
	store  store.EntitlementStore
	window time.Duration
	logger *zap.Logger
	now    Clock
}

func NewDueReviewSelector(st store.EntitlementStore, window time.Duration, clock Clock, logger *zap.Logger) *DueReviewSelector {
	if window <= 0 {
		window = DefaultLookahead
	}
	return &DueReviewSelector{
		store:  st,
		window: window,
		logger: logger.Named("due_selector"),
		now:    orSystemClock(clock),
	}
}

// Due returns the entitlements due within the lookahead window.  An empty
// result is not an error.
func (s *DueReviewSelector) Due(ctx context.Context) ([]types.Entitlement, error) {
	ents, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	return SelectDue(ents, s.now(), s.window, func(e types.Entitlement) {
		s.logger.Warn("skipping unschedulable entitlement",
			zap.Int64("access_id", e.AccessID),
			zap.String("risk_level", string(e.RiskLevel)),
			zap.Error(ErrInvalidRiskLevel),
		)
	}), nil
}
