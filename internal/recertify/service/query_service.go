package service

import (
	"context"
	"strings"
	"time"

	"github.com/BrandonDHaskell/Recertify/server/internal/recertify/store"
	"github.com/BrandonDHaskell/Recertify/server/internal/recertify/types"
)

// QueryService answers the read-only questions asked by the presentation
// layer.  Each answer is computed from a single store snapshot.
type QueryService struct {
	store  store.EntitlementStore
	window time.Duration
	now    Clock
}

func NewQueryService(st store.EntitlementStore, window time.Duration, clock Clock) *QueryService {
	if window <= 0 {
		window = DefaultLookahead
	}
	return &QueryService{store: st, window: window, now: orSystemClock(clock)}
}

// ReviewQueue lists a reviewer's entitlements.  The reviewer name is taken
// from their first entitlement and is nil if they have none.
func (q *QueryService) ReviewQueue(ctx context.Context, reviewerID string) (types.ReviewQueue, error) {
	reviewerID = strings.TrimSpace(reviewerID)
	items, err := q.store.ListByReviewer(ctx, reviewerID)
	if err != nil {
		return types.ReviewQueue{}, err
	}

	queue := types.ReviewQueue{ReviewerID: reviewerID, Items: items}
	if len(items) > 0 {
		name := items[0].ReviewerName
		queue.ReviewerName = &name
	}
	return queue, nil
}

// Summary counts entitlements by review status, risk level and system.
func (q *QueryService) Summary(ctx context.Context) (types.Summary, error) {
	ents, err := q.store.List(ctx)
	if err != nil {
		return types.Summary{}, err
	}

	sum := types.Summary{
		ByStatus: make(map[string]int),
		ByRisk:   make(map[string]int),
		BySystem: make(map[string]int),
	}
	for _, e := range ents {
		sum.ByStatus[e.ReviewStatus]++
		sum.ByRisk[string(e.RiskLevel)]++
		sum.BySystem[e.SystemName]++
	}
	return sum, nil
}

// Dashboard returns the headline counts.  Due uses the same rule as the
// review trigger.
func (q *QueryService) Dashboard(ctx context.Context) (types.Dashboard, error) {
	ents, err := q.store.List(ctx)
	if err != nil {
		return types.Dashboard{}, err
	}

	d := types.Dashboard{Total: len(ents)}
	for _, e := range ents {
		if e.RiskLevel == types.RiskHigh {
			d.HighRisk++
		}
		if e.Pending() {
			d.Pending++
		}
	}
	d.Due = len(SelectDue(ents, q.now(), q.window, nil))
	return d, nil
}
