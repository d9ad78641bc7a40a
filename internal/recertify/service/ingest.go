package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Recertify/server/internal/recertify/store"
	"github.com/BrandonDHaskell/Recertify/server/internal/recertify/types"
)

// Ingest schedules the records supplied by the data source and loads them
// into the store.  A record whose risk level is invalid is still loaded,
// unscheduled, and logged; it never appears in a due scan.  Records already
// in the store keep their review decision, and are scheduled from their
// stored last review.  Returns how many records were scheduled.
func Ingest(ctx context.Context, st store.EntitlementStore, recs []types.Entitlement, clock Clock, logger *zap.Logger) (int, error) {
	now := orSystemClock(clock)()

	scheduled := 0
	out := make([]types.Entitlement, 0, len(recs))
	for _, rec := range recs {
		e := rec.Clone()
		if e.ReviewStatus == "" {
			e.ReviewStatus = types.StatusPending
		}
		cur, err := st.Get(ctx, e.AccessID)
		switch {
		case err == nil:
			e.ReviewStatus = cur.ReviewStatus
			e.ReviewComments = cur.ReviewComments
			e.LastReviewed = cur.LastReviewed
		case !errors.Is(err, store.ErrNotFound):
			return 0, fmt.Errorf("ingest access_id=%d: %w", e.AccessID, err)
		}

		e.NextReviewDate = time.Time{}
		if err := Schedule(&e, now); err != nil {
			logger.Warn("entitlement left unscheduled",
				zap.Int64("access_id", e.AccessID),
				zap.String("risk_level", string(e.RiskLevel)),
				zap.Error(err),
			)
		} else {
			scheduled++
		}
		out = append(out, e)
	}

	if err := st.Load(ctx, out); err != nil {
		return 0, err
	}
	return scheduled, nil
}
