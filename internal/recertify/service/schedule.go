package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/BrandonDHaskell/Recertify/server/internal/recertify/types"
)

var ErrInvalidRiskLevel = errors.New("invalid risk level")

// Cadence returns how many days may pass between certifications for risk.
func Cadence(risk types.RiskLevel) (int, error) {
	switch risk {
	case types.RiskHigh:
		return 30, nil
	case types.RiskMedium:
		return 90, nil
	case types.RiskLow:
		return 180, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidRiskLevel, string(risk))
}

// NextReviewDate computes when an entitlement must next be certified.  The
// base is the last review if there was one, otherwise the grant date.  A
// result already in the past is clamped to now so the record lands in the
// next due window instead of staying overdue by a fixed offset.
func NextReviewDate(risk types.RiskLevel, lastReviewed *time.Time, granted, now time.Time) (time.Time, error) {
	days, err := Cadence(risk)
	if err != nil {
		return time.Time{}, err
	}

	base := granted
	if lastReviewed != nil {
		base = *lastReviewed
	}

	next := base.AddDate(0, 0, days)
	if next.Before(now) {
		next = now
	}
	return next, nil
}

// Schedule recomputes e.NextReviewDate in place.  On error e is unchanged.
func Schedule(e *types.Entitlement, now time.Time) error {
	next, err := NextReviewDate(e.RiskLevel, e.LastReviewed, e.DateGranted, now)
	if err != nil {
		return fmt.Errorf("schedule access_id=%d: %w", e.AccessID, err)
	}
	e.NextReviewDate = next
	return nil
}
