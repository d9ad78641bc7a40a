package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Recertify/server/internal/metrics"
	"github.com/BrandonDHaskell/Recertify/server/internal/recertify/audit"
	"github.com/BrandonDHaskell/Recertify/server/internal/recertify/store"
	"github.com/BrandonDHaskell/Recertify/server/internal/recertify/types"
)

var (
	ErrNotFound       = store.ErrNotFound
	ErrInvalidRequest = errors.New("invalid certification request")
)

// CertificationService applies reviewer decisions.  The reviewer_id on the
// request is recorded for audit but not checked against the entitlement's
// assigned reviewer.
type CertificationService struct {
	store     store.EntitlementStore
	audit     audit.Logger
	validator *validator.Validate
	logger    *zap.Logger
	metrics   *metrics.Metrics
	now       Clock
}

func NewCertificationService(st store.EntitlementStore, al audit.Logger, clock Clock, logger *zap.Logger, m *metrics.Metrics) *CertificationService {
	return &CertificationService{
		store:     st,
		audit:     al,
		validator: validator.New(),
		logger:    logger.Named("certification"),
		metrics:   m,
		now:       orSystemClock(clock),
	}
}

// Certify records decision on one entitlement and reschedules it.  The
// status change, review date and new next_review_date are written in a
// single store update; if rescheduling fails nothing is written.
func (s *CertificationService) Certify(ctx context.Context, req types.CertifyRequest) (types.Entitlement, error) {
	req.Decision = strings.TrimSpace(req.Decision)
	req.ReviewerID = strings.TrimSpace(req.ReviewerID)
	if err := s.validator.Struct(req); err != nil {
		return types.Entitlement{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	now := s.now()
	updated, err := s.store.Update(ctx, req.AccessID, func(e *types.Entitlement) error {
		reviewed := now
		e.ReviewStatus = req.Decision
		e.LastReviewed = &reviewed
		e.ReviewComments = req.Comments
		return Schedule(e, now)
	})
	if err != nil {
		return types.Entitlement{}, err
	}

	s.metrics.ObserveCertification(req.Decision)
	s.recordEvent(ctx, req, now)
	return updated, nil
}

// recordEvent hands the decision to the audit collaborator.  A failed audit
// write is logged and does not undo the certification.
func (s *CertificationService) recordEvent(ctx context.Context, req types.CertifyRequest, at time.Time) {
	if s.audit == nil {
		return
	}
	ev := store.CertificationEvent{
		AccessID:   req.AccessID,
		ReviewerID: req.ReviewerID,
		Decision:   req.Decision,
		Comments:   req.Comments,
		At:         at,
	}
	if err := s.audit.RecordCertification(ctx, ev); err != nil {
		s.logger.Error("audit record failed",
			zap.Int64("access_id", req.AccessID),
			zap.String("reviewer_id", req.ReviewerID),
			zap.Error(err),
		)
	}
}
