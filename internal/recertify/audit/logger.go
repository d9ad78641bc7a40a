// Package audit emits certification decisions to the logging collaborator.
package audit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Recertify/server/internal/recertify/store"
)

// Logger accepts structured certification events.
type Logger interface {
	RecordCertification(ctx context.Context, ev store.CertificationEvent) error
}

// ZapLogger writes each event as one structured log line on the "audit"
// logger.  It never fails.
type ZapLogger struct {
	logger *zap.Logger
}

func NewZapLogger(logger *zap.Logger) *ZapLogger {
	return &ZapLogger{logger: logger.Named("audit")}
}

func (l *ZapLogger) RecordCertification(_ context.Context, ev store.CertificationEvent) error {
	l.logger.Info("entitlement certified",
		zap.Int64("access_id", ev.AccessID),
		zap.String("reviewer_id", ev.ReviewerID),
		zap.String("decision", ev.Decision),
		zap.String("comments", ev.Comments),
		zap.String("at", ev.At.UTC().Format(time.RFC3339Nano)),
	)
	return nil
}
