// Package delivery holds the transports that carry reviewer notifications.
// The dispatcher renders payloads; a Sender only moves them.
package delivery

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Recertify/server/internal/recertify/types"
)

// Sender delivers one notification per call and reports whether it worked.
type Sender interface {
	// Name identifies the transport in logs and metrics.
	Name() string
	Send(ctx context.Context, n types.Notification) error
}

// LogSender writes notifications to the log instead of delivering them.
// It is the default transport in dev.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger.Named("notification")}
}

func (s *LogSender) Name() string { return "log" }

func (s *LogSender) Send(_ context.Context, n types.Notification) error {
	s.logger.Info(n.Subject,
		zap.String("notification_id", n.ID),
		zap.String("reviewer_id", n.ReviewerID),
		zap.String("reviewer_name", n.ReviewerName),
		zap.Int("pending", n.PendingCount),
		zap.Time("deadline", n.Deadline),
		zap.String("review_url", n.ReviewURL),
		zap.String("body", n.Body),
	)
	return nil
}

// MultiSender fans a notification out to several transports.  Every sender
// is attempted; the joined error reports which ones failed.
type MultiSender struct {
	senders []Sender
}

func NewMultiSender(senders ...Sender) *MultiSender {
	return &MultiSender{senders: senders}
}

func (m *MultiSender) Name() string { return "multi" }

func (m *MultiSender) Send(ctx context.Context, n types.Notification) error {
	var errs []error
	for _, s := range m.senders {
		if err := s.Send(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}
