package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"text/template"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Recertify/server/internal/metrics"
	"github.com/BrandonDHaskell/Recertify/server/internal/recertify/delivery"
	"github.com/BrandonDHaskell/Recertify/server/internal/recertify/types"
)

var ErrDeliveryFailure = errors.New("notification delivery failed")

// DeliveryError reports one reviewer's failed delivery.  It matches
// ErrDeliveryFailure with errors.Is.
type DeliveryError struct {
	ReviewerID     string
	NotificationID string
	Err            error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver to reviewer %s: %v", e.ReviewerID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

func (e *DeliveryError) Is(target error) bool { return target == ErrDeliveryFailure }

// DispatchReport summarises one dispatch pass.
type DispatchReport struct {
	Notifications []types.Notification
	Delivered     int
	Failures      []*DeliveryError
}

const notificationSubject = "Access Review Certification Required"

var notificationBody = template.Must(template.New("reminder").Parse(
	`Dear {{.ReviewerName}},

You have {{.PendingCount}} access certifications pending review.
Please review the following access rights:
{{range .Items}}
- User: {{.UserName}} ({{.UserID}})
  System: {{.SystemName}} (Access Level: {{.AccessLevel}})
  Risk Level: {{.RiskLevel}}
{{end}}
Please complete your review by: {{.Deadline.Format "2006-01-02"}}
Review URL: {{.ReviewURL}}
`))

type reviewerKey struct {
	id   string
	name string
}

// NotificationDispatcher groups due entitlements per reviewer and hands one
// consolidated notification per reviewer to the delivery collaborator.
type NotificationDispatcher struct {
	sender        delivery.Sender
	reviewBaseURL string
	logger        *zap.Logger
	metrics       *metrics.Metrics
}

func NewNotificationDispatcher(sender delivery.Sender, reviewBaseURL string, logger *zap.Logger, m *metrics.Metrics) *NotificationDispatcher {
	return &NotificationDispatcher{
		sender:        sender,
		reviewBaseURL: strings.TrimRight(reviewBaseURL, "/"),
		logger:        logger.Named("dispatcher"),
		metrics:       m,
	}
}

// Build groups due by (reviewer_id, reviewer_name) and renders one
// notification per group, ordered by reviewer.  It does not deliver.
func (d *NotificationDispatcher) Build(due []types.Entitlement) ([]types.Notification, error) {
	groups := make(map[reviewerKey][]types.Entitlement)
	for _, e := range due {
		k := reviewerKey{id: e.ReviewerID, name: e.ReviewerName}
		groups[k] = append(groups[k], e)
	}

	keys := make([]reviewerKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].id != keys[j].id {
			return keys[i].id < keys[j].id
		}
		return keys[i].name < keys[j].name
	})

	out := make([]types.Notification, 0, len(keys))
	for _, k := range keys {
		n, err := d.render(k, groups[k])
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// Dispatch builds the notifications and delivers them one at a time.  A
// failed delivery is logged and recorded in the report; the remaining
// reviewers are still attempted.
func (d *NotificationDispatcher) Dispatch(ctx context.Context, due []types.Entitlement) (DispatchReport, error) {
	notes, err := d.Build(due)
	if err != nil {
		return DispatchReport{}, err
	}

	report := DispatchReport{Notifications: notes}
	for _, n := range notes {
		err := d.sender.Send(ctx, n)
		d.metrics.ObserveDelivery(d.sender.Name(), err)
		if err != nil {
			derr := &DeliveryError{ReviewerID: n.ReviewerID, NotificationID: n.ID, Err: err}
			report.Failures = append(report.Failures, derr)
			d.logger.Error("notification delivery failed",
				zap.String("reviewer_id", n.ReviewerID),
				zap.String("notification_id", n.ID),
				zap.String("sender", d.sender.Name()),
				zap.Error(err),
			)
			continue
		}
		report.Delivered++
		d.logger.Info("notification delivered",
			zap.String("reviewer_id", n.ReviewerID),
			zap.String("notification_id", n.ID),
			zap.Int("pending", n.PendingCount),
		)
	}
	return report, nil
}

func (d *NotificationDispatcher) render(k reviewerKey, ents []types.Entitlement) (types.Notification, error) {
	items := make([]types.NotificationItem, 0, len(ents))
	var deadline time.Time
	for _, e := range ents {
		if deadline.IsZero() || e.NextReviewDate.Before(deadline) {
			deadline = e.NextReviewDate
		}
		items = append(items, types.NotificationItem{
			AccessID:       e.AccessID,
			UserID:         e.UserID,
			UserName:       e.UserName,
			SystemName:     e.SystemName,
			AccessLevel:    e.AccessLevel,
			RiskLevel:      e.RiskLevel,
			NextReviewDate: e.NextReviewDate,
		})
	}

	n := types.Notification{
		ID:           uuid.NewString(),
		ReviewerID:   k.id,
		ReviewerName: k.name,
		PendingCount: len(items),
		Items:        items,
		Deadline:     deadline,
		ReviewURL:    d.reviewBaseURL + "/review/" + url.PathEscape(k.id),
		Subject:      notificationSubject,
	}

	var buf bytes.Buffer
	if err := notificationBody.Execute(&buf, n); err != nil {
		return types.Notification{}, fmt.Errorf("render notification for %s: %w", k.id, err)
	}
	n.Body = buf.String()
	return n, nil
}
