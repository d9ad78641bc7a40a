package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	dbpkg "github.com/BrandonDHaskell/Recertify/server/internal/db"
	"github.com/BrandonDHaskell/Recertify/server/internal/recertify/store"
	"github.com/BrandonDHaskell/Recertify/server/internal/recertify/types"
)

// EntitlementStore persists entitlements in SQLite.  Reads go straight to db;
// writes are serialised through the single-writer worker.
type EntitlementStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
	now    func() time.Time
}

func NewEntitlementStore(db *sql.DB, writer *dbpkg.Worker) *EntitlementStore {
	return &EntitlementStore{
		db:     db,
		writer: writer,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

const selectColumns = `
SELECT access_id, user_id, user_name, department, system_name, access_level,
       date_granted_ms, last_reviewed_ms, risk_level, reviewer_id, reviewer_name,
       review_status, review_comments, next_review_ms
FROM entitlements`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntitlement(r rowScanner) (types.Entitlement, error) {
	var (
		e        types.Entitlement
		risk     string
		granted  int64
		reviewed sql.NullInt64
		next     sql.NullInt64
	)
	if err := r.Scan(
		&e.AccessID, &e.UserID, &e.UserName, &e.Department, &e.SystemName, &e.AccessLevel,
		&granted, &reviewed, &risk, &e.ReviewerID, &e.ReviewerName,
		&e.ReviewStatus, &e.ReviewComments, &next,
	); err != nil {
		return types.Entitlement{}, err
	}

	e.RiskLevel = types.RiskLevel(risk)
	e.DateGranted = fromMillis(granted)
	if reviewed.Valid {
		t := fromMillis(reviewed.Int64)
		e.LastReviewed = &t
	}
	if next.Valid {
		e.NextReviewDate = fromMillis(next.Int64)
	}
	return e, nil
}

func (s *EntitlementStore) List(ctx context.Context) ([]types.Entitlement, error) {
	return s.query(ctx, selectColumns+` ORDER BY access_id;`)
}

func (s *EntitlementStore) ListByReviewer(ctx context.Context, reviewerID string) ([]types.Entitlement, error) {
	return s.query(ctx, selectColumns+` WHERE reviewer_id = ? ORDER BY access_id;`, strings.TrimSpace(reviewerID))
}

func (s *EntitlementStore) query(ctx context.Context, q string, args ...any) ([]types.Entitlement, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list entitlements: %w", err)
	}
	defer rows.Close()

	out := make([]types.Entitlement, 0)
	for rows.Next() {
		e, err := scanEntitlement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entitlement: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list entitlements: %w", err)
	}
	return out, nil
}

func (s *EntitlementStore) Get(ctx context.Context, accessID int64) (types.Entitlement, error) {
	e, err := scanEntitlement(s.db.QueryRowContext(ctx, selectColumns+` WHERE access_id = ?;`, accessID))
	if errors.Is(err, sql.ErrNoRows) {
		return types.Entitlement{}, store.ErrNotFound
	}
	if err != nil {
		return types.Entitlement{}, fmt.Errorf("get entitlement %d: %w", accessID, err)
	}
	return e, nil
}

// Update reads, mutates and writes the record inside one writer transaction.
func (s *EntitlementStore) Update(ctx context.Context, accessID int64, fn store.MutateFn) (types.Entitlement, error) {
	var out types.Entitlement
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		cur, err := scanEntitlement(tx.QueryRowContext(ctx, selectColumns+` WHERE access_id = ?;`, accessID))
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("Update select: %w", err)
		}

		if err := fn(&cur); err != nil {
			return err
		}
		cur.AccessID = accessID

		if _, err := tx.ExecContext(ctx, `
UPDATE entitlements
SET user_id          = ?,
    user_name        = ?,
    department       = ?,
    system_name      = ?,
    access_level     = ?,
    date_granted_ms  = ?,
    last_reviewed_ms = ?,
    risk_level       = ?,
    reviewer_id      = ?,
    reviewer_name    = ?,
    review_status    = ?,
    review_comments  = ?,
    next_review_ms   = ?,
    updated_at_ms    = ?
WHERE access_id = ?;
`,
			cur.UserID, cur.UserName, cur.Department, cur.SystemName, cur.AccessLevel,
			toMillis(cur.DateGranted), nullMillis(cur.LastReviewed), string(cur.RiskLevel),
			cur.ReviewerID, cur.ReviewerName, cur.ReviewStatus, cur.ReviewComments,
			nextMillis(cur.NextReviewDate), s.now().UnixMilli(), accessID,
		); err != nil {
			return fmt.Errorf("Update write: %w", err)
		}

		out = cur
		return nil
	})
	if err != nil {
		return types.Entitlement{}, err
	}
	return out, nil
}

// Load upserts recs in a single transaction, keyed by access_id.  Review
// state on an existing row is never overwritten.
func (s *EntitlementStore) Load(ctx context.Context, recs []types.Entitlement) error {
	ms := s.now().UnixMilli()
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
INSERT INTO entitlements(
  access_id, user_id, user_name, department, system_name, access_level,
  date_granted_ms, last_reviewed_ms, risk_level, reviewer_id, reviewer_name,
  review_status, review_comments, next_review_ms, created_at_ms, updated_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(access_id) DO UPDATE SET
  user_id          = excluded.user_id,
  user_name        = excluded.user_name,
  department       = excluded.department,
  system_name      = excluded.system_name,
  access_level     = excluded.access_level,
  date_granted_ms  = excluded.date_granted_ms,
  risk_level       = excluded.risk_level,
  reviewer_id      = excluded.reviewer_id,
  reviewer_name    = excluded.reviewer_name,
  next_review_ms   = CASE
                       WHEN entitlements.risk_level = excluded.risk_level THEN entitlements.next_review_ms
                       ELSE excluded.next_review_ms
                     END,
  updated_at_ms    = excluded.updated_at_ms;
`)
		if err != nil {
			return fmt.Errorf("Load prepare: %w", err)
		}
		defer stmt.Close()

		for _, e := range recs {
			if _, err := stmt.ExecContext(ctx,
				e.AccessID, e.UserID, e.UserName, e.Department, e.SystemName, e.AccessLevel,
				toMillis(e.DateGranted), nullMillis(e.LastReviewed), string(e.RiskLevel),
				e.ReviewerID, e.ReviewerName, e.ReviewStatus, e.ReviewComments,
				nextMillis(e.NextReviewDate), ms, ms,
			); err != nil {
				return fmt.Errorf("Load access_id=%d: %w", e.AccessID, err)
			}
		}
		return nil
	})
}

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

// nextMillis stores an unscheduled (zero) date as NULL.
func nextMillis(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(t), Valid: true}
}
