package sqlite_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/BrandonDHaskell/Recertify/server/internal/recertify/store"
	"github.com/BrandonDHaskell/Recertify/server/internal/recertify/store/sqlite"
	"github.com/BrandonDHaskell/Recertify/server/internal/recertify/types"
)

func newTestStore(t *testing.T) *sqlite.EntitlementStore {
	t.Helper()
	conn := openTestDB(t)
	return sqlite.NewEntitlementStore(conn, newTestWriter(t, conn))
}

func sampleEntitlement(id int64, reviewer string) types.Entitlement {
	reviewed := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	return types.Entitlement{
		AccessID:       id,
		UserID:         "U001",
		UserName:       "John Doe",
		Department:     "IT",
		SystemName:     "CRM",
		AccessLevel:    "Admin",
		DateGranted:    time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		LastReviewed:   &reviewed,
		RiskLevel:      types.RiskHigh,
		ReviewerID:     reviewer,
		ReviewerName:   "Alex Manager",
		ReviewStatus:   types.StatusPending,
		NextReviewDate: time.Date(2024, 4, 14, 0, 0, 0, 0, time.UTC),
	}
}

// ── Load / read ──────────────────────────────────────────────────────────────

func TestEntitlementStore_LoadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	want := sampleEntitlement(1, "M001")
	never := sampleEntitlement(2, "M002")
	never.LastReviewed = nil
	never.RiskLevel = "Critical"
	never.NextReviewDate = time.Time{}

	if err := s.Load(ctx, []types.Entitlement{want, never}); err != nil {
		t.Fatalf("Load: %v", err)
	}

	got, err := s.Get(ctx, 1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.UserName != want.UserName || got.RiskLevel != want.RiskLevel || got.ReviewStatus != want.ReviewStatus {
		t.Errorf("fields differ: got %+v", got)
	}
	if got.LastReviewed == nil || !got.LastReviewed.Equal(*want.LastReviewed) {
		t.Errorf("last_reviewed: got %v, want %v", got.LastReviewed, want.LastReviewed)
	}
	if !got.NextReviewDate.Equal(want.NextReviewDate) || !got.DateGranted.Equal(want.DateGranted) {
		t.Errorf("dates differ: got next=%s granted=%s", got.NextReviewDate, got.DateGranted)
	}

	got2, err := s.Get(ctx, 2)
	if err != nil {
		t.Fatalf("Get 2: %v", err)
	}
	if got2.LastReviewed != nil {
		t.Errorf("expected nil last_reviewed, got %v", got2.LastReviewed)
	}
	if !got2.NextReviewDate.IsZero() {
		t.Errorf("expected unscheduled record, got next=%s", got2.NextReviewDate)
	}
}

func TestEntitlementStore_LoadUpserts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	e := sampleEntitlement(1, "M001")
	if err := s.Load(ctx, []types.Entitlement{e}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	e.ReviewerID = "M009"
	if err := s.Load(ctx, []types.Entitlement{e}); err != nil {
		t.Fatalf("Load again: %v", err)
	}

	all, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 1 || all[0].ReviewerID != "M009" {
		t.Fatalf("expected one upserted row, got %+v", all)
	}
}

func TestEntitlementStore_LoadKeepsReviewState(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	e := sampleEntitlement(1, "M001")
	if err := s.Load(ctx, []types.Entitlement{e}); err != nil {
		t.Fatalf("Load: %v", err)
	}

	decided := time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)
	next := decided.AddDate(0, 0, 30)
	if _, err := s.Update(ctx, 1, func(cur *types.Entitlement) error {
		cur.ReviewStatus = types.StatusApproved
		cur.ReviewComments = "still needed"
		cur.LastReviewed = &decided
		cur.NextReviewDate = next
		return nil
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	// Reloading the source record must not undo the decision.
	e.ReviewerName = "Alex Manager (IT)"
	if err := s.Load(ctx, []types.Entitlement{e}); err != nil {
		t.Fatalf("reload: %v", err)
	}
	got, err := s.Get(ctx, 1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ReviewStatus != types.StatusApproved || got.ReviewComments != "still needed" {
		t.Errorf("decision overwritten: status=%q comments=%q", got.ReviewStatus, got.ReviewComments)
	}
	if got.LastReviewed == nil || !got.LastReviewed.Equal(decided) {
		t.Errorf("last_reviewed = %v, want %s", got.LastReviewed, decided)
	}
	if !got.NextReviewDate.Equal(next) {
		t.Errorf("next review = %s, want %s", got.NextReviewDate, next)
	}
	if got.ReviewerName != "Alex Manager (IT)" {
		t.Errorf("reviewer name not refreshed: %q", got.ReviewerName)
	}

	// A risk change takes the incoming schedule.
	e.RiskLevel = types.RiskLow
	e.NextReviewDate = decided.AddDate(0, 0, 180)
	if err := s.Load(ctx, []types.Entitlement{e}); err != nil {
		t.Fatalf("reload with new risk: %v", err)
	}
	got, err = s.Get(ctx, 1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.RiskLevel != types.RiskLow || !got.NextReviewDate.Equal(e.NextReviewDate) {
		t.Errorf("risk=%q next=%s, want Low/%s", got.RiskLevel, got.NextReviewDate, e.NextReviewDate)
	}
	if got.ReviewStatus != types.StatusApproved {
		t.Errorf("status = %q after risk change, want Approved", got.ReviewStatus)
	}
}

func TestEntitlementStore_ListByReviewer(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_ = s.Load(ctx, []types.Entitlement{
		sampleEntitlement(3, "M001"),
		sampleEntitlement(1, "M001"),
		sampleEntitlement(2, "M002"),
	})

	mine, err := s.ListByReviewer(ctx, "M001")
	if err != nil {
		t.Fatalf("ListByReviewer: %v", err)
	}
	if len(mine) != 2 || mine[0].AccessID != 1 || mine[1].AccessID != 3 {
		t.Fatalf("unexpected queue: %+v", mine)
	}

	none, err := s.ListByReviewer(ctx, "M404")
	if err != nil {
		t.Fatalf("ListByReviewer empty: %v", err)
	}
	if none == nil || len(none) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", none)
	}
}

func TestEntitlementStore_GetMissing(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Get(context.Background(), 77); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// ── Update ───────────────────────────────────────────────────────────────────

func TestEntitlementStore_UpdatePersists(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_ = s.Load(ctx, []types.Entitlement{sampleEntitlement(5, "M002")})

	at := time.Date(2024, 4, 1, 9, 30, 0, 0, time.UTC)
	got, err := s.Update(ctx, 5, func(e *types.Entitlement) error {
		e.ReviewStatus = types.StatusApproved
		e.LastReviewed = &at
		e.ReviewComments = "ok"
		e.NextReviewDate = at.AddDate(0, 0, 30)
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	stored, err := s.Get(ctx, 5)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.ReviewStatus != types.StatusApproved || stored.ReviewComments != "ok" {
		t.Errorf("update not persisted: %+v", stored)
	}
	if !stored.LastReviewed.Equal(at) || !stored.NextReviewDate.Equal(got.NextReviewDate) {
		t.Errorf("dates not persisted: last=%v next=%s", stored.LastReviewed, stored.NextReviewDate)
	}
}

func TestEntitlementStore_UpdateErrorRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_ = s.Load(ctx, []types.Entitlement{sampleEntitlement(5, "M002")})

	boom := errors.New("boom")
	_, err := s.Update(ctx, 5, func(e *types.Entitlement) error {
		e.ReviewStatus = types.StatusRevoked
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	stored, _ := s.Get(ctx, 5)
	if stored.ReviewStatus != types.StatusPending {
		t.Errorf("failed update leaked: status=%s", stored.ReviewStatus)
	}
}

func TestEntitlementStore_UpdateMissing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Update(context.Background(), 5, func(*types.Entitlement) error { return nil })
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestEntitlementStore_ConcurrentUpdates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_ = s.Load(ctx, []types.Entitlement{sampleEntitlement(1, "M001")})

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Update(ctx, 1, func(e *types.Entitlement) error {
				e.ReviewComments += "x"
				return nil
			})
			if err != nil {
				t.Errorf("Update: %v", err)
			}
		}()
	}
	wg.Wait()

	got, _ := s.Get(ctx, 1)
	if len(got.ReviewComments) != n {
		t.Errorf("expected %d serialised updates, got %d", n, len(got.ReviewComments))
	}
}
