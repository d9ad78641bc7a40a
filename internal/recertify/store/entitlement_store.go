package store

import (
	"context"
	"errors"
	"time"

	"github.com/BrandonDHaskell/Recertify/server/internal/recertify/types"
)

// ErrNotFound is returned when no entitlement has the requested access_id.
var ErrNotFound = errors.New("entitlement not found")

// MutateFn edits a copy of the stored record.  Returning an error aborts the
// update and leaves the stored record untouched.
type MutateFn func(e *types.Entitlement) error

// EntitlementStore owns the current set of entitlements.  Every method is a
// single store operation: readers never observe a record mid-update.
type EntitlementStore interface {
	// List returns a snapshot of every entitlement ordered by access_id.
	List(ctx context.Context) ([]types.Entitlement, error)
	ListByReviewer(ctx context.Context, reviewerID string) ([]types.Entitlement, error)
	Get(ctx context.Context, accessID int64) (types.Entitlement, error)

	// Update applies fn to the record identified by accessID and persists
	// the result as one atomic unit.
	Update(ctx context.Context, accessID int64, fn MutateFn) (types.Entitlement, error)

	// Load inserts the record set supplied by the data source.  A record
	// whose access_id already exists takes the new identity, resource and
	// risk fields but keeps its review status, last review and comments.
	// Its next review date is kept unless the risk level changed.
	Load(ctx context.Context, recs []types.Entitlement) error
}

// CertificationEvent is the audit record emitted for every decision.
type CertificationEvent struct {
	AccessID   int64
	ReviewerID string
	Decision   string
	Comments   string
	At         time.Time
}
