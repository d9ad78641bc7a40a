package db

import (
	"context"
	"database/sql"
	"fmt"
)

type SeedDevOptions struct {
	// Seed loads the starter data set.  It is only called when the
	// entitlements table is empty, so restarts keep recorded decisions.
	Seed func(ctx context.Context) error
}

// SeedDev populates an empty dev database.  It reports whether Seed ran.
func SeedDev(ctx context.Context, db *sql.DB, opt SeedDevOptions) (bool, error) {
	if opt.Seed == nil {
		return false, nil
	}

	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entitlements;`).Scan(&n); err != nil {
		return false, fmt.Errorf("count entitlements: %w", err)
	}
	if n > 0 {
		return false, nil
	}

	if err := opt.Seed(ctx); err != nil {
		return false, fmt.Errorf("seed entitlements: %w", err)
	}
	return true, nil
}
