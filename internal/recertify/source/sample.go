package source

import (
	"time"

	"github.com/BrandonDHaskell/Recertify/server/internal/recertify/types"
)

// Sample returns the demo data set used in dev: ten entitlements across five
// reviewers, all pending.
func Sample() []types.Entitlement {
	rows := []struct {
		user, name, dept, system, level, granted, reviewed string
		risk                                                types.RiskLevel
		reviewer, reviewerName                              string
	}{
		{"U001", "John Doe", "IT", "CRM", "Admin", "2024-01-15", "2024-03-15", types.RiskHigh, "M001", "Alex Manager"},
		{"U002", "Jane Smith", "HR", "HRIS", "User", "2024-02-20", "2024-03-15", types.RiskMedium, "M002", "Rachel Director"},
		{"U003", "Mike Johnson", "Finance", "ERP", "Read-Only", "2024-01-10", "2024-03-15", types.RiskMedium, "M003", "David Leader"},
		{"U001", "John Doe", "IT", "Email Gateway", "Admin", "2023-11-05", "2024-02-05", types.RiskHigh, "M001", "Alex Manager"},
		{"U002", "Jane Smith", "HR", "Recruitment Portal", "Admin", "2024-03-01", "2024-03-15", types.RiskMedium, "M002", "Rachel Director"},
		{"U004", "Sarah Williams", "Marketing", "Analytics Platform", "User", "2024-02-15", "", types.RiskLow, "M004", "Lisa Supervisor"},
		{"U003", "Mike Johnson", "Finance", "Accounting System", "Admin", "2023-10-10", "2024-02-10", types.RiskHigh, "M003", "David Leader"},
		{"U005", "Tom Brown", "Sales", "CRM", "User", "2024-03-10", "", types.RiskLow, "M005", "Mark Head"},
		{"U004", "Sarah Williams", "Marketing", "Website Admin", "Admin", "2023-12-20", "2024-03-01", types.RiskMedium, "M004", "Lisa Supervisor"},
		{"U005", "Tom Brown", "Sales", "Sales Database", "User", "2024-01-25", "", types.RiskLow, "M005", "Mark Head"},
	}

	out := make([]types.Entitlement, 0, len(rows))
	for i, r := range rows {
		e := types.Entitlement{
			AccessID:     int64(i + 1),
			UserID:       r.user,
			UserName:     r.name,
			Department:   r.dept,
			SystemName:   r.system,
			AccessLevel:  r.level,
			DateGranted:  mustDate(r.granted),
			RiskLevel:    r.risk,
			ReviewerID:   r.reviewer,
			ReviewerName: r.reviewerName,
			ReviewStatus: types.StatusPending,
		}
		if r.reviewed != "" {
			t := mustDate(r.reviewed)
			e.LastReviewed = &t
		}
		out = append(out, e)
	}
	return out
}

func mustDate(s string) time.Time {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}
