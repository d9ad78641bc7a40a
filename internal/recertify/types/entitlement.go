package types

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// RiskLevel drives how often an entitlement must be recertified.
type RiskLevel string

const (
	RiskHigh   RiskLevel = "High"
	RiskMedium RiskLevel = "Medium"
	RiskLow    RiskLevel = "Low"
)

// Valid reports whether r is one of the known risk tiers.
func (r RiskLevel) Valid() bool {
	switch r {
	case RiskHigh, RiskMedium, RiskLow:
		return true
	}
	return false
}

var titleCaser = cases.Title(language.English)

// ParseRiskLevel normalises free-form input ("high", " MEDIUM ") coming from a
// data source.  The result is not guaranteed to be Valid.
func ParseRiskLevel(s string) RiskLevel {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return RiskLevel(titleCaser.String(strings.ToLower(s)))
}

// Review statuses.  The decision vocabulary is open-ended: anything other
// than StatusPending counts as decided.
const (
	StatusPending  = "Pending"
	StatusApproved = "Approved"
	StatusRevoked  = "Revoked"
)

// Entitlement is one user's access grant to one system.
type Entitlement struct {
	AccessID    int64  `json:"access_id" validate:"gt=0"`
	UserID      string `json:"user_id" validate:"required"`
	UserName    string `json:"user_name"`
	Department  string `json:"department"`
	SystemName  string `json:"system_name" validate:"required"`
	AccessLevel string `json:"access_level"`

	DateGranted  time.Time  `json:"date_granted" validate:"required"`
	LastReviewed *time.Time `json:"last_reviewed,omitempty"`

	RiskLevel    RiskLevel `json:"risk_level"`
	ReviewerID   string    `json:"reviewer_id" validate:"required"`
	ReviewerName string    `json:"reviewer_name"`

	ReviewStatus   string `json:"review_status"`
	ReviewComments string `json:"review_comments,omitempty"`

	// NextReviewDate is derived from RiskLevel and LastReviewed/DateGranted.
	// Zero means the record could not be scheduled (invalid risk level).
	NextReviewDate time.Time `json:"next_review_date"`
}

// Pending reports whether the entitlement is still awaiting a decision.
func (e Entitlement) Pending() bool {
	return e.ReviewStatus == StatusPending
}

// Clone returns a copy that shares no memory with e.
func (e Entitlement) Clone() Entitlement {
	out := e
	if e.LastReviewed != nil {
		t := *e.LastReviewed
		out.LastReviewed = &t
	}
	return out
}
