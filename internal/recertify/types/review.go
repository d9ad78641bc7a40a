package types

import "time"

type CertifyRequest struct {
	AccessID   int64  `json:"access_id" validate:"gt=0"`
	Decision   string `json:"decision" validate:"required"`
	Comments   string `json:"comments,omitempty"`
	ReviewerID string `json:"reviewer_id" validate:"required"`
}

type CertifyResponse struct {
	OK          bool        `json:"ok"`
	Entitlement Entitlement `json:"entitlement"`
	ServerTime  string      `json:"server_time"`
}

// ReviewQueue lists every entitlement assigned to one reviewer.  ReviewerName
// is nil when the reviewer has no entitlements on record.
type ReviewQueue struct {
	ReviewerID   string        `json:"reviewer_id"`
	ReviewerName *string       `json:"reviewer_name"`
	Items        []Entitlement `json:"items"`
}

type Summary struct {
	ByStatus map[string]int `json:"by_status"`
	ByRisk   map[string]int `json:"by_risk"`
	BySystem map[string]int `json:"by_system"`
}

type Dashboard struct {
	Total    int `json:"total"`
	HighRisk int `json:"high_risk"`
	Pending  int `json:"pending"`
	Due      int `json:"due"`
}

type NotificationItem struct {
	AccessID       int64     `json:"access_id"`
	UserID         string    `json:"user_id"`
	UserName       string    `json:"user_name"`
	SystemName     string    `json:"system_name"`
	AccessLevel    string    `json:"access_level"`
	RiskLevel      RiskLevel `json:"risk_level"`
	NextReviewDate time.Time `json:"next_review_date"`
}

// Notification is the consolidated reminder for one reviewer.
type Notification struct {
	ID           string             `json:"id"`
	ReviewerID   string             `json:"reviewer_id"`
	ReviewerName string             `json:"reviewer_name"`
	PendingCount int                `json:"pending_count"`
	Items        []NotificationItem `json:"items"`
	Deadline     time.Time          `json:"deadline"`
	ReviewURL    string             `json:"review_url"`
	Subject      string             `json:"subject"`
	Body         string             `json:"body"`
}
