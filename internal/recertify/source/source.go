// Package source reads the initial entitlement set supplied by the data
// source collaborator.
package source

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"sigs.k8s.io/yaml"

	"github.com/BrandonDHaskell/Recertify/server/internal/recertify/types"
)

const dateLayout = "2006-01-02"

var ErrDuplicateAccessID = errors.New("duplicate access_id")

// record is the on-disk shape.  Dates are plain calendar dates or RFC3339.
type record struct {
	AccessID       int64  `json:"access_id"`
	UserID         string `json:"user_id"`
	UserName       string `json:"user_name"`
	Department     string `json:"department"`
	SystemName     string `json:"system_name"`
	AccessLevel    string `json:"access_level"`
	DateGranted    string `json:"date_granted"`
	LastReviewed   string `json:"last_reviewed,omitempty"`
	RiskLevel      string `json:"risk_level"`
	ReviewerID     string `json:"reviewer_id"`
	ReviewerName   string `json:"reviewer_name"`
	ReviewStatus   string `json:"review_status,omitempty"`
	ReviewComments string `json:"review_comments,omitempty"`
}

type document struct {
	Entitlements []record `json:"entitlements"`
}

// LoadFile reads a YAML or JSON document of the form
// {"entitlements": [...]}.
func LoadFile(path string) ([]types.Entitlement, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read entitlements: %w", err)
	}
	return Parse(b)
}

// Parse decodes a YAML or JSON document and validates every record.  Risk
// levels are normalised but not rejected; scheduling reports bad ones.
func Parse(b []byte) ([]types.Entitlement, error) {
	var doc document
	if err := yaml.UnmarshalStrict(b, &doc); err != nil {
		return nil, fmt.Errorf("decode entitlements: %w", err)
	}

	v := validator.New()
	seen := make(map[int64]struct{}, len(doc.Entitlements))
	out := make([]types.Entitlement, 0, len(doc.Entitlements))
	for i, r := range doc.Entitlements {
		e, err := r.toEntitlement()
		if err != nil {
			return nil, fmt.Errorf("entitlement #%d: %w", i, err)
		}
		if err := v.Struct(e); err != nil {
			return nil, fmt.Errorf("entitlement #%d (access_id=%d): %w", i, e.AccessID, err)
		}
		if _, dup := seen[e.AccessID]; dup {
			return nil, fmt.Errorf("entitlement #%d: %w %d", i, ErrDuplicateAccessID, e.AccessID)
		}
		seen[e.AccessID] = struct{}{}
		out = append(out, e)
	}
	return out, nil
}

func (r record) toEntitlement() (types.Entitlement, error) {
	granted, err := parseDate(r.DateGranted)
	if err != nil {
		return types.Entitlement{}, fmt.Errorf("date_granted: %w", err)
	}

	e := types.Entitlement{
		AccessID:       r.AccessID,
		UserID:         strings.TrimSpace(r.UserID),
		UserName:       r.UserName,
		Department:     r.Department,
		SystemName:     r.SystemName,
		AccessLevel:    r.AccessLevel,
		DateGranted:    granted,
		RiskLevel:      types.ParseRiskLevel(r.RiskLevel),
		ReviewerID:     strings.TrimSpace(r.ReviewerID),
		ReviewerName:   r.ReviewerName,
		ReviewStatus:   strings.TrimSpace(r.ReviewStatus),
		ReviewComments: r.ReviewComments,
	}
	if e.ReviewStatus == "" {
		e.ReviewStatus = types.StatusPending
	}

	if strings.TrimSpace(r.LastReviewed) != "" {
		t, err := parseDate(r.LastReviewed)
		if err != nil {
			return types.Entitlement{}, fmt.Errorf("last_reviewed: %w", err)
		}
		e.LastReviewed = &t
	}
	return e, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognised date %q", s)
	}
	return t.UTC(), nil
}
