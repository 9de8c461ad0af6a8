package models

import "time"

// Guarantee request states. Resolved is terminal.
const (
	GuaranteePending  = "pending"
	GuaranteeResolved = "resolved"
)

// GuaranteeRequest is one bounded refund request under the 7-day promise.
// At most one pending request exists per account at a time.
type GuaranteeRequest struct {
	ID              string     `json:"request_id" db:"id"`
	Sub             string     `json:"sub" db:"sub"`
	Status          string     `json:"status" db:"status"`
	Reason          string     `json:"reason,omitempty" db:"reason"`
	CreditsRefunded int64      `json:"credits_refunded" db:"credits_refunded"`
	ReviewedBy      string     `json:"reviewed_by,omitempty" db:"reviewed_by"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty" db:"resolved_at"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
}

// GuaranteeStatus is the derived eligibility view. It is recomputed on every
// query, never cached.
type GuaranteeStatus struct {
	Eligible        bool              `json:"eligible_for_refund"`
	ProductCount    int               `json:"product_count"`
	DaysActive      int               `json:"days_active"`
	ExistingRequest *GuaranteeRequest `json:"existing_request,omitempty"`
}
