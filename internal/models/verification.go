package models

import "time"

// Verification session states. Approved and rejected are terminal; a session
// in a terminal state is never reopened.
const (
	VerificationPending       = "pending"
	VerificationApproved      = "approved"
	VerificationRejected      = "rejected"
	VerificationManagerReview = "manager_review"
)

// Review channels.
const (
	ChannelAI    = "ai"    // automated fraud scoring on upload
	ChannelAgent = "agent" // human agent decides after a video call
)

// Agent decisions. Escalate parks the session for manager review.
const (
	DecisionApproved = "approved"
	DecisionRejected = "rejected"
	DecisionEscalate = "escalate"
)

// VerificationSession tracks one user's identity check from creation through
// automated or human adjudication. At most one non-terminal session exists
// per account. Artifact blobs are stored as the base64 payload the capture
// client submitted; they are opaque to everything except the fraud scorer and
// the manager document viewer.
type VerificationSession struct {
	ID             string     `json:"session_id" db:"id"`
	Sub            string     `json:"sub" db:"sub"`
	Status         string     `json:"status" db:"status"`
	Channel        string     `json:"channel" db:"channel"`
	DocFront       string     `json:"-" db:"doc_front_b64"`
	DocBack        string     `json:"-" db:"doc_back_b64"`
	Video          string     `json:"-" db:"video_b64"`
	VideoDurationS float64    `json:"video_duration_s,omitempty" db:"video_duration_s"`
	FraudScore     *float64   `json:"fraud_score,omitempty" db:"fraud_score"`
	FraudFlags     []string   `json:"fraud_flags,omitempty" db:"fraud_flags"`
	Decision       string     `json:"decision,omitempty" db:"decision"`
	DecidedBy      string     `json:"decided_by,omitempty" db:"decided_by"`
	Note           string     `json:"note,omitempty" db:"note"`
	DecidedAt      *time.Time `json:"decided_at,omitempty" db:"decided_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

// Terminal reports whether no further transition is permitted.
func (s *VerificationSession) Terminal() bool {
	return s.Status == VerificationApproved || s.Status == VerificationRejected
}
