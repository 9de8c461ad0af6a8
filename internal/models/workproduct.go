package models

import (
	"encoding/json"
	"time"
)

// Billable work-product kinds and their default credit costs. Overridable via
// COST_* env vars; see config.LoadCreditsConfig.
const (
	KindKitFull         = "kit_full"
	KindKitCVOnly       = "kit_cv_only"
	KindKitATSOnly      = "kit_ats_only"
	KindKitCoverOnly    = "kit_cover_only"
	KindCVAnalyze       = "cv_analyze"
	KindCandidateSearch = "candidate_search"
)

// WorkProduct is one priced artifact produced for an account. The idempotency
// binding lives on this row: (sub, idempotency_key) is unique at the storage
// layer, and a replayed request is answered from the stored fields without a
// second ledger debit.
type WorkProduct struct {
	ID             string          `json:"product_id" db:"id"`
	Sub            string          `json:"sub" db:"sub"`
	Kind           string          `json:"kind" db:"kind"`
	CreditsCharged int64           `json:"credits_charged" db:"credits_charged"`
	IdempotencyKey string          `json:"-" db:"idempotency_key"`
	Artifacts      json.RawMessage `json:"artifacts" db:"artifacts_json"`
	ArtifactSHA256 string          `json:"artifact_sha256" db:"artifact_sha256"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}
