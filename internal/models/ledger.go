package models

import (
	"time"
)

// LedgerEntry is one immutable signed delta against an account's credit
// balance. Entries are append-only: the balance is always the sum of all
// deltas for the account, never a stored column.
type LedgerEntry struct {
	ID        int64     `json:"id" db:"id"`
	Sub       string    `json:"sub" db:"sub"`
	Delta     int64     `json:"delta" db:"delta"` // positive = grant, negative = spend
	Reason    string    `json:"reason" db:"reason"`
	RefType   string    `json:"ref_type,omitempty" db:"ref_type"`
	RefID     string    `json:"ref_id,omitempty" db:"ref_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Ledger reasons for grants. Every entry must be traceable to the event that
// caused it through reason + ref_type/ref_id. Spends use the work-product
// kind as their reason.
const (
	ReasonFreePack           = "verification_free_pack"
	ReasonGuaranteeRefund    = "guarantee_refund"
	ReasonPurchase           = "purchase"
	ReasonSubscriptionCredit = "subscription_credit"
)
