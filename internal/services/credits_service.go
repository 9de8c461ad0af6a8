package services

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/careerforge/backend/internal/config"
	"github.com/careerforge/backend/internal/metrics"
	"github.com/careerforge/backend/internal/models"
)

// CreditsService is the account-facing view of the ledger plus the payment
// webhook effect. Payment providers retry webhooks, so each provider event id
// is consumed at most once.
type CreditsService struct {
	db     *sql.DB
	ledger *LedgerService
	packs  map[string]int64
}

func NewCreditsService(db *sql.DB, ledger *LedgerService, credits *config.CreditsConfig) *CreditsService {
	if credits == nil {
		credits = config.LoadCreditsConfig()
	}
	return &CreditsService{db: db, ledger: ledger, packs: credits.PackCredits}
}

// Balance returns the account's current credit balance.
func (s *CreditsService) Balance(ctx context.Context, sub string) (int64, error) {
	return s.ledger.GetBalance(ctx, sub)
}

// Events returns the account's ledger history, newest first.
func (s *CreditsService) Events(ctx context.Context, sub string, limit int) ([]models.LedgerEntry, error) {
	return s.ledger.ListEntries(ctx, sub, limit)
}

// ApplyPaymentEvent grants the credits for a purchased pack or subscription
// period. eventID is the provider's event id; a redelivered event is absorbed
// without a second grant. Returns whether credits were granted by this call.
func (s *CreditsService) ApplyPaymentEvent(ctx context.Context, eventID, sub, packID string) (bool, error) {
	if eventID == "" {
		return false, fmt.Errorf("%w: event_id required", ErrInvalidInput)
	}
	amount, ok := s.packs[packID]
	if !ok {
		return false, fmt.Errorf("%w: unknown pack '%s'", ErrInvalidInput, packID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("credits: begin: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(`
		INSERT INTO payment_events (event_id, sub, pack_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (event_id) DO NOTHING`,
		eventID, sub, packID, time.Now())
	if err != nil {
		return false, fmt.Errorf("credits: record event: %w", err)
	}
	inserted, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("credits: record event: %w", err)
	}
	if inserted == 0 {
		metrics.PaymentEventsDeduped.Inc()
		log.Printf("[CREDITS] Payment event %s already applied, skipping", eventID)
		return false, nil
	}

	reason := models.ReasonPurchase
	if amount == 0 {
		return false, fmt.Errorf("%w: pack '%s' grants no credits", ErrInvalidInput, packID)
	}
	if packID == "sub_starter" || packID == "sub_pro" {
		reason = models.ReasonSubscriptionCredit
	}

	if err := s.ledger.ensureAccountTx(tx, sub); err != nil {
		return false, err
	}
	if err := s.ledger.RecordDeltaTx(tx, sub, amount, reason, "payment_event", eventID); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("credits: commit: %w", err)
	}

	log.Printf("[CREDITS] Granted %d credits to %s for %s (event %s)", amount, sub, packID, eventID)
	return true, nil
}
