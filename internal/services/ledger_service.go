package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/careerforge/backend/internal/metrics"
	"github.com/careerforge/backend/internal/models"
)

// LedgerService is the only writer of the append-only credit ledger. Balance
// is never stored; it is the sum of all deltas visible at read time. Rows are
// never updated or deleted, so concurrent appends commute and no lost-update
// race exists on a balance column.
type LedgerService struct {
	db *sql.DB
}

func NewLedgerService(db *sql.DB) *LedgerService {
	return &LedgerService{db: db}
}

// RecordDelta appends one immutable ledger row, creating the account on first
// reference.
func (s *LedgerService) RecordDelta(ctx context.Context, sub string, delta int64, reason, refType, refID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ledger: begin: %w", err)
	}
	defer tx.Rollback()

	if err := s.ensureAccountTx(tx, sub); err != nil {
		return err
	}
	if err := s.RecordDeltaTx(tx, sub, delta, reason, refType, refID); err != nil {
		return err
	}
	return tx.Commit()
}

// RecordDeltaTx appends a ledger row inside a caller-owned transaction.
func (s *LedgerService) RecordDeltaTx(tx *sql.Tx, sub string, delta int64, reason, refType, refID string) error {
	_, err := tx.Exec(`
		INSERT INTO credit_ledger (sub, delta, reason, ref_type, ref_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		sub, delta, reason, nullIfEmpty(refType), nullIfEmpty(refID), time.Now())
	if err != nil {
		return fmt.Errorf("ledger: append entry: %w", err)
	}
	metrics.RecordDelta(reason, delta)
	return nil
}

// GetBalance computes the balance as the sum of all deltas. An account with
// no entries yields 0, not an error.
func (s *LedgerService) GetBalance(ctx context.Context, sub string) (int64, error) {
	var balance int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(delta), 0) FROM credit_ledger WHERE sub = $1`, sub).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("ledger: balance: %w", err)
	}
	return balance, nil
}

func (s *LedgerService) balanceTx(tx *sql.Tx, sub string) (int64, error) {
	var balance int64
	err := tx.QueryRow(
		`SELECT COALESCE(SUM(delta), 0) FROM credit_ledger WHERE sub = $1`, sub).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("ledger: balance: %w", err)
	}
	return balance, nil
}

// Spend performs the hardened check-then-debit: the account row is locked
// FOR UPDATE so two concurrent spends against a thin balance serialize, and
// the balance re-check plus the debit commit together or not at all.
// Returns the balance after the debit.
func (s *LedgerService) Spend(ctx context.Context, sub string, cost int64, reason, refType, refID string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("ledger: begin: %w", err)
	}
	defer tx.Rollback()

	remaining, err := s.SpendTx(tx, sub, cost, reason, refType, refID)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("ledger: commit: %w", err)
	}
	return remaining, nil
}

// SpendTx is Spend inside a caller-owned transaction, for callers that
// persist a work product in the same commit.
func (s *LedgerService) SpendTx(tx *sql.Tx, sub string, cost int64, reason, refType, refID string) (int64, error) {
	if cost <= 0 {
		return 0, fmt.Errorf("%w: spend cost must be positive", ErrInvalidInput)
	}
	if err := s.lockAccountTx(tx, sub); err != nil {
		return 0, err
	}
	balance, err := s.balanceTx(tx, sub)
	if err != nil {
		return 0, err
	}
	if balance < cost {
		return 0, &InsufficientBalanceError{Balance: balance, Required: cost}
	}
	if err := s.RecordDeltaTx(tx, sub, -cost, reason, refType, refID); err != nil {
		return 0, err
	}
	return balance - cost, nil
}

// HasEntryWithReason reports whether any entry with the given reason exists
// for the account. Used to guard one-time grants against replayed approvals.
func (s *LedgerService) HasEntryWithReason(ctx context.Context, sub, reason string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM credit_ledger WHERE sub = $1 AND reason = $2)`,
		sub, reason).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ledger: reason lookup: %w", err)
	}
	return exists, nil
}

func (s *LedgerService) hasEntryWithReasonTx(tx *sql.Tx, sub, reason string) (bool, error) {
	var exists bool
	err := tx.QueryRow(
		`SELECT EXISTS (SELECT 1 FROM credit_ledger WHERE sub = $1 AND reason = $2)`,
		sub, reason).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ledger: reason lookup: %w", err)
	}
	return exists, nil
}

// ListEntries returns the most recent ledger rows for an account.
func (s *LedgerService) ListEntries(ctx context.Context, sub string, limit int) ([]models.LedgerEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sub, delta, reason, COALESCE(ref_type, ''), COALESCE(ref_id, ''), created_at
		FROM credit_ledger WHERE sub = $1
		ORDER BY created_at DESC, id DESC LIMIT $2`, sub, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger: list: %w", err)
	}
	defer rows.Close()

	var entries []models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.Sub, &e.Delta, &e.Reason, &e.RefType, &e.RefID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("ledger: scan: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ensureAccountTx creates the account row on first reference.
func (s *LedgerService) ensureAccountTx(tx *sql.Tx, sub string) error {
	_, err := tx.Exec(`
		INSERT INTO accounts (sub, created_at) VALUES ($1, $2)
		ON CONFLICT (sub) DO NOTHING`, sub, time.Now())
	if err != nil {
		return fmt.Errorf("ledger: ensure account: %w", err)
	}
	return nil
}

// lockAccountTx serializes spenders on one account. The ledger itself is
// append-only, so the account row is the lock surface.
func (s *LedgerService) lockAccountTx(tx *sql.Tx, sub string) error {
	if err := s.ensureAccountTx(tx, sub); err != nil {
		return err
	}
	var locked string
	err := tx.QueryRow(`SELECT sub FROM accounts WHERE sub = $1 FOR UPDATE`, sub).Scan(&locked)
	if err != nil {
		return fmt.Errorf("ledger: lock account: %w", err)
	}
	return nil
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
