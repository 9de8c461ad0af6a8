package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/careerforge/backend/internal/models"
)

// AccountService owns the accounts table. Accounts are created on first
// reference and never deleted; the verified flag is only ever flipped by an
// approval somewhere in the verification pipeline.
type AccountService struct {
	db *sql.DB
}

func NewAccountService(db *sql.DB) *AccountService {
	return &AccountService{db: db}
}

// Upsert creates the account on first reference and refreshes the email when
// the auth layer supplies one.
func (s *AccountService) Upsert(ctx context.Context, sub, email string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (sub, email, created_at) VALUES ($1, $2, $3)
		ON CONFLICT (sub) DO UPDATE SET email = COALESCE(NULLIF(EXCLUDED.email, ''), accounts.email)`,
		sub, email, time.Now())
	if err != nil {
		return fmt.Errorf("accounts: upsert: %w", err)
	}
	return nil
}

// Get returns the account, or ErrNotFound.
func (s *AccountService) Get(ctx context.Context, sub string) (*models.Account, error) {
	var a models.Account
	var email sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT sub, email, verified, created_at FROM accounts WHERE sub = $1`, sub).
		Scan(&a.Sub, &email, &a.Verified, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("accounts: get: %w", err)
	}
	a.Email = email.String
	return &a, nil
}

// SetVerifiedTx flips the verified flag inside a caller-owned transaction so
// the flip commits atomically with the session transition that caused it.
func (s *AccountService) SetVerifiedTx(tx *sql.Tx, sub string) error {
	_, err := tx.Exec(`
		INSERT INTO accounts (sub, verified, created_at) VALUES ($1, TRUE, $2)
		ON CONFLICT (sub) DO UPDATE SET verified = TRUE`, sub, time.Now())
	if err != nil {
		return fmt.Errorf("accounts: set verified: %w", err)
	}
	return nil
}
