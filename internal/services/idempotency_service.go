package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/careerforge/backend/internal/models"
)

// IdempotencyService maps (account, client key) to the work product the
// first successful request produced. The binding is not a separate cache: it
// lives on the work_products row itself, under a storage-level uniqueness
// constraint, so it survives restarts and concurrent duplicates cannot both
// win.
type IdempotencyService struct {
	db *sql.DB
}

func NewIdempotencyService(db *sql.DB) *IdempotencyService {
	return &IdempotencyService{db: db}
}

// BeginOrReplay returns the stored work product for (sub, clientKey) if the
// operation already ran, or nil when the caller should perform it fresh.
// An empty clientKey opts out of idempotency: every call is fresh.
func (s *IdempotencyService) BeginOrReplay(ctx context.Context, sub, clientKey string) (*models.WorkProduct, error) {
	if clientKey == "" {
		return nil, nil
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, sub, kind, credits_charged, COALESCE(idempotency_key, ''),
		       artifacts_json, artifact_sha256, created_at
		FROM work_products WHERE sub = $1 AND idempotency_key = $2`, sub, clientKey)

	product, err := scanWorkProduct(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("idempotency: lookup: %w", err)
	}
	return product, nil
}

// IsDuplicateKey reports whether err is the storage uniqueness violation on
// (sub, idempotency_key), i.e. the loser of a concurrent duplicate submission.
func IsDuplicateKey(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
