package services

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/careerforge/backend/internal/config"
	"github.com/careerforge/backend/internal/metrics"
	"github.com/careerforge/backend/internal/models"
)

// WorkProductService charges for and records billable generations. The charge
// and the record land in one transaction: a product row with no matching
// debit, or a debit with no product, cannot exist.
type WorkProductService struct {
	db          *sql.DB
	ledger      *LedgerService
	idempotency *IdempotencyService
	costs       map[string]int64
}

func NewWorkProductService(db *sql.DB, ledger *LedgerService, idempotency *IdempotencyService, credits *config.CreditsConfig) *WorkProductService {
	if credits == nil {
		credits = config.LoadCreditsConfig()
	}
	return &WorkProductService{
		db:          db,
		ledger:      ledger,
		idempotency: idempotency,
		costs:       credits.Costs,
	}
}

// GenerateResult is the outcome of Generate. Replayed marks a response served
// from a previous run of the same client key; BalanceAfter is only meaningful
// for fresh runs.
type GenerateResult struct {
	Product      *models.WorkProduct `json:"product"`
	Replayed     bool                `json:"replayed"`
	BalanceAfter int64               `json:"balance_after"`
}

// Generate debits the account for one generation of the given kind and
// records the produced artifacts. When idemKey matches a prior call for the
// same account the stored product is returned unchanged and nothing is
// charged again.
func (s *WorkProductService) Generate(ctx context.Context, sub, kind, idemKey string, artifacts json.RawMessage) (*GenerateResult, error) {
	cost, ok := s.costs[kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown product kind '%s'", ErrInvalidInput, kind)
	}

	if stored, err := s.idempotency.BeginOrReplay(ctx, sub, idemKey); err != nil {
		return nil, err
	} else if stored != nil {
		metrics.IdempotentReplays.Inc()
		log.Printf("[PRODUCT] Replayed %s for %s (key %s)", stored.Kind, sub, idemKey)
		return &GenerateResult{Product: stored, Replayed: true}, nil
	}

	if len(artifacts) == 0 {
		artifacts = json.RawMessage(`{}`)
	}
	digest := sha256.Sum256(artifacts)

	product := &models.WorkProduct{
		ID:             uuid.New().String(),
		Sub:            sub,
		Kind:           kind,
		CreditsCharged: cost,
		IdempotencyKey: idemKey,
		Artifacts:      artifacts,
		ArtifactSHA256: hex.EncodeToString(digest[:]),
		CreatedAt:      time.Now(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("workproduct: begin: %w", err)
	}
	defer tx.Rollback()

	balanceAfter, err := s.ledger.SpendTx(tx, sub, cost, kind, "work_product", product.ID)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(`
		INSERT INTO work_products (id, sub, kind, credits_charged, idempotency_key, artifacts_json, artifact_sha256, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8)`,
		product.ID, product.Sub, product.Kind, product.CreditsCharged, product.IdempotencyKey,
		string(product.Artifacts), product.ArtifactSHA256, product.CreatedAt)
	if err != nil {
		if IsDuplicateKey(err) {
			// A concurrent duplicate won the race; abandon this attempt and
			// serve its stored result.
			tx.Rollback()
			stored, lookupErr := s.idempotency.BeginOrReplay(ctx, sub, idemKey)
			if lookupErr != nil {
				return nil, lookupErr
			}
			if stored == nil {
				return nil, fmt.Errorf("%w: concurrent duplicate vanished", ErrDuplicateKey)
			}
			metrics.IdempotentReplays.Inc()
			return &GenerateResult{Product: stored, Replayed: true}, nil
		}
		return nil, fmt.Errorf("workproduct: insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("workproduct: commit: %w", err)
	}

	log.Printf("[PRODUCT] Generated %s for %s, charged %d credits (balance %d)", kind, sub, cost, balanceAfter)
	return &GenerateResult{Product: product, BalanceAfter: balanceAfter}, nil
}

// List returns the account's work products, newest first. Artifacts are
// included; callers that only need history can ignore them.
func (s *WorkProductService) List(ctx context.Context, sub string, limit int) ([]models.WorkProduct, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sub, kind, credits_charged, COALESCE(idempotency_key, ''),
		       artifacts_json, artifact_sha256, created_at
		FROM work_products WHERE sub = $1 ORDER BY created_at DESC LIMIT $2`, sub, limit)
	if err != nil {
		return nil, fmt.Errorf("workproduct: list: %w", err)
	}
	defer rows.Close()

	var products []models.WorkProduct
	for rows.Next() {
		product, err := scanWorkProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("workproduct: scan: %w", err)
		}
		products = append(products, *product)
	}
	return products, rows.Err()
}

// CountFor reports how many work products an account has and when the first
// was created. Zero count leaves first at the zero time.
func (s *WorkProductService) CountFor(ctx context.Context, sub string) (int, time.Time, error) {
	var count int
	var first sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), MIN(created_at) FROM work_products WHERE sub = $1`, sub).
		Scan(&count, &first)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("workproduct: count: %w", err)
	}
	return count, first.Time, nil
}

func scanWorkProduct(row rowScanner) (*models.WorkProduct, error) {
	var p models.WorkProduct
	var artifacts string
	err := row.Scan(&p.ID, &p.Sub, &p.Kind, &p.CreditsCharged, &p.IdempotencyKey,
		&artifacts, &p.ArtifactSHA256, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	p.Artifacts = json.RawMessage(artifacts)
	return &p, nil
}
