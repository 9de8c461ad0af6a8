package services

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/careerforge/backend/internal/config"
	"github.com/careerforge/backend/internal/models"
)

// maxReasonLength bounds what a filed reason stores; longer input is cut, not
// rejected.
const maxReasonLength = 500

// GuaranteeService handles money-back requests. Eligibility is derived from
// the account's existing history on every call, never stored: at least one
// work product, the waiting period elapsed since the first, and no prior
// request on file.
type GuaranteeService struct {
	db       *sql.DB
	ledger   *LedgerService
	products *WorkProductService

	waitDays  int
	refundCap int64
}

func NewGuaranteeService(db *sql.DB, ledger *LedgerService, products *WorkProductService, credits *config.CreditsConfig) *GuaranteeService {
	if credits == nil {
		credits = config.LoadCreditsConfig()
	}
	return &GuaranteeService{
		db:        db,
		ledger:    ledger,
		products:  products,
		waitDays:  credits.GuaranteeDays,
		refundCap: credits.MaxRefundCredits,
	}
}

// Status reports current eligibility plus the facts it was derived from.
func (s *GuaranteeService) Status(ctx context.Context, sub string) (*models.GuaranteeStatus, error) {
	count, first, err := s.products.CountFor(ctx, sub)
	if err != nil {
		return nil, err
	}

	daysActive := 0
	if count > 0 {
		daysActive = int(time.Since(first).Hours() / 24)
	}

	existing, err := s.latestRequest(ctx, sub)
	if err != nil {
		return nil, err
	}

	status := &models.GuaranteeStatus{
		ProductCount: count,
		DaysActive:   daysActive,
		Eligible:     count > 0 && daysActive >= s.waitDays && existing == nil,
	}
	if existing != nil {
		status.ExistingRequest = existing
	}
	return status, nil
}

// Request files a guarantee claim. Ineligible accounts get a NotEligibleError
// explaining which condition failed; a second filing while one is pending
// returns ErrAlreadyPending.
func (s *GuaranteeService) Request(ctx context.Context, sub, reason string) (*models.GuaranteeRequest, error) {
	if len(reason) > maxReasonLength {
		reason = reason[:maxReasonLength]
	}

	status, err := s.Status(ctx, sub)
	if err != nil {
		return nil, err
	}

	if status.ExistingRequest != nil {
		if status.ExistingRequest.Status == models.GuaranteePending {
			return nil, ErrAlreadyPending
		}
		return nil, &NotEligibleError{
			Message:      "a guarantee request was already resolved for this account",
			ProductCount: status.ProductCount,
			DaysActive:   status.DaysActive,
		}
	}
	if status.ProductCount == 0 {
		return nil, &NotEligibleError{
			Message:      "the guarantee requires at least one generated product",
			ProductCount: status.ProductCount,
			DaysActive:   status.DaysActive,
		}
	}
	if status.DaysActive < s.waitDays {
		return nil, &NotEligibleError{
			Message:      fmt.Sprintf("the guarantee opens on day %d; you are on day %d", s.waitDays, status.DaysActive),
			ProductCount: status.ProductCount,
			DaysActive:   status.DaysActive,
		}
	}

	request := &models.GuaranteeRequest{
		ID:        uuid.New().String(),
		Sub:       sub,
		Status:    models.GuaranteePending,
		Reason:    reason,
		CreatedAt: time.Now(),
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO guarantee_requests (id, sub, status, reason, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5)`,
		request.ID, request.Sub, request.Status, request.Reason, request.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("guarantee: create request: %w", err)
	}

	log.Printf("[GUARANTEE] Request %s filed by %s", request.ID, sub)
	return request, nil
}

// Resolve closes a pending request with the reviewer's chosen refund amount.
// Zero denies; anything above the cap is clamped down to it. The refund and
// the state change commit together, and a resolved request can never be
// resolved again.
func (s *GuaranteeService) Resolve(ctx context.Context, requestID, managerSub string, creditsToRefund int64) (*models.GuaranteeRequest, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("guarantee: begin: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRow(`
		SELECT id, sub, status, COALESCE(reason, ''), credits_refunded, COALESCE(reviewed_by, ''), resolved_at, created_at
		FROM guarantee_requests WHERE id = $1 FOR UPDATE`, requestID)
	request, err := scanGuaranteeRequest(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("guarantee: load request: %w", err)
	}
	if request.Status != models.GuaranteePending {
		return nil, ErrNotPending
	}

	refund := creditsToRefund
	if refund < 0 {
		refund = 0
	}
	if refund > s.refundCap {
		refund = s.refundCap
	}
	if refund > 0 {
		if err := s.ledger.RecordDeltaTx(tx, request.Sub, refund, models.ReasonGuaranteeRefund, "guarantee", request.ID); err != nil {
			return nil, err
		}
	}

	now := time.Now()
	_, err = tx.Exec(`
		UPDATE guarantee_requests
		SET status = $1, credits_refunded = $2, reviewed_by = $3, resolved_at = $4
		WHERE id = $5`,
		models.GuaranteeResolved, refund, managerSub, now, requestID)
	if err != nil {
		return nil, fmt.Errorf("guarantee: resolve: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("guarantee: commit: %w", err)
	}

	request.Status = models.GuaranteeResolved
	request.CreditsRefunded = refund
	request.ReviewedBy = managerSub
	request.ResolvedAt = &now

	log.Printf("[GUARANTEE] Request %s resolved by %s (refunded %d)", requestID, managerSub, refund)
	return request, nil
}

// ListPending returns unresolved requests, oldest first, for the manager
// queue.
func (s *GuaranteeService) ListPending(ctx context.Context, limit int) ([]models.GuaranteeRequest, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sub, status, COALESCE(reason, ''), credits_refunded, COALESCE(reviewed_by, ''), resolved_at, created_at
		FROM guarantee_requests WHERE status = $1 ORDER BY created_at ASC LIMIT $2`,
		models.GuaranteePending, limit)
	if err != nil {
		return nil, fmt.Errorf("guarantee: list pending: %w", err)
	}
	defer rows.Close()

	var requests []models.GuaranteeRequest
	for rows.Next() {
		request, err := scanGuaranteeRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("guarantee: scan request: %w", err)
		}
		requests = append(requests, *request)
	}
	return requests, rows.Err()
}

func (s *GuaranteeService) latestRequest(ctx context.Context, sub string) (*models.GuaranteeRequest, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, sub, status, COALESCE(reason, ''), credits_refunded, COALESCE(reviewed_by, ''), resolved_at, created_at
		FROM guarantee_requests WHERE sub = $1 ORDER BY created_at DESC LIMIT 1`, sub)
	request, err := scanGuaranteeRequest(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("guarantee: latest request: %w", err)
	}
	return request, nil
}

func scanGuaranteeRequest(row rowScanner) (*models.GuaranteeRequest, error) {
	var r models.GuaranteeRequest
	var resolvedAt sql.NullTime
	err := row.Scan(&r.ID, &r.Sub, &r.Status, &r.Reason, &r.CreditsRefunded, &r.ReviewedBy, &resolvedAt, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	if resolvedAt.Valid {
		r.ResolvedAt = &resolvedAt.Time
	}
	return &r, nil
}
