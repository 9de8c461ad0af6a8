package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/careerforge/backend/internal/config"
	"github.com/careerforge/backend/internal/metrics"
	"github.com/careerforge/backend/internal/models"
)

// decisionQueueKey is the Redis list downstream notifiers consume.
const decisionQueueKey = "verification_decisions"

// VerificationService orchestrates one user's identity check from creation
// through automated or human adjudication. Transitions that can fail to
// persist are fatal to the request; a decode failure during scoring is a
// fraud signal, so the machine always reaches a decision.
type VerificationService struct {
	db       *sql.DB
	redis    *redis.Client
	fraud    FraudAnalyser
	ledger   *LedgerService
	accounts *AccountService

	agentAvailable  bool
	freePackCredits int64
}

func NewVerificationService(db *sql.DB, redisClient *redis.Client, fraud FraudAnalyser, ledger *LedgerService, accounts *AccountService, credits *config.CreditsConfig) *VerificationService {
	if credits == nil {
		credits = config.LoadCreditsConfig()
	}
	return &VerificationService{
		db:              db,
		redis:           redisClient,
		fraud:           fraud,
		ledger:          ledger,
		accounts:        accounts,
		agentAvailable:  os.Getenv("AGENT_AVAILABLE") == "1",
		freePackCredits: credits.FreePackCredits,
	}
}

// UploadInput carries the artifacts for one upload call. Blobs are base64 as
// submitted by the capture client; DocFront is required.
type UploadInput struct {
	SessionID      string
	DocFront       string
	DocBack        string
	Video          string
	VideoDurationS float64
	DeclaredName   string
}

// UploadResult reports the post-upload session state. Score and Flags are
// only set when the ai channel scored synchronously.
type UploadResult struct {
	SessionID string   `json:"session_id"`
	Status    string   `json:"status"`
	Score     *float64 `json:"fraud_score,omitempty"`
	Flags     []string `json:"flags,omitempty"`
}

// Start creates a verification session, or returns the existing one if a
// non-terminal session is already active for the account (idempotent create).
// The channel follows human-agent availability at creation time.
func (s *VerificationService) Start(ctx context.Context, sub, email string) (*models.VerificationSession, bool, error) {
	if err := s.accounts.Upsert(ctx, sub, email); err != nil {
		return nil, false, err
	}

	existing, err := s.Latest(ctx, sub)
	if err != nil {
		return nil, false, err
	}
	if existing != nil && !existing.Terminal() {
		return existing, false, nil
	}

	channel := models.ChannelAI
	if s.agentAvailable {
		channel = models.ChannelAgent
	}

	session := &models.VerificationSession{
		ID:        uuid.New().String(),
		Sub:       sub,
		Status:    models.VerificationPending,
		Channel:   channel,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO verification_sessions (id, sub, status, channel, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		session.ID, session.Sub, session.Status, session.Channel, session.CreatedAt, session.UpdatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("verification: create session: %w", err)
	}

	log.Printf("[VERIFY] Session %s created for %s via channel %s", session.ID, sub, channel)
	return session, true, nil
}

// Upload persists artifacts on a pending session. On the ai channel the
// fraud scorer runs synchronously and the mapped transition is applied in the
// same request.
func (s *VerificationService) Upload(ctx context.Context, sub string, in UploadInput) (*UploadResult, error) {
	if in.SessionID == "" {
		return nil, fmt.Errorf("%w: session_id required", ErrInvalidInput)
	}
	if in.DocFront == "" {
		return nil, fmt.Errorf("%w: doc_front is required", ErrInvalidInput)
	}

	session, err := s.Get(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}
	if session.Sub != sub {
		return nil, ErrForbidden
	}
	if session.Status != models.VerificationPending {
		return nil, &SessionConflictError{Status: session.Status}
	}

	// Artifacts are persisted regardless of channel so an agent or manager
	// can review them later. The status predicate closes the window between
	// the read above and this write: a session decided in the meantime takes
	// no artifacts.
	res, err := s.db.ExecContext(ctx, `
		UPDATE verification_sessions
		SET doc_front_b64 = $1, doc_back_b64 = NULLIF($2, ''), video_b64 = NULLIF($3, ''),
		    video_duration_s = $4, updated_at = $5
		WHERE id = $6 AND status = $7`,
		in.DocFront, in.DocBack, in.Video, in.VideoDurationS, time.Now(), in.SessionID, models.VerificationPending)
	if err != nil {
		return nil, fmt.Errorf("verification: persist artifacts: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, s.conflictFor(ctx, in.SessionID)
	}

	if session.Channel != models.ChannelAI {
		// Agent channel: the session waits for the agent's decision call.
		return &UploadResult{SessionID: in.SessionID, Status: models.VerificationPending}, nil
	}

	report := s.fraud.Analyse(FraudInput{
		DocFront:       in.DocFront,
		DocBack:        in.DocBack,
		Video:          in.Video,
		VideoDurationS: in.VideoDurationS,
		DeclaredName:   in.DeclaredName,
	})
	metrics.FraudScores.Observe(report.Score)

	newStatus := models.VerificationManagerReview
	switch report.Recommendation {
	case RecommendApprove:
		newStatus = models.VerificationApproved
	case RecommendReject:
		newStatus = models.VerificationRejected
	}

	flagsJSON, _ := json.Marshal(report.Flags)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("verification: begin: %w", err)
	}
	defer tx.Rollback()

	txRes, err := tx.Exec(`
		UPDATE verification_sessions
		SET status = $1, fraud_score = $2, fraud_flags = $3, updated_at = $4
		WHERE id = $5 AND status = $6`,
		newStatus, report.Score, string(flagsJSON), time.Now(), in.SessionID, models.VerificationPending)
	if err != nil {
		return nil, fmt.Errorf("verification: apply transition: %w", err)
	}
	if n, _ := txRes.RowsAffected(); n == 0 {
		return nil, s.conflictFor(ctx, in.SessionID)
	}

	if newStatus == models.VerificationApproved {
		if err := s.markApprovedTx(tx, sub, in.SessionID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("verification: commit: %w", err)
	}

	metrics.VerificationDecisions.WithLabelValues(models.ChannelAI, newStatus).Inc()
	log.Printf("[VERIFY] Session %s scored %.1f -> %s (flags: %v)", in.SessionID, report.Score, newStatus, report.Flags)
	s.notifyDecision(session.Sub, in.SessionID, newStatus)

	return &UploadResult{
		SessionID: in.SessionID,
		Status:    newStatus,
		Score:     &report.Score,
		Flags:     report.Flags,
	}, nil
}

// AgentDecide records a human agent's decision after their video call. Legal
// for any non-terminal session; escalate parks the session for a manager.
func (s *VerificationService) AgentDecide(ctx context.Context, sessionID, agentSub, decision, note string) (string, error) {
	if decision != models.DecisionApproved && decision != models.DecisionRejected && decision != models.DecisionEscalate {
		return "", fmt.Errorf("%w: decision must be approved|rejected|escalate", ErrInvalidInput)
	}

	newStatus := decision
	if decision == models.DecisionEscalate {
		newStatus = models.VerificationManagerReview
	}

	if err := s.decide(ctx, sessionID, newStatus, agentSub, note,
		models.VerificationPending, models.VerificationManagerReview); err != nil {
		return "", err
	}
	return newStatus, nil
}

// ManagerReview records the terminal human checkpoint. Only legal while the
// session sits in manager_review.
func (s *VerificationService) ManagerReview(ctx context.Context, sessionID, managerSub, decision, note string) (string, error) {
	if decision != models.DecisionApproved && decision != models.DecisionRejected {
		return "", fmt.Errorf("%w: decision must be 'approved' or 'rejected'", ErrInvalidInput)
	}

	if err := s.decide(ctx, sessionID, decision, managerSub, note,
		models.VerificationManagerReview); err != nil {
		return "", err
	}
	return decision, nil
}

// decide applies a human transition, flipping the verified flag and granting
// the one-time free pack atomically with the status change. The session is
// re-read under a row lock inside the transaction, so a decision that raced
// with another one sees the committed status and conflicts instead of
// overwriting it.
func (s *VerificationService) decide(ctx context.Context, sessionID, newStatus, deciderSub, note string, allowedFrom ...string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("verification: begin: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRow(sessionSelect+`WHERE id = $1 FOR UPDATE`, sessionID)
	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("verification: load session: %w", err)
	}

	allowed := false
	for _, from := range allowedFrom {
		if session.Status == from {
			allowed = true
			break
		}
	}
	if !allowed {
		return &SessionConflictError{Status: session.Status}
	}

	now := time.Now()
	_, err = tx.Exec(`
		UPDATE verification_sessions
		SET status = $1, decision = $1, decided_by = $2, note = NULLIF($3, ''),
		    decided_at = $4, updated_at = $4
		WHERE id = $5`,
		newStatus, deciderSub, note, now, session.ID)
	if err != nil {
		return fmt.Errorf("verification: apply decision: %w", err)
	}

	if newStatus == models.VerificationApproved {
		if err := s.markApprovedTx(tx, session.Sub, session.ID); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("verification: commit: %w", err)
	}

	metrics.VerificationDecisions.WithLabelValues(session.Channel, newStatus).Inc()
	log.Printf("[VERIFY] Session %s decided %s by %s", session.ID, newStatus, deciderSub)
	s.notifyDecision(session.Sub, session.ID, newStatus)
	return nil
}

// conflictFor reports the status that blocked a guarded write.
func (s *VerificationService) conflictFor(ctx context.Context, sessionID string) error {
	var status string
	err := s.db.QueryRowContext(ctx,
		`SELECT status FROM verification_sessions WHERE id = $1`, sessionID).Scan(&status)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("verification: read status: %w", err)
	}
	return &SessionConflictError{Status: status}
}

// markApprovedTx flips the account's verified flag and grants the one-time
// free credit pack. The grant is guarded by a ledger-reason existence check
// so a replayed approval event is a no-op.
func (s *VerificationService) markApprovedTx(tx *sql.Tx, sub, sessionID string) error {
	if err := s.accounts.SetVerifiedTx(tx, sub); err != nil {
		return err
	}

	granted, err := s.ledger.hasEntryWithReasonTx(tx, sub, models.ReasonFreePack)
	if err != nil {
		return err
	}
	if granted {
		return nil
	}
	return s.ledger.RecordDeltaTx(tx, sub, s.freePackCredits, models.ReasonFreePack, "verification", sessionID)
}

// Latest returns the most recent session for an account, or nil.
func (s *VerificationService) Latest(ctx context.Context, sub string) (*models.VerificationSession, error) {
	row := s.db.QueryRowContext(ctx, sessionSelect+`WHERE sub = $1 ORDER BY created_at DESC LIMIT 1`, sub)
	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("verification: latest session: %w", err)
	}
	return session, nil
}

// Get returns a session by id, or ErrNotFound. Blobs are not loaded; use
// GetDocument for those.
func (s *VerificationService) Get(ctx context.Context, sessionID string) (*models.VerificationSession, error) {
	row := s.db.QueryRowContext(ctx, sessionSelect+`WHERE id = $1`, sessionID)
	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("verification: get session: %w", err)
	}
	return session, nil
}

// ListPendingReview returns sessions awaiting manager adjudication, oldest
// first.
func (s *VerificationService) ListPendingReview(ctx context.Context, limit int) ([]models.VerificationSession, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		sessionSelect+`WHERE status = $1 ORDER BY created_at ASC LIMIT $2`,
		models.VerificationManagerReview, limit)
	if err != nil {
		return nil, fmt.Errorf("verification: list pending: %w", err)
	}
	defer rows.Close()

	var sessions []models.VerificationSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("verification: scan session: %w", err)
		}
		sessions = append(sessions, *session)
	}
	return sessions, rows.Err()
}

// GetDocument returns one artifact blob (base64) for manager inline viewing.
// docType is front|back|video.
func (s *VerificationService) GetDocument(ctx context.Context, sessionID, docType string) (string, error) {
	var column string
	switch docType {
	case "front":
		column = "doc_front_b64"
	case "back":
		column = "doc_back_b64"
	case "video":
		column = "video_b64"
	default:
		return "", fmt.Errorf("%w: doc_type must be front|back|video", ErrInvalidInput)
	}

	var blob sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT `+column+` FROM verification_sessions WHERE id = $1`, sessionID).Scan(&blob)
	if err == sql.ErrNoRows || (err == nil && !blob.Valid) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("verification: get document: %w", err)
	}
	return blob.String, nil
}

// notifyDecision queues the decision for downstream notifiers (email, chat).
// Best-effort: the transition has already committed.
func (s *VerificationService) notifyDecision(sub, sessionID, status string) {
	if s.redis == nil {
		return
	}
	payload, err := json.Marshal(map[string]string{
		"session_id": sessionID,
		"sub":        sub,
		"status":     status,
	})
	if err != nil {
		return
	}
	if err := s.redis.RPush(context.Background(), decisionQueueKey, payload).Err(); err != nil {
		log.Printf("[VERIFY] Failed to queue decision notification: %v", err)
	}
}

const sessionSelect = `
	SELECT id, sub, status, channel, video_duration_s, fraud_score, fraud_flags,
	       decision, decided_by, note, decided_at, created_at, updated_at
	FROM verification_sessions `

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.VerificationSession, error) {
	var s models.VerificationSession
	var duration, score sql.NullFloat64
	var flags, decision, decidedBy, note sql.NullString
	var decidedAt sql.NullTime

	err := row.Scan(&s.ID, &s.Sub, &s.Status, &s.Channel, &duration, &score, &flags,
		&decision, &decidedBy, &note, &decidedAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}

	s.VideoDurationS = duration.Float64
	if score.Valid {
		s.FraudScore = &score.Float64
	}
	if flags.Valid && flags.String != "" {
		_ = json.Unmarshal([]byte(flags.String), &s.FraudFlags)
	}
	s.Decision = decision.String
	s.DecidedBy = decidedBy.String
	s.Note = note.String
	if decidedAt.Valid {
		s.DecidedAt = &decidedAt.Time
	}
	return &s, nil
}
