package services

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/careerforge/backend/internal/models"
)

type stubAnalyser struct {
	report FraudReport
}

func (s stubAnalyser) Analyse(FraudInput) FraudReport {
	return s.report
}

func newVerificationService(db *sql.DB, report FraudReport) *VerificationService {
	return NewVerificationService(db, nil, stubAnalyser{report: report},
		NewLedgerService(db), NewAccountService(db), nil)
}

func sessionRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "sub", "status", "channel", "video_duration_s",
		"fraud_score", "fraud_flags", "decision", "decided_by", "note", "decided_at",
		"created_at", "updated_at"})
}

func pendingSessionRow(id, sub, channel string) *sqlmock.Rows {
	return sessionRows().AddRow(id, sub, models.VerificationPending, channel,
		nil, nil, nil, nil, nil, nil, nil, time.Now(), time.Now())
}

func TestVerificationService_Start(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := newVerificationService(db, FraudReport{})

	t.Run("creates a new session", func(t *testing.T) {
		sub := "auth0|user1"

		mock.ExpectExec("INSERT INTO accounts").
			WithArgs(sub, "u1@example.com", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("SELECT id, sub, status, channel").
			WithArgs(sub).
			WillReturnError(sql.ErrNoRows)
		mock.ExpectExec("INSERT INTO verification_sessions").
			WithArgs(sqlmock.AnyArg(), sub, models.VerificationPending, models.ChannelAI,
				sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		session, created, err := service.Start(context.Background(), sub, "u1@example.com")
		assert.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, models.VerificationPending, session.Status)
		assert.NotEmpty(t, session.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns the active session instead of creating", func(t *testing.T) {
		sub := "auth0|user1"

		mock.ExpectExec("INSERT INTO accounts").
			WithArgs(sub, "", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("SELECT id, sub, status, channel").
			WithArgs(sub).
			WillReturnRows(pendingSessionRow("sess1", sub, models.ChannelAI))

		session, created, err := service.Start(context.Background(), sub, "")
		assert.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, "sess1", session.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("creates a fresh session after a terminal one", func(t *testing.T) {
		sub := "auth0|user1"

		mock.ExpectExec("INSERT INTO accounts").
			WithArgs(sub, "", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("SELECT id, sub, status, channel").
			WithArgs(sub).
			WillReturnRows(sessionRows().AddRow("sess1", sub, models.VerificationRejected,
				models.ChannelAI, nil, nil, nil, "rejected", "scorer", nil, time.Now(), time.Now(), time.Now()))
		mock.ExpectExec("INSERT INTO verification_sessions").
			WillReturnResult(sqlmock.NewResult(1, 1))

		session, created, err := service.Start(context.Background(), sub, "")
		assert.NoError(t, err)
		assert.True(t, created)
		assert.NotEqual(t, "sess1", session.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestVerificationService_Upload(t *testing.T) {
	t.Run("low score approves and grants the free pack", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := newVerificationService(db, FraudReport{
			Score:          4.0,
			Flags:          []string{},
			Recommendation: RecommendApprove,
		})
		sub := "auth0|user1"

		mock.ExpectQuery("SELECT id, sub, status, channel").
			WithArgs("sess1").
			WillReturnRows(pendingSessionRow("sess1", sub, models.ChannelAI))
		mock.ExpectExec("UPDATE verification_sessions").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE verification_sessions").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO accounts").
			WithArgs(sub, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs(sub, models.ReasonFreePack).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectExec("INSERT INTO credit_ledger").
			WithArgs(sub, int64(30), models.ReasonFreePack, "verification", "sess1", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		result, err := service.Upload(context.Background(), sub, UploadInput{
			SessionID: "sess1",
			DocFront:  fakeJPEG(100),
			DocBack:   fakeJPEG(100),
			Video:     fakeMP4(500),
		})
		assert.NoError(t, err)
		assert.Equal(t, models.VerificationApproved, result.Status)
		assert.Equal(t, 4.0, *result.Score)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("free pack is granted at most once", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := newVerificationService(db, FraudReport{
			Score:          0,
			Recommendation: RecommendApprove,
		})
		sub := "auth0|user1"

		mock.ExpectQuery("SELECT id, sub, status, channel").
			WithArgs("sess2").
			WillReturnRows(pendingSessionRow("sess2", sub, models.ChannelAI))
		mock.ExpectExec("UPDATE verification_sessions").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE verification_sessions").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO accounts").
			WithArgs(sub, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs(sub, models.ReasonFreePack).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectCommit()

		result, err := service.Upload(context.Background(), sub, UploadInput{
			SessionID: "sess2",
			DocFront:  fakeJPEG(100),
		})
		assert.NoError(t, err)
		assert.Equal(t, models.VerificationApproved, result.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("high score rejects", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := newVerificationService(db, FraudReport{
			Score:          82.5,
			Flags:          []string{"doc_front_invalid_format"},
			Recommendation: RecommendReject,
		})
		sub := "auth0|user1"

		mock.ExpectQuery("SELECT id, sub, status, channel").
			WithArgs("sess1").
			WillReturnRows(pendingSessionRow("sess1", sub, models.ChannelAI))
		mock.ExpectExec("UPDATE verification_sessions").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE verification_sessions").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		result, err := service.Upload(context.Background(), sub, UploadInput{
			SessionID: "sess1",
			DocFront:  "AAAA",
		})
		assert.NoError(t, err)
		assert.Equal(t, models.VerificationRejected, result.Status)
		assert.Contains(t, result.Flags, "doc_front_invalid_format")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("mid-band score escalates to manager review", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := newVerificationService(db, FraudReport{
			Score:          50.0,
			Flags:          []string{"missing_doc_back", "missing_liveness_video"},
			Recommendation: RecommendManualReview,
		})
		sub := "auth0|user1"

		mock.ExpectQuery("SELECT id, sub, status, channel").
			WithArgs("sess1").
			WillReturnRows(pendingSessionRow("sess1", sub, models.ChannelAI))
		mock.ExpectExec("UPDATE verification_sessions").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE verification_sessions").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		result, err := service.Upload(context.Background(), sub, UploadInput{
			SessionID: "sess1",
			DocFront:  fakeJPEG(5),
		})
		assert.NoError(t, err)
		assert.Equal(t, models.VerificationManagerReview, result.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("upload on a decided session conflicts", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := newVerificationService(db, FraudReport{})
		sub := "auth0|user1"

		mock.ExpectQuery("SELECT id, sub, status, channel").
			WithArgs("sess1").
			WillReturnRows(sessionRows().AddRow("sess1", sub, models.VerificationApproved,
				models.ChannelAI, nil, 4.0, nil, "approved", "scorer", nil, time.Now(), time.Now(), time.Now()))

		_, err = service.Upload(context.Background(), sub, UploadInput{
			SessionID: "sess1",
			DocFront:  "AAAA",
		})

		var conflict *SessionConflictError
		assert.ErrorAs(t, err, &conflict)
		assert.Equal(t, models.VerificationApproved, conflict.Status)
	})

	t.Run("upload that lost the race to a decision conflicts", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := newVerificationService(db, FraudReport{Recommendation: RecommendApprove})
		sub := "auth0|user1"

		// Pending at read time, but the guarded artifact write matches no
		// row because an agent decision committed in between.
		mock.ExpectQuery("SELECT id, sub, status, channel").
			WithArgs("sess1").
			WillReturnRows(pendingSessionRow("sess1", sub, models.ChannelAI))
		mock.ExpectExec("UPDATE verification_sessions").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT status FROM verification_sessions").
			WithArgs("sess1").
			WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(models.VerificationRejected))

		_, err = service.Upload(context.Background(), sub, UploadInput{
			SessionID: "sess1",
			DocFront:  fakeJPEG(100),
		})

		var conflict *SessionConflictError
		assert.ErrorAs(t, err, &conflict)
		assert.Equal(t, models.VerificationRejected, conflict.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("upload to another user's session is forbidden", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := newVerificationService(db, FraudReport{})

		mock.ExpectQuery("SELECT id, sub, status, channel").
			WithArgs("sess1").
			WillReturnRows(pendingSessionRow("sess1", "auth0|owner", models.ChannelAI))

		_, err = service.Upload(context.Background(), "auth0|intruder", UploadInput{
			SessionID: "sess1",
			DocFront:  "AAAA",
		})
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("agent channel stores artifacts and stays pending", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := newVerificationService(db, FraudReport{Recommendation: RecommendReject})
		sub := "auth0|user1"

		mock.ExpectQuery("SELECT id, sub, status, channel").
			WithArgs("sess1").
			WillReturnRows(pendingSessionRow("sess1", sub, models.ChannelAgent))
		mock.ExpectExec("UPDATE verification_sessions").
			WillReturnResult(sqlmock.NewResult(0, 1))

		result, err := service.Upload(context.Background(), sub, UploadInput{
			SessionID: "sess1",
			DocFront:  "AAAA",
		})
		assert.NoError(t, err)
		assert.Equal(t, models.VerificationPending, result.Status)
		assert.Nil(t, result.Score)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestVerificationService_AgentDecide(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := newVerificationService(db, FraudReport{})

	t.Run("escalate parks for manager review", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, sub, status, channel").
			WithArgs("sess1").
			WillReturnRows(pendingSessionRow("sess1", "auth0|user1", models.ChannelAgent))
		mock.ExpectExec("UPDATE verification_sessions").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		status, err := service.AgentDecide(context.Background(), "sess1", "auth0|agent1", models.DecisionEscalate, "face mismatch")
		assert.NoError(t, err)
		assert.Equal(t, models.VerificationManagerReview, status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid decision", func(t *testing.T) {
		_, err := service.AgentDecide(context.Background(), "sess1", "auth0|agent1", "maybe", "")
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("terminal session cannot be re-decided", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, sub, status, channel").
			WithArgs("sess1").
			WillReturnRows(sessionRows().AddRow("sess1", "auth0|user1", models.VerificationRejected,
				models.ChannelAgent, nil, nil, nil, "rejected", "auth0|agent1", nil, time.Now(), time.Now(), time.Now()))
		mock.ExpectRollback()

		_, err := service.AgentDecide(context.Background(), "sess1", "auth0|agent1", models.DecisionApproved, "")

		var conflict *SessionConflictError
		assert.ErrorAs(t, err, &conflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestVerificationService_ManagerReview(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := newVerificationService(db, FraudReport{})

	t.Run("only manager_review sessions can be reviewed", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, sub, status, channel").
			WithArgs("sess1").
			WillReturnRows(pendingSessionRow("sess1", "auth0|user1", models.ChannelAI))
		mock.ExpectRollback()

		_, err := service.ManagerReview(context.Background(), "sess1", "auth0|mgr1", models.DecisionRejected, "")

		var conflict *SessionConflictError
		assert.ErrorAs(t, err, &conflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("manager rejection is terminal", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, sub, status, channel").
			WithArgs("sess1").
			WillReturnRows(sessionRows().AddRow("sess1", "auth0|user1", models.VerificationManagerReview,
				models.ChannelAI, nil, 48.0, nil, nil, nil, nil, nil, time.Now(), time.Now()))
		mock.ExpectExec("UPDATE verification_sessions").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		status, err := service.ManagerReview(context.Background(), "sess1", "auth0|mgr1", models.DecisionRejected, "document reused")
		assert.NoError(t, err)
		assert.Equal(t, models.VerificationRejected, status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("approval that lost the race to a rejection conflicts", func(t *testing.T) {
		// The caller saw manager_review, but another decision committed
		// first. The locked re-read must surface that and skip the grant.
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, sub, status, channel").
			WithArgs("sess1").
			WillReturnRows(sessionRows().AddRow("sess1", "auth0|user1", models.VerificationRejected,
				models.ChannelAI, nil, 48.0, nil, "rejected", "auth0|mgr2", nil, time.Now(), time.Now(), time.Now()))
		mock.ExpectRollback()

		_, err := service.ManagerReview(context.Background(), "sess1", "auth0|mgr1", models.DecisionApproved, "")

		var conflict *SessionConflictError
		assert.ErrorAs(t, err, &conflict)
		assert.Equal(t, models.VerificationRejected, conflict.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("escalate is not a manager decision", func(t *testing.T) {
		_, err := service.ManagerReview(context.Background(), "sess1", "auth0|mgr1", models.DecisionEscalate, "")
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}
