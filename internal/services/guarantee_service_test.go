package services

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/careerforge/backend/internal/models"
)

func newGuaranteeService(db *sql.DB) *GuaranteeService {
	ledger := NewLedgerService(db)
	products := NewWorkProductService(db, ledger, NewIdempotencyService(db), nil)
	return NewGuaranteeService(db, ledger, products, nil)
}

func daysAgo(n int) time.Time {
	return time.Now().Add(-time.Duration(n) * 24 * time.Hour)
}

func TestGuaranteeService_Status(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := newGuaranteeService(db)

	t.Run("eligible after the waiting period", func(t *testing.T) {
		mock.ExpectQuery("SELECT COUNT\\(\\*\\), MIN\\(created_at\\) FROM work_products").
			WithArgs("auth0|user1").
			WillReturnRows(sqlmock.NewRows([]string{"count", "min"}).AddRow(3, daysAgo(10)))
		mock.ExpectQuery("SELECT id, sub, status").
			WithArgs("auth0|user1").
			WillReturnError(sql.ErrNoRows)

		status, err := service.Status(context.Background(), "auth0|user1")
		assert.NoError(t, err)
		assert.True(t, status.Eligible)
		assert.Equal(t, 3, status.ProductCount)
		assert.Equal(t, 10, status.DaysActive)
	})

	t.Run("no products means not eligible", func(t *testing.T) {
		mock.ExpectQuery("SELECT COUNT\\(\\*\\), MIN\\(created_at\\) FROM work_products").
			WithArgs("auth0|user2").
			WillReturnRows(sqlmock.NewRows([]string{"count", "min"}).AddRow(0, nil))
		mock.ExpectQuery("SELECT id, sub, status").
			WithArgs("auth0|user2").
			WillReturnError(sql.ErrNoRows)

		status, err := service.Status(context.Background(), "auth0|user2")
		assert.NoError(t, err)
		assert.False(t, status.Eligible)
		assert.Equal(t, 0, status.DaysActive)
	})
}

func TestGuaranteeService_Request(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := newGuaranteeService(db)

	t.Run("too early names the day", func(t *testing.T) {
		mock.ExpectQuery("SELECT COUNT\\(\\*\\), MIN\\(created_at\\) FROM work_products").
			WithArgs("auth0|user1").
			WillReturnRows(sqlmock.NewRows([]string{"count", "min"}).AddRow(2, daysAgo(3)))
		mock.ExpectQuery("SELECT id, sub, status").
			WithArgs("auth0|user1").
			WillReturnError(sql.ErrNoRows)

		_, err := service.Request(context.Background(), "auth0|user1", "no offers yet")

		var notEligible *NotEligibleError
		assert.ErrorAs(t, err, &notEligible)
		assert.Contains(t, notEligible.Message, "day 7")
		assert.Contains(t, notEligible.Message, "day 3")
	})

	t.Run("pending request blocks another", func(t *testing.T) {
		mock.ExpectQuery("SELECT COUNT\\(\\*\\), MIN\\(created_at\\) FROM work_products").
			WithArgs("auth0|user1").
			WillReturnRows(sqlmock.NewRows([]string{"count", "min"}).AddRow(2, daysAgo(10)))
		mock.ExpectQuery("SELECT id, sub, status").
			WithArgs("auth0|user1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "sub", "status", "reason", "credits_refunded", "reviewed_by", "resolved_at", "created_at"}).
				AddRow("gr1", "auth0|user1", models.GuaranteePending, "", 0, "", nil, daysAgo(1)))

		_, err := service.Request(context.Background(), "auth0|user1", "")
		assert.ErrorIs(t, err, ErrAlreadyPending)
	})

	t.Run("resolved request blocks forever", func(t *testing.T) {
		mock.ExpectQuery("SELECT COUNT\\(\\*\\), MIN\\(created_at\\) FROM work_products").
			WithArgs("auth0|user1").
			WillReturnRows(sqlmock.NewRows([]string{"count", "min"}).AddRow(2, daysAgo(30)))
		mock.ExpectQuery("SELECT id, sub, status").
			WithArgs("auth0|user1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "sub", "status", "reason", "credits_refunded", "reviewed_by", "resolved_at", "created_at"}).
				AddRow("gr1", "auth0|user1", models.GuaranteeResolved, "", 40, "auth0|mgr1", daysAgo(5), daysAgo(9)))

		_, err := service.Request(context.Background(), "auth0|user1", "")

		var notEligible *NotEligibleError
		assert.ErrorAs(t, err, &notEligible)
	})

	t.Run("eligible request is filed", func(t *testing.T) {
		mock.ExpectQuery("SELECT COUNT\\(\\*\\), MIN\\(created_at\\) FROM work_products").
			WithArgs("auth0|user1").
			WillReturnRows(sqlmock.NewRows([]string{"count", "min"}).AddRow(2, daysAgo(8)))
		mock.ExpectQuery("SELECT id, sub, status").
			WithArgs("auth0|user1").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectExec("INSERT INTO guarantee_requests").
			WithArgs(sqlmock.AnyArg(), "auth0|user1", models.GuaranteePending, "no offers yet", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		request, err := service.Request(context.Background(), "auth0|user1", "no offers yet")
		assert.NoError(t, err)
		assert.Equal(t, models.GuaranteePending, request.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("overlong reason is cut to the stored limit", func(t *testing.T) {
		long := strings.Repeat("x", maxReasonLength+200)

		mock.ExpectQuery("SELECT COUNT\\(\\*\\), MIN\\(created_at\\) FROM work_products").
			WithArgs("auth0|user1").
			WillReturnRows(sqlmock.NewRows([]string{"count", "min"}).AddRow(2, daysAgo(8)))
		mock.ExpectQuery("SELECT id, sub, status").
			WithArgs("auth0|user1").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectExec("INSERT INTO guarantee_requests").
			WithArgs(sqlmock.AnyArg(), "auth0|user1", models.GuaranteePending, long[:maxReasonLength], sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		request, err := service.Request(context.Background(), "auth0|user1", long)
		assert.NoError(t, err)
		assert.Len(t, request.Reason, maxReasonLength)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGuaranteeService_Resolve(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := newGuaranteeService(db)

	t.Run("reviewer amount above the cap is clamped", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, sub, status").
			WithArgs("gr1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "sub", "status", "reason", "credits_refunded", "reviewed_by", "resolved_at", "created_at"}).
				AddRow("gr1", "auth0|user1", models.GuaranteePending, "no offers", 0, "", nil, daysAgo(1)))
		mock.ExpectExec("INSERT INTO credit_ledger").
			WithArgs("auth0|user1", int64(100), models.ReasonGuaranteeRefund, "guarantee", "gr1", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("UPDATE guarantee_requests").
			WithArgs(models.GuaranteeResolved, int64(100), "auth0|mgr1", sqlmock.AnyArg(), "gr1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		request, err := service.Resolve(context.Background(), "gr1", "auth0|mgr1", 250)
		assert.NoError(t, err)
		assert.Equal(t, models.GuaranteeResolved, request.Status)
		assert.Equal(t, int64(100), request.CreditsRefunded)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("partial refund uses the reviewer's amount", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, sub, status").
			WithArgs("gr3").
			WillReturnRows(sqlmock.NewRows([]string{"id", "sub", "status", "reason", "credits_refunded", "reviewed_by", "resolved_at", "created_at"}).
				AddRow("gr3", "auth0|user3", models.GuaranteePending, "", 0, "", nil, daysAgo(1)))
		mock.ExpectExec("INSERT INTO credit_ledger").
			WithArgs("auth0|user3", int64(10), models.ReasonGuaranteeRefund, "guarantee", "gr3", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("UPDATE guarantee_requests").
			WithArgs(models.GuaranteeResolved, int64(10), "auth0|mgr1", sqlmock.AnyArg(), "gr3").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		request, err := service.Resolve(context.Background(), "gr3", "auth0|mgr1", 10)
		assert.NoError(t, err)
		assert.Equal(t, int64(10), request.CreditsRefunded)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("zero denies without touching the ledger", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, sub, status").
			WithArgs("gr2").
			WillReturnRows(sqlmock.NewRows([]string{"id", "sub", "status", "reason", "credits_refunded", "reviewed_by", "resolved_at", "created_at"}).
				AddRow("gr2", "auth0|user2", models.GuaranteePending, "", 0, "", nil, daysAgo(1)))
		mock.ExpectExec("UPDATE guarantee_requests").
			WithArgs(models.GuaranteeResolved, int64(0), "auth0|mgr1", sqlmock.AnyArg(), "gr2").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		request, err := service.Resolve(context.Background(), "gr2", "auth0|mgr1", 0)
		assert.NoError(t, err)
		assert.Equal(t, int64(0), request.CreditsRefunded)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("resolved request cannot be resolved again", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, sub, status").
			WithArgs("gr1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "sub", "status", "reason", "credits_refunded", "reviewed_by", "resolved_at", "created_at"}).
				AddRow("gr1", "auth0|user1", models.GuaranteeResolved, "", 100, "auth0|mgr1", daysAgo(1), daysAgo(2)))
		mock.ExpectRollback()

		_, err := service.Resolve(context.Background(), "gr1", "auth0|mgr2", 50)
		assert.ErrorIs(t, err, ErrNotPending)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown request", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, sub, status").
			WithArgs("missing").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		_, err := service.Resolve(context.Background(), "missing", "auth0|mgr1", 100)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
