package handlers

import (
	"bytes"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/careerforge/backend/internal/services"
)

func TestManagerHandler_GetDocument(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := services.NewVerificationService(db, nil, nil, services.NewLedgerService(db), services.NewAccountService(db), nil)
	handler := NewManagerHandler(service)

	router := chi.NewRouter()
	router.Get("/manager/verifications/{id}/documents/{type}", handler.GetDocument)

	t.Run("serves raw bytes inline with a sniffed type", func(t *testing.T) {
		raw := append([]byte{0xff, 0xd8, 0xff, 0xe0}, bytes.Repeat([]byte{0x11}, 600)...)
		blob := base64.StdEncoding.EncodeToString(raw)

		mock.ExpectQuery("SELECT doc_front_b64 FROM verification_sessions").
			WithArgs("sess1").
			WillReturnRows(sqlmock.NewRows([]string{"doc_front_b64"}).AddRow(blob))

		req := httptest.NewRequest(http.MethodGet, "/manager/verifications/sess1/documents/front", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, raw, w.Body.Bytes())
		assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))
		assert.Equal(t, "inline", w.Header().Get("Content-Disposition"))
		assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
		assert.Equal(t, "default-src 'none'", w.Header().Get("Content-Security-Policy"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing artifact is a 404", func(t *testing.T) {
		mock.ExpectQuery("SELECT video_b64 FROM verification_sessions").
			WithArgs("sess1").
			WillReturnRows(sqlmock.NewRows([]string{"video_b64"}).AddRow(nil))

		req := httptest.NewRequest(http.MethodGet, "/manager/verifications/sess1/documents/video", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
