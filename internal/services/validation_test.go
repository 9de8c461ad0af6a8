package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
)

type uploadShape struct {
	SessionID string `json:"session_id" validate:"required"`
	Decision  string `json:"decision" validate:"required,oneof=approved rejected escalate"`
}

func TestValidationHelper_ValidateStruct(t *testing.T) {
	vh := NewValidationHelper()

	t.Run("valid struct", func(t *testing.T) {
		valid := uploadShape{
			SessionID: "sess1",
			Decision:  "approved",
		}

		err := vh.ValidateStruct(&valid)
		assert.NoError(t, err)
	})

	t.Run("decision outside the allowed set", func(t *testing.T) {
		invalid := uploadShape{
			SessionID: "sess1",
			Decision:  "maybe",
		}

		err := vh.ValidateStruct(&invalid)
		assert.Error(t, err)

		validationErrors, ok := err.(validator.ValidationErrors)
		assert.True(t, ok)
		assert.Len(t, validationErrors, 1)
		assert.Equal(t, "oneof", validationErrors[0].Tag())
	})
}

func TestDecodeJSONBody(t *testing.T) {
	t.Run("single valid object", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"session_id":"sess1","decision":"approved"}`))
		w := httptest.NewRecorder()

		var dst uploadShape
		err := DecodeJSONBody(w, r, &dst, 1<<20)
		assert.NoError(t, err)
		assert.Equal(t, "sess1", dst.SessionID)
	})

	t.Run("unknown field rejected", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"session_id":"sess1","surprise":true}`))
		w := httptest.NewRecorder()

		var dst uploadShape
		err := DecodeJSONBody(w, r, &dst, 1<<20)
		assert.Error(t, err)
	})

	t.Run("trailing object rejected", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"session_id":"a"}{"session_id":"b"}`))
		w := httptest.NewRecorder()

		var dst uploadShape
		err := DecodeJSONBody(w, r, &dst, 1<<20)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "single JSON object")
	})
}

func TestSendErrorResponse(t *testing.T) {
	t.Run("error response without validation errors", func(t *testing.T) {
		w := httptest.NewRecorder()

		SendErrorResponse(w, "Something went wrong", http.StatusInternalServerError, nil)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var response ErrorResponse
		err := json.Unmarshal(w.Body.Bytes(), &response)
		assert.NoError(t, err)
		assert.Equal(t, "Something went wrong", response.Error)
		assert.Nil(t, response.Details)
	})

	t.Run("validation details are included", func(t *testing.T) {
		vh := NewValidationHelper()
		w := httptest.NewRecorder()

		err := vh.ValidateStruct(&uploadShape{})
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)

		var response ErrorResponse
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Contains(t, response.Details, "SessionID")
		assert.Contains(t, response.Details, "Decision")
	})
}
