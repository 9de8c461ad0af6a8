package handlers

import (
	"errors"
	"net/http"

	"github.com/careerforge/backend/internal/services"
)

// respondServiceError translates service-layer errors into the JSON error
// envelope. Conflict-shaped errors keep their message so clients can show
// the blocking state.
func respondServiceError(w http.ResponseWriter, err error) {
	var conflict *services.SessionConflictError
	var notEligible *services.NotEligibleError
	var insufficient *services.InsufficientBalanceError

	switch {
	case errors.Is(err, services.ErrNotFound):
		services.SendErrorResponse(w, "Not found", http.StatusNotFound, nil)
	case errors.Is(err, services.ErrForbidden):
		services.SendErrorResponse(w, "Forbidden", http.StatusForbidden, nil)
	case errors.Is(err, services.ErrInvalidInput):
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
	case errors.Is(err, services.ErrAlreadyPending):
		services.SendErrorResponse(w, "A request is already pending", http.StatusConflict, nil)
	case errors.Is(err, services.ErrNotPending):
		services.SendErrorResponse(w, "Request is already resolved", http.StatusConflict, nil)
	case errors.As(err, &conflict):
		services.SendErrorResponse(w, conflict.Error(), http.StatusConflict, nil)
	case errors.As(err, &notEligible):
		services.SendErrorResponse(w, notEligible.Error(), http.StatusUnprocessableEntity, nil)
	case errors.As(err, &insufficient):
		services.SendErrorResponse(w, insufficient.Error(), http.StatusPaymentRequired, nil)
	default:
		services.SendErrorResponse(w, "Internal server error", http.StatusInternalServerError, nil)
	}
}
