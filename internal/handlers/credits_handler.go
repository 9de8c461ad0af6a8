package handlers

import (
	"net/http"
	"strconv"

	"github.com/careerforge/backend/internal/middleware"
	"github.com/careerforge/backend/internal/services"
)

type CreditsHandler struct {
	service   *services.CreditsService
	validator *services.ValidationHelper
}

func NewCreditsHandler(service *services.CreditsService) *CreditsHandler {
	return &CreditsHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

// Balance returns the caller's credit balance
// @Summary Credit balance
// @Description Return the account's current balance, summed from the ledger
// @Tags Credits
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{balance=int64}
// @Router /credits/balance [get]
func (h *CreditsHandler) Balance(w http.ResponseWriter, r *http.Request) {
	sub := middleware.UserID(r.Context())
	if sub == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	balance, err := h.service.Balance(r.Context(), sub)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	services.SendJSON(w, http.StatusOK, map[string]any{
		"balance": balance,
	})
}

// Events returns the caller's ledger history
// @Summary Credit events
// @Description Return the account's ledger entries, newest first
// @Tags Credits
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Max entries to return"
// @Success 200 {array} models.LedgerEntry
// @Router /credits/events [get]
func (h *CreditsHandler) Events(w http.ResponseWriter, r *http.Request) {
	sub := middleware.UserID(r.Context())
	if sub == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.service.Events(r.Context(), sub, limit)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	services.SendJSON(w, http.StatusOK, map[string]any{
		"events": entries,
		"count":  len(entries),
	})
}

// PaymentEvent applies a payment provider webhook
// @Summary Apply payment event
// @Description Grant pack credits for a provider payment event; redeliveries are absorbed
// @Tags Credits
// @Accept json
// @Produce json
// @Param request body object{event_id=string,sub=string,pack_id=string} true "Provider event"
// @Success 200 {object} object{applied=bool}
// @Failure 400 {object} services.ErrorResponse
// @Router /credits/payment-event [post]
func (h *CreditsHandler) PaymentEvent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EventID string `json:"event_id" validate:"required"`
		Sub     string `json:"sub" validate:"required"`
		PackID  string `json:"pack_id" validate:"required"`
	}
	if err := services.DecodeJSONBody(w, r, &req, 1<<20); err != nil {
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	applied, err := h.service.ApplyPaymentEvent(r.Context(), req.EventID, req.Sub, req.PackID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	services.SendJSON(w, http.StatusOK, map[string]any{
		"applied": applied,
	})
}
