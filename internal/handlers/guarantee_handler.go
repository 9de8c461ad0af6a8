package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/careerforge/backend/internal/middleware"
	"github.com/careerforge/backend/internal/services"
)

type GuaranteeHandler struct {
	service   *services.GuaranteeService
	validator *services.ValidationHelper
}

func NewGuaranteeHandler(service *services.GuaranteeService) *GuaranteeHandler {
	return &GuaranteeHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

// Status reports the caller's guarantee eligibility
// @Summary Guarantee status
// @Description Report eligibility for the money-back guarantee and the facts behind it
// @Tags Guarantee
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.GuaranteeStatus
// @Router /guarantee/status [get]
func (h *GuaranteeHandler) Status(w http.ResponseWriter, r *http.Request) {
	sub := middleware.UserID(r.Context())
	if sub == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	status, err := h.service.Status(r.Context(), sub)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	services.SendJSON(w, http.StatusOK, status)
}

// Request files a guarantee claim
// @Summary File guarantee request
// @Description File a money-back claim; rejected with the blocking condition when ineligible
// @Tags Guarantee
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{reason=string} false "Optional free-text reason"
// @Success 201 {object} models.GuaranteeRequest
// @Failure 409 {object} services.ErrorResponse
// @Failure 422 {object} services.ErrorResponse
// @Router /guarantee/request [post]
func (h *GuaranteeHandler) Request(w http.ResponseWriter, r *http.Request) {
	sub := middleware.UserID(r.Context())
	if sub == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		Reason string `json:"reason" validate:"max=2000"`
	}
	if r.ContentLength > 0 {
		if err := services.DecodeJSONBody(w, r, &req, 1<<20); err != nil {
			services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
			return
		}
		if err := h.validator.ValidateStruct(&req); err != nil {
			services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
			return
		}
	}

	request, err := h.service.Request(r.Context(), sub, req.Reason)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	services.SendJSON(w, http.StatusCreated, request)
}

// ListPending lists unresolved guarantee requests (manager only)
// @Summary Pending guarantee queue
// @Description List unresolved guarantee requests, oldest first
// @Tags Guarantee
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Max requests to return"
// @Success 200 {array} models.GuaranteeRequest
// @Failure 403 {object} services.ErrorResponse
// @Router /manager/guarantees [get]
func (h *GuaranteeHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	requests, err := h.service.ListPending(r.Context(), limit)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	services.SendJSON(w, http.StatusOK, map[string]any{
		"requests": requests,
		"count":    len(requests),
	})
}

// Resolve closes a pending guarantee request (manager only)
// @Summary Resolve guarantee request
// @Description Close a pending request with the chosen refund amount; 0 denies, amounts above the cap are clamped
// @Tags Guarantee
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Request ID"
// @Param request body object{credits_to_refund=integer} true "Resolution"
// @Success 200 {object} models.GuaranteeRequest
// @Failure 409 {object} services.ErrorResponse
// @Router /manager/guarantees/{id}/resolve [post]
func (h *GuaranteeHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	managerSub := middleware.UserID(r.Context())
	requestID := chi.URLParam(r, "id")

	var req struct {
		CreditsToRefund *int64 `json:"credits_to_refund" validate:"required,gte=0"`
	}
	if err := services.DecodeJSONBody(w, r, &req, 1<<20); err != nil {
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	request, err := h.service.Resolve(r.Context(), requestID, managerSub, *req.CreditsToRefund)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	services.SendJSON(w, http.StatusOK, request)
}
