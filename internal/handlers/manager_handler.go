package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/careerforge/backend/internal/middleware"
	"github.com/careerforge/backend/internal/services"
)

// ManagerHandler serves the manager review queue. Routes using it must sit
// behind RequireManager.
type ManagerHandler struct {
	service   *services.VerificationService
	validator *services.ValidationHelper
}

func NewManagerHandler(service *services.VerificationService) *ManagerHandler {
	return &ManagerHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

// ListPending lists sessions awaiting manager review
// @Summary Pending review queue
// @Description List verification sessions escalated for manager adjudication, oldest first
// @Tags Manager
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Max sessions to return"
// @Success 200 {array} models.VerificationSession
// @Failure 403 {object} services.ErrorResponse
// @Router /manager/verifications [get]
func (h *ManagerHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	sessions, err := h.service.ListPendingReview(r.Context(), limit)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	services.SendJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// GetSession returns one session's full state
// @Summary Session detail
// @Description Return a session's state, score and flags for review
// @Tags Manager
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Success 200 {object} models.VerificationSession
// @Failure 404 {object} services.ErrorResponse
// @Router /manager/verifications/{id} [get]
func (h *ManagerHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	services.SendJSON(w, http.StatusOK, session)
}

// GetDocument streams one artifact for inline viewing
// @Summary Session artifact
// @Description Serve one artifact's raw bytes inline for a session under review; the stored base64 never appears in a JSON body
// @Tags Manager
// @Produce octet-stream
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Param type path string true "front, back or video"
// @Success 200 {file} file
// @Failure 404 {object} services.ErrorResponse
// @Router /manager/verifications/{id}/documents/{type} [get]
func (h *ManagerHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	docType := chi.URLParam(r, "type")
	blob, err := h.service.GetDocument(r.Context(), chi.URLParam(r, "id"), docType)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	data, err := services.DecodeArtifact(blob)
	if err != nil {
		services.SendErrorResponse(w, "Stored artifact is not decodable", http.StatusInternalServerError, nil)
		return
	}

	// Identity artifacts go out as raw bytes for inline viewing only; they
	// must never land in intermediary caches or be framed by another origin.
	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Content-Disposition", "inline")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Security-Policy", "default-src 'none'")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// Review records the manager's terminal decision
// @Summary Manager review
// @Description Approve or reject a session sitting in the manager queue
// @Tags Manager
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Param request body object{decision=string,note=string} true "approved or rejected"
// @Success 200 {object} object{session_id=string,status=string}
// @Failure 409 {object} services.ErrorResponse
// @Router /manager/verifications/{id}/review [post]
func (h *ManagerHandler) Review(w http.ResponseWriter, r *http.Request) {
	managerSub := middleware.UserID(r.Context())
	sessionID := chi.URLParam(r, "id")

	var req struct {
		Decision string `json:"decision" validate:"required,oneof=approved rejected"`
		Note     string `json:"note" validate:"max=2000"`
	}
	if err := services.DecodeJSONBody(w, r, &req, 1<<20); err != nil {
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	status, err := h.service.ManagerReview(r.Context(), sessionID, managerSub, req.Decision, req.Note)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	services.SendJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"status":     status,
	})
}
