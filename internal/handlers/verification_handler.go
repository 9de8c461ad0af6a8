package handlers

import (
	"net/http"

	"github.com/careerforge/backend/internal/middleware"
	"github.com/careerforge/backend/internal/services"
)

// uploadBodyLimit bounds the artifact payload (two documents plus a short
// selfie video, base64 inflated).
const uploadBodyLimit = 32 << 20

type VerificationHandler struct {
	service   *services.VerificationService
	handoff   *services.HandoffService
	validator *services.ValidationHelper
}

func NewVerificationHandler(service *services.VerificationService, handoff *services.HandoffService) *VerificationHandler {
	return &VerificationHandler{
		service:   service,
		handoff:   handoff,
		validator: services.NewValidationHelper(),
	}
}

// Start opens (or resumes) the caller's verification session
// @Summary Start verification
// @Description Create a verification session, or return the active one if it exists
// @Tags Verification
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{email=string} false "Optional contact email"
// @Success 200 {object} object{session_id=string,status=string,channel=string}
// @Failure 401 {object} services.ErrorResponse
// @Router /verify/start [post]
func (h *VerificationHandler) Start(w http.ResponseWriter, r *http.Request) {
	sub := middleware.UserID(r.Context())
	if sub == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		Email string `json:"email" validate:"omitempty,email"`
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

	session, created, err := h.service.Start(r.Context(), sub, req.Email)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	services.SendJSON(w, status, map[string]any{
		"session_id": session.ID,
		"status":     session.Status,
		"channel":    session.Channel,
	})
}

// Upload submits identity artifacts for scoring
// @Summary Upload verification artifacts
// @Description Submit document images and liveness video; on the automated channel the decision is returned inline
// @Tags Verification
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{session_id=string,doc_front=string,doc_back=string,video=string,video_duration_s=number,declared_name=string} true "Base64 artifacts"
// @Success 200 {object} services.UploadResult
// @Failure 400 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /verify/upload [post]
func (h *VerificationHandler) Upload(w http.ResponseWriter, r *http.Request) {
	sub := middleware.UserID(r.Context())
	if sub == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		SessionID      string  `json:"session_id" validate:"required"`
		DocFront       string  `json:"doc_front" validate:"required"`
		DocBack        string  `json:"doc_back"`
		Video          string  `json:"video"`
		VideoDurationS float64 `json:"video_duration_s" validate:"gte=0"`
		DeclaredName   string  `json:"declared_name"`
	}
	if err := services.DecodeJSONBody(w, r, &req, uploadBodyLimit); err != nil {
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	result, err := h.service.Upload(r.Context(), sub, services.UploadInput{
		SessionID:      req.SessionID,
		DocFront:       req.DocFront,
		DocBack:        req.DocBack,
		Video:          req.Video,
		VideoDurationS: req.VideoDurationS,
		DeclaredName:   req.DeclaredName,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}

	services.SendJSON(w, http.StatusOK, result)
}

// Status reports the caller's latest verification state
// @Summary Verification status
// @Description Return the caller's most recent session state and score band
// @Tags Verification
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{session_id=string,status=string,channel=string}
// @Failure 404 {object} services.ErrorResponse
// @Router /verify/status [get]
func (h *VerificationHandler) Status(w http.ResponseWriter, r *http.Request) {
	sub := middleware.UserID(r.Context())
	if sub == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	session, err := h.service.Latest(r.Context(), sub)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if session == nil {
		services.SendErrorResponse(w, "No verification session", http.StatusNotFound, nil)
		return
	}

	services.SendJSON(w, http.StatusOK, session)
}

// AgentDecide records a human agent's verdict after the video call
// @Summary Agent decision
// @Description Record the verifying agent's decision for a session
// @Tags Verification
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{session_id=string,decision=string,note=string} true "approved, rejected or escalate"
// @Success 200 {object} object{session_id=string,status=string}
// @Failure 403 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /verify/agent-decision [post]
func (h *VerificationHandler) AgentDecide(w http.ResponseWriter, r *http.Request) {
	agentSub := middleware.UserID(r.Context())
	if agentSub == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		SessionID string `json:"session_id" validate:"required"`
		Decision  string `json:"decision" validate:"required,oneof=approved rejected escalate"`
		Note      string `json:"note" validate:"max=2000"`
	}
	if err := services.DecodeJSONBody(w, r, &req, 1<<20); err != nil {
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	status, err := h.service.AgentDecide(r.Context(), req.SessionID, agentSub, req.Decision, req.Note)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	services.SendJSON(w, http.StatusOK, map[string]any{
		"session_id": req.SessionID,
		"status":     status,
	})
}

// CreateHandoff issues a QR code to continue capture on another device
// @Summary Create device handoff
// @Description Issue a short-lived QR token binding the session to a second device
// @Tags Verification
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{session_id=string} true "Session to hand off"
// @Success 200 {object} object{token=string,qr_image=string}
// @Failure 400 {object} services.ErrorResponse
// @Router /verify/handoff [post]
func (h *VerificationHandler) CreateHandoff(w http.ResponseWriter, r *http.Request) {
	sub := middleware.UserID(r.Context())
	if sub == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		SessionID string `json:"session_id" validate:"required"`
	}
	if err := services.DecodeJSONBody(w, r, &req, 1<<20); err != nil {
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	// Only the session owner may hand it off, and only while work remains.
	session, err := h.service.Get(r.Context(), req.SessionID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if session.Sub != sub {
		services.SendErrorResponse(w, "Forbidden", http.StatusForbidden, nil)
		return
	}
	if session.Terminal() {
		respondServiceError(w, &services.SessionConflictError{Status: session.Status})
		return
	}

	token, qrImage, err := h.handoff.CreateHandoff(r.Context(), sub, req.SessionID)
	if err != nil {
		services.SendErrorResponse(w, "Failed to create handoff", http.StatusInternalServerError, nil)
		return
	}

	services.SendJSON(w, http.StatusOK, map[string]any{
		"token":    token,
		"qr_image": qrImage,
	})
}

// ClaimHandoff redeems a scanned handoff token
// @Summary Claim device handoff
// @Description Redeem a handoff token scanned on the second device
// @Tags Verification
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{token=string} true "Scanned token"
// @Success 200 {object} object{session_id=string}
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /verify/handoff/claim [post]
func (h *VerificationHandler) ClaimHandoff(w http.ResponseWriter, r *http.Request) {
	sub := middleware.UserID(r.Context())
	if sub == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		Token string `json:"token" validate:"required"`
	}
	if err := services.DecodeJSONBody(w, r, &req, 1<<20); err != nil {
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	sessionID, err := h.handoff.ClaimHandoff(r.Context(), req.Token, sub)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	services.SendJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
	})
}
