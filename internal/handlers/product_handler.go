package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/careerforge/backend/internal/middleware"
	"github.com/careerforge/backend/internal/services"
)

type ProductHandler struct {
	service   *services.WorkProductService
	validator *services.ValidationHelper
}

func NewProductHandler(service *services.WorkProductService) *ProductHandler {
	return &ProductHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

// Generate charges for and records one generation
// @Summary Generate a product
// @Description Debit the account for one generation of the given kind and record its artifacts; an Idempotency-Key header makes retries safe
// @Tags Products
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param Idempotency-Key header string false "Client retry key"
// @Param request body object{kind=string,artifacts=object} true "Product kind and artifacts"
// @Success 201 {object} services.GenerateResult
// @Failure 402 {object} services.ErrorResponse
// @Router /products/generate [post]
func (h *ProductHandler) Generate(w http.ResponseWriter, r *http.Request) {
	sub := middleware.UserID(r.Context())
	if sub == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		Kind      string          `json:"kind" validate:"required"`
		Artifacts json.RawMessage `json:"artifacts"`
	}
	if err := services.DecodeJSONBody(w, r, &req, 8<<20); err != nil {
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	result, err := h.service.Generate(r.Context(), sub, req.Kind, r.Header.Get("Idempotency-Key"), req.Artifacts)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	services.SendJSON(w, status, result)
}

// List returns the caller's product history
// @Summary List products
// @Description Return the account's generated products, newest first
// @Tags Products
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Max products to return"
// @Success 200 {array} models.WorkProduct
// @Router /products [get]
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	sub := middleware.UserID(r.Context())
	if sub == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	products, err := h.service.List(r.Context(), sub, limit)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	services.SendJSON(w, http.StatusOK, map[string]any{
		"products": products,
		"count":    len(products),
	})
}
