package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"discount-system/internal/logger"
	"discount-system/internal/models"

	"github.com/google/uuid"
)

// DiscountHandler обрабатывает административные операции над каталогом скидок.
type DiscountHandler struct {
	catalog DiscountCatalog
	log     *logger.Logger
}

// NewDiscountHandler создаёт обработчик каталога скидок.
func NewDiscountHandler(catalog DiscountCatalog, log *logger.Logger) *DiscountHandler {
	return &DiscountHandler{
		catalog: catalog,
		log:     log,
	}
}

// CreateDiscount создаёт правило скидки.
func (h *DiscountHandler) CreateDiscount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req models.CreateDiscountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	discount, err := h.catalog.CreateDiscount(r.Context(), &req)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to create discount")
		return
	}

	writeJSONResponse(w, http.StatusCreated, discount)
}

// ListDiscounts возвращает страницу каталога.
func (h *DiscountHandler) ListDiscounts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	// Поиск по коду: /api/discounts?code=WELCOME10
	if code := r.URL.Query().Get("code"); code != "" {
		discount, err := h.catalog.GetDiscountByCode(r.Context(), code)
		if err != nil {
			writeServiceError(w, h.log, err, "Failed to get discount")
			return
		}
		writeJSONResponse(w, http.StatusOK, discount)
		return
	}

	limit, offset := parseLimitOffset(r)
	discounts, err := h.catalog.ListDiscounts(r.Context(), limit, offset)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to list discounts")
		return
	}

	writeJSONResponse(w, http.StatusOK, discounts)
}

// GetDiscount возвращает правило скидки по идентификатору.
func (h *DiscountHandler) GetDiscount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	id, err := h.discountIDFromPath(r)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	discount, err := h.catalog.GetDiscount(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to get discount")
		return
	}

	writeJSONResponse(w, http.StatusOK, discount)
}

// UpdateDiscount обновляет правило скидки.
func (h *DiscountHandler) UpdateDiscount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	id, err := h.discountIDFromPath(r)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	var req models.UpdateDiscountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	discount, err := h.catalog.UpdateDiscount(r.Context(), id, &req)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to update discount")
		return
	}

	writeJSONResponse(w, http.StatusOK, discount)
}

// DeleteDiscount удаляет правило скидки.
func (h *DiscountHandler) DeleteDiscount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	id, err := h.discountIDFromPath(r)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.catalog.DeleteDiscount(r.Context(), id); err != nil {
		writeServiceError(w, h.log, err, "Failed to delete discount")
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]string{"message": "Discount deleted"})
}

func (h *DiscountHandler) discountIDFromPath(r *http.Request) (uuid.UUID, error) {
	path := strings.TrimSuffix(r.URL.Path, "/")
	return extractUUIDFromPath(path, "/api/discounts/")
}
