package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"discount-system/internal/logger"
	"discount-system/internal/models"
)

// UserDiscountHandler обрабатывает операции над скидками пользователя:
// назначение, отзыв, выборку доступных, статистику и применение.
type UserDiscountHandler struct {
	application DiscountApplication
	eligibility EligibilityProvider
	log         *logger.Logger
}

// NewUserDiscountHandler создаёт обработчик скидок пользователя.
func NewUserDiscountHandler(application DiscountApplication, eligibility EligibilityProvider, log *logger.Logger) *UserDiscountHandler {
	return &UserDiscountHandler{
		application: application,
		eligibility: eligibility,
		log:         log,
	}
}

// AssignDiscount назначает скидку пользователю.
// POST /api/users/{id}/discounts/assign
func (h *UserDiscountHandler) AssignDiscount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	userID, err := extractUUIDFromPath(r.URL.Path, "/api/users/")
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	var req models.AssignDiscountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	binding, err := h.application.AssignDiscount(r.Context(), userID, req.DiscountID)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to assign discount")
		return
	}

	writeJSONResponse(w, http.StatusOK, binding)
}

// RevokeDiscount отзывает скидку у пользователя.
// POST /api/users/{id}/discounts/{discountId}/revoke
func (h *UserDiscountHandler) RevokeDiscount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	userID, err := extractUUIDFromPath(r.URL.Path, "/api/users/")
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	discountID, err := extractUUIDFromPath(r.URL.Path, "/api/users/"+userID.String()+"/discounts/")
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	var req models.RevokeDiscountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	revoked, err := h.application.RevokeDiscount(r.Context(), userID, discountID, req.Reason)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to revoke discount")
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]bool{"revoked": revoked})
}

// EligibleDiscounts возвращает доступные пользователю привязки.
// GET /api/users/{id}/discounts/eligible
func (h *UserDiscountHandler) EligibleDiscounts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	userID, err := extractUUIDFromPath(r.URL.Path, "/api/users/")
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	bindings, err := h.eligibility.EligibleFor(r.Context(), userID, time.Now())
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to get eligible discounts")
		return
	}
	if bindings == nil {
		bindings = []*models.UserDiscount{}
	}

	writeJSONResponse(w, http.StatusOK, bindings)
}

// DiscountStats возвращает агрегат по привязкам пользователя.
// GET /api/users/{id}/discounts/stats
func (h *UserDiscountHandler) DiscountStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	userID, err := extractUUIDFromPath(r.URL.Path, "/api/users/")
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	stats, err := h.application.GetUserDiscountStats(r.Context(), userID)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to get discount stats")
		return
	}

	writeJSONResponse(w, http.StatusOK, stats)
}

// ApplyDiscounts применяет доступные скидки пользователя к сумме.
// POST /api/users/{id}/discounts/apply
func (h *UserDiscountHandler) ApplyDiscounts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	userID, err := extractUUIDFromPath(r.URL.Path, "/api/users/")
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	var req models.ApplyDiscountsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.application.ApplyDiscounts(r.Context(), userID, &req)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to apply discounts")
		return
	}

	writeJSONResponse(w, http.StatusOK, result)
}
