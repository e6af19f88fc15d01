package handlers

import (
	"net/http"

	"discount-system/internal/logger"
	"discount-system/internal/models"

	"github.com/google/uuid"
)

// AuditHandler отдаёт журнал аудита скидок.
type AuditHandler struct {
	audits AuditLog
	log    *logger.Logger
}

// NewAuditHandler создаёт обработчик журнала аудита.
func NewAuditHandler(audits AuditLog, log *logger.Logger) *AuditHandler {
	return &AuditHandler{
		audits: audits,
		log:    log,
	}
}

// ListAudits возвращает записи журнала по одному из фильтров:
// user_id, transaction_id или action.
// GET /api/audits?user_id=... | ?transaction_id=... | ?action=applied
func (h *AuditHandler) ListAudits(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	limit, offset := parseLimitOffset(r)
	query := r.URL.Query()

	var (
		audits []*models.DiscountAudit
		err    error
	)

	switch {
	case query.Get("user_id") != "":
		userID, parseErr := uuid.Parse(query.Get("user_id"))
		if parseErr != nil {
			writeErrorResponse(w, http.StatusBadRequest, "invalid user_id")
			return
		}
		audits, err = h.audits.ListByUser(r.Context(), userID, limit, offset)
	case query.Get("transaction_id") != "":
		audits, err = h.audits.ListByTransaction(r.Context(), query.Get("transaction_id"))
	case query.Get("action") != "":
		action := models.AuditAction(query.Get("action"))
		switch action {
		case models.AuditActionAssigned, models.AuditActionRevoked,
			models.AuditActionApplied, models.AuditActionExpired:
		default:
			writeErrorResponse(w, http.StatusBadRequest, "invalid action")
			return
		}
		audits, err = h.audits.ListByAction(r.Context(), action, limit, offset)
	default:
		writeErrorResponse(w, http.StatusBadRequest, "one of user_id, transaction_id or action is required")
		return
	}

	if err != nil {
		writeServiceError(w, h.log, err, "Failed to list audit records")
		return
	}
	if audits == nil {
		audits = []*models.DiscountAudit{}
	}

	writeJSONResponse(w, http.StatusOK, audits)
}
