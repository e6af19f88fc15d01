package handlers

import (
	"net/http"

	"discount-system/internal/apperror"
	"discount-system/internal/logger"
)

func writeServiceError(w http.ResponseWriter, log *logger.Logger, err error, internalMessage string) {
	switch {
	case apperror.Is(err, apperror.KindNotFound):
		writeErrorResponse(w, http.StatusNotFound, err.Error())
	case apperror.Is(err, apperror.KindValidation):
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
	case apperror.Is(err, apperror.KindNotEligible):
		writeErrorResponse(w, http.StatusUnprocessableEntity, err.Error())
	case apperror.Is(err, apperror.KindConflict), apperror.Is(err, apperror.KindUsageLimit):
		writeErrorResponse(w, http.StatusConflict, err.Error())
	case apperror.Is(err, apperror.KindConcurrency):
		writeErrorResponse(w, http.StatusServiceUnavailable, err.Error())
	default:
		if log != nil {
			log.WithError(err).Error(internalMessage)
		}
		writeErrorResponse(w, http.StatusInternalServerError, internalMessage)
	}
}
