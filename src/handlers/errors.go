package handlers

import (
	"errors"
	"net/http"

	"github.com/username/bondfolio/backend/src/logger"
	"github.com/username/bondfolio/backend/src/processors"
	"github.com/username/bondfolio/backend/src/security/validation"
	"github.com/username/bondfolio/backend/src/services"
	"github.com/username/bondfolio/backend/src/utils"
)

// statusForError maps service and domain errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, validation.ErrValidationFailed), errors.Is(err, processors.ErrInvalidPosition):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, services.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, processors.ErrNoReferenceRate):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError logs err and sends it to the client. Internal errors are
// replaced by fallback so database details do not leak.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := statusForError(err)
	ctxLogger := logger.FromContext(r.Context())
	if status == http.StatusInternalServerError {
		ctxLogger.Error(fallback, "path", r.URL.Path, "error", err)
		utils.SendJSONError(w, fallback, status)
		return
	}
	ctxLogger.Warn("Request rejected", "path", r.URL.Path, "status", status, "error", err)
	utils.SendJSONError(w, err.Error(), status)
}
