package api

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/hackgods/hospital-scheduling/internal/apperr"
)

var (
	errInvalidBody  = apperr.Validation("invalid_request_body", "could not parse JSON")
	errInvalidQuery = apperr.Validation("invalid_query", "invalid query parameter")
	errInvalidPath  = apperr.Validation("invalid_id", "path id must be a valid UUID")
	errMissingField = apperr.Validation("missing_field", "a required field is missing")
)

var statusByKind = map[apperr.Kind]int{
	apperr.KindValidation:      http.StatusBadRequest,
	apperr.KindUnauthenticated: http.StatusUnauthorized,
	apperr.KindForbidden:       http.StatusForbidden,
	apperr.KindNotFound:        http.StatusNotFound,
	apperr.KindConflict:        http.StatusConflict,
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// writeServiceError maps a domain error to its status. Anything else is
// logged and reported as internal_error without detail.
func (h *handlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if e, ok := apperr.As(err); ok {
		status, known := statusByKind[e.Kind]
		if known {
			writeJSON(w, status, ErrorResponse{Error: e.Code, Details: e.Message, Fields: e.Fields})
			return
		}
	}

	h.logger.Error("request failed",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("request_id", GetRequestID(r.Context())),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
}
