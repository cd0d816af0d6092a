package api

import (
	"encoding/json"
	"net/http"

	apperrors "jobboard-realtime/internal/common/errors"
	"jobboard-realtime/internal/common/validation"
)

type errorBody struct {
	Error   string                       `json:"error"`
	Code    apperrors.ErrorCode          `json:"code"`
	Details string                       `json:"details,omitempty"`
	Fields  []validation.ValidationError `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	stdErr := apperrors.Normalize(err)
	writeJSON(w, apperrors.HTTPStatus(stdErr.Code), errorBody{
		Error:   stdErr.Message,
		Code:    stdErr.Code,
		Details: stdErr.Details,
	})
}

func writeValidationError(w http.ResponseWriter, result *validation.ValidationResult) {
	writeJSON(w, http.StatusBadRequest, errorBody{
		Error:   "Invalid request",
		Code:    apperrors.ErrCodeInvalidRequest,
		Details: result.Summary(),
		Fields:  result.Errors,
	})
}
