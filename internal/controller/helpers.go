package controller

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	domainErrors "github.com/lcastro/eventcore/internal/domain/errors"
)

var validate = validator.New()

type errorMapping struct {
	err    error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{domainErrors.ErrEntryNotFound, http.StatusNotFound, "not_found"},
	{domainErrors.ErrEvaluationNotFound, http.StatusNotFound, "not_found"},
	{domainErrors.ErrEntryAlreadyClaimed, http.StatusConflict, "already_claimed"},
	{domainErrors.ErrVersionConflict, http.StatusConflict, "version_conflict"},
	{domainErrors.ErrEntryTerminal, http.StatusConflict, "terminal_entry"},
	{domainErrors.ErrInvalidStateTransition, http.StatusConflict, "invalid_state_transition"},
	{domainErrors.ErrNoSubscribers, http.StatusUnprocessableEntity, "no_subscribers"},
	{domainErrors.ErrLockAcquisitionFailed, http.StatusServiceUnavailable, "lock_unavailable"},
}

// APIResponse is the uniform envelope for every admin endpoint.
type APIResponse struct {
	Status  string `json:"status"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeSuccess(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, APIResponse{Status: "success", Data: data})
}

func writeError(w http.ResponseWriter, err error) {
	resp := APIResponse{Status: "error", Message: err.Error()}

	var validationErr *domainErrors.ValidationError
	if errors.As(err, &validationErr) {
		resp.Code = "validation_error"
		writeJSON(w, http.StatusBadRequest, resp)
		return
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			resp.Code = m.code
			writeJSON(w, m.status, resp)
			return
		}
	}

	var domainErr *domainErrors.DomainError
	if errors.As(err, &domainErr) {
		resp.Code = domainErr.Code
		writeJSON(w, http.StatusUnprocessableEntity, resp)
		return
	}

	log.Error().Err(err).Msg("unhandled error in handler")
	resp.Code = "internal_error"
	resp.Message = "internal server error"
	writeJSON(w, http.StatusInternalServerError, resp)
}

func writeBadRequest(w http.ResponseWriter, message, code string) {
	writeJSON(w, http.StatusBadRequest, APIResponse{Status: "error", Message: message, Code: code})
}

func decodeAndValidate(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return domainErrors.NewValidationError("body", "invalid JSON: "+err.Error())
	}
	if err := validate.Struct(dst); err != nil {
		if ve, ok := err.(validator.ValidationErrors); ok && len(ve) > 0 {
			return domainErrors.NewValidationError(ve[0].Field(), ve[0].Tag()+" validation failed")
		}
		return domainErrors.NewValidationError("body", err.Error())
	}
	return nil
}
