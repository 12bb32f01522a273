// Package handlers provides HTTP handlers for the Sales Engine API.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/spherical-ai/spherical/libs/sales-engine/internal/domain"
	"github.com/spherical-ai/spherical/libs/sales-engine/internal/observability"
)

// ErrorDTO is the body of every non-2xx response.
type ErrorDTO struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

func writeJSON(logger *observability.Logger, w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(logger *observability.Logger, w http.ResponseWriter, status int, message, detail string) {
	writeJSON(logger, w, status, ErrorDTO{Error: message, Message: message, Detail: detail})
}

// writeDomainError maps an error's kind onto a status code. Detail is only
// exposed for client errors.
func writeDomainError(logger *observability.Logger, w http.ResponseWriter, err error, message string) {
	status := statusFor(err)
	detail := ""
	if status < http.StatusInternalServerError {
		detail = err.Error()
	} else {
		logger.Error().Err(err).Msg(message)
	}
	writeError(logger, w, status, message, detail)
}

func statusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindPolicyDenied:
		return http.StatusUnprocessableEntity
	case domain.KindUpstreamUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
