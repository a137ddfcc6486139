package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"chatbot-backend/internal/models"
	"chatbot-backend/internal/services"
)

// Shared helpers

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func errorResp(code, message string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			RequestID: r.Header.Get("X-Request-ID"),
		},
	}
}

func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var busy *services.BusyError
	var gen *services.GenerationError
	switch {
	case errors.As(err, &busy):
		writeJSON(w, http.StatusServiceUnavailable, errorResp("MODEL_BUSY", busy.Message, r))
	case errors.As(err, &gen):
		writeJSON(w, http.StatusInternalServerError, errorResp("GENERATION_FAILED", "Failed to generate a response", r))
	default:
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "An unexpected error occurred", r))
	}
}
