package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"chatbot-backend/internal/metrics"
	"chatbot-backend/internal/models"
)

// maxChatBodyBytes bounds the request body read by Chat.
const maxChatBodyBytes = 1 << 20

type chatResponder interface {
	Respond(ctx context.Context, req models.ChatRequest) (models.ChatResponse, error)
}

type ChatHandler struct {
	chat chatResponder
}

func NewChatHandler(chat chatResponder) *ChatHandler {
	return &ChatHandler{chat: chat}
}

// Chat handles POST /api/chat.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxChatBodyBytes))
	if err != nil {
		metrics.RecordChatRequest("invalid")
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResp("REQUEST_TOO_LARGE", "Request body is too large", r))
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResp("INVALID_JSON", "Could not read request body", r))
		return
	}

	req, err := models.DecodeChatRequest(body)
	if err != nil {
		metrics.RecordChatRequest("invalid")
		writeJSON(w, http.StatusBadRequest, errorResp("INVALID_JSON", "Request body must be a JSON object", r))
		return
	}

	resp, err := h.chat.Respond(r.Context(), req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
