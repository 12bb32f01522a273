package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/spherical-ai/spherical/libs/sales-engine/internal/conversation"
	"github.com/spherical-ai/spherical/libs/sales-engine/internal/observability"
)

// maxMessageBody bounds the request body; the engine truncates text further.
const maxMessageBody = 16 << 10

// TurnHandler processes one inbound message.
type TurnHandler interface {
	HandleTurn(ctx context.Context, userID, text string) (*conversation.Turn, error)
}

// ConversationHandler accepts user messages and returns the engine's replies.
type ConversationHandler struct {
	logger *observability.Logger
	engine TurnHandler
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(logger *observability.Logger, engine TurnHandler) *ConversationHandler {
	return &ConversationHandler{logger: logger, engine: engine}
}

// MessageRequestDTO is an inbound message.
type MessageRequestDTO struct {
	Text string `json:"text"`
}

// PostMessage handles POST /conversations/{userId}/messages.
func (h *ConversationHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := strings.TrimSpace(chi.URLParam(r, "userId"))
	if userID == "" {
		writeError(h.logger, w, http.StatusBadRequest, "userId is required", "")
		return
	}

	var req MessageRequestDTO
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageBody)).Decode(&req); err != nil {
		writeError(h.logger, w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	turn, err := h.engine.HandleTurn(ctx, userID, req.Text)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			writeError(h.logger, w, http.StatusGatewayTimeout, "turn timed out", "")
			return
		}
		if errors.Is(err, context.Canceled) {
			// client went away
			return
		}
		writeDomainError(h.logger, w, err, "turn failed")
		return
	}

	writeJSON(h.logger, w, http.StatusOK, turn)
}
