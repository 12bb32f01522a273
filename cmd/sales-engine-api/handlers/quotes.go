package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/spherical-ai/spherical/libs/sales-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/sales-engine/internal/storage"
)

// QuoteReader reads saved quotes.
type QuoteReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*storage.Quote, error)
	ListByUser(ctx context.Context, userID string) ([]*storage.Quote, error)
}

// QuoteHandler serves saved quotes.
type QuoteHandler struct {
	logger *observability.Logger
	quotes QuoteReader
}

// NewQuoteHandler creates a new quote handler.
func NewQuoteHandler(logger *observability.Logger, quotes QuoteReader) *QuoteHandler {
	return &QuoteHandler{logger: logger, quotes: quotes}
}

// QuoteListDTO wraps a user's quotes.
type QuoteListDTO struct {
	UserID string           `json:"userId"`
	Quotes []*storage.Quote `json:"quotes"`
}

// Get handles GET /quotes/{quoteId}.
func (h *QuoteHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "quoteId"))
	if err != nil {
		writeError(h.logger, w, http.StatusBadRequest, "invalid quoteId", err.Error())
		return
	}

	q, err := h.quotes.GetByID(r.Context(), id)
	if err != nil {
		writeDomainError(h.logger, w, err, "quote lookup failed")
		return
	}
	writeJSON(h.logger, w, http.StatusOK, q)
}

// ListByUser handles GET /users/{userId}/quotes.
func (h *QuoteHandler) ListByUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")

	quotes, err := h.quotes.ListByUser(r.Context(), userID)
	if err != nil {
		writeDomainError(h.logger, w, err, "quote list failed")
		return
	}
	if quotes == nil {
		quotes = []*storage.Quote{}
	}
	writeJSON(h.logger, w, http.StatusOK, QuoteListDTO{UserID: userID, Quotes: quotes})
}
