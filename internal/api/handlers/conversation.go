package handlers

import (
	"net/http"
	"time"

	"github.com/cloo-solutions/helpdesk/internal/api"
	"github.com/cloo-solutions/helpdesk/internal/domain"
	"github.com/go-chi/chi/v5"
)

type ConversationReader interface {
	Exists(id string) bool
	Get(id string) []domain.ConversationMessage
}

type ConversationHandler struct {
	store ConversationReader
}

func NewConversationHandler(store ConversationReader) *ConversationHandler {
	return &ConversationHandler{store: store}
}

type ConversationMessageResponse struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"createdAt"`
}

type ConversationResponse struct {
	ID       string                        `json:"id"`
	Messages []ConversationMessageResponse `json:"messages"`
}

func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" || !h.store.Exists(id) {
		api.HandleError(w, domain.ErrConversationNotFound)
		return
	}

	history := h.store.Get(id)
	resp := ConversationResponse{ID: id, Messages: make([]ConversationMessageResponse, len(history))}
	for i, m := range history {
		resp.Messages[i] = ConversationMessageResponse{
			Role:      string(m.Role),
			Content:   m.Content,
			CreatedAt: m.CreatedAt.UTC().Format(time.RFC3339Nano),
		}
	}
	api.Success(w, http.StatusOK, resp)
}
