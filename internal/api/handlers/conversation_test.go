package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cloo-solutions/helpdesk/internal/conversation"
	"github.com/cloo-solutions/helpdesk/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationHandler_Get(t *testing.T) {
	store := conversation.NewStore()
	id := store.Ensure("")
	store.Append(id, domain.NewConversationMessage(domain.ConversationRoleUser, "hi"))
	store.Append(id, domain.NewConversationMessage(domain.ConversationRoleAssistant, "hello"))

	r := chi.NewRouter()
	r.Get("/conversations/{id}", NewConversationHandler(store).Get)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/conversations/"+id, nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data ConversationResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, id, resp.Data.ID)
	require.Len(t, resp.Data.Messages, 2)
	assert.Equal(t, "user", resp.Data.Messages[0].Role)
	assert.Equal(t, "hello", resp.Data.Messages[1].Content)
	assert.NotEmpty(t, resp.Data.Messages[1].CreatedAt)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/conversations/unknown", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestConversationHandler_EmptyConversation(t *testing.T) {
	store := conversation.NewStore()
	id := store.Ensure("fresh")

	r := chi.NewRouter()
	r.Get("/conversations/{id}", NewConversationHandler(store).Get)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/conversations/"+id, nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":{"id":"fresh","messages":[]}}`, w.Body.String())
}
