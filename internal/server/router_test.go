package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/cloo-solutions/helpdesk/internal/api/handlers"
	"github.com/cloo-solutions/helpdesk/internal/content"
	"github.com/cloo-solutions/helpdesk/internal/conversation"
	"github.com/cloo-solutions/helpdesk/internal/domain"
	"github.com/cloo-solutions/helpdesk/internal/jobs"
	"github.com/cloo-solutions/helpdesk/internal/knowledge"
	"github.com/cloo-solutions/helpdesk/internal/metrics"
	"github.com/cloo-solutions/helpdesk/internal/openai"
	"github.com/cloo-solutions/helpdesk/internal/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const productsEntry = `---
slug: thermostat
category: products
title: Smart thermostat
summary: Our thermostat
keywords: [thermostat, products]
---
We sell a smart thermostat, solar chargers and efficient smart plugs.
`

const policyEntry = `---
slug: returns
category: policies
title: Return policy
summary: Thirty day returns
---
Products may be returned within 30 days.
`

type testStack struct {
	router        http.Handler
	conversations *conversation.Store

	mu      sync.Mutex
	prompts []string
}

func (s *testStack) prompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.prompts, "\n")
}

func writeContent(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for path, body := range map[string]string{
		"products/thermostat.md": productsEntry,
		"policies/returns.md":    policyEntry,
	} {
		full := filepath.Join(root, path)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(body), 0o644))
	}
	return root
}

func fakeProvider(t *testing.T, stack *testStack, fragments ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			stack.mu.Lock()
			for _, m := range req.Messages {
				stack.prompts = append(stack.prompts, m.Role+": "+m.Content)
			}
			stack.mu.Unlock()
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, f := range fragments {
			b, _ := json.Marshal(map[string]any{
				"choices": []map[string]any{{"delta": map[string]string{"content": f}}},
			})
			_, _ = io.WriteString(w, "data: "+string(b)+"\n\n")
		}
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func setupStack(t *testing.T, withProvider bool, fragments ...string) *testStack {
	t.Helper()
	ctx := context.Background()
	logger := zaptest.NewLogger(t)
	stack := &testStack{conversations: conversation.NewStore()}

	loader := content.NewLoader(writeContent(t), content.WithLogger(logger))
	store := knowledge.NewVectorStore(ctx, knowledge.Options{
		Provider:    knowledge.NewHashEmbedder(knowledge.DefaultVectorSize),
		Persistence: knowledge.PersistenceMemory,
		Logger:      logger,
	})
	t.Cleanup(func() { _ = store.Close() })

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	_, err := jobs.NewKnowledgeIndexer(loader, store, m, logger).Reindex(ctx)
	require.NoError(t, err)

	retriever := knowledge.NewIndexedRetriever(store, domain.DefaultLocale, knowledge.DefaultTopK)

	var provider service.ChatProviderInterface
	if withProvider {
		srv := fakeProvider(t, stack, fragments...)
		provider = openai.NewChatClient(openai.ChatConfig{APIKey: "test", BaseURL: srv.URL, Logger: logger})
	}

	chat := service.NewChatService(provider, loader, retriever, stack.conversations, service.ChatConfig{
		Metrics: m,
		Logger:  logger,
	})

	stack.router = NewRouter(RouterConfig{
		ChatHandler:         handlers.NewChatHandler(chat, logger),
		KnowledgeHandler:    handlers.NewKnowledgeHandler(service.NewKnowledgeService(loader, retriever)),
		ConversationHandler: handlers.NewConversationHandler(stack.conversations),
		HealthHandler:       handlers.NewHealthHandler(store, chat.Configured(), logger),
		Gatherer:            registry,
		Logger:              logger,
	})
	return stack
}

func (s *testStack) do(method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(method, path, reader))
	return w
}

func TestRouter_HealthEndpoint(t *testing.T) {
	stack := setupStack(t, true)

	w := stack.do(http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, "ok", data["status"])
	assert.Equal(t, "memory", data["vectorStore"])
	assert.Equal(t, true, data["providerConfigured"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRouter_ChatEndToEnd(t *testing.T) {
	stack := setupStack(t, true, "We sell ", "smart thermostats ", "and solar chargers. ")

	w := stack.do(http.MethodPost, "/chat", `{"message":"What products do you sell?"}`)

	require.Equal(t, http.StatusOK, w.Code)
	conversationID := w.Header().Get(handlers.ConversationIDHeader)
	require.NotEmpty(t, conversationID)
	assert.Equal(t, "We sell smart thermostats and solar chargers. ", w.Body.String())

	history := stack.conversations.Get(conversationID)
	require.Len(t, history, 2)
	assert.Equal(t, "What products do you sell?", history[0].Content)
	assert.Equal(t, domain.ConversationRoleAssistant, history[1].Role)
	assert.Equal(t, "We sell smart thermostats and solar chargers.", history[1].Content)

	prompt := stack.prompt()
	assert.Contains(t, prompt, "Key store policies:\n### Return policy")
	assert.Contains(t, prompt, "Relevant knowledge base excerpts:")
	assert.Contains(t, prompt, "Source: Smart thermostat")

	w = stack.do(http.MethodGet, "/conversations/"+conversationID, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "solar chargers.")
}

func TestRouter_ChatWithoutProvider(t *testing.T) {
	stack := setupStack(t, false)

	w := stack.do(http.MethodPost, "/chat", `{"message":"hello"}`)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"error":"AI provider is not configured."}`, w.Body.String())
	assert.Equal(t, 0, stack.conversations.Len())
}

func TestRouter_ChatRejectsLargeBodies(t *testing.T) {
	stack := setupStack(t, true)

	body := `{"message":"` + strings.Repeat("a", int(maxBodyBytes)) + `"}`
	w := stack.do(http.MethodPost, "/chat", body)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestRouter_KnowledgeRoutes(t *testing.T) {
	stack := setupStack(t, true)

	w := stack.do(http.MethodGet, "/knowledge?category=products", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"slug":"thermostat"`)
	assert.NotContains(t, w.Body.String(), `"slug":"returns"`)

	w = stack.do(http.MethodGet, "/knowledge/returns", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "returned within 30 days")

	w = stack.do(http.MethodGet, "/knowledge/unknown", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_Search(t *testing.T) {
	stack := setupStack(t, true)

	body, _ := json.Marshal(map[string]any{"query": "smart thermostat", "topK": 1})
	w := stack.do(http.MethodPost, "/search", string(bytes.TrimSpace(body)))

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data []handlers.SearchResultResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "products/thermostat", resp.Data[0].DocumentID)
}

func TestRouter_Metrics(t *testing.T) {
	stack := setupStack(t, true, "ok")
	stack.do(http.MethodPost, "/chat", `{"message":"hi"}`)

	w := stack.do(http.MethodGet, "/metrics", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `helpdesk_chat_requests_total{outcome="streamed"} 1`)
	assert.Contains(t, w.Body.String(), "helpdesk_knowledge_index_runs_total")
}

func TestRouter_UnknownConversation(t *testing.T) {
	stack := setupStack(t, true)

	w := stack.do(http.MethodGet, "/conversations/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
