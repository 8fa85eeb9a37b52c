package server

import (
	"net/http"

	"github.com/cloo-solutions/helpdesk/internal/api/handlers"
	"github.com/cloo-solutions/helpdesk/internal/api/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const maxBodyBytes int64 = 1 << 20

type RouterConfig struct {
	ChatHandler         *handlers.ChatHandler
	KnowledgeHandler    *handlers.KnowledgeHandler
	ConversationHandler *handlers.ConversationHandler
	HealthHandler       *handlers.HealthHandler
	// Gatherer backs GET /metrics; the route is omitted when nil.
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog(cfg.Logger))
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", cfg.HealthHandler.Health)

	if cfg.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Post("/chat", cfg.ChatHandler.Chat)

	r.Route("/knowledge", func(r chi.Router) {
		r.Get("/", cfg.KnowledgeHandler.List)
		r.Get("/{slug}", cfg.KnowledgeHandler.Get)
	})
	r.Post("/search", cfg.KnowledgeHandler.Search)

	r.Get("/conversations/{id}", cfg.ConversationHandler.Get)

	return r
}
