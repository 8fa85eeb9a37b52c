package admin

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/cloo-solutions/helpdesk/internal/api/handlers"
	"github.com/cloo-solutions/helpdesk/internal/config"
	"github.com/cloo-solutions/helpdesk/internal/content"
	"github.com/cloo-solutions/helpdesk/internal/conversation"
	"github.com/cloo-solutions/helpdesk/internal/jobs"
	"github.com/cloo-solutions/helpdesk/internal/knowledge"
	"github.com/cloo-solutions/helpdesk/internal/logging"
	"github.com/cloo-solutions/helpdesk/internal/metrics"
	"github.com/cloo-solutions/helpdesk/internal/openai"
	"github.com/cloo-solutions/helpdesk/internal/server"
	"github.com/cloo-solutions/helpdesk/internal/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goopenai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// App holds the wired daemon components.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Registry *prometheus.Registry
	Loader   *content.Loader
	Store    *knowledge.VectorStore
	Indexer  *jobs.KnowledgeIndexer
	Chat     *service.ChatService
	Handler  http.Handler
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(logging.Config{
		Debug:  cfg.Debug,
		Format: cfg.LogFormat,
		Fields: map[string]string{"service": "helpdeskd"},
	})
}

func newLoader(cfg *config.Config, logger *zap.Logger) *content.Loader {
	return content.NewLoader(cfg.ContentRoot,
		content.WithDefaultLocale(cfg.DefaultLocale),
		content.WithLogger(logger.Named("content")))
}

// newEmbeddingProvider returns nil for the hashed embedder, which the store
// builds itself from the vector size.
func newEmbeddingProvider(cfg *config.Config) knowledge.EmbeddingProvider {
	if !cfg.UseOpenAIEmbeddings() {
		return nil
	}
	return openai.NewClientWithConfig(openai.Config{
		APIKey:              cfg.OpenAIAPIKey,
		BaseURL:             cfg.OpenAIBaseURL,
		EmbeddingModel:      goopenai.EmbeddingModel(cfg.EmbeddingModel),
		EmbeddingDimensions: cfg.VectorSize,
	})
}

func storeOptions(cfg *config.Config, logger *zap.Logger) knowledge.Options {
	return knowledge.Options{
		Provider:     newEmbeddingProvider(cfg),
		Persistence:  knowledge.Persistence(strings.ToLower(cfg.VectorPersistence)),
		Path:         cfg.VectorDBPath,
		DatabaseURL:  cfg.DatabaseURL,
		VectorSize:   cfg.VectorSize,
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
		Logger:       logger.Named("vectorstore"),
	}
}

func newVectorStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) *knowledge.VectorStore {
	return knowledge.NewVectorStore(ctx, storeOptions(cfg, logger))
}

func newRetriever(cfg *config.Config, loader *content.Loader, store *knowledge.VectorStore, logger *zap.Logger) service.ContextRetrieverInterface {
	if cfg.ReindexPerRequest {
		opts := storeOptions(cfg, logger)
		return knowledge.NewPerRequestRetriever(loader, knowledge.RetrieveOptions{
			Locale:       cfg.DefaultLocale,
			TopK:         cfg.TopK,
			ChunkSize:    opts.ChunkSize,
			ChunkOverlap: opts.ChunkOverlap,
			Provider:     opts.Provider,
			VectorSize:   opts.VectorSize,
			Logger:       opts.Logger,
		})
	}
	return knowledge.NewIndexedRetriever(store, cfg.DefaultLocale, cfg.TopK)
}

// newChatProvider returns a nil interface when no API key is configured so
// the chat service reports itself unconfigured.
func newChatProvider(cfg *config.Config, logger *zap.Logger) service.ChatProviderInterface {
	if !cfg.HasOpenAI() {
		return nil
	}
	return openai.NewChatClient(openai.ChatConfig{
		APIKey:      cfg.OpenAIAPIKey,
		BaseURL:     cfg.OpenAIBaseURL,
		Model:       cfg.OpenAIModel,
		Temperature: cfg.OpenAITemperature,
		Logger:      logger.Named("openai"),
	})
}

// NewApp wires every daemon component from cfg. The caller owns Close.
func NewApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	loader := newLoader(cfg, logger)
	store := newVectorStore(ctx, cfg, logger)
	indexer := jobs.NewKnowledgeIndexer(loader, store, m, logger.Named("indexer"))
	retriever := newRetriever(cfg, loader, store, logger)
	conversations := conversation.NewStore()

	temperature := cfg.OpenAITemperature
	chat := service.NewChatService(
		newChatProvider(cfg, logger),
		loader,
		retriever,
		conversations,
		service.ChatConfig{
			Brand: service.Brand{
				Name:        cfg.BrandName,
				Description: cfg.BrandDescription,
			},
			HistoryLimit: cfg.HistoryLimit,
			Model:        cfg.OpenAIModel,
			Temperature:  &temperature,
			Metrics:      m,
			Logger:       logger.Named("chat"),
		},
	)
	knowledgeSvc := service.NewKnowledgeService(loader, retriever)

	router := server.NewRouter(server.RouterConfig{
		ChatHandler:         handlers.NewChatHandler(chat, logger.Named("http")),
		KnowledgeHandler:    handlers.NewKnowledgeHandler(knowledgeSvc),
		ConversationHandler: handlers.NewConversationHandler(conversations),
		HealthHandler:       handlers.NewHealthHandler(store, chat.Configured(), logger.Named("http")),
		Gatherer:            reg,
		Logger:              logger.Named("http"),
	})

	logger.Info("app.initialized",
		zap.String("content_root", cfg.ContentRoot),
		zap.String("vector_store", string(store.Mode())),
		zap.Bool("provider_configured", chat.Configured()),
		zap.Bool("reindex_per_request", cfg.ReindexPerRequest))

	return &App{
		Config:   cfg,
		Logger:   logger,
		Registry: reg,
		Loader:   loader,
		Store:    store,
		Indexer:  indexer,
		Chat:     chat,
		Handler:  router,
	}
}

// Close releases the vector store.
func (a *App) Close() error {
	if err := a.Store.Close(); err != nil {
		return fmt.Errorf("failed to close vector store: %w", err)
	}
	return nil
}
