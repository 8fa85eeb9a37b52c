package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloo-solutions/helpdesk/internal/content"
	"github.com/cloo-solutions/helpdesk/internal/domain"
	"github.com/cloo-solutions/helpdesk/internal/knowledge"
	"github.com/cloo-solutions/helpdesk/internal/metrics"
	"github.com/cloo-solutions/helpdesk/internal/telemetry"
	"go.uber.org/zap"
)

// DefaultHistoryLimit caps how many prior turns are sent to the model.
const DefaultHistoryLimit = 20

// ChatProviderInterface opens a streaming completion.
type ChatProviderInterface interface {
	StreamChatCompletion(ctx context.Context, req domain.ChatCompletionRequest) (domain.TextStream, error)
}

// EntrySourceInterface lists knowledge entries.
type EntrySourceInterface interface {
	Entries(ctx context.Context, q content.Query) ([]domain.KnowledgeEntry, error)
}

// ContextRetrieverInterface returns the chunks most relevant to a query.
type ContextRetrieverInterface interface {
	Retrieve(ctx context.Context, query string, q knowledge.RetrievalQuery) ([]domain.RetrievedChunk, error)
}

// ConversationStore keeps per-conversation history.
type ConversationStore interface {
	Ensure(id string) string
	Append(id string, msg domain.ConversationMessage)
	Get(id string) []domain.ConversationMessage
}

// ChatConfig tunes a ChatService. Zero values take the defaults.
type ChatConfig struct {
	Brand        Brand
	HistoryLimit int
	Model        string
	Temperature  *float32
	Metrics      *metrics.Metrics
	Logger       *zap.Logger
}

// ChatService turns a user message into a streamed, persisted assistant reply.
type ChatService struct {
	provider      ChatProviderInterface
	entries       EntrySourceInterface
	retriever     ContextRetrieverInterface
	conversations ConversationStore
	cfg           ChatConfig
	metrics       *metrics.Metrics
	logger        *zap.Logger
}

// NewChatService wires the orchestrator. provider may be nil, in which case
// every chat fails with domain.ErrProviderNotConfigured.
func NewChatService(
	provider ChatProviderInterface,
	entries EntrySourceInterface,
	retriever ContextRetrieverInterface,
	conversations ConversationStore,
	cfg ChatConfig,
) *ChatService {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	cfg.Brand = cfg.Brand.withDefaults()

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ChatService{
		provider:      provider,
		entries:       entries,
		retriever:     retriever,
		conversations: conversations,
		cfg:           cfg,
		metrics:       cfg.Metrics,
		logger:        logger,
	}
}

// ChatInput is one user turn.
type ChatInput struct {
	Message        string
	ConversationID string
	Locale         string
}

// ChatSession is a started reply.
type ChatSession struct {
	ConversationID string
	Stream         *ReplyStream
}

// ChatFailure reports an error that happened after the conversation was
// resolved, so callers can still surface the id.
type ChatFailure struct {
	ConversationID string
	Err            error
}

func (e *ChatFailure) Error() string {
	return fmt.Sprintf("chat failed for conversation %s: %v", e.ConversationID, e.Err)
}

func (e *ChatFailure) Unwrap() error {
	return e.Err
}

// Configured reports whether a chat provider is available.
func (s *ChatService) Configured() bool {
	return s.provider != nil
}

// StartChat validates the message, records it, builds the prompt and opens the
// provider stream. Validation and configuration errors are returned before any
// conversation is created; later errors are wrapped in *ChatFailure.
func (s *ChatService) StartChat(ctx context.Context, input ChatInput) (*ChatSession, error) {
	message := strings.TrimSpace(input.Message)
	if message == "" {
		s.metrics.ChatRequest(metrics.OutcomeInvalid)
		return nil, domain.ErrEmptyMessage
	}

	if s.provider == nil {
		s.metrics.ChatRequest(metrics.OutcomeUnavailable)
		s.logger.Error("chat.missing_provider_credentials")
		return nil, domain.ErrProviderNotConfigured
	}

	conversationID := s.conversations.Ensure(input.ConversationID)

	ctx, span := telemetry.StartSpan(ctx, "ChatService.StartChat", telemetry.SpanAttributes{
		ConversationID: conversationID,
		Locale:         input.Locale,
		Operation:      "chat",
	})
	defer span.End()

	upstream, err := s.openStream(ctx, conversationID, message, input.Locale)
	if err != nil {
		span.SetError(err)
		s.metrics.ChatRequest(metrics.OutcomeFailed)
		s.logger.Error("chat.unexpected_error",
			zap.String("conversation_id", conversationID),
			zap.Error(err))
		return nil, &ChatFailure{ConversationID: conversationID, Err: err}
	}

	s.metrics.ChatRequest(metrics.OutcomeStreamed)
	telemetry.AddBreadcrumb(ctx, "chat", "reply stream opened")

	return &ChatSession{
		ConversationID: conversationID,
		Stream:         NewReplyStream(conversationID, upstream, s.conversations, s.metrics, s.logger),
	}, nil
}

func (s *ChatService) openStream(ctx context.Context, conversationID, message, locale string) (domain.TextStream, error) {
	entries, err := s.entries.Entries(ctx, content.Query{})
	if err != nil {
		return nil, fmt.Errorf("failed to load knowledge entries: %w", err)
	}

	var brandEntries, policyEntries []domain.KnowledgeEntry
	titles := make(map[string]string, len(entries))
	for _, e := range entries {
		switch e.Metadata.Category {
		case domain.KnowledgeCategoryBrand:
			brandEntries = append(brandEntries, e)
		case domain.KnowledgeCategoryPolicies:
			policyEntries = append(policyEntries, e)
		}
		titles[e.Key()] = e.Metadata.Title
	}

	started := time.Now()
	chunks, err := s.retriever.Retrieve(ctx, message, knowledge.RetrievalQuery{Locale: locale})
	s.metrics.ObserveRetrieval(time.Since(started))
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve context: %w", err)
	}

	systemPrompt := BuildSystemPrompt(s.cfg.Brand, brandEntries, policyEntries)
	contextMessage := BuildContextMessage(chunks, titles)

	s.conversations.Append(conversationID, domain.NewConversationMessage(domain.ConversationRoleUser, message))
	history := recentHistory(s.conversations.Get(conversationID), s.cfg.HistoryLimit)

	s.logger.Debug("chat.prompt_built",
		zap.String("conversation_id", conversationID),
		zap.Int("context_chunks", len(chunks)),
		zap.Int("history_messages", len(history)))

	stream, err := s.provider.StreamChatCompletion(ctx, domain.ChatCompletionRequest{
		Model:       s.cfg.Model,
		Temperature: s.cfg.Temperature,
		Messages:    BuildMessages(systemPrompt, contextMessage, history),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start completion: %w", err)
	}
	return stream, nil
}
