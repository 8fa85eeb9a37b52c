package service

import (
	"context"
	"strings"

	"github.com/cloo-solutions/helpdesk/internal/content"
	"github.com/cloo-solutions/helpdesk/internal/domain"
	"github.com/cloo-solutions/helpdesk/internal/knowledge"
	"github.com/cloo-solutions/helpdesk/internal/telemetry"
)

// EntryLookupInterface reads knowledge entries from the content root.
type EntryLookupInterface interface {
	EntrySourceInterface
	EntryBySlug(ctx context.Context, slug string, q content.Query) (*domain.KnowledgeEntry, error)
}

// KnowledgeService exposes the knowledge base for browsing and search.
type KnowledgeService struct {
	entries   EntryLookupInterface
	retriever ContextRetrieverInterface
}

// NewKnowledgeService creates a new KnowledgeService instance
func NewKnowledgeService(entries EntryLookupInterface, retriever ContextRetrieverInterface) *KnowledgeService {
	return &KnowledgeService{entries: entries, retriever: retriever}
}

// SearchInput represents a similarity search over the indexed knowledge
type SearchInput struct {
	Query  string
	Locale string
	Tags   []string
	TopK   int
}

// List returns the entries matching q.
func (s *KnowledgeService) List(ctx context.Context, q content.Query) ([]domain.KnowledgeEntry, error) {
	ctx, span := telemetry.StartSpan(ctx, "KnowledgeService.List", telemetry.SpanAttributes{
		Locale:    q.Locale,
		Operation: "list",
	})
	defer span.End()

	entries, err := s.entries.Entries(ctx, q)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	return entries, nil
}

// Get returns the entry with the given slug.
func (s *KnowledgeService) Get(ctx context.Context, slug string, q content.Query) (*domain.KnowledgeEntry, error) {
	ctx, span := telemetry.StartSpan(ctx, "KnowledgeService.Get", telemetry.SpanAttributes{
		DocumentID: slug,
		Operation:  "get",
	})
	defer span.End()

	entry, err := s.entries.EntryBySlug(ctx, slug, q)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	return entry, nil
}

// Search returns the chunks most similar to the query.
func (s *KnowledgeService) Search(ctx context.Context, input SearchInput) ([]domain.RetrievedChunk, error) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, domain.ErrEmptyQuery
	}

	ctx, span := telemetry.StartSpan(ctx, "KnowledgeService.Search", telemetry.SpanAttributes{
		Locale:    input.Locale,
		Operation: "search",
	})
	defer span.End()

	chunks, err := s.retriever.Retrieve(ctx, query, knowledge.RetrievalQuery{
		Locale: input.Locale,
		Tags:   input.Tags,
		TopK:   input.TopK,
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	return chunks, nil
}
