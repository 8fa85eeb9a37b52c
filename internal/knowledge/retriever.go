package knowledge

import (
	"context"

	"github.com/cloo-solutions/helpdesk/internal/domain"
	"go.uber.org/zap"
)

// RetrieveOptions configures a one-shot RetrieveContext call.
type RetrieveOptions struct {
	Documents    []domain.KnowledgeDocument
	Tags         []string
	Locale       string
	TopK         int
	ChunkSize    int
	ChunkOverlap int
	Provider     EmbeddingProvider
	VectorSize   int
	// Store is reused when set; otherwise a transient store is built per call.
	Store  *VectorStore
	Logger *zap.Logger
}

// RetrieveContext indexes opts.Documents and returns the chunks most similar
// to query. Nothing is embedded when there are no documents.
func RetrieveContext(ctx context.Context, query string, opts RetrieveOptions) ([]domain.RetrievedChunk, error) {
	if len(opts.Documents) == 0 {
		return []domain.RetrievedChunk{}, nil
	}

	store := opts.Store
	if store == nil {
		store = NewVectorStore(ctx, Options{
			Provider:     opts.Provider,
			Persistence:  PersistenceMemory,
			VectorSize:   opts.VectorSize,
			ChunkSize:    opts.ChunkSize,
			ChunkOverlap: opts.ChunkOverlap,
			Logger:       opts.Logger,
		})
		defer store.Close()
	}

	if err := store.Upsert(ctx, opts.Documents); err != nil {
		return nil, err
	}

	locale := opts.Locale
	if locale == "" {
		locale = domain.DefaultLocale
	}
	topK := opts.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}

	return store.SimilaritySearch(ctx, query, topK, SearchFilter{Locale: locale, Tags: opts.Tags})
}

// RetrievalQuery narrows a Retrieve call. Zero values take the retriever's defaults.
type RetrievalQuery struct {
	Locale string
	Tags   []string
	TopK   int
}

// DocumentSource supplies the current corpus.
type DocumentSource interface {
	Documents(ctx context.Context) ([]domain.KnowledgeDocument, error)
}

// IndexedRetriever searches a store that is kept up to date elsewhere.
type IndexedRetriever struct {
	store  *VectorStore
	locale string
	topK   int
}

func NewIndexedRetriever(store *VectorStore, locale string, topK int) *IndexedRetriever {
	if locale == "" {
		locale = domain.DefaultLocale
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &IndexedRetriever{store: store, locale: locale, topK: topK}
}

func (r *IndexedRetriever) Retrieve(ctx context.Context, query string, q RetrievalQuery) ([]domain.RetrievedChunk, error) {
	locale := q.Locale
	if locale == "" {
		locale = r.locale
	}
	topK := q.TopK
	if topK <= 0 {
		topK = r.topK
	}
	return r.store.SimilaritySearch(ctx, query, topK, SearchFilter{Locale: locale, Tags: q.Tags})
}

// PerRequestRetriever re-indexes the whole corpus into a transient store on
// every call.
type PerRequestRetriever struct {
	source DocumentSource
	opts   RetrieveOptions
}

// NewPerRequestRetriever uses opts as the template for every call; its
// Documents and Store fields are ignored.
func NewPerRequestRetriever(source DocumentSource, opts RetrieveOptions) *PerRequestRetriever {
	opts.Documents = nil
	opts.Store = nil
	return &PerRequestRetriever{source: source, opts: opts}
}

func (r *PerRequestRetriever) Retrieve(ctx context.Context, query string, q RetrievalQuery) ([]domain.RetrievedChunk, error) {
	docs, err := r.source.Documents(ctx)
	if err != nil {
		return nil, err
	}

	opts := r.opts
	opts.Documents = docs
	if q.Locale != "" {
		opts.Locale = q.Locale
	}
	if q.TopK > 0 {
		opts.TopK = q.TopK
	}
	if len(q.Tags) > 0 {
		opts.Tags = q.Tags
	}
	return RetrieveContext(ctx, query, opts)
}
