package knowledge

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/cloo-solutions/helpdesk/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultTopK = 5

// Persistence selects where a VectorStore keeps its chunks.
type Persistence string

const (
	PersistenceMemory   Persistence = "memory"
	PersistenceSQLite   Persistence = "sqlite"
	PersistencePostgres Persistence = "postgres"
)

// Options configures a VectorStore. An unset ChunkSize selects both chunking
// defaults. An empty Persistence is inferred from Path, then DatabaseURL.
type Options struct {
	Provider     EmbeddingProvider
	Persistence  Persistence
	Path         string
	DatabaseURL  string
	VectorSize   int
	ChunkSize    int
	ChunkOverlap int
	Logger       *zap.Logger
}

// SearchFilter narrows a similarity search. A locale only excludes chunks that
// declare a different locale, compared in canonical BCP 47 form; every tag
// must be present on a chunk.
type SearchFilter struct {
	Locale string
	Tags   []string
}

type backend interface {
	replace(ctx context.Context, documentID string, chunks []domain.StoredChunk) error
	delete(ctx context.Context, documentID string) error
	count(ctx context.Context) (int, error)
	documentIDs(ctx context.Context) ([]string, error)
	search(ctx context.Context, query []float32, topK int, filter SearchFilter) ([]domain.RetrievedChunk, error)
	close() error
}

// VectorStore owns the lifecycle of stored chunks: it chunks and embeds
// documents on upsert and ranks them by similarity on search.
type VectorStore struct {
	provider     EmbeddingProvider
	backend      backend
	mode         Persistence
	vectorSize   int
	chunkSize    int
	chunkOverlap int
	logger       *zap.Logger
}

// NewVectorStore builds a store. It never fails: when the durable backend
// cannot be opened the store logs the cause and keeps chunks in memory.
func NewVectorStore(ctx context.Context, opts Options) *VectorStore {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	vectorSize := opts.VectorSize
	if vectorSize <= 0 {
		if d, ok := opts.Provider.(Dimensioned); ok && d.Dimensions() > 0 {
			vectorSize = d.Dimensions()
		} else {
			vectorSize = DefaultVectorSize
		}
	}

	provider := opts.Provider
	if provider == nil {
		provider = NewHashEmbedder(vectorSize)
	}
	if d, ok := provider.(Dimensioned); ok && d.Dimensions() != vectorSize {
		logger.Warn("vectorstore.dimension_mismatch",
			zap.Int("provider_dimensions", d.Dimensions()),
			zap.Int("vector_size", vectorSize))
	}

	chunkSize, chunkOverlap := opts.ChunkSize, max(opts.ChunkOverlap, 0)
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
		if chunkOverlap == 0 {
			chunkOverlap = DefaultChunkOverlap
		}
	}

	s := &VectorStore{
		provider:     provider,
		vectorSize:   vectorSize,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		logger:       logger,
	}

	mode := ResolvePersistence(opts.Persistence, opts.Path, opts.DatabaseURL)
	b, err := openBackend(ctx, mode, opts, logger)
	if err != nil {
		logger.Warn("vectorstore.durable_unavailable",
			zap.String("persistence", string(mode)),
			zap.Error(err))
		mode = PersistenceMemory
		b = newMemoryBackend()
	}
	s.backend = b
	s.mode = mode

	return s
}

// ResolvePersistence picks the effective mode for the given settings.
func ResolvePersistence(requested Persistence, path, databaseURL string) Persistence {
	if requested != "" {
		return requested
	}
	if path != "" {
		return PersistenceSQLite
	}
	if databaseURL != "" {
		return PersistencePostgres
	}
	return PersistenceMemory
}

func openBackend(ctx context.Context, mode Persistence, opts Options, logger *zap.Logger) (backend, error) {
	switch mode {
	case PersistenceMemory:
		return newMemoryBackend(), nil
	case PersistenceSQLite:
		if opts.Path == "" {
			return nil, fmt.Errorf("sqlite persistence requires a path")
		}
		return openSQLiteBackend(opts.Path, logger)
	case PersistencePostgres:
		if opts.DatabaseURL == "" {
			return nil, fmt.Errorf("postgres persistence requires a database url")
		}
		return openPostgresBackend(ctx, opts.DatabaseURL, logger)
	default:
		return nil, fmt.Errorf("unknown persistence mode %q", mode)
	}
}

// Mode reports the persistence mode in effect after any fallback.
func (s *VectorStore) Mode() Persistence {
	return s.mode
}

// VectorSize reports the width every stored vector has.
func (s *VectorStore) VectorSize() int {
	return s.vectorSize
}

// Upsert replaces the chunks of every document with freshly embedded ones.
// Documents without an id get a random one.
func (s *VectorStore) Upsert(ctx context.Context, docs []domain.KnowledgeDocument) error {
	for _, doc := range docs {
		if err := s.upsertOne(ctx, doc); err != nil {
			return err
		}
	}
	return nil
}

func (s *VectorStore) upsertOne(ctx context.Context, doc domain.KnowledgeDocument) error {
	documentID := doc.ID
	if documentID == "" {
		documentID = uuid.NewString()
	}

	texts, err := ChunkText(doc.Content, s.chunkSize, s.chunkOverlap)
	if err != nil {
		return err
	}

	var vectors [][]float32
	if len(texts) > 0 {
		vectors, err = s.provider.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("failed to embed document %s: %w", documentID, err)
		}
		if len(vectors) != len(texts) {
			return fmt.Errorf("%w: document %s got %d for %d chunks", domain.ErrEmbeddingCount, documentID, len(vectors), len(texts))
		}
	}

	tags := NormalizeTags(doc.Tags)
	locale := domain.CanonicalLocale(doc.Locale)
	stored := make([]domain.StoredChunk, len(texts))
	for i, text := range texts {
		if len(vectors[i]) != s.vectorSize {
			return fmt.Errorf("%w: document %s chunk %d has %d dimensions, store has %d",
				domain.ErrVectorSizeMismatch, documentID, i, len(vectors[i]), s.vectorSize)
		}
		stored[i] = domain.StoredChunk{
			KnowledgeChunk: domain.KnowledgeChunk{
				ChunkID:    domain.ChunkID(documentID, i),
				DocumentID: documentID,
				Content:    text,
				Title:      doc.Title,
				Locale:     locale,
				Tags:       slices.Clone(tags),
				Position:   i,
			},
			Vector: vectors[i],
		}
	}

	if err := s.backend.replace(ctx, documentID, stored); err != nil {
		return fmt.Errorf("failed to store chunks for document %s: %w", documentID, err)
	}

	s.logger.Debug("vectorstore.upserted",
		zap.String("document_id", documentID),
		zap.Int("chunks", len(stored)))
	return nil
}

// SimilaritySearch ranks stored chunks against query and returns at most topK
// of them in non-increasing similarity order.
func (s *VectorStore) SimilaritySearch(ctx context.Context, query string, topK int, filter SearchFilter) ([]domain.RetrievedChunk, error) {
	n, err := s.backend.count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}
	if n == 0 {
		return []domain.RetrievedChunk{}, nil
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	vectors, err := s.provider.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: got %d for 1 query", domain.ErrEmbeddingCount, len(vectors))
	}
	if len(vectors[0]) != s.vectorSize {
		return nil, fmt.Errorf("%w: query has %d dimensions, store has %d",
			domain.ErrVectorSizeMismatch, len(vectors[0]), s.vectorSize)
	}

	filter.Tags = NormalizeTags(filter.Tags)
	filter.Locale = domain.CanonicalLocale(filter.Locale)
	return s.backend.search(ctx, vectors[0], topK, filter)
}

// Delete removes every chunk owned by documentID.
func (s *VectorStore) Delete(ctx context.Context, documentID string) error {
	return s.backend.delete(ctx, documentID)
}

// Count reports the number of stored chunks.
func (s *VectorStore) Count(ctx context.Context) (int, error) {
	return s.backend.count(ctx)
}

// DocumentIDs lists the ids of every document with stored chunks.
func (s *VectorStore) DocumentIDs(ctx context.Context) ([]string, error) {
	return s.backend.documentIDs(ctx)
}

// Close releases the durable backend, if any.
func (s *VectorStore) Close() error {
	return s.backend.close()
}

// matches reports whether chunk passes filter. Filter tags must already be
// normalized.
func matches(chunk domain.KnowledgeChunk, filter SearchFilter) bool {
	if filter.Locale != "" && chunk.Locale != "" && chunk.Locale != filter.Locale {
		return false
	}
	return chunk.HasTags(filter.Tags)
}

// rankChunks scores the chunks passing filter against query, keeping the
// topK best. Ties keep their input order.
func rankChunks(query []float32, chunks []domain.StoredChunk, topK int, filter SearchFilter) ([]domain.RetrievedChunk, error) {
	ranked := make([]domain.RetrievedChunk, 0, len(chunks))
	for _, chunk := range chunks {
		if !matches(chunk.KnowledgeChunk, filter) {
			continue
		}
		score, err := DotProduct(query, chunk.Vector)
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %w", chunk.ChunkID, err)
		}
		ranked = append(ranked, domain.RetrievedChunk{StoredChunk: chunk, Similarity: score})
	}

	slices.SortStableFunc(ranked, func(a, b domain.RetrievedChunk) int {
		return cmp.Compare(b.Similarity, a.Similarity)
	})

	if len(ranked) > topK {
		ranked = ranked[:topK]
	}
	return ranked, nil
}
