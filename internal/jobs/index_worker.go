package jobs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/cloo-solutions/helpdesk/internal/domain"
	"github.com/cloo-solutions/helpdesk/internal/metrics"
	"github.com/cloo-solutions/helpdesk/internal/telemetry"
	"go.uber.org/zap"
)

const (
	// MaxRetries is how many consecutive runs may fail on the same document
	// content before it is skipped until the content changes.
	MaxRetries = 3
)

// DocumentSource supplies the current corpus.
type DocumentSource interface {
	Documents(ctx context.Context) ([]domain.KnowledgeDocument, error)
}

// DocumentIndex is the store the corpus is indexed into.
type DocumentIndex interface {
	Upsert(ctx context.Context, docs []domain.KnowledgeDocument) error
	Delete(ctx context.Context, documentID string) error
	DocumentIDs(ctx context.Context) ([]string, error)
}

// IndexResult summarizes one re-index run.
type IndexResult struct {
	Indexed   int
	Unchanged int
	Removed   int
	Failed    int
	Skipped   int
}

type indexFailure struct {
	fingerprint string
	attempts    int
}

// KnowledgeIndexer keeps a DocumentIndex in step with a DocumentSource.
// Unchanged documents are not re-embedded and documents that disappeared
// from the source are removed from the index.
type KnowledgeIndexer struct {
	source  DocumentSource
	index   DocumentIndex
	metrics *metrics.Metrics
	logger  *zap.Logger

	mu           sync.Mutex
	fingerprints map[string]string
	failures     map[string]indexFailure
}

// NewKnowledgeIndexer creates a new KnowledgeIndexer instance
func NewKnowledgeIndexer(source DocumentSource, index DocumentIndex, m *metrics.Metrics, logger *zap.Logger) *KnowledgeIndexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KnowledgeIndexer{
		source:       source,
		index:        index,
		metrics:      m,
		logger:       logger,
		fingerprints: make(map[string]string),
		failures:     make(map[string]indexFailure),
	}
}

// Run lets the indexer be scheduled by a Worker.
func (x *KnowledgeIndexer) Run(ctx context.Context) error {
	_, err := x.Reindex(ctx)
	return err
}

// Reindex runs one pass. Runs are serialized.
func (x *KnowledgeIndexer) Reindex(ctx context.Context) (IndexResult, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	ctx, span := telemetry.StartTransaction(ctx, "KnowledgeIndexer.Reindex", telemetry.OpIndex)
	defer span.End()

	var result IndexResult

	docs, err := x.source.Documents(ctx)
	if err != nil {
		span.SetError(err)
		x.metrics.IndexRun(metrics.IndexFailure, 0)
		return result, fmt.Errorf("failed to load documents: %w", err)
	}

	current := make(map[string]struct{}, len(docs))
	for _, doc := range docs {
		current[doc.ID] = struct{}{}
		x.indexDocument(ctx, doc, &result)
	}

	if err := x.removeVanished(ctx, current, &result); err != nil {
		span.SetError(err)
		x.metrics.IndexRun(metrics.IndexFailure, len(docs))
		return result, err
	}

	x.logger.Info("index.completed",
		zap.Int("documents", len(docs)),
		zap.Int("indexed", result.Indexed),
		zap.Int("unchanged", result.Unchanged),
		zap.Int("removed", result.Removed),
		zap.Int("failed", result.Failed),
		zap.Int("skipped", result.Skipped))

	if result.Failed > 0 {
		err := fmt.Errorf("%d documents failed to index", result.Failed)
		span.SetError(err)
		x.metrics.IndexRun(metrics.IndexFailure, len(docs))
		return result, err
	}

	x.metrics.IndexRun(metrics.IndexSuccess, len(docs))
	return result, nil
}

func (x *KnowledgeIndexer) indexDocument(ctx context.Context, doc domain.KnowledgeDocument, result *IndexResult) {
	fp := fingerprint(doc)
	if x.fingerprints[doc.ID] == fp {
		result.Unchanged++
		return
	}

	if f, ok := x.failures[doc.ID]; ok && f.fingerprint == fp && f.attempts >= MaxRetries {
		result.Skipped++
		return
	}

	if err := x.index.Upsert(ctx, []domain.KnowledgeDocument{doc}); err != nil {
		f := x.failures[doc.ID]
		if f.fingerprint != fp {
			f = indexFailure{fingerprint: fp}
		}
		f.attempts++
		x.failures[doc.ID] = f
		result.Failed++

		if f.attempts >= MaxRetries {
			x.logger.Error("index.document_abandoned",
				zap.String("document_id", doc.ID),
				zap.Int("attempts", f.attempts),
				zap.Error(err))
		} else {
			x.logger.Warn("index.document_failed",
				zap.String("document_id", doc.ID),
				zap.Int("attempts", f.attempts),
				zap.Error(err))
		}
		return
	}

	delete(x.failures, doc.ID)
	x.fingerprints[doc.ID] = fp
	result.Indexed++
}

func (x *KnowledgeIndexer) removeVanished(ctx context.Context, current map[string]struct{}, result *IndexResult) error {
	indexed, err := x.index.DocumentIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list indexed documents: %w", err)
	}

	for _, id := range indexed {
		if _, ok := current[id]; ok {
			continue
		}
		if err := x.index.Delete(ctx, id); err != nil {
			return fmt.Errorf("failed to remove document %s: %w", id, err)
		}
		delete(x.fingerprints, id)
		delete(x.failures, id)
		result.Removed++
		x.logger.Debug("index.document_removed", zap.String("document_id", id))
	}
	return nil
}

func fingerprint(doc domain.KnowledgeDocument) string {
	h := sha256.New()
	for _, part := range []string{doc.ID, doc.Title, doc.Locale, strings.Join(doc.Tags, ","), doc.Content} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
