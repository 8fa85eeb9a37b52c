package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloo-solutions/helpdesk/internal/domain"
	"github.com/cloo-solutions/helpdesk/internal/knowledge"
	"github.com/cloo-solutions/helpdesk/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

// MockTask is a mock implementation of Task
type MockTask struct {
	mock.Mock
}

func (m *MockTask) Run(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockDocumentSource is a mock implementation of DocumentSource
type MockDocumentSource struct {
	mock.Mock
}

func (m *MockDocumentSource) Documents(ctx context.Context) ([]domain.KnowledgeDocument, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.KnowledgeDocument), args.Error(1)
}

// MockDocumentIndex is a mock implementation of DocumentIndex
type MockDocumentIndex struct {
	mock.Mock
}

func (m *MockDocumentIndex) Upsert(ctx context.Context, docs []domain.KnowledgeDocument) error {
	args := m.Called(ctx, docs)
	return args.Error(0)
}

func (m *MockDocumentIndex) Delete(ctx context.Context, documentID string) error {
	args := m.Called(ctx, documentID)
	return args.Error(0)
}

func (m *MockDocumentIndex) DocumentIDs(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func doc(id, body string) domain.KnowledgeDocument {
	return domain.KnowledgeDocument{ID: id, Title: id, Content: body, Locale: domain.DefaultLocale, Tags: []string{"policies"}}
}

func TestWorker_StartStop(t *testing.T) {
	var runs atomic.Int32
	task := new(MockTask)
	task.On("Run", mock.Anything).Run(func(mock.Arguments) { runs.Add(1) }).Return(nil)

	worker := NewWorker("reindex", task, 50*time.Millisecond, zaptest.NewLogger(t))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Start(context.Background())
	}()

	require.Eventually(t, func() bool { return runs.Load() > 0 }, 2*time.Second, 10*time.Millisecond)

	worker.Stop()
	worker.Stop()
	wg.Wait()
	task.AssertCalled(t, "Run", mock.Anything)
}

func TestWorker_ContextCancellation(t *testing.T) {
	var runs atomic.Int32
	worker := NewWorker("reindex", TaskFunc(func(ctx context.Context) error {
		runs.Add(1)
		return errors.New("transient")
	}), 50*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return runs.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancellation")
	}
	worker.Stop()
}

func TestWorker_StopBeforeStart(t *testing.T) {
	worker := NewWorker("reindex", new(MockTask), time.Hour, nil)
	worker.Stop()

	done := make(chan struct{})
	go func() {
		worker.Start(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start ran after Stop")
	}
}

func TestWorker_LogsConsecutiveFailures(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	results := []error{errors.New("a"), errors.New("b"), nil}
	worker := NewWorker("reindex", TaskFunc(func(ctx context.Context) error { return nil }), time.Hour, zap.New(core))

	failures := 0
	for _, err := range results {
		worker.task = TaskFunc(func(ctx context.Context) error { return err })
		failures = worker.run(context.Background(), failures)
	}

	assert.Equal(t, 0, failures)
	failed := logs.FilterMessage("worker.run_failed").All()
	require.Len(t, failed, 2)
	assert.EqualValues(t, 2, failed[1].ContextMap()["consecutive_failures"])
	recovered := logs.FilterMessage("worker.recovered").All()
	require.Len(t, recovered, 1)
	assert.EqualValues(t, 2, recovered[0].ContextMap()["after_failures"])
	assert.Equal(t, "reindex", recovered[0].ContextMap()["worker"])
}

func TestKnowledgeIndexer_IndexesOnlyChangedDocuments(t *testing.T) {
	source := new(MockDocumentSource)
	index := new(MockDocumentIndex)
	m := metrics.New(prometheus.NewRegistry())
	indexer := NewKnowledgeIndexer(source, index, m, zaptest.NewLogger(t))
	ctx := context.Background()

	a, b := doc("policies/a", "alpha"), doc("policies/b", "beta")
	source.On("Documents", mock.Anything).Return([]domain.KnowledgeDocument{a, b}, nil).Once()
	index.On("Upsert", mock.Anything, []domain.KnowledgeDocument{a}).Return(nil).Once()
	index.On("Upsert", mock.Anything, []domain.KnowledgeDocument{b}).Return(nil).Once()
	index.On("DocumentIDs", mock.Anything).Return([]string{"policies/a", "policies/b"}, nil)

	result, err := indexer.Reindex(ctx)
	require.NoError(t, err)
	assert.Equal(t, IndexResult{Indexed: 2}, result)

	bChanged := doc("policies/b", "beta v2")
	source.On("Documents", mock.Anything).Return([]domain.KnowledgeDocument{a, bChanged}, nil).Once()
	index.On("Upsert", mock.Anything, []domain.KnowledgeDocument{bChanged}).Return(nil).Once()

	result, err = indexer.Reindex(ctx)
	require.NoError(t, err)
	assert.Equal(t, IndexResult{Indexed: 1, Unchanged: 1}, result)

	index.AssertExpectations(t)
	assert.Equal(t, 2.0, promtest.ToFloat64(m.IndexRuns.WithLabelValues(metrics.IndexSuccess)))
	assert.Equal(t, 2.0, promtest.ToFloat64(m.IndexedDocuments))
}

func TestKnowledgeIndexer_RemovesVanishedDocuments(t *testing.T) {
	source := new(MockDocumentSource)
	index := new(MockDocumentIndex)
	indexer := NewKnowledgeIndexer(source, index, nil, nil)

	a := doc("policies/a", "alpha")
	source.On("Documents", mock.Anything).Return([]domain.KnowledgeDocument{a}, nil)
	index.On("Upsert", mock.Anything, []domain.KnowledgeDocument{a}).Return(nil)
	index.On("DocumentIDs", mock.Anything).Return([]string{"policies/a", "policies/old"}, nil)
	index.On("Delete", mock.Anything, "policies/old").Return(nil)

	result, err := indexer.Reindex(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Removed)
	index.AssertExpectations(t)
}

func TestKnowledgeIndexer_RetriesThenSkips(t *testing.T) {
	source := new(MockDocumentSource)
	index := new(MockDocumentIndex)
	m := metrics.New(prometheus.NewRegistry())
	indexer := NewKnowledgeIndexer(source, index, m, nil)
	ctx := context.Background()

	bad := doc("policies/bad", "broken")
	source.On("Documents", mock.Anything).Return([]domain.KnowledgeDocument{bad}, nil)
	index.On("Upsert", mock.Anything, []domain.KnowledgeDocument{bad}).Return(errors.New("embedding failed"))
	index.On("DocumentIDs", mock.Anything).Return([]string{}, nil)

	for i := 0; i < MaxRetries; i++ {
		result, err := indexer.Reindex(ctx)
		require.Error(t, err)
		assert.Equal(t, 1, result.Failed)
	}

	result, err := indexer.Reindex(ctx)
	require.NoError(t, err)
	assert.Equal(t, IndexResult{Skipped: 1}, result)
	index.AssertNumberOfCalls(t, "Upsert", MaxRetries)
	assert.Equal(t, float64(MaxRetries), promtest.ToFloat64(m.IndexRuns.WithLabelValues(metrics.IndexFailure)))
}

func TestKnowledgeIndexer_ChangedContentResetsRetries(t *testing.T) {
	source := new(MockDocumentSource)
	index := new(MockDocumentIndex)
	indexer := NewKnowledgeIndexer(source, index, nil, nil)
	ctx := context.Background()

	bad := doc("policies/bad", "broken")
	source.On("Documents", mock.Anything).Return([]domain.KnowledgeDocument{bad}, nil).Times(MaxRetries)
	index.On("Upsert", mock.Anything, []domain.KnowledgeDocument{bad}).Return(errors.New("embedding failed"))
	index.On("DocumentIDs", mock.Anything).Return([]string{}, nil)

	for i := 0; i < MaxRetries; i++ {
		_, _ = indexer.Reindex(ctx)
	}

	fixed := doc("policies/bad", "fixed")
	source.On("Documents", mock.Anything).Return([]domain.KnowledgeDocument{fixed}, nil)
	index.On("Upsert", mock.Anything, []domain.KnowledgeDocument{fixed}).Return(nil)

	result, err := indexer.Reindex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Indexed)
}

func TestKnowledgeIndexer_SourceError(t *testing.T) {
	source := new(MockDocumentSource)
	index := new(MockDocumentIndex)
	indexer := NewKnowledgeIndexer(source, index, nil, nil)

	source.On("Documents", mock.Anything).Return(nil, domain.ErrInvalidFrontMatter)

	err := indexer.Run(context.Background())
	assert.ErrorIs(t, err, domain.ErrInvalidFrontMatter)
	index.AssertNotCalled(t, "DocumentIDs", mock.Anything)
}

func TestKnowledgeIndexer_ListIndexedError(t *testing.T) {
	source := new(MockDocumentSource)
	index := new(MockDocumentIndex)
	indexer := NewKnowledgeIndexer(source, index, nil, nil)

	source.On("Documents", mock.Anything).Return([]domain.KnowledgeDocument{}, nil)
	index.On("DocumentIDs", mock.Anything).Return(nil, errors.New("db down"))

	_, err := indexer.Reindex(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

func TestKnowledgeIndexer_WithVectorStore(t *testing.T) {
	ctx := context.Background()
	store := knowledge.NewVectorStore(ctx, knowledge.Options{
		Provider:    knowledge.NewHashEmbedder(64),
		Persistence: knowledge.PersistenceMemory,
	})
	defer store.Close()

	source := new(MockDocumentSource)
	indexer := NewKnowledgeIndexer(source, store, nil, nil)

	source.On("Documents", mock.Anything).Return([]domain.KnowledgeDocument{
		doc("policies/returns", "Returns are accepted within 30 days"),
		doc("shipping/rates", "Standard shipping takes five days"),
	}, nil).Once()

	_, err := indexer.Reindex(ctx)
	require.NoError(t, err)

	ids, err := store.DocumentIDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"policies/returns", "shipping/rates"}, ids)

	source.On("Documents", mock.Anything).Return([]domain.KnowledgeDocument{
		doc("policies/returns", "Returns are accepted within 30 days"),
	}, nil).Once()

	result, err := indexer.Reindex(ctx)
	require.NoError(t, err)
	assert.Equal(t, IndexResult{Unchanged: 1, Removed: 1}, result)

	ids, err = store.DocumentIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"policies/returns"}, ids)
}

func TestFingerprint(t *testing.T) {
	a := doc("x", "body")
	b := a
	b.Tags = []string{"shipping"}

	assert.Equal(t, fingerprint(a), fingerprint(doc("x", "body")))
	assert.NotEqual(t, fingerprint(a), fingerprint(b))
}
