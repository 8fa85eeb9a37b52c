package service

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/cloo-solutions/helpdesk/internal/content"
	"github.com/cloo-solutions/helpdesk/internal/domain"
	"github.com/cloo-solutions/helpdesk/internal/knowledge"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

// MockEntrySource is a mock implementation of EntryLookupInterface
type MockEntrySource struct {
	mock.Mock
}

func (m *MockEntrySource) Entries(ctx context.Context, q content.Query) ([]domain.KnowledgeEntry, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.KnowledgeEntry), args.Error(1)
}

func (m *MockEntrySource) EntryBySlug(ctx context.Context, slug string, q content.Query) (*domain.KnowledgeEntry, error) {
	args := m.Called(ctx, slug, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.KnowledgeEntry), args.Error(1)
}

// MockRetriever is a mock implementation of ContextRetrieverInterface
type MockRetriever struct {
	mock.Mock
}

func (m *MockRetriever) Retrieve(ctx context.Context, query string, q knowledge.RetrievalQuery) ([]domain.RetrievedChunk, error) {
	args := m.Called(ctx, query, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.RetrievedChunk), args.Error(1)
}

// MockChatProvider is a mock implementation of ChatProviderInterface
type MockChatProvider struct {
	mock.Mock
}

func (m *MockChatProvider) StreamChatCompletion(ctx context.Context, req domain.ChatCompletionRequest) (domain.TextStream, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(domain.TextStream), args.Error(1)
}

var errStreamClosed = errors.New("stream closed")

// fakeTextStream replays fragments and then returns end (io.EOF when nil).
// After Close, Recv returns closedErr (errStreamClosed when nil).
type fakeTextStream struct {
	mu        sync.Mutex
	fragments []string
	end       error
	closeErr  error
	closedErr error
	closed    int
}

func newFakeTextStream(fragments ...string) *fakeTextStream {
	return &fakeTextStream{fragments: fragments}
}

func (s *fakeTextStream) Recv() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed > 0 {
		if s.closedErr != nil {
			return "", s.closedErr
		}
		return "", errStreamClosed
	}
	if len(s.fragments) == 0 {
		if s.end != nil {
			return "", s.end
		}
		return "", io.EOF
	}
	next := s.fragments[0]
	s.fragments = s.fragments[1:]
	return next, nil
}

func (s *fakeTextStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return s.closeErr
}

func (s *fakeTextStream) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func testEntry(category domain.KnowledgeCategory, slug, title, body string) domain.KnowledgeEntry {
	return domain.KnowledgeEntry{
		Metadata: domain.KnowledgeMetadata{
			Slug:     slug,
			Category: category,
			Title:    title,
			Summary:  title,
			Locale:   domain.DefaultLocale,
			Locales:  []string{domain.DefaultLocale},
			Status:   domain.KnowledgeStatusPublished,
		},
		Content: body,
	}
}

func testChunk(documentID, title, body string, similarity float64) domain.RetrievedChunk {
	return domain.RetrievedChunk{
		StoredChunk: domain.StoredChunk{
			KnowledgeChunk: domain.KnowledgeChunk{
				ChunkID:    domain.ChunkID(documentID, 0),
				DocumentID: documentID,
				Content:    body,
				Title:      title,
				Locale:     domain.DefaultLocale,
			},
		},
		Similarity: similarity,
	}
}

func testLogger() *zap.Logger {
	return zap.NewNop()
}
