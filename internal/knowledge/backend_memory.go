package knowledge

import (
	"context"
	"slices"
	"sync"

	"github.com/cloo-solutions/helpdesk/internal/domain"
)

// memoryBackend keeps chunks in insertion order for the life of the process.
type memoryBackend struct {
	mu     sync.RWMutex
	chunks []domain.StoredChunk
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{}
}

func (m *memoryBackend) replace(_ context.Context, documentID string, chunks []domain.StoredChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.chunks = slices.DeleteFunc(m.chunks, func(c domain.StoredChunk) bool {
		return c.DocumentID == documentID
	})
	for _, c := range chunks {
		m.chunks = append(m.chunks, cloneChunk(c))
	}
	return nil
}

func (m *memoryBackend) delete(_ context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.chunks = slices.DeleteFunc(m.chunks, func(c domain.StoredChunk) bool {
		return c.DocumentID == documentID
	})
	return nil
}

func (m *memoryBackend) count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks), nil
}

func (m *memoryBackend) documentIDs(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0)
	seen := make(map[string]struct{})
	for _, c := range m.chunks {
		if _, ok := seen[c.DocumentID]; ok {
			continue
		}
		seen[c.DocumentID] = struct{}{}
		ids = append(ids, c.DocumentID)
	}
	return ids, nil
}

func (m *memoryBackend) search(_ context.Context, query []float32, topK int, filter SearchFilter) ([]domain.RetrievedChunk, error) {
	m.mu.RLock()
	ranked, err := rankChunks(query, m.chunks, topK, filter)
	m.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	for i := range ranked {
		ranked[i].StoredChunk = cloneChunk(ranked[i].StoredChunk)
	}
	return ranked, nil
}

func (m *memoryBackend) close() error {
	return nil
}

func cloneChunk(c domain.StoredChunk) domain.StoredChunk {
	c.Tags = slices.Clone(c.Tags)
	c.Vector = slices.Clone(c.Vector)
	return c
}
