package knowledge

import (
	"context"
	"errors"
	"testing"

	"github.com/cloo-solutions/helpdesk/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type staticSource struct {
	docs  []domain.KnowledgeDocument
	err   error
	calls int
}

func (s *staticSource) Documents(context.Context) ([]domain.KnowledgeDocument, error) {
	s.calls++
	return s.docs, s.err
}

func TestRetrieveContext_NoDocuments(t *testing.T) {
	provider := &mockProvider{}

	results, err := RetrieveContext(context.Background(), "anything", RetrieveOptions{Provider: provider})
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
	provider.AssertNotCalled(t, "Embed", mock.Anything, mock.Anything)
}

func TestRetrieveContext_RanksAndFilters(t *testing.T) {
	ctx := context.Background()
	docs := []domain.KnowledgeDocument{shippingDoc, returnsDoc, billingDoc}

	results, err := RetrieveContext(ctx, "What is the return policy?", RetrieveOptions{Documents: docs, TopK: 2})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "returns", results[0].DocumentID)

	results, err = RetrieveContext(ctx, "What is the return policy?", RetrieveOptions{Documents: docs, Tags: []string{"billing"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"billing"}, documentIDs(results))
}

func TestRetrieveContext_DefaultLocale(t *testing.T) {
	docs := []domain.KnowledgeDocument{
		{ID: "de", Content: "rückgabe policy", Locale: "de-DE"},
		{ID: "us", Content: "return policy", Locale: domain.DefaultLocale},
	}

	results, err := RetrieveContext(context.Background(), "policy", RetrieveOptions{Documents: docs})
	require.NoError(t, err)
	assert.Equal(t, []string{"us"}, documentIDs(results))

	results, err = RetrieveContext(context.Background(), "policy", RetrieveOptions{Documents: docs, Locale: "de-DE"})
	require.NoError(t, err)
	assert.Equal(t, []string{"de"}, documentIDs(results))
}

func TestRetrieveContext_ReusesStore(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(t)

	_, err := RetrieveContext(ctx, "refund", RetrieveOptions{Documents: []domain.KnowledgeDocument{returnsDoc}, Store: store})
	require.NoError(t, err)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestIndexedRetriever(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(t)
	require.NoError(t, store.Upsert(ctx, []domain.KnowledgeDocument{returnsDoc, shippingDoc, billingDoc}))

	retriever := NewIndexedRetriever(store, "", 0)

	results, err := retriever.Retrieve(ctx, "What is the return policy?", RetrievalQuery{})
	require.NoError(t, err)
	assert.Len(t, results, 3)
	assert.Equal(t, "returns", results[0].DocumentID)

	results, err = retriever.Retrieve(ctx, "What is the return policy?", RetrievalQuery{TopK: 1, Tags: []string{"shipping"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"shipping"}, documentIDs(results))

	results, err = retriever.Retrieve(ctx, "policy", RetrievalQuery{Locale: "fr-FR"})
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = retriever.Retrieve(ctx, "What is the return policy?", RetrievalQuery{Locale: "en-us"})
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestPerRequestRetriever(t *testing.T) {
	ctx := context.Background()
	source := &staticSource{docs: []domain.KnowledgeDocument{shippingDoc, returnsDoc}}
	retriever := NewPerRequestRetriever(source, RetrieveOptions{TopK: 1})

	results, err := retriever.Retrieve(ctx, "What is the return policy?", RetrievalQuery{})
	require.NoError(t, err)
	assert.Equal(t, []string{"returns"}, documentIDs(results))

	results, err = retriever.Retrieve(ctx, "What is the return policy?", RetrievalQuery{TopK: 2})
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, 2, source.calls)
}

func TestPerRequestRetriever_MatchesIndexedRanking(t *testing.T) {
	ctx := context.Background()
	docs := []domain.KnowledgeDocument{shippingDoc, returnsDoc, billingDoc}

	store := newMemoryStore(t)
	require.NoError(t, store.Upsert(ctx, docs))
	indexed, err := NewIndexedRetriever(store, "", 3).Retrieve(ctx, "update my card for a refund", RetrievalQuery{})
	require.NoError(t, err)

	perRequest, err := NewPerRequestRetriever(&staticSource{docs: docs}, RetrieveOptions{TopK: 3}).
		Retrieve(ctx, "update my card for a refund", RetrievalQuery{})
	require.NoError(t, err)

	assert.Equal(t, documentIDs(indexed), documentIDs(perRequest))
	for i := range indexed {
		assert.InDelta(t, indexed[i].Similarity, perRequest[i].Similarity, 1e-9)
	}
}

func TestPerRequestRetriever_SourceError(t *testing.T) {
	retriever := NewPerRequestRetriever(&staticSource{err: errors.New("content root missing")}, RetrieveOptions{})

	_, err := retriever.Retrieve(context.Background(), "hello", RetrievalQuery{})
	assert.EqualError(t, err, "content root missing")
}
