package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cloo-solutions/helpdesk/internal/domain"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockOpenAIAPI is a mock for the OpenAI API
type MockOpenAIAPI struct {
	mock.Mock
}

func (m *MockOpenAIAPI) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

func vectorOf(dims int, seed float32) []float32 {
	v := make([]float32, dims)
	for i := range v {
		v[i] = seed + float32(i)*0.001
	}
	return v
}

func TestClient_Embed_Success(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := &Client{api: mockAPI, dimensions: 4}

	ctx := context.Background()
	texts := []string{"returns policy", "shipping rates"}
	expected := [][]float32{vectorOf(4, 0.1), vectorOf(4, 0.2)}

	mockAPI.On("CreateEmbeddings", ctx, texts).Return(expected, nil)

	embeddings, err := client.Embed(ctx, texts)

	assert.NoError(t, err)
	assert.Equal(t, expected, embeddings)
	mockAPI.AssertExpectations(t)
}

func TestClient_Embed_Batches(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := &Client{api: mockAPI, dimensions: 2}

	texts := make([]string, maxBatchSize+3)
	for i := range texts {
		texts[i] = fmt.Sprintf("text %d", i)
	}
	mockAPI.On("CreateEmbeddings", mock.Anything, texts[:maxBatchSize]).
		Return(make2D(maxBatchSize, 2), nil).Once()
	mockAPI.On("CreateEmbeddings", mock.Anything, texts[maxBatchSize:]).
		Return(make2D(3, 2), nil).Once()

	embeddings, err := client.Embed(context.Background(), texts)

	require.NoError(t, err)
	assert.Len(t, embeddings, len(texts))
	mockAPI.AssertExpectations(t)
}

func make2D(n, dims int) [][]float32 {
	out := make([][]float32, n)
	for i := range out {
		out[i] = vectorOf(dims, float32(i))
	}
	return out
}

func TestClient_Embed_EmptyText(t *testing.T) {
	client := NewClientWithConfig(Config{})

	embeddings, err := client.Embed(context.Background(), []string{"ok", ""})

	assert.Error(t, err)
	assert.Nil(t, embeddings)
	assert.Equal(t, ErrEmptyText, err)
}

func TestClient_Embed_APIError(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := &Client{api: mockAPI, dimensions: 4}

	ctx := context.Background()
	apiErr := errors.New("API rate limit exceeded")
	mockAPI.On("CreateEmbeddings", ctx, []string{"Test text"}).Return(nil, apiErr)

	embeddings, err := client.Embed(ctx, []string{"Test text"})

	assert.Error(t, err)
	assert.Nil(t, embeddings)
	assert.Contains(t, err.Error(), "failed to create embedding")
	assert.ErrorIs(t, err, apiErr)
	var domainErr *domain.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, domain.ErrCodeUnavailable, domainErr.Code)
	mockAPI.AssertExpectations(t)
}

func TestClient_Embed_WrongDimensions(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := &Client{api: mockAPI, dimensions: 8}

	mockAPI.On("CreateEmbeddings", mock.Anything, []string{"text"}).Return([][]float32{vectorOf(4, 0)}, nil)

	_, err := client.Embed(context.Background(), []string{"text"})

	assert.ErrorIs(t, err, ErrWrongDimensions)
}

func TestClient_Embed_WrongCount(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := &Client{api: mockAPI, dimensions: 4}

	mockAPI.On("CreateEmbeddings", mock.Anything, []string{"a", "b"}).Return([][]float32{vectorOf(4, 0)}, nil)

	_, err := client.Embed(context.Background(), []string{"a", "b"})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "expected 2 vectors, got 1")
}

func TestNewClientWithConfig(t *testing.T) {
	client := NewClientWithConfig(Config{APIKey: "test-api-key"})

	assert.NotNil(t, client)
	assert.NotNil(t, client.api)
	assert.Equal(t, DefaultEmbeddingDimensions, client.Dimensions())

	client = NewClientWithConfig(Config{APIKey: "test-api-key", EmbeddingDimensions: 1536})
	assert.Equal(t, 1536, client.Dimensions())
}

func TestOpenAIAdapter_OrdersByIndex(t *testing.T) {
	var got openai.EmbeddingRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(openai.EmbeddingResponse{
			Object: "list",
			Data: []openai.Embedding{
				{Object: "embedding", Index: 1, Embedding: []float32{0, 1}},
				{Object: "embedding", Index: 0, Embedding: []float32{1, 0}},
			},
		})
	}))
	defer srv.Close()

	client := NewClientWithConfig(Config{APIKey: "sk-test", BaseURL: srv.URL, EmbeddingDimensions: 2})

	embeddings, err := client.Embed(context.Background(), []string{"first", "second"})

	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, embeddings)
	assert.Equal(t, DefaultEmbeddingModel, got.Model)
	assert.Equal(t, 2, got.Dimensions)
}
