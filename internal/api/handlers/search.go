package handlers

import (
	"net/http"

	"github.com/cloo-solutions/helpdesk/internal/api"
	"github.com/cloo-solutions/helpdesk/internal/domain"
	"github.com/cloo-solutions/helpdesk/internal/service"
)

const maxSearchTopK = 50

type SearchRequest struct {
	Query  string   `json:"query"`
	TopK   int      `json:"topK"`
	Locale string   `json:"locale"`
	Tags   []string `json:"tags"`
}

type SearchResultResponse struct {
	ChunkID    string   `json:"chunkId"`
	DocumentID string   `json:"documentId"`
	Title      string   `json:"title,omitempty"`
	Content    string   `json:"content"`
	Locale     string   `json:"locale,omitempty"`
	Tags       []string `json:"tags"`
	Position   int      `json:"position"`
	Similarity float64  `json:"similarity"`
}

func chunkToResponse(c domain.RetrievedChunk) SearchResultResponse {
	return SearchResultResponse{
		ChunkID:    c.ChunkID,
		DocumentID: c.DocumentID,
		Title:      c.Title,
		Content:    c.Content,
		Locale:     c.Locale,
		Tags:       nonNil(c.Tags),
		Position:   c.Position,
		Similarity: c.Similarity,
	}
}

// Search ranks indexed chunks against a free-text query.
func (h *KnowledgeHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.DecodeError(w, err, "invalid request body")
		return
	}

	if req.TopK < 0 || req.TopK > maxSearchTopK {
		api.Error(w, http.StatusBadRequest, "topK must be between 1 and 50")
		return
	}

	chunks, err := h.svc.Search(r.Context(), service.SearchInput{
		Query:  req.Query,
		Locale: req.Locale,
		Tags:   req.Tags,
		TopK:   req.TopK,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := make([]SearchResultResponse, len(chunks))
	for i, c := range chunks {
		resp[i] = chunkToResponse(c)
	}
	api.Success(w, http.StatusOK, resp)
}
