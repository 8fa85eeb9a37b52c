package handlers

import (
	"context"
	"net/http"

	"github.com/cloo-solutions/helpdesk/internal/api"
	"github.com/cloo-solutions/helpdesk/internal/knowledge"
	"go.uber.org/zap"
)

// IndexStatus reports on the shared vector index.
type IndexStatus interface {
	Mode() knowledge.Persistence
	Count(ctx context.Context) (int, error)
}

type HealthHandler struct {
	index              IndexStatus
	providerConfigured bool
	logger             *zap.Logger
}

func NewHealthHandler(index IndexStatus, providerConfigured bool, logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{index: index, providerConfigured: providerConfigured, logger: logger}
}

type HealthResponse struct {
	Status             string `json:"status"`
	ProviderConfigured bool   `json:"providerConfigured"`
	VectorStore        string `json:"vectorStore,omitempty"`
	Chunks             int    `json:"chunks"`
}

// Health always answers 200; a failing index is reported as degraded.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", ProviderConfigured: h.providerConfigured}
	if h.index != nil {
		resp.VectorStore = string(h.index.Mode())
		n, err := h.index.Count(r.Context())
		if err != nil {
			h.logger.Warn("health.index_unavailable", zap.Error(err))
			resp.Status = "degraded"
		}
		resp.Chunks = n
	}
	api.Success(w, http.StatusOK, resp)
}
