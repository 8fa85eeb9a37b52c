package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/cloo-solutions/helpdesk/internal/api"
	"github.com/cloo-solutions/helpdesk/internal/content"
	"github.com/cloo-solutions/helpdesk/internal/domain"
	"github.com/cloo-solutions/helpdesk/internal/service"
	"github.com/go-chi/chi/v5"
)

type KnowledgeService interface {
	List(ctx context.Context, q content.Query) ([]domain.KnowledgeEntry, error)
	Get(ctx context.Context, slug string, q content.Query) (*domain.KnowledgeEntry, error)
	Search(ctx context.Context, input service.SearchInput) ([]domain.RetrievedChunk, error)
}

type KnowledgeHandler struct {
	svc KnowledgeService
}

func NewKnowledgeHandler(svc KnowledgeService) *KnowledgeHandler {
	return &KnowledgeHandler{svc: svc}
}

type KnowledgeEntryResponse struct {
	Key       string   `json:"key"`
	Slug      string   `json:"slug"`
	Category  string   `json:"category"`
	Title     string   `json:"title"`
	Summary   string   `json:"summary"`
	Locale    string   `json:"locale"`
	Locales   []string `json:"locales"`
	Status    string   `json:"status"`
	Updated   string   `json:"updated,omitempty"`
	Audiences []string `json:"audiences"`
	Keywords  []string `json:"keywords"`
	Excerpt   string   `json:"excerpt,omitempty"`
	Content   string   `json:"content,omitempty"`
}

func entryToResponse(e domain.KnowledgeEntry, withContent bool) KnowledgeEntryResponse {
	resp := KnowledgeEntryResponse{
		Key:       e.Key(),
		Slug:      e.Metadata.Slug,
		Category:  string(e.Metadata.Category),
		Title:     e.Metadata.Title,
		Summary:   e.Metadata.Summary,
		Locale:    e.Metadata.Locale,
		Locales:   nonNil(e.Metadata.Locales),
		Status:    string(e.Metadata.Status),
		Audiences: nonNil(e.Metadata.Audiences),
		Keywords:  nonNil(e.Metadata.Keywords),
		Excerpt:   e.Excerpt,
	}
	if e.Metadata.Updated != nil {
		resp.Updated = e.Metadata.Updated.UTC().Format(time.RFC3339)
	}
	if withContent {
		resp.Content = e.Content
	}
	return resp
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// parseQuery reads the listing filters from the URL.
func parseQuery(r *http.Request) (content.Query, string) {
	values := r.URL.Query()
	q := content.Query{
		Category: domain.KnowledgeCategory(values.Get("category")),
		Locale:   values.Get("locale"),
		Audience: values.Get("audience"),
		Keyword:  values.Get("keyword"),
		Status:   domain.KnowledgeStatus(values.Get("status")),
	}

	if q.Category != "" && !domain.IsValidKnowledgeCategory(q.Category) {
		return q, "invalid category"
	}
	switch q.Status {
	case "", domain.KnowledgeStatusDraft, domain.KnowledgeStatusPublished:
	default:
		return q, "invalid status"
	}
	if raw := values.Get("reload"); raw != "" {
		reload, err := strconv.ParseBool(raw)
		if err != nil {
			return q, "invalid reload flag"
		}
		q.ForceReload = reload
	}
	return q, ""
}

func (h *KnowledgeHandler) List(w http.ResponseWriter, r *http.Request) {
	q, problem := parseQuery(r)
	if problem != "" {
		api.Error(w, http.StatusBadRequest, problem)
		return
	}

	entries, err := h.svc.List(r.Context(), q)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := make([]KnowledgeEntryResponse, len(entries))
	for i, e := range entries {
		resp[i] = entryToResponse(e, false)
	}
	api.Success(w, http.StatusOK, resp)
}

func (h *KnowledgeHandler) Get(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	if slug == "" {
		api.Error(w, http.StatusBadRequest, "slug is required")
		return
	}

	q, problem := parseQuery(r)
	if problem != "" {
		api.Error(w, http.StatusBadRequest, problem)
		return
	}

	entry, err := h.svc.Get(r.Context(), slug, q)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, entryToResponse(*entry, true))
}
