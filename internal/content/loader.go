// Package content loads the file-backed knowledge base: markdown documents
// with YAML front matter, stored in one directory per category.
package content

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cloo-solutions/helpdesk/internal/domain"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Query filters entries. All set fields must match. An empty Status selects
// published entries.
type Query struct {
	Category    domain.KnowledgeCategory
	Locale      string
	Audience    string
	Keyword     string
	Status      domain.KnowledgeStatus
	ForceReload bool
}

type cachedFile struct {
	modTime time.Time
	entry   domain.KnowledgeEntry
}

// Loader reads and caches knowledge entries under a content root. Parsed files
// are reused until their modification time changes; the aggregated list is
// reused until a query asks for a reload.
type Loader struct {
	root          string
	defaultLocale string
	logger        *zap.Logger

	mu      sync.Mutex
	files   map[string]cachedFile
	entries []domain.KnowledgeEntry
}

type LoaderOption func(*Loader)

// WithDefaultLocale sets the locale given to entries that declare none.
func WithDefaultLocale(locale string) LoaderOption {
	return func(l *Loader) {
		if locale = domain.CanonicalLocale(locale); locale != "" {
			l.defaultLocale = locale
		}
	}
}

func WithLogger(logger *zap.Logger) LoaderOption {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func NewLoader(root string, opts ...LoaderOption) *Loader {
	l := &Loader{
		root:          root,
		defaultLocale: domain.DefaultLocale,
		logger:        zap.NewNop(),
		files:         make(map[string]cachedFile),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Root returns the content root directory.
func (l *Loader) Root() string {
	return l.root
}

// Entries returns the entries matching q, ordered by category then slug.
func (l *Loader) Entries(ctx context.Context, q Query) ([]domain.KnowledgeEntry, error) {
	all, err := l.load(ctx, q.ForceReload)
	if err != nil {
		return nil, err
	}

	status := q.Status
	if status == "" {
		status = domain.KnowledgeStatusPublished
	}
	locale := domain.CanonicalLocale(q.Locale)
	keyword := strings.ToLower(strings.TrimSpace(q.Keyword))

	out := make([]domain.KnowledgeEntry, 0, len(all))
	for _, entry := range all {
		md := entry.Metadata
		if q.Category != "" && md.Category != q.Category {
			continue
		}
		if md.Status != status {
			continue
		}
		if locale != "" && !entry.HasLocale(locale) {
			continue
		}
		if q.Audience != "" && !slices.Contains(md.Audiences, q.Audience) {
			continue
		}
		if keyword != "" && !slices.Contains(md.Keywords, keyword) {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

// EntryBySlug returns the first entry with slug that also matches q.
func (l *Loader) EntryBySlug(ctx context.Context, slug string, q Query) (*domain.KnowledgeEntry, error) {
	entries, err := l.Entries(ctx, q)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if entries[i].Metadata.Slug == slug {
			return &entries[i], nil
		}
	}
	return nil, domain.ErrKnowledgeEntryNotFound
}

// Documents returns every published entry as an indexable document.
func (l *Loader) Documents(ctx context.Context) ([]domain.KnowledgeDocument, error) {
	entries, err := l.Entries(ctx, Query{})
	if err != nil {
		return nil, err
	}
	docs := make([]domain.KnowledgeDocument, len(entries))
	for i, entry := range entries {
		docs[i] = entry.Document()
	}
	return docs, nil
}

// ClearCache drops both the per-file and the aggregated caches.
func (l *Loader) ClearCache() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.files = make(map[string]cachedFile)
	l.entries = nil
}

func (l *Loader) load(ctx context.Context, forceReload bool) ([]domain.KnowledgeEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !forceReload && l.entries != nil {
		return l.entries, nil
	}

	seen := make(map[string]struct{})
	all := make([]domain.KnowledgeEntry, 0, len(l.files))
	for _, category := range domain.KnowledgeCategories {
		entries, err := l.readCategory(ctx, category, seen)
		if err != nil {
			return nil, err
		}
		all = append(all, entries...)
	}

	for path := range l.files {
		if _, ok := seen[path]; !ok {
			delete(l.files, path)
		}
	}

	l.entries = all
	l.logger.Debug("knowledge.loaded", zap.Int("entries", len(all)), zap.Bool("force_reload", forceReload))
	return all, nil
}

func (l *Loader) readCategory(ctx context.Context, category domain.KnowledgeCategory, seen map[string]struct{}) ([]domain.KnowledgeEntry, error) {
	dir := filepath.Join(l.root, string(category))
	files, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read knowledge category %s: %w", category, err)
	}

	entries := make([]domain.KnowledgeEntry, 0, len(files))
	for _, f := range files {
		if f.IsDir() || filepath.Ext(f.Name()) != ".md" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		path := filepath.Join(dir, f.Name())
		entry, err := l.readFile(path, category)
		if err != nil {
			return nil, err
		}
		seen[path] = struct{}{}
		entries = append(entries, entry)
	}

	slices.SortStableFunc(entries, func(a, b domain.KnowledgeEntry) int {
		return strings.Compare(a.Metadata.Slug, b.Metadata.Slug)
	})
	return entries, nil
}

func (l *Loader) readFile(path string, category domain.KnowledgeCategory) (domain.KnowledgeEntry, error) {
	info, err := os.Stat(path)
	if err != nil {
		return domain.KnowledgeEntry{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if cached, ok := l.files[path]; ok && cached.modTime.Equal(info.ModTime()) {
		return cached.entry, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.KnowledgeEntry{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	entry, err := parseEntry(raw, path, category, l.defaultLocale)
	if err != nil {
		return domain.KnowledgeEntry{}, err
	}

	l.files[path] = cachedFile{modTime: info.ModTime(), entry: entry}
	l.logger.Debug("knowledge.parsed", zap.String("path", path), zap.String("slug", entry.Metadata.Slug))
	return entry, nil
}

func parseEntry(raw []byte, path string, category domain.KnowledgeCategory, defaultLocale string) (domain.KnowledgeEntry, error) {
	block, body, err := splitFrontMatter(raw)
	if err != nil {
		return domain.KnowledgeEntry{}, fmt.Errorf("%s: %w", path, err)
	}

	var fm frontMatter
	if len(block) > 0 {
		if err := yaml.Unmarshal(block, &fm); err != nil {
			return domain.KnowledgeEntry{}, fmt.Errorf("%w: %s: %v", domain.ErrInvalidFrontMatter, path, err)
		}
	}

	metadata, err := parseMetadata(fm, path, category, defaultLocale)
	if err != nil {
		return domain.KnowledgeEntry{}, err
	}

	content := strings.TrimSpace(body)
	return domain.KnowledgeEntry{
		Metadata:   metadata,
		Content:    content,
		Raw:        string(raw),
		Excerpt:    excerpt(content),
		SourcePath: path,
	}, nil
}
