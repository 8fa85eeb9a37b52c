package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/cloo-solutions/helpdesk/internal/domain"
	"go.uber.org/zap"
)

// ErrObjectNotFound is returned when a requested object does not exist
var ErrObjectNotFound = errors.New("object not found")

const markdownContentType = "text/markdown; charset=utf-8"

// ObjectStore is the subset of S3Client used for content sync
type ObjectStore interface {
	ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error)
	GetObject(ctx context.Context, key string) ([]byte, error)
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
}

// SyncResult summarizes a content transfer
type SyncResult struct {
	Written   []string
	Unchanged int
	Ignored   int
	Removed   []string
}

// SyncOptions controls a pull from object storage
type SyncOptions struct {
	Prefix string
	// Prune deletes local markdown files that are not present remotely.
	Prune  bool
	Logger *zap.Logger
}

// objectPath maps a key to "<category>/<file>.md" relative to prefix, or ""
// when the key is not a knowledge file.
func objectPath(prefix, key string) string {
	rel := strings.TrimPrefix(key, normalizePrefix(prefix))
	parts := strings.Split(rel, "/")
	if len(parts) != 2 || parts[1] == "" || path.Ext(parts[1]) != ".md" {
		return ""
	}
	if !domain.IsValidKnowledgeCategory(domain.KnowledgeCategory(parts[0])) {
		return ""
	}
	return rel
}

func normalizePrefix(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}

// PullContent downloads every "<prefix>/<category>/*.md" object into root.
// Files are replaced atomically and left untouched when their bytes match.
func PullContent(ctx context.Context, store ObjectStore, root string, opts SyncOptions) (SyncResult, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var result SyncResult
	objects, err := store.ListObjects(ctx, normalizePrefix(opts.Prefix))
	if err != nil {
		return result, err
	}

	remote := make(map[string]struct{}, len(objects))
	for _, obj := range objects {
		rel := objectPath(opts.Prefix, obj.Key)
		if rel == "" {
			result.Ignored++
			continue
		}
		remote[rel] = struct{}{}

		data, err := store.GetObject(ctx, obj.Key)
		if err != nil {
			return result, err
		}

		dest := filepath.Join(root, filepath.FromSlash(rel))
		if existing, err := os.ReadFile(dest); err == nil && string(existing) == string(data) {
			result.Unchanged++
			continue
		}
		if err := writeFileAtomic(dest, data); err != nil {
			return result, err
		}
		result.Written = append(result.Written, rel)
		logger.Debug("content.sync.written", zap.String("path", rel))
	}

	if opts.Prune {
		removed, err := pruneLocal(root, remote)
		if err != nil {
			return result, err
		}
		result.Removed = removed
	}

	logger.Info("content.sync.completed",
		zap.Int("written", len(result.Written)),
		zap.Int("unchanged", result.Unchanged),
		zap.Int("ignored", result.Ignored),
		zap.Int("removed", len(result.Removed)))
	return result, nil
}

// PushContent uploads every "<category>/*.md" file under root to prefix.
func PushContent(ctx context.Context, store ObjectStore, root, prefix string) ([]string, error) {
	var pushed []string
	for _, category := range domain.KnowledgeCategories {
		files, err := filepath.Glob(filepath.Join(root, string(category), "*.md"))
		if err != nil {
			return pushed, err
		}
		for _, file := range files {
			data, err := os.ReadFile(file)
			if err != nil {
				return pushed, fmt.Errorf("failed to read %s: %w", file, err)
			}
			key := normalizePrefix(prefix) + string(category) + "/" + filepath.Base(file)
			if err := store.PutObject(ctx, key, data, markdownContentType); err != nil {
				return pushed, err
			}
			pushed = append(pushed, key)
		}
	}
	return pushed, nil
}

func pruneLocal(root string, keep map[string]struct{}) ([]string, error) {
	var removed []string
	for _, category := range domain.KnowledgeCategories {
		files, err := filepath.Glob(filepath.Join(root, string(category), "*.md"))
		if err != nil {
			return removed, err
		}
		for _, file := range files {
			rel := string(category) + "/" + filepath.Base(file)
			if _, ok := keep[rel]; ok {
				continue
			}
			if err := os.Remove(file); err != nil {
				return removed, fmt.Errorf("failed to remove %s: %w", file, err)
			}
			removed = append(removed, rel)
		}
	}
	return removed, nil
}

func writeFileAtomic(dest string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", dest, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".sync-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", dest, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("failed to set mode on %s: %w", dest, err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return fmt.Errorf("failed to replace %s: %w", dest, err)
	}
	return nil
}
