package domain

import (
	"fmt"
	"time"
)

// KnowledgeCategory is the directory a knowledge entry lives in
type KnowledgeCategory string

const (
	KnowledgeCategoryBrand    KnowledgeCategory = "brand"
	KnowledgeCategoryPolicies KnowledgeCategory = "policies"
	KnowledgeCategoryProducts KnowledgeCategory = "products"
	KnowledgeCategoryShipping KnowledgeCategory = "shipping"
)

// KnowledgeCategories lists the categories read from the content root, in load order
var KnowledgeCategories = []KnowledgeCategory{
	KnowledgeCategoryBrand,
	KnowledgeCategoryPolicies,
	KnowledgeCategoryProducts,
	KnowledgeCategoryShipping,
}

// IsValidKnowledgeCategory checks if a category is one of the known categories
func IsValidKnowledgeCategory(c KnowledgeCategory) bool {
	for _, known := range KnowledgeCategories {
		if c == known {
			return true
		}
	}
	return false
}

// KnowledgeStatus represents the publication status of a knowledge entry
type KnowledgeStatus string

const (
	KnowledgeStatusDraft     KnowledgeStatus = "draft"
	KnowledgeStatusPublished KnowledgeStatus = "published"
)

// KnowledgeMetadata is the validated front matter of a knowledge entry
type KnowledgeMetadata struct {
	Slug      string
	Category  KnowledgeCategory
	Title     string
	Summary   string
	Locale    string
	Locales   []string
	Status    KnowledgeStatus
	Updated   *time.Time
	Audiences []string
	Keywords  []string
}

// KnowledgeEntry is a file-backed knowledge document
type KnowledgeEntry struct {
	Metadata   KnowledgeMetadata
	Content    string
	Raw        string
	Excerpt    string
	SourcePath string
}

// Key returns the category-qualified identity of the entry
func (e KnowledgeEntry) Key() string {
	return fmt.Sprintf("%s/%s", e.Metadata.Category, e.Metadata.Slug)
}

// Document converts the entry into an indexable document. The entry key becomes
// the document id; the category followed by the keywords become its tags.
func (e KnowledgeEntry) Document() KnowledgeDocument {
	tags := make([]string, 0, len(e.Metadata.Keywords)+1)
	tags = append(tags, string(e.Metadata.Category))
	tags = append(tags, e.Metadata.Keywords...)
	return KnowledgeDocument{
		ID:      e.Key(),
		Content: e.Content,
		Title:   e.Metadata.Title,
		Locale:  e.Metadata.Locale,
		Tags:    tags,
	}
}

// HasLocale reports whether the entry is available in locale
func (e KnowledgeEntry) HasLocale(locale string) bool {
	if e.Metadata.Locale == locale {
		return true
	}
	for _, l := range e.Metadata.Locales {
		if l == locale {
			return true
		}
	}
	return false
}
