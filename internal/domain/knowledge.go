package domain

import (
	"strings"

	"golang.org/x/text/language"
)

// DefaultLocale is assumed for content and queries that declare no locale.
const DefaultLocale = "en-US"

// CanonicalLocale formats a BCP 47 tag canonically, so "en-us" and "EN-us"
// both become "en-US". Unparseable values are returned trimmed but otherwise
// untouched.
func CanonicalLocale(locale string) string {
	locale = strings.TrimSpace(locale)
	if locale == "" {
		return ""
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return locale
	}
	return tag.String()
}

// KnowledgeDocument is a unit of retrievable content handed to the vector store.
// An empty ID is replaced with a random one at index time.
type KnowledgeDocument struct {
	ID      string
	Content string
	Title   string
	Locale  string
	Tags    []string
}
