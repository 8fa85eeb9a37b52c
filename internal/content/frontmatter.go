package content

import (
	"fmt"
	"strings"
	"time"

	"github.com/cloo-solutions/helpdesk/internal/domain"
	"gopkg.in/yaml.v3"
)

const frontMatterDelimiter = "---"

// stringList accepts either a single scalar or a sequence of scalars.
type stringList []string

func (s *stringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Value == "" {
			*s = nil
			return nil
		}
		*s = stringList{node.Value}
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := node.Decode(&items); err != nil {
			return err
		}
		*s = items
		return nil
	default:
		return fmt.Errorf("line %d: expected a string or a list of strings", node.Line)
	}
}

type frontMatter struct {
	Slug      string     `yaml:"slug"`
	Category  string     `yaml:"category"`
	Title     string     `yaml:"title"`
	Summary   string     `yaml:"summary"`
	Locale    string     `yaml:"locale"`
	Locales   stringList `yaml:"locales"`
	Status    string     `yaml:"status"`
	Updated   string     `yaml:"updated"`
	Audiences stringList `yaml:"audiences"`
	Keywords  stringList `yaml:"keywords"`
}

// splitFrontMatter separates a leading "---" delimited YAML block from the body.
// Files without one yield an empty block.
func splitFrontMatter(raw []byte) (block []byte, body string, err error) {
	text := strings.ReplaceAll(string(raw), "\r\n", "\n")
	text = strings.TrimPrefix(text, "\ufeff")

	if !strings.HasPrefix(text, frontMatterDelimiter+"\n") {
		return nil, text, nil
	}

	rest := text[len(frontMatterDelimiter)+1:]
	offset := 0
	for _, line := range strings.SplitAfter(rest, "\n") {
		if strings.TrimRight(line, " \t\n") == frontMatterDelimiter {
			return []byte(rest[:offset]), rest[offset+len(line):], nil
		}
		offset += len(line)
	}

	return nil, "", fmt.Errorf("%w: front matter is not closed", domain.ErrInvalidFrontMatter)
}

// parseMetadata validates front matter against the directory the file was
// found in and applies defaults.
func parseMetadata(fm frontMatter, sourcePath string, category domain.KnowledgeCategory, defaultLocale string) (domain.KnowledgeMetadata, error) {
	required := []struct {
		name, value string
	}{
		{"slug", fm.Slug},
		{"category", fm.Category},
		{"title", fm.Title},
		{"summary", fm.Summary},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return domain.KnowledgeMetadata{}, fmt.Errorf("%w: %s is missing a '%s' field", domain.ErrMissingFrontMatterField, sourcePath, r.name)
		}
	}

	declared := domain.KnowledgeCategory(strings.TrimSpace(fm.Category))
	if declared != category {
		return domain.KnowledgeMetadata{}, fmt.Errorf("%w: %s declares category '%s' but is stored in '%s'",
			domain.ErrCategoryMismatch, sourcePath, declared, category)
	}

	locale := domain.CanonicalLocale(fm.Locale)
	if locale == "" {
		locale = defaultLocale
	}
	locales := make([]string, 0, len(fm.Locales))
	for _, l := range fm.Locales {
		if l = domain.CanonicalLocale(l); l != "" {
			locales = append(locales, l)
		}
	}
	if len(locales) == 0 {
		locales = []string{locale}
	}

	status := domain.KnowledgeStatus(strings.ToLower(strings.TrimSpace(fm.Status)))
	switch status {
	case "":
		status = domain.KnowledgeStatusPublished
	case domain.KnowledgeStatusDraft, domain.KnowledgeStatusPublished:
	default:
		return domain.KnowledgeMetadata{}, fmt.Errorf("%w: %s has unknown status '%s'", domain.ErrInvalidFrontMatter, sourcePath, fm.Status)
	}

	var updated *time.Time
	if v := strings.TrimSpace(fm.Updated); v != "" {
		t, err := parseUpdated(v)
		if err != nil {
			return domain.KnowledgeMetadata{}, fmt.Errorf("%w: %s has an unparseable 'updated' value %q", domain.ErrInvalidFrontMatter, sourcePath, v)
		}
		updated = &t
	}

	return domain.KnowledgeMetadata{
		Slug:      strings.TrimSpace(fm.Slug),
		Category:  declared,
		Title:     strings.TrimSpace(fm.Title),
		Summary:   strings.TrimSpace(fm.Summary),
		Locale:    locale,
		Locales:   locales,
		Status:    status,
		Updated:   updated,
		Audiences: normalizeAudiences(fm.Audiences),
		Keywords:  NormalizeKeywords(fm.Keywords),
	}, nil
}

func parseUpdated(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	return time.Parse(time.DateOnly, v)
}

func normalizeAudiences(audiences []string) []string {
	out := make([]string, 0, len(audiences))
	seen := make(map[string]struct{}, len(audiences))
	for _, a := range audiences {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out
}

// NormalizeKeywords trims and lower-cases keywords, keeping the first
// occurrence of each.
func NormalizeKeywords(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	seen := make(map[string]struct{}, len(keywords))
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// excerpt returns the first paragraph of body.
func excerpt(body string) string {
	if i := strings.Index(body, "\n\n"); i >= 0 {
		return strings.TrimSpace(body[:i])
	}
	return strings.TrimSpace(body)
}
