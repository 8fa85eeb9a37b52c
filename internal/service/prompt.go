package service

import (
	"fmt"
	"strings"

	"github.com/cloo-solutions/helpdesk/internal/domain"
)

const (
	DefaultBrandName        = "FMT"
	DefaultBrandDescription = "a sustainable smart home brand"

	promptGuidance = "Always align with the brand voice, reference the knowledge base for facts, and clearly communicate any uncertainties."
	promptClosing  = "Use the provided conversation history and knowledge snippets to craft concise, factual answers. " +
		"If the context does not cover a request, acknowledge the limitation and recommend contacting support when appropriate."
	contextHeader = "Relevant knowledge base excerpts:"
)

// Brand identifies who the assistant speaks for.
type Brand struct {
	Name        string
	Description string
}

func (b Brand) withDefaults() Brand {
	if b.Name == "" {
		b.Name = DefaultBrandName
	}
	if b.Description == "" {
		b.Description = DefaultBrandDescription
	}
	return b
}

// BuildSystemPrompt assembles the role preamble, the brand and policy entries
// as titled sections, and the closing instruction. Empty groups are omitted.
func BuildSystemPrompt(brand Brand, brandEntries, policyEntries []domain.KnowledgeEntry) string {
	brand = brand.withDefaults()
	parts := []string{
		fmt.Sprintf("You are the AI assistant for %s, %s. Respond with friendly, transparent, and helpful guidance.", brand.Name, brand.Description),
		promptGuidance,
	}

	if sections := renderSections(brandEntries); sections != "" {
		parts = append(parts, "Brand voice and positioning:\n"+sections)
	}
	if sections := renderSections(policyEntries); sections != "" {
		parts = append(parts, "Key store policies:\n"+sections)
	}

	parts = append(parts, promptClosing)
	return strings.Join(parts, "\n\n")
}

func renderSections(entries []domain.KnowledgeEntry) string {
	sections := make([]string, len(entries))
	for i, e := range entries {
		sections[i] = fmt.Sprintf("### %s\n%s", e.Metadata.Title, e.Content)
	}
	return strings.Join(sections, "\n\n")
}

// BuildContextMessage renders retrieved chunks as cited excerpts. titles maps
// document ids to display titles and takes precedence over the chunk's own
// title. It returns "" when there are no chunks.
func BuildContextMessage(chunks []domain.RetrievedChunk, titles map[string]string) string {
	if len(chunks) == 0 {
		return ""
	}

	sections := make([]string, len(chunks))
	for i, c := range chunks {
		source := titles[c.DocumentID]
		if source == "" {
			source = c.SourceTitle()
		}
		sections[i] = fmt.Sprintf("Source: %s\n%s", source, c.Content)
	}
	return contextHeader + "\n\n" + strings.Join(sections, "\n\n")
}

// BuildMessages orders the prompt: system prompt, optional context, then history.
func BuildMessages(systemPrompt, contextMessage string, history []domain.ConversationMessage) []domain.ChatMessage {
	messages := make([]domain.ChatMessage, 0, len(history)+2)
	messages = append(messages, domain.ChatMessage{Role: domain.ChatRoleSystem, Content: systemPrompt})
	if contextMessage != "" {
		messages = append(messages, domain.ChatMessage{Role: domain.ChatRoleSystem, Content: contextMessage})
	}
	for _, m := range history {
		messages = append(messages, domain.ChatMessageFromConversation(m))
	}
	return messages
}

// recentHistory returns the last limit messages. A non-positive limit keeps all.
func recentHistory(history []domain.ConversationMessage, limit int) []domain.ConversationMessage {
	if limit <= 0 || len(history) <= limit {
		return history
	}
	return history[len(history)-limit:]
}
