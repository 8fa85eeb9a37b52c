package domain

import "fmt"

// KnowledgeChunk is a token window derived from a KnowledgeDocument.
type KnowledgeChunk struct {
	ChunkID    string
	DocumentID string
	Content    string
	Title      string
	Locale     string
	Tags       []string
	Position   int
}

// StoredChunk is a chunk together with its embedding.
type StoredChunk struct {
	KnowledgeChunk
	Vector []float32
}

// RetrievedChunk is a stored chunk scored against one query.
type RetrievedChunk struct {
	StoredChunk
	Similarity float64
}

// ChunkID composes the identifier of the chunk at position within documentID.
func ChunkID(documentID string, position int) string {
	return fmt.Sprintf("%s:%d", documentID, position)
}

// SourceTitle is the label used when citing the chunk: its document title,
// or the document id for untitled documents.
func (c KnowledgeChunk) SourceTitle() string {
	if c.Title != "" {
		return c.Title
	}
	return c.DocumentID
}

// HasTags reports whether the chunk carries every tag in want. Both sides
// are expected to be normalized already.
func (c KnowledgeChunk) HasTags(want []string) bool {
	for _, tag := range want {
		found := false
		for _, have := range c.Tags {
			if have == tag {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
