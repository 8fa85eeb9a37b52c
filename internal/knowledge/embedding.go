package knowledge

import (
	"context"
	"crypto/sha1"
	"encoding/binary"
	"math"
)

// DefaultVectorSize is the width of hashed embeddings when none is configured.
const DefaultVectorSize = 256

// EmbeddingProvider turns texts into vectors, one per text and in order.
type EmbeddingProvider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Dimensioned is implemented by providers that know their vector width.
type Dimensioned interface {
	Dimensions() int
}

// HashEmbedder is a deterministic bag-of-hashed-tokens embedding. Each token
// increments the bucket chosen by its SHA-1 digest; the result is L2-normalized.
type HashEmbedder struct {
	size int
}

func NewHashEmbedder(size int) *HashEmbedder {
	if size <= 0 {
		size = DefaultVectorSize
	}
	return &HashEmbedder{size: size}
}

func (h *HashEmbedder) Dimensions() int {
	return h.size
}

func (h *HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vectors[i] = h.embedOne(text)
	}
	return vectors, nil
}

func (h *HashEmbedder) embedOne(text string) []float32 {
	counts := make([]float64, h.size)
	for _, token := range Tokenize(text) {
		counts[tokenBucket(token, h.size)]++
	}
	return normalize(counts)
}

func tokenBucket(token string, size int) int {
	sum := sha1.Sum([]byte(token))
	return int(binary.BigEndian.Uint32(sum[:4]) % uint32(size))
}

// normalize scales v to unit length. An all-zero vector stays zero.
func normalize(v []float64) []float32 {
	var norm float64
	for _, x := range v {
		norm += x * x
	}
	norm = math.Sqrt(norm)

	out := make([]float32, len(v))
	if norm == 0 {
		return out
	}
	for i, x := range v {
		out[i] = float32(x / norm)
	}
	return out
}
