package oracle

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
)

// HashEmbedder is a deterministic, dependency-free embedder. It keeps the
// pipeline runnable without an API key and gives tests stable vectors:
// equal texts embed identically, distinct texts almost never collide.
type HashEmbedder struct {
	dim int
}

func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = 1536
	}
	return &HashEmbedder{dim: dim}
}

// EmbedTexts hashes each text into a pseudo-random but deterministic
// unit vector.
func (h *HashEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		out[i] = h.embed(text)
	}
	return out, nil
}

func (h *HashEmbedder) embed(text string) []float64 {
	if text == "" {
		text = "empty"
	}
	hash := sha256.Sum256([]byte(text))
	vec := make([]float64, h.dim)
	for i := 0; i < h.dim; i++ {
		// spread hash bits across dimensions
		chunk := binary.LittleEndian.Uint16(hash[(i % 16):])
		vec[i] = float64(chunk%1000) / 1000.0
	}
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		norm = 1
	}
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}
