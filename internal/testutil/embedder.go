package testutil

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"

	"github.com/coachkit/coachd/internal/embed"
)

// StubEmbedder is a deterministic embed.Embedder for tests. Each distinct
// text maps to a fixed pseudo-random unit vector, so identical texts always
// embed identically and different texts land far apart, without any network
// dependency.
type StubEmbedder struct {
	dimension int
}

// NewStubEmbedder creates a StubEmbedder producing vectors of the given
// dimension.
func NewStubEmbedder(dimension int) *StubEmbedder {
	return &StubEmbedder{dimension: dimension}
}

// Dimension returns the configured vector length.
func (s *StubEmbedder) Dimension() int {
	return s.dimension
}

// Embed returns one deterministic unit vector per text. The input type is
// ignored; queries and documents with equal text embed equally.
func (s *StubEmbedder) Embed(_ context.Context, texts []string, _ embed.InputType) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, embed.ErrEmptyInput
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = s.vector(text)
	}
	return out, nil
}

func (s *StubEmbedder) vector(text string) []float32 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	rng := rand.New(rand.NewSource(int64(h.Sum64()))) // #nosec G404 -- deterministic test data

	vec := make([]float32, s.dimension)
	var norm float64
	for i := range vec {
		v := rng.NormFloat64()
		vec[i] = float32(v)
		norm += v * v
	}

	scale := float32(1.0 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}
