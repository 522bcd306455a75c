package retrieve

import (
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/coachkit/coachd/internal/knowledge"
)

// MemoryIndex is a small in-process vector index: a linear cosine scan over
// lesson embeddings held in memory. It exists as a degraded-mode fallback
// when the vector store is unreachable and as an exact reference in tests.
// It makes no recall tradeoff; results are always the true nearest neighbors.
//
// MemoryIndex is safe for concurrent use.
type MemoryIndex struct {
	mu      sync.RWMutex
	lessons map[uuid.UUID]knowledge.Lesson
	vectors map[uuid.UUID][]float32
}

// NewMemoryIndex creates an empty index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		lessons: make(map[uuid.UUID]knowledge.Lesson),
		vectors: make(map[uuid.UUID][]float32),
	}
}

// Add inserts or replaces a lesson and its vector.
func (m *MemoryIndex) Add(lesson knowledge.Lesson, vector []float32) {
	vec := make([]float32, len(vector))
	copy(vec, vector)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.lessons[lesson.ID] = lesson
	m.vectors[lesson.ID] = vec
}

// Delete removes a lesson from the index.
func (m *MemoryIndex) Delete(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.lessons, id)
	delete(m.vectors, id)
}

// Len returns the number of indexed lessons.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.lessons)
}

// Search returns up to k matches ordered by ascending cosine distance.
func (m *MemoryIndex) Search(queryVec []float32, k int) []Match {
	if k < 1 {
		return nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	matches := make([]Match, 0, len(m.vectors))
	for id, vec := range m.vectors {
		if len(vec) != len(queryVec) {
			continue
		}
		d := cosineDistance(queryVec, vec)
		matches = append(matches, Match{
			Lesson:     m.lessons[id],
			Distance:   d,
			Similarity: similarity(d),
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Distance < matches[j].Distance
	})

	if len(matches) > k {
		matches = matches[:k]
	}
	return matches
}

// cosineDistance computes 1 - cos(a, b). The epsilon guards zero vectors.
func cosineDistance(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	return 1.0 - dot/(math.Sqrt(normA)*math.Sqrt(normB)+1e-10)
}
