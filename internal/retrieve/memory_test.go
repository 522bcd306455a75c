package retrieve

import (
	"math"
	"testing"

	"github.com/google/uuid"

	"github.com/coachkit/coachd/internal/knowledge"
)

func lessonWithTopic(topic string) knowledge.Lesson {
	return knowledge.Lesson{ID: uuid.New(), Topic: topic, Content: topic + " content"}
}

func TestMemoryIndex_ExactMatchIsFirstWithZeroDistance(t *testing.T) {
	idx := NewMemoryIndex()

	target := lessonWithTopic("newton")
	targetVec := []float32{0.2, 0.8, 0.1}
	idx.Add(target, targetVec)
	idx.Add(lessonWithTopic("thermo"), []float32{0.9, 0.1, 0.3})
	idx.Add(lessonWithTopic("optics"), []float32{0.1, 0.2, 0.9})

	// Query with the stored embedding of the target lesson: it must come
	// back first with distance 0 (within float tolerance).
	matches := idx.Search(targetVec, 1)
	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1", len(matches))
	}
	if matches[0].Lesson.ID != target.ID {
		t.Errorf("first match = %v, want %v", matches[0].Lesson.Topic, target.Topic)
	}
	if math.Abs(matches[0].Distance) > 1e-6 {
		t.Errorf("distance = %g, want ~0", matches[0].Distance)
	}
	if math.Abs(matches[0].Similarity-1.0) > 1e-6 {
		t.Errorf("similarity = %g, want ~1", matches[0].Similarity)
	}
}

func TestMemoryIndex_OrderedAndTruncated(t *testing.T) {
	idx := NewMemoryIndex()
	for i := 0; i < 10; i++ {
		idx.Add(lessonWithTopic("t"), []float32{float32(i + 1), 1, 0})
	}

	matches := idx.Search([]float32{1, 0, 0}, 5)
	if len(matches) != 5 {
		t.Fatalf("got %d matches, want 5", len(matches))
	}
	for i := 1; i < len(matches); i++ {
		if matches[i].Distance < matches[i-1].Distance {
			t.Errorf("distances not non-decreasing: %g before %g",
				matches[i-1].Distance, matches[i].Distance)
		}
	}
}

func TestMemoryIndex_KLargerThanIndex(t *testing.T) {
	idx := NewMemoryIndex()
	idx.Add(lessonWithTopic("a"), []float32{1, 0})
	idx.Add(lessonWithTopic("b"), []float32{0, 1})

	matches := idx.Search([]float32{1, 1}, 10)
	if len(matches) != 2 {
		t.Errorf("got %d matches, want 2", len(matches))
	}
}

func TestMemoryIndex_DeleteRemovesFromResults(t *testing.T) {
	idx := NewMemoryIndex()
	target := lessonWithTopic("deleted")
	vec := []float32{1, 0, 0}
	idx.Add(target, vec)
	idx.Add(lessonWithTopic("kept"), []float32{0, 1, 0})

	idx.Delete(target.ID)

	matches := idx.Search(vec, 10)
	for _, m := range matches {
		if m.Lesson.ID == target.ID {
			t.Error("deleted lesson returned from search")
		}
	}
	if idx.Len() != 1 {
		t.Errorf("Len() = %d, want 1", idx.Len())
	}
}

func TestMemoryIndex_SkipsMismatchedDimensions(t *testing.T) {
	idx := NewMemoryIndex()
	idx.Add(lessonWithTopic("short"), []float32{1, 0})
	idx.Add(lessonWithTopic("full"), []float32{1, 0, 0})

	matches := idx.Search([]float32{1, 0, 0}, 10)
	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1 (mismatched vector skipped)", len(matches))
	}
	if matches[0].Lesson.Topic != "full" {
		t.Errorf("match = %q, want full", matches[0].Lesson.Topic)
	}
}

func TestMemoryIndex_ZeroVectorDoesNotPanic(t *testing.T) {
	idx := NewMemoryIndex()
	idx.Add(lessonWithTopic("zero"), []float32{0, 0, 0})

	matches := idx.Search([]float32{0, 0, 0}, 1)
	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1", len(matches))
	}
	if math.IsNaN(matches[0].Distance) || math.IsInf(matches[0].Distance, 0) {
		t.Errorf("distance = %g, want finite", matches[0].Distance)
	}
}
