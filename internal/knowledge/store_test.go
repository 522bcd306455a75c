package knowledge

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pgvector/pgvector-go"

	"github.com/coachkit/coachd/internal/embed"
	"github.com/coachkit/coachd/internal/log"
	"github.com/coachkit/coachd/internal/postgres"
)

// ============================================================================
// Mock Implementations
// ============================================================================

// mockEmbedder implements embed.Embedder for testing.
type mockEmbedder struct {
	dimension int
	embedErr  error
	vector    []float32

	callCount int
	lastTexts []string
	lastType  embed.InputType
}

func (m *mockEmbedder) Embed(_ context.Context, texts []string, inputType embed.InputType) ([][]float32, error) {
	m.callCount++
	m.lastTexts = texts
	m.lastType = inputType

	if m.embedErr != nil {
		return nil, m.embedErr
	}

	vec := m.vector
	if vec == nil {
		vec = make([]float32, m.dimension)
		vec[0] = 1
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = vec
	}
	return out, nil
}

func (m *mockEmbedder) Dimension() int { return m.dimension }

// mockQuerier implements Querier for testing.
type mockQuerier struct {
	insertLessonErr    error
	getLessonErr       error
	updateLessonErr    error
	deleteLessonErr    error
	upsertEmbeddingErr error
	deleteEmbedErr     error
	matchLessonsErr    error
	searchErr          error

	lessonRow        postgres.Lesson
	lessonRows       []postgres.Lesson
	matchRows        []postgres.MatchLessonsRow
	searchRows       []postgres.SearchEmbeddingsRow
	lessonsByID      map[uuid.UUID]postgres.Lesson
	questionRow      postgres.GeneratedQuestion
	embedCount       int64
	embeddingVectors []postgres.LessonEmbeddingRow

	insertLessonCalls    int
	deleteLessonCalls    int
	upsertEmbeddingCalls int
	deleteEmbedCalls     int
	lastUpsert           postgres.UpsertEmbeddingParams
	lastDeleteEmbed      postgres.DeleteEmbeddingsBySourceParams
}

func (m *mockQuerier) InsertLesson(_ context.Context, arg postgres.InsertLessonParams) (postgres.Lesson, error) {
	m.insertLessonCalls++
	if m.insertLessonErr != nil {
		return postgres.Lesson{}, m.insertLessonErr
	}
	row := m.lessonRow
	row.Title = arg.Title
	row.Topic = arg.Topic
	row.Content = arg.Content
	row.Visibility = arg.Visibility
	row.OwnerID = arg.OwnerID
	return row, nil
}

func (m *mockQuerier) GetLesson(_ context.Context, id pgtype.UUID) (postgres.Lesson, error) {
	if m.getLessonErr != nil {
		return postgres.Lesson{}, m.getLessonErr
	}
	if m.lessonsByID != nil {
		row, ok := m.lessonsByID[uuid.UUID(id.Bytes)]
		if !ok {
			return postgres.Lesson{}, pgx.ErrNoRows
		}
		return row, nil
	}
	return m.lessonRow, nil
}

func (m *mockQuerier) ListLessonsByOwner(_ context.Context, _ postgres.ListLessonsParams) ([]postgres.Lesson, error) {
	return m.lessonRows, nil
}

func (m *mockQuerier) UpdateLesson(_ context.Context, arg postgres.UpdateLessonParams) (postgres.Lesson, error) {
	if m.updateLessonErr != nil {
		return postgres.Lesson{}, m.updateLessonErr
	}
	row := m.lessonRow
	row.ID = arg.ID
	row.Title = arg.Title
	row.Topic = arg.Topic
	row.Content = arg.Content
	return row, nil
}

func (m *mockQuerier) DeleteLesson(_ context.Context, _ pgtype.UUID) (int64, error) {
	m.deleteLessonCalls++
	if m.deleteLessonErr != nil {
		return 0, m.deleteLessonErr
	}
	return 1, nil
}

func (m *mockQuerier) InsertUserQuery(_ context.Context, arg postgres.InsertUserQueryParams) (postgres.UserQuery, error) {
	return postgres.UserQuery{
		ID:        pgtype.UUID{Bytes: uuid.New(), Valid: true},
		OwnerID:   arg.OwnerID,
		QueryText: arg.QueryText,
	}, nil
}

func (m *mockQuerier) InsertAttachment(_ context.Context, arg postgres.InsertAttachmentParams) (postgres.Attachment, error) {
	return postgres.Attachment{
		ID:       pgtype.UUID{Bytes: uuid.New(), Valid: true},
		OwnerID:  arg.OwnerID,
		Bucket:   arg.Bucket,
		Path:     arg.Path,
		Metadata: arg.Metadata,
		LessonID: arg.LessonID,
		QueryID:  arg.QueryID,
	}, nil
}

func (m *mockQuerier) ListAttachmentsByLesson(_ context.Context, _ pgtype.UUID) ([]postgres.Attachment, error) {
	return nil, nil
}

func (m *mockQuerier) InsertGeneratedQuestion(_ context.Context, arg postgres.InsertGeneratedQuestionParams) (postgres.GeneratedQuestion, error) {
	return postgres.GeneratedQuestion{
		ID:           pgtype.UUID{Bytes: uuid.New(), Valid: true},
		OwnerID:      arg.OwnerID,
		LessonID:     arg.LessonID,
		QueryID:      arg.QueryID,
		QuestionText: arg.QuestionText,
		AuthorModel:  arg.AuthorModel,
	}, nil
}

func (m *mockQuerier) GetGeneratedQuestion(_ context.Context, _ pgtype.UUID) (postgres.GeneratedQuestion, error) {
	return m.questionRow, nil
}

func (m *mockQuerier) InsertAnswer(_ context.Context, arg postgres.InsertAnswerParams) (postgres.Answer, error) {
	return postgres.Answer{
		ID:              pgtype.UUID{Bytes: uuid.New(), Valid: true},
		OwnerID:         arg.OwnerID,
		QuestionID:      arg.QuestionID,
		UserAnswer:      arg.UserAnswer,
		ReferenceAnswer: arg.ReferenceAnswer,
		Grade:           arg.Grade,
		Feedback:        arg.Feedback,
	}, nil
}

func (m *mockQuerier) UpsertEmbedding(_ context.Context, arg postgres.UpsertEmbeddingParams) (pgtype.UUID, error) {
	m.upsertEmbeddingCalls++
	m.lastUpsert = arg
	if m.upsertEmbeddingErr != nil {
		return pgtype.UUID{}, m.upsertEmbeddingErr
	}
	return pgtype.UUID{Bytes: uuid.New(), Valid: true}, nil
}

func (m *mockQuerier) DeleteEmbeddingsBySource(_ context.Context, arg postgres.DeleteEmbeddingsBySourceParams) error {
	m.deleteEmbedCalls++
	m.lastDeleteEmbed = arg
	return m.deleteEmbedErr
}

func (m *mockQuerier) CountEmbeddings(_ context.Context, _ string) (int64, error) {
	return m.embedCount, nil
}

func (m *mockQuerier) SearchEmbeddings(_ context.Context, _ postgres.SearchEmbeddingsParams) ([]postgres.SearchEmbeddingsRow, error) {
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	return m.searchRows, nil
}

func (m *mockQuerier) MatchLessons(_ context.Context, _ postgres.MatchLessonsParams) ([]postgres.MatchLessonsRow, error) {
	if m.matchLessonsErr != nil {
		return nil, m.matchLessonsErr
	}
	return m.matchRows, nil
}

func (m *mockQuerier) ListLessonEmbeddings(_ context.Context, _ int32) ([]postgres.LessonEmbeddingRow, error) {
	return m.embeddingVectors, nil
}

// ============================================================================
// Tests
// ============================================================================

func newTestStore(q Querier, e embed.Embedder) *Store {
	return New(q, e, log.NewNop())
}

func pgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

func TestCreateLesson_IndexesContent(t *testing.T) {
	lessonID := uuid.New()
	owner := uuid.New()
	q := &mockQuerier{lessonRow: postgres.Lesson{ID: pgUUID(lessonID), Visibility: VisibilityPrivate}}
	e := &mockEmbedder{dimension: 4}
	store := newTestStore(q, e)

	lesson, err := store.CreateLesson(context.Background(), owner, LessonParams{
		Topic:   "Newton's laws",
		Content: "Force equals mass times acceleration.",
	})
	if err != nil {
		t.Fatalf("CreateLesson() error: %v", err)
	}

	if lesson.Title != "Newton's laws" {
		t.Errorf("Title = %q, want topic fallback", lesson.Title)
	}
	if lesson.Visibility != VisibilityPrivate {
		t.Errorf("Visibility = %q, want private default", lesson.Visibility)
	}
	if e.lastType != embed.InputSearchDocument {
		t.Errorf("input type = %q, want search_document", e.lastType)
	}
	if q.upsertEmbeddingCalls != 1 {
		t.Fatalf("upsert calls = %d, want 1", q.upsertEmbeddingCalls)
	}
	if q.lastUpsert.SourceTable != SourceLessons {
		t.Errorf("source_table = %q, want lessons", q.lastUpsert.SourceTable)
	}
	if uuid.UUID(q.lastUpsert.SourceID.Bytes) != lessonID {
		t.Errorf("source_id = %v, want %v", q.lastUpsert.SourceID.Bytes, lessonID)
	}
}

func TestCreateLesson_EmptyContent(t *testing.T) {
	store := newTestStore(&mockQuerier{}, &mockEmbedder{dimension: 4})

	_, err := store.CreateLesson(context.Background(), uuid.New(), LessonParams{Topic: "x"})
	if !errors.Is(err, ErrEmptyContent) {
		t.Errorf("CreateLesson() = %v, want ErrEmptyContent", err)
	}
}

func TestCreateLesson_EmbedFailureRollsBack(t *testing.T) {
	q := &mockQuerier{lessonRow: postgres.Lesson{ID: pgUUID(uuid.New())}}
	e := &mockEmbedder{dimension: 4, embedErr: embed.ErrUnavailable}
	store := newTestStore(q, e)

	_, err := store.CreateLesson(context.Background(), uuid.New(), LessonParams{
		Topic: "x", Content: "some content",
	})
	if !errors.Is(err, embed.ErrUnavailable) {
		t.Fatalf("CreateLesson() = %v, want ErrUnavailable", err)
	}
	if q.deleteLessonCalls != 1 {
		t.Errorf("delete calls = %d, want 1 (compensating delete)", q.deleteLessonCalls)
	}
}

func TestCreateLesson_UpsertFailureRollsBack(t *testing.T) {
	q := &mockQuerier{
		lessonRow:          postgres.Lesson{ID: pgUUID(uuid.New())},
		upsertEmbeddingErr: errors.New("dimension mismatch"),
	}
	store := newTestStore(q, &mockEmbedder{dimension: 4})

	_, err := store.CreateLesson(context.Background(), uuid.New(), LessonParams{
		Topic: "x", Content: "some content",
	})
	if err == nil {
		t.Fatal("CreateLesson() = nil, want error")
	}
	if q.deleteLessonCalls != 1 {
		t.Errorf("delete calls = %d, want 1 (compensating delete)", q.deleteLessonCalls)
	}
}

func TestGetLesson_AccessControl(t *testing.T) {
	owner := uuid.New()
	other := uuid.New()
	lessonID := uuid.New()

	tests := []struct {
		name       string
		visibility string
		lessonOwner uuid.UUID
		caller     uuid.UUID
		wantErr    error
	}{
		{"owner reads private", VisibilityPrivate, owner, owner, nil},
		{"stranger blocked from private", VisibilityPrivate, owner, other, ErrAccessDenied},
		{"anonymous blocked from private", VisibilityPrivate, owner, uuid.Nil, ErrAccessDenied},
		{"anyone reads public", VisibilityPublic, owner, other, nil},
		{"anyone reads ownerless", VisibilityPrivate, uuid.Nil, other, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &mockQuerier{lessonRow: postgres.Lesson{
				ID:         pgUUID(lessonID),
				OwnerID:    pgtype.UUID{Bytes: tt.lessonOwner, Valid: tt.lessonOwner != uuid.Nil},
				Visibility: tt.visibility,
				Content:    "c",
			}}
			store := newTestStore(q, &mockEmbedder{dimension: 4})

			_, err := store.GetLesson(context.Background(), tt.caller, lessonID)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("GetLesson() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetLesson_NotFound(t *testing.T) {
	q := &mockQuerier{getLessonErr: pgx.ErrNoRows}
	store := newTestStore(q, &mockEmbedder{dimension: 4})

	_, err := store.GetLesson(context.Background(), uuid.New(), uuid.New())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetLesson() = %v, want ErrNotFound", err)
	}
}

func TestUpdateLesson_NonOwnerDenied(t *testing.T) {
	owner := uuid.New()
	q := &mockQuerier{lessonRow: postgres.Lesson{
		ID:         pgUUID(uuid.New()),
		OwnerID:    pgUUID(owner),
		Visibility: VisibilityPrivate,
	}}
	store := newTestStore(q, &mockEmbedder{dimension: 4})

	_, err := store.UpdateLesson(context.Background(), uuid.New(), uuid.New(), LessonParams{
		Topic: "x", Content: "c",
	})
	if !errors.Is(err, ErrAccessDenied) {
		t.Errorf("UpdateLesson() = %v, want ErrAccessDenied", err)
	}
}

func TestUpdateLesson_Reindexes(t *testing.T) {
	owner := uuid.New()
	q := &mockQuerier{lessonRow: postgres.Lesson{
		ID:      pgUUID(uuid.New()),
		OwnerID: pgUUID(owner),
	}}
	e := &mockEmbedder{dimension: 4}
	store := newTestStore(q, e)

	_, err := store.UpdateLesson(context.Background(), owner, uuid.New(), LessonParams{
		Topic: "updated", Content: "new content",
	})
	if err != nil {
		t.Fatalf("UpdateLesson() error: %v", err)
	}
	if q.upsertEmbeddingCalls != 1 {
		t.Errorf("upsert calls = %d, want 1 (re-index on update)", q.upsertEmbeddingCalls)
	}
	if e.lastTexts[0] != "new content" {
		t.Errorf("embedded %q, want new content", e.lastTexts[0])
	}
}

func TestDeleteLesson_RemovesEmbeddings(t *testing.T) {
	owner := uuid.New()
	lessonID := uuid.New()
	q := &mockQuerier{lessonRow: postgres.Lesson{
		ID:      pgUUID(lessonID),
		OwnerID: pgUUID(owner),
	}}
	store := newTestStore(q, &mockEmbedder{dimension: 4})

	if err := store.DeleteLesson(context.Background(), owner, lessonID); err != nil {
		t.Fatalf("DeleteLesson() error: %v", err)
	}

	if q.deleteEmbedCalls != 1 {
		t.Fatalf("embedding delete calls = %d, want 1", q.deleteEmbedCalls)
	}
	if q.lastDeleteEmbed.SourceTable != SourceLessons {
		t.Errorf("source_table = %q, want lessons", q.lastDeleteEmbed.SourceTable)
	}
	if q.deleteLessonCalls != 1 {
		t.Errorf("lesson delete calls = %d, want 1", q.deleteLessonCalls)
	}
}

func TestDeleteLesson_NonOwnerDenied(t *testing.T) {
	q := &mockQuerier{lessonRow: postgres.Lesson{
		ID:      pgUUID(uuid.New()),
		OwnerID: pgUUID(uuid.New()),
	}}
	store := newTestStore(q, &mockEmbedder{dimension: 4})

	err := store.DeleteLesson(context.Background(), uuid.New(), uuid.New())
	if !errors.Is(err, ErrAccessDenied) {
		t.Errorf("DeleteLesson() = %v, want ErrAccessDenied", err)
	}
	if q.deleteLessonCalls != 0 {
		t.Errorf("lesson delete calls = %d, want 0", q.deleteLessonCalls)
	}
}

func TestNearestLessons_DimensionChecked(t *testing.T) {
	q := &mockQuerier{}
	store := newTestStore(q, &mockEmbedder{dimension: 4})

	_, err := store.NearestLessons(context.Background(), []float32{1, 2}, 5, false)
	if !errors.Is(err, embed.ErrDimensionMismatch) {
		t.Errorf("NearestLessons() = %v, want ErrDimensionMismatch", err)
	}
}

func TestNearestLessons_Approximate(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	q := &mockQuerier{matchRows: []postgres.MatchLessonsRow{
		{Lesson: postgres.Lesson{ID: pgUUID(a), Topic: "inertia", Content: "x"}, Distance: 0.1},
		{Lesson: postgres.Lesson{ID: pgUUID(b), Topic: "momentum", Content: "y"}, Distance: 0.3},
	}}
	store := newTestStore(q, &mockEmbedder{dimension: 4})

	hits, err := store.NearestLessons(context.Background(), []float32{1, 0, 0, 0}, 5, false)
	if err != nil {
		t.Fatalf("NearestLessons() error: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}
	if hits[0].Lesson.ID != a || hits[0].Distance != 0.1 {
		t.Errorf("hit[0] = %v/%v, want %v/0.1", hits[0].Lesson.ID, hits[0].Distance, a)
	}
}

func TestNearestLessons_ExactDropsDeletedLesson(t *testing.T) {
	kept := uuid.New()
	deleted := uuid.New()
	q := &mockQuerier{
		searchRows: []postgres.SearchEmbeddingsRow{
			{SourceID: pgUUID(kept), Distance: 0.05},
			{SourceID: pgUUID(deleted), Distance: 0.2},
		},
		lessonsByID: map[uuid.UUID]postgres.Lesson{
			kept: {ID: pgUUID(kept), Topic: "kept", Content: "x"},
			// deleted lesson intentionally absent: join drops it
		},
	}
	store := newTestStore(q, &mockEmbedder{dimension: 4})

	hits, err := store.NearestLessons(context.Background(), []float32{1, 0, 0, 0}, 5, true)
	if err != nil {
		t.Fatalf("NearestLessons() error: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("got %d hits, want 1 (deleted lesson dropped)", len(hits))
	}
	if hits[0].Lesson.ID != kept {
		t.Errorf("hit = %v, want %v", hits[0].Lesson.ID, kept)
	}
}

func TestRecordQuery_EmbeddingBestEffort(t *testing.T) {
	q := &mockQuerier{}
	e := &mockEmbedder{dimension: 4, embedErr: embed.ErrUnavailable}
	store := newTestStore(q, e)

	uq, err := store.RecordQuery(context.Background(), uuid.New(), "what is inertia?")
	if err != nil {
		t.Fatalf("RecordQuery() error: %v (embedding failure must not fail the insert)", err)
	}
	if uq.QueryText != "what is inertia?" {
		t.Errorf("QueryText = %q", uq.QueryText)
	}
	if q.upsertEmbeddingCalls != 0 {
		t.Errorf("upsert calls = %d, want 0 after embed failure", q.upsertEmbeddingCalls)
	}
}

func TestRecordQuery_IndexesQuery(t *testing.T) {
	q := &mockQuerier{}
	store := newTestStore(q, &mockEmbedder{dimension: 4})

	_, err := store.RecordQuery(context.Background(), uuid.New(), "what is inertia?")
	if err != nil {
		t.Fatalf("RecordQuery() error: %v", err)
	}
	if q.upsertEmbeddingCalls != 1 {
		t.Fatalf("upsert calls = %d, want 1", q.upsertEmbeddingCalls)
	}
	if q.lastUpsert.SourceTable != SourceUserQueries {
		t.Errorf("source_table = %q, want user_queries", q.lastUpsert.SourceTable)
	}
}

func TestLessonIndex(t *testing.T) {
	id := uuid.New()
	q := &mockQuerier{embeddingVectors: []postgres.LessonEmbeddingRow{
		{
			Lesson:    postgres.Lesson{ID: pgUUID(id), Topic: "algebra", Content: "x + 1 = 2"},
			Embedding: pgvector.NewVector([]float32{1, 2, 3, 4}),
		},
	}}
	store := newTestStore(q, &mockEmbedder{dimension: 4})

	seeds, err := store.LessonIndex(context.Background(), 100)
	if err != nil {
		t.Fatalf("LessonIndex() error: %v", err)
	}
	if len(seeds) != 1 {
		t.Fatalf("got %d seeds, want 1", len(seeds))
	}
	if seeds[0].Lesson.ID != id || seeds[0].Lesson.Topic != "algebra" {
		t.Errorf("lesson = %+v", seeds[0].Lesson)
	}
	if len(seeds[0].Vector) != 4 || seeds[0].Vector[0] != 1 {
		t.Errorf("vector = %v", seeds[0].Vector)
	}
}
