package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pgvector/pgvector-go"

	"github.com/coachkit/coachd/internal/embed"
	"github.com/coachkit/coachd/internal/log"
	"github.com/coachkit/coachd/internal/postgres"
)

// searchTimeout bounds vector search queries so a cold ivfflat index cannot
// block a request indefinitely.
const searchTimeout = 10 * time.Second

// Querier defines the database operations the Store depends on.
// Following Go convention, the interface is defined by the consumer, not the
// provider (like http.RoundTripper or io.Reader); postgres.Queries is the
// production implementation and tests supply mocks.
type Querier interface {
	InsertLesson(ctx context.Context, arg postgres.InsertLessonParams) (postgres.Lesson, error)
	GetLesson(ctx context.Context, id pgtype.UUID) (postgres.Lesson, error)
	ListLessonsByOwner(ctx context.Context, arg postgres.ListLessonsParams) ([]postgres.Lesson, error)
	UpdateLesson(ctx context.Context, arg postgres.UpdateLessonParams) (postgres.Lesson, error)
	DeleteLesson(ctx context.Context, id pgtype.UUID) (int64, error)

	InsertUserQuery(ctx context.Context, arg postgres.InsertUserQueryParams) (postgres.UserQuery, error)
	InsertAttachment(ctx context.Context, arg postgres.InsertAttachmentParams) (postgres.Attachment, error)
	ListAttachmentsByLesson(ctx context.Context, lessonID pgtype.UUID) ([]postgres.Attachment, error)
	InsertGeneratedQuestion(ctx context.Context, arg postgres.InsertGeneratedQuestionParams) (postgres.GeneratedQuestion, error)
	GetGeneratedQuestion(ctx context.Context, id pgtype.UUID) (postgres.GeneratedQuestion, error)
	InsertAnswer(ctx context.Context, arg postgres.InsertAnswerParams) (postgres.Answer, error)

	UpsertEmbedding(ctx context.Context, arg postgres.UpsertEmbeddingParams) (pgtype.UUID, error)
	DeleteEmbeddingsBySource(ctx context.Context, arg postgres.DeleteEmbeddingsBySourceParams) error
	CountEmbeddings(ctx context.Context, sourceTable string) (int64, error)
	SearchEmbeddings(ctx context.Context, arg postgres.SearchEmbeddingsParams) ([]postgres.SearchEmbeddingsRow, error)
	MatchLessons(ctx context.Context, arg postgres.MatchLessonsParams) ([]postgres.MatchLessonsRow, error)
	ListLessonEmbeddings(ctx context.Context, limit int32) ([]postgres.LessonEmbeddingRow, error)
}

// Store manages source records and keeps their embeddings in sync.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	queries  Querier
	embedder embed.Embedder
	logger   log.Logger
}

// New creates a Store.
//
// Example (production):
//
//	store := knowledge.New(postgres.New(pool), cohereEmbedder, logger)
//
// Example (testing):
//
//	store := knowledge.New(mockQuerier, mockEmbedder, log.NewNop())
func New(querier Querier, embedder embed.Embedder, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{
		queries:  querier,
		embedder: embedder,
		logger:   logger,
	}
}

// CreateLesson inserts a lesson and indexes its content.
//
// The embedding is written in the same call: if embedding generation or the
// vector upsert fails, the freshly inserted lesson row is deleted again so no
// lesson exists without a searchable vector.
func (s *Store) CreateLesson(ctx context.Context, owner uuid.UUID, params LessonParams) (*Lesson, error) {
	if params.Content == "" {
		return nil, ErrEmptyContent
	}
	if params.Visibility == "" {
		params.Visibility = VisibilityPrivate
	}
	if params.Title == "" {
		params.Title = params.Topic
	}

	row, err := s.queries.InsertLesson(ctx, postgres.InsertLessonParams{
		OwnerID:    uuidToPg(owner),
		Title:      params.Title,
		Topic:      params.Topic,
		Subject:    strPtr(params.Subject),
		Level:      strPtr(params.Level),
		Content:    params.Content,
		Visibility: params.Visibility,
	})
	if err != nil {
		return nil, fmt.Errorf("inserting lesson: %w", err)
	}

	lesson := lessonFromRow(row)

	if err := s.indexLesson(ctx, lesson); err != nil {
		// Compensating delete: a lesson without an embedding would be
		// invisible to retrieval, so roll the insert back.
		if _, delErr := s.queries.DeleteLesson(ctx, row.ID); delErr != nil {
			s.logger.Error("cleanup delete after failed indexing",
				"lesson_id", lesson.ID, "error", delErr)
		}
		return nil, err
	}

	s.logger.Debug("created lesson", "lesson_id", lesson.ID, "topic", lesson.Topic)
	return &lesson, nil
}

// indexLesson embeds lesson content and upserts its embedding row.
func (s *Store) indexLesson(ctx context.Context, lesson Lesson) error {
	vecs, err := s.embedder.Embed(ctx, []string{lesson.Content}, embed.InputSearchDocument)
	if err != nil {
		return fmt.Errorf("embedding lesson %s: %w", lesson.ID, err)
	}

	metadata, err := json.Marshal(map[string]string{
		"topic":    lesson.Topic,
		"subject":  lesson.Subject,
		"owner_id": ownerTag(lesson.OwnerID),
	})
	if err != nil {
		return fmt.Errorf("marshaling embedding metadata: %w", err)
	}

	_, err = s.queries.UpsertEmbedding(ctx, postgres.UpsertEmbeddingParams{
		SourceTable: SourceLessons,
		SourceID:    uuidToPg(lesson.ID),
		Embedding:   pgvector.NewVector(vecs[0]),
		Metadata:    metadata,
	})
	if err != nil {
		return fmt.Errorf("upserting embedding for lesson %s: %w", lesson.ID, err)
	}
	return nil
}

// GetLesson fetches a lesson the caller may read: their own, public ones, and
// ownerless ones. Anything else is ErrAccessDenied.
func (s *Store) GetLesson(ctx context.Context, caller, id uuid.UUID) (*Lesson, error) {
	row, err := s.queries.GetLesson(ctx, uuidToPg(id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("lesson %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("getting lesson %s: %w", id, err)
	}

	lesson := lessonFromRow(row)
	if !readable(lesson, caller) {
		return nil, fmt.Errorf("lesson %s: %w", id, ErrAccessDenied)
	}
	return &lesson, nil
}

// ListLessons pages the caller's own lessons, newest first.
func (s *Store) ListLessons(ctx context.Context, owner uuid.UUID, limit, offset int32) ([]Lesson, error) {
	if limit <= 0 || limit > 1000 {
		return nil, fmt.Errorf("limit must be in [1, 1000], got %d", limit)
	}

	rows, err := s.queries.ListLessonsByOwner(ctx, postgres.ListLessonsParams{
		OwnerID: uuidToPg(owner),
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		return nil, fmt.Errorf("listing lessons: %w", err)
	}

	lessons := make([]Lesson, 0, len(rows))
	for _, row := range rows {
		lessons = append(lessons, lessonFromRow(row))
	}
	return lessons, nil
}

// UpdateLesson updates an owned lesson and re-indexes its content. The old
// embedding row is replaced by the upsert, never left stale.
func (s *Store) UpdateLesson(ctx context.Context, caller, id uuid.UUID, params LessonParams) (*Lesson, error) {
	if params.Content == "" {
		return nil, ErrEmptyContent
	}
	if params.Title == "" {
		params.Title = params.Topic
	}

	existing, err := s.queries.GetLesson(ctx, uuidToPg(id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("lesson %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("getting lesson %s: %w", id, err)
	}
	if !owned(pgToUUID(existing.OwnerID), caller) {
		return nil, fmt.Errorf("lesson %s: %w", id, ErrAccessDenied)
	}

	row, err := s.queries.UpdateLesson(ctx, postgres.UpdateLessonParams{
		ID:      uuidToPg(id),
		Title:   params.Title,
		Topic:   params.Topic,
		Subject: strPtr(params.Subject),
		Level:   strPtr(params.Level),
		Content: params.Content,
	})
	if err != nil {
		return nil, fmt.Errorf("updating lesson %s: %w", id, err)
	}

	lesson := lessonFromRow(row)
	if err := s.indexLesson(ctx, lesson); err != nil {
		return nil, err
	}

	s.logger.Debug("updated lesson", "lesson_id", lesson.ID)
	return &lesson, nil
}

// DeleteLesson removes an owned lesson. Its embedding rows are deleted
// explicitly as well as by the foreign-key cascade, so a retrieval racing the
// delete can at worst see a dropped join, never a stale hit.
func (s *Store) DeleteLesson(ctx context.Context, caller, id uuid.UUID) error {
	existing, err := s.queries.GetLesson(ctx, uuidToPg(id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("lesson %s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("getting lesson %s: %w", id, err)
	}
	if !owned(pgToUUID(existing.OwnerID), caller) {
		return fmt.Errorf("lesson %s: %w", id, ErrAccessDenied)
	}

	if err := s.queries.DeleteEmbeddingsBySource(ctx, postgres.DeleteEmbeddingsBySourceParams{
		SourceTable: SourceLessons,
		SourceID:    uuidToPg(id),
	}); err != nil {
		return fmt.Errorf("deleting embeddings for lesson %s: %w", id, err)
	}

	affected, err := s.queries.DeleteLesson(ctx, uuidToPg(id))
	if err != nil {
		return fmt.Errorf("deleting lesson %s: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("lesson %s: %w", id, ErrNotFound)
	}

	s.logger.Debug("deleted lesson", "lesson_id", id)
	return nil
}

// RecordQuery persists a submitted user query and indexes it so practice
// questions can be grounded on past questions too.
func (s *Store) RecordQuery(ctx context.Context, owner uuid.UUID, queryText string) (*UserQuery, error) {
	row, err := s.queries.InsertUserQuery(ctx, postgres.InsertUserQueryParams{
		OwnerID:   uuidToPg(owner),
		QueryText: queryText,
	})
	if err != nil {
		return nil, fmt.Errorf("inserting user query: %w", err)
	}

	uq := &UserQuery{
		ID:        pgToUUID(row.ID),
		OwnerID:   pgToUUID(row.OwnerID),
		QueryText: row.QueryText,
		CreatedAt: timeFromPg(row.CreatedAt),
	}

	// Query embedding is best effort: the query row is useful on its own and
	// losing its vector does not break retrieval over lessons.
	vecs, err := s.embedder.Embed(ctx, []string{queryText}, embed.InputSearchDocument)
	if err != nil {
		s.logger.Warn("embedding user query failed", "query_id", uq.ID, "error", err)
		return uq, nil
	}
	metadata, _ := json.Marshal(map[string]string{"owner_id": ownerTag(owner)})
	if _, err := s.queries.UpsertEmbedding(ctx, postgres.UpsertEmbeddingParams{
		SourceTable: SourceUserQueries,
		SourceID:    row.ID,
		Embedding:   pgvector.NewVector(vecs[0]),
		Metadata:    metadata,
	}); err != nil {
		s.logger.Warn("upserting query embedding failed", "query_id", uq.ID, "error", err)
	}

	return uq, nil
}

// AddAttachment records an uploaded file's bucket location. No embedding is
// written; attachments become searchable only through OCR text merged into
// queries.
func (s *Store) AddAttachment(ctx context.Context, owner uuid.UUID, params AttachmentParams) (*Attachment, error) {
	metadata, err := json.Marshal(params.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshaling attachment metadata: %w", err)
	}

	row, err := s.queries.InsertAttachment(ctx, postgres.InsertAttachmentParams{
		OwnerID:   uuidToPg(owner),
		Bucket:    params.Bucket,
		Path:      params.Path,
		PublicURL: strPtr(params.PublicURL),
		Metadata:  metadata,
		LessonID:  uuidToPg(params.LessonID),
		QueryID:   uuidToPg(params.QueryID),
	})
	if err != nil {
		return nil, fmt.Errorf("inserting attachment: %w", err)
	}

	return attachmentFromRow(row, s.logger), nil
}

// ListAttachments lists attachments linked to a lesson the caller may read.
func (s *Store) ListAttachments(ctx context.Context, caller, lessonID uuid.UUID) ([]Attachment, error) {
	if _, err := s.GetLesson(ctx, caller, lessonID); err != nil {
		return nil, err
	}

	rows, err := s.queries.ListAttachmentsByLesson(ctx, uuidToPg(lessonID))
	if err != nil {
		return nil, fmt.Errorf("listing attachments: %w", err)
	}

	attachments := make([]Attachment, 0, len(rows))
	for _, row := range rows {
		attachments = append(attachments, *attachmentFromRow(row, s.logger))
	}
	return attachments, nil
}

// RecordGeneratedQuestion persists a model-generated practice question.
func (s *Store) RecordGeneratedQuestion(ctx context.Context, owner uuid.UUID, lessonID, queryID uuid.UUID, questionText, authorModel string) (*GeneratedQuestion, error) {
	row, err := s.queries.InsertGeneratedQuestion(ctx, postgres.InsertGeneratedQuestionParams{
		OwnerID:      uuidToPg(owner),
		LessonID:     uuidToPg(lessonID),
		QueryID:      uuidToPg(queryID),
		QuestionText: questionText,
		AuthorModel:  strPtr(authorModel),
	})
	if err != nil {
		return nil, fmt.Errorf("inserting generated question: %w", err)
	}
	return questionFromRow(row), nil
}

// GetGeneratedQuestion fetches a question owned by the caller.
func (s *Store) GetGeneratedQuestion(ctx context.Context, caller, id uuid.UUID) (*GeneratedQuestion, error) {
	row, err := s.queries.GetGeneratedQuestion(ctx, uuidToPg(id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("question %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("getting question %s: %w", id, err)
	}

	q := questionFromRow(row)
	if !owned(q.OwnerID, caller) {
		return nil, fmt.Errorf("question %s: %w", id, ErrAccessDenied)
	}
	return q, nil
}

// RecordAnswer persists a graded answer to a generated question.
func (s *Store) RecordAnswer(ctx context.Context, owner uuid.UUID, params AnswerParams) (*Answer, error) {
	row, err := s.queries.InsertAnswer(ctx, postgres.InsertAnswerParams{
		OwnerID:         uuidToPg(owner),
		QuestionID:      uuidToPg(params.QuestionID),
		UserAnswer:      strPtr(params.UserAnswer),
		ReferenceAnswer: strPtr(params.ReferenceAnswer),
		Grade:           strPtr(params.Grade),
		Feedback:        strPtr(params.Feedback),
	})
	if err != nil {
		return nil, fmt.Errorf("inserting answer: %w", err)
	}

	return &Answer{
		ID:              pgToUUID(row.ID),
		OwnerID:         pgToUUID(row.OwnerID),
		QuestionID:      pgToUUID(row.QuestionID),
		UserAnswer:      strVal(row.UserAnswer),
		ReferenceAnswer: strVal(row.ReferenceAnswer),
		Grade:           strVal(row.Grade),
		Feedback:        strVal(row.Feedback),
		CreatedAt:       timeFromPg(row.CreatedAt),
	}, nil
}

// NearestLessons returns the k lessons whose embeddings are nearest to the
// query vector by cosine distance, ascending, at most k results.
//
// Approximate mode goes through the match_lessons SQL function in a single
// round trip. Exact mode runs the two-step path: a full-scan vector search
// followed by per-row lesson materialization; a lesson deleted between the
// two steps yields a dropped result, not an error.
func (s *Store) NearestLessons(ctx context.Context, queryVec []float32, k int32, exact bool) ([]LessonHit, error) {
	if len(queryVec) != s.embedder.Dimension() {
		return nil, fmt.Errorf("%w: query vector has %d dimensions, store expects %d",
			embed.ErrDimensionMismatch, len(queryVec), s.embedder.Dimension())
	}
	if k < 1 {
		return nil, fmt.Errorf("k must be >= 1, got %d", k)
	}

	queryCtx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	if !exact {
		rows, err := s.queries.MatchLessons(queryCtx, postgres.MatchLessonsParams{
			QueryEmbedding: pgvector.NewVector(queryVec),
			MatchCount:     k,
		})
		if err != nil {
			return nil, fmt.Errorf("match_lessons: %w", err)
		}

		hits := make([]LessonHit, 0, len(rows))
		for _, row := range rows {
			hits = append(hits, LessonHit{Lesson: lessonFromRow(row.Lesson), Distance: row.Distance})
		}
		return hits, nil
	}

	rows, err := s.queries.SearchEmbeddings(queryCtx, postgres.SearchEmbeddingsParams{
		QueryEmbedding: pgvector.NewVector(queryVec),
		SourceTable:    SourceLessons,
		ResultLimit:    k,
		Exact:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("searching embeddings: %w", err)
	}

	hits := make([]LessonHit, 0, len(rows))
	for _, row := range rows {
		lessonRow, err := s.queries.GetLesson(queryCtx, row.SourceID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				// Source row deleted after the embedding was read. For
				// lessons the cascade normally closes this window; drop
				// the hit either way.
				s.logger.Debug("dropping hit for deleted lesson", "lesson_id", pgToUUID(row.SourceID))
				continue
			}
			return nil, fmt.Errorf("materializing lesson %s: %w", pgToUUID(row.SourceID), err)
		}
		hits = append(hits, LessonHit{Lesson: lessonFromRow(lessonRow), Distance: row.Distance})
	}
	return hits, nil
}

// CountLessonEmbeddings reports how many lesson vectors are indexed.
func (s *Store) CountLessonEmbeddings(ctx context.Context) (int64, error) {
	count, err := s.queries.CountEmbeddings(ctx, SourceLessons)
	if err != nil {
		return 0, fmt.Errorf("counting embeddings: %w", err)
	}
	return count, nil
}

// IndexSeed pairs a lesson with its embedding vector.
type IndexSeed struct {
	Lesson Lesson
	Vector []float32
}

// LessonIndex returns up to limit (lesson, vector) pairs for seeding the
// in-process fallback index.
func (s *Store) LessonIndex(ctx context.Context, limit int32) ([]IndexSeed, error) {
	rows, err := s.queries.ListLessonEmbeddings(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("listing lesson embeddings: %w", err)
	}

	seeds := make([]IndexSeed, 0, len(rows))
	for _, row := range rows {
		seeds = append(seeds, IndexSeed{
			Lesson: lessonFromRow(row.Lesson),
			Vector: row.Embedding.Slice(),
		})
	}
	return seeds, nil
}

// readable reports whether caller may read the lesson.
// Public and ownerless lessons are readable by anyone.
func readable(l Lesson, caller uuid.UUID) bool {
	if l.Visibility == VisibilityPublic || l.OwnerID == uuid.Nil {
		return true
	}
	return l.OwnerID == caller
}

// owned reports whether caller may modify a record with the given owner.
// Ownerless records are only modifiable by anonymous callers.
func owned(owner, caller uuid.UUID) bool {
	return owner == caller
}

// ownerTag formats an owner id for embedding metadata; empty for anonymous.
func ownerTag(owner uuid.UUID) string {
	if owner == uuid.Nil {
		return ""
	}
	return owner.String()
}
