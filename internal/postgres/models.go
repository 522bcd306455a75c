package postgres

import (
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pgvector/pgvector-go"
)

// Row and parameter types for the query methods in queries.go. They mirror
// the table definitions in db/migrations and use pgtype for nullable columns.

// Lesson is a row of the lessons table.
type Lesson struct {
	ID         pgtype.UUID
	OwnerID    pgtype.UUID
	Title      string
	Topic      string
	Subject    *string
	Level      *string
	Content    string
	Visibility string
	CreatedAt  pgtype.Timestamptz
}

// UserQuery is a row of the user_queries table.
type UserQuery struct {
	ID        pgtype.UUID
	OwnerID   pgtype.UUID
	QueryText string
	CreatedAt pgtype.Timestamptz
}

// Attachment is a row of the attachments table.
type Attachment struct {
	ID        pgtype.UUID
	OwnerID   pgtype.UUID
	Bucket    string
	Path      string
	PublicURL *string
	Metadata  []byte
	LessonID  pgtype.UUID
	QueryID   pgtype.UUID
	CreatedAt pgtype.Timestamptz
}

// GeneratedQuestion is a row of the generated_questions table.
type GeneratedQuestion struct {
	ID           pgtype.UUID
	OwnerID      pgtype.UUID
	LessonID     pgtype.UUID
	QueryID      pgtype.UUID
	QuestionText string
	AuthorModel  *string
	CreatedAt    pgtype.Timestamptz
}

// Answer is a row of the answers table.
type Answer struct {
	ID              pgtype.UUID
	OwnerID         pgtype.UUID
	QuestionID      pgtype.UUID
	UserAnswer      *string
	ReferenceAnswer *string
	Grade           *string
	Feedback        *string
	CreatedAt       pgtype.Timestamptz
}

// InsertLessonParams holds the columns for a lesson insert.
type InsertLessonParams struct {
	OwnerID    pgtype.UUID
	Title      string
	Topic      string
	Subject    *string
	Level      *string
	Content    string
	Visibility string
}

// UpdateLessonParams holds the columns for a lesson content update.
type UpdateLessonParams struct {
	ID      pgtype.UUID
	Title   string
	Topic   string
	Subject *string
	Level   *string
	Content string
}

// ListLessonsParams pages lessons for one owner, newest first.
type ListLessonsParams struct {
	OwnerID pgtype.UUID
	Limit   int32
	Offset  int32
}

// InsertUserQueryParams holds the columns for a user query insert.
type InsertUserQueryParams struct {
	OwnerID   pgtype.UUID
	QueryText string
}

// InsertAttachmentParams holds the columns for an attachment insert.
type InsertAttachmentParams struct {
	OwnerID   pgtype.UUID
	Bucket    string
	Path      string
	PublicURL *string
	Metadata  []byte
	LessonID  pgtype.UUID
	QueryID   pgtype.UUID
}

// InsertGeneratedQuestionParams holds the columns for a question insert.
type InsertGeneratedQuestionParams struct {
	OwnerID      pgtype.UUID
	LessonID     pgtype.UUID
	QueryID      pgtype.UUID
	QuestionText string
	AuthorModel  *string
}

// InsertAnswerParams holds the columns for an answer insert.
type InsertAnswerParams struct {
	OwnerID         pgtype.UUID
	QuestionID      pgtype.UUID
	UserAnswer      *string
	ReferenceAnswer *string
	Grade           *string
	Feedback        *string
}

// UpsertEmbeddingParams writes one embedding row keyed by source tag.
// The direct foreign keys are filled from SourceTable/SourceID so cascade
// deletes stay wired without the caller repeating itself.
type UpsertEmbeddingParams struct {
	SourceTable string
	SourceID    pgtype.UUID
	Embedding   pgvector.Vector
	Metadata    []byte
}

// DeleteEmbeddingsBySourceParams identifies the embedding rows of one source row.
type DeleteEmbeddingsBySourceParams struct {
	SourceTable string
	SourceID    pgtype.UUID
}

// SearchEmbeddingsParams drives a nearest-neighbor query over embeddings.
type SearchEmbeddingsParams struct {
	QueryEmbedding pgvector.Vector
	SourceTable    string
	ResultLimit    int32
	// Exact disables index scans for the query so the true nearest
	// neighbors are returned regardless of ivfflat recall.
	Exact bool
}

// SearchEmbeddingsRow is one nearest-neighbor hit before the source join.
type SearchEmbeddingsRow struct {
	SourceID pgtype.UUID
	Metadata []byte
	Distance float64
}

// MatchLessonsParams drives the match_lessons SQL function.
type MatchLessonsParams struct {
	QueryEmbedding pgvector.Vector
	MatchCount     int32
}

// MatchLessonsRow is one row returned by match_lessons: the joined lesson
// plus its cosine distance to the query vector.
type MatchLessonsRow struct {
	Lesson
	Distance float64
}

// LessonEmbeddingRow joins a lesson with its stored vector, used to seed the
// in-process fallback index.
type LessonEmbeddingRow struct {
	Lesson
	Embedding pgvector.Vector
}
