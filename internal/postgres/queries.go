package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Queries implements the domain stores' Querier interfaces with hand-written
// SQL over a pgx connection pool. All statements are parameterized.
type Queries struct {
	pool *pgxpool.Pool
}

// New creates a Queries instance backed by the given pool.
func New(pool *pgxpool.Pool) *Queries {
	return &Queries{pool: pool}
}

const lessonColumns = "id, owner_id, title, topic, subject, level, content, visibility, created_at"

func scanLesson(row pgx.Row) (Lesson, error) {
	var l Lesson
	err := row.Scan(&l.ID, &l.OwnerID, &l.Title, &l.Topic, &l.Subject, &l.Level,
		&l.Content, &l.Visibility, &l.CreatedAt)
	return l, err
}

// InsertLesson inserts a lesson and returns the stored row.
func (q *Queries) InsertLesson(ctx context.Context, arg InsertLessonParams) (Lesson, error) {
	row := q.pool.QueryRow(ctx, `
		INSERT INTO lessons (owner_id, title, topic, subject, level, content, visibility)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+lessonColumns,
		arg.OwnerID, arg.Title, arg.Topic, arg.Subject, arg.Level, arg.Content, arg.Visibility)
	return scanLesson(row)
}

// GetLesson fetches a lesson by id. Returns pgx.ErrNoRows if absent.
func (q *Queries) GetLesson(ctx context.Context, id pgtype.UUID) (Lesson, error) {
	row := q.pool.QueryRow(ctx, `SELECT `+lessonColumns+` FROM lessons WHERE id = $1`, id)
	return scanLesson(row)
}

// ListLessonsByOwner pages an owner's lessons, newest first.
func (q *Queries) ListLessonsByOwner(ctx context.Context, arg ListLessonsParams) ([]Lesson, error) {
	rows, err := q.pool.Query(ctx, `
		SELECT `+lessonColumns+`
		FROM lessons
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		arg.OwnerID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lessons []Lesson
	for rows.Next() {
		l, err := scanLesson(rows)
		if err != nil {
			return nil, err
		}
		lessons = append(lessons, l)
	}
	return lessons, rows.Err()
}

// UpdateLesson updates lesson fields and returns the stored row.
// Returns pgx.ErrNoRows if the lesson does not exist.
func (q *Queries) UpdateLesson(ctx context.Context, arg UpdateLessonParams) (Lesson, error) {
	row := q.pool.QueryRow(ctx, `
		UPDATE lessons
		SET title = $2, topic = $3, subject = $4, level = $5, content = $6
		WHERE id = $1
		RETURNING `+lessonColumns,
		arg.ID, arg.Title, arg.Topic, arg.Subject, arg.Level, arg.Content)
	return scanLesson(row)
}

// DeleteLesson removes a lesson row. Embedding rows referencing it are
// removed by the ON DELETE CASCADE foreign key. Returns rows affected.
func (q *Queries) DeleteLesson(ctx context.Context, id pgtype.UUID) (int64, error) {
	tag, err := q.pool.Exec(ctx, `DELETE FROM lessons WHERE id = $1`, id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// InsertUserQuery records a submitted text query.
func (q *Queries) InsertUserQuery(ctx context.Context, arg InsertUserQueryParams) (UserQuery, error) {
	var uq UserQuery
	err := q.pool.QueryRow(ctx, `
		INSERT INTO user_queries (owner_id, query_text)
		VALUES ($1, $2)
		RETURNING id, owner_id, query_text, created_at`,
		arg.OwnerID, arg.QueryText).
		Scan(&uq.ID, &uq.OwnerID, &uq.QueryText, &uq.CreatedAt)
	return uq, err
}

// InsertAttachment records an uploaded attachment's location and metadata.
func (q *Queries) InsertAttachment(ctx context.Context, arg InsertAttachmentParams) (Attachment, error) {
	var a Attachment
	err := q.pool.QueryRow(ctx, `
		INSERT INTO attachments (owner_id, bucket, path, public_url, metadata, lesson_id, query_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, owner_id, bucket, path, public_url, metadata, lesson_id, query_id, created_at`,
		arg.OwnerID, arg.Bucket, arg.Path, arg.PublicURL, arg.Metadata, arg.LessonID, arg.QueryID).
		Scan(&a.ID, &a.OwnerID, &a.Bucket, &a.Path, &a.PublicURL, &a.Metadata,
			&a.LessonID, &a.QueryID, &a.CreatedAt)
	return a, err
}

// ListAttachmentsByLesson lists attachments linked to a lesson.
func (q *Queries) ListAttachmentsByLesson(ctx context.Context, lessonID pgtype.UUID) ([]Attachment, error) {
	rows, err := q.pool.Query(ctx, `
		SELECT id, owner_id, bucket, path, public_url, metadata, lesson_id, query_id, created_at
		FROM attachments
		WHERE lesson_id = $1
		ORDER BY created_at DESC`, lessonID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attachments []Attachment
	for rows.Next() {
		var a Attachment
		if err := rows.Scan(&a.ID, &a.OwnerID, &a.Bucket, &a.Path, &a.PublicURL,
			&a.Metadata, &a.LessonID, &a.QueryID, &a.CreatedAt); err != nil {
			return nil, err
		}
		attachments = append(attachments, a)
	}
	return attachments, rows.Err()
}

// InsertGeneratedQuestion records a model-generated practice question.
func (q *Queries) InsertGeneratedQuestion(ctx context.Context, arg InsertGeneratedQuestionParams) (GeneratedQuestion, error) {
	var g GeneratedQuestion
	err := q.pool.QueryRow(ctx, `
		INSERT INTO generated_questions (owner_id, lesson_id, query_id, question_text, author_model)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, owner_id, lesson_id, query_id, question_text, author_model, created_at`,
		arg.OwnerID, arg.LessonID, arg.QueryID, arg.QuestionText, arg.AuthorModel).
		Scan(&g.ID, &g.OwnerID, &g.LessonID, &g.QueryID, &g.QuestionText, &g.AuthorModel, &g.CreatedAt)
	return g, err
}

// GetGeneratedQuestion fetches one question by id.
func (q *Queries) GetGeneratedQuestion(ctx context.Context, id pgtype.UUID) (GeneratedQuestion, error) {
	var g GeneratedQuestion
	err := q.pool.QueryRow(ctx, `
		SELECT id, owner_id, lesson_id, query_id, question_text, author_model, created_at
		FROM generated_questions WHERE id = $1`, id).
		Scan(&g.ID, &g.OwnerID, &g.LessonID, &g.QueryID, &g.QuestionText, &g.AuthorModel, &g.CreatedAt)
	return g, err
}

// InsertAnswer records a user's answer with the model's reference and grade.
func (q *Queries) InsertAnswer(ctx context.Context, arg InsertAnswerParams) (Answer, error) {
	var a Answer
	err := q.pool.QueryRow(ctx, `
		INSERT INTO answers (owner_id, question_id, user_answer, reference_answer, grade, feedback)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, owner_id, question_id, user_answer, reference_answer, grade, feedback, created_at`,
		arg.OwnerID, arg.QuestionID, arg.UserAnswer, arg.ReferenceAnswer, arg.Grade, arg.Feedback).
		Scan(&a.ID, &a.OwnerID, &a.QuestionID, &a.UserAnswer, &a.ReferenceAnswer,
			&a.Grade, &a.Feedback, &a.CreatedAt)
	return a, err
}

// UpsertEmbedding writes the embedding row for one source row, replacing any
// previous vector for the same source tag. A wrong-length vector is rejected
// by the vector(384) column; nothing is written in that case.
func (q *Queries) UpsertEmbedding(ctx context.Context, arg UpsertEmbeddingParams) (pgtype.UUID, error) {
	var lessonID, queryID, questionID pgtype.UUID
	switch arg.SourceTable {
	case "lessons":
		lessonID = arg.SourceID
	case "user_queries":
		queryID = arg.SourceID
	case "generated_questions":
		questionID = arg.SourceID
	}

	var id pgtype.UUID
	err := q.pool.QueryRow(ctx, `
		INSERT INTO embeddings (source_table, source_id, embedding, metadata, lesson_id, query_id, generated_question_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (source_table, source_id)
		DO UPDATE SET embedding = EXCLUDED.embedding, metadata = EXCLUDED.metadata
		RETURNING id`,
		arg.SourceTable, arg.SourceID, arg.Embedding, arg.Metadata,
		lessonID, queryID, questionID).
		Scan(&id)
	return id, err
}

// DeleteEmbeddingsBySource removes the embedding rows of one source row.
func (q *Queries) DeleteEmbeddingsBySource(ctx context.Context, arg DeleteEmbeddingsBySourceParams) error {
	_, err := q.pool.Exec(ctx,
		`DELETE FROM embeddings WHERE source_table = $1 AND source_id = $2`,
		arg.SourceTable, arg.SourceID)
	return err
}

// CountEmbeddings counts embedding rows for one source table.
func (q *Queries) CountEmbeddings(ctx context.Context, sourceTable string) (int64, error) {
	var count int64
	err := q.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM embeddings WHERE source_table = $1`, sourceTable).
		Scan(&count)
	return count, err
}

// SearchEmbeddings returns the ResultLimit nearest embeddings to the query
// vector by cosine distance, ascending, restricted to one source table.
//
// Approximate mode lets the planner use the ivfflat index; exact mode runs
// inside a transaction with index scans disabled, forcing a full scan so the
// true nearest neighbors are returned. Ties in distance follow the store's
// row order and are not deterministic.
func (q *Queries) SearchEmbeddings(ctx context.Context, arg SearchEmbeddingsParams) ([]SearchEmbeddingsRow, error) {
	const searchSQL = `
		SELECT source_id, metadata, embedding <=> $1 AS distance
		FROM embeddings
		WHERE source_table = $2
		ORDER BY embedding <=> $1
		LIMIT $3`

	if !arg.Exact {
		rows, err := q.pool.Query(ctx, searchSQL, arg.QueryEmbedding, arg.SourceTable, arg.ResultLimit)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		return collectSearchRows(rows)
	}

	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning exact search transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// SET LOCAL scopes the planner overrides to this transaction only.
	if _, err := tx.Exec(ctx, `SET LOCAL enable_indexscan = off`); err != nil {
		return nil, fmt.Errorf("disabling index scan: %w", err)
	}
	if _, err := tx.Exec(ctx, `SET LOCAL enable_bitmapscan = off`); err != nil {
		return nil, fmt.Errorf("disabling bitmap scan: %w", err)
	}

	rows, err := tx.Query(ctx, searchSQL, arg.QueryEmbedding, arg.SourceTable, arg.ResultLimit)
	if err != nil {
		return nil, err
	}
	results, err := collectSearchRows(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing exact search transaction: %w", err)
	}
	return results, nil
}

func collectSearchRows(rows pgx.Rows) ([]SearchEmbeddingsRow, error) {
	var results []SearchEmbeddingsRow
	for rows.Next() {
		var r SearchEmbeddingsRow
		if err := rows.Scan(&r.SourceID, &r.Metadata, &r.Distance); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// MatchLessons invokes the match_lessons SQL function: nearest lesson
// embeddings joined against their lessons, ascending by cosine distance.
func (q *Queries) MatchLessons(ctx context.Context, arg MatchLessonsParams) ([]MatchLessonsRow, error) {
	rows, err := q.pool.Query(ctx, `SELECT * FROM match_lessons($1, $2)`,
		arg.QueryEmbedding, arg.MatchCount)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []MatchLessonsRow
	for rows.Next() {
		var r MatchLessonsRow
		if err := rows.Scan(&r.ID, &r.OwnerID, &r.Title, &r.Topic, &r.Subject, &r.Level,
			&r.Content, &r.Visibility, &r.CreatedAt, &r.Distance); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// ListLessonEmbeddings streams lessons joined with their vectors for the
// in-process fallback index.
func (q *Queries) ListLessonEmbeddings(ctx context.Context, limit int32) ([]LessonEmbeddingRow, error) {
	rows, err := q.pool.Query(ctx, `
		SELECT l.id, l.owner_id, l.title, l.topic, l.subject, l.level,
		       l.content, l.visibility, l.created_at, e.embedding
		FROM embeddings e
		JOIN lessons l ON l.id = e.source_id
		WHERE e.source_table = 'lessons'
		ORDER BY e.created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []LessonEmbeddingRow
	for rows.Next() {
		var r LessonEmbeddingRow
		if err := rows.Scan(&r.ID, &r.OwnerID, &r.Title, &r.Topic, &r.Subject, &r.Level,
			&r.Content, &r.Visibility, &r.CreatedAt, &r.Embedding); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
