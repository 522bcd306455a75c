package knowledge

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/coachkit/coachd/internal/log"
	"github.com/coachkit/coachd/internal/postgres"
)

// Conversions between domain types and the postgres row types.

// uuidToPg converts a uuid.UUID to pgtype.UUID. uuid.Nil maps to SQL NULL.
func uuidToPg(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: id != uuid.Nil}
}

// pgToUUID converts a pgtype.UUID to uuid.UUID. NULL maps to uuid.Nil.
func pgToUUID(id pgtype.UUID) uuid.UUID {
	if !id.Valid {
		return uuid.Nil
	}
	return uuid.UUID(id.Bytes)
}

func timeFromPg(ts pgtype.Timestamptz) time.Time {
	if !ts.Valid {
		return time.Time{}
	}
	return ts.Time
}

// strPtr converts an empty string to nil for nullable columns.
func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func strVal(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func lessonFromRow(row postgres.Lesson) Lesson {
	return Lesson{
		ID:         pgToUUID(row.ID),
		OwnerID:    pgToUUID(row.OwnerID),
		Title:      row.Title,
		Topic:      row.Topic,
		Subject:    strVal(row.Subject),
		Level:      strVal(row.Level),
		Content:    row.Content,
		Visibility: row.Visibility,
		CreatedAt:  timeFromPg(row.CreatedAt),
	}
}

func attachmentFromRow(row postgres.Attachment, logger log.Logger) *Attachment {
	var metadata map[string]string
	if len(row.Metadata) > 0 {
		if err := json.Unmarshal(row.Metadata, &metadata); err != nil {
			logger.Warn("failed to parse attachment metadata",
				"attachment_id", pgToUUID(row.ID), "error", err)
			metadata = make(map[string]string)
		}
	}

	return &Attachment{
		ID:        pgToUUID(row.ID),
		OwnerID:   pgToUUID(row.OwnerID),
		Bucket:    row.Bucket,
		Path:      row.Path,
		PublicURL: strVal(row.PublicURL),
		Metadata:  metadata,
		LessonID:  pgToUUID(row.LessonID),
		QueryID:   pgToUUID(row.QueryID),
		CreatedAt: timeFromPg(row.CreatedAt),
	}
}

func questionFromRow(row postgres.GeneratedQuestion) *GeneratedQuestion {
	return &GeneratedQuestion{
		ID:           pgToUUID(row.ID),
		OwnerID:      pgToUUID(row.OwnerID),
		LessonID:     pgToUUID(row.LessonID),
		QueryID:      pgToUUID(row.QueryID),
		QuestionText: row.QuestionText,
		AuthorModel:  strVal(row.AuthorModel),
		CreatedAt:    timeFromPg(row.CreatedAt),
	}
}
