// Package knowledge manages the learning coach's source records and their
// vector embeddings: lessons, attachments, user queries, generated practice
// questions, answers, and the embeddings table that powers nearest-neighbor
// retrieval.
//
// The Store is the single write path. Whenever embeddable text is created or
// updated it computes the embedding through the configured Embedder and
// upserts the vector row tagged with source_table/source_id, so the search
// index never drifts from the source of truth.
//
// Owner identity is always an explicit argument. The database mirrors the
// same rule with a row-level security policy on lessons; the Store applies it
// in the application layer as well so misconfigured connections fail closed.
package knowledge
