package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coachkit/coachd/internal/coach"
	"github.com/coachkit/coachd/internal/config"
	"github.com/coachkit/coachd/internal/embed"
	"github.com/coachkit/coachd/internal/knowledge"
	"github.com/coachkit/coachd/internal/log"
	"github.com/coachkit/coachd/internal/postgres"
	"github.com/coachkit/coachd/internal/retrieve"
)

// fallbackSeedLimit caps how many lesson vectors are loaded into the
// in-process fallback index at startup.
const fallbackSeedLimit = 10000

// stack holds the wired application components shared by serve and ask.
type stack struct {
	Pool      *pgxpool.Pool
	Store     *knowledge.Store
	Retriever *retrieve.Retriever
	Coach     *coach.Service
}

// Close releases the database pool.
func (s *stack) Close() {
	if s.Pool != nil {
		s.Pool.Close()
	}
}

// buildStack connects to PostgreSQL and wires the embedder, lesson store,
// retriever, and coach service from configuration.
func buildStack(ctx context.Context, cfg *config.Config, logger log.Logger) (*stack, error) {
	pool, err := postgres.Open(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("connecting to PostgreSQL: %w", err)
	}

	queries := postgres.New(pool)

	embedder := embed.NewCohere(embed.CohereConfig{
		BaseURL:   cfg.CohereBaseURL,
		APIKey:    cfg.CohereAPIKey,
		Model:     cfg.CohereModel,
		Dimension: cfg.EmbedDimension,
	}, logger.With("component", "embed"))

	store := knowledge.New(queries, embedder, logger.With("component", "knowledge"))

	// Snapshot of indexed lessons, consulted only when the database search
	// fails mid-request. Taken once at startup; it is a degraded mode, not
	// a replica.
	fallback := retrieve.NewMemoryIndex()
	if seeds, err := store.LessonIndex(ctx, fallbackSeedLimit); err != nil {
		logger.Warn("seeding fallback index", "error", err)
	} else {
		for _, seed := range seeds {
			fallback.Add(seed.Lesson, seed.Vector)
		}
		logger.Debug("fallback index seeded", "lessons", fallback.Len())
	}

	retriever := retrieve.New(
		embedder,
		store,
		fallback,
		cfg.TopK,
		cfg.SearchMode == config.SearchModeExact,
		logger.With("component", "retrieve"),
	)

	generator := coach.NewMistral(coach.MistralConfig{
		BaseURL:     cfg.MistralBaseURL,
		APIKey:      cfg.MistralAPIKey,
		Model:       cfg.MistralModel,
		OCRModel:    cfg.MistralOCRModel,
		Temperature: cfg.Temperature,
		TopP:        cfg.TopP,
		MaxTokens:   cfg.MaxTokens,
		Timeout:     time.Duration(cfg.MistralTimeoutSec) * time.Second,
	}, logger.With("component", "mistral"))

	service := coach.NewService(
		retriever,
		generator,
		store,
		cfg.MistralModel,
		cfg.TopK,
		logger.With("component", "coach"),
	)

	return &stack{
		Pool:      pool,
		Store:     store,
		Retriever: retriever,
		Coach:     service,
	}, nil
}

// newLogger builds the process logger from the logging configuration.
func newLogger(cfg *config.Config) log.Logger {
	return log.New(log.Config{
		Level: logLevel(cfg.LogLevel),
		JSON:  cfg.LogJSON,
	})
}

// logLevel maps a configured level name to a slog level. Unknown names
// fall back to info.
func logLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
