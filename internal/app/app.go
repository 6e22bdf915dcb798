package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/markdave123-py/studyrag/internal/config"
	"github.com/markdave123-py/studyrag/internal/core"
	"github.com/markdave123-py/studyrag/internal/core/embed"
	"github.com/markdave123-py/studyrag/internal/core/extract"
	"github.com/markdave123-py/studyrag/internal/core/ingest"
	"github.com/markdave123-py/studyrag/internal/core/llm"
	"github.com/markdave123-py/studyrag/internal/core/objectstore"
	"github.com/markdave123-py/studyrag/internal/core/retrieval"
	"github.com/markdave123-py/studyrag/internal/core/store"
)

// App owns every long-lived component and their shutdown order.
type App struct {
	Store     *store.PostgresStore
	Server    *Server
	generator *llm.GeminiGenerator
	closers   []func() error
	logger    *slog.Logger
}

func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pg, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info("database initialized and bootstrapped")

	provider, providerCloser, err := newProvider(ctx, cfg)
	if err != nil {
		_ = pg.Close()
		return nil, fmt.Errorf("init embedding provider: %w", err)
	}
	logger.Info("embedding provider ready", "provider", provider.Name())

	generator, err := llm.NewGeminiGenerator(ctx, cfg.AIAPIKey, cfg.GenModel)
	if err != nil {
		_ = pg.Close()
		return nil, fmt.Errorf("init text generator: %w", err)
	}

	var objects core.ObjectStore
	if cfg.ArchiveUploads() {
		s3, err := objectstore.NewS3Store(ctx, cfg.AwsAccessKey, cfg.AwsSecretKey, cfg.AwsRegion, cfg.BucketName)
		if err != nil {
			_ = pg.Close()
			return nil, fmt.Errorf("init object store: %w", err)
		}
		objects = s3
		logger.Info("upload archival enabled", "bucket", cfg.BucketName)
	}

	extractor := extract.New(logger)

	coordinator, err := ingest.NewCoordinator(pg, provider, extractor, ingest.Config{
		ChunkSize:   cfg.ChunkSize,
		Overlap:     cfg.ChunkOverlap,
		Concurrency: cfg.Concurrency,
	}, logger)
	if err != nil {
		_ = pg.Close()
		return nil, fmt.Errorf("init ingestion: %w", err)
	}

	engine, err := retrieval.NewEngine(pg, provider, logger)
	if err != nil {
		_ = pg.Close()
		return nil, fmt.Errorf("init retrieval: %w", err)
	}

	server := NewServer(cfg, pg, pg, coordinator, engine, generator, objects, logger)

	app := &App{
		Store:     pg,
		Server:    server,
		generator: generator,
		logger:    logger,
	}
	if providerCloser != nil {
		app.closers = append(app.closers, providerCloser)
	}
	return app, nil
}

// newProvider selects the embedding variant at construction time; nothing
// downstream branches on the provider kind again.
func newProvider(ctx context.Context, cfg *config.Config) (core.EmbeddingProvider, func() error, error) {
	switch cfg.EmbedProvider {
	case "gemini":
		g, err := embed.NewGeminiEmbedder(ctx, cfg.AIAPIKey, cfg.EmbedModel)
		if err != nil {
			return nil, nil, err
		}
		return g, g.Close, nil
	case "ollama":
		return embed.NewOllamaEmbedder(cfg.OllamaURL, cfg.OllamaModel), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown EMBED_PROVIDER %q", cfg.EmbedProvider)
	}
}

func (a *App) Close() {
	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil {
			a.logger.Warn("close failed", "err", err)
		}
	}
	if a.generator != nil {
		_ = a.generator.Close()
	}
	if a.Store != nil {
		_ = a.Store.Close()
	}
}
