// Package app assembles the application: configuration, logging, database,
// the Gemini clients, and the chat and research services.
package app

import (
	"context"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quill0/quill/internal/chat"
	"github.com/quill0/quill/internal/compose"
	"github.com/quill0/quill/internal/config"
	"github.com/quill0/quill/internal/database"
	"github.com/quill0/quill/internal/docstore"
	"github.com/quill0/quill/internal/ingest"
	"github.com/quill0/quill/internal/llm"
	"github.com/quill0/quill/internal/log"
	"github.com/quill0/quill/internal/observability"
	"github.com/quill0/quill/internal/research"
	"github.com/quill0/quill/internal/retrieval"
	"github.com/quill0/quill/internal/session"
	"github.com/quill0/quill/internal/websearch"
)

// App is the application container. Fields are wired once by Setup and
// read-only afterwards.
type App struct {
	Config   *config.Config
	Logger   log.Logger
	Genkit   *genkit.Genkit
	Embedder ai.Embedder
	Pool     *pgxpool.Pool

	DocStore docstore.Store
	Registry session.Registry
	Chat     *chat.Service
	Research *research.Service

	shutdownTracing observability.ShutdownFunc
}

// Setup builds the full dependency graph. The database schema is migrated
// before any component touches the pool.
func Setup(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	logger := log.New(log.Config{Level: log.ParseLevel(cfg.LogLevel), JSON: cfg.LogJSON})

	shutdownTracing, err := observability.Setup(ctx, tracingEndpoint(cfg))
	if err != nil {
		return nil, fmt.Errorf("setting up tracing: %w", err)
	}

	if err := database.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	pool, err := database.Connect(ctx, cfg.PostgresURL())
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	embedder := googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)

	store, err := docstore.NewPostgres(pool, embedder, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating document store: %w", err)
	}

	registry, err := session.NewStore(pool, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating session store: %w", err)
	}

	web, err := websearch.New(ctx, cfg.ModelName, cfg.Temperature, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating web search client: %w", err)
	}

	answerer, err := llm.NewGenkitGenerator(g, cfg.ModelName, compose.System(), logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating answer generator: %w", err)
	}
	helper, err := llm.NewGenkitGenerator(g, cfg.ModelName, "", logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating helper generator: %w", err)
	}

	orch := retrieval.New(store, web,
		cfg.SimilarityThreshold, cfg.TopK, cfg.ContextChars, cfg.SourceTimeout, logger)

	ingestor := ingest.NewIngestor(ingest.NewFetcher(logger), store, cfg.ChunkSize, cfg.ChunkOverlap, logger)

	chatSvc := chat.NewService(
		registry,
		ingest.NewDetector(helper, logger),
		ingestor,
		llm.NewRewriter(helper, logger),
		llm.NewIntentDetector(helper, logger),
		llm.NewTitler(helper, logger),
		orch,
		answerer,
		cfg.WebSearchEnabled,
		logger,
	)

	researchStore, err := research.NewPostgresStore(pool, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating research store: %w", err)
	}
	researchSvc := research.NewService(helper, researchStore, logger)

	logger.Info("application initialized",
		"model", cfg.ModelName,
		"embedder", cfg.EmbedderModel,
		"web_search", cfg.WebSearchEnabled,
	)

	return &App{
		Config:          cfg,
		Logger:          logger,
		Genkit:          g,
		Embedder:        embedder,
		Pool:            pool,
		DocStore:        store,
		Registry:        registry,
		Chat:            chatSvc,
		Research:        researchSvc,
		shutdownTracing: shutdownTracing,
	}, nil
}

// Close releases all held resources.
func (a *App) Close() error {
	var firstErr error
	if a.shutdownTracing != nil {
		if err := a.shutdownTracing(context.Background()); err != nil {
			firstErr = err
		}
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
	a.Logger.Info("application shut down")
	return firstErr
}

func tracingEndpoint(cfg *config.Config) string {
	if !cfg.TracingEnabled {
		return ""
	}
	return cfg.OTLPEndpoint
}
