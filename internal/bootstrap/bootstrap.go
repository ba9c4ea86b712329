package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	httpadapter "github.com/ValentinOzeel/RAGalactic/internal/adapters/http"
	"github.com/ValentinOzeel/RAGalactic/internal/config"
	"github.com/ValentinOzeel/RAGalactic/internal/core/domain"
	"github.com/ValentinOzeel/RAGalactic/internal/core/ports"
	"github.com/ValentinOzeel/RAGalactic/internal/core/usecase"
	"github.com/ValentinOzeel/RAGalactic/internal/infrastructure/chunking"
	"github.com/ValentinOzeel/RAGalactic/internal/infrastructure/extractor/pdftext"
	"github.com/ValentinOzeel/RAGalactic/internal/infrastructure/llm/ollama"
	"github.com/ValentinOzeel/RAGalactic/internal/infrastructure/queue/nats"
	"github.com/ValentinOzeel/RAGalactic/internal/infrastructure/repository/postgres"
	"github.com/ValentinOzeel/RAGalactic/internal/infrastructure/resilience"
	"github.com/ValentinOzeel/RAGalactic/internal/infrastructure/storage/localfs"
	"github.com/ValentinOzeel/RAGalactic/internal/infrastructure/vector/qdrant"
	"github.com/ValentinOzeel/RAGalactic/internal/observability/logging"
	"github.com/ValentinOzeel/RAGalactic/internal/observability/metrics"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	Ingestor ports.DocumentIngestor
	Catalog  ports.DocumentCatalog
	Sessions *httpadapter.SessionManager

	ServerMetrics *metrics.HTTPServerMetrics
	IngestMetrics *metrics.IngestMetrics

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger := logging.NewJSONLogger("ragalactic", cfg.LogLevel)

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	registry := postgres.NewRegistryRepository(db)
	if err := registry.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	stager, err := localfs.New(cfg.StagingPath)
	if err != nil {
		return nil, fmt.Errorf("init staging storage: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig())

	// Ingestion survives a missing broker: events are best effort and the
	// pipeline tolerates a nil publisher.
	var events ports.EventPublisher
	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		logger.Warn("event publishing disabled", "error", err)
	} else {
		events = queue
	}

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaChatModel, cfg.OllamaEmbedModel, executor)
	embedder := ollama.NewEmbedder(ollamaClient)
	model := ollama.NewChatModel(ollamaClient)

	vectors := qdrant.New(cfg.QdrantURL, cfg.QdrantCollectionPrefix)
	chunker := chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	extractor := pdftext.NewExtractor(stager)

	ingestor := usecase.NewIngestionPipeline(registry, stager, extractor, chunker, embedder, vectors, events, cfg.RetrievalTopK, logger)
	catalog := usecase.NewCatalogUseCase(registry)
	sessions := httpadapter.NewSessionManager(func(sc domain.SessionConfig) (ports.TurnRunner, error) {
		if sc.TopK == 0 {
			sc.TopK = cfg.RetrievalTopK
		}
		return usecase.NewConversationEngine(embedder, vectors, model, sc)
	})

	serverMetrics := metrics.NewHTTPServerMetrics("ragalactic")
	ingestMetrics := metrics.NewIngestMetrics("ragalactic", serverMetrics)

	return &App{
		Config: cfg,
		Logger: logger,

		Ingestor: ingestor,
		Catalog:  catalog,
		Sessions: sessions,

		ServerMetrics: serverMetrics,
		IngestMetrics: ingestMetrics,

		closeFn: func() {
			if queue != nil {
				queue.Close()
			}
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
