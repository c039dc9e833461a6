// Package cli is the cobra command tree for the repoindexer binary:
// index/reindex/update/remove/status/stats/watch/serve subcommands wired against a
// single Orchestrator assembled from loaded configuration.
package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/repoindexer/repoindexer/internal/catalog"
	"github.com/repoindexer/repoindexer/internal/chunker"
	"github.com/repoindexer/repoindexer/internal/config"
	"github.com/repoindexer/repoindexer/internal/coordinator"
	"github.com/repoindexer/repoindexer/internal/embedding"
	"github.com/repoindexer/repoindexer/internal/forge"
	"github.com/repoindexer/repoindexer/internal/gitrepo"
	"github.com/repoindexer/repoindexer/internal/graphstore"
	"github.com/repoindexer/repoindexer/internal/incremental"
	"github.com/repoindexer/repoindexer/internal/ingestion"
	"github.com/repoindexer/repoindexer/internal/observability"
	"github.com/repoindexer/repoindexer/internal/orchestrator"
	"github.com/repoindexer/repoindexer/internal/recovery"
	"github.com/repoindexer/repoindexer/internal/security/auth"
	"github.com/repoindexer/repoindexer/internal/vectorstore"
)

// app holds every long-lived component a subcommand might need, built
// once from loaded configuration.
type app struct {
	Config       *config.Config
	Logger       *observability.Logger
	Metrics      *observability.MetricsCollector
	Orchestrator *orchestrator.Orchestrator
	VectorStore  *vectorstore.SQLiteStore
	JWTManager   *auth.JWTManager
	sentryOn     bool
}

// Close flushes the Sentry client (if enabled) and closes the vector
// store. Subcommands defer this after a successful buildApp call.
func (a *app) Close() {
	if a.sentryOn {
		sentry.Flush(2 * time.Second)
	}
	if a.VectorStore != nil {
		_ = a.VectorStore.Close()
	}
}

func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	if cfg.Sentry.Enabled {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.Sentry.Environment,
			SampleRate:  cfg.Sentry.SampleRate,
		}); err != nil {
			return nil, fmt.Errorf("initialize sentry: %w", err)
		}
	}

	logger := observability.NewLogger(observability.Config{
		Level:         cfg.Logging.Level,
		Format:        cfg.Logging.Format,
		SentryEnabled: cfg.Sentry.Enabled,
	})

	var metrics *observability.MetricsCollector
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetricsCollector("repoindexer")
	}

	var jwtManager *auth.JWTManager
	if cfg.Auth.Enabled {
		jwtManager, err = buildJWTManager(cfg.Auth)
		if err != nil {
			return nil, fmt.Errorf("build jwt manager: %w", err)
		}
	}

	vstore, err := vectorstore.NewSQLiteStore(cfg.Vector.DSN)
	if err != nil {
		return nil, fmt.Errorf("open vector store: %w", err)
	}

	var graphStore graphstore.Store
	if cfg.Graph.Enabled {
		graphStore = graphstore.NewInMemoryStore()
	}

	embedder, err := buildEmbedder(cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("build embedding provider: %w", err)
	}

	cloner := &gitrepo.Repo{Token: cfg.Forge.Token}
	store := catalog.NewStore(cfg.Catalog.Path)

	ingest := &ingestion.Pipeline{
		Cloner:   cloner,
		Chunker:  chunker.NewLineWindowChunker(200, 0),
		Embedder: embedder,
		Store:    vstore,
		Logger:   logger,
		Metrics:  metrics,
	}

	pipeline := &incremental.Pipeline{
		Chunker:  chunker.NewLineWindowChunker(200, 0),
		Embedder: embedder,
		Store:    vstore,
		Graph:    graphStore,
		Logger:   logger,
	}

	coord := &coordinator.Coordinator{
		Catalog:             store,
		Forge:               forge.NewGitHubClient(ctx, cfg.Forge.Token),
		Puller:              cloner,
		Pipeline:            pipeline,
		Logger:              logger,
		Metrics:             metrics,
		ChangeFileThreshold: cfg.Indexing.ChangeFileThreshold,
		UpdateHistoryLimit:  cfg.Indexing.UpdateHistoryLimit,
	}

	orch := orchestrator.New(store, ingest, coord, logger, "./data/repos")
	orch.FileBatchSize = cfg.Indexing.FileBatchSize
	orch.EmbeddingBatchSize = cfg.Indexing.EmbeddingBatchSize
	orch.Graph = graphStore

	if err := recoverInterruptedUpdates(ctx, store, logger); err != nil {
		return nil, fmt.Errorf("scan for interrupted updates: %w", err)
	}

	return &app{
		Config:       cfg,
		Logger:       logger,
		Metrics:      metrics,
		Orchestrator: orch,
		VectorStore:  vstore,
		JWTManager:   jwtManager,
		sentryOn:     cfg.Sentry.Enabled,
	}, nil
}

// buildJWTManager reads the configured PEM key files and constructs the
// bearer-auth manager the status HTTP surface uses when auth is enabled.
func buildJWTManager(cfg config.AuthConfig) (*auth.JWTManager, error) {
	privateKeyPEM, err := os.ReadFile(cfg.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	publicKeyPEM, err := os.ReadFile(cfg.PublicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	return auth.NewJWTManager(string(privateKeyPEM), string(publicKeyPEM), cfg.Issuer, cfg.Audience, cfg.ExpiryMinutes)
}

// recoverInterruptedUpdates scans for records whose updateInProgress
// flag survived a crash and marks each as needing a forced re-index,
// so a stale durable lease never silently blocks the next update.
func recoverInterruptedUpdates(ctx context.Context, store *catalog.Store, logger *observability.Logger) error {
	detector := &recovery.Detector{Catalog: store}
	found, err := detector.Scan(time.Now())
	if err != nil {
		return err
	}
	for _, info := range found {
		if _, err := detector.MarkAsInterrupted(info.RepositoryName); err != nil {
			return fmt.Errorf("mark %s as interrupted: %w", info.RepositoryName, err)
		}
		if logger != nil {
			logger.WarnContext(ctx, "cli: recovered interrupted update", "repository", info.RepositoryName, "elapsed_ms", info.ElapsedMs)
		}
	}
	return nil
}

func buildEmbedder(cfg config.EmbeddingConfig) (embedding.Provider, error) {
	switch cfg.Provider {
	case "", "mock":
		return embedding.NewMock(cfg.Dimensions), nil
	case "http":
		return embedding.NewHTTPProvider(cfg.Endpoint, cfg.APIKey, cfg.Model, cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
}
