package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lemur-data/lemur-engine/pkg/config"
	"github.com/lemur-data/lemur-engine/pkg/database"
	"github.com/lemur-data/lemur-engine/pkg/handlers"
	"github.com/lemur-data/lemur-engine/pkg/llm"
	"github.com/lemur-data/lemur-engine/pkg/logging"
	"github.com/lemur-data/lemur-engine/pkg/mcp"
	"github.com/lemur-data/lemur-engine/pkg/mcp/tools"
	"github.com/lemur-data/lemur-engine/pkg/middleware"
	"github.com/lemur-data/lemur-engine/pkg/repositories"
	"github.com/lemur-data/lemur-engine/pkg/retry"
	"github.com/lemur-data/lemur-engine/pkg/services"
	"github.com/lemur-data/lemur-engine/pkg/storage"
)

// Version is set at build time via ldflags
var Version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsLocal() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// backend is the wired persistence layer plus whatever has to be closed on shutdown.
type backend struct {
	store            *repositories.Store
	tenantMiddleware handlers.TenantMiddleware
	closers          []func()
}

func (b *backend) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Log startup configuration
	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("addr", cfg.Addr()),
		zap.String("store", cfg.Store.Backend),
		zap.String("redis_host", cfg.Redis.Host),
		zap.Bool("archive", cfg.Archive.Enabled()),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.Bool("mcp", cfg.MCP.Enabled))

	be, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer be.close()

	cache, redisClient, err := openProfileCache(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	archive := storage.NewNoopArchive()
	if cfg.Archive.Enabled() {
		s3Archive, err := storage.NewS3Archive(ctx, &cfg.Archive, logger)
		if err != nil {
			return fmt.Errorf("failed to create archive: %w", err)
		}
		archive = s3Archive
	}

	chatClient, err := llm.NewChatClient(&cfg.LLM, logger)
	if err != nil {
		return fmt.Errorf("failed to create LLM client: %w", err)
	}

	policy, err := services.PolicyFromConfig(cfg.Profiling)
	if err != nil {
		return fmt.Errorf("invalid profiling configuration: %w", err)
	}

	locks := services.NewProjectLocks()
	projectService := services.NewProjectService(be.store, cache, locks, logger)
	datasetService := services.NewDatasetService(be.store, cache, archive, locks, policy, logger)
	chatService := services.NewChatService(projectService, datasetService, be.store.Conversations, chatClient, logger)

	mux := http.NewServeMux()

	// Register handlers
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewProjectsHandler(projectService, logger).RegisterRoutes(mux, be.tenantMiddleware)
	handlers.NewDatasetsHandler(datasetService, logger).RegisterRoutes(mux, be.tenantMiddleware)
	handlers.NewRelationshipsHandler(datasetService, logger).RegisterRoutes(mux, be.tenantMiddleware)
	handlers.NewJoinsHandler(datasetService, logger).RegisterRoutes(mux, be.tenantMiddleware)
	handlers.NewChatHandler(chatService, logger).RegisterRoutes(mux, be.tenantMiddleware)

	if cfg.MCP.Enabled {
		mcpServer := mcp.NewServer(cfg.Version, &tools.ToolDeps{
			Datasets: datasetService,
			Logger:   logger,
		}, logger)
		handlers.NewMCPHandler(mcpServer, logger).RegisterRoutes(mux)
	}

	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Mcp-Session-Id"},
		ExposedHeaders:   []string{"Mcp-Session-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           middleware.RequestLogger(logger)(corsHandler(mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting lemur-engine",
			zap.String("addr", srv.Addr),
			zap.String("version", cfg.Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

// openBackend wires the configured store. Postgres is retried because it is
// often still starting when the engine comes up under docker compose.
func openBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*backend, error) {
	switch cfg.Store.Backend {
	case config.StoreSQLite:
		db, err := database.OpenSQLite(cfg.Store.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		return &backend{
			store:            repositories.NewSQLiteStore(db),
			tenantMiddleware: database.PassThrough,
			closers:          []func(){func() { _ = db.Close() }},
		}, nil

	case config.StorePostgres:
		connStr := cfg.Database.ConnectionString()
		logger.Info("Connecting to database", zap.String("dsn", logging.SanitizeConnectionString(connStr)))

		retryCfg := retry.DefaultConfig()
		retryCfg.MaxRetries = 5
		retryCfg.OnRetry = func(attempt int, err error, delay time.Duration) {
			logger.Warn("Database not ready, retrying",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.String("error", logging.SanitizeError(err)))
		}

		db, err := retry.DoWithResult(ctx, retryCfg, func() (*database.DB, error) {
			return database.NewConnection(ctx, &database.Config{
				URL:            connStr,
				MaxConnections: cfg.Database.MaxConnections,
			})
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		if err := database.Migrate(connStr, logger); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}

		return &backend{
			store:            repositories.NewPostgresStore(db),
			tenantMiddleware: database.WithTenantContext(db, logger),
			closers:          []func(){db.Close},
		}, nil

	default:
		logger.Warn("Using in-memory store; data is lost on restart")
		return &backend{
			store:            repositories.NewMemoryStore(),
			tenantMiddleware: database.PassThrough,
		}, nil
	}
}

func openProfileCache(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repositories.ProfileCache, *redis.Client, error) {
	client, err := database.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	if client == nil {
		return repositories.NewMemoryProfileCache(), nil, nil
	}
	logger.Info("Profile cache backed by Redis",
		zap.String("host", cfg.Redis.Host),
		zap.Int("port", cfg.Redis.Port),
		zap.Duration("ttl", cfg.Redis.TTL))
	return repositories.NewRedisProfileCache(client, cfg.Redis.TTL), client, nil
}
