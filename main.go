package main

import (
	"context"
	"database/sql"
	"embed"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/qbank-labs/question-engine/pkg/config"
	"github.com/qbank-labs/question-engine/pkg/database"
	"github.com/qbank-labs/question-engine/pkg/handlers"
	"github.com/qbank-labs/question-engine/pkg/llm"
	"github.com/qbank-labs/question-engine/pkg/middleware"
	"github.com/qbank-labs/question-engine/pkg/ocr"
	"github.com/qbank-labs/question-engine/pkg/repositories"
	"github.com/qbank-labs/question-engine/pkg/services"
	"github.com/qbank-labs/question-engine/pkg/services/workqueue"
	"github.com/qbank-labs/question-engine/pkg/storage"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("database", cfg.Database.Database),
		zap.Int("max_concurrent_llm", cfg.Worker.MaxConcurrentLLM))

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx := context.Background()

	// Migrations run over database/sql; the pool below is pgx-native.
	migrationDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		return err
	}
	if err := database.RunMigrations(migrationDB, migrationsFS, logger); err != nil {
		migrationDB.Close()
		return err
	}
	migrationDB.Close()

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.ConnectionString(),
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	questionRepo := repositories.NewQuestionRepository(db)
	userRepo := repositories.NewUserRepository(db)
	configRepo := repositories.NewConfigRepository(db)

	workflow := services.NewWorkflowService(
		questionRepo,
		services.NewFirstActivePolicy(userRepo),
		logger,
	)

	queue := workqueue.New(logger,
		workqueue.WithStrategy(workqueue.NewThrottledLLMStrategy(cfg.Worker.MaxConcurrentLLM)))
	defer queue.Cancel()

	store := storage.NewHTTPStore(cfg.Storage.UploadURL, logger)
	ocrFactory := services.NewOCRClientFactory(configRepo, ocr.Config{
		PollInterval: time.Duration(cfg.Worker.OCRPollIntervalSeconds) * time.Second,
		MaxWait:      time.Duration(cfg.Worker.OCRMaxWaitSeconds) * time.Second,
	}, logger)
	llmFactory := llm.NewFactory(configRepo, logger)

	dispatcher := services.NewQueueDispatcher(
		queue, workflow, store, ocrFactory, llmFactory, configRepo, logger)
	// Approved transcriptions enqueue rewrite generation through the
	// dispatcher, which itself depends on the workflow; wired afterwards.
	workflow.SetRewriteScheduler(dispatcher)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewTaskHandler(dispatcher, queue, logger).RegisterRoutes(mux)

	server := &http.Server{
		Addr:              cfg.BindAddr + ":" + cfg.Port,
		Handler:           middleware.RequestLogger(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting question-engine",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version))
		errCh <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info("shutting down", zap.String("signal", sig.String()))
		shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "local" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
