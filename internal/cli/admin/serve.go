package admin

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/docuforge/docuforge/internal/api/handlers"
	"github.com/docuforge/docuforge/internal/config"
	"github.com/docuforge/docuforge/internal/jobs"
	"github.com/docuforge/docuforge/internal/openai"
	"github.com/docuforge/docuforge/internal/repository"
	"github.com/docuforge/docuforge/internal/server"
	"github.com/docuforge/docuforge/internal/service"
	"github.com/docuforge/docuforge/internal/storage"
	"github.com/docuforge/docuforge/internal/telemetry"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the ingestion API server",
		Long:  "Start the docuforge API server, analysis worker and review sweeper",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")
	cmd.Flags().Bool("no-worker", false, "Do not start the background analysis worker")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	applyEnvOverrides(cmd)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.SentryDSN != "" {
		environment := os.Getenv("ENVIRONMENT")
		if environment == "" {
			environment = "development"
		}

		// Default to 10% sampling in production, 100% in development
		sampleRate := 0.1
		if environment == "development" {
			sampleRate = 1.0
		}

		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              cfg.SentryDSN,
			Environment:      environment,
			TracesSampleRate: sampleRate,
		})
		if err != nil {
			log.Printf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	portFlag, _ := cmd.Flags().GetString("port")
	if portFlag != "" && portFlag != "8080" {
		cfg.Port = portFlag
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	log.Println("connected to database")

	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if !noMigrate {
		if err := runMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	if !cfg.HasS3() {
		return fmt.Errorf("S3 storage is required: set DOCUFORGE_S3_ENDPOINT, DOCUFORGE_S3_ACCESS_KEY_ID and DOCUFORGE_S3_SECRET_ACCESS_KEY")
	}
	s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        cfg.S3Endpoint,
		Region:          cfg.S3Region,
		AccessKeyID:     cfg.S3AccessKey,
		SecretAccessKey: cfg.S3SecretKey,
		Bucket:          cfg.S3Bucket,
		UsePathStyle:    true,
	})
	if err != nil {
		return fmt.Errorf("failed to create S3 client: %w", err)
	}
	if err := s3Client.EnsureBucket(ctx); err != nil {
		return fmt.Errorf("failed to ensure S3 bucket: %w", err)
	}
	log.Printf("S3 bucket '%s' ready", cfg.S3Bucket)

	assetRepo := repository.NewAssetRepository(pool)
	blobRepo := repository.NewBlobRepository(pool)
	chunkRepo := repository.NewChunkRepository(pool)
	jobRepo := repository.NewJobRepository(pool)
	auditRepo := repository.NewAuditRepository(pool)
	progressRepo := repository.NewProgressRepository(pool)
	txRunner := repository.NewTxRunner(pool)

	uuidGen := &service.DefaultUUIDGenerator{}

	tracker := service.NewProgressTracker(progressRepo)
	contentStore := service.NewContentAddressStore(blobRepo, s3Client)
	preparer := service.NewIngestPreparerWithUUIDGen(assetRepo, contentStore, uuidGen)
	queue := service.NewJobQueueWithOptions(jobRepo, uuidGen, cfg.JobHistoryLimit)
	orchestrator := service.NewIngestionOrchestrator(preparer, queue, txRunner, tracker)

	var analysisWorker *jobs.Worker
	noWorker, _ := cmd.Flags().GetBool("no-worker")
	if !noWorker {
		if !cfg.HasOpenAI() {
			return fmt.Errorf("analysis worker requires DOCUFORGE_OPENAI_API_KEY (or pass --no-worker)")
		}
		embedder := service.NewRetryingEmbedder(openai.NewClient(cfg.OpenAIAPIKey), 0)
		extractor := service.NewRetryingExtractor(openai.NewExtractor(cfg.OpenAIAPIKey, ""), 0)
		masker := service.NewRetryingMasker(&openaiMaskerAdapter{inner: openai.NewMasker(cfg.OpenAIAPIKey, "")}, 0)

		worker := service.NewAnalysisWorker(
			queue, assetRepo, chunkRepo, s3Client,
			extractor, masker, embedder, tracker,
			service.AnalysisWorkerConfig{
				Concurrency:    cfg.WorkerConcurrency,
				ClaimBatchSize: cfg.WorkerBatchSize,
				ReviewInterval: cfg.ReviewInterval,
			},
		)
		analysisWorker = jobs.NewWorker("analysis", worker, cfg.WorkerPollInterval)
		go analysisWorker.Start(ctx)
		log.Println("analysis worker started")
	}

	var sweepWorker *jobs.Worker
	if cfg.ReviewSweepEnabled {
		scheduler := service.NewReviewScheduler(assetRepo, auditRepo)
		sweepWorker = jobs.NewWorker("review", &sweepAdapter{scheduler: scheduler}, cfg.ReviewSweepEvery)
		go sweepWorker.Start(ctx)
		log.Println("review sweeper started")
	}

	router := server.NewRouter(server.RouterConfig{
		IngestHandler:   handlers.NewIngestHandler(orchestrator),
		AssetHandler:    handlers.NewAssetHandler(assetRepo),
		JobHandler:      handlers.NewJobHandler(queue),
		ProgressHandler: handlers.NewProgressHandler(tracker),
		MaxBodyBytes:    cfg.MaxUploadBytes,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	if analysisWorker != nil {
		analysisWorker.Stop()
	}
	if sweepWorker != nil {
		sweepWorker.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}

// sweepAdapter drives the review scheduler from the generic worker loop
type sweepAdapter struct {
	scheduler *service.ReviewScheduler
}

func (a *sweepAdapter) ProcessDue(ctx context.Context) (int, error) {
	result, err := a.scheduler.Sweep(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	return result.Updated, nil
}

// openaiMaskerAdapter converts the openai masker result to the service shape
type openaiMaskerAdapter struct {
	inner *openai.Masker
}

func (a *openaiMaskerAdapter) DetectAndMask(ctx context.Context, text string) (*service.MaskResult, error) {
	masked, err := a.inner.DetectAndMask(ctx, text)
	if err != nil {
		return nil, err
	}
	return &service.MaskResult{Masked: masked.Text, Detections: masked.Detections}, nil
}

func runMigrations(databaseURL string) error {
	// Create a sql.DB connection for golang-migrate
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		"file://migrations",
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if err == migrate.ErrNilVersion {
		log.Println("migrations: database is up to date (no migrations applied)")
	} else if dirty {
		return fmt.Errorf("migration version %d is dirty - manual intervention required", version)
	} else if err == migrate.ErrNoChange {
		log.Printf("migrations: database is up to date (version %d)", version)
	} else {
		log.Printf("migrations: applied successfully (version %d)", version)
	}

	return nil
}
