package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/codegrade-labs/codegrade-api/internal/config"
	"github.com/codegrade-labs/codegrade-api/internal/database"
	"github.com/codegrade-labs/codegrade-api/internal/handler"
	"github.com/codegrade-labs/codegrade-api/internal/middleware"
	"github.com/codegrade-labs/codegrade-api/internal/models"
	"github.com/codegrade-labs/codegrade-api/internal/repository"
	"github.com/codegrade-labs/codegrade-api/internal/router"
	"github.com/codegrade-labs/codegrade-api/internal/service"
	cloud "github.com/codegrade-labs/codegrade-api/pkg/cloudinary"
	dockerexec "github.com/codegrade-labs/codegrade-api/pkg/docker"
	"github.com/codegrade-labs/codegrade-api/pkg/sonar"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(&models.Submission{}, &models.FileRecord{}, &models.AnalysisResult{}, &models.ProjectTask{}); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	validate := validator.New(validator.WithRequiredStructEnabled())

	// Cloudinary archival is optional; submissions work without it.
	var storage service.FileStorage
	if cfg.CloudinaryCloudName != "" {
		uploader, err := cloud.New(cloud.Config{
			CloudName: cfg.CloudinaryCloudName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryAPISecret,
			Folder:    cfg.CloudinaryUploadFolder,
		}, logger)
		if err != nil {
			log.Fatalf("failed to create cloudinary client: %v", err)
		}
		storage = uploader
	}

	events := service.EventPublisher(service.NopEventPublisher{})
	if cfg.NATSURL != "" {
		natsConn, err := nats.Connect(cfg.NATSURL)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Drain()
		events = service.NewNATSEventPublisher(natsConn, cfg.NATSSubject, logger)
	}

	executor, err := dockerexec.NewDockerExecutor(dockerexec.Config{
		Host:    cfg.DockerHost,
		Timeout: cfg.ScannerTimeout,
		Logger:  logger,
	})
	if err != nil {
		log.Fatalf("failed to create docker executor: %v", err)
	}

	measures, err := sonar.NewClient(sonar.Config{
		ServerURL:    cfg.SonarServerURL,
		Token:        cfg.SonarToken,
		Organization: cfg.SonarOrganization,
	}, logger)
	if err != nil {
		log.Fatalf("failed to create sonar client: %v", err)
	}

	submissionRepo := repository.NewSubmissionRepository(db)
	resultRepo := repository.NewAnalysisResultRepository(db)
	taskRepo := repository.NewTaskRepository(db)

	extractor := service.NewArchiveExtractor(logger)
	scanner := service.NewFileScanner(taskRepo, logger)
	orchestrator := service.NewAnalysisOrchestrator(
		extractor,
		executor,
		measures,
		service.NewLocalAnalyzer(logger),
		service.NewScoreEngine(),
		service.OrchestratorConfig{
			ScannerImage:   cfg.SonarScannerImage,
			ScannerTimeout: cfg.ScannerTimeout,
			ScannerRetries: cfg.ScannerRetries,
			ScannerBackoff: cfg.ScannerRetryBackoff,
			MetricsRetries: cfg.MetricsRetries,
			MetricsBackoff: cfg.MetricsRetryBackoff,
			SettleInterval: cfg.SettleInterval,
			WorkRoot:       cfg.WorkRoot,
			ServerURL:      cfg.SonarServerURL,
			Token:          cfg.SonarToken,
			Organization:   cfg.SonarOrganization,
		},
		logger,
	)

	submissionService := service.NewSubmissionService(
		submissionRepo,
		resultRepo,
		extractor,
		scanner,
		orchestrator,
		storage,
		redisClient,
		events,
		validate,
		logger,
		service.SubmissionConfig{
			UploadDir:          cfg.UploadDir,
			WorkRoot:           cfg.WorkRoot,
			WatchdogTimeout:    cfg.WatchdogTimeout,
			AllowFallback:      cfg.AllowFallback,
			MaxPerFileAnalyses: cfg.MaxPerFileAnalyses,
			StatusCacheTTL:     cfg.StatusCacheTTL,
		},
	)

	submissionHandler := handler.NewSubmissionHandler(submissionService, validate, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		SubmissionHandler: submissionHandler,
		JWTMiddleware:     middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
