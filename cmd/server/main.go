package main

import (
	"context"
	"errors"
	"histomicsui/hui-server/internal/api"
	"histomicsui/hui-server/internal/config"
	"histomicsui/hui-server/internal/events"
	"histomicsui/hui-server/internal/ingest"
	"histomicsui/hui-server/internal/largeimage"
	"histomicsui/hui-server/internal/logging"
	"histomicsui/hui-server/internal/repository"
	"histomicsui/hui-server/internal/repository/memory"
	"histomicsui/hui-server/internal/repository/mongo"
	"histomicsui/hui-server/internal/service"
	"histomicsui/hui-server/internal/storage"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// repositories groups the persistence layer selected by database.backend.
type repositories struct {
	users       repository.UserRepository
	folders     repository.FolderRepository
	items       repository.ItemRepository
	files       repository.FileRepository
	annotations repository.AnnotationRepository
	settings    repository.SettingRepository
}

// @title HistomicsUI Ingestion API
// @version 1.0
// @description Annotation and metadata sidecar ingestion for whole slide images.
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	// --- Configuration ---
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("FATAL: Could not load config: %v", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("FATAL: Could not build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, cfg); err != nil {
		logger.Error("server exited with error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("server exiting")
}

func run(ctx context.Context, logger *zap.Logger, cfg config.Config) error {
	logger.Info("starting hui server",
		zap.String("database", cfg.Database.Backend),
		zap.String("storage", cfg.S3.Backend),
		zap.String("ingest_mode", cfg.Ingest.Mode))

	// --- Database ---
	repos, closeDB, err := openRepositories(ctx, logger, cfg.Database)
	if err != nil {
		return err
	}
	defer closeDB()

	// --- Storage ---
	var fileStorage storage.FileStorage
	if cfg.S3.Backend == "memory" {
		fileStorage = storage.NewMemoryStorage()
	} else {
		fileStorage, err = storage.NewS3Storage(ctx, logger.Named("storage"), cfg.S3)
		if err != nil {
			return err
		}
	}

	// --- Services ---
	authService := service.NewAuthService(repos.users, cfg.JWT.Secret, cfg.JWT.Expiration)
	settingsService := service.NewSettingsService(logger.Named("settings"), repos.settings, repos.folders)
	itemService := service.NewItemService(logger.Named("items"), repos.items, repos.files, fileStorage)

	if cfg.Admin.Login != "" {
		_, err := authService.Register(ctx, cfg.Admin.Login, cfg.Admin.Email, cfg.Admin.Password, true)
		switch {
		case errors.Is(err, service.ErrUserAlreadyExists):
		case err != nil:
			return err
		default:
			logger.Info("created administrator", zap.String("login", cfg.Admin.Login))
		}
	}

	// --- Ingestion ---
	cache := ingest.NewPendingCache(ingest.CacheOptions{
		Capacity:   cfg.Ingest.CacheCapacity,
		Expiration: cfg.Ingest.CacheTTL,
	})
	defer cache.Purge()

	dispatcher := ingest.NewDispatcher(logger.Named("ingest"), ingest.Deps{
		Users:       repos.users,
		Folders:     repos.folders,
		Items:       repos.items,
		Files:       repos.files,
		Annotations: repos.annotations,
		Storage:     fileStorage,
		Cache:       cache,
		Promoter:    largeimage.NewPromoter(logger.Named("largeimage"), repos.items, repos.files),
		Settings:    settingsService,
		Remover:     itemService,
	}, ingest.Config{
		MaxFileSize: cfg.Ingest.MaxAnnotationFileSize,
		ScanLimit:   cfg.Ingest.ScanLimit,
	})

	group, ctx := errgroup.WithContext(ctx)

	switch cfg.Ingest.Mode {
	case config.ModePool:
		pool := ingest.NewPoolRunner(logger.Named("pool"), dispatcher.Process, cfg.Ingest.Workers, cfg.Ingest.QueueSize)
		dispatcher.SetRunner(pool)
		group.Go(func() error { return pool.Run(ctx) })
	case config.ModeKafka:
		taskRunner := events.NewKafkaRunner(logger.Named("tasks"), events.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.TaskTopic))
		defer func() {
			if err := taskRunner.Close(); err != nil {
				logger.Warn("closing task writer", zap.Error(err))
			}
		}()
		dispatcher.SetRunner(taskRunner)

		taskReader := events.NewReader(cfg.Kafka.Brokers, cfg.Kafka.TaskTopic, cfg.Kafka.GroupID+"-tasks")
		taskConsumer := events.NewConsumer(logger.Named("task-consumer"), taskReader, events.TaskHandler(dispatcher))
		group.Go(func() error { return taskConsumer.Run(ctx) })
	}

	if cfg.Kafka.Enabled {
		uploadReader := events.NewReader(cfg.Kafka.Brokers, cfg.Kafka.UploadTopic, cfg.Kafka.GroupID)
		uploadConsumer := events.NewConsumer(logger.Named("upload-consumer"), uploadReader, events.UploadHandler(dispatcher))
		group.Go(func() error { return uploadConsumer.Run(ctx) })
	}

	// --- HTTP ---
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	api.SetupRoutes(router, logger.Named("api"), authService, settingsService, dispatcher)

	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	group.Go(func() error {
		logger.Info("http server listening", zap.String("address", cfg.Server.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down http server")

		// Give in-flight requests 5 seconds to finish.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return group.Wait()
}

func openRepositories(ctx context.Context, logger *zap.Logger, cfg config.DatabaseConfig) (repositories, func(), error) {
	if cfg.Backend == "memory" {
		db := memory.New()
		return repositories{
			users:       db.Users(),
			folders:     db.Folders(),
			items:       db.Items(),
			files:       db.Files(),
			annotations: db.Annotations(),
			settings:    db.Settings(),
		}, func() {}, nil
	}

	client, err := mongo.ConnectDB(ctx, cfg.URI)
	if err != nil {
		return repositories{}, nil, err
	}
	appDB := client.Database(cfg.Name)

	indexCtx, cancel := context.WithTimeout(ctx, time.Minute)
	mongo.EnsureIndexes(indexCtx, logger.Named("mongo"), appDB)
	cancel()

	closeDB := func() {
		logger.Info("disconnecting mongodb")
		if err := mongo.DisconnectDB(client); err != nil {
			logger.Error("failed to disconnect mongodb", zap.Error(err))
		}
	}
	return repositories{
		users:       mongo.NewMongoUserRepository(appDB),
		folders:     mongo.NewMongoFolderRepository(appDB),
		items:       mongo.NewMongoItemRepository(appDB),
		files:       mongo.NewMongoFileRepository(appDB),
		annotations: mongo.NewMongoAnnotationRepository(appDB),
		settings:    mongo.NewMongoSettingRepository(appDB),
	}, closeDB, nil
}
