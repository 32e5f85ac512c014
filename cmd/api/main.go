package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/WhiteboxHub/project-linkedIn-easyapply-extension/internal/api"
	"github.com/WhiteboxHub/project-linkedIn-easyapply-extension/internal/apply"
	"github.com/WhiteboxHub/project-linkedIn-easyapply-extension/internal/auth"
	"github.com/WhiteboxHub/project-linkedIn-easyapply-extension/internal/config"
	"github.com/WhiteboxHub/project-linkedIn-easyapply-extension/internal/database"
	"github.com/WhiteboxHub/project-linkedIn-easyapply-extension/internal/export"
	"github.com/WhiteboxHub/project-linkedIn-easyapply-extension/internal/storage"
	"github.com/WhiteboxHub/project-linkedIn-easyapply-extension/internal/store"
)

func main() {
	cfg := config.MustLoad()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	if err := db.AutoMigrate(&database.Submission{}); err != nil {
		log.Fatalf("auto migrate: %v", err)
	}
	log.Println("database connection ready")

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr()})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("close redis client failed", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("ping redis: %v", err)
	}

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.Redis.Addr()})
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Error("close asynq client failed", slog.Any("error", err))
		}
	}()

	var uploader export.ObjectUploader
	var linker api.ObjectLinker
	if cfg.MinIO.AccessKeyID != "" {
		storageClient, err := storage.NewClient(cfg.MinIO)
		if err != nil {
			log.Fatalf("init storage client: %v", err)
		}
		uploader = storageClient
		linker = storageClient
		log.Printf("storage client ready, bucket=%s", cfg.MinIO.Bucket)
	} else {
		logger.Warn("object storage disabled, exports stay local only")
	}

	exporter := export.NewExporter(cfg.Apply.ExportDir, uploader, logger)
	kv := store.NewClient(redisClient, cfg.Apply.DirectoryFile)
	jobs := &apply.JobSource{Store: kv, FilePath: cfg.Apply.JobsFile}
	submissions := database.NewSubmissionStore(db)

	tokens, err := auth.NewTokenService(cfg.API.InternalSecret, 5*time.Minute)
	if err != nil {
		log.Fatalf("init token service: %v", err)
	}

	router := api.NewRouter()
	api.RegisterRoutes(router, cfg, kv, jobs, asynqClient, submissions, exporter, linker, tokens, redisClient, logger)

	address := fmt.Sprintf(":%d", cfg.API.Port)
	log.Printf("api listening on %s", address)
	if err := router.Run(address); err != nil {
		log.Fatalf("failed to start api server: %v", err)
	}
}
