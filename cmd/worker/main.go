package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/WhiteboxHub/project-linkedIn-easyapply-extension/internal/apply"
	"github.com/WhiteboxHub/project-linkedIn-easyapply-extension/internal/browser"
	"github.com/WhiteboxHub/project-linkedIn-easyapply-extension/internal/config"
	"github.com/WhiteboxHub/project-linkedIn-easyapply-extension/internal/database"
	"github.com/WhiteboxHub/project-linkedIn-easyapply-extension/internal/export"
	"github.com/WhiteboxHub/project-linkedIn-easyapply-extension/internal/metrics"
	"github.com/WhiteboxHub/project-linkedIn-easyapply-extension/internal/navigator"
	"github.com/WhiteboxHub/project-linkedIn-easyapply-extension/internal/notify"
	"github.com/WhiteboxHub/project-linkedIn-easyapply-extension/internal/relay"
	"github.com/WhiteboxHub/project-linkedIn-easyapply-extension/internal/secrets"
	"github.com/WhiteboxHub/project-linkedIn-easyapply-extension/internal/storage"
	"github.com/WhiteboxHub/project-linkedIn-easyapply-extension/internal/store"
	"github.com/WhiteboxHub/project-linkedIn-easyapply-extension/internal/tasks"
	"github.com/WhiteboxHub/project-linkedIn-easyapply-extension/internal/worker"
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
	log.Println("database connection ready for worker")

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr()})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("close redis client failed", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("ping redis: %v", err)
	}

	var uploader export.ObjectUploader
	if cfg.MinIO.AccessKeyID != "" {
		storageClient, err := storage.NewClient(cfg.MinIO)
		if err != nil {
			log.Fatalf("init storage client: %v", err)
		}
		uploader = storageClient
		log.Printf("storage client ready, bucket=%s", cfg.MinIO.Bucket)
	} else {
		logger.Warn("object storage disabled, exports stay local only")
	}

	relayKey := cfg.Relay.APIKey
	if cfg.Relay.APIKeyEncrypted != "" {
		decrypted, err := secrets.Decrypt(cfg.Relay.Passphrase, cfg.Relay.APIKeyEncrypted)
		if err != nil {
			log.Fatalf("decrypt relay api key: %v", err)
		}
		relayKey = decrypted
	}

	kv := store.NewClient(redisClient, cfg.Apply.DirectoryFile)
	clock := apply.SystemClock()
	exporter := export.NewExporter(cfg.Apply.ExportDir, uploader, logger)
	relayClient := relay.NewClient(cfg.Relay.BaseURL, relayKey)
	finalizer := apply.NewRunFinalizer(kv, kv, exporter, relayClient, clock, logger)

	session, err := browser.NewSession(logger)
	if err != nil {
		log.Fatalf("launch browser: %v", err)
	}
	defer session.Close()

	factory := browser.NewRunnerFactory(answersFromConfig(cfg.Apply.Answers), navigator.DefaultConfig(), clock, logger)

	coordinator := apply.NewCoordinator(apply.CoordinatorOptions{
		Tabs:      session,
		Runners:   factory,
		Store:     kv,
		Directory: kv,
		Jobs:      &apply.JobSource{Store: kv, FilePath: cfg.Apply.JobsFile},
		Notifier:  notify.NewPublisher(redisClient, logger),
		Archive:   database.NewSubmissionStore(db),
		Finalizer: finalizer,
		Metrics:   metrics.NewApplyMetrics(),
		Clock:     clock,
		Timings:   apply.DefaultTimings(),
		BaseURL:   cfg.Apply.BaseURL,
		Logger:    logger,
	})
	session.OnTabClosed(coordinator.TabClosed)

	// 上次崩溃留下的半截运行先收尾，再开始接任务。
	if err := coordinator.RecoverPending(context.Background()); err != nil {
		logger.Error("recover pending run failed", slog.Any("error", err))
	}

	redisOpt := asynq.RedisClientOpt{Addr: cfg.Redis.Addr()}
	server := asynq.NewServer(redisOpt, asynq.Config{
		// 一个浏览器同一时刻只跑一次运行。
		Concurrency: 1,
	})

	mux := asynq.NewServeMux()
	mux.Use(metrics.AsynqMetricsMiddleware())
	mux.Handle(tasks.TypeApplyRun, worker.NewApplyTaskHandler(coordinator, logger))

	logger.Info("worker service started", slog.String("redis_addr", cfg.Redis.Addr()))
	if err := server.Run(mux); err != nil {
		logger.Error("worker server stopped", slog.Any("error", err))
	}
}

func answersFromConfig(a config.AnswersConfig) navigator.Answers {
	return navigator.Answers{
		Sponsorship:     a.Sponsorship,
		Authorized:      a.Authorized,
		Citizen:         a.Citizen,
		Veteran:         a.Veteran,
		Disability:      a.Disability,
		Gender:          a.Gender,
		Proficiency:     a.Proficiency,
		ExperienceYears: a.ExperienceYears,
		Salary:          a.Salary,
		NoticePeriod:    a.NoticePeriod,
	}
}
