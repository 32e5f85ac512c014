package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/term"

	"github.com/WhiteboxHub/project-linkedIn-easyapply-extension/internal/apply"
	"github.com/WhiteboxHub/project-linkedIn-easyapply-extension/internal/config"
	"github.com/WhiteboxHub/project-linkedIn-easyapply-extension/internal/database"
	"github.com/WhiteboxHub/project-linkedIn-easyapply-extension/internal/export"
	"github.com/WhiteboxHub/project-linkedIn-easyapply-extension/internal/relay"
	"github.com/WhiteboxHub/project-linkedIn-easyapply-extension/internal/secrets"
	"github.com/WhiteboxHub/project-linkedIn-easyapply-extension/internal/store"
)

// 运维工具：给上次崩溃遗留的运行收尾、导出累计台账、加密中继密钥。
func main() {
	var (
		finalizePending = flag.Bool("finalize-pending", false, "给遗留的未收尾运行执行导出与中继上报")
		exportLog       = flag.Bool("export-log", false, "导出累计投递台账")
		encryptRelayKey = flag.Bool("encrypt-relay-key", false, "交互式加密中继 API Key（输出 RELAY_API_KEY_ENCRYPTED 的值）")
	)
	flag.Parse()

	switch {
	case *encryptRelayKey:
		if err := runEncryptRelayKey(); err != nil {
			log.Fatalf("encrypt relay key: %v", err)
		}
	case *finalizePending:
		if err := runFinalizePending(); err != nil {
			log.Fatalf("finalize pending run: %v", err)
		}
	case *exportLog:
		if err := runExportLog(); err != nil {
			log.Fatalf("export log: %v", err)
		}
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func runEncryptRelayKey() error {
	fmt.Print("Relay API Key: ")
	key, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("read api key: %w", err)
	}
	fmt.Print("Passphrase: ")
	passphrase, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("read passphrase: %w", err)
	}
	if len(strings.TrimSpace(string(key))) == 0 || len(strings.TrimSpace(string(passphrase))) == 0 {
		return fmt.Errorf("api key and passphrase must not be empty")
	}

	encoded, err := secrets.Encrypt(string(passphrase), string(key))
	if err != nil {
		return err
	}
	fmt.Printf("RELAY_API_KEY_ENCRYPTED=%s\n", encoded)
	return nil
}

func runFinalizePending() error {
	cfg := config.MustLoad()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr()})
	defer redisClient.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}

	kv := store.NewClient(redisClient, cfg.Apply.DirectoryFile)
	meta, err := kv.LoadRunMeta(ctx)
	if err != nil {
		return err
	}
	pending, err := kv.PendingSyncRuns(ctx)
	if err != nil {
		return err
	}
	if meta == nil && len(pending) == 0 {
		fmt.Println("no pending run")
		return nil
	}

	relayKey := cfg.Relay.APIKey
	if cfg.Relay.APIKeyEncrypted != "" {
		relayKey, err = secrets.Decrypt(cfg.Relay.Passphrase, cfg.Relay.APIKeyEncrypted)
		if err != nil {
			return fmt.Errorf("decrypt relay api key: %w", err)
		}
	}

	exporter := export.NewExporter(cfg.Apply.ExportDir, nil, logger)
	finalizer := apply.NewRunFinalizer(kv, kv, exporter, relay.NewClient(cfg.Relay.BaseURL, relayKey), apply.SystemClock(), logger)
	if err := finalizer.Finalize(ctx); err != nil {
		return err
	}
	if meta != nil {
		fmt.Printf("finalized pending run %s\n", meta.RunID)
	}
	if remaining, err := kv.PendingSyncRuns(ctx); err == nil {
		fmt.Printf("%d run(s) still awaiting relay confirmation\n", len(remaining))
	}
	return nil
}

func runExportLog() error {
	cfg := config.MustLoad()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	now := time.Now()
	doc, err := database.NewSubmissionStore(db).ExportLog(ctx, now)
	if err != nil {
		return err
	}

	exporter := export.NewExporter(cfg.Apply.ExportDir, nil, logger)
	path, err := exporter.ExportDocument(ctx, "easyapply_log", now, doc)
	if err != nil {
		return err
	}
	fmt.Printf("exported %d rows to %s\n", len(doc.Raw), path)
	return nil
}
