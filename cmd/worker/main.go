package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/magicdevops/cloudleakage/internal/accounts"
	"github.com/magicdevops/cloudleakage/internal/awsx"
	"github.com/magicdevops/cloudleakage/internal/database"
	"github.com/magicdevops/cloudleakage/internal/inventory"
	"github.com/magicdevops/cloudleakage/internal/tasks"
	"github.com/magicdevops/cloudleakage/pkg/config"
	"github.com/magicdevops/cloudleakage/pkg/crypto"
	"github.com/magicdevops/cloudleakage/pkg/queue"
	"github.com/magicdevops/cloudleakage/pkg/util"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := util.NewLogger(cfg.Server.Env)
	slog.SetDefault(logger)

	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	if cfg.Encryption.Key == "" {
		logger.Warn("ENCRYPTION_KEY not set, generating an ephemeral key; stored credentials will not survive a restart")
	}
	encryptor, err := crypto.NewEncryptor(cfg.Encryption.Key)
	if err != nil {
		logger.Error("failed to initialize encryptor", "error", err)
		os.Exit(1)
	}

	sessionFactory := awsx.NewSessionFactory(db, encryptor, logger)
	inventoryService := inventory.NewService(db, sessionFactory, cfg.Collector, logger)
	accountService := accounts.NewService(db, encryptor, logger)

	srv := queue.NewServer(&cfg.Redis, 10)

	handler := tasks.NewHandler(inventoryService, accountService, logger)
	mux := asynq.NewServeMux()
	handler.RegisterHandlers(mux)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("shutting down worker")
		srv.Shutdown()
	}()

	logger.Info("starting worker", "redis", cfg.Redis.Addr())
	if err := srv.Run(mux); err != nil {
		logger.Error("worker error", "error", err)
		os.Exit(1)
	}
}
