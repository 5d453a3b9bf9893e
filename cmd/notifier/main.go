package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"atelier-dm/internal/config"
	"atelier-dm/internal/db"
	"atelier-dm/internal/email"
	"atelier-dm/internal/notify"
	"atelier-dm/internal/repository"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	if cfg.RedisAddr == "" {
		logger.Fatal("notifier requires REDIS_ADDR")
	}

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()

	notificationRepo := repository.NewPgNotificationRepository(pool)
	userRepo := repository.NewPgUserRepository(pool)

	sender := email.NewDisabledSender("email sender not configured")
	if cfg.SMTPHost != "" {
		smtpSender, err := email.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, cfg.SMTPFromName, cfg.SMTPUseTLS)
		if err != nil {
			logger.Warn("smtp sender init failed", zap.Error(err))
		} else {
			sender = smtpSender
		}
	}

	worker := notify.NewWorker(logger, asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, notificationRepo, userRepo, sender)

	logger.Info("starting notifier worker")

	if err := worker.Run(ctx); err != nil {
		logger.Fatal("worker error", zap.Error(err))
	}
}
