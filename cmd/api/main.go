package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"atelier-dm/internal/config"
	"atelier-dm/internal/db"
	"atelier-dm/internal/feed"
	apihttp "atelier-dm/internal/http"
	"atelier-dm/internal/notify"
	"atelier-dm/internal/pubsub"
	"atelier-dm/internal/repository"
	"atelier-dm/internal/service"
	"atelier-dm/internal/syncer"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()

	conversationRepo := repository.NewPgConversationRepository(pool)
	messageRepo := repository.NewPgMessageRepository(pool)
	notificationRepo := repository.NewPgNotificationRepository(pool)
	userRepo := repository.NewPgUserRepository(pool)

	// Sin Redis el feed queda en proceso y las alertas deshabilitadas: el
	// nucleo de mensajeria sigue funcionando completo.
	var (
		changeFeed feed.Feed      = feed.NewMemoryFeed()
		publisher  feed.Publisher = changeFeed.(*feed.MemoryFeed)
		queue      notify.Queue   = notify.NewDisabledQueue("notification queue not configured")
	)
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed", zap.Error(err))
		} else {
			redisFeed := feed.NewRedisFeed(logger, redisClient)
			changeFeed = redisFeed
			publisher = redisFeed
			queue = notify.NewAsynqQueue(asynq.RedisClientOpt{
				Addr:     cfg.RedisAddr,
				Password: cfg.RedisPassword,
				DB:       cfg.RedisDB,
			})
		}
		cancel()
	}

	conversationSvc := service.NewConversationService(logger, conversationRepo, publisher)
	messageSvc := service.NewMessageService(logger, messageRepo, conversationRepo, notificationRepo, userRepo, queue, publisher)
	readSvc := service.NewReadStateService(logger, messageRepo, notificationRepo)

	broker := pubsub.NewBroker()
	sync := syncer.New(logger, conversationRepo, userRepo, messageRepo, changeFeed, broker, syncer.Options{
		FetchThrottle: time.Duration(cfg.FetchThrottleMS) * time.Millisecond,
		RefreshDelay:  time.Duration(cfg.RefreshDelayMS) * time.Millisecond,
	})
	defer sync.Close()

	if cfg.JWTSecret == "" {
		logger.Warn("jwt secret not configured")
	}

	convHandler := apihttp.NewConversationHandler(logger, sync, conversationSvc, messageSvc, readSvc)
	router := apihttp.NewRouter(logger, cfg.JWTSecret, convHandler)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("starting server", zap.String("port", cfg.HTTPPort))

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}
}
