package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/branchcanvas/engine/internal/completion"
	"github.com/branchcanvas/engine/internal/queue/tasks"
	"github.com/branchcanvas/engine/internal/repository"
	"github.com/branchcanvas/engine/pkg/config"
	"github.com/branchcanvas/engine/pkg/database"
	"github.com/branchcanvas/engine/pkg/logger"
)

func main() {
	cfg := config.MustLoad()
	log, err := logger.Init(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatal("redis connection failed", zap.Error(err))
	}

	ctx := context.Background()
	db, err := database.OpenPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("database connection failed", zap.Error(err))
	}

	convRepo := repository.NewConversationRepository(db)
	gateway, err := completion.NewOpenAIGateway(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	if err != nil {
		log.Fatal("completion gateway init failed", zap.Error(err))
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       0,
		},
		asynq.Config{
			Concurrency: cfg.AsynqConcurrency,
		},
	)

	titleHandler := tasks.NewTitleTaskHandler(convRepo, gateway)

	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeConversationTitle, titleHandler.HandleTitle)

	go func() {
		log.Info("worker starting", zap.Int("concurrency", cfg.AsynqConcurrency))
		if err := srv.Run(mux); err != nil {
			log.Fatal("asynq server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("shutdown signal received", zap.String("signal", sig.String()))

	srv.Shutdown()
	log.Info("worker stopped")
}
