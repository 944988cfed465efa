package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/branchcanvas/engine/internal/api"
	"github.com/branchcanvas/engine/internal/api/ws"
	"github.com/branchcanvas/engine/internal/completion"
	"github.com/branchcanvas/engine/internal/engine"
	"github.com/branchcanvas/engine/internal/layout"
	"github.com/branchcanvas/engine/internal/queue"
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

	log.Info("starting branch canvas engine",
		zap.String("env", cfg.AppEnv),
		zap.String("addr", cfg.HTTPAddr),
	)

	ctx := context.Background()
	db, err := database.OpenPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("database connection failed", zap.Error(err))
	}

	userRepo := repository.NewUserRepository(db)
	convRepo := repository.NewConversationRepository(db)
	msgRepo := repository.NewMessageRepository(db)
	snapRepo := repository.NewSnapshotRepository(db)

	gateway, err := completion.NewOpenAIGateway(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	if err != nil {
		log.Fatal("completion gateway init failed", zap.Error(err))
	}

	titles := queue.NewClient(cfg.RedisAddr, cfg.RedisPassword)
	defer titles.Close()

	manager := engine.NewManager(
		convRepo, msgRepo, gateway, titles,
		layout.Select{},
		cfg.LayoutDebounce,
		layout.Options{
			Algorithm: layout.Algorithm(cfg.LayoutAlgorithm),
			Direction: layout.Direction(cfg.LayoutDirection),
		},
	)

	hub := ws.NewHub()
	manager.OnFit(func(userID uuid.UUID, rev uint64) {
		eng, ok := manager.Peek(userID)
		if !ok {
			return
		}
		nodes, edges, _ := eng.Store().Snapshot()
		hub.Broadcast(userID, ws.Event{
			Type:     "canvas",
			Revision: rev,
			Payload:  map[string]any{"nodes": nodes, "edges": edges},
		})
	})

	jwtSecret := []byte(cfg.JWTSecret)
	if len(jwtSecret) == 0 {
		log.Warn("JWT_SECRET not set, using default (INSECURE for production)")
		jwtSecret = []byte("change-me-in-production-please")
	}

	router := api.NewRouter(api.RouterDeps{
		Users:     userRepo,
		Convs:     convRepo,
		Snapshots: snapRepo,
		Manager:   manager,
		Hub:       hub,
		JWTSecret: jwtSecret,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server starting", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-errCh:
		log.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown error", zap.Error(err))
	}
	log.Info("server stopped")
}
