package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oggyb/blinddate/internal/app"
	"github.com/oggyb/blinddate/internal/auth"
	"github.com/oggyb/blinddate/internal/cache"
	"github.com/oggyb/blinddate/internal/config"
	"github.com/oggyb/blinddate/internal/db"
	"github.com/oggyb/blinddate/internal/events"
	"github.com/oggyb/blinddate/internal/logger"
	"github.com/oggyb/blinddate/internal/payment"
	"github.com/oggyb/blinddate/internal/repository"
	"github.com/oggyb/blinddate/internal/server"
	"github.com/oggyb/blinddate/internal/service/admin"
	"github.com/oggyb/blinddate/internal/settings"
)

func main() {
	cfg := config.New()

	// Init logger (global singleton)
	logger.InitFromConfig(cfg)
	log := logger.L() // slog.Logger pointer

	// Init DB
	database, err := db.NewDB(cfg, log)
	if err != nil {
		log.Error("failed to init db", "err", err)
		os.Exit(1)
	}

	// Init Redis
	redisCache := cache.NewRedisCache(cfg)
	if err := redisCache.Ping(context.Background()); err != nil {
		log.Error("failed to connect to redis", "err", err)
		os.Exit(1)
	}

	if cfg.App.ENV == "development" {
		if err := db.SeedTestData(database, log); err != nil {
			log.Error("failed to seed", "err", err)
		}
	}

	store := settings.NewStore(repository.NewConfigRepository(database), log)
	if err := store.Reload(context.Background()); err != nil {
		log.Error("failed to load settings", "err", err)
		os.Exit(1)
	}

	tokens, err := auth.NewTokenService(cfg)
	if err != nil {
		log.Error("failed to init sessions", "err", err)
		os.Exit(1)
	}

	publisher := events.NewPublisher(cfg, log)
	defer publisher.Close()

	appCtx := app.New(cfg, database, redisCache, log, store, publisher, payment.NewMockGateway(), tokens)

	httpServer := server.NewHTTPServer(appCtx, server.NewRouter(appCtx))
	grpcServer := server.NewGRPCServer(admin.NewOpsRegistrar(appCtx))

	errCh := make(chan error, 2)
	go func() {
		log.Info("starting HTTP server", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		log.Info("starting gRPC ops server", "addr", cfg.GRPC.Host+":"+cfg.GRPC.Port)
		if err := server.ServeGRPC(cfg, grpcServer); err != nil {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-stop:
		log.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		log.Error("server failed", "err", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error("http shutdown", "err", err)
	}
	grpcServer.GracefulStop()
	if sqlDB, err := database.DB(); err == nil {
		_ = sqlDB.Close()
	}
	_ = redisCache.Client.Close()
}
