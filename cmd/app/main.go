package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BuzzLyutic/task-sync-client/internal/cache"
	"github.com/BuzzLyutic/task-sync-client/internal/config"
	"github.com/BuzzLyutic/task-sync-client/internal/gateway"
	"github.com/BuzzLyutic/task-sync-client/internal/handler"
	"github.com/BuzzLyutic/task-sync-client/internal/notify"
	"github.com/BuzzLyutic/task-sync-client/internal/overlay"
	"github.com/BuzzLyutic/task-sync-client/internal/repo"
	"github.com/BuzzLyutic/task-sync-client/internal/service"
	"github.com/BuzzLyutic/task-sync-client/internal/storage"
	"github.com/BuzzLyutic/task-sync-client/internal/view"
	"github.com/BuzzLyutic/task-sync-client/internal/worker"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg := config.Load()

	var gw gateway.Gateway
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("Failed to connect to Database", zap.Error(err))
		}
		defer pool.Close()

		if err := pool.Ping(context.Background()); err != nil {
			logger.Fatal("Failed to ping the Database", zap.Error(err))
		}
		logger.Info("Successfully connected to the Database!")
		gw = repo.NewTaskRepo(pool)
	} else {
		client := &http.Client{Timeout: cfg.HTTPTimeout}
		gw = gateway.NewHTTPGateway(cfg.APIBaseURL, cfg.APIToken, client, logger)
		logger.Info("Using remote task API", zap.String("base_url", cfg.APIBaseURL))
	}

	cacheOpts := []cache.Option{cache.WithStaleTime(cfg.StaleTime)}
	var purger handler.Purger
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal("Invalid REDIS_URL", zap.Error(err))
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()

		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Warn("Redis unavailable, snapshots disabled", zap.Error(err))
		} else {
			snapshots := storage.NewRedisSnapshots(rdb, "tasksync:"+cfg.UserName+":", cfg.SnapshotTTL)
			cacheOpts = append(cacheOpts, cache.WithSnapshots(snapshots))
			purger = snapshots
		}
	}

	queries := cache.NewQuery(gw, logger, cacheOpts...)
	ov := overlay.New()
	notices := notify.NewQueue(notify.WithTTL(cfg.ToastTTL))

	workers := worker.NewPool(logger, cfg.WorkerCount, cfg.QueueSize)
	workers.Start(context.Background())

	taskService := service.NewTaskService(gw, queries, ov, notices, service.ContextConfirmer, workers, logger)
	controller := view.NewController(queries, ov, cfg.PageSize, logger)
	taskHandler := handler.NewTaskHandler(taskService, controller, notices, handler.StaticIdentity(cfg.UserName), purger, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"ok"}`)
	})
	r.Route("/api", taskHandler.Routes)

	srv := http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.HTTPTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("Server started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Shutdown error", zap.Error(err))
	}
	// In-flight deletes and toggles finish before the gateway goes away.
	workers.Stop()
	logger.Info("Server stopped successfully!")
}
