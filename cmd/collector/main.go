package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/linkpulse/collector/internal/api"
	"github.com/linkpulse/collector/internal/archive"
	"github.com/linkpulse/collector/internal/auth"
	"github.com/linkpulse/collector/internal/browser"
	"github.com/linkpulse/collector/internal/cache"
	"github.com/linkpulse/collector/internal/collect"
	"github.com/linkpulse/collector/internal/config"
	"github.com/linkpulse/collector/internal/db"
	"github.com/linkpulse/collector/internal/health"
	"github.com/linkpulse/collector/internal/logger"
	"github.com/linkpulse/collector/internal/metrics"
	"github.com/linkpulse/collector/internal/middleware"
	"github.com/linkpulse/collector/internal/runner"
	"github.com/linkpulse/collector/internal/scheduler"
	"github.com/linkpulse/collector/internal/store"
	"github.com/linkpulse/collector/internal/uploader"
	"github.com/linkpulse/collector/internal/websocket"
)

const version = "0.1.0"

func main() {
	cfg := config.Load()

	log := logger.New(os.Stdout, logger.ParseLevel(cfg.LogLevel), "main")
	logger.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisStore, err := store.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Error(ctx, "failed to connect to redis", err)
		os.Exit(1)
	}
	defer redisStore.Close()

	database, err := db.New(cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName)
	if err != nil {
		log.Error(ctx, "failed to connect to database", err)
		os.Exit(1)
	}
	defer database.Close()

	if err := database.Migrate(); err != nil {
		log.Error(ctx, "failed to run migrations", err)
		os.Exit(1)
	}
	runRepo := db.NewRunRepository(database)

	var archiveClient *archive.Client
	if cfg.ArchiveEnabled {
		archiveClient, err = archive.New(&archive.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			log.Error(ctx, "failed to initialize export archive", err)
			os.Exit(1)
		}
		if err := archiveClient.EnsureBucket(ctx); err != nil {
			log.Error(ctx, "failed to prepare archive bucket", err)
			os.Exit(1)
		}
	}

	chrome, err := browser.New(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "failed to start browser", err)
		os.Exit(1)
	}
	defer chrome.Close()

	uploadClient := uploader.NewClient(cfg.ProfileUploadURL, cfg.PostUploadURL, cfg.SummaryURL)

	pipelineOpts := []collect.Option{collect.WithProgress(redisStore)}
	if archiveClient != nil {
		pipelineOpts = append(pipelineOpts, collect.WithArchiver(archiveClient))
	}
	pipeline := collect.New(chrome, uploadClient, pipelineOpts...)

	run := runner.New(redisStore, pipeline,
		runner.WithProgress(redisStore),
		runner.WithHistory(runRepo),
	)

	sched := scheduler.New(run, scheduler.DefaultCheckInterval)
	go sched.Run(ctx)

	hub := websocket.NewHub()
	go hub.Run()

	sub := redisStore.SubscribeProgress(ctx)
	go websocket.Relay(ctx, hub, sub)

	authService := auth.NewService(cfg.APISecret)
	authHandlers := auth.NewHandlers(authService)
	wsHandler := websocket.NewHandler(hub, authService)

	var archiveCheck func(ctx context.Context) error
	if archiveClient != nil {
		archiveCheck = archiveClient.Ping
	}
	checker := health.NewChecker(&health.CheckerConfig{
		DB:           database.DB,
		Redis:        redisStore.Client(),
		ArchiveCheck: archiveCheck,
		Version:      version,
	})
	healthHandler := health.NewHandler(checker)

	summaryCache := cache.New(redisStore.Client())
	handlers := api.NewHandlers(redisStore, run, pipeline, runRepo, uploadClient,
		api.WithSummaryCache(summaryCache))
	router := api.NewRouter(handlers, authHandlers, authService, wsHandler, healthHandler)

	handler := middleware.Chain(router,
		middleware.Recoverer(log),
		middleware.RequestID,
		middleware.Logging(log),
		middleware.Metrics(metrics.Default()),
		middleware.Gzip,
		middleware.CORS([]string{"*"}),
	)

	server := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: handler,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error(shutdownCtx, "server shutdown failed", err)
		}
	}()

	log.Info(ctx, "collector started", map[string]interface{}{
		"addr":    cfg.ServerAddr,
		"version": version,
	})
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error(ctx, "server failed", err)
		os.Exit(1)
	}
	log.Info(context.Background(), "collector stopped")
}
