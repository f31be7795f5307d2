package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lysyi3m/rss-sync/app/api"
	"github.com/lysyi3m/rss-sync/app/cache"
	"github.com/lysyi3m/rss-sync/app/cfg"
	"github.com/lysyi3m/rss-sync/app/core"
	"github.com/lysyi3m/rss-sync/app/database"
	"github.com/lysyi3m/rss-sync/app/feed"
	"github.com/lysyi3m/rss-sync/app/fetcher"
	"github.com/lysyi3m/rss-sync/app/sources"
	"github.com/lysyi3m/rss-sync/app/tasks"
)

func main() {
	appConfig, err := cfg.Load(os.Args[1:])
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if appConfig == nil {
		return
	}

	setupLogger(appConfig.Debug)

	if err := run(appConfig); err != nil {
		slog.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
}

func setupLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}

func run(appConfig *cfg.Cfg) error {
	slog.Info("Starting RSS Sync server", "version", appConfig.Version, "driver", appConfig.DBDriver)

	db, err := database.NewConnection(database.ConnectionOptions{
		Driver:   appConfig.DBDriver,
		Host:     appConfig.DBHost,
		Port:     appConfig.DBPort,
		User:     appConfig.DBUser,
		Password: appConfig.DBPassword,
		Name:     appConfig.DBName,
		SSLMode:  appConfig.DBSSLMode,
		Path:     appConfig.DBPath,
		MaxConns: appConfig.DBMaxConns,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Info("Database ready", "schema_version", version, "dirty", dirty)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pageCache, err := newPageCache(ctx, appConfig)
	if err != nil {
		return err
	}
	defer pageCache.Close()

	feedRepo := database.NewFeedRepository(db)
	entryRepo := database.NewEntryRepository(db)
	metadataRepo := database.NewMetadataRepository(db)

	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        appConfig.WorkerCount * 2,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}

	feedFetcher := fetcher.New(httpClient, feed.NewParser(), fetcher.Options{
		Timeout:      appConfig.FetchTimeout,
		RateWindow:   appConfig.FetchCooldown,
		MaxBodyBytes: appConfig.MaxBodyBytes,
		UserAgent:    appConfig.UserAgent,
	})
	normalizer := feed.NewNormalizer(feed.NewMediaCache(10000, 24*time.Hour))
	scheduler := tasks.NewScheduler(feedFetcher, normalizer, entryRepo, metadataRepo, appConfig.WorkerCount)

	service := core.NewService(feedRepo, entryRepo, scheduler, pageCache, core.Options{
		PageSize:        appConfig.PageSize,
		MaxPageSize:     appConfig.MaxPageSize,
		SearchThreshold: appConfig.SearchThreshold,
	})

	sourceCache := sources.NewCache(appConfig.SourcesFile)
	if err := sourceCache.Run(); err != nil {
		return fmt.Errorf("failed to load sources file: %w", err)
	}
	seeded, err := sourceCache.Seed(ctx, service)
	if err != nil {
		return err
	}
	slog.Info("Sources seeded", "file", appConfig.SourcesFile,
		"categories", len(sourceCache.GetCategoryNames()), "sources", seeded)

	var runner *tasks.Runner
	var health api.HealthReporter
	if appConfig.SchedulerInterval > 0 {
		runner = tasks.NewRunner(service, tasks.RunnerOptions{
			Interval:       appConfig.SchedulerInterval,
			Workers:        2,
			AutoClean:      appConfig.AutoClean,
			CleanThreshold: appConfig.AutoCleanAfter,
		})
		runner.Start()
		health = runner
		slog.Info("Background runner started", "interval", appConfig.SchedulerInterval,
			"fetch_workers", appConfig.WorkerCount, "auto_clean", appConfig.AutoClean)
	} else {
		slog.Info("Periodic ingestion disabled")
	}

	handler := api.NewHandler(service, health)
	httpServer := &http.Server{
		Addr:         ":" + appConfig.Port,
		Handler:      api.NewServer(handler, appConfig.APIAccessKey),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", appConfig.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
	case serveErr = <-serverErrChan:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}

	if runner != nil {
		runner.Stop()
		slog.Info("Background runner stopped")
	}

	slog.Info("RSS Sync server shutdown complete")
	return serveErr
}

func newPageCache(ctx context.Context, appConfig *cfg.Cfg) (cache.Cache, error) {
	if appConfig.RedisAddr == "" {
		return cache.NewMemory(appConfig.CacheSize, appConfig.CacheTTL), nil
	}

	redisCache, err := cache.NewRedis(ctx, appConfig.RedisAddr, appConfig.CacheTTL)
	if err != nil {
		return nil, err
	}
	return redisCache, nil
}
