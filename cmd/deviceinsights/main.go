// Package main wires together the device insights service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ciscoinsights/device-insights/internal/api"
	"github.com/ciscoinsights/device-insights/internal/archive"
	"github.com/ciscoinsights/device-insights/internal/clock/system"
	"github.com/ciscoinsights/device-insights/internal/config"
	"github.com/ciscoinsights/device-insights/internal/features"
	"github.com/ciscoinsights/device-insights/internal/id/uuid"
	"github.com/ciscoinsights/device-insights/internal/index"
	"github.com/ciscoinsights/device-insights/internal/logging"
	"github.com/ciscoinsights/device-insights/internal/metrics"
	"github.com/ciscoinsights/device-insights/internal/ratelimit"
	"github.com/ciscoinsights/device-insights/internal/refresh"
	"github.com/ciscoinsights/device-insights/internal/scrape"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	envFile := flag.String("env", "", "Path to an optional .env file loaded before config")
	flag.Parse()

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			fmt.Fprintf(os.Stderr, "load env file failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		// Best effort load of a local .env for development runs.
		_ = godotenv.Load()
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := system.New()
	idGen := uuid.New()

	indexSvc := index.NewService(cfg.EOLArchivePath(), clock, logger)
	featureSvc, err := features.NewService(cfg.FeaturesArchivePath(), cfg.Features.CacheEntries, logger)
	if err != nil {
		logger.Fatal("feature service init failed", zap.Error(err))
	}

	scheduler := refresh.New(cfg.Refresh.Interval, clock, logger, indexSvc, featureSvc)
	apiServer := api.NewServer(indexSvc, featureSvc, scheduler, idGen, clock, cfg, logger)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	go scheduler.Run(ctx)

	if cfg.Scrape.Enabled {
		collector, err := scrape.NewCollector(scrape.Config{
			AllowedDomains: cfg.Scrape.AllowedDomains,
			UserAgent:      cfg.Scrape.UserAgent,
			Concurrency:    cfg.Scrape.Concurrency,
			Delay:          cfg.Scrape.Delay,
			Timeout:        cfg.Scrape.RequestTimeout,
		}, logger)
		if err != nil {
			logger.Fatal("collector init failed", zap.Error(err))
		}
		parser, err := scrape.NewPageParser(cfg.Scrape.BaseURL)
		if err != nil {
			logger.Fatal("parser init failed", zap.Error(err))
		}
		builder := archive.NewBuilder(cfg.EOLStagingPath(), cfg.EOLArchivePath(), cfg.Data.CompressionLevel, logger)
		job := scrape.NewJob(collector, parser, builder, idGen, scrape.JobConfig{
			ProductsURL:      cfg.Scrape.ProductsURL,
			CatalogPath:      cfg.CatalogPath(),
			SeriesSuffix:     cfg.Scrape.SeriesSuffix,
			EOLListingSuffix: cfg.Scrape.EOLListingSuffix,
			FNListingSuffix:  cfg.Scrape.FNListingSuffix,
			Concurrency:      cfg.Scrape.Concurrency,
		}, logger)
		go runThenRefresh(ctx, "scrape", job.Run, indexSvc, logger)
	}

	if cfg.Features.Enabled {
		limiter := ratelimit.New(requestRate(cfg.Features.RequestDelay), 1)
		client, err := features.NewClient(cfg.Features.BaseURL,
			features.WithLimiter(limiter),
			features.WithRetries(cfg.Features.MaxRetries),
			features.WithHTTPClient(&http.Client{Timeout: cfg.Features.RequestTimeout}),
		)
		if err != nil {
			logger.Fatal("feature client init failed", zap.Error(err))
		}
		hasher, err := features.NewHasher(cfg.Features.HashSize)
		if err != nil {
			logger.Fatal("feature hasher init failed", zap.Error(err))
		}
		builder := archive.NewBuilder(cfg.FeaturesStagingPath(), cfg.FeaturesArchivePath(), cfg.Data.CompressionLevel, logger)
		job := features.NewJob(client, features.NewStager(builder, hasher), cfg.Features.Concurrency, logger)
		go runThenRefresh(ctx, "features", job.Run, featureSvc, logger)
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

// runThenRefresh runs a build job to completion and refreshes the
// serving side so the new archive generation goes live immediately
// instead of waiting for the next scheduled cycle.
func runThenRefresh(ctx context.Context, name string, run func(context.Context) error, r refresh.Refresher, logger *zap.Logger) {
	if err := run(ctx); err != nil {
		logger.Error("job failed", zap.String("job", name), zap.Error(err))
		return
	}
	if err := r.Refresh(ctx); err != nil {
		logger.Error("refresh after job failed", zap.String("job", name), zap.Error(err))
	}
}

// requestRate converts a per-request delay into a per-second rate for
// the limiter. A non-positive delay disables pacing.
func requestRate(delay time.Duration) float64 {
	if delay <= 0 {
		return 0
	}
	return 1 / delay.Seconds()
}
