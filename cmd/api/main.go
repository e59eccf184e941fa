package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/kurihiro0119/docsync/internal/accesslog"
	"github.com/kurihiro0119/docsync/internal/aggregator"
	"github.com/kurihiro0119/docsync/internal/api"
	"github.com/kurihiro0119/docsync/internal/app"
	"github.com/kurihiro0119/docsync/internal/config"
	"github.com/kurihiro0119/docsync/internal/logging"
	"github.com/kurihiro0119/docsync/internal/queue"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	closer := logging.Setup(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
	defer closer.Close()
	logger := slog.Default()

	// Initialize storage
	store, err := app.OpenStorage(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize %s storage: %w", cfg.StorageType, err)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Access log worker
	overflow, _ := queue.ParseOverflowPolicy(cfg.AccessLogOverflow)
	worker := accesslog.NewWorker(store, accesslog.Config{
		Capacity:     cfg.AccessLogQueueCapacity,
		Overflow:     overflow,
		ErrorBackoff: 5 * time.Second,
		Logger:       logger,
	})

	var wg sync.WaitGroup
	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Run(workerCtx)
	}()

	// Sync scheduler, only when the analysis collaborator is configured
	var trigger api.Trigger
	clients, err := app.NewClients(cfg, logger)
	if err != nil {
		logger.Warn("analysis collaborator not configured, scheduler disabled", "error", err)
	} else {
		sched := app.NewScheduler(cfg, store, clients, logger)
		trigger = sched
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sched.Run(ctx); err != nil {
				logger.Error("scheduler exited", "error", err)
			}
		}()
	}

	// Setup routes
	handler := api.NewHandler(store, aggregator.NewAggregator(store), trigger)
	router := api.SetupRoutes(handler, worker, logger)

	addr := fmt.Sprintf("%s:%s", cfg.APIHost, cfg.APIPort)
	srv := &http.Server{Addr: addr, Handler: router, ReadHeaderTimeout: 10 * time.Second}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting API server", "addr", addr, "storage", cfg.StorageType)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			stop()
			stopWorker()
			wg.Wait()
			return fmt.Errorf("server failed: %w", err)
		}
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}

	// stop the consumer loop, then persist what is left within the drain window
	stopWorker()
	wg.Wait()
	worker.Drain(cfg.AccessLogDrainTimeout)
	return nil
}
