// Command server runs the statement insights HTTP API.
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

	"github.com/FACorreiaa/mpesa-insights/cmd/api"
	"github.com/FACorreiaa/mpesa-insights/pkg/config"
	"github.com/FACorreiaa/mpesa-insights/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	slog.SetDefault(log)

	deps, err := api.InitDependencies(cfg, log)
	if err != nil {
		return err
	}
	defer deps.Cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The tracker outlives the signal context so events from draining tasks
	// are still recorded.
	trackerCtx, stopTracker := context.WithCancel(context.Background())
	defer stopTracker()
	go deps.Tracker.Run(trackerCtx)

	deps.Pool.Start(ctx)
	if err := deps.Scheduler.Start(); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           api.NewRouter(deps),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       2 * time.Minute,
	}

	var metricsSrv *http.Server
	if cfg.Observability.MetricsEnabled {
		metricsSrv = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Observability.MetricsPort),
			Handler:           api.NewMetricsRouter(deps),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Info("metrics server listening", slog.String("addr", metricsSrv.Addr))
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", slog.Any("error", err))
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown", slog.Any("error", err))
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			log.Error("metrics server shutdown", slog.Any("error", err))
		}
	}

	<-deps.Scheduler.Stop().Done()
	if err := deps.Pool.Stop(shutdownCtx); err != nil {
		log.Warn("task pool did not drain", slog.Any("error", err))
	}
	deps.Tracker.Flush()
	stopTracker()

	log.Info("server stopped")
	return nil
}
