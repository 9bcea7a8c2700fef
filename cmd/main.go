package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angeloszaimis/admission-router/config"
	"github.com/angeloszaimis/admission-router/internal/httpserver"
	"github.com/angeloszaimis/admission-router/internal/metrics"
	"github.com/angeloszaimis/admission-router/internal/workload"
	"github.com/angeloszaimis/admission-router/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, true, cfg.Server.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	collector := metrics.NewCollector(1024, log)
	collector.SetExporter(metrics.NewExporter(prometheus.DefaultRegisterer, "admission"))
	collector.Start(ctx)

	srv, err := httpserver.New(cfg.Server.Address, setupRouter(collector, cfg.Strategy.Type))
	if err != nil {
		log.Error("Failed to create observability server", slog.Any("err", err))
		os.Exit(1)
	}

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Start()
	}()

	gen := workload.New(workload.Options{
		MinSize:      cfg.Workload.MinSize,
		MaxSize:      cfg.Workload.MaxSize,
		Interarrival: mustDuration(cfg.Workload.Interarrival),
	})
	sizes := gen.Sizes(cfg.Workload.Requests)

	doneCh := make(chan struct{})
	go func() {
		defer close(doneCh)
		runHarness(ctx, cfg, sizes, log, collector)
	}()

	select {
	case <-doneCh:
		log.Info("Workload finished, shutting down")
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-srvErrCh:
		if err != nil {
			log.Error("Error starting observability server", slog.Any("err", err))
			os.Exit(1)
		}
	}

	if err := srv.Shutdown(context.Background()); err != nil {
		log.Error("Error during shutdown", slog.Any("err", err))
	}
}

func mustDuration(s string) time.Duration {
	// Already validated by config.Load.
	d, _ := time.ParseDuration(s)
	return d
}
