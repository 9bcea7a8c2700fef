package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/angeloszaimis/admission-router/config"
	"github.com/angeloszaimis/admission-router/internal/dispatch"
	"github.com/angeloszaimis/admission-router/internal/metrics"
	"github.com/angeloszaimis/admission-router/internal/router"
)

type runStats struct {
	placed     int
	queued     int
	rejected   int
	totalTime  time.Duration
	totalCalls int
}

// runHarness drives the configured strategy, or all three sequentially
// when the "compare" strategy is selected, over the same workload.
func runHarness(ctx context.Context, cfg *config.Config, sizes []int, log *slog.Logger, collector *metrics.Collector) {
	strategies := []string{cfg.Strategy.Type}
	if cfg.Strategy.Type == config.StrategyCompare {
		strategies = []string{
			config.StrategyRoundRobin,
			config.StrategyLeastConnections,
			config.StrategyLoadAware,
		}
	}

	for _, name := range strategies {
		if ctx.Err() != nil {
			return
		}

		r, err := buildRouter(ctx, cfg, name, log, collector)
		if err != nil {
			log.Error("Failed to build router",
				slog.String("strategy", name),
				slog.Any("err", err))
			return
		}

		stats := runStrategy(ctx, cfg, r, sizes, log, collector)

		avg := time.Duration(0)
		if stats.totalCalls > 0 {
			avg = stats.totalTime / time.Duration(stats.totalCalls)
		}

		log.Info("Strategy run finished",
			slog.String("strategy", name),
			slog.Int("placed", stats.placed),
			slog.Int("queued", stats.queued),
			slog.Int("rejected", stats.rejected),
			slog.Duration("avg_assignment", avg))
	}
}

func runStrategy(ctx context.Context, cfg *config.Config, r router.Router, sizes []int, log *slog.Logger, collector *metrics.Collector) runStats {
	d := dispatch.New(r, dispatch.Options{
		MinDelay: mustDuration(cfg.Processing.DispatchMin),
		MaxDelay: mustDuration(cfg.Processing.DispatchMax),
	}, log, collector)

	var stats runStats
	for _, size := range sizes {
		if ctx.Err() != nil {
			return stats
		}

		result, elapsed := d.Assign(size, router.DefaultPriority)
		stats.totalCalls++
		stats.totalTime += elapsed

		switch result.Outcome {
		case router.OutcomePlaced:
			stats.placed++
		case router.OutcomeQueued:
			stats.queued++
		case router.OutcomeRejected:
			stats.rejected++
		}
	}

	return stats
}

func buildRouter(ctx context.Context, cfg *config.Config, name string, log *slog.Logger, collector *metrics.Collector) (router.Router, error) {
	capacities := cfg.Capacities()

	switch name {
	case config.StrategyLeastConnections:
		return router.NewLeastConnections(capacities, router.LeastConnectionsOptions{
			MinProcessing: mustDuration(cfg.Processing.LeastConnMin),
			MaxProcessing: mustDuration(cfg.Processing.LeastConnMax),
		}, log, collector)

	case config.StrategyLoadAware:
		la, err := router.NewLoadAware(capacities, router.LoadAwareOptions{
			RequestTimeout:      mustDuration(cfg.Admission.RequestTimeout),
			HealthCheckInterval: mustDuration(cfg.Admission.HealthCheckInterval),
			MinProcessing:       mustDuration(cfg.Processing.LoadAwareMin),
			MaxProcessing:       mustDuration(cfg.Processing.LoadAwareMax),
			FaultPolicy:         router.NewProbabilisticFault(cfg.Admission.FailureProbability),
			OrphanPolicy:        router.OrphanPolicy(cfg.Admission.OrphanPolicy),
		}, log, collector)
		if err != nil {
			return nil, err
		}
		la.Start(ctx)
		return la, nil

	default:
		return router.NewRoundRobin(capacities, log, collector)
	}
}
