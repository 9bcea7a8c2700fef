package router

import (
	"log/slog"
	"sync"

	"github.com/angeloszaimis/admission-router/internal/metrics"
	"github.com/angeloszaimis/admission-router/internal/server"
)

// RoundRobin cycles through the server pool in id order. It tracks no
// load at all: a request is rejected only when it exceeds the selected
// server's configured capacity, and the cursor advances regardless of
// the outcome.
type RoundRobin struct {
	mu       sync.Mutex
	registry *server.Registry
	index    int
	logger   *slog.Logger
	events   *metrics.Collector
}

func NewRoundRobin(capacities map[string]int, logger *slog.Logger, events *metrics.Collector) (*RoundRobin, error) {
	registry, err := server.NewRegistry(capacities)
	if err != nil {
		return nil, err
	}

	return &RoundRobin{
		registry: registry,
		logger:   logger,
		events:   events,
	}, nil
}

func (rr *RoundRobin) Name() string {
	return "round-robin"
}

// Assign picks the server at the cursor and advances it. The priority
// argument is accepted for contract uniformity and ignored.
func (rr *RoundRobin) Assign(size, _ int) Result {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	ids := rr.registry.IDs()
	id := ids[rr.index]
	rr.index = (rr.index + 1) % len(ids)

	srv, _ := rr.registry.Get(id)
	if size > srv.Capacity() {
		rr.logger.Info("Request rejected",
			slog.String("server", id),
			slog.Int("size", size),
			slog.Int("capacity", srv.Capacity()))
		rr.events.Emit(metrics.Event{Type: metrics.EventRequestRejected, Size: size})
		return Result{Outcome: OutcomeRejected}
	}

	rr.logger.Info("Request placed",
		slog.String("server", id),
		slog.Int("size", size))
	rr.events.Emit(metrics.Event{Type: metrics.EventRequestPlaced, Server: id, Size: size})

	return Result{Outcome: OutcomePlaced, Server: id}
}
