package router

import (
	"log/slog"
	"sync"
	"time"

	"github.com/angeloszaimis/admission-router/internal/metrics"
	"github.com/angeloszaimis/admission-router/internal/server"
)

const (
	defaultLeastConnMinProcessing = 10 * time.Millisecond
	defaultLeastConnMaxProcessing = 100 * time.Millisecond
)

// LeastConnectionsOptions tunes the synthetic processing window used to
// decide when an admitted request releases its capacity.
type LeastConnectionsOptions struct {
	MinProcessing time.Duration
	MaxProcessing time.Duration
}

// LeastConnections routes each request to the eligible server with the
// fewest in-flight requests. Capacity is reclaimed lazily: before every
// decision, requests whose synthetic completion time has elapsed are
// dropped and their size freed. There is no release call in the
// contract; reclamation is purely time-driven.
type LeastConnections struct {
	mu            sync.Mutex
	registry      *server.Registry
	nextID        uint64
	minProcessing time.Duration
	maxProcessing time.Duration
	logger        *slog.Logger
	events        *metrics.Collector
}

func NewLeastConnections(capacities map[string]int, opts LeastConnectionsOptions, logger *slog.Logger, events *metrics.Collector) (*LeastConnections, error) {
	registry, err := server.NewRegistry(capacities)
	if err != nil {
		return nil, err
	}

	if opts.MinProcessing <= 0 {
		opts.MinProcessing = defaultLeastConnMinProcessing
	}
	if opts.MaxProcessing <= 0 {
		opts.MaxProcessing = defaultLeastConnMaxProcessing
	}

	return &LeastConnections{
		registry:      registry,
		minProcessing: opts.MinProcessing,
		maxProcessing: opts.MaxProcessing,
		logger:        logger,
		events:        events,
	}, nil
}

func (lc *LeastConnections) Name() string {
	return "least-connections"
}

// Assign reclaims elapsed requests, then places the request on the
// server with the fewest active connections among those with enough
// free capacity. Ties go to the lowest server id. The priority argument
// is accepted for contract uniformity and ignored.
func (lc *LeastConnections) Assign(size, _ int) Result {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	now := time.Now()
	lc.reclaim(now)

	var chosen *server.Server
	lc.registry.Each(func(srv *server.Server) {
		if !srv.Fits(size) {
			return
		}
		if chosen == nil || srv.ActiveCount() < chosen.ActiveCount() {
			chosen = srv
		}
	})

	if chosen == nil {
		lc.logger.Info("Request rejected: no server has enough free capacity",
			slog.Int("size", size))
		lc.events.Emit(metrics.Event{Type: metrics.EventRequestRejected, Size: size})
		return Result{Outcome: OutcomeRejected}
	}

	lc.nextID++
	chosen.Admit(server.ActiveRequest{
		ID:             lc.nextID,
		Size:           size,
		ArrivalTime:    now,
		CompletionTime: now.Add(randomDuration(lc.minProcessing, lc.maxProcessing)),
	})

	lc.logger.Info("Request placed",
		slog.String("server", chosen.ID()),
		slog.Int("size", size),
		slog.Int("connections", chosen.ActiveCount()))
	lc.events.Emit(metrics.Event{Type: metrics.EventRequestPlaced, Server: chosen.ID(), RequestID: lc.nextID, Size: size})

	return Result{Outcome: OutcomePlaced, Server: chosen.ID(), RequestID: lc.nextID}
}

func (lc *LeastConnections) reclaim(now time.Time) {
	lc.registry.Each(func(srv *server.Server) {
		for _, req := range srv.Expired(now) {
			srv.Complete(req.ID)
			lc.logger.Debug("Request completed",
				slog.String("server", srv.ID()),
				slog.Uint64("request_id", req.ID),
				slog.Int("size", req.Size))
			lc.events.Emit(metrics.Event{Type: metrics.EventRequestCompleted, Server: srv.ID(), RequestID: req.ID, Size: req.Size})
		}
	})
}

// Stats returns a per-server snapshot, reclaiming elapsed requests
// first so the view is current.
func (lc *LeastConnections) Stats() map[string]ServerStats {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	lc.reclaim(time.Now())

	stats := make(map[string]ServerStats, lc.registry.Len())
	lc.registry.Each(func(srv *server.Server) {
		stats[srv.ID()] = ServerStats{
			Capacity: srv.Capacity(),
			Load:     srv.Load(),
			Active:   srv.ActiveCount(),
		}
	})

	return stats
}
