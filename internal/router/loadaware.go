package router

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/angeloszaimis/admission-router/internal/metrics"
	"github.com/angeloszaimis/admission-router/internal/server"
)

const (
	DefaultRequestTimeout      = 5 * time.Second
	DefaultHealthCheckInterval = 10 * time.Second

	defaultLoadAwareMinProcessing = 100 * time.Millisecond
	defaultLoadAwareMaxProcessing = 500 * time.Millisecond
)

// LoadAwareOptions configures the admission-control router. Zero values
// fall back to the defaults above; a nil FaultPolicy falls back to the
// probabilistic default.
type LoadAwareOptions struct {
	RequestTimeout      time.Duration
	HealthCheckInterval time.Duration
	MinProcessing       time.Duration
	MaxProcessing       time.Duration
	FaultPolicy         FaultPolicy
	OrphanPolicy        OrphanPolicy
}

// LoadAware is the full admission-control router. Requests that fit on
// a healthy server are placed on the one that would end up with the
// lowest load ratio, ties broken by fewer in-flight requests, then by
// server id. Requests that fit nowhere wait in a priority queue until a
// sweep finds room or their deadline passes.
//
// A single mutex guards all state; every public operation, including
// the background health sweep, holds it for its full duration.
type LoadAware struct {
	mu          sync.Mutex
	registry    *server.Registry
	pending     pendingQueue
	completions completionQueue
	completed   map[uint64]struct{}
	lost        int
	nextID      uint64

	requestTimeout      time.Duration
	healthCheckInterval time.Duration
	minProcessing       time.Duration
	maxProcessing       time.Duration
	fault               FaultPolicy
	orphanPolicy        OrphanPolicy

	logger *slog.Logger
	events *metrics.Collector
}

func NewLoadAware(capacities map[string]int, opts LoadAwareOptions, logger *slog.Logger, events *metrics.Collector) (*LoadAware, error) {
	registry, err := server.NewRegistry(capacities)
	if err != nil {
		return nil, err
	}

	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.HealthCheckInterval <= 0 {
		opts.HealthCheckInterval = DefaultHealthCheckInterval
	}
	if opts.MinProcessing <= 0 {
		opts.MinProcessing = defaultLoadAwareMinProcessing
	}
	if opts.MaxProcessing <= 0 {
		opts.MaxProcessing = defaultLoadAwareMaxProcessing
	}
	if opts.FaultPolicy == nil {
		opts.FaultPolicy = NewProbabilisticFault(DefaultRemovalProbability)
	}
	if opts.OrphanPolicy == "" {
		opts.OrphanPolicy = OrphanReassign
	}

	return &LoadAware{
		registry:            registry,
		completed:           make(map[uint64]struct{}),
		requestTimeout:      opts.RequestTimeout,
		healthCheckInterval: opts.HealthCheckInterval,
		minProcessing:       opts.MinProcessing,
		maxProcessing:       opts.MaxProcessing,
		fault:               opts.FaultPolicy,
		orphanPolicy:        opts.OrphanPolicy,
		logger:              logger,
		events:              events,
	}, nil
}

func (la *LoadAware) Name() string {
	return "load-aware"
}

// Start launches the background health sweep. It runs until the context
// is cancelled.
func (la *LoadAware) Start(ctx context.Context) {
	go la.healthLoop(ctx)
}

// Assign runs a state-update sweep, then either places the request
// immediately or inserts it into the pending queue. It never blocks
// waiting for capacity.
func (la *LoadAware) Assign(size, priority int) Result {
	la.mu.Lock()
	defer la.mu.Unlock()

	now := time.Now()
	la.sweepLocked(now)

	la.nextID++
	id := la.nextID

	if srv := la.selectLocked(size); srv != nil {
		la.admitLocked(srv, id, size, priority, now, now)

		la.logger.Info("Request placed",
			slog.String("server", srv.ID()),
			slog.Uint64("request_id", id),
			slog.Int("size", size))
		la.events.Emit(metrics.Event{Type: metrics.EventRequestPlaced, Server: srv.ID(), RequestID: id, Size: size})

		return Result{Outcome: OutcomePlaced, Server: srv.ID(), RequestID: id}
	}

	heap.Push(&la.pending, &pendingRequest{
		id:       id,
		size:     size,
		priority: priority,
		arrival:  now,
	})

	if size > la.registry.MaxCapacity() {
		la.logger.Warn("Request exceeds every server's capacity and can only expire",
			slog.Uint64("request_id", id),
			slog.Int("size", size),
			slog.Int("max_capacity", la.registry.MaxCapacity()))
	}

	la.logger.Info("Request queued",
		slog.Uint64("request_id", id),
		slog.Int("size", size),
		slog.Int("priority", priority),
		slog.Int("queue_position", len(la.pending)))
	la.events.Emit(metrics.Event{Type: metrics.EventRequestQueued, RequestID: id, Size: size, QueueDepth: len(la.pending)})

	return Result{Outcome: OutcomeQueued, RequestID: id, QueuePosition: len(la.pending)}
}

// Sweep runs the state-update sweep on demand: elapsed completions are
// finalized, expired pending requests dropped, and the rest re-offered
// to the pool.
func (la *LoadAware) Sweep() {
	la.mu.Lock()
	defer la.mu.Unlock()
	la.sweepLocked(time.Now())
}

// selectLocked returns the feasible server minimizing the pair
// (resulting load ratio, active request count), or nil when the request
// fits nowhere. Iteration is in server id order, so full ties resolve
// to the lowest id.
func (la *LoadAware) selectLocked(size int) *server.Server {
	var chosen *server.Server
	la.registry.Each(func(srv *server.Server) {
		if srv.Status() != server.StatusHealthy || !srv.Fits(size) {
			return
		}
		if chosen == nil {
			chosen = srv
			return
		}

		ratio, best := srv.LoadRatioWith(size), chosen.LoadRatioWith(size)
		if ratio < best || (ratio == best && srv.ActiveCount() < chosen.ActiveCount()) {
			chosen = srv
		}
	})

	return chosen
}

func (la *LoadAware) admitLocked(srv *server.Server, id uint64, size, priority int, arrival, now time.Time) {
	completion := now.Add(randomDuration(la.minProcessing, la.maxProcessing))
	srv.Admit(server.ActiveRequest{
		ID:             id,
		Size:           size,
		Priority:       priority,
		ArrivalTime:    arrival,
		CompletionTime: completion,
	})
	heap.Push(&la.completions, completionRecord{at: completion, serverID: srv.ID(), requestID: id})
}

func (la *LoadAware) sweepLocked(now time.Time) {
	for len(la.completions) > 0 && !la.completions[0].at.After(now) {
		rec := heap.Pop(&la.completions).(completionRecord)

		srv, ok := la.registry.Get(rec.serverID)
		if !ok {
			// Server removed; its orphans were settled at removal time.
			continue
		}

		req, ok := srv.Complete(rec.requestID)
		if !ok {
			continue
		}

		la.completed[req.ID] = struct{}{}
		la.logger.Debug("Request completed",
			slog.String("server", srv.ID()),
			slog.Uint64("request_id", req.ID),
			slog.Int("size", req.Size))
		la.events.Emit(metrics.Event{Type: metrics.EventRequestCompleted, Server: srv.ID(), RequestID: req.ID, Size: req.Size})
	}

	if len(la.pending) == 0 {
		return
	}

	// Re-run admission for every pending request in priority order.
	// Requests that still fit nowhere keep their original priority and
	// arrival time, so their ordering against later arrivals survives
	// the rebuild.
	drained := make([]*pendingRequest, 0, len(la.pending))
	for len(la.pending) > 0 {
		drained = append(drained, heap.Pop(&la.pending).(*pendingRequest))
	}

	for _, pr := range drained {
		if now.Sub(pr.arrival) > la.requestTimeout {
			la.lost++
			la.logger.Warn("Request expired in queue",
				slog.Uint64("request_id", pr.id),
				slog.Int("size", pr.size),
				slog.Duration("waited", now.Sub(pr.arrival)))
			la.events.Emit(metrics.Event{Type: metrics.EventRequestExpired, RequestID: pr.id, Size: pr.size})
			continue
		}

		srv := la.selectLocked(pr.size)
		if srv == nil {
			heap.Push(&la.pending, pr)
			continue
		}

		la.admitLocked(srv, pr.id, pr.size, pr.priority, pr.arrival, now)
		la.logger.Info("Request placed from queue",
			slog.String("server", srv.ID()),
			slog.Uint64("request_id", pr.id),
			slog.Int("size", pr.size))
		la.events.Emit(metrics.Event{Type: metrics.EventRequestPlaced, Server: srv.ID(), RequestID: pr.id, Size: pr.size})
	}

	la.events.Emit(metrics.Event{Type: metrics.EventQueueDepth, QueueDepth: len(la.pending)})
}

func (la *LoadAware) healthLoop(ctx context.Context) {
	ticker := time.NewTicker(la.healthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			la.logger.Info("Health sweep stopped")
			return
		case <-ticker.C:
			la.healthSweep()
		}
	}
}

func (la *LoadAware) healthSweep() {
	la.mu.Lock()
	defer la.mu.Unlock()

	for _, id := range la.registry.IDs() {
		if !la.fault.ShouldFail(id) {
			continue
		}

		srv, _ := la.registry.Remove(id)
		orphans := srv.Active()

		la.logger.Warn("Server removed from pool",
			slog.String("server", id),
			slog.Int("orphaned_requests", len(orphans)))
		la.events.Emit(metrics.Event{Type: metrics.EventServerRemoved, Server: id})

		for _, req := range orphans {
			if la.orphanPolicy == OrphanReassign {
				heap.Push(&la.pending, &pendingRequest{
					id:       req.ID,
					size:     req.Size,
					priority: req.Priority,
					arrival:  req.ArrivalTime,
				})
				la.logger.Info("Orphaned request re-queued",
					slog.Uint64("request_id", req.ID),
					slog.String("server", id))
				la.events.Emit(metrics.Event{Type: metrics.EventRequestReassigned, Server: id, RequestID: req.ID, Size: req.Size})
			} else {
				la.lost++
				la.logger.Warn("Orphaned request dropped",
					slog.Uint64("request_id", req.ID),
					slog.String("server", id))
				la.events.Emit(metrics.Event{Type: metrics.EventRequestExpired, Server: id, RequestID: req.ID, Size: req.Size})
			}
		}
	}
}

// QueueDepth returns the number of pending requests.
func (la *LoadAware) QueueDepth() int {
	la.mu.Lock()
	defer la.mu.Unlock()
	return len(la.pending)
}

// Completed reports whether the given request finished processing.
func (la *LoadAware) Completed(id uint64) bool {
	la.mu.Lock()
	defer la.mu.Unlock()
	_, ok := la.completed[id]
	return ok
}

// Lost returns how many requests expired in the queue or were dropped
// as orphans.
func (la *LoadAware) Lost() int {
	la.mu.Lock()
	defer la.mu.Unlock()
	return la.lost
}

// Servers returns the ids of servers still in the pool.
func (la *LoadAware) Servers() []string {
	la.mu.Lock()
	defer la.mu.Unlock()
	return la.registry.IDs()
}

// Stats returns a point-in-time per-server snapshot.
func (la *LoadAware) Stats() map[string]ServerStats {
	la.mu.Lock()
	defer la.mu.Unlock()

	stats := make(map[string]ServerStats, la.registry.Len())
	la.registry.Each(func(srv *server.Server) {
		stats[srv.ID()] = ServerStats{
			Capacity: srv.Capacity(),
			Load:     srv.Load(),
			Active:   srv.ActiveCount(),
		}
	})

	return stats
}
