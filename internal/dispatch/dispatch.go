package dispatch

import (
	"log/slog"
	"math/rand"
	"time"

	"github.com/angeloszaimis/admission-router/internal/metrics"
	"github.com/angeloszaimis/admission-router/internal/router"
)

const (
	defaultMinDelay = 10 * time.Millisecond
	defaultMaxDelay = 100 * time.Millisecond
)

// Options bounds the simulated external-processing delay the dispatcher
// adds to every call. This models network and handling latency on the
// caller's side and is distinct from the synthetic server-side
// completion timing the routers track internally.
type Options struct {
	MinDelay time.Duration
	MaxDelay time.Duration
}

// Dispatcher is the uniform entry point in front of a router. It
// measures end-to-end assignment latency, simulated delay included.
// The delay happens outside the router's lock, so concurrent callers
// only serialize on the actual state mutation.
type Dispatcher struct {
	router   router.Router
	minDelay time.Duration
	maxDelay time.Duration
	logger   *slog.Logger
	events   *metrics.Collector
}

func New(r router.Router, opts Options, logger *slog.Logger, events *metrics.Collector) *Dispatcher {
	if opts.MinDelay <= 0 {
		opts.MinDelay = defaultMinDelay
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = defaultMaxDelay
	}

	return &Dispatcher{
		router:   r,
		minDelay: opts.MinDelay,
		maxDelay: opts.MaxDelay,
		logger:   logger,
		events:   events,
	}
}

// Router returns the wrapped router.
func (d *Dispatcher) Router() router.Router {
	return d.router
}

// Assign routes a request through the configured router and returns the
// result along with the elapsed wall-clock time.
func (d *Dispatcher) Assign(size, priority int) (router.Result, time.Duration) {
	start := time.Now()

	result := d.router.Assign(size, priority)

	delay := d.minDelay
	if d.maxDelay > d.minDelay {
		delay += time.Duration(rand.Int63n(int64(d.maxDelay - d.minDelay)))
	}
	time.Sleep(delay)

	elapsed := time.Since(start)

	d.logger.Debug("Assignment dispatched",
		slog.String("strategy", d.router.Name()),
		slog.String("outcome", result.Outcome.String()),
		slog.Int("size", size),
		slog.Duration("elapsed", elapsed))
	d.events.Emit(metrics.Event{Type: metrics.EventAssignmentTimed, Duration: elapsed})

	return result, elapsed
}
