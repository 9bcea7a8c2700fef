package metrics

import (
	"context"
	"log/slog"
	"time"
)

type EventType string

const (
	EventRequestPlaced     EventType = "request_placed"
	EventRequestQueued     EventType = "request_queued"
	EventRequestRejected   EventType = "request_rejected"
	EventRequestCompleted  EventType = "request_completed"
	EventRequestExpired    EventType = "request_expired"
	EventRequestReassigned EventType = "request_reassigned"
	EventServerRemoved     EventType = "server_removed"
	EventQueueDepth        EventType = "queue_depth"
	EventAssignmentTimed   EventType = "assignment_timed"
)

// Event is a single admission decision or lifecycle transition emitted
// by a router or the dispatcher.
type Event struct {
	Type       EventType
	Timestamp  time.Time
	Server     string
	RequestID  uint64
	Size       int
	QueueDepth int
	Duration   time.Duration
}

// Collector consumes admission events from a buffered channel and folds
// them into aggregate metrics. Producers never block: events are dropped
// when the buffer is full.
type Collector struct {
	eventCh  chan Event
	metrics  *Metrics
	exporter *Exporter
	logger   *slog.Logger
}

func NewCollector(bufferSize int, logger *slog.Logger) *Collector {
	return &Collector{
		eventCh: make(chan Event, bufferSize),
		metrics: NewMetrics(),
		logger:  logger,
	}
}

// SetExporter attaches a Prometheus exporter that mirrors every
// processed event. Must be called before Start.
func (c *Collector) SetExporter(exporter *Exporter) {
	c.exporter = exporter
}

// Emit offers an event to the collector without blocking. Safe to call
// on a nil collector, so producers don't need to guard the optional
// dependency.
func (c *Collector) Emit(event Event) {
	if c == nil {
		return
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case c.eventCh <- event:
	default:
	}
}

func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Collector) run(ctx context.Context) {
	c.logger.Info("Metrics collector started")
	defer c.logger.Info("Metrics collector stopped")

	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		case <-ctx.Done():
			// Drain remaining events before shutdown
			c.drain()
			return
		}
	}
}

func (c *Collector) processEvent(event Event) {
	switch event.Type {
	case EventRequestPlaced:
		c.metrics.RecordPlacement(event.Server)

	case EventRequestQueued:
		c.metrics.RecordQueued(event.QueueDepth)

	case EventRequestRejected:
		c.metrics.RecordRejection()

	case EventRequestCompleted:
		c.metrics.RecordCompletion()

	case EventRequestExpired:
		c.metrics.RecordExpiration()

	case EventRequestReassigned:
		c.metrics.RecordReassignment()

	case EventServerRemoved:
		c.metrics.RecordServerRemoval(event.Server)

	case EventQueueDepth:
		c.metrics.RecordQueueDepth(event.QueueDepth)

	case EventAssignmentTimed:
		c.metrics.RecordAssignmentTime(event.Duration)
	}

	if c.exporter != nil {
		c.exporter.observe(event)
	}
}

func (c *Collector) drain() {
	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		default:
			return
		}
	}
}

func (c *Collector) Snapshot(strategy string) Snapshot {
	return c.metrics.Snapshot(strategy)
}
