package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Exporter mirrors collector events into Prometheus instruments so the
// engine can be scraped alongside the JSON snapshot.
type Exporter struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	placements     *prometheus.CounterVec
	rejections     prometheus.Counter
	queued         prometheus.Counter
	completions    prometheus.Counter
	expirations    prometheus.Counter
	reassignments  prometheus.Counter
	serverRemovals *prometheus.CounterVec
	queueDepth     prometheus.Gauge
	assignmentTime prometheus.Histogram
}

// NewExporter creates a Prometheus exporter. A nil registerer falls
// back to prometheus.DefaultRegisterer, an empty namespace to
// "admission".
func NewExporter(reg prometheus.Registerer, namespace string) *Exporter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "admission"
	}

	return &Exporter{reg: reg, namespace: namespace}
}

func (e *Exporter) ensureRegistered() {
	e.once.Do(func() {
		e.placements = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: e.namespace,
			Subsystem: "router",
			Name:      "placements_total",
			Help:      "Requests placed immediately, by server.",
		}, []string{"server"})

		e.rejections = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: e.namespace,
			Subsystem: "router",
			Name:      "rejections_total",
			Help:      "Requests rejected for lack of capacity.",
		})

		e.queued = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: e.namespace,
			Subsystem: "router",
			Name:      "queued_total",
			Help:      "Requests deferred to the pending queue.",
		})

		e.completions = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: e.namespace,
			Subsystem: "router",
			Name:      "completions_total",
			Help:      "Requests whose synthetic processing finished.",
		})

		e.expirations = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: e.namespace,
			Subsystem: "router",
			Name:      "expirations_total",
			Help:      "Pending requests dropped after exceeding their deadline.",
		})

		e.reassignments = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: e.namespace,
			Subsystem: "router",
			Name:      "reassignments_total",
			Help:      "Orphaned requests re-queued after a server removal.",
		})

		e.serverRemovals = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: e.namespace,
			Subsystem: "router",
			Name:      "server_removals_total",
			Help:      "Servers permanently removed by the health sweep.",
		}, []string{"server"})

		e.queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: e.namespace,
			Subsystem: "router",
			Name:      "queue_depth",
			Help:      "Current pending queue depth.",
		})

		e.assignmentTime = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: e.namespace,
			Subsystem: "dispatch",
			Name:      "assignment_seconds",
			Help:      "End-to-end assignment latency observed by the dispatcher.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		})

		e.reg.MustRegister(
			e.placements,
			e.rejections,
			e.queued,
			e.completions,
			e.expirations,
			e.reassignments,
			e.serverRemovals,
			e.queueDepth,
			e.assignmentTime,
		)
	})
}

func (e *Exporter) observe(event Event) {
	e.ensureRegistered()

	switch event.Type {
	case EventRequestPlaced:
		e.placements.WithLabelValues(event.Server).Inc()

	case EventRequestQueued:
		e.queued.Inc()
		e.queueDepth.Set(float64(event.QueueDepth))

	case EventRequestRejected:
		e.rejections.Inc()

	case EventRequestCompleted:
		e.completions.Inc()

	case EventRequestExpired:
		e.expirations.Inc()

	case EventRequestReassigned:
		e.reassignments.Inc()

	case EventServerRemoved:
		e.serverRemovals.WithLabelValues(event.Server).Inc()

	case EventQueueDepth:
		e.queueDepth.Set(float64(event.QueueDepth))

	case EventAssignmentTimed:
		e.assignmentTime.Observe(event.Duration.Seconds())
	}
}
