package metrics

import (
	"sort"
	"sync"
	"time"
)

type Metrics struct {
	mutex           sync.RWMutex
	placements      map[string]int64
	rejections      int64
	queued          int64
	completions     int64
	expirations     int64
	reassignments   int64
	removedServers  []string
	queueDepth      int
	assignmentTimes []time.Duration
	startTime       time.Time
}

type Snapshot struct {
	Strategy         string           `json:"strategy"`
	Uptime           time.Duration    `json:"uptime"`
	TotalAssignments int64            `json:"total_assignments"`
	Placements       map[string]int64 `json:"placements"`
	Rejections       int64            `json:"rejections"`
	Queued           int64            `json:"queued"`
	Completions      int64            `json:"completions"`
	Expirations      int64            `json:"expirations"`
	Reassignments    int64            `json:"reassignments"`
	RemovedServers   []string         `json:"removed_servers"`
	QueueDepth       int              `json:"queue_depth"`
	AvgAssignment    time.Duration    `json:"avg_assignment"`
	P50Assignment    time.Duration    `json:"p50_assignment"`
	P95Assignment    time.Duration    `json:"p95_assignment"`
	P99Assignment    time.Duration    `json:"p99_assignment"`
}

func NewMetrics() *Metrics {
	return &Metrics{
		placements: make(map[string]int64),
		startTime:  time.Now(),
	}
}

func (m *Metrics) RecordPlacement(serverID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.placements[serverID]++
}

func (m *Metrics) RecordRejection() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.rejections++
}

func (m *Metrics) RecordQueued(depth int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.queued++
	m.queueDepth = depth
}

func (m *Metrics) RecordCompletion() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.completions++
}

func (m *Metrics) RecordExpiration() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.expirations++
}

func (m *Metrics) RecordReassignment() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.reassignments++
}

func (m *Metrics) RecordServerRemoval(serverID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.removedServers = append(m.removedServers, serverID)
}

func (m *Metrics) RecordQueueDepth(depth int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.queueDepth = depth
}

func (m *Metrics) RecordAssignmentTime(d time.Duration) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.assignmentTimes = append(m.assignmentTimes, d)
	if len(m.assignmentTimes) > 1000 {
		m.assignmentTimes = m.assignmentTimes[1:]
	}
}

func (m *Metrics) Snapshot(strategy string) Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		Strategy:       strategy,
		Uptime:         time.Since(m.startTime),
		Placements:     make(map[string]int64, len(m.placements)),
		Rejections:     m.rejections,
		Queued:         m.queued,
		Completions:    m.completions,
		Expirations:    m.expirations,
		Reassignments:  m.reassignments,
		RemovedServers: append([]string(nil), m.removedServers...),
		QueueDepth:     m.queueDepth,
	}

	for serverID, count := range m.placements {
		snap.Placements[serverID] = count
		snap.TotalAssignments += count
	}

	if len(m.assignmentTimes) > 0 {
		sorted := make([]time.Duration, len(m.assignmentTimes))
		copy(sorted, m.assignmentTimes)
		sort.Slice(sorted, func(i, j int) bool {
			return sorted[i] < sorted[j]
		})

		snap.AvgAssignment = average(sorted)
		snap.P50Assignment = percentile(sorted, 0.50)
		snap.P95Assignment = percentile(sorted, 0.95)
		snap.P99Assignment = percentile(sorted, 0.99)
	}

	return snap
}

func average(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return sum / time.Duration(len(durations))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}

	index := int(float64(len(sorted)-1) * p)
	return sorted[index]
}
