package router

import (
	"time"
)

// pendingRequest is a request waiting for capacity. Ordering is
// (priority, arrival, id) ascending; ids are monotonic per router, so
// requests of equal priority dequeue in strict arrival order even when
// their arrival timestamps collide.
type pendingRequest struct {
	id       uint64
	size     int
	priority int
	arrival  time.Time
}

// pendingQueue implements container/heap over pending requests.
type pendingQueue []*pendingRequest

func (q pendingQueue) Len() int { return len(q) }

func (q pendingQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority < q[j].priority
	}
	if !q[i].arrival.Equal(q[j].arrival) {
		return q[i].arrival.Before(q[j].arrival)
	}
	return q[i].id < q[j].id
}

func (q pendingQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *pendingQueue) Push(x any) {
	*q = append(*q, x.(*pendingRequest))
}

func (q *pendingQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}

// completionRecord marks when an admitted request's synthetic
// processing finishes on a given server.
type completionRecord struct {
	at        time.Time
	serverID  string
	requestID uint64
}

// completionQueue is a min-heap by completion time, so a sweep pops
// only the entries that have actually elapsed instead of rescanning
// every active request.
type completionQueue []completionRecord

func (q completionQueue) Len() int { return len(q) }

func (q completionQueue) Less(i, j int) bool { return q[i].at.Before(q[j].at) }

func (q completionQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *completionQueue) Push(x any) {
	*q = append(*q, x.(completionRecord))
}

func (q *completionQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}
