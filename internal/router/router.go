package router

import (
	"math/rand"
	"time"
)

// DefaultPriority is the priority assigned to requests that don't carry
// one. Lower values are more urgent.
const DefaultPriority = 1

// Outcome is the admission decision for a single request.
type Outcome int

const (
	OutcomeRejected Outcome = iota
	OutcomePlaced
	OutcomeQueued
)

func (o Outcome) String() string {
	switch o {
	case OutcomePlaced:
		return "placed"
	case OutcomeQueued:
		return "queued"
	case OutcomeRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Result is the tagged outcome of an assignment. Server is set only for
// placed requests, QueuePosition only for queued ones. RequestID is
// zero for routers that don't track request identity.
type Result struct {
	Outcome       Outcome
	Server        string
	RequestID     uint64
	QueuePosition int
}

// Router decides which server, if any, handles a request of the given
// size. Assign never blocks waiting for capacity: every call returns a
// placed, queued, or rejected result.
type Router interface {
	Name() string
	Assign(size, priority int) Result
}

// ServerStats is a point-in-time view of one server, taken under the
// owning router's lock.
type ServerStats struct {
	Capacity int
	Load     int
	Active   int
}

// randomDuration returns a duration in [min, max). It degrades to min
// when the bounds are inverted or equal.
func randomDuration(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}

	return min + time.Duration(rand.Int63n(int64(max-min)))
}
