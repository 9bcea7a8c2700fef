package router

import (
	"math/rand"
)

// FaultPolicy decides, on each health sweep tick, whether a server
// suffers a catastrophic failure and is permanently removed from the
// pool. Implementations are consulted under the router's lock and must
// not block.
type FaultPolicy interface {
	ShouldFail(serverID string) bool
}

// DefaultRemovalProbability matches a small per-tick chance of losing
// any given server.
const DefaultRemovalProbability = 0.005

type probabilisticFault struct {
	probability float64
}

// NewProbabilisticFault returns a policy that fails each server
// independently with the given per-tick probability.
func NewProbabilisticFault(probability float64) FaultPolicy {
	return &probabilisticFault{probability: probability}
}

func (f *probabilisticFault) ShouldFail(string) bool {
	return rand.Float64() < f.probability
}

// NoFault never removes servers. Useful when fault injection is
// disabled.
func NoFault() FaultPolicy {
	return &probabilisticFault{probability: 0}
}

// OrphanPolicy controls what happens to a removed server's in-flight
// requests.
type OrphanPolicy string

const (
	// OrphanReassign re-queues orphaned requests with their original
	// priority and arrival time.
	OrphanReassign OrphanPolicy = "reassign"
	// OrphanDrop discards orphaned requests and reports them as lost.
	OrphanDrop OrphanPolicy = "drop"
)
