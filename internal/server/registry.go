package server

import (
	"fmt"
	"sort"
)

// Registry owns the set of servers available to a router. Iteration
// order is always server id ascending, so selection tie-breaks are
// deterministic and reproducible.
//
// Like Server, a Registry carries no lock of its own; the router that
// owns it serializes access.
type Registry struct {
	servers map[string]*Server
	order   []string
}

// NewRegistry builds a registry from a mapping of server id to
// capacity. Every capacity must be positive and the pool must not be
// empty.
func NewRegistry(capacities map[string]int) (*Registry, error) {
	if len(capacities) == 0 {
		return nil, fmt.Errorf("server pool is empty")
	}

	r := &Registry{
		servers: make(map[string]*Server, len(capacities)),
		order:   make([]string, 0, len(capacities)),
	}

	for id, capacity := range capacities {
		if capacity <= 0 {
			return nil, fmt.Errorf("server %q has non-positive capacity %d", id, capacity)
		}
		r.servers[id] = newServer(id, capacity)
		r.order = append(r.order, id)
	}

	sort.Strings(r.order)

	return r, nil
}

// Get returns the server with the given id.
func (r *Registry) Get(id string) (*Server, bool) {
	s, ok := r.servers[id]
	return s, ok
}

// IDs returns the server ids in ascending order.
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.order))
	copy(ids, r.order)
	return ids
}

// Len returns the number of registered servers.
func (r *Registry) Len() int {
	return len(r.order)
}

// Each calls fn for every server in id order.
func (r *Registry) Each(fn func(*Server)) {
	for _, id := range r.order {
		fn(r.servers[id])
	}
}

// Remove permanently deletes a server from the pool and returns it.
// Removed servers are never re-added.
func (r *Registry) Remove(id string) (*Server, bool) {
	s, ok := r.servers[id]
	if !ok {
		return nil, false
	}

	delete(r.servers, id)
	for i, other := range r.order {
		if other == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	return s, true
}

// MaxCapacity returns the largest configured capacity in the pool, or
// zero if the pool is empty.
func (r *Registry) MaxCapacity() int {
	max := 0
	for _, id := range r.order {
		if c := r.servers[id].Capacity(); c > max {
			max = c
		}
	}

	return max
}
