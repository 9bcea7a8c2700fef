package server

import (
	"time"
)

// Status describes whether a server is accepting new work.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// ActiveRequest is a request currently occupying capacity on a server.
// Priority and ArrivalTime are carried so the request can be re-queued
// with its original ordering if the server is removed from the pool.
type ActiveRequest struct {
	ID             uint64
	Size           int
	Priority       int
	ArrivalTime    time.Time
	CompletionTime time.Time
}

// Server tracks the capacity and in-flight work of a single backend.
//
// A Server is not safe for concurrent use on its own: the owning router
// serializes all access behind its mutex.
type Server struct {
	id       string
	capacity int
	load     int
	active   map[uint64]ActiveRequest
	status   Status
}

func newServer(id string, capacity int) *Server {
	return &Server{
		id:       id,
		capacity: capacity,
		active:   make(map[uint64]ActiveRequest),
		status:   StatusHealthy,
	}
}

// ID returns the server's identifier.
func (s *Server) ID() string {
	return s.id
}

// Capacity returns the configured capacity in request-size units.
func (s *Server) Capacity() int {
	return s.capacity
}

// Load returns the sum of the sizes of all active requests.
func (s *Server) Load() int {
	return s.load
}

// FreeCapacity returns how many size units remain unoccupied.
func (s *Server) FreeCapacity() int {
	return s.capacity - s.load
}

// ActiveCount returns the number of in-flight requests.
func (s *Server) ActiveCount() int {
	return len(s.active)
}

// Status returns the server's health status.
func (s *Server) Status() Status {
	return s.status
}

// SetStatus updates the server's health status.
func (s *Server) SetStatus(status Status) {
	s.status = status
}

// Fits reports whether a request of the given size would fit within the
// remaining capacity.
func (s *Server) Fits(size int) bool {
	return s.load+size <= s.capacity
}

// LoadRatioWith returns the relative load the server would carry after
// admitting a request of the given size.
func (s *Server) LoadRatioWith(size int) float64 {
	return float64(s.load+size) / float64(s.capacity)
}

// Admit records a request as active and charges its size against the
// server's load.
func (s *Server) Admit(req ActiveRequest) {
	s.active[req.ID] = req
	s.load += req.Size
}

// Complete removes an active request and frees its size. It reports
// whether the request was actually in flight, so callers can tolerate
// completion records that outlive a removed or already-freed request.
func (s *Server) Complete(id uint64) (ActiveRequest, bool) {
	req, ok := s.active[id]
	if !ok {
		return ActiveRequest{}, false
	}

	delete(s.active, id)
	s.load -= req.Size
	return req, true
}

// Expired returns the active requests whose synthetic completion time
// has passed at the given instant.
func (s *Server) Expired(now time.Time) []ActiveRequest {
	var done []ActiveRequest
	for _, req := range s.active {
		if !req.CompletionTime.After(now) {
			done = append(done, req)
		}
	}

	return done
}

// Active returns a snapshot of all in-flight requests.
func (s *Server) Active() []ActiveRequest {
	reqs := make([]ActiveRequest, 0, len(s.active))
	for _, req := range s.active {
		reqs = append(reqs, req)
	}

	return reqs
}

// HasActive reports whether the request with the given id is in flight.
func (s *Server) HasActive(id uint64) bool {
	_, ok := s.active[id]
	return ok
}
