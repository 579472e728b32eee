package domain

import "go.uber.org/atomic"

// Server is one backend address inside an Upstream's Server Pool. It is
// created when a pool is configured, mutated only through the pool's
// Borrow/Return operations and the reactivation timer, and destroyed when
// removed from its pool by reconfiguration.
type Server struct {
	Address string
	Weight  int

	InflightRequests  atomic.Int64
	ConsecutiveFails  atomic.Int64
	IsActive          atomic.Bool
	StatsRequests     atomic.Int64
	StatsErrors       atomic.Int64
}

// NewServer builds an active Server with the given address and weight. A
// weight below 1 is clamped to 1, matching the pool invariant "weight >= 1".
func NewServer(address string, weight int) *Server {
	if weight < 1 {
		weight = 1
	}
	s := &Server{Address: address, Weight: weight}
	s.IsActive.Store(true)
	return s
}

// Load is inflight_requests / weight, the value the selection algorithm
// minimises over candidates (ss4.A).
func (s *Server) Load() float64 {
	return float64(s.InflightRequests.Load()) / float64(s.Weight)
}

// Snapshot returns a point-in-time, race-free copy of the counters for
// reporting (status endpoint, stats flush).
type ServerSnapshot struct {
	Address          string
	Weight           int
	InflightRequests int64
	ConsecutiveFails int64
	IsActive         bool
	StatsRequests    int64
	StatsErrors      int64
}

func (s *Server) Snapshot() ServerSnapshot {
	return ServerSnapshot{
		Address:          s.Address,
		Weight:           s.Weight,
		InflightRequests: s.InflightRequests.Load(),
		ConsecutiveFails: s.ConsecutiveFails.Load(),
		IsActive:         s.IsActive.Load(),
		StatsRequests:    s.StatsRequests.Load(),
		StatsErrors:      s.StatsErrors.Load(),
	}
}
