// Package balancer names the weighted least-inflight selection algorithm
// (ss4.A) as its own adapter, even though the algorithm itself lives on
// domain.ServerPool: a ServerPool already satisfies ports.ServerSelector
// directly, since Borrow/Return are the pool's own methods. Selector exists
// so call sites depend on the ports.ServerSelector interface rather than the
// concrete *domain.ServerPool type.
package balancer

import "github.com/balancedhttp/core/internal/core/domain"

// Selector adapts a *domain.ServerPool to ports.ServerSelector. It carries
// no state of its own: every field the algorithm needs (last_selected_index,
// per-server inflight counters) lives on the pool.
type Selector struct {
	pool *domain.ServerPool
}

// NewSelector wraps pool as a ports.ServerSelector.
func NewSelector(pool *domain.ServerPool) *Selector {
	return &Selector{pool: pool}
}

// Borrow scans the pool from last_selected_index mod n for the active,
// untried slot with the lowest inflight_requests/weight, ties resolved to
// the earliest scan position (ss4.A).
func (s *Selector) Borrow(tried map[int]bool) (index int, address string, ok bool) {
	return s.pool.Borrow(tried)
}

// Return releases a previously borrowed slot, marking it failed or
// successful for the consecutive-fail/reactivation bookkeeping (ss4.A).
func (s *Selector) Return(index int, failed bool) {
	s.pool.Return(index, failed)
}
