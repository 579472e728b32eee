package domain

import (
	"fmt"
	"sync"
	"time"
)

// ServerPool is a named, weighted list of backend servers sharing one retry
// and failure policy (ss3, ss4.A). Slot indices are stable across
// reconfiguration: a removed server leaves a nil slot that a later add can
// refill, so a Balanced Request's borrowed index always refers to the same
// logical slot it was issued against.
type ServerPool struct {
	mu sync.Mutex

	Name              string
	servers           []*Server
	lastSelectedIndex int

	Tries       int
	MaxFails    int
	FailTimeout time.Duration

	reactivate func(pool *ServerPool, index int, timeout time.Duration)
}

// NewServerPool builds a pool from an ordered server list. tries defaults to
// 1 when given as 0 or less, per the "tries >= 1" invariant.
func NewServerPool(name string, servers []*Server, tries, maxFails int, failTimeout time.Duration) (*ServerPool, error) {
	if len(servers) == 0 {
		return nil, fmt.Errorf("server pool %q: server list must not be empty", name)
	}
	if tries < 1 {
		tries = 1
	}
	p := &ServerPool{
		Name:              name,
		servers:           append([]*Server(nil), servers...),
		lastSelectedIndex: 0,
		Tries:             tries,
		MaxFails:          maxFails,
		FailTimeout:       failTimeout,
	}
	p.reactivate = defaultReactivate
	return p, nil
}

// Len returns the number of slots, including nil ones left by reconfiguration.
func (p *ServerPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.servers)
}

// Borrow scans all slots starting at lastSelectedIndex mod n and returns the
// non-null, active, untried candidate with the lowest inflight/weight load;
// ties resolve to the earliest scan position (ss4.A). The scan re-starts
// from the previous winner's own index rather than the slot after it, so a
// server that still has the lowest load keeps winning on the next borrow
// instead of ceding to its neighbour purely by round-robin.
func (p *ServerPool) Borrow(tried map[int]bool) (index int, address string, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.servers)
	if n == 0 {
		return 0, "", false
	}

	bestIndex := -1
	bestLoad := 0.0
	start := p.lastSelectedIndex % n

	for i := 0; i < n; i++ {
		idx := (start + i) % n
		srv := p.servers[idx]
		if srv == nil || !srv.IsActive.Load() || tried[idx] {
			continue
		}
		load := srv.Load()
		if bestIndex == -1 || load < bestLoad {
			bestIndex = idx
			bestLoad = load
		}
	}

	if bestIndex == -1 {
		return 0, "", false
	}

	srv := p.servers[bestIndex]
	srv.InflightRequests.Add(1)
	srv.StatsRequests.Add(1)
	p.lastSelectedIndex = bestIndex

	return bestIndex, srv.Address, true
}

// Return releases a previously borrowed slot. A slot that was set to nil by
// a reconfiguration racing with the in-flight attempt is tolerated silently
// (ss9, Open Questions: "return_server must tolerate a null slot").
func (p *ServerPool) Return(index int, failed bool) {
	p.mu.Lock()
	srv := p.serverAt(index)
	p.mu.Unlock()

	if srv == nil {
		return
	}

	if v := srv.InflightRequests.Load(); v > 0 {
		srv.InflightRequests.Add(-1)
	}

	if failed {
		fails := srv.ConsecutiveFails.Add(1)
		srv.StatsErrors.Add(1)
		if p.MaxFails > 0 && fails >= int64(p.MaxFails) && srv.IsActive.CompareAndSwap(true, false) {
			p.reactivate(p, index, p.FailTimeout)
		}
		return
	}

	srv.ConsecutiveFails.Store(0)
}

func (p *ServerPool) serverAt(index int) *Server {
	if index < 0 || index >= len(p.servers) {
		return nil
	}
	return p.servers[index]
}

func defaultReactivate(p *ServerPool, index int, timeout time.Duration) {
	time.AfterFunc(timeout, func() {
		p.mu.Lock()
		srv := p.serverAt(index)
		p.mu.Unlock()
		if srv == nil {
			return
		}
		srv.ConsecutiveFails.Store(0)
		srv.IsActive.Store(true)
	})
}

// Reconfigure replaces the server list: existing slots whose address still
// appears in the new list keep their index and have their weight updated in
// place; slots whose address no longer appears become nil; remaining new
// entries fill nil slots first (to preserve indices) before being appended
// (ss4.A). An empty newServers list is rejected when the pool must remain
// registered; callers wanting to remove a pool should do so through the
// registry instead.
func (p *ServerPool) Reconfigure(newServers []*Server) error {
	if len(newServers) == 0 {
		return fmt.Errorf("server pool %q: reconfigure requires at least one server", p.Name)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	remaining := make(map[string]*Server, len(newServers))
	for _, s := range newServers {
		remaining[s.Address] = s
	}

	for i, existing := range p.servers {
		if existing == nil {
			continue
		}
		if incoming, ok := remaining[existing.Address]; ok {
			existing.Weight = incoming.Weight
			delete(remaining, existing.Address)
			p.servers[i] = existing
		} else {
			p.servers[i] = nil
		}
	}

	leftover := make([]*Server, 0, len(remaining))
	for _, s := range newServers {
		if s2, ok := remaining[s.Address]; ok && s2 == s {
			leftover = append(leftover, s)
		}
	}

	li := 0
	for i := range p.servers {
		if li >= len(leftover) {
			break
		}
		if p.servers[i] == nil {
			p.servers[i] = leftover[li]
			li++
		}
	}
	p.servers = append(p.servers, leftover[li:]...)

	return nil
}

// Snapshot returns the current server list (nil slots included) for
// reporting and tests. Callers must not mutate the returned slice's Server
// pointers' identity (individual atomic fields are safe to read).
func (p *ServerPool) Snapshot() []*Server {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Server, len(p.servers))
	copy(out, p.servers)
	return out
}

// SumInflight reports the total inflight count across all live servers, used
// by the outstanding-borrows invariant in tests (ss8, invariant 3).
func (p *ServerPool) SumInflight() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	var total int64
	for _, s := range p.servers {
		if s != nil {
			total += s.InflightRequests.Load()
		}
	}
	return total
}
