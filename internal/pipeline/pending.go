package pipeline

import (
	"sync"

	"golang.org/x/sync/errgroup"
)

// PendingOperations accumulates futures a handler is waiting on — either
// added explicitly via WaitFuture or implicitly by a waited outbound HTTP
// call — and drains them in parallel, repeating until no new operation was
// queued during the last pass (ss4.F "drain phase").
type PendingOperations struct {
	mu     sync.Mutex
	ops    []func() error
	closed bool
}

// Add queues op for the next Drain pass. Add after Close is a silent no-op,
// matching "closing pending_operations := none locks further additions".
func (p *PendingOperations) Add(op func() error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.ops = append(p.ops, op)
}

// Drain awaits every queued operation in parallel via errgroup, then
// repeats if new operations were queued while the previous batch ran, until
// a pass starts with nothing queued.
func (p *PendingOperations) Drain() error {
	for {
		p.mu.Lock()
		batch := p.ops
		p.ops = nil
		p.mu.Unlock()

		if len(batch) == 0 {
			return nil
		}

		var g errgroup.Group
		for _, op := range batch {
			op := op
			g.Go(op)
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
}

// Close locks the operation list against further additions.
func (p *PendingOperations) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}
