// Package upstream adapts a set of named Server Pools into the
// ports.UpstreamRegistry port (ss4.B).
package upstream

import (
	"fmt"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/balancedhttp/core/internal/core/domain"
)

// Registry is a concurrent-safe map of upstream name to Server Pool. Reads
// (Get, Names) happen on every inbound request; writes (Register,
// Reconfigure) only happen at startup and on a config reload, so an
// xsync.Map trades a little write overhead for allocation-free reads.
type Registry struct {
	pools *xsync.Map[string, *domain.ServerPool]
	mu    sync.Mutex // serialises Register/Reconfigure against each other

	defaultTries       int
	defaultMaxFails    int
	defaultFailTimeout time.Duration
}

// NewRegistry returns an empty upstream registry. defaultTries/
// defaultMaxFails/defaultFailTimeout apply to a pool implicitly created by
// Reconfigure ("update") for a name that isn't registered yet.
func NewRegistry(defaultTries, defaultMaxFails int, defaultFailTimeout time.Duration) *Registry {
	return &Registry{
		pools:              xsync.NewMap[string, *domain.ServerPool](),
		defaultTries:       defaultTries,
		defaultMaxFails:    defaultMaxFails,
		defaultFailTimeout: defaultFailTimeout,
	}
}

// Get resolves an upstream name to its Server Pool.
func (r *Registry) Get(name string) (*domain.ServerPool, bool) {
	return r.pools.Load(name)
}

// Register adds a new named pool. Registering under a name that already
// exists replaces it outright; callers reloading an existing upstream's
// membership should use Reconfigure instead, which preserves slot indices.
func (r *Registry) Register(name string, pool *domain.ServerPool) error {
	if pool == nil {
		return fmt.Errorf("upstream %q: pool must not be nil", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pools.Store(name, pool)
	return nil
}

// Reconfigure is the registry's "update" operation (ss4.B): if name isn't
// registered and servers are provided, it creates the pool; if it is
// registered, it diffs the server list in place (ss4.A); if servers is
// empty, it deletes the pool instead of erroring.
func (r *Registry) Reconfigure(name string, servers []*domain.Server) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	pool, ok := r.pools.Load(name)
	if !ok {
		if len(servers) == 0 {
			return nil
		}
		created, err := domain.NewServerPool(name, servers, r.defaultTries, r.defaultMaxFails, r.defaultFailTimeout)
		if err != nil {
			return err
		}
		r.pools.Store(name, created)
		return nil
	}

	if len(servers) == 0 {
		r.pools.Delete(name)
		return nil
	}
	return pool.Reconfigure(servers)
}

// Delete removes a registered upstream outright, reporting whether it was
// present (ss4.B, "delete").
func (r *Registry) Delete(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, loaded := r.pools.LoadAndDelete(name)
	return loaded
}

// Names returns the registered upstream names in no particular order.
func (r *Registry) Names() []string {
	names := make([]string, 0, r.pools.Size())
	r.pools.Range(func(name string, _ *domain.ServerPool) bool {
		names = append(names, name)
		return true
	})
	return names
}
