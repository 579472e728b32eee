package upstream

import (
	"sort"
	"testing"
	"time"

	"github.com/balancedhttp/core/internal/core/domain"
)

func newTestRegistry() *Registry {
	return NewRegistry(3, 0, time.Hour)
}

func newTestPool(t *testing.T, addr string, weight int) *domain.ServerPool {
	t.Helper()
	pool, err := domain.NewServerPool("up", []*domain.Server{domain.NewServer(addr, weight)}, 1, 0, 0)
	if err != nil {
		t.Fatalf("NewServerPool: %v", err)
	}
	return pool
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := newTestRegistry()
	pool := newTestPool(t, "a:1", 1)

	if err := r.Register("svc", pool); err != nil {
		t.Fatalf("Register: %v", err)
	}

	got, ok := r.Get("svc")
	if !ok || got != pool {
		t.Fatalf("expected Get to return the registered pool, got %v ok=%v", got, ok)
	}
}

func TestRegistryGetUnknownUpstream(t *testing.T) {
	r := newTestRegistry()
	if _, ok := r.Get("missing"); ok {
		t.Fatal("expected ok=false for an unregistered upstream")
	}
}

func TestRegistryRegisterRejectsNilPool(t *testing.T) {
	r := newTestRegistry()
	if err := r.Register("svc", nil); err == nil {
		t.Fatal("expected an error registering a nil pool")
	}
}

func TestRegistryRegisterReplacesExisting(t *testing.T) {
	r := newTestRegistry()
	first := newTestPool(t, "a:1", 1)
	second := newTestPool(t, "b:1", 1)

	if err := r.Register("svc", first); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register("svc", second); err != nil {
		t.Fatalf("Register: %v", err)
	}

	got, ok := r.Get("svc")
	if !ok || got != second {
		t.Fatalf("expected re-registering to replace the pool outright, got %v", got)
	}
}

func TestRegistryReconfigureAppliesToExistingPool(t *testing.T) {
	r := newTestRegistry()
	pool := newTestPool(t, "a:1", 1)
	if err := r.Register("svc", pool); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if err := r.Reconfigure("svc", []*domain.Server{domain.NewServer("a:1", 9)}); err != nil {
		t.Fatalf("Reconfigure: %v", err)
	}

	snap := pool.Snapshot()
	if len(snap) != 1 || snap[0].Weight != 9 {
		t.Fatalf("expected weight updated to 9 in place, got %+v", snap)
	}
}

func TestRegistryReconfigureCreatesPoolWhenUnregistered(t *testing.T) {
	r := newTestRegistry()

	if err := r.Reconfigure("svc", []*domain.Server{domain.NewServer("a:1", 1)}); err != nil {
		t.Fatalf("Reconfigure: %v", err)
	}

	pool, ok := r.Get("svc")
	if !ok {
		t.Fatal("expected Reconfigure to create a pool for an unregistered upstream with servers")
	}
	if snap := pool.Snapshot(); len(snap) != 1 || snap[0].Address != "a:1" {
		t.Fatalf("expected the new pool to contain the given server, got %+v", snap)
	}
}

func TestRegistryReconfigureWithEmptyServersIsANoOpWhenUnregistered(t *testing.T) {
	r := newTestRegistry()

	if err := r.Reconfigure("missing", nil); err != nil {
		t.Fatalf("expected no error reconfiguring an unregistered upstream with no servers, got %v", err)
	}
	if _, ok := r.Get("missing"); ok {
		t.Fatal("expected no pool to be created")
	}
}

func TestRegistryReconfigureWithEmptyServersDeletesExistingPool(t *testing.T) {
	r := newTestRegistry()
	if err := r.Register("svc", newTestPool(t, "a:1", 1)); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if err := r.Reconfigure("svc", nil); err != nil {
		t.Fatalf("Reconfigure: %v", err)
	}

	if _, ok := r.Get("svc"); ok {
		t.Fatal("expected Reconfigure with an empty server list to delete the pool")
	}
}

func TestRegistryDeleteRemovesRegisteredUpstream(t *testing.T) {
	r := newTestRegistry()
	if err := r.Register("svc", newTestPool(t, "a:1", 1)); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if !r.Delete("svc") {
		t.Fatal("expected Delete to report true for a registered upstream")
	}
	if _, ok := r.Get("svc"); ok {
		t.Fatal("expected the upstream to be gone after Delete")
	}
}

func TestRegistryDeleteReportsFalseForUnknownUpstream(t *testing.T) {
	r := newTestRegistry()
	if r.Delete("missing") {
		t.Fatal("expected Delete to report false for an unregistered upstream")
	}
}

func TestRegistryNamesListsAllRegistered(t *testing.T) {
	r := newTestRegistry()
	if err := r.Register("svc-a", newTestPool(t, "a:1", 1)); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register("svc-b", newTestPool(t, "b:1", 1)); err != nil {
		t.Fatalf("Register: %v", err)
	}

	names := r.Names()
	sort.Strings(names)
	if len(names) != 2 || names[0] != "svc-a" || names[1] != "svc-b" {
		t.Fatalf("expected [svc-a svc-b], got %v", names)
	}
}
