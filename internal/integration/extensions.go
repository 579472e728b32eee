// Package integration hosts the Integration Extension Points (ss4.J):
// application-level hooks resolved once at startup, and the lifecycle
// protocol ("Integration") that lets an optional component register itself
// before the server starts accepting traffic.
package integration

import (
	"context"

	"github.com/balancedhttp/core/internal/core/ports"
)

// Integration is discovered at startup and offered a chance to initialise
// itself against the running application before traffic is accepted, and
// against each handler as it is constructed (ss4.J).
type Integration interface {
	Name() string
	InitializeApp(ctx context.Context) error
	InitializeHandler(ctx context.Context, handlerName string)
}

// Registry resolves the four application-level hooks, each returning nil
// when not configured, and holds the list of Integrations discovered at
// startup (ss4.J).
type Registry struct {
	metrics      ports.MetricsClient
	errorReport  ports.ErrorReporter
	producers    map[string]ports.MessageProducer
	discovery    ports.DiscoveryClient
	integrations []Integration
}

// NewRegistry returns an empty Registry; every getter returns nil/false
// until the corresponding With* method is called.
func NewRegistry() *Registry {
	return &Registry{producers: make(map[string]ports.MessageProducer)}
}

// WithMetricsClient registers the process-wide metrics hook.
func (r *Registry) WithMetricsClient(c ports.MetricsClient) *Registry {
	r.metrics = c
	return r
}

// WithErrorReporter registers the process-wide error reporter hook.
func (r *Registry) WithErrorReporter(c ports.ErrorReporter) *Registry {
	r.errorReport = c
	return r
}

// WithMessageProducer registers a named message producer hook.
func (r *Registry) WithMessageProducer(name string, c ports.MessageProducer) *Registry {
	r.producers[name] = c
	return r
}

// WithDiscoveryClient registers the service-discovery hook.
func (r *Registry) WithDiscoveryClient(c ports.DiscoveryClient) *Registry {
	r.discovery = c
	return r
}

// Register adds an Integration to be initialised by InitializeApp.
func (r *Registry) Register(i Integration) *Registry {
	r.integrations = append(r.integrations, i)
	return r
}

// GetMetricsClient returns the configured metrics hook, or nil.
func (r *Registry) GetMetricsClient() ports.MetricsClient { return r.metrics }

// GetErrorReporter returns the configured error reporter hook, or nil.
func (r *Registry) GetErrorReporter() ports.ErrorReporter { return r.errorReport }

// GetMessageProducer returns the named message producer hook, or nil.
func (r *Registry) GetMessageProducer(name string) ports.MessageProducer { return r.producers[name] }

// GetDiscoveryClient returns the configured discovery hook, or nil.
func (r *Registry) GetDiscoveryClient() ports.DiscoveryClient { return r.discovery }

// InitializeApp runs every registered Integration's InitializeApp hook,
// in registration order, before the caller starts accepting traffic
// (ss4.J: "Initialization futures are awaited before the server accepts
// traffic").
func (r *Registry) InitializeApp(ctx context.Context) error {
	for _, i := range r.integrations {
		if err := i.InitializeApp(ctx); err != nil {
			return err
		}
	}
	return nil
}

// InitializeHandler runs every registered Integration's InitializeHandler
// hook for the given handler name.
func (r *Registry) InitializeHandler(ctx context.Context, handlerName string) {
	for _, i := range r.integrations {
		i.InitializeHandler(ctx, handlerName)
	}
}
