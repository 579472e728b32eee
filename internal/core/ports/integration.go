package ports

import "context"

// MetricsClient is the integration extension point for emitting counters and
// histograms from the pipeline and the HTTP Client Core (ss4.J).
type MetricsClient interface {
	IncCounter(name string, tags map[string]string)
	ObserveLatency(name string, seconds float64, tags map[string]string)
}

// ErrorReporter is the integration extension point for forwarding unhandled
// exceptions to an external tracker (ss4.J).
type ErrorReporter interface {
	ReportError(ctx context.Context, err error, tags map[string]string)
}

// MessageProducer is the integration extension point for publishing
// lifecycle events (request finished, upstream marked down) onto a message
// bus (ss4.J).
type MessageProducer interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// DiscoveryClient is the integration extension point used at startup to
// register this process with an external service registry (ss4.J).
type DiscoveryClient interface {
	Register(ctx context.Context) error
	Deregister(ctx context.Context) error
}

// StatsCollector aggregates per-server and per-upstream counters for the
// built-in status endpoint (ss4.A "stats_requests"/"stats_errors", ss6).
type StatsCollector interface {
	RecordAttempt(upstream, address string, failed bool)
	Snapshot() map[string]any
}
