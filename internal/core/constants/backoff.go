package constants

import "time"

const (
	// DefaultMaxBackoffSeconds caps any computed backoff/reactivation delay.
	DefaultMaxBackoffSeconds = 5 * time.Minute
	// ConnectionRetryBackoffMultiplier scales a linear connection-retry backoff.
	ConnectionRetryBackoffMultiplier = 2
)
