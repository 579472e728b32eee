package pipeline

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// activeHandlersGauge publishes the Active-Handler Limiter's live count to
// the metrics hook (ss4.H).
var activeHandlersGauge = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "balancedhttp_active_handlers",
	Help: "Number of requests currently admitted into the Handler Pipeline.",
})

func init() {
	prometheus.MustRegister(activeHandlersGauge)
}

// Limiter is the process-wide Active-Handler Limiter: a single counter
// compared against a configured ceiling on every admission (ss4.H).
type Limiter struct {
	count   atomic.Int64
	maxOpen int64
}

// NewLimiter builds a limiter rejecting admission once count exceeds
// maxActiveHandlers.
func NewLimiter(maxActiveHandlers int) *Limiter {
	return &Limiter{maxOpen: int64(maxActiveHandlers)}
}

// Release is returned by Admit and must be called exactly once, on any
// handler termination path (success, error, cancel).
type Release func()

// Admit atomically compares the current count to the ceiling; when the
// limit is already exceeded it returns ok=false and a 503 should be sent.
// On success it increments the counter, updates the gauge, and returns a
// release token.
func (l *Limiter) Admit() (release Release, ok bool) {
	var n int64
	for {
		cur := l.count.Load()
		if cur > l.maxOpen {
			return nil, false
		}
		if l.count.CompareAndSwap(cur, cur+1) {
			n = cur + 1
			break
		}
	}
	activeHandlersGauge.Set(float64(n))

	var released atomic.Bool
	return func() {
		if released.CompareAndSwap(false, true) {
			n := l.count.Add(-1)
			activeHandlersGauge.Set(float64(n))
		}
	}, true
}

// Count returns the current number of admitted handlers, for the built-in
// status endpoint.
func (l *Limiter) Count() int64 {
	return l.count.Load()
}
