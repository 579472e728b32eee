package app

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/balancedhttp/core/internal/core/constants"
	"github.com/balancedhttp/core/pkg/container"
	"golang.org/x/sync/singleflight"
)

// ServerStatusResponse is one Server Pool member's point-in-time state.
type ServerStatusResponse struct {
	Address          string `json:"address"`
	Weight           int    `json:"weight"`
	InflightRequests int64  `json:"inflight_requests"`
	ConsecutiveFails int64  `json:"consecutive_fails"`
	IsActive         bool   `json:"is_active"`
	TotalRequests    int64  `json:"total_requests"`
	TotalErrors      int64  `json:"total_errors"`
}

// UpstreamStatusResponse is one registered upstream's pool snapshot.
type UpstreamStatusResponse struct {
	Name          string                 `json:"name"`
	Servers       []ServerStatusResponse `json:"servers"`
	TotalInflight int64                  `json:"total_inflight"`
}

// StatusResponse is the JSON body of the built-in GET /status/ endpoint:
// the process start time and uptime, whether it runs in a container, and
// the pool and limiter snapshot so an operator can see admission and load
// state without a separate metrics scrape. It has no datacenter field.
type StatusResponse struct {
	StartedAt      time.Time                `json:"started_at"`
	Uptime         string                   `json:"uptime"`
	Containerised  bool                     `json:"containerised"`
	ActiveHandlers int64                    `json:"active_handlers"`
	Upstreams      []UpstreamStatusResponse `json:"upstreams"`
}

// statusFlight collapses concurrent /status/ scrapes into a single pool
// walk: a burst of health-check probes hitting the endpoint at once all
// wait on the one in-flight snapshot instead of each re-walking every
// upstream's server list.
var statusFlight singleflight.Group

func (a *Application) buildStatusResponse() StatusResponse {
	names := a.Upstreams.Names()
	upstreams := make([]UpstreamStatusResponse, 0, len(names))

	for _, name := range names {
		pool, ok := a.Upstreams.Get(name)
		if !ok {
			continue
		}
		snapshot := pool.Snapshot()
		servers := make([]ServerStatusResponse, 0, len(snapshot))
		for _, s := range snapshot {
			if s == nil {
				continue
			}
			ss := s.Snapshot()
			servers = append(servers, ServerStatusResponse{
				Address:          ss.Address,
				Weight:           ss.Weight,
				InflightRequests: ss.InflightRequests,
				ConsecutiveFails: ss.ConsecutiveFails,
				IsActive:         ss.IsActive,
				TotalRequests:    ss.StatsRequests,
				TotalErrors:      ss.StatsErrors,
			})
		}
		upstreams = append(upstreams, UpstreamStatusResponse{
			Name:          name,
			Servers:       servers,
			TotalInflight: pool.SumInflight(),
		})
	}

	return StatusResponse{
		StartedAt:      a.StartTime,
		Uptime:         time.Since(a.StartTime).String(),
		Containerised:  container.IsContainerised(),
		ActiveHandlers: a.Limiter.Count(),
		Upstreams:      upstreams,
	}
}

func (a *Application) statusHandler(w http.ResponseWriter, r *http.Request) {
	v, _, _ := statusFlight.Do("status", func() (any, error) {
		return a.buildStatusResponse(), nil
	})
	resp := v.(StatusResponse)

	w.Header().Set(constants.ContentTypeHeader, constants.ContentTypeJSON)
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}
