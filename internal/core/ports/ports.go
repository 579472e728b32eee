package ports

import (
	"context"
	"net/http"

	"github.com/balancedhttp/core/internal/core/domain"
)

// ServerSelector is the balancer-facing view of a Server Pool: borrow a
// server for an attempt, return it once the attempt resolves (ss4.A).
type ServerSelector interface {
	Borrow(tried map[int]bool) (index int, address string, ok bool)
	Return(index int, failed bool)
}

// UpstreamRegistry resolves upstream names to their Server Pools and applies
// configuration reloads (ss4.B).
type UpstreamRegistry interface {
	Get(name string) (*domain.ServerPool, bool)
	Register(name string, pool *domain.ServerPool) error
	Reconfigure(name string, servers []*domain.Server) error
	Delete(name string) bool
	Names() []string
}

// HTTPClientCore drives a Balanced Request's attempt/retry loop against an
// upstream and returns the final Request Result (ss4.C, ss4.D).
type HTTPClientCore interface {
	Fetch(ctx context.Context, req *domain.BalancedRequest) *domain.RequestResult
}

// Page is a handler's domain-specific work function: given the inbound
// request and a Request Context it returns a result the pipeline will run
// through postprocessing and rendering (ss4.F).
type Page interface {
	Handle(ctx context.Context, r *http.Request) (*domain.RequestResult, error)
}

// Preprocessor and Postprocessor are pipeline hooks run, respectively,
// before the page method and after it (ss4.F).
type Preprocessor interface {
	Process(ctx context.Context, r *http.Request) error
}

type Postprocessor interface {
	Process(ctx context.Context, r *http.Request, result *domain.RequestResult) error
}

// RenderPostprocessor runs after rendering has produced bytes on the wire,
// for work that must see the final response (access logging, metrics).
type RenderPostprocessor interface {
	Process(ctx context.Context, r *http.Request, statusCode int)
}
