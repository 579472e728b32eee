// Package app wires together config, logging, the Upstream Registry, the
// HTTP Client Core, the Handler Pipeline and its Active-Handler Limiter,
// and the built-in /version/ and /status/ endpoints into one process
// (adapted from the teacher's internal/app/app.go lifecycle).
package app

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/balancedhttp/core/internal/adapter/httpclient"
	"github.com/balancedhttp/core/internal/adapter/render"
	"github.com/balancedhttp/core/internal/adapter/upstream"
	"github.com/balancedhttp/core/internal/app/middleware"
	"github.com/balancedhttp/core/internal/config"
	"github.com/balancedhttp/core/internal/core/constants"
	"github.com/balancedhttp/core/internal/core/domain"
	"github.com/balancedhttp/core/internal/integration"
	"github.com/balancedhttp/core/internal/logger"
	"github.com/balancedhttp/core/internal/pipeline"
	"github.com/balancedhttp/core/internal/router"
	"github.com/balancedhttp/core/internal/util"
	"github.com/balancedhttp/core/pkg/eventbus"
)

// Renderer priorities: a template renderer (none configured by default)
// would sit below these; JSON and XML decide on Content-Type/Accept, and
// the generic text renderer is the always-applicable fallback (ss4.G).
const (
	priorityJSON = 10
	priorityXML  = 10
	priorityText = 1000
)

// Application owns every long-lived component and the http.Server that
// fronts them, mirroring the teacher's Application struct.
type Application struct {
	Config    *config.Config
	StartTime time.Time

	logger   *logger.StyledLogger
	registry *router.RouteRegistry
	server   *http.Server

	Upstreams    *upstream.Registry
	HTTPClient   *httpclient.Client
	Renderers    *domain.RendererRegistry
	Limiter      *pipeline.Limiter
	Pipeline     *pipeline.Pipeline
	Integrations *integration.Registry
	Events       *eventbus.EventBus[pipeline.Event]

	mu     sync.Mutex
	errCh  chan error
	closed bool
}

// New builds an Application from cfg: it constructs the Upstream Registry
// from cfg.Upstreams, the renderer registry, the Handler Pipeline and its
// limiter, and registers the built-in routes. It does not start listening;
// call Start for that.
func New(cfg *config.Config, styledLogger *logger.StyledLogger) (*Application, error) {
	upstreams := upstream.NewRegistry(cfg.HTTPClient.DefaultTries, cfg.HTTPClient.DefaultMaxFails, cfg.HTTPClient.DefaultFailTimeout)
	for name, uc := range cfg.Upstreams {
		servers := make([]*domain.Server, 0, len(uc.Servers))
		for _, s := range uc.Servers {
			servers = append(servers, domain.NewServer(s.Address, s.Weight))
		}
		pool, err := domain.NewServerPool(name, servers, uc.Tries, uc.MaxFails, uc.FailTimeout)
		if err != nil {
			return nil, fmt.Errorf("upstream %q: %w", name, err)
		}
		if err := upstreams.Register(name, pool); err != nil {
			return nil, fmt.Errorf("upstream %q: %w", name, err)
		}
	}

	renderers := domain.NewRendererRegistry()
	renderers.Register(priorityJSON, render.NewJSONRenderer())
	renderers.Register(priorityXML, render.NewXMLRenderer())
	renderers.Register(priorityText, render.NewTextRenderer())

	events := eventbus.New[pipeline.Event]()

	client := httpclient.New(upstreams, renderers, nil, styledLogger, cfg.HTTPClient.MaxClientsPerHost)
	limiter := pipeline.NewLimiter(cfg.Pipeline.MaxActiveHandlers)
	integrations := integration.NewRegistry()
	pl := pipeline.New(limiter).WithEvents(events).WithTaskThresholds(
		time.Duration(cfg.Server.TaskThresholdMs)*time.Millisecond,
		time.Duration(cfg.Server.TaskCriticalMs)*time.Millisecond,
		integrations.GetErrorReporter(),
	)

	registry := router.NewRouteRegistry(styledLogger)

	a := &Application{
		Config:       cfg,
		StartTime:    time.Now(),
		logger:       styledLogger,
		registry:     registry,
		Upstreams:    upstreams,
		HTTPClient:   client,
		Renderers:    renderers,
		Limiter:      limiter,
		Pipeline:     pl,
		Integrations: integrations,
		Events:       events,
		errCh:        make(chan error, 1),
	}

	a.registerBuiltinRoutes()

	return a, nil
}

// RegisterHandler mounts handler at route, dispatched through the Handler
// Pipeline (ss4.F). Inbound requests matching route have the route's mount
// path stamped into their context so the handler can strip it from the
// remaining path.
func (a *Application) RegisterHandler(route string, handler *pipeline.Handler) {
	if handler.Renderers == nil {
		handler.Renderers = a.Renderers
	}
	a.registry.RegisterPipelineRoute(route, func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(constants.HeaderXRequestID)
		if requestID == "" {
			// Internal/synthetic traffic (health probes, loopback calls with
			// no inbound x-request-id) gets a cheap monotonic id instead of
			// spending a UUID roll on every probe.
			if util.IsInternalRequest(r) {
				requestID = util.NextInternalRequestID()
			} else {
				requestID = util.GenerateRequestID()
			}
		}
		w.Header().Set(constants.HeaderXRequestID, requestID)
		ctx := pipeline.NewRequestContext(r.Context(), requestID, a.logger.GetUnderlying())
		ctx = pipeline.WithHandlerName(ctx, handler.Name)
		a.Pipeline.Dispatch(w, r.WithContext(ctx), handler)
	}, fmt.Sprintf("pipeline handler %q", handler.Name), http.MethodGet)
}

func (a *Application) registerBuiltinRoutes() {
	a.registry.RegisterWithMethod("/version/", a.versionHandler, "Component version information", http.MethodGet)
	a.registry.RegisterWithMethod("/status/", a.statusHandler, "Upstream and limiter status snapshot", http.MethodGet)
}

// Start builds the http.Server, mounts every registered route behind the
// shared middleware chain, runs every Integration's InitializeApp hook, and
// begins listening in a background goroutine, forwarding a listen failure
// onto errCh (teacher's startWebServer pattern).
func (a *Application) Start(ctx context.Context) error {
	if err := a.Integrations.InitializeApp(ctx); err != nil {
		return fmt.Errorf("initialising integrations: %w", err)
	}

	mux := http.NewServeMux()
	chain := func(h http.Handler) http.Handler {
		h = middleware.DebugMiddleware(a.Config.Debug)(h)
		h = middleware.EnhancedLoggingMiddleware(a.logger)(h)
		return h
	}
	a.registry.WireUpWithMiddleware(mux, chain)

	a.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", a.Config.Server.Host, a.Config.Server.Port),
		Handler:      mux,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
	}

	go func() {
		select {
		case err := <-a.errCh:
			a.logger.Error("Server startup error", "error", err)
		case <-ctx.Done():
			return
		}
	}()

	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.errCh <- err
		}
	}()

	a.logger.Info("Started web server", "bind", a.server.Addr)
	return nil
}

// Stop drains inflight handlers for up to cfg.Server.StopTimeout before
// closing listeners (ss6, "Exit codes").
func (a *Application) Stop(ctx context.Context) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	a.Events.Shutdown()

	if a.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.StopTimeout)
	defer cancel()

	a.logger.Info("Stopping web server", "active_handlers", a.Limiter.Count())
	return a.server.Shutdown(shutdownCtx)
}
