package router

import (
	"context"
	"fmt"
	"net/http"
	"sort"

	"github.com/pterm/pterm"

	"github.com/balancedhttp/core/internal/core/constants"
	"github.com/balancedhttp/core/internal/logger"
)

// RouteInfo describes one mounted route: its handler plus the bookkeeping
// the registry needs to print a stable, ordered routes table at startup.
type RouteInfo struct {
	Handler     http.HandlerFunc
	Description string
	Method      string
	Order       int
	IsPipeline  bool
}

// RouteRegistry accumulates routes before a single WireUp call mounts them
// all on the server mux, so the startup log can print them as one table
// instead of one log line per route.
type RouteRegistry struct {
	routes   map[string]RouteInfo
	logger   *logger.StyledLogger
	orderSeq int
}

func NewRouteRegistry(logger *logger.StyledLogger) *RouteRegistry {
	return &RouteRegistry{
		routes: make(map[string]RouteInfo),
		logger: logger,
	}
}

func (r *RouteRegistry) Register(route string, handler http.HandlerFunc, description string) {
	r.RegisterWithMethod(route, handler, description, "GET")
}

func (r *RouteRegistry) RegisterWithMethod(route string, handler http.HandlerFunc, description, method string) {
	r.registerWithMethod(route, handler, description, method, false)
}

// RegisterPipelineRoute mounts a route served by the Handler Pipeline,
// stamping the route's mount path into the request context so the pipeline
// can strip it before dispatching on the remaining path (ss4.F).
func (r *RouteRegistry) RegisterPipelineRoute(route string, handler http.HandlerFunc, description, method string) {
	wrapped := func(w http.ResponseWriter, req *http.Request) {
		ctx := context.WithValue(req.Context(), constants.ContextRoutePrefixKey, route)
		handler(w, req.WithContext(ctx))
	}
	r.registerWithMethod(route, wrapped, description, method, true)
}

func (r *RouteRegistry) registerWithMethod(route string, handler http.HandlerFunc, description, method string, isPipeline bool) {
	r.routes[route] = RouteInfo{
		Handler:     handler,
		Description: description,
		Method:      method,
		Order:       r.orderSeq,
		IsPipeline:  isPipeline,
	}
	r.orderSeq++
}

func (r *RouteRegistry) WireUp(mux *http.ServeMux) {
	for route, info := range r.routes {
		mux.HandleFunc(route, info.Handler)
	}
	r.logRoutesTable()
}

// WireUpWithMiddleware mounts every route behind a shared middleware chain,
// applying it uniformly rather than branching per route kind (the teacher's
// separate proxy/non-proxy chains have no equivalent here: every route, be
// it a built-in endpoint or a pipeline dispatch, goes through the same
// admission and logging middleware).
func (r *RouteRegistry) WireUpWithMiddleware(mux *http.ServeMux, chain func(http.Handler) http.Handler) {
	if chain == nil {
		r.WireUp(mux)
		return
	}
	for route, info := range r.routes {
		mux.Handle(route, chain(info.Handler))
	}
	r.logRoutesTable()
}

func (r *RouteRegistry) logRoutesTable() {
	if len(r.routes) == 0 {
		return
	}

	type routeEntry struct {
		path   string
		method string
		desc   string
		order  int
	}

	entries := make([]routeEntry, 0, len(r.routes))
	for route, info := range r.routes {
		entries = append(entries, routeEntry{
			path:   route,
			method: info.Method,
			desc:   info.Description,
			order:  info.Order,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].order < entries[j].order
	})

	tableData := [][]string{
		{"ROUTE", "METHOD", "DESCRIPTION"},
	}
	for _, entry := range entries {
		tableData = append(tableData, []string{entry.path, entry.method, entry.desc})
	}

	r.logger.InfoWithCount("Registered web routes", len(entries))
	tableString, _ := pterm.DefaultTable.WithHasHeader().WithData(tableData).Srender()
	fmt.Print(tableString)
}

func (r *RouteRegistry) GetRoutes() map[string]RouteInfo {
	return r.routes
}
