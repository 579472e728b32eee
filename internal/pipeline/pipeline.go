// Package pipeline implements the Handler Pipeline state machine, the
// Active-Handler Limiter, and the per-request Request Context (ss4.F, 4.H,
// 4.I). The teacher's single-threaded event-loop model is translated into a
// goroutine-per-request model: each Dispatch call runs on its own goroutine,
// with explicit drain points standing in for the original's await points.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/balancedhttp/core/internal/core/domain"
	"github.com/balancedhttp/core/internal/core/ports"
	"github.com/balancedhttp/core/pkg/eventbus"
)

// Event is one Handler Pipeline lifecycle notification, published on the
// Pipeline's event bus for anything subscribed to request admission/
// completion (access logging, metrics mirrors, debug tooling).
type Event struct {
	Kind       string // "admitted", "finished", "rejected"
	Handler    string
	RequestID  string
	StatusCode int
}

// PageFunc is one HTTP-method handler: the domain-specific work function
// that produces a Request Result (ss4.F "page method").
type PageFunc func(ctx context.Context, ex *Exchange) (*domain.RequestResult, error)

// Handler groups one route's method dispatch table, static hook chains, and
// optional fail-fast overrides. A nil PageFunc for a given method means the
// handler does not override it (ss4.F: "respond 405 ... Allow header
// listing overridden methods").
type Handler struct {
	Name string

	Get    PageFunc
	Post   PageFunc
	Put    PageFunc
	Delete PageFunc
	Head   PageFunc // falls back to Get when nil, since HEAD maps to GET

	// FailFast maps an HTTP method to its "{method}_page_fail_fast" override.
	FailFast map[string]PageFunc

	Preprocessors        []ports.Preprocessor
	Postprocessors        []ports.Postprocessor
	RenderPostprocessors  []ports.RenderPostprocessor
	ExceptionHooks        []func(ctx context.Context, err error)

	Renderers *domain.RendererRegistry
}

func (h *Handler) pageFor(method string) (PageFunc, bool) {
	switch method {
	case http.MethodGet:
		return h.Get, h.Get != nil
	case http.MethodPost:
		return h.Post, h.Post != nil
	case http.MethodPut:
		return h.Put, h.Put != nil
	case http.MethodDelete:
		return h.Delete, h.Delete != nil
	case http.MethodHead:
		if h.Head != nil {
			return h.Head, true
		}
		return h.Get, h.Get != nil
	default:
		return nil, false
	}
}

func (h *Handler) allowedMethods() []string {
	var allowed []string
	if h.Get != nil {
		allowed = append(allowed, http.MethodGet, http.MethodHead)
	}
	if h.Post != nil {
		allowed = append(allowed, http.MethodPost)
	}
	if h.Put != nil {
		allowed = append(allowed, http.MethodPut)
	}
	if h.Delete != nil {
		allowed = append(allowed, http.MethodDelete)
	}
	return allowed
}

// Exchange is the per-request pipeline state: pending operations, the
// finished flag, and any hooks registered dynamically during this one
// request (ss4.F, 4.J handler-level hooks).
type Exchange struct {
	ctx     context.Context
	request *http.Request

	pendingOps             PendingOperations
	pendingPreprocessorOps PendingOperations

	finished bool
	status   int

	dynamicPostprocessors       []ports.Postprocessor
	dynamicRenderPostprocessors []ports.RenderPostprocessor
	dynamicExceptionHooks       []func(context.Context, error)
}

// Context returns the request-scoped context (carrying the Request Context
// values established by the admission wrapper).
func (e *Exchange) Context() context.Context { return e.ctx }

// Request returns the inbound HTTP request.
func (e *Exchange) Request() *http.Request { return e.request }

// Finish marks the handler finished: preprocessors, the page method,
// postprocessors and render-postprocessors that have not run yet are
// skipped, and whatever result exists is still rendered.
func (e *Exchange) Finish() { e.finished = true }

// Finished reports whether Finish has been called.
func (e *Exchange) Finished() bool { return e.finished }

// SetStatus records code on the Exchange, used by HTTPErrorWithPostprocessors
// handling. Rendering does not read this field; the rendered status comes
// from the result's RawResponse.
func (e *Exchange) SetStatus(code int) { e.status = code }

// AddPreprocessorFuture queues f to be awaited, in parallel with any
// sibling futures, once the sequential preprocessor chain finishes
// (ss4.F "pending_preprocessor_operations").
func (e *Exchange) AddPreprocessorFuture(f func() error) {
	e.pendingPreprocessorOps.Add(f)
}

// WaitFuture queues f as a pending operation to be drained before
// postprocessors run. If the handler has already finished, it resolves
// immediately with AbortPage instead of queuing (ss4.F "outbound calls").
func (e *Exchange) WaitFuture(f func() error) error {
	if e.finished {
		return &domain.AbortPage{Reason: "handler already finished"}
	}
	e.pendingOps.Add(f)
	return nil
}

// AddPostprocessor appends a postprocessor to run, in registration order,
// after the handler's static postprocessors.
func (e *Exchange) AddPostprocessor(p ports.Postprocessor) {
	e.dynamicPostprocessors = append(e.dynamicPostprocessors, p)
}

// AddRenderPostprocessor appends a render-postprocessor to run after the
// handler's static ones.
func (e *Exchange) AddRenderPostprocessor(p ports.RenderPostprocessor) {
	e.dynamicRenderPostprocessors = append(e.dynamicRenderPostprocessors, p)
}

// RegisterExceptionHook appends an exception hook invoked by the error path
// in addition to the handler's static hooks.
func (e *Exchange) RegisterExceptionHook(fn func(context.Context, error)) {
	e.dynamicExceptionHooks = append(e.dynamicExceptionHooks, fn)
}

// Pipeline drives one Handler through the admitted -> ... -> finished state
// machine for every request it dispatches (ss4.F).
type Pipeline struct {
	limiter *Limiter
	events  *eventbus.EventBus[Event]

	slowThreshold     time.Duration
	criticalThreshold time.Duration
	errorReporter     ports.ErrorReporter
}

// New builds a Pipeline gated by limiter (nil disables admission control,
// useful in tests).
func New(limiter *Limiter) *Pipeline {
	return &Pipeline{limiter: limiter}
}

// WithEvents attaches an event bus that Dispatch publishes admitted/
// rejected/finished notifications to; nil (the default) disables publishing.
func (p *Pipeline) WithEvents(events *eventbus.EventBus[Event]) *Pipeline {
	p.events = events
	return p
}

// WithTaskThresholds sets the slow/critical task durations (ss6,
// "asyncio_task_threshold_sec"/"asyncio_task_critical_threshold_sec"): a
// Dispatch call running past slow gets a warning log, past critical also
// reports through reporter. Either threshold may be zero to disable it.
func (p *Pipeline) WithTaskThresholds(slow, critical time.Duration, reporter ports.ErrorReporter) *Pipeline {
	p.slowThreshold = slow
	p.criticalThreshold = critical
	p.errorReporter = reporter
	return p
}

func (p *Pipeline) publish(kind, handlerName, requestID string, statusCode int) {
	if p.events == nil {
		return
	}
	p.events.PublishAsync(Event{Kind: kind, Handler: handlerName, RequestID: requestID, StatusCode: statusCode})
}

// Dispatch runs the full pipeline for one request against handler.
func (p *Pipeline) Dispatch(w http.ResponseWriter, r *http.Request, handler *Handler) {
	requestID := RequestID(r.Context())
	start := time.Now()
	defer p.reportSlowTask(r.Context(), handler.Name, requestID, start)

	if p.limiter != nil {
		release, ok := p.limiter.Admit()
		if !ok {
			p.publish("rejected", handler.Name, requestID, http.StatusServiceUnavailable)
			http.Error(w, "service busy", http.StatusServiceUnavailable)
			return
		}
		defer release()
	}

	p.publish("admitted", handler.Name, requestID, 0)

	ex := &Exchange{ctx: r.Context(), request: r}

	result, err := p.runPreprocessorsAndPage(ex, r, handler)
	if err != nil {
		p.handleError(w, r, handler, ex, err)
		p.publish("finished", handler.Name, requestID, 0)
		return
	}
	if result == nil {
		result = &domain.RequestResult{}
	}

	if err := ex.pendingOps.Drain(); err != nil {
		p.handleError(w, r, handler, ex, err)
		p.publish("finished", handler.Name, requestID, 0)
		return
	}
	ex.pendingOps.Close()

	if err := p.runPostprocessors(ex, r, handler, result); err != nil {
		p.handleError(w, r, handler, ex, err)
		p.publish("finished", handler.Name, requestID, 0)
		return
	}

	p.render(w, r, handler, result)
	p.runRenderPostprocessors(ex, r, handler, result)
	p.publish("finished", handler.Name, requestID, result.StatusCode())
}

func (p *Pipeline) reportSlowTask(ctx context.Context, handlerName, requestID string, start time.Time) {
	if p.slowThreshold <= 0 {
		return
	}
	elapsed := time.Since(start)
	if elapsed < p.slowThreshold {
		return
	}
	slog.WarnContext(ctx, "slow task", "handler", handlerName, "request_id", requestID, "elapsed", elapsed)
	if p.criticalThreshold > 0 && elapsed >= p.criticalThreshold && p.errorReporter != nil {
		p.errorReporter.ReportError(ctx, errors.New("task exceeded critical threshold"), map[string]string{
			"handler":    handlerName,
			"request_id": requestID,
			"elapsed":    elapsed.String(),
		})
	}
}

func (p *Pipeline) runPreprocessorsAndPage(ex *Exchange, r *http.Request, handler *Handler) (*domain.RequestResult, error) {
	for _, pp := range handler.Preprocessors {
		if ex.finished {
			break
		}
		if err := pp.Process(ex.ctx, r); err != nil {
			return nil, err
		}
	}

	if err := ex.pendingPreprocessorOps.Drain(); err != nil {
		return nil, err
	}
	ex.pendingPreprocessorOps.Close()

	if ex.finished {
		return nil, nil
	}

	page, overridden := handler.pageFor(r.Method)
	if !overridden {
		return nil, &methodNotAllowed{allowed: handler.allowedMethods()}
	}

	return page(ex.ctx, ex)
}

func (p *Pipeline) runPostprocessors(ex *Exchange, r *http.Request, handler *Handler, result *domain.RequestResult) error {
	for _, pp := range handler.Postprocessors {
		if ex.finished {
			return nil
		}
		if err := pp.Process(ex.ctx, r, result); err != nil {
			return err
		}
	}
	for _, pp := range ex.dynamicPostprocessors {
		if ex.finished {
			return nil
		}
		if err := pp.Process(ex.ctx, r, result); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) render(w http.ResponseWriter, r *http.Request, handler *Handler, result *domain.RequestResult) {
	if result == nil {
		result = &domain.RequestResult{}
	}
	renderers := handler.Renderers
	if renderers == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	renderer := renderers.Select(r, result)
	if renderer == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	_ = renderer.Render(w, r, result)
}

func (p *Pipeline) runRenderPostprocessors(ex *Exchange, r *http.Request, handler *Handler, result *domain.RequestResult) {
	statusCode := result.StatusCode()
	for _, pp := range handler.RenderPostprocessors {
		if ex.finished {
			return
		}
		pp.Process(ex.ctx, r, statusCode)
	}
	for _, pp := range ex.dynamicRenderPostprocessors {
		if ex.finished {
			return
		}
		pp.Process(ex.ctx, r, statusCode)
	}
}

// handleError routes a pipeline-ending error to the correct response,
// per (ss4.F "Errors"): AbortPage is silent, FinishWithPostprocessors and
// HTTPErrorWithPostprocessors jump to postprocessors/rendering,
// FailFastError looks up a {method}_page_fail_fast override, and any other
// error goes through the error path (status + exception hooks).
func (p *Pipeline) handleError(w http.ResponseWriter, r *http.Request, handler *Handler, ex *Exchange, err error) {
	var abort *domain.AbortPage
	if errors.As(err, &abort) {
		return
	}

	var finishWith *domain.FinishWithPostprocessors
	if errors.As(err, &finishWith) {
		result := &domain.RequestResult{}
		if perr := p.runPostprocessors(ex, r, handler, result); perr == nil {
			p.render(w, r, handler, result)
			p.runRenderPostprocessors(ex, r, handler, result)
		}
		return
	}

	var httpErr *domain.HTTPErrorWithPostprocessors
	if errors.As(err, &httpErr) {
		ex.SetStatus(httpErr.Code)
		result := &domain.RequestResult{RawResponse: &http.Response{StatusCode: httpErr.Code}}
		if perr := p.runPostprocessors(ex, r, handler, result); perr == nil {
			p.render(w, r, handler, result)
			p.runRenderPostprocessors(ex, r, handler, result)
		}
		return
	}

	var methodErr *methodNotAllowed
	if errors.As(err, &methodErr) {
		if len(methodErr.allowed) > 0 {
			w.Header().Set("Allow", joinComma(methodErr.allowed))
		}
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var failFast *domain.FailFastError
	if errors.As(err, &failFast) {
		p.handleFailFast(w, r, handler, failFast)
		p.notifyExceptionHooks(ex, handler, err)
		return
	}

	p.sendError(w, err)
	p.notifyExceptionHooks(ex, handler, err)
}

func (p *Pipeline) handleFailFast(w http.ResponseWriter, r *http.Request, handler *Handler, failFast *domain.FailFastError) {
	if fn, ok := handler.FailFast[r.Method]; ok && fn != nil {
		ex := &Exchange{ctx: r.Context(), request: r}
		result, err := fn(ex.ctx, ex)
		if err == nil {
			p.render(w, r, handler, result)
			return
		}
	}

	code := http.StatusBadGateway
	if failFast.StatusCode >= 300 && failFast.StatusCode < 500 {
		code = failFast.StatusCode
	}
	http.Error(w, failFast.Error(), code)
}

func (p *Pipeline) sendError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	var httpErr *domain.HTTPErrorWithPostprocessors
	if errors.As(err, &httpErr) {
		code = httpErr.Code
	}
	http.Error(w, err.Error(), code)
}

func (p *Pipeline) notifyExceptionHooks(ex *Exchange, handler *Handler, err error) {
	for _, hook := range handler.ExceptionHooks {
		hook(ex.ctx, err)
	}
	for _, hook := range ex.dynamicExceptionHooks {
		hook(ex.ctx, err)
	}
}

func joinComma(items []string) string {
	out := ""
	for i, item := range items {
		if i > 0 {
			out += ", "
		}
		out += item
	}
	return out
}

type methodNotAllowed struct {
	allowed []string
}

func (e *methodNotAllowed) Error() string { return "method not allowed" }
