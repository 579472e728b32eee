package domain

import (
	"net/http"
	"sort"
)

// Renderer turns a handler's finished result into bytes on the wire. A
// renderer is asked in priority order whether it CanApply to the current
// request/result pair; the first one that says yes renders it (ss4.G).
type Renderer interface {
	Name() string
	CanApply(req *http.Request, result *RequestResult) bool
	Render(w http.ResponseWriter, req *http.Request, result *RequestResult) error
}

type registeredRenderer struct {
	priority int
	renderer Renderer
}

// RendererRegistry holds renderers ordered by ascending priority (lower runs
// first); at equal priority, insertion order is preserved (ss4.G, "stable at
// equal priority").
type RendererRegistry struct {
	entries []registeredRenderer
}

// NewRendererRegistry returns an empty registry.
func NewRendererRegistry() *RendererRegistry {
	return &RendererRegistry{}
}

// Register inserts a renderer at the given priority using binary insertion,
// keeping the slice sorted without a full re-sort on every registration.
func (rr *RendererRegistry) Register(priority int, r Renderer) {
	entry := registeredRenderer{priority: priority, renderer: r}
	i := sort.Search(len(rr.entries), func(i int) bool {
		return rr.entries[i].priority > priority
	})
	rr.entries = append(rr.entries, registeredRenderer{})
	copy(rr.entries[i+1:], rr.entries[i:])
	rr.entries[i] = entry
}

// Select returns the first renderer, in priority order, whose CanApply
// returns true for the given request/result pair, or nil if none applies.
func (rr *RendererRegistry) Select(req *http.Request, result *RequestResult) Renderer {
	for _, e := range rr.entries {
		if e.renderer.CanApply(req, result) {
			return e.renderer
		}
	}
	return nil
}

// All returns the registered renderers in priority order, for diagnostics.
func (rr *RendererRegistry) All() []Renderer {
	out := make([]Renderer, len(rr.entries))
	for i, e := range rr.entries {
		out[i] = e.renderer
	}
	return out
}
