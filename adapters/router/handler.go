package snapshotrouter

import (
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-snapshot/adapters/snapshotapi"
	"github.com/goliatone/go-snapshot/snapshot"
)

// Config configures the go-router adapter.
type Config = snapshotapi.Config

// Handler exposes snapshot routes for go-router.
type Handler struct {
	controller *snapshotapi.Controller
}

// NewHandler creates a go-router handler.
func NewHandler(cfg Config) *Handler {
	return &Handler{controller: snapshotapi.NewController(cfg)}
}

// RegisterRoutes registers routes on a compatible go-router router.
func (h *Handler) RegisterRoutes(router any) {
	r, ok := router.(routeRegistrar)
	if !ok {
		return
	}
	base := h.basePath()

	r.Post(base, h.Handle)
	r.Post(base+"/", h.Handle)
	r.Get(base+"/formats", h.Handle)
	r.Get(base+"/busy", h.Handle)
	r.Get(base+"/jobs", h.Handle)
	r.Get(base+"/jobs/:id", h.Handle)
	r.Get(base+"/jobs/:id/download", h.Handle)
}

// Handle executes the shared snapshot workflow.
func (h *Handler) Handle(c router.Context) error {
	if c == nil {
		return nil
	}
	if h == nil || h.controller == nil {
		snapshotapi.WriteError(routerResponse{ctx: c}, snapshot.NewError(snapshot.KindInternal, "handler is nil", nil))
		return nil
	}
	h.controller.Serve(routerRequest{ctx: c}, routerResponse{ctx: c})
	return nil
}

func (h *Handler) basePath() string {
	if h == nil || h.controller == nil {
		return snapshotapi.DefaultBasePath
	}
	path := h.controller.BasePath()
	if path == "" {
		return snapshotapi.DefaultBasePath
	}
	return path
}

type routeRegistrar interface {
	Get(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Post(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
}
