package snapshothttp

import (
	"net/http"

	"github.com/goliatone/go-snapshot/adapters/snapshotapi"
	"github.com/goliatone/go-snapshot/snapshot"
)

// Config configures the HTTP adapter.
type Config = snapshotapi.Config

// Handler exposes snapshot HTTP endpoints.
type Handler struct {
	controller *snapshotapi.Controller
}

// NewHandler creates a new HTTP handler.
func NewHandler(cfg Config) *Handler {
	return &Handler{controller: snapshotapi.NewController(cfg)}
}

// RegisterRoutes registers handlers on a compatible router.
func (h *Handler) RegisterRoutes(router any) {
	switch r := router.(type) {
	case interface{ Handle(string, http.Handler) }:
		r.Handle(h.basePath(), h)
		r.Handle(h.basePath()+"/", h)
	case interface {
		HandleFunc(string, func(http.ResponseWriter, *http.Request))
	}:
		r.HandleFunc(h.basePath(), h.ServeHTTP)
		r.HandleFunc(h.basePath()+"/", h.ServeHTTP)
	}
}

// ServeHTTP routes snapshot endpoints.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if w == nil {
		return
	}
	if h == nil || h.controller == nil {
		snapshotapi.WriteError(NewResponse(w, r), snapshot.NewError(snapshot.KindInternal, "handler is nil", nil))
		return
	}
	h.controller.Serve(NewRequest(w, r), NewResponse(w, r))
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
