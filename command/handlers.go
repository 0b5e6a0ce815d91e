package command

import (
	"context"
	"time"

	gcmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-snapshot/snapshot"
)

// Exporter runs export jobs. *snapshot.Orchestrator satisfies it.
type Exporter interface {
	Export(ctx context.Context, req snapshot.ExportRequest) (snapshot.ExportResult, error)
}

// Pruner removes stored artifacts created before cutoff.
type Pruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int, error)
}

// DefaultRetention is how long stored files are kept by default.
const DefaultRetention = 7 * 24 * time.Hour

// ExportSnapshotHandler handles export commands.
type ExportSnapshotHandler struct {
	Exporter Exporter
}

func NewExportSnapshotHandler(exporter Exporter) *ExportSnapshotHandler {
	return &ExportSnapshotHandler{Exporter: exporter}
}

func (h *ExportSnapshotHandler) Execute(ctx context.Context, msg ExportSnapshot) error {
	if h == nil || h.Exporter == nil {
		return errors.New("snapshot exporter is required", errors.CategoryInternal).
			WithTextCode("EXPORTER_REQUIRED")
	}
	result, err := h.Exporter.Export(ctx, msg.Request)
	if err != nil {
		return snapshot.AsGoError(err)
	}
	if msg.Result != nil {
		*msg.Result = result
	}
	if res := gcmd.ResultFromContext[snapshot.ExportResult](ctx); res != nil {
		res.Store(result)
	}
	return nil
}

// PruneArtifactsHandler removes expired files from the artifact store.
type PruneArtifactsHandler struct {
	Pruner    Pruner
	Retention time.Duration
	Config    gcmd.HandlerConfig
	Clock     func() time.Time
}

func NewPruneArtifactsHandler(pruner Pruner) *PruneArtifactsHandler {
	return &PruneArtifactsHandler{
		Pruner:    pruner,
		Retention: DefaultRetention,
		Config:    gcmd.HandlerConfig{Expression: "0 3 * * *"},
	}
}

func (h *PruneArtifactsHandler) Execute(ctx context.Context, msg PruneArtifacts) error {
	if h == nil || h.Pruner == nil {
		return errors.New("artifact pruner is required", errors.CategoryInternal).
			WithTextCode("PRUNER_REQUIRED")
	}
	cutoff := msg.Before
	if cutoff.IsZero() {
		now := time.Now()
		if h.Clock != nil {
			now = h.Clock()
		}
		retention := h.Retention
		if retention <= 0 {
			retention = DefaultRetention
		}
		cutoff = now.Add(-retention)
	}
	count, err := h.Pruner.Prune(ctx, cutoff)
	if err != nil {
		return snapshot.AsGoError(err)
	}
	if msg.Result != nil {
		*msg.Result = count
	}
	if res := gcmd.ResultFromContext[int](ctx); res != nil {
		res.Store(count)
	}
	return nil
}

func (h *PruneArtifactsHandler) CronHandler() func() error {
	return func() error {
		return h.Execute(context.Background(), PruneArtifacts{})
	}
}

func (h *PruneArtifactsHandler) CronOptions() gcmd.HandlerConfig {
	return h.Config
}
