package query

import (
	"context"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-snapshot/snapshot"
)

// JobStatusHandler returns a single job record.
type JobStatusHandler struct {
	Orchestrator *snapshot.Orchestrator
}

func NewJobStatusHandler(o *snapshot.Orchestrator) *JobStatusHandler {
	return &JobStatusHandler{Orchestrator: o}
}

func (h *JobStatusHandler) Query(ctx context.Context, msg JobStatus) (snapshot.JobRecord, error) {
	if h == nil || h.Orchestrator == nil {
		return snapshot.JobRecord{}, errors.New("snapshot orchestrator is required", errors.CategoryInternal).
			WithTextCode("ORCHESTRATOR_REQUIRED")
	}
	record, err := h.Orchestrator.Status(ctx, msg.JobID)
	if err != nil {
		return snapshot.JobRecord{}, snapshot.AsGoError(err)
	}
	return record, nil
}

// JobHistoryHandler returns job history, newest first.
type JobHistoryHandler struct {
	Orchestrator *snapshot.Orchestrator
}

func NewJobHistoryHandler(o *snapshot.Orchestrator) *JobHistoryHandler {
	return &JobHistoryHandler{Orchestrator: o}
}

func (h *JobHistoryHandler) Query(ctx context.Context, msg JobHistory) ([]snapshot.JobRecord, error) {
	if h == nil || h.Orchestrator == nil {
		return nil, errors.New("snapshot orchestrator is required", errors.CategoryInternal).
			WithTextCode("ORCHESTRATOR_REQUIRED")
	}
	records, err := h.Orchestrator.History(ctx, msg.Filter)
	if err != nil {
		return nil, snapshot.AsGoError(err)
	}
	return records, nil
}

// DownloadMetadataHandler returns stored file metadata without reading the
// file.
type DownloadMetadataHandler struct {
	Orchestrator *snapshot.Orchestrator
}

func NewDownloadMetadataHandler(o *snapshot.Orchestrator) *DownloadMetadataHandler {
	return &DownloadMetadataHandler{Orchestrator: o}
}

func (h *DownloadMetadataHandler) Query(ctx context.Context, msg DownloadMetadata) (snapshot.ArtifactRef, error) {
	if h == nil || h.Orchestrator == nil {
		return snapshot.ArtifactRef{}, errors.New("snapshot orchestrator is required", errors.CategoryInternal).
			WithTextCode("ORCHESTRATOR_REQUIRED")
	}
	record, err := h.Orchestrator.Status(ctx, msg.JobID)
	if err != nil {
		return snapshot.ArtifactRef{}, snapshot.AsGoError(err)
	}
	if record.State != snapshot.JobDone || record.Artifact.Key == "" {
		return snapshot.ArtifactRef{}, errors.New("job has no file", errors.CategoryNotFound).
			WithTextCode("not_found")
	}
	return record.Artifact, nil
}

// ListFormatsHandler returns the registered formats.
type ListFormatsHandler struct {
	Formats *snapshot.FormatRegistry
}

func NewListFormatsHandler(formats *snapshot.FormatRegistry) *ListFormatsHandler {
	return &ListFormatsHandler{Formats: formats}
}

func (h *ListFormatsHandler) Query(ctx context.Context, msg ListFormats) ([]snapshot.ExportFormatSpec, error) {
	if h == nil || h.Formats == nil {
		return nil, errors.New("format registry is required", errors.CategoryInternal).
			WithTextCode("FORMATS_REQUIRED")
	}
	return h.Formats.List(), nil
}
