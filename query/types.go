package query

import (
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-snapshot/snapshot"
)

// JobStatus requests a job record.
type JobStatus struct {
	JobID string
}

func (JobStatus) Type() string { return "snapshot:status" }

func (msg JobStatus) Validate() error {
	if msg.JobID == "" {
		return errors.New("job ID is required", errors.CategoryValidation).
			WithTextCode("JOB_ID_REQUIRED")
	}
	return nil
}

// JobHistory requests job history.
type JobHistory struct {
	Filter snapshot.JobFilter
}

func (JobHistory) Type() string { return "snapshot:history" }

func (msg JobHistory) Validate() error {
	if !msg.Filter.Since.IsZero() && !msg.Filter.Until.IsZero() && msg.Filter.Until.Before(msg.Filter.Since) {
		return errors.New("history window ends before it starts", errors.CategoryValidation).
			WithTextCode("WINDOW_INVALID")
	}
	return nil
}

// DownloadMetadata requests the stored file metadata of a finished job.
type DownloadMetadata struct {
	JobID string
}

func (DownloadMetadata) Type() string { return "snapshot:download" }

func (msg DownloadMetadata) Validate() error {
	if msg.JobID == "" {
		return errors.New("job ID is required", errors.CategoryValidation).
			WithTextCode("JOB_ID_REQUIRED")
	}
	return nil
}

// ListFormats requests the registered export formats.
type ListFormats struct{}

func (ListFormats) Type() string { return "snapshot:formats" }

func (ListFormats) Validate() error { return nil }
