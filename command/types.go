package command

import (
	"strings"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-snapshot/snapshot"
)

// ExportSnapshot runs one snapshot export job.
type ExportSnapshot struct {
	Request snapshot.ExportRequest
	Result  *snapshot.ExportResult
}

func (ExportSnapshot) Type() string { return "snapshot:export" }

func (msg ExportSnapshot) Validate() error {
	if strings.TrimSpace(string(msg.Request.Format)) == "" {
		return errors.New("format is required", errors.CategoryValidation).
			WithTextCode("FORMAT_REQUIRED")
	}
	doc := msg.Request.Document
	if len(doc.HTML) == 0 {
		return errors.New("document markup is required", errors.CategoryValidation).
			WithTextCode("DOCUMENT_REQUIRED")
	}
	if strings.TrimSpace(doc.RootSelector) == "" {
		return errors.New("root selector is required", errors.CategoryValidation).
			WithTextCode("ROOT_SELECTOR_REQUIRED")
	}
	if doc.Width <= 0 || doc.Height <= 0 {
		return errors.New("document size must be positive", errors.CategoryValidation).
			WithTextCode("DOCUMENT_SIZE_INVALID")
	}
	if msg.Request.CaptureScale != 0 && msg.Request.CaptureScale < 1 {
		return errors.New("capture scale must be >= 1", errors.CategoryValidation).
			WithTextCode("CAPTURE_SCALE_INVALID")
	}
	return nil
}

// PruneArtifacts removes stored files older than a cutoff.
type PruneArtifacts struct {
	// Before is the cutoff; zero means now minus the handler retention.
	Before time.Time
	Result *int
}

func (PruneArtifacts) Type() string { return "snapshot:prune" }

func (PruneArtifacts) Validate() error { return nil }
