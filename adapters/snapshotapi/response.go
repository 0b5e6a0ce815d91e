package snapshotapi

import (
	"io"
	"mime"
	"time"

	"github.com/goliatone/go-snapshot/snapshot"
)

// JobIDHeader carries the job ID on file responses.
const JobIDHeader = "X-Snapshot-Job-Id"

// Response writes snapshot API results through a transport.
type Response interface {
	SetHeader(name, value string)
	JSON(status int, payload any) error
	// Download sends a packaged file. An error means nothing was written.
	Download(file Download, body io.Reader) error
}

// Download describes a packaged file sent to the client.
type Download struct {
	JobID       string
	Filename    string
	ContentType string
	Size        int64
	ModTime     time.Time
	// BufferLimit bounds the copy made by transports that cannot stream.
	BufferLimit int64
}

// MediaType returns the content type, defaulting to a binary stream.
func (d Download) MediaType() string {
	if d.ContentType == "" {
		return "application/octet-stream"
	}
	return d.ContentType
}

// Disposition returns the attachment header value for the file. Non-ASCII
// names use the RFC 2231 extended form.
func (d Download) Disposition() string {
	name := sanitizeFilename(d.Filename, outputFromPath(d.Filename))
	if isPrintableASCII(name) {
		return `attachment; filename="` + name + `"`
	}
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": name}); v != "" {
		return v
	}
	return `attachment; filename="` + sanitizeFilename("", outputFromPath(name)) + `"`
}

func isPrintableASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7e {
			return false
		}
	}
	return true
}

// FormatResponse describes one catalog entry.
type FormatResponse struct {
	ID           string        `json:"id"`
	Label        string        `json:"label"`
	Output       string        `json:"output"`
	Width        int           `json:"width"`
	Height       int           `json:"height"`
	CaptureScale float64       `json:"capture_scale"`
	Page         *PageResponse `json:"page,omitempty"`
}

// PageResponse describes a physical page in points.
type PageResponse struct {
	Name     string  `json:"name"`
	WidthPt  float64 `json:"width_pt"`
	HeightPt float64 `json:"height_pt"`
}

// JobResponse describes a job record.
type JobResponse struct {
	ID          string     `json:"id"`
	DocumentRef string     `json:"document_ref"`
	Kind        string     `json:"kind,omitempty"`
	Format      string     `json:"format"`
	State       string     `json:"state"`
	Filename    string     `json:"filename,omitempty"`
	ContentType string     `json:"content_type,omitempty"`
	Size        int64      `json:"size,omitempty"`
	Error       string     `json:"error,omitempty"`
	DownloadURL string     `json:"download_url,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// BusyResponse reports whether a document has an export in flight.
type BusyResponse struct {
	Ref  string `json:"ref"`
	Busy bool   `json:"busy"`
}

// ErrorResponse describes JSON error responses.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody contains error details.
type ErrorBody struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func formatResponse(spec snapshot.ExportFormatSpec) FormatResponse {
	out := FormatResponse{
		ID:           string(spec.ID),
		Label:        spec.Label,
		Output:       string(spec.Output),
		Width:        spec.Width,
		Height:       spec.Height,
		CaptureScale: spec.CaptureScale,
	}
	if spec.Page != nil {
		out.Page = &PageResponse{Name: spec.Page.Name, WidthPt: spec.Page.WidthPt, HeightPt: spec.Page.HeightPt}
	}
	return out
}

func jobResponse(record snapshot.JobRecord, downloadURL string) JobResponse {
	out := JobResponse{
		ID:          record.ID,
		DocumentRef: record.DocumentRef,
		Kind:        record.Kind,
		Format:      string(record.Format),
		State:       string(record.State),
		Filename:    record.Filename,
		ContentType: record.Artifact.Meta.ContentType,
		Size:        record.Artifact.Meta.Size,
		CreatedAt:   record.CreatedAt,
		StartedAt:   timePtr(record.StartedAt),
		CompletedAt: timePtr(record.CompletedAt),
	}
	if record.State == snapshot.JobFailed {
		// Raw detail stays in the tracker.
		out.Error = snapshot.UserMessage(snapshot.NewError(snapshot.KindInternal, record.Error, nil))
	}
	if record.State == snapshot.JobDone && record.Artifact.Key != "" {
		out.DownloadURL = downloadURL
	}
	return out
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
