package snapshot

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"image"
	"image/color"
	"io"
	"time"
)

// FormatID names a target format in the registry.
type FormatID string

// OutputKind is the file type a format packages into.
type OutputKind string

const (
	OutputPNG OutputKind = "png"
	OutputPDF OutputKind = "pdf"
)

// PageSize is a physical page size in PDF points (1/72 in).
type PageSize struct {
	Name     string
	WidthPt  float64
	HeightPt float64
}

// PageLetter is a US Letter page, 8.5x11in.
var PageLetter = PageSize{Name: "letter", WidthPt: 612, HeightPt: 792}

// ExportFormatSpec describes a named target format.
type ExportFormatSpec struct {
	ID           FormatID
	Label        string
	Output       OutputKind
	Width        int
	Height       int
	CaptureScale float64
	Background   color.RGBA
	// Page is set for print formats only.
	Page *PageSize
}

// AspectRatio returns width over height.
func (f ExportFormatSpec) AspectRatio() float64 {
	if f.Height == 0 {
		return 0
	}
	return float64(f.Width) / float64(f.Height)
}

// StyleOverride is a CSS declaration applied to the capture clone only.
type StyleOverride struct {
	Property string `json:"property"`
	Value    string `json:"value"`
}

// DefaultOverrides neutralize a live zoom transform and the outer margin.
var DefaultOverrides = []StyleOverride{
	{Property: "transform", Value: "none"},
	{Property: "zoom", Value: "1"},
	{Property: "margin", Value: "0"},
}

// ImageRef references an embedded image by source.
type ImageRef struct {
	Src string
}

// ImageState reports the load state of an image on a capture surface.
type ImageState struct {
	Ref           ImageRef
	Complete      bool
	NaturalWidth  int
	NaturalHeight int
}

// Settled reports whether the image already finished loading.
func (s ImageState) Settled() bool {
	return s.NaturalWidth > 0 && s.NaturalHeight > 0
}

// VisualDocument references the laid-out subtree to capture.
type VisualDocument struct {
	// Ref identifies the document for the in-flight guard.
	Ref          string
	Kind         string
	HTML         []byte
	RootSelector string
	BaseURL      string
	Width        int
	Height       int
	Images       []ImageRef
	Overrides    []StyleOverride
}

// Key returns the in-flight guard key. Without a Ref the key is derived from
// the root selector and markup, so only identical documents share a guard.
func (d VisualDocument) Key() string {
	if d.Ref != "" {
		return d.Ref
	}
	h := sha256.New()
	h.Write([]byte(d.RootSelector))
	h.Write([]byte{0})
	h.Write(d.HTML)
	return d.Kind + ":" + hex.EncodeToString(h.Sum(nil))[:16]
}

// CaptureDocument is the isolated host page built from a VisualDocument.
type CaptureDocument struct {
	HTML       []byte
	Width      int
	Height     int
	Images     []ImageRef
	Background color.RGBA
}

// SurfaceSpec is passed to SurfaceFactory.Open.
type SurfaceSpec struct {
	Document VisualDocument
	Capture  CaptureDocument
}

// Surface is an isolated, exactly-sized, invisible render target holding a
// clone of the document. Surfaces are job scoped.
type Surface interface {
	Images(ctx context.Context) ([]ImageState, error)
	AwaitImage(ctx context.Context, ref ImageRef) error
	Capture(ctx context.Context, scale float64) (image.Image, error)
	Close() error
}

// SurfaceFactory opens capture surfaces.
type SurfaceFactory interface {
	Open(ctx context.Context, spec SurfaceSpec) (Surface, error)
}

// SurfaceFactoryFunc adapts a function to a SurfaceFactory.
type SurfaceFactoryFunc func(ctx context.Context, spec SurfaceSpec) (Surface, error)

func (f SurfaceFactoryFunc) Open(ctx context.Context, spec SurfaceSpec) (Surface, error) {
	if f == nil {
		return nil, NewError(KindNotImpl, "surface factory is nil", nil)
	}
	return f(ctx, spec)
}

// RasterResult is a captured bitmap.
type RasterResult struct {
	Image  image.Image
	Width  int
	Height int
	Scale  float64
}

// AspectRatio returns width over height.
func (r RasterResult) AspectRatio() float64 {
	if r.Height == 0 {
		return 0
	}
	return float64(r.Width) / float64(r.Height)
}

// ExportRequest captures an export request.
type ExportRequest struct {
	Document VisualDocument
	Format   FormatID
	// CaptureScale overrides the format capture scale when >= 1.
	CaptureScale float64
	// Filename overrides the filename template.
	Filename string
	// Output receives a copy of the packaged file when set.
	Output io.Writer
}

// ExportResult captures a completed export.
type ExportResult struct {
	JobID      string
	Format     FormatID
	Output     OutputKind
	Filename   string
	Width      int
	Height     int
	Composited bool
	Bytes      int64
	Preload    PreloadReport
	Artifact   *ArtifactRef
}

// ArtifactMeta captures stored artifact metadata.
type ArtifactMeta struct {
	ContentType string
	Size        int64
	Filename    string
	CreatedAt   time.Time
}

// ArtifactRef references a stored artifact.
type ArtifactRef struct {
	Key  string
	Meta ArtifactMeta
}

// ArtifactStore stores packaged files. Put must be atomic: a failed Put
// leaves nothing behind.
type ArtifactStore interface {
	Put(ctx context.Context, key string, r io.Reader, meta ArtifactMeta) (ArtifactRef, error)
	Open(ctx context.Context, key string) (io.ReadCloser, ArtifactMeta, error)
	Delete(ctx context.Context, key string) error
}

// JobRecord captures tracker state for a job.
type JobRecord struct {
	ID          string
	DocumentRef string
	Kind        string
	Format      FormatID
	State       JobState
	Filename    string
	Error       string
	Artifact    ArtifactRef
	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
}

// JobFilter filters tracker lists.
type JobFilter struct {
	DocumentRef string
	Format      FormatID
	State       JobState
	Since       time.Time
	Until       time.Time
}

// Tracker persists job records.
type Tracker interface {
	Start(ctx context.Context, record JobRecord) (string, error)
	SetState(ctx context.Context, id string, state JobState) error
	Fail(ctx context.Context, id string, err error) error
	Complete(ctx context.Context, id string, ref ArtifactRef) error
	Status(ctx context.Context, id string) (JobRecord, error)
	List(ctx context.Context, filter JobFilter) ([]JobRecord, error)
}

// Logger provides logging hooks.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Errorf(format string, args ...any)
}

// NopLogger is a no-op logger.
type NopLogger struct{}

func (NopLogger) Debugf(string, ...any) {}
func (NopLogger) Infof(string, ...any)  {}
func (NopLogger) Errorf(string, ...any) {}

// ChangeEvent describes job lifecycle events.
type ChangeEvent struct {
	Name        string
	JobID       string
	DocumentRef string
	Kind        string
	Format      FormatID
	Timestamp   time.Time
	Metadata    map[string]any
}

// ChangeEmitter emits lifecycle events.
type ChangeEmitter interface {
	Emit(ctx context.Context, evt ChangeEvent) error
}
