package snapshot

import (
	"fmt"
	"image/color"
	"sort"
	"sync"
)

// Format ids in the default catalog.
const (
	FormatLetter          FormatID = "letter"
	FormatLetterHiRes     FormatID = "letter-hires"
	FormatPostcard        FormatID = "postcard"
	FormatInstagramSquare FormatID = "instagram-square"
	FormatInstagram       FormatID = "instagram"
	FormatFacebook        FormatID = "facebook"
	FormatLinkedIn        FormatID = "linkedin"
	FormatEmailSignature  FormatID = "email-sig"
)

// PrintDPI is the target print resolution for the letter page.
const PrintDPI = 300

var white = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}

// DefaultFormats returns the built-in format catalog.
func DefaultFormats() []ExportFormatSpec {
	letter := PageLetter
	return []ExportFormatSpec{
		{
			ID:           FormatLetter,
			Label:        "Print (Letter PDF)",
			Output:       OutputPDF,
			Width:        int(letter.WidthPt),
			Height:       int(letter.HeightPt),
			CaptureScale: PrintDPI / 72.0,
			Background:   white,
			Page:         &letter,
		},
		{ID: FormatLetterHiRes, Label: "High-res PNG (2x)", Output: OutputPNG, Width: 1224, Height: 1584, CaptureScale: 2, Background: white},
		{ID: FormatPostcard, Label: "Postcard 6x4in", Output: OutputPNG, Width: 1800, Height: 1200, CaptureScale: 3, Background: white},
		{ID: FormatInstagramSquare, Label: "Instagram post", Output: OutputPNG, Width: 1080, Height: 1080, CaptureScale: 2, Background: white},
		{ID: FormatInstagram, Label: "Instagram story", Output: OutputPNG, Width: 1080, Height: 1920, CaptureScale: 2, Background: white},
		{ID: FormatFacebook, Label: "Facebook", Output: OutputPNG, Width: 1200, Height: 630, CaptureScale: 2, Background: white},
		{ID: FormatLinkedIn, Label: "LinkedIn", Output: OutputPNG, Width: 1200, Height: 627, CaptureScale: 2, Background: white},
		{ID: FormatEmailSignature, Label: "Email signature", Output: OutputPNG, Width: 600, Height: 200, CaptureScale: 2, Background: white},
	}
}

// FormatRegistry stores format specs by id.
type FormatRegistry struct {
	mu      sync.RWMutex
	formats map[FormatID]ExportFormatSpec
}

// NewFormatRegistry creates an empty registry.
func NewFormatRegistry() *FormatRegistry {
	return &FormatRegistry{formats: make(map[FormatID]ExportFormatSpec)}
}

// NewDefaultFormatRegistry creates a registry holding DefaultFormats.
func NewDefaultFormatRegistry() *FormatRegistry {
	r := NewFormatRegistry()
	for _, spec := range DefaultFormats() {
		_ = r.Register(spec)
	}
	return r
}

// Register adds a format spec.
func (r *FormatRegistry) Register(spec ExportFormatSpec) error {
	if err := ValidateFormat(spec); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.formats[spec.ID]; exists {
		return NewError(KindValidation, fmt.Sprintf("format %q already registered", spec.ID), nil)
	}
	if spec.Page != nil {
		page := *spec.Page
		spec.Page = &page
	}
	r.formats[spec.ID] = spec
	return nil
}

// Resolve returns the format spec for an id.
func (r *FormatRegistry) Resolve(id FormatID) (ExportFormatSpec, error) {
	r.mu.RLock()
	spec, ok := r.formats[id]
	r.mu.RUnlock()
	if !ok {
		return ExportFormatSpec{}, NewError(KindNotFound, fmt.Sprintf("format %q not found", id), nil)
	}
	if spec.Page != nil {
		page := *spec.Page
		spec.Page = &page
	}
	return spec, nil
}

// List returns all formats ordered by id.
func (r *FormatRegistry) List() []ExportFormatSpec {
	r.mu.RLock()
	out := make([]ExportFormatSpec, 0, len(r.formats))
	for _, spec := range r.formats {
		out = append(out, spec)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ValidateFormat checks format spec invariants.
func ValidateFormat(spec ExportFormatSpec) error {
	if spec.ID == "" {
		return NewError(KindValidation, "format id is required", nil)
	}
	if spec.Width <= 0 || spec.Height <= 0 {
		return NewError(KindValidation, fmt.Sprintf("format %q: width and height must be positive", spec.ID), nil)
	}
	if spec.CaptureScale < 1 {
		return NewError(KindValidation, fmt.Sprintf("format %q: capture scale must be >= 1", spec.ID), nil)
	}
	switch spec.Output {
	case OutputPNG:
	case OutputPDF:
		if spec.Page == nil || spec.Page.WidthPt <= 0 || spec.Page.HeightPt <= 0 {
			return NewError(KindValidation, fmt.Sprintf("format %q: print output requires a page size", spec.ID), nil)
		}
	default:
		return NewError(KindValidation, fmt.Sprintf("format %q: unsupported output %q", spec.ID, spec.Output), nil)
	}
	return nil
}
