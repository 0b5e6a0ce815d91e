package snapshotapi

import (
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/goliatone/go-snapshot/snapshot"
)

// Request exposes what the controller reads from an inbound call.
type Request interface {
	Context() context.Context
	Method() string
	Path() string
	Query(name string) string
	// Body returns the export payload, or nil when the call has none.
	Body() io.ReadCloser
}

// TemplateRenderer renders a document of a registered kind.
type TemplateRenderer interface {
	Render(ctx context.Context, kind, ref string, data map[string]any) (snapshot.VisualDocument, error)
}

// RequestDecoder parses an HTTP request into an export request.
type RequestDecoder interface {
	Decode(req Request) (snapshot.ExportRequest, error)
}

// JSONRequestDecoder decodes JSON bodies. A body carries either an inline
// document or a template reference.
type JSONRequestDecoder struct {
	Templates TemplateRenderer
}

// Decode decodes a JSON request body into an export request.
func (d JSONRequestDecoder) Decode(req Request) (snapshot.ExportRequest, error) {
	if req == nil {
		return snapshot.ExportRequest{}, snapshot.NewError(snapshot.KindInternal, "request is nil", nil)
	}
	body := req.Body()
	if body == nil {
		return snapshot.ExportRequest{}, snapshot.NewError(snapshot.KindValidation, "request body is required", nil)
	}
	defer body.Close()

	payload, err := decodePayload(body)
	if err != nil {
		return snapshot.ExportRequest{}, err
	}
	if strings.TrimSpace(payload.Format) == "" {
		return snapshot.ExportRequest{}, snapshot.NewError(snapshot.KindValidation, "format is required", nil)
	}

	var doc snapshot.VisualDocument
	switch {
	case payload.Document != nil && payload.Template != nil:
		return snapshot.ExportRequest{}, snapshot.NewError(snapshot.KindValidation, "document and template are mutually exclusive", nil)
	case payload.Document != nil:
		doc = payload.Document.toDocument(payload.Ref, payload.Kind)
	case payload.Template != nil:
		if d.Templates == nil {
			return snapshot.ExportRequest{}, snapshot.NewError(snapshot.KindNotImpl, "document templates not configured", nil)
		}
		kind := payload.Template.Kind
		if kind == "" {
			kind = payload.Kind
		}
		doc, err = d.Templates.Render(req.Context(), kind, payload.Ref, payload.Template.Data)
		if err != nil {
			return snapshot.ExportRequest{}, err
		}
	default:
		return snapshot.ExportRequest{}, snapshot.NewError(snapshot.KindValidation, "document or template is required", nil)
	}

	return snapshot.ExportRequest{
		Document:     doc,
		Format:       normalizeFormat(payload.Format),
		CaptureScale: payload.CaptureScale,
		Filename:     payload.Filename,
	}, nil
}

func normalizeFormat(format string) snapshot.FormatID {
	normalized := strings.ToLower(strings.TrimSpace(format))
	switch normalized {
	case "pdf", "print":
		return snapshot.FormatLetter
	case "story":
		return snapshot.FormatInstagram
	default:
		return snapshot.FormatID(normalized)
	}
}

type requestPayload struct {
	Format       string           `json:"format"`
	Ref          string           `json:"ref,omitempty"`
	Kind         string           `json:"kind,omitempty"`
	CaptureScale float64          `json:"capture_scale,omitempty"`
	Filename     string           `json:"filename,omitempty"`
	Document     *documentPayload `json:"document,omitempty"`
	Template     *templatePayload `json:"template,omitempty"`
}

type documentPayload struct {
	HTML         string            `json:"html"`
	RootSelector string            `json:"root_selector"`
	BaseURL      string            `json:"base_url,omitempty"`
	Width        int               `json:"width"`
	Height       int               `json:"height"`
	Overrides    []overridePayload `json:"overrides,omitempty"`
}

func (p documentPayload) toDocument(ref, kind string) snapshot.VisualDocument {
	doc := snapshot.VisualDocument{
		Ref:          ref,
		Kind:         kind,
		HTML:         []byte(p.HTML),
		RootSelector: p.RootSelector,
		BaseURL:      p.BaseURL,
		Width:        p.Width,
		Height:       p.Height,
	}
	for _, o := range p.Overrides {
		doc.Overrides = append(doc.Overrides, snapshot.StyleOverride{Property: o.Property, Value: o.Value})
	}
	return doc
}

type overridePayload struct {
	Property string `json:"property"`
	Value    string `json:"value"`
}

type templatePayload struct {
	Kind string         `json:"kind,omitempty"`
	Data map[string]any `json:"data,omitempty"`
}

func decodePayload(body io.Reader) (requestPayload, error) {
	var payload requestPayload
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&payload); err != nil {
		return requestPayload{}, snapshot.NewError(snapshot.KindValidation, "invalid request payload", err)
	}
	return payload, nil
}
