package snapshotpdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/goliatone/go-snapshot/snapshot"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// pageTolerancePt absorbs rounding in PDF page boxes.
const pageTolerancePt = 0.5

// Engine places a PNG on one page of the given physical size.
type Engine interface {
	RenderPage(ctx context.Context, png []byte, page snapshot.PageSize) ([]byte, error)
}

// EngineFunc adapts a function to an Engine.
type EngineFunc func(ctx context.Context, png []byte, page snapshot.PageSize) ([]byte, error)

func (f EngineFunc) RenderPage(ctx context.Context, png []byte, page snapshot.PageSize) ([]byte, error) {
	if f == nil {
		return nil, errors.New("pdf engine func is nil")
	}
	return f(ctx, png, page)
}

// Packager produces the print file for formats with a physical page.
type Packager struct {
	Engine Engine
	// Verify re-reads the output and checks the page box.
	Verify bool
}

var _ snapshot.Packager = Packager{}

// NewPackager returns a verifying packager backed by pdfcpu.
func NewPackager() Packager {
	return Packager{Engine: PDFCPUEngine{}, Verify: true}
}

func (p Packager) Package(ctx context.Context, req snapshot.PackageRequest) (snapshot.PackagedFile, error) {
	if req.Format.Page == nil {
		return snapshot.PackagedFile{}, snapshot.NewError(snapshot.KindValidation, fmt.Sprintf("format %q has no page size", req.Format.ID), nil)
	}
	engine := p.Engine
	if engine == nil {
		engine = PDFCPUEngine{}
	}

	image, err := snapshot.PNGPackager{}.Package(ctx, req)
	if err != nil {
		return snapshot.PackagedFile{}, err
	}

	pdf, err := engine.RenderPage(ctx, image.Data, *req.Format.Page)
	if err != nil {
		if snapshot.KindFromError(err) == snapshot.KindInternal {
			return snapshot.PackagedFile{}, snapshot.NewError(snapshot.KindPackaging, "render pdf page", err)
		}
		return snapshot.PackagedFile{}, err
	}
	if !bytes.HasPrefix(pdf, []byte("%PDF")) {
		return snapshot.PackagedFile{}, snapshot.NewError(snapshot.KindPackaging, "engine returned non-pdf output", nil)
	}
	if p.Verify {
		if err := VerifyPage(pdf, *req.Format.Page); err != nil {
			return snapshot.PackagedFile{}, err
		}
	}

	return snapshot.PackagedFile{
		Filename:    req.Filename,
		ContentType: "application/pdf",
		Data:        pdf,
	}, nil
}

// VerifyPage checks that pdf holds exactly one page of the given size.
func VerifyPage(pdf []byte, page snapshot.PageSize) error {
	w, h, err := PageSize(pdf)
	if err != nil {
		return err
	}
	if math.Abs(w-page.WidthPt) > pageTolerancePt || math.Abs(h-page.HeightPt) > pageTolerancePt {
		return snapshot.NewError(snapshot.KindPackaging, fmt.Sprintf("page is %.2fx%.2fpt, expected %.2fx%.2fpt", w, h, page.WidthPt, page.HeightPt), nil)
	}
	return nil
}

// PageSize returns the page box of a single-page PDF in points.
func PageSize(pdf []byte) (float64, float64, error) {
	dims, err := api.PageDims(bytes.NewReader(pdf), model.NewDefaultConfiguration())
	if err != nil {
		return 0, 0, snapshot.NewError(snapshot.KindPackaging, "read pdf page size", err)
	}
	if len(dims) != 1 {
		return 0, 0, snapshot.NewError(snapshot.KindPackaging, fmt.Sprintf("expected one page, got %d", len(dims)), nil)
	}
	return dims[0].Width, dims[0].Height, nil
}
