package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"sync"
)

// PackageRequest carries a final raster to a packager.
type PackageRequest struct {
	JobID    string
	Document VisualDocument
	Format   ExportFormatSpec
	Raster   RasterResult
	Filename string
}

// PackagedFile is an encoded, not yet stored, output file.
type PackagedFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Packager encodes a raster into a downloadable file.
type Packager interface {
	Package(ctx context.Context, req PackageRequest) (PackagedFile, error)
}

// PackagerFunc adapts a function to a Packager.
type PackagerFunc func(ctx context.Context, req PackageRequest) (PackagedFile, error)

func (f PackagerFunc) Package(ctx context.Context, req PackageRequest) (PackagedFile, error) {
	return f(ctx, req)
}

// PNGPackager encodes rasters as lossless PNG.
type PNGPackager struct {
	Compression png.CompressionLevel
}

func (p PNGPackager) Package(ctx context.Context, req PackageRequest) (PackagedFile, error) {
	if err := ctx.Err(); err != nil {
		return PackagedFile{}, err
	}
	if req.Raster.Image == nil {
		return PackagedFile{}, NewError(KindPackaging, "raster is empty", nil)
	}

	enc := png.Encoder{CompressionLevel: p.Compression}
	var buf bytes.Buffer
	if err := enc.Encode(&buf, req.Raster.Image); err != nil {
		return PackagedFile{}, NewError(KindPackaging, "encode png", err)
	}
	return PackagedFile{
		Filename:    req.Filename,
		ContentType: "image/png",
		Data:        buf.Bytes(),
	}, nil
}

// PackagerRegistry stores packagers by output kind.
type PackagerRegistry struct {
	mu        sync.RWMutex
	packagers map[OutputKind]Packager
}

// NewPackagerRegistry creates a registry with the PNG packager registered.
func NewPackagerRegistry() *PackagerRegistry {
	r := &PackagerRegistry{packagers: make(map[OutputKind]Packager)}
	r.packagers[OutputPNG] = PNGPackager{}
	return r
}

// Register adds or replaces the packager for an output kind.
func (r *PackagerRegistry) Register(output OutputKind, packager Packager) error {
	if output == "" {
		return NewError(KindValidation, "output kind is required", nil)
	}
	if packager == nil {
		return NewError(KindValidation, "packager is required", nil)
	}
	r.mu.Lock()
	r.packagers[output] = packager
	r.mu.Unlock()
	return nil
}

// Resolve returns the packager for an output kind.
func (r *PackagerRegistry) Resolve(output OutputKind) (Packager, error) {
	r.mu.RLock()
	packager, ok := r.packagers[output]
	r.mu.RUnlock()
	if !ok {
		return nil, NewError(KindNotImpl, fmt.Sprintf("no packager for %q output", output), nil)
	}
	return packager, nil
}
