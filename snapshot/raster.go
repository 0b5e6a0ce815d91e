package snapshot

import (
	"context"
	"fmt"
	"math"
)

// RasterSize returns the pixel size of a capture at scale.
func RasterSize(width, height int, scale float64) (int, int) {
	return int(math.Round(scale * float64(width))), int(math.Round(scale * float64(height)))
}

// CheckRenderedRoot rejects a root whose laid-out box is empty. Surfaces
// call it before taking the bitmap, since an authored size alone does not
// prove the root rendered.
func CheckRenderedRoot(width, height float64) error {
	if width <= 0 || height <= 0 || math.IsNaN(width) || math.IsNaN(height) {
		return NewError(KindCapture, fmt.Sprintf("capture root rendered at %vx%v", width, height), nil)
	}
	return nil
}

// Rasterizer captures an isolated surface into a bitmap.
type Rasterizer struct {
	Logger Logger
}

// Rasterize captures the surface at scale. The bitmap is exactly
// round(scale*width) x round(scale*height).
func (r Rasterizer) Rasterize(ctx context.Context, surface Surface, doc CaptureDocument, scale float64) (RasterResult, error) {
	if surface == nil {
		return RasterResult{}, NewError(KindCapture, "capture surface is nil", nil)
	}
	if doc.Width <= 0 || doc.Height <= 0 {
		return RasterResult{}, NewError(KindCapture, fmt.Sprintf("capture root size %dx%d is invalid", doc.Width, doc.Height), nil)
	}
	if scale <= 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
		return RasterResult{}, NewError(KindCapture, fmt.Sprintf("capture scale %v is invalid", scale), nil)
	}

	width, height := RasterSize(doc.Width, doc.Height, scale)
	if width <= 0 || height <= 0 {
		return RasterResult{}, NewError(KindCapture, fmt.Sprintf("capture at scale %v is empty", scale), nil)
	}

	img, err := surface.Capture(ctx, scale)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return RasterResult{}, NewError(KindFromError(ctxErr), "capture interrupted", err)
		}
		return RasterResult{}, NewError(KindCapture, "capture surface", err)
	}
	if img == nil {
		return RasterResult{}, NewError(KindCapture, "capture returned no image", nil)
	}

	bounds := img.Bounds()
	if bounds.Dx() != width || bounds.Dy() != height {
		return RasterResult{}, NewError(KindCapture, fmt.Sprintf("capture size %dx%d, expected %dx%d", bounds.Dx(), bounds.Dy(), width, height), nil)
	}

	if r.Logger != nil {
		r.Logger.Debugf("snapshot: captured %dx%d at scale %.4f", width, height, scale)
	}
	return RasterResult{Image: img, Width: width, Height: height, Scale: scale}, nil
}
