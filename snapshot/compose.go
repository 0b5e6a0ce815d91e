package snapshot

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
)

// AspectTolerance is the relative aspect difference treated as equal.
const AspectTolerance = 0.001

// CompositionPlan describes how a raster fits into a target canvas.
type CompositionPlan struct {
	Scale        float64
	ScaledWidth  float64
	ScaledHeight float64
	OffsetX      float64
	OffsetY      float64
	TargetWidth  int
	TargetHeight int
}

// Rect returns the integer destination rectangle, clamped to the canvas.
func (p CompositionPlan) Rect() image.Rectangle {
	x0 := int(math.Round(p.OffsetX))
	y0 := int(math.Round(p.OffsetY))
	x1 := int(math.Round(p.OffsetX + p.ScaledWidth))
	y1 := int(math.Round(p.OffsetY + p.ScaledHeight))
	return image.Rect(x0, y0, x1, y1).Intersect(image.Rect(0, 0, p.TargetWidth, p.TargetHeight))
}

// PlanComposition computes a uniform scale that fits source into target,
// centered. Content is letterboxed, never cropped.
func PlanComposition(srcW, srcH, targetW, targetH int) (CompositionPlan, error) {
	if srcW <= 0 || srcH <= 0 {
		return CompositionPlan{}, NewError(KindComposition, fmt.Sprintf("source size %dx%d is invalid", srcW, srcH), nil)
	}
	if targetW <= 0 || targetH <= 0 {
		return CompositionPlan{}, NewError(KindComposition, fmt.Sprintf("target size %dx%d is invalid", targetW, targetH), nil)
	}

	scale := math.Min(float64(targetW)/float64(srcW), float64(targetH)/float64(srcH))
	scaledW := float64(srcW) * scale
	scaledH := float64(srcH) * scale
	return CompositionPlan{
		Scale:        scale,
		ScaledWidth:  scaledW,
		ScaledHeight: scaledH,
		OffsetX:      (float64(targetW) - scaledW) / 2,
		OffsetY:      (float64(targetH) - scaledH) / 2,
		TargetWidth:  targetW,
		TargetHeight: targetH,
	}, nil
}

// AspectMatches reports whether two sizes share an aspect ratio.
func AspectMatches(srcW, srcH, targetW, targetH int) bool {
	if srcW <= 0 || srcH <= 0 || targetW <= 0 || targetH <= 0 {
		return false
	}
	src := float64(srcW) / float64(srcH)
	target := float64(targetW) / float64(targetH)
	return math.Abs(src-target)/target <= AspectTolerance
}

// Compose draws raster onto a background-filled target canvas.
func Compose(raster RasterResult, targetW, targetH int, background color.RGBA) (RasterResult, CompositionPlan, error) {
	if raster.Image == nil {
		return RasterResult{}, CompositionPlan{}, NewError(KindComposition, "raster is empty", nil)
	}
	src := raster.Image.Bounds()
	plan, err := PlanComposition(src.Dx(), src.Dy(), targetW, targetH)
	if err != nil {
		return RasterResult{}, CompositionPlan{}, err
	}

	canvas := image.NewRGBA(image.Rect(0, 0, targetW, targetH))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)

	dst := plan.Rect()
	if dst.Empty() {
		return RasterResult{}, CompositionPlan{}, NewError(KindComposition, "scaled raster is empty", nil)
	}
	draw.CatmullRom.Scale(canvas, dst, raster.Image, src, draw.Over, nil)

	return RasterResult{
		Image:  canvas,
		Width:  targetW,
		Height: targetH,
		Scale:  raster.Scale * plan.Scale,
	}, plan, nil
}
