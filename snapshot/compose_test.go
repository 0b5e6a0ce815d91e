package snapshot

import (
	"context"
	"image"
	"image/color"
	"math"
	"testing"
)

func solid(w, h int, c color.RGBA) RasterResult {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return RasterResult{Image: img, Width: w, Height: h, Scale: 1}
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func nearColor(a, b color.RGBA) bool {
	d := func(x, y uint8) bool { return math.Abs(float64(x)-float64(y)) <= 2 }
	return d(a.R, b.R) && d(a.G, b.G) && d(a.B, b.B) && d(a.A, b.A)
}

func TestPlanCompositionLetterboxesWideTarget(t *testing.T) {
	plan, err := PlanComposition(600, 800, 1200, 630)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if !approx(plan.Scale, 0.7875) {
		t.Fatalf("expected scale 0.7875, got %v", plan.Scale)
	}
	if !approx(plan.ScaledWidth, 472.5) || !approx(plan.ScaledHeight, 630) {
		t.Fatalf("expected 472.5x630, got %vx%v", plan.ScaledWidth, plan.ScaledHeight)
	}
	if !approx(plan.OffsetX, 363.75) || !approx(plan.OffsetY, 0) {
		t.Fatalf("expected offsets 363.75,0 got %v,%v", plan.OffsetX, plan.OffsetY)
	}
	left := plan.OffsetX
	right := float64(plan.TargetWidth) - plan.OffsetX - plan.ScaledWidth
	if !approx(left, right) {
		t.Fatalf("expected equal padding, got %v and %v", left, right)
	}
}

func TestPlanCompositionNeverExceedsTarget(t *testing.T) {
	sources := [][2]int{{600, 800}, {612, 792}, {1224, 1584}, {1080, 1080}, {300, 100}, {1, 1000}, {1000, 1}}
	for _, spec := range DefaultFormats() {
		for _, src := range sources {
			plan, err := PlanComposition(src[0], src[1], spec.Width, spec.Height)
			if err != nil {
				t.Fatalf("plan %v -> %s: %v", src, spec.ID, err)
			}
			if plan.OffsetX < 0 || plan.OffsetY < 0 {
				t.Fatalf("negative offset for %v -> %s: %+v", src, spec.ID, plan)
			}
			if plan.OffsetX+plan.ScaledWidth > float64(spec.Width)+1e-9 ||
				plan.OffsetY+plan.ScaledHeight > float64(spec.Height)+1e-9 {
				t.Fatalf("plan overflows %s for %v: %+v", spec.ID, src, plan)
			}
			srcAspect := float64(src[0]) / float64(src[1])
			if !approx(plan.ScaledWidth/plan.ScaledHeight, srcAspect) {
				t.Fatalf("aspect not preserved for %v -> %s", src, spec.ID)
			}
			fillsW := approx(plan.ScaledWidth, float64(spec.Width))
			fillsH := approx(plan.ScaledHeight, float64(spec.Height))
			if !fillsW && !fillsH {
				t.Fatalf("plan does not fill either axis for %v -> %s", src, spec.ID)
			}
		}
	}
}

func TestPlanCompositionRejectsInvalidSizes(t *testing.T) {
	if _, err := PlanComposition(0, 10, 10, 10); KindFromError(err) != KindComposition {
		t.Fatalf("expected composition error, got %v", err)
	}
	if _, err := PlanComposition(10, 10, 10, -1); KindFromError(err) != KindComposition {
		t.Fatalf("expected composition error, got %v", err)
	}
}

func TestAspectMatches(t *testing.T) {
	if !AspectMatches(612, 792, 1224, 1584) {
		t.Fatalf("expected letter aspect match")
	}
	if !AspectMatches(1200, 630, 1201, 631) {
		t.Fatalf("expected match within tolerance")
	}
	if AspectMatches(1200, 630, 1200, 627) {
		t.Fatalf("facebook and linkedin aspects differ beyond tolerance")
	}
	if AspectMatches(600, 800, 1200, 630) {
		t.Fatalf("expected mismatch")
	}
}

func TestComposeLetterboxesWithBackground(t *testing.T) {
	bg := color.RGBA{R: 0xf0, G: 0xf0, B: 0xf0, A: 0xff}
	out, plan, err := Compose(solid(600, 800, inkColor), 1200, 630, bg)
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if out.Width != 1200 || out.Height != 630 {
		t.Fatalf("expected 1200x630, got %dx%d", out.Width, out.Height)
	}
	if b := out.Image.Bounds(); b.Dx() != 1200 || b.Dy() != 630 {
		t.Fatalf("expected bitmap 1200x630, got %v", b)
	}
	if !approx(out.Scale, plan.Scale) {
		t.Fatalf("expected composed scale %v, got %v", plan.Scale, out.Scale)
	}

	rgba := out.Image.(*image.RGBA)
	if got := rgba.RGBAAt(10, 300); got != bg {
		t.Fatalf("expected left padding background, got %v", got)
	}
	if got := rgba.RGBAAt(1190, 300); got != bg {
		t.Fatalf("expected right padding background, got %v", got)
	}
	if got := rgba.RGBAAt(600, 315); !nearColor(got, inkColor) {
		t.Fatalf("expected content at center, got %v", got)
	}
	if got := rgba.RGBAAt(600, 0); !nearColor(got, inkColor) {
		t.Fatalf("expected content to fill full height, got %v", got)
	}
}

func TestComposeRejectsEmptyRaster(t *testing.T) {
	if _, _, err := Compose(RasterResult{}, 10, 10, whiteColor); KindFromError(err) != KindComposition {
		t.Fatalf("expected composition error, got %v", err)
	}
}

func TestRasterizeEnforcesExactSize(t *testing.T) {
	surface := &fakeSurface{width: 612, height: 792}
	doc := CaptureDocument{Width: 612, Height: 792}

	raster, err := Rasterizer{}.Rasterize(context.Background(), surface, doc, 2)
	if err != nil {
		t.Fatalf("rasterize: %v", err)
	}
	if raster.Width != 1224 || raster.Height != 1584 {
		t.Fatalf("expected 1224x1584, got %dx%d", raster.Width, raster.Height)
	}

	surface.wrongSize = true
	if _, err := (Rasterizer{}).Rasterize(context.Background(), surface, doc, 2); KindFromError(err) != KindCapture {
		t.Fatalf("expected capture error for wrong size, got %v", err)
	}

	if _, err := (Rasterizer{}).Rasterize(context.Background(), surface, CaptureDocument{}, 2); KindFromError(err) != KindCapture {
		t.Fatalf("expected capture error for zero-size root, got %v", err)
	}
}
