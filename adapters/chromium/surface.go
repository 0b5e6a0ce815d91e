package snapshotchromium

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/goliatone/go-snapshot/snapshot"
	"golang.org/x/image/draw"
)

// maxCaptureDrift is the pixel rounding difference corrected after capture.
const maxCaptureDrift = 2

var _ snapshot.SurfaceFactory = (*Browser)(nil)

// Open loads the capture page into a fresh tab sized to the authored box.
func (b *Browser) Open(ctx context.Context, spec snapshot.SurfaceSpec) (snapshot.Surface, error) {
	if b == nil {
		return nil, snapshot.NewError(snapshot.KindInternal, "chromium browser is nil", nil)
	}
	capture := spec.Capture
	if capture.Width <= 0 || capture.Height <= 0 || len(capture.HTML) == 0 {
		return nil, snapshot.NewError(snapshot.KindCapture, "capture page is empty", nil)
	}

	tabCtx, cancel, err := b.newTab(ctx, capture.HTML, capture.Width, capture.Height)
	if err != nil {
		return nil, err
	}
	return &surface{
		browser: b,
		tabCtx:  tabCtx,
		cancel:  cancel,
		width:   capture.Width,
		height:  capture.Height,
	}, nil
}

type surface struct {
	browser *Browser
	tabCtx  context.Context
	cancel  context.CancelFunc
	width   int
	height  int
}

type imageInfo struct {
	Src           string `json:"src"`
	Complete      bool   `json:"complete"`
	NaturalWidth  int    `json:"naturalWidth"`
	NaturalHeight int    `json:"naturalHeight"`
}

const listImagesJS = `Array.from(document.querySelectorAll('#` + snapshot.SurfaceElementID + ` img')).map(function (img) {
	return {src: img.getAttribute('src') || '', complete: img.complete, naturalWidth: img.naturalWidth, naturalHeight: img.naturalHeight};
})`

const awaitImageJS = `new Promise(function (resolve) {
	var probe = new Image();
	var settle = function () { resolve(probe.naturalWidth > 0); };
	probe.onload = settle;
	probe.onerror = settle;
	probe.src = new URL(%s, document.baseURI).href;
	if (probe.complete) { settle(); }
})`

const hideBrokenJS = `(function () {
	var broken = 0;
	document.querySelectorAll('#` + snapshot.SurfaceElementID + ` img').forEach(function (img) {
		if (!img.complete || img.naturalWidth === 0) {
			img.classList.add('snapshot-broken');
			broken++;
		}
	});
	return broken;
})()`

const rootBoxJS = `(function () {
	var root = document.getElementById('` + snapshot.SurfaceElementID + `').firstElementChild;
	if (!root) { return {width: 0, height: 0}; }
	var r = root.getBoundingClientRect();
	return {width: r.width, height: r.height};
})()`

type rootBox struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

const fontsReadyJS = `(document.fonts ? document.fonts.ready.then(function () { return true; }) : true)`

func (s *surface) Images(ctx context.Context) ([]snapshot.ImageState, error) {
	var infos []imageInfo
	if err := s.browser.run(ctx, s.tabCtx, 0, chromedp.Evaluate(listImagesJS, &infos)); err != nil {
		return nil, err
	}
	out := make([]snapshot.ImageState, 0, len(infos))
	for _, info := range infos {
		if info.Src == "" {
			continue
		}
		out = append(out, snapshot.ImageState{
			Ref:           snapshot.ImageRef{Src: info.Src},
			Complete:      info.Complete,
			NaturalWidth:  info.NaturalWidth,
			NaturalHeight: info.NaturalHeight,
		})
	}
	return out, nil
}

func (s *surface) AwaitImage(ctx context.Context, ref snapshot.ImageRef) error {
	src, err := json.Marshal(ref.Src)
	if err != nil {
		return snapshot.NewError(snapshot.KindResourceLoad, "encode image source", err)
	}
	var loaded bool
	if err := s.browser.run(ctx, s.tabCtx, 0, chromedp.Evaluate(fmt.Sprintf(awaitImageJS, src), &loaded, awaitPromise)); err != nil {
		return snapshot.NewError(snapshot.KindResourceLoad, fmt.Sprintf("await image %q", ref.Src), err)
	}
	if !loaded {
		return snapshot.NewError(snapshot.KindResourceLoad, fmt.Sprintf("image %q failed to load", ref.Src), nil)
	}
	return nil
}

// Capture renders the surface at scale device pixels per CSS pixel. Images
// that never loaded are hidden so their area stays blank. A root that lays
// out to an empty box fails before the screenshot.
func (s *surface) Capture(ctx context.Context, scale float64) (image.Image, error) {
	var (
		broken  int
		fonts   bool
		box     rootBox
		encoded []byte
	)
	err := s.browser.run(ctx, s.tabCtx, 0,
		chromedp.Evaluate(fontsReadyJS, &fonts, awaitPromise),
		chromedp.Evaluate(hideBrokenJS, &broken),
		chromedp.Evaluate(rootBoxJS, &box),
		chromedp.ActionFunc(func(context.Context) error {
			return snapshot.CheckRenderedRoot(box.Width, box.Height)
		}),
		emulation.SetDeviceMetricsOverride(int64(s.width), int64(s.height), scale, false),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			encoded, err = page.CaptureScreenshot().
				WithFormat(page.CaptureScreenshotFormatPng).
				WithFromSurface(true).
				WithClip(&page.Viewport{X: 0, Y: 0, Width: float64(s.width), Height: float64(s.height), Scale: 1}).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, err
	}
	if broken > 0 {
		s.browser.logger().Debugf("chromium: %d image(s) hidden before capture", broken)
	}

	img, err := png.Decode(bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("decode screenshot: %w", err)
	}
	return fitCapture(img, s.width, s.height, scale), nil
}

func (s *surface) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}

func awaitPromise(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithAwaitPromise(true)
}

// fitCapture corrects device-pixel rounding so the bitmap is exactly the
// expected size. Larger differences are returned untouched.
func fitCapture(img image.Image, width, height int, scale float64) image.Image {
	wantW, wantH := snapshot.RasterSize(width, height, scale)
	b := img.Bounds()
	if b.Dx() == wantW && b.Dy() == wantH {
		return img
	}
	if abs(b.Dx()-wantW) > maxCaptureDrift || abs(b.Dy()-wantH) > maxCaptureDrift {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, wantW, wantH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
