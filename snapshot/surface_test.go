package snapshot

import (
	"context"
	"image"
	"image/color"
	"sync"
)

var (
	inkColor   = color.RGBA{R: 0x22, G: 0x44, B: 0x88, A: 0xff}
	whiteColor = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
)

type fakeImage struct {
	src     string
	settled bool
	fail    bool
	hang    bool
	// region is in authored pixels.
	region image.Rectangle
}

type fakeSurface struct {
	width      int
	height     int
	background color.RGBA
	images     []fakeImage
	captureErr error
	wrongSize  bool
	collapsed  bool

	mu       sync.Mutex
	failed   map[string]bool
	awaited  []string
	captured []float64
	closed   bool
}

func (s *fakeSurface) Images(ctx context.Context) ([]ImageState, error) {
	_ = ctx
	out := make([]ImageState, 0, len(s.images))
	for _, img := range s.images {
		state := ImageState{Ref: ImageRef{Src: img.src}}
		if img.settled {
			state.Complete = true
			state.NaturalWidth = 10
			state.NaturalHeight = 10
		}
		out = append(out, state)
	}
	return out, nil
}

func (s *fakeSurface) AwaitImage(ctx context.Context, ref ImageRef) error {
	s.mu.Lock()
	s.awaited = append(s.awaited, ref.Src)
	s.mu.Unlock()
	for _, img := range s.images {
		if img.src != ref.Src {
			continue
		}
		if img.hang {
			<-ctx.Done()
			s.markFailed(ref.Src)
			return ctx.Err()
		}
		if img.fail {
			s.markFailed(ref.Src)
			return NewError(KindResourceLoad, "image error", nil)
		}
	}
	return nil
}

func (s *fakeSurface) markFailed(src string) {
	s.mu.Lock()
	if s.failed == nil {
		s.failed = map[string]bool{}
	}
	s.failed[src] = true
	s.mu.Unlock()
}

func (s *fakeSurface) Capture(ctx context.Context, scale float64) (image.Image, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.captured = append(s.captured, scale)
	if s.captureErr != nil {
		return nil, s.captureErr
	}
	if s.collapsed {
		if err := CheckRenderedRoot(0, float64(s.height)); err != nil {
			return nil, err
		}
	}
	w, h := RasterSize(s.width, s.height, scale)
	if s.wrongSize {
		w++
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, inkColor)
		}
	}
	for _, fi := range s.images {
		if !s.failed[fi.src] || fi.region.Empty() {
			continue
		}
		r := image.Rect(
			int(float64(fi.region.Min.X)*scale), int(float64(fi.region.Min.Y)*scale),
			int(float64(fi.region.Max.X)*scale), int(float64(fi.region.Max.Y)*scale),
		)
		for y := r.Min.Y; y < r.Max.Y; y++ {
			for x := r.Min.X; x < r.Max.X; x++ {
				img.SetRGBA(x, y, s.background)
			}
		}
	}
	return img, nil
}

func (s *fakeSurface) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fakeSurface) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type captureLogger struct {
	mu     sync.Mutex
	debug  []string
	errors []string
}

func (l *captureLogger) Debugf(format string, args ...any) {
	l.mu.Lock()
	l.debug = append(l.debug, format)
	l.mu.Unlock()
}

func (l *captureLogger) Infof(string, ...any) {}

func (l *captureLogger) Errorf(format string, args ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, format)
	l.mu.Unlock()
}
