package snapshothttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-snapshot/adapters/snapshotapi"
	"github.com/goliatone/go-snapshot/snapshot"
)

type solidSurface struct {
	width  int
	height int
}

func (s solidSurface) Images(ctx context.Context) ([]snapshot.ImageState, error) { return nil, nil }

func (s solidSurface) AwaitImage(ctx context.Context, ref snapshot.ImageRef) error { return nil }

func (s solidSurface) Capture(ctx context.Context, scale float64) (image.Image, error) {
	w, h := snapshot.RasterSize(s.width, s.height, scale)
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 0x10, G: 0x60, B: 0xb0, A: 0xff})
		}
	}
	return img, nil
}

func (s solidSurface) Close() error { return nil }

func solidFactory() snapshot.SurfaceFactory {
	return snapshot.SurfaceFactoryFunc(func(ctx context.Context, spec snapshot.SurfaceSpec) (snapshot.Surface, error) {
		return solidSurface{width: spec.Capture.Width, height: spec.Capture.Height}, nil
	})
}

func newTestOrchestrator(factory snapshot.SurfaceFactory) *snapshot.Orchestrator {
	o := snapshot.NewOrchestrator(factory)
	o.Store = snapshot.NewMemoryStore()
	o.Tracker = snapshot.NewMemoryTracker()
	o.Now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return o
}

const squareBody = `{"format":"instagram-square","ref":"flyer-1","kind":"flyer",
	"document":{"html":"<div id=\"flyer\">Hello</div>","root_selector":"#flyer","width":540,"height":540}}`

func postExport(h http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/snapshots", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) snapshotapi.ErrorResponse {
	t.Helper()
	var payload snapshotapi.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return payload
}

func TestHandler_Formats(t *testing.T) {
	handler := NewHandler(Config{Orchestrator: newTestOrchestrator(solidFactory())})

	rec := get(handler, "/snapshots/formats")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var formats []snapshotapi.FormatResponse
	if err := json.NewDecoder(rec.Body).Decode(&formats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(formats) != 8 {
		t.Fatalf("expected 8 formats, got %d", len(formats))
	}
	for _, f := range formats {
		if f.ID == "letter" && (f.Page == nil || f.Page.WidthPt != 612 || f.Page.HeightPt != 792) {
			t.Fatalf("expected letter page box, got %+v", f.Page)
		}
	}
}

func TestHandler_ExportDownloadsPNG(t *testing.T) {
	handler := NewHandler(Config{Orchestrator: newTestOrchestrator(solidFactory())})

	rec := postExport(handler, squareBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("expected png content type, got %q", rec.Header().Get("Content-Type"))
	}
	disposition := rec.Header().Get("Content-Disposition")
	if !strings.Contains(disposition, `filename="flyer-instagram-square-20260301T120000Z.png"`) {
		t.Fatalf("unexpected disposition %q", disposition)
	}
	if rec.Header().Get("X-Snapshot-Job-Id") == "" {
		t.Fatalf("expected job id header")
	}
	img, err := png.Decode(bytes.NewReader(rec.Body.Bytes()))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 1080 || b.Dy() != 1080 {
		t.Fatalf("expected 1080x1080, got %dx%d", b.Dx(), b.Dy())
	}
}

func TestHandler_JobsStatusAndDownload(t *testing.T) {
	handler := NewHandler(Config{Orchestrator: newTestOrchestrator(solidFactory())})

	exported := postExport(handler, squareBody)
	if exported.Code != http.StatusOK {
		t.Fatalf("export: %d %s", exported.Code, exported.Body.String())
	}
	jobID := exported.Header().Get("X-Snapshot-Job-Id")

	rec := get(handler, "/snapshots/jobs?document_ref=flyer-1")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var jobs []snapshotapi.JobResponse
	if err := json.NewDecoder(rec.Body).Decode(&jobs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != jobID || jobs[0].State != "done" {
		t.Fatalf("unexpected history %+v", jobs)
	}
	if jobs[0].DownloadURL != "/snapshots/jobs/"+jobID+"/download" {
		t.Fatalf("unexpected download url %q", jobs[0].DownloadURL)
	}

	rec = get(handler, "/snapshots/jobs/"+jobID)
	var job snapshotapi.JobResponse
	if err := json.NewDecoder(rec.Body).Decode(&job); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if job.Format != "instagram-square" || job.ContentType != "image/png" {
		t.Fatalf("unexpected job %+v", job)
	}

	rec = get(handler, "/snapshots/jobs/"+jobID+"/download")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !bytes.Equal(rec.Body.Bytes(), exported.Body.Bytes()) {
		t.Fatalf("expected stored file to match the export response")
	}
}

func TestHandler_DownloadServesRanges(t *testing.T) {
	handler := NewHandler(Config{Orchestrator: newTestOrchestrator(solidFactory())})

	exported := postExport(handler, squareBody)
	jobID := exported.Header().Get(snapshotapi.JobIDHeader)

	req := httptest.NewRequest(http.MethodGet, "/snapshots/jobs/"+jobID+"/download", nil)
	req.Header.Set("Range", "bytes=0-7")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusPartialContent {
		t.Fatalf("expected 206, got %d", rec.Code)
	}
	if !bytes.Equal(rec.Body.Bytes(), exported.Body.Bytes()[:8]) {
		t.Fatalf("expected png signature, got %q", rec.Body.Bytes())
	}
	if rec.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("expected png content type, got %q", rec.Header().Get("Content-Type"))
	}
	if !strings.HasPrefix(rec.Header().Get("Content-Disposition"), "attachment; ") {
		t.Fatalf("expected attachment disposition, got %q", rec.Header().Get("Content-Disposition"))
	}
}

func TestHandler_UnknownRouteIsJSON(t *testing.T) {
	handler := NewHandler(Config{Orchestrator: newTestOrchestrator(solidFactory())})

	rec := get(handler, "/snapshots/nope")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if decodeError(t, rec).Error.Code != "not_found" {
		t.Fatalf("expected not_found code")
	}
}

func TestHandler_Errors(t *testing.T) {
	handler := NewHandler(Config{Orchestrator: newTestOrchestrator(solidFactory())})

	rec := postExport(handler, `{"format":"tiktok","document":{"html":"<p></p>","root_selector":"p","width":1,"height":1}}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown format, got %d", rec.Code)
	}
	if decodeError(t, rec).Error.Code != "validation" {
		t.Fatalf("expected validation code")
	}

	rec = get(handler, "/snapshots/jobs/missing")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	rec = get(handler, "/snapshots/jobs?since=yesterday")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad timestamp, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodDelete, "/snapshots/jobs/x", nil)
	del := httptest.NewRecorder()
	handler.ServeHTTP(del, req)
	if del.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", del.Code)
	}
	if del.Header().Get("Allow") != "GET, POST" {
		t.Fatalf("expected allow header, got %q", del.Header().Get("Allow"))
	}
}

func TestHandler_CaptureFailureHidesDetail(t *testing.T) {
	factory := snapshot.SurfaceFactoryFunc(func(ctx context.Context, spec snapshot.SurfaceSpec) (snapshot.Surface, error) {
		return nil, errors.New("chrome: target crashed at 0xdeadbeef")
	})
	handler := NewHandler(Config{Orchestrator: newTestOrchestrator(factory)})

	rec := postExport(handler, squareBody)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	payload := decodeError(t, rec)
	if strings.Contains(payload.Error.Message, "deadbeef") {
		t.Fatalf("raw detail leaked: %q", payload.Error.Message)
	}
	if payload.Error.Code != "capture" {
		t.Fatalf("expected capture code, got %q", payload.Error.Code)
	}
	if rec.Header().Get("Content-Disposition") != "" {
		t.Fatalf("expected no download headers on failure")
	}
}

func TestHandler_BusyDocument(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	factory := snapshot.SurfaceFactoryFunc(func(ctx context.Context, spec snapshot.SurfaceSpec) (snapshot.Surface, error) {
		close(entered)
		<-release
		return solidSurface{width: spec.Capture.Width, height: spec.Capture.Height}, nil
	})
	handler := NewHandler(Config{Orchestrator: newTestOrchestrator(factory)})

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		done <- postExport(handler, squareBody)
	}()
	<-entered

	rec := get(handler, "/snapshots/busy?ref=flyer-1")
	var busy snapshotapi.BusyResponse
	if err := json.NewDecoder(rec.Body).Decode(&busy); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !busy.Busy {
		t.Fatalf("expected document busy while export runs")
	}

	second := postExport(handler, squareBody)
	if second.Code != http.StatusConflict {
		t.Fatalf("expected 409 for second trigger, got %d", second.Code)
	}
	if decodeError(t, second).Error.Code != "busy" {
		t.Fatalf("expected busy code")
	}

	close(release)
	first := <-done
	if first.Code != http.StatusOK {
		t.Fatalf("expected first export to finish, got %d", first.Code)
	}

	rec = get(handler, "/snapshots/busy?ref=flyer-1")
	busy = snapshotapi.BusyResponse{}
	if err := json.NewDecoder(rec.Body).Decode(&busy); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if busy.Busy {
		t.Fatalf("expected document idle after export")
	}
}

func TestHandler_RegisterRoutes(t *testing.T) {
	mux := http.NewServeMux()
	NewHandler(Config{Orchestrator: newTestOrchestrator(solidFactory()), BasePath: "/api/snapshots/"}).RegisterRoutes(mux)

	rec := get(mux, "/api/snapshots/formats")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 through mux, got %d", rec.Code)
	}
}
