package trackerbun

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-snapshot/snapshot"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func TestTracker_StartStatusList(t *testing.T) {
	ctx := context.Background()
	tracker := NewTracker(newTestDB(t))

	recordID, err := tracker.Start(ctx, snapshot.JobRecord{
		DocumentRef: "flyer-1",
		Kind:        "flyer",
		Format:      snapshot.FormatInstagram,
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if recordID == "" {
		t.Fatalf("expected record id")
	}
	if _, err := tracker.Start(ctx, snapshot.JobRecord{DocumentRef: "flyer-2", Format: snapshot.FormatLetter}); err != nil {
		t.Fatalf("start: %v", err)
	}

	got, err := tracker.Status(ctx, recordID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if got.DocumentRef != "flyer-1" || got.Kind != "flyer" {
		t.Fatalf("unexpected record %+v", got)
	}
	if got.State != snapshot.JobIdle {
		t.Fatalf("expected idle default, got %s", got.State)
	}

	list, err := tracker.List(ctx, snapshot.JobFilter{DocumentRef: "flyer-1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 record, got %d", len(list))
	}

	list, err = tracker.List(ctx, snapshot.JobFilter{Format: snapshot.FormatLetter})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].DocumentRef != "flyer-2" {
		t.Fatalf("expected letter job only, got %+v", list)
	}
}

func TestTracker_StateTransitions(t *testing.T) {
	ctx := context.Background()
	tracker := NewTracker(newTestDB(t))

	recordID, err := tracker.Start(ctx, snapshot.JobRecord{
		ID:          "job-1",
		DocumentRef: "flyer-1",
		Format:      snapshot.FormatLetter,
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	for _, state := range []snapshot.JobState{snapshot.JobPreloading, snapshot.JobCapturing, snapshot.JobPackaging} {
		if err := tracker.SetState(ctx, recordID, state); err != nil {
			t.Fatalf("set state %s: %v", state, err)
		}
	}
	mid, err := tracker.Status(ctx, recordID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if mid.StartedAt.IsZero() {
		t.Fatalf("expected started_at once the job left idle")
	}

	ref := snapshot.ArtifactRef{
		Key: "snapshots/job-1/flyer-letter.pdf",
		Meta: snapshot.ArtifactMeta{
			Filename:    "flyer-letter.pdf",
			ContentType: "application/pdf",
			Size:        1024,
		},
	}
	if err := tracker.Complete(ctx, recordID, ref); err != nil {
		t.Fatalf("complete: %v", err)
	}

	got, err := tracker.Status(ctx, recordID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if got.State != snapshot.JobDone {
		t.Fatalf("expected done state, got %s", got.State)
	}
	if got.Artifact.Key != ref.Key || got.Artifact.Meta.Size != 1024 {
		t.Fatalf("expected artifact stored, got %+v", got.Artifact)
	}
	if got.Filename != "flyer-letter.pdf" {
		t.Fatalf("expected filename, got %q", got.Filename)
	}
	if got.CompletedAt.IsZero() {
		t.Fatalf("expected completed_at")
	}
}

func TestTracker_FailKeepsErrorText(t *testing.T) {
	ctx := context.Background()
	tracker := NewTracker(newTestDB(t))

	recordID, err := tracker.Start(ctx, snapshot.JobRecord{DocumentRef: "flyer-1", Format: snapshot.FormatPostcard})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := tracker.Fail(ctx, recordID, errors.New("capture: surface closed")); err != nil {
		t.Fatalf("fail: %v", err)
	}

	got, err := tracker.Status(ctx, recordID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if got.State != snapshot.JobFailed {
		t.Fatalf("expected failed, got %s", got.State)
	}
	if !strings.Contains(got.Error, "surface closed") {
		t.Fatalf("expected error text, got %q", got.Error)
	}

	failed, err := tracker.List(ctx, snapshot.JobFilter{State: snapshot.JobFailed})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(failed) != 1 {
		t.Fatalf("expected 1 failed record, got %d", len(failed))
	}
}

func TestTracker_ListOrderAndWindow(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tracker := NewTracker(newTestDB(t))

	for i := 0; i < 3; i++ {
		if _, err := tracker.Start(ctx, snapshot.JobRecord{
			ID:          fmt.Sprintf("job-%d", i),
			DocumentRef: "flyer-1",
			Format:      snapshot.FormatFacebook,
			CreatedAt:   base.Add(time.Duration(i) * time.Hour),
		}); err != nil {
			t.Fatalf("start: %v", err)
		}
	}

	list, err := tracker.List(ctx, snapshot.JobFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 || list[0].ID != "job-2" || list[2].ID != "job-0" {
		t.Fatalf("expected newest first, got %+v", list)
	}

	window, err := tracker.List(ctx, snapshot.JobFilter{Since: base.Add(30 * time.Minute), Until: base.Add(90 * time.Minute)})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(window) != 1 || window[0].ID != "job-1" {
		t.Fatalf("expected job-1 in window, got %+v", window)
	}
}

func TestTracker_MissingRecord(t *testing.T) {
	ctx := context.Background()
	tracker := NewTracker(newTestDB(t))

	if err := tracker.SetState(ctx, "missing", snapshot.JobCapturing); snapshot.KindFromError(err) != snapshot.KindNotFound {
		t.Fatalf("expected not found on set state, got %v", err)
	}
	if _, err := tracker.Status(ctx, "missing"); snapshot.KindFromError(err) != snapshot.KindNotFound {
		t.Fatalf("expected not found on status, got %v", err)
	}
	if err := tracker.Delete(ctx, "missing"); snapshot.KindFromError(err) != snapshot.KindNotFound {
		t.Fatalf("expected not found on delete, got %v", err)
	}
	if _, err := tracker.Status(ctx, ""); snapshot.KindFromError(err) != snapshot.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestTracker_DrivesOrchestrator(t *testing.T) {
	ctx := context.Background()
	tracker := NewTracker(newTestDB(t))

	factory := snapshot.SurfaceFactoryFunc(func(ctx context.Context, spec snapshot.SurfaceSpec) (snapshot.Surface, error) {
		return nil, errors.New("no browser")
	})
	o := snapshot.NewOrchestrator(factory)
	o.Tracker = tracker

	_, err := o.Export(ctx, snapshot.ExportRequest{
		Document: snapshot.VisualDocument{
			Ref:          "flyer-9",
			Kind:         "flyer",
			HTML:         []byte(`<div id="flyer">Hi</div>`),
			RootSelector: "#flyer",
			Width:        100,
			Height:       100,
		},
		Format: snapshot.FormatInstagramSquare,
	})
	if snapshot.KindFromError(err) != snapshot.KindCapture {
		t.Fatalf("expected capture error, got %v", err)
	}

	list, err := tracker.List(ctx, snapshot.JobFilter{DocumentRef: "flyer-9"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].State != snapshot.JobFailed {
		t.Fatalf("expected one failed record, got %+v", list)
	}
}

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() {
		_ = db.Close()
	})

	if err := NewTracker(db).CreateSchema(context.Background()); err != nil {
		t.Fatalf("create table: %v", err)
	}
	return db
}
