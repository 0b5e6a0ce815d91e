package storefs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goliatone/go-snapshot/snapshot"
)

func TestStore_PutOpenDelete(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root)

	ref, err := store.Put(context.Background(), "snapshots/job-1/flyer-instagram.png", bytes.NewBufferString("hello"), snapshot.ArtifactMeta{
		ContentType: "image/png",
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if ref.Meta.Size != 5 {
		t.Fatalf("expected size 5, got %d", ref.Meta.Size)
	}
	if ref.Meta.CreatedAt.IsZero() {
		t.Fatalf("expected created_at set")
	}
	if ref.Meta.Filename != "flyer-instagram.png" {
		t.Fatalf("expected filename from key, got %q", ref.Meta.Filename)
	}

	reader, meta, err := store.Open(context.Background(), "snapshots/job-1/flyer-instagram.png")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	data, err := io.ReadAll(reader)
	_ = reader.Close()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("expected payload, got %q", string(data))
	}
	if meta.ContentType != "image/png" {
		t.Fatalf("expected content type, got %q", meta.ContentType)
	}

	if err := store.Delete(context.Background(), "snapshots/job-1/flyer-instagram.png"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	_, _, err = store.Open(context.Background(), "snapshots/job-1/flyer-instagram.png")
	if snapshot.KindFromError(err) != snapshot.KindNotFound {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk gone") }

func TestStore_FailedPutLeavesNothing(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root)

	if _, err := store.Put(context.Background(), "snapshots/job-1/flyer.pdf", failingReader{}, snapshot.ArtifactMeta{}); err == nil {
		t.Fatalf("expected put error")
	}

	entries, err := os.ReadDir(filepath.Join(root, "snapshots", "job-1"))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no files left behind, got %d", len(entries))
	}
}

func TestStore_RejectsEscapingKeys(t *testing.T) {
	store := NewStore(t.TempDir())
	if _, err := store.Put(context.Background(), "", bytes.NewBufferString("x"), snapshot.ArtifactMeta{}); snapshot.KindFromError(err) != snapshot.KindValidation {
		t.Fatalf("expected validation error for empty key, got %v", err)
	}

	ref, err := store.Put(context.Background(), "../../etc/passwd", bytes.NewBufferString("x"), snapshot.ArtifactMeta{})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, _, err := store.Open(context.Background(), ref.Key); err != nil {
		t.Fatalf("expected cleaned key to stay under root: %v", err)
	}
}

func TestStore_Prune(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root)
	old := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	if _, err := store.Put(context.Background(), "a/old.png", bytes.NewBufferString("x"), snapshot.ArtifactMeta{CreatedAt: old}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := store.Put(context.Background(), "b/new.png", bytes.NewBufferString("y"), snapshot.ArtifactMeta{CreatedAt: old.Add(48 * time.Hour)}); err != nil {
		t.Fatalf("put: %v", err)
	}

	removed, err := store.Prune(context.Background(), old.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if _, _, err := store.Open(context.Background(), "b/new.png"); err != nil {
		t.Fatalf("expected new artifact kept: %v", err)
	}
}
