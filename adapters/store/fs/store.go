package storefs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/goliatone/go-snapshot/snapshot"
)

// Store provides filesystem-backed artifact storage. Files are written to a
// temp file in the target directory and renamed into place, so a failed Put
// leaves nothing behind.
type Store struct {
	Root string
	Now  func() time.Time
}

var _ snapshot.ArtifactStore = (*Store)(nil)

// NewStore creates a filesystem-backed artifact store.
func NewStore(root string) *Store {
	return &Store{Root: root, Now: time.Now}
}

// Put stores an artifact on disk.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, meta snapshot.ArtifactMeta) (snapshot.ArtifactRef, error) {
	pathOnDisk, err := s.pathFor(key)
	if err != nil {
		return snapshot.ArtifactRef{}, err
	}

	dir := filepath.Dir(pathOnDisk)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return snapshot.ArtifactRef{}, err
	}

	size, err := writeAtomic(ctx, pathOnDisk, ".snapshot-*", r)
	if err != nil {
		return snapshot.ArtifactRef{}, err
	}

	meta.Size = size
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = s.now()
	}
	if meta.ContentType == "" {
		meta.ContentType = mime.TypeByExtension(filepath.Ext(pathOnDisk))
	}
	if meta.Filename == "" {
		meta.Filename = filepath.Base(pathOnDisk)
	}

	if err := s.writeMeta(ctx, pathOnDisk, meta); err != nil {
		_ = os.Remove(pathOnDisk)
		return snapshot.ArtifactRef{}, err
	}

	return snapshot.ArtifactRef{Key: key, Meta: meta}, nil
}

// Open reads an artifact from disk.
func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, snapshot.ArtifactMeta, error) {
	_ = ctx
	pathOnDisk, err := s.pathFor(key)
	if err != nil {
		return nil, snapshot.ArtifactMeta{}, err
	}

	file, err := os.Open(pathOnDisk)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, snapshot.ArtifactMeta{}, snapshot.NewError(snapshot.KindNotFound, fmt.Sprintf("artifact %q not found", key), err)
		}
		return nil, snapshot.ArtifactMeta{}, err
	}

	meta := s.readMeta(pathOnDisk)
	if meta.ContentType == "" {
		meta.ContentType = mime.TypeByExtension(filepath.Ext(pathOnDisk))
	}
	if meta.Filename == "" {
		meta.Filename = filepath.Base(pathOnDisk)
	}
	if meta.Size == 0 {
		if info, err := file.Stat(); err == nil {
			meta.Size = info.Size()
			if meta.CreatedAt.IsZero() {
				meta.CreatedAt = info.ModTime()
			}
		}
	}

	return file, meta, nil
}

// Delete removes an artifact from disk.
func (s *Store) Delete(ctx context.Context, key string) error {
	_ = ctx
	pathOnDisk, err := s.pathFor(key)
	if err != nil {
		return err
	}
	_ = os.Remove(pathOnDisk)
	_ = os.Remove(metaPath(pathOnDisk))
	return nil
}

// Prune removes artifacts created before cutoff and returns how many were
// removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	if s == nil || s.Root == "" {
		return 0, snapshot.NewError(snapshot.KindValidation, "store root is required", nil)
	}
	removed := 0
	err := filepath.WalkDir(s.Root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || strings.HasSuffix(p, ".meta.json") || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		created := s.readMeta(p).CreatedAt
		if created.IsZero() {
			info, err := d.Info()
			if err != nil {
				return nil
			}
			created = info.ModTime()
		}
		if created.Before(cutoff) {
			_ = os.Remove(p)
			_ = os.Remove(metaPath(p))
			removed++
		}
		return nil
	})
	return removed, err
}

func (s *Store) pathFor(key string) (string, error) {
	if s == nil {
		return "", snapshot.NewError(snapshot.KindInternal, "store is nil", nil)
	}
	if s.Root == "" {
		return "", snapshot.NewError(snapshot.KindValidation, "store root is required", nil)
	}
	if key == "" {
		return "", snapshot.NewError(snapshot.KindValidation, "artifact key is required", nil)
	}
	return s.resolvePath(key)
}

func (s *Store) resolvePath(key string) (string, error) {
	clean := path.Clean("/" + key)
	rel := strings.TrimPrefix(clean, "/")
	if rel == "" || rel == "." {
		return "", snapshot.NewError(snapshot.KindValidation, "invalid artifact key", nil)
	}

	root, err := filepath.Abs(s.Root)
	if err != nil {
		return "", err
	}
	target := filepath.Join(root, filepath.FromSlash(rel))
	if !strings.HasPrefix(target, root+string(os.PathSeparator)) && target != root {
		return "", snapshot.NewError(snapshot.KindValidation, "artifact key escapes root", nil)
	}
	return target, nil
}

func (s *Store) writeMeta(ctx context.Context, pathOnDisk string, meta snapshot.ArtifactMeta) error {
	payload, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	_, err = writeAtomic(ctx, metaPath(pathOnDisk), ".meta-*", strings.NewReader(string(payload)))
	return err
}

func (s *Store) readMeta(pathOnDisk string) snapshot.ArtifactMeta {
	data, err := os.ReadFile(metaPath(pathOnDisk))
	if err != nil {
		return snapshot.ArtifactMeta{}
	}
	var meta snapshot.ArtifactMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return snapshot.ArtifactMeta{}
	}
	return meta
}

func (s *Store) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func writeAtomic(ctx context.Context, target, pattern string, r io.Reader) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(target), pattern)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	size, err := io.Copy(tmp, r)
	if err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := tmp.Sync(); err != nil {
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return 0, err
	}
	return size, nil
}

func metaPath(pathOnDisk string) string {
	return pathOnDisk + ".meta.json"
}
