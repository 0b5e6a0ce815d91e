package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore stores artifacts in memory (test/dev only).
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
}

type memoryObject struct {
	data []byte
	meta ArtifactMeta
}

// NewMemoryStore creates an in-memory artifact store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memoryObject)}
}

// Put stores an artifact. Nothing is stored when reading r fails.
func (s *MemoryStore) Put(ctx context.Context, key string, r io.Reader, meta ArtifactMeta) (ArtifactRef, error) {
	_ = ctx
	if key == "" {
		return ArtifactRef{}, NewError(KindValidation, "artifact key is required", nil)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return ArtifactRef{}, err
	}
	meta.Size = int64(len(data))
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now()
	}

	s.mu.Lock()
	s.objects[key] = memoryObject{data: data, meta: meta}
	s.mu.Unlock()

	return ArtifactRef{Key: key, Meta: meta}, nil
}

// Open reads an artifact.
func (s *MemoryStore) Open(ctx context.Context, key string) (io.ReadCloser, ArtifactMeta, error) {
	_ = ctx
	s.mu.RLock()
	obj, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return nil, ArtifactMeta{}, NewError(KindNotFound, fmt.Sprintf("artifact %q not found", key), nil)
	}
	return memoryReader{bytes.NewReader(obj.data)}, obj.meta, nil
}

// memoryReader keeps Seek visible so transports can serve ranges.
type memoryReader struct {
	*bytes.Reader
}

func (memoryReader) Close() error { return nil }

// Delete removes an artifact.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	_ = ctx
	s.mu.Lock()
	delete(s.objects, key)
	s.mu.Unlock()
	return nil
}

// Keys returns stored keys in order.
func (s *MemoryStore) Keys() []string {
	s.mu.RLock()
	keys := make([]string, 0, len(s.objects))
	for key := range s.objects {
		keys = append(keys, key)
	}
	s.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// MemoryTracker stores job records in memory (test/dev only).
type MemoryTracker struct {
	mu      sync.RWMutex
	records map[string]JobRecord
}

// NewMemoryTracker creates an in-memory tracker.
func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{records: make(map[string]JobRecord)}
}

// Start creates a new record.
func (t *MemoryTracker) Start(ctx context.Context, record JobRecord) (string, error) {
	_ = ctx
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.State == "" {
		record.State = JobIdle
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	t.mu.Lock()
	t.records[record.ID] = record
	t.mu.Unlock()
	return record.ID, nil
}

// SetState updates the record state.
func (t *MemoryTracker) SetState(ctx context.Context, id string, state JobState) error {
	return t.update(ctx, id, func(record *JobRecord) {
		record.State = state
		if state != JobIdle && record.StartedAt.IsZero() {
			record.StartedAt = time.Now()
		}
	})
}

// Fail records failure state.
func (t *MemoryTracker) Fail(ctx context.Context, id string, err error) error {
	return t.update(ctx, id, func(record *JobRecord) {
		record.State = JobFailed
		record.CompletedAt = time.Now()
		if err != nil {
			record.Error = err.Error()
		}
	})
}

// Complete marks the job done.
func (t *MemoryTracker) Complete(ctx context.Context, id string, ref ArtifactRef) error {
	return t.update(ctx, id, func(record *JobRecord) {
		record.State = JobDone
		record.CompletedAt = time.Now()
		record.Artifact = ref
		record.Filename = ref.Meta.Filename
	})
}

// Status returns a record by ID.
func (t *MemoryTracker) Status(ctx context.Context, id string) (JobRecord, error) {
	_ = ctx
	t.mu.RLock()
	record, ok := t.records[id]
	t.mu.RUnlock()
	if !ok {
		return JobRecord{}, NewError(KindNotFound, fmt.Sprintf("job %q not found", id), nil)
	}
	return record, nil
}

// List returns records matching a filter.
func (t *MemoryTracker) List(ctx context.Context, filter JobFilter) ([]JobRecord, error) {
	_ = ctx
	result := []JobRecord{}

	t.mu.RLock()
	for _, record := range t.records {
		if MatchesFilter(record, filter) {
			result = append(result, record)
		}
	}
	t.mu.RUnlock()
	sortRecords(result)
	return result, nil
}

func (t *MemoryTracker) update(ctx context.Context, id string, fn func(*JobRecord)) error {
	_ = ctx
	t.mu.Lock()
	defer t.mu.Unlock()
	record, ok := t.records[id]
	if !ok {
		return NewError(KindNotFound, fmt.Sprintf("job %q not found", id), nil)
	}
	fn(&record)
	t.records[id] = record
	return nil
}

// MatchesFilter reports whether a record passes filter.
func MatchesFilter(record JobRecord, filter JobFilter) bool {
	if filter.DocumentRef != "" && record.DocumentRef != filter.DocumentRef {
		return false
	}
	if filter.Format != "" && record.Format != filter.Format {
		return false
	}
	if filter.State != "" && record.State != filter.State {
		return false
	}
	if !filter.Since.IsZero() && record.CreatedAt.Before(filter.Since) {
		return false
	}
	if !filter.Until.IsZero() && record.CreatedAt.After(filter.Until) {
		return false
	}
	return true
}

func sortRecords(records []JobRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].ID > records[j].ID
		}
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
}
