package snapshotjob

import (
	"context"
	"fmt"

	job "github.com/goliatone/go-job"
	snapshotcmd "github.com/goliatone/go-snapshot/command"
	"github.com/goliatone/go-snapshot/snapshot"
)

// Enqueuer delivers execution messages to go-job.
type Enqueuer interface {
	Enqueue(ctx context.Context, msg *job.ExecutionMessage) error
}

// EnqueuerFunc adapts a function to an Enqueuer.
type EnqueuerFunc func(ctx context.Context, msg *job.ExecutionMessage) error

func (f EnqueuerFunc) Enqueue(ctx context.Context, msg *job.ExecutionMessage) error {
	if f == nil {
		return snapshot.NewError(snapshot.KindInternal, "enqueuer is nil", nil)
	}
	return f(ctx, msg)
}

// Config configures the go-job export scheduler.
type Config struct {
	Enqueuer Enqueuer
	TaskID   string
	TaskPath string
	Logger   snapshot.Logger
}

// Scheduler enqueues snapshot exports for background execution.
type Scheduler struct {
	enqueuer Enqueuer
	taskID   string
	taskPath string
	logger   snapshot.Logger
}

// NewScheduler creates a new job scheduler adapter.
func NewScheduler(cfg Config) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = snapshot.NopLogger{}
	}
	taskID := cfg.TaskID
	if taskID == "" {
		taskID = DefaultExportTaskID
	}
	taskPath := cfg.TaskPath
	if taskPath == "" {
		taskPath = DefaultExportTaskPath
	}
	return &Scheduler{
		enqueuer: cfg.Enqueuer,
		taskID:   taskID,
		taskPath: taskPath,
		logger:   logger,
	}
}

// Schedule validates req and enqueues it. Requests for the same document and
// format merge into one pending execution.
func (s *Scheduler) Schedule(ctx context.Context, req snapshot.ExportRequest) (*job.ExecutionMessage, error) {
	if s == nil {
		return nil, snapshot.NewError(snapshot.KindInternal, "scheduler is nil", nil)
	}
	if s.enqueuer == nil {
		return nil, snapshot.NewError(snapshot.KindNotImpl, "job enqueuer not configured", nil)
	}
	if err := (snapshotcmd.ExportSnapshot{Request: req}).Validate(); err != nil {
		return nil, err
	}

	encoded, err := encodePayload(PayloadFromRequest(req))
	if err != nil {
		return nil, err
	}

	msg := &job.ExecutionMessage{
		JobID:          s.taskID,
		ScriptPath:     s.taskPath,
		Parameters:     map[string]any{"payload": encoded},
		IdempotencyKey: IdempotencyKey(req),
		DedupPolicy:    job.DedupPolicyMerge,
	}
	if err := s.enqueuer.Enqueue(ctx, msg); err != nil {
		s.logger.Errorf("snapshot export enqueue failed ref=%s format=%s: %v", req.Document.Key(), req.Format, err)
		return nil, err
	}
	return msg, nil
}

// IdempotencyKey identifies a pending export of one document in one format.
func IdempotencyKey(req snapshot.ExportRequest) string {
	return fmt.Sprintf("snapshot:%s:%s", req.Document.Key(), req.Format)
}
