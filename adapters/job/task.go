package snapshotjob

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/goliatone/go-command/dispatcher"
	errorslib "github.com/goliatone/go-errors"
	job "github.com/goliatone/go-job"
	snapshotcmd "github.com/goliatone/go-snapshot/command"
	"github.com/goliatone/go-snapshot/snapshot"
)

const (
	DefaultExportTaskID   = "snapshot:export"
	DefaultExportTaskPath = "snapshot:export"
)

var (
	backoffRand   = rand.New(rand.NewSource(time.Now().UnixNano()))
	backoffRandMu sync.Mutex
)

// Payload is the serializable form of an export request.
type Payload struct {
	Ref          string                   `json:"ref,omitempty"`
	Kind         string                   `json:"kind,omitempty"`
	HTML         string                   `json:"html"`
	RootSelector string                   `json:"root_selector"`
	BaseURL      string                   `json:"base_url,omitempty"`
	Width        int                      `json:"width"`
	Height       int                      `json:"height"`
	Overrides    []snapshot.StyleOverride `json:"overrides,omitempty"`
	Format       string                   `json:"format"`
	CaptureScale float64                  `json:"capture_scale,omitempty"`
	Filename     string                   `json:"filename,omitempty"`
}

// PayloadFromRequest drops the caller writer; queued jobs only reach the store.
func PayloadFromRequest(req snapshot.ExportRequest) Payload {
	doc := req.Document
	return Payload{
		Ref:          doc.Ref,
		Kind:         doc.Kind,
		HTML:         string(doc.HTML),
		RootSelector: doc.RootSelector,
		BaseURL:      doc.BaseURL,
		Width:        doc.Width,
		Height:       doc.Height,
		Overrides:    append([]snapshot.StyleOverride(nil), doc.Overrides...),
		Format:       string(req.Format),
		CaptureScale: req.CaptureScale,
		Filename:     req.Filename,
	}
}

// Request rebuilds the export request.
func (p Payload) Request() snapshot.ExportRequest {
	return snapshot.ExportRequest{
		Document: snapshot.VisualDocument{
			Ref:          p.Ref,
			Kind:         p.Kind,
			HTML:         []byte(p.HTML),
			RootSelector: p.RootSelector,
			BaseURL:      p.BaseURL,
			Width:        p.Width,
			Height:       p.Height,
			Overrides:    append([]snapshot.StyleOverride(nil), p.Overrides...),
		},
		Format:       snapshot.FormatID(p.Format),
		CaptureScale: p.CaptureScale,
		Filename:     p.Filename,
	}
}

// ExportDispatch runs an export command.
type ExportDispatch func(ctx context.Context, msg snapshotcmd.ExportSnapshot) error

// TaskConfig configures the export task.
type TaskConfig struct {
	ID             string
	Path           string
	Config         job.Config
	HandlerOptions job.HandlerOptions
	RetryPolicy    RetryPolicy
	Logger         snapshot.Logger
	Dispatch       ExportDispatch
	// Pending feeds GetHandler for non-queue execution paths.
	Pending func(ctx context.Context) (*job.ExecutionMessage, error)
}

// ExportTask executes queued snapshot exports.
type ExportTask struct {
	id             string
	path           string
	config         job.Config
	handlerOptions job.HandlerOptions
	retryPolicy    RetryPolicy
	logger         snapshot.Logger
	dispatch       ExportDispatch
	pending        func(ctx context.Context) (*job.ExecutionMessage, error)
}

// NewExportTask creates a new export task.
func NewExportTask(cfg TaskConfig) *ExportTask {
	logger := cfg.Logger
	if logger == nil {
		logger = snapshot.NopLogger{}
	}
	id := cfg.ID
	if id == "" {
		id = DefaultExportTaskID
	}
	path := cfg.Path
	if path == "" {
		path = DefaultExportTaskPath
	}
	dispatch := cfg.Dispatch
	if dispatch == nil {
		dispatch = func(ctx context.Context, msg snapshotcmd.ExportSnapshot) error {
			return dispatcher.Dispatch(ctx, msg)
		}
	}

	return &ExportTask{
		id:             id,
		path:           path,
		config:         cfg.Config,
		handlerOptions: cfg.HandlerOptions,
		retryPolicy:    cfg.RetryPolicy,
		logger:         logger,
		dispatch:       dispatch,
		pending:        cfg.Pending,
	}
}

// GetID returns the task identifier.
func (t *ExportTask) GetID() string { return t.id }

// GetHandler returns a handler for non-queue execution paths.
func (t *ExportTask) GetHandler() func() error {
	return func() error {
		if t == nil {
			return snapshot.NewError(snapshot.KindInternal, "task is nil", nil)
		}
		if t.pending == nil {
			return snapshot.NewError(snapshot.KindNotImpl, "pending message source not configured", nil)
		}
		ctx := context.Background()
		msg, err := t.pending(ctx)
		if err != nil {
			return err
		}
		if msg == nil {
			return nil
		}
		return t.Execute(ctx, msg)
	}
}

// GetHandlerConfig returns scheduler options for the task.
func (t *ExportTask) GetHandlerConfig() job.HandlerOptions { return t.handlerOptions }

// GetConfig returns task config defaults.
func (t *ExportTask) GetConfig() job.Config { return t.config }

// GetPath returns the task path.
func (t *ExportTask) GetPath() string { return t.path }

// GetEngine returns nil because this task is code-driven.
func (t *ExportTask) GetEngine() job.Engine { return nil }

// Execute runs the export carried by msg, retrying per the retry policy.
func (t *ExportTask) Execute(ctx context.Context, msg *job.ExecutionMessage) error {
	if t == nil {
		return snapshot.NewError(snapshot.KindInternal, "task is nil", nil)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	payload, err := decodePayload(msg)
	if err != nil {
		return err
	}

	policy := t.retryPolicy
	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := t.dispatch(ctx, snapshotcmd.ExportSnapshot{Request: payload.Request()})
		if err == nil {
			return nil
		}
		if !policy.shouldRetry(err) || attempt >= policy.MaxRetries {
			return err
		}

		attempt++
		delay := policy.backoffDelay(attempt)
		t.logger.Infof("snapshot export %s/%s retry %d in %s: %v", payload.Ref, payload.Format, attempt, delay, err)
		if delay > 0 {
			if serr := sleepWithContext(ctx, delay); serr != nil {
				return serr
			}
		}
	}
}

func encodePayload(payload Payload) (json.RawMessage, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, snapshot.NewError(snapshot.KindValidation, "payload is not serializable", err)
	}
	return json.RawMessage(raw), nil
}

func decodePayload(msg *job.ExecutionMessage) (Payload, error) {
	if msg == nil || msg.Parameters == nil {
		return Payload{}, snapshot.NewError(snapshot.KindValidation, "job payload is required", nil)
	}

	raw, ok := msg.Parameters["payload"]
	if !ok {
		return Payload{}, snapshot.NewError(snapshot.KindValidation, "job payload missing", nil)
	}

	switch value := raw.(type) {
	case Payload:
		return value, nil
	case *Payload:
		if value == nil {
			return Payload{}, snapshot.NewError(snapshot.KindValidation, "job payload is nil", nil)
		}
		return *value, nil
	case json.RawMessage:
		return unmarshalPayload(value)
	case []byte:
		return unmarshalPayload(value)
	case string:
		return unmarshalPayload([]byte(value))
	default:
		data, err := json.Marshal(value)
		if err != nil {
			return Payload{}, snapshot.NewError(snapshot.KindValidation, "job payload is invalid", err)
		}
		return unmarshalPayload(data)
	}
}

func unmarshalPayload(data []byte) (Payload, error) {
	if len(data) == 0 {
		return Payload{}, snapshot.NewError(snapshot.KindValidation, "job payload is empty", nil)
	}
	var payload Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		return Payload{}, snapshot.NewError(snapshot.KindValidation, "job payload is invalid", err)
	}
	return payload, nil
}

// RetryPolicy determines retry behavior for retryable errors.
type RetryPolicy struct {
	MaxRetries int
	Backoff    job.BackoffConfig
	Retryable  func(error) bool
}

func (p RetryPolicy) shouldRetry(err error) bool {
	if err == nil || p.MaxRetries <= 0 {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return defaultRetryable(err)
}

func (p RetryPolicy) backoffDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return computeBackoffDelay(attempt, p.Backoff)
}

// defaultRetryable retries a busy document and timeouts. Capture and
// packaging failures are final.
func defaultRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errorslib.IsRetryableError(err) {
		return true
	}
	switch snapshot.KindFromError(err) {
	case snapshot.KindBusy, snapshot.KindTimeout:
		return true
	}
	return false
}

func computeBackoffDelay(attempt int, cfg job.BackoffConfig) time.Duration {
	if attempt <= 0 {
		return 0
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}

	maxInterval := cfg.MaxInterval
	if maxInterval <= 0 {
		maxInterval = 5 * time.Second
	}

	switch cfg.Strategy {
	case job.BackoffFixed:
		return applyJitter(interval, cfg.Jitter)
	case job.BackoffExponential:
		delay := interval
		for i := 1; i < attempt; i++ {
			delay *= 2
			if delay > maxInterval {
				delay = maxInterval
				break
			}
		}
		return applyJitter(delay, cfg.Jitter)
	default:
		return 0
	}
}

func applyJitter(delay time.Duration, jitter bool) time.Duration {
	if !jitter || delay <= 0 {
		return delay
	}
	// +/-50%
	half := float64(delay) * 0.5
	backoffRandMu.Lock()
	offset := (backoffRand.Float64()*2 - 1) * half
	backoffRandMu.Unlock()
	jittered := float64(delay) + offset
	if jittered < 0 {
		return 0
	}
	return time.Duration(jittered)
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
