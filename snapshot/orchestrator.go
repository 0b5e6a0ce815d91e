package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/goliatone/go-snapshot/snapshot/notify"
	"github.com/google/uuid"
)

// JobEvent is published to subscribers on every job state change and when a
// document's in-flight slot is taken or released.
type JobEvent struct {
	JobID       string
	DocumentRef string
	Format      FormatID
	State       JobState
	Busy        bool
	Err         error
	Timestamp   time.Time
}

// Orchestrator runs export jobs end to end.
type Orchestrator struct {
	Formats          *FormatRegistry
	Surfaces         SurfaceFactory
	Packagers        *PackagerRegistry
	Store            ArtifactStore
	Tracker          Tracker
	Notifier         notify.Notifier
	Emitter          ChangeEmitter
	Logger           Logger
	Preloader        Preloader
	Rasterizer       Rasterizer
	FilenameTemplate string
	Now              func() time.Time
	IDGenerator      func() string

	mu       sync.Mutex
	inflight map[string]string

	subMu   sync.RWMutex
	subs    map[uint64]func(JobEvent)
	nextSub uint64
}

// NewOrchestrator creates an orchestrator with the default format catalog.
func NewOrchestrator(surfaces SurfaceFactory) *Orchestrator {
	return &Orchestrator{
		Formats:     NewDefaultFormatRegistry(),
		Surfaces:    surfaces,
		Packagers:   NewPackagerRegistry(),
		Logger:      NopLogger{},
		Now:         time.Now,
		IDGenerator: uuid.NewString,
	}
}

// Busy reports whether a job is in flight for the document ref.
func (o *Orchestrator) Busy(ref string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.inflight[ref]
	return ok
}

// Subscribe registers fn for job events and returns its cancel func.
func (o *Orchestrator) Subscribe(fn func(JobEvent)) func() {
	if fn == nil {
		return func() {}
	}
	o.subMu.Lock()
	if o.subs == nil {
		o.subs = make(map[uint64]func(JobEvent))
	}
	o.nextSub++
	id := o.nextSub
	o.subs[id] = fn
	o.subMu.Unlock()

	return func() {
		o.subMu.Lock()
		delete(o.subs, id)
		o.subMu.Unlock()
	}
}

// Export runs one job: preload, capture, compose when needed, package and
// notify. A second request for a document already in flight fails with a
// busy error and produces nothing.
func (o *Orchestrator) Export(ctx context.Context, req ExportRequest) (ExportResult, error) {
	if o == nil {
		return ExportResult{}, NewError(KindInternal, "orchestrator is nil", nil)
	}
	if o.Formats == nil || o.Surfaces == nil {
		return ExportResult{}, NewError(KindInternal, "orchestrator is not configured", nil)
	}
	o.applyDefaults()

	format, err := o.Formats.Resolve(req.Format)
	if err != nil {
		return ExportResult{}, NewError(KindValidation, fmt.Sprintf("unknown export format %q", req.Format), err)
	}
	if req.CaptureScale != 0 && req.CaptureScale < 1 {
		return ExportResult{}, NewError(KindValidation, "capture scale must be >= 1", nil)
	}

	doc := req.Document
	key := doc.Key()
	job := NewJob(o.IDGenerator(), doc, format)
	if !o.acquire(key, job.ID) {
		return ExportResult{}, NewError(KindBusy, fmt.Sprintf("export already in progress for %q", key), nil)
	}
	defer o.release(job)

	o.publish(job, nil)
	startedAt := o.Now()
	if o.Tracker != nil {
		id, err := o.Tracker.Start(ctx, JobRecord{
			ID:          job.ID,
			DocumentRef: key,
			Kind:        doc.Kind,
			Format:      format.ID,
			State:       JobIdle,
			CreatedAt:   startedAt,
			StartedAt:   startedAt,
		})
		if err != nil {
			o.Logger.Errorf("snapshot: tracker start failed for %s: %v", job.ID, err)
		} else if id != "" && id != job.ID {
			job.ID = id
		}
	}
	o.emit(ctx, job, "snapshot.requested", nil)

	result, err := o.run(ctx, job, req)
	if err != nil {
		o.fail(ctx, job, err)
		return ExportResult{}, err
	}
	return result, nil
}

func (o *Orchestrator) run(ctx context.Context, job *Job, req ExportRequest) (ExportResult, error) {
	doc := job.Document
	format := job.Format

	capture, err := BuildCapture(doc, format.Background)
	if err != nil {
		return ExportResult{}, err
	}
	doc.Images = capture.Images

	surface, err := o.Surfaces.Open(ctx, SurfaceSpec{Document: doc, Capture: capture})
	if err != nil {
		return ExportResult{}, NewError(KindCapture, "open capture surface", err)
	}
	defer func() {
		if cerr := surface.Close(); cerr != nil {
			o.Logger.Debugf("snapshot: close surface for %s: %v", job.ID, cerr)
		}
	}()

	if err := o.advance(ctx, job, JobPreloading); err != nil {
		return ExportResult{}, err
	}
	preloader := o.Preloader
	if preloader.Logger == nil {
		preloader.Logger = o.Logger
	}
	report, err := preloader.Preload(ctx, surface)
	if err != nil {
		return ExportResult{}, err
	}
	if len(report.Failed) > 0 {
		o.Logger.Debugf("snapshot: %s continuing with %d/%d images unloaded", job.ID, len(report.Failed), report.Total)
	}

	if err := o.advance(ctx, job, JobCapturing); err != nil {
		return ExportResult{}, err
	}
	rasterizer := o.Rasterizer
	if rasterizer.Logger == nil {
		rasterizer.Logger = o.Logger
	}
	scale := CaptureScaleFor(doc, format, req.CaptureScale)
	raster, err := rasterizer.Rasterize(ctx, surface, capture, scale)
	if err != nil {
		return ExportResult{}, err
	}

	composited := false
	if targetW, targetH, ok := compositionTarget(doc, format, raster); ok {
		if err := o.advance(ctx, job, JobCompositing); err != nil {
			return ExportResult{}, err
		}
		raster, _, err = Compose(raster, targetW, targetH, format.Background)
		if err != nil {
			return ExportResult{}, err
		}
		composited = true
	}

	if err := o.advance(ctx, job, JobPackaging); err != nil {
		return ExportResult{}, err
	}
	pattern := req.Filename
	if pattern == "" {
		pattern = o.FilenameTemplate
	}
	filename, err := RenderFilename(pattern, doc, format, job.ID, o.Now())
	if err != nil {
		return ExportResult{}, err
	}
	file, ref, err := o.pack(ctx, job, doc, format, raster, filename, req.Output)
	if err != nil {
		return ExportResult{}, err
	}

	if err := o.advance(ctx, job, JobDone); err != nil {
		return ExportResult{}, err
	}

	result := ExportResult{
		JobID:      job.ID,
		Format:     format.ID,
		Output:     format.Output,
		Filename:   file.Filename,
		Width:      raster.Width,
		Height:     raster.Height,
		Composited: composited,
		Bytes:      int64(len(file.Data)),
		Preload:    report,
		Artifact:   ref,
	}

	if o.Tracker != nil {
		artifact := ArtifactRef{Meta: ArtifactMeta{Filename: file.Filename, ContentType: file.ContentType, Size: result.Bytes}}
		if ref != nil {
			artifact = *ref
		}
		if err := o.Tracker.Complete(ctx, job.ID, artifact); err != nil {
			o.Logger.Errorf("snapshot: tracker complete failed for %s: %v", job.ID, err)
		}
	}
	o.emit(ctx, job, "snapshot.completed", map[string]any{
		"filename":   file.Filename,
		"bytes":      result.Bytes,
		"width":      result.Width,
		"height":     result.Height,
		"composited": composited,
		"images":     report.Total,
		"failed":     len(report.Failed),
	})
	o.Logger.Infof("snapshot: %s exported %s (%dx%d)", job.ID, file.Filename, result.Width, result.Height)
	o.notify(ctx, job, notify.Event{
		Outcome:     notify.OutcomeSuccess,
		FileName:    file.Filename,
		ContentType: file.ContentType,
		Message:     fmt.Sprintf("Your %s export is ready: %s", labelFor(format), file.Filename),
	})
	return result, nil
}

// pack encodes and stores the file. A failure leaves no stored artifact.
func (o *Orchestrator) pack(ctx context.Context, job *Job, doc VisualDocument, format ExportFormatSpec, raster RasterResult, filename string, out io.Writer) (PackagedFile, *ArtifactRef, error) {
	if o.Packagers == nil {
		return PackagedFile{}, nil, NewError(KindInternal, "packager registry is not configured", nil)
	}
	packager, err := o.Packagers.Resolve(format.Output)
	if err != nil {
		return PackagedFile{}, nil, err
	}
	file, err := packager.Package(ctx, PackageRequest{
		JobID:    job.ID,
		Document: doc,
		Format:   format,
		Raster:   raster,
		Filename: filename,
	})
	if err != nil {
		if KindFromError(err) == KindInternal {
			err = NewError(KindPackaging, "package output", err)
		}
		return PackagedFile{}, nil, err
	}
	if file.Filename == "" {
		file.Filename = filename
	}
	if len(file.Data) == 0 {
		return PackagedFile{}, nil, NewError(KindPackaging, "packager produced an empty file", nil)
	}

	var ref *ArtifactRef
	if o.Store != nil {
		stored, err := o.Store.Put(ctx, artifactKey(job.ID, file.Filename), bytes.NewReader(file.Data), ArtifactMeta{
			ContentType: file.ContentType,
			Size:        int64(len(file.Data)),
			Filename:    file.Filename,
			CreatedAt:   o.Now(),
		})
		if err != nil {
			return PackagedFile{}, nil, NewError(KindPackaging, "store output", err)
		}
		ref = &stored
	}

	if out != nil {
		if _, err := out.Write(file.Data); err != nil {
			if ref != nil {
				_ = o.Store.Delete(ctx, ref.Key)
			}
			return PackagedFile{}, nil, NewError(KindPackaging, "write output", err)
		}
	}
	return file, ref, nil
}

// CaptureScaleFor picks the capture scale. A raster format whose aspect
// matches the document is captured at targetW/authoredW so the bitmap equals
// the target without resampling. Print formats and explicit overrides keep
// their scale.
func CaptureScaleFor(doc VisualDocument, format ExportFormatSpec, override float64) float64 {
	if override >= 1 {
		return override
	}
	if format.Output == OutputPNG && doc.Width > 0 && AspectMatches(doc.Width, doc.Height, format.Width, format.Height) {
		return float64(format.Width) / float64(doc.Width)
	}
	return format.CaptureScale
}

// compositionTarget returns the canvas a raster must be fitted into, or
// false when compositing is bypassed. Print canvases are the page box at the
// capture scale; the packager sizes the page itself.
func compositionTarget(doc VisualDocument, format ExportFormatSpec, raster RasterResult) (int, int, bool) {
	if format.Output == OutputPDF {
		if AspectMatches(doc.Width, doc.Height, format.Width, format.Height) {
			return 0, 0, false
		}
		w, h := RasterSize(format.Width, format.Height, raster.Scale)
		return w, h, true
	}
	if raster.Width == format.Width && raster.Height == format.Height {
		return 0, 0, false
	}
	return format.Width, format.Height, true
}

func artifactKey(jobID, filename string) string {
	return fmt.Sprintf("snapshots/%s/%s", jobID, filename)
}

func labelFor(format ExportFormatSpec) string {
	if format.Label != "" {
		return format.Label
	}
	return string(format.ID)
}

func (o *Orchestrator) applyDefaults() {
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Logger == nil {
		o.Logger = NopLogger{}
	}
	if o.IDGenerator == nil {
		o.IDGenerator = uuid.NewString
	}
	if o.Packagers == nil {
		o.Packagers = NewPackagerRegistry()
	}
}

func (o *Orchestrator) acquire(key, jobID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inflight == nil {
		o.inflight = make(map[string]string)
	}
	if _, busy := o.inflight[key]; busy {
		return false
	}
	o.inflight[key] = jobID
	return true
}

func (o *Orchestrator) release(job *Job) {
	o.mu.Lock()
	delete(o.inflight, job.Document.Key())
	o.mu.Unlock()
	o.publish(job, job.Err())
}

func (o *Orchestrator) advance(ctx context.Context, job *Job, to JobState) error {
	if err := job.Advance(to); err != nil {
		return err
	}
	if o.Tracker != nil {
		if err := o.Tracker.SetState(ctx, job.ID, to); err != nil {
			o.Logger.Debugf("snapshot: tracker state %s for %s: %v", to, job.ID, err)
		}
	}
	o.publish(job, nil)
	return nil
}

func (o *Orchestrator) fail(ctx context.Context, job *Job, err error) {
	if ferr := job.Fail(err); ferr != nil {
		o.Logger.Errorf("snapshot: %v", ferr)
	}
	o.Logger.Errorf("snapshot: %s failed (%s): %v", job.ID, KindFromError(err), err)
	if o.Tracker != nil {
		if terr := o.Tracker.Fail(ctx, job.ID, err); terr != nil {
			o.Logger.Debugf("snapshot: tracker fail for %s: %v", job.ID, terr)
		}
	}
	o.emit(ctx, job, "snapshot.failed", map[string]any{
		"error":      err.Error(),
		"error_kind": KindFromError(err),
	})
	o.notify(ctx, job, notify.Event{
		Outcome: notify.OutcomeFailure,
		Message: UserMessage(err),
	})
}

func (o *Orchestrator) notify(ctx context.Context, job *Job, evt notify.Event) {
	if o.Notifier == nil {
		return
	}
	evt.JobID = job.ID
	evt.DocumentRef = job.Document.Key()
	evt.Kind = job.Document.Kind
	evt.Format = string(job.Format.ID)
	// The job context may already be done; notification still goes out.
	if err := o.Notifier.Send(context.WithoutCancel(ctx), evt); err != nil {
		o.Logger.Errorf("snapshot: notify %s for %s: %v", evt.Outcome, job.ID, err)
	}
}

func (o *Orchestrator) emit(ctx context.Context, job *Job, name string, meta map[string]any) {
	if o.Emitter == nil {
		return
	}
	_ = o.Emitter.Emit(ctx, ChangeEvent{
		Name:        name,
		JobID:       job.ID,
		DocumentRef: job.Document.Key(),
		Kind:        job.Document.Kind,
		Format:      job.Format.ID,
		Timestamp:   o.Now(),
		Metadata:    meta,
	})
}

func (o *Orchestrator) publish(job *Job, err error) {
	o.subMu.RLock()
	subs := make([]func(JobEvent), 0, len(o.subs))
	for _, fn := range o.subs {
		subs = append(subs, fn)
	}
	o.subMu.RUnlock()
	if len(subs) == 0 {
		return
	}

	evt := JobEvent{
		JobID:       job.ID,
		DocumentRef: job.Document.Key(),
		Format:      job.Format.ID,
		State:       job.State(),
		Busy:        o.Busy(job.Document.Key()),
		Err:         err,
		Timestamp:   o.Now(),
	}
	for _, fn := range subs {
		fn(evt)
	}
}

// Status returns a job record.
func (o *Orchestrator) Status(ctx context.Context, id string) (JobRecord, error) {
	if o.Tracker == nil {
		return JobRecord{}, NewError(KindNotImpl, "job tracker not configured", nil)
	}
	return o.Tracker.Status(ctx, id)
}

// History lists job records, newest first.
func (o *Orchestrator) History(ctx context.Context, filter JobFilter) ([]JobRecord, error) {
	if o.Tracker == nil {
		return nil, NewError(KindNotImpl, "job tracker not configured", nil)
	}
	records, err := o.Tracker.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	sortRecords(records)
	return records, nil
}

// Download opens the stored file of a finished job.
func (o *Orchestrator) Download(ctx context.Context, id string) (io.ReadCloser, ArtifactMeta, error) {
	if o.Store == nil {
		return nil, ArtifactMeta{}, NewError(KindNotImpl, "artifact store not configured", nil)
	}
	record, err := o.Status(ctx, id)
	if err != nil {
		return nil, ArtifactMeta{}, err
	}
	if record.State != JobDone || record.Artifact.Key == "" {
		return nil, ArtifactMeta{}, NewError(KindNotFound, fmt.Sprintf("job %q has no file", id), nil)
	}
	return o.Store.Open(ctx, record.Artifact.Key)
}
