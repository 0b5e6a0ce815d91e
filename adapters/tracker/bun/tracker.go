package trackerbun

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/goliatone/go-snapshot/snapshot"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Tracker stores snapshot job records in a Bun-backed database.
type Tracker struct {
	DB          *bun.DB
	Now         func() time.Time
	IDGenerator func() string
}

var _ snapshot.Tracker = (*Tracker)(nil)

// NewTracker creates a Bun-backed tracker.
func NewTracker(db *bun.DB) *Tracker {
	return &Tracker{DB: db, Now: time.Now, IDGenerator: uuid.NewString}
}

// CreateSchema creates the jobs table when missing.
func (t *Tracker) CreateSchema(ctx context.Context) error {
	if t == nil || t.DB == nil {
		return snapshot.NewError(snapshot.KindNotImpl, "tracker database not configured", nil)
	}
	_, err := t.DB.NewCreateTable().Model((*jobModel)(nil)).IfNotExists().Exec(ctx)
	return err
}

// Start creates a new job record.
func (t *Tracker) Start(ctx context.Context, record snapshot.JobRecord) (string, error) {
	if t == nil || t.DB == nil {
		return "", snapshot.NewError(snapshot.KindNotImpl, "tracker database not configured", nil)
	}
	if record.ID == "" {
		record.ID = t.nextID()
	}
	if record.State == "" {
		record.State = snapshot.JobIdle
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = t.now()
	}

	model, err := modelFromRecord(record)
	if err != nil {
		return "", err
	}
	if _, err := t.DB.NewInsert().Model(&model).Exec(ctx); err != nil {
		return "", err
	}
	return record.ID, nil
}

// SetState updates the job state. The first move out of idle stamps
// started_at.
func (t *Tracker) SetState(ctx context.Context, id string, state snapshot.JobState) error {
	if t == nil || t.DB == nil {
		return snapshot.NewError(snapshot.KindNotImpl, "tracker database not configured", nil)
	}
	if id == "" {
		return snapshot.NewError(snapshot.KindValidation, "job ID is required", nil)
	}

	query := t.DB.NewUpdate().Model((*jobModel)(nil)).
		Set("state = ?", state).
		Where("id = ?", id)
	if state != snapshot.JobIdle {
		query = query.Set("started_at = COALESCE(started_at, ?)", t.now())
	}
	if state.Terminal() {
		query = query.Set("completed_at = COALESCE(completed_at, ?)", t.now())
	}
	return t.exec(ctx, id, query)
}

// Fail marks the job as failed and keeps the error text.
func (t *Tracker) Fail(ctx context.Context, id string, cause error) error {
	if t == nil || t.DB == nil {
		return snapshot.NewError(snapshot.KindNotImpl, "tracker database not configured", nil)
	}
	if id == "" {
		return snapshot.NewError(snapshot.KindValidation, "job ID is required", nil)
	}

	message := ""
	if cause != nil {
		message = cause.Error()
	}
	query := t.DB.NewUpdate().Model((*jobModel)(nil)).
		Set("state = ?", snapshot.JobFailed).
		Set("error = ?", message).
		Set("completed_at = COALESCE(completed_at, ?)", t.now()).
		Where("id = ?", id)
	return t.exec(ctx, id, query)
}

// Complete marks the job done and records its artifact.
func (t *Tracker) Complete(ctx context.Context, id string, ref snapshot.ArtifactRef) error {
	if t == nil || t.DB == nil {
		return snapshot.NewError(snapshot.KindNotImpl, "tracker database not configured", nil)
	}
	if id == "" {
		return snapshot.NewError(snapshot.KindValidation, "job ID is required", nil)
	}

	meta, err := json.Marshal(ref.Meta)
	if err != nil {
		return err
	}
	query := t.DB.NewUpdate().Model((*jobModel)(nil)).
		Set("state = ?", snapshot.JobDone).
		Set("artifact_key = ?", ref.Key).
		Set("artifact_meta = ?", meta).
		Set("completed_at = COALESCE(completed_at, ?)", t.now()).
		Where("id = ?", id)
	if ref.Meta.Filename != "" {
		query = query.Set("filename = ?", ref.Meta.Filename)
	}
	return t.exec(ctx, id, query)
}

// Status returns a record by ID.
func (t *Tracker) Status(ctx context.Context, id string) (snapshot.JobRecord, error) {
	if t == nil || t.DB == nil {
		return snapshot.JobRecord{}, snapshot.NewError(snapshot.KindNotImpl, "tracker database not configured", nil)
	}
	if id == "" {
		return snapshot.JobRecord{}, snapshot.NewError(snapshot.KindValidation, "job ID is required", nil)
	}

	model := new(jobModel)
	err := t.DB.NewSelect().Model(model).Where("id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return snapshot.JobRecord{}, snapshot.NewError(snapshot.KindNotFound, fmt.Sprintf("job %q not found", id), nil)
		}
		return snapshot.JobRecord{}, err
	}
	return model.toRecord()
}

// List returns records matching a filter, newest first.
func (t *Tracker) List(ctx context.Context, filter snapshot.JobFilter) ([]snapshot.JobRecord, error) {
	if t == nil || t.DB == nil {
		return nil, snapshot.NewError(snapshot.KindNotImpl, "tracker database not configured", nil)
	}

	models := make([]jobModel, 0)
	query := t.DB.NewSelect().Model(&models)
	if filter.DocumentRef != "" {
		query = query.Where("document_ref = ?", filter.DocumentRef)
	}
	if filter.Format != "" {
		query = query.Where("format = ?", filter.Format)
	}
	if filter.State != "" {
		query = query.Where("state = ?", filter.State)
	}
	if !filter.Since.IsZero() {
		query = query.Where("created_at >= ?", filter.Since)
	}
	if !filter.Until.IsZero() {
		query = query.Where("created_at <= ?", filter.Until)
	}
	query = query.Order("created_at DESC", "id DESC")

	if err := query.Scan(ctx); err != nil {
		return nil, err
	}

	records := make([]snapshot.JobRecord, 0, len(models))
	for _, model := range models {
		record, err := model.toRecord()
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// Delete removes a record from the tracker.
func (t *Tracker) Delete(ctx context.Context, id string) error {
	if t == nil || t.DB == nil {
		return snapshot.NewError(snapshot.KindNotImpl, "tracker database not configured", nil)
	}
	if id == "" {
		return snapshot.NewError(snapshot.KindValidation, "job ID is required", nil)
	}

	res, err := t.DB.NewDelete().Model((*jobModel)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return snapshot.NewError(snapshot.KindNotFound, fmt.Sprintf("job %q not found", id), nil)
	}
	return nil
}

func (t *Tracker) exec(ctx context.Context, id string, query *bun.UpdateQuery) error {
	res, err := query.Exec(ctx)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return snapshot.NewError(snapshot.KindNotFound, fmt.Sprintf("job %q not found", id), nil)
	}
	return nil
}

type jobModel struct {
	bun.BaseModel `bun:"table:snapshot_jobs,alias:snapshot_jobs"`

	ID           string    `bun:",pk"`
	DocumentRef  string    `bun:"document_ref"`
	Kind         string    `bun:"kind"`
	Format       string    `bun:",notnull"`
	State        string    `bun:",notnull"`
	Filename     string    `bun:"filename"`
	Error        string    `bun:"error"`
	ArtifactKey  string    `bun:"artifact_key"`
	ArtifactMeta []byte    `bun:"artifact_meta"`
	CreatedAt    time.Time `bun:"created_at"`
	StartedAt    time.Time `bun:"started_at,nullzero"`
	CompletedAt  time.Time `bun:"completed_at,nullzero"`
}

func modelFromRecord(record snapshot.JobRecord) (jobModel, error) {
	meta, err := json.Marshal(record.Artifact.Meta)
	if err != nil {
		return jobModel{}, err
	}

	return jobModel{
		ID:           record.ID,
		DocumentRef:  record.DocumentRef,
		Kind:         record.Kind,
		Format:       string(record.Format),
		State:        string(record.State),
		Filename:     record.Filename,
		Error:        record.Error,
		ArtifactKey:  record.Artifact.Key,
		ArtifactMeta: meta,
		CreatedAt:    record.CreatedAt,
		StartedAt:    record.StartedAt,
		CompletedAt:  record.CompletedAt,
	}, nil
}

func (m jobModel) toRecord() (snapshot.JobRecord, error) {
	record := snapshot.JobRecord{
		ID:          m.ID,
		DocumentRef: m.DocumentRef,
		Kind:        m.Kind,
		Format:      snapshot.FormatID(m.Format),
		State:       snapshot.JobState(m.State),
		Filename:    m.Filename,
		Error:       m.Error,
		Artifact:    snapshot.ArtifactRef{Key: m.ArtifactKey},
		CreatedAt:   m.CreatedAt,
		StartedAt:   m.StartedAt,
		CompletedAt: m.CompletedAt,
	}
	if len(m.ArtifactMeta) > 0 {
		if err := json.Unmarshal(m.ArtifactMeta, &record.Artifact.Meta); err != nil {
			return snapshot.JobRecord{}, err
		}
	}
	return record, nil
}

func (t *Tracker) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

func (t *Tracker) nextID() string {
	if t.IDGenerator != nil {
		return t.IDGenerator()
	}
	return uuid.NewString()
}
