package snapshotactivity

import (
	"context"
	"strings"

	"github.com/goliatone/go-snapshot/snapshot"
	"github.com/goliatone/go-users/activity"
	"github.com/goliatone/go-users/pkg/types"
	"github.com/google/uuid"
)

// Config configures the activity emitter adapter.
type Config struct {
	Sink       types.ActivitySink
	Channel    string
	ObjectType string
	// ActorID and TenantID attribute every record. Non-UUID values are
	// recorded as nil.
	ActorID  string
	TenantID string
}

// Emitter adapts snapshot lifecycle events into go-users activity records.
type Emitter struct {
	sink       types.ActivitySink
	channel    string
	objectType string
	actorID    uuid.UUID
	tenantID   uuid.UUID
}

var _ snapshot.ChangeEmitter = (*Emitter)(nil)

// NewEmitter creates a new activity emitter.
func NewEmitter(cfg Config) *Emitter {
	channel := strings.TrimSpace(cfg.Channel)
	if channel == "" {
		channel = "snapshot"
	}
	objectType := strings.TrimSpace(cfg.ObjectType)
	if objectType == "" {
		objectType = "snapshot_job"
	}
	return &Emitter{
		sink:       cfg.Sink,
		channel:    channel,
		objectType: objectType,
		actorID:    parseUUID(cfg.ActorID),
		tenantID:   parseUUID(cfg.TenantID),
	}
}

// Emit logs job lifecycle events to the configured ActivitySink.
func (e *Emitter) Emit(ctx context.Context, evt snapshot.ChangeEvent) error {
	if e == nil {
		return snapshot.NewError(snapshot.KindInternal, "activity emitter is nil", nil)
	}
	if e.sink == nil {
		return snapshot.NewError(snapshot.KindNotImpl, "activity sink not configured", nil)
	}
	verb := strings.TrimSpace(evt.Name)
	if verb == "" {
		return snapshot.NewError(snapshot.KindValidation, "activity verb is required", nil)
	}
	objectID := strings.TrimSpace(evt.JobID)
	if objectID == "" {
		return snapshot.NewError(snapshot.KindValidation, "activity object ID is required", nil)
	}

	record, err := activity.BuildRecordFromUUID(
		e.actorID,
		verb,
		e.objectType,
		objectID,
		buildMetadata(evt),
		activity.WithChannel(e.channel),
		activity.WithOccurredAt(evt.Timestamp),
		activity.WithTenant(e.tenantID),
	)
	if err != nil {
		return err
	}
	return e.sink.Log(ctx, record)
}

func buildMetadata(evt snapshot.ChangeEvent) map[string]any {
	meta := make(map[string]any, 3+len(evt.Metadata))
	if evt.DocumentRef != "" {
		meta["document_ref"] = evt.DocumentRef
	}
	if evt.Kind != "" {
		meta["kind"] = evt.Kind
	}
	if evt.Format != "" {
		meta["format"] = string(evt.Format)
	}
	for k, v := range evt.Metadata {
		meta[k] = v
	}
	return meta
}

func parseUUID(value string) uuid.UUID {
	value = strings.TrimSpace(value)
	if value == "" {
		return uuid.Nil
	}
	parsed, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
