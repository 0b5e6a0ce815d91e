package gonotifications

import (
	"context"
	"time"

	"github.com/goliatone/go-notifications/pkg/adapters"
	"github.com/goliatone/go-notifications/pkg/onready"
	"github.com/goliatone/go-snapshot/snapshot"
	"github.com/goliatone/go-snapshot/snapshot/notify"
)

// Defaults fill routing fields the job itself does not know about.
type Defaults struct {
	Recipients []string
	Channels   []string
	Locale     string
	TenantID   string
	ActorID    string
	// LinkTTL is how long a download link stays valid. Zero means links
	// do not expire.
	LinkTTL time.Duration
}

// Notifier adapts go-notifications OnReadyNotifier to snapshot jobs.
type Notifier struct {
	delegate onready.OnReadyNotifier

	// Failures delivers failed jobs through a separate definition. Without
	// it failures are logged by the orchestrator only.
	Failures onready.OnReadyNotifier
	Defaults Defaults
	// URLFor builds the download link for a finished job. Optional.
	URLFor func(evt notify.Event) string
	Now    func() time.Time
}

var _ notify.Notifier = (*Notifier)(nil)

// NewNotifier wraps a go-notifications notifier.
func NewNotifier(delegate onready.OnReadyNotifier) *Notifier {
	return &Notifier{delegate: delegate}
}

// Send forwards the event to the underlying go-notifications notifier.
// A ready event needs a download link. A failed event names the document
// instead of a file and points at the job, never at a download.
func (n *Notifier) Send(ctx context.Context, evt notify.Event) error {
	if n == nil || n.delegate == nil {
		return snapshot.NewError(snapshot.KindNotImpl, "go-notifications notifier not configured", nil)
	}

	payload := onready.OnReadyEvent{
		Recipients:       firstNonEmpty(evt.Recipients, n.Defaults.Recipients),
		Locale:           pick(evt.Locale, n.Defaults.Locale),
		TenantID:         pick(evt.TenantID, n.Defaults.TenantID),
		ActorID:          pick(evt.ActorID, n.Defaults.ActorID),
		Channels:         firstNonEmpty(evt.Channels, n.Defaults.Channels),
		Format:           evt.Format,
		Message:          evt.Message,
		ChannelOverrides: evt.ChannelOverrides,
	}

	if evt.Outcome == notify.OutcomeFailure {
		if n.Failures == nil {
			return nil
		}
		payload.FileName = documentLabel(evt)
		payload.URL = JobURN(evt.JobID)
		payload.ExpiresAt = noExpiry
		return n.Failures.Send(ctx, payload)
	}

	url := evt.URL
	if url == "" && n.URLFor != nil {
		url = n.URLFor(evt)
	}
	if url == "" {
		return snapshot.NewError(snapshot.KindValidation, "ready notification needs a download url", nil)
	}
	payload.FileName = evt.FileName
	payload.URL = url
	payload.ExpiresAt = n.expiresAt()
	for _, a := range evt.Attachments {
		payload.Attachments = append(payload.Attachments, adapters.Attachment{
			Filename:    a.Filename,
			ContentType: a.ContentType,
			Content:     a.Data,
			Size:        int(a.Size),
		})
	}
	return n.delegate.Send(ctx, payload)
}

const noExpiry = "never"

// JobURN identifies a job in notifications that carry no download link.
func JobURN(jobID string) string {
	return "urn:snapshot:job:" + jobID
}

func (n *Notifier) expiresAt() string {
	if n.Defaults.LinkTTL <= 0 {
		return noExpiry
	}
	now := time.Now
	if n.Now != nil {
		now = n.Now
	}
	return now().Add(n.Defaults.LinkTTL).UTC().Format(time.RFC3339)
}

func documentLabel(evt notify.Event) string {
	switch {
	case evt.Kind != "" && evt.Format != "":
		return evt.Kind + " (" + evt.Format + ")"
	case evt.DocumentRef != "":
		return evt.DocumentRef
	default:
		return "snapshot"
	}
}

func pick(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

func firstNonEmpty(values, fallback []string) []string {
	if len(values) > 0 {
		return values
	}
	return fallback
}
