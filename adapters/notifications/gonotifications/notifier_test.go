package gonotifications

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-notifications/pkg/onready"
	"github.com/goliatone/go-snapshot/snapshot"
	"github.com/goliatone/go-snapshot/snapshot/notify"
)

type captureNotifier struct {
	events []onready.OnReadyEvent
}

func (c *captureNotifier) Send(ctx context.Context, evt onready.OnReadyEvent) error {
	_ = ctx
	c.events = append(c.events, evt)
	return nil
}

func TestNotifier_SendMapsFields(t *testing.T) {
	capture := &captureNotifier{}
	notifier := NewNotifier(capture)
	notifier.Defaults = Defaults{Recipients: []string{"ops"}, Channels: []string{"email"}, Locale: "en"}
	notifier.URLFor = func(evt notify.Event) string {
		return "https://example.com/jobs/" + evt.JobID + "/download"
	}

	err := notifier.Send(context.Background(), notify.Event{
		Outcome:  notify.OutcomeSuccess,
		JobID:    "job-1",
		TenantID: "tenant-1",
		FileName: "flyer-instagram.png",
		Format:   "instagram",
		Message:  "Your Instagram export is ready: flyer-instagram.png",
		ChannelOverrides: map[string]map[string]any{
			"email": {"cta_label": "Download"},
		},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	got := capture.events[0]
	if got.FileName != "flyer-instagram.png" {
		t.Fatalf("expected filename, got %s", got.FileName)
	}
	if got.TenantID != "tenant-1" || got.Locale != "en" {
		t.Fatalf("expected tenant and default locale, got %q %q", got.TenantID, got.Locale)
	}
	if len(got.Recipients) != 1 || got.Recipients[0] != "ops" {
		t.Fatalf("expected default recipients, got %v", got.Recipients)
	}
	if got.URL != "https://example.com/jobs/job-1/download" {
		t.Fatalf("expected download url, got %q", got.URL)
	}
}

func TestNotifier_FailureUsesFailureDefinition(t *testing.T) {
	ready := &captureNotifier{}
	failures := &captureNotifier{}
	notifier := NewNotifier(ready)
	notifier.Failures = failures

	err := notifier.Send(context.Background(), notify.Event{
		Outcome:  notify.OutcomeFailure,
		JobID:    "job-9",
		Kind:     "flyer",
		Format:   "letter",
		FileName: "partial.png",
		URL:      "https://example.com/x",
		Message:  "The export could not be captured. Please try again.",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(ready.events) != 0 || len(failures.events) != 1 {
		t.Fatalf("expected failure routed separately, ready=%d failures=%d", len(ready.events), len(failures.events))
	}
	got := failures.events[0]
	if got.FileName != "flyer (letter)" || got.URL != "urn:snapshot:job:job-9" {
		t.Fatalf("expected document label and job urn, got %q %q", got.FileName, got.URL)
	}
	if got.ExpiresAt == "" || got.Message == "" {
		t.Fatalf("expected required fields filled, got %+v", got)
	}
}

func TestNotifier_FailureWithoutDefinitionIsDropped(t *testing.T) {
	ready := &captureNotifier{}
	if err := NewNotifier(ready).Send(context.Background(), notify.Event{Outcome: notify.OutcomeFailure, JobID: "job-1"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(ready.events) != 0 {
		t.Fatalf("expected no ready notification for a failure")
	}
}

func TestNotifier_ReadyNeedsURLAndSetsExpiry(t *testing.T) {
	capture := &captureNotifier{}
	notifier := NewNotifier(capture)
	err := notifier.Send(context.Background(), notify.Event{Outcome: notify.OutcomeSuccess, JobID: "job-1", FileName: "a.png", Format: "facebook"})
	if snapshot.KindFromError(err) != snapshot.KindValidation {
		t.Fatalf("expected validation error without url, got %v", err)
	}

	notifier.Defaults.LinkTTL = time.Hour
	notifier.Now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	err = notifier.Send(context.Background(), notify.Event{
		Outcome:     notify.OutcomeSuccess,
		FileName:    "a.png",
		Format:      "facebook",
		URL:         "https://example.com/a.png",
		Attachments: []notify.Attachment{{Filename: "a.png", ContentType: "image/png", Data: []byte("png"), Size: 3}},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	got := capture.events[0]
	if got.ExpiresAt != "2026-03-01T13:00:00Z" {
		t.Fatalf("unexpected expiry %q", got.ExpiresAt)
	}
	if len(got.Attachments) != 1 || got.Attachments[0].Size != 3 {
		t.Fatalf("expected attachment forwarded, got %+v", got.Attachments)
	}
}

func TestNotifier_NotConfigured(t *testing.T) {
	err := NewNotifier(nil).Send(context.Background(), notify.Event{})
	if snapshot.KindFromError(err) != snapshot.KindNotImpl {
		t.Fatalf("expected not implemented, got %v", err)
	}
}

func TestNotifier_OrchestratorFailureNotifiesOnce(t *testing.T) {
	capture := &captureNotifier{}
	o := snapshot.NewOrchestrator(snapshot.SurfaceFactoryFunc(func(ctx context.Context, spec snapshot.SurfaceSpec) (snapshot.Surface, error) {
		return nil, errors.New("browser crashed")
	}))
	notifier := NewNotifier(&captureNotifier{})
	notifier.Failures = capture
	o.Notifier = notifier

	_, err := o.Export(context.Background(), snapshot.ExportRequest{
		Document: snapshot.VisualDocument{
			Ref:          "flyer-1",
			HTML:         []byte(`<div id="flyer">x</div>`),
			RootSelector: "#flyer",
			Width:        100,
			Height:       100,
		},
		Format: snapshot.FormatInstagramSquare,
	})
	if err == nil {
		t.Fatalf("expected export error")
	}
	if len(capture.events) != 1 {
		t.Fatalf("expected one notification, got %d", len(capture.events))
	}
	if capture.events[0].Format != "instagram-square" {
		t.Fatalf("expected format on event, got %q", capture.events[0].Format)
	}
}
