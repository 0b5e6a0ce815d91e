package notify

import "context"

// Outcome is the result a notification reports.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Notifier delivers user-facing export notifications.
type Notifier interface {
	Send(ctx context.Context, evt Event) error
}

// NotifierFunc adapts a function to a Notifier.
type NotifierFunc func(ctx context.Context, evt Event) error

func (f NotifierFunc) Send(ctx context.Context, evt Event) error {
	return f(ctx, evt)
}

// Event is one notification per finished export job. Message is short and
// human readable; it never carries raw error detail.
type Event struct {
	Outcome          Outcome
	JobID            string
	DocumentRef      string
	Kind             string
	Format           string
	FileName         string
	ContentType      string
	URL              string
	Message          string
	Recipients       []string
	Channels         []string
	Locale           string
	TenantID         string
	ActorID          string
	ChannelOverrides map[string]map[string]any
	Attachments      []Attachment
}

// Attachment carries a file payload for channels that support it.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
	Size        int64
}
