package incidents

import (
	"context"

	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/models"
)

// NoticeKind is the lifecycle step a Notice reports.
type NoticeKind string

const (
	NoticeCreated  NoticeKind = "created"
	NoticeResolved NoticeKind = "resolved"
)

// Notice announces an incident lifecycle change to outside listeners.
type Notice struct {
	Kind     NoticeKind              `json:"kind"`
	Incident models.SecurityIncident `json:"incident"`
}

// Notifier publishes notices. Implementations must not block for long; they
// are called from a delivery queue worker.
type Notifier interface {
	Notify(ctx context.Context, n Notice) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notice) error

func (f NotifierFunc) Notify(ctx context.Context, n Notice) error {
	return f(ctx, n)
}
