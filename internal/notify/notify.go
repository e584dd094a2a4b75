// Package notify delivers reminder notifications.
//
// The reminder scheduler talks to the Sink interface only; the concrete
// delivery mechanism (log line, Telegram message) is wired by the app. The
// Service wraps a delivery sink with a bounded queue, worker pool, rate limit
// and retry so slow delivery never blocks the polling loop.
package notify

import (
	"context"
	"fmt"
	"time"
)

// Notification is what the scheduler hands to a sink when a reminder fires.
// Body is optional extra text used by digest summaries.
type Notification struct {
	TaskID int64
	Title  string
	DueAt  time.Time
	Body   string
}

// Sink is the delivery contract. Implementations must be safe for concurrent
// use. Errors are reported to the caller for logging; the caller drops the
// notification rather than aborting its loop.
type Sink interface {
	Notify(ctx context.Context, n Notification) error
}

func (n Notification) text() string {
	if n.Body != "" {
		return n.Body
	}
	return fmt.Sprintf("Reminder: %q is due at %s", n.Title, n.DueAt.Format("2006-01-02 15:04"))
}
