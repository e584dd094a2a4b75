package task

import (
	"context"
	"time"
)

// Repository is the task store contract shared by the in-memory and the
// sqlite-backed implementations.
//
// Semantics every implementation must honor:
//   - Create assigns the next ID (previous max + 1, starting at 1); IDs are
//     never reused, even after deletion.
//   - List returns tasks in insertion order, stable across deletions.
//   - Create and Put validate via Task.Validate before storing.
//   - Every mutation is atomic with respect to a concurrent List scan.
type Repository interface {
	Create(ctx context.Context, t Task) (Task, error)
	Get(ctx context.Context, id int64) (Task, error)
	// Put replaces the stored record wholesale. The ID must already exist.
	Put(ctx context.Context, t Task) (Task, error)
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context) ([]Task, error)

	// MarkReminderFired sets ReminderFired only if the task is still open
	// (not complete, not superseded), still has the given due time, and the
	// flag is not already set. It reports whether this call won the flag, so
	// the reminder scheduler fires exactly once per occurrence even if the
	// record was edited or closed between listing and claiming.
	MarkReminderFired(ctx context.Context, id int64, due time.Time) (bool, error)

	Close() error
}
